package vm

import (
	"context"
	"errors"
	"fmt"

	"github.com/digitalocean/go-libvirt"
)

// Start boots a defined VM. It returns false when the VM was already running.
func (m *Manager) Start(_ context.Context, name string) (bool, error) {
	domain, state, err := m.lookup(name)
	if err != nil {
		return false, err
	}
	if state == StateRunning {
		return false, nil
	}

	if err := m.lv.DomainCreate(domain); err != nil {
		return false, fmt.Errorf("failed to start VM '%s': %w", name, err)
	}
	return true, nil
}

// Stop asks a running VM to shut down. It returns false when the VM was
// not running.
func (m *Manager) Stop(_ context.Context, name string) (bool, error) {
	domain, state, err := m.lookup(name)
	if err != nil {
		return false, err
	}
	if state != StateRunning {
		return false, nil
	}

	if err := m.lv.DomainShutdown(domain); err != nil {
		return false, fmt.Errorf("failed to stop VM '%s': %w", name, err)
	}
	return true, nil
}

// Remove force-stops the VM, undefines it and deletes its disk and seed
// ISO. A VM with only a domain or only a disk left is cleaned up too.
func (m *Manager) Remove(_ context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	log := m.log.WithField("vm", name)

	domainFound := true
	domain, state, err := m.lookup(name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		domainFound = false
	}

	if domainFound {
		if state == StateRunning || state == StatePaused {
			if err := m.lv.DomainDestroy(domain); err != nil {
				return fmt.Errorf("failed to stop VM '%s': %w", name, err)
			}
		}
		if err := m.lv.DomainUndefineFlags(domain, libvirt.DomainUndefineNvram); err != nil {
			return fmt.Errorf("failed to undefine VM '%s': %w", name, err)
		}
	}

	diskFound, err := m.disks.DeleteVM(name)
	if err != nil {
		return err
	}
	if !diskFound {
		if !domainFound {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		log.Warnf("Disk for VM %s not found", name)
	}

	return nil
}

// RemoveAll removes every VM libvirt knows about. Each VM is attempted;
// failures are joined.
func (m *Manager) RemoveAll(ctx context.Context) error {
	vms, err := m.List(ctx, Filter{})
	if err != nil {
		return err
	}

	var errs []error
	for _, vm := range vms {
		if err := m.Remove(ctx, vm.Name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", vm.Name, err))
		}
	}
	return errors.Join(errs...)
}

// lookup finds the domain for name and its current state.
func (m *Manager) lookup(name string) (libvirt.Domain, State, error) {
	if err := validateName(name); err != nil {
		return libvirt.Domain{}, "", err
	}

	domain, err := m.lv.DomainLookupByName(name)
	if err != nil {
		return libvirt.Domain{}, "", fmt.Errorf("%w: %s: %v", ErrNotFound, name, err)
	}

	raw, _, err := m.lv.DomainGetState(domain, 0)
	if err != nil {
		return domain, "", fmt.Errorf("failed to get state of VM '%s': %w", name, err)
	}

	return domain, stateFromLibvirt(raw), nil
}
