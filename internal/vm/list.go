package vm

import (
	"context"
	"fmt"
	"sort"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/thinbox/internal/metadata"
)

// State is a coarse VM state.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
	StatePaused  State = "paused"
	StateOther   State = "other"
)

// Info describes a VM for listing.
type Info struct {
	Name  string `json:"name" yaml:"name"`
	State State  `json:"state" yaml:"state"`
	IP    string `json:"ip,omitempty" yaml:"ip,omitempty"`
	MAC   string `json:"mac,omitempty" yaml:"mac,omitempty"`
	Image string `json:"image,omitempty" yaml:"image,omitempty"` // empty for VMs not created by thinbox
}

// Filter selects VMs by state. The zero Filter matches every VM.
type Filter struct {
	Running bool
	Stopped bool
	Paused  bool
	Other   bool
}

// Match reports whether a VM in state s passes the filter.
func (f Filter) Match(s State) bool {
	if !f.Running && !f.Stopped && !f.Paused && !f.Other {
		return true
	}
	switch s {
	case StateRunning:
		return f.Running
	case StateStopped:
		return f.Stopped
	case StatePaused:
		return f.Paused
	default:
		return f.Other
	}
}

// List returns the VMs matching filter, sorted by name. Addresses are only
// looked up for running VMs.
func (m *Manager) List(_ context.Context, filter Filter) ([]Info, error) {
	// NeedResults: 1 means populate the domains slice
	// Flags: 0 means all domains (active and inactive)
	domains, _, err := m.lv.ConnectListAllDomains(1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	vms := make([]Info, 0, len(domains))
	for _, domain := range domains {
		raw, _, err := m.lv.DomainGetState(domain, 0)
		if err != nil {
			m.log.WithField("vm", domain.Name).WithError(err).Warn("failed to get domain state")
			continue
		}

		info := Info{Name: domain.Name, State: stateFromLibvirt(raw)}
		if !filter.Match(info.State) {
			continue
		}
		if info.State == StateRunning {
			info.IP, info.MAC = m.address(domain)
		}
		if md, err := metadata.Load(m.lv, domain); err == nil {
			info.Image = md.BaseImage
		}
		vms = append(vms, info)
	}

	sort.Slice(vms, func(i, j int) bool { return vms[i].Name < vms[j].Name })
	return vms, nil
}

// IP returns the first IPv4 address libvirt leased to the VM, or "" when
// it has none yet.
func (m *Manager) IP(_ context.Context, name string) (string, error) {
	domain, state, err := m.lookup(name)
	if err != nil {
		return "", err
	}
	if state != StateRunning {
		return "", fmt.Errorf("VM '%s' is %s", name, state)
	}

	ip, _ := m.address(domain)
	return ip, nil
}

// address returns the first leased IPv4 address and its MAC.
func (m *Manager) address(domain libvirt.Domain) (ip, mac string) {
	ifaces, err := m.lv.DomainInterfaceAddresses(domain, uint32(libvirt.DomainInterfaceAddressesSrcLease), 0)
	if err != nil {
		m.log.WithField("vm", domain.Name).WithError(err).Debug("no interface addresses")
		return "", ""
	}

	for _, iface := range ifaces {
		for _, addr := range iface.Addrs {
			if addr.Type != int32(libvirt.IPAddrTypeIpv4) {
				continue
			}
			if len(iface.Hwaddr) > 0 {
				mac = iface.Hwaddr[0]
			}
			return addr.Addr, mac
		}
	}
	return "", ""
}

func stateFromLibvirt(state int32) State {
	switch libvirt.DomainState(state) {
	case libvirt.DomainRunning:
		return StateRunning
	case libvirt.DomainShutoff, libvirt.DomainShutdown:
		return StateStopped
	case libvirt.DomainPaused, libvirt.DomainPmsuspended:
		return StatePaused
	default:
		return StateOther
	}
}
