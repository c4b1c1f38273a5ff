package disk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

const (
	// FilePermissions are the permissions for VM disk and seed files.
	FilePermissions = 0644

	diskSuffix = ".qcow2"
	isoSuffix  = "-cidata.iso"
)

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Manager owns the per-VM files in the image directory: the overlay disk
// <dir>/<vm>.qcow2 and the cloud-init seed <dir>/<vm>-cidata.iso.
type Manager struct {
	dir   string
	run   Runner
	owner *Owner
}

// NewManager creates a manager for dir. A nil runner uses ExecRunner.
func NewManager(dir string, run Runner) *Manager {
	if run == nil {
		run = ExecRunner
	}
	return &Manager{dir: dir, run: run}
}

// SetOwner makes the manager chown the files it creates to owner, so a
// system QEMU can open them. A nil owner leaves ownership alone.
func (m *Manager) SetOwner(owner *Owner) {
	m.owner = owner
}

func (m *Manager) chown(path string) error {
	if m.owner == nil {
		return nil
	}
	if err := os.Chown(path, m.owner.UID, m.owner.GID); err != nil {
		return fmt.Errorf("failed to change owner of %s: %w", path, err)
	}
	return nil
}

// DiskPath returns the overlay disk path for a VM.
func (m *Manager) DiskPath(vmName string) string {
	return filepath.Join(m.dir, vmName+diskSuffix)
}

// ISOPath returns the cloud-init seed ISO path for a VM.
func (m *Manager) ISOPath(vmName string) string {
	return filepath.Join(m.dir, vmName+isoSuffix)
}

// DiskExists reports whether the VM's overlay disk exists.
func (m *Manager) DiskExists(vmName string) (bool, error) {
	_, err := os.Stat(m.DiskPath(vmName))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check disk for %s: %w", vmName, err)
	}
	return true, nil
}

// CreateOverlay creates a qcow2 disk for vmName backed by base, so the VM
// writes to its own file and base is never modified.
func (m *Manager) CreateOverlay(ctx context.Context, base, vmName string) (string, error) {
	diskPath := m.DiskPath(vmName)

	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve backing image %s: %w", base, err)
	}

	output, err := m.run(ctx,
		"qemu-img", "create",
		"-f", "qcow2",
		"-b", absBase,
		"-F", "qcow2",
		diskPath,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create overlay disk %s: %w\nOutput: %s", diskPath, err, string(output))
	}
	if err := m.chown(diskPath); err != nil {
		return "", err
	}

	return diskPath, nil
}

// WriteCloudInitISO writes the seed ISO for vmName and returns its path.
func (m *Manager) WriteCloudInitISO(vmName string, isoData []byte) (string, error) {
	if len(isoData) == 0 {
		return "", fmt.Errorf("ISO data cannot be empty")
	}

	isoPath := m.ISOPath(vmName)
	if err := os.WriteFile(isoPath, isoData, FilePermissions); err != nil {
		return "", fmt.Errorf("failed to write cloud-init ISO %s: %w", isoPath, err)
	}
	if err := m.chown(isoPath); err != nil {
		return "", err
	}
	return isoPath, nil
}

// DeleteVM removes the VM's disk and seed ISO. It reports whether the disk
// existed; a missing seed ISO is ignored.
func (m *Manager) DeleteVM(vmName string) (bool, error) {
	diskFound := true
	if err := os.Remove(m.DiskPath(vmName)); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("failed to delete disk for %s: %w", vmName, err)
		}
		diskFound = false
	}

	if err := os.Remove(m.ISOPath(vmName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return diskFound, fmt.Errorf("failed to delete cloud-init ISO for %s: %w", vmName, err)
	}

	return diskFound, nil
}
