package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when neither a domain nor a disk exists for a VM.
var ErrNotFound = errors.New("VM not found")

// Options configures a Manager.
type Options struct {
	MemoryMiB     int    // memory of new VMs
	AuthorizedKey string // public key installed for root; no seed ISO when empty
	Network       string // libvirt network; "default" when empty
	Logger        *logrus.Entry
}

// Manager drives VM lifecycle through libvirt and owns the VM disk files.
type Manager struct {
	lv    libvirtClient
	disks diskManager
	opts  Options
	log   *logrus.Entry
}

// NewManager returns a Manager. lv is usually (*libvirt.Client).Libvirt()
// and disks a *disk.Manager.
func NewManager(lv libvirtClient, disks diskManager, opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		lv:    lv,
		disks: disks,
		opts:  opts,
		log:   log.WithField("component", "vm"),
	}
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("VM name is required")
	}
	if strings.ContainsAny(name, "/ \t") {
		return fmt.Errorf("invalid VM name %q", name)
	}
	return nil
}
