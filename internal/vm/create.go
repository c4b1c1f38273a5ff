package vm

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/thinbox/internal/cloudinit"
	thinboxlibvirt "github.com/jbweber/thinbox/internal/libvirt"
	"github.com/jbweber/thinbox/internal/metadata"
)

// CreateFromImage creates and starts a VM named name whose disk is a
// copy-on-write overlay of baseImagePath.
//
// The steps are:
//  1. Refuse if a domain or disk with that name exists
//  2. Create the overlay disk
//  3. Write the cloud-init seed ISO (hostname and root SSH key)
//  4. Define the domain and record the base image in its metadata
//  5. Start the domain
//
// On any failure, partially created resources are removed.
func (m *Manager) CreateFromImage(ctx context.Context, baseImagePath, name string) (err error) {
	if err := validateName(name); err != nil {
		return err
	}
	log := m.log.WithField("vm", name)

	var (
		domainDefined  bool
		storageCreated bool
	)
	defer func() {
		if err != nil && (domainDefined || storageCreated) {
			m.cleanup(name, domainDefined, storageCreated)
		}
	}()

	log.Debug("checking if VM already exists")
	if _, lookupErr := m.lv.DomainLookupByName(name); lookupErr == nil {
		return fmt.Errorf("VM '%s' already exists", name)
	}

	exists, err := m.disks.DiskExists(name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("disk for VM '%s' already exists", name)
	}

	log.Debugf("creating overlay disk backed by %s", baseImagePath)
	diskPath, err := m.disks.CreateOverlay(ctx, baseImagePath, name)
	if err != nil {
		return err
	}
	storageCreated = true

	var isoPath string
	if m.opts.AuthorizedKey != "" {
		log.Debug("generating cloud-init seed")
		isoData, err := cloudinit.GenerateISO(cloudinit.Seed{
			Hostname:          name,
			SSHAuthorizedKeys: []string{m.opts.AuthorizedKey},
		})
		if err != nil {
			return fmt.Errorf("failed to generate cloud-init ISO: %w", err)
		}
		if isoPath, err = m.disks.WriteCloudInitISO(name, isoData); err != nil {
			return err
		}
	} else {
		log.Warn("No SSH public key available, the VM will not be reachable with thinbox enter")
	}

	domainXML, err := thinboxlibvirt.GenerateDomainXML(thinboxlibvirt.DomainSpec{
		Name:             name,
		MemoryMiB:        m.opts.MemoryMiB,
		DiskPath:         diskPath,
		CloudInitISOPath: isoPath,
		Network:          m.opts.Network,
	})
	if err != nil {
		return fmt.Errorf("failed to generate domain XML: %w", err)
	}

	log.Debug("defining domain")
	var domain libvirt.Domain
	domain, err = m.lv.DomainDefineXML(domainXML)
	if err != nil {
		return fmt.Errorf("failed to define domain: %w", err)
	}
	domainDefined = true

	err = metadata.Store(m.lv, domain, metadata.VM{
		BaseImage: filepath.Base(baseImagePath),
		Created:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	log.Debug("starting domain")
	if err = m.lv.DomainCreate(domain); err != nil {
		return fmt.Errorf("failed to start domain: %w", err)
	}

	return nil
}

// cleanup removes what a failed CreateFromImage left behind. It is best
// effort and only logs failures.
func (m *Manager) cleanup(name string, domainDefined, storageCreated bool) {
	log := m.log.WithField("vm", name)
	log.Info("Cleaning up after failed VM creation")

	if domainDefined {
		domain, err := m.lv.DomainLookupByName(name)
		if err != nil {
			log.WithError(err).Warn("failed to look up domain for cleanup")
		} else {
			if err := m.lv.DomainDestroy(domain); err != nil {
				log.WithError(err).Debug("domain was not running")
			}
			if err := m.lv.DomainUndefineFlags(domain, libvirt.DomainUndefineNvram); err != nil {
				log.WithError(err).Warn("failed to undefine domain")
			}
		}
	}

	if storageCreated {
		if _, err := m.disks.DeleteVM(name); err != nil {
			log.WithError(err).Warn("failed to delete VM storage")
		}
	}
}
