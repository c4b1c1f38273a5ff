package vm

import (
	"context"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/thinbox/internal/metadata"
)

// libvirtClient defines the libvirt operations needed for VM management.
//
// In production, this is satisfied by *libvirt.Libvirt directly.
// In tests, this is satisfied by mock implementations.
type libvirtClient interface {
	// DomainLookupByName looks up a domain by name
	DomainLookupByName(name string) (libvirt.Domain, error)

	// DomainDefineXML defines a domain from XML
	DomainDefineXML(xml string) (libvirt.Domain, error)

	// DomainCreate starts a domain
	DomainCreate(dom libvirt.Domain) error

	// DomainGetState gets the state of a domain
	DomainGetState(dom libvirt.Domain, flags uint32) (state int32, reason int32, err error)

	// DomainShutdown gracefully shuts down a domain
	DomainShutdown(dom libvirt.Domain) error

	// DomainDestroy force-stops a domain
	DomainDestroy(dom libvirt.Domain) error

	// DomainUndefineFlags undefines a domain with flags (e.g., NVRAM cleanup)
	DomainUndefineFlags(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error

	// ConnectListAllDomains lists active and inactive domains
	ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)

	// DomainInterfaceAddresses returns the addresses of a domain's interfaces
	DomainInterfaceAddresses(dom libvirt.Domain, source uint32, flags uint32) ([]libvirt.DomainInterface, error)

	// Domain metadata recording the base image
	metadata.Client
}

// diskManager defines the file operations needed for VM management.
//
// In production, this is satisfied by *disk.Manager.
type diskManager interface {
	DiskExists(vmName string) (bool, error)
	CreateOverlay(ctx context.Context, base, vmName string) (string, error)
	WriteCloudInitISO(vmName string, isoData []byte) (string, error)
	DeleteVM(vmName string) (bool, error)
}
