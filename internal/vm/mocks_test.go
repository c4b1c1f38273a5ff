package vm

import (
	"context"
	"fmt"
	"sync"

	"github.com/digitalocean/go-libvirt"
)

// mockLibvirtClient is a mock implementation of the libvirtClient interface for testing.
type mockLibvirtClient struct {
	mu sync.Mutex

	// Configurable behavior
	domainLookupByNameFunc       func(name string) (libvirt.Domain, error)
	domainDefineXMLFunc          func(xml string) (libvirt.Domain, error)
	domainCreateFunc             func(dom libvirt.Domain) error
	domainGetStateFunc           func(dom libvirt.Domain, flags uint32) (int32, int32, error)
	domainShutdownFunc           func(dom libvirt.Domain) error
	domainDestroyFunc            func(dom libvirt.Domain) error
	domainUndefineFlagsFunc      func(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error
	connectListAllDomainsFunc    func(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
	domainInterfaceAddressesFunc func(dom libvirt.Domain, source uint32, flags uint32) ([]libvirt.DomainInterface, error)
	domainSetMetadataFunc        func(dom libvirt.Domain, metadata string) error
	domainGetMetadataFunc        func(dom libvirt.Domain) (string, error)

	// Call tracking
	domainLookupByNameCalls  []string
	domainDefineXMLCalls     []string
	domainCreateCalls        []libvirt.Domain
	domainShutdownCalls      []libvirt.Domain
	domainDestroyCalls       []libvirt.Domain
	domainUndefineFlagsCalls []libvirt.Domain
	domainSetMetadataCalls   []string
}

// newMockLibvirtClient creates a new mock libvirt client with default behavior.
func newMockLibvirtClient() *mockLibvirtClient {
	m := &mockLibvirtClient{}

	// Default: VM does not exist until it has been defined
	m.domainLookupByNameFunc = func(name string) (libvirt.Domain, error) {
		m.mu.Lock()
		defined := len(m.domainDefineXMLCalls) > 0
		m.mu.Unlock()
		if defined {
			return libvirt.Domain{Name: name}, nil
		}
		return libvirt.Domain{}, fmt.Errorf("domain not found: %s", name)
	}

	m.domainDefineXMLFunc = func(xml string) (libvirt.Domain, error) {
		return libvirt.Domain{Name: "test-vm"}, nil
	}
	m.domainCreateFunc = func(dom libvirt.Domain) error { return nil }

	// Default: domain state is running
	m.domainGetStateFunc = func(dom libvirt.Domain, flags uint32) (int32, int32, error) {
		return int32(libvirt.DomainRunning), 0, nil
	}

	m.domainShutdownFunc = func(dom libvirt.Domain) error { return nil }
	m.domainDestroyFunc = func(dom libvirt.Domain) error { return nil }
	m.domainUndefineFlagsFunc = func(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error { return nil }
	m.connectListAllDomainsFunc = func(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
		return nil, 0, nil
	}
	m.domainInterfaceAddressesFunc = func(dom libvirt.Domain, source uint32, flags uint32) ([]libvirt.DomainInterface, error) {
		return nil, nil
	}
	m.domainSetMetadataFunc = func(dom libvirt.Domain, metadata string) error { return nil }

	// Default: domains carry no thinbox metadata
	m.domainGetMetadataFunc = func(dom libvirt.Domain) (string, error) {
		return "", fmt.Errorf("metadata not found")
	}

	return m
}

// existing makes lookups succeed for the given names.
func (m *mockLibvirtClient) existing(names ...string) {
	m.domainLookupByNameFunc = func(name string) (libvirt.Domain, error) {
		for _, n := range names {
			if n == name {
				return libvirt.Domain{Name: name}, nil
			}
		}
		return libvirt.Domain{}, fmt.Errorf("domain not found: %s", name)
	}
}

func (m *mockLibvirtClient) DomainLookupByName(name string) (libvirt.Domain, error) {
	m.mu.Lock()
	m.domainLookupByNameCalls = append(m.domainLookupByNameCalls, name)
	m.mu.Unlock()
	return m.domainLookupByNameFunc(name)
}

func (m *mockLibvirtClient) DomainDefineXML(xml string) (libvirt.Domain, error) {
	m.mu.Lock()
	m.domainDefineXMLCalls = append(m.domainDefineXMLCalls, xml)
	m.mu.Unlock()
	return m.domainDefineXMLFunc(xml)
}

func (m *mockLibvirtClient) DomainCreate(dom libvirt.Domain) error {
	m.mu.Lock()
	m.domainCreateCalls = append(m.domainCreateCalls, dom)
	m.mu.Unlock()
	return m.domainCreateFunc(dom)
}

func (m *mockLibvirtClient) DomainGetState(dom libvirt.Domain, flags uint32) (int32, int32, error) {
	return m.domainGetStateFunc(dom, flags)
}

func (m *mockLibvirtClient) DomainShutdown(dom libvirt.Domain) error {
	m.mu.Lock()
	m.domainShutdownCalls = append(m.domainShutdownCalls, dom)
	m.mu.Unlock()
	return m.domainShutdownFunc(dom)
}

func (m *mockLibvirtClient) DomainDestroy(dom libvirt.Domain) error {
	m.mu.Lock()
	m.domainDestroyCalls = append(m.domainDestroyCalls, dom)
	m.mu.Unlock()
	return m.domainDestroyFunc(dom)
}

func (m *mockLibvirtClient) DomainUndefineFlags(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error {
	m.mu.Lock()
	m.domainUndefineFlagsCalls = append(m.domainUndefineFlagsCalls, dom)
	m.mu.Unlock()
	return m.domainUndefineFlagsFunc(dom, flags)
}

func (m *mockLibvirtClient) ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	return m.connectListAllDomainsFunc(needResults, flags)
}

func (m *mockLibvirtClient) DomainInterfaceAddresses(dom libvirt.Domain, source uint32, flags uint32) ([]libvirt.DomainInterface, error) {
	return m.domainInterfaceAddressesFunc(dom, source, flags)
}

func (m *mockLibvirtClient) DomainSetMetadata(dom libvirt.Domain, typ int32, metadata libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error {
	value := ""
	if len(metadata) > 0 {
		value = metadata[0]
	}
	m.mu.Lock()
	m.domainSetMetadataCalls = append(m.domainSetMetadataCalls, value)
	m.mu.Unlock()
	return m.domainSetMetadataFunc(dom, value)
}

func (m *mockLibvirtClient) DomainGetMetadata(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error) {
	return m.domainGetMetadataFunc(dom)
}

// mockDiskManager is a mock implementation of the diskManager interface for testing.
type mockDiskManager struct {
	mu sync.Mutex

	diskExistsFunc        func(vmName string) (bool, error)
	createOverlayFunc     func(ctx context.Context, base, vmName string) (string, error)
	writeCloudInitISOFunc func(vmName string, isoData []byte) (string, error)
	deleteVMFunc          func(vmName string) (bool, error)

	createOverlayCalls []string
	isoWrites          map[string][]byte
	deleteVMCalls      []string
}

func newMockDiskManager() *mockDiskManager {
	m := &mockDiskManager{isoWrites: make(map[string][]byte)}

	m.diskExistsFunc = func(vmName string) (bool, error) { return false, nil }
	m.createOverlayFunc = func(ctx context.Context, base, vmName string) (string, error) {
		return "/var/lib/thinbox/" + vmName + ".qcow2", nil
	}
	m.writeCloudInitISOFunc = func(vmName string, isoData []byte) (string, error) {
		return "/var/lib/thinbox/" + vmName + "-cidata.iso", nil
	}
	m.deleteVMFunc = func(vmName string) (bool, error) { return true, nil }

	return m
}

func (m *mockDiskManager) DiskExists(vmName string) (bool, error) {
	return m.diskExistsFunc(vmName)
}

func (m *mockDiskManager) CreateOverlay(ctx context.Context, base, vmName string) (string, error) {
	m.mu.Lock()
	m.createOverlayCalls = append(m.createOverlayCalls, base)
	m.mu.Unlock()
	return m.createOverlayFunc(ctx, base, vmName)
}

func (m *mockDiskManager) WriteCloudInitISO(vmName string, isoData []byte) (string, error) {
	m.mu.Lock()
	m.isoWrites[vmName] = isoData
	m.mu.Unlock()
	return m.writeCloudInitISOFunc(vmName, isoData)
}

func (m *mockDiskManager) DeleteVM(vmName string) (bool, error) {
	m.mu.Lock()
	m.deleteVMCalls = append(m.deleteVMCalls, vmName)
	m.mu.Unlock()
	return m.deleteVMFunc(vmName)
}
