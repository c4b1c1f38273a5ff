// Package libvirt connects to the local libvirt daemon and renders domain
// XML for thinbox VMs.
//
//	client, err := libvirt.Connect("", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	xml, err := libvirt.GenerateDomainXML(libvirt.DomainSpec{
//	    Name:      "web",
//	    MemoryMiB: 1024,
//	    DiskPath:  "/home/me/.cache/thinbox/images/web.qcow2",
//	})
//
// This package does not define interfaces. Consumers such as internal/vm
// declare the subset of the go-libvirt API they call, and *libvirt.Libvirt
// (returned by Client.Libvirt) satisfies it.
package libvirt
