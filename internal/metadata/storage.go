// Package metadata records how a thinbox VM was made in libvirt's custom
// domain metadata, so the information lives and dies with the domain.
package metadata

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"gopkg.in/yaml.v3"
)

const (
	// Namespace is the XML namespace of thinbox metadata.
	Namespace = "https://github.com/jbweber/thinbox/vm/v1"

	// Key is the element prefix libvirt uses for the namespace.
	Key = "thinbox"
)

// Client is the subset of *libvirt.Libvirt used for metadata.
type Client interface {
	DomainSetMetadata(dom libvirt.Domain, typ int32, metadata libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error)
}

// VM is what thinbox remembers about a VM it created.
type VM struct {
	BaseImage string    `yaml:"baseImage"`
	Created   time.Time `yaml:"created"`
}

// element is the XML wrapper stored in the domain. The record is kept as
// YAML text so it stays readable in "virsh dumpxml".
type element struct {
	XMLName xml.Name `xml:"vm"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`
	YAML    string   `xml:",chardata"`
}

// Store saves info on domain, replacing earlier thinbox metadata.
func Store(c Client, domain libvirt.Domain, info VM) error {
	if info.BaseImage == "" {
		return fmt.Errorf("base image is required")
	}

	yamlData, err := yaml.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal VM metadata to YAML: %w", err)
	}

	xmlData, err := xml.Marshal(element{Xmlns: Namespace, YAML: string(yamlData)})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata to XML: %w", err)
	}

	// flags: 0 = affect the current state (persistent for an inactive domain)
	err = c.DomainSetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{string(xmlData)},
		libvirt.OptString{Key},
		libvirt.OptString{Namespace},
		libvirt.DomainModificationImpact(0),
	)
	if err != nil {
		return fmt.Errorf("failed to set libvirt domain metadata: %w", err)
	}

	return nil
}

// Load reads the thinbox metadata of domain. Domains not created by thinbox
// return an error.
func Load(c Client, domain libvirt.Domain) (VM, error) {
	xmlStr, err := c.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{Namespace},
		libvirt.DomainModificationImpact(0),
	)
	if err != nil {
		return VM{}, fmt.Errorf("failed to get libvirt domain metadata: %w", err)
	}

	var el element
	if err := xml.Unmarshal([]byte(xmlStr), &el); err != nil {
		return VM{}, fmt.Errorf("failed to unmarshal metadata XML: %w", err)
	}

	var info VM
	if err := yaml.Unmarshal([]byte(el.YAML), &info); err != nil {
		return VM{}, fmt.Errorf("failed to unmarshal VM metadata from YAML: %w", err)
	}
	if info.BaseImage == "" {
		return VM{}, fmt.Errorf("metadata has no base image")
	}

	return info, nil
}
