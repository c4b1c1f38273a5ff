// Package cloudinit builds the NoCloud seed that personalises a VM cloned
// from a base image: its hostname and the SSH key used to log in as root.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
package cloudinit

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"
)

// Seed is the per-VM input to the generated cloud-init files.
type Seed struct {
	Hostname          string
	InstanceID        string // generated when empty
	SSHAuthorizedKeys []string
}

// Validate checks the seed for errors.
func (s *Seed) Validate() error {
	if s.Hostname == "" {
		return fmt.Errorf("hostname is required")
	}
	if len(s.SSHAuthorizedKeys) == 0 {
		return fmt.Errorf("at least one SSH authorized key is required")
	}
	for i, key := range s.SSHAuthorizedKeys {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key)); err != nil {
			return fmt.Errorf("ssh key %d is invalid: %w", i, err)
		}
	}
	return nil
}

// UserData is the cloud-config user-data document.
//
// See https://cloudinit.readthedocs.io/en/latest/explanation/format.html#cloud-config-data
type UserData struct {
	Hostname        string  `yaml:"hostname"`
	DisableRoot     bool    `yaml:"disable_root"`
	Users           []User  `yaml:"users"`
	SSHPasswordAuth bool    `yaml:"ssh_pwauth"`
	Output          *Output `yaml:"output,omitempty"`
}

// User is an entry of the cloud-config users list.
type User struct {
	Name              string   `yaml:"name"`
	SSHAuthorizedKeys []string `yaml:"ssh_authorized_keys"`
}

// Output configures cloud-init output logging.
type Output struct {
	All string `yaml:"all"`
}

// MetaData is the NoCloud meta-data document.
type MetaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// GenerateUserData returns the user-data file, including the
// "#cloud-config" header. The keys are installed for root.
func GenerateUserData(seed Seed) (string, error) {
	if err := seed.Validate(); err != nil {
		return "", err
	}

	userData := UserData{
		Hostname:    seed.Hostname,
		DisableRoot: false,
		Users: []User{
			{Name: "root", SSHAuthorizedKeys: seed.SSHAuthorizedKeys},
		},
		SSHPasswordAuth: false,
		Output: &Output{
			All: "| tee -a /var/log/cloud-init-output.log",
		},
	}

	yamlBytes, err := yaml.Marshal(&userData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data to YAML: %w", err)
	}

	return "#cloud-config\n" + string(yamlBytes), nil
}

// GenerateMetaData returns the meta-data file. A fresh instance-id is used
// unless the seed carries one, so a VM recreated under the same name is
// provisioned again.
func GenerateMetaData(seed Seed) (string, error) {
	if seed.Hostname == "" {
		return "", fmt.Errorf("hostname is required")
	}

	instanceID := seed.InstanceID
	if instanceID == "" {
		instanceID = newInstanceID()
	}

	yamlBytes, err := yaml.Marshal(&MetaData{
		InstanceID:    instanceID,
		LocalHostname: seed.Hostname,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data to YAML: %w", err)
	}

	return string(yamlBytes), nil
}

func newInstanceID() string {
	return "iid-" + uuid.New().String()
}
