package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultMemoryMiB is the memory given to new VMs when the user config does not set one.
	DefaultMemoryMiB = 1024

	// DefaultFetchTimeout bounds a single artifact download.
	DefaultFetchTimeout = 30 * time.Minute

	// DefaultLibvirtSocket is the local qemu:///system socket.
	DefaultLibvirtSocket = "/var/run/libvirt/libvirt-sock"

	// UserConfigName is the file name of the user settings file inside ConfigDir.
	UserConfigName = "user.thinbox.yaml"
)

// Config is the resolved thinbox configuration. It is built once by Load
// and handed to the components that need it.
type Config struct {
	CacheDir string // Cache root, e.g. ~/.cache/thinbox
	BaseDir  string // Downloaded base images
	ImageDir string // VM overlay disks
	HashDir  string // Checksum manifests and OK markers

	ConfigDir      string // e.g. ~/.config/thinbox
	UserConfigPath string // ConfigDir/user.thinbox.yaml

	FetchTimeout   time.Duration
	TrustedDomains []string // Hosts that publish checksum manifests next to images
	KnownTags      []string // Tags accepted by "pull tag"
	LibvirtSocket  string
	SSHOptions     []string // Extra options passed to ssh and scp

	Settings Settings
}

// Settings holds the user-tunable values read from user.thinbox.yaml.
// Unknown keys are rejected when the file is decoded.
type Settings struct {
	Memory        int    `yaml:"memory"`                    // VM memory in MiB
	RemoteBaseURL string `yaml:"remote_base_url,omitempty"` // Directory listing used to resolve tags
	SSHPublicKey  string `yaml:"ssh_public_key,omitempty"`  // Authorized key injected into new VMs
}

// DefaultSettings returns the settings used when no user config exists.
func DefaultSettings() Settings {
	return Settings{Memory: DefaultMemoryMiB}
}

// Validate checks the settings for errors.
func (s *Settings) Validate() error {
	if s.Memory <= 0 {
		return fmt.Errorf("memory must be > 0, got %d", s.Memory)
	}

	if s.RemoteBaseURL != "" {
		u, err := url.Parse(s.RemoteBaseURL)
		if err != nil {
			return fmt.Errorf("invalid remote_base_url %q: %w", s.RemoteBaseURL, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("remote_base_url must be an http(s) URL, got %q", s.RemoteBaseURL)
		}
	}

	if s.SSHPublicKey != "" {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(s.SSHPublicKey)); err != nil {
			return fmt.Errorf("ssh_public_key is not a valid SSH public key: %w", err)
		}
	}

	return nil
}

// Load resolves the configuration from the process environment and the
// user settings file.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to determine home directory: %w", err)
	}
	return LoadFrom(os.Getenv, home)
}

// LoadFrom resolves the configuration using getenv for environment lookups
// and home as the user's home directory.
//
// Directory resolution follows the XDG base directory layout:
//   - cache root: $XDG_CACHE_HOME/thinbox (default ~/.cache/thinbox)
//   - config dir: $XDG_CONFIG_HOME/thinbox (default ~/.config/thinbox)
//
// THINBOX_BASE_DIR, THINBOX_IMAGE_DIR and THINBOX_HASH_DIR override the
// individual cache directories. RHEL_IMAGE_URL overrides remote_base_url.
func LoadFrom(getenv func(string) string, home string) (*Config, error) {
	cacheHome := envOr(getenv, "XDG_CACHE_HOME", filepath.Join(home, ".cache"))
	configHome := envOr(getenv, "XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	cacheDir := filepath.Join(cacheHome, "thinbox")
	configDir := filepath.Join(configHome, "thinbox")

	cfg := &Config{
		CacheDir:       cacheDir,
		BaseDir:        envOr(getenv, "THINBOX_BASE_DIR", filepath.Join(cacheDir, "base")),
		ImageDir:       envOr(getenv, "THINBOX_IMAGE_DIR", filepath.Join(cacheDir, "images")),
		HashDir:        envOr(getenv, "THINBOX_HASH_DIR", filepath.Join(cacheDir, "hash")),
		ConfigDir:      configDir,
		UserConfigPath: filepath.Join(configDir, UserConfigName),
		FetchTimeout:   DefaultFetchTimeout,
		TrustedDomains: []string{"download-node-02.eng.bos.redhat.com", "redhat.com"},
		KnownTags:      []string{"rhel8-latest"},
		LibvirtSocket:  DefaultLibvirtSocket,
		SSHOptions: []string{
			"-o", "StrictHostKeyChecking=no",
			"-o", "GlobalKnownHostsFile=/dev/null",
			"-o", "UserKnownHostsFile=/dev/null",
		},
	}

	if raw := getenv("THINBOX_FETCH_TIMEOUT"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid THINBOX_FETCH_TIMEOUT %q: %w", raw, err)
		}
		if timeout <= 0 {
			return nil, fmt.Errorf("THINBOX_FETCH_TIMEOUT must be positive, got %s", timeout)
		}
		cfg.FetchTimeout = timeout
	}

	settings, err := LoadSettings(cfg.UserConfigPath)
	if err != nil {
		return nil, err
	}
	if remote := getenv("RHEL_IMAGE_URL"); remote != "" {
		settings.RemoteBaseURL = remote
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid user configuration %s: %w", cfg.UserConfigPath, err)
	}
	cfg.Settings = settings

	return cfg, nil
}

// LoadSettings reads user settings from path. A missing file yields the
// defaults; a file with unknown keys is an error.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("failed to read user configuration: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&settings); err != nil && !errors.Is(err, io.EOF) {
		return settings, fmt.Errorf("failed to parse user configuration %s: %w", path, err)
	}

	return settings, nil
}

// EnsureDirs creates the cache directories. It fails if one of the paths
// exists and is not a directory.
func (c *Config) EnsureDirs() error {
	dirs := []struct {
		label string
		path  string
	}{
		{"base cache", c.BaseDir},
		{"image cache", c.ImageDir},
		{"hash cache", c.HashDir},
	}

	for _, d := range dirs {
		info, err := os.Stat(d.path)
		switch {
		case err == nil && !info.IsDir():
			return fmt.Errorf("%s dir %s exists and it's not a directory", d.label, d.path)
		case err == nil:
			continue
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("failed to stat %s dir %s: %w", d.label, d.path, err)
		}
		if err := os.MkdirAll(d.path, 0755); err != nil {
			return fmt.Errorf("failed to create %s dir %s: %w", d.label, d.path, err)
		}
	}

	return nil
}

// LockPath returns the advisory lock file guarding the cache tree.
func (c *Config) LockPath() string {
	return filepath.Join(c.CacheDir, ".lock")
}

// IsKnownTag reports whether tag can be pulled by name.
func (c *Config) IsKnownTag(tag string) bool {
	for _, known := range c.KnownTags {
		if known == tag {
			return true
		}
	}
	return false
}

// AuthorizedKey returns the public key to inject into new VMs. The
// ssh_public_key setting wins; otherwise the first of ~/.ssh/id_ed25519.pub
// and ~/.ssh/id_rsa.pub that exists is used.
func (c *Config) AuthorizedKey(home string) (string, error) {
	if c.Settings.SSHPublicKey != "" {
		return strings.TrimSpace(c.Settings.SSHPublicKey), nil
	}

	for _, name := range []string{"id_ed25519.pub", "id_rsa.pub"} {
		data, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		key := strings.TrimSpace(string(data))
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key)); err != nil {
			return "", fmt.Errorf("%s is not a valid SSH public key: %w", name, err)
		}
		return key, nil
	}

	return "", fmt.Errorf("no SSH public key found: set ssh_public_key in %s", c.UserConfigPath)
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}
