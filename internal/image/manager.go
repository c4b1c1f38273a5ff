package image

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/thinbox/internal/config"
	"github.com/jbweber/thinbox/internal/fetch"
	"github.com/jbweber/thinbox/internal/tags"
	"github.com/jbweber/thinbox/internal/verifycache"
)

// Fetcher downloads a URL to a local path, skipping paths that exist.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) (bool, error)
}

// TagResolver maps a tag to the URL of a concrete image.
type TagResolver interface {
	Resolve(ctx context.Context, tag string) (string, error)
}

// Manager owns the base image cache.
type Manager struct {
	cfg             *config.Config
	cache           *verifycache.Cache
	fetcher         Fetcher
	manifestFetcher Fetcher
	resolver        TagResolver
	log             *logrus.Entry
}

// Option configures a Manager.
type Option func(*Manager)

// WithFetcher replaces the fetcher used for images and manifests.
func WithFetcher(f Fetcher) Option {
	return func(m *Manager) {
		m.fetcher = f
		m.manifestFetcher = f
	}
}

// WithTagResolver replaces the tag resolver.
func WithTagResolver(r TagResolver) Option {
	return func(m *Manager) {
		m.resolver = r
	}
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// NewManager creates the cache directories described by cfg and returns a
// manager for them.
func NewManager(cfg *config.Config, opts ...Option) (*Manager, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:   cfg,
		cache: verifycache.New(cfg.HashDir),
		log:   logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithField("component", "image")

	if m.fetcher == nil {
		m.fetcher = fetch.New(fetch.Options{
			Timeout:  cfg.FetchTimeout,
			Progress: fetch.TerminalOutput(os.Stdout),
			Logger:   m.log,
		})
		// Manifests are fetched in parallel; no bar for them.
		m.manifestFetcher = fetch.New(fetch.Options{Timeout: cfg.FetchTimeout, Logger: m.log})
	}
	if m.resolver == nil && cfg.Settings.RemoteBaseURL != "" {
		m.resolver = tags.NewResolver(cfg.Settings.RemoteBaseURL, cfg.FetchTimeout)
	}

	return m, nil
}

// ImagePath returns the path of a cached image.
func (m *Manager) ImagePath(name string) (string, error) {
	path, err := m.basePath(name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", &NotFoundError{Name: name}
	}
	return path, nil
}

// basePath maps an image name to its location in the base directory.
// Names that are not a single path element are rejected.
func (m *Manager) basePath(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, os.PathSeparator) {
		return "", &NotFoundError{Name: name}
	}
	return filepath.Join(m.cfg.BaseDir, name), nil
}

// imageExists reports whether name is a regular file in the base directory.
func (m *Manager) imageExists(name string) bool {
	_, err := m.ImagePath(name)
	return err == nil
}
