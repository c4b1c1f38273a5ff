package image

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/jbweber/thinbox/internal/config"
	"github.com/jbweber/thinbox/internal/fetch"
)

const (
	helloSHA256 = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	helloMD5    = "5d41402abc4b2a76b9719d911017c592"
)

// fakeFetcher serves canned bodies by URL and records every call.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  []string
}

func newFakeFetcher(bodies map[string]string) *fakeFetcher {
	return &fakeFetcher{bodies: bodies}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, dest string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)

	if _, err := os.Stat(dest); err == nil {
		return false, nil
	}
	body, ok := f.bodies[url]
	if !ok {
		return false, fmt.Errorf("%w: GET %s: 404 Not Found", fetch.ErrFetch, url)
	}
	if err := os.WriteFile(dest, []byte(body), 0644); err != nil {
		return false, err
	}
	return true, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeResolver maps tags to URLs and counts lookups.
type fakeResolver struct {
	urls  map[string]string
	calls int
}

func (r *fakeResolver) Resolve(ctx context.Context, tag string) (string, error) {
	r.calls++
	u, ok := r.urls[tag]
	if !ok {
		return "", errors.New("no such tag")
	}
	return u, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		CacheDir:       root,
		BaseDir:        filepath.Join(root, "base"),
		ImageDir:       filepath.Join(root, "images"),
		HashDir:        filepath.Join(root, "hash"),
		FetchTimeout:   config.DefaultFetchTimeout,
		TrustedDomains: []string{"redhat.com", "127.0.0.1"},
		KnownTags:      []string{"rhel8-latest"},
		Settings:       config.DefaultSettings(),
	}
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *config.Config, *test.Hook) {
	t.Helper()
	cfg := testConfig(t)
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	opts = append([]Option{WithLogger(logrus.NewEntry(logger))}, opts...)
	m, err := NewManager(cfg, opts...)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m, cfg, hook
}

func writeImage(t *testing.T, cfg *config.Config, name, content string) string {
	t.Helper()
	path := filepath.Join(cfg.BaseDir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write image: %v", err)
	}
	return path
}

func writeManifest(t *testing.T, cfg *config.Config, name, alg, content string) {
	t.Helper()
	path := filepath.Join(cfg.HashDir, name+"."+alg)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
