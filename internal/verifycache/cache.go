package verifycache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/moby/sys/atomicwriter"

	"github.com/jbweber/thinbox/internal/checksum"
)

// MarkerSuffix is appended to a manifest name to form its marker name.
const MarkerSuffix = ".OK"

// Cache reads and writes verification markers in a single directory.
type Cache struct {
	dir string
	mu  sync.Mutex
}

// New returns a cache rooted at hashDir. The directory must already exist.
func New(hashDir string) *Cache {
	return &Cache{dir: hashDir}
}

// Dir returns the directory holding manifests and markers.
func (c *Cache) Dir() string {
	return c.dir
}

// ManifestPath returns the path of the published manifest for image and alg.
func (c *Cache) ManifestPath(image string, alg checksum.Algorithm) string {
	return filepath.Join(c.dir, image+"."+alg.Suffix())
}

// MarkerPath returns the path of the OK marker for image and alg.
func (c *Cache) MarkerPath(image string, alg checksum.Algorithm) string {
	return c.ManifestPath(image, alg) + MarkerSuffix
}

// HasMarker reports whether a marker exists for image and alg.
func (c *Cache) HasMarker(image string, alg checksum.Algorithm) bool {
	info, err := os.Stat(c.MarkerPath(image, alg))
	return err == nil && info.Mode().IsRegular()
}

// ReadMarkerDigest returns the digest recorded in the marker for image and alg.
func (c *Cache) ReadMarkerDigest(image string, alg checksum.Algorithm) (string, error) {
	digest, err := checksum.ReadExpectedDigest(c.MarkerPath(image, alg))
	if err != nil {
		return "", fmt.Errorf("failed to read marker for %s (%s): %w", image, alg, err)
	}
	return digest, nil
}

// WriteMarker records that image matched digest under alg. The marker is
// written to a temporary file and renamed into place, so readers see either
// the previous content or the new content. Writing the same marker twice
// leaves identical bytes on disk.
func (c *Cache) WriteMarker(image string, alg checksum.Algorithm, digest string) error {
	if err := checksum.ValidateDigest(alg, digest); err != nil {
		return fmt.Errorf("refusing to write marker for %s: %w", image, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := atomicwriter.WriteFile(c.MarkerPath(image, alg), MarkerContent(image, alg, digest), 0644); err != nil {
		return fmt.Errorf("failed to write marker for %s (%s): %w", image, alg, err)
	}
	return nil
}

// DeleteMarkers removes every marker of image. Missing markers are ignored.
func (c *Cache) DeleteMarkers(image string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, alg := range checksum.Algorithms() {
		if err := os.Remove(c.MarkerPath(image, alg)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove %s marker: %w", alg, err))
		}
	}
	return errors.Join(errs...)
}

// DeleteManifests removes every published manifest of image. Missing
// manifests are ignored.
func (c *Cache) DeleteManifests(image string) error {
	var errs []error
	for _, alg := range checksum.Algorithms() {
		if err := os.Remove(c.ManifestPath(image, alg)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove %s manifest: %w", alg, err))
		}
	}
	return errors.Join(errs...)
}

// Algorithms returns the algorithms with a marker for image, sorted by name.
func (c *Cache) Algorithms(image string) []checksum.Algorithm {
	var algs []checksum.Algorithm
	for _, alg := range checksum.Algorithms() {
		if c.HasMarker(image, alg) {
			algs = append(algs, alg)
		}
	}
	sort.Slice(algs, func(i, j int) bool { return algs[i] < algs[j] })
	return algs
}

// MarkerContent renders the two-line marker body for image.
func MarkerContent(image string, alg checksum.Algorithm, digest string) []byte {
	return []byte(fmt.Sprintf("%s (%s)\n%s  %s\n", alg, image, digest, image))
}
