package image

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jbweber/thinbox/internal/checksum"
	"github.com/jbweber/thinbox/internal/disk"
	"github.com/jbweber/thinbox/internal/fetch"
)

// BaseImage is a cached base image.
type BaseImage struct {
	Name               string               `json:"name" yaml:"name"`
	SizeBytes          int64                `json:"sizeBytes" yaml:"sizeBytes"`
	VerifiedAlgorithms []checksum.Algorithm `json:"verifiedAlgorithms" yaml:"verifiedAlgorithms"`
}

// ImageInfo is the detailed view of a single image.
type ImageInfo struct {
	BaseImage `yaml:",inline"`
	Path      string               `json:"path" yaml:"path"`
	Format    disk.Format          `json:"format,omitempty" yaml:"format,omitempty"`
	Manifests []checksum.Algorithm `json:"manifests" yaml:"manifests"`
}

// ListCatalog returns the cached images sorted by name. In-flight downloads
// are not listed.
func (m *Manager) ListCatalog() ([]BaseImage, error) {
	entries, err := os.ReadDir(m.cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	images := []BaseImage{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasSuffix(entry.Name(), fetch.PartialSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info
			continue
		}
		images = append(images, BaseImage{
			Name:               entry.Name(),
			SizeBytes:          info.Size(),
			VerifiedAlgorithms: m.cache.Algorithms(entry.Name()),
		})
	}

	return images, nil
}

// Inspect returns details about one cached image.
func (m *Manager) Inspect(name string) (ImageInfo, error) {
	path, err := m.ImagePath(name)
	if err != nil {
		return ImageInfo{}, err
	}

	st, err := os.Stat(path)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to stat %s: %w", name, err)
	}

	info := ImageInfo{
		BaseImage: BaseImage{
			Name:               name,
			SizeBytes:          st.Size(),
			VerifiedAlgorithms: m.cache.Algorithms(name),
		},
		Path: path,
	}

	if format, err := disk.DetectImageFormat(path); err == nil {
		info.Format = format
	} else {
		m.log.WithField("image", name).WithError(err).Debug("could not detect image format")
	}

	for _, alg := range checksum.Algorithms() {
		if m.manifestExists(name, alg) {
			info.Manifests = append(info.Manifests, alg)
		}
	}

	return info, nil
}

// RemoveImage deletes name with its manifests and markers. Removing an
// image that is not cached returns a Warning wrapping a NotFoundError;
// leftover manifests, markers and interrupted downloads are cleaned up
// either way.
func (m *Manager) RemoveImage(name string) error {
	path, err := m.basePath(name)
	if err != nil {
		return &Warning{Err: err}
	}

	if err := m.cache.DeleteMarkers(name); err != nil {
		return fmt.Errorf("failed to remove markers of %s: %w", name, err)
	}
	if err := m.cache.DeleteManifests(name); err != nil {
		return fmt.Errorf("failed to remove manifests of %s: %w", name, err)
	}
	if err := m.removePartials(name); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Warning{Err: &NotFoundError{Name: name}}
		}
		return fmt.Errorf("failed to remove image %s: %w", name, err)
	}

	m.log.WithField("image", name).Debug("removed")
	return nil
}

// RemoveAllImages removes every cached image. A failure on one image does
// not stop the others.
func (m *Manager) RemoveAllImages() error {
	images, err := m.ListCatalog()
	if err != nil {
		return err
	}

	var errs []error
	for _, img := range images {
		if err := m.RemoveImage(img.Name); err != nil {
			errs = append(errs, err)
		}
	}

	// Interrupted downloads are not in the catalog.
	entries, err := os.ReadDir(m.cfg.BaseDir)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("failed to list images: %w", err))...)
	}
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), fetch.PartialSuffix)
		if !ok || name == "" || !entry.Type().IsRegular() {
			continue
		}
		if err := m.removePartials(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// removePartials deletes the in-flight download files of name: the image
// and each manifest. Missing files are ignored.
func (m *Manager) removePartials(name string) error {
	path, err := m.basePath(name)
	if err != nil {
		return err
	}

	paths := []string{path + fetch.PartialSuffix}
	for _, alg := range checksum.Algorithms() {
		paths = append(paths, m.cache.ManifestPath(name, alg)+fetch.PartialSuffix)
	}

	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove partial download %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}
