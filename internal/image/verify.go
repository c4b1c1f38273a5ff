package image

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jbweber/thinbox/internal/checksum"
)

// Verification is the outcome of checking one image against one algorithm.
type Verification struct {
	Image     string
	Algorithm checksum.Algorithm
	Status    Status
	Digest    string // computed or recorded digest; empty when unverified
	Cached    bool   // true when an existing marker was trusted
}

// Verify checks name against its alg manifest.
//
// A missing manifest is not an error: the result is StatusUnverified. An
// existing marker is trusted without reading the image. Otherwise the
// digest is computed and compared; a match writes a marker, a mismatch
// returns ErrDigestMismatch and writes nothing.
func (m *Manager) Verify(ctx context.Context, name string, alg checksum.Algorithm) (Verification, error) {
	result := Verification{Image: name, Algorithm: alg, Status: StatusUnknown}
	if _, err := alg.New(); err != nil {
		return result, err
	}
	log := m.log.WithField("image", name).WithField("algorithm", alg)

	imagePath, err := m.ImagePath(name)
	if err != nil {
		return result, err
	}

	if !m.manifestExists(name, alg) {
		log.Warnf("No %s manifest for %s, skipping verification", alg, name)
		result.Status, _ = result.Status.Transition(StatusUnverified)
		return result, nil
	}

	if m.cache.HasMarker(name, alg) {
		digest, err := m.cache.ReadMarkerDigest(name, alg)
		if err == nil {
			log.Debug("previously verified")
			result.Status, _ = result.Status.Transition(StatusVerified)
			result.Digest = digest
			result.Cached = true
			return result, nil
		}
		log.WithError(err).Warn("ignoring unreadable verification marker")
	}

	result.Status, _ = result.Status.Transition(StatusPending)

	expected, err := checksum.ReadExpectedDigest(m.cache.ManifestPath(name, alg))
	if err != nil {
		return result, fmt.Errorf("failed to read %s manifest for %s: %w", alg, name, err)
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	log.Debug("computing digest")
	actual, err := checksum.ComputeDigest(imagePath, alg)
	if err != nil {
		return result, fmt.Errorf("failed to compute %s of %s: %w", alg, name, err)
	}
	result.Digest = actual

	if !checksum.Equal(expected, actual) {
		result.Status, _ = result.Status.Transition(StatusFailed)
		return result, fmt.Errorf("%w: %s %s: expected %s, got %s", ErrDigestMismatch, name, alg, expected, actual)
	}

	if err := m.cache.WriteMarker(name, alg, actual); err != nil {
		return result, err
	}
	result.Status, _ = result.Status.Transition(StatusVerified)

	return result, nil
}

// VerifyAll verifies name against every algorithm with a manifest. Each
// algorithm is attempted; failures are joined.
func (m *Manager) VerifyAll(ctx context.Context, name string) ([]Verification, error) {
	if _, err := m.ImagePath(name); err != nil {
		return nil, err
	}

	var results []Verification
	var errs []error
	for _, alg := range checksum.Algorithms() {
		if !m.manifestExists(name, alg) {
			continue
		}
		v, err := m.Verify(ctx, name, alg)
		results = append(results, v)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return results, errors.Join(errs...)
}

func (m *Manager) manifestExists(name string, alg checksum.Algorithm) bool {
	info, err := os.Stat(m.cache.ManifestPath(name, alg))
	return err == nil && info.Mode().IsRegular()
}
