package image

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jbweber/thinbox/internal/checksum"
)

// PullOptions controls a pull.
type PullOptions struct {
	// SkipCheck downloads without verifying.
	SkipCheck bool
}

// Result describes a completed pull.
type Result struct {
	Name       string
	Path       string
	Downloaded bool // false when the image was already cached
	Status     Status

	// Verification is zero when the check was skipped.
	Verification Verification
}

// Message is the line shown to the user once a pull finishes.
func (r Result) Message() string {
	switch {
	case r.Downloaded && r.Status == StatusVerified:
		return "Image downloaded, verified, and ready to use"
	case r.Downloaded:
		return "Image downloaded and ready to use but not verified."
	case r.Status == StatusVerified:
		return "Image already present, verified, and ready to use"
	default:
		return "Image already present and ready to use but not verified."
	}
}

// PullByTag resolves tag to an image URL and pulls it. Unknown tags are
// rejected before any network access.
func (m *Manager) PullByTag(ctx context.Context, tag string, opts PullOptions) (Result, error) {
	if !m.cfg.IsKnownTag(tag) {
		return Result{}, fmt.Errorf("%w: %q (known tags: %s)", ErrUnknownTag, tag, strings.Join(m.cfg.KnownTags, ", "))
	}
	if m.resolver == nil {
		return Result{}, ErrNoRemoteURL
	}

	imageURL, err := m.resolver.Resolve(ctx, tag)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve tag %s: %w", tag, err)
	}
	m.log.WithField("tag", tag).Infof("Resolved %s to %s", tag, imageURL)

	return m.PullByURL(ctx, imageURL, opts)
}

// PullByURL downloads the image at rawURL into the base directory. When the
// host is trusted the manifests published at "<rawURL>.<ALGO>" are fetched
// as well. Unless opts.SkipCheck is set the image is then verified against
// its SHA256 manifest.
func (m *Manager) PullByURL(ctx context.Context, rawURL string, opts PullOptions) (Result, error) {
	name, host := splitImageURL(rawURL)
	dest, err := m.basePath(name)
	if err != nil {
		return Result{}, fmt.Errorf("cannot derive an image name from %q", rawURL)
	}

	log := m.log.WithField("image", name)
	result := Result{Name: name, Path: dest, Status: StatusUnknown}

	downloaded, err := m.fetcher.Fetch(ctx, rawURL, dest)
	if err != nil {
		return result, fmt.Errorf("failed to download %s: %w", name, err)
	}
	result.Downloaded = downloaded
	if !downloaded {
		log.Infof("Image %s already present, not downloading again", name)
	}

	if IsTrustedHost(host, m.cfg.TrustedDomains) {
		m.fetchManifests(ctx, rawURL, name)
	} else {
		log.Debugf("host %q is not trusted, no manifests fetched", host)
	}

	if opts.SkipCheck {
		result.Status = StatusUnverified
		return result, nil
	}

	v, err := m.Verify(ctx, name, checksum.SHA256)
	result.Verification = v
	result.Status = v.Status
	if err != nil {
		return result, err
	}

	return result, nil
}

// fetchManifests downloads every manifest for name in parallel. A manifest
// that cannot be fetched is logged and left missing.
func (m *Manager) fetchManifests(ctx context.Context, imageURL, name string) {
	g, ctx := errgroup.WithContext(ctx)
	for _, alg := range checksum.Algorithms() {
		g.Go(func() error {
			manifestURL := imageURL + "." + alg.Suffix()
			if _, err := m.manifestFetcher.Fetch(ctx, manifestURL, m.cache.ManifestPath(name, alg)); err != nil {
				m.log.WithField("image", name).WithError(err).Warnf("Could not fetch %s manifest", alg)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// splitImageURL returns the file name and host of an image URL.
func splitImageURL(rawURL string) (name, host string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		trimmed := strings.TrimRight(rawURL, "/")
		return trimmed[strings.LastIndex(trimmed, "/")+1:], ""
	}
	return path.Base(u.Path), u.Hostname()
}

// IsTrustedHost reports whether host is one of domains or a subdomain of one.
func IsTrustedHost(host string, domains []string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return false
	}
	for _, d := range domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
