// Package tags resolves symbolic image tags such as "rhel8-latest" to the
// URL of a concrete image in a remote directory listing.
package tags

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html"
)

// ErrNotFound is returned when the listing has no image for the tag.
var ErrNotFound = errors.New("no image found for tag")

// DefaultTimeout bounds a listing request when no timeout is given.
const DefaultTimeout = time.Minute

var tagPattern = regexp.MustCompile(`^([a-z]+)(\d+)-latest$`)

// Resolver maps tags to image URLs by scanning an HTML directory listing.
type Resolver struct {
	BaseURL string
	Client  *http.Client
}

// NewResolver returns a Resolver for the listing at baseURL whose requests
// give up after timeout. A zero timeout uses DefaultTimeout.
func NewResolver(baseURL string, timeout time.Duration) *Resolver {
	return &Resolver{
		BaseURL: baseURL,
		Client:  newClient(timeout),
	}
}

func newClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Stems returns the file name fragments that identify images for tag, e.g.
// "rhel8-latest" yields "rhel-8" and "rhel-guest-image-8".
func Stems(tag string) ([]string, error) {
	m := tagPattern.FindStringSubmatch(tag)
	if m == nil {
		return nil, fmt.Errorf("%w: unrecognised tag %q", ErrNotFound, tag)
	}
	distro, version := m[1], m[2]
	return []string{
		distro + "-" + version,
		distro + "-guest-image-" + version,
	}, nil
}

// Resolve fetches the listing and returns the URL of the newest image for
// tag: the lexicographically greatest .qcow2 link whose file name contains
// one of the tag's stems.
func (r *Resolver) Resolve(ctx context.Context, tag string) (string, error) {
	stems, err := Stems(tag)
	if err != nil {
		return "", err
	}

	base, err := url.Parse(r.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid listing URL %q: %w", r.BaseURL, err)
	}
	// Relative links resolve against the directory, not its parent.
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build listing request: %w", err)
	}

	client := r.Client
	if client == nil {
		client = newClient(0)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch listing %s: %w", base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch listing %s: %s", base, resp.Status)
	}

	links, err := ExtractLinks(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse listing %s: %w", base, err)
	}

	best := ""
	for _, link := range links {
		name := path.Base(link)
		if !strings.HasSuffix(name, ".qcow2") || !containsAny(name, stems) {
			continue
		}
		if best == "" || path.Base(best) < name {
			best = link
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: %s at %s", ErrNotFound, tag, base)
	}

	ref, err := url.Parse(best)
	if err != nil {
		return "", fmt.Errorf("invalid link %q in listing: %w", best, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// ExtractLinks returns the href of every anchor in an HTML document, in
// document order.
func ExtractLinks(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && attr.Val != "" {
					links = append(links, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links, nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
