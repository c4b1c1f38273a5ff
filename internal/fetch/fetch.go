package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultTimeout bounds a single download when Options.Timeout is unset.
const DefaultTimeout = 30 * time.Minute

// PartialSuffix is appended to dest while a download is in flight.
const PartialSuffix = ".part"

// ErrFetch wraps every transport failure and non-2xx response.
var ErrFetch = errors.New("fetch failed")

// Options configures a Fetcher.
type Options struct {
	Timeout time.Duration
	// Client overrides the HTTP client. Timeout is ignored when set.
	Client *http.Client
	// Progress receives a progress bar when non-nil. See TerminalOutput.
	Progress io.Writer
	Logger   *logrus.Entry
}

// Fetcher downloads artifacts over HTTP(S).
type Fetcher struct {
	client   *http.Client
	progress io.Writer
	log      *logrus.Entry
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Fetcher{
		client:   client,
		progress: opts.Progress,
		log:      log.WithField("component", "fetch"),
	}
}

// Fetch downloads rawURL to dest. It returns false without any network I/O
// when dest already exists. A URL that fails ValidateURL is logged and
// fetched anyway. On failure the partial file is left at dest+".part" and
// dest is untouched.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dest string) (bool, error) {
	if err := ValidateURL(rawURL); err != nil {
		f.log.WithError(err).Warn("URL looks malformed, trying anyway")
	}

	if _, err := os.Stat(dest); err == nil {
		f.log.WithField("path", dest).Debug("already downloaded, skipping")
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to stat %s: %w", dest, err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false, fmt.Errorf("%w: scheme %q is not supported for download", ErrFetch, u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	f.log.WithField("url", rawURL).Debug("downloading")
	resp, err := f.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("%w: GET %s: %s", ErrFetch, rawURL, resp.Status)
	}

	partial := dest + PartialSuffix
	out, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return false, fmt.Errorf("failed to create %s: %w", partial, err)
	}

	if err := f.copyBody(out, resp.Body, resp.ContentLength); err != nil {
		_ = out.Close()
		return false, fmt.Errorf("%w: reading %s: %v", ErrFetch, rawURL, err)
	}
	if err := out.Close(); err != nil {
		return false, fmt.Errorf("failed to close %s: %w", partial, err)
	}

	if err := os.Rename(partial, dest); err != nil {
		return false, fmt.Errorf("failed to move %s into place: %w", dest, err)
	}

	return true, nil
}

// copyBody streams body into out. With a known length and a progress
// writer the body is read in ChunkSize(total) pieces and the bar redrawn
// after each one.
func (f *Fetcher) copyBody(out io.Writer, body io.Reader, total int64) error {
	if total <= 0 || f.progress == nil {
		_, err := io.Copy(out, body)
		return err
	}

	bar := NewProgress(f.progress, total)
	defer bar.Finish()

	buf := make([]byte, ChunkSize(total))
	_, err := io.CopyBuffer(io.MultiWriter(out, bar), struct{ io.Reader }{body}, buf)
	return err
}
