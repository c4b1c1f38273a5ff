package image

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrImageNotFound is returned when an image is not in the cache.
	ErrImageNotFound = errors.New("image not found")

	// ErrDigestMismatch is returned when an image does not match its manifest.
	ErrDigestMismatch = errors.New("checksum mismatch")

	// ErrUnknownTag is returned by PullByTag for tags outside the known set.
	ErrUnknownTag = errors.New("unknown tag")

	// ErrNoRemoteURL is returned by PullByTag when no listing URL is configured.
	ErrNoRemoteURL = errors.New("no remote image URL configured (set RHEL_IMAGE_URL or remote_base_url)")
)

// NotFoundError reports a missing image together with a hint for the user.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("image %s not found", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrImageNotFound
}

// Hint suggests what the user may have done wrong.
func (e *NotFoundError) Hint() string {
	var b strings.Builder
	if !strings.HasSuffix(e.Name, ".qcow2") {
		b.WriteString("Maybe the filename is incorrect?\n")
	}
	b.WriteString("To list the available images run: thinbox image list")
	return b.String()
}

// Warning marks an error the caller should report but not fail on.
type Warning struct {
	Err error
}

func (w *Warning) Error() string {
	return w.Err.Error()
}

func (w *Warning) Unwrap() error {
	return w.Err
}

// IsWarning reports whether err, or every error joined into it, is a Warning.
func IsWarning(err error) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if !IsWarning(e) {
				return false
			}
		}
		return true
	}
	var w *Warning
	return errors.As(err, &w)
}
