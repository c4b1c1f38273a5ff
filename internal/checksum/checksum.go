package checksum

import (
	"bufio"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/opencontainers/go-digest"
)

// ChunkSize is the read size used while streaming a file into a hash.
const ChunkSize = 1024 * 1024

var (
	// ErrUnsupportedAlgorithm is returned for algorithm names outside the supported set.
	ErrUnsupportedAlgorithm = errors.New("unsupported checksum algorithm")
	// ErrMalformedManifest is returned when a manifest has no digest on its second line.
	ErrMalformedManifest = errors.New("malformed checksum manifest")
	// ErrIO is returned when the file to hash cannot be read.
	ErrIO = errors.New("checksum I/O error")
	// ErrInvalidDigest is returned when a digest is not valid hex of the right length.
	ErrInvalidDigest = errors.New("invalid digest")
)

// Algorithm identifies a checksum algorithm by its manifest suffix.
type Algorithm string

const (
	MD5    Algorithm = "MD5SUM"    // MD5, 32 hex chars
	SHA1   Algorithm = "SHA1SUM"   // SHA-1, 40 hex chars
	SHA256 Algorithm = "SHA256SUM" // SHA-256, 64 hex chars
)

// Algorithms returns every supported algorithm sorted by name.
func Algorithms() []Algorithm {
	return []Algorithm{MD5, SHA1, SHA256}
}

// ParseAlgorithm maps a user-supplied name such as "sha256", "sha256sum" or
// "SHA256SUM" to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "md5", "md5sum":
		return MD5, nil
	case "sha1", "sha1sum":
		return SHA1, nil
	case "sha256", "sha256sum":
		return SHA256, nil
	default:
		return "", fmt.Errorf("%w: %q (supported: md5, sha1, sha256)", ErrUnsupportedAlgorithm, name)
	}
}

// Suffix returns the file suffix used for manifests of this algorithm.
func (a Algorithm) Suffix() string {
	return string(a)
}

// String returns the algorithm name.
func (a Algorithm) String() string {
	return string(a)
}

// New returns a fresh hash for the algorithm.
func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, string(a))
	}
}

// hexLen returns the length of a hex digest for the algorithm.
func (a Algorithm) hexLen() int {
	switch a {
	case MD5:
		return md5.Size * 2
	case SHA1:
		return sha1.Size * 2
	case SHA256:
		return sha256.Size * 2
	default:
		return 0
	}
}

// ComputeDigest streams the file at path through the algorithm's hash in
// ChunkSize reads and returns the lowercase hex digest.
func ComputeDigest(path string, alg Algorithm) (string, error) {
	h, err := alg.New()
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: failed to open %s: %v", ErrIO, path, err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, ChunkSize)
	if _, err := io.CopyBuffer(h, struct{ io.Reader }{f}, buf); err != nil {
		return "", fmt.Errorf("%w: failed to read %s: %v", ErrIO, path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ParseExpectedDigest extracts the expected digest from the second line of
// manifest text. The last token that is a hex string of a known digest
// length wins, which covers both "<digest>  <file>" and
// "SHA256 (<file>) = <digest>" lines; if no token looks like a digest the
// last token of the line is returned.
func ParseExpectedDigest(manifest string) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(manifest))
	var lines []string
	for scanner.Scan() && len(lines) < 2 {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedManifest, err)
	}
	if len(lines) < 2 {
		return "", fmt.Errorf("%w: expected 2 lines, got %d", ErrMalformedManifest, len(lines))
	}

	fields := strings.Fields(lines[1])
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: second line has no digest", ErrMalformedManifest)
	}

	for i := len(fields) - 1; i >= 0; i-- {
		if looksLikeDigest(fields[i]) {
			return fields[i], nil
		}
	}
	return fields[len(fields)-1], nil
}

// looksLikeDigest reports whether token is hex of an MD5, SHA-1 or SHA-256 length.
func looksLikeDigest(token string) bool {
	switch len(token) {
	case md5.Size * 2, sha1.Size * 2, sha256.Size * 2:
	default:
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

// ReadExpectedDigest reads the manifest file at path and returns its expected digest.
func ReadExpectedDigest(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read manifest %s: %v", ErrIO, path, err)
	}
	return ParseExpectedDigest(string(data))
}

// Equal compares two hex digests case-insensitively.
func Equal(a, b string) bool {
	return strings.ToLower(a) == strings.ToLower(b)
}

// ValidateDigest checks that value is a well-formed hex digest for alg.
func ValidateDigest(alg Algorithm, value string) error {
	value = strings.ToLower(value)

	if alg == SHA256 {
		if err := digest.SHA256.Validate(value); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDigest, err)
		}
		return nil
	}

	want := alg.hexLen()
	if want == 0 {
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, string(alg))
	}
	if len(value) != want {
		return fmt.Errorf("%w: %s digest must be %d hex characters, got %d", ErrInvalidDigest, alg, want, len(value))
	}
	if _, err := hex.DecodeString(value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}
	return nil
}
