package fetch

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidURL is returned by ValidateURL. Fetch treats it as a warning.
var ErrInvalidURL = errors.New("invalid URL")

var urlPattern = regexp.MustCompile(`(?i)^(?:http|ftp)s?://` +
	`(?:(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+(?:[a-z]{2,6}\.?|[a-z0-9-]{2,}\.?)` + // domain
	`|localhost` +
	`|\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})` + // IPv4
	`(?::\d+)?` +
	`(?:/?|[/?]\S+)$`)

// ValidateURL checks raw against a permissive URL shape: an http, https,
// ftp or ftps scheme, a domain, localhost or dotted IPv4 host, an optional
// port and an optional path.
func ValidateURL(raw string) error {
	if !urlPattern.MatchString(raw) {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}
