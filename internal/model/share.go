package model

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidShareURL is returned when a link is not of the form
// scheme://host/s/<code>.
var ErrInvalidShareURL = errors.New("invalid share URL")

var (
	shareSuffixPattern = regexp.MustCompile(`[?#].*$`)
	shareURLPattern    = regexp.MustCompile(`^(https?://[^/]+)/s/([^/?#]+)`)
)

// ShareReference identifies a shared folder on a Cloudreve server.
//
// A ShareReference is derived once from the link a user pastes and is
// treated as an immutable value afterwards:
//
//	share, err := model.ParseShareURL("https://cloud.example.com/s/AB5so?x=1")
//	// share.BaseURL = "https://cloud.example.com"
//	// share.Code    = "AB5so"
type ShareReference struct {
	// BaseURL is the scheme and host of the server, without a trailing slash.
	BaseURL string

	// Code is the share identifier that follows /s/ in the link.
	Code string
}

// ParseShareURL extracts the server base and the share code from a share link.
//
// Query string and fragment are discarded before matching. Anything after
// the code segment is ignored. Links that do not contain /s/<code> right
// after the host return an error wrapping ErrInvalidShareURL.
func ParseShareURL(raw string) (ShareReference, error) {
	cleaned := shareSuffixPattern.ReplaceAllString(raw, "")

	m := shareURLPattern.FindStringSubmatch(cleaned)
	if m == nil {
		return ShareReference{}, fmt.Errorf("%w: %q", ErrInvalidShareURL, raw)
	}

	return ShareReference{BaseURL: m[1], Code: m[2]}, nil
}

// String returns "{base}:{code}", the form used to derive cache keys.
func (s ShareReference) String() string {
	return s.BaseURL + ":" + s.Code
}
