package chat

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultName is handed out when a client asks for an empty name.
	DefaultName = "Guest"
	// MaxNameLength caps a requested display name, in runes.
	MaxNameLength = 32

	maxNameSuffix = 1000
)

// ErrNameUnavailable means every candidate derived from a request is taken.
var ErrNameUnavailable = errors.New("chat: name unavailable")

// ResolveName picks the display name a connection joins with. taken reports
// whether a name is held by a live member of the target room; the caller must
// keep the membership stable until the result is used.
//
// Policy: blank requests become DefaultName, long ones are cut to
// MaxNameLength runes, and collisions are suffixed "-2", "-3", ... The
// changed result is true whenever the effective name differs from requested,
// which is when the client gets an assign frame.
func ResolveName(requested string, taken func(string) bool) (name string, changed bool, err error) {
	base := strings.TrimSpace(requested)
	if base == "" {
		base = DefaultName
	}
	base = truncateRunes(base, MaxNameLength)

	if !taken(base) {
		return base, base != requested, nil
	}

	for i := 2; i <= maxNameSuffix; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !taken(candidate) {
			return candidate, true, nil
		}
	}
	return "", false, fmt.Errorf("%w: %q", ErrNameUnavailable, base)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}
