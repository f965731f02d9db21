package catalog

import (
	"regexp"
	"strings"
)

// Catalog identifiers (package, user, organization and group names) must be
// lowercase ASCII restricted to [a-z0-9_-] with a length between 2 and 100.
const (
	minSlugLen = 2
	maxSlugLen = 100
)

var (
	slugSpaces  = regexp.MustCompile(`\s+`)
	slugInvalid = regexp.MustCompile(`[^a-z0-9_-]`)
)

// Slug turns arbitrary human text into a catalog-safe identifier:
// lowercased, runs of whitespace collapsed to "-", every other character
// outside [a-z0-9_-] stripped, truncated to 100 characters, and doubled if
// the result falls below 2 characters.
//
// The transform is deterministic and idempotent. It gives no uniqueness
// guarantee; callers that need one must layer the collision-retry
// protocol on top (see CreatePackage).
func Slug(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugInvalid.ReplaceAllString(s, "")
	if len(s) > maxSlugLen {
		s = s[:maxSlugLen]
	}
	if len(s) < minSlugLen {
		// Doubling, not random padding: the result must stay reproducible.
		s += s
	}
	return s
}
