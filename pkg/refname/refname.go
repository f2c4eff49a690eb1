// Package refname derives flat, sortable artifact filenames from branch
// names. Sanitization is deterministic but lossy: two distinct branch names
// can map to the same filename component (e.g. "feature/x" and "feature--x").
// That collision is accepted; the workflow disambiguates socially, not here.
package refname

import (
	"strings"
	"time"
)

// Separator joins the sanitized branch name and the timestamp.
const Separator = "__"

// TimestampLayout is UTC at second resolution, lexically sortable.
const TimestampLayout = "20060102T150405Z"

// hierarchySubstitute replaces "/" in branch names. Fixed width so sorted
// listings of related branches stay grouped.
const hierarchySubstitute = "--"

// Sanitize maps a branch name to a string safe as a flat filename component.
// Hierarchy separators become hierarchySubstitute; any other byte outside
// [A-Za-z0-9._-] becomes "-".
func Sanitize(branch string) string {
	var b strings.Builder
	b.Grow(len(branch) + 4)
	for i := 0; i < len(branch); i++ {
		c := branch[i]
		switch {
		case c == '/':
			b.WriteString(hierarchySubstitute)
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '.', c == '_', c == '-':
			b.WriteByte(c)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Timestamp formats t in UTC using TimestampLayout. Two saves of the same
// branch within the same second produce the same name; the later write wins.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ArtifactName composes the artifact filename for a branch saved at the
// given timestamp: {sanitized}__{stamp}.{ext}.
func ArtifactName(branch, stamp, ext string) string {
	return Sanitize(branch) + Separator + stamp + "." + ext
}
