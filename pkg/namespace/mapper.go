// Package namespace maps the hierarchical file system SFTP clients see onto
// the flat key space of the object store.
//
// The store has no directories. A user's files live under a home prefix
// ("users/alice"), directories are materialized from key prefixes and
// ".directory" marker objects, and the top-level names "ledgers" and
// "invoices" are virtual aliases that pull the user's own subtrees to the
// root of their view.
package namespace

import (
	"errors"
	"strings"
)

// ErrEscapesRoot is returned when a path would resolve outside the user's
// home prefix (for example via "..").
var ErrEscapesRoot = errors.New("path escapes user root")

// ErrTooDeep is returned when a path exceeds the configured directory depth.
var ErrTooDeep = errors.New("path exceeds maximum directory depth")

// Aliased top-level directory names. "/ledgers" and "/invoices" resolve into
// the user's home subtree, so every user addresses their own copies without
// knowing the home prefix.
const (
	LedgersDir  = "ledgers"
	InvoicesDir = "invoices"
)

// MarkerName is the key suffix segment that marks a directory.
const MarkerName = ".directory"

// legacyMarkerName is recognized on read for old buckets but never written.
const legacyMarkerName = ".dir"

// Mapper translates between the virtual paths one user sees and object keys.
type Mapper struct {
	username   string
	homePrefix string
	maxDepth   int
}

// NewMapper builds a mapper for one authenticated user.
//
// basePath is the bucket-wide user root (for example "users"); the home
// prefix becomes "<basePath>/<username>". maxDepth bounds how many path
// segments a virtual path may have; 0 means unlimited.
func NewMapper(basePath, username string, maxDepth int) *Mapper {
	base := strings.Trim(basePath, "/")
	return &Mapper{
		username:   username,
		homePrefix: base + "/" + username,
		maxDepth:   maxDepth,
	}
}

// Username returns the user this mapper belongs to.
func (m *Mapper) Username() string { return m.username }

// HomePrefix returns the user's object key prefix, without a trailing slash.
func (m *Mapper) HomePrefix() string { return m.homePrefix }

// Normalize canonicalizes a client-supplied path: backslashes become forward
// slashes, repeated slashes collapse, "." segments drop, and the result is
// absolute. Empty and relative inputs resolve against "/". A ".." that would
// climb above the root returns ErrEscapesRoot.
func Normalize(path string) (string, error) {
	path = strings.ReplaceAll(path, "\\", "/")

	var out []string
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(out) == 0 {
				return "", ErrEscapesRoot
			}
			out = out[:len(out)-1]
		default:
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(out, "/"), nil
}

// ToKey maps a virtual path to its object key.
//
// The root maps to the home prefix itself. "/ledgers", "/invoices", and
// "/<username>" (with or without deeper segments) are aliases into the home
// subtree; alias resolution takes precedence over the plain mapping, so a
// top-level file named like an alias cannot shadow it. Everything else maps
// to "<homePrefix><path>".
func (m *Mapper) ToKey(virtualPath string) (string, error) {
	p, err := m.ToVirtual(virtualPath)
	if err != nil {
		return "", err
	}
	if p == "/" {
		return m.homePrefix, nil
	}
	return m.homePrefix + p, nil
}

// ToVirtual normalizes a client path and resolves the top-level aliases,
// returning the canonical virtual path relative to the user's home. This is
// the path REALPATH reports and the policy layer checks.
func (m *Mapper) ToVirtual(virtualPath string) (string, error) {
	p, err := Normalize(virtualPath)
	if err != nil {
		return "", err
	}
	if m.maxDepth > 0 && p != "/" && strings.Count(p, "/") > m.maxDepth {
		return "", ErrTooDeep
	}

	// "/<username>" is the third synthesized root entry; it resolves to the
	// home itself rather than to a "<home>/<username>" subtree.
	if rest, ok := matchAlias(p, m.username); ok {
		if rest == "" {
			return "/", nil
		}
		p = rest
	}
	return p, nil
}

// DisplayName returns the name an object key is shown under when listed
// beneath prefix: the first path segment after the prefix, with directory
// markers collapsed to their parent directory name.
func DisplayName(key, prefix string) string {
	rel := strings.TrimPrefix(key, prefix)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		return ""
	}
	segments := strings.Split(rel, "/")
	if len(segments) >= 2 && segments[1] == MarkerName {
		return segments[0]
	}
	return segments[0]
}

// matchAlias reports whether p is "/<name>" or starts with "/<name>/", and
// returns the remainder (including its leading slash) in the latter case.
func matchAlias(p, name string) (rest string, ok bool) {
	prefix := "/" + name
	if p == prefix {
		return "", true
	}
	if strings.HasPrefix(p, prefix+"/") {
		return p[len(prefix):], true
	}
	return "", false
}

// IsProtectedDir reports whether the canonical virtual path is one of the
// system-owned directories (or their markers) users may never remove or
// rename: "/ledgers", "/invoices", and their marker objects.
//
// The path must already be canonical (alias-resolved), so the user-scoped
// spellings "/<user>/ledgers" and "/<user>/invoices" arrive here as the
// top-level forms.
func IsProtectedDir(virtualPath string) bool {
	for _, dir := range []string{LedgersDir, InvoicesDir} {
		switch virtualPath {
		case "/" + dir, "/" + dir + "/" + MarkerName:
			return true
		}
	}
	return false
}

// UnderProtectedDir reports whether the canonical virtual path sits inside
// "/ledgers" or "/invoices", and if so which one.
func UnderProtectedDir(virtualPath string) (dir string, ok bool) {
	for _, d := range []string{LedgersDir, InvoicesDir} {
		if _, match := matchAlias(virtualPath, d); match {
			return d, true
		}
	}
	return "", false
}
