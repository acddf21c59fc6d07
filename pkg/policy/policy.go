// Package policy decides what an authenticated user may do with a virtual
// path. Three independent rules apply: the per-user path allow-list, the
// PDF-only rule for the ledgers and invoices trees, and the protected-path
// rule shielding the system-owned directories. Every rule runs before any
// object-store call is made.
package policy

import (
	"strings"

	"github.com/paperdrop/paperdrop/pkg/namespace"
)

// DefaultAllowedPaths is the allow-list users get unless overridden.
func DefaultAllowedPaths() []string {
	return []string{"/", "/" + namespace.LedgersDir, "/" + namespace.InvoicesDir}
}

// Policy evaluates access rules for one user.
type Policy struct {
	username     string
	allowedPaths []string
}

// New builds the policy for a user. allowedPaths may be nil to use the
// defaults.
func New(username string, allowedPaths []string) *Policy {
	if len(allowedPaths) == 0 {
		allowedPaths = DefaultAllowedPaths()
	}
	normalized := make([]string, 0, len(allowedPaths))
	for _, prefix := range allowedPaths {
		if p, err := namespace.Normalize(prefix); err == nil {
			normalized = append(normalized, p)
		}
	}
	return &Policy{username: username, allowedPaths: normalized}
}

// Admits reports whether the user may address the virtual path at all. The
// path must already be normalized.
//
// A path is admitted when it matches an allow-list prefix exactly or lives
// under one, when it equals or lives under "/<username>", or when it is a
// single top-level segment (root-level drops land inside the user's home, so
// they are safe to admit).
func (p *Policy) Admits(virtualPath string) bool {
	for _, prefix := range p.allowedPaths {
		// "<prefix>/" never matches a normalized path when prefix is "/",
		// so the root entry admits exactly "/" and nothing below it.
		if virtualPath == prefix || strings.HasPrefix(virtualPath, prefix+"/") {
			return true
		}
	}

	home := "/" + p.username
	if virtualPath == home || strings.HasPrefix(virtualPath, home+"/") {
		return true
	}

	// Top-level single segment: "/name" with no deeper slash.
	if virtualPath != "/" && strings.Count(virtualPath, "/") == 1 {
		return true
	}

	return false
}

// AllowsWrite reports whether the user may open the canonical virtual path
// for writing. Under "/ledgers" and "/invoices" only ".pdf" files are
// accepted, and the directory itself is never a write target. The returned
// reason is empty when the write is allowed.
func (p *Policy) AllowsWrite(virtualPath string) (reason string) {
	dir, ok := namespace.UnderProtectedDir(virtualPath)
	if !ok {
		return ""
	}
	if virtualPath == "/"+dir {
		return "cannot write to the " + dir + " directory itself"
	}
	name := virtualPath[strings.LastIndex(virtualPath, "/")+1:]
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return "only PDF files are accepted under /" + dir
	}
	return ""
}

// Protected reports whether the canonical virtual path may never be removed
// or renamed.
func (p *Policy) Protected(virtualPath string) bool {
	return namespace.IsProtectedDir(virtualPath)
}
