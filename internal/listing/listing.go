// Package listing turns a set of stored servers into the public directory
// view: filtered, ordered by most recent bump, and paginated.
//
// Everything here is a pure transform over values already read from the
// store; nothing in this package does I/O.
package listing

import (
	"cmp"
	"slices"
	"strings"

	"github.com/sakif/dishub/internal/model"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Filter narrows the directory. The zero value matches every server.
type Filter struct {
	OwnerID    string // "my servers" view; applied by the store query
	Query      string // case-insensitive substring of name, description, or any tag
	MinMembers int
}

// Compare defines the directory order:
//
//  1. LastBumpedAt descending, never-bumped servers last
//  2. CreatedAt descending
//  3. ID ascending
//
// The last key makes the order total, so sorting is deterministic even when
// two servers were bumped in the same millisecond.
func Compare(a, b model.Server) int {
	switch {
	case a.LastBumpedAt == nil && b.LastBumpedAt != nil:
		return 1
	case a.LastBumpedAt != nil && b.LastBumpedAt == nil:
		return -1
	case a.LastBumpedAt != nil && b.LastBumpedAt != nil:
		if c := b.LastBumpedAt.Compare(*a.LastBumpedAt); c != 0 {
			return c
		}
	}
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Sort orders servers in place using Compare.
func Sort(servers []model.Server) {
	slices.SortStableFunc(servers, Compare)
}

// Matches reports whether s passes the non-owner parts of f.
func (f Filter) Matches(s model.Server) bool {
	if s.MemberCount < f.MinMembers {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(s.Name), q) ||
		strings.Contains(strings.ToLower(s.Description), q) {
		return true
	}
	return slices.ContainsFunc(s.TagValues(), func(tag string) bool {
		return strings.Contains(strings.ToLower(tag), q)
	})
}

// Apply filters servers by f and returns them in directory order. The input
// slice is not modified.
func Apply(servers []model.Server, f Filter) []model.Server {
	out := make([]model.Server, 0, len(servers))
	for _, s := range servers {
		if f.OwnerID != "" && s.OwnerID != f.OwnerID {
			continue
		}
		if f.Matches(s) {
			out = append(out, s)
		}
	}
	Sort(out)
	return out
}

// Page clamps limit/offset the same way everywhere and returns the window.
func Page(servers []model.Server, limit, offset int) []model.Server {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(servers) {
		return []model.Server{}
	}
	end := min(offset+limit, len(servers))
	return servers[offset:end]
}
