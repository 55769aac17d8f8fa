package rbac

import (
	"sort"
	"strings"
)

// Permission is one catalog entry, named "<Resource>:<action>".
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Permission set sources. The join table is authoritative; the inline
// array on roles is a legacy representation consulted only when a role
// has no join rows.
const (
	SourceJoin   = "join"
	SourceInline = "inline"
)

// Requirement names what a route demands. AnyRole passes when the
// effective role is in the set, AnyPermission when the role's permission
// set intersects it. Both present means both must pass.
type Requirement struct {
	AnyRole       []string
	AnyPermission []string
}

func (r Requirement) empty() bool {
	return len(r.AnyRole) == 0 && len(r.AnyPermission) == 0
}

// PermissionSet is a role's granted permissions in canonical form. Both
// permission representations normalize into it, so equivalent grants
// make equivalent decisions.
type PermissionSet map[string]struct{}

// NewPermissionSet normalizes names into a set, dropping empties.
func NewPermissionSet(names []string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}

// Has reports whether the set grants name.
func (s PermissionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// HasAny reports whether the set grants at least one of names.
func (s PermissionSet) HasAny(names []string) bool {
	for _, name := range names {
		if s.Has(name) {
			return true
		}
	}
	return false
}

// Names returns the granted permissions sorted for stable output.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
