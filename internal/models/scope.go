package models

import (
	"fmt"
	"strconv"
)

// ScopeKind identifies the unit a badge governs.
type ScopeKind string

const (
	// ScopeGroup is a single community group.
	ScopeGroup ScopeKind = "group"
	// ScopeTopic is a broader topic area spanning multiple groups.
	ScopeTopic ScopeKind = "topic"
)

// Scope is the tagged union of the two governable units. All scope-polymorphic
// queries (member set, flagged content set) key off the Scope value instead of
// branching on raw strings at call sites.
type Scope struct {
	Kind ScopeKind `json:"kind" db:"scope_kind" validate:"required,oneof=group topic"`
	ID   int64     `json:"id" db:"scope_id" validate:"required,gt=0"`
}

// ParseScope builds a Scope from path/query parameters.
func ParseScope(kind, id string) (Scope, error) {
	k := ScopeKind(kind)
	if k != ScopeGroup && k != ScopeTopic {
		return Scope{}, fmt.Errorf("invalid scope kind %q", kind)
	}
	scopeID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || scopeID <= 0 {
		return Scope{}, fmt.Errorf("invalid scope id %q", id)
	}
	return Scope{Kind: k, ID: scopeID}, nil
}

// String renders the scope as "kind:id" for logging and cache keys.
func (s Scope) String() string {
	return string(s.Kind) + ":" + strconv.FormatInt(s.ID, 10)
}

// Valid reports whether the scope carries a known kind and a positive id.
func (s Scope) Valid() bool {
	return (s.Kind == ScopeGroup || s.Kind == ScopeTopic) && s.ID > 0
}
