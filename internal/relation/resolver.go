// Package relation maps record ids across entity kinds onto a shared join
// key.
//
// The default rule strips the kind-specific id prefix and keeps the numeric
// suffix (a1, c1 and sa1 all resolve to "1"). That convention is a declared
// assumption about the dataset, not a discovered invariant, so the resolver
// is an interface: callers can swap in an explicit id-to-key mapping without
// touching any other package.
package relation

import (
	"errors"
	"fmt"

	"github.com/roach88/ledgerfold/internal/event"
)

// JoinKey correlates related records across entity kinds.
type JoinKey string

// Resolver derives the join key for a record id.
type Resolver interface {
	Resolve(kind event.Kind, id string) (JoinKey, error)
}

// UnrecognizedIDFormatError reports an id the resolver cannot derive a join
// key from. It fails that record's join attempt only, never the run.
type UnrecognizedIDFormatError struct {
	Kind event.Kind
	ID   string
}

// Error implements the error interface.
func (e *UnrecognizedIDFormatError) Error() string {
	return fmt.Sprintf("UNRECOGNIZED_ID_FORMAT: id has no trailing digits (kind=%s, id=%s)", e.Kind, e.ID)
}

// IsUnrecognizedID reports whether err is an UnrecognizedIDFormatError.
// Uses errors.As to handle wrapped errors.
func IsUnrecognizedID(err error) bool {
	var ue *UnrecognizedIDFormatError
	return errors.As(err, &ue)
}

// SuffixResolver is the default Resolver: the join key is the maximal
// trailing digit sequence of the id.
type SuffixResolver struct{}

// Resolve returns the trailing digit run of id as the join key.
func (SuffixResolver) Resolve(kind event.Kind, id string) (JoinKey, error) {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	if i == len(id) {
		return "", &UnrecognizedIDFormatError{Kind: kind, ID: id}
	}
	return JoinKey(id[i:]), nil
}

// MappingResolver resolves join keys from an explicit (kind, id) table,
// for datasets whose ids carry no usable convention.
type MappingResolver struct {
	entries map[event.Kind]map[string]JoinKey
}

// NewMappingResolver builds a resolver over an explicit mapping. The outer
// map is keyed by entity kind, the inner by record id.
func NewMappingResolver(entries map[event.Kind]map[string]JoinKey) *MappingResolver {
	copied := make(map[event.Kind]map[string]JoinKey, len(entries))
	for kind, ids := range entries {
		m := make(map[string]JoinKey, len(ids))
		for id, key := range ids {
			m[id] = key
		}
		copied[kind] = m
	}
	return &MappingResolver{entries: copied}
}

// Resolve looks the id up in the mapping table.
func (r *MappingResolver) Resolve(kind event.Kind, id string) (JoinKey, error) {
	if key, ok := r.entries[kind][id]; ok {
		return key, nil
	}
	return "", &UnrecognizedIDFormatError{Kind: kind, ID: id}
}
