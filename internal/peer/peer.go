// Package peer defines peer identity and the peer book used to resolve
// a peer identifier to its transport address.
package peer

import "fmt"

// Type is the closed set of peer kinds known to the overlay.
type Type string

const (
	TypeNode    Type = "node"
	TypeStorage Type = "storage"
	TypeTracker Type = "tracker"
	TypeUnknown Type = "unknown"
)

func validType(t Type) bool {
	switch t {
	case TypeNode, TypeStorage, TypeTracker, TypeUnknown:
		return true
	default:
		return false
	}
}

// Info identifies a peer: an opaque identifier plus its declared type.
// Equality between two Info values is by ID alone.
type Info struct {
	ID   string
	Type Type
}

// New constructs a peer Info, rejecting any type outside the closed set.
func New(id string, t Type) (Info, error) {
	if !validType(t) {
		return Info{}, fmt.Errorf("peer: invalid peer type %q for id %q", t, id)
	}
	return Info{ID: id, Type: t}, nil
}

// IsNode reports whether the peer is a node (storage peers are nodes too).
func (i Info) IsNode() bool {
	return i.Type == TypeNode || i.Type == TypeStorage
}

// IsStorage reports whether the peer is a storage node.
func (i Info) IsStorage() bool {
	return i.Type == TypeStorage
}

// IsTracker reports whether the peer is a tracker.
func (i Info) IsTracker() bool {
	return i.Type == TypeTracker
}

// Equal compares two peers by identifier only.
func (i Info) Equal(o Info) bool {
	return i.ID == o.ID
}
