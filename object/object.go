package object

import "github.com/cockroachdb/errors"

// ErrInvalidIDLength is returned when parsing an id of the wrong width.
var ErrInvalidIDLength = errors.New("invalid id length")

// Blob is a leaf object containing opaque bytes.
type Blob []byte

// Tree is an interior object mapping names to child object ids.
type Tree struct {
	// Entries is a mapping of names to child ids.
	Entries map[string]ID
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{Entries: make(map[string]ID)}
}

// Children returns the set of ids directly referenced by the tree.
func (t *Tree) Children() map[ID]struct{} {
	children := make(map[ID]struct{}, len(t.Entries))
	for _, id := range t.Entries {
		children[id] = struct{}{}
	}
	return children
}

// Commit represents a branch tip.
type Commit struct {
	// RootID is the id of the root object.
	RootID ID
	// Stamp is the version vector of the commit.
	Stamp VersionVector
}

// Equal returns true if both commits have the same root and stamp.
func (c Commit) Equal(other Commit) bool {
	return c.RootID == other.RootID && c.Stamp.Equal(other.Stamp)
}
