package snapshot

import (
	"context"
	"encoding/binary"
	"slices"

	"github.com/J-Pabon/ouisync/object"

	"golang.org/x/crypto/sha3"
)

// Group is an ordered association from peer to snapshot. Its id is
// used elsewhere as a transfer epoch key.
type Group struct {
	members map[object.UserID]*Snapshot
}

// NewGroup returns a group owning the given snapshots.
func NewGroup(members map[object.UserID]*Snapshot) *Group {
	if members == nil {
		members = make(map[object.UserID]*Snapshot)
	}
	return &Group{members: members}
}

// Len returns the number of snapshots in the group.
func (g *Group) Len() int {
	return len(g.members)
}

// Snapshot returns the snapshot of the given peer, or nil.
func (g *Group) Snapshot(user object.UserID) *Snapshot {
	return g.members[user]
}

// Users returns the peers of the group in ascending order.
func (g *Group) Users() []object.UserID {
	users := make([]object.UserID, 0, len(g.members))
	for user := range g.members {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b object.UserID) int {
		return slices.Compare(a[:], b[:])
	})
	return users
}

// CalculateID returns the content derived identifier of the group.
func (g *Group) CalculateID() object.ID {
	hash := sha3.New256()
	hash.Write([]byte("SnapshotGroup"))

	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(g.members)))
	hash.Write(count[:])

	for _, user := range g.Users() {
		id := g.members[user].CalculateID()
		hash.Write(user[:])
		hash.Write(id[:])
	}
	id, _ := object.IDFromBytes(hash.Sum(nil))
	return id
}

// Forget releases every snapshot the group owns.
func (g *Group) Forget(ctx context.Context) {
	for _, user := range g.Users() {
		g.members[user].Forget(ctx)
	}
	g.members = make(map[object.UserID]*Snapshot)
}
