// Package snapshot implements point in time, independently pinning
// views over a branch's object graph. A snapshot keeps the objects it
// references alive through reference counts for as long as it lives,
// and releases them when it is forgotten.
package snapshot

import (
	"context"
	"encoding/hex"
	"io"

	"github.com/J-Pabon/ouisync/object"
	"github.com/J-Pabon/ouisync/refcount"
	"github.com/J-Pabon/ouisync/storage"
	"github.com/J-Pabon/ouisync/store"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

// NameTagSize is the width of a snapshot name tag in bytes.
const NameTagSize = 16

// NameTag is the opaque random byte string naming a snapshot's file.
type NameTag [NameTagSize]byte

// String returns the hex representation of the tag.
func (t NameTag) String() string {
	return hex.EncodeToString(t[:])
}

// Snapshot pins a subgraph of the object store at a specific commit.
type Snapshot struct {
	tag       NameTag
	commit    object.Commit
	nodes     map[object.ID]*Node
	objects   *store.Store
	refs      *refcount.Table
	snapshots storage.Storage
	log       *zap.Logger
	forgotten bool
}

// Create builds an empty snapshot of the given commit. The root object
// is seeded as Missing and the snapshot is persisted under a fresh
// random name tag.
func Create(ctx context.Context, commit object.Commit, objects *store.Store, refs *refcount.Table, snapshots storage.Storage, log *zap.Logger) (*Snapshot, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Snapshot{
		tag:       NameTag(uuid.New()),
		commit:    commit,
		nodes:     make(map[object.ID]*Node),
		objects:   objects,
		refs:      refs,
		snapshots: snapshots,
		log:       log,
	}
	s.nodes[commit.RootID] = newNode(Missing)
	err := s.Persist(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug("created snapshot",
		zap.Stringer("tag", s.tag),
		zap.Stringer("root", commit.RootID))
	return s, nil
}

// NameTag returns the snapshot's name tag.
func (s *Snapshot) NameTag() NameTag {
	return s.tag
}

// Path returns the storage key of the snapshot's file.
func (s *Snapshot) Path() string {
	return s.tag.String()
}

// Commit returns the commit the snapshot was taken at.
func (s *Snapshot) Commit() object.Commit {
	return s.commit
}

// Node returns the node with the given id, or nil.
func (s *Snapshot) Node(id object.ID) *Node {
	return s.nodes[id]
}

// Len returns the number of nodes in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.nodes)
}

// CalculateID returns the content derived identifier of the snapshot,
// used to group snapshots into transfer epochs.
func (s *Snapshot) CalculateID() object.ID {
	hash := sha3.New256()
	hash.Write([]byte("Snapshot"))
	hash.Write(s.commit.RootID[:])

	ids := make(map[object.ID]struct{}, len(s.nodes))
	for id := range s.nodes {
		ids[id] = struct{}{}
	}
	for _, id := range sortIDs(ids) {
		hash.Write([]byte{byte(s.nodes[id].Type)})
		hash.Write(id[:])
	}
	id, _ := object.IDFromBytes(hash.Sum(nil))
	return id
}

// InsertObject integrates a freshly received object whose immediate
// children are given. Only ids previously anticipated as Missing are
// accepted; anything else belongs to a different snapshot or commit
// and is ignored.
func (s *Snapshot) InsertObject(ctx context.Context, id object.ID, children map[object.ID]struct{}) error {
	node, ok := s.nodes[id]
	if !ok || node.Type != Missing {
		return nil
	}

	sorted, err := s.sortChildren(ctx, children)
	if err != nil {
		return err
	}
	node.Children = sorted

	for child := range children {
		childNode, ok := s.nodes[child]
		if !ok {
			childNode = newNode(Missing)
			s.nodes[child] = childNode
		}
		childNode.Parents[id] = struct{}{}
	}

	if node.Children.settled() {
		node.Type = Complete
		err = s.refs.IncrementRecursive(ctx, id)
		if err != nil {
			return err
		}
		err = s.notifyParents(ctx, id)
		if err != nil {
			return err
		}
	} else {
		node.Type = Incomplete
		err = s.refs.IncrementDirect(ctx, id)
		if err != nil {
			return err
		}
	}
	return s.Persist(ctx)
}

// sortChildren classifies the given children: absent from the store is
// missing; present with a recursive pin is complete; present otherwise
// is incomplete.
func (s *Snapshot) sortChildren(ctx context.Context, children map[object.ID]struct{}) (Children, error) {
	result := newChildren()
	for child := range children {
		exists, err := s.objects.Exists(ctx, child)
		if err != nil {
			return result, err
		}
		if !exists {
			result.Missing[child] = struct{}{}
			continue
		}
		counts, err := s.refs.Get(ctx, child)
		if err != nil {
			return result, err
		}
		if counts.Recursive > 0 {
			result.Complete[child] = struct{}{}
		} else {
			result.Incomplete[child] = struct{}{}
		}
	}
	return result, nil
}

type promotion struct {
	parent object.ID
	child  object.ID
}

// notifyParents walks the parent back edges of a newly complete node,
// promoting each parent whose children have all settled. The walk uses
// an explicit worklist so deep graphs cannot overflow the stack.
func (s *Snapshot) notifyParents(ctx context.Context, id object.ID) error {
	node := s.nodes[id]
	queue := make([]promotion, 0, len(node.Parents))
	for parent := range node.Parents {
		queue = append(queue, promotion{parent: parent, child: id})
	}

	for len(queue) > 0 {
		next := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		parent, ok := s.nodes[next.parent]
		if !ok {
			return errors.Wrapf(refcount.ErrCorrupt, "snapshot node %s has no parent %s", next.child, next.parent)
		}

		if _, ok := parent.Children.Complete[next.child]; ok {
			// The parent already counted this child as complete when it
			// was classified at insertion. If the parent has since been
			// promoted, its recursive pin subsumes the child's; the
			// child's node must fold out of the map so Forget does not
			// release the same pin a second time.
			if parent.Type == Complete {
				s.foldChild(next.child)
			}
			continue
		}
		_, inMissing := parent.Children.Missing[next.child]
		_, inIncomplete := parent.Children.Incomplete[next.child]
		if inMissing == inIncomplete {
			return errors.Wrapf(refcount.ErrCorrupt, "child %s not tracked exactly once by parent %s", next.child, next.parent)
		}
		delete(parent.Children.Missing, next.child)
		delete(parent.Children.Incomplete, next.child)
		parent.Children.Complete[next.child] = struct{}{}

		if parent.Type != Incomplete || !parent.Children.settled() {
			continue
		}

		err := s.refs.Promote(ctx, next.parent)
		if err != nil {
			return err
		}
		parent.Type = Complete
		for grandparent := range parent.Parents {
			queue = append(queue, promotion{parent: grandparent, child: next.parent})
		}
		// Every completed child's pin is now subsumed by the recursive
		// pin on the promoted parent, including children that were
		// classified complete at insertion but delivered anyway.
		for child := range parent.Children.Complete {
			s.foldChild(child)
		}
	}
	return nil
}

// foldChild retires a completed child's node once a complete parent's
// recursive pin covers it. Lazily created Missing nodes hold no pin
// and keep carrying their back edges.
func (s *Snapshot) foldChild(id object.ID) {
	node, ok := s.nodes[id]
	if ok && node.Type == Complete {
		delete(s.nodes, id)
	}
}

// CaptureFlatObject records an already present incomplete object,
// taking a direct pin on it. A Missing node, such as the seeded root,
// is turned Incomplete; a node that already holds a pin is left as is.
func (s *Snapshot) CaptureFlatObject(ctx context.Context, id object.ID) error {
	node, ok := s.nodes[id]
	if ok && node.Type != Missing {
		return nil
	}
	if !ok {
		node = newNode(Incomplete)
		s.nodes[id] = node
	}
	node.Type = Incomplete
	return s.refs.IncrementDirect(ctx, id)
}

// CaptureFullObject records an already present complete object, taking
// a recursive pin on it. A Missing node, such as the seeded root, is
// turned Complete; a node that already holds a pin is left as is.
func (s *Snapshot) CaptureFullObject(ctx context.Context, id object.ID) error {
	node, ok := s.nodes[id]
	if ok && node.Type != Missing {
		return nil
	}
	if !ok {
		node = newNode(Complete)
		s.nodes[id] = node
	}
	node.Type = Complete
	return s.refs.IncrementRecursive(ctx, id)
}

// Clone returns an independent snapshot of the same commit and node
// graph. The clone takes its own pins and lives at its own path.
func (s *Snapshot) Clone(ctx context.Context) (*Snapshot, error) {
	clone := &Snapshot{
		tag:       NameTag(uuid.New()),
		commit:    object.Commit{RootID: s.commit.RootID, Stamp: s.commit.Stamp.Clone()},
		nodes:     make(map[object.ID]*Node, len(s.nodes)),
		objects:   s.objects,
		refs:      s.refs,
		snapshots: s.snapshots,
		log:       s.log,
	}
	for id, node := range s.nodes {
		clone.nodes[id] = node.clone()
		switch node.Type {
		case Complete:
			err := s.refs.IncrementRecursive(ctx, id)
			if err != nil {
				return nil, err
			}
		case Incomplete:
			err := s.refs.IncrementDirect(ctx, id)
			if err != nil {
				return nil, err
			}
		}
	}
	err := clone.Persist(ctx)
	if err != nil {
		return nil, err
	}
	return clone, nil
}

// Forget releases every pin the snapshot holds and deletes its file.
// Forget never fails: a release error would silently leak pins and
// corrupt the store's garbage collection, so it logs and aborts.
func (s *Snapshot) Forget(ctx context.Context) {
	if s.forgotten {
		return
	}
	s.forgotten = true

	ids := make(map[object.ID]struct{}, len(s.nodes))
	for id := range s.nodes {
		ids[id] = struct{}{}
	}
	for _, id := range sortIDs(ids) {
		var err error
		switch s.nodes[id].Type {
		case Complete:
			err = s.refs.DeepRemove(ctx, id)
		case Incomplete:
			err = s.refs.FlatRemove(ctx, id)
		}
		if err != nil {
			s.log.Fatal("failed to release snapshot pin",
				zap.Stringer("tag", s.tag),
				zap.Stringer("id", id),
				zap.Error(err))
		}
	}
	s.nodes = make(map[object.ID]*Node)

	err := s.snapshots.Delete(ctx, s.Path())
	if err != nil {
		s.log.Error("failed to delete snapshot file",
			zap.Stringer("tag", s.tag),
			zap.Error(err))
	}
}

// Export writes the snapshot's complete subtrees to the writer encoded
// as a CAR.
func (s *Snapshot) Export(ctx context.Context, out io.Writer) error {
	roots := make(map[object.ID]struct{})
	for id, node := range s.nodes {
		if node.Type == Complete {
			roots[id] = struct{}{}
		}
	}
	return s.objects.Export(ctx, out, sortIDs(roots))
}
