// Package branch implements the per-peer state machine that ingests
// objects arriving from a remote peer and advances each toward
// completion.
//
// A branch tracks three disjoint sets of object ids: missing objects
// (referenced by a parent but not yet received), incomplete objects
// (received, with descendants still missing or incomplete), and
// complete objects (received together with their whole subtree). Each
// received object is pinned in the store through a reference count;
// the pin is direct while the object is incomplete and recursive once
// it completes, so that discarding the branch releases exactly what it
// holds.
package branch

import (
	"context"
	"sync"

	"github.com/J-Pabon/ouisync/object"
	"github.com/J-Pabon/ouisync/refcount"
	"github.com/J-Pabon/ouisync/snapshot"
	"github.com/J-Pabon/ouisync/storage"
	"github.com/J-Pabon/ouisync/store"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// ErrProtocolViolation is returned when a peer sends an object the
// branch never asked for, including duplicates.
var ErrProtocolViolation = errors.New("protocol violation")

// RemoteBranch tracks the progressive download of one peer's branch.
//
// Operations serialize on an internal mutex: within a branch no two
// ingests interleave, and the persisted state always reflects a prefix
// of the in-memory mutations.
type RemoteBranch struct {
	mu sync.Mutex

	path      string
	states    storage.Storage
	objects   *store.Store
	refs      *refcount.Table
	snapshots storage.Storage
	log       *zap.Logger

	commit object.Commit

	// missing maps an object that has not been received to the set of
	// received parents waiting for it.
	missing map[object.ID]map[object.ID]struct{}
	// incomplete maps a received object to the set of its children
	// that are still missing or incomplete.
	incomplete map[object.ID]map[object.ID]struct{}
	// complete holds received objects whose whole subtree is present.
	complete map[object.ID]struct{}
}

// New creates a branch targeting the given commit. The root object is
// seeded as missing and the state is persisted under the given key.
func New(ctx context.Context, commit object.Commit, path string, objects *store.Store, refs *refcount.Table, states, snapshots storage.Storage, log *zap.Logger) (*RemoteBranch, error) {
	if log == nil {
		log = zap.NewNop()
	}
	b := &RemoteBranch{
		path:       path,
		states:     states,
		objects:    objects,
		refs:       refs,
		snapshots:  snapshots,
		log:        log,
		commit:     commit,
		missing:    make(map[object.ID]map[object.ID]struct{}),
		incomplete: make(map[object.ID]map[object.ID]struct{}),
		complete:   make(map[object.ID]struct{}),
	}
	b.missing[commit.RootID] = make(map[object.ID]struct{})
	err := b.storeSelf(ctx)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Commit returns the commit the branch is converging toward.
func (b *RemoteBranch) Commit() object.Commit {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.commit
}

// InsertBlob ingests a blob received from the peer.
func (b *RemoteBranch) InsertBlob(ctx context.Context, blob object.Blob) (object.ID, error) {
	return b.insertObject(ctx, blob, nil)
}

// InsertTree ingests a tree received from the peer.
func (b *RemoteBranch) InsertTree(ctx context.Context, tree *object.Tree) (object.ID, error) {
	return b.insertObject(ctx, tree, tree.Children())
}

func (b *RemoteBranch) insertObject(ctx context.Context, value any, children map[object.ID]struct{}) (object.ID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, err := store.CalculateID(value)
	if err != nil {
		return object.ID{}, err
	}
	if _, ok := b.missing[id]; !ok {
		return object.ID{}, errors.Wrapf(ErrProtocolViolation, "object %s was not requested", id)
	}

	// Classify the children before touching any state so a failed read
	// leaves the branch untouched.
	waiting := make(map[object.ID]struct{})
	absent := make(map[object.ID]struct{})
	for child := range children {
		exists, err := b.objects.Exists(ctx, child)
		if err != nil {
			return object.ID{}, err
		}
		if !exists {
			absent[child] = struct{}{}
			waiting[child] = struct{}{}
			continue
		}
		settled, err := b.isSettled(ctx, child)
		if err != nil {
			return object.ID{}, err
		}
		if !settled {
			waiting[child] = struct{}{}
		}
	}

	_, err = b.objects.Put(ctx, value)
	if err != nil {
		return object.ID{}, err
	}
	if len(waiting) == 0 {
		err = b.refs.IncrementRecursive(ctx, id)
	} else {
		err = b.refs.IncrementDirect(ctx, id)
	}
	if err != nil {
		return object.ID{}, err
	}

	delete(b.missing, id)
	for child := range absent {
		parents, ok := b.missing[child]
		if !ok {
			parents = make(map[object.ID]struct{})
			b.missing[child] = parents
		}
		parents[id] = struct{}{}
	}

	if len(waiting) == 0 {
		err = b.completeObject(ctx, id)
		if err != nil {
			return object.ID{}, err
		}
	} else {
		b.incomplete[id] = waiting
	}

	b.log.Debug("ingested object",
		zap.Stringer("id", id),
		zap.Int("children", len(children)),
		zap.Int("waiting", len(waiting)))

	err = b.storeSelf(ctx)
	if err != nil {
		return object.ID{}, err
	}
	return id, nil
}

// isSettled reports whether a stored child needs no further waiting:
// the branch's own bookkeeping answers first, the store's recursive
// completeness predicate answers for objects the branch never tracked.
func (b *RemoteBranch) isSettled(ctx context.Context, id object.ID) (bool, error) {
	if _, ok := b.complete[id]; ok {
		return true, nil
	}
	if _, ok := b.incomplete[id]; ok {
		return false, nil
	}
	return b.objects.IsComplete(ctx, id)
}

// completeObject records the given object as complete and promotes
// every ancestor that stops waiting as a result. Promotion folds the
// promoted parent's completed children out of the complete set: their
// recursive pins are subsumed by the pin on the parent.
func (b *RemoteBranch) completeObject(ctx context.Context, id object.ID) error {
	b.complete[id] = struct{}{}

	queue := []object.ID{id}
	for len(queue) > 0 {
		next := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		var promoted []object.ID
		for parent, waiting := range b.incomplete {
			if _, ok := waiting[next]; !ok {
				continue
			}
			delete(waiting, next)
			if len(waiting) == 0 {
				promoted = append(promoted, parent)
			}
		}

		for _, parent := range promoted {
			delete(b.incomplete, parent)
			err := b.refs.Promote(ctx, parent)
			if err != nil {
				return err
			}
			b.complete[parent] = struct{}{}

			tree, err := b.objects.LoadTree(ctx, parent)
			if err != nil {
				return err
			}
			for child := range tree.Children() {
				delete(b.complete, child)
			}

			b.log.Debug("object completed",
				zap.Stringer("id", parent))
			queue = append(queue, parent)
		}
	}
	return nil
}

// FilterMissing returns the subset of the given ids that are absent
// from the object store.
func (b *RemoteBranch) FilterMissing(ctx context.Context, ids map[object.ID]struct{}) (map[object.ID]struct{}, error) {
	result := make(map[object.ID]struct{})
	for id := range ids {
		exists, err := b.objects.Exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			result[id] = struct{}{}
		}
	}
	return result, nil
}

// IntroduceCommit replaces the branch's target commit and discards all
// progress toward the previous one. Incomplete objects release their
// direct pins before complete objects release their recursive ones.
func (b *RemoteBranch) IntroduceCommit(ctx context.Context, commit object.Commit) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.commit = commit

	// Missing objects never held pins.
	b.missing = make(map[object.ID]map[object.ID]struct{})

	for id := range b.incomplete {
		err := b.refs.FlatRemove(ctx, id)
		if err != nil {
			return err
		}
	}
	for id := range b.complete {
		err := b.refs.DeepRemove(ctx, id)
		if err != nil {
			return err
		}
	}
	b.incomplete = make(map[object.ID]map[object.ID]struct{})
	b.complete = make(map[object.ID]struct{})

	b.missing[commit.RootID] = make(map[object.ID]struct{})

	b.log.Info("introduced commit",
		zap.Stringer("root", commit.RootID))

	return b.storeSelf(ctx)
}

// CreateSnapshot captures the branch's current partial graph: every
// incomplete object is pinned flat and every complete object is pinned
// with its subtree.
func (b *RemoteBranch) CreateSnapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap, err := snapshot.Create(ctx, b.commit, b.objects, b.refs, b.snapshots, b.log)
	if err != nil {
		return nil, err
	}
	for id := range b.incomplete {
		err = snap.CaptureFlatObject(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	for id := range b.complete {
		err = snap.CaptureFullObject(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	err = snap.Persist(ctx)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// MissingObjects returns a copy of the missing object map.
func (b *RemoteBranch) MissingObjects() map[object.ID]map[object.ID]struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return copySetMap(b.missing)
}

// IncompleteObjects returns a copy of the incomplete object map.
func (b *RemoteBranch) IncompleteObjects() map[object.ID]map[object.ID]struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return copySetMap(b.incomplete)
}

// CompleteObjects returns a copy of the complete object set.
func (b *RemoteBranch) CompleteObjects() map[object.ID]struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make(map[object.ID]struct{}, len(b.complete))
	for id := range b.complete {
		result[id] = struct{}{}
	}
	return result
}

// SanityCheck verifies the branch's collections against the store:
// every incomplete object must exist and every complete object must be
// recursively complete.
func (b *RemoteBranch) SanityCheck(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id := range b.incomplete {
		exists, err := b.objects.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return errors.Wrapf(refcount.ErrCorrupt, "incomplete object %s is not stored", id)
		}
	}
	for id := range b.complete {
		complete, err := b.objects.IsComplete(ctx, id)
		if err != nil {
			return err
		}
		if !complete {
			return errors.Wrapf(refcount.ErrCorrupt, "complete object %s has missing descendants", id)
		}
	}
	return nil
}

func copySetMap(value map[object.ID]map[object.ID]struct{}) map[object.ID]map[object.ID]struct{} {
	result := make(map[object.ID]map[object.ID]struct{}, len(value))
	for id, set := range value {
		copied := make(map[object.ID]struct{}, len(set))
		for member := range set {
			copied[member] = struct{}{}
		}
		result[id] = copied
	}
	return result
}
