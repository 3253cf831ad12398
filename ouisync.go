// Package ouisync wires the synchronization engine together: a shared
// content-addressed object store, its reference counts, and the
// per-peer remote branches and snapshots built on top of them.
package ouisync

import (
	"context"

	"github.com/J-Pabon/ouisync/branch"
	"github.com/J-Pabon/ouisync/config"
	"github.com/J-Pabon/ouisync/object"
	"github.com/J-Pabon/ouisync/refcount"
	"github.com/J-Pabon/ouisync/snapshot"
	"github.com/J-Pabon/ouisync/storage"
	"github.com/J-Pabon/ouisync/store"

	"go.uber.org/zap"
)

// Repository holds the shared stores of one replica.
type Repository struct {
	objects   *store.Store
	refs      *refcount.Table
	states    storage.Storage
	snapshots storage.Storage
	log       *zap.Logger
}

// Open returns a repository rooted at the directories named by the
// given options.
func Open(opts config.Options, log *zap.Logger) (*Repository, error) {
	if log == nil {
		log = zap.NewNop()
	}
	objectStorage, err := storage.NewFile(opts.ObjectDir)
	if err != nil {
		return nil, err
	}
	states, err := storage.NewFile(opts.BranchDir)
	if err != nil {
		return nil, err
	}
	snapshots, err := storage.NewFile(opts.SnapshotDir)
	if err != nil {
		return nil, err
	}
	objects := store.New(objectStorage)
	return &Repository{
		objects:   objects,
		refs:      refcount.NewTable(objects, log),
		states:    states,
		snapshots: snapshots,
		log:       log,
	}, nil
}

// OpenMemory returns a repository backed entirely by memory storage.
//
// This function is primarily used for testing.
func OpenMemory(log *zap.Logger) *Repository {
	if log == nil {
		log = zap.NewNop()
	}
	objects := store.New(storage.NewMemory())
	return &Repository{
		objects:   objects,
		refs:      refcount.NewTable(objects, log),
		states:    storage.NewMemory(),
		snapshots: storage.NewMemory(),
		log:       log,
	}
}

// Objects returns the repository's object store.
func (r *Repository) Objects() *store.Store {
	return r.objects
}

// Refs returns the repository's reference count table.
func (r *Repository) Refs() *refcount.Table {
	return r.refs
}

// NewRemoteBranch creates a branch converging toward the given peer's
// commit. The branch state persists under the peer's id.
func (r *Repository) NewRemoteBranch(ctx context.Context, user object.UserID, commit object.Commit) (*branch.RemoteBranch, error) {
	return branch.New(ctx, commit, user.String(), r.objects, r.refs, r.states, r.snapshots, r.log)
}

// LoadRemoteBranch restores the given peer's branch from its persisted
// state.
func (r *Repository) LoadRemoteBranch(ctx context.Context, user object.UserID) (*branch.RemoteBranch, error) {
	return branch.Load(ctx, user.String(), r.objects, r.refs, r.states, r.snapshots, r.log)
}

// LoadSnapshot restores the snapshot stored under the given name tag.
func (r *Repository) LoadSnapshot(ctx context.Context, tag snapshot.NameTag) (*snapshot.Snapshot, error) {
	return snapshot.Load(ctx, tag, r.objects, r.refs, r.snapshots, r.log)
}
