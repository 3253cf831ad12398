package branch

import (
	"bytes"
	"context"

	"github.com/J-Pabon/ouisync/codec"
	"github.com/J-Pabon/ouisync/refcount"
	"github.com/J-Pabon/ouisync/storage"
	"github.com/J-Pabon/ouisync/store"

	"go.uber.org/zap"
)

// storeSelf serializes the branch state. It is called after every
// mutation so the persisted state never lags more than one operation
// behind.
func (b *RemoteBranch) storeSelf(ctx context.Context) error {
	buff := bytes.NewBuffer(nil)
	enc := codec.NewEncoder(buff)

	err := enc.EncodeCommit(b.commit)
	if err != nil {
		return err
	}
	err = enc.EncodeIDSetMap(b.missing)
	if err != nil {
		return err
	}
	err = enc.EncodeIDSetMap(b.incomplete)
	if err != nil {
		return err
	}
	err = enc.EncodeIDSet(b.complete)
	if err != nil {
		return err
	}
	err = enc.Flush()
	if err != nil {
		return err
	}
	return b.states.Put(ctx, b.path, buff.Bytes())
}

// Load restores a branch from its persisted state.
func Load(ctx context.Context, path string, objects *store.Store, refs *refcount.Table, states, snapshots storage.Storage, log *zap.Logger) (*RemoteBranch, error) {
	if log == nil {
		log = zap.NewNop()
	}
	data, err := states.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	dec := codec.NewDecoder(bytes.NewReader(data))

	commit, err := dec.DecodeCommit()
	if err != nil {
		return nil, err
	}
	missing, err := dec.DecodeIDSetMap()
	if err != nil {
		return nil, err
	}
	incomplete, err := dec.DecodeIDSetMap()
	if err != nil {
		return nil, err
	}
	complete, err := dec.DecodeIDSet()
	if err != nil {
		return nil, err
	}
	return &RemoteBranch{
		path:       path,
		states:     states,
		objects:    objects,
		refs:       refs,
		snapshots:  snapshots,
		log:        log,
		commit:     commit,
		missing:    missing,
		incomplete: incomplete,
		complete:   complete,
	}, nil
}
