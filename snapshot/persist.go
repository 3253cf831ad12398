package snapshot

import (
	"bytes"
	"context"

	"github.com/J-Pabon/ouisync/codec"
	"github.com/J-Pabon/ouisync/object"
	"github.com/J-Pabon/ouisync/refcount"
	"github.com/J-Pabon/ouisync/storage"
	"github.com/J-Pabon/ouisync/store"

	"go.uber.org/zap"
)

// Persist serializes the snapshot to its file.
func (s *Snapshot) Persist(ctx context.Context) error {
	buff := bytes.NewBuffer(nil)
	err := s.encode(codec.NewEncoder(buff))
	if err != nil {
		return err
	}
	return s.snapshots.Put(ctx, s.Path(), buff.Bytes())
}

// Load reads the snapshot stored under the given name tag. The loaded
// snapshot owns the pins recorded in the file.
func Load(ctx context.Context, tag NameTag, objects *store.Store, refs *refcount.Table, snapshots storage.Storage, log *zap.Logger) (*Snapshot, error) {
	if log == nil {
		log = zap.NewNop()
	}
	data, err := snapshots.Get(ctx, tag.String())
	if err != nil {
		return nil, err
	}
	s := &Snapshot{
		tag:       tag,
		nodes:     make(map[object.ID]*Node),
		objects:   objects,
		refs:      refs,
		snapshots: snapshots,
		log:       log,
	}
	err = s.decode(codec.NewDecoder(bytes.NewReader(data)))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Snapshot) encode(enc *codec.Encoder) error {
	err := enc.EncodeCommit(s.commit)
	if err != nil {
		return err
	}
	err = enc.EncodeBytes(s.tag[:])
	if err != nil {
		return err
	}
	err = enc.EncodeInt64(int64(len(s.nodes)))
	if err != nil {
		return err
	}
	ids := make(map[object.ID]struct{}, len(s.nodes))
	for id := range s.nodes {
		ids[id] = struct{}{}
	}
	for _, id := range sortIDs(ids) {
		node := s.nodes[id]
		err = enc.EncodeID(id)
		if err != nil {
			return err
		}
		err = enc.EncodeInt64(int64(node.Type))
		if err != nil {
			return err
		}
		err = enc.EncodeIDSet(node.Parents)
		if err != nil {
			return err
		}
		err = enc.EncodeIDSet(node.Children.Missing)
		if err != nil {
			return err
		}
		err = enc.EncodeIDSet(node.Children.Incomplete)
		if err != nil {
			return err
		}
		err = enc.EncodeIDSet(node.Children.Complete)
		if err != nil {
			return err
		}
	}
	return enc.Flush()
}

func (s *Snapshot) decode(dec *codec.Decoder) error {
	commit, err := dec.DecodeCommit()
	if err != nil {
		return err
	}
	s.commit = commit

	tag, err := dec.DecodeBytes()
	if err != nil {
		return err
	}
	copy(s.tag[:], tag)

	count, err := dec.DecodeInt64()
	if err != nil {
		return err
	}
	for i := int64(0); i < count; i++ {
		id, err := dec.DecodeID()
		if err != nil {
			return err
		}
		nodeType, err := dec.DecodeInt64()
		if err != nil {
			return err
		}
		parents, err := dec.DecodeIDSet()
		if err != nil {
			return err
		}
		missing, err := dec.DecodeIDSet()
		if err != nil {
			return err
		}
		incomplete, err := dec.DecodeIDSet()
		if err != nil {
			return err
		}
		complete, err := dec.DecodeIDSet()
		if err != nil {
			return err
		}
		s.nodes[id] = &Node{
			Type:    NodeType(nodeType),
			Parents: parents,
			Children: Children{
				Missing:    missing,
				Incomplete: incomplete,
				Complete:   complete,
			},
		}
	}
	return nil
}

func sortIDs(set map[object.ID]struct{}) []object.ID {
	return codec.SortedIDs(set)
}
