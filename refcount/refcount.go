// Package refcount maintains the pair of reference counts that pin
// objects in the store.
//
// Each object carries two counters: a recursive count for holders that
// pin the object together with its entire subtree, and a direct count
// for holders that pin only the object itself. An object is eligible
// for deletion when both counts reach zero.
package refcount

import (
	"context"
	"encoding/binary"

	"github.com/J-Pabon/ouisync/object"
	"github.com/J-Pabon/ouisync/storage"
	"github.com/J-Pabon/ouisync/store"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// ErrCorrupt is returned when a counter would underflow. The caller
// must treat it as fatal: the store's bookkeeping can no longer be
// trusted.
var ErrCorrupt = errors.New("refcount corrupt")

const rowSuffix = ".rc"

// Counts is the pair of reference counts of a single object.
type Counts struct {
	Recursive uint32
	Direct    uint32
}

func (c Counts) bothZero() bool {
	return c.Recursive == 0 && c.Direct == 0
}

// Table reads and writes reference count rows stored beside the
// objects they describe.
type Table struct {
	objects *store.Store
	storage storage.Storage
	log     *zap.Logger
}

func NewTable(objects *store.Store, log *zap.Logger) *Table {
	if log == nil {
		log = zap.NewNop()
	}
	return &Table{
		objects: objects,
		storage: objects.Storage(),
		log:     log,
	}
}

// Get returns the counts of the given id. A missing row counts as zero.
func (t *Table) Get(ctx context.Context, id object.ID) (Counts, error) {
	data, err := t.storage.Get(ctx, id.String()+rowSuffix)
	if errors.Is(err, storage.ErrNotFound) {
		return Counts{}, nil
	}
	if err != nil {
		return Counts{}, err
	}
	if len(data) != 8 {
		return Counts{}, errors.Wrapf(ErrCorrupt, "refcount row %s has %d bytes", id, len(data))
	}
	return Counts{
		Recursive: binary.BigEndian.Uint32(data[0:4]),
		Direct:    binary.BigEndian.Uint32(data[4:8]),
	}, nil
}

func (t *Table) put(ctx context.Context, id object.ID, counts Counts) error {
	key := id.String() + rowSuffix
	if counts.bothZero() {
		return t.storage.Delete(ctx, key)
	}
	data := make([]byte, 8)
	binary.BigEndian.PutUint32(data[0:4], counts.Recursive)
	binary.BigEndian.PutUint32(data[4:8], counts.Direct)
	return t.storage.Put(ctx, key, data)
}

// IncrementRecursive takes a recursive pin on the given id.
func (t *Table) IncrementRecursive(ctx context.Context, id object.ID) error {
	counts, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	counts.Recursive++
	return t.put(ctx, id, counts)
}

// IncrementDirect takes a direct pin on the given id.
func (t *Table) IncrementDirect(ctx context.Context, id object.ID) error {
	counts, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	counts.Direct++
	return t.put(ctx, id, counts)
}

// Promote swaps a direct pin for a recursive one in a single row write.
func (t *Table) Promote(ctx context.Context, id object.ID) error {
	counts, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	if counts.Direct == 0 {
		return errors.Wrapf(ErrCorrupt, "promote of %s with zero direct count", id)
	}
	counts.Direct--
	counts.Recursive++
	return t.put(ctx, id, counts)
}

// FlatRemove releases a direct pin. When both counts reach zero the
// object bytes are deleted.
func (t *Table) FlatRemove(ctx context.Context, id object.ID) error {
	counts, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	if counts.Direct == 0 {
		return errors.Wrapf(ErrCorrupt, "flat remove of %s with zero direct count", id)
	}
	counts.Direct--
	err = t.put(ctx, id, counts)
	if err != nil {
		return err
	}
	if !counts.bothZero() {
		return nil
	}
	t.log.Debug("collecting object", zap.Stringer("id", id))
	return t.objects.Remove(ctx, id)
}

// DeepRemove releases a recursive pin. When the recursive count of an
// object reaches zero its claim on each child is released in turn, and
// the object bytes are deleted once no direct pins remain.
//
// Releasing an id whose recursive count is already zero is a no-op:
// in a diamond shaped graph the cascade reaches a shared child once
// per parent, but the child's own pin was already released on the
// first visit.
func (t *Table) DeepRemove(ctx context.Context, id object.ID) error {
	queue := []object.ID{id}
	for len(queue) > 0 {
		next := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		counts, err := t.Get(ctx, next)
		if err != nil {
			return err
		}
		if counts.Recursive == 0 {
			continue
		}
		counts.Recursive--
		err = t.put(ctx, next, counts)
		if err != nil {
			return err
		}
		if counts.Recursive > 0 {
			continue
		}

		value, err := t.objects.Load(ctx, next)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if tree, ok := value.(*object.Tree); ok {
			for child := range tree.Children() {
				queue = append(queue, child)
			}
		}
		if counts.Direct == 0 {
			t.log.Debug("collecting object", zap.Stringer("id", next))
			err = t.objects.Remove(ctx, next)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
