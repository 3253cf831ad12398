// Package store implements the content-addressed object store. Objects
// are keyed by the hash of their encoded bytes; the store is shared by
// every branch and snapshot of a repository.
package store

import (
	"bytes"
	"context"
	"io"

	"github.com/J-Pabon/ouisync/codec"
	"github.com/J-Pabon/ouisync/object"
	"github.com/J-Pabon/ouisync/storage"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/sha3"
)

type Store struct {
	storage storage.Storage
}

func New(storage storage.Storage) *Store {
	return &Store{storage: storage}
}

// Storage returns the underlying storage backend.
func (s *Store) Storage() storage.Storage {
	return s.storage
}

// EncodeObject returns the id and encoded bytes of the given object.
//
// The id is the hash of the encoded bytes.
func EncodeObject(value any) (object.ID, []byte, error) {
	hash := sha3.New256()
	buff := bytes.NewBuffer(nil)

	enc := codec.NewEncoder(io.MultiWriter(hash, buff))
	err := enc.Encode(value)
	if err != nil {
		return object.ID{}, nil, err
	}
	err = enc.Flush()
	if err != nil {
		return object.ID{}, nil, err
	}

	id, err := object.IDFromBytes(hash.Sum(nil))
	if err != nil {
		return object.ID{}, nil, err
	}
	return id, buff.Bytes(), nil
}

// CalculateID returns the id the given object would be stored under.
func CalculateID(value any) (object.ID, error) {
	id, _, err := EncodeObject(value)
	return id, err
}

// Put writes the given object and returns its id.
func (s *Store) Put(ctx context.Context, value any) (object.ID, error) {
	id, data, err := EncodeObject(value)
	if err != nil {
		return object.ID{}, err
	}
	err = s.storage.Put(ctx, id.String(), data)
	if err != nil {
		return object.ID{}, err
	}
	return id, nil
}

// Exists returns true if an object with the given id is stored.
func (s *Store) Exists(ctx context.Context, id object.ID) (bool, error) {
	return s.storage.Has(ctx, id.String())
}

// Load reads the object with the given id.
//
// The returned value is an object.Blob or a *object.Tree.
func (s *Store) Load(ctx context.Context, id object.ID) (any, error) {
	data, err := s.storage.Get(ctx, id.String())
	if err != nil {
		return nil, err
	}
	return codec.NewDecoder(bytes.NewReader(data)).Decode()
}

// LoadTree reads the tree with the given id.
func (s *Store) LoadTree(ctx context.Context, id object.ID) (*object.Tree, error) {
	value, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	tree, ok := value.(*object.Tree)
	if !ok {
		return nil, errors.Newf("object %s is not a tree", id)
	}
	return tree, nil
}

// Remove deletes the object with the given id.
func (s *Store) Remove(ctx context.Context, id object.ID) error {
	return s.storage.Delete(ctx, id.String())
}

// IsComplete returns true if the object and its entire subtree are
// stored.
func (s *Store) IsComplete(ctx context.Context, id object.ID) (bool, error) {
	seen := make(map[object.ID]struct{})
	queue := []object.ID{id}
	for len(queue) > 0 {
		next := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}

		exists, err := s.Exists(ctx, next)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, nil
		}
		value, err := s.Load(ctx, next)
		if err != nil {
			return false, err
		}
		tree, ok := value.(*object.Tree)
		if !ok {
			continue
		}
		for child := range tree.Children() {
			queue = append(queue, child)
		}
	}
	return true, nil
}
