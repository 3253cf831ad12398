package store

import (
	"context"
	"io"

	"github.com/J-Pabon/ouisync/object"

	"github.com/ipfs/go-cid"
	carv2 "github.com/ipld/go-car/v2"
	carstorage "github.com/ipld/go-car/v2/storage"
)

// Export writes the subtrees rooted at the given ids to the writer
// encoded as a CAR. Every root must be recursively complete.
func (s *Store) Export(ctx context.Context, out io.Writer, rootIDs []object.ID) error {
	roots := make([]cid.Cid, len(rootIDs))
	for i, id := range rootIDs {
		roots[i] = id.Cid()
	}
	car, err := carstorage.NewWritable(out, roots, carv2.WriteAsCarV1(true))
	if err != nil {
		return err
	}

	seen := make(map[object.ID]struct{})
	queue := append([]object.ID{}, rootIDs...)
	for len(queue) > 0 {
		next := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}

		data, err := s.storage.Get(ctx, next.String())
		if err != nil {
			return err
		}
		err = car.Put(ctx, next.Cid().KeyString(), data)
		if err != nil {
			return err
		}
		value, err := s.Load(ctx, next)
		if err != nil {
			return err
		}
		tree, ok := value.(*object.Tree)
		if !ok {
			continue
		}
		for child := range tree.Children() {
			queue = append(queue, child)
		}
	}
	return car.Finalize()
}
