package codec

import (
	"bufio"
	"fmt"
	"io"
	"slices"

	"github.com/J-Pabon/ouisync/object"
)

type Encoder struct {
	w *bufio.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{bufio.NewWriter(w)}
}

func (e *Encoder) Flush() error {
	return e.w.Flush()
}

func (e *Encoder) Encode(value any) error {
	switch t := value.(type) {
	case object.Blob:
		return e.EncodeBlob(t)
	case *object.Tree:
		return e.EncodeTree(t)
	case object.Commit:
		return e.EncodeCommit(t)
	case object.VersionVector:
		return e.EncodeVersionVector(t)
	case object.ID:
		return e.EncodeID(t)
	case object.UserID:
		return e.EncodeUserID(t)
	case []byte:
		return e.EncodeBytes(t)
	case string:
		return e.EncodeString(t)
	case int64:
		return e.EncodeInt64(t)
	case bool:
		return e.EncodeBool(t)
	default:
		return fmt.Errorf("no encoder for %T", value)
	}
}

func (e *Encoder) EncodeBlob(value object.Blob) error {
	err := e.w.WriteByte(kindBlob)
	if err != nil {
		return err
	}
	err = e.writeUint64(uint64(len(value)))
	if err != nil {
		return err
	}
	_, err = e.w.Write(value)
	return err
}

func (e *Encoder) EncodeTree(value *object.Tree) error {
	err := e.w.WriteByte(kindTree)
	if err != nil {
		return err
	}
	err = e.writeUint64(uint64(len(value.Entries)))
	if err != nil {
		return err
	}
	names := make([]string, 0, len(value.Entries))
	for name := range value.Entries {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		err := e.EncodeString(name)
		if err != nil {
			return err
		}
		err = e.EncodeID(value.Entries[name])
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) EncodeCommit(value object.Commit) error {
	err := e.w.WriteByte(kindCommit)
	if err != nil {
		return err
	}
	err = e.EncodeID(value.RootID)
	if err != nil {
		return err
	}
	return e.EncodeVersionVector(value.Stamp)
}

func (e *Encoder) EncodeVersionVector(value object.VersionVector) error {
	err := e.w.WriteByte(kindVersionVector)
	if err != nil {
		return err
	}
	err = e.writeUint64(uint64(len(value)))
	if err != nil {
		return err
	}
	users := make([]object.UserID, 0, len(value))
	for u := range value {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b object.UserID) int {
		return slices.Compare(a[:], b[:])
	})

	for _, u := range users {
		err := e.EncodeUserID(u)
		if err != nil {
			return err
		}
		err = e.writeUint64(value[u])
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) EncodeID(value object.ID) error {
	err := e.w.WriteByte(kindID)
	if err != nil {
		return err
	}
	_, err = e.w.Write(value[:])
	return err
}

func (e *Encoder) EncodeUserID(value object.UserID) error {
	err := e.w.WriteByte(kindUserID)
	if err != nil {
		return err
	}
	_, err = e.w.Write(value[:])
	return err
}

func (e *Encoder) EncodeBytes(value []byte) error {
	err := e.w.WriteByte(kindBytes)
	if err != nil {
		return err
	}
	err = e.writeUint64(uint64(len(value)))
	if err != nil {
		return err
	}
	_, err = e.w.Write(value)
	return err
}

func (e *Encoder) EncodeString(value string) error {
	err := e.w.WriteByte(kindString)
	if err != nil {
		return err
	}
	err = e.writeUint64(uint64(len(value)))
	if err != nil {
		return err
	}
	_, err = e.w.Write([]byte(value))
	return err
}

func (e *Encoder) EncodeInt64(value int64) error {
	err := e.w.WriteByte(kindInt64)
	if err != nil {
		return err
	}
	return e.writeUint64(uint64(value))
}

func (e *Encoder) EncodeBool(value bool) error {
	err := e.w.WriteByte(kindBool)
	if err != nil {
		return err
	}
	if value {
		return e.w.WriteByte(1)
	}
	return e.w.WriteByte(0)
}

// EncodeIDSet writes a set of ids in sorted order.
func (e *Encoder) EncodeIDSet(value map[object.ID]struct{}) error {
	err := e.w.WriteByte(kindList)
	if err != nil {
		return err
	}
	err = e.writeUint64(uint64(len(value)))
	if err != nil {
		return err
	}
	for _, id := range SortedIDs(value) {
		err := e.EncodeID(id)
		if err != nil {
			return err
		}
	}
	return nil
}

// EncodeIDSetMap writes a map of ids to id sets in sorted order.
func (e *Encoder) EncodeIDSetMap(value map[object.ID]map[object.ID]struct{}) error {
	err := e.w.WriteByte(kindMap)
	if err != nil {
		return err
	}
	err = e.writeUint64(uint64(len(value)))
	if err != nil {
		return err
	}
	keys := make(map[object.ID]struct{}, len(value))
	for id := range value {
		keys[id] = struct{}{}
	}
	for _, id := range SortedIDs(keys) {
		err := e.EncodeID(id)
		if err != nil {
			return err
		}
		err = e.EncodeIDSet(value[id])
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) writeUint64(value uint64) error {
	for i := 0; i < 8; i++ {
		err := e.w.WriteByte(byte(value >> (i * 8)))
		if err != nil {
			return err
		}
	}
	return nil
}

// SortedIDs returns the members of the given set in ascending order.
func SortedIDs(set map[object.ID]struct{}) []object.ID {
	ids := make([]object.ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b object.ID) int {
		return slices.Compare(a[:], b[:])
	})
	return ids
}
