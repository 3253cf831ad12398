package codec

import (
	"bufio"
	"fmt"
	"io"

	"github.com/J-Pabon/ouisync/object"
)

type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{bufio.NewReader(r)}
}

func (d *Decoder) Decode() (any, error) {
	kind, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}
	err = d.r.UnreadByte()
	if err != nil {
		return nil, err
	}
	switch kind {
	case kindBlob:
		return d.DecodeBlob()
	case kindTree:
		return d.DecodeTree()
	case kindCommit:
		return d.DecodeCommit()
	case kindVersionVector:
		return d.DecodeVersionVector()
	case kindID:
		return d.DecodeID()
	case kindUserID:
		return d.DecodeUserID()
	case kindBytes:
		return d.DecodeBytes()
	case kindString:
		return d.DecodeString()
	case kindInt64:
		return d.DecodeInt64()
	case kindBool:
		return d.DecodeBool()
	default:
		return nil, fmt.Errorf("invalid codec kind %x", kind)
	}
}

func (d *Decoder) DecodeBlob() (object.Blob, error) {
	err := d.expect(kindBlob)
	if err != nil {
		return nil, err
	}
	size, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	data := make([]byte, size)
	_, err = io.ReadFull(d.r, data)
	if err != nil {
		return nil, err
	}
	return object.Blob(data), nil
}

func (d *Decoder) DecodeTree() (*object.Tree, error) {
	err := d.expect(kindTree)
	if err != nil {
		return nil, err
	}
	size, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	tree := object.NewTree()
	for i := uint64(0); i < size; i++ {
		name, err := d.DecodeString()
		if err != nil {
			return nil, err
		}
		id, err := d.DecodeID()
		if err != nil {
			return nil, err
		}
		tree.Entries[name] = id
	}
	return tree, nil
}

func (d *Decoder) DecodeCommit() (object.Commit, error) {
	err := d.expect(kindCommit)
	if err != nil {
		return object.Commit{}, err
	}
	rootID, err := d.DecodeID()
	if err != nil {
		return object.Commit{}, err
	}
	stamp, err := d.DecodeVersionVector()
	if err != nil {
		return object.Commit{}, err
	}
	return object.Commit{RootID: rootID, Stamp: stamp}, nil
}

func (d *Decoder) DecodeVersionVector() (object.VersionVector, error) {
	err := d.expect(kindVersionVector)
	if err != nil {
		return nil, err
	}
	size, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	vv := object.NewVersionVector()
	for i := uint64(0); i < size; i++ {
		user, err := d.DecodeUserID()
		if err != nil {
			return nil, err
		}
		version, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		vv[user] = version
	}
	return vv, nil
}

func (d *Decoder) DecodeID() (object.ID, error) {
	var id object.ID
	err := d.expect(kindID)
	if err != nil {
		return id, err
	}
	_, err = io.ReadFull(d.r, id[:])
	return id, err
}

func (d *Decoder) DecodeUserID() (object.UserID, error) {
	var user object.UserID
	err := d.expect(kindUserID)
	if err != nil {
		return user, err
	}
	_, err = io.ReadFull(d.r, user[:])
	return user, err
}

func (d *Decoder) DecodeBytes() ([]byte, error) {
	err := d.expect(kindBytes)
	if err != nil {
		return nil, err
	}
	size, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	data := make([]byte, size)
	_, err = io.ReadFull(d.r, data)
	return data, err
}

func (d *Decoder) DecodeString() (string, error) {
	err := d.expect(kindString)
	if err != nil {
		return "", err
	}
	size, err := d.readUint64()
	if err != nil {
		return "", err
	}
	data := make([]byte, size)
	_, err = io.ReadFull(d.r, data)
	return string(data), err
}

func (d *Decoder) DecodeInt64() (int64, error) {
	err := d.expect(kindInt64)
	if err != nil {
		return 0, err
	}
	value, err := d.readUint64()
	return int64(value), err
}

func (d *Decoder) DecodeBool() (bool, error) {
	err := d.expect(kindBool)
	if err != nil {
		return false, err
	}
	value, err := d.r.ReadByte()
	if err != nil {
		return false, err
	}
	return value != 0, nil
}

// DecodeIDSet reads a set of ids written by EncodeIDSet.
func (d *Decoder) DecodeIDSet() (map[object.ID]struct{}, error) {
	err := d.expect(kindList)
	if err != nil {
		return nil, err
	}
	size, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	set := make(map[object.ID]struct{}, size)
	for i := uint64(0); i < size; i++ {
		id, err := d.DecodeID()
		if err != nil {
			return nil, err
		}
		set[id] = struct{}{}
	}
	return set, nil
}

// DecodeIDSetMap reads a map of ids to id sets written by EncodeIDSetMap.
func (d *Decoder) DecodeIDSetMap() (map[object.ID]map[object.ID]struct{}, error) {
	err := d.expect(kindMap)
	if err != nil {
		return nil, err
	}
	size, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	result := make(map[object.ID]map[object.ID]struct{}, size)
	for i := uint64(0); i < size; i++ {
		id, err := d.DecodeID()
		if err != nil {
			return nil, err
		}
		set, err := d.DecodeIDSet()
		if err != nil {
			return nil, err
		}
		result[id] = set
	}
	return result, nil
}

func (d *Decoder) expect(kind byte) error {
	value, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	if value != kind {
		return fmt.Errorf("unexpected codec kind %x", value)
	}
	return nil
}

func (d *Decoder) readUint64() (uint64, error) {
	var value uint64
	for i := 0; i < 8; i++ {
		b, err := d.r.ReadByte()
		if err != nil {
			return 0, err
		}
		value |= uint64(b) << (i * 8)
	}
	return value, nil
}
