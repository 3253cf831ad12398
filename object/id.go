package object

import (
	"encoding/hex"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"golang.org/x/crypto/sha3"
)

// IDSize is the width of an object id in bytes.
const IDSize = 32

// ID is the unique content digest of an object.
type ID [IDSize]byte

// Sum returns the id of the given encoded object bytes.
func Sum(data []byte) ID {
	return ID(sha3.Sum256(data))
}

// IDFromHex parses an id from its hex representation.
func IDFromHex(s string) (ID, error) {
	var id ID
	data, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(data) != IDSize {
		return id, ErrInvalidIDLength
	}
	copy(id[:], data)
	return id, nil
}

// IDFromBytes copies an id from a raw digest.
func IDFromBytes(data []byte) (ID, error) {
	var id ID
	if len(data) != IDSize {
		return id, ErrInvalidIDLength
	}
	copy(id[:], data)
	return id, nil
}

// String returns the hex representation of the id.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero returns true if the id is the zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Cid returns the CIDv1 form of the id used for interchange.
func (id ID) Cid() cid.Cid {
	sum, _ := multihash.Encode(id[:], multihash.SHA3_256)
	return cid.NewCidV1(cid.Raw, sum)
}
