package object

import (
	"crypto/rand"
	"encoding/hex"
)

// UserIDSize is the width of a user id in bytes.
const UserIDSize = 32

// UserID uniquely identifies a peer.
type UserID [UserIDSize]byte

// NewUserID returns a fresh random user id.
func NewUserID() UserID {
	var u UserID
	rand.Read(u[:])
	return u
}

// UserIDFromHex parses a user id from its hex representation.
func UserIDFromHex(s string) (UserID, error) {
	var u UserID
	data, err := hex.DecodeString(s)
	if err != nil {
		return u, err
	}
	if len(data) != UserIDSize {
		return u, ErrInvalidIDLength
	}
	copy(u[:], data)
	return u, nil
}

// String returns the hex representation of the user id.
func (u UserID) String() string {
	return hex.EncodeToString(u[:])
}
