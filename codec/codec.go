// Package codec implements the deterministic binary encoding used for
// stored objects and persisted engine state.
package codec

const (
	kindString = byte(1)
	kindBytes  = byte(2)
	kindBool   = byte(3)
	kindInt64  = byte(4)
	kindList   = byte(5)
	kindMap    = byte(6)
	kindID     = byte(7)
	kindUserID = byte(8)

	kindBlob          = byte(100)
	kindTree          = byte(101)
	kindCommit        = byte(102)
	kindVersionVector = byte(103)
)
