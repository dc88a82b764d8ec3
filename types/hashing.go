package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// IDSize is the size of a content-derived identifier.
const IDSize = sha256.Size

// ID is a sha256 content hash identifying a transaction or a block.
type ID [IDSize]byte

// String returns the hex encoding of the id.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns a copy of the id as a byte slice.
func (id ID) Bytes() []byte {
	return append([]byte(nil), id[:]...)
}

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool {
	return id == ID{}
}

// IDFromBytes copies bz into an ID.
func IDFromBytes(bz []byte) (ID, error) {
	var id ID
	if len(bz) != IDSize {
		return id, fmt.Errorf("invalid id length: expected %d, got %d", IDSize, len(bz))
	}
	copy(id[:], bz)
	return id, nil
}

func hashID(bz []byte) ID {
	return sha256.Sum256(bz)
}
