package types

import (
	"fmt"

	"github.com/aptos-labs/aptos-go-sdk/bcs"
)

// MarshalBCS encodes v using the canonical BCS encoding.
func MarshalBCS(v bcs.Marshaler) ([]byte, error) {
	return bcs.Serialize(v)
}

// UnmarshalBCS decodes bz into v. Trailing bytes are rejected so that every
// value has exactly one accepted encoding.
func UnmarshalBCS(v bcs.Unmarshaler, bz []byte) error {
	des := bcs.NewDeserializer(bz)
	des.Struct(v)
	if err := des.Error(); err != nil {
		return err
	}
	if rem := des.Remaining(); rem > 0 {
		return fmt.Errorf("%d trailing bytes after decoding", rem)
	}
	return nil
}

// SequenceLenSize returns the number of bytes used to encode the length
// prefix of a BCS sequence with n elements.
func SequenceLenSize(n int) int {
	size := 1
	for v := uint64(n); v >= 0x80; v >>= 7 {
		size++
	}
	return size
}

// readSequenceLen reads a ULEB128 sequence length and caps it by the bytes
// left in the input, so hostile lengths can not force large allocations.
func readSequenceLen(des *bcs.Deserializer, minElemSize int) int {
	n := int(des.Uleb128())
	if des.Error() != nil {
		return 0
	}
	if minElemSize > 0 && n > des.Remaining()/minElemSize {
		des.SetError(fmt.Errorf("sequence length %d exceeds remaining input", n))
		return 0
	}
	return n
}
