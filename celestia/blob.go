package celestia

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/aptos-labs/aptos-go-sdk/bcs"
	"github.com/celestiaorg/go-square/v2/share"

	"github.com/movementlabsxyz/da-sequencer/types"
)

// MaxCelestiaBlobSize is the hard ceiling for a single blob published to Celestia.
const MaxCelestiaBlobSize = 512 * 1024

// MinBlobSize is the encoded size of a blob holding a single digest.
const MinBlobSize = 1 + types.DigestSize

// DefaultNamespace is the hex sub-id of the default namespace ("movement").
const DefaultNamespace = "6d6f76656d656e74"

// CelestiaBlob is the aggregate of block digests published in one blob.
type CelestiaBlob struct {
	Digests []types.SequencerBlockDigest
}

// EncodedBlobSize returns the encoded size of a blob holding n digests.
func EncodedBlobSize(n int) int {
	return types.SequenceLenSize(n) + n*types.DigestSize
}

// Bytes returns the BCS encoding of the blob.
func (b *CelestiaBlob) Bytes() ([]byte, error) {
	return bcs.Serialize(b)
}

// BlobFromBytes decodes a blob.
func BlobFromBytes(bz []byte) (CelestiaBlob, error) {
	var b CelestiaBlob
	if err := types.UnmarshalBCS(&b, bz); err != nil {
		return CelestiaBlob{}, fmt.Errorf("%w: celestia blob: %w", types.ErrDeserialization, err)
	}
	return b, nil
}

// MarshalBCS implements bcs.Marshaler.
func (b *CelestiaBlob) MarshalBCS(ser *bcs.Serializer) {
	ser.Uleb128(uint32(len(b.Digests)))
	for i := range b.Digests {
		ser.Struct(&b.Digests[i])
	}
}

// UnmarshalBCS implements bcs.Unmarshaler.
func (b *CelestiaBlob) UnmarshalBCS(des *bcs.Deserializer) {
	n := int(des.Uleb128())
	if des.Error() != nil {
		return
	}
	if n > des.Remaining()/types.DigestSize {
		des.SetError(fmt.Errorf("digest count %d exceeds remaining input", n))
		return
	}
	digests := make([]types.SequencerBlockDigest, n)
	for i := range digests {
		des.Struct(&digests[i])
	}
	b.Digests = digests
}

// ParseNamespace builds a version 0 namespace from a hex encoded sub-id of
// at most 10 bytes.
func ParseNamespace(hexID string) (share.Namespace, error) {
	id, err := hex.DecodeString(strings.TrimPrefix(hexID, "0x"))
	if err != nil {
		return share.Namespace{}, fmt.Errorf("invalid namespace %q: %w", hexID, err)
	}
	ns, err := share.NewV0Namespace(id)
	if err != nil {
		return share.Namespace{}, fmt.Errorf("invalid namespace %q: %w", hexID, err)
	}
	return ns, nil
}

// sharesNeeded estimates the number of shares a blob of size bytes occupies.
func sharesNeeded(size int) int {
	return share.SparseSharesNeeded(uint32(size)) //nolint:gosec
}
