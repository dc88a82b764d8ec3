package types

import (
	"fmt"

	"github.com/aptos-labs/aptos-go-sdk/bcs"
)

// DaBatch is a payload together with the signature of its submitter.
type DaBatch[T any] struct {
	Data      T
	Signature []byte
	// Signer is the raw Ed25519 public key of the submitter.
	Signer    []byte
	Timestamp uint64
}

// RawBatch is a batch as received from the network, not yet authenticated.
type RawBatch = DaBatch[[]byte]

// ValidatedBatch is a batch whose signature was verified and whose payload
// was decoded.
type ValidatedBatch = DaBatch[Transactions]

// EncodeRawBatch returns the BCS encoding of a raw batch.
func EncodeRawBatch(b RawBatch) ([]byte, error) {
	return bcs.Serialize(&rawBatchBCS{b: &b})
}

// DecodeRawBatch decodes the BCS envelope of a raw batch. The payload is not
// interpreted.
func DecodeRawBatch(bz []byte) (RawBatch, error) {
	var b RawBatch
	if err := UnmarshalBCS(&rawBatchBCS{b: &b}, bz); err != nil {
		return RawBatch{}, fmt.Errorf("%w: batch envelope: %w", ErrDeserialization, err)
	}
	return b, nil
}

type rawBatchBCS struct {
	b *RawBatch
}

func (r *rawBatchBCS) MarshalBCS(ser *bcs.Serializer) {
	ser.WriteBytes(r.b.Data)
	ser.WriteBytes(r.b.Signature)
	ser.WriteBytes(r.b.Signer)
	ser.U64(r.b.Timestamp)
}

func (r *rawBatchBCS) UnmarshalBCS(des *bcs.Deserializer) {
	r.b.Data = des.ReadBytes()
	r.b.Signature = des.ReadBytes()
	r.b.Signer = des.ReadBytes()
	r.b.Timestamp = des.U64()
}
