package types

import (
	"fmt"
	"slices"

	"github.com/aptos-labs/aptos-go-sdk/bcs"
)

// MaxSequencerBlockSize bounds the encoded size of a SequencerBlock.
const MaxSequencerBlockSize = 4 << 20

// blockHeaderSize is the encoded size of everything in a block except the
// transaction list: height, parent id, timestamp and id.
const blockHeaderSize = 8 + IDSize + 8 + IDSize

// BlockHeight is the height of a sequencer block. Height 0 is genesis.
type BlockHeight uint64

// Parent returns the height of the previous block. The parent of genesis is genesis.
func (h BlockHeight) Parent() BlockHeight {
	if h == 0 {
		return 0
	}
	return h - 1
}

// Next returns the height of the following block.
func (h BlockHeight) Next() BlockHeight {
	return h + 1
}

// Uint64 returns the height as a plain integer.
func (h BlockHeight) Uint64() uint64 {
	return uint64(h)
}

// BlockEncodedSize returns the encoded size of a block holding txCount
// transactions whose encodings add up to txBytes.
func BlockEncodedSize(txCount, txBytes int) int {
	return blockHeaderSize + SequenceLenSize(txCount) + txBytes
}

// SequencerBlock is an immutable, height-tagged list of transactions.
// Instances are only created through NewSequencerBlock or
// SequencerBlockFromBytes, which enforce the size bound and the content id.
type SequencerBlock struct {
	height       BlockHeight
	parent       ID
	timestamp    uint64
	transactions Transactions
	id           ID
	size         int
}

// NewSequencerBlock builds a block and derives its id. It fails with
// ErrBlockTooLarge when the encoded block exceeds MaxSequencerBlockSize.
func NewSequencerBlock(height BlockHeight, parent ID, timestamp uint64, txs Transactions) (*SequencerBlock, error) {
	b := &SequencerBlock{
		height:       height,
		parent:       parent,
		timestamp:    timestamp,
		transactions: slices.Clone(txs),
	}
	content, err := bcs.Serialize(blockContent{b})
	if err != nil {
		return nil, fmt.Errorf("failed to encode block: %w", err)
	}
	b.size = len(content) + IDSize
	if b.size > MaxSequencerBlockSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrBlockTooLarge, b.size, MaxSequencerBlockSize)
	}
	b.id = hashID(content)
	return b, nil
}

// SequencerBlockFromBytes decodes a block and checks its size and id.
func SequencerBlockFromBytes(bz []byte) (*SequencerBlock, error) {
	if len(bz) > MaxSequencerBlockSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrBlockTooLarge, len(bz), MaxSequencerBlockSize)
	}
	var enc encodedBlock
	if err := UnmarshalBCS(&enc, bz); err != nil {
		return nil, fmt.Errorf("%w: block: %w", ErrDeserialization, err)
	}
	b := enc.block
	content, err := bcs.Serialize(blockContent{b})
	if err != nil {
		return nil, fmt.Errorf("failed to encode block: %w", err)
	}
	if expected := hashID(content); expected != b.id {
		return nil, fmt.Errorf("%w: block id mismatch: expected %s, got %s", ErrDeserialization, expected, b.id)
	}
	b.size = len(bz)
	return b, nil
}

// MarshalBinary returns the BCS encoding of the block.
func (b *SequencerBlock) MarshalBinary() ([]byte, error) {
	return bcs.Serialize(&encodedBlock{block: b})
}

// Height returns the block height.
func (b *SequencerBlock) Height() BlockHeight { return b.height }

// ParentID returns the id of the previous block.
func (b *SequencerBlock) ParentID() ID { return b.parent }

// Timestamp returns the production time in unix milliseconds.
func (b *SequencerBlock) Timestamp() uint64 { return b.timestamp }

// ID returns the content id of the block.
func (b *SequencerBlock) ID() ID { return b.id }

// Size returns the encoded size of the block in bytes.
func (b *SequencerBlock) Size() int { return b.size }

// Len returns the number of transactions in the block.
func (b *SequencerBlock) Len() int { return len(b.transactions) }

// Transactions returns a copy of the ordered transaction list.
func (b *SequencerBlock) Transactions() Transactions {
	return slices.Clone(b.transactions)
}

// Digest returns the compact reference published to the DA layer.
func (b *SequencerBlock) Digest() SequencerBlockDigest {
	return SequencerBlockDigest{Height: b.height, ID: b.id}
}

// blockContent is the part of a block covered by its id.
type blockContent struct {
	b *SequencerBlock
}

func (c blockContent) MarshalBCS(ser *bcs.Serializer) {
	ser.U64(uint64(c.b.height))
	ser.FixedBytes(c.b.parent[:])
	ser.U64(c.b.timestamp)
	ser.Struct(&c.b.transactions)
}

type encodedBlock struct {
	block *SequencerBlock
}

func (e *encodedBlock) MarshalBCS(ser *bcs.Serializer) {
	blockContent{e.block}.MarshalBCS(ser)
	ser.FixedBytes(e.block.id[:])
}

func (e *encodedBlock) UnmarshalBCS(des *bcs.Deserializer) {
	b := &SequencerBlock{}
	b.height = BlockHeight(des.U64())
	parent := des.ReadFixedBytes(IDSize)
	b.timestamp = des.U64()
	des.Struct(&b.transactions)
	id := des.ReadFixedBytes(IDSize)
	if des.Error() != nil {
		return
	}
	copy(b.parent[:], parent)
	copy(b.id[:], id)
	e.block = b
}

// DigestSize is the fixed encoded size of a SequencerBlockDigest.
const DigestSize = 8 + IDSize

// SequencerBlockDigest references a block by height and id.
type SequencerBlockDigest struct {
	Height BlockHeight
	ID     ID
}

// MarshalBCS implements bcs.Marshaler.
func (d *SequencerBlockDigest) MarshalBCS(ser *bcs.Serializer) {
	ser.U64(uint64(d.Height))
	ser.FixedBytes(d.ID[:])
}

// UnmarshalBCS implements bcs.Unmarshaler.
func (d *SequencerBlockDigest) UnmarshalBCS(des *bcs.Deserializer) {
	d.Height = BlockHeight(des.U64())
	id := des.ReadFixedBytes(IDSize)
	if des.Error() != nil {
		return
	}
	copy(d.ID[:], id)
}
