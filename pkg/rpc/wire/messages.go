package wire

import (
	"bytes"
	"fmt"

	"github.com/aptos-labs/aptos-go-sdk/bcs"

	"github.com/movementlabsxyz/da-sequencer/types"
)

// BatchWriteRequest carries one BCS encoded types.RawBatch.
type BatchWriteRequest struct {
	Data []byte
}

// BatchWriteResponse acknowledges an accepted batch.
type BatchWriteResponse struct {
	Answer bool
}

// ReadAtHeightRequest asks for the block at Height.
type ReadAtHeightRequest struct {
	Height uint64
}

// ReadAtHeightResponse holds the block at the requested height. Block is nil
// when the height was not produced yet.
type ReadAtHeightResponse struct {
	Block *BlockV1
}

// StreamReadFromHeightRequest opens a block stream starting at Height.
type StreamReadFromHeightRequest struct {
	Height uint64
}

// StreamReadFromHeightResponse is one item of a block stream.
type StreamReadFromHeightResponse struct {
	Response BlockResponse
}

// BlockResponse is either a heartbeat or a block.
type BlockResponse struct {
	// Heartbeat is set on keep-alive messages, which carry no block.
	Heartbeat bool
	Block     *BlockV1
}

// BlockV1 is a sequencer block as sent over the wire. Data is the BCS
// encoding of the types.SequencerBlock.
type BlockV1 struct {
	ID     []byte
	Height uint64
	Data   []byte
}

// NewBlockV1 wraps a block for the wire.
func NewBlockV1(b *types.SequencerBlock) (*BlockV1, error) {
	data, err := b.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode block %d: %w", b.Height(), err)
	}
	id := b.ID()
	return &BlockV1{
		ID:     id.Bytes(),
		Height: b.Height().Uint64(),
		Data:   data,
	}, nil
}

// SequencerBlock decodes the block and checks it against the envelope.
func (b *BlockV1) SequencerBlock() (*types.SequencerBlock, error) {
	block, err := types.SequencerBlockFromBytes(b.Data)
	if err != nil {
		return nil, err
	}
	id := block.ID()
	if block.Height().Uint64() != b.Height || !bytes.Equal(id.Bytes(), b.ID) {
		return nil, fmt.Errorf("%w: block envelope does not match block %d", types.ErrDeserialization, block.Height())
	}
	return block, nil
}

const (
	blockResponseHeartbeat uint32 = iota
	blockResponseBlockV1
)

func (m *BatchWriteRequest) MarshalBCS(ser *bcs.Serializer) {
	ser.WriteBytes(m.Data)
}

func (m *BatchWriteRequest) UnmarshalBCS(des *bcs.Deserializer) {
	m.Data = des.ReadBytes()
}

func (m *BatchWriteResponse) MarshalBCS(ser *bcs.Serializer) {
	ser.Bool(m.Answer)
}

func (m *BatchWriteResponse) UnmarshalBCS(des *bcs.Deserializer) {
	m.Answer = des.Bool()
}

func (m *ReadAtHeightRequest) MarshalBCS(ser *bcs.Serializer) {
	ser.U64(m.Height)
}

func (m *ReadAtHeightRequest) UnmarshalBCS(des *bcs.Deserializer) {
	m.Height = des.U64()
}

func (m *ReadAtHeightResponse) MarshalBCS(ser *bcs.Serializer) {
	// BCS Option: a presence byte followed by the value.
	ser.Bool(m.Block != nil)
	if m.Block != nil {
		ser.Struct(m.Block)
	}
}

func (m *ReadAtHeightResponse) UnmarshalBCS(des *bcs.Deserializer) {
	m.Block = nil
	if des.Bool() {
		m.Block = &BlockV1{}
		des.Struct(m.Block)
	}
}

func (m *StreamReadFromHeightRequest) MarshalBCS(ser *bcs.Serializer) {
	ser.U64(m.Height)
}

func (m *StreamReadFromHeightRequest) UnmarshalBCS(des *bcs.Deserializer) {
	m.Height = des.U64()
}

func (m *StreamReadFromHeightResponse) MarshalBCS(ser *bcs.Serializer) {
	ser.Struct(&m.Response)
}

func (m *StreamReadFromHeightResponse) UnmarshalBCS(des *bcs.Deserializer) {
	des.Struct(&m.Response)
}

func (m *BlockResponse) MarshalBCS(ser *bcs.Serializer) {
	if m.Block == nil {
		ser.Uleb128(blockResponseHeartbeat)
		ser.Bool(m.Heartbeat)
		return
	}
	ser.Uleb128(blockResponseBlockV1)
	ser.Struct(m.Block)
}

func (m *BlockResponse) UnmarshalBCS(des *bcs.Deserializer) {
	*m = BlockResponse{}
	switch variant := des.Uleb128(); variant {
	case blockResponseHeartbeat:
		m.Heartbeat = des.Bool()
	case blockResponseBlockV1:
		m.Block = &BlockV1{}
		des.Struct(m.Block)
	default:
		if des.Error() == nil {
			des.SetError(fmt.Errorf("unknown block response variant %d", variant))
		}
	}
}

func (m *BlockV1) MarshalBCS(ser *bcs.Serializer) {
	ser.WriteBytes(m.ID)
	ser.U64(m.Height)
	ser.WriteBytes(m.Data)
}

func (m *BlockV1) UnmarshalBCS(des *bcs.Deserializer) {
	m.ID = des.ReadBytes()
	m.Height = des.U64()
	m.Data = des.ReadBytes()
}
