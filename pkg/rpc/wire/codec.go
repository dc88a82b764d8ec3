package wire

import (
	"fmt"

	"github.com/aptos-labs/aptos-go-sdk/bcs"

	"github.com/movementlabsxyz/da-sequencer/types"
)

// CodecName is the gRPC content subtype of BCS messages.
const CodecName = "bcs"

// Codec encodes messages implementing bcs.Marshaler and bcs.Unmarshaler.
// It satisfies both connect.Codec and the grpc encoding.Codec interface.
type Codec struct{}

// Name implements connect.Codec.
func (Codec) Name() string {
	return CodecName
}

// Marshal implements connect.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(bcs.Marshaler)
	if !ok {
		return nil, fmt.Errorf("bcs codec: %T does not implement bcs.Marshaler", v)
	}
	return bcs.Serialize(m)
}

// Unmarshal implements connect.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	u, ok := v.(bcs.Unmarshaler)
	if !ok {
		return fmt.Errorf("bcs codec: %T does not implement bcs.Unmarshaler", v)
	}
	if err := types.UnmarshalBCS(u, data); err != nil {
		return fmt.Errorf("%w: %T: %w", types.ErrDeserialization, v, err)
	}
	return nil
}
