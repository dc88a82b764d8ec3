package batch

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movementlabsxyz/da-sequencer/pkg/signer/local"
	"github.com/movementlabsxyz/da-sequencer/types"
)

type staticWhitelist map[string]bool

func (w staticWhitelist) ContainsRaw(key []byte) bool {
	return w[string(key)]
}

func newSigner(t *testing.T) *local.Signer {
	t.Helper()
	s, err := local.GenerateSigner()
	require.NoError(t, err)
	return s
}

func rawKey(t *testing.T, s *local.Signer) []byte {
	t.Helper()
	pub, err := s.GetPublic()
	require.NoError(t, err)
	bz, err := pub.Raw()
	require.NoError(t, err)
	return bz
}

func testTxs() types.Transactions {
	return types.Transactions{
		types.NewTransaction([]byte("tx1"), 0, 1),
		types.NewTransaction([]byte("tx2"), 1, 2),
	}
}

func TestValidate(t *testing.T) {
	s := newSigner(t)
	other := newSigner(t)

	signed, err := Sign(testTxs(), s, 1234)
	require.NoError(t, err)

	garbage := []byte{0xff, 0xff, 0xff, 0xff, 0x0f, 0x01}
	garbageSig, err := s.Sign(garbage)
	require.NoError(t, err)

	tests := []struct {
		name    string
		raw     types.RawBatch
		wantErr error
	}{
		{
			name: "valid batch",
			raw:  signed,
		},
		{
			name: "signature from another key",
			raw: func() types.RawBatch {
				b := signed
				b.Signer = rawKey(t, other)
				return b
			}(),
			wantErr: types.ErrInvalidSignature,
		},
		{
			name: "tampered payload",
			raw: func() types.RawBatch {
				b := signed
				b.Data = bytes.Clone(signed.Data)
				b.Data[len(b.Data)-1] ^= 0x01
				return b
			}(),
			wantErr: types.ErrInvalidSignature,
		},
		{
			name: "truncated signature",
			raw: func() types.RawBatch {
				b := signed
				b.Signature = signed.Signature[:10]
				return b
			}(),
			wantErr: types.ErrInvalidSignature,
		},
		{
			name: "malformed signer key",
			raw: func() types.RawBatch {
				b := signed
				b.Signer = []byte{1, 2, 3}
				return b
			}(),
			wantErr: types.ErrInvalidSignature,
		},
		{
			name: "signed garbage",
			raw: types.RawBatch{
				Data:      garbage,
				Signature: garbageSig,
				Signer:    rawKey(t, s),
			},
			wantErr: types.ErrDeserialization,
		},
		{
			name: "unsigned garbage",
			raw: types.RawBatch{
				Data:      garbage,
				Signature: signed.Signature,
				Signer:    rawKey(t, s),
			},
			wantErr: types.ErrInvalidSignature,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			validated, err := Validate(tc.raw)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, validated.Data, 2)
			assert.Equal(t, []byte("tx1"), validated.Data[0].Data)
			assert.Equal(t, tc.raw.Signature, validated.Signature)
			assert.Equal(t, tc.raw.Signer, validated.Signer)
			assert.Equal(t, uint64(1234), validated.Timestamp)
		})
	}
}

func TestValidateRejectsForgedTransactionID(t *testing.T) {
	s := newSigner(t)
	txs := testTxs()
	txs[0].ID = types.ID{1}

	raw, err := Sign(txs, s, 0)
	require.NoError(t, err)

	_, err = Validate(raw)
	require.ErrorIs(t, err, types.ErrDeserialization)
}

func TestValidatorWhitelist(t *testing.T) {
	trusted := newSigner(t)
	untrusted := newSigner(t)
	v := NewValidator(staticWhitelist{string(rawKey(t, trusted)): true})

	raw, err := Sign(testTxs(), trusted, 0)
	require.NoError(t, err)
	_, err = v.Validate(raw)
	require.NoError(t, err)

	raw, err = Sign(testTxs(), untrusted, 0)
	require.NoError(t, err)
	_, err = v.Validate(raw)
	require.ErrorIs(t, err, types.ErrNotWhitelisted)
}
