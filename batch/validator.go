// Package batch authenticates and decodes transaction batches submitted by
// full nodes.
package batch

import (
	"bytes"
	"fmt"

	"github.com/libp2p/go-libp2p/core/crypto"

	"github.com/movementlabsxyz/da-sequencer/pkg/signer"
	"github.com/movementlabsxyz/da-sequencer/types"
)

// Whitelist reports whether a raw Ed25519 public key may submit batches.
type Whitelist interface {
	ContainsRaw(key []byte) bool
}

// Validate authenticates a raw batch and decodes its payload.
//
// The signature over the exact payload bytes is verified before anything
// else looks at the payload. A batch whose signature does not verify fails
// with types.ErrInvalidSignature regardless of its content; a signed payload
// that is not a valid transaction list fails with types.ErrDeserialization.
// Validate performs no I/O.
func Validate(raw types.RawBatch) (types.ValidatedBatch, error) {
	pubKey, err := crypto.UnmarshalEd25519PublicKey(raw.Signer)
	if err != nil {
		return types.ValidatedBatch{}, fmt.Errorf("%w: malformed signer key: %w", types.ErrInvalidSignature, err)
	}
	ok, err := pubKey.Verify(raw.Data, raw.Signature)
	if err != nil {
		return types.ValidatedBatch{}, fmt.Errorf("%w: %w", types.ErrInvalidSignature, err)
	}
	if !ok {
		return types.ValidatedBatch{}, types.ErrInvalidSignature
	}

	var txs types.Transactions
	if err := types.UnmarshalBCS(&txs, raw.Data); err != nil {
		return types.ValidatedBatch{}, fmt.Errorf("%w: transactions: %w", types.ErrDeserialization, err)
	}
	for i := range txs {
		if err := txs[i].Verify(); err != nil {
			return types.ValidatedBatch{}, fmt.Errorf("%w: transaction %d: %w", types.ErrDeserialization, i, err)
		}
	}

	return types.ValidatedBatch{
		Data:      txs,
		Signature: bytes.Clone(raw.Signature),
		Signer:    bytes.Clone(raw.Signer),
		Timestamp: raw.Timestamp,
	}, nil
}

// Validator checks the signer against a whitelist before validating a batch.
type Validator struct {
	whitelist Whitelist
}

// NewValidator returns a Validator that trusts the keys in whitelist.
func NewValidator(whitelist Whitelist) *Validator {
	return &Validator{whitelist: whitelist}
}

// Validate rejects batches from signers outside the whitelist with
// types.ErrNotWhitelisted and otherwise behaves like the package level Validate.
func (v *Validator) Validate(raw types.RawBatch) (types.ValidatedBatch, error) {
	if !v.whitelist.ContainsRaw(raw.Signer) {
		return types.ValidatedBatch{}, types.ErrNotWhitelisted
	}
	return Validate(raw)
}

// Sign encodes txs and signs the encoding, producing a batch ready to be
// submitted.
func Sign(txs types.Transactions, s signer.Signer, timestamp uint64) (types.RawBatch, error) {
	data, err := types.MarshalBCS(&txs)
	if err != nil {
		return types.RawBatch{}, fmt.Errorf("failed to encode transactions: %w", err)
	}
	signature, err := s.Sign(data)
	if err != nil {
		return types.RawBatch{}, fmt.Errorf("failed to sign batch: %w", err)
	}
	pubKey, err := s.GetPublic()
	if err != nil {
		return types.RawBatch{}, fmt.Errorf("failed to get public key: %w", err)
	}
	signerKey, err := pubKey.Raw()
	if err != nil {
		return types.RawBatch{}, fmt.Errorf("failed to get raw public key: %w", err)
	}
	return types.RawBatch{
		Data:      data,
		Signature: signature,
		Signer:    signerKey,
		Timestamp: timestamp,
	}, nil
}
