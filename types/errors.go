package types

import "errors"

var (
	// ErrInvalidSignature is returned when a batch signature does not verify
	// against the claimed signer.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrDeserialization is returned when a payload can not be decoded.
	ErrDeserialization = errors.New("deserialization failure")
	// ErrNotWhitelisted is returned when the batch signer is not trusted.
	ErrNotWhitelisted = errors.New("signer not whitelisted")
	// ErrSend is returned when an internal channel is closed.
	ErrSend = errors.New("internal channel closed")
	// ErrBlockTooLarge is returned when a block would exceed MaxSequencerBlockSize.
	ErrBlockTooLarge = errors.New("block too large")
	// ErrBatchQueueFull is returned when the block producer can not accept
	// another batch.
	ErrBatchQueueFull = errors.New("batch queue full")
)
