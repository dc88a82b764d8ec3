package signer

import (
	"github.com/libp2p/go-libp2p/core/crypto"
)

// Signer signs batches on behalf of a full node.
type Signer interface {
	// Sign signs the message with the private key.
	Sign(message []byte) ([]byte, error)

	// GetPublic returns the public key paired with the private key.
	GetPublic() (crypto.PubKey, error)
}
