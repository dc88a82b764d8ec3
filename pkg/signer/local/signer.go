package local

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/crypto"

	"github.com/movementlabsxyz/da-sequencer/pkg/signer"
)

// KeyFileName is the name of the key file inside a key directory.
const KeyFileName = "signer.json"

// Signer holds an Ed25519 key pair in memory.
type Signer struct {
	privKey crypto.PrivKey
	pubKey  crypto.PubKey
}

var _ signer.Signer = (*Signer)(nil)

// NewSigner wraps an existing private key.
func NewSigner(privKey crypto.PrivKey) (*Signer, error) {
	if privKey.Type() != crypto.Ed25519 {
		return nil, fmt.Errorf("unsupported key type %s, expected Ed25519", privKey.Type())
	}
	return &Signer{
		privKey: privKey,
		pubKey:  privKey.GetPublic(),
	}, nil
}

// GenerateSigner creates a signer with a fresh Ed25519 key pair.
func GenerateSigner() (*Signer, error) {
	privKey, _, err := crypto.GenerateKeyPair(crypto.Ed25519, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return NewSigner(privKey)
}

// Sign implements the Signer interface.
func (s *Signer) Sign(message []byte) ([]byte, error) {
	return s.privKey.Sign(message)
}

// GetPublic implements the Signer interface.
func (s *Signer) GetPublic() (crypto.PubKey, error) {
	return s.pubKey, nil
}

// keyData is the on-disk representation of a key pair.
type keyData struct {
	PrivKey string `json:"priv_key"`
	PubKey  string `json:"pub_key"`
}

// Save writes the key pair to dir/signer.json. An existing file is never
// overwritten.
func (s *Signer) Save(dir string) error {
	path := filepath.Join(dir, KeyFileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("key file already exists at %s", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check key file status: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	privBytes, err := s.privKey.Raw()
	if err != nil {
		return fmt.Errorf("failed to get raw private key: %w", err)
	}
	pubBytes, err := s.pubKey.Raw()
	if err != nil {
		return fmt.Errorf("failed to get raw public key: %w", err)
	}
	data, err := json.MarshalIndent(keyData{
		PrivKey: hex.EncodeToString(privBytes),
		PubKey:  hex.EncodeToString(pubBytes),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key data: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// Load reads the key pair stored in dir/signer.json.
func Load(dir string) (*Signer, error) {
	path := filepath.Join(dir, KeyFileName)
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	var kd keyData
	if err := json.Unmarshal(data, &kd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key data: %w", err)
	}
	privBytes, err := hex.DecodeString(kd.PrivKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	privKey, err := crypto.UnmarshalEd25519PrivateKey(privBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal private key: %w", err)
	}
	s, err := NewSigner(privKey)
	if err != nil {
		return nil, err
	}
	if kd.PubKey != "" {
		pubBytes, err := s.pubKey.Raw()
		if err != nil {
			return nil, err
		}
		if hex.EncodeToString(pubBytes) != kd.PubKey {
			return nil, fmt.Errorf("public key in %s does not match private key", path)
		}
	}
	return s, nil
}
