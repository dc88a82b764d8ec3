// Package whitelist manages the set of Ed25519 public keys allowed to submit
// batches to the sequencer.
//
// The whitelist file holds one hex encoded raw public key per line. Blank
// lines and lines starting with '#' are ignored.
package whitelist

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/libp2p/go-libp2p/core/crypto"
)

// Whitelist is a set of trusted public keys. It is safe for concurrent use.
type Whitelist struct {
	mu   sync.RWMutex
	keys map[string]crypto.PubKey
}

// New returns a whitelist holding keys.
func New(keys ...crypto.PubKey) (*Whitelist, error) {
	m, err := keySet(keys)
	if err != nil {
		return nil, err
	}
	return &Whitelist{keys: m}, nil
}

// Load reads the whitelist file at path.
func Load(path string) (*Whitelist, error) {
	keys, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return New(keys...)
}

// Save overwrites the file at path with keys. The file is written to a
// temporary file first and renamed into place. Concurrent writers are not
// supported.
func Save(path string, keys []crypto.PubKey) error {
	var buf bytes.Buffer
	for _, k := range keys {
		s, err := EncodeKey(k)
		if err != nil {
			return err
		}
		buf.WriteString(s)
		buf.WriteByte('\n')
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create whitelist directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary whitelist file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write whitelist: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync whitelist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close whitelist: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace whitelist: %w", err)
	}
	return nil
}

// Reload replaces the key set with the content of the file at path. The
// current set is kept when the file can not be read.
func (w *Whitelist) Reload(path string) error {
	keys, err := readFile(path)
	if err != nil {
		return err
	}
	m, err := keySet(keys)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.keys = m
	w.mu.Unlock()
	return nil
}

// Contains reports whether key is trusted.
func (w *Whitelist) Contains(key crypto.PubKey) bool {
	if key == nil {
		return false
	}
	raw, err := key.Raw()
	if err != nil {
		return false
	}
	return w.ContainsRaw(raw)
}

// ContainsRaw reports whether the raw Ed25519 public key is trusted.
func (w *Whitelist) ContainsRaw(raw []byte) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.keys[string(raw)]
	return ok
}

// Keys returns the trusted keys ordered by their hex encoding.
func (w *Whitelist) Keys() []crypto.PubKey {
	w.mu.RLock()
	ids := make([]string, 0, len(w.keys))
	for id := range w.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	keys := make([]crypto.PubKey, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, w.keys[id])
	}
	w.mu.RUnlock()
	return keys
}

// Len returns the number of trusted keys.
func (w *Whitelist) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.keys)
}

// ParseKey decodes a hex encoded raw Ed25519 public key.
func ParseKey(s string) (crypto.PubKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex key %q: %w", s, err)
	}
	key, err := crypto.UnmarshalEd25519PublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid ed25519 key %q: %w", s, err)
	}
	return key, nil
}

// EncodeKey returns the hex encoding of the raw public key.
func EncodeKey(key crypto.PubKey) (string, error) {
	raw, err := key.Raw()
	if err != nil {
		return "", fmt.Errorf("failed to get raw public key: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

func readFile(path string) ([]crypto.PubKey, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to open whitelist: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var keys []crypto.PubKey
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, err := ParseKey(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		keys = append(keys, key)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read whitelist: %w", err)
	}
	return keys, nil
}

func keySet(keys []crypto.PubKey) (map[string]crypto.PubKey, error) {
	m := make(map[string]crypto.PubKey, len(keys))
	for _, k := range keys {
		if k.Type() != crypto.Ed25519 {
			return nil, fmt.Errorf("unsupported key type %s", k.Type())
		}
		raw, err := k.Raw()
		if err != nil {
			return nil, fmt.Errorf("failed to get raw public key: %w", err)
		}
		m[string(raw)] = k
	}
	return m, nil
}
