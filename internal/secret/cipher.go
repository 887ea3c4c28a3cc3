package secret

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/nacl/secretbox"
)

var ErrDecryptFailed = errors.New("decrypt failed")

// Cipher encrypts credential blobs with a process-wide symmetric key.
type Cipher struct {
	key [32]byte
}

// LoadOrCreateKey returns a cipher backed by the key file at path. The key is
// generated and written on first run and reused on every run after that.
func LoadOrCreateKey(path string) (*Cipher, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return createKey(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	raw, err := hex.DecodeString(string(data))
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("key file %s is corrupt", path)
	}

	c := &Cipher{}
	copy(c.key[:], raw)
	return c, nil
}

func createKey(path string) (*Cipher, error) {
	c := &Cipher{}
	if _, err := rand.Read(c.key[:]); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(c.key[:])), 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return c, nil
}

// Encrypt seals plaintext with a random nonce. The nonce is prepended to the
// returned blob.
func (c *Cipher) Encrypt(plain []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &c.key), nil
}

// Decrypt opens a blob produced by Encrypt. Tampered or truncated blobs, and
// blobs sealed with a different key, return ErrDecryptFailed.
func (c *Cipher) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < 24 {
		return nil, ErrDecryptFailed
	}
	var nonce [24]byte
	copy(nonce[:], blob[:24])

	plain, ok := secretbox.Open(nil, blob[24:], &nonce, &c.key)
	if !ok {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}
