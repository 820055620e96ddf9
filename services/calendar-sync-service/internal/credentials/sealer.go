package credentials

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealedVersion byte = 1

var errSealedNoKey = errors.New("token is sealed but no encryption key is configured")

// Sealer encrypts token records at rest with XChaCha20-Poly1305.
// The tenant id is bound as associated data so a blob cannot be moved between tenants.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(key []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("credentials: init sealer: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Seal(tenantID string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := append([]byte{sealedVersion}, nonce...)
	return s.aead.Seal(out, nonce, plaintext, []byte(tenantID)), nil
}

func (s *Sealer) Open(tenantID string, blob []byte) ([]byte, error) {
	if len(blob) < 1+s.aead.NonceSize() || blob[0] != sealedVersion {
		return nil, errors.New("credentials: malformed sealed token")
	}
	nonce := blob[1 : 1+s.aead.NonceSize()]
	plaintext, err := s.aead.Open(nil, nonce, blob[1+s.aead.NonceSize():], []byte(tenantID))
	if err != nil {
		return nil, fmt.Errorf("credentials: open sealed token: %w", err)
	}
	return plaintext, nil
}
