package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4
)

var ErrCorrupt = errors.New("backup: sealed data too short")

// GenerateSalt returns 16 cryptographically random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a 32-byte AES-256 key from a passphrase and salt using Argon2id.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMem, argonPar, keySize)
}

// Sealer encrypts snapshots under one derived key. Argon2 runs once, when the
// sealer is built.
type Sealer struct {
	salt []byte
	aead cipher.AEAD
}

func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.New("backup: passphrase is required")
	}
	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	return &Sealer{salt: salt, aead: aead}, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext.
// Output format: [16-byte salt][12-byte nonce][AES-256-GCM ciphertext]
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+nonceSize+len(plaintext)+s.aead.Overhead())
	out = append(out, s.salt...)
	out = append(out, nonce...)
	return s.aead.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal, reading the salt from its header.
func Open(data []byte, passphrase string) ([]byte, error) {
	if len(data) < saltSize+nonceSize {
		return nil, ErrCorrupt
	}
	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+nonceSize]

	aead, err := newAEAD(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, data[saltSize+nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
