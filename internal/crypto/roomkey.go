// Package crypto implements the room-key payload codec shared with the
// client SDKs. Room keys are generated and held client-side; the server
// only ever touches key material transiently, on the attachment upload
// path, and never persists it.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the room key length (AES-256).
	KeySize = 32

	payloadVersion = "v1"
)

// ErrDecryptionFailed signals a key mismatch or corrupted ciphertext.
// It is distinct from empty content: callers render a placeholder, never
// the output of a failed open.
var ErrDecryptionFailed = errors.New("decryption failed")

// ErrInvalidKey signals key material of the wrong shape.
var ErrInvalidKey = errors.New("invalid key material")

// NewRoomKey generates a fresh 32-byte symmetric key.
func NewRoomKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// ExportKey renders a key in the wire form carried by the upload
// endpoint (unpadded base64url).
func ExportKey(key []byte) string {
	return base64.RawURLEncoding.EncodeToString(key)
}

// ImportKey parses an exported key.
func ImportKey(exported string) ([]byte, error) {
	key, err := base64.RawURLEncoding.DecodeString(exported)
	if err != nil {
		return nil, ErrInvalidKey
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// DeriveFileKey derives a per-file key from a room key and a per-file
// context string, so attachment blobs never share a key with messages.
func DeriveFileKey(roomKey []byte, fileContext string) ([]byte, error) {
	if len(roomKey) != KeySize {
		return nil, ErrInvalidKey
	}
	reader := hkdf.New(sha256.New, roomKey, []byte(fileContext), []byte("caris-chat-file"))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive file key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext with AES-256-GCM and returns a versioned
// payload: "v1:" + base64(nonce || ciphertext).
func Seal(plaintext, key []byte) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return payloadVersion + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a Seal payload. Any malformed payload, wrong key or
// tampered ciphertext yields ErrDecryptionFailed.
func Open(payload string, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	version, encoded, found := strings.Cut(payload, ":")
	if !found || version != payloadVersion {
		return nil, ErrDecryptionFailed
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	if len(raw) < aead.NonceSize() {
		return nil, ErrDecryptionFailed
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// SealBytes is the binary form used for attachment blobs at rest:
// nonce || ciphertext, no encoding.
func SealBytes(plaintext, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// OpenBytes reverses SealBytes.
func OpenBytes(sealed, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := aead.Open(nil, sealed[:aead.NonceSize()], sealed[aead.NonceSize():], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return cipher.NewGCM(block)
}
