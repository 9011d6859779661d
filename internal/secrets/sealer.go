package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Prefix marks a sealed value inside the settings file.
const Prefix = "enc:"

var ErrNoKeys = errors.New("sealed value found but no master key is configured")

// Sealer encrypts provider API keys at rest. Values are sealed with the
// current key and may be opened with any configured key, so keys can rotate.
type Sealer struct {
	currentKeyID string
	keys         map[string][]byte
}

func NewSealer(currentKeyID string, keys map[string][]byte) (*Sealer, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("keys map is empty")
	}
	if _, ok := keys[currentKeyID]; !ok {
		return nil, fmt.Errorf("current key id %q not found", currentKeyID)
	}
	cp := make(map[string][]byte, len(keys))
	for id, key := range keys {
		if len(key) != 32 {
			return nil, fmt.Errorf("key %q must be 32 bytes", id)
		}
		if strings.Contains(id, ":") {
			return nil, fmt.Errorf("key id %q must not contain ':'", id)
		}
		buf := make([]byte, len(key))
		copy(buf, key)
		cp[id] = buf
	}
	return &Sealer{currentKeyID: currentKeyID, keys: cp}, nil
}

func IsSealed(v string) bool {
	return strings.HasPrefix(v, Prefix)
}

// Seal returns "enc:<key id>:<nonce>:<ciphertext>" with base64url parts.
func (s *Sealer) Seal(plaintext string) (string, error) {
	aead, err := newAEAD(s.keys[s.currentKeyID])
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	ct := aead.Seal(nil, nonce, []byte(plaintext), []byte(s.currentKeyID))
	enc := base64.RawURLEncoding
	return Prefix + s.currentKeyID + ":" + enc.EncodeToString(nonce) + ":" + enc.EncodeToString(ct), nil
}

// Open returns plain values unchanged and decrypts sealed ones. A nil Sealer
// can still open plain values.
func (s *Sealer) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if s == nil {
		return "", ErrNoKeys
	}
	parts := strings.Split(strings.TrimPrefix(value, Prefix), ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed sealed value")
	}
	key, ok := s.keys[parts[0]]
	if !ok {
		return "", fmt.Errorf("unknown key id %q", parts[0])
	}
	enc := base64.RawURLEncoding
	nonce, err := enc.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}
	if len(nonce) != aead.NonceSize() {
		return "", fmt.Errorf("invalid nonce size %d", len(nonce))
	}
	pt, err := aead.Open(nil, nonce, ct, []byte(parts[0]))
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(pt), nil
}

// Reseal opens a value and seals it again under the current key.
func (s *Sealer) Reseal(value string) (string, error) {
	plain, err := s.Open(value)
	if err != nil {
		return "", err
	}
	return s.Seal(plain)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}
