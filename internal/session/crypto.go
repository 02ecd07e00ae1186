// Package session implements the hybrid X25519 + Kyber-768 handshake and the
// ChaCha20-Poly1305 framing used for every message after it.
package session

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrDecrypt is an authentication failure: tampering, replay, reordering
	// or a desynchronized counter. It is always fatal to the session.
	ErrDecrypt = errors.New("decryption failed")

	// ErrNonceExhausted is returned instead of letting a counter wrap.
	ErrNonceExhausted = errors.New("nonce counter exhausted")
)

// KeySize is the session key length.
const KeySize = chacha20poly1305.KeySize

// SessionCrypto seals and opens frames for one connection.
//
// Send and receive counters are independent and each starts at zero. Seal
// must only be called by one goroutine at a time and Open likewise; the two
// directions may run concurrently.
type SessionCrypto struct {
	aead    cipher.AEAD
	sendCtr uint64
	recvCtr uint64
}

// NewSessionCrypto binds a session to a 32-byte key.
func NewSessionCrypto(key []byte) (*SessionCrypto, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("session cipher: %w", err)
	}
	return &SessionCrypto{aead: aead}, nil
}

// Seal encrypts plaintext under the next send nonce.
func (c *SessionCrypto) Seal(plaintext []byte) ([]byte, error) {
	if c.sendCtr == math.MaxUint64 {
		return nil, ErrNonceExhausted
	}
	nonce := makeNonce(c.sendCtr)
	c.sendCtr++
	return c.aead.Seal(nil, nonce[:], plaintext, nil), nil
}

// Open decrypts ciphertext under the next receive nonce. The counter only
// advances on success; callers must drop the session on any error.
func (c *SessionCrypto) Open(ciphertext []byte) ([]byte, error) {
	if c.recvCtr == math.MaxUint64 {
		return nil, ErrNonceExhausted
	}
	nonce := makeNonce(c.recvCtr)
	plain, err := c.aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w at counter %d", ErrDecrypt, c.recvCtr)
	}
	c.recvCtr++
	return plain, nil
}

// SendCounter is the counter the next Seal will use.
func (c *SessionCrypto) SendCounter() uint64 { return c.sendCtr }

// RecvCounter is the counter the next Open will use.
func (c *SessionCrypto) RecvCounter() uint64 { return c.recvCtr }

// makeNonce lays out four zero bytes then the counter big-endian.
func makeNonce(counter uint64) [chacha20poly1305.NonceSize]byte {
	var nonce [chacha20poly1305.NonceSize]byte
	binary.BigEndian.PutUint64(nonce[4:], counter)
	return nonce
}
