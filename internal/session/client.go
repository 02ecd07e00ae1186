package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem"
	"golang.org/x/crypto/curve25519"

	"github.com/nx0ly/moomoo2/internal/protocol"
)

// ClientHandshake holds the initiator's ephemeral secrets between sending
// ClientHello and receiving ServerHello.
type ClientHandshake struct {
	scalar [curve25519.ScalarSize]byte
	kemSK  kem.PrivateKey
	hello  protocol.ClientHello
}

// NewClientHandshake generates fresh X25519 and Kyber-768 keypairs.
func NewClientHandshake() (*ClientHandshake, error) {
	h := &ClientHandshake{}
	if _, err := rand.Read(h.scalar[:]); err != nil {
		return nil, fmt.Errorf("%w: entropy: %v", ErrHandshake, err)
	}
	pub, err := curve25519.X25519(h.scalar[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: x25519 keygen: %v", ErrHandshake, err)
	}
	copy(h.hello.X25519PK[:], pub)

	kemPK, kemSK, err := kemScheme.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("%w: kyber keygen: %v", ErrHandshake, err)
	}
	if h.hello.KyberPK, err = kemPK.MarshalBinary(); err != nil {
		return nil, fmt.Errorf("%w: kyber key: %v", ErrHandshake, err)
	}
	h.kemSK = kemSK
	return h, nil
}

// Hello is the record to send first.
func (h *ClientHandshake) Hello() protocol.ClientHello { return h.hello }

// Complete derives the session from the server's reply.
func (h *ClientHandshake) Complete(reply protocol.ServerHello) (*SessionCrypto, error) {
	if len(reply.KyberCT) != KEMCiphertextSize() {
		return nil, fmt.Errorf("%w: %w: ciphertext is %d bytes", ErrHandshake, ErrKeySize, len(reply.KyberCT))
	}
	ecdh, err := curve25519.X25519(h.scalar[:], reply.X25519PK[:])
	if err != nil {
		return nil, fmt.Errorf("%w: x25519: %v", ErrHandshake, err)
	}
	kemSecret, err := kemScheme.Decapsulate(h.kemSK, reply.KyberCT)
	if err != nil {
		return nil, fmt.Errorf("%w: decapsulate: %v", ErrHandshake, err)
	}
	key, err := deriveKey(ecdh, kemSecret)
	if err != nil {
		return nil, err
	}
	return NewSessionCrypto(key)
}

// Dial runs the initiator side of the handshake on rw.
func Dial(rw io.ReadWriter) (*SessionCrypto, error) {
	h, err := NewClientHandshake()
	if err != nil {
		return nil, err
	}
	raw, err := h.Hello().Marshal()
	if err != nil {
		return nil, fmt.Errorf("%w: encode client hello: %v", ErrHandshake, err)
	}
	if _, err := rw.Write(raw); err != nil {
		return nil, fmt.Errorf("%w: write client hello: %v", ErrHandshake, err)
	}

	reply, err := protocol.ReadServerHello(rw, KEMCiphertextSize())
	if err != nil {
		if errors.Is(err, protocol.ErrBadHello) {
			return nil, fmt.Errorf("%w: %w: %v", ErrHandshake, ErrKeySize, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return h.Complete(reply)
}
