package session

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/kyber/kyber768"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/nx0ly/moomoo2/internal/protocol"
)

// KDFInfo is the HKDF info string both sides use.
const KDFInfo = "mumu"

var (
	// ErrHandshake wraps every handshake failure.
	ErrHandshake = errors.New("handshake failed")

	// ErrKeySize is returned when a peer's key material has the wrong length.
	ErrKeySize = errors.New("bad key size")
)

var kemScheme kem.Scheme = kyber768.Scheme()

// KEMPublicKeySize is the Kyber-768 encapsulation key length.
func KEMPublicKeySize() int { return kemScheme.PublicKeySize() }

// KEMCiphertextSize is the Kyber-768 ciphertext length.
func KEMCiphertextSize() int { return kemScheme.CiphertextSize() }

// Accept runs the responder side of the handshake on rw: read ClientHello,
// answer with ServerHello, and return the keyed session. Ephemeral secrets
// never leave this function.
func Accept(rw io.ReadWriter) (*SessionCrypto, error) {
	hello, err := protocol.ReadClientHello(rw, KEMPublicKeySize())
	if err != nil {
		if errors.Is(err, protocol.ErrBadHello) {
			return nil, fmt.Errorf("%w: %w: %v", ErrHandshake, ErrKeySize, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	reply, key, err := respond(hello)
	if err != nil {
		return nil, err
	}

	raw, err := reply.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%w: encode server hello: %v", ErrHandshake, err)
	}
	if _, err := rw.Write(raw); err != nil {
		return nil, fmt.Errorf("%w: write server hello: %v", ErrHandshake, err)
	}

	return NewSessionCrypto(key)
}

// respond computes the ServerHello and session key for a ClientHello.
func respond(hello protocol.ClientHello) (protocol.ServerHello, []byte, error) {
	var reply protocol.ServerHello

	if len(hello.KyberPK) != KEMPublicKeySize() {
		return reply, nil, fmt.Errorf("%w: %w: kyber key is %d bytes", ErrHandshake, ErrKeySize, len(hello.KyberPK))
	}
	kemPK, err := kemScheme.UnmarshalBinaryPublicKey(hello.KyberPK)
	if err != nil {
		return reply, nil, fmt.Errorf("%w: kyber key: %v", ErrHandshake, err)
	}

	var scalar [curve25519.ScalarSize]byte
	if _, err := rand.Read(scalar[:]); err != nil {
		return reply, nil, fmt.Errorf("%w: entropy: %v", ErrHandshake, err)
	}
	pub, err := curve25519.X25519(scalar[:], curve25519.Basepoint)
	if err != nil {
		return reply, nil, fmt.Errorf("%w: x25519 keygen: %v", ErrHandshake, err)
	}
	ecdh, err := curve25519.X25519(scalar[:], hello.X25519PK[:])
	if err != nil {
		// low-order client point
		return reply, nil, fmt.Errorf("%w: x25519: %v", ErrHandshake, err)
	}

	ct, kemSecret, err := kemScheme.Encapsulate(kemPK)
	if err != nil {
		return reply, nil, fmt.Errorf("%w: encapsulate: %v", ErrHandshake, err)
	}

	key, err := deriveKey(ecdh, kemSecret)
	if err != nil {
		return reply, nil, err
	}

	copy(reply.X25519PK[:], pub)
	reply.KyberCT = ct
	return reply, key, nil
}

// deriveKey runs HKDF-SHA256 over ecdh || kem with no salt.
func deriveKey(ecdh, kemSecret []byte) ([]byte, error) {
	ikm := make([]byte, 0, len(ecdh)+len(kemSecret))
	ikm = append(ikm, ecdh...)
	ikm = append(ikm, kemSecret...)

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, nil, []byte(KDFInfo)), key); err != nil {
		return nil, fmt.Errorf("%w: hkdf: %v", ErrHandshake, err)
	}
	return key, nil
}
