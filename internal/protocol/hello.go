package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/near/borsh-go"
)

// X25519KeySize is the size of an X25519 public key.
const X25519KeySize = 32

// ErrBadHello is returned for a handshake record with a wrong-sized field.
var ErrBadHello = errors.New("bad hello")

// ClientHello opens the handshake: the client's X25519 public key and its
// Kyber-768 encapsulation key.
type ClientHello struct {
	X25519PK [X25519KeySize]byte
	KyberPK  []byte
}

// ServerHello answers it with the server's ephemeral X25519 public key and
// the Kyber-768 ciphertext encapsulated to the client's key.
type ServerHello struct {
	X25519PK [X25519KeySize]byte
	KyberCT  []byte
}

// Marshal encodes the record as borsh.
func (h ClientHello) Marshal() ([]byte, error) { return borsh.Serialize(h) }

// Marshal encodes the record as borsh.
func (h ServerHello) Marshal() ([]byte, error) { return borsh.Serialize(h) }

// ReadClientHello reads a ClientHello from the stream, rejecting any key that
// is not exactly kyberSize bytes before reading it.
func ReadClientHello(r io.Reader, kyberSize int) (ClientHello, error) {
	var hello ClientHello
	raw, err := readHello(r, kyberSize)
	if err != nil {
		return hello, fmt.Errorf("client hello: %w", err)
	}
	if err := deserialize(&hello, raw); err != nil {
		return hello, fmt.Errorf("client hello: %w: %v", ErrBadHello, err)
	}
	return hello, nil
}

// ReadServerHello reads a ServerHello whose ciphertext must be exactly
// ctSize bytes.
func ReadServerHello(r io.Reader, ctSize int) (ServerHello, error) {
	var hello ServerHello
	raw, err := readHello(r, ctSize)
	if err != nil {
		return hello, fmt.Errorf("server hello: %w", err)
	}
	if err := deserialize(&hello, raw); err != nil {
		return hello, fmt.Errorf("server hello: %w: %v", ErrBadHello, err)
	}
	return hello, nil
}

// readHello pulls the fixed key, the u32 length and the variable field off
// the stream and returns the whole record.
func readHello(r io.Reader, want int) ([]byte, error) {
	head := make([]byte, X25519KeySize+4)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	n := binary.LittleEndian.Uint32(head[X25519KeySize:])
	if uint64(n) != uint64(want) {
		return nil, fmt.Errorf("%w: field is %d bytes, want %d", ErrBadHello, n, want)
	}

	raw := make([]byte, len(head)+want)
	copy(raw, head)
	if _, err := io.ReadFull(r, raw[len(head):]); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return raw, nil
}
