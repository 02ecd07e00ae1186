package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/near/borsh-go"
)

var (
	// ErrMalformed marks a frame whose payload cannot be decoded. It is fatal
	// to the connection.
	ErrMalformed = errors.New("malformed message")

	// ErrUnknownOpcode marks a well-formed frame with an opcode this server
	// does not handle. It is logged and ignored.
	ErrUnknownOpcode = errors.New("unknown opcode")
)

// DefaultName replaces an empty spawn name.
const DefaultName = "unnamed"

// Encode builds an application plaintext: opcode byte then borsh record.
func Encode(op Opcode, record any) ([]byte, error) {
	body, err := borsh.Serialize(record)
	if err != nil {
		return nil, fmt.Errorf("encode opcode %d: %w", op, err)
	}
	out := make([]byte, 0, 1+len(body))
	out = append(out, byte(op))
	return append(out, body...), nil
}

// ClientMessage is a decoded client plaintext. Exactly one of the payload
// fields is meaningful, selected by Op.
type ClientMessage struct {
	Op    Opcode
	Spawn SpawnRequest
	Move  MoveRequest
}

// DecodeClient parses a client plaintext.
func DecodeClient(plaintext []byte) (ClientMessage, error) {
	if len(plaintext) == 0 {
		return ClientMessage{}, fmt.Errorf("%w: empty plaintext", ErrMalformed)
	}
	msg := ClientMessage{Op: Opcode(plaintext[0])}
	payload := plaintext[1:]

	switch msg.Op {
	case OpSpawn:
		if err := checkStringPrefix(payload); err != nil {
			return msg, err
		}
		if err := deserialize(&msg.Spawn, payload); err != nil {
			return msg, fmt.Errorf("%w: spawn: %v", ErrMalformed, err)
		}
		if !utf8.ValidString(msg.Spawn.Name) {
			return msg, fmt.Errorf("%w: spawn name is not utf-8", ErrMalformed)
		}
	case OpMove:
		if len(payload) < 4 {
			return msg, fmt.Errorf("%w: move payload is %d bytes", ErrMalformed, len(payload))
		}
		if err := deserialize(&msg.Move, payload); err != nil {
			return msg, fmt.Errorf("%w: move: %v", ErrMalformed, err)
		}
		d := float64(msg.Move.Dir)
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return msg, fmt.Errorf("%w: move direction is not finite", ErrMalformed)
		}
	case OpStop:
		// no payload
	default:
		return msg, fmt.Errorf("%w %d", ErrUnknownOpcode, plaintext[0])
	}
	return msg, nil
}

// SanitizeName trims whitespace, caps the name at maxRunes runes and
// substitutes DefaultName for an empty result.
func SanitizeName(name string, maxRunes int) string {
	name = strings.TrimSpace(name)
	if maxRunes > 0 && utf8.RuneCountInString(name) > maxRunes {
		name = string([]rune(name)[:maxRunes])
	}
	if name == "" {
		return DefaultName
	}
	return name
}

// ServerMessage is a decoded server plaintext, used by clients and tests.
type ServerMessage struct {
	Op      Opcode
	Add     AddPlayerData
	Players UpdatePlayerData
	Chunk   MapChunkData
	Animals UpdateAnimalData
	Removed RemovePlayerData
}

// DecodeServer parses a server plaintext.
func DecodeServer(plaintext []byte) (ServerMessage, error) {
	if len(plaintext) == 0 {
		return ServerMessage{}, fmt.Errorf("%w: empty plaintext", ErrMalformed)
	}
	msg := ServerMessage{Op: Opcode(plaintext[0])}
	payload := plaintext[1:]

	var err error
	switch msg.Op {
	case OpAddPlayer:
		var wrapped AddPlayerMessage
		if err = deserialize(&wrapped, payload); err == nil {
			if wrapped.Variant != 0 {
				return msg, fmt.Errorf("%w: add player variant %d", ErrMalformed, wrapped.Variant)
			}
			msg.Add = wrapped.Player
		}
	case OpUpdatePlayers:
		err = deserialize(&msg.Players, payload)
	case OpMapChunk:
		err = deserialize(&msg.Chunk, payload)
	case OpUpdateAnimals:
		err = deserialize(&msg.Animals, payload)
	case OpRemovePlayer:
		err = deserialize(&msg.Removed, payload)
	default:
		return msg, fmt.Errorf("%w %d", ErrUnknownOpcode, plaintext[0])
	}
	if err != nil {
		return msg, fmt.Errorf("%w: %s: %v", ErrMalformed, ServerOpcodeName(msg.Op), err)
	}
	return msg, nil
}

// EncodeAddPlayer wraps a player announcement in its message enum.
func EncodeAddPlayer(isMine bool, p PlayerTO) ([]byte, error) {
	return Encode(OpAddPlayer, AddPlayerMessage{Player: AddPlayerData{IsMine: isMine, Data: p}})
}

// deserialize runs borsh decoding on untrusted bytes, converting a decoder
// panic into an error.
func deserialize(dst any, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	return borsh.Deserialize(dst, payload)
}

// checkStringPrefix rejects a leading borsh string whose declared length
// exceeds the bytes actually present, before the decoder allocates for it.
func checkStringPrefix(payload []byte) error {
	if len(payload) < 4 {
		return fmt.Errorf("%w: truncated length prefix", ErrMalformed)
	}
	if n := binary.LittleEndian.Uint32(payload); uint64(n) > uint64(len(payload)-4) {
		return fmt.Errorf("%w: string length %d exceeds payload", ErrMalformed, n)
	}
	return nil
}
