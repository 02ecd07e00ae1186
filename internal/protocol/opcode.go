// Package protocol defines the application wire format: a one-byte opcode
// followed by a borsh-encoded record, carried inside length-prefixed
// encrypted frames after the session handshake.
package protocol

import "fmt"

// Opcode is the first byte of every application plaintext.
// Values are shared between directions; the direction disambiguates.
type Opcode uint8

const (
	OpSpawn         Opcode = 1 // client -> server
	OpAddPlayer     Opcode = 1 // server -> client
	OpMove          Opcode = 2 // client -> server
	OpUpdatePlayers Opcode = 3 // server -> client
	OpMapChunk      Opcode = 4 // server -> client
	OpStop          Opcode = 5 // client -> server
	OpUpdateAnimals Opcode = 6 // server -> client
	OpRemovePlayer  Opcode = 7 // server -> client
)

// ClientOpcodeName names an opcode as received from a client.
func ClientOpcodeName(op Opcode) string {
	switch op {
	case OpSpawn:
		return "spawn"
	case OpMove:
		return "move"
	case OpStop:
		return "stop"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(op))
	}
}

// ServerOpcodeName names an opcode as sent by the server.
func ServerOpcodeName(op Opcode) string {
	switch op {
	case OpAddPlayer:
		return "add_player"
	case OpUpdatePlayers:
		return "update_players"
	case OpMapChunk:
		return "map_chunk"
	case OpUpdateAnimals:
		return "update_animals"
	case OpRemovePlayer:
		return "remove_player"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(op))
	}
}
