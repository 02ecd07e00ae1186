package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
)

func TestSpawnRoundTrip(t *testing.T) {
	plain, err := Encode(OpSpawn, SpawnRequest{Name: "Alice"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// opcode, u32 length, utf-8 bytes
	want := []byte{1, 5, 0, 0, 0, 'A', 'l', 'i', 'c', 'e'}
	if !bytes.Equal(plain, want) {
		t.Fatalf("Expected %v, got %v", want, plain)
	}

	msg, err := DecodeClient(plain)
	if err != nil {
		t.Fatalf("DecodeClient failed: %v", err)
	}
	if msg.Op != OpSpawn || msg.Spawn.Name != "Alice" {
		t.Errorf("Expected spawn Alice, got %+v", msg)
	}
}

func TestMoveWireFormat(t *testing.T) {
	plain, err := Encode(OpMove, MoveRequest{Dir: 1.5})
	if err != nil {
		t.Fatal(err)
	}
	if len(plain) != 5 {
		t.Fatalf("Expected 5 bytes, got %d", len(plain))
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(plain[1:])); got != 1.5 {
		t.Errorf("Expected dir 1.5, got %v", got)
	}
}

func TestDecodeClientErrors(t *testing.T) {
	nan := make([]byte, 5)
	nan[0] = byte(OpMove)
	binary.LittleEndian.PutUint32(nan[1:], math.Float32bits(float32(math.NaN())))

	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{"empty", nil, ErrMalformed},
		{"short move", []byte{byte(OpMove), 0, 0}, ErrMalformed},
		{"nan move", nan, ErrMalformed},
		{"oversized name length", []byte{byte(OpSpawn), 0xff, 0xff, 0xff, 0x7f, 'a'}, ErrMalformed},
		{"truncated name", []byte{byte(OpSpawn), 3, 0, 0, 0, 'a'}, ErrMalformed},
		{"unknown opcode", []byte{99, 1, 2}, ErrUnknownOpcode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeClient(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestStopHasNoPayload(t *testing.T) {
	msg, err := DecodeClient([]byte{byte(OpStop)})
	if err != nil {
		t.Fatalf("DecodeClient failed: %v", err)
	}
	if msg.Op != OpStop {
		t.Errorf("Expected stop, got %d", msg.Op)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Bob ", "Bob"},
		{"", DefaultName},
		{"   ", DefaultName},
		{strings.Repeat("x", 40), strings.Repeat("x", 16)},
		{"ąęśćżźńółąęśćżźńół", "ąęśćżźńółąęśćżźń"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in, 16); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestServerMessages(t *testing.T) {
	weapon := uint8(2)
	p := PlayerTO{ID: 7, Name: "Zed", X: 10, Y: 20, WeaponIndex: &weapon}

	add, err := EncodeAddPlayer(true, p)
	if err != nil {
		t.Fatal(err)
	}
	// opcode, enum variant, is_mine
	if add[0] != byte(OpAddPlayer) || add[1] != 0 || add[2] != 1 {
		t.Fatalf("Unexpected AddPlayer prefix %v", add[:3])
	}

	msg, err := DecodeServer(add)
	if err != nil {
		t.Fatalf("DecodeServer failed: %v", err)
	}
	if !msg.Add.IsMine || msg.Add.Data.ID != 7 || msg.Add.Data.Name != "Zed" {
		t.Errorf("Unexpected AddPlayer %+v", msg.Add)
	}
	if msg.Add.Data.WeaponIndex == nil || *msg.Add.Data.WeaponIndex != 2 {
		t.Errorf("Expected weapon index 2, got %v", msg.Add.Data.WeaponIndex)
	}

	chunk, err := Encode(OpMapChunk, MapChunkData{CX: -1, CY: 3, Tiles: []uint8{0, 1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	msg, err = DecodeServer(chunk)
	if err != nil {
		t.Fatalf("DecodeServer failed: %v", err)
	}
	if msg.Chunk.CX != -1 || msg.Chunk.CY != 3 || !bytes.Equal(msg.Chunk.Tiles, []uint8{0, 1, 2}) {
		t.Errorf("Unexpected chunk %+v", msg.Chunk)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	bodies := [][]byte{[]byte("first"), {}, bytes.Repeat([]byte{9}, 1000)}
	for _, b := range bodies {
		if err := WriteFrame(&buf, b); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}
	for i, want := range bodies {
		got, err := ReadFrame(&buf, 0)
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Frame %d: expected %d bytes, got %d", i, len(want), len(got))
		}
	}
	if _, err := ReadFrame(&buf, 0); !errors.Is(err, io.EOF) {
		t.Errorf("Expected EOF after last frame, got %v", err)
	}
}

func TestFrameTooLarge(t *testing.T) {
	if err := WriteFrame(io.Discard, make([]byte, MaxFrameSize+1)); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Expected ErrFrameTooLarge on write, got %v", err)
	}

	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, 2048)
	if _, err := ReadFrame(bytes.NewReader(header), 1024); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Expected ErrFrameTooLarge on read, got %v", err)
	}
}

func TestReadClientHello(t *testing.T) {
	const keySize = 64

	good := ClientHello{KyberPK: bytes.Repeat([]byte{7}, keySize)}
	good.X25519PK[0] = 42
	raw, err := good.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	hello, err := ReadClientHello(bytes.NewReader(raw), keySize)
	if err != nil {
		t.Fatalf("ReadClientHello failed: %v", err)
	}
	if hello.X25519PK[0] != 42 || !bytes.Equal(hello.KyberPK, good.KyberPK) {
		t.Error("ClientHello fields did not survive the round trip")
	}

	t.Run("undersized key", func(t *testing.T) {
		short := ClientHello{KyberPK: make([]byte, keySize-1)}
		raw, _ := short.Marshal()
		if _, err := ReadClientHello(bytes.NewReader(raw), keySize); !errors.Is(err, ErrBadHello) {
			t.Errorf("Expected ErrBadHello, got %v", err)
		}
	})

	t.Run("oversized key", func(t *testing.T) {
		long := ClientHello{KyberPK: make([]byte, keySize+1)}
		raw, _ := long.Marshal()
		if _, err := ReadClientHello(bytes.NewReader(raw), keySize); !errors.Is(err, ErrBadHello) {
			t.Errorf("Expected ErrBadHello, got %v", err)
		}
	})

	t.Run("truncated stream", func(t *testing.T) {
		if _, err := ReadClientHello(bytes.NewReader(raw[:len(raw)-10]), keySize); !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("Expected ErrUnexpectedEOF, got %v", err)
		}
	})
}
