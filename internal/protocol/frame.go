package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// FrameHeaderSize is the u32 little-endian length prefix.
	FrameHeaderSize = 4

	// MaxFrameSize caps one encrypted frame body.
	MaxFrameSize = 64 * 1024
)

// ErrFrameTooLarge is returned when a frame exceeds the configured cap.
var ErrFrameTooLarge = errors.New("frame too large")

// WriteFrame writes body behind its length prefix in a single Write so that
// concurrent writers on different streams never see a split header.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(body), MaxFrameSize)
	}

	buf := make([]byte, FrameHeaderSize+len(body))
	binary.LittleEndian.PutUint32(buf[:FrameHeaderSize], uint32(len(body)))
	copy(buf[FrameHeaderSize:], body)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame. max <= 0 means MaxFrameSize.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	if max <= 0 || max > MaxFrameSize {
		max = MaxFrameSize
	}

	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	length := binary.LittleEndian.Uint32(header[:])
	if uint64(length) > uint64(max) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, max)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return body, nil
}
