package module

import (
	"encoding/binary"

	hotreload "github.com/wippyai/wasm-hotreload"
	"github.com/wippyai/wasm-hotreload/errors"
)

var (
	_ hotreload.TypedMemory = (*State)(nil)
	_ hotreload.MemorySizer = (*State)(nil)
)

// State is the host-owned application state blob.
//
// Only the active module interprets its bytes. The host allocates it zeroed,
// keeps it untouched across incremental reloads and replaces it on a full
// reset.
type State struct {
	buf []byte
}

// NewState allocates a zeroed State of size bytes.
func NewState(size uint32) *State {
	return &State{buf: make([]byte, size)}
}

// Bytes returns the backing storage. The slice is only valid until Free.
func (s *State) Bytes() []byte {
	return s.buf
}

// Len returns the state size in bytes.
func (s *State) Len() int {
	return len(s.buf)
}

// Size implements hotreload.MemorySizer.
func (s *State) Size() uint32 {
	return uint32(len(s.buf))
}

// Free drops the backing storage. A freed State has zero length.
func (s *State) Free() {
	s.buf = nil
}

// Zero clears every byte.
func (s *State) Zero() {
	clear(s.buf)
}

func (s *State) span(offset, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(s.buf)) {
		return nil, errors.OutOfBounds(errors.PhaseRuntime, offset, length, uint32(len(s.buf)))
	}
	return s.buf[offset:end], nil
}

// Read returns a copy of length bytes at offset.
func (s *State) Read(offset uint32, length uint32) ([]byte, error) {
	b, err := s.span(offset, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, b)
	return out, nil
}

// Write copies data to offset.
func (s *State) Write(offset uint32, data []byte) error {
	b, err := s.span(offset, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

func (s *State) ReadU8(offset uint32) (uint8, error) {
	b, err := s.span(offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s *State) ReadU16(offset uint32) (uint16, error) {
	b, err := s.span(offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (s *State) ReadU32(offset uint32) (uint32, error) {
	b, err := s.span(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (s *State) ReadU64(offset uint32) (uint64, error) {
	b, err := s.span(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (s *State) WriteU8(offset uint32, value uint8) error {
	b, err := s.span(offset, 1)
	if err != nil {
		return err
	}
	b[0] = value
	return nil
}

func (s *State) WriteU16(offset uint32, value uint16) error {
	b, err := s.span(offset, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, value)
	return nil
}

func (s *State) WriteU32(offset uint32, value uint32) error {
	b, err := s.span(offset, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, value)
	return nil
}

func (s *State) WriteU64(offset uint32, value uint64) error {
	b, err := s.span(offset, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, value)
	return nil
}
