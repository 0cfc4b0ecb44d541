package engine

import (
	"github.com/tetratelabs/wazero/api"

	hotreload "github.com/wippyai/wasm-hotreload"
	"github.com/wippyai/wasm-hotreload/errors"
)

// WazeroMemory wraps wazero memory to implement hotreload.Memory. The host
// only moves the state window through it; env host functions read guest
// memory through wazero directly.
type WazeroMemory struct {
	mem api.Memory
}

func (m *WazeroMemory) oob(offset, length uint32) error {
	return errors.OutOfBounds(errors.PhaseRuntime, offset, length, m.Size())
}

// Read returns a copy of length bytes at offset.
func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, m.oob(offset, length)
	}
	out := make([]byte, length)
	copy(out, data)
	return out, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return m.oob(offset, uint32(len(data)))
	}
	return nil
}

func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// Compile-time check that WazeroMemory implements hotreload.Memory and MemorySizer
var _ hotreload.Memory = (*WazeroMemory)(nil)
var _ hotreload.MemorySizer = (*WazeroMemory)(nil)
