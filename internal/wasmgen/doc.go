// Package wasmgen writes small WebAssembly core modules.
//
// App produces modules that implement the host's six-entry-point contract
// over a fixed State layout, which the demo compiler and tests load through
// the wazero engine.
package wasmgen
