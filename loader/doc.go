// Package loader turns the application artifact on disk into a module
// Descriptor.
//
// Each load copies the artifact to a versioned file in the reload directory
// and loads the copy, so the build can overwrite the artifact while older
// versions are still running:
//
//	app.wasm  ──copy──▶  hotreload/app_0.wasm  (active)
//	                     hotreload/app_1.wasm  (retired, deleted at reset)
//
// While the build-lock marker exists the artifact is treated as half written
// and Load reports errors.KindLocked without touching the disk.
//
// Static serves a Go-native module.Funcs for runs without reloading.
package loader
