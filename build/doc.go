// Package build produces application artifacts for the host.
//
// Build compiles a source file and writes the artifact under the build-lock
// marker, so a watching host never loads a half-written file. Rebuilder runs
// Build on the host's work queue whenever the source changes; it is meant to
// be installed as a host frame hook:
//
//	rb := build.NewRebuilder(cfg, build.DemoCompiler{}, q)
//	h := host.New(ld, host.WithQueue(q), host.WithFrameHook(rb.Poll))
//
// Two compilers are provided. CommandCompiler runs an external toolchain.
// DemoCompiler turns a small HCL description into a module that implements
// the entry point contract, which is enough to exercise reloads end to end.
package build
