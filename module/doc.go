// Package module defines the contract between the host and a hot-reloadable
// application module.
//
// An application is a function table of six entry points (API) operating on a
// single host-owned byte region (State). A loaded module is wrapped in a
// Descriptor that records where it came from and which version it is; retired
// Descriptors wait in a RetirementList until the host reaches a point where no
// captured entry point can still be running.
//
// Go-native applications build an API from plain functions:
//
//	api, err := module.FromFuncs(module.Funcs{
//	    MemorySize:    func() uint32 { return 64 },
//	    InitAll:       func(s *module.State) bool { return true },
//	    InitPartial:   func(s *module.State) {},
//	    DeInitAll:     func(s *module.State) {},
//	    DeInitPartial: func(s *module.State) {},
//	    MainLoop:      func(s *module.State) bool { return false },
//	})
//
// WebAssembly applications are loaded through the engine and loader packages
// and satisfy the same API.
package module
