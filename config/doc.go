// Package config holds host configuration and loads it from HCL files.
//
// A config file sets any subset of the attributes below; the rest keep their
// defaults. Environment variables are available as env.NAME:
//
//	artifact       = "build/app.wasm"
//	reload_dir     = "hotreload"
//	lock_file      = "build/lock.tmp"
//	workers        = 2
//	queue_capacity = 256
//	frame_interval = "16ms"
//	source         = "app.hcl"
//	build_command  = "tinygo build -o {out} -target wasi {source}"
//	log_level      = env.HOTRELOAD_LOG_LEVEL
//
// Relative paths resolve against the directory of the config file.
package config
