package engine

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
)

const (
	wasiModuleName = "wasi_snapshot_preview1"
	envModuleName  = "env"

	// maxLogLen bounds a single env.log message.
	maxLogLen = 64 * 1024
)

// InstantiateWASI instantiates WASI preview1 so modules built by standard
// toolchains (which import fd_write, clock_time_get and friends) can load.
func InstantiateWASI(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(wasiModuleName)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)
	return builder.Instantiate(ctx)
}

// instantiateEnv provides the host functions application modules may import:
//
//	env.log(ptr, len i32)   write a UTF-8 message from guest memory
//	env.now_ms() -> i64     wall clock in Unix milliseconds
func instantiateEnv(ctx context.Context, r wazero.Runtime, sink func(module, message string)) (api.Module, error) {
	builder := r.NewHostModuleBuilder(envModuleName)

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, mod api.Module, stack []uint64) {
			ptr := api.DecodeU32(stack[0])
			n := api.DecodeU32(stack[1])
			if n > maxLogLen {
				n = maxLogLen
			}
			data, ok := mod.Memory().Read(ptr, n)
			if !ok {
				Logger().Warn("env.log out of bounds",
					zapName(mod.Name()),
					zap.Uint32("ptr", ptr),
					zap.Uint32("len", n))
				return
			}
			msg := string(data)
			Logger().Info(msg, zapName(mod.Name()))
			if sink != nil {
				sink(mod.Name(), msg)
			}
		}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, nil).
		WithParameterNames("ptr", "len").
		Export("log")

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = uint64(time.Now().UnixMilli())
		}), nil, []api.ValueType{api.ValueTypeI64}).
		Export("now_ms")

	return builder.Instantiate(ctx)
}

func zapName(name string) zap.Field {
	return zap.String("module", name)
}

func zapPath(path string) zap.Field {
	return zap.String("path", path)
}
