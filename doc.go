// Package taskletruntime runs many lightweight interpreted tasklets on one
// goroutine while native resource operations proceed concurrently.
//
// A tasklet is a call stack of interpreted frames. When it calls an async
// builtin such as open or sleep it suspends, and the scheduler runs other
// tasklets until the native future settles. The result is then injected at
// the suspended call site as if the call had returned normally; a failure is
// raised there instead.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	taskletruntime/
//	├── runtime/         Wires config, logger, namespace, registry and scheduler
//	├── scheduler/       Round-robin tick loop over tasklets
//	├── tasklet/         Interpreter: frames, data stack, suspension, unwinding
//	├── code/            Callables, opcodes, builder, program loader, disassembler
//	├── builtin/         Global namespace of native functions
//	├── future/          Single-assignment result of a native operation
//	├── resource/        Handle registry and the Provider interface
//	├── provider/file/   open, readline, read, write, close, fileno
//	├── provider/timer/  sleep
//	├── provider/wasm/   load_wasm, wasm_exports, wasm_call, wasm_close
//	├── config/          TOML configuration
//	├── errors/          Structured error types
//	└── cmd/run/         Command line runner and interactive stepper
//
// # Quick Start
//
//	rt, err := runtime.New(ctx, config.Default())
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	main := code.NewBuilder("main", 0).
//	    LoadBuiltin("sleep").LoadConst(0.1).Call(1).
//	    Op(code.OpReturn).
//	    MustBuild()
//	receipt, _ := rt.Schedule(main)
//
//	if err := rt.Run(ctx); err != nil {
//	    return err
//	}
//	elapsed, _ := receipt.Result()
//
// # Handles
//
// Every native resource is tracked by a resource.Handle. Descriptors are
// issued from 1 and never reused within a registry. Providers own the
// resources; the registry only tracks them and sweeps the survivors when the
// runtime closes.
package taskletruntime
