// Package runtime assembles a scheduler, a builtin namespace and a resource
// registry with its providers from a configuration.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	prog, err := code.LoadProgramFile("main.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := rt.Load(prog); err != nil {
//	    log.Fatal(err)
//	}
//	if err := rt.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Providers
//
// Each enabled section of the configuration installs a provider:
//
//	[file]   open(name, mode)  readline read write close fileno
//	[timer]  sleep(seconds)
//	[wasm]   load_wasm(path)   wasm_exports wasm_call wasm_close
//
// A disabled kind keeps its acquisition builtin; calling it fails with a
// missing provider error. WithProvider replaces a configured provider, which
// is how tests install stubs.
//
// # Teardown
//
// Close shuts the dependency container down. The registry releases every
// handle still active and closes providers, which close their open files,
// reject pending timers and free compiled modules.
package runtime
