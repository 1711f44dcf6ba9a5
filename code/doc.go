// Package code defines the compiled form consumed by the tasklet interpreter.
//
// A Callable is a flat instruction list over a value stack, with a constant
// pool, a builtin name table, and a fixed number of local slots. Callables are
// produced by a compiler outside this module, assembled in Go with Builder, or
// loaded from a TOML program file with LoadProgram.
//
//	main := code.NewBuilder("main", 0).
//		LoadBuiltin("open").
//		LoadConst("data.txt").
//		LoadConst("r").
//		Call(2).
//		Op(code.OpReturn).
//		MustBuild()
//
// Disassemble renders instructions with a cursor for debuggers.
package code
