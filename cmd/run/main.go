package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/multierr"
	"golang.org/x/term"

	"github.com/wippyai/tasklet-runtime/code"
	"github.com/wippyai/tasklet-runtime/config"
	"github.com/wippyai/tasklet-runtime/runtime"
)

func main() {
	var (
		programFile = flag.String("program", "", "Path to program file (TOML)")
		configFile  = flag.String("config", "", "Path to runtime config (TOML)")
		quantum     = flag.Int("quantum", -1, "Instructions per tasklet per tick (overrides config)")
		step        = flag.Bool("step", false, "Run one instruction per tasklet per tick")
		logLevel    = flag.String("log", "", "Log level (overrides config)")
		list        = flag.Bool("list", false, "List callables and builtins and exit")
		interactive = flag.Bool("i", false, "Interactive stepper with TUI")
	)
	flag.Parse()

	if *programFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -program <file.toml> [-config runtime.toml] [-quantum n] [-step]")
		fmt.Fprintln(os.Stderr, "       run -program <file.toml> -list")
		fmt.Fprintln(os.Stderr, "       run -program <file.toml> -i  (interactive mode)")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configFile, *quantum, *step, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -i needs a terminal")
			os.Exit(1)
		}
		cfg.Scheduler.StepMode = true
		if err := runInteractive(*programFile, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*programFile, cfg, *list); err != nil {
		for _, e := range multierr.Errors(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", e)
		}
		os.Exit(1)
	}
}

func loadConfig(path string, quantum int, step bool, level string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if quantum >= 0 {
		cfg.Scheduler.Quantum = quantum
	}
	if step {
		cfg.Scheduler.StepMode = true
	}
	if level != "" {
		cfg.Log.Level = level
	}
	return cfg, cfg.Validate()
}

func run(programFile string, cfg *config.Config, listOnly bool) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	prog, err := code.LoadProgramFile(programFile)
	if err != nil {
		return err
	}

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, rt.Close())
	}()

	if listOnly {
		fmt.Printf("Program: %s\n", programFile)
		fmt.Printf("Entry: %v\n", prog.Entry)
		fmt.Printf("\nCallables:\n")
		for _, name := range prog.Names() {
			c, _ := prog.Callable(name)
			fmt.Printf("  %s (%d instructions, %d locals)\n", c, len(c.Code), c.Locals)
		}
		fmt.Printf("\nBuiltins:\n")
		for _, name := range rt.Namespace().Names() {
			f, _ := rt.Namespace().Lookup(name)
			kind := "sync"
			if f.IsAsync() {
				kind = "async"
			}
			fmt.Printf("  %s (%s)\n", name, kind)
		}
		return nil
	}

	if _, err := rt.Load(prog); err != nil {
		return err
	}
	return rt.Run(ctx)
}
