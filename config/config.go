// Package config loads runtime settings from TOML.
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/wippyai/tasklet-runtime/errors"
)

// Config is the full runtime configuration.
type Config struct {
	Log       Log       `toml:"log"`
	File      File      `toml:"file"`
	Scheduler Scheduler `toml:"scheduler"`
	Timer     Timer     `toml:"timer"`
	Wasm      Wasm      `toml:"wasm"`
}

// Scheduler controls tick granularity.
type Scheduler struct {
	// Quantum is the instruction budget per tasklet per tick. Zero runs each
	// tasklet until it yields, suspends or completes.
	Quantum  int  `toml:"quantum"`
	StepMode bool `toml:"step_mode"`
}

// Log controls the zap logger.
type Log struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// File controls the file provider.
type File struct {
	Root     string `toml:"root"`
	Encoding string `toml:"encoding"`
	Enabled  bool   `toml:"enabled"`
}

// Timer controls the timer provider.
type Timer struct {
	Enabled bool `toml:"enabled"`
}

// Wasm controls the WebAssembly provider.
type Wasm struct {
	MemoryLimitPages uint32 `toml:"memory_limit_pages"`
	Enabled          bool   `toml:"enabled"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Scheduler: Scheduler{Quantum: 100},
		Log:       Log{Level: "warn"},
		File:      File{Enabled: true, Encoding: "utf-8"},
		Timer:     Timer{Enabled: true},
		Wasm:      Wasm{Enabled: true},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, errors.Config("read "+path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var serr *toml.StrictMissingError
		if stderrors.As(err, &serr) && len(serr.Errors) > 0 {
			first := serr.Errors[0]
			row, col := first.Position()
			return nil, errors.Config(fmt.Sprintf("unknown key %s at line %d column %d", first.Key(), row, col), err)
		}
		var derr *toml.DecodeError
		if stderrors.As(err, &derr) {
			row, col := derr.Position()
			return nil, errors.Config(fmt.Sprintf("decode at line %d column %d", row, col), err)
		}
		return nil, errors.Config("decode", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	if c.Scheduler.Quantum < 0 {
		return errors.Config(fmt.Sprintf("scheduler.quantum must not be negative, got %d", c.Scheduler.Quantum), nil)
	}
	if _, err := c.Log.ZapLevel(); err != nil {
		return err
	}
	if c.File.Enabled {
		if _, err := htmlindex.Get(c.File.Encoding); err != nil {
			return errors.Config("file.encoding "+c.File.Encoding, err)
		}
	}
	return nil
}

// ZapLevel parses the configured level.
func (l Log) ZapLevel() (zapcore.Level, error) {
	if l.Level == "" {
		return zapcore.WarnLevel, nil
	}
	lvl, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return lvl, errors.Config("log.level "+l.Level, err)
	}
	return lvl, nil
}
