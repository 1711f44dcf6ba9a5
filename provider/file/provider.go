// Package file provides the file capability: open(name, mode) produces a
// Stream, and readline, read, write, close and fileno operate on it.
package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/wippyai/tasklet-runtime/errors"
	"github.com/wippyai/tasklet-runtime/future"
	"github.com/wippyai/tasklet-runtime/resource"
)

// DefaultEncoding is the text encoding used when none is configured.
const DefaultEncoding = "utf-8"

// Provider opens files for interpreted code.
type Provider struct {
	root    *os.Root
	enc     encoding.Encoding
	logger  *zap.Logger
	streams map[uint64]*Stream
	rootDir string
	encName string
	mu      sync.Mutex
	closed  bool
}

// Option configures a Provider.
type Option func(*Provider)

// WithRoot confines every open to dir. Paths that leave dir are refused.
func WithRoot(dir string) Option {
	return func(p *Provider) { p.rootDir = dir }
}

// WithEncoding sets the text encoding by its WHATWG label, e.g. "utf-8",
// "latin1", "shift_jis".
func WithEncoding(name string) Option {
	return func(p *Provider) { p.encName = name }
}

// WithLogger sets the provider logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a file provider.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		logger:  zap.NewNop(),
		streams: make(map[uint64]*Stream),
		encName: DefaultEncoding,
	}
	for _, opt := range opts {
		opt(p)
	}

	enc, err := htmlindex.Get(p.encName)
	if err != nil {
		return nil, errors.Config("unknown file encoding "+p.encName, err)
	}
	p.enc = enc

	if p.rootDir != "" {
		root, err := os.OpenRoot(p.rootDir)
		if err != nil {
			return nil, errors.Config("open file root "+p.rootDir, err)
		}
		p.root = root
	}
	return p, nil
}

// Acquire opens args[0] with mode args[1] (default "r") on its own goroutine.
func (p *Provider) Acquire(ctx context.Context, h resource.Handle, args []any) *future.Future {
	name, modeText, err := openArgs(args)
	if err != nil {
		return future.Failed(err)
	}
	return future.Go(ctx, func(ctx context.Context) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return p.open(h, name, modeText)
	})
}

func openArgs(args []any) (string, string, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", "", newError(CodeInvalid, "open", "", errors.InvalidInput(errors.PhaseAcquire, "open expects (name, mode)"))
	}
	name, ok := args[0].(string)
	if !ok || name == "" {
		return "", "", newError(CodeInvalid, "open", "", errors.InvalidInput(errors.PhaseAcquire, "file name must be a non-empty string"))
	}
	modeText := "r"
	if len(args) == 2 {
		if modeText, ok = args[1].(string); !ok {
			return "", "", newError(CodeInvalid, "open", name, errors.InvalidInput(errors.PhaseAcquire, "mode must be a string"))
		}
	}
	return name, modeText, nil
}

func (p *Provider) open(h resource.Handle, name, modeText string) (*Stream, error) {
	m, err := parseMode(modeText)
	if err != nil {
		return nil, err
	}

	f, err := p.openFile(name, m.flag)
	if err != nil {
		return nil, mapOSError("open", name, err)
	}
	info, err := f.Stat()
	if err == nil && info.IsDir() {
		_ = f.Close()
		return nil, newError(CodeIsDirectory, "open", name, nil)
	}

	s := newStream(h, f, name, m, p.enc)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = f.Close()
		return nil, newError(CodeClosed, "open", name, nil)
	}
	p.streams[h.Descriptor()] = s
	p.mu.Unlock()

	p.logger.Debug("file opened",
		zap.String("name", name),
		zap.String("mode", modeText),
		zap.Uint64("descriptor", h.Descriptor()))
	return s, nil
}

func (p *Provider) openFile(name string, flag int) (*os.File, error) {
	if p.root == nil {
		return os.OpenFile(name, flag, 0o644)
	}
	if !filepath.IsLocal(name) {
		return nil, newError(CodeAccess, "open", name, os.ErrPermission)
	}
	return p.root.OpenFile(name, flag, 0o644)
}

// closeStream closes s and stops tracking it.
func (p *Provider) closeStream(s *Stream) error {
	p.mu.Lock()
	delete(p.streams, s.Descriptor())
	p.mu.Unlock()
	return s.Close()
}

// Open returns the number of streams not yet closed.
func (p *Provider) Open() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.streams)
}

// Close closes every stream still open and the sandbox root.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	streams := p.streams
	p.streams = make(map[uint64]*Stream)
	p.mu.Unlock()

	var err error
	for _, s := range streams {
		err = multierr.Append(err, s.Close())
	}
	if p.root != nil {
		err = multierr.Append(err, p.root.Close())
	}
	if len(streams) > 0 {
		p.logger.Debug("closed open files", zap.Int("count", len(streams)))
	}
	return err
}
