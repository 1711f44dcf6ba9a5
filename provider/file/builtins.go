package file

import (
	"context"

	"github.com/wippyai/tasklet-runtime/builtin"
	"github.com/wippyai/tasklet-runtime/errors"
	"github.com/wippyai/tasklet-runtime/resource"
)

// PublishBuiltins adds the stream operations.
func (p *Provider) PublishBuiltins(ns *builtin.Namespace) error {
	funcs := []struct {
		name  string
		arity int
		call  func(context.Context, []any) (any, error)
	}{
		{"readline", 1, p.readline},
		{"read", builtin.Variadic, p.read},
		{"write", 2, p.write},
		{"close", 1, p.close},
		{"fileno", 1, p.fileno},
	}
	for _, f := range funcs {
		if err := ns.AddFunc(f.name, f.arity, f.call); err != nil {
			return err
		}
	}
	return nil
}

func streamArg(op string, args []any) (*Stream, error) {
	if len(args) == 0 {
		return nil, errors.InvalidInput(errors.PhaseRuntime, op+" expects a file")
	}
	s, ok := args[0].(*Stream)
	if !ok {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Path(op).
			Detail("expected a file, got %T", args[0]).
			Build()
	}
	return s, nil
}

func failure(s *Stream, err error) error {
	return errors.NativeFailure(resource.Describe(resource.KindFile, s.Handle()), err)
}

func (p *Provider) readline(_ context.Context, args []any) (any, error) {
	s, err := streamArg("readline", args)
	if err != nil {
		return nil, err
	}
	line, err := s.ReadLine()
	if err != nil {
		return nil, failure(s, err)
	}
	return line, nil
}

func (p *Provider) read(_ context.Context, args []any) (any, error) {
	s, err := streamArg("read", args)
	if err != nil {
		return nil, err
	}
	n := int64(-1)
	switch len(args) {
	case 1:
	case 2:
		v, ok := args[1].(int64)
		if !ok {
			return nil, errors.InvalidInput(errors.PhaseRuntime, "read size must be an integer")
		}
		n = v
	default:
		return nil, errors.InvalidInput(errors.PhaseRuntime, "read expects (file, size)")
	}
	data, err := s.Read(n)
	if err != nil {
		return nil, failure(s, err)
	}
	return data, nil
}

func (p *Provider) write(_ context.Context, args []any) (any, error) {
	s, err := streamArg("write", args)
	if err != nil {
		return nil, err
	}
	data, ok := args[1].(string)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "write expects a string")
	}
	n, err := s.Write(data)
	if err != nil {
		return nil, failure(s, err)
	}
	return int64(n), nil
}

// close closes the stream and releases its handle. Closing an already
// closed stream is a no-op.
func (p *Provider) close(_ context.Context, args []any) (any, error) {
	s, err := streamArg("close", args)
	if err != nil {
		return nil, err
	}
	if s.Closed() {
		return nil, nil
	}
	if err := p.closeStream(s); err != nil {
		return nil, failure(s, err)
	}
	if err := s.Handle().Release(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (p *Provider) fileno(_ context.Context, args []any) (any, error) {
	s, err := streamArg("fileno", args)
	if err != nil {
		return nil, err
	}
	return int64(s.Descriptor()), nil
}
