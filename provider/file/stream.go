package file

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/wippyai/tasklet-runtime/resource"
)

// Stream is an open file as seen by interpreted code.
type Stream struct {
	file   *os.File
	reader *bufio.Reader
	enc    encoding.Encoding
	name   string
	mode   mode
	handle resource.Handle
	mu     sync.Mutex
	closed bool
}

func newStream(h resource.Handle, f *os.File, name string, m mode, enc encoding.Encoding) *Stream {
	s := &Stream{
		file:   f,
		name:   name,
		mode:   m,
		handle: h,
		enc:    enc,
	}
	if m.read {
		var r io.Reader = f
		if !m.binary && enc != nil {
			r = transform.NewReader(f, enc.NewDecoder())
		}
		s.reader = bufio.NewReader(r)
	}
	return s
}

// Handle returns the registry handle the stream was acquired under.
func (s *Stream) Handle() resource.Handle { return s.handle }

// Descriptor returns the handle descriptor.
func (s *Stream) Descriptor() uint64 { return s.handle.Descriptor() }

// Name returns the path the stream was opened with.
func (s *Stream) Name() string { return s.name }

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) String() string {
	return fmt.Sprintf("<file %s mode=%q fd=%d>", s.name, s.mode.text, s.handle.Descriptor())
}

// ReadLine reads through the next newline, which is kept. It returns "" at
// end of file.
func (s *Stream) ReadLine() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readable("readline"); err != nil {
		return "", err
	}
	line, err := s.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", mapOSError("readline", s.name, err)
	}
	return line, nil
}

// Read reads up to n bytes, or the rest of the file when n is negative.
// The result grows with the data actually read, so n only bounds it.
func (s *Stream) Read(n int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readable("read"); err != nil {
		return "", err
	}

	var src io.Reader = s.reader
	if n >= 0 {
		src = io.LimitReader(s.reader, n)
	}
	var b strings.Builder
	if _, err := io.Copy(&b, src); err != nil {
		return "", mapOSError("read", s.name, err)
	}
	return b.String(), nil
}

// Write writes data, encoding it in text mode. It returns the number of
// characters written.
func (s *Stream) Write(data string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, newError(CodeClosed, "write", s.name, nil)
	}
	if !s.mode.write {
		return 0, newError(CodeInvalid, "write", s.name, fmt.Errorf("not writable in mode %q", s.mode.text))
	}

	out := data
	if !s.mode.binary && s.enc != nil {
		encoded, err := s.enc.NewEncoder().String(data)
		if err != nil {
			return 0, newError(CodeInvalid, "write", s.name, err)
		}
		out = encoded
	}
	if _, err := io.WriteString(s.file, out); err != nil {
		return 0, mapOSError("write", s.name, err)
	}
	return len([]rune(data)), nil
}

// Close closes the underlying file. Closing twice is a no-op.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.file.Close(); err != nil {
		return mapOSError("close", s.name, err)
	}
	return nil
}

func (s *Stream) readable(op string) error {
	if s.closed {
		return newError(CodeClosed, op, s.name, nil)
	}
	if s.reader == nil {
		return newError(CodeInvalid, op, s.name, fmt.Errorf("not readable in mode %q", s.mode.text))
	}
	return nil
}
