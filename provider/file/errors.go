package file

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
)

// Code classifies a file operation failure.
type Code uint8

const (
	CodeIO Code = iota
	CodeNotFound
	CodeAccess
	CodeExist
	CodeIsDirectory
	CodeNotDirectory
	CodeInvalid
	CodeClosed
	CodeReadOnly
)

func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "not_found"
	case CodeAccess:
		return "access"
	case CodeExist:
		return "exist"
	case CodeIsDirectory:
		return "is_directory"
	case CodeNotDirectory:
		return "not_directory"
	case CodeInvalid:
		return "invalid"
	case CodeClosed:
		return "closed"
	case CodeReadOnly:
		return "read_only"
	}
	return "io"
}

// Error is a file operation failure with a portable code.
type Error struct {
	Err  error
	Op   string
	Path string
	Code Code
}

func (e *Error) Error() string {
	msg := e.Op + " " + e.Path + ": " + e.Code.String()
	if e.Err != nil {
		msg += " (" + e.Err.Error() + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code Code, op, path string, err error) *Error {
	return &Error{Code: code, Op: op, Path: path, Err: err}
}

func mapOSError(op, path string, err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, fs.ErrNotExist) {
		return newError(CodeNotFound, op, path, err)
	}
	if errors.Is(err, fs.ErrPermission) {
		return newError(CodeAccess, op, path, err)
	}
	if errors.Is(err, fs.ErrExist) {
		return newError(CodeExist, op, path, err)
	}
	if errors.Is(err, os.ErrClosed) {
		return newError(CodeClosed, op, path, err)
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return newError(mapErrno(errno), op, path, err)
	}
	return newError(CodeIO, op, path, err)
}

func mapErrno(errno syscall.Errno) Code {
	switch errno {
	case syscall.EACCES, syscall.EPERM:
		return CodeAccess
	case syscall.ENOENT:
		return CodeNotFound
	case syscall.EEXIST:
		return CodeExist
	case syscall.EISDIR:
		return CodeIsDirectory
	case syscall.ENOTDIR:
		return CodeNotDirectory
	case syscall.EROFS:
		return CodeReadOnly
	case syscall.EINVAL:
		return CodeInvalid
	}
	return CodeIO
}
