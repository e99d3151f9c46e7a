package types

import "errors"

// Error kinds from §7. Components return these directly or wrap them with
// fmt.Errorf("...: %w", ...) so callers can still errors.Is/errors.As them.
var (
	ErrCorruptHeader    = errors.New("corrupt batch header")
	ErrCorruptBody      = errors.New("corrupt batch body")
	ErrUnsupportedMagic = errors.New("unsupported batch magic")
	ErrShortRead        = errors.New("short read")
	ErrUnexpectedEOF    = errors.New("unexpected end of segment")
	ErrIOFailure        = errors.New("io failure")
	ErrOutOfRange        = errors.New("offset out of range")
	ErrAborted          = errors.New("operation aborted")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrAlreadyClosed    = errors.New("already closed")
)
