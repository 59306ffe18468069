package memtcp

import "errors"

var (
	// ErrConnConfigNil indicates that a nil ConnectionConfig was provided.
	ErrConnConfigNil = errors.New("connection config is nil")

	// ErrConnClosed indicates that the connection is closed.
	ErrConnClosed = errors.New("connection closed")

	// ErrAlreadyOpened indicates Open was called on a server or client that is not closed.
	ErrAlreadyOpened = errors.New("already opened")
)

var (
	// ErrFrameTooShort indicates a frame shorter than the fixed header.
	ErrFrameTooShort = errors.New("frame shorter than header")

	// ErrFrameTooLarge indicates a frame length above the configured maximum.
	ErrFrameTooLarge = errors.New("frame length exceeds maximum")

	// ErrFrameDataSize indicates a payload that is neither empty nor exactly size bytes, or a write
	// request without its payload.
	ErrFrameDataSize = errors.New("frame data length does not match size")

	// ErrInvalidType indicates an unknown transaction type in a frame.
	ErrInvalidType = errors.New("invalid transaction type")
)
