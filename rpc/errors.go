package rpc

import "errors"

var (
	ErrRootNil          = errors.New("rpc: root is nil")
	ErrUnsupportedAttr  = errors.New("rpc: attribute not supported by node")
	ErrMissingArgument  = errors.New("rpc: missing argument")
	ErrNodeNotFound     = errors.New("rpc: node not found")
	ErrAlreadyOpened    = errors.New("rpc: server already opened")
	ErrClientClosed     = errors.New("rpc: client closed")
	ErrResponseTooLarge = errors.New("rpc: response exceeds max line size")
)

// RemoteError is an error reported by the server.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "rpc: remote error: " + e.Message
}
