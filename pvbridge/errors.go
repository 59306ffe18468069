package pvbridge

import "errors"

var (
	ErrRootNil        = errors.New("pvbridge: root is nil")
	ErrInvalidBase    = errors.New("pvbridge: invalid base name")
	ErrUnknownPV      = errors.New("pvbridge: unknown pv")
	ErrReadOnlyPV     = errors.New("pvbridge: pv is read-only")
	ErrNotStarted     = errors.New("pvbridge: server not started")
	ErrAlreadyStarted = errors.New("pvbridge: server already started")
	ErrDuplicatePV    = errors.New("pvbridge: duplicate pv name")
)
