package tree

import "errors"

var (
	// ErrNodeNotFound indicates that no node exists at a path.
	ErrNodeNotFound = errors.New("node not found")

	// ErrReadOnly indicates a write to a read-only variable.
	ErrReadOnly = errors.New("variable is read-only")

	// ErrInvalidValue indicates a value that can't be converted to the base of a variable or
	// command, or is outside its range.
	ErrInvalidValue = errors.New("invalid value")

	// ErrNotVariable indicates a variable operation on another kind of node.
	ErrNotVariable = errors.New("node is not a variable")

	// ErrNotCommand indicates a command operation on another kind of node.
	ErrNotCommand = errors.New("node is not a command")

	// ErrDuplicateNode indicates a child name already used in a device.
	ErrDuplicateNode = errors.New("duplicate node name")

	// ErrInvalidName indicates an empty node name or one containing a dot.
	ErrInvalidName = errors.New("invalid node name")

	// ErrNoSlave indicates a memory-backed variable in a device tree without a memory slave.
	ErrNoSlave = errors.New("no memory slave for memory-backed variable")

	// ErrRootStarted indicates Start on a root that is already running.
	ErrRootStarted = errors.New("root already started")
)
