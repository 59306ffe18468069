package memory

import "fmt"

// Type is the direction of a transaction.
type Type uint8

const (
	// Read fetches size bytes from the slave.
	Read Type = 1
	// Write stores size bytes and the master waits for completion.
	Write Type = 2
	// Post stores size bytes without the master waiting for completion.
	Post Type = 3
	// Verify reads back data to compare it against what was written.
	Verify Type = 4
)

// IsWrite returns true for Write and Post.
func (t Type) IsWrite() bool {
	return t == Write || t == Post
}

func (t Type) String() string {
	switch t {
	case Read:
		return "read"
	case Write:
		return "write"
	case Post:
		return "post"
	case Verify:
		return "verify"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Status is the outcome code of a resolved transaction.
type Status uint32

const (
	Success      Status = 0
	TimeoutError Status = 0x01000000
	VerifyError  Status = 0x02000000
	AddressError Status = 0x03000000
	BusTimeout   Status = 0x04000000
	BusFail      Status = 0x05000000
	Unsupported  Status = 0x06000000
	SizeError    Status = 0x07000000
)

var statusNames = map[Status]string{
	Success:      "success",
	TimeoutError: "timeout error",
	VerifyError:  "verify error",
	AddressError: "address error",
	BusTimeout:   "bus timeout",
	BusFail:      "bus fail",
	Unsupported:  "unsupported",
	SizeError:    "size error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return fmt.Sprintf("status(0x%08x)", uint32(s))
}

// Err returns nil for Success and a *StatusError otherwise.
func (s Status) Err() error {
	if s == Success {
		return nil
	}

	return &StatusError{Status: s}
}
