package memory

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout     = errors.New("memory: transaction timeout")
	ErrVerify      = errors.New("memory: verify mismatch")
	ErrAddress     = errors.New("memory: address error")
	ErrBusTimeout  = errors.New("memory: bus timeout")
	ErrBusFail     = errors.New("memory: bus fail")
	ErrUnsupported = errors.New("memory: unsupported transaction")
	ErrSize        = errors.New("memory: size error")
	ErrUnknown     = errors.New("memory: unknown error")
)

var (
	// ErrBoundary indicates a bit or byte range outside of a block.
	ErrBoundary = errors.New("memory: range exceeds block boundary")

	// ErrSlaveNil indicates a nil Slave was provided.
	ErrSlaveNil = errors.New("memory: slave is nil")

	// ErrDataRange indicates a payload copy outside of the transaction range.
	ErrDataRange = errors.New("memory: data access outside transaction range")
)

var statusErrors = map[Status]error{
	TimeoutError: ErrTimeout,
	VerifyError:  ErrVerify,
	AddressError: ErrAddress,
	BusTimeout:   ErrBusTimeout,
	BusFail:      ErrBusFail,
	Unsupported:  ErrUnsupported,
	SizeError:    ErrSize,
}

// StatusError is returned when a transaction resolves with a non-success status.
// It matches the per-status sentinel with errors.Is.
type StatusError struct {
	Status  Status
	Address uint64
	Size    uint32
}

func (e *StatusError) Error() string {
	if e.Size == 0 && e.Address == 0 {
		return fmt.Sprintf("memory: %s", e.Status)
	}

	return fmt.Sprintf("memory: %s at address 0x%08x, size %d", e.Status, e.Address, e.Size)
}

func (e *StatusError) Is(target error) bool {
	if sentinel, ok := statusErrors[e.Status]; ok {
		return target == sentinel
	}

	return target == ErrUnknown
}

// StatusOf extracts the Status from an error returned by this package.
// It returns Success for nil and BusFail for foreign errors.
func StatusOf(err error) Status {
	if err == nil {
		return Success
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	for status, sentinel := range statusErrors {
		if errors.Is(err, sentinel) {
			return status
		}
	}

	return BusFail
}
