package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Transaction is a single addressed read or write request directed at a Slave.
//
// A transaction is resolved exactly once. The first call to Done records the status and wakes
// every waiter; later calls are ignored and report false.
type Transaction struct {
	id      uint32
	address uint64
	size    uint32
	typ     Type

	mu   sync.Mutex
	data []byte

	resolved atomic.Bool
	status   atomic.Uint32
	done     chan struct{}
}

// NewTransaction creates a transaction with a generated ID.
//
// For Write and Post, data is the payload: it is copied into a buffer of exactly size bytes,
// zero padded when shorter. For other types data is ignored and the buffer is allocated when the
// slave stores the result.
func NewTransaction(typ Type, address uint64, size uint32, data []byte) *Transaction {
	return NewTransactionWithID(GenerateTransactionID(), typ, address, size, data)
}

// NewTransactionWithID is like NewTransaction with an explicit ID, used by bridges that carry the
// remote master's ID.
func NewTransactionWithID(id uint32, typ Type, address uint64, size uint32, data []byte) *Transaction {
	tx := &Transaction{
		id:      id,
		address: address,
		size:    size,
		typ:     typ,
		done:    make(chan struct{}),
	}

	if typ.IsWrite() {
		tx.data = make([]byte, size)
		copy(tx.data, data)
	}

	return tx
}

// ID returns the transaction ID.
func (tx *Transaction) ID() uint32 { return tx.id }

// Address returns the start address.
func (tx *Transaction) Address() uint64 { return tx.address }

// Size returns the size in bytes.
func (tx *Transaction) Size() uint32 { return tx.size }

// Type returns the transaction direction.
func (tx *Transaction) Type() Type { return tx.typ }

// Data returns the payload buffer.
//
// For write transactions it is the request payload. For reads it is nil until the slave stored
// the result with SetData, and has exactly Size bytes afterwards.
func (tx *Transaction) Data() []byte {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	return tx.data
}

// GetData copies payload bytes starting at offset into dst.
func (tx *Transaction) GetData(dst []byte, offset uint32) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if uint64(offset)+uint64(len(dst)) > uint64(tx.size) {
		return fmt.Errorf("%w: offset %d, length %d, size %d", ErrDataRange, offset, len(dst), tx.size)
	}
	if tx.data == nil {
		clear(dst)
		return nil
	}
	copy(dst, tx.data[offset:])

	return nil
}

// SetData copies src into the payload starting at offset, allocating the payload on first use.
func (tx *Transaction) SetData(src []byte, offset uint32) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if uint64(offset)+uint64(len(src)) > uint64(tx.size) {
		return fmt.Errorf("%w: offset %d, length %d, size %d", ErrDataRange, offset, len(src), tx.size)
	}
	if tx.data == nil {
		tx.data = make([]byte, tx.size)
	}
	copy(tx.data[offset:], src)

	return nil
}

// Done resolves the transaction with status.
// It returns false if the transaction was already resolved.
func (tx *Transaction) Done(status Status) bool {
	if !tx.resolved.CompareAndSwap(false, true) {
		return false
	}
	tx.status.Store(uint32(status))
	close(tx.done)

	return true
}

// IsDone returns true once the transaction is resolved.
func (tx *Transaction) IsDone() bool {
	select {
	case <-tx.done:
		return true
	default:
		return false
	}
}

// DoneChan returns a channel closed when the transaction is resolved.
func (tx *Transaction) DoneChan() <-chan struct{} {
	return tx.done
}

// Status returns the resolved status, or Success while unresolved.
func (tx *Transaction) Status() Status {
	if !tx.IsDone() {
		return Success
	}

	return Status(tx.status.Load())
}

// Err returns a *StatusError carrying the address and size when the transaction failed.
func (tx *Transaction) Err() error {
	status := tx.Status()
	if status == Success {
		return nil
	}

	return &StatusError{Status: status, Address: tx.address, Size: tx.size}
}

// Wait blocks until the transaction is resolved or ctx is done.
//
// When ctx expires first the transaction is resolved with TimeoutError, so a late completion
// from the slave is discarded.
func (tx *Transaction) Wait(ctx context.Context) error {
	select {
	case <-tx.done:
	case <-ctx.Done():
		tx.Done(TimeoutError)
	}

	return tx.Err()
}

func (tx *Transaction) String() string {
	return fmt.Sprintf("tx(id=%d, type=%s, address=0x%08x, size=%d)", tx.id, tx.typ, tx.address, tx.size)
}
