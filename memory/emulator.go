package memory

import (
	"errors"
	"math"
	"sync"

	"github.com/arloliu/go-rogue/logger"
)

const (
	// DefaultMinWidth is the default address alignment of an Emulator.
	DefaultMinWidth uint32 = 4
	// DefaultMaxSize is the default maximum transaction size of an Emulator.
	DefaultMaxSize uint32 = math.MaxUint32
)

// Emulator is a Slave answering transactions against a sparse byte store.
//
// Every address reads as zero until written. Reads do not create store entries, so scanning a
// large unwritten range does not grow the store.
//
// The store is guarded by a mutex held for the whole of each Respond call, so an Emulator can be
// shared by any number of transport goroutines. Each transaction fully applies or fully fails.
type Emulator struct {
	mu       sync.Mutex
	minWidth uint32
	maxSize  uint32
	data     map[uint64]byte
	logger   logger.Logger
	metrics  Metrics
}

var _ Slave = (*Emulator)(nil)

// NewEmulator creates an Emulator with the given options.
// Without options the alignment is 4 bytes and the maximum size is 0xFFFFFFFF.
func NewEmulator(opts ...EmulatorOption) (*Emulator, error) {
	e := &Emulator{
		minWidth: DefaultMinWidth,
		maxSize:  DefaultMaxSize,
		data:     make(map[uint64]byte),
		logger:   logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// MinAccess returns the address alignment granularity in bytes.
func (e *Emulator) MinAccess() uint32 { return e.minWidth }

// MaxAccess returns the largest permitted transaction size in bytes.
func (e *Emulator) MaxAccess() uint32 { return e.maxSize }

// Metrics returns the emulator counters.
func (e *Emulator) Metrics() *Metrics { return &e.metrics }

// DoTransaction implements Slave. The transaction is resolved before it returns.
func (e *Emulator) DoTransaction(tx *Transaction) {
	e.Respond(tx)
}

// Respond validates and services tx, resolves it and returns the outcome.
//
// Validation runs in order: a misaligned address yields AddressError, otherwise a size above the
// maximum yields SizeError, otherwise a range wrapping past the last address yields AddressError.
// None of them mutates the store.
func (e *Emulator) Respond(tx *Transaction) Status {
	status := e.respond(tx)
	e.metrics.observe(tx, status)

	if status != Success {
		e.logger.Debug("transaction rejected", "id", tx.ID(), "type", tx.Type(),
			"address", tx.Address(), "size", tx.Size(), "status", status)
	}

	tx.Done(status)

	return status
}

func (e *Emulator) respond(tx *Transaction) Status {
	address := tx.Address()
	size := tx.Size()

	if address%uint64(e.minWidth) != 0 {
		return AddressError
	}
	if size > e.maxSize {
		return SizeError
	}
	// the last byte must not wrap past the top of the address space
	if size > 0 && address > math.MaxUint64-uint64(size-1) {
		return AddressError
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if tx.Type().IsWrite() {
		payload := tx.Data()
		for i := uint32(0); i < size; i++ {
			e.data[address+uint64(i)] = payload[i]
		}

		return Success
	}

	buf := make([]byte, size)
	for i := uint32(0); i < size; i++ {
		buf[i] = e.data[address+uint64(i)]
	}
	if err := tx.SetData(buf, 0); err != nil {
		return BusFail
	}

	return Success
}

// Snapshot returns n bytes starting at address without issuing a transaction.
func (e *Emulator) Snapshot(address uint64, n int) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	buf := make([]byte, n)
	for i := range buf {
		buf[i] = e.data[address+uint64(i)] //nolint:gosec
	}

	return buf
}

// Len returns the number of materialized store entries.
func (e *Emulator) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.data)
}

// Reset clears the store.
func (e *Emulator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	clear(e.data)
}

// EmulatorOption configures an Emulator.
type EmulatorOption interface {
	apply(*Emulator) error
}

type emulatorOptFunc func(*Emulator) error

func (f emulatorOptFunc) apply(e *Emulator) error { return f(e) }

// WithMinWidth sets the address alignment granularity in bytes. It must be greater than zero.
func WithMinWidth(n uint32) EmulatorOption {
	return emulatorOptFunc(func(e *Emulator) error {
		if n == 0 {
			return errors.New("min width must be greater than 0")
		}
		e.minWidth = n

		return nil
	})
}

// WithMaxSize sets the maximum transaction size in bytes.
func WithMaxSize(n uint32) EmulatorOption {
	return emulatorOptFunc(func(e *Emulator) error {
		e.maxSize = n
		return nil
	})
}

// WithLogger sets the logger of the emulator.
func WithLogger(l logger.Logger) EmulatorOption {
	return emulatorOptFunc(func(e *Emulator) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		e.logger = l

		return nil
	})
}
