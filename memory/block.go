package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/go-rogue/internal/pool"
	"github.com/arloliu/go-rogue/logger"
)

// DefaultBlockTimeout is the default time a block waits for a transaction to resolve.
const DefaultBlockTimeout = time.Second

// Block is a memory master holding a shadow copy of a register range.
//
// Variables pack and unpack their bit fields in the shadow buffer; reads refresh the shadow from
// the slave and writes push it out. A block has at most one transaction in flight: every method
// waits for the in-flight transaction before touching the shadow.
type Block struct {
	mu      sync.Mutex // held for the lifetime of an in-flight transaction
	slave   Slave
	address uint64
	size    uint32
	timeout time.Duration
	logger  logger.Logger

	shadow []byte
	verify []byte
	mask   []byte

	enabled bool
	updated bool
	lastErr error
}

// BlockOption configures a Block.
type BlockOption func(*Block) error

// WithBlockTimeout sets how long blocking calls wait for a transaction.
func WithBlockTimeout(d time.Duration) BlockOption {
	return func(b *Block) error {
		if d <= 0 {
			return errors.New("block timeout must be positive")
		}
		b.timeout = d

		return nil
	}
}

// WithBlockLogger sets the logger of the block.
func WithBlockLogger(l logger.Logger) BlockOption {
	return func(b *Block) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		b.logger = l

		return nil
	}
}

// NewBlock creates a block of size bytes at address on slave.
func NewBlock(slave Slave, address uint64, size uint32, opts ...BlockOption) (*Block, error) {
	if slave == nil {
		return nil, ErrSlaveNil
	}

	b := &Block{
		slave:   slave,
		address: address,
		timeout: DefaultBlockTimeout,
		logger:  logger.GetLogger(),
		enabled: true,
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	b.resize(size)
	b.alignSize()

	return b, nil
}

// Address returns the start address of the block.
func (b *Block) Address() uint64 {
	return b.address
}

// Size returns the block size in bytes.
func (b *Block) Size() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.size
}

// SetSize resizes the block, keeping the overlapping part of the shadow data.
func (b *Block) SetSize(size uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.resize(size)
	b.alignSize()
}

// SetTimeout sets how long blocking calls wait for a transaction.
// A zero timeout is raised to one microsecond.
func (b *Block) SetTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if d <= 0 {
		d = time.Microsecond
	}
	b.timeout = d
}

// SetEnable enables or disables the block. Disabled blocks issue no transactions.
func (b *Block) SetEnable(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.enabled = enabled
}

// Enabled returns whether the block issues transactions.
func (b *Block) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.enabled
}

// Err returns the error of the last transaction.
func (b *Block) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.lastErr
}

// Updated reports whether a read completed since the last call and clears the flag.
// It returns the error of the last transaction instead when that transaction failed.
func (b *Block) Updated() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lastErr != nil {
		return false, b.lastErr
	}
	updated := b.updated
	b.updated = false

	return updated, nil
}

// Wait blocks until the in-flight transaction, if any, is resolved and returns its error.
func (b *Block) Wait() error {
	return b.Err()
}

// BlockingRead refreshes the shadow data from the slave.
func (b *Block) BlockingRead(ctx context.Context) error {
	if err := b.transact(ctx, Read, true); err != nil {
		return err
	}
	_, err := b.Updated()

	return err
}

// BackgroundRead starts a read and returns without waiting.
func (b *Block) BackgroundRead() {
	_ = b.transact(context.Background(), Read, false)
}

// BlockingWrite writes the shadow data to the slave and waits for completion.
func (b *Block) BlockingWrite(ctx context.Context) error {
	return b.transact(ctx, Write, true)
}

// BackgroundWrite starts a write and returns without waiting.
func (b *Block) BackgroundWrite() {
	_ = b.transact(context.Background(), Write, false)
}

// PostedWrite writes the shadow data as a posted transaction and returns without waiting.
func (b *Block) PostedWrite() {
	_ = b.transact(context.Background(), Post, false)
}

// BlockingVerify reads back the range and compares the verify-masked bits against the shadow.
func (b *Block) BlockingVerify(ctx context.Context) error {
	return b.transact(ctx, Verify, true)
}

// BackgroundVerify starts a verify read and returns without waiting.
func (b *Block) BackgroundVerify() {
	_ = b.transact(context.Background(), Verify, false)
}

// AddVerify marks bitCount bits starting at bitOffset as compared by verify transactions.
func (b *Block) AddVerify(bitOffset, bitCount uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkBits("AddVerify", bitOffset, bitCount); err != nil {
		return err
	}
	for x := uint32(0); x < bitCount; x++ {
		bit := bitOffset + x
		b.mask[bit/8] |= 1 << (bit % 8)
	}

	return nil
}

// GetUInt returns bitCount bits (at most 64) starting at bitOffset of the shadow data.
// Bits are numbered little-endian: bit 0 is the least significant bit of byte 0.
func (b *Block) GetUInt(bitOffset, bitCount uint32) (uint64, error) {
	if bitCount > 64 {
		return 0, fmt.Errorf("%w: GetUInt bit count %d > 64", ErrBoundary, bitCount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkBits("GetUInt", bitOffset, bitCount); err != nil {
		return 0, err
	}

	var value uint64
	for x := uint32(0); x < bitCount; x++ {
		bit := bitOffset + x
		if b.shadow[bit/8]&(1<<(bit%8)) != 0 {
			value |= 1 << x
		}
	}

	return value, b.lastErr
}

// SetUInt stores the low bitCount bits (at most 64) of value at bitOffset of the shadow data.
func (b *Block) SetUInt(bitOffset, bitCount uint32, value uint64) error {
	if bitCount > 64 {
		return fmt.Errorf("%w: SetUInt bit count %d > 64", ErrBoundary, bitCount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkBits("SetUInt", bitOffset, bitCount); err != nil {
		return err
	}

	for x := uint32(0); x < bitCount; x++ {
		bit := bitOffset + x
		if value&(1<<x) != 0 {
			b.shadow[bit/8] |= 1 << (bit % 8)
		} else {
			b.shadow[bit/8] &^= 1 << (bit % 8)
		}
	}

	return nil
}

// GetString returns the shadow data as a NUL terminated string.
func (b *Block) GetString() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := b.shadow
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}

	return string(data), b.lastErr
}

// SetString stores s in the shadow data followed by NUL padding.
func (b *Block) SetString(s string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if uint64(len(s)) > uint64(b.size) {
		return fmt.Errorf("%w: SetString length %d > block size %d", ErrBoundary, len(s), b.size)
	}
	n := copy(b.shadow, s)
	clear(b.shadow[n:])

	return nil
}

// Bytes returns a copy of the shadow data.
func (b *Block) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, len(b.shadow))
	copy(out, b.shadow)

	return out
}

// SetBytes copies data into the shadow starting at byte offset.
func (b *Block) SetBytes(offset uint32, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if uint64(offset)+uint64(len(data)) > uint64(b.size) {
		return fmt.Errorf("%w: SetBytes range [%d, %d) > block size %d", ErrBoundary, offset, uint64(offset)+uint64(len(data)), b.size)
	}
	copy(b.shadow[offset:], data)

	return nil
}

// transact issues a transaction of typ. The block lock is taken here and released once the
// transaction resolves, which happens on the calling goroutine when wait is true and on a helper
// goroutine otherwise.
func (b *Block) transact(ctx context.Context, typ Type, wait bool) error {
	b.mu.Lock()

	if !b.enabled {
		b.mu.Unlock()
		return nil
	}

	b.alignSize()
	b.lastErr = nil

	var tx *Transaction
	if typ.IsWrite() {
		tx = NewTransaction(typ, b.address, b.size, b.shadow)
	} else {
		tx = NewTransaction(typ, b.address, b.size, nil)
	}

	b.logger.Debug("block transaction", "id", tx.ID(), "type", typ, "address", b.address, "size", b.size)
	b.slave.DoTransaction(tx)

	if !wait {
		go func() {
			defer b.mu.Unlock()
			b.await(context.Background(), tx)
		}()

		return nil
	}

	defer b.mu.Unlock()

	return b.await(ctx, tx)
}

// await waits for tx bounded by the block timeout and applies its result. Callers hold b.mu.
func (b *Block) await(ctx context.Context, tx *Transaction) error {
	timer := pool.GetTimer(b.timeout)
	defer pool.PutTimer(timer)

	select {
	case <-tx.DoneChan():
	case <-timer.C:
		tx.Done(TimeoutError)
	case <-ctx.Done():
		tx.Done(TimeoutError)
	}

	err := tx.Err()
	if err == nil {
		err = b.complete(tx)
	}
	if err != nil {
		b.logger.Warn("block transaction failed", "id", tx.ID(), "type", tx.Type(), "address", b.address, "error", err)
	}
	b.lastErr = err

	return err
}

func (b *Block) complete(tx *Transaction) error {
	switch tx.Type() {
	case Read:
		if err := tx.GetData(b.shadow, 0); err != nil {
			return err
		}
		b.updated = true
	case Verify:
		if err := tx.GetData(b.verify, 0); err != nil {
			return err
		}
		for x := range b.shadow {
			if b.verify[x]&b.mask[x] != b.shadow[x]&b.mask[x] {
				return &StatusError{Status: VerifyError, Address: b.address, Size: b.size}
			}
		}
	}

	return nil
}

func (b *Block) checkBits(op string, bitOffset, bitCount uint32) error {
	if uint64(bitOffset)+uint64(bitCount) > uint64(b.size)*8 {
		return fmt.Errorf("%w: %s bit range [%d, %d) > %d bits", ErrBoundary, op, bitOffset, uint64(bitOffset)+uint64(bitCount), uint64(b.size)*8)
	}

	return nil
}

// alignSize rounds the size up to a multiple of the slave's minimum access.
func (b *Block) alignSize() {
	minAccess := b.slave.MinAccess()
	if minAccess == 0 || b.size%minAccess == 0 {
		return
	}
	b.resize((b.size/minAccess + 1) * minAccess)
}

func (b *Block) resize(size uint32) {
	if size == b.size && b.shadow != nil {
		return
	}
	b.shadow = resizeBytes(b.shadow, size)
	b.verify = resizeBytes(b.verify, size)
	b.mask = resizeBytes(b.mask, size)
	b.size = size
}

func resizeBytes(src []byte, size uint32) []byte {
	dst := make([]byte, size)
	copy(dst, src)

	return dst
}
