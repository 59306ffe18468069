package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stallSlave never resolves transactions.
type stallSlave struct{}

func (stallSlave) MinAccess() uint32            { return 4 }
func (stallSlave) MaxAccess() uint32            { return 1024 }
func (stallSlave) DoTransaction(_ *Transaction) {}

// asyncSlave resolves transactions from another goroutine after a delay.
type asyncSlave struct {
	emu   *Emulator
	delay time.Duration
}

func (s *asyncSlave) MinAccess() uint32 { return s.emu.MinAccess() }
func (s *asyncSlave) MaxAccess() uint32 { return s.emu.MaxAccess() }
func (s *asyncSlave) DoTransaction(tx *Transaction) {
	go func() {
		time.Sleep(s.delay)
		s.emu.DoTransaction(tx)
	}()
}

func TestNewBlock(t *testing.T) {
	require := require.New(t)

	emu := newTestEmulator(t, WithMinWidth(4))

	_, err := NewBlock(nil, 0, 4)
	require.ErrorIs(err, ErrSlaveNil)

	_, err = NewBlock(emu, 0, 4, WithBlockTimeout(0))
	require.Error(err)

	blk, err := NewBlock(emu, 0x10, 5)
	require.NoError(err)
	require.Equal(uint64(0x10), blk.Address())
	require.Equal(uint32(8), blk.Size(), "size rounds up to min access")
	require.True(blk.Enabled())

	blk.SetSize(9)
	require.Equal(uint32(12), blk.Size())
}

func TestBlock_UIntBits(t *testing.T) {
	require := require.New(t)

	emu := newTestEmulator(t)
	blk, err := NewBlock(emu, 0, 8)
	require.NoError(err)

	require.NoError(blk.SetUInt(0, 8, 0xAB))
	require.NoError(blk.SetUInt(12, 8, 0xCD))
	require.NoError(blk.SetUInt(32, 32, 0xDEADBEEF))
	require.Equal([]byte{0xAB, 0xD0, 0x0C, 0x00, 0xEF, 0xBE, 0xAD, 0xDE}, blk.Bytes())

	v, err := blk.GetUInt(12, 8)
	require.NoError(err)
	require.Equal(uint64(0xCD), v)

	v, err = blk.GetUInt(0, 64)
	require.NoError(err)
	require.Equal(uint64(0xDEADBEEF000CD0AB), v)

	// high bits of the value are dropped
	require.NoError(blk.SetUInt(0, 4, 0xFF))
	v, err = blk.GetUInt(0, 8)
	require.NoError(err)
	require.Equal(uint64(0xAF), v)

	_, err = blk.GetUInt(60, 8)
	require.ErrorIs(err, ErrBoundary)
	require.ErrorIs(blk.SetUInt(0, 65, 0), ErrBoundary)
	require.ErrorIs(blk.SetBytes(6, []byte{1, 2, 3}), ErrBoundary)
}

func TestBlock_WriteRead(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	emu := newTestEmulator(t)
	blk, err := NewBlock(emu, 0x40, 8)
	require.NoError(err)

	require.NoError(blk.SetUInt(0, 32, 0x11223344))
	require.NoError(blk.BlockingWrite(ctx))
	require.Equal([]byte{0x44, 0x33, 0x22, 0x11}, emu.Snapshot(0x40, 4))

	// another master changes the hardware
	require.NoError(WriteBytes(ctx, emu, 0x44, []byte{0x01, 0x00, 0x00, 0x00}))

	require.NoError(blk.BlockingRead(ctx))
	v, err := blk.GetUInt(32, 32)
	require.NoError(err)
	require.Equal(uint64(1), v)

	updated, err := blk.Updated()
	require.NoError(err)
	require.False(updated, "blocking read consumes the updated flag")

	blk.BackgroundRead()
	require.NoError(blk.Wait())
	updated, err = blk.Updated()
	require.NoError(err)
	require.True(updated)
}

func TestBlock_Strings(t *testing.T) {
	require := require.New(t)

	emu := newTestEmulator(t)
	blk, err := NewBlock(emu, 0, 16)
	require.NoError(err)

	require.NoError(blk.SetString("rogue"))
	require.NoError(blk.BlockingWrite(context.Background()))

	other, err := NewBlock(emu, 0, 16)
	require.NoError(err)
	require.NoError(other.BlockingRead(context.Background()))
	s, err := other.GetString()
	require.NoError(err)
	require.Equal("rogue", s)

	require.ErrorIs(blk.SetString("this string is too long"), ErrBoundary)
}

func TestBlock_PostedAndBackground(t *testing.T) {
	require := require.New(t)

	emu := newTestEmulator(t)
	slave := &asyncSlave{emu: emu, delay: 5 * time.Millisecond}
	blk, err := NewBlock(slave, 0, 4)
	require.NoError(err)

	require.NoError(blk.SetUInt(0, 32, 7))
	blk.PostedWrite()
	require.NoError(blk.Wait())
	require.Equal([]byte{7, 0, 0, 0}, emu.Snapshot(0, 4))

	require.NoError(blk.SetUInt(0, 32, 9))
	blk.BackgroundWrite()
	require.NoError(blk.Wait())
	require.Equal([]byte{9, 0, 0, 0}, emu.Snapshot(0, 4))
}

func TestBlock_Verify(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	emu := newTestEmulator(t)
	blk, err := NewBlock(emu, 0, 4)
	require.NoError(err)

	require.NoError(blk.AddVerify(0, 8))
	require.NoError(blk.SetUInt(0, 32, 0x000000AA))
	require.NoError(blk.BlockingWrite(ctx))
	require.NoError(blk.BlockingVerify(ctx))

	// bits outside the verify mask are ignored
	require.NoError(WriteBytes(ctx, emu, 0, []byte{0xAA, 0xFF, 0xFF, 0xFF}))
	require.NoError(blk.BlockingVerify(ctx))

	require.NoError(WriteBytes(ctx, emu, 0, []byte{0xAB, 0x00, 0x00, 0x00}))
	err = blk.BlockingVerify(ctx)
	require.ErrorIs(err, ErrVerify)
	require.ErrorIs(blk.Err(), ErrVerify)

	blk.BackgroundVerify()
	require.ErrorIs(blk.Wait(), ErrVerify)
}

func TestBlock_Errors(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		blk, err := NewBlock(stallSlave{}, 0, 4, WithBlockTimeout(20*time.Millisecond))
		require.NoError(t, err)

		err = blk.BlockingRead(context.Background())
		require.ErrorIs(t, err, ErrTimeout)
		_, err = blk.GetUInt(0, 8)
		require.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("context cancel", func(t *testing.T) {
		blk, err := NewBlock(stallSlave{}, 0, 4, WithBlockTimeout(time.Hour))
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		require.ErrorIs(t, blk.BlockingWrite(ctx), ErrTimeout)
	})

	t.Run("slave error", func(t *testing.T) {
		emu := newTestEmulator(t, WithMinWidth(4), WithMaxSize(4))
		blk, err := NewBlock(emu, 0, 8)
		require.NoError(t, err)

		require.ErrorIs(t, blk.BlockingRead(context.Background()), ErrSize)
		_, err = blk.Updated()
		require.ErrorIs(t, err, ErrSize)
	})

	t.Run("disabled", func(t *testing.T) {
		blk, err := NewBlock(stallSlave{}, 0, 4, WithBlockTimeout(time.Hour))
		require.NoError(t, err)

		blk.SetEnable(false)
		require.NoError(t, blk.BlockingRead(context.Background()))
		require.False(t, blk.Enabled())
	})
}
