package memory

import (
	"bytes"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEmulator(t testing.TB, opts ...EmulatorOption) *Emulator {
	t.Helper()

	emu, err := NewEmulator(opts...)
	require.NoError(t, err)

	return emu
}

func TestNewEmulator(t *testing.T) {
	require := require.New(t)

	emu := newTestEmulator(t)
	require.Equal(uint32(4), emu.MinAccess())
	require.Equal(uint32(0xFFFFFFFF), emu.MaxAccess())

	emu = newTestEmulator(t, WithMinWidth(8), WithMaxSize(1024))
	require.Equal(uint32(8), emu.MinAccess())
	require.Equal(uint32(1024), emu.MaxAccess())

	_, err := NewEmulator(WithMinWidth(0))
	require.EqualError(err, "min width must be greater than 0")

	_, err = NewEmulator(WithLogger(nil))
	require.EqualError(err, "logger is nil")
}

func TestEmulator_Scenario(t *testing.T) {
	require := require.New(t)

	emu := newTestEmulator(t, WithMinWidth(4), WithMaxSize(65536))

	tx := NewTransaction(Write, 4, 4, []byte{0x01, 0x02, 0x03, 0x04})
	require.Equal(Success, emu.Respond(tx))
	require.True(tx.IsDone())
	require.Equal([]byte{0x01, 0x02, 0x03, 0x04}, emu.Snapshot(4, 4))

	tx = NewTransaction(Read, 4, 4, nil)
	require.Equal(Success, emu.Respond(tx))
	require.Equal([]byte{0x01, 0x02, 0x03, 0x04}, tx.Data())

	tx = NewTransaction(Write, 5, 1, []byte{0xFF})
	require.Equal(AddressError, emu.Respond(tx))
	require.ErrorIs(tx.Err(), ErrAddress)
	require.Equal([]byte{0x01, 0x02, 0x03, 0x04}, emu.Snapshot(4, 4))
	require.Equal([]byte{0x00}, emu.Snapshot(5+3, 1))

	tx = NewTransaction(Read, 0, 200000, nil)
	require.Equal(SizeError, emu.Respond(tx))
	require.ErrorIs(tx.Err(), ErrSize)
	require.Nil(tx.Data())

	metrics := emu.Metrics()
	require.Equal(uint64(1), metrics.WriteCount.Load())
	require.Equal(uint64(1), metrics.ReadCount.Load())
	require.Equal(uint64(1), metrics.AddressErrCount.Load())
	require.Equal(uint64(1), metrics.SizeErrCount.Load())
	require.Equal(uint64(4), metrics.BytesRead.Load())
	require.Equal(uint64(4), metrics.BytesWritten.Load())
}

func TestEmulator_MisalignedLeavesStoreUnchanged(t *testing.T) {
	require := require.New(t)

	emu := newTestEmulator(t, WithMinWidth(4), WithMaxSize(64))
	require.Equal(Success, emu.Respond(NewTransaction(Write, 0, 16, bytes.Repeat([]byte{0xAA}, 16))))
	before := emu.Snapshot(0, 32)

	for address := uint64(1); address < 32; address++ {
		if address%4 == 0 {
			continue
		}
		for _, size := range []uint32{0, 1, 4, 1000} {
			for _, typ := range []Type{Read, Write, Post, Verify} {
				tx := NewTransaction(typ, address, size, bytes.Repeat([]byte{0x55}, int(size)))
				require.Equal(AddressError, emu.Respond(tx), "address %d size %d type %s", address, size, typ)
			}
		}
	}

	require.Equal(before, emu.Snapshot(0, 32))
	require.Equal(16, emu.Len())
}

func TestEmulator_OversizeLeavesStoreUnchanged(t *testing.T) {
	require := require.New(t)

	emu := newTestEmulator(t, WithMinWidth(4), WithMaxSize(8))
	require.Equal(Success, emu.Respond(NewTransaction(Write, 0, 8, []byte{1, 2, 3, 4, 5, 6, 7, 8})))

	for _, size := range []uint32{9, 12, 4096} {
		tx := NewTransaction(Write, 0, size, bytes.Repeat([]byte{0xEE}, int(size)))
		require.Equal(SizeError, emu.Respond(tx))
	}

	require.Equal([]byte{1, 2, 3, 4, 5, 6, 7, 8, 0}, emu.Snapshot(0, 9))
	require.Equal(8, emu.Len())
}

func TestEmulator_AlignmentCheckedBeforeSize(t *testing.T) {
	emu := newTestEmulator(t, WithMinWidth(4), WithMaxSize(4))

	tx := NewTransaction(Read, 2, 100, nil)
	require.Equal(t, AddressError, emu.Respond(tx))
}

func TestEmulator_RangeWrapIsAddressError(t *testing.T) {
	require := require.New(t)

	emu := newTestEmulator(t, WithMinWidth(4), WithMaxSize(64))
	top := uint64(math.MaxUint64 - 3)

	require.Equal(Success, emu.Respond(NewTransaction(Write, top, 4, []byte{1, 2, 3, 4})))
	require.Equal([]byte{1, 2, 3, 4}, emu.Snapshot(top, 4))

	for _, typ := range []Type{Read, Write, Post, Verify} {
		tx := NewTransaction(typ, top, 8, bytes.Repeat([]byte{0xEE}, 8))
		require.Equal(AddressError, emu.Respond(tx), "type %s", typ)
	}

	require.Equal([]byte{0, 0, 0, 0}, emu.Snapshot(0, 4), "a wrapped write must not reach address 0")
	require.Equal(4, emu.Len())
}

func TestEmulator_WriteThenRead(t *testing.T) {
	require := require.New(t)

	emu := newTestEmulator(t, WithMinWidth(4), WithMaxSize(4096))

	tests := []struct {
		address uint64
		payload []byte
	}{
		{0, nil},
		{0, []byte{0xde, 0xad, 0xbe, 0xef}},
		{0x100, []byte("hello world!")},
		{0x1000, bytes.Repeat([]byte{0x5a, 0xa5}, 2048)},
		{0xFFFF_FFFF_0000, []byte{9, 8, 7}},
	}

	for _, tt := range tests {
		size := uint32(len(tt.payload)) //nolint:gosec
		require.Equal(Success, emu.Respond(NewTransaction(Write, tt.address, size, tt.payload)))

		tx := NewTransaction(Read, tt.address, size, nil)
		require.Equal(Success, emu.Respond(tx))
		if size == 0 {
			require.Empty(tx.Data())
			continue
		}
		require.Equal(tt.payload, tx.Data())
	}
}

func TestEmulator_UnwrittenReadsZero(t *testing.T) {
	require := require.New(t)

	emu := newTestEmulator(t, WithMinWidth(4), WithMaxSize(1024))

	tx := NewTransaction(Read, 0x40, 1024, nil)
	require.Equal(Success, emu.Respond(tx))
	require.Equal(make([]byte, 1024), tx.Data())

	// reads do not materialize entries
	require.Equal(0, emu.Len())

	// and do not affect later validation
	require.Equal(AddressError, emu.Respond(NewTransaction(Read, 0x41, 4, nil)))
	require.Equal(SizeError, emu.Respond(NewTransaction(Read, 0x40, 1025, nil)))
}

func TestEmulator_WriteAndPostEquivalent(t *testing.T) {
	require := require.New(t)

	payload := []byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x80}

	writeEmu := newTestEmulator(t)
	postEmu := newTestEmulator(t)

	require.Equal(Success, writeEmu.Respond(NewTransaction(Write, 8, 8, payload)))
	require.Equal(Success, postEmu.Respond(NewTransaction(Post, 8, 8, payload)))

	require.Equal(writeEmu.Snapshot(0, 32), postEmu.Snapshot(0, 32))
	require.Equal(writeEmu.Len(), postEmu.Len())
}

func TestEmulator_OverwriteRange(t *testing.T) {
	require := require.New(t)

	emu := newTestEmulator(t, WithMinWidth(1))
	require.Equal(Success, emu.Respond(NewTransaction(Write, 0, 8, []byte{1, 1, 1, 1, 1, 1, 1, 1})))
	require.Equal(Success, emu.Respond(NewTransaction(Write, 2, 3, []byte{7, 8, 9})))
	require.Equal([]byte{1, 1, 7, 8, 9, 1, 1, 1}, emu.Snapshot(0, 8))

	emu.Reset()
	require.Equal(0, emu.Len())
	require.Equal(make([]byte, 8), emu.Snapshot(0, 8))
}

func TestEmulator_ResolvesOnce(t *testing.T) {
	require := require.New(t)

	emu := newTestEmulator(t)
	tx := NewTransaction(Write, 0, 4, []byte{1, 2, 3, 4})
	emu.DoTransaction(tx)
	require.Equal(Success, tx.Status())

	// a second delivery cannot change the recorded outcome
	require.False(tx.Done(AddressError))
	require.Equal(Success, tx.Status())
}

func TestEmulator_ConcurrentWriters(t *testing.T) {
	require := require.New(t)

	emu := newTestEmulator(t, WithMinWidth(4), WithMaxSize(256))

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := bytes.Repeat([]byte{byte(i)}, 4)
			emu.DoTransaction(NewTransaction(Write, uint64(i)*4, 4, payload))
			emu.DoTransaction(NewTransaction(Read, uint64(i)*4, 4, nil))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 64; i++ {
		require.Equal(bytes.Repeat([]byte{byte(i)}, 4), emu.Snapshot(uint64(i)*4, 4))
	}
	require.Equal(uint64(64), emu.Metrics().WriteCount.Load())
	require.Equal(uint64(64), emu.Metrics().ReadCount.Load())
}

func BenchmarkEmulator_Write64(b *testing.B) {
	emu := newTestEmulator(b)
	payload := bytes.Repeat([]byte{0xA5}, 64)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		emu.Respond(NewTransaction(Write, uint64(i%1024)*64, 64, payload))
	}
}

func BenchmarkEmulator_Read64(b *testing.B) {
	emu := newTestEmulator(b)
	emu.Respond(NewTransaction(Write, 0, 64, bytes.Repeat([]byte{0xA5}, 64)))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		emu.Respond(NewTransaction(Read, 0, 64, nil))
	}
}
