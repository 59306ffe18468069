package memtcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-rogue/logger"
)

func TestNewConnectionConfig(t *testing.T) {
	require := require.New(t)

	t.Run("Valid Configuration", func(t *testing.T) {
		cfg, err := NewConnectionConfig("192.168.1.1", 5000,
			WithReplyTimeout(10*time.Second),
			WithWriteTimeout(2*time.Second),
			WithDialTimeout(time.Second),
			WithSenderQueueSize(100),
			WithMaxFrameSize(HeaderSize+1024),
			WithMinAccess(8),
			WithMaxAccess(1024),
			WithLogger(logger.NewNopMockLogger()),
		)
		require.NoError(err)
		require.Equal("192.168.1.1:5000", cfg.Address())
		require.Equal(10*time.Second, cfg.ReplyTimeout())
		require.Equal(2*time.Second, cfg.WriteTimeout())
		require.Equal(time.Second, cfg.DialTimeout())
		require.Equal(100, cfg.senderQueueSize)
		require.Equal(uint32(HeaderSize+1024), cfg.MaxFrameSize())
		require.Equal(uint32(8), cfg.minAccess)
		require.Equal(uint32(1024), cfg.maxAccess)
	})

	t.Run("Defaults", func(t *testing.T) {
		cfg, err := NewConnectionConfig("127.0.0.1", 0)
		require.NoError(err)
		require.Equal(5*time.Second, cfg.ReplyTimeout())
		require.Equal(10, cfg.senderQueueSize)
		require.Equal(DefaultMaxFrameSize, cfg.MaxFrameSize())
		require.Equal(uint32(4), cfg.minAccess)
	})

	t.Run("Invalid Host", func(t *testing.T) {
		_, err := NewConnectionConfig("", 5000)
		require.EqualError(err, "invalid host")
	})

	t.Run("Invalid Port", func(t *testing.T) {
		_, err := NewConnectionConfig("127.0.0.1", -1)
		require.EqualError(err, "port is out of range [0, 65535]")

		_, err = NewConnectionConfig("127.0.0.1", 65536)
		require.EqualError(err, "port is out of range [0, 65535]")
	})

	t.Run("Invalid Timeouts", func(t *testing.T) {
		_, err := NewConnectionConfig("127.0.0.1", 5000, WithReplyTimeout(0))
		require.EqualError(err, "reply timeout out of range [1ms, 120s]")

		_, err = NewConnectionConfig("127.0.0.1", 5000, WithReplyTimeout(121*time.Second))
		require.EqualError(err, "reply timeout out of range [1ms, 120s]")

		_, err = NewConnectionConfig("127.0.0.1", 5000, WithWriteTimeout(time.Microsecond))
		require.EqualError(err, "write timeout out of range [1ms, 120s]")

		_, err = NewConnectionConfig("127.0.0.1", 5000, WithDialTimeout(time.Minute))
		require.EqualError(err, "dial timeout out of range [100ms, 30s]")

		err = WithReplyTimeout(time.Second).apply(nil)
		require.ErrorIs(err, ErrConnConfigNil)
	})

	t.Run("Invalid Sizes", func(t *testing.T) {
		_, err := NewConnectionConfig("127.0.0.1", 5000, WithSenderQueueSize(0))
		require.EqualError(err, "the sender queue size out of range [1, 1000]")

		_, err = NewConnectionConfig("127.0.0.1", 5000, WithSenderQueueSize(1001))
		require.EqualError(err, "the sender queue size out of range [1, 1000]")

		_, err = NewConnectionConfig("127.0.0.1", 5000, WithMaxFrameSize(HeaderSize-1))
		require.EqualError(err, "max frame size is less than the frame header size")

		_, err = NewConnectionConfig("127.0.0.1", 5000, WithMinAccess(0))
		require.EqualError(err, "min access must be greater than 0")

		_, err = NewConnectionConfig("127.0.0.1", 5000, WithMinAccess(8), WithMaxAccess(4))
		require.EqualError(err, "max access is less than min access")

		_, err = NewConnectionConfig("127.0.0.1", 5000, WithMaxFrameSize(HeaderSize+16))
		require.EqualError(err, "max access exceeds the payload of the max frame size")

		_, err = NewConnectionConfig("127.0.0.1", 5000, WithLogger(nil))
		require.EqualError(err, "logger is nil")
	})

	t.Run("Runtime Update", func(t *testing.T) {
		cfg, err := NewConnectionConfig("127.0.0.1", 5000)
		require.NoError(err)

		require.NoError(cfg.Update(WithReplyTimeout(time.Second), WithWriteTimeout(time.Second)))
		require.Equal(time.Second, cfg.ReplyTimeout())

		require.EqualError(cfg.Update(WithSenderQueueSize(5)), "WithSenderQueueSize can't be changed at runtime")
		require.Error(cfg.Update(WithReplyTimeout(0)))
	})
}

func TestAtomicOpState(t *testing.T) {
	require := require.New(t)

	var st AtomicOpState
	require.True(st.IsClosed())
	require.Equal("Closed", st.String())

	require.False(st.ToOpened())
	require.False(st.ToClosing())
	require.True(st.ToOpening())
	require.False(st.ToOpening())
	require.True(st.ToOpened())
	require.True(st.IsOpened())
	require.False(st.ToClosed())
	require.True(st.ToClosing())
	require.Equal("Closing", st.String())
	require.True(st.ToClosed())

	require.True(st.ToOpening())
	require.True(st.ToClosing(), "opening can be aborted")
	require.True(st.ToClosed())

	require.Equal("Unknown", OpState(9).String())
}
