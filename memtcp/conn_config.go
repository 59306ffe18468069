package memtcp

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/go-rogue/logger"
)

const (
	// DefaultMaxFrameSize is the default upper bound of the frame length field.
	DefaultMaxFrameSize uint32 = HeaderSize + 16*1024*1024
)

// ConnectionConfig represents the configuration shared by a Server and a Client.
type ConnectionConfig struct {
	mu sync.RWMutex

	// host is the address the server listens on, or the client dials.
	host string
	// port is the TCP port. Zero lets a server pick a free port.
	port int

	// replyTimeout bounds how long a client waits for the reply of a transaction, and how long
	// a server waits for its slave to resolve one. It should be between 1ms and 120 seconds.
	// Defaults to 5 seconds.
	replyTimeout time.Duration
	// writeTimeout bounds writing a frame and reading the body of a frame once its length
	// arrived. Defaults to 5 seconds.
	writeTimeout time.Duration
	// dialTimeout bounds establishing the client connection. Defaults to 3 seconds.
	dialTimeout time.Duration

	// senderQueueSize defines the size of the queue of frames waiting to be written.
	// Defaults to 10.
	senderQueueSize int

	// maxFrameSize is the largest accepted value of the frame length field.
	maxFrameSize uint32

	// minAccess and maxAccess are reported by the client as its memory.Slave capabilities.
	minAccess uint32
	maxAccess uint32

	logger logger.Logger
}

// NewConnectionConfig creates a configuration for host and port with the given options.
//
// The host parameter must be an IP address or a resolvable host name. The port must be in
// the range [0, 65535].
func NewConnectionConfig(host string, port int, opts ...ConnOption) (*ConnectionConfig, error) {
	cfg := &ConnectionConfig{
		replyTimeout:    5 * time.Second,
		writeTimeout:    5 * time.Second,
		dialTimeout:     3 * time.Second,
		senderQueueSize: 10,
		maxFrameSize:    DefaultMaxFrameSize,
		minAccess:       4,
		maxAccess:       DefaultMaxFrameSize - HeaderSize,
		logger:          logger.GetLogger(),
	}

	if err := withHost(host).apply(cfg); err != nil {
		return cfg, err
	}

	if err := withPort(port).apply(cfg); err != nil {
		return cfg, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.maxAccess < cfg.minAccess {
		return cfg, errors.New("max access is less than min access")
	}
	if uint64(cfg.maxAccess)+HeaderSize > uint64(cfg.maxFrameSize) {
		return cfg, errors.New("max access exceeds the payload of the max frame size")
	}

	return cfg, nil
}

// Address returns host:port.
func (cfg *ConnectionConfig) Address() string {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return net.JoinHostPort(cfg.host, strconv.Itoa(cfg.port))
}

func (cfg *ConnectionConfig) ReplyTimeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.replyTimeout
}

func (cfg *ConnectionConfig) WriteTimeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.writeTimeout
}

func (cfg *ConnectionConfig) DialTimeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.dialTimeout
}

func (cfg *ConnectionConfig) MaxFrameSize() uint32 {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.maxFrameSize
}

// Logger returns the configured logger.
func (cfg *ConnectionConfig) Logger() logger.Logger {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.logger
}

// Update applies opts to an existing configuration.
// Only options that can be changed at runtime are accepted.
func (cfg *ConnectionConfig) Update(opts ...ConnOption) error {
	for _, opt := range opts {
		connOpt, ok := opt.(*connOptFunc)
		if !ok {
			return errors.New("invalid ConnOption type")
		}
		if !connOpt.runtime {
			return errors.New(connOpt.name + " can't be changed at runtime")
		}

		cfg.mu.Lock()
		err := opt.apply(cfg)
		cfg.mu.Unlock()

		if err != nil {
			return err
		}
	}

	return nil
}

// ConnOption represents a functional option for configuring a ConnectionConfig.
type ConnOption interface {
	apply(*ConnectionConfig) error
}

type connOptFunc struct {
	name      string
	runtime   bool
	applyFunc func(*ConnectionConfig) error
}

func (c *connOptFunc) apply(cfg *ConnectionConfig) error {
	if cfg == nil {
		return ErrConnConfigNil
	}

	return c.applyFunc(cfg)
}

func newConnOptFunc(name string, runtime bool, f func(*ConnectionConfig) error) *connOptFunc {
	return &connOptFunc{
		name:      name,
		runtime:   runtime,
		applyFunc: f,
	}
}

func withHost(host string) ConnOption {
	return newConnOptFunc("withHost", false, func(cfg *ConnectionConfig) error {
		if ip := net.ParseIP(host); ip != nil {
			cfg.host = host
			return nil
		}

		host = strings.TrimPrefix(host, ".")
		host = strings.TrimSuffix(host, ".")
		if host == "" {
			return errors.New("invalid host")
		}
		if _, err := net.LookupHost(host); err == nil {
			cfg.host = host
			return nil
		}

		return errors.New("invalid host")
	})
}

func withPort(port int) ConnOption {
	return newConnOptFunc("withPort", false, func(cfg *ConnectionConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("port is out of range [0, 65535]")
		}
		cfg.port = port

		return nil
	})
}

// WithReplyTimeout sets how long a transaction may wait for its reply.
// An error is returned if the timeout is outside the range [1ms, 120s].
//
// The default value is 5 seconds.
//
// This option can be changed at runtime.
func WithReplyTimeout(val time.Duration) ConnOption {
	return newConnOptFunc("WithReplyTimeout", true, func(cfg *ConnectionConfig) error {
		if val < time.Millisecond || val > 120*time.Second {
			return errors.New("reply timeout out of range [1ms, 120s]")
		}
		cfg.replyTimeout = val

		return nil
	})
}

// WithWriteTimeout sets the deadline for writing one frame.
// An error is returned if the timeout is outside the range [1ms, 120s].
//
// The default value is 5 seconds.
//
// This option can be changed at runtime.
func WithWriteTimeout(val time.Duration) ConnOption {
	return newConnOptFunc("WithWriteTimeout", true, func(cfg *ConnectionConfig) error {
		if val < time.Millisecond || val > 120*time.Second {
			return errors.New("write timeout out of range [1ms, 120s]")
		}
		cfg.writeTimeout = val

		return nil
	})
}

// WithDialTimeout sets the timeout of establishing a client connection.
// An error is returned if the timeout is outside the range [100ms, 30s].
//
// The default value is 3 seconds.
//
// This option can be changed at runtime.
func WithDialTimeout(val time.Duration) ConnOption {
	return newConnOptFunc("WithDialTimeout", true, func(cfg *ConnectionConfig) error {
		if val < 100*time.Millisecond || val > 30*time.Second {
			return errors.New("dial timeout out of range [100ms, 30s]")
		}
		cfg.dialTimeout = val

		return nil
	})
}

// WithSenderQueueSize sets the size of the queue of frames waiting to be written.
//
// The queue size must be within the range of 1 to 1000.
//
// The default value is 10.
//
// This option can't be changed at runtime.
func WithSenderQueueSize(size int) ConnOption {
	return newConnOptFunc("WithSenderQueueSize", false, func(cfg *ConnectionConfig) error {
		if size < 1 || size > 1000 {
			return errors.New("the sender queue size out of range [1, 1000]")
		}
		cfg.senderQueueSize = size

		return nil
	})
}

// WithMaxFrameSize sets the largest accepted frame length. Larger frames close the connection.
// It must be at least HeaderSize.
//
// This option can't be changed at runtime.
func WithMaxFrameSize(size uint32) ConnOption {
	return newConnOptFunc("WithMaxFrameSize", false, func(cfg *ConnectionConfig) error {
		if size < HeaderSize {
			return errors.New("max frame size is less than the frame header size")
		}
		cfg.maxFrameSize = size

		return nil
	})
}

// WithMinAccess sets the alignment a client reports to its masters.
//
// The default value is 4.
//
// This option can't be changed at runtime.
func WithMinAccess(n uint32) ConnOption {
	return newConnOptFunc("WithMinAccess", false, func(cfg *ConnectionConfig) error {
		if n == 0 {
			return errors.New("min access must be greater than 0")
		}
		cfg.minAccess = n

		return nil
	})
}

// WithMaxAccess sets the maximum transaction size a client reports to its masters.
// It must fit in the payload of the maximum frame size.
//
// This option can't be changed at runtime.
func WithMaxAccess(n uint32) ConnOption {
	return newConnOptFunc("WithMaxAccess", false, func(cfg *ConnectionConfig) error {
		cfg.maxAccess = n
		return nil
	})
}

// WithLogger sets the logger of servers and clients created from the configuration.
//
// The default logger is the global logger instance.
//
// This option can't be changed at runtime.
func WithLogger(l logger.Logger) ConnOption {
	return newConnOptFunc("WithLogger", false, func(cfg *ConnectionConfig) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
