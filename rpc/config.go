package rpc

import (
	"errors"
	"time"

	"github.com/arloliu/go-rogue/logger"
)

const (
	DefaultMaxLineSize    = 1 << 20
	DefaultRequestTimeout = 10 * time.Second
)

// Option configures a Server or a Client.
type Option interface {
	apply(*options) error
}

type options struct {
	logger         logger.Logger
	maxLineSize    int
	requestTimeout time.Duration
}

func defaultOptions() *options {
	return &options{
		logger:         logger.GetLogger(),
		maxLineSize:    DefaultMaxLineSize,
		requestTimeout: DefaultRequestTimeout,
	}
}

func newOptions(opts []Option) (*options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt.apply(o); err != nil {
			return nil, err
		}
	}

	return o, nil
}

type optFunc func(*options) error

func (f optFunc) apply(o *options) error {
	return f(o)
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(o *options) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		o.logger = l

		return nil
	})
}

// WithMaxLineSize limits the size of one request or response line, in bytes.
func WithMaxLineSize(n int) Option {
	return optFunc(func(o *options) error {
		if n < 64 || n > 64<<20 {
			return errors.New("max line size out of range [64, 64MiB]")
		}
		o.maxLineSize = n

		return nil
	})
}

// WithRequestTimeout bounds the handling of one request on the server and the round trip of one
// call on the client.
func WithRequestTimeout(d time.Duration) Option {
	return optFunc(func(o *options) error {
		if d < time.Millisecond || d > 10*time.Minute {
			return errors.New("request timeout out of range [1ms, 10m]")
		}
		o.requestTimeout = d

		return nil
	})
}
