package pvbridge

import (
	"errors"

	"github.com/arloliu/go-rogue/internal/queue"
	"github.com/arloliu/go-rogue/logger"
)

// Option configures a Server.
type Option interface {
	apply(*Server) error
}

type optFunc func(*Server) error

func (f optFunc) apply(s *Server) error {
	return f(s)
}

// WithDriver sets the driver receiving PV values. The default is a MemDriver.
func WithDriver(d Driver) Option {
	return optFunc(func(s *Server) error {
		if d == nil {
			return errors.New("driver is nil")
		}
		s.driver = d

		return nil
	})
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(s *Server) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		s.logger = l

		return nil
	})
}

// WithWriteBuffer queues PV writes in a mutex guarded slice preallocated for n writes.
// The default is an unbounded lock-free queue.
func WithWriteBuffer(n int) Option {
	return optFunc(func(s *Server) error {
		if n < 1 || n > 65536 {
			return errors.New("write buffer out of range [1, 65536]")
		}
		s.writes = queue.NewSliceQueue[writeReq](n)

		return nil
	})
}
