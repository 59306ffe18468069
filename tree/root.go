package tree

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-rogue/internal/task"
	"github.com/arloliu/go-rogue/logger"
)

// Root is the top device of a tree and the entry point for path based access.
type Root struct {
	*Device

	logger       logger.Logger
	pollInterval time.Duration
	taskMgr      *task.Manager
	started      atomic.Bool

	subSeq atomic.Uint64
	subs   *xsync.MapOf[SubscriptionID, *subscription]
}

// NewRoot creates a root device. Besides the device options it accepts WithPollInterval and
// WithLogger.
func NewRoot(name string, opts ...Option) (*Root, error) {
	dev, err := NewDevice(name)
	if err != nil {
		return nil, err
	}

	r := &Root{
		Device: dev,
		logger: logger.GetLogger(),
		subs:   xsync.NewMapOf[SubscriptionID, *subscription](),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("root", name)

	return r, nil
}

// Start assigns paths, creates the memory blocks and starts polling when configured.
func (r *Root) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrRootStarted
	}

	r.path = r.name
	if err := r.attach(r); err != nil {
		r.started.Store(false)
		return err
	}

	r.taskMgr = task.NewManager(ctx, r.logger)
	if r.pollInterval > 0 {
		err := r.taskMgr.StartInterval("poll", func() bool {
			if err := r.ReadAll(r.taskMgr.Context()); err != nil {
				r.logger.Warn("poll failed", "error", err)
			}

			return true
		}, r.pollInterval, false)
		if err != nil {
			r.started.Store(false)
			return err
		}
	}

	r.logger.Info("root started", "poll_interval", r.pollInterval)

	return nil
}

// Stop stops polling and waits for the poller to exit.
func (r *Root) Stop() {
	if !r.started.CompareAndSwap(true, false) {
		return
	}

	r.taskMgr.Stop()
	r.taskMgr.Wait()
	r.logger.Info("root stopped")
}

// Logger returns the root logger.
func (r *Root) Logger() logger.Logger {
	return r.logger
}

// GetNode returns the node at a dotted path starting with the root name.
func (r *Root) GetNode(path string) (Node, error) {
	parts := strings.Split(path, ".")
	if parts[0] != r.name {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, path)
	}

	var cur Node = r.Device
	for _, name := range parts[1:] {
		dev, ok := cur.(*Device)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, path)
		}
		cur = dev.Node(name)
		if cur == nil {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, path)
		}
	}

	return cur, nil
}

// GetVariable returns the variable at path.
func (r *Root) GetVariable(path string) (*Variable, error) {
	n, err := r.GetNode(path)
	if err != nil {
		return nil, err
	}
	v, ok := n.(*Variable)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotVariable, path)
	}

	return v, nil
}

// GetCommand returns the command at path.
func (r *Root) GetCommand(path string) (*Command, error) {
	n, err := r.GetNode(path)
	if err != nil {
		return nil, err
	}
	c, ok := n.(*Command)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotCommand, path)
	}

	return c, nil
}

// Get returns the current value of the variable at path.
func (r *Root) Get(ctx context.Context, path string) (any, error) {
	v, err := r.GetVariable(path)
	if err != nil {
		return nil, err
	}

	return v.Get(ctx)
}

// Set writes val to the variable at path.
func (r *Root) Set(ctx context.Context, path string, val any) error {
	v, err := r.GetVariable(path)
	if err != nil {
		return err
	}

	return v.Set(ctx, val)
}

// Exec runs the command at path with arg.
func (r *Root) Exec(ctx context.Context, path string, arg any) (any, error) {
	c, err := r.GetCommand(path)
	if err != nil {
		return nil, err
	}

	return c.Exec(ctx, arg)
}

// SetOrExec sets the variable or runs the command at path.
func (r *Root) SetOrExec(ctx context.Context, path string, val any) error {
	n, err := r.GetNode(path)
	if err != nil {
		return err
	}

	switch t := n.(type) {
	case *Variable:
		return t.Set(ctx, val)
	case *Command:
		_, err := t.Exec(ctx, val)
		return err
	default:
		return fmt.Errorf("%w: %s", ErrNotVariable, path)
	}
}
