package pvbridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-rogue/internal/queue"
	"github.com/arloliu/go-rogue/internal/task"
	"github.com/arloliu/go-rogue/logger"
	"github.com/arloliu/go-rogue/tree"
)

type writeReq struct {
	pv    *PV
	value any
}

// Server bridges a tree and a PV Driver.
type Server struct {
	base   string
	root   *tree.Root
	driver Driver
	logger logger.Logger

	mu      sync.RWMutex
	db      PVDB
	subID   tree.SubscriptionID
	taskMgr *task.Manager
	started atomic.Bool

	writes queue.Queue[writeReq]
	notify chan struct{}
}

// NewServer creates a server exposing root under base.
func NewServer(base string, root *tree.Root, opts ...Option) (*Server, error) {
	if root == nil {
		return nil, ErrRootNil
	}

	s := &Server{
		base:   base,
		root:   root,
		driver: NewMemDriver(),
		logger: logger.GetLogger(),
		writes: queue.NewLockFreeQueue[writeReq](),
		notify: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if err := opt.apply(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("pv_base", base)

	if _, err := BuildPVDB(root, base); err != nil {
		return nil, err
	}

	return s, nil
}

// Driver returns the driver of the server.
func (s *Server) Driver() Driver {
	return s.driver
}

// PVDB returns the PV table built by Start.
func (s *Server) PVDB() PVDB {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db
}

// Start builds the PV table, loads the current values into the driver, subscribes to the tree
// and starts the write worker. The root should be started first.
func (s *Server) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	db, err := BuildPVDB(s.root, s.base)
	if err != nil {
		s.started.Store(false)
		return err
	}

	structure, err := s.root.YAMLStructure()
	if err != nil {
		s.started.Store(false)
		return fmt.Errorf("pvbridge: %w", err)
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()

	for _, pv := range db {
		switch {
		case pv.Path == "":
			s.driver.SetParam(pv.Name, structure)
		case pv.Command:
			s.driver.SetParam(pv.Name, 0)
		default:
			v, err := s.root.GetVariable(pv.Path)
			if err != nil {
				continue
			}
			if val, err := pv.toPV(v.Value(), v.Disp()); err == nil {
				s.driver.SetParam(pv.Name, val)
			}
		}
	}
	s.driver.UpdatePVs()

	s.writes.Reset()
	s.subID = s.root.Subscribe(s.onBatch)

	s.taskMgr = task.NewManager(ctx, s.logger)
	if err := s.taskMgr.Start("pv_writer", s.writerTask); err != nil {
		s.root.Unsubscribe(s.subID)
		s.started.Store(false)

		return err
	}

	s.logger.Info("pv bridge started", "pv_count", len(db))

	return nil
}

// Stop unsubscribes from the tree and stops the write worker. Queued writes are dropped.
func (s *Server) Stop() {
	if !s.started.CompareAndSwap(true, false) {
		return
	}

	s.root.Unsubscribe(s.subID)
	s.taskMgr.Stop()
	s.taskMgr.Wait()

	if n := s.writes.Length(); n > 0 {
		s.logger.Warn("drop queued pv writes", "count", n)
	}
	s.writes.Reset()
	s.logger.Info("pv bridge stopped")
}

// Write handles a client write to a PV. The value is echoed to the driver at once and applied
// to the tree by the write worker.
func (s *Server) Write(name string, value any) error {
	if !s.started.Load() {
		return ErrNotStarted
	}

	s.mu.RLock()
	pv, ok := s.db[name]
	s.mu.RUnlock()
	if !ok {
		s.logger.Debug("write to unknown pv ignored", "pv", name)
		return fmt.Errorf("%w: %s", ErrUnknownPV, name)
	}
	if pv.ReadOnly {
		return fmt.Errorf("%w: %s", ErrReadOnlyPV, name)
	}

	s.driver.SetParam(name, value)
	s.driver.UpdatePVs()

	s.writes.Enqueue(writeReq{pv: pv, value: value})
	select {
	case s.notify <- struct{}{}:
	default:
	}

	return nil
}

func (s *Server) writerTask() bool {
	ctx := s.taskMgr.Context()

	select {
	case <-ctx.Done():
		return false
	case <-s.notify:
	}

	for {
		req, ok := s.writes.Dequeue()
		if !ok {
			return true
		}
		s.apply(ctx, req)
	}
}

func (s *Server) apply(ctx context.Context, req writeReq) {
	val, err := req.pv.fromPV(req.value)
	if err != nil {
		s.logger.Warn("drop pv write", "pv", req.pv.Name, "error", err)
		return
	}

	if err := s.root.SetOrExec(ctx, req.pv.Path, val); err != nil {
		s.logger.Warn("pv write failed", "pv", req.pv.Name, "path", req.pv.Path, "error", err)
		return
	}
	s.logger.Debug("pv write applied", "pv", req.pv.Name, "value", val)
}

func (s *Server) onBatch(batch tree.Batch) {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()

	posted := 0
	for _, u := range batch {
		pv, ok := db[PVName(s.base, u.Path)]
		if !ok {
			continue
		}
		val, err := pv.toPV(u.Value, u.Display)
		if err != nil {
			s.logger.Warn("drop tree update", "pv", pv.Name, "error", err)
			continue
		}
		s.driver.SetParam(pv.Name, val)
		posted++
	}

	if posted > 0 {
		s.driver.UpdatePVs()
	}
}
