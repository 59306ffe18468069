package memtcp

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-rogue/internal/pool"
	"github.com/arloliu/go-rogue/internal/task"
	"github.com/arloliu/go-rogue/logger"
	"github.com/arloliu/go-rogue/memory"
)

// Server accepts TCP connections and services each request frame with a memory.Slave.
//
// Every connection has a reader task decoding requests and a writer task sending replies, so
// requests on one connection are serviced in order while slow slaves may resolve out of order.
// A malformed frame closes the connection it arrived on and leaves the others untouched.
type Server struct {
	pctx   context.Context
	cfg    *ConnectionConfig
	slave  memory.Slave
	logger logger.Logger

	state      AtomicOpState
	listener   net.Listener
	listenerMu sync.Mutex
	taskMgr    *task.Manager

	connSeq atomic.Uint64
	conns   *xsync.MapOf[uint64, *serverConn]

	metrics ConnectionMetrics
}

// serverConn is one accepted connection.
type serverConn struct {
	id      uint64
	conn    net.Conn
	ctx     context.Context
	cancel  context.CancelFunc
	replies chan *Frame
	reader  frameReader
}

// NewServer creates a server exposing slave with cfg.
func NewServer(ctx context.Context, slave memory.Slave, cfg *ConnectionConfig) (*Server, error) {
	if cfg == nil {
		return nil, ErrConnConfigNil
	}
	if slave == nil {
		return nil, memory.ErrSlaveNil
	}

	l := cfg.Logger().With("component", "memtcp.server")

	return &Server{
		pctx:    ctx,
		cfg:     cfg,
		slave:   slave,
		logger:  l,
		taskMgr: task.NewManager(ctx, l),
		conns:   xsync.NewMapOf[uint64, *serverConn](),
	}, nil
}

// Open starts listening and accepting connections.
func (s *Server) Open() error {
	if !s.state.ToOpening() {
		return ErrAlreadyOpened
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(s.pctx, "tcp", s.cfg.Address())
	if err != nil {
		s.logger.Error("failed to listen", "address", s.cfg.Address(), "error", err)
		s.state.Set(ClosedState)

		return err
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()

	if err := s.taskMgr.Start("acceptTask", s.acceptTask); err != nil {
		_ = listener.Close()
		s.state.Set(ClosedState)

		return err
	}

	s.state.ToOpened()
	s.logger.Info("memory server opened", "address", listener.Addr().String())

	return nil
}

// Addr returns the listening address, or nil when the server is not open.
func (s *Server) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Close stops accepting, closes every connection and waits for all tasks to terminate.
func (s *Server) Close() error {
	if !s.state.ToClosing() {
		return nil
	}

	s.listenerMu.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
		s.listener = nil
	}
	s.listenerMu.Unlock()

	s.conns.Range(func(_ uint64, sc *serverConn) bool {
		s.closeConn(sc)
		return true
	})

	s.taskMgr.Stop()
	s.taskMgr.Wait()

	s.state.ToClosed()
	s.logger.Info("memory server closed")

	return err
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *ConnectionMetrics {
	return &s.metrics
}

func (s *Server) acceptTask() bool {
	s.listenerMu.Lock()
	listener := s.listener
	s.listenerMu.Unlock()

	if listener == nil {
		return false
	}

	conn, err := listener.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) || s.state.Get() != OpenedState {
			return false
		}
		s.logger.Error("failed to accept connection", "error", err)

		return true
	}

	s.serve(conn)

	return true
}

func (s *Server) serve(conn net.Conn) {
	ctx, cancel := context.WithCancel(s.taskMgr.Context())
	sc := &serverConn{
		id:      s.connSeq.Add(1),
		conn:    conn,
		ctx:     ctx,
		cancel:  cancel,
		replies: make(chan *Frame, s.cfg.senderQueueSize),
		reader:  frameReader{timeout: s.cfg.WriteTimeout(), maxFrameSize: s.cfg.MaxFrameSize()},
	}
	s.conns.Store(sc.id, sc)
	s.metrics.ConnCount.Add(1)

	// unblock the reader when the server stops
	context.AfterFunc(ctx, func() { _ = conn.Close() })

	s.logger.Debug("connection accepted", "conn_id", sc.id, "remote_address", conn.RemoteAddr().String())

	readerName := "readerTask-" + conn.RemoteAddr().String()
	if err := s.taskMgr.StartWithCancel(readerName, func() bool { return s.readerTask(sc) }, func() { s.closeConn(sc) }); err != nil {
		s.closeConn(sc)
		return
	}
	_ = s.taskMgr.Start("writerTask-"+conn.RemoteAddr().String(), func() bool { return s.writerTask(sc) })
}

func (s *Server) closeConn(sc *serverConn) {
	if _, ok := s.conns.LoadAndDelete(sc.id); !ok {
		return
	}

	sc.cancel()
	if tcpConn, ok := sc.conn.(*net.TCPConn); ok {
		_ = tcpConn.SetLinger(0)
	}
	_ = sc.conn.Close()
	s.metrics.ConnCount.Add(-1)

	s.logger.Debug("connection closed", "conn_id", sc.id)
}

func (s *Server) readerTask(sc *serverConn) bool {
	req, err := sc.reader.ReadFrame(sc.conn)
	if err != nil {
		if !isClosedErr(err) {
			s.metrics.incFrameErrCount()
			s.logger.Warn("failed to read request, close connection", "conn_id", sc.id, "error", err)
		}

		return false
	}
	s.metrics.incFrameRecvCount()

	// the reply of an oversized request would not fit in a frame
	if req.Size > s.cfg.maxAccess {
		s.logger.Debug("request exceeds max access", "conn_id", sc.id, "size", req.Size, "max", s.cfg.maxAccess)

		return s.reply(sc, &Frame{ID: req.ID, Type: req.Type, Status: memory.SizeError, Address: req.Address, Size: req.Size})
	}
	if err := req.checkRequest(); err != nil {
		s.metrics.incFrameErrCount()
		s.logger.Warn("invalid request, close connection", "conn_id", sc.id, "error", err)

		return false
	}

	tx := req.Transaction()
	s.slave.DoTransaction(tx)

	if tx.IsDone() {
		return s.reply(sc, ReplyFrame(tx))
	}

	// the slave resolves later, wait for it without stalling the reader
	s.metrics.incInflightCount()
	err = s.taskMgr.Start("awaitTask", func() bool {
		defer s.metrics.decInflightCount()

		timer := pool.GetTimer(s.cfg.ReplyTimeout())
		defer pool.PutTimer(timer)

		select {
		case <-tx.DoneChan():
		case <-timer.C:
			if tx.Done(memory.TimeoutError) {
				s.metrics.incTimeoutCount()
			}
		case <-sc.ctx.Done():
			return false
		}
		s.reply(sc, ReplyFrame(tx))

		return false
	})
	if err != nil {
		s.metrics.decInflightCount()
		return false
	}

	return true
}

func (s *Server) reply(sc *serverConn, f *Frame) bool {
	select {
	case <-sc.ctx.Done():
		return false
	case sc.replies <- f:
		return true
	}
}

func (s *Server) writerTask(sc *serverConn) bool {
	select {
	case <-sc.ctx.Done():
		return false
	case f := <-sc.replies:
		if err := writeFrame(sc.conn, f, s.cfg.WriteTimeout()); err != nil {
			s.metrics.incFrameErrCount()
			if !isClosedErr(err) {
				s.logger.Error("failed to write reply", "conn_id", sc.id, "error", err)
			}
			s.closeConn(sc)

			return false
		}
		s.metrics.incFrameSendCount()

		return true
	}
}

func isClosedErr(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && !opErr.Timeout() {
		return true
	}

	return false
}
