package rpc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/segmentio/encoding/json"

	"github.com/arloliu/go-rogue/internal/task"
	"github.com/arloliu/go-rogue/logger"
	"github.com/arloliu/go-rogue/tree"
)

// Server answers requests against a tree.
type Server struct {
	root   *tree.Root
	opts   *options
	logger logger.Logger

	pctx       context.Context
	listener   net.Listener
	listenerMu sync.Mutex
	taskMgr    *task.Manager
	connSeq    atomic.Uint64
	conns      *xsync.MapOf[uint64, net.Conn]
}

// NewServer creates a server for root.
func NewServer(ctx context.Context, root *tree.Root, opts ...Option) (*Server, error) {
	if root == nil {
		return nil, ErrRootNil
	}
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	l := o.logger.With("component", "rpc")

	return &Server{
		root:    root,
		opts:    o,
		logger:  l,
		pctx:    ctx,
		taskMgr: task.NewManager(ctx, l),
		conns:   xsync.NewMapOf[uint64, net.Conn](),
	}, nil
}

// Handle answers one encoded request.
func (s *Server) Handle(data []byte) []byte {
	ctx, cancel := context.WithTimeout(s.pctx, s.opts.requestTimeout)
	defer cancel()

	return s.HandleContext(ctx, data)
}

// HandleContext answers one encoded request, using ctx for the tree operations.
func (s *Server) HandleContext(ctx context.Context, data []byte) []byte {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		s.logger.Debug("malformed rpc request", "error", err)
		return nullReply
	}
	req.normalizeArgs()

	switch req.Path {
	case PathRootName:
		return s.encode(s.root.Name(), req.RawStr)
	case PathStructure:
		structure, err := s.root.YAMLStructure()
		if err != nil {
			return s.encodeError(err)
		}

		return s.encode(structure, req.RawStr)
	}

	n, err := s.root.GetNode(req.Path)
	if err != nil {
		s.logger.Debug("rpc request for unknown node", "path", req.Path)
		return nullReply
	}

	fn, ok := dispatch[req.Attr]
	if !ok {
		return s.encodeError(errors.New("unknown attribute: " + req.Attr))
	}

	result, err := fn(ctx, n, &req)
	if err != nil {
		s.logger.Debug("rpc request failed", "path", req.Path, "attr", req.Attr, "error", err)
		return s.encodeError(err)
	}
	// null is reserved for unknown nodes
	if result == nil {
		result = true
	}

	return s.encode(result, req.RawStr)
}

// encode returns the JSON encoding of v. Raw strings are returned as is when they fit on one
// line.
func (s *Server) encode(v any, rawStr bool) []byte {
	if str, ok := v.(string); ok && rawStr && !strings.ContainsAny(str, "\r\n") {
		return []byte(str)
	}

	out, err := json.Marshal(v)
	if err != nil {
		return s.encodeError(err)
	}

	return out
}

func (s *Server) encodeError(err error) []byte {
	out, mErr := json.Marshal(errorReply{Error: err.Error()})
	if mErr != nil {
		return nullReply
	}

	return out
}

// Open listens on addr and serves newline delimited requests.
func (s *Server) Open(addr string) error {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener != nil {
		return ErrAlreadyOpened
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(s.pctx, "tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln

	if err := s.taskMgr.Start("rpc_accept", s.acceptTask(ln)); err != nil {
		_ = ln.Close()
		s.listener = nil

		return err
	}
	s.logger.Info("rpc server listening", "address", ln.Addr().String())

	return nil
}

// Addr returns the listening address, or nil before Open.
func (s *Server) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Close stops listening, closes the connections and waits for their goroutines.
func (s *Server) Close() error {
	s.listenerMu.Lock()
	ln := s.listener
	s.listener = nil
	s.listenerMu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}

	s.taskMgr.Stop()
	s.conns.Range(func(_ uint64, conn net.Conn) bool {
		_ = conn.Close()
		return true
	})
	s.taskMgr.Wait()
	s.logger.Info("rpc server closed")

	return err
}

func (s *Server) acceptTask(ln net.Listener) task.Func {
	return func() bool {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("rpc accept failed", "error", err)
			}

			return false
		}

		id := s.connSeq.Add(1)
		s.conns.Store(id, conn)
		s.logger.Debug("rpc connection accepted", "conn_id", id, "remote", conn.RemoteAddr().String())

		err = s.taskMgr.StartWithCancel("rpc_conn", s.connTask(conn), func() {
			_ = conn.Close()
			s.conns.Delete(id)
			s.logger.Debug("rpc connection closed", "conn_id", id)
		})
		if err != nil {
			_ = conn.Close()
			s.conns.Delete(id)

			return false
		}

		return true
	}
}

// connTask answers one request line per iteration.
func (s *Server) connTask(conn net.Conn) task.Func {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), s.opts.maxLineSize)

	return func() bool {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("rpc read failed", "error", err)
			}

			return false
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			return true
		}

		ctx, cancel := context.WithTimeout(s.taskMgr.Context(), s.opts.requestTimeout)
		resp := s.HandleContext(ctx, line)
		cancel()

		if _, err := conn.Write(append(resp[:len(resp):len(resp)], '\n')); err != nil {
			s.logger.Debug("rpc write failed", "error", err)
			return false
		}

		return true
	}
}
