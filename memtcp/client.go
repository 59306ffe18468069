package memtcp

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-rogue/internal/pool"
	"github.com/arloliu/go-rogue/internal/task"
	"github.com/arloliu/go-rogue/logger"
	"github.com/arloliu/go-rogue/memory"
)

// Client is a memory.Slave forwarding transactions to a remote Server.
//
// DoTransaction returns once the request is queued. The transaction is resolved when its reply
// arrives, with TimeoutError when no reply arrives within the reply timeout, or with BusFail when
// the connection is lost.
type Client struct {
	pctx   context.Context
	cfg    *ConnectionConfig
	logger logger.Logger

	state   AtomicOpState
	conn    net.Conn
	connMu  sync.Mutex
	taskMgr *task.Manager
	reader  frameReader

	requests chan *memory.Transaction
	pending  *xsync.MapOf[uint32, *pendingTx]

	metrics ConnectionMetrics
}

type pendingTx struct {
	tx    *memory.Transaction
	timer *time.Timer
}

var _ memory.Slave = (*Client)(nil)

// NewClient creates a client dialing the server configured in cfg.
func NewClient(ctx context.Context, cfg *ConnectionConfig) (*Client, error) {
	if cfg == nil {
		return nil, ErrConnConfigNil
	}

	l := cfg.Logger().With("component", "memtcp.client")

	return &Client{
		pctx:     ctx,
		cfg:      cfg,
		logger:   l,
		taskMgr:  task.NewManager(ctx, l),
		reader:   frameReader{timeout: cfg.WriteTimeout(), maxFrameSize: cfg.MaxFrameSize()},
		requests: make(chan *memory.Transaction, cfg.senderQueueSize),
		pending:  xsync.NewMapOf[uint32, *pendingTx](),
	}, nil
}

// MinAccess implements memory.Slave.
func (c *Client) MinAccess() uint32 { return c.cfg.minAccess }

// MaxAccess implements memory.Slave.
func (c *Client) MaxAccess() uint32 { return c.cfg.maxAccess }

// Metrics returns the client metrics.
func (c *Client) Metrics() *ConnectionMetrics {
	return &c.metrics
}

// IsOpened returns true while the connection is established.
func (c *Client) IsOpened() bool {
	return c.state.IsOpened()
}

// Open dials the server and starts the sender and receiver tasks.
func (c *Client) Open() error {
	if !c.state.ToOpening() {
		return ErrAlreadyOpened
	}

	// re-arm the task manager after a previous connection loss
	c.taskMgr.Wait()

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout()}
	conn, err := dialer.DialContext(c.pctx, "tcp", c.cfg.Address())
	if err != nil {
		c.logger.Error("failed to connect", "address", c.cfg.Address(), "error", err)
		c.state.Set(ClosedState)

		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.metrics.ConnCount.Add(1)

	if err := c.taskMgr.StartWithCancel("receiverTask", c.receiverTask, c.connLost); err != nil {
		c.closeConn()
		c.state.Set(ClosedState)

		return err
	}
	_ = c.taskMgr.Start("senderTask", c.senderTask)

	c.state.ToOpened()
	c.logger.Info("memory client connected", "address", c.cfg.Address())

	return nil
}

// Close closes the connection and resolves every pending transaction with BusFail.
func (c *Client) Close() error {
	c.state.ToClosing()

	c.taskMgr.Stop()
	c.closeConn()
	c.taskMgr.Wait()
	c.dropPending()

	c.state.Set(ClosedState)

	return nil
}

// DoTransaction implements memory.Slave.
func (c *Client) DoTransaction(tx *memory.Transaction) {
	if !c.state.IsOpened() {
		tx.Done(memory.BusFail)
		return
	}
	if uint64(tx.Size())+HeaderSize > uint64(c.cfg.MaxFrameSize()) {
		tx.Done(memory.SizeError)
		return
	}

	id := tx.ID()
	p := &pendingTx{tx: tx}
	p.timer = time.AfterFunc(c.cfg.ReplyTimeout(), func() {
		if c.removePending(id, p) {
			c.metrics.decInflightCount()
			c.metrics.incTimeoutCount()
			c.logger.Warn("transaction reply timeout", "id", id, "address", tx.Address())
			tx.Done(memory.TimeoutError)
		}
	})

	c.metrics.incInflightCount()
	if _, loaded := c.pending.LoadOrStore(id, p); loaded {
		p.timer.Stop()
		c.metrics.decInflightCount()
		c.logger.Warn("duplicate transaction id in flight", "id", id)
		tx.Done(memory.BusFail)

		return
	}

	timer := pool.GetTimer(c.cfg.WriteTimeout())
	defer pool.PutTimer(timer)

	select {
	case c.requests <- tx:
	case <-timer.C:
		c.resolve(id, memory.TimeoutError)
	}
}

// removePending deletes id only while it still maps to p, and reports whether it did.
func (c *Client) removePending(id uint32, p *pendingTx) bool {
	removed := false
	c.pending.Compute(id, func(old *pendingTx, loaded bool) (*pendingTx, bool) {
		if loaded && old == p {
			removed = true
			return nil, true
		}

		// keep a foreign entry, never insert a missing one
		return old, !loaded
	})

	return removed
}

// resolve removes id from the pending map and resolves its transaction with status.
func (c *Client) resolve(id uint32, status memory.Status) {
	p, ok := c.pending.LoadAndDelete(id)
	if !ok {
		return
	}
	p.timer.Stop()
	c.metrics.decInflightCount()
	p.tx.Done(status)
}

func (c *Client) senderTask() bool {
	ctx := c.taskMgr.Context()

	select {
	case <-ctx.Done():
		return false
	case tx := <-c.requests:
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			c.resolve(tx.ID(), memory.BusFail)
			return false
		}

		if err := writeFrame(conn, RequestFrame(tx), c.cfg.WriteTimeout()); err != nil {
			c.metrics.incFrameErrCount()
			if !isClosedErr(err) {
				c.logger.Error("failed to send request", "id", tx.ID(), "error", err)
			}
			c.resolve(tx.ID(), memory.BusFail)
			c.closeConn()

			return false
		}
		c.metrics.incFrameSendCount()

		return true
	}
}

func (c *Client) receiverTask() bool {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return false
	}

	f, err := c.reader.ReadFrame(conn)
	if err != nil {
		if !isClosedErr(err) {
			c.metrics.incFrameErrCount()
			c.logger.Error("failed to read reply", "error", err)
		}

		return false
	}
	c.metrics.incFrameRecvCount()

	p, ok := c.pending.LoadAndDelete(f.ID)
	if !ok {
		c.logger.Debug("drop reply without pending transaction", "id", f.ID)
		return true
	}
	p.timer.Stop()
	c.metrics.decInflightCount()

	if f.Status == memory.Success && len(f.Data) > 0 && !p.tx.Type().IsWrite() {
		if err := p.tx.SetData(f.Data, 0); err != nil {
			p.tx.Done(memory.BusFail)
			return true
		}
	}
	p.tx.Done(f.Status)

	return true
}

// connLost runs when the receiver exits, by Close or by a broken connection.
func (c *Client) connLost() {
	if c.state.ToClosing() {
		c.logger.Warn("connection lost", "address", c.cfg.Address())
		c.taskMgr.Stop()
		c.closeConn()
		c.dropPending()
		c.state.Set(ClosedState)
	}
}

func (c *Client) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return
	}
	if tcpConn, ok := c.conn.(*net.TCPConn); ok {
		_ = tcpConn.SetLinger(0)
	}
	_ = c.conn.Close()
	c.conn = nil
	c.metrics.ConnCount.Add(-1)
}

// dropPending resolves every pending and queued transaction with BusFail.
func (c *Client) dropPending() {
drain:
	for {
		select {
		case tx := <-c.requests:
			c.resolve(tx.ID(), memory.BusFail)
		default:
			break drain
		}
	}

	c.pending.Range(func(id uint32, _ *pendingTx) bool {
		c.resolve(id, memory.BusFail)
		return true
	})
}
