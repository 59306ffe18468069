package rpc

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/arloliu/go-rogue/logger"
)

// Client calls a Server over TCP. Calls are serialized on one connection.
type Client struct {
	opts   *options
	logger logger.Logger

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	return &Client{
		opts:   o,
		logger: o.logger.With("component", "rpc_client", "remote", addr),
		conn:   conn,
		reader: bufio.NewReaderSize(conn, 4096),
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil

	return err
}

// Call sends req and returns the raw response line without the trailing newline.
func (c *Client) Call(ctx context.Context, req Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrClientClosed
	}

	deadline := time.Now().Add(c.opts.requestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := c.conn.Write(data); err != nil {
		return nil, c.fail(err)
	}

	var line []byte
	for {
		chunk, err := c.reader.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > c.opts.maxLineSize {
			return nil, c.fail(ErrResponseTooLarge)
		}
		if err == nil {
			break
		}
		if err != bufio.ErrBufferFull {
			return nil, c.fail(err)
		}
	}

	return bytes.TrimRight(line, "\r\n"), nil
}

// fail closes the connection after a transport error, since the stream position is lost.
func (c *Client) fail(err error) error {
	c.logger.Debug("rpc call failed, closing connection", "error", err)
	_ = c.conn.Close()
	c.conn = nil

	return err
}

// Do sends req and decodes the JSON response. A "null" response returns ErrNodeNotFound and an
// error object returns a *RemoteError.
func (c *Client) Do(ctx context.Context, req Request) (any, error) {
	resp, err := c.Call(ctx, req)
	if err != nil {
		return nil, err
	}

	return decodeResponse(resp)
}

func decodeResponse(resp []byte) (any, error) {
	if bytes.Equal(resp, nullReply) {
		return nil, ErrNodeNotFound
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(resp))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("rpc: decode response: %w", err)
	}

	if m, ok := v.(map[string]any); ok && len(m) == 1 {
		if msg, ok := m["error"].(string); ok {
			return nil, &RemoteError{Message: msg}
		}
	}

	return normalizeNumber(v), nil
}

// RootName returns the name of the remote root.
func (c *Client) RootName(ctx context.Context) (string, error) {
	return c.doString(ctx, Request{Path: PathRootName})
}

// Structure returns the YAML structure of the remote tree.
func (c *Client) Structure(ctx context.Context) (string, error) {
	return c.doString(ctx, Request{Path: PathStructure})
}

// Get reads the variable at path.
func (c *Client) Get(ctx context.Context, path string) (any, error) {
	return c.Do(ctx, Request{Path: path, Attr: "get"})
}

// GetDisp reads the variable at path and returns its display string.
func (c *Client) GetDisp(ctx context.Context, path string) (string, error) {
	return c.doString(ctx, Request{Path: path, Attr: "disp"})
}

// Set writes value to the variable at path.
func (c *Client) Set(ctx context.Context, path string, value any) error {
	_, err := c.Do(ctx, Request{Path: path, Attr: "set", Args: []any{value}})
	return err
}

// Exec runs the command at path. A nil arg sends no argument.
func (c *Client) Exec(ctx context.Context, path string, arg any) (any, error) {
	req := Request{Path: path, Attr: "exec"}
	if arg != nil {
		req.Args = []any{arg}
	}

	return c.Do(ctx, req)
}

func (c *Client) doString(ctx context.Context, req Request) (string, error) {
	v, err := c.Do(ctx, req)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("rpc: unexpected %T response for %s", v, req.Path)
	}

	return s, nil
}
