package mcpsession

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/toolcatalog"
	"github.com/effective-security/xlog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge/pkg", "mcpsession")

const (
	// DefaultCallTimeout bounds a single tool call.
	DefaultCallTimeout = 30 * time.Second
	// DefaultHandshakeTimeout bounds the initialize handshake.
	DefaultHandshakeTimeout = 30 * time.Second

	clientName    = "mcpbridge"
	clientVersion = "v0.1.0"
)

// Option configures a Client.
type Option func(*Client)

// WithTransport uses the given transport instead of the one parsed from the spec.
func WithTransport(t mcp.Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithCallTimeout sets the per-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.callTimeout = d
	}
}

// WithHandshakeTimeout sets the timeout of the initialize handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.handshakeTimeout = d
	}
}

// WithHTTPClient sets the HTTP client for SSE and streamable transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client is a Session backed by the MCP go-sdk client.
type Client struct {
	spec             string
	transport        mcp.Transport
	httpClient       *http.Client
	callTimeout      time.Duration
	handshakeTimeout time.Duration

	impl   *mcp.Client
	closed atomic.Bool

	// connLock serializes Connect and Close
	connLock sync.Mutex

	// lock guards session and tools
	lock    sync.RWMutex
	session *mcp.ClientSession
	tools   map[string]*mcp.Tool
}

var _ Session = (*Client)(nil)

// New returns a client for the server at spec. See ParseTransport for the
// accepted formats. The spec is ignored when WithTransport is given.
func New(spec string, opts ...Option) *Client {
	c := &Client{
		spec:             spec,
		callTimeout:      DefaultCallTimeout,
		handshakeTimeout: DefaultHandshakeTimeout,
		impl:             mcp.NewClient(&mcp.Implementation{Name: clientName, Version: clientVersion}, nil),
		tools:            map[string]*mcp.Tool{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect creates a client and performs the handshake.
func Connect(ctx context.Context, spec string, opts ...Option) (*Client, error) {
	c := New(spec, opts...)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect starts the transport and performs the initialize handshake.
func (c *Client) Connect(ctx context.Context) error {
	c.connLock.Lock()
	defer c.connLock.Unlock()

	if c.current() != nil {
		return nil
	}

	transport := c.transport
	if transport == nil {
		ts, err := ParseTransport(c.spec)
		if err != nil {
			return errors.Mark(err, ErrSession)
		}
		transport = ts.Transport(c.httpClient)
		logger.ContextKV(ctx, xlog.DEBUG, "transport", ts.String())
	}

	hctx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()

	session, err := c.impl.Connect(hctx, transport, nil)
	if err != nil {
		logger.KV(xlog.ERROR, "reason", "connect", "server", c.spec, "err", err.Error())
		return errors.Mark(errors.Wrapf(err, "unable to connect to %q", c.spec), ErrSession)
	}
	c.lock.Lock()
	c.session = session
	c.lock.Unlock()
	c.closed.Store(false)

	go func() {
		_ = session.Wait()
		if c.current() == session {
			c.closed.Store(true)
		}
	}()

	logger.ContextKV(ctx, xlog.DEBUG, "status", "connected", "server", c.spec)
	return nil
}

// ListTools implements Session.
func (c *Client) ListTools(ctx context.Context) ([]toolcatalog.RawDescriptor, error) {
	session, err := c.ensureOpen()
	if err != nil {
		return nil, err
	}

	var list []toolcatalog.RawDescriptor
	tools := map[string]*mcp.Tool{}
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, c.sessionError(ctx, err, "list tools")
		}
		if tool == nil {
			continue
		}
		tools[tool.Name] = tool
		list = append(list, toRawDescriptor(tool))
	}

	c.lock.Lock()
	c.tools = tools
	c.lock.Unlock()

	logger.ContextKV(ctx, xlog.DEBUG, "tools", len(list))
	return list, nil
}

// CallTool implements Session.
// Only tools returned by the last ListTools can be called.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	session, err := c.ensureOpen()
	if err != nil {
		return "", err
	}

	c.lock.RLock()
	_, known := c.tools[name]
	c.lock.RUnlock()
	if !known {
		return "", errors.WithMessagef(ErrUnknownTool, "%q", name)
	}

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	cctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	started := time.Now()
	res, err := session.CallTool(cctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	elapsed := time.Since(started)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return "", errors.Wrapf(ctx.Err(), "call %q", name)
		case errors.Is(cctx.Err(), context.DeadlineExceeded):
			return "", errors.WithMessagef(ErrToolTimeout, "%q after %s", name, c.callTimeout)
		case c.lost(err):
			return "", c.sessionError(ctx, err, "call "+name)
		case strings.Contains(strings.ToLower(err.Error()), "unknown tool"):
			return "", errors.WithMessagef(ErrUnknownTool, "%q: %s", name, err.Error())
		default:
			return "", errors.Mark(errors.Wrapf(err, "call %q", name), ErrToolExecution)
		}
	}

	out := RenderResult(res)
	if res.IsError {
		logger.ContextKV(ctx, xlog.DEBUG, "tool", name, "status", "error", "elapsed", elapsed.String())
		return "", errors.WithMessagef(ErrToolExecution, "%q: %s", name, out)
	}

	logger.ContextKV(ctx, xlog.DEBUG, "tool", name, "status", "ok", "elapsed", elapsed.String(), "size", len(out))
	return out, nil
}

// ConcurrencySafe implements Session.
// It is true only when every named tool advertises the read-only hint.
func (c *Client) ConcurrencySafe(names ...string) bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	for _, name := range names {
		t, ok := c.tools[name]
		if !ok || t.Annotations == nil || !t.Annotations.ReadOnlyHint {
			return false
		}
	}
	return true
}

// Ping checks that the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	session, err := c.ensureOpen()
	if err != nil {
		return err
	}
	if err := session.Ping(ctx, nil); err != nil {
		return c.sessionError(ctx, err, "ping")
	}
	return nil
}

// Close implements Session.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.connLock.Lock()
	defer c.connLock.Unlock()

	c.lock.Lock()
	session := c.session
	c.session = nil
	c.lock.Unlock()
	if session == nil {
		return nil
	}

	c.closed.Store(true)
	if err := session.Close(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (c *Client) current() *mcp.ClientSession {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.session
}

// ensureOpen returns a snapshot of the live session.
func (c *Client) ensureOpen() (*mcp.ClientSession, error) {
	session := c.current()
	if session == nil || c.closed.Load() {
		return nil, errors.WithMessage(ErrSession, "not connected")
	}
	return session, nil
}

func (c *Client) lost(err error) bool {
	if c.closed.Load() {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	return strings.Contains(err.Error(), "connection closed")
}

func (c *Client) sessionError(ctx context.Context, err error, op string) error {
	if ctx.Err() != nil {
		return errors.Wrapf(ctx.Err(), "%s", op)
	}
	logger.KV(xlog.ERROR, "reason", op, "server", c.spec, "err", err.Error())
	return errors.Mark(errors.Wrapf(err, "%s", op), ErrSession)
}

func toRawDescriptor(t *mcp.Tool) toolcatalog.RawDescriptor {
	d := toolcatalog.RawDescriptor{
		Name:        t.Name,
		Title:       t.Title,
		Description: t.Description,
		InputSchema: t.InputSchema,
	}
	if t.Annotations != nil {
		d.ReadOnly = t.Annotations.ReadOnlyHint
		if d.Title == "" {
			d.Title = t.Annotations.Title
		}
	}
	return d
}
