// Package conn implements the standalone connection state machine of
// spec.md §4.3: a single duplex stream to one server endpoint, performing
// the HELLO/AUTH/SELECT handshake and owning its own reconnection.
package conn

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rsms/go-log"
	"github.com/rsms/rdx/resp"
)

// State is one of the five states spec.md §4.3 names.
type State int

const (
	StateConnecting State = iota
	StateHandshaking
	StateReady
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds a connection's handshake parameters, spec.md §6's
// per-connection subset of the configuration surface. Defaults are resolved
// the way redispipe's Opts are (zero value -> sensible default), grounded on
// redisconn.Connect's opts-resolution cascade.
type Config struct {
	Network        string // "tcp" (default) or "unix"
	Addr           string
	Username       string
	Password       string
	Database       int
	ConnectTimeout time.Duration
	ConnectionName string
	TLS            *tls.Config
}

func (c Config) withDefaults() Config {
	if c.Network == "" {
		c.Network = "tcp"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	return c
}

// Conn is one physical connection to one server endpoint.
type Conn struct {
	cfg    Config
	logger *log.Logger

	mu    sync.Mutex
	state State
	nc    net.Conn
	dec   resp.StreamDecoder
	wbuf  []byte
}

// New creates a Conn in the Connecting state. Open must be called before use.
func New(cfg Config, logger *log.Logger) *Conn {
	return &Conn{cfg: cfg.withDefaults(), logger: logger, state: StateConnecting}
}

// NewFromConn wraps an already-established net.Conn as a Ready Conn,
// skipping dial and handshake. Intended for tests that stand up a fake
// server with net.Pipe or a local listener.
func NewFromConn(nc net.Conn, cfg Config, logger *log.Logger) *Conn {
	c := &Conn{cfg: cfg.withDefaults(), logger: logger, nc: nc, state: StateReady}
	return c
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s && c.logger != nil {
		c.logger.Debug("%s: %s -> %s", c.cfg.Addr, prev, s)
	}
}

// Open dials the server and runs the handshake (HELLO 3, optional AUTH,
// optional SETNAME, optional SELECT), leaving the connection Ready.
func (c *Conn) Open(ctx context.Context) error {
	c.setState(StateConnecting)
	d := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	var nc net.Conn
	var err error
	if c.cfg.TLS != nil {
		nc, err = tls.DialWithDialer(&d, c.cfg.Network, c.cfg.Addr, c.cfg.TLS)
	} else {
		nc, err = d.DialContext(ctx, c.cfg.Network, c.cfg.Addr)
	}
	if err != nil {
		return fmt.Errorf("conn: dial %s: %w", c.cfg.Addr, err)
	}

	c.mu.Lock()
	c.nc = nc
	c.dec = resp.StreamDecoder{}
	c.wbuf = c.wbuf[:0]
	c.mu.Unlock()

	c.setState(StateHandshaking)
	if err := c.handshake(); err != nil {
		nc.Close()
		return err
	}
	c.setState(StateReady)
	if c.logger != nil {
		c.logger.Info("connected to %s", c.cfg.Addr)
	}
	return nil
}

func (c *Conn) handshake() error {
	helloArgs := [][]byte{[]byte("3")}
	if c.cfg.Username != "" || c.cfg.Password != "" {
		helloArgs = append(helloArgs, []byte("AUTH"), []byte(c.cfg.Username), []byte(c.cfg.Password))
	}
	if c.cfg.ConnectionName != "" {
		helloArgs = append(helloArgs, []byte("SETNAME"), []byte(c.cfg.ConnectionName))
	}
	if err := c.Write(resp.Command{Name: "HELLO", Args: helloArgs}); err != nil {
		return fmt.Errorf("conn: HELLO: %w", err)
	}
	v, err := c.Read()
	if err != nil {
		return fmt.Errorf("conn: HELLO reply: %w", err)
	}
	if v.IsError() {
		return fmt.Errorf("conn: HELLO rejected: %s", v.Err.Message)
	}

	if c.cfg.Database != 0 {
		if err := c.Write(resp.NewCommand("SELECT", itoa(c.cfg.Database))); err != nil {
			return fmt.Errorf("conn: SELECT: %w", err)
		}
		v, err := c.Read()
		if err != nil {
			return fmt.Errorf("conn: SELECT reply: %w", err)
		}
		if v.IsError() {
			return fmt.Errorf("conn: SELECT rejected: %s", v.Err.Message)
		}
	}
	return nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Write encodes and sends a single command, blocking until the bytes are
// flushed to the socket. It does not await the reply (spec.md §4.3).
func (c *Conn) Write(cmd resp.Command) error {
	return c.WriteBatch([]resp.Command{cmd})
}

// WriteBatch encodes all commands into a single buffer and issues exactly
// one underlying socket write, preserving submission order, the mechanism
// spec.md §5 relies on for "a batch of commands is guaranteed to hit the
// wire contiguously."
func (c *Conn) WriteBatch(cmds []resp.Command) error {
	c.mu.Lock()
	nc := c.nc
	buf := c.wbuf[:0]
	for _, cmd := range cmds {
		buf = cmd.Append(buf)
	}
	c.wbuf = buf
	c.mu.Unlock()

	if nc == nil {
		return fmt.Errorf("conn: not connected")
	}
	if _, err := nc.Write(buf); err != nil {
		c.fail(err)
		return err
	}
	return nil
}

// Read returns the next decoded Value, blocking on the socket as needed.
func (c *Conn) Read() (resp.Value, error) {
	for {
		c.mu.Lock()
		v, err := c.dec.Next()
		nc := c.nc
		c.mu.Unlock()

		if err == nil {
			return v, nil
		}
		if err != resp.ErrNeedMore {
			c.fail(err)
			return resp.Value{}, err
		}
		if nc == nil {
			return resp.Value{}, fmt.Errorf("conn: not connected")
		}
		b := make([]byte, 4096)
		n, rerr := nc.Read(b)
		if n > 0 {
			c.mu.Lock()
			c.dec.Feed(b[:n])
			c.mu.Unlock()
		}
		if rerr != nil {
			c.fail(rerr)
			return resp.Value{}, rerr
		}
	}
}

// fail transitions the connection to Reconnecting on any I/O or protocol
// error (spec.md §7: Protocol/IO errors are fatal to the current
// connection).
func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.nc != nil {
		c.nc.Close()
		c.nc = nil
	}
	c.mu.Unlock()
	c.setState(StateReconnecting)
	if c.logger != nil {
		c.logger.Warn("%s: connection failed: %v", c.cfg.Addr, err)
	}
}

// Reconnect tears down and re-runs the open sequence, restoring the
// handshake state (auth, name, database) from cfg.
func (c *Conn) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.nc != nil {
		c.nc.Close()
		c.nc = nil
	}
	c.mu.Unlock()
	return c.Open(ctx)
}

// Close releases the underlying socket and marks the connection Closed.
func (c *Conn) Close() error {
	c.mu.Lock()
	nc := c.nc
	c.nc = nil
	c.mu.Unlock()
	c.setState(StateClosed)
	if nc != nil {
		return nc.Close()
	}
	return nil
}
