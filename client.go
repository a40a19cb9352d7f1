// Package rdx is the public facade of the cluster-aware RESP client: it
// owns a Client that wraps the cluster router (rdx/cluster), applying
// per-command timeouts and translating router-level failures into the
// closed Err taxonomy (spec.md §7). The wire codec (rdx/resp), command
// catalog (rdx/catalog), standalone connection (rdx/conn), and multiplexer
// (rdx/mux) are the sub-packages this facade is built on; callers that only
// need one of those concerns can import it directly instead of going
// through Client.
package rdx

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"github.com/rsms/go-log"
	"github.com/rsms/rdx/cluster"
	"github.com/rsms/rdx/conn"
	"github.com/rsms/rdx/resp"
)

// Config is the configuration surface spec.md §6 enumerates. Every field
// has a zero-value default resolved the way the teacher's redis/redis.go
// resolves Redis.Open's parameters and the way redispipe's Opts cascade
// resolves theirs (see SPEC_FULL.md §4.7): a plain struct, no file-based
// parser.
type Config struct {
	// Nodes is the ordered seed list of "host:port" cluster nodes. At
	// least one is required.
	Nodes []string

	Username string
	Password string
	Database int

	ConnectTimeout time.Duration
	CommandTimeout time.Duration

	RetryOnError       bool
	MaxCommandAttempts int

	ConnectionName string
	TLS            *tls.Config

	// MaxBatchSize is the number of queued commands after which a
	// connection's writer stops coalescing more into the current wire write.
	// One submitted batch is never split, so a write can exceed it. 0 means
	// unbounded.
	MaxBatchSize int
}

func (c Config) toClusterConfig() cluster.Config {
	return cluster.Config{
		Nodes: c.Nodes,
		ConnConfig: conn.Config{
			Username:       c.Username,
			Password:       c.Password,
			Database:       c.Database,
			ConnectTimeout: c.ConnectTimeout,
			ConnectionName: c.ConnectionName,
			TLS:            c.TLS,
		},
		MaxBatchSize:       c.MaxBatchSize,
		CommandTimeout:     c.CommandTimeout,
		RetryOnError:       c.RetryOnError,
		MaxCommandAttempts: c.MaxCommandAttempts,
	}
}

// Client is the library's submission surface (spec.md §6): Send and
// SendBatch, backed by a cluster router.
type Client struct {
	router *cluster.Router
	logger *log.Logger
	cfg    Config
}

// New creates a Client and runs initial cluster discovery against cfg.Nodes,
// mirroring the teacher's Redis.Open(...)/OpenRetry eagerly connecting
// before returning a usable handle.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if len(cfg.Nodes) == 0 {
		return nil, newErr(ErrIO, "no seed nodes configured", nil)
	}
	router := cluster.NewRouter(cfg.toClusterConfig(), logger)
	if err := router.Connect(ctx); err != nil {
		return nil, newErr(ErrDisconnected, "cluster discovery failed", err)
	}
	return &Client{router: router, logger: logger, cfg: cfg}, nil
}

// Send submits one command and returns its aggregated reply (spec.md §6).
// If cfg.CommandTimeout is set, the command is raced against a timer;
// losing that race surfaces ErrTimeout while the in-flight sub-requests
// keep running to completion (spec.md §5 "Cancellation").
func (cl *Client) Send(ctx context.Context, name string, args ...string) (resp.Value, error) {
	return cl.SendCommand(ctx, resp.NewCommand(name, args...))
}

// SendCommand is Send for a pre-built Command (e.g. with []byte arguments
// that aren't valid UTF-8 strings).
func (cl *Client) SendCommand(ctx context.Context, cmd resp.Command) (resp.Value, error) {
	ctx, cancel := cl.withCommandTimeout(ctx)
	defer cancel()

	v, err := cl.router.Send(ctx, cmd)
	if err != nil {
		return resp.Value{}, cl.classify(err)
	}
	return v, nil
}

// SendBatch submits commands in order and returns one Value per input,
// preserving order (spec.md §6), using cfg.RetryOnError as every command's
// retry policy.
func (cl *Client) SendBatch(ctx context.Context, cmds []resp.Command) ([]resp.Value, error) {
	return cl.sendBatch(ctx, cmds, nil)
}

// SendBatchWithRetry is SendBatch with retryOnError overriding cfg.RetryOnError
// for this call only (spec.md §6 "send_batch(commands, retry_on_error_override)").
func (cl *Client) SendBatchWithRetry(ctx context.Context, cmds []resp.Command, retryOnError bool) ([]resp.Value, error) {
	return cl.sendBatch(ctx, cmds, &retryOnError)
}

func (cl *Client) sendBatch(ctx context.Context, cmds []resp.Command, retryOnErrorOverride *bool) ([]resp.Value, error) {
	ctx, cancel := cl.withCommandTimeout(ctx)
	defer cancel()

	vs, err := cl.router.SendBatch(ctx, cmds, retryOnErrorOverride)
	if err != nil {
		return nil, cl.classify(err)
	}
	return vs, nil
}

func (cl *Client) withCommandTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if cl.cfg.CommandTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, cl.cfg.CommandTimeout)
}

// classify maps a router-level error onto the closed Err taxonomy
// (spec.md §7). Apart from DisconnectError and ExhaustedError, the router's
// own errors are plain fmt.Errorf values (see DESIGN.md for why that layer
// stays unwrapped); this is the one seam where they're given a Kind for
// callers that branch on it. Every error that is not a timeout, an
// exhausted budget or a disconnect, including the router's cross-slot and
// unknown-command errors, is reported as ErrServer; classify never
// produces ErrProtocol, ErrCrossSlot or ErrUnknownCommand.
func (cl *Client) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newErr(ErrTimeout, "command timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return newErr(ErrTimeout, "command canceled", err)
	}
	if cluster.IsExhausted(err) {
		return newErr(ErrExhausted, "retry budget exhausted", err)
	}
	if cluster.IsDisconnect(err) {
		return newErr(ErrDisconnected, "connection lost", err)
	}
	return newErr(ErrServer, "command failed", err)
}

// Close tears down every open connection.
func (cl *Client) Close() error {
	return cl.router.Close()
}
