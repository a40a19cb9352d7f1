// Package mux implements the multiplexer of spec.md §4.4: it serializes
// commands from many concurrent producers onto one connection's writer,
// keeps a FIFO of pending completions, and matches decoded replies back to
// them in submission order.
package mux

import (
	"context"
	"fmt"
	"sync"

	"github.com/rsms/go-log"
	uuid "github.com/rsms/go-uuid"
	"github.com/rsms/rdx/conn"
	"github.com/rsms/rdx/resp"
)

// PushHandler receives out-of-band push frames (RESP3 '>'), the diversion
// hook spec.md §1 places outside this core's scope, callers that want
// pub/sub or client-side caching invalidation wire one in.
type PushHandler func(resp.Value)

// request is one submitted command awaiting a reply.
type request struct {
	cmd    resp.Command
	result chan Result
	id     string
}

// Result is what a submitted command resolves to: either a decoded Value or
// a transport-level error (the command was never acknowledged).
type Result struct {
	Value resp.Value
	Err   error
}

// Mux owns exactly one conn.Conn. Callers submit through Send/SendBatch from
// any number of goroutines; Mux serializes them onto the connection.
type Mux struct {
	conn     *conn.Conn
	logger   *log.Logger
	onPush   PushHandler
	maxBatch int

	submit  chan []*request
	stop    chan struct{}
	stopOnce sync.Once
	stopped sync.WaitGroup

	mu      sync.Mutex
	pending []*request
	closed  bool
}

// requestStop closes the stop channel exactly once, signalling both
// goroutines to exit. Safe to call from either of them or from Close.
func (m *Mux) requestStop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// New creates a Mux bound to c. maxBatch is the number of queued commands
// after which the writer stops pulling further submissions into the current
// WriteBatch call; 0 means unbounded (drain whatever is queued). One
// SendBatch submission is never split, so a single write can hold more than
// maxBatch commands. The submit channel is buffered to 64 submissions;
// Send and SendBatch block while it is full.
func New(c *conn.Conn, logger *log.Logger, onPush PushHandler, maxBatch int) *Mux {
	return &Mux{
		conn:     c,
		logger:   logger,
		onPush:   onPush,
		maxBatch: maxBatch,
		submit:   make(chan []*request, 64),
		stop:     make(chan struct{}),
	}
}

// Start launches the writer and reader goroutines. It must be called once
// after conn.Open succeeds.
func (m *Mux) Start() {
	m.stopped.Add(2)
	go m.writeLoop()
	go m.readLoop()
}

// Send submits a single command and blocks until its reply arrives, ctx is
// cancelled, or the connection fails.
func (m *Mux) Send(ctx context.Context, cmd resp.Command) (resp.Value, error) {
	results, err := m.SendBatch(ctx, []resp.Command{cmd})
	if err != nil {
		return resp.Value{}, err
	}
	return results[0], nil
}

// SendBatch submits commands as one contiguous wire write, preserving
// ordering, and blocks until every reply has arrived or ctx is cancelled.
// The whole batch is handed to the writer as a single message so that, for
// callers like the cluster router's ASKING-then-command pair, nothing else
// can land on the wire between the batch's commands.
func (m *Mux) SendBatch(ctx context.Context, cmds []resp.Command) ([]resp.Value, error) {
	if len(cmds) == 0 {
		return nil, nil
	}
	reqs := make([]*request, len(cmds))
	for i, cmd := range cmds {
		reqs[i] = &request{cmd: cmd, result: make(chan Result, 1), id: uuid.MustGen().String()}
	}

	select {
	case m.submit <- reqs:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.stop:
		return nil, fmt.Errorf("mux: closed")
	}

	values := make([]resp.Value, len(reqs))
	for i, r := range reqs {
		select {
		case res := <-r.result:
			if res.Err != nil {
				return nil, res.Err
			}
			values[i] = res.Value
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.stop:
			// A concurrent failure may race the drain against this select;
			// give the already-queued result one last chance before giving up.
			select {
			case res := <-r.result:
				if res.Err != nil {
					return nil, res.Err
				}
				values[i] = res.Value
			default:
				return nil, fmt.Errorf("mux: closed")
			}
		}
	}
	return values, nil
}

// writeLoop drains whatever is queued on submit (up to maxBatch), issues one
// WriteBatch per drain, and appends the drained requests to the pending FIFO
// in the same order they were written to the wire.
func (m *Mux) writeLoop() {
	defer m.stopped.Done()
	batch := make([]*request, 0, 16)
	for {
		select {
		case reqs := <-m.submit:
			batch = append(batch[:0], reqs...)
		drain:
			for m.maxBatch == 0 || len(batch) < m.maxBatch {
				select {
				case reqs := <-m.submit:
					batch = append(batch, reqs...)
				default:
					break drain
				}
			}

			cmds := make([]resp.Command, len(batch))
			for i, r := range batch {
				cmds[i] = r.cmd
			}
			if err := m.conn.WriteBatch(cmds); err != nil {
				m.failAll(err, batch)
				m.drainPending(err)
				m.requestStop()
				return
			}

			m.mu.Lock()
			m.pending = append(m.pending, batch...)
			m.mu.Unlock()

			if m.logger != nil {
				m.logger.Debug("mux: wrote batch of %d (first id %s)", len(batch), batch[0].id)
			}

		case <-m.stop:
			return
		}
	}
}

// readLoop pops the FIFO head for every non-push value decoded from the
// connection, and fans a terminal error out to every still-pending request.
// A read failure is fatal to this Mux: the connection is down until a
// higher layer reconnects and starts a fresh Mux over it, so the loop drains
// and stops rather than spinning on a dead socket.
func (m *Mux) readLoop() {
	defer m.stopped.Done()
	for {
		select {
		case <-m.stop:
			return
		default:
		}

		v, err := m.conn.Read()
		if err != nil {
			m.drainPending(err)
			m.requestStop()
			return
		}

		if v.Kind == resp.KindPush {
			if m.onPush != nil {
				m.onPush(v)
			} else if m.logger != nil {
				m.logger.Warn("mux: dropped push frame, no handler installed")
			}
			continue
		}

		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			if m.logger != nil {
				m.logger.Warn("mux: reply with no pending request: %s", v.Kind)
			}
			continue
		}
		r := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		if m.logger != nil {
			m.logger.Debug("mux: delivered reply %s", r.id)
		}
		r.result <- Result{Value: v}
	}
}

func (m *Mux) failAll(err error, reqs []*request) {
	for _, r := range reqs {
		r.result <- Result{Err: err}
	}
}

// drainPending fails every queued request on a connection failure, spec.md
// §4.4's "disconnect fans the error out to the whole FIFO" contract.
func (m *Mux) drainPending(err error) {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, r := range pending {
		r.result <- Result{Err: err}
	}
}

// Close stops the writer/reader goroutines and fails any pending requests.
func (m *Mux) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	m.requestStop()
	// readLoop is likely blocked inside conn.Read; closing the socket is what
	// unblocks it so stopped.Wait() below can return.
	m.conn.Close()
	m.stopped.Wait()
	m.drainPending(fmt.Errorf("mux: closed"))
}
