// Package cluster implements the cluster-aware request router of spec.md
// §4.5: it owns the shard table and slot-range index, extracts keys via the
// command catalog, picks a dispatch strategy from the command's
// request-policy, fans sub-requests out to the right physical connections,
// aggregates replies per response-policy, and retries MOVED/ASK redirects.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rsms/go-log"
	"github.com/rsms/rdx/catalog"
	"github.com/rsms/rdx/conn"
	"github.com/rsms/rdx/resp"
)

// DisconnectError wraps a sub-request failure that came from a dead
// connection (mux write/read failure, or a node with no open connection)
// rather than from a server-level error reply. Send's retry loop uses this
// to tell "the node went away mid-request" apart from client-side mistakes
// like an unknown command or a cross-slot key set, which never retry.
type DisconnectError struct{ err error }

func (e *DisconnectError) Error() string { return e.err.Error() }
func (e *DisconnectError) Unwrap() error { return e.err }

// IsDisconnect reports whether err (or anything it wraps) is a
// DisconnectError, the retry-eligible class spec.md §7 calls "Disconnected".
func IsDisconnect(err error) bool {
	var de *DisconnectError
	return errors.As(err, &de)
}

// ExhaustedError marks a retry budget that ran out (spec.md §7's
// "Exhausted" kind), either on disconnect-class failures or on repeated
// MOVED/ASK redirects. It wraps the last disconnect error when the final
// attempt failed that way.
type ExhaustedError struct{ err error }

func (e *ExhaustedError) Error() string { return e.err.Error() }
func (e *ExhaustedError) Unwrap() error { return e.err }

// IsExhausted reports whether err (or anything it wraps) is an ExhaustedError.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

// Config is the cluster-mode subset of the configuration surface (spec.md
// §6): seed nodes plus the per-connection parameters applied to every node
// the router opens.
type Config struct {
	Nodes              []string
	ConnConfig         conn.Config
	MaxBatchSize       int
	CommandTimeout     time.Duration
	RetryOnError       bool
	MaxCommandAttempts int
}

func (c Config) withDefaults() Config {
	if c.MaxCommandAttempts <= 0 {
		c.MaxCommandAttempts = 3
	}
	return c
}

// Router is the cluster-aware client core described by spec.md §4.5.
type Router struct {
	cfg     Config
	logger  *log.Logger
	catalog *catalog.Catalog

	mu     sync.RWMutex
	shards []*Shard
	ranges []SlotRange

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// NewRouter creates a Router; Connect must be called before Send.
func NewRouter(cfg Config, logger *log.Logger) *Router {
	return &Router{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		catalog: catalog.New(),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Connect runs initial discovery (spec.md §4.5).
func (r *Router) Connect(ctx context.Context) error {
	return r.discover(ctx)
}

// Close tears down every open node connection. The Router is not usable
// afterward.
func (r *Router) Close() error {
	r.mu.Lock()
	shards := r.shards
	r.shards = nil
	r.ranges = nil
	r.mu.Unlock()

	for _, s := range shards {
		for _, n := range s.Nodes {
			if n.Mux != nil {
				n.Mux.Close()
			}
		}
	}
	return nil
}

// Send is the router's public submission surface (spec.md §6): it extracts
// keys, dispatches, and retries MOVED/ASK redirects up to the configured
// budget before surfacing an error. Disconnect-class failures are retried
// too, gated by cfg.RetryOnError (spec.md §7's per-request default).
func (r *Router) Send(ctx context.Context, cmd resp.Command) (resp.Value, error) {
	return r.send(ctx, cmd, r.cfg.RetryOnError)
}

// SendBatch submits commands one after another, in order, and returns one
// Value per input (spec.md §6). The first command that fails ends the
// batch: its error is returned and the commands after it are not sent.
// retryOnErrorOverride, when
// non-nil, replaces cfg.RetryOnError for every command in this batch
// (spec.md §6 "send_batch(commands, retry_on_error_override)").
func (r *Router) SendBatch(ctx context.Context, cmds []resp.Command, retryOnErrorOverride *bool) ([]resp.Value, error) {
	retry := r.cfg.RetryOnError
	if retryOnErrorOverride != nil {
		retry = *retryOnErrorOverride
	}
	out := make([]resp.Value, len(cmds))
	for i, cmd := range cmds {
		v, err := r.send(ctx, cmd, retry)
		if err != nil {
			return nil, fmt.Errorf("cluster: command %d (%s): %w", i, cmd.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

// send runs the full retry loop for one command: redirects always retry,
// disconnect-class failures retry only when retryOnError is set.
func (r *Router) send(ctx context.Context, cmd resp.Command, retryOnError bool) (resp.Value, error) {
	askOverrides := map[uint16]RetryReason{}
	var lastReasons []RetryReason
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxCommandAttempts; attempt++ {
		val, reasons, err := r.dispatchOnce(ctx, cmd, askOverrides)
		if err != nil {
			if !retryOnError || !IsDisconnect(err) || ctx.Err() != nil {
				return resp.Value{}, err
			}
			lastErr = err
			if attempt < r.cfg.MaxCommandAttempts {
				if rerr := r.reconnectAll(ctx); rerr != nil {
					return resp.Value{}, rerr
				}
			}
			continue
		}
		if len(reasons) == 0 {
			return val, nil
		}
		lastReasons = reasons
		lastErr = nil

		movedSeen := false
		for _, rr := range reasons {
			switch rr.Kind {
			case RetryMoved:
				movedSeen = true
			case RetryAsk:
				askOverrides[rr.Slot] = rr
			}
		}
		if movedSeen {
			// The open question in spec.md §9: multiple MOVED reasons in one
			// batch just trigger one reconnect-and-retry-all pass, without a
			// backoff; that is the behavior being preserved here.
			if r.logger != nil {
				r.logger.Warn("cluster: MOVED redirect for %s, reconnecting", cmd.Name)
			}
			if err := r.reconnectAll(ctx); err != nil {
				return resp.Value{}, err
			}
		}
	}
	if lastErr != nil {
		return resp.Value{}, &ExhaustedError{fmt.Errorf("cluster: retry budget exhausted after %d attempts: %w", r.cfg.MaxCommandAttempts, lastErr)}
	}
	return resp.Value{}, &ExhaustedError{fmt.Errorf("cluster: retry budget exhausted after %d attempts: %v", r.cfg.MaxCommandAttempts, lastReasons)}
}

// dispatchOnce performs exactly one dispatch-fan out-aggregate pass; it
// never retries itself, returning retry reasons to Send's outer loop
// instead (spec.md §4.5).
func (r *Router) dispatchOnce(ctx context.Context, cmd resp.Command, askOverrides map[uint16]RetryReason) (resp.Value, []RetryReason, error) {
	info, ok := r.catalog.GetInfo(cmd.Name, cmd.Args)
	if !ok {
		return resp.Value{}, nil, fmt.Errorf("cluster: unknown command %q", cmd.Name)
	}

	keys, err := info.ExtractKeys(cmd.Args)
	if err != nil {
		return resp.Value{}, nil, fmt.Errorf("cluster: extracting keys for %q: %w", cmd.Name, err)
	}

	subs, err := r.planDispatch(ctx, info, cmd, keys, askOverrides)
	if err != nil {
		return resp.Value{}, nil, err
	}

	results := r.fanOut(ctx, subs)

	for _, res := range results {
		if res.err != nil {
			return resp.Value{}, nil, &DisconnectError{res.err}
		}
	}

	var reasons []RetryReason
	for _, res := range results {
		if rr, ok := redirectReason(res.value); ok {
			reasons = append(reasons, rr)
		}
	}
	if len(reasons) > 0 {
		return resp.Value{}, reasons, nil
	}

	val, err := aggregate(info.ResponsePolicy, keys, results)
	return val, nil, err
}

// planDispatch resolves a command's request-policy into a concrete list of
// (node, command, keys) sub-requests (spec.md §4.5 "Dispatch strategy
// selection").
func (r *Router) planDispatch(ctx context.Context, info *catalog.CommandInfo, cmd resp.Command, keys [][]byte, askOverrides map[uint16]RetryReason) ([]plannedSub, error) {
	switch info.RequestPolicy {
	case catalog.ReqSpecial:
		return nil, fmt.Errorf("cluster: command %q not supported in cluster mode", cmd.Name)

	case catalog.ReqAllNodes:
		return r.planAllNodes(ctx, cmd)

	case catalog.ReqAllShards:
		return r.planAllShards(cmd)

	case catalog.ReqMultiShard:
		return r.planMultiShard(info, cmd, keys, askOverrides)

	default:
		return r.planDefault(cmd, keys, askOverrides)
	}
}

type plannedSub struct {
	node   *Node
	cmd    resp.Command
	keys   [][]byte
	asking bool
}

func (r *Router) planDefault(cmd resp.Command, keys [][]byte, askOverrides map[uint16]RetryReason) ([]plannedSub, error) {
	if len(keys) == 0 {
		n, err := r.randomMaster()
		if err != nil {
			return nil, err
		}
		return []plannedSub{{node: n, cmd: cmd}}, nil
	}

	slot := HashSlot(keys[0])
	for _, k := range keys[1:] {
		if HashSlot(k) != slot {
			return nil, fmt.Errorf("cluster: cross-slot command %q: keys hash to different slots", cmd.Name)
		}
	}

	n, asking, err := r.nodeForSlot(slot, askOverrides)
	if err != nil {
		return nil, err
	}
	return []plannedSub{{node: n, cmd: cmd, keys: keys, asking: asking}}, nil
}

func (r *Router) planMultiShard(info *catalog.CommandInfo, cmd resp.Command, keys [][]byte, askOverrides map[uint16]RetryReason) ([]plannedSub, error) {
	groups := map[string][][]byte{}
	nodeByGroup := map[string]*Node{}
	askingByGroup := map[string]bool{}

	for _, k := range keys {
		slot := HashSlot(k)
		n, asking, err := r.nodeForSlot(slot, askOverrides)
		if err != nil {
			return nil, err
		}
		groups[n.ID] = append(groups[n.ID], k)
		nodeByGroup[n.ID] = n
		askingByGroup[n.ID] = askingByGroup[n.ID] || asking
	}

	subs := make([]plannedSub, 0, len(groups))
	for id, ks := range groups {
		subCmdArgs, err := info.PrepareSubCommand(cmd.Args, ks)
		if err != nil {
			return nil, fmt.Errorf("cluster: rewriting %q for shard group: %w", cmd.Name, err)
		}
		subs = append(subs, plannedSub{
			node:   nodeByGroup[id],
			cmd:    resp.Command{Name: cmd.Name, Args: subCmdArgs},
			keys:   ks,
			asking: askingByGroup[id],
		})
	}
	return subs, nil
}

func (r *Router) planAllShards(cmd resp.Command) ([]plannedSub, error) {
	r.mu.RLock()
	shards := r.shards
	r.mu.RUnlock()

	subs := make([]plannedSub, 0, len(shards))
	for _, s := range shards {
		subs = append(subs, plannedSub{node: s.Master(), cmd: cmd})
	}
	return subs, nil
}

func (r *Router) planAllNodes(ctx context.Context, cmd resp.Command) ([]plannedSub, error) {
	r.mu.RLock()
	shards := r.shards
	r.mu.RUnlock()

	var subs []plannedSub
	for _, s := range shards {
		for idx := range s.Nodes {
			n, err := r.ensureReplica(ctx, s, idx)
			if err != nil {
				return nil, fmt.Errorf("cluster: opening node for AllNodes dispatch: %w", err)
			}
			subs = append(subs, plannedSub{node: n, cmd: cmd})
		}
	}
	return subs, nil
}

// nodeForSlot resolves slot to its owning master, honoring any ASK override
// currently in effect for that exact slot (spec.md §4.5). The returned bool
// reports whether the target was reached via an ASK override, meaning the
// sub-request must be prefaced with ASKING.
func (r *Router) nodeForSlot(slot uint16, askOverrides map[uint16]RetryReason) (*Node, bool, error) {
	if rr, ok := askOverrides[slot]; ok {
		n := r.nodeByAddr(fmt.Sprintf("%s:%d", rr.Host, rr.Port))
		if n == nil {
			return nil, false, fmt.Errorf("cluster: ASK target %s:%d is not a known node", rr.Host, rr.Port)
		}
		return n, true, nil
	}

	r.mu.RLock()
	shardIdx, ok := FindShard(r.ranges, slot)
	var n *Node
	if ok {
		n = r.shards[shardIdx].Master()
	}
	r.mu.RUnlock()

	if !ok {
		return nil, false, fmt.Errorf("cluster: no shard owns slot %d", slot)
	}
	return n, false, nil
}

func (r *Router) randomMaster() (*Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.shards) == 0 {
		return nil, fmt.Errorf("cluster: no shards known")
	}
	r.rndMu.Lock()
	i := r.rnd.Intn(len(r.shards))
	r.rndMu.Unlock()
	return r.shards[i].Master(), nil
}

// fanOut dispatches every planned sub-request concurrently. An ASK target
// is prefixed with a single ASKING command per spec.md §4.5.
func (r *Router) fanOut(ctx context.Context, subs []plannedSub) []subResult {
	results := make([]subResult, len(subs))
	var wg sync.WaitGroup
	for i, s := range subs {
		wg.Add(1)
		go func(i int, s plannedSub) {
			defer wg.Done()
			results[i] = r.sendSub(ctx, s)
		}(i, s)
	}
	wg.Wait()
	return results
}

func (r *Router) sendSub(ctx context.Context, s plannedSub) subResult {
	if s.node == nil || s.node.Mux == nil {
		return subResult{keys: s.keys, err: fmt.Errorf("cluster: target node has no open connection")}
	}
	if s.asking {
		// ASK is one-shot: the server only accepts the out-of-slot request
		// immediately following ASKING. Both commands are submitted as a
		// single batch so the mux writes them to the wire contiguously
		// (spec.md §4.5); two separate Send calls could let another
		// producer's command land on the connection in between.
		vs, err := s.node.Mux.SendBatch(ctx, []resp.Command{resp.NewCommand("ASKING"), s.cmd})
		if err != nil {
			return subResult{keys: s.keys, err: err}
		}
		return subResult{keys: s.keys, value: vs[1]}
	}
	v, err := s.node.Mux.Send(ctx, s.cmd)
	return subResult{keys: s.keys, value: v, err: err}
}

// redirectReason converts a sub-reply into a RetryReason when it is a MOVED
// or ASK error (spec.md §4.5 "Sub-replies are inspected by kind").
func redirectReason(v resp.Value) (RetryReason, bool) {
	if !v.IsError() {
		return RetryReason{}, false
	}
	switch v.Err.Kind {
	case resp.ErrMoved:
		return RetryReason{Kind: RetryMoved, Slot: v.Err.Slot, Host: v.Err.Target.Host, Port: v.Err.Target.Port}, true
	case resp.ErrAsk:
		return RetryReason{Kind: RetryAsk, Slot: v.Err.Slot, Host: v.Err.Target.Host, Port: v.Err.Target.Port}, true
	default:
		return RetryReason{}, false
	}
}
