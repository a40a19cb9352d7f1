package cluster

import (
	"context"
	"fmt"

	"github.com/rsms/rdx/conn"
	"github.com/rsms/rdx/mux"
	"github.com/rsms/rdx/resp"
)

// discover tries each seed node in order until one answers CLUSTER SHARDS,
// then opens a master connection for every shard (spec.md §4.5 "Discovery").
// Replicas are left unopened; ensureReplica lazily opens them.
func (r *Router) discover(ctx context.Context) error {
	var lastErr error
	for _, addr := range r.cfg.Nodes {
		shards, ranges, err := r.probe(ctx, addr)
		if err != nil {
			lastErr = err
			if r.logger != nil {
				r.logger.Warn("cluster: seed %s unreachable: %v", addr, err)
			}
			continue
		}

		for _, shard := range shards {
			if err := r.openNode(ctx, shard.Master()); err != nil {
				return fmt.Errorf("cluster: connecting to master %s: %w", shard.Master().Addr(), err)
			}
		}

		r.mu.Lock()
		r.shards = shards
		r.ranges = ranges
		r.mu.Unlock()

		if r.logger != nil {
			slots := 0
			for _, rg := range ranges {
				slots += int(rg.High) - int(rg.Low) + 1
			}
			r.logger.Info("cluster: topology from %s: %d shards, %d slots", addr, len(shards), slots)
		}

		if r.catalog.Len() == 0 {
			if err := r.loadCatalog(ctx, shards[0].Master()); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("cluster: no seed node reachable: %w", lastErr)
}

// probe dials addr just long enough to run CLUSTER SHARDS and parse the
// topology; the connection is then discarded (the real master connections
// are opened separately, once per shard, by discover).
func (r *Router) probe(ctx context.Context, addr string) ([]*Shard, []SlotRange, error) {
	cfg := r.cfg.ConnConfig
	cfg.Addr = addr
	c := conn.New(cfg, r.logger)
	if err := c.Open(ctx); err != nil {
		return nil, nil, err
	}
	defer c.Close()

	if err := c.Write(resp.NewCommand("CLUSTER", "SHARDS")); err != nil {
		return nil, nil, err
	}
	reply, err := c.Read()
	if err != nil {
		return nil, nil, err
	}
	if reply.IsError() {
		return nil, nil, fmt.Errorf("CLUSTER SHARDS: %s", reply.Err.Message)
	}
	return ParseShards(reply)
}

// openNode dials and starts a Mux for n, in place, so shard tables can hold
// stable *Node pointers across discovery calls.
func (r *Router) openNode(ctx context.Context, n *Node) error {
	cfg := r.cfg.ConnConfig
	cfg.Addr = n.Addr()
	c := conn.New(cfg, r.logger)
	if err := c.Open(ctx); err != nil {
		return err
	}
	m := mux.New(c, r.logger, nil, r.cfg.MaxBatchSize)
	m.Start()
	n.Conn = c
	n.Mux = m
	return nil
}

// loadCatalog issues COMMAND DOCS against one live master and populates the
// router's catalog (spec.md §4.2). Falls back to the static default table
// if the server predates COMMAND DOCS or the reply can't be parsed, so
// routing still works for the commands the defaults cover.
func (r *Router) loadCatalog(ctx context.Context, master *Node) error {
	reply, err := master.Mux.Send(ctx, resp.NewCommand("COMMAND", "DOCS"))
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("cluster: COMMAND DOCS failed (%v), falling back to defaults", err)
		}
		r.catalog.LoadDefaults()
		return nil
	}
	if reply.IsError() {
		if r.logger != nil {
			r.logger.Warn("cluster: COMMAND DOCS rejected (%s), falling back to defaults", reply.Err.Message)
		}
		r.catalog.LoadDefaults()
		return nil
	}
	if err := r.catalog.Load(reply); err != nil {
		if r.logger != nil {
			r.logger.Warn("cluster: COMMAND DOCS parse failed (%v), falling back to defaults", err)
		}
		r.catalog.LoadDefaults()
		return nil
	}
	return nil
}

// ensureReplica lazily opens the connection for shard s's nodeIdx-th node,
// used by AllNodes dispatch (spec.md §4.5).
func (r *Router) ensureReplica(ctx context.Context, s *Shard, nodeIdx int) (*Node, error) {
	n := s.Nodes[nodeIdx]
	if n.Conn != nil {
		return n, nil
	}
	if err := r.openNode(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// nodeByAddr finds the node currently believed to own addr, used for ASK
// redirection targets (spec.md §4.5).
func (r *Router) nodeByAddr(addr string) *Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.shards {
		for _, n := range s.Nodes {
			if n.Addr() == addr {
				return n
			}
		}
	}
	return nil
}

// reconnectAll tears down every open connection and re-runs discovery. Used
// when a MOVED reply means the shard table is stale (spec.md §4.5).
func (r *Router) reconnectAll(ctx context.Context) error {
	r.mu.Lock()
	shards := r.shards
	r.mu.Unlock()
	for _, s := range shards {
		for _, n := range s.Nodes {
			if n.Mux != nil {
				n.Mux.Close()
			}
		}
	}
	return r.discover(ctx)
}
