package cluster

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rsms/rdx/resp"
)

// ParseShards parses a CLUSTER SHARDS reply (spec.md §4.5 "Discovery") into
// a shard table. Each shard entry carries a "slots" flat array of
// [start,end] pairs (both inclusive) and a "nodes" array of node
// descriptions; the first node in each shard's "nodes" list with role
// "master" becomes Nodes[0].
//
// A RESP3 server returns each shard and each node as a Map; a server
// running in RESP2-compat mode returns the same data as a flat Array of
// alternating keys and values. Both shapes are accepted, mirroring the
// catalog's COMMAND DOCS parser (catalog/parse.go).
func ParseShards(reply resp.Value) ([]*Shard, []SlotRange, error) {
	shardEntries, err := asPairsOrArray(reply)
	if err != nil {
		return nil, nil, fmt.Errorf("cluster: CLUSTER SHARDS: %w", err)
	}

	var shards []*Shard
	var ranges []SlotRange

	for shardIdx, entry := range shardEntries {
		attrs, err := asPairs(entry)
		if err != nil {
			return nil, nil, fmt.Errorf("cluster: shard %d: %w", shardIdx, err)
		}

		var slots []int64
		var nodeVals []resp.Value
		for i := 0; i+1 < len(attrs); i += 2 {
			key, err := asString(attrs[i])
			if err != nil {
				continue
			}
			switch strings.ToLower(key) {
			case "slots":
				slots, err = asIntSlice(attrs[i+1])
				if err != nil {
					return nil, nil, fmt.Errorf("cluster: shard %d slots: %w", shardIdx, err)
				}
			case "nodes":
				nodeVals = attrs[i+1].Elems
			}
		}

		shard := &Shard{}
		var master *Node
		var replicas []*Node
		for _, nv := range nodeVals {
			n, err := parseNode(nv)
			if err != nil {
				return nil, nil, fmt.Errorf("cluster: shard %d node: %w", shardIdx, err)
			}
			if n.Role == RoleMaster && master == nil {
				master = n
			} else {
				replicas = append(replicas, n)
			}
		}
		if master == nil {
			return nil, nil, fmt.Errorf("cluster: shard %d has no master node", shardIdx)
		}
		shard.Nodes = append([]*Node{master}, replicas...)
		shards = append(shards, shard)

		for i := 0; i+1 < len(slots); i += 2 {
			ranges = append(ranges, SlotRange{
				Low:        uint16(slots[i]),
				High:       uint16(slots[i+1]),
				ShardIndex: shardIdx,
			})
		}
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Low < ranges[j].Low })
	return shards, ranges, nil
}

func parseNode(v resp.Value) (*Node, error) {
	attrs, err := asPairs(v)
	if err != nil {
		return nil, err
	}
	n := &Node{}
	for i := 0; i+1 < len(attrs); i += 2 {
		key, err := asString(attrs[i])
		if err != nil {
			continue
		}
		switch strings.ToLower(key) {
		case "id":
			n.ID, _ = asString(attrs[i+1])
		case "ip", "endpoint":
			if host, err := asString(attrs[i+1]); err == nil && host != "" {
				n.Host = host
			}
		case "port", "tls-port":
			if p, err := asInt(attrs[i+1]); err == nil && p != 0 {
				n.Port = int(p)
			}
		case "role":
			role, _ := asString(attrs[i+1])
			if strings.EqualFold(role, "master") {
				n.Role = RoleMaster
			} else {
				n.Role = RoleReplica
			}
		}
	}
	return n, nil
}

// FindShard returns the shard index owning slot via binary search over the
// sorted, non-overlapping range table (spec.md §8 property 6).
func FindShard(ranges []SlotRange, slot uint16) (int, bool) {
	i := sort.Search(len(ranges), func(i int) bool { return ranges[i].High >= slot })
	if i < len(ranges) && ranges[i].Low <= slot && slot <= ranges[i].High {
		return ranges[i].ShardIndex, true
	}
	return 0, false
}

// --- resp.Value traversal helpers, independent copies of catalog/parse.go's
// (different package, same small shape: Map-or-flattened-Array). ---

func asPairsOrArray(v resp.Value) ([]resp.Value, error) {
	switch v.Kind {
	case resp.KindArray, resp.KindSet, resp.KindPush:
		return v.Elems, nil
	default:
		return nil, fmt.Errorf("expected array, got %s", v.Kind)
	}
}

func asPairs(v resp.Value) ([]resp.Value, error) {
	switch v.Kind {
	case resp.KindMap:
		return v.Elems, nil
	case resp.KindArray:
		return v.Elems, nil
	default:
		return nil, fmt.Errorf("expected map or array, got %s", v.Kind)
	}
}

func asString(v resp.Value) (string, error) {
	switch v.Kind {
	case resp.KindSimpleString:
		return v.Str, nil
	case resp.KindBulkString, resp.KindVerbatimString:
		return string(v.Bulk), nil
	default:
		return "", fmt.Errorf("expected string, got %s", v.Kind)
	}
}

func asInt(v resp.Value) (int64, error) {
	if v.Kind == resp.KindInteger {
		return v.Int, nil
	}
	return 0, fmt.Errorf("expected integer, got %s", v.Kind)
}

func asIntSlice(v resp.Value) ([]int64, error) {
	if v.Kind != resp.KindArray {
		return nil, fmt.Errorf("expected array, got %s", v.Kind)
	}
	out := make([]int64, len(v.Elems))
	for i, e := range v.Elems {
		n, err := asInt(e)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
