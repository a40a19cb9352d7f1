package cluster

import (
	"testing"

	"github.com/rsms/go-testutil"
	"github.com/rsms/rdx/resp"
)

func kv(pairs ...resp.Value) resp.Value { return resp.Value{Kind: resp.KindMap, Elems: pairs} }
func str(s string) resp.Value           { return resp.BulkString([]byte(s)) }
func i(n int64) resp.Value              { return resp.Integer(n) }
func arr(vs ...resp.Value) resp.Value   { return resp.Array(vs) }

func node(id, ip string, port int64, role string) resp.Value {
	return kv(
		str("id"), str(id),
		str("ip"), str(ip),
		str("port"), i(port),
		str("role"), str(role),
	)
}

func shard(slots []int64, nodes ...resp.Value) resp.Value {
	slotVals := make([]resp.Value, len(slots))
	for j, s := range slots {
		slotVals[j] = i(s)
	}
	return kv(
		str("slots"), arr(slotVals...),
		str("nodes"), arr(nodes...),
	)
}

func TestParseShardsTwoShards(t *testing.T) {
	assert := testutil.NewAssert(t)

	reply := resp.Array([]resp.Value{
		shard([]int64{0, 8191},
			node("node-a", "10.0.0.1", 6379, "master"),
			node("node-a-r1", "10.0.0.1", 6380, "replica"),
		),
		shard([]int64{8192, 16383},
			node("node-b", "10.0.0.2", 6379, "master"),
		),
	})

	shards, ranges, err := ParseShards(reply)
	assert.Ok("no error", err == nil)
	assert.Eq("shard count", len(shards), 2)
	assert.Eq("range count", len(ranges), 2)

	assert.Eq("shard0 master id", shards[0].Master().ID, "node-a")
	assert.Eq("shard0 node count", len(shards[0].Nodes), 2)
	assert.Eq("shard1 master id", shards[1].Master().ID, "node-b")
	assert.Eq("shard1 node count", len(shards[1].Nodes), 1)

	idx, ok := FindShard(ranges, 0)
	assert.Ok("slot 0 found", ok)
	assert.Eq("slot 0 shard", idx, 0)

	idx, ok = FindShard(ranges, 8191)
	assert.Ok("slot 8191 found", ok)
	assert.Eq("slot 8191 shard", idx, 0)

	idx, ok = FindShard(ranges, 8192)
	assert.Ok("slot 8192 found", ok)
	assert.Eq("slot 8192 shard", idx, 1)

	idx, ok = FindShard(ranges, 16383)
	assert.Ok("slot 16383 found", ok)
	assert.Eq("slot 16383 shard", idx, 1)
}

func TestParseShardsCoversFullRange(t *testing.T) {
	assert := testutil.NewAssert(t)

	reply := resp.Array([]resp.Value{
		shard([]int64{0, 5460}, node("a", "10.0.0.1", 6379, "master")),
		shard([]int64{5461, 10922}, node("b", "10.0.0.2", 6379, "master")),
		shard([]int64{10923, 16383}, node("c", "10.0.0.3", 6379, "master")),
	})

	_, ranges, err := ParseShards(reply)
	assert.Ok("no error", err == nil)

	var covered uint32
	for _, r := range ranges {
		covered += uint32(r.High) - uint32(r.Low) + 1
	}
	assert.Eq("covers all slots", covered, uint32(NumSlots))

	for slot := uint16(0); slot < NumSlots; slot += 997 {
		_, ok := FindShard(ranges, slot)
		assert.Ok("slot covered", ok)
	}
}
