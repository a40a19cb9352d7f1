package catalog

import (
	"strings"
	"testing"

	"github.com/rsms/go-testutil"
	"github.com/rsms/rdx/resp"
)

func kv(pairs ...resp.Value) resp.Value {
	return resp.Value{Kind: resp.KindMap, Elems: pairs}
}

func str(s string) resp.Value { return resp.BulkString([]byte(s)) }
func i(n int64) resp.Value    { return resp.Integer(n) }
func arr(vs ...resp.Value) resp.Value {
	return resp.Array(vs)
}

// buildMGETDocsReply constructs a synthetic COMMAND DOCS reply for MGET the
// way a real Redis 7 server would shape it.
func buildMGETDocsReply() resp.Value {
	keySpec := kv(
		str("begin_search"), kv(str("type"), str("index"), str("spec"), kv(str("index"), i(1))),
		str("find_keys"), kv(str("type"), str("range"), str("spec"), kv(str("lastkey"), i(-1), str("keystep"), i(1), str("limit"), i(0))),
	)
	attrs := kv(
		str("arity"), i(-2),
		str("flags"), arr(str("readonly"), str("fast")),
		str("key_specs"), arr(keySpec),
		str("request_policy"), str("multi_shard"),
	)
	return kv(str("MGET"), attrs)
}

func buildDBSIZEDocsReply() resp.Value {
	attrs := kv(
		str("arity"), i(1),
		str("flags"), arr(str("readonly"), str("fast")),
		str("request_policy"), str("all_shards"),
		str("response_policy"), str("agg_sum"),
	)
	return kv(str("DBSIZE"), attrs)
}

func buildScriptDocsReply() resp.Value {
	existsAttrs := kv(
		str("arity"), i(-3),
		str("request_policy"), str("all_shards"),
		str("response_policy"), str("agg_logical_and"),
	)
	attrs := kv(
		str("arity"), i(-2),
		str("subcommands"), kv(str("EXISTS"), existsAttrs),
	)
	return kv(str("SCRIPT"), attrs)
}

func TestLoadAndGetInfo(t *testing.T) {
	assert := testutil.NewAssert(t)
	c := New()
	assert.Ok("load mget", c.Load(buildMGETDocsReply()) == nil)
	assert.Ok("load dbsize", c.Load(buildDBSIZEDocsReply()) == nil)
	assert.Ok("load script", c.Load(buildScriptDocsReply()) == nil)

	info, ok := c.GetInfo("mget", nil)
	assert.Ok("mget known", ok)
	assert.Ok("mget multishard", info.RequestPolicy == ReqMultiShard)

	info, ok = c.GetInfo("dbsize", nil)
	assert.Ok("dbsize known", ok)
	assert.Ok("dbsize allshards", info.RequestPolicy == ReqAllShards)
	assert.Ok("dbsize aggsum", info.ResponsePolicy == RespAggSum)

	info, ok = c.GetInfo("script", [][]byte{[]byte("exists")})
	assert.Ok("script exists resolved", ok)
	assert.Ok("script exists allshards", info.RequestPolicy == ReqAllShards)
	assert.Ok("script exists agg_logical_and", info.ResponsePolicy == RespAggLogicalAnd)

	_, ok = c.GetInfo("notacommand", nil)
	assert.Ok("unknown command", !ok)
}

func TestExtractKeysRange(t *testing.T) {
	assert := testutil.NewAssert(t)
	c := New()
	c.Load(buildMGETDocsReply())
	info, _ := c.GetInfo("mget", nil)
	keys, err := info.ExtractKeys(byteArgs("k1", "k2", "k3"))
	assert.Ok("no error", err == nil)
	assert.Eq("key count", len(keys), 3)
	assert.Eq("k1", string(keys[0]), "k1")
	assert.Eq("k2", string(keys[1]), "k2")
	assert.Eq("k3", string(keys[2]), "k3")
}

func TestExtractKeysMSETStep2(t *testing.T) {
	assert := testutil.NewAssert(t)
	c := New()
	c.LoadDefaults()
	info, _ := c.GetInfo("mset", nil)
	keys, err := info.ExtractKeys(byteArgs("k1", "v1", "k2", "v2"))
	assert.Ok("no error", err == nil)
	assert.Eq("key count", len(keys), 2)
	assert.Eq("k1", string(keys[0]), "k1")
	assert.Eq("k2", string(keys[1]), "k2")
}

func TestPrepareSubCommand(t *testing.T) {
	assert := testutil.NewAssert(t)
	c := New()
	c.LoadDefaults()
	info, _ := c.GetInfo("mget", nil)
	args := byteArgs("k1", "k2", "k3")
	sub, err := info.PrepareSubCommand(args, byteArgs("k1", "k3"))
	assert.Ok("no error", err == nil)
	assert.Eq("rewritten args", len(sub), 2)
	assert.Eq("k1", string(sub[0]), "k1")
	assert.Eq("k3", string(sub[1]), "k3")
}

func TestPrepareSubCommandMSETStep2(t *testing.T) {
	assert := testutil.NewAssert(t)
	c := New()
	c.LoadDefaults()
	info, _ := c.GetInfo("mset", nil)
	args := byteArgs("k1", "v1", "k2", "v2", "k3", "v3")
	sub, err := info.PrepareSubCommand(args, byteArgs("k1", "k3"))
	assert.Ok("no error", err == nil)
	assert.Eq("rewritten args", len(sub), 4)
	assert.Eq("k1", string(sub[0]), "k1")
	assert.Eq("v1", string(sub[1]), "v1")
	assert.Eq("k3", string(sub[2]), "k3")
	assert.Eq("v3", string(sub[3]), "v3")
}

func byteArgs(ss ...string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

func TestDump(t *testing.T) {
	assert := testutil.NewAssert(t)
	c := New()
	c.LoadDefaults()
	b, err := c.Dump()
	assert.Ok("no error", err == nil)
	assert.Ok("non-empty", len(b) > 0)
	assert.Ok("valid-looking json object", b[0] == '{' && b[len(b)-1] == '}')
	assert.Ok("contains a known command", strings.Contains(string(b), "dbsize"))
	assert.Ok("contains flag count", strings.Contains(string(b), "flagCount"))
}
