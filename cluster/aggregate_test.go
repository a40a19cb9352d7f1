package cluster

import (
	"testing"

	"github.com/rsms/go-testutil"
	"github.com/rsms/rdx/catalog"
	"github.com/rsms/rdx/resp"
)

func intRes(keys [][]byte, n int64) subResult {
	return subResult{keys: keys, value: resp.Integer(n)}
}

func TestAggregateSum(t *testing.T) {
	assert := testutil.NewAssert(t)
	results := []subResult{intRes(nil, 10), intRes(nil, 20), intRes(nil, 30)}
	v, err := aggregate(catalog.RespAggSum, nil, results)
	assert.Ok("no error", err == nil)
	assert.Eq("sum", v.Int, int64(60))
}

func TestAggregateLogicalAndArray(t *testing.T) {
	assert := testutil.NewAssert(t)
	arrVal := func(vals ...int64) resp.Value {
		elems := make([]resp.Value, len(vals))
		for i, n := range vals {
			elems[i] = resp.Integer(n)
		}
		return resp.Array(elems)
	}
	results := []subResult{
		{value: arrVal(1, 1)},
		{value: arrVal(1, 0)},
		{value: arrVal(1, 1)},
	}
	v, err := aggregate(catalog.RespAggLogicalAnd, nil, results)
	assert.Ok("no error", err == nil)
	assert.Eq("length", len(v.Elems), 2)
	assert.Eq("first", v.Elems[0].Int, int64(1))
	assert.Eq("second", v.Elems[1].Int, int64(0))
}

func TestAggregateLogicalOrScalar(t *testing.T) {
	assert := testutil.NewAssert(t)
	results := []subResult{intRes(nil, 0), intRes(nil, 0), intRes(nil, 1)}
	v, err := aggregate(catalog.RespAggLogicalOr, nil, results)
	assert.Ok("no error", err == nil)
	assert.Eq("one true wins", v.Int, int64(1))
}

func TestAggregateLogicalOrScalarAllFalse(t *testing.T) {
	assert := testutil.NewAssert(t)
	results := []subResult{intRes(nil, 0), intRes(nil, 0)}
	v, err := aggregate(catalog.RespAggLogicalOr, nil, results)
	assert.Ok("no error", err == nil)
	assert.Eq("all false", v.Int, int64(0))
}

func TestAggregateLogicalOrArray(t *testing.T) {
	assert := testutil.NewAssert(t)
	arrVal := func(vals ...int64) resp.Value {
		elems := make([]resp.Value, len(vals))
		for i, n := range vals {
			elems[i] = resp.Integer(n)
		}
		return resp.Array(elems)
	}
	results := []subResult{
		{value: arrVal(0, 0)},
		{value: arrVal(1, 0)},
		{value: arrVal(0, 0)},
	}
	v, err := aggregate(catalog.RespAggLogicalOr, nil, results)
	assert.Ok("no error", err == nil)
	assert.Eq("length", len(v.Elems), 2)
	assert.Eq("first", v.Elems[0].Int, int64(1))
	assert.Eq("second", v.Elems[1].Int, int64(0))
}

func TestAggregateLogicalAndNonOneIsZero(t *testing.T) {
	// spec.md §9 open question: preserved behavior treats any non-1 integer
	// as false, not standard nonzero-is-true.
	assert := testutil.NewAssert(t)
	results := []subResult{intRes(nil, 1), intRes(nil, 2)}
	v, err := aggregate(catalog.RespAggLogicalAnd, nil, results)
	assert.Ok("no error", err == nil)
	assert.Eq("2 treated as false", v.Int, int64(0))
}

func TestAggregateOneSucceeded(t *testing.T) {
	assert := testutil.NewAssert(t)
	errVal := resp.Value{Kind: resp.KindError, Err: &resp.ErrorValue{Message: "ERR boom"}}
	results := []subResult{{value: errVal}, intRes(nil, 5), {value: errVal}}
	v, err := aggregate(catalog.RespOneSucceeded, nil, results)
	assert.Ok("no error", err == nil)
	assert.Eq("first success wins", v.Int, int64(5))
}

func TestAggregateDefaultReorderByKeys(t *testing.T) {
	assert := testutil.NewAssert(t)
	k1, k2, k3 := []byte("k1"), []byte("k2"), []byte("k3")
	results := []subResult{
		{keys: [][]byte{k1, k3}, value: resp.Array([]resp.Value{resp.Integer(1), resp.Integer(3)})},
		{keys: [][]byte{k2}, value: resp.Array([]resp.Value{resp.Integer(2)})},
	}
	v, err := aggregate(catalog.RespDefault, [][]byte{k1, k2, k3}, results)
	assert.Ok("no error", err == nil)
	assert.Eq("length", len(v.Elems), 3)
	assert.Eq("k1 first", v.Elems[0].Int, int64(1))
	assert.Eq("k2 second", v.Elems[1].Int, int64(2))
	assert.Eq("k3 third", v.Elems[2].Int, int64(3))
}

func TestAggregateDefaultSingleSubRequest(t *testing.T) {
	assert := testutil.NewAssert(t)
	results := []subResult{intRes(nil, 42)}
	v, err := aggregate(catalog.RespDefault, nil, results)
	assert.Ok("no error", err == nil)
	assert.Eq("passthrough", v.Int, int64(42))
}
