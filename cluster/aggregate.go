package cluster

import (
	"fmt"

	"github.com/rsms/rdx/catalog"
	"github.com/rsms/rdx/resp"
)

// subResult is one sub-request's outcome, tagged with the key subset it
// carried (used for default-with-keys re-ordering, spec.md §4.5).
type subResult struct {
	keys  [][]byte
	value resp.Value
	err   error
}

// aggregate combines sub-results per the command's response policy
// (spec.md §4.5 "Response aggregation"). Any non-redirect sub-error
// short-circuits aggregation and is returned as-is, except under
// OneSucceeded, which looks past error replies for the first success;
// redirect errors are filtered out by the caller before aggregate is invoked.
func aggregate(policy catalog.ResponsePolicy, keyOrder [][]byte, results []subResult) (resp.Value, error) {
	for _, r := range results {
		if r.err != nil {
			return resp.Value{}, r.err
		}
	}
	if policy != catalog.RespOneSucceeded {
		for _, r := range results {
			if r.value.IsError() {
				return r.value, nil
			}
		}
	}

	switch policy {
	case catalog.RespOneSucceeded:
		var lastErrVal resp.Value
		for _, r := range results {
			if !r.value.IsError() {
				return r.value, nil
			}
			lastErrVal = r.value
		}
		return lastErrVal, nil

	case catalog.RespAllSucceeded:
		for _, r := range results {
			if r.value.IsError() {
				return r.value, nil
			}
		}
		return results[len(results)-1].value, nil

	case catalog.RespAggLogicalAnd:
		return aggLogical(results, 1, func(acc, v int64) int64 {
			if acc == 1 && v == 1 {
				return 1
			}
			return 0
		})

	case catalog.RespAggLogicalOr:
		return aggLogical(results, 0, func(acc, v int64) int64 {
			if acc == 1 || v == 1 {
				return 1
			}
			return 0
		})

	case catalog.RespAggMin:
		return aggNumeric(results, func(acc, v int64) int64 {
			if v < acc {
				return v
			}
			return acc
		})

	case catalog.RespAggMax:
		return aggNumeric(results, func(acc, v int64) int64 {
			if v > acc {
				return v
			}
			return acc
		})

	case catalog.RespAggSum:
		return aggNumeric(results, func(acc, v int64) int64 { return acc + v })

	case catalog.RespSpecial:
		return resp.Value{}, fmt.Errorf("cluster: response policy Special is unsupported")

	default: // RespDefault
		if len(results) == 1 {
			return results[0].value, nil
		}
		concat := concatArrays(results)
		if len(keyOrder) == 0 {
			return resp.Array(concat), nil
		}
		reordered, err := reorderByKeys(keyOrder, results, concat)
		if err != nil {
			return resp.Value{}, err
		}
		return resp.Array(reordered), nil
	}
}

// logicalValue applies the preserved (and, per spec.md §9, possibly
// surprising) "any non-1 integer is false" rule: truthiness is exact
// equality with 1, not standard C-style nonzero-is-true.
func logicalValue(v resp.Value) int64 {
	if v.Kind == resp.KindInteger && v.Int == 1 {
		return 1
	}
	return 0
}

func aggLogical(results []subResult, identity int64, combine func(acc, v int64) int64) (resp.Value, error) {
	if len(results) == 0 {
		return resp.Value{}, fmt.Errorf("cluster: aggregation over zero sub-replies")
	}
	if results[0].value.Kind == resp.KindArray {
		n := len(results[0].value.Elems)
		out := make([]int64, n)
		for i := range out {
			out[i] = identity
		}
		for _, r := range results {
			if len(r.value.Elems) != n {
				return resp.Value{}, fmt.Errorf("cluster: aggregation array length mismatch")
			}
			for i, e := range r.value.Elems {
				out[i] = combine(out[i], logicalValue(e))
			}
		}
		elems := make([]resp.Value, n)
		for i, v := range out {
			elems[i] = resp.Integer(v)
		}
		return resp.Array(elems), nil
	}

	acc := identity
	for _, r := range results {
		acc = combine(acc, logicalValue(r.value))
	}
	return resp.Integer(acc), nil
}

func aggNumeric(results []subResult, combine func(acc, v int64) int64) (resp.Value, error) {
	if len(results) == 0 {
		return resp.Value{}, fmt.Errorf("cluster: aggregation over zero sub-replies")
	}
	if results[0].value.Kind == resp.KindArray {
		n := len(results[0].value.Elems)
		out := make([]int64, n)
		for i, e := range results[0].value.Elems {
			out[i] = e.Int
		}
		for _, r := range results[1:] {
			if len(r.value.Elems) != n {
				return resp.Value{}, fmt.Errorf("cluster: aggregation array length mismatch")
			}
			for i, e := range r.value.Elems {
				out[i] = combine(out[i], e.Int)
			}
		}
		elems := make([]resp.Value, n)
		for i, v := range out {
			elems[i] = resp.Integer(v)
		}
		return resp.Array(elems), nil
	}

	acc := results[0].value.Int
	for _, r := range results[1:] {
		acc = combine(acc, r.value.Int)
	}
	return resp.Integer(acc), nil
}

func concatArrays(results []subResult) []resp.Value {
	var out []resp.Value
	for _, r := range results {
		out = append(out, r.value.Elems...)
	}
	return out
}

// reorderByKeys re-orders a concatenated reply so its i-th element
// corresponds to keyOrder[i], matching the order the caller submitted keys
// in rather than dispatch order (spec.md §4.5, §8 property 5).
func reorderByKeys(keyOrder [][]byte, results []subResult, concat []resp.Value) ([]resp.Value, error) {
	var flatKeys [][]byte
	for _, r := range results {
		flatKeys = append(flatKeys, r.keys...)
	}
	if len(flatKeys) != len(concat) || len(flatKeys) != len(keyOrder) {
		return nil, fmt.Errorf("cluster: aggregated reply length %d does not match key count %d", len(concat), len(keyOrder))
	}

	pos := make(map[string]int, len(flatKeys))
	for i, k := range flatKeys {
		pos[string(k)] = i
	}

	out := make([]resp.Value, len(keyOrder))
	for i, k := range keyOrder {
		src, ok := pos[string(k)]
		if !ok {
			return nil, fmt.Errorf("cluster: key %q missing from aggregated reply", k)
		}
		out[i] = concat[src]
	}
	return out, nil
}
