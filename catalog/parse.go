package catalog

import (
	"fmt"
	"strings"

	"github.com/rsms/rdx/resp"
)

// Load parses the reply of `COMMAND DOCS` into the catalog's command table.
// The reply is a RESP3 map (or, under RESP2, a flattened array of the same
// pairs) of command name -> attribute map, each attribute map carrying
// "arity", "flags", "key_specs", and optionally "request_policy" /
// "response_policy" string tips plus a nested "subcommands" map.
func (c *Catalog) Load(docsReply resp.Value) error {
	pairs, err := asPairs(docsReply)
	if err != nil {
		return fmt.Errorf("catalog: COMMAND DOCS: %w", err)
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		name, err := asString(pairs[i])
		if err != nil {
			return fmt.Errorf("catalog: command name: %w", err)
		}
		info, err := parseCommandAttrs(name, pairs[i+1])
		if err != nil {
			return fmt.Errorf("catalog: %s: %w", name, err)
		}
		c.Put(info)
	}
	return nil
}

func parseCommandAttrs(name string, attrs resp.Value) (*CommandInfo, error) {
	info := &CommandInfo{Name: strings.ToUpper(name)}
	apairs, err := asPairs(attrs)
	if err != nil {
		return nil, err
	}
	for i := 0; i+1 < len(apairs); i += 2 {
		key, err := asString(apairs[i])
		if err != nil {
			continue
		}
		val := apairs[i+1]
		switch key {
		case "arity":
			info.Arity = int(asInt(val))
		case "flags", "command_flags":
			info.Flags = parseFlags(val)
		case "key_specs":
			specs, err := parseKeySpecs(val)
			if err != nil {
				return nil, fmt.Errorf("key_specs: %w", err)
			}
			info.KeySpecs = specs
		case "request_policy":
			s, _ := asString(val)
			info.RequestPolicy = parseRequestPolicy(s)
		case "response_policy":
			s, _ := asString(val)
			info.ResponsePolicy = parseResponsePolicy(s)
		case "subcommands":
			subs, err := asPairs(val)
			if err != nil {
				break
			}
			info.SubCommands = make(map[string]*CommandInfo, len(subs)/2)
			for j := 0; j+1 < len(subs); j += 2 {
				subName, _ := asString(subs[j])
				full := strings.ToUpper(name) + "|" + subName
				sub, serr := parseCommandAttrs(full, subs[j+1])
				if serr != nil {
					return nil, fmt.Errorf("subcommand %s: %w", subName, serr)
				}
				// index by the bare sub-command token, as it appears in
				// command arguments (e.g. "EXISTS" in "SCRIPT EXISTS sha")
				info.SubCommands[strings.ToLower(subName)] = sub
			}
		}
	}
	return info, nil
}

func parseFlags(v resp.Value) Flags {
	var f Flags
	for _, e := range flatten(v) {
		s, err := asString(e)
		if err != nil {
			continue
		}
		if flag, ok := flagNames[strings.ToLower(s)]; ok {
			f |= flag
		}
	}
	return f
}

func parseRequestPolicy(s string) RequestPolicy {
	switch strings.ToLower(s) {
	case "all_nodes":
		return ReqAllNodes
	case "all_shards":
		return ReqAllShards
	case "multi_shard":
		return ReqMultiShard
	case "special":
		return ReqSpecial
	default:
		return ReqDefault
	}
}

func parseResponsePolicy(s string) ResponsePolicy {
	switch strings.ToLower(s) {
	case "one_succeeded":
		return RespOneSucceeded
	case "all_succeeded":
		return RespAllSucceeded
	case "agg_logical_and":
		return RespAggLogicalAnd
	case "agg_logical_or":
		return RespAggLogicalOr
	case "agg_min":
		return RespAggMin
	case "agg_max":
		return RespAggMax
	case "agg_sum":
		return RespAggSum
	case "special":
		return RespSpecial
	default:
		return RespDefault
	}
}

func parseKeySpecs(v resp.Value) ([]KeySpec, error) {
	elems := flatten(v)
	specs := make([]KeySpec, 0, len(elems))
	for _, e := range elems {
		pairs, err := asPairs(e)
		if err != nil {
			return nil, err
		}
		var ks KeySpec
		for i := 0; i+1 < len(pairs); i += 2 {
			key, _ := asString(pairs[i])
			switch key {
			case "begin_search":
				bs, err := parseBeginSearch(pairs[i+1])
				if err != nil {
					return nil, err
				}
				ks.BeginSearch = bs
			case "find_keys":
				fk, err := parseFindKeys(pairs[i+1])
				if err != nil {
					return nil, err
				}
				ks.FindKeys = fk
			}
		}
		specs = append(specs, ks)
	}
	return specs, nil
}

func parseBeginSearch(v resp.Value) (BeginSearch, error) {
	pairs, err := asPairs(v)
	if err != nil {
		return BeginSearch{}, err
	}
	bs := BeginSearch{Kind: BeginSearchUnknown}
	var typ string
	var spec resp.Value
	for i := 0; i+1 < len(pairs); i += 2 {
		key, _ := asString(pairs[i])
		switch key {
		case "type":
			typ, _ = asString(pairs[i+1])
		case "spec":
			spec = pairs[i+1]
		}
	}
	specPairs, _ := asPairs(spec)
	get := func(name string) (resp.Value, bool) {
		for i := 0; i+1 < len(specPairs); i += 2 {
			k, _ := asString(specPairs[i])
			if k == name {
				return specPairs[i+1], true
			}
		}
		return resp.Value{}, false
	}
	switch typ {
	case "index":
		bs.Kind = BeginSearchIndex
		if idx, ok := get("index"); ok {
			// COMMAND DOCS counts argv[0] as the command name; our args
			// slice excludes it, so shift by one.
			bs.Index = int(asInt(idx)) - 1
		}
	case "keyword":
		bs.Kind = BeginSearchKeyword
		if kw, ok := get("keyword"); ok {
			bs.Keyword, _ = asString(kw)
		}
		if sf, ok := get("startfrom"); ok {
			bs.StartFrom = int(asInt(sf)) - 1
		}
	}
	return bs, nil
}

func parseFindKeys(v resp.Value) (FindKeys, error) {
	pairs, err := asPairs(v)
	if err != nil {
		return FindKeys{}, err
	}
	fk := FindKeys{Kind: FindKeysUnknown}
	var typ string
	var spec resp.Value
	for i := 0; i+1 < len(pairs); i += 2 {
		key, _ := asString(pairs[i])
		switch key {
		case "type":
			typ, _ = asString(pairs[i+1])
		case "spec":
			spec = pairs[i+1]
		}
	}
	specPairs, _ := asPairs(spec)
	get := func(name string) (resp.Value, bool) {
		for i := 0; i+1 < len(specPairs); i += 2 {
			k, _ := asString(specPairs[i])
			if k == name {
				return specPairs[i+1], true
			}
		}
		return resp.Value{}, false
	}
	switch typ {
	case "range":
		fk.Kind = FindKeysRange
		fk.LastKey = -1
		fk.Step = 1
		if v, ok := get("lastkey"); ok {
			fk.LastKey = int(asInt(v))
		}
		if v, ok := get("keystep"); ok {
			fk.Step = int(asInt(v))
		}
		if v, ok := get("limit"); ok {
			fk.Limit = int(asInt(v))
		}
	case "keynum":
		fk.Kind = FindKeysKeyEnum
		if v, ok := get("keynumidx"); ok {
			fk.KeyNumIdx = int(asInt(v)) - 1
		}
		if v, ok := get("firstkey"); ok {
			fk.FirstKey = int(asInt(v))
		}
		if v, ok := get("keystep"); ok {
			fk.KeyStep = int(asInt(v))
		}
	}
	return fk, nil
}

// --- resp.Value helpers ---

// asPairs returns the flattened key/value sequence of a Map, or the element
// list of an Array (already pairs: k,v,k,v...), accommodating a RESP2-style
// flattened array reply for the same command.
func asPairs(v resp.Value) ([]resp.Value, error) {
	switch v.Kind {
	case resp.KindMap, resp.KindArray:
		return v.Elems, nil
	default:
		return nil, fmt.Errorf("expected map or array, got %v", v.Kind)
	}
}

// flatten returns the element list of an Array/Set, treating anything else
// as a single-element list (defensive against minor reply shape variance).
func flatten(v resp.Value) []resp.Value {
	switch v.Kind {
	case resp.KindArray, resp.KindSet, resp.KindPush:
		return v.Elems
	default:
		if v.Kind == 0 {
			return nil
		}
		return []resp.Value{v}
	}
}

func asString(v resp.Value) (string, error) {
	switch v.Kind {
	case resp.KindSimpleString, resp.KindVerbatimString:
		if v.Str != "" {
			return v.Str, nil
		}
		return string(v.Bulk), nil
	case resp.KindBulkString:
		return string(v.Bulk), nil
	default:
		return "", fmt.Errorf("expected string, got %v", v.Kind)
	}
}

func asInt(v resp.Value) int64 {
	switch v.Kind {
	case resp.KindInteger:
		return v.Int
	case resp.KindBulkString:
		var n int64
		fmt.Sscanf(string(v.Bulk), "%d", &n)
		return n
	case resp.KindSimpleString:
		var n int64
		fmt.Sscanf(v.Str, "%d", &n)
		return n
	default:
		return 0
	}
}
