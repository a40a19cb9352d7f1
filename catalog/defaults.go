package catalog

// LoadDefaults populates c with a small, hand-written table covering the
// commands spec.md's scenarios (§8 S1-S7) exercise. Tests use it as a seed,
// and the cluster router loads it only when COMMAND DOCS fails, is rejected,
// or cannot be parsed; after a successful Load the defaults are not added,
// so a command the reply omits stays unknown. Load overwrites any entry
// LoadDefaults seeded.
func (c *Catalog) LoadDefaults() {
	single := func(name string, readonly bool) *CommandInfo {
		f := FlagWrite
		if readonly {
			f = FlagReadonly
		}
		return &CommandInfo{
			Name:  name,
			Arity: -2,
			Flags: f,
			KeySpecs: []KeySpec{{
				BeginSearch: BeginSearch{Kind: BeginSearchIndex, Index: 0},
				FindKeys:    FindKeys{Kind: FindKeysRange, LastKey: 0, Step: 1},
			}},
		}
	}

	c.Put(single("GET", true))
	c.Put(single("SET", false))
	c.Put(single("DEL", false))
	c.Put(single("EXPIRE", false))

	multiShardAllKeys := func(name string, readonly bool) *CommandInfo {
		f := FlagWrite
		if readonly {
			f = FlagReadonly
		}
		return &CommandInfo{
			Name:  name,
			Arity: -2,
			Flags: f | FlagMovablekeys,
			KeySpecs: []KeySpec{{
				BeginSearch: BeginSearch{Kind: BeginSearchIndex, Index: 0},
				FindKeys:    FindKeys{Kind: FindKeysRange, LastKey: -1, Step: 1},
			}},
			RequestPolicy: ReqMultiShard,
		}
	}
	c.Put(multiShardAllKeys("MGET", true))
	c.Put(multiShardAllKeys("TOUCH", false))
	c.Put(multiShardAllKeys("EXISTS", true))
	c.Put(&CommandInfo{
		Name:  "UNLINK",
		Arity: -2,
		Flags: FlagWrite | FlagMovablekeys,
		KeySpecs: []KeySpec{{
			BeginSearch: BeginSearch{Kind: BeginSearchIndex, Index: 0},
			FindKeys:    FindKeys{Kind: FindKeysRange, LastKey: -1, Step: 1},
		}},
		RequestPolicy: ReqMultiShard,
	})
	c.Put(&CommandInfo{
		Name:  "MSET",
		Arity: -3,
		Flags: FlagWrite | FlagDenyoom | FlagMovablekeys,
		KeySpecs: []KeySpec{{
			BeginSearch: BeginSearch{Kind: BeginSearchIndex, Index: 0},
			FindKeys:    FindKeys{Kind: FindKeysRange, LastKey: -1, Step: 2},
		}},
		RequestPolicy: ReqMultiShard,
	})

	c.Put(&CommandInfo{
		Name:           "DBSIZE",
		Arity:          1,
		Flags:          FlagReadonly | FlagFast,
		RequestPolicy:  ReqAllShards,
		ResponsePolicy: RespAggSum,
	})
	c.Put(&CommandInfo{
		Name:  "SCRIPT",
		Arity: -2,
		Flags: FlagNoscript,
		SubCommands: map[string]*CommandInfo{
			"exists": {
				Name:           "SCRIPT|EXISTS",
				Arity:          -3,
				RequestPolicy:  ReqAllShards,
				ResponsePolicy: RespAggLogicalAnd,
			},
			"load": {
				Name:          "SCRIPT|LOAD",
				Arity:         3,
				RequestPolicy: ReqAllShards,
			},
			"flush": {
				Name:          "SCRIPT|FLUSH",
				Arity:         -2,
				RequestPolicy: ReqAllShards,
			},
		},
	})
	c.Put(&CommandInfo{Name: "FLUSHALL", Arity: -1, Flags: FlagWrite, RequestPolicy: ReqAllShards})
	c.Put(&CommandInfo{Name: "FLUSHDB", Arity: -1, Flags: FlagWrite, RequestPolicy: ReqAllShards})
	c.Put(&CommandInfo{Name: "CLIENT", Arity: -2, Flags: FlagAdmin, RequestPolicy: ReqAllNodes})
	c.Put(&CommandInfo{Name: "PING", Arity: -1, Flags: FlagFast})
	c.Put(&CommandInfo{Name: "ASKING", Arity: 1, Flags: FlagFast})
	c.Put(&CommandInfo{Name: "CLUSTER", Arity: -2, Flags: FlagAdmin})
	c.Put(&CommandInfo{Name: "COMMAND", Arity: -1, Flags: FlagLoading | FlagStale})
}
