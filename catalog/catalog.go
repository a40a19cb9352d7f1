// Package catalog is the queryable command metadata store populated
// at connect-time from the server's own self-description (COMMAND DOCS).
// The cluster router consults it to find keys inside an arbitrary command
// and to pick a fan-out strategy (spec.md §4.2).
package catalog

import (
	"fmt"
	"strings"

	"github.com/rsms/go-bits"
)

// Flags is a bitset of the well-known command flag tokens COMMAND DOCS
// reports (e.g. "write", "readonly"). Grounded on FieldSet in the teacher's
// fieldset.go, which is itself a uint64 bitset with a Len() using
// bits.PopcountUint64, the same technique, applied to command flags instead
// of entity fields.
type Flags uint32

const (
	FlagWrite Flags = 1 << iota
	FlagReadonly
	FlagDenyoom
	FlagAdmin
	FlagPubsub
	FlagNoscript
	FlagRandom
	FlagSortForScript
	FlagLoading
	FlagStale
	FlagSkipMonitor
	FlagAsking
	FlagFast
	FlagMovablekeys
)

var flagNames = map[string]Flags{
	"write":           FlagWrite,
	"readonly":        FlagReadonly,
	"denyoom":         FlagDenyoom,
	"admin":           FlagAdmin,
	"pubsub":          FlagPubsub,
	"noscript":        FlagNoscript,
	"random":          FlagRandom,
	"sort_for_script": FlagSortForScript,
	"loading":         FlagLoading,
	"stale":           FlagStale,
	"skip_monitor":    FlagSkipMonitor,
	"asking":          FlagAsking,
	"fast":            FlagFast,
	"movablekeys":     FlagMovablekeys,
}

// Count returns the number of flags set, using the same popcount technique
// FieldSet.Len() uses for ent field bitsets.
func (f Flags) Count() int { return bits.PopcountUint64(uint64(f)) }

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// RequestPolicy is the per-command tip telling the router how to fan a
// command out across the cluster (spec.md §3, §4.5).
type RequestPolicy int

const (
	ReqDefault RequestPolicy = iota
	ReqAllNodes
	ReqAllShards
	ReqMultiShard
	ReqSpecial
)

// ResponsePolicy is the per-command tip telling the router how to combine
// sub-replies from a fan-out (spec.md §3, §4.5).
type ResponsePolicy int

const (
	RespDefault ResponsePolicy = iota
	RespOneSucceeded
	RespAllSucceeded
	RespAggLogicalAnd
	RespAggLogicalOr
	RespAggMin
	RespAggMax
	RespAggSum
	RespSpecial
)

// BeginSearchKind selects how a key-spec locates the first key argument.
type BeginSearchKind int

const (
	BeginSearchIndex BeginSearchKind = iota
	BeginSearchKeyword
	BeginSearchUnknown
)

// All indices in BeginSearch and FindKeys are 0-based into a command's
// argument list, which does NOT include the command name itself (unlike
// Redis's own COMMAND DOCS, which counts argv[0] as the command name, the
// parser in parse.go subtracts one when loading a live reply).
type BeginSearch struct {
	Kind      BeginSearchKind
	Index     int    // BeginSearchIndex: fixed argument index of the first key
	Keyword   string // BeginSearchKeyword: token to scan for
	StartFrom int    // BeginSearchKeyword: argument index to start scanning from
}

// FindKeysKind selects how a key-spec enumerates keys once the first one is
// located.
type FindKeysKind int

const (
	FindKeysRange FindKeysKind = iota
	FindKeysKeyEnum
	FindKeysUnknown
)

type FindKeys struct {
	Kind FindKeysKind

	// FindKeysRange
	LastKey int // relative to the first key; negative counts from the end
	Step    int
	Limit   int // 0 means unlimited; >0 caps the number of keys found

	// FindKeysKeyEnum
	KeyNumIdx int // argument index (into args, like BeginSearch.Index) holding the key count
	FirstKey  int // offset from KeyNumIdx to the first key
	KeyStep   int
}

// KeySpec pairs one begin-search/find-keys rule, matching how a real command
// can carry more than one (e.g. GEORADIUS's STORE/STOREDIST keys).
type KeySpec struct {
	BeginSearch BeginSearch
	FindKeys    FindKeys
}

// CommandInfo is one catalog entry (spec.md §3).
type CommandInfo struct {
	Name           string
	Arity          int // positive = exact, negative = minimum (abs value)
	Flags          Flags
	KeySpecs       []KeySpec
	RequestPolicy  RequestPolicy
	ResponsePolicy ResponsePolicy
	SubCommands    map[string]*CommandInfo
}

// Catalog is the immutable-after-load command metadata store.
type Catalog struct {
	commands map[string]*CommandInfo
}

// New returns an empty catalog. Use Load to populate it from a COMMAND DOCS
// reply, or LoadDefaults for the static fallback table.
func New() *Catalog {
	return &Catalog{commands: make(map[string]*CommandInfo)}
}

// GetInfo resolves name (and, if present as the command's first argument, a
// known sub-command) to a CommandInfo. Unknown commands return ok=false,
// a hard error in cluster mode, per spec.md §4.2.
func (c *Catalog) GetInfo(name string, args [][]byte) (*CommandInfo, bool) {
	info, ok := c.commands[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	if len(info.SubCommands) > 0 && len(args) > 0 {
		if sub, ok := info.SubCommands[strings.ToLower(string(args[0]))]; ok {
			return sub, true
		}
	}
	return info, true
}

// Put inserts or replaces a catalog entry. Used by Load and by tests.
func (c *Catalog) Put(info *CommandInfo) {
	c.commands[strings.ToLower(info.Name)] = info
}

// Len reports how many top-level commands are known.
func (c *Catalog) Len() int { return len(c.commands) }

func (c *Catalog) String() string {
	return fmt.Sprintf("Catalog{%d commands}", len(c.commands))
}
