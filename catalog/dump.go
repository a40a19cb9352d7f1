package catalog

import "github.com/rsms/go-json"

// Dump serializes the catalog's command table to JSON for human inspection
// (e.g. from an operator tool printing what request/response policy a
// server reported for each command). Grounded on the teacher's json.go,
// which wraps github.com/rsms/go-json's streaming Builder the same way:
// StartObject/Key/Str/EndObject calls instead of a struct-tag reflection
// pass, since CommandInfo's key-spec union doesn't map cleanly onto a single
// Go struct shape that encoding/json would marshal sensibly.
func (c *Catalog) Dump() ([]byte, error) {
	var b json.Builder
	b.StartObject()
	for name, info := range c.commands {
		b.Key(name)
		dumpInfo(&b, info)
	}
	b.EndObject()
	return b.Bytes(), b.Err
}

func dumpInfo(b *json.Builder, info *CommandInfo) {
	b.StartObject()
	b.Key("name")
	b.Str(info.Name)
	b.Key("arity")
	b.Int(int64(info.Arity), 64)
	b.Key("flags")
	b.Uint(uint64(info.Flags), 32)
	b.Key("flagCount")
	b.Int(int64(info.Flags.Count()), 64)
	b.Key("requestPolicy")
	b.Int(int64(info.RequestPolicy), 64)
	b.Key("responsePolicy")
	b.Int(int64(info.ResponsePolicy), 64)
	b.Key("keySpecs")
	b.Int(int64(len(info.KeySpecs)), 64)
	if len(info.SubCommands) > 0 {
		b.Key("subCommands")
		b.StartObject()
		for name, sub := range info.SubCommands {
			b.Key(name)
			dumpInfo(b, sub)
		}
		b.EndObject()
	}
	b.EndObject()
}
