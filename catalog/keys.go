package catalog

import (
	"bytes"
	"fmt"
)

// ExtractKeys returns, in submission order, the key arguments of a command
// whose arguments (NOT including the command name itself) are args. It
// applies every key-spec on info in turn (most commands have exactly one;
// a handful, like GEORADIUS with STORE/STOREDIST, have more) and
// concatenates what each finds (spec.md §4.2).
func (info *CommandInfo) ExtractKeys(args [][]byte) ([][]byte, error) {
	if info == nil {
		return nil, fmt.Errorf("catalog: nil command info")
	}
	if len(info.KeySpecs) == 0 {
		return nil, nil
	}
	var keys [][]byte
	for _, ks := range info.KeySpecs {
		first, ok := locateFirstKey(ks.BeginSearch, args)
		if !ok {
			continue
		}
		found, err := enumerateKeys(ks.FindKeys, args, first)
		if err != nil {
			return nil, err
		}
		keys = append(keys, found...)
	}
	return keys, nil
}

// locateFirstKey resolves a begin-search spec to the 0-based index (into
// args) of the first key argument.
func locateFirstKey(bs BeginSearch, args [][]byte) (int, bool) {
	switch bs.Kind {
	case BeginSearchIndex:
		if bs.Index < 0 || bs.Index >= len(args) {
			return 0, false
		}
		return bs.Index, true
	case BeginSearchKeyword:
		for i := bs.StartFrom; i < len(args); i++ {
			if equalFold(args[i], bs.Keyword) {
				if i+1 >= len(args) {
					return 0, false
				}
				return i + 1, true
			}
		}
		return 0, false
	default:
		return 0, false
	}
}

// enumerateKeys applies a find-keys spec starting at firstKeyIdx.
func enumerateKeys(fk FindKeys, args [][]byte, firstKeyIdx int) ([][]byte, error) {
	switch fk.Kind {
	case FindKeysRange:
		step := fk.Step
		if step <= 0 {
			step = 1
		}
		last := fk.LastKey
		var lastIdx int
		if last < 0 {
			// negative counts back from the end of args, -1 == last argument
			lastIdx = len(args) + last
		} else {
			lastIdx = firstKeyIdx + last
		}
		if lastIdx >= len(args) {
			lastIdx = len(args) - 1
		}
		if lastIdx < firstKeyIdx {
			return nil, nil
		}
		var keys [][]byte
		for i := firstKeyIdx; i <= lastIdx; i += step {
			keys = append(keys, args[i])
			if fk.Limit > 0 && len(keys) >= fk.Limit {
				break
			}
		}
		return keys, nil
	case FindKeysKeyEnum:
		if fk.KeyNumIdx < 0 || fk.KeyNumIdx >= len(args) {
			return nil, fmt.Errorf("catalog: keynum index %d out of range", fk.KeyNumIdx)
		}
		n, err := parseArgInt(args[fk.KeyNumIdx])
		if err != nil {
			return nil, fmt.Errorf("catalog: keynum argument: %w", err)
		}
		step := fk.KeyStep
		if step <= 0 {
			step = 1
		}
		start := fk.KeyNumIdx + fk.FirstKey
		var keys [][]byte
		for i, pos := 0, start; i < n; i, pos = i+1, pos+step {
			if pos < 0 || pos >= len(args) {
				return nil, fmt.Errorf("catalog: keynum key index %d out of range", pos)
			}
			keys = append(keys, args[pos])
		}
		return keys, nil
	default:
		return nil, nil
	}
}

func equalFold(b []byte, s string) bool {
	return bytes.EqualFold(b, []byte(s))
}

func parseArgInt(b []byte) (int, error) {
	var neg bool
	if len(b) > 0 && b[0] == '-' {
		neg = true
		b = b[1:]
	}
	if len(b) == 0 {
		return 0, fmt.Errorf("empty integer argument")
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid integer argument %q", b)
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}

// PrepareSubCommand rewrites a command so that its key-bearing arguments are
// replaced by keysSubset, preserving non-key arguments and the command name
// (spec.md §4.2, §4.5). Each key occupies a Step-wide chunk (Step 1 for
// MGET/DEL/EXISTS/TOUCH/UNLINK; Step 2 for MSET, whose key and value
// arguments interleave), so the chunk associated with each selected key —
// not just the key byte string itself — is carried over into the rewritten
// argument list.
func (info *CommandInfo) PrepareSubCommand(args [][]byte, keysSubset [][]byte) ([][]byte, error) {
	if len(info.KeySpecs) != 1 {
		return nil, fmt.Errorf("catalog: PrepareSubCommand requires exactly one key-spec, got %d", len(info.KeySpecs))
	}
	ks := info.KeySpecs[0]
	first, ok := locateFirstKey(ks.BeginSearch, args)
	if !ok {
		return nil, fmt.Errorf("catalog: no keys found to rewrite")
	}
	if ks.FindKeys.Kind != FindKeysRange {
		return nil, fmt.Errorf("catalog: PrepareSubCommand only supports range key-specs")
	}

	step := ks.FindKeys.Step
	if step <= 0 {
		step = 1
	}
	last := ks.FindKeys.LastKey
	var lastKeyIdx int
	if last < 0 {
		lastKeyIdx = len(args) + last
	} else {
		lastKeyIdx = first + last
	}
	if lastKeyIdx >= len(args) {
		lastKeyIdx = len(args) - 1
	}
	if lastKeyIdx < first {
		return nil, fmt.Errorf("catalog: no keys found to rewrite")
	}
	chunkEnd := lastKeyIdx + step - 1
	if chunkEnd >= len(args) {
		chunkEnd = len(args) - 1
	}

	chunks := make(map[string][][]byte, (lastKeyIdx-first)/step+1)
	for i := first; i <= lastKeyIdx; i += step {
		end := i + step
		if end > len(args) {
			end = len(args)
		}
		chunks[string(args[i])] = args[i:end]
	}

	out := make([][]byte, 0, first+len(keysSubset)*step+(len(args)-chunkEnd-1))
	out = append(out, args[:first]...)
	for _, k := range keysSubset {
		chunk, ok := chunks[string(k)]
		if !ok {
			return nil, fmt.Errorf("catalog: key %q not present in original command", k)
		}
		out = append(out, chunk...)
	}
	out = append(out, args[chunkEnd+1:]...)
	return out, nil
}
