// Package resp implements the RESP2/RESP3 wire protocol: a streaming decoder
// that never blocks waiting for more bytes, and an encoder for commands.
package resp

import "fmt"

// Kind identifies the wire type tag of a Value, one per RESP3 frame type.
type Kind byte

const (
	KindSimpleString   Kind = '+'
	KindError          Kind = '-'
	KindInteger        Kind = ':'
	KindDouble         Kind = ','
	KindBulkString     Kind = '$'
	KindBoolean        Kind = '#'
	KindNil            Kind = '_'
	KindArray          Kind = '*'
	KindMap            Kind = '%'
	KindSet            Kind = '~'
	KindPush           Kind = '>'
	KindBlobError      Kind = '!'
	KindVerbatimString Kind = '='
)

func (k Kind) String() string {
	if k == 0 {
		return "<zero>"
	}
	return string([]byte{byte(k)})
}

// ErrorKind classifies the `-`/`!` error variant. Only MOVED and ASK carry
// routing metadata; everything else is a free-text server error.
type ErrorKind int

const (
	ErrGeneric ErrorKind = iota
	ErrMoved
	ErrAsk
)

// Addr is a (host, port) pair as carried by MOVED/ASK redirections.
type Addr struct {
	Host string
	Port uint16
}

func (a Addr) String() string { return fmt.Sprintf("%s:%d", a.Host, a.Port) }

// ErrorValue is the structured payload of a RESP error reply.
type ErrorValue struct {
	Kind    ErrorKind
	Code    string // leading token, e.g. "MOVED", "ASK", "ERR", "WRONGTYPE"
	Message string // full description, unparsed for generic errors
	Slot    uint16 // valid when Kind != ErrGeneric
	Target  Addr   // valid when Kind != ErrGeneric
}

func (e *ErrorValue) Error() string {
	if e.Kind == ErrGeneric {
		return e.Message
	}
	return fmt.Sprintf("%s %d %s", e.Code, e.Slot, e.Target)
}

// Value is the sum type produced by the decoder and consumed by the encoder.
// Exactly one "shape" of fields is meaningful, selected by Kind:
//
//	SimpleString                 -> Str
//	Error, BlobError             -> Err
//	Integer                      -> Int
//	Double                       -> Float
//	BulkString, VerbatimString   -> Bulk (Null==true means RESP nil bulk)
//	Boolean                      -> Bool
//	Array, Set, Push             -> Elems (Null==true means RESP nil array)
//	Map                          -> Elems holds flattened key,value,key,value...
type Value struct {
	Kind  Kind
	Str   string
	Err   *ErrorValue
	Int   int64
	Float float64
	Bulk  []byte
	Bool  bool
	Elems []Value
	Null  bool
}

// IsNil reports whether v is a nil bulk string or a nil container.
func (v Value) IsNil() bool {
	return v.Null && (v.Kind == KindBulkString || v.Kind == KindArray ||
		v.Kind == KindMap || v.Kind == KindSet || v.Kind == KindPush)
}

// IsError reports whether v is an error or blob-error reply.
func (v Value) IsError() bool {
	return v.Kind == KindError || v.Kind == KindBlobError
}

func SimpleString(s string) Value { return Value{Kind: KindSimpleString, Str: s} }

func Integer(i int64) Value { return Value{Kind: KindInteger, Int: i} }

func BulkString(b []byte) Value {
	if b == nil {
		return Value{Kind: KindBulkString, Null: true}
	}
	return Value{Kind: KindBulkString, Bulk: b}
}

func NilArray() Value { return Value{Kind: KindArray, Null: true} }

func Array(elems []Value) Value { return Value{Kind: KindArray, Elems: elems} }

// String renders v for logs and CLI output; it is not a wire format.
func (v Value) String() string {
	switch v.Kind {
	case KindSimpleString:
		return v.Str
	case KindError, KindBlobError:
		return v.Err.Error()
	case KindInteger:
		return fmt.Sprintf("%d", v.Int)
	case KindDouble:
		return fmt.Sprintf("%g", v.Float)
	case KindBulkString, KindVerbatimString:
		if v.Null {
			return "(nil)"
		}
		return string(v.Bulk)
	case KindBoolean:
		return fmt.Sprintf("%t", v.Bool)
	case KindNil:
		return "(nil)"
	case KindArray, KindSet, KindPush, KindMap:
		if v.Null {
			return "(nil)"
		}
		s := "["
		for i, e := range v.Elems {
			if i > 0 {
				s += ", "
			}
			s += e.String()
		}
		return s + "]"
	default:
		return fmt.Sprintf("<%s>", v.Kind)
	}
}
