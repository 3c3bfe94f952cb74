// Package codec implements the tagged binary wire format shared by every
// RPC call and response in blockmesh. It covers the four primitive shapes
// the transport needs: unsigned 64-bit integers, text strings, opaque byte
// blobs, and ordered tuples of the above (nested arbitrarily).
//
// Encoding is built on protobuf's wire primitives (varint and
// length-delimited fields) rather than a hand-rolled varint reader, since
// google.golang.org/protobuf is already part of the dependency graph and
// its encoding/protowire subpackage is a stable, allocation-light set of
// append/consume helpers that needs no .proto compilation step.
package codec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Kind tags the shape of a Value on the wire.
type Kind uint8

const (
	KindUint64 Kind = iota
	KindString
	KindBlob
	KindTuple
)

// Value is a self-describing wire value: exactly one of U64, Str, Blob or
// Tuple is meaningful, selected by Kind.
type Value struct {
	Kind  Kind
	U64   uint64
	Str   string
	Blob  []byte
	Tuple []Value
}

func Uint64(v uint64) Value   { return Value{Kind: KindUint64, U64: v} }
func String(v string) Value   { return Value{Kind: KindString, Str: v} }
func Blob(v []byte) Value     { return Value{Kind: KindBlob, Blob: v} }
func Tuple(vs ...Value) Value { return Value{Kind: KindTuple, Tuple: vs} }

// Encode appends the wire representation of v to dst and returns the
// extended buffer. Every Value is prefixed with a one-byte Kind tag so a
// decoder never needs out-of-band schema information to tell a string
// apart from a blob or a nested tuple.
func Encode(dst []byte, v Value) []byte {
	dst = append(dst, byte(v.Kind))
	switch v.Kind {
	case KindUint64:
		dst = protowire.AppendVarint(dst, v.U64)
	case KindString:
		dst = protowire.AppendBytes(dst, []byte(v.Str))
	case KindBlob:
		dst = protowire.AppendBytes(dst, v.Blob)
	case KindTuple:
		dst = protowire.AppendVarint(dst, uint64(len(v.Tuple)))
		for _, elem := range v.Tuple {
			dst = Encode(dst, elem)
		}
	}
	return dst
}

// Marshal is a convenience wrapper returning a fresh buffer.
func Marshal(v Value) []byte {
	return Encode(nil, v)
}

// Decode consumes one Value from the front of src, returning the value
// and the number of bytes consumed.
func Decode(src []byte) (Value, int, error) {
	if len(src) < 1 {
		return Value{}, 0, fmt.Errorf("codec: empty input")
	}
	kind := Kind(src[0])
	off := 1
	switch kind {
	case KindUint64:
		u, n := protowire.ConsumeVarint(src[off:])
		if n < 0 {
			return Value{}, 0, fmt.Errorf("codec: malformed varint")
		}
		return Value{Kind: KindUint64, U64: u}, off + n, nil
	case KindString:
		b, n := protowire.ConsumeBytes(src[off:])
		if n < 0 {
			return Value{}, 0, fmt.Errorf("codec: malformed string")
		}
		return Value{Kind: KindString, Str: string(b)}, off + n, nil
	case KindBlob:
		b, n := protowire.ConsumeBytes(src[off:])
		if n < 0 {
			return Value{}, 0, fmt.Errorf("codec: malformed blob")
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		return Value{Kind: KindBlob, Blob: cp}, off + n, nil
	case KindTuple:
		count, n := protowire.ConsumeVarint(src[off:])
		if n < 0 {
			return Value{}, 0, fmt.Errorf("codec: malformed tuple count")
		}
		off += n
		elems := make([]Value, 0, count)
		for i := uint64(0); i < count; i++ {
			elem, n, err := Decode(src[off:])
			if err != nil {
				return Value{}, 0, fmt.Errorf("codec: tuple element %d: %w", i, err)
			}
			elems = append(elems, elem)
			off += n
		}
		return Value{Kind: KindTuple, Tuple: elems}, off, nil
	default:
		return Value{}, 0, fmt.Errorf("codec: unknown kind tag %d", kind)
	}
}

// Unmarshal decodes a single top-level Value, erroring if trailing bytes
// remain.
func Unmarshal(src []byte) (Value, error) {
	v, n, err := Decode(src)
	if err != nil {
		return Value{}, err
	}
	if n != len(src) {
		return Value{}, fmt.Errorf("codec: %d trailing bytes after value", len(src)-n)
	}
	return v, nil
}
