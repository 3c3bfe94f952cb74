package rpc

import (
	"fmt"

	"github.com/blockmesh/blockmesh/pkg/codec"
)

// Wire is the set of Go types the arity-polymorphic call/register
// surface can carry as an argument or a return value. bool is encoded
// as a uint64 0/1 since the codec's tagged format has no boolean kind
// of its own.
type Wire interface {
	uint64 | uint32 | uint16 | int | bool | string | []byte
}

func toWireValue[T Wire](v T) codec.Value {
	switch x := any(v).(type) {
	case uint64:
		return codec.Uint64(x)
	case uint32:
		return codec.Uint64(uint64(x))
	case uint16:
		return codec.Uint64(uint64(x))
	case int:
		return codec.Uint64(uint64(x))
	case bool:
		if x {
			return codec.Uint64(1)
		}
		return codec.Uint64(0)
	case string:
		return codec.String(x)
	case []byte:
		return codec.Blob(x)
	default:
		panic(fmt.Sprintf("rpc: unsupported wire type %T", v))
	}
}

func fromWireValue[T Wire](v codec.Value) (T, error) {
	var zero T
	switch any(zero).(type) {
	case uint64:
		if v.Kind != codec.KindUint64 {
			return zero, fmt.Errorf("rpc: expected uint64, got kind %d", v.Kind)
		}
		return any(v.U64).(T), nil
	case uint32:
		if v.Kind != codec.KindUint64 {
			return zero, fmt.Errorf("rpc: expected uint64, got kind %d", v.Kind)
		}
		return any(uint32(v.U64)).(T), nil
	case uint16:
		if v.Kind != codec.KindUint64 {
			return zero, fmt.Errorf("rpc: expected uint64, got kind %d", v.Kind)
		}
		return any(uint16(v.U64)).(T), nil
	case int:
		if v.Kind != codec.KindUint64 {
			return zero, fmt.Errorf("rpc: expected uint64, got kind %d", v.Kind)
		}
		return any(int(v.U64)).(T), nil
	case bool:
		if v.Kind != codec.KindUint64 {
			return zero, fmt.Errorf("rpc: expected uint64, got kind %d", v.Kind)
		}
		return any(v.U64 != 0).(T), nil
	case string:
		if v.Kind != codec.KindString {
			return zero, fmt.Errorf("rpc: expected string, got kind %d", v.Kind)
		}
		return any(v.Str).(T), nil
	case []byte:
		if v.Kind != codec.KindBlob {
			return zero, fmt.Errorf("rpc: expected blob, got kind %d", v.Kind)
		}
		return any(v.Blob).(T), nil
	default:
		return zero, fmt.Errorf("rpc: unsupported wire type %T", zero)
	}
}
