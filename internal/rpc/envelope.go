// Package rpc implements the asynchronous request/response transport:
// a server with an arity-polymorphic, typed method table, a client with
// per-call futures matched by request id, and out-of-order completion
// over a single reliable byte stream. Grounded on the framing and
// accept/dispatch shape of the source project's internal/transport
// package (message_codec.go's header-then-payload envelopes,
// carrier.go's accept-and-dispatch loop), generalized from that
// project's fixed cluster-message types to a named-method call surface.
package rpc

import (
	"fmt"

	"github.com/blockmesh/blockmesh/pkg/codec"
)

// request is the wire shape (req_id, method, args_blob); args_blob is
// itself a codec-encoded tuple of positional arguments.
type request struct {
	reqID    uint64
	method   string
	argsBlob []byte
}

// response is the wire shape (req_id, result_blob).
type response struct {
	reqID      uint64
	resultBlob []byte
}

func encodeRequest(r request) []byte {
	return codec.Marshal(codec.Tuple(
		codec.Uint64(r.reqID),
		codec.String(r.method),
		codec.Blob(r.argsBlob),
	))
}

func decodeRequest(b []byte) (request, error) {
	v, err := codec.Unmarshal(b)
	if err != nil {
		return request{}, fmt.Errorf("rpc: decode request: %w", err)
	}
	if v.Kind != codec.KindTuple || len(v.Tuple) != 3 {
		return request{}, fmt.Errorf("rpc: malformed request envelope")
	}
	if v.Tuple[0].Kind != codec.KindUint64 || v.Tuple[1].Kind != codec.KindString || v.Tuple[2].Kind != codec.KindBlob {
		return request{}, fmt.Errorf("rpc: malformed request envelope fields")
	}
	return request{
		reqID:    v.Tuple[0].U64,
		method:   v.Tuple[1].Str,
		argsBlob: v.Tuple[2].Blob,
	}, nil
}

func encodeResponse(r response) []byte {
	return codec.Marshal(codec.Tuple(
		codec.Uint64(r.reqID),
		codec.Blob(r.resultBlob),
	))
}

func decodeResponse(b []byte) (response, error) {
	v, err := codec.Unmarshal(b)
	if err != nil {
		return response{}, fmt.Errorf("rpc: decode response: %w", err)
	}
	if v.Kind != codec.KindTuple || len(v.Tuple) != 2 {
		return response{}, fmt.Errorf("rpc: malformed response envelope")
	}
	if v.Tuple[0].Kind != codec.KindUint64 || v.Tuple[1].Kind != codec.KindBlob {
		return response{}, fmt.Errorf("rpc: malformed response envelope fields")
	}
	return response{reqID: v.Tuple[0].U64, resultBlob: v.Tuple[1].Blob}, nil
}

// encodeArgs packs positional arguments into the args_blob tuple.
func encodeArgs(args ...codec.Value) []byte {
	return codec.Marshal(codec.Tuple(args...))
}

// decodeArgs unpacks an args_blob into exactly wantArity positional
// values.
func decodeArgs(blob []byte, wantArity int) ([]codec.Value, error) {
	v, err := codec.Unmarshal(blob)
	if err != nil {
		return nil, fmt.Errorf("rpc: decode args: %w", err)
	}
	if v.Kind != codec.KindTuple || len(v.Tuple) != wantArity {
		return nil, fmt.Errorf("rpc: expected %d positional arguments, got shape %v", wantArity, v)
	}
	return v.Tuple, nil
}
