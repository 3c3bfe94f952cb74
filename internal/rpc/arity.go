// This file provides the arity-polymorphic Register/Call surface for
// 0 through 5 positional arguments. The source achieves typed overloads
// through template expansion; Go has no variadic generics, so the same
// observable contract (encode the tuple, decode the tuple, bridge to
// Future[Ret]) is expanded here by hand across each arity instead.
package rpc

import (
	"github.com/blockmesh/blockmesh/pkg/codec"
	"github.com/blockmesh/blockmesh/pkg/future"
)

func decodeResultFuture[Ret Wire](cl *Client, resultBlob *future.Future[[]byte]) *future.Future[Ret] {
	out := future.New[Ret](cl.pool)
	resultBlob.AddCallback(func(blob []byte) {
		if blob == nil {
			var zero Ret
			out.Set(zero)
			return
		}
		v, err := codec.Unmarshal(blob)
		if err != nil {
			var zero Ret
			out.Set(zero)
			return
		}
		ret, err := fromWireValue[Ret](v)
		if err != nil {
			var zero Ret
			out.Set(zero)
			return
		}
		out.Set(ret)
	})
	return out
}

func callRaw(cl *Client, method string, argsBlob []byte) *future.Future[[]byte] {
	f := future.New[[]byte](cl.pool)
	cl.send(method, argsBlob, func(blob []byte) { f.Set(blob) })
	return f
}

func wrapHandler[Ret Wire](pool handlerPool, fn func() *future.Future[Ret], arity int, decode func([]codec.Value) error) Handler {
	return func(argsBlob []byte) *future.Future[[]byte] {
		out := future.New[[]byte](pool)
		args, err := decodeArgs(argsBlob, arity)
		if err != nil {
			out.Set(nil)
			return out
		}
		if err := decode(args); err != nil {
			out.Set(nil)
			return out
		}
		fn().AddCallback(func(v Ret) {
			out.Set(codec.Marshal(toWireValue(v)))
		})
		return out
	}
}

// handlerPool is the minimal dispatcher surface wrapHandler needs.
type handlerPool = future.Dispatcher

// Call0 invokes a zero-argument method.
func Call0[Ret Wire](cl *Client, method string) *future.Future[Ret] {
	raw := callRaw(cl, method, encodeArgs())
	return decodeResultFuture[Ret](cl, raw)
}

// Register0 installs a zero-argument handler.
func Register0[Ret Wire](s *Server, method string, fn func() *future.Future[Ret]) {
	s.Register(method, wrapHandler(s.pool, fn, 0, func([]codec.Value) error { return nil }))
}

// Call1 invokes a one-argument method.
func Call1[A0, Ret Wire](cl *Client, method string, a0 A0) *future.Future[Ret] {
	raw := callRaw(cl, method, encodeArgs(toWireValue(a0)))
	return decodeResultFuture[Ret](cl, raw)
}

// Register1 installs a one-argument handler.
func Register1[A0, Ret Wire](s *Server, method string, fn func(A0) *future.Future[Ret]) {
	s.Register(method, func(argsBlob []byte) *future.Future[[]byte] {
		out := future.New[[]byte](s.pool)
		args, err := decodeArgs(argsBlob, 1)
		if err != nil {
			out.Set(nil)
			return out
		}
		a0, err := fromWireValue[A0](args[0])
		if err != nil {
			out.Set(nil)
			return out
		}
		fn(a0).AddCallback(func(v Ret) { out.Set(codec.Marshal(toWireValue(v))) })
		return out
	})
}

// RegisterRaw1 installs a one-argument handler that also receives the
// identity of the connection the call arrived on.
func RegisterRaw1[A0, Ret Wire](s *Server, method string, fn func(id ConnID, a0 A0) *future.Future[Ret]) {
	s.RegisterRaw(method, func(id ConnID, argsBlob []byte) *future.Future[[]byte] {
		out := future.New[[]byte](s.pool)
		args, err := decodeArgs(argsBlob, 1)
		if err != nil {
			out.Set(nil)
			return out
		}
		a0, err := fromWireValue[A0](args[0])
		if err != nil {
			out.Set(nil)
			return out
		}
		fn(id, a0).AddCallback(func(v Ret) { out.Set(codec.Marshal(toWireValue(v))) })
		return out
	})
}

// RegisterRaw2 installs a two-argument handler that also receives the
// identity of the connection the call arrived on.
func RegisterRaw2[A0, A1, Ret Wire](s *Server, method string, fn func(id ConnID, a0 A0, a1 A1) *future.Future[Ret]) {
	s.RegisterRaw(method, func(id ConnID, argsBlob []byte) *future.Future[[]byte] {
		out := future.New[[]byte](s.pool)
		args, err := decodeArgs(argsBlob, 2)
		if err != nil {
			out.Set(nil)
			return out
		}
		a0, err := fromWireValue[A0](args[0])
		if err != nil {
			out.Set(nil)
			return out
		}
		a1, err := fromWireValue[A1](args[1])
		if err != nil {
			out.Set(nil)
			return out
		}
		fn(id, a0, a1).AddCallback(func(v Ret) { out.Set(codec.Marshal(toWireValue(v))) })
		return out
	})
}

// Call2 invokes a two-argument method.
func Call2[A0, A1, Ret Wire](cl *Client, method string, a0 A0, a1 A1) *future.Future[Ret] {
	raw := callRaw(cl, method, encodeArgs(toWireValue(a0), toWireValue(a1)))
	return decodeResultFuture[Ret](cl, raw)
}

// Register2 installs a two-argument handler.
func Register2[A0, A1, Ret Wire](s *Server, method string, fn func(A0, A1) *future.Future[Ret]) {
	s.Register(method, func(argsBlob []byte) *future.Future[[]byte] {
		out := future.New[[]byte](s.pool)
		args, err := decodeArgs(argsBlob, 2)
		if err != nil {
			out.Set(nil)
			return out
		}
		a0, err := fromWireValue[A0](args[0])
		if err != nil {
			out.Set(nil)
			return out
		}
		a1, err := fromWireValue[A1](args[1])
		if err != nil {
			out.Set(nil)
			return out
		}
		fn(a0, a1).AddCallback(func(v Ret) { out.Set(codec.Marshal(toWireValue(v))) })
		return out
	})
}

// Call3 invokes a three-argument method.
func Call3[A0, A1, A2, Ret Wire](cl *Client, method string, a0 A0, a1 A1, a2 A2) *future.Future[Ret] {
	raw := callRaw(cl, method, encodeArgs(toWireValue(a0), toWireValue(a1), toWireValue(a2)))
	return decodeResultFuture[Ret](cl, raw)
}

// Register3 installs a three-argument handler.
func Register3[A0, A1, A2, Ret Wire](s *Server, method string, fn func(A0, A1, A2) *future.Future[Ret]) {
	s.Register(method, func(argsBlob []byte) *future.Future[[]byte] {
		out := future.New[[]byte](s.pool)
		args, err := decodeArgs(argsBlob, 3)
		if err != nil {
			out.Set(nil)
			return out
		}
		a0, err := fromWireValue[A0](args[0])
		if err != nil {
			out.Set(nil)
			return out
		}
		a1, err := fromWireValue[A1](args[1])
		if err != nil {
			out.Set(nil)
			return out
		}
		a2, err := fromWireValue[A2](args[2])
		if err != nil {
			out.Set(nil)
			return out
		}
		fn(a0, a1, a2).AddCallback(func(v Ret) { out.Set(codec.Marshal(toWireValue(v))) })
		return out
	})
}

// Call4 invokes a four-argument method.
func Call4[A0, A1, A2, A3, Ret Wire](cl *Client, method string, a0 A0, a1 A1, a2 A2, a3 A3) *future.Future[Ret] {
	raw := callRaw(cl, method, encodeArgs(toWireValue(a0), toWireValue(a1), toWireValue(a2), toWireValue(a3)))
	return decodeResultFuture[Ret](cl, raw)
}

// Register4 installs a four-argument handler.
func Register4[A0, A1, A2, A3, Ret Wire](s *Server, method string, fn func(A0, A1, A2, A3) *future.Future[Ret]) {
	s.Register(method, func(argsBlob []byte) *future.Future[[]byte] {
		out := future.New[[]byte](s.pool)
		args, err := decodeArgs(argsBlob, 4)
		if err != nil {
			out.Set(nil)
			return out
		}
		a0, err := fromWireValue[A0](args[0])
		if err != nil {
			out.Set(nil)
			return out
		}
		a1, err := fromWireValue[A1](args[1])
		if err != nil {
			out.Set(nil)
			return out
		}
		a2, err := fromWireValue[A2](args[2])
		if err != nil {
			out.Set(nil)
			return out
		}
		a3, err := fromWireValue[A3](args[3])
		if err != nil {
			out.Set(nil)
			return out
		}
		fn(a0, a1, a2, a3).AddCallback(func(v Ret) { out.Set(codec.Marshal(toWireValue(v))) })
		return out
	})
}

// Call5 invokes a five-argument method.
func Call5[A0, A1, A2, A3, A4, Ret Wire](cl *Client, method string, a0 A0, a1 A1, a2 A2, a3 A3, a4 A4) *future.Future[Ret] {
	raw := callRaw(cl, method, encodeArgs(toWireValue(a0), toWireValue(a1), toWireValue(a2), toWireValue(a3), toWireValue(a4)))
	return decodeResultFuture[Ret](cl, raw)
}

// Register5 installs a five-argument handler.
func Register5[A0, A1, A2, A3, A4, Ret Wire](s *Server, method string, fn func(A0, A1, A2, A3, A4) *future.Future[Ret]) {
	s.Register(method, func(argsBlob []byte) *future.Future[[]byte] {
		out := future.New[[]byte](s.pool)
		args, err := decodeArgs(argsBlob, 5)
		if err != nil {
			out.Set(nil)
			return out
		}
		a0, err := fromWireValue[A0](args[0])
		if err != nil {
			out.Set(nil)
			return out
		}
		a1, err := fromWireValue[A1](args[1])
		if err != nil {
			out.Set(nil)
			return out
		}
		a2, err := fromWireValue[A2](args[2])
		if err != nil {
			out.Set(nil)
			return out
		}
		a3, err := fromWireValue[A3](args[3])
		if err != nil {
			out.Set(nil)
			return out
		}
		a4, err := fromWireValue[A4](args[4])
		if err != nil {
			out.Set(nil)
			return out
		}
		fn(a0, a1, a2, a3, a4).AddCallback(func(v Ret) { out.Set(codec.Marshal(toWireValue(v))) })
		return out
	})
}
