package rpc

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/blockmesh/blockmesh/internal/workerpool"
	"github.com/blockmesh/blockmesh/pkg/future"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServerClient(t *testing.T) (*Server, *Client, *workerpool.Pool) {
	t.Helper()
	pool := workerpool.New(workerpool.Config{WorkerCount: 4, GlobalBuffer: 100})
	t.Cleanup(pool.Close)

	srv, err := NewServer("127.0.0.1:0", pool, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	cl, err := Dial(srv.Addr().String(), pool, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })

	return srv, cl, pool
}

// TestRPCArityTwoIntAdd is the literal arity scenario from the spec:
// a server registers addArgs2(int,int)->int and a client call receives
// the sum.
func TestRPCArityTwoIntAdd(t *testing.T) {
	srv, cl, pool := newServerClient(t)

	Register2[int, int, int](srv, "addArgs2", func(a, b int) *future.Future[int] {
		return future.Resolved[int](pool, a+b)
	})

	result := Call2[int, int, int](cl, "addArgs2", 3, 4)
	require.Equal(t, 7, waitFor(t, result))
}

func TestRPCZeroArity(t *testing.T) {
	srv, cl, pool := newServerClient(t)

	Register0[uint64](srv, "ping", func() *future.Future[uint64] {
		return future.Resolved[uint64](pool, 42)
	})

	result := Call0[uint64](cl, "ping")
	require.Equal(t, uint64(42), waitFor(t, result))
}

func TestRPCStringAndBlobArgs(t *testing.T) {
	srv, cl, pool := newServerClient(t)

	var received []byte
	Register2[string, []byte, bool](srv, "putBlock0", func(key string, data []byte) *future.Future[bool] {
		received = data
		return future.Resolved[bool](pool, key == "apple")
	})

	ok := Call2[string, []byte, bool](cl, "putBlock0", "apple", []byte{1, 2, 3})
	require.True(t, waitFor(t, ok))
	require.Equal(t, []byte{1, 2, 3}, received)
}

func TestRPCUnknownMethodDropsConnection(t *testing.T) {
	_, cl, _ := newServerClient(t)

	disconnected := make(chan struct{})
	cl.OnDisconnect(func() { close(disconnected) })

	result := Call0[uint64](cl, "no-such-method")
	require.Equal(t, uint64(0), waitFor(t, result))

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("client was never notified of disconnect")
	}
}

// TestDisconnectResolvesOutstandingCalls proves the corrected behavior:
// closing the server side resolves every outstanding client call with
// the failure sentinel instead of leaking the waiter.
func TestDisconnectResolvesOutstandingCalls(t *testing.T) {
	srv, cl, pool := newServerClient(t)

	block := make(chan struct{})
	Register0[uint64](srv, "slow", func() *future.Future[uint64] {
		f := future.New[uint64](pool)
		go func() {
			<-block
			f.Set(1)
		}()
		return f
	})

	result := Call0[uint64](cl, "slow")

	disconnected := make(chan struct{})
	cl.OnDisconnect(func() { close(disconnected) })

	require.NoError(t, srv.Close())

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("client disconnect callback never fired")
	}
	require.Equal(t, uint64(0), waitFor(t, result))
	close(block)
}

func waitFor[T any](t *testing.T, f *future.Future[T]) T {
	t.Helper()
	select {
	case <-f.Done():
		return f.Get()
	case <-time.After(2 * time.Second):
		t.Fatal("future never resolved")
		var zero T
		return zero
	}
}
