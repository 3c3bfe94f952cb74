package blockproxy

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/blockmesh/blockmesh/internal/blockstore"
	"github.com/blockmesh/blockmesh/internal/rpc"
	"github.com/blockmesh/blockmesh/internal/workerpool"
	"github.com/blockmesh/blockmesh/pkg/future"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
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

func setup(t *testing.T) (*Proxy, *blockstore.Store) {
	t.Helper()
	pool := workerpool.New(workerpool.Config{WorkerCount: 4, GlobalBuffer: 100})
	t.Cleanup(pool.Close)

	store, err := blockstore.Open(t.TempDir(), 16)
	require.NoError(t, err)

	srv, err := rpc.NewServer("127.0.0.1:0", pool, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	RegisterHandlers(srv, 0, store)

	cl, err := rpc.Dial(srv.Addr().String(), pool, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })

	return New(cl, 0), store
}

func TestProxyPutGetRemove(t *testing.T) {
	p, _ := setup(t)

	require.True(t, waitFor(t, p.Put("apple", []byte("apple"))))

	got := waitFor(t, p.Get("apple"))
	require.Equal(t, "apple", string(got[:5]))

	require.True(t, waitFor(t, p.Remove("apple")))
	got = waitFor(t, p.Get("apple"))
	require.Empty(t, got)
}

func TestProxyStats(t *testing.T) {
	p, _ := setup(t)

	require.Equal(t, uint64(16), waitFor(t, p.BlockSize()))
	require.True(t, waitFor(t, p.Put("apple", []byte("apple"))))
	require.GreaterOrEqual(t, waitFor(t, p.NumTotalBlocks()), uint64(1))
}

func TestProxyBloomFilter(t *testing.T) {
	p, _ := setup(t)
	require.True(t, waitFor(t, p.Put("apple", []byte("apple"))))

	bf := waitFor(t, p.BloomFilter())
	require.NotNil(t, bf)
	require.True(t, bf.MayContain("apple"))
}
