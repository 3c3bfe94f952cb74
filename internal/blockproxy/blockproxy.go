// Package blockproxy makes a peer's local block store reachable over
// RPC, in both directions: Proxy is the client-side stand-in that
// presents the same shape as blockstore.Store but backs every call with
// an RPC to a specific store id (bsid); RegisterHandlers installs the
// server-side adaptors a peer exposes for its own stores. Multiple
// stores hosted by one peer share a single connection by suffixing the
// bsid onto each canonical method name.
package blockproxy

import (
	"fmt"

	"github.com/blockmesh/blockmesh/internal/blockstore"
	"github.com/blockmesh/blockmesh/internal/rpc"
	"github.com/blockmesh/blockmesh/pkg/bloom"
	"github.com/blockmesh/blockmesh/pkg/future"
)

// Proxy presents a remote block store's operations as local-looking
// calls, each one actually an RPC round trip.
type Proxy struct {
	client *rpc.Client
	bsid   uint64
}

// New wraps client for the store identified by bsid on the far end.
func New(client *rpc.Client, bsid uint64) *Proxy {
	return &Proxy{client: client, bsid: bsid}
}

func methodName(base string, bsid uint64) string {
	return fmt.Sprintf("%s%d", base, bsid)
}

// Put stores data under key on the remote store.
func (p *Proxy) Put(key string, data []byte) *future.Future[bool] {
	return rpc.Call2[string, []byte, bool](p.client, methodName("putBlock", p.bsid), key, data)
}

// Get fetches key from the remote store. An empty result means
// not-found, mirroring the wire contract directly rather than wrapping
// it in an Option type the codec has no representation for.
func (p *Proxy) Get(key string) *future.Future[[]byte] {
	return rpc.Call1[string, []byte](p.client, methodName("getBlock", p.bsid), key)
}

// Remove deletes key from the remote store.
func (p *Proxy) Remove(key string) *future.Future[bool] {
	return rpc.Call1[string, bool](p.client, methodName("removeBlock", p.bsid), key)
}

// BlockSize returns the remote store's fixed block size.
func (p *Proxy) BlockSize() *future.Future[uint64] {
	return rpc.Call0[uint64](p.client, methodName("blockSize", p.bsid))
}

// NumFreeBlocks returns the remote store's free-block counter.
func (p *Proxy) NumFreeBlocks() *future.Future[uint64] {
	return rpc.Call0[uint64](p.client, methodName("numFreeBlocks", p.bsid))
}

// NumTotalBlocks returns the remote store's free+used approximation.
func (p *Proxy) NumTotalBlocks() *future.Future[uint64] {
	return rpc.Call0[uint64](p.client, methodName("numTotalBlocks", p.bsid))
}

// BloomFilter fetches and deserializes the remote store's bloom filter
// summary. A malformed response resolves to nil.
func (p *Proxy) BloomFilter() *future.Future[*bloom.Filter] {
	raw := rpc.Call0[[]byte](p.client, methodName("bloomfilter", p.bsid))
	out := future.New[*bloom.Filter](p.client.Dispatcher())
	raw.AddCallback(func(blob []byte) {
		f, ok := bloom.Deserialize(blob)
		if !ok {
			out.Set(nil)
			return
		}
		out.Set(f)
	})
	return out
}

// RegisterHandlers installs the server-side RPC adaptors that bridge
// between the wire's byte-vector payloads and store's native buffer
// type, for the given bsid.
func RegisterHandlers(server *rpc.Server, bsid uint64, store *blockstore.Store) {
	pool := server.Dispatcher()

	rpc.Register2[string, []byte, bool](server, methodName("putBlock", bsid), func(key string, data []byte) *future.Future[bool] {
		return future.Resolved(pool, store.Put(key, data))
	})

	rpc.Register1[string, []byte](server, methodName("getBlock", bsid), func(key string) *future.Future[[]byte] {
		data, ok := store.Get(key)
		if !ok {
			return future.Resolved[[]byte](pool, nil)
		}
		return future.Resolved(pool, data)
	})

	rpc.Register1[string, bool](server, methodName("removeBlock", bsid), func(key string) *future.Future[bool] {
		return future.Resolved(pool, store.Remove(key))
	})

	rpc.Register0[uint64](server, methodName("blockSize", bsid), func() *future.Future[uint64] {
		return future.Resolved(pool, store.BlockSize())
	})

	rpc.Register0[uint64](server, methodName("numFreeBlocks", bsid), func() *future.Future[uint64] {
		return future.Resolved(pool, store.NumFree())
	})

	rpc.Register0[uint64](server, methodName("numTotalBlocks", bsid), func() *future.Future[uint64] {
		return future.Resolved(pool, store.NumTotal())
	})

	rpc.Register0[[]byte](server, methodName("bloomfilter", bsid), func() *future.Future[[]byte] {
		return future.Resolved(pool, store.BloomFilter().Serialize())
	})
}
