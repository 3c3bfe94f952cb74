package rpc

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/blockmesh/blockmesh/internal/workerpool"
	"github.com/blockmesh/blockmesh/pkg/codec"
	"github.com/blockmesh/blockmesh/pkg/future"
)

type pendingCall struct {
	resolve func(resultBlob []byte)
}

// Client wraps a single outbound connection, multiplexing concurrent
// calls by request id and matching out-of-order responses.
type Client struct {
	c       *conn
	pool    *workerpool.Pool
	log     *slog.Logger
	nextID  atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]pendingCall
	closed  bool

	onDisconnect func()
}

// Dial opens an outbound connection to addr.
func Dial(addr string, pool *workerpool.Pool, log *slog.Logger) (*Client, error) {
	sock, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewClient(sock, pool, log), nil
}

// NewClient wraps an already-established socket.
func NewClient(sock Socket, pool *workerpool.Pool, log *slog.Logger) *Client {
	cl := &Client{
		pool:    pool,
		log:     log,
		pending: make(map[uint64]pendingCall),
	}
	cl.c = newConn(sock, pool, log, cl.handleFrame)
	cl.c.OnDisconnect(cl.handleDisconnect)
	return cl
}

// Dispatcher exposes the client's pool as a future.Dispatcher, for
// callers composing additional futures on top of raw RPC results.
func (cl *Client) Dispatcher() future.Dispatcher { return cl.pool }

// OnDisconnect installs fn to run exactly once, after all outstanding
// calls have been resolved with the failure sentinel. If the client has
// already disconnected, fn runs immediately.
func (cl *Client) OnDisconnect(fn func()) {
	cl.mu.Lock()
	if cl.closed {
		cl.mu.Unlock()
		fn()
		return
	}
	cl.onDisconnect = fn
	cl.mu.Unlock()
}

func (cl *Client) handleFrame(frame []byte) {
	resp, err := decodeResponse(frame)
	if err != nil {
		cl.log.Warn("rpc: malformed response, dropping connection", "error", err)
		go cl.c.disconnect()
		return
	}

	cl.mu.Lock()
	p, ok := cl.pending[resp.reqID]
	if ok {
		delete(cl.pending, resp.reqID)
	}
	cl.mu.Unlock()

	if !ok {
		cl.log.Debug("rpc: response for unknown request id dropped", "req_id", resp.reqID)
		return
	}
	p.resolve(resp.resultBlob)
}

// handleDisconnect fails every outstanding call with the failure
// sentinel (the empty result_blob, which each typed Call unmarshals to
// its return type's zero value), then invokes the user callback. This
// corrects the known bug where pending callers are otherwise leaked
// forever.
func (cl *Client) handleDisconnect() {
	cl.mu.Lock()
	pending := cl.pending
	cl.pending = make(map[uint64]pendingCall)
	cl.closed = true
	onDisconnect := cl.onDisconnect
	cl.mu.Unlock()

	for _, p := range pending {
		p.resolve(nil)
	}
	if onDisconnect != nil {
		onDisconnect()
	}
}

// send allocates a request id, serializes (id, method, argsBlob), and
// writes it to the socket. req_ids are assigned while holding the same
// lock that serializes the write, so they are monotonic on the wire.
func (cl *Client) send(method string, argsBlob []byte, resolve func([]byte)) {
	cl.c.writeMu.Lock()
	id := cl.nextID.Add(1)

	cl.mu.Lock()
	if cl.closed {
		cl.mu.Unlock()
		cl.c.writeMu.Unlock()
		resolve(nil)
		return
	}
	cl.pending[id] = pendingCall{resolve: resolve}
	cl.mu.Unlock()

	payload := encodeRequest(request{reqID: id, method: method, argsBlob: argsBlob})
	err := codec.WriteFrame(cl.c.sock, payload)
	cl.c.writeMu.Unlock()
	if err != nil {
		cl.mu.Lock()
		delete(cl.pending, id)
		cl.mu.Unlock()
		resolve(nil)
	}
}

// Close closes the underlying connection, triggering disconnect
// handling for any outstanding calls.
func (cl *Client) Close() error {
	return cl.c.Close()
}
