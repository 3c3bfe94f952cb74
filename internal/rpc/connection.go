package rpc

import (
	"io"
	"log/slog"
	"sync"

	"github.com/blockmesh/blockmesh/internal/workerpool"
	"github.com/blockmesh/blockmesh/pkg/codec"
)

// Socket is the narrow byte-stream abstraction the transport is built
// on: connect/listen, write, and a blocking read loop driven by
// whatever concrete stream type dials or accepts it. A net.Conn
// satisfies it directly; the listener/socket machinery itself is
// treated as an external primitive, not a concern of this package.
type Socket interface {
	io.ReadWriteCloser
}

// conn wires a Socket to a frame-oriented send/receive model: exactly
// one goroutine reads the socket and feeds a codec.Unpacker (the
// socket's own "receive callback"), decoded frames are handed to
// onFrame, and writes are serialized by writeMu so interleaved
// concurrent callers produce a well-formed byte stream.
type conn struct {
	sock Socket
	pool *workerpool.Pool
	log  *slog.Logger

	writeMu sync.Mutex

	hookMu   sync.Mutex
	hooks    []func()
	vanished bool

	closeOnce sync.Once
	closed    chan struct{}

	onFrame func(frame []byte)
}

func newConn(sock Socket, pool *workerpool.Pool, log *slog.Logger, onFrame func([]byte)) *conn {
	c := &conn{
		sock:    sock,
		pool:    pool,
		log:     log,
		closed:  make(chan struct{}),
		onFrame: onFrame,
	}
	go c.readLoop()
	return c
}

// OnDisconnect registers fn to run exactly once when the connection is
// torn down. If it has already vanished, fn runs immediately. Multiple
// hooks may be registered (the server uses one to forget the
// connection from its retained set; higher layers such as the peer
// overlay use another to tear down peer state).
func (c *conn) OnDisconnect(fn func()) {
	c.hookMu.Lock()
	if c.vanished {
		c.hookMu.Unlock()
		fn()
		return
	}
	c.hooks = append(c.hooks, fn)
	c.hookMu.Unlock()
}

// readLoop is the one blocking-read goroutine per connection: it must
// exist because something has to call Read, but it does no decoding
// work of its own beyond framing — every decoded request or response is
// handed off to onFrame, which in turn schedules further work on the
// pool rather than running inline here.
func (c *conn) readLoop() {
	defer c.disconnect()
	buf := make([]byte, 32*1024)
	var unpacker codec.Unpacker
	for {
		n, err := c.sock.Read(buf)
		if n > 0 {
			unpacker.Feed(buf[:n])
			for {
				frame, ok, ferr := unpacker.Next()
				if ferr != nil {
					c.log.Warn("rpc: frame decode error, dropping connection", "error", ferr)
					return
				}
				if !ok {
					break
				}
				c.onFrame(frame)
			}
		}
		if err != nil {
			if err != io.EOF {
				c.log.Debug("rpc: connection read ended", "error", err)
			}
			return
		}
	}
}

func (c *conn) writeFrame(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return codec.WriteFrame(c.sock, payload)
}

func (c *conn) disconnect() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.sock.Close()
		c.hookMu.Lock()
		hooks := c.hooks
		c.hooks = nil
		c.vanished = true
		c.hookMu.Unlock()
		for _, h := range hooks {
			h()
		}
	})
}

func (c *conn) Close() error {
	err := c.sock.Close()
	c.disconnect()
	return err
}
