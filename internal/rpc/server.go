package rpc

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/blockmesh/blockmesh/internal/workerpool"
	"github.com/blockmesh/blockmesh/pkg/future"
)

// Handler is the untyped shape every registered method is reduced to:
// decode nothing itself, just take the already-extracted args_blob and
// produce a future of the encoded result_blob.
type Handler func(argsBlob []byte) *future.Future[[]byte]

// RawHandler is like Handler but also receives the identity of the
// connection the request arrived on. Most methods don't need this; the
// peer overlay uses it to attribute group-membership gossip to the
// peer that sent it, so a disconnect can unwind exactly that peer's
// contributions.
type RawHandler func(id ConnID, argsBlob []byte) *future.Future[[]byte]

// ConnID is an opaque, comparable handle identifying one accepted
// connection for its lifetime. It carries no exported behavior; it
// exists to be used as a map key and passed back into OnConnDisconnect.
type ConnID = *conn

// Server owns a listen socket and a method dispatch table. Accepted
// connections are retained internally unless an AcceptCallback is
// installed, in which case the server does not retain them: Close does
// not close such a connection, and dropping the reference to it does not
// close it either; it stays open until the caller calls its Close or
// the remote side disconnects.
type Server struct {
	mu       sync.Mutex
	handlers map[string]RawHandler
	listener net.Listener
	pool     *workerpool.Pool
	log      *slog.Logger

	conns map[*conn]struct{}

	// AcceptCallback, if set, is invoked with each newly accepted
	// connection instead of the server retaining it itself.
	AcceptCallback func(ConnID)

	closeOnce sync.Once
	closed    chan struct{}
}

// NewServer starts listening on addr and begins accepting connections.
func NewServer(addr string, pool *workerpool.Pool, log *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	s := &Server{
		handlers: make(map[string]RawHandler),
		listener: ln,
		pool:     pool,
		log:      log,
		conns:    make(map[*conn]struct{}),
		closed:   make(chan struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the server's bound listen address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Dispatcher exposes the server's pool as a future.Dispatcher, for
// handlers that need to build their own resolved/pending futures.
func (s *Server) Dispatcher() future.Dispatcher { return s.pool }

// Register installs a connection-agnostic handler under name.
// Registering two methods with the same name is a programmer error and
// panics, mirroring the fatal treatment of other contract violations in
// this system.
func (s *Server) Register(name string, h Handler) {
	s.RegisterRaw(name, func(_ ConnID, argsBlob []byte) *future.Future[[]byte] {
		return h(argsBlob)
	})
}

// RegisterRaw installs a handler that also receives the calling
// connection's identity.
func (s *Server) RegisterRaw(name string, h RawHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handlers[name]; exists {
		panic(fmt.Sprintf("rpc: method %q already registered", name))
	}
	s.handlers[name] = h
}

// OnConnDisconnect registers fn to run once the connection identified
// by id is torn down.
func (s *Server) OnConnDisconnect(id ConnID, fn func()) {
	id.OnDisconnect(fn)
}

func (s *Server) lookup(name string) (RawHandler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handlers[name]
	return h, ok
}

func (s *Server) acceptLoop() {
	for {
		sock, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
				s.log.Debug("rpc: accept error", "error", err)
				return
			}
		}
		s.handleAccepted(sock)
	}
}

func (s *Server) handleAccepted(sock Socket) {
	var c *conn
	c = newConn(sock, s.pool, s.log, func(frame []byte) {
		s.dispatch(c, frame)
	})
	c.OnDisconnect(func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	})

	if s.AcceptCallback != nil {
		s.AcceptCallback(c)
		return
	}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

// dispatch decodes one request envelope and schedules its handling on
// the pool; it never runs the handler inline on the connection's read
// goroutine.
func (s *Server) dispatch(c *conn, frame []byte) {
	req, err := decodeRequest(frame)
	if err != nil {
		s.log.Warn("rpc: malformed request, dropping connection", "error", err)
		go c.disconnect()
		return
	}

	handler, ok := s.lookup(req.method)
	if !ok {
		s.log.Warn("rpc: unknown method, dropping connection", "method", req.method)
		go c.disconnect()
		return
	}

	s.pool.Submit(func() {
		result := handler(c, req.argsBlob)
		result.AddCallback(func(resultBlob []byte) {
			payload := encodeResponse(response{reqID: req.reqID, resultBlob: resultBlob})
			if err := c.writeFrame(payload); err != nil {
				s.log.Debug("rpc: write response failed", "error", err)
			}
		})
	})
}

// Close stops accepting connections and closes every retained one.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.listener.Close()
		s.mu.Lock()
		conns := make([]*conn, 0, len(s.conns))
		for c := range s.conns {
			conns = append(conns, c)
		}
		s.mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return nil
}
