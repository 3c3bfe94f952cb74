// Package peer implements the service node: an RPC server announcing a
// (host, port), an outbound client per discovered peer, and the
// gossip-driven protocol that grows an initial contact graph into a
// full mesh. Grounded on the registry/gossip shape of the source
// project's internal/cluster package, generalized from fixed cluster
// message types to the peer-discovery and group-directory RPCs named
// below.
package peer

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/blockmesh/blockmesh/internal/rpc"
	"github.com/blockmesh/blockmesh/internal/workerpool"
	"github.com/blockmesh/blockmesh/pkg/future"
)

// Addr is a peer's announced identity, used as the key under which its
// outbound client is retained.
type Addr struct {
	Host string
	Port int
}

func (a Addr) String() string { return fmt.Sprintf("%s:%d", a.Host, a.Port) }

// GroupCallback is notified of a membership change for a subscribed
// group: added is true on join, false on departure.
type GroupCallback func(member string, added bool)

type peerEntry struct {
	addr     Addr
	client   *rpc.Client
	lastSeen time.Time
}

// source attributes one refcount tick to where it came from, so a peer
// disconnect can unwind exactly what that peer contributed without
// touching ticks added locally or by a different peer.
type source struct {
	local   bool
	unknown bool
	peer    Addr
}

// Node is a service node: its announced identity, an RPC server, one
// outbound client per known peer, and a mutex-protected group
// directory. All RPC-fed and locally invoked mutators take the same
// lock.
type Node struct {
	host string
	port int

	server *rpc.Server
	pool   *workerpool.Pool
	log    *slog.Logger

	mu    sync.Mutex
	peers map[Addr]*peerEntry

	// connPeer attributes an inbound connection to the peer address it
	// belongs to, learned from the reciprocal addPeer handshake that
	// travels over that same connection. Group-directory RPCs arriving
	// later on the connection look up their source here.
	connPeer map[rpc.ConnID]Addr

	groups     map[string]map[string]uint64
	provenance map[string]map[string]map[source]uint64
	callbacks  map[string][]GroupCallback
}

// New starts listening on host:port (port 0 picks an ephemeral port,
// which is then read back as the node's announced port) and registers
// the peer-discovery and group-directory RPC methods.
func New(host string, port int, pool *workerpool.Pool, log *slog.Logger) (*Node, error) {
	srv, err := rpc.NewServer(fmt.Sprintf("%s:%d", host, port), pool, log)
	if err != nil {
		return nil, err
	}
	if tcpAddr, ok := srv.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	n := &Node{
		host:       host,
		port:       port,
		server:     srv,
		pool:       pool,
		log:        log,
		peers:      make(map[Addr]*peerEntry),
		connPeer:   make(map[rpc.ConnID]Addr),
		groups:     make(map[string]map[string]uint64),
		provenance: make(map[string]map[string]map[source]uint64),
		callbacks:  make(map[string][]GroupCallback),
	}
	n.registerHandlers()
	return n, nil
}

// Host and Port are this node's announced identity, as given to peers
// during the reciprocal handshake.
func (n *Node) Host() string { return n.host }
func (n *Node) Port() int    { return n.port }
func (n *Node) Addr() Addr   { return Addr{Host: n.host, Port: n.port} }

// Server exposes the underlying RPC server so composing layers (the
// block-store node) can register additional methods on the same
// listen socket and connection set.
func (n *Node) Server() *rpc.Server { return n.server }

func (n *Node) registerHandlers() {
	rpc.RegisterRaw2[string, int, bool](n.server, "addPeer", func(id rpc.ConnID, h string, p int) *future.Future[bool] {
		addr := Addr{Host: h, Port: p}
		n.mu.Lock()
		n.connPeer[id] = addr
		n.mu.Unlock()
		n.server.OnConnDisconnect(id, func() { n.forgetConn(id) })
		return future.Resolved(n.pool, n.addPeer(addr))
	})

	rpc.RegisterRaw2[string, string, bool](n.server, "addToGroup", func(id rpc.ConnID, g, m string) *future.Future[bool] {
		n.applyAddToGroup(g, m, n.sourceFor(id))
		return future.Resolved(n.pool, true)
	})

	rpc.RegisterRaw2[string, string, bool](n.server, "removeFromGroup", func(id rpc.ConnID, g, m string) *future.Future[bool] {
		n.applyRemoveFromGroup(g, m, n.sourceFor(id))
		return future.Resolved(n.pool, true)
	})
}

// sourceFor resolves the peer a connection belongs to and, if known,
// marks it as active: any gossip arriving on the connection counts as
// liveness for the fixed-window peer-expiry check.
func (n *Node) sourceFor(id rpc.ConnID) source {
	n.mu.Lock()
	addr, ok := n.connPeer[id]
	if ok {
		if e, ok := n.peers[addr]; ok {
			e.lastSeen = time.Now()
		}
	}
	n.mu.Unlock()
	if !ok {
		return source{unknown: true}
	}
	return source{peer: addr}
}

func (n *Node) forgetConn(id rpc.ConnID) {
	n.mu.Lock()
	delete(n.connPeer, id)
	n.mu.Unlock()
}

// AddPeer is the local-invocation entry point of the discovery
// protocol (spec step 1): idempotent if already known, otherwise dials
// out, registers the peer, and drives gossip.
func (n *Node) AddPeer(host string, port int) bool {
	return n.addPeer(Addr{Host: host, Port: port})
}

func (n *Node) addPeer(addr Addr) bool {
	n.mu.Lock()
	if _, ok := n.peers[addr]; ok {
		n.mu.Unlock()
		return true
	}
	n.mu.Unlock()

	client, err := rpc.Dial(addr.String(), n.pool, n.log)
	if err != nil {
		n.log.Debug("peer: dial failed", "addr", addr.String(), "error", err)
		return false
	}

	n.mu.Lock()
	if _, ok := n.peers[addr]; ok {
		// Lost a race with a concurrent connection attempt to the same
		// peer (e.g. mutual simultaneous addPeer); keep the winner.
		n.mu.Unlock()
		_ = client.Close()
		return true
	}
	n.peers[addr] = &peerEntry{addr: addr, client: client, lastSeen: time.Now()}

	others := make([]Addr, 0, len(n.peers))
	for a := range n.peers {
		if a != addr {
			others = append(others, a)
		}
	}
	type replay struct{ group, member string }
	var replays []replay
	for g, members := range n.groups {
		for m := range members {
			replays = append(replays, replay{g, m})
		}
	}
	n.mu.Unlock()

	client.OnDisconnect(func() { n.handlePeerDisconnect(addr) })

	// Reciprocal handshake: the remote side learns our announced
	// identity over this same connection.
	rpc.Call2[string, int, bool](client, "addPeer", n.host, n.port)

	// Gossip existing peers to the new one, driving transitive
	// full-mesh formation.
	for _, o := range others {
		rpc.Call2[string, int, bool](client, "addPeer", o.Host, o.Port)
	}

	// Replay local groups so the new peer learns our contributions.
	for _, r := range replays {
		rpc.Call2[string, string, bool](client, "addToGroup", r.group, r.member)
	}

	return true
}

// PeerCount returns the number of peers currently connected.
func (n *Node) PeerCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.peers)
}

// Peers returns a snapshot of currently known peer addresses.
func (n *Node) Peers() []Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Addr, 0, len(n.peers))
	for a := range n.peers {
		out = append(out, a)
	}
	return out
}

// Client returns the outbound RPC client for addr, if addr is a
// currently known peer.
func (n *Node) Client(addr Addr) (*rpc.Client, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.peers[addr]
	if !ok {
		return nil, false
	}
	return e.client, true
}

// ExpirePeers closes every peer whose connection has been silent
// (no successful gossip or handshake) longer than window. Closing
// triggers the same disconnect teardown as any other socket loss.
func (n *Node) ExpirePeers(window time.Duration) {
	n.mu.Lock()
	now := time.Now()
	var stale []*rpc.Client
	for _, e := range n.peers {
		if now.Sub(e.lastSeen) > window {
			stale = append(stale, e.client)
		}
	}
	n.mu.Unlock()

	for _, c := range stale {
		_ = c.Close()
	}
}

func (n *Node) snapshotPeerClients() []*rpc.Client {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*rpc.Client, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, p.client)
	}
	return out
}

// Close closes every peer connection and the listen socket.
func (n *Node) Close() error {
	for _, c := range n.snapshotPeerClients() {
		_ = c.Close()
	}
	return n.server.Close()
}
