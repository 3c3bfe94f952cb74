package peer

import "github.com/blockmesh/blockmesh/internal/rpc"

// AddToGroup increments the local refcount for (group, member), firing
// add-callbacks on the 0->1 transition, then gossips the add to every
// current peer regardless of transition so joining peers see the same
// refcount semantics via replay.
func (n *Node) AddToGroup(group, member string) bool {
	n.applyAddToGroup(group, member, source{local: true})
	for _, c := range n.snapshotPeerClients() {
		rpc.Call2[string, string, bool](c, "addToGroup", group, member)
	}
	return true
}

// RemoveFromGroup decrements the local refcount for (group, member),
// erasing it and firing remove-callbacks once it reaches zero, then
// gossips the removal to every current peer.
func (n *Node) RemoveFromGroup(group, member string) bool {
	n.applyRemoveFromGroup(group, member, source{local: true})
	for _, c := range n.snapshotPeerClients() {
		rpc.Call2[string, string, bool](c, "removeFromGroup", group, member)
	}
	return true
}

// AddGroupCallback registers fn for group, then immediately replays the
// group's current membership to fn with added=true, so a subscriber
// always sees a consistent snapshot regardless of when it joined.
func (n *Node) AddGroupCallback(group string, fn GroupCallback) {
	n.mu.Lock()
	n.callbacks[group] = append(n.callbacks[group], fn)
	var members []string
	for m, count := range n.groups[group] {
		if count > 0 {
			members = append(members, m)
		}
	}
	n.mu.Unlock()

	for _, m := range members {
		fn(m, true)
	}
}

// RemoveGroupCallback drops every subscriber for group.
func (n *Node) RemoveGroupCallback(group string) {
	n.mu.Lock()
	delete(n.callbacks, group)
	n.mu.Unlock()
}

// GroupMembers returns a snapshot of group's member -> refcount map.
func (n *Node) GroupMembers(group string) map[string]uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]uint64, len(n.groups[group]))
	for m, c := range n.groups[group] {
		out[m] = c
	}
	return out
}

func (n *Node) applyAddToGroup(group, member string, src source) {
	n.mu.Lock()
	if n.groups[group] == nil {
		n.groups[group] = make(map[string]uint64)
	}
	wasAbsent := n.groups[group][member] == 0
	n.groups[group][member]++

	if n.provenance[group] == nil {
		n.provenance[group] = make(map[string]map[source]uint64)
	}
	if n.provenance[group][member] == nil {
		n.provenance[group][member] = make(map[source]uint64)
	}
	n.provenance[group][member][src]++

	var cbs []GroupCallback
	if wasAbsent {
		cbs = append(cbs, n.callbacks[group]...)
	}
	n.mu.Unlock()

	for _, cb := range cbs {
		cb(member, true)
	}
}

func (n *Node) applyRemoveFromGroup(group, member string, src source) {
	n.mu.Lock()
	members := n.groups[group]
	count := members[member]
	if count == 0 {
		n.mu.Unlock()
		n.log.Debug("peer: removeFromGroup no-op, absent", "group", group, "member", member)
		return
	}

	var cbs []GroupCallback
	if count <= 1 {
		delete(members, member)
		if len(members) == 0 {
			delete(n.groups, group)
		}
		if n.provenance[group] != nil {
			delete(n.provenance[group], member)
			if len(n.provenance[group]) == 0 {
				delete(n.provenance, group)
			}
		}
		cbs = append(cbs, n.callbacks[group]...)
	} else {
		members[member] = count - 1
		if srcCounts := n.provenance[group][member]; srcCounts != nil && srcCounts[src] > 0 {
			srcCounts[src]--
			if srcCounts[src] == 0 {
				delete(srcCounts, src)
			}
		}
	}
	n.mu.Unlock()

	for _, cb := range cbs {
		cb(member, false)
	}
}

// handlePeerDisconnect unwinds exactly what addr contributed to every
// group: each recorded refcount tick attributed to addr is replayed as
// an individual removal, through the same path a real removeFromGroup
// would take, so the 0-transition and callback-firing logic never
// diverges between the two call sites.
func (n *Node) handlePeerDisconnect(addr Addr) {
	n.mu.Lock()
	delete(n.peers, addr)
	for id, a := range n.connPeer {
		if a == addr {
			delete(n.connPeer, id)
		}
	}

	type tick struct {
		group, member string
		count         uint64
	}
	var ticks []tick
	src := source{peer: addr}
	for g, members := range n.provenance {
		for m, srcCounts := range members {
			if c := srcCounts[src]; c > 0 {
				ticks = append(ticks, tick{g, m, c})
			}
		}
	}
	n.mu.Unlock()

	for _, t := range ticks {
		for i := uint64(0); i < t.count; i++ {
			n.applyRemoveFromGroup(t.group, t.member, src)
		}
	}
}
