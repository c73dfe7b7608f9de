// Package registry holds the relay's directory of connected peers.
package registry

import (
	"sort"
	"sync"
	"time"
)

// Conn is the outbound side of a peer's transport connection.
type Conn interface {
	ID() string
	Send(frame []byte) error
	Close() error
}

// Peer is a point-in-time view of one registry entry.
type Peer struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata"`
	LastSeen time.Time      `json:"lastSeen"`
	Conn     Conn           `json:"-"`
}

type entry struct {
	conn     Conn
	metadata map[string]any
	lastSeen time.Time
	seq      uint64
}

// Registry maps peer ids to their connection, metadata and last liveness
// signal. It is safe for concurrent use. Replacing an entry never closes the
// previous connection; that is left to the caller.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*entry
	seq   uint64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{peers: make(map[string]*entry)}
}

// Upsert creates or replaces the entry for id and returns the connection it
// replaced, if that was a different connection.
func (r *Registry) Upsert(id string, conn Conn, metadata map[string]any, now time.Time) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	var previous Conn
	e, ok := r.peers[id]
	if ok {
		if e.conn != conn {
			previous = e.conn
		}
	} else {
		r.seq++
		e = &entry{seq: r.seq}
		r.peers[id] = e
	}
	e.conn = conn
	e.metadata = cloneMetadata(metadata)
	e.lastSeen = now
	return previous
}

// Touch refreshes the liveness of id. It reports whether id was registered.
func (r *Registry) Touch(id string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.peers[id]
	if !ok {
		return false
	}
	e.lastSeen = now
	return true
}

// Remove deletes id and returns its connection if it was registered.
func (r *Registry) Remove(id string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.peers[id]
	if !ok {
		return nil, false
	}
	delete(r.peers, id)
	return e.conn, true
}

// RemoveIf deletes id only while it is still bound to conn.
func (r *Registry) RemoveIf(id string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.peers[id]
	if !ok || e.conn != conn {
		return false
	}
	delete(r.peers, id)
	return true
}

// RemoveIfStale deletes id only while it is still bound to conn and was last
// seen before cutoff. A Touch that lands after a scan keeps the peer.
func (r *Registry) RemoveIfStale(id string, conn Conn, cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.peers[id]
	if !ok || e.conn != conn || !e.lastSeen.Before(cutoff) {
		return false
	}
	delete(r.peers, id)
	return true
}

// Lookup returns the connection bound to id.
func (r *Registry) Lookup(id string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.peers[id]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Snapshot returns every peer in the order it was first registered.
func (r *Registry) Snapshot() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type ordered struct {
		peer Peer
		seq  uint64
	}
	all := make([]ordered, 0, len(r.peers))
	for id, e := range r.peers {
		all = append(all, ordered{
			peer: Peer{ID: id, Metadata: cloneMetadata(e.metadata), LastSeen: e.lastSeen, Conn: e.conn},
			seq:  e.seq,
		})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	peers := make([]Peer, len(all))
	for i, o := range all {
		peers[i] = o.peer
	}
	return peers
}

// IDs returns the registered peer ids in registration order.
func (r *Registry) IDs() []string {
	snapshot := r.Snapshot()
	ids := make([]string, len(snapshot))
	for i, p := range snapshot {
		ids[i] = p.ID
	}
	return ids
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
