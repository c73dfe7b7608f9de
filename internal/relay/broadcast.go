// Package relay implements message routing over the peer registry: the
// router that interprets inbound frames, fan-out delivery and the reaper
// that evicts silent peers.
package relay

import (
	"log/slog"

	"github.com/jsamuel1/agi-diy/internal/message"
	"github.com/jsamuel1/agi-diy/internal/registry"
)

// Delivery is the outcome of sending one frame to one peer.
type Delivery struct {
	PeerID string
	Err    error
}

// Delivered reports whether the send succeeded.
func (d Delivery) Delivered() bool {
	return d.Err == nil
}

// Broadcaster fans frames out to registered peers.
type Broadcaster struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// NewBroadcaster creates a broadcaster over reg.
func NewBroadcaster(reg *registry.Registry, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{registry: reg, logger: logger}
}

// Broadcast sends frame to every registered peer except exclude and returns
// one Delivery per attempted recipient. Peers whose send failed are evicted
// and their connections closed once every recipient has been tried.
func (b *Broadcaster) Broadcast(frame []byte, exclude string) []Delivery {
	peers := b.registry.Snapshot()
	results := make([]Delivery, 0, len(peers))
	type failure struct {
		peer registry.Peer
		err  error
	}
	var failed []failure

	for _, p := range peers {
		if p.ID == exclude {
			continue
		}
		err := p.Conn.Send(frame)
		results = append(results, Delivery{PeerID: p.ID, Err: err})
		if err != nil {
			failed = append(failed, failure{peer: p, err: err})
		}
	}

	for _, f := range failed {
		if !b.registry.RemoveIf(f.peer.ID, f.peer.Conn) {
			continue
		}
		_ = f.peer.Conn.Close()
		b.logger.Warn("evicted peer after failed send",
			"peer_id", f.peer.ID,
			"conn_id", f.peer.Conn.ID(),
			"error", f.err,
		)
	}

	return results
}

// Announce encodes out and broadcasts it to everyone except exclude.
func (b *Broadcaster) Announce(out message.Outbound, exclude string) []Delivery {
	frame, err := out.Encode()
	if err != nil {
		b.logger.Error("failed to encode announcement", "type", out.Type, "error", err)
		return nil
	}
	return b.Broadcast(frame, exclude)
}
