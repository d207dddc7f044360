// Package peers tracks the liveness of other nodes on the bus from the
// heartbeats they publish.
package peers

import (
	"github.com/rs/zerolog"
	"github.com/soypat/cyphal-node/canard"
	"github.com/soypat/cyphal-node/dsdl"
)

// OfflineTimeout is how long a node may stay silent before it is reported offline.
const OfflineTimeout canard.Microsecond = dsdl.HeartbeatOfflineTimeout * 1_000_000

// Peer is the last known state of a remote node.
type Peer struct {
	ID       canard.NodeID
	LastSeen canard.Microsecond
	// FirstSeen is reset when the peer restarts.
	FirstSeen canard.Microsecond
	Status    dsdl.Heartbeat
	Restarts  int
	known     bool
}

// Online reports whether the peer has been heard from within OfflineTimeout.
func (p *Peer) Online(now canard.Microsecond) bool {
	return p.known && (now < p.LastSeen || now-p.LastSeen <= OfflineTimeout)
}

// Event describes a change in a peer's state.
type Event uint8

const (
	EventNone Event = iota
	EventAppeared
	EventRestarted
	EventReturned
	EventStatusChanged
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventAppeared:
		return "appeared"
	case EventRestarted:
		return "restarted"
	case EventReturned:
		return "returned"
	case EventStatusChanged:
		return "status_changed"
	}
	return "invalid"
}

// Table holds one entry per possible node ID. Like the rest of the node, it
// is not safe for concurrent use.
type Table struct {
	peers  [canard.NODE_ID_MAX + 1]Peer
	log    zerolog.Logger
	notify func(Peer, Event)
}

// NewTable returns a table that logs peer events to log.
func NewTable(log zerolog.Logger) *Table {
	return &Table{log: log}
}

// OnEvent sets a callback run after each peer event.
func (t *Table) OnEvent(fn func(Peer, Event)) { t.notify = fn }

// ObserveHeartbeat records a heartbeat from src received at ts.
func (t *Table) ObserveHeartbeat(src canard.NodeID, hb dsdl.Heartbeat, ts canard.Microsecond) {
	if !src.IsSet() {
		return
	}
	p := &t.peers[src]
	ev := EventNone
	switch {
	case !p.known:
		ev = EventAppeared
		*p = Peer{ID: src, FirstSeen: ts, known: true}
	case hb.Uptime < p.Status.Uptime:
		ev = EventRestarted
		p.Restarts++
		p.FirstSeen = ts
	case !p.Online(ts):
		ev = EventReturned
	case hb.Health != p.Status.Health || hb.Mode != p.Status.Mode:
		ev = EventStatusChanged
	}
	p.LastSeen = ts
	p.Status = hb
	if ev == EventNone {
		return
	}
	lvl := zerolog.InfoLevel
	if ev == EventRestarted || hb.Health >= dsdl.HealthWarning {
		lvl = zerolog.WarnLevel
	}
	t.log.WithLevel(lvl).
		Uint8("peer", uint8(src)).
		Stringer("event", ev).
		Uint32("uptime", hb.Uptime).
		Stringer("health", hb.Health).
		Stringer("mode", hb.Mode).
		Msg("peer")
	if t.notify != nil {
		t.notify(*p, ev)
	}
}

// Get returns the entry for id and whether a heartbeat was ever received from it.
func (t *Table) Get(id canard.NodeID) (Peer, bool) {
	if !id.IsSet() {
		return Peer{}, false
	}
	p := t.peers[id]
	return p, p.known
}

// Online appends the IDs of peers heard from within OfflineTimeout to dst.
func (t *Table) Online(dst []canard.NodeID, now canard.Microsecond) []canard.NodeID {
	for i := range t.peers {
		if t.peers[i].Online(now) {
			dst = append(dst, canard.NodeID(i))
		}
	}
	return dst
}

// Count returns the number of online peers.
func (t *Table) Count(now canard.Microsecond) (n int) {
	for i := range t.peers {
		if t.peers[i].Online(now) {
			n++
		}
	}
	return n
}

// Forget clears the entry for id.
func (t *Table) Forget(id canard.NodeID) {
	if id.IsSet() {
		t.peers[id] = Peer{}
	}
}
