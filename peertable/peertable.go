// Package peertable maintains the live set of peers discovered on the LAN.
package peertable

import (
	"sync"
	"time"
)

// Peer is one entry in the table: a device discovered by the Discovery
// Service and available as a transfer target.
type Peer struct {
	DeviceID   string
	Alias      string
	Address    string
	Port       uint16
	LastActive int64
}

// Table is a concurrent map of device-id to Peer, guarded by a single
// table-wide mutex. No I/O or blocking call is ever made while the lock
// is held; snapshot returns owned copies so callers never iterate under
// the lock.
type Table struct {
	mu    sync.Mutex
	peers map[string]Peer
}

// New returns an empty peer table.
func New() *Table {
	return &Table{peers: make(map[string]Peer)}
}

// AddOrUpdate upserts peer by DeviceID. Last write wins on every field.
// Calling it twice with the same Peer is idempotent.
func (t *Table) AddOrUpdate(peer Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[peer.DeviceID] = peer
}

// RemoveStale evicts every entry whose LastActive is more than
// maxAgeSeconds behind now. now is read once by the caller and applied
// uniformly across the sweep.
func (t *Table) RemoveStale(now int64, maxAgeSeconds int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, peer := range t.peers {
		if now-peer.LastActive > maxAgeSeconds {
			delete(t.peers, id)
		}
	}
}

// Snapshot returns a newly allocated copy of every peer currently in the
// table. Iteration order is unspecified.
func (t *Table) Snapshot() []Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Peer, 0, len(t.peers))
	for _, peer := range t.peers {
		out = append(out, peer)
	}
	return out
}

// Lookup returns the peer with the given device id, if present.
func (t *Table) Lookup(deviceID string) (Peer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	peer, ok := t.peers[deviceID]
	return peer, ok
}

// Len reports the current number of tracked peers.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}

// Now is the table's clock source, overridable in tests.
var Now = func() int64 { return time.Now().Unix() }
