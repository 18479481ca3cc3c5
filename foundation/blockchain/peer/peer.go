// Package peer maintains the peer related information such as the set
// of known peers.
package peer

import (
	"sync"
)

// Peer represents information about a node in the gossip mesh.
type Peer struct {
	URL string // websocket URL, ws://host:port/gossip
}

// New constructs a new peer value.
func New(url string) Peer {
	return Peer{
		URL: url,
	}
}

// Match validates if the specified URL matches this peer.
func (p Peer) Match(url string) bool {
	return p.URL == url
}

// String implements the fmt.Stringer interface.
func (p Peer) String() string {
	return p.URL
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of
// known peers.
type PeerSet struct {
	mu  sync.RWMutex
	set map[Peer]struct{}
}

// NewPeerSet constructs a new peer set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[Peer]struct{}),
	}
}

// Add adds a new peer to the set. It reports whether the peer was not
// already present.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[peer]; !exists {
		ps.set[peer] = struct{}{}
		return true
	}

	return false
}

// Remove removes a peer from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer)
}

// Copy returns a list of the known peers, excluding the specified URL.
func (ps *PeerSet) Copy(url string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for peer := range ps.set {
		if !peer.Match(url) {
			peers = append(peers, peer)
		}
	}

	return peers
}
