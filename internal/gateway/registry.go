package gateway

import "sync"

// Registry is the bidirectional map between live peers and authenticated
// user identities. It owns no business logic; both directions are always
// updated inside the same critical section so a half-binding can never
// be observed.
type Registry struct {
	mu       sync.RWMutex
	peerUser map[*Peer]int64
	userPeer map[int64]*Peer
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		peerUser: make(map[*Peer]int64),
		userPeer: make(map[int64]*Peer),
	}
}

// Bind associates a peer with a user. If the user already has a
// different bound peer, that binding is removed in both directions and
// the superseded peer is returned so the caller can close it.
func (r *Registry) Bind(p *Peer, userID int64) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.userPeer[userID]
	if prev == p {
		return nil
	}
	if prev != nil {
		delete(r.peerUser, prev)
	}
	r.peerUser[p] = userID
	r.userPeer[userID] = p
	return prev
}

// Resolve returns the user bound to the peer, if any.
func (r *Registry) Resolve(p *Peer) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.peerUser[p]
	return userID, ok
}

// Peer returns the peer bound to the user, if any.
func (r *Registry) Peer(userID int64) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.userPeer[userID]
	return p, ok
}

// IsBound reports whether the user currently has a bound peer.
func (r *Registry) IsBound(userID int64) bool {
	_, ok := r.Peer(userID)
	return ok
}

// Unbind removes the peer's binding in both directions. Idempotent: a
// peer that is not bound (never authenticated, already unbound, or
// superseded by a newer binding) is a no-op and reports false.
func (r *Registry) Unbind(p *Peer) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.peerUser[p]
	if !ok {
		return 0, false
	}
	delete(r.peerUser, p)
	if r.userPeer[userID] == p {
		delete(r.userPeer, userID)
	}
	return userID, true
}

// Peers returns a snapshot of every bound peer.
func (r *Registry) Peers() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]*Peer, 0, len(r.peerUser))
	for p := range r.peerUser {
		peers = append(peers, p)
	}
	return peers
}
