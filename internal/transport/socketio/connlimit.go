package socketio

import (
	"net"
	"net/netip"
	"sync"
)

// ConnectionLimiter caps the number of concurrent remote listeners. A player
// UI opened on the host itself (loopback) is never counted. When a new remote
// listener exceeds the cap, the longest-connected remote listener is evicted
// so that the most recent device always gets control.
type ConnectionLimiter struct {
	mu        sync.Mutex
	maxRemote int
	remote    []string          // oldest first
	peers     map[string]string // clientID -> address
}

// NewConnectionLimiter creates a limiter. maxRemote <= 0 disables the cap.
func NewConnectionLimiter(maxRemote int) *ConnectionLimiter {
	return &ConnectionLimiter{
		maxRemote: maxRemote,
		peers:     make(map[string]string),
	}
}

// TryAdd registers a connection and returns the ID of a client that must be
// disconnected to make room, or "" when nobody is evicted.
func (cl *ConnectionLimiter) TryAdd(clientID, address string) (evictedID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.peers[clientID]; exists {
		return ""
	}
	cl.peers[clientID] = address

	if isLoopback(address) {
		return ""
	}
	cl.remote = append(cl.remote, clientID)

	if cl.maxRemote > 0 && len(cl.remote) > cl.maxRemote {
		evictedID = cl.remote[0]
		cl.remote = cl.remote[1:]
		delete(cl.peers, evictedID)
	}
	return evictedID
}

// Remove forgets a disconnected client.
func (cl *ConnectionLimiter) Remove(clientID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	address, exists := cl.peers[clientID]
	if !exists {
		return
	}
	delete(cl.peers, clientID)

	if isLoopback(address) {
		return
	}
	for i, id := range cl.remote {
		if id == clientID {
			cl.remote = append(cl.remote[:i], cl.remote[i+1:]...)
			break
		}
	}
}

// Count returns the number of tracked connections and how many are remote.
func (cl *ConnectionLimiter) Count() (total, remote int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.peers), len(cl.remote)
}

// isLoopback accepts a bare IP or host:port. Unparseable addresses are
// treated as remote.
func isLoopback(address string) bool {
	if host, _, err := net.SplitHostPort(address); err == nil {
		address = host
	}
	if address == "localhost" {
		return true
	}
	ip, err := netip.ParseAddr(address)
	if err != nil {
		return false
	}
	return ip.Unmap().IsLoopback()
}
