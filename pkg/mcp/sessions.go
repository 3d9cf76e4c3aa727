package mcp

import (
	"sort"
	"sync"
)

// WatchRegistry maps canvas sessions to the MCP client sessions that touched
// them. It is populated on every tool call that opens a canvas session.
type WatchRegistry struct {
	mu       sync.RWMutex
	watchers map[string]map[string]struct{} // canvas id → client session ids
}

// NewWatchRegistry creates an empty WatchRegistry.
func NewWatchRegistry() *WatchRegistry {
	return &WatchRegistry{watchers: make(map[string]map[string]struct{})}
}

// Register records that clientID works on canvasID. Registering twice is a no-op.
func (r *WatchRegistry) Register(canvasID, clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.watchers[canvasID]
	if !ok {
		set = make(map[string]struct{})
		r.watchers[canvasID] = set
	}
	set[clientID] = struct{}{}
}

// Watchers returns the client sessions watching canvasID, sorted.
func (r *WatchRegistry) Watchers(canvasID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.watchers[canvasID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Remove deletes every registration of a client session.
// Called when the client disconnects.
func (r *WatchRegistry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for canvasID, set := range r.watchers {
		delete(set, clientID)
		if len(set) == 0 {
			delete(r.watchers, canvasID)
		}
	}
}
