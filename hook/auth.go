package hook

import "sync"

// AllowlistAuthHook admits only provisioned ClientIds, as a gateway serving
// a fixed set of field devices would. With allowUnknown set, every ClientId
// is admitted, provisioned or not.
type AllowlistAuthHook struct {
	*Base
	mu           sync.RWMutex
	clientIDs    map[string]struct{}
	allowUnknown bool
}

// NewAllowlistAuthHook creates an auth hook seeded with no clients; callers
// add provisioned ClientIds via AddClient.
func NewAllowlistAuthHook(allowUnknown bool) *AllowlistAuthHook {
	return &AllowlistAuthHook{
		Base:         &Base{id: "allowlist-auth"},
		clientIDs:    make(map[string]struct{}),
		allowUnknown: allowUnknown,
	}
}

func (h *AllowlistAuthHook) ID() string { return h.id }

func (h *AllowlistAuthHook) Provides(event Event) bool {
	return event == OnConnectAuthenticate
}

// AddClient provisions clientID for admission.
func (h *AllowlistAuthHook) AddClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clientIDs[clientID] = struct{}{}
}

// RemoveClient de-provisions clientID.
func (h *AllowlistAuthHook) RemoveClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clientIDs, clientID)
}

// HasClient reports whether clientID is currently provisioned.
func (h *AllowlistAuthHook) HasClient(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clientIDs[clientID]
	return ok
}

// Authenticate admits clientID if it is provisioned, or if allowUnknown is
// set and it isn't.
func (h *AllowlistAuthHook) Authenticate(clientID, peer string) bool {
	h.mu.RLock()
	_, known := h.clientIDs[clientID]
	h.mu.RUnlock()

	if known {
		return true
	}
	return h.allowUnknown
}
