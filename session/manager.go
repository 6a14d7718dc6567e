package session

import (
	"context"
	"sync"
	"time"
)

// BindResult reports the outcome of a Bind call.
type BindResult byte

const (
	BindCreated BindResult = iota
	BindResumed
	BindRejected
)

// WillPublisher publishes a session's will message on LOST.
type WillPublisher interface {
	PublishWill(ctx context.Context, will *WillMessage, clientID string) error
}

// LostObserver is notified every time a session transitions to LOST,
// regardless of which path drove the transition (keep-alive/sleep-timeout
// expiry from the sweep loop, or an explicit Transition call). It gives the
// dispatcher a single place to cancel in-flight wheel entries and, for
// clean_session sessions, drop topic-registry/subscription state.
type LostObserver interface {
	OnSessionLost(clientID, peer string, cleanSession bool)
}

// ManagerConfig configures the session Manager.
type ManagerConfig struct {
	Store         Store
	SweepInterval time.Duration
	WillPublisher WillPublisher
	LostObserver  LostObserver
}

// Manager is the Session Store of §4.2: the authoritative in-memory index
// over ClientId and peer address, backed by a Store for persistence.
type Manager struct {
	mu            sync.RWMutex
	store         Store
	byClientID    map[string]*Session
	byPeer        map[string]*Session
	willPublisher WillPublisher
	lostObserver  LostObserver
	sweepTicker   *time.Ticker
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

func NewManager(config ManagerConfig) *Manager {
	if config.SweepInterval == 0 {
		config.SweepInterval = 5 * time.Second
	}

	m := &Manager{
		store:         config.Store,
		byClientID:    make(map[string]*Session),
		byPeer:        make(map[string]*Session),
		willPublisher: config.WillPublisher,
		lostObserver:  config.LostObserver,
		sweepTicker:   time.NewTicker(config.SweepInterval),
		stopCh:        make(chan struct{}),
	}

	m.wg.Add(1)
	go m.sweepLoop()

	return m
}

// Bind implements bind(id, peer, params): creates a new session, or rebinds
// an existing one to peer. On clean_session=false the existing session is
// resumed with its state intact (BindResumed); on clean_session=true its
// state is wiped before the rebind and BindCreated is reported. BindRejected
// is returned only together with a store error.
func (m *Manager) Bind(ctx context.Context, clientID, peer string, cleanSession bool, keepAlive time.Duration) (*Session, BindResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byClientID[clientID]
	if !ok {
		loaded, err := m.store.Load(ctx, clientID)
		if err != nil && err != ErrSessionNotFound {
			return nil, BindRejected, err
		}
		if loaded != nil {
			existing = loaded
			ok = true
		}
	}

	if ok {
		if oldPeer := existing.GetPeer(); oldPeer != peer && m.byPeer[oldPeer] == existing {
			delete(m.byPeer, oldPeer)
		}
		if cleanSession {
			existing.Clear()
			existing.CleanSession = true
			existing.KeepAliveDuration = keepAlive
			existing.Rebind(peer)
			existing.SetActive()
		} else {
			existing.Rebind(peer)
			existing.KeepAliveDuration = keepAlive
			existing.SetActive()
		}

		m.reindex(existing)
		if err := m.store.Save(ctx, existing); err != nil {
			return nil, BindRejected, err
		}

		result := BindResumed
		if cleanSession {
			result = BindCreated
		}
		return existing, result, nil
	}

	session := New(clientID, peer, cleanSession, keepAlive)
	m.reindex(session)

	if err := m.store.Save(ctx, session); err != nil {
		delete(m.byClientID, clientID)
		delete(m.byPeer, peer)
		return nil, BindRejected, err
	}

	return session, BindCreated, nil
}

// SetWillPublisher sets the manager's will publisher, used when the
// collaborator implementing it (the dispatcher) is constructed after the
// manager itself.
func (m *Manager) SetWillPublisher(wp WillPublisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.willPublisher = wp
}

// SetLostObserver sets the manager's LOST observer, used when the
// collaborator implementing it (the dispatcher) is constructed after the
// manager itself.
func (m *Manager) SetLostObserver(o LostObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lostObserver = o
}

// reindex must be called with m.mu held.
func (m *Manager) reindex(s *Session) {
	m.byClientID[s.ClientID] = s
	m.byPeer[s.GetPeer()] = s
}

// LookupByPeer implements lookup_by_peer(peer) -> Session?.
func (m *Manager) LookupByPeer(peer string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byPeer[peer]
	return s, ok
}

// LookupByClientID implements lookup_by_client_id(id) -> Session?.
func (m *Manager) LookupByClientID(clientID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byClientID[clientID]
	return s, ok
}

// Unbind implements unbind(id): transitions to DISCONNECTED, and destroys
// the session outright when clean_session is set.
func (m *Manager) Unbind(ctx context.Context, clientID string) error {
	m.mu.Lock()
	s, ok := m.byClientID[clientID]
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.SetDisconnected()

	if s.CleanSession {
		return m.destroy(ctx, s)
	}
	return m.store.Save(ctx, s)
}

// validTransitions enforces the §4.2 state transition table.
var validTransitions = map[State]map[State]bool{
	StateActive:       {StateDisconnected: true, StateAsleep: true, StateLost: true},
	StateAsleep:       {StateAwake: true, StateActive: true, StateLost: true},
	StateAwake:        {StateAsleep: true, StateActive: true, StateLost: true},
	StateDisconnected: {StateActive: true},
	StateLost:         {StateActive: true},
}

// Transition implements transition(id, new_state), rejecting any move not
// present in the table.
func (m *Manager) Transition(ctx context.Context, clientID string, newState State) error {
	m.mu.RLock()
	s, ok := m.byClientID[clientID]
	m.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	from := s.GetState()
	if !validTransitions[from][newState] {
		return ErrInvalidTransition
	}

	switch newState {
	case StateLost:
		return m.markLost(ctx, s)
	case StateDisconnected:
		s.SetDisconnected()
	case StateAsleep:
		s.SetAsleep(s.SleepDuration)
	case StateAwake:
		s.SetAwake()
	case StateActive:
		s.SetActive()
	}

	return m.store.Save(ctx, s)
}

// TransitionAsleep moves clientID's session to ASLEEP for duration, arming
// the sleep-timeout deadline before persisting. Separate from Transition
// because duration is a parameter of the DISCONNECT that triggers it, not a
// property already carried by the session.
func (m *Manager) TransitionAsleep(ctx context.Context, clientID string, duration time.Duration) error {
	m.mu.RLock()
	s, ok := m.byClientID[clientID]
	m.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	if !validTransitions[s.GetState()][StateAsleep] {
		return ErrInvalidTransition
	}

	s.SetAsleep(duration)
	return m.store.Save(ctx, s)
}

// markLost transitions s to LOST and publishes its will if set. A
// clean_session session is then destroyed; any other session has its
// in-flight QoS state cleared while its asleep buffer and will are kept.
func (m *Manager) markLost(ctx context.Context, s *Session) error {
	s.SetLost()

	if will := s.GetWill(); will != nil && m.willPublisher != nil {
		_ = m.willPublisher.PublishWill(ctx, will, s.ClientID)
	}

	if m.lostObserver != nil {
		m.lostObserver.OnSessionLost(s.ClientID, s.GetPeer(), s.CleanSession)
	}

	if s.CleanSession {
		return m.destroy(ctx, s)
	}

	s.ClearInFlight()
	return m.store.Save(ctx, s)
}

// destroy removes s from every index and from the store.
func (m *Manager) destroy(ctx context.Context, s *Session) error {
	m.mu.Lock()
	delete(m.byClientID, s.ClientID)
	delete(m.byPeer, s.GetPeer())
	m.mu.Unlock()

	return m.store.Delete(ctx, s.ClientID)
}

// sweepLoop periodically evicts sessions past their keep-alive or
// sleep-timeout deadline.
func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.sweepTicker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) sweep() {
	ctx := context.Background()

	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.byClientID))
	for _, s := range m.byClientID {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		switch s.GetState() {
		case StateActive, StateAwake:
			if s.IsKeepAliveExpired() {
				_ = m.markLost(ctx, s)
			}
		case StateAsleep:
			if s.IsSleepExpired() {
				_ = m.markLost(ctx, s)
			}
		}
	}
}

// Close stops the sweep loop and closes the underlying Store.
func (m *Manager) Close() error {
	close(m.stopCh)
	m.sweepTicker.Stop()
	m.wg.Wait()
	return m.store.Close()
}

// ActiveCount returns the number of sessions currently indexed in memory.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byClientID)
}

// Snapshot returns every session currently indexed in memory, for callers
// that need to act on the whole population (e.g. a graceful shutdown
// notifying each active peer) without holding the manager's lock while
// doing so.
func (m *Manager) Snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.byClientID))
	for _, s := range m.byClientID {
		out = append(out, s)
	}
	return out
}
