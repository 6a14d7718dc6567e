package session

import (
	"sync"
	"time"
)

// State is a node in the MQTT-SN session state machine.
type State byte

const (
	StateActive       State = iota // connected, peer known, full duplex
	StateDisconnected              // clean DISCONNECT, peer retained for resume
	StateAsleep                    // DISCONNECT(duration>0), buffering publishes
	StateAwake                     // PINGREQ received while asleep, draining buffer
	StateLost                      // keep-alive or sleep-timeout expiry, terminal until CONNECT
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateAsleep:
		return "ASLEEP"
	case StateAwake:
		return "AWAKE"
	case StateLost:
		return "LOST"
	default:
		return "UNKNOWN"
	}
}

// keepAliveFactor is applied to the negotiated keep-alive duration to get
// the deadline after which a silent peer is declared LOST.
const keepAliveFactor = 1.5

// WillMessage holds the will topic/payload a session publishes on LOST.
type WillMessage struct {
	Topic  string
	Data   []byte
	QoS    int8
	Retain bool
}

// PendingMessage is an outbound QoS 1/2 PUBLISH awaiting acknowledgment.
// The timing wheel drives retransmission; the session only tracks the
// message id and payload needed to resend it.
type PendingMessage struct {
	MsgID   uint16
	TopicID uint16
	Data    []byte
	QoS     int8
	Retain  bool
}

// Session is the persistent per-ClientId record the protocol keys all
// activity on. Exactly one Session exists per ClientId at a time.
type Session struct {
	mu sync.RWMutex

	ClientID     string
	Peer         string // last known UDP address, format "host:port"
	State        State
	CleanSession bool

	KeepAliveDuration time.Duration
	keepAliveDeadline time.Time

	SleepDuration time.Duration
	sleepDeadline time.Time

	Will *WillMessage

	CreatedAt      time.Time
	LastActivityAt time.Time
	DisconnectedAt time.Time

	// AsleepBuffer holds raw PUBLISH frames queued while State==StateAsleep,
	// drained in FIFO order on the ASLEEP->AWAKE transition.
	AsleepBuffer       [][]byte
	AsleepBufferMax    int
	asleepBufferQoSGEQ1 bool // true once a QoS>0 frame has been queued; overflow then rejects instead of dropping oldest

	PendingPublish map[uint16]*PendingMessage // outbound QoS1/2, keyed by msg_id
	PendingPubrel  map[uint16]struct{}        // inbound QoS2 awaiting PUBREL, keyed by msg_id

	nextMsgID uint16
}

// New creates a Session for clientID in StateActive.
func New(clientID, peer string, cleanSession bool, keepAlive time.Duration) *Session {
	now := time.Now()
	s := &Session{
		ClientID:          clientID,
		Peer:              peer,
		State:             StateActive,
		CleanSession:      cleanSession,
		KeepAliveDuration: keepAlive,
		CreatedAt:         now,
		LastActivityAt:    now,
		AsleepBufferMax:   256,
		PendingPublish:    make(map[uint16]*PendingMessage),
		PendingPubrel:     make(map[uint16]struct{}),
		nextMsgID:         1,
	}
	s.armKeepAlive(now)
	return s
}

func (s *Session) armKeepAlive(from time.Time) {
	if s.KeepAliveDuration > 0 {
		s.keepAliveDeadline = from.Add(time.Duration(float64(s.KeepAliveDuration) * keepAliveFactor))
	}
}

// Touch records activity from the peer, resetting the keep-alive deadline.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.LastActivityAt = now
	s.armKeepAlive(now)
}

// IsKeepAliveExpired reports whether the keep-alive deadline has passed.
func (s *Session) IsKeepAliveExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.KeepAliveDuration == 0 || s.keepAliveDeadline.IsZero() {
		return false
	}
	return time.Now().After(s.keepAliveDeadline)
}

// Rebind updates the session's peer address, used on address migration
// (a CONNECT for an existing ClientId arriving from a new source address).
func (s *Session) Rebind(peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Peer = peer
}

// GetPeer returns the session's current peer address.
func (s *Session) GetPeer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Peer
}

// GetState returns the current state.
func (s *Session) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State
}

// SetActive transitions to ACTIVE (CONNECT from DISCONNECTED/ASLEEP/LOST).
func (s *Session) SetActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = StateActive
	now := time.Now()
	s.LastActivityAt = now
	s.armKeepAlive(now)
}

// SetDisconnected transitions to DISCONNECTED (DISCONNECT with no duration).
func (s *Session) SetDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = StateDisconnected
	s.DisconnectedAt = time.Now()
}

// SetAsleep transitions to ASLEEP and arms the sleep-timeout deadline.
func (s *Session) SetAsleep(duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = StateAsleep
	s.SleepDuration = duration
	s.DisconnectedAt = time.Now()
	s.sleepDeadline = s.DisconnectedAt.Add(duration)
}

// SetAwake transitions ASLEEP->AWAKE on PINGREQ arrival.
func (s *Session) SetAwake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = StateAwake
}

// IsSleepExpired reports whether the ASLEEP sleep-timeout has passed.
func (s *Session) IsSleepExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.State != StateAsleep || s.sleepDeadline.IsZero() {
		return false
	}
	return time.Now().After(s.sleepDeadline)
}

// SetLost transitions to LOST. Callers are responsible for cancelling
// in-flight wheel entries and publishing the will message.
func (s *Session) SetLost() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = StateLost
}

// SetWill sets the session's will message.
func (s *Session) SetWill(will *WillMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Will = will
}

// GetWill returns the session's will message, if any.
func (s *Session) GetWill() *WillMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Will
}

// ClearWill removes the session's will message.
func (s *Session) ClearWill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Will = nil
}

// EnqueueAsleep appends a raw PUBLISH frame to the asleep buffer. At
// QoS 0, overflow discards the oldest entry; at QoS>0, overflow rejects
// the new entry and returns false.
func (s *Session) EnqueueAsleep(frame []byte, qos int8) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.AsleepBuffer) >= s.AsleepBufferMax {
		if qos > 0 {
			return false
		}
		s.AsleepBuffer = s.AsleepBuffer[1:]
	}
	s.AsleepBuffer = append(s.AsleepBuffer, frame)
	if qos > 0 {
		s.asleepBufferQoSGEQ1 = true
	}
	return true
}

// DrainAsleep removes and returns every buffered frame in FIFO order.
func (s *Session) DrainAsleep() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames := s.AsleepBuffer
	s.AsleepBuffer = nil
	s.asleepBufferQoSGEQ1 = false
	return frames
}

// AsleepBufferLen reports the number of frames currently buffered.
func (s *Session) AsleepBufferLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.AsleepBuffer)
}

// NextMsgID returns the next message id not currently awaiting
// acknowledgment, wrapping from 0xFFFF back to 1.
func (s *Session) NextMsgID() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		id := s.nextMsgID
		s.nextMsgID++
		if s.nextMsgID == 0 {
			s.nextMsgID = 1
		}
		if _, ok := s.PendingPublish[id]; !ok {
			if _, ok := s.PendingPubrel[id]; !ok {
				return id
			}
		}
	}
}

// AddPendingPublish records an outbound QoS1/2 message awaiting ack.
func (s *Session) AddPendingPublish(msg *PendingMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PendingPublish[msg.MsgID] = msg
}

// RemovePendingPublish clears a message on ack receipt.
func (s *Session) RemovePendingPublish(msgID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.PendingPublish, msgID)
}

// GetPendingPublish looks up an outbound message awaiting ack.
func (s *Session) GetPendingPublish(msgID uint16) (*PendingMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.PendingPublish[msgID]
	return msg, ok
}

// AllPendingPublish returns a snapshot of every message still awaiting ack.
func (s *Session) AllPendingPublish() []*PendingMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*PendingMessage, 0, len(s.PendingPublish))
	for _, msg := range s.PendingPublish {
		out = append(out, msg)
	}
	return out
}

// AddPendingPubrel marks msgID as an inbound QoS2 delivery awaiting PUBREL.
func (s *Session) AddPendingPubrel(msgID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PendingPubrel[msgID] = struct{}{}
}

// RemovePendingPubrel clears the PUBREL marker on PUBCOMP.
func (s *Session) RemovePendingPubrel(msgID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.PendingPubrel, msgID)
}

// HasPendingPubrel reports whether msgID is awaiting PUBREL.
func (s *Session) HasPendingPubrel(msgID uint16) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.PendingPubrel[msgID]
	return ok
}

// Clear discards all in-flight and buffered state, used on clean_session
// destruction. ClientID, Peer and CreatedAt survive.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PendingPublish = make(map[uint16]*PendingMessage)
	s.PendingPubrel = make(map[uint16]struct{})
	s.AsleepBuffer = nil
	s.asleepBufferQoSGEQ1 = false
	s.Will = nil
}

// ClearInFlight discards only in-flight QoS1/2 bookkeeping, used on a LOST
// transition for a clean_session=false session: the wheel entries keying
// PendingPublish are gone, but AsleepBuffer must survive so a later CONNECT
// still resumes with every buffered publish intact.
func (s *Session) ClearInFlight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PendingPublish = make(map[uint16]*PendingMessage)
	s.PendingPubrel = make(map[uint16]struct{})
}
