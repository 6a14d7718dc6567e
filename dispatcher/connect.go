package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/axmq/mqttsn/codec/message"
	"github.com/axmq/mqttsn/session"
)

// pendingWillEntry holds a will topic received via WILLTOPIC while the
// broker awaits the matching WILLMSG during CONNECT processing.
type pendingWillEntry struct {
	topic string
	flags message.Flags
}

// pendingWillStore tracks the in-progress WILLTOPICREQ/WILLTOPIC/
// WILLMSGREQ/WILLMSG handshake per ClientId. It is transient dispatch
// state, not part of the persisted Session record.
type pendingWillStore struct {
	mu      sync.Mutex
	entries map[string]pendingWillEntry
}

func newPendingWillStore() *pendingWillStore {
	return &pendingWillStore{entries: make(map[string]pendingWillEntry)}
}

func (p *pendingWillStore) put(clientID string, e pendingWillEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[clientID] = e
}

func (p *pendingWillStore) take(clientID string) (pendingWillEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[clientID]
	delete(p.entries, clientID)
	return e, ok
}

// handleConnect implements CONNECT processing: authentication, bind/resume/
// reject, and the optional WILLTOPICREQ detour when the WILL flag is set.
func (d *Dispatcher) handleConnect(peer string, m message.Connect) {
	clientID := string(m.ClientID)

	if d.auth != nil && !d.auth.Authenticate(clientID, peer) {
		if d.metrics != nil {
			d.metrics.ConnectsRejected.Inc()
		}
		_ = d.sender.Send(peer, message.Connack{ReturnCode: message.NotSupported})
		return
	}

	keepAlive := time.Duration(m.Duration) * time.Second
	s, result, err := d.sessions.Bind(context.Background(), clientID, peer, m.Flags.CleanSession(), keepAlive)
	if err != nil {
		d.log.Error("bind failed", "client_id", clientID, "error", err)
		_ = d.sender.Send(peer, message.Connack{ReturnCode: message.Congestion})
		return
	}

	if d.metrics != nil {
		d.metrics.ConnectsTotal.Inc()
		d.metrics.ActiveSessions.Set(float64(d.sessions.ActiveCount()))
	}

	if result == session.BindCreated {
		s.AsleepBufferMax = d.config.AsleepBufferLimit
	}

	if m.Flags.Will() {
		_ = d.sender.Send(peer, message.WillTopicReq{})
		return
	}

	_ = d.sender.Send(peer, message.Connack{ReturnCode: message.Accepted})
}

// handleWillTopic stores the will's topic and flags, then requests the
// payload with WILLMSGREQ.
func (d *Dispatcher) handleWillTopic(s *session.Session, peer string, m message.WillTopic) {
	d.pending.put(s.ClientID, pendingWillEntry{topic: string(m.Topic), flags: m.Flags})
	_ = d.sender.Send(peer, message.WillMsgReq{})
}

// handleWillMsg completes the CONNECT-time will handshake and finally
// admits the connection with CONNACK.
func (d *Dispatcher) handleWillMsg(s *session.Session, peer string, m message.WillMsg) {
	if entry, ok := d.pending.take(s.ClientID); ok {
		s.SetWill(&session.WillMessage{
			Topic:  entry.topic,
			Data:   m.Msg,
			QoS:    entry.flags.QoS(),
			Retain: entry.flags.Retain(),
		})
	}
	_ = d.sender.Send(peer, message.Connack{ReturnCode: message.Accepted})
}

// handleWillTopicUpd updates (or, with an empty topic, clears) an
// already-connected session's will without a full reconnect.
func (d *Dispatcher) handleWillTopicUpd(s *session.Session, peer string, m message.WillTopicUpd) {
	if len(m.Topic) == 0 {
		s.ClearWill()
		_ = d.sender.Send(peer, message.WillTopicResp{ReturnCode: message.Accepted})
		return
	}

	will := s.GetWill()
	if will == nil {
		will = &session.WillMessage{}
	}
	will.Topic = string(m.Topic)
	will.QoS = m.Flags.QoS()
	will.Retain = m.Flags.Retain()
	s.SetWill(will)
	_ = d.sender.Send(peer, message.WillTopicResp{ReturnCode: message.Accepted})
}

// handleWillMsgUpd updates an already-connected session's will payload.
func (d *Dispatcher) handleWillMsgUpd(s *session.Session, peer string, m message.WillMsgUpd) {
	will := s.GetWill()
	if will == nil {
		will = &session.WillMessage{}
	}
	will.Data = m.Msg
	s.SetWill(will)
	_ = d.sender.Send(peer, message.WillMsgResp{ReturnCode: message.Accepted})
}

// PublishWill implements session.WillPublisher: the session Manager calls
// this on a LOST transition for a session with a will set. It is routed
// through the same Subscription Index fanout as any other publish.
func (d *Dispatcher) PublishWill(ctx context.Context, will *session.WillMessage, clientID string) error {
	d.fanout(will.Topic, will.Data, will.QoS, will.Retain)
	return nil
}

// handleDisconnect implements clean disconnection and the DISCONNECT(duration
// >0) sleep request.
func (d *Dispatcher) handleDisconnect(s *session.Session, peer string, m message.Disconnect) {
	ctx := context.Background()

	if m.HasDuration && m.Duration > 0 {
		if err := d.sessions.TransitionAsleep(ctx, s.ClientID, time.Duration(m.Duration)*time.Second); err != nil {
			d.log.Warn("sleep transition rejected", "client_id", s.ClientID, "error", err)
			return
		}
		_ = d.sender.Send(peer, message.Disconnect{})
		return
	}

	clientID := s.ClientID
	cleanSession := s.CleanSession
	if err := d.sessions.Unbind(ctx, clientID); err != nil {
		d.log.Warn("unbind failed", "client_id", clientID, "error", err)
	}
	if cleanSession {
		d.topics.DropSession(clientID)
		d.router.UnsubscribeAll(clientID)
	}
	_ = d.sender.Send(peer, message.Disconnect{})
}

// handlePingReq implements both the plain keep-alive heartbeat (empty
// ClientId) and the sleeping client's wake-and-drain request (ClientId set).
func (d *Dispatcher) handlePingReq(peer string, m message.PingReq) {
	if len(m.ClientID) == 0 {
		s, ok := d.sessions.LookupByPeer(peer)
		if !ok {
			return
		}
		s.Touch()
		_ = d.sender.Send(peer, message.PingResp{})
		return
	}

	clientID := string(m.ClientID)
	s, ok := d.sessions.LookupByClientID(clientID)
	if !ok {
		return
	}

	if s.GetState() != session.StateAsleep {
		s.Touch()
		_ = d.sender.Send(peer, message.PingResp{})
		return
	}

	ctx := context.Background()
	if err := d.sessions.Transition(ctx, clientID, session.StateAwake); err != nil {
		d.log.Warn("awake transition rejected", "client_id", clientID, "error", err)
		return
	}

	for _, frame := range s.DrainAsleep() {
		msg, err := message.Decode(frame)
		if err != nil {
			continue
		}
		pub, ok := msg.(message.Publish)
		if !ok {
			continue
		}
		if _, err := d.qos.Publish(s, peer, pub.TopicID, pub.Data, pub.Flags.QoS(), pub.Flags.Retain()); err != nil {
			d.log.Warn("asleep-buffer drain publish failed", "client_id", clientID, "error", err)
		}
	}

	_ = d.sessions.Transition(ctx, clientID, session.StateAsleep)
	_ = d.sender.Send(peer, message.PingResp{})
}

// handleSearchGw answers gateway discovery for the single gateway this
// dispatcher represents; multi-gateway forwarding is out of scope.
func (d *Dispatcher) handleSearchGw(peer string, m message.SearchGw) {
	_ = d.sender.Send(peer, message.GwInfo{GwID: d.config.GatewayID})
}
