package qos

import (
	"context"
	"sync"
	"time"

	"github.com/axmq/mqttsn/codec/message"
	"github.com/axmq/mqttsn/session"
	"github.com/axmq/mqttsn/wheel"
)

// Sender delivers an encoded MQTT-SN message to a peer. The transport layer
// implements this; qos never touches the wire directly.
type Sender interface {
	Send(peer string, m message.Message) error
}

// Config holds QoS handler configuration.
type Config struct {
	MaxInflight          uint16
	RetryInitialDelay    time.Duration
	MaxRetries           int
	EnableDedup          bool
	DedupWindowSize      int
	DedupCleanupInterval time.Duration
}

// DefaultConfig returns the default retry/dedup parameters.
func DefaultConfig() *Config {
	return &Config{
		MaxInflight:          65535,
		RetryInitialDelay:    10 * time.Second,
		MaxRetries:           3,
		EnableDedup:          true,
		DedupWindowSize:      1000,
		DedupCleanupInterval: 5 * time.Minute,
	}
}

// Handler implements the broker-side QoS 1/2 handshakes. Per-message
// retransmission state lives in the timing wheel;
// Handler only tracks the short-lived dedup window that covers the race
// between a PUBCOMP being sent and the client's retransmitted PUBLISH
// arriving before it has processed that PUBCOMP.
type Handler struct {
	config *Config
	wheel  *wheel.Wheel
	sender Sender

	dedup *dedupCache

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewHandler creates a QoS handler driving retransmission through w and
// delivering frames through sender.
func NewHandler(w *wheel.Wheel, sender Sender, config *Config) *Handler {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		config: config,
		wheel:  w,
		sender: sender,
		ctx:    ctx,
		cancel: cancel,
	}

	if config.EnableDedup {
		h.dedup = newDedupCache(config.DedupWindowSize)
		h.wg.Add(1)
		go h.cleanupLoop()
	}

	return h
}

// ReceivePublish applies the broker-side receive handshake for an inbound
// PUBLISH. It returns the ACK to send back (nil at QoS 0) and whether the
// payload should be fanned out to subscribers: a QoS-2 PUBLISH retransmitted
// before the broker's PUBREC was acknowledged must be re-acked but not
// redelivered.
func (h *Handler) ReceivePublish(s *session.Session, pub message.Publish) (ack message.Message, deliver bool) {
	// QoS bit pattern 0b11 ("QoS -1") is the anonymous one-way publish used
	// by pre-registered publishers without a session; it is handled the
	// same as QoS 0 here.
	switch pub.Flags.QoS() {
	case 1:
		return message.PubAck{TopicID: pub.TopicID, MsgID: pub.MsgID, ReturnCode: message.Accepted}, true
	case 2:
		if h.dedup != nil && h.dedup.exists(pub.MsgID) {
			return message.PubRec{MsgID: pub.MsgID}, false
		}
		if s.HasPendingPubrel(pub.MsgID) {
			return message.PubRec{MsgID: pub.MsgID}, false
		}
		s.AddPendingPubrel(pub.MsgID)
		return message.PubRec{MsgID: pub.MsgID}, true
	default:
		return nil, true
	}
}

// ReceivePubRel completes the receiver side of a QoS-2 delivery. It is safe
// to call for an unknown msgID (a re-sent PUBREL after the broker already
// replied) and always yields a PUBCOMP, per the protocol's at-least-once
// PUBREL/PUBCOMP leg.
func (h *Handler) ReceivePubRel(s *session.Session, msgID uint16) message.PubComp {
	s.RemovePendingPubrel(msgID)
	if h.dedup != nil {
		h.dedup.add(msgID)
	}
	return message.PubComp{MsgID: msgID}
}

// Publish sends an application payload to peer at the given QoS, arming
// timing-wheel retransmission for QoS 1/2. The returned msgID is 0 at QoS 0.
func (h *Handler) Publish(s *session.Session, peer string, topicID uint16, data []byte, qos int8, retain bool) (uint16, error) {
	if qos <= 0 {
		pub := message.Publish{
			Flags:   message.NewFlags(false, qos, retain, false, false, message.TopicNormal),
			TopicID: topicID,
			Data:    data,
		}
		return 0, h.sender.Send(peer, pub)
	}

	if len(s.AllPendingPublish()) >= int(h.config.MaxInflight) {
		return 0, ErrQueueFull
	}

	msgID := s.NextMsgID()
	s.AddPendingPublish(&session.PendingMessage{MsgID: msgID, TopicID: topicID, Data: data, QoS: qos, Retain: retain})

	pub := message.Publish{
		Flags:   message.NewFlags(false, qos, retain, false, false, message.TopicNormal),
		TopicID: topicID,
		MsgID:   msgID,
		Data:    data,
	}
	payload, err := message.Encode(pub)
	if err != nil {
		s.RemovePendingPublish(msgID)
		return 0, err
	}

	ackType := message.PUBACK
	if qos == 2 {
		ackType = message.PUBREC
	}
	key := wheel.Key{Peer: peer, AckMsgType: byte(ackType), TopicID: topicID, MsgID: msgID}
	h.wheel.Schedule(key, payload, h.config.RetryInitialDelay, h.config.MaxRetries)

	if err := h.sender.Send(peer, pub); err != nil {
		h.wheel.Cancel(key)
		s.RemovePendingPublish(msgID)
		return 0, err
	}
	return msgID, nil
}

// HandlePubAck completes a QoS-1 outbound publish, cancelling its
// retransmission entry.
func (h *Handler) HandlePubAck(s *session.Session, peer string, ack message.PubAck) error {
	pm, ok := s.GetPendingPublish(ack.MsgID)
	if !ok {
		return ErrPacketIDNotFound
	}
	h.wheel.Cancel(wheel.Key{Peer: peer, AckMsgType: byte(message.PUBACK), TopicID: pm.TopicID, MsgID: ack.MsgID})
	s.RemovePendingPublish(ack.MsgID)
	return nil
}

// HandlePubRec advances a QoS-2 outbound publish to the PUBREL leg: it
// cancels the PUBREC retransmission entry and arms a new one awaiting
// PUBCOMP.
func (h *Handler) HandlePubRec(s *session.Session, peer string, rec message.PubRec) error {
	pm, ok := s.GetPendingPublish(rec.MsgID)
	if !ok {
		return ErrPacketIDNotFound
	}
	h.wheel.Cancel(wheel.Key{Peer: peer, AckMsgType: byte(message.PUBREC), TopicID: pm.TopicID, MsgID: rec.MsgID})

	rel := message.PubRel{MsgID: rec.MsgID}
	payload, err := message.Encode(rel)
	if err != nil {
		return err
	}
	key := wheel.Key{Peer: peer, AckMsgType: byte(message.PUBCOMP), TopicID: pm.TopicID, MsgID: rec.MsgID}
	h.wheel.Schedule(key, payload, h.config.RetryInitialDelay, h.config.MaxRetries)

	return h.sender.Send(peer, rel)
}

// HandlePubComp completes a QoS-2 outbound publish.
func (h *Handler) HandlePubComp(s *session.Session, peer string, comp message.PubComp) error {
	pm, ok := s.GetPendingPublish(comp.MsgID)
	if !ok {
		return ErrPacketIDNotFound
	}
	h.wheel.Cancel(wheel.Key{Peer: peer, AckMsgType: byte(message.PUBCOMP), TopicID: pm.TopicID, MsgID: comp.MsgID})
	s.RemovePendingPublish(comp.MsgID)
	return nil
}

// Retransmit resends the frame carried by a non-failed wheel RetryAction,
// setting DUP on a PUBLISH retry. Callers must check action.Failed first: a
// failed action means the retry budget is exhausted and is the dispatcher's
// responsibility (it owns the session transition to LOST), not qos's.
func (h *Handler) Retransmit(action wheel.RetryAction) error {
	decoded, err := message.Decode(action.Payload)
	if err != nil {
		return err
	}

	if pub, ok := decoded.(message.Publish); ok {
		pub.Flags = pub.Flags.WithDUP()
		return h.sender.Send(action.Key.Peer, pub)
	}

	return h.sender.Send(action.Key.Peer, decoded)
}

func (h *Handler) cleanupLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.config.DedupCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.dedup.cleanup()
		}
	}
}

// Close stops the handler's background dedup cleanup.
func (h *Handler) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()
	return nil
}
