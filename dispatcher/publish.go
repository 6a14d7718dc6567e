package dispatcher

import (
	"github.com/axmq/mqttsn/codec/message"
	"github.com/axmq/mqttsn/session"
)

// handleRegister implements REGISTER: assign (or resolve) a Normal topic id
// for the requesting client and answer with REGACK.
func (d *Dispatcher) handleRegister(s *session.Session, peer string, m message.Register) {
	name := string(m.TopicName)
	if len(name) == 0 || len(name) > d.config.MaxTopicNameLen {
		_ = d.sender.Send(peer, message.RegAck{TopicID: m.TopicID, MsgID: m.MsgID, ReturnCode: message.NotSupported})
		return
	}

	id, _, err := d.topics.Register(s.ClientID, name)
	if err != nil {
		_ = d.sender.Send(peer, message.RegAck{MsgID: m.MsgID, ReturnCode: message.NotSupported})
		return
	}

	_ = d.sender.Send(peer, message.RegAck{TopicID: id, MsgID: m.MsgID, ReturnCode: message.Accepted})
}

// resolveIngressTopic resolves a PUBLISH/SUBSCRIBE topic_id to a topic name
// per its TopicIdType: Normal ids go through the per-client Registry, Short
// ids carry the name inline, PreDefined ids are provisioned out of band.
func (d *Dispatcher) resolveIngressTopic(clientID string, tidType message.TopicIDType, topicID uint16) (string, bool) {
	switch tidType {
	case message.TopicNormal:
		return d.topics.ResolveName(clientID, topicID)
	case message.TopicPreDefined:
		name, ok := d.config.PredefinedTopics[topicID]
		return name, ok
	case message.TopicShort:
		b := []byte{byte(topicID >> 8), byte(topicID)}
		if !message.IsValidShortTopic(b) {
			return "", false
		}
		return string(b), true
	default:
		return "", false
	}
}

// handlePublish implements PUBLISH ingress: topic resolution, rate
// limiting, the QoS receive handshake, retained-message storage, and
// subscription-index fanout.
func (d *Dispatcher) handlePublish(s *session.Session, peer string, m message.Publish) {
	qosLevel := m.Flags.QoS()

	name, ok := d.resolveIngressTopic(s.ClientID, m.Flags.TopicIDType(), m.TopicID)
	if !ok {
		switch qosLevel {
		case 1:
			_ = d.sender.Send(peer, message.PubAck{TopicID: m.TopicID, MsgID: m.MsgID, ReturnCode: message.InvalidTopicID})
		case 2:
			// PubRec carries no return code field, so the handshake
			// completes anyway; fanout is skipped since the topic never
			// resolved.
			_ = d.sender.Send(peer, message.PubRec{MsgID: m.MsgID})
		}
		return
	}

	if d.limiter != nil && !d.limiter.Allow(s.ClientID) {
		if qosLevel == 1 {
			_ = d.sender.Send(peer, message.PubAck{TopicID: m.TopicID, MsgID: m.MsgID, ReturnCode: message.Congestion})
		}
		return
	}

	ack, deliver := d.qos.ReceivePublish(s, m)
	if ack != nil {
		_ = d.sender.Send(peer, ack)
	}
	if !deliver {
		return
	}

	if m.Flags.Retain() && d.retained != nil {
		_ = d.retained.Set(name, m.Data, qosLevel)
	}

	if d.metrics != nil {
		d.metrics.PublishesTotal.Inc()
	}

	d.fanout(name, m.Data, qosLevel, m.Flags.Retain())
}

// fanout delivers a published payload to every subscriber matched by the
// subscription index, routing each by the subscriber's current session
// state: deliver now (ACTIVE/AWAKE), buffer (ASLEEP), or skip
// (LOST/DISCONNECTED).
func (d *Dispatcher) fanout(topicName string, data []byte, qosLevel int8, retain bool) {
	for _, sub := range d.router.Match(topicName) {
		d.deliverToSubscriber(sub.ClientID, topicName, data, qosLevel, sub.QoS, retain)
	}
}

// deliverToSubscriber delivers one payload to one subscriber, routing by the
// subscriber's current session state exactly as fanout does for every match.
// Shared by fanout (a live PUBLISH) and handleSubscribe (replaying retained
// messages to a newly matched filter).
func (d *Dispatcher) deliverToSubscriber(clientID, topicName string, data []byte, qosLevel, subQoS int8, retain bool) {
	subSession, ok := d.sessions.LookupByClientID(clientID)
	if !ok {
		return
	}

	effectiveQoS := qosLevel
	if subQoS < effectiveQoS {
		effectiveQoS = subQoS
	}

	topicID, ok := d.topics.ResolveID(clientID, topicName)
	if !ok {
		var err error
		topicID, _, err = d.topics.Register(clientID, topicName)
		if err != nil {
			return
		}
	}

	switch subSession.GetState() {
	case session.StateActive, session.StateAwake:
		peer := subSession.GetPeer()
		if _, err := d.qos.Publish(subSession, peer, topicID, data, effectiveQoS, retain); err != nil {
			d.log.Warn("publish delivery failed", "client_id", clientID, "error", err)
		}
	case session.StateAsleep:
		pub := message.Publish{
			Flags:   message.NewFlags(false, effectiveQoS, retain, false, false, message.TopicNormal),
			TopicID: topicID,
			Data:    data,
		}
		frame, err := message.Encode(pub)
		if err != nil {
			return
		}
		if !subSession.EnqueueAsleep(frame, effectiveQoS) {
			d.log.Warn("asleep buffer full, dropping publish", "client_id", clientID)
		}
	default:
		// DISCONNECTED or LOST: skip.
	}
}
