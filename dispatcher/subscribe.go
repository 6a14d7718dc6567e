package dispatcher

import (
	"github.com/axmq/mqttsn/codec/message"
	"github.com/axmq/mqttsn/session"
	"github.com/axmq/mqttsn/topic"
)

// resolveFilterTopic resolves a SUBSCRIBE/UNSUBSCRIBE addressing mode to a
// filter string and the topic id to echo back in the ack: Normal and Short
// filters carry their own name, PreDefined filters name an out-of-band id.
func (d *Dispatcher) resolveFilterTopic(tidType message.TopicIDType, filterBytes []byte, topicID uint16) (filter string, ackTopicID uint16, ok bool) {
	switch tidType {
	case message.TopicNormal:
		return string(filterBytes), 0, true
	case message.TopicShort:
		if !message.IsValidShortTopic(filterBytes) {
			return "", 0, false
		}
		return string(filterBytes), message.ShortTopicID(filterBytes), true
	case message.TopicPreDefined:
		name, ok := d.config.PredefinedTopics[topicID]
		if !ok {
			return "", 0, false
		}
		return name, topicID, true
	default:
		return "", 0, false
	}
}

// handleSubscribe implements SUBSCRIBE: registers the filter in the
// Subscription Index and answers with SUBACK carrying the granted QoS.
func (d *Dispatcher) handleSubscribe(s *session.Session, peer string, m message.Subscribe) {
	filter, ackTopicID, ok := d.resolveFilterTopic(m.Flags.TopicIDType(), m.TopicFilter, m.TopicID)
	if !ok {
		_ = d.sender.Send(peer, message.SubAck{MsgID: m.MsgID, ReturnCode: message.InvalidTopicID})
		return
	}

	qosLevel := m.Flags.QoS()
	sub := &topic.Subscription{ClientID: s.ClientID, TopicFilter: filter, QoS: qosLevel}
	if err := d.router.Subscribe(sub); err != nil {
		_ = d.sender.Send(peer, message.SubAck{MsgID: m.MsgID, ReturnCode: message.NotSupported})
		return
	}

	ackFlags := message.NewFlags(false, qosLevel, false, false, false, m.Flags.TopicIDType())
	_ = d.sender.Send(peer, message.SubAck{Flags: ackFlags, TopicID: ackTopicID, MsgID: m.MsgID, ReturnCode: message.Accepted})

	d.deliverRetained(s.ClientID, filter, qosLevel)
}

// deliverRetained replays every retained message matching filter to a
// client that just subscribed, per the requirement that a new SUBSCRIBE
// sees the current retained state immediately rather than waiting for the
// next live PUBLISH on a matching topic.
func (d *Dispatcher) deliverRetained(clientID, filter string, subQoS int8) {
	if d.retained == nil {
		return
	}
	for _, msg := range d.retained.Match(filter) {
		d.deliverToSubscriber(clientID, msg.Topic, msg.Payload, msg.QoS, subQoS, true)
	}
}

// handleUnsubscribe implements UNSUBSCRIBE, which carries no return code.
func (d *Dispatcher) handleUnsubscribe(s *session.Session, peer string, m message.Unsubscribe) {
	filter, _, ok := d.resolveFilterTopic(m.Flags.TopicIDType(), m.TopicFilter, m.TopicID)
	if ok {
		d.router.Unsubscribe(s.ClientID, filter)
	}
	_ = d.sender.Send(peer, message.UnsubAck{MsgID: m.MsgID})
}

// handlePubRel completes the receiver side of a QoS-2 delivery.
func (d *Dispatcher) handlePubRel(s *session.Session, peer string, m message.PubRel) {
	comp := d.qos.ReceivePubRel(s, m.MsgID)
	_ = d.sender.Send(peer, comp)
}
