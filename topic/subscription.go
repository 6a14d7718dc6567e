package topic

// Subscription represents a client's standing interest in a topic filter.
type Subscription struct {
	ClientID    string
	TopicFilter string
	QoS         int8
}

// SubscriberInfo is the routing-time projection of a Subscription: enough
// to resolve delivery QoS and look the client's current Peer up in the
// session manager, without the index needing to know about Peer itself.
type SubscriberInfo struct {
	ClientID string
	QoS      int8
}
