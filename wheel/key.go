package wheel

import "fmt"

// Key identifies an InFlightMessage awaiting acknowledgement. It matches the
// ACK that will cancel the entry, not the request that scheduled it: a
// PUBLISH retry is keyed by the PUBACK/PUBREC type the broker expects back,
// so that receiving that ACK for (peer, topic_id, msg_id) cancels it in O(1).
type Key struct {
	Peer       string
	AckMsgType uint8
	TopicID    uint16
	MsgID      uint16
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%d/%d", k.Peer, k.AckMsgType, k.TopicID, k.MsgID)
}
