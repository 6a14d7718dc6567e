package transport

import "github.com/axmq/mqttsn/codec/message"

// MessageSender adapts a Socket to qos.Sender and dispatcher's sender
// dependency, encoding each outbound message before handing the frame to
// the socket.
type MessageSender struct {
	socket Socket
}

// NewMessageSender wraps socket for encoded message delivery.
func NewMessageSender(socket Socket) *MessageSender {
	return &MessageSender{socket: socket}
}

// Send implements qos.Sender.
func (m *MessageSender) Send(peer string, msg message.Message) error {
	frame, err := message.Encode(msg)
	if err != nil {
		return err
	}
	return m.socket.Send(peer, frame)
}
