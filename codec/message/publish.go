package message

// Publish carries application data addressed by topic_id rather than a
// topic name string.
type Publish struct {
	Flags   Flags
	TopicID uint16
	MsgID   uint16
	Data    []byte
}

func (Publish) Type() MsgType { return PUBLISH }

func (m Publish) encodeBody() []byte {
	buf := []byte{byte(m.Flags)}
	buf = putU16(buf, m.TopicID)
	buf = putU16(buf, m.MsgID)
	return append(buf, m.Data...)
}

func decodePublish(body []byte) (Message, error) {
	if len(body) < 5 {
		return nil, ErrMalformedFrame
	}
	return Publish{
		Flags:   Flags(body[0]),
		TopicID: getU16(body[1:3]),
		MsgID:   getU16(body[3:5]),
		Data:    append([]byte(nil), body[5:]...),
	}, nil
}

// PubAck completes a QoS-1 publish.
type PubAck struct {
	TopicID    uint16
	MsgID      uint16
	ReturnCode ReturnCode
}

func (PubAck) Type() MsgType { return PUBACK }

func (m PubAck) encodeBody() []byte {
	buf := putU16(nil, m.TopicID)
	buf = putU16(buf, m.MsgID)
	return append(buf, byte(m.ReturnCode))
}

func decodePubAck(body []byte) (Message, error) {
	if len(body) != 5 {
		return nil, ErrMalformedFrame
	}
	return PubAck{
		TopicID:    getU16(body[0:2]),
		MsgID:      getU16(body[2:4]),
		ReturnCode: ReturnCode(body[4]),
	}, nil
}

// PubRec is the first handshake leg of a QoS-2 publish.
type PubRec struct {
	MsgID uint16
}

func (PubRec) Type() MsgType        { return PUBREC }
func (m PubRec) encodeBody() []byte { return putU16(nil, m.MsgID) }

func decodePubRec(body []byte) (Message, error) {
	if len(body) != 2 {
		return nil, ErrMalformedFrame
	}
	return PubRec{MsgID: getU16(body)}, nil
}

// PubRel is the second handshake leg of a QoS-2 publish.
type PubRel struct {
	MsgID uint16
}

func (PubRel) Type() MsgType       { return PUBREL }
func (m PubRel) encodeBody() []byte { return putU16(nil, m.MsgID) }

func decodePubRel(body []byte) (Message, error) {
	if len(body) != 2 {
		return nil, ErrMalformedFrame
	}
	return PubRel{MsgID: getU16(body)}, nil
}

// PubComp completes a QoS-2 publish.
type PubComp struct {
	MsgID uint16
}

func (PubComp) Type() MsgType       { return PUBCOMP }
func (m PubComp) encodeBody() []byte { return putU16(nil, m.MsgID) }

func decodePubComp(body []byte) (Message, error) {
	if len(body) != 2 {
		return nil, ErrMalformedFrame
	}
	return PubComp{MsgID: getU16(body)}, nil
}
