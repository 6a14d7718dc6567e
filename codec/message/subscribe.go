package message

// Subscribe requests delivery of messages matching TopicFilter (Normal or
// Short) or a predefined TopicID. Only one of TopicFilter/TopicID is set,
// per Flags.TopicIDType().
type Subscribe struct {
	Flags       Flags
	MsgID       uint16
	TopicFilter []byte
	TopicID     uint16
}

func (Subscribe) Type() MsgType { return SUBSCRIBE }

func (m Subscribe) encodeBody() []byte {
	buf := []byte{byte(m.Flags)}
	buf = putU16(buf, m.MsgID)
	if m.Flags.TopicIDType() == TopicPreDefined {
		return putU16(buf, m.TopicID)
	}
	return append(buf, m.TopicFilter...)
}

func decodeSubscribe(body []byte) (Message, error) {
	if len(body) < 3 {
		return nil, ErrMalformedFrame
	}
	flags := Flags(body[0])
	msgID := getU16(body[1:3])
	rest := body[3:]
	if flags.TopicIDType() == TopicPreDefined {
		if len(rest) != 2 {
			return nil, ErrMalformedFrame
		}
		return Subscribe{Flags: flags, MsgID: msgID, TopicID: getU16(rest)}, nil
	}
	if flags.TopicIDType() == TopicShort && len(rest) != 2 {
		return nil, ErrMalformedFrame
	}
	return Subscribe{Flags: flags, MsgID: msgID, TopicFilter: append([]byte(nil), rest...)}, nil
}

// SubAck answers SUBSCRIBE with the granted QoS, the resolved topic_id
// (when applicable), and a return code.
type SubAck struct {
	Flags      Flags
	TopicID    uint16
	MsgID      uint16
	ReturnCode ReturnCode
}

func (SubAck) Type() MsgType { return SUBACK }

func (m SubAck) encodeBody() []byte {
	buf := []byte{byte(m.Flags)}
	buf = putU16(buf, m.TopicID)
	buf = putU16(buf, m.MsgID)
	return append(buf, byte(m.ReturnCode))
}

func decodeSubAck(body []byte) (Message, error) {
	if len(body) != 6 {
		return nil, ErrMalformedFrame
	}
	return SubAck{
		Flags:      Flags(body[0]),
		TopicID:    getU16(body[1:3]),
		MsgID:      getU16(body[3:5]),
		ReturnCode: ReturnCode(body[5]),
	}, nil
}

// Unsubscribe mirrors Subscribe's addressing modes.
type Unsubscribe struct {
	Flags       Flags
	MsgID       uint16
	TopicFilter []byte
	TopicID     uint16
}

func (Unsubscribe) Type() MsgType { return UNSUBSCRIBE }

func (m Unsubscribe) encodeBody() []byte {
	buf := []byte{byte(m.Flags)}
	buf = putU16(buf, m.MsgID)
	if m.Flags.TopicIDType() == TopicPreDefined {
		return putU16(buf, m.TopicID)
	}
	return append(buf, m.TopicFilter...)
}

func decodeUnsubscribe(body []byte) (Message, error) {
	if len(body) < 3 {
		return nil, ErrMalformedFrame
	}
	flags := Flags(body[0])
	msgID := getU16(body[1:3])
	rest := body[3:]
	if flags.TopicIDType() == TopicPreDefined {
		if len(rest) != 2 {
			return nil, ErrMalformedFrame
		}
		return Unsubscribe{Flags: flags, MsgID: msgID, TopicID: getU16(rest)}, nil
	}
	return Unsubscribe{Flags: flags, MsgID: msgID, TopicFilter: append([]byte(nil), rest...)}, nil
}

// UnsubAck answers UNSUBSCRIBE; MQTT-SN carries no return code here.
type UnsubAck struct {
	MsgID uint16
}

func (UnsubAck) Type() MsgType       { return UNSUBACK }
func (m UnsubAck) encodeBody() []byte { return putU16(nil, m.MsgID) }

func decodeUnsubAck(body []byte) (Message, error) {
	if len(body) != 2 {
		return nil, ErrMalformedFrame
	}
	return UnsubAck{MsgID: getU16(body)}, nil
}
