package message

// WillTopicReq is sent by the broker to request a client's will topic
// during CONNECT processing when the WILL flag was set.
type WillTopicReq struct{}

func (WillTopicReq) Type() MsgType      { return WILLTOPICREQ }
func (WillTopicReq) encodeBody() []byte { return nil }

// WillTopic carries the client's will topic and publish flags.
type WillTopic struct {
	Flags Flags
	Topic []byte
}

func (WillTopic) Type() MsgType { return WILLTOPIC }

func (m WillTopic) encodeBody() []byte {
	return append([]byte{byte(m.Flags)}, m.Topic...)
}

func decodeWillTopic(body []byte) (Message, error) {
	if len(body) < 1 {
		return nil, ErrMalformedFrame
	}
	return WillTopic{Flags: Flags(body[0]), Topic: append([]byte(nil), body[1:]...)}, nil
}

// WillMsgReq is sent by the broker to request a client's will payload.
type WillMsgReq struct{}

func (WillMsgReq) Type() MsgType      { return WILLMSGREQ }
func (WillMsgReq) encodeBody() []byte { return nil }

// WillMsg carries the client's will payload.
type WillMsg struct {
	Msg []byte
}

func (WillMsg) Type() MsgType { return WILLMSG }

func (m WillMsg) encodeBody() []byte {
	return append([]byte(nil), m.Msg...)
}

func decodeWillMsg(body []byte) (Message, error) {
	return WillMsg{Msg: append([]byte(nil), body...)}, nil
}

// WillTopicUpd updates a session's will topic without a full reconnect. An
// empty Topic clears the will.
type WillTopicUpd struct {
	Flags Flags
	Topic []byte
}

func (WillTopicUpd) Type() MsgType { return WILLTOPICUPD }

func (m WillTopicUpd) encodeBody() []byte {
	if len(m.Topic) == 0 {
		return nil
	}
	return append([]byte{byte(m.Flags)}, m.Topic...)
}

func decodeWillTopicUpd(body []byte) (Message, error) {
	if len(body) == 0 {
		return WillTopicUpd{}, nil
	}
	return WillTopicUpd{Flags: Flags(body[0]), Topic: append([]byte(nil), body[1:]...)}, nil
}

// WillTopicResp acknowledges WILLTOPICUPD.
type WillTopicResp struct {
	ReturnCode ReturnCode
}

func (WillTopicResp) Type() MsgType { return WILLTOPICRESP }

func (m WillTopicResp) encodeBody() []byte {
	return []byte{byte(m.ReturnCode)}
}

func decodeWillTopicResp(body []byte) (Message, error) {
	if len(body) != 1 {
		return nil, ErrMalformedFrame
	}
	return WillTopicResp{ReturnCode: ReturnCode(body[0])}, nil
}

// WillMsgUpd updates a session's will payload without a full reconnect.
type WillMsgUpd struct {
	Msg []byte
}

func (WillMsgUpd) Type() MsgType { return WILLMSGUPD }

func (m WillMsgUpd) encodeBody() []byte {
	return append([]byte(nil), m.Msg...)
}

func decodeWillMsgUpd(body []byte) (Message, error) {
	return WillMsgUpd{Msg: append([]byte(nil), body...)}, nil
}

// WillMsgResp acknowledges WILLMSGUPD.
type WillMsgResp struct {
	ReturnCode ReturnCode
}

func (WillMsgResp) Type() MsgType { return WILLMSGRESP }

func (m WillMsgResp) encodeBody() []byte {
	return []byte{byte(m.ReturnCode)}
}

func decodeWillMsgResp(body []byte) (Message, error) {
	if len(body) != 1 {
		return nil, ErrMalformedFrame
	}
	return WillMsgResp{ReturnCode: ReturnCode(body[0])}, nil
}
