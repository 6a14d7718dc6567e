// Package message implements the MQTT-SN v1.2 wire codec: the ~25 message
// types as one tagged sum type, each with a single Encode/Decode pair, per
// the big-endian wire layouts of the protocol. The codec is pure: no I/O,
// no shared state.
package message

import (
	"encoding/binary"
	"errors"

	"github.com/axmq/mqttsn/codec/frame"
)

// MsgType identifies an MQTT-SN message on the wire.
type MsgType byte

const (
	ADVERTISE     MsgType = 0x00
	SEARCHGW      MsgType = 0x01
	GWINFO        MsgType = 0x02
	CONNECT       MsgType = 0x04
	CONNACK       MsgType = 0x05
	WILLTOPICREQ  MsgType = 0x06
	WILLTOPIC     MsgType = 0x07
	WILLMSGREQ    MsgType = 0x08
	WILLMSG       MsgType = 0x09
	REGISTER      MsgType = 0x0A
	REGACK        MsgType = 0x0B
	PUBLISH       MsgType = 0x0C
	PUBACK        MsgType = 0x0D
	PUBCOMP       MsgType = 0x0E
	PUBREC        MsgType = 0x0F
	PUBREL        MsgType = 0x10
	SUBSCRIBE     MsgType = 0x12
	SUBACK        MsgType = 0x13
	UNSUBSCRIBE   MsgType = 0x14
	UNSUBACK      MsgType = 0x15
	PINGREQ       MsgType = 0x16
	PINGRESP      MsgType = 0x17
	DISCONNECT    MsgType = 0x18
	WILLTOPICUPD  MsgType = 0x1A
	WILLTOPICRESP MsgType = 0x1B
	WILLMSGUPD    MsgType = 0x1C
	WILLMSGRESP   MsgType = 0x1D
)

func (t MsgType) String() string {
	switch t {
	case ADVERTISE:
		return "ADVERTISE"
	case SEARCHGW:
		return "SEARCHGW"
	case GWINFO:
		return "GWINFO"
	case CONNECT:
		return "CONNECT"
	case CONNACK:
		return "CONNACK"
	case WILLTOPICREQ:
		return "WILLTOPICREQ"
	case WILLTOPIC:
		return "WILLTOPIC"
	case WILLMSGREQ:
		return "WILLMSGREQ"
	case WILLMSG:
		return "WILLMSG"
	case REGISTER:
		return "REGISTER"
	case REGACK:
		return "REGACK"
	case PUBLISH:
		return "PUBLISH"
	case PUBACK:
		return "PUBACK"
	case PUBCOMP:
		return "PUBCOMP"
	case PUBREC:
		return "PUBREC"
	case PUBREL:
		return "PUBREL"
	case SUBSCRIBE:
		return "SUBSCRIBE"
	case SUBACK:
		return "SUBACK"
	case UNSUBSCRIBE:
		return "UNSUBSCRIBE"
	case UNSUBACK:
		return "UNSUBACK"
	case PINGREQ:
		return "PINGREQ"
	case PINGRESP:
		return "PINGRESP"
	case DISCONNECT:
		return "DISCONNECT"
	case WILLTOPICUPD:
		return "WILLTOPICUPD"
	case WILLTOPICRESP:
		return "WILLTOPICRESP"
	case WILLMSGUPD:
		return "WILLMSGUPD"
	case WILLMSGRESP:
		return "WILLMSGRESP"
	default:
		return "UNKNOWN"
	}
}

// TopicIDType distinguishes how a PUBLISH/SUBSCRIBE topic_id field should be
// interpreted.
type TopicIDType byte

const (
	TopicNormal     TopicIDType = 0
	TopicPreDefined TopicIDType = 1
	TopicShort      TopicIDType = 2
	TopicReserved   TopicIDType = 3
)

// ReturnCode is the one-byte status field carried by *ACK messages.
type ReturnCode byte

const (
	Accepted       ReturnCode = 0
	Congestion     ReturnCode = 1
	InvalidTopicID ReturnCode = 2
	NotSupported   ReturnCode = 3
)

// Flags is the bit-packed flag byte present in CONNECT, PUBLISH, SUBSCRIBE,
// WILLTOPIC and a few others. Bit positions from MSB: DUP(7) QoS(6-5)
// RETAIN(4) WILL(3) CLEAN_SESSION(2) TopicIdType(1-0).
type Flags byte

const (
	flagDUP          = 1 << 7
	flagQoSShift     = 5
	flagQoSMask      = 0x03
	flagRETAIN       = 1 << 4
	flagWILL         = 1 << 3
	flagCLEANSESSION = 1 << 2
	flagTopicIDMask  = 0x03
)

func NewFlags(dup bool, qos int8, retain, will, cleanSession bool, topicIDType TopicIDType) Flags {
	var f Flags
	if dup {
		f |= flagDUP
	}
	f |= Flags(qosToBits(qos)) << flagQoSShift
	if retain {
		f |= flagRETAIN
	}
	if will {
		f |= flagWILL
	}
	if cleanSession {
		f |= flagCLEANSESSION
	}
	f |= Flags(topicIDType) & flagTopicIDMask
	return f
}

func qosToBits(qos int8) byte {
	if qos < 0 {
		return 3
	}
	return byte(qos) & flagQoSMask
}

func (f Flags) DUP() bool { return f&flagDUP != 0 }

// WithDUP returns f with the DUP bit set, used when the timing wheel
// retransmits a PUBLISH that was not acknowledged in time.
func (f Flags) WithDUP() Flags { return f | flagDUP }

// QoS returns the publish QoS level, with -1 representing the anonymous
// "QoS -1" publish used by pre-registered one-way publishers.
func (f Flags) QoS() int8 {
	bits := (byte(f) >> flagQoSShift) & flagQoSMask
	if bits == 3 {
		return -1
	}
	return int8(bits)
}

func (f Flags) Retain() bool       { return f&flagRETAIN != 0 }
func (f Flags) Will() bool         { return f&flagWILL != 0 }
func (f Flags) CleanSession() bool { return f&flagCLEANSESSION != 0 }
func (f Flags) TopicIDType() TopicIDType {
	return TopicIDType(byte(f) & flagTopicIDMask)
}

var (
	ErrMalformedFrame      = errors.New("message: malformed frame body")
	ErrUnknownMsgType      = errors.New("message: unknown message type")
	ErrUnsupportedReserved = errors.New("message: reserved message type not supported")
	ErrClientIDTooLong     = errors.New("message: client id exceeds 23 bytes")
	ErrShortTopicNotASCII  = errors.New("message: short topic name is not 2 printable ASCII bytes")
)

// Message is implemented by every MQTT-SN message payload type.
type Message interface {
	Type() MsgType
	encodeBody() []byte
}

// Encode frames and serializes m, choosing the 1-byte or 3-byte length form
// automatically based on body size.
func Encode(m Message) ([]byte, error) {
	body := m.encodeBody()
	buf, err := frame.AppendHeader(make([]byte, 0, len(body)+4), byte(m.Type()), len(body))
	if err != nil {
		return nil, err
	}
	return append(buf, body...), nil
}

// Decode parses a full datagram: the frame header plus message body, and
// dispatches to the matching message type's decoder.
func Decode(buf []byte) (Message, error) {
	hdr, err := frame.ParseHeader(buf)
	if err != nil {
		return nil, err
	}
	body := buf[hdr.HeaderLen+1:]
	return decodeBody(MsgType(hdr.MsgType), body)
}

func decodeBody(t MsgType, body []byte) (Message, error) {
	switch t {
	case ADVERTISE:
		return decodeAdvertise(body)
	case SEARCHGW:
		return decodeSearchGw(body)
	case GWINFO:
		return decodeGwInfo(body)
	case CONNECT:
		return decodeConnect(body)
	case CONNACK:
		return decodeConnack(body)
	case WILLTOPICREQ:
		return WillTopicReq{}, nil
	case WILLTOPIC:
		return decodeWillTopic(body)
	case WILLMSGREQ:
		return WillMsgReq{}, nil
	case WILLMSG:
		return decodeWillMsg(body)
	case REGISTER:
		return decodeRegister(body)
	case REGACK:
		return decodeRegAck(body)
	case PUBLISH:
		return decodePublish(body)
	case PUBACK:
		return decodePubAck(body)
	case PUBREC:
		return decodePubRec(body)
	case PUBREL:
		return decodePubRel(body)
	case PUBCOMP:
		return decodePubComp(body)
	case SUBSCRIBE:
		return decodeSubscribe(body)
	case SUBACK:
		return decodeSubAck(body)
	case UNSUBSCRIBE:
		return decodeUnsubscribe(body)
	case UNSUBACK:
		return decodeUnsubAck(body)
	case PINGREQ:
		return decodePingReq(body)
	case PINGRESP:
		return PingResp{}, nil
	case DISCONNECT:
		return decodeDisconnect(body)
	case WILLTOPICUPD:
		return decodeWillTopicUpd(body)
	case WILLTOPICRESP:
		return decodeWillTopicResp(body)
	case WILLMSGUPD:
		return decodeWillMsgUpd(body)
	case WILLMSGRESP:
		return decodeWillMsgResp(body)
	default:
		return nil, ErrUnknownMsgType
	}
}

func putU16(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

func getU16(src []byte) uint16 {
	return binary.BigEndian.Uint16(src)
}

// IsValidShortTopic reports whether b is a well-formed 2-character Short
// topic name: exactly two printable ASCII bytes, which double as the
// topic_id in the wire form.
func IsValidShortTopic(b []byte) bool {
	if len(b) != 2 {
		return false
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}

// ShortTopicID packs a validated 2-byte Short topic name into its wire
// topic_id representation.
func ShortTopicID(b []byte) uint16 {
	return getU16(b)
}
