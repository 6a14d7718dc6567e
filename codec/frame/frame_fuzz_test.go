package frame

import "testing"

func FuzzParseHeader(f *testing.F) {
	seeds := [][]byte{
		{0x04, 0x0C, 0xAA, 0xBB},
		{0x01, 0x01, 0x2E, 0x0C},
		{0x00, 0x0C},
		{0x01, 0x00, 0x02, 0x0C},
		{0x01},
		{},
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		h, err := ParseHeader(data)
		if err != nil {
			return
		}
		if h.TotalLen != len(data) {
			t.Fatalf("ParseHeader accepted mismatched length: total=%d len=%d", h.TotalLen, len(data))
		}
		if h.BodyLen() < 0 {
			t.Fatalf("ParseHeader produced negative body length")
		}
	})
}

func FuzzAppendHeaderRoundTrip(f *testing.F) {
	f.Add(byte(0x0C), 3)
	f.Add(byte(0x01), 0)
	f.Add(byte(0x0C), 300)
	f.Add(byte(0x0C), 65000)

	f.Fuzz(func(t *testing.T, msgType byte, bodyLen int) {
		if bodyLen < 0 || bodyLen > MaxLongLen {
			return
		}
		buf, err := AppendHeader(nil, msgType, bodyLen)
		if err != nil {
			return
		}
		buf = append(buf, make([]byte, bodyLen)...)

		h, err := ParseHeader(buf)
		if err != nil {
			t.Fatalf("round-trip parse failed: %v", err)
		}
		if h.MsgType != msgType {
			t.Fatalf("msg type mismatch: got %x want %x", h.MsgType, msgType)
		}
		if h.BodyLen() != bodyLen {
			t.Fatalf("body length mismatch: got %d want %d", h.BodyLen(), bodyLen)
		}
	})
}
