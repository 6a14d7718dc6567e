package session

import (
	"testing"
	"time"
)

func BenchmarkNew(b *testing.B) {
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		New("client1", "peer1", false, 60*time.Second)
	}
}

func BenchmarkSessionTouch(b *testing.B) {
	s := New("client1", "peer1", false, 60*time.Second)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Touch()
	}
}

func BenchmarkSessionNextMsgID(b *testing.B) {
	s := New("client1", "peer1", false, 60*time.Second)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.NextMsgID()
	}
}

func BenchmarkSessionEnqueueAsleep(b *testing.B) {
	s := New("client1", "peer1", false, 60*time.Second)
	s.AsleepBufferMax = 1 << 20
	frame := []byte("publish payload")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.EnqueueAsleep(frame, 0)
	}
}

func BenchmarkSessionAddPendingPublish(b *testing.B) {
	s := New("client1", "peer1", false, 60*time.Second)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := uint16(i%65000 + 1)
		s.AddPendingPublish(&PendingMessage{MsgID: id})
	}
}
