package qos

import (
	"fmt"
	"testing"
	"time"

	"github.com/axmq/mqttsn/codec/message"
	"github.com/axmq/mqttsn/session"
	"github.com/axmq/mqttsn/wheel"
)

func BenchmarkHandlerPublishQoS0(b *testing.B) {
	w := wheel.New(100 * time.Millisecond)
	h := NewHandler(w, &fakeSender{}, nil)
	defer h.Close()
	s := session.New("client1", "peer1", false, 60*time.Second)
	payload := []byte("payload")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.Publish(s, "peer1", 1, payload, 0, false)
	}
}

func BenchmarkHandlerPublishQoS1(b *testing.B) {
	w := wheel.New(100 * time.Millisecond)
	h := NewHandler(w, &fakeSender{}, &Config{MaxInflight: 65535, RetryInitialDelay: 10 * time.Second, MaxRetries: 3})
	defer h.Close()
	s := session.New("client1", "peer1", false, 60*time.Second)
	payload := []byte("payload")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msgID, _ := h.Publish(s, "peer1", 1, payload, 1, false)
		h.HandlePubAck(s, "peer1", message.PubAck{TopicID: 1, MsgID: msgID, ReturnCode: message.Accepted})
	}
}

func BenchmarkHandlerPublishQoS2Flow(b *testing.B) {
	w := wheel.New(100 * time.Millisecond)
	h := NewHandler(w, &fakeSender{}, &Config{MaxInflight: 65535, RetryInitialDelay: 10 * time.Second, MaxRetries: 3})
	defer h.Close()
	s := session.New("client1", "peer1", false, 60*time.Second)
	payload := []byte("payload")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msgID, _ := h.Publish(s, "peer1", 1, payload, 2, false)
		h.HandlePubRec(s, "peer1", message.PubRec{MsgID: msgID})
		h.HandlePubComp(s, "peer1", message.PubComp{MsgID: msgID})
	}
}

func BenchmarkHandlerReceivePublishQoS1(b *testing.B) {
	w := wheel.New(100 * time.Millisecond)
	h := NewHandler(w, &fakeSender{}, nil)
	defer h.Close()
	s := session.New("client1", "peer1", false, 60*time.Second)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pub := message.Publish{
			Flags:   message.NewFlags(false, 1, false, false, false, message.TopicNormal),
			TopicID: 1,
			MsgID:   uint16(i),
			Data:    []byte("payload"),
		}
		h.ReceivePublish(s, pub)
	}
}

func BenchmarkHandlerReceivePublishQoS2(b *testing.B) {
	w := wheel.New(100 * time.Millisecond)
	h := NewHandler(w, &fakeSender{}, nil)
	defer h.Close()
	s := session.New("client1", "peer1", false, 60*time.Second)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pub := message.Publish{
			Flags:   message.NewFlags(false, 2, false, false, false, message.TopicNormal),
			TopicID: 1,
			MsgID:   uint16(i),
			Data:    []byte("payload"),
		}
		h.ReceivePublish(s, pub)
	}
}

func BenchmarkHandlerRetransmit(b *testing.B) {
	w := wheel.New(100 * time.Millisecond)
	h := NewHandler(w, &fakeSender{}, nil)
	defer h.Close()

	pub := message.Publish{Flags: message.NewFlags(false, 1, false, false, false, message.TopicNormal), TopicID: 1, MsgID: 7, Data: []byte("payload")}
	payload, _ := message.Encode(pub)
	action := wheel.RetryAction{Key: wheel.Key{Peer: "peer1", MsgID: 7}, Payload: payload, Attempt: 1}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.Retransmit(action)
	}
}

func BenchmarkDedupCacheAdd(b *testing.B) {
	dc := newDedupCache(10000)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dc.add(uint16(i))
	}
}

func BenchmarkDedupCacheExists(b *testing.B) {
	dc := newDedupCache(10000)
	for i := 0; i < 1000; i++ {
		dc.add(uint16(i))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dc.exists(uint16(i % 1000))
	}
}

func BenchmarkDedupCacheCleanup(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		dc := newDedupCache(1000)
		for j := 0; j < 500; j++ {
			dc.add(uint16(j))
		}
		b.StartTimer()
		dc.cleanup()
	}
}

func BenchmarkHandlerConcurrentPublishQoS1(b *testing.B) {
	w := wheel.New(100 * time.Millisecond)
	h := NewHandler(w, &fakeSender{}, &Config{MaxInflight: 65535, RetryInitialDelay: 10 * time.Second, MaxRetries: 3})
	defer h.Close()
	s := session.New("client1", "peer1", false, 60*time.Second)
	payload := []byte("payload")

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			h.Publish(s, fmt.Sprintf("peer%d", i), 1, payload, 1, false)
			i++
		}
	})
}
