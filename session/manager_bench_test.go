package session

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func BenchmarkManagerBind(b *testing.B) {
	m := NewManager(ManagerConfig{Store: NewMemoryStore()})
	defer m.Close()
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		clientID := fmt.Sprintf("client%d", i)
		m.Bind(ctx, clientID, "peer", false, 60*time.Second)
	}
}

func BenchmarkManagerLookupByClientID(b *testing.B) {
	m := NewManager(ManagerConfig{Store: NewMemoryStore()})
	defer m.Close()
	ctx := context.Background()
	m.Bind(ctx, "client1", "peer1", false, 60*time.Second)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.LookupByClientID("client1")
	}
}

func BenchmarkManagerLookupByPeer(b *testing.B) {
	m := NewManager(ManagerConfig{Store: NewMemoryStore()})
	defer m.Close()
	ctx := context.Background()
	m.Bind(ctx, "client1", "peer1", false, 60*time.Second)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.LookupByPeer("peer1")
	}
}

func BenchmarkManagerTransition(b *testing.B) {
	m := NewManager(ManagerConfig{Store: NewMemoryStore()})
	defer m.Close()
	ctx := context.Background()
	m.Bind(ctx, "client1", "peer1", false, 60*time.Second)

	states := []State{StateAsleep, StateAwake, StateActive}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Transition(ctx, "client1", states[i%len(states)])
	}
}
