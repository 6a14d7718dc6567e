package session

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func BenchmarkMemoryStoreSave(b *testing.B) {
	store := NewMemoryStore()
	ctx := context.Background()
	s := New("client1", "peer1", false, 60*time.Second)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Save(ctx, s)
	}
}

func BenchmarkMemoryStoreLoad(b *testing.B) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Save(ctx, New("client1", "peer1", false, 60*time.Second))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Load(ctx, "client1")
	}
}

func BenchmarkMemoryStoreList(b *testing.B) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		store.Save(ctx, New(fmt.Sprintf("client%d", i), "peer", false, 60*time.Second))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.List(ctx)
	}
}
