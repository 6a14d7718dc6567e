package transport

import (
	"context"
	"sync"
	"time"

	"github.com/axmq/mqttsn/codec/message"
	"github.com/axmq/mqttsn/session"
)

// GracefulShutdown sends DISCONNECT to every active session before closing
// the socket, giving well-behaved clients a chance to notice the gateway is
// going away instead of waiting out a full keep-alive timeout.
type GracefulShutdown struct {
	socket   Socket
	sessions *session.Manager
	timeout  time.Duration

	mu   sync.Mutex
	done bool
}

// NewGracefulShutdown builds a shutdown coordinator over socket and
// sessions. timeout bounds how long the DISCONNECT fan-out is allowed to
// take before the socket is closed unconditionally.
func NewGracefulShutdown(socket Socket, sessions *session.Manager, timeout time.Duration) *GracefulShutdown {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &GracefulShutdown{socket: socket, sessions: sessions, timeout: timeout}
}

// Shutdown notifies every currently active session and closes the socket.
// Safe to call more than once; only the first call does anything.
func (g *GracefulShutdown) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return nil
	}
	g.done = true
	g.mu.Unlock()

	timeoutCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for _, s := range g.sessions.Snapshot() {
			if s.GetState() != session.StateActive && s.GetState() != session.StateAwake {
				continue
			}
			wg.Add(1)
			go func(peer string) {
				defer wg.Done()
				frame, err := message.Encode(message.Disconnect{})
				if err != nil {
					return
				}
				_ = g.socket.Send(peer, frame)
			}(s.GetPeer())
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-timeoutCtx.Done():
	}

	return g.socket.Close()
}
