package transport

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axmq/mqttsn/codec/message"
)

type sentFrame struct {
	peer  string
	frame []byte
}

type fakeSocket struct {
	mu   sync.Mutex
	sent []sentFrame
}

func (f *fakeSocket) Send(peer string, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentFrame{peer, frame})
	return nil
}

func (f *fakeSocket) Serve(ctx context.Context, handler FrameHandler) error { return nil }
func (f *fakeSocket) LocalAddr() net.Addr                                  { return nil }
func (f *fakeSocket) Close() error                                         { return nil }
func (f *fakeSocket) Stats() SocketStats                                   { return SocketStats{} }

var _ Socket = (*fakeSocket)(nil)

func TestMessageSenderEncodesBeforeSending(t *testing.T) {
	socket := &fakeSocket{}
	sender := NewMessageSender(socket)

	err := sender.Send("peer1", message.PingResp{})
	require.NoError(t, err)

	require.Len(t, socket.sent, 1)
	assert.Equal(t, "peer1", socket.sent[0].peer)

	decoded, err := message.Decode(socket.sent[0].frame)
	require.NoError(t, err)
	assert.Equal(t, message.PINGRESP, decoded.Type())
}
