// Package transport implements the UDP datagram socket the gateway serves
// ingress from and sends replies over. MQTT-SN is packet-oriented and
// connectionless: there is one shared net.UDPConn, and peers are identified
// by address string rather than by a per-client net.Conn.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// FrameHandler processes one ingress datagram from peer. It matches
// dispatcher.Dispatcher.OnIngress's signature so a Socket can drive a
// Dispatcher directly.
type FrameHandler func(peer string, data []byte)

// Socket is the transport-layer collaborator the dispatcher sends through.
// Implementations must be safe for concurrent use.
type Socket interface {
	// Send encodes nothing itself; callers hand it an already-encoded
	// frame bound for peer.
	Send(peer string, frame []byte) error
	// Serve reads datagrams until ctx is cancelled or the socket is
	// closed, calling handler for each one. Serve blocks; run it in its
	// own goroutine.
	Serve(ctx context.Context, handler FrameHandler) error
	LocalAddr() net.Addr
	Close() error
	Stats() SocketStats
}

// SocketStats reports cumulative counters, read under no lock since every
// field is an atomic snapshot.
type SocketStats struct {
	PacketsRead    uint64
	PacketsWritten uint64
	BytesRead      uint64
	BytesWritten   uint64
	ReadErrors     uint64
	WriteErrors    uint64
	UnknownPeers   uint64
}

// Config configures a UDPSocket.
type Config struct {
	// Address is the local "host:port" to bind, e.g. ":1883".
	Address string
	// ReadBufferSize bounds the largest single datagram Serve will
	// accept; MQTT-SN frames are capped at 65535 bytes by the length
	// field, but gateways deployed on constrained links typically bind
	// this much lower.
	ReadBufferSize int
}

// DefaultConfig returns a UDPSocket configuration sized for the standard
// MQTT-SN over UDP deployment (one shared socket, no fragmentation).
func DefaultConfig(address string) Config {
	return Config{
		Address:        address,
		ReadBufferSize: 1500,
	}
}

// UDPSocket is a Socket backed by a single net.UDPConn shared by every peer.
type UDPSocket struct {
	conn   *net.UDPConn
	config Config

	addrMu sync.RWMutex
	addrs  map[string]*net.UDPAddr // peer string -> resolved address, cached

	packetsRead    atomic.Uint64
	packetsWritten atomic.Uint64
	bytesRead      atomic.Uint64
	bytesWritten   atomic.Uint64
	readErrors     atomic.Uint64
	writeErrors    atomic.Uint64
	unknownPeers   atomic.Uint64

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewUDPSocket binds config.Address and returns the bound socket.
func NewUDPSocket(config Config) (*UDPSocket, error) {
	if config.Address == "" {
		return nil, ErrInvalidAddress
	}
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = 1500
	}

	addr, err := net.ResolveUDPAddr("udp", config.Address)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", config.Address, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", config.Address, err)
	}

	return &UDPSocket{
		conn:   conn,
		config: config,
		addrs:  make(map[string]*net.UDPAddr),
	}, nil
}

// Serve reads datagrams until ctx is cancelled or the socket closes.
func (s *UDPSocket) Serve(ctx context.Context, handler FrameHandler) error {
	buf := make([]byte, s.config.ReadBufferSize)

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	for {
		n, remote, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			s.readErrors.Add(1)
			continue
		}

		s.packetsRead.Add(1)
		s.bytesRead.Add(uint64(n))

		peer := remote.String()
		s.rememberAddr(peer, remote)

		frame := make([]byte, n)
		copy(frame, buf[:n])
		handler(peer, frame)
	}
}

// Send writes frame to peer, resolving peer's address from the cache built
// up by Serve or, for a peer never seen as a sender (e.g. a pending will
// delivered to a subscriber that has never sent a datagram this process
// lifetime but was restored from the session store), by resolving it fresh.
func (s *UDPSocket) Send(peer string, frame []byte) error {
	addr, err := s.resolveAddr(peer)
	if err != nil {
		s.writeErrors.Add(1)
		return err
	}

	n, err := s.conn.WriteToUDP(frame, addr)
	if err != nil {
		s.writeErrors.Add(1)
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	s.packetsWritten.Add(1)
	s.bytesWritten.Add(uint64(n))
	return nil
}

func (s *UDPSocket) rememberAddr(peer string, addr *net.UDPAddr) {
	s.addrMu.Lock()
	s.addrs[peer] = addr
	s.addrMu.Unlock()
}

func (s *UDPSocket) resolveAddr(peer string) (*net.UDPAddr, error) {
	s.addrMu.RLock()
	addr, ok := s.addrs[peer]
	s.addrMu.RUnlock()
	if ok {
		return addr, nil
	}

	s.unknownPeers.Add(1)
	addr, err := net.ResolveUDPAddr("udp", peer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	s.rememberAddr(peer, addr)
	return addr, nil
}

func (s *UDPSocket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *UDPSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.conn.Close()
	})
	return err
}

func (s *UDPSocket) Stats() SocketStats {
	return SocketStats{
		PacketsRead:    s.packetsRead.Load(),
		PacketsWritten: s.packetsWritten.Load(),
		BytesRead:      s.bytesRead.Load(),
		BytesWritten:   s.bytesWritten.Load(),
		ReadErrors:     s.readErrors.Load(),
		WriteErrors:    s.writeErrors.Load(),
		UnknownPeers:   s.unknownPeers.Load(),
	}
}

var _ Socket = (*UDPSocket)(nil)
