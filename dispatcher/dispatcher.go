// Package dispatcher implements the per-packet state machine: decode,
// classify, apply the session transition, arm retransmission, and fan
// PUBLISH out through the subscription index. It is the one component that
// wires the codec, session store, topic registry, subscription index,
// timing wheel and QoS handler together; none of those packages import it.
package dispatcher

import (
	"context"
	"time"

	"github.com/axmq/mqttsn/codec/message"
	"github.com/axmq/mqttsn/hook"
	"github.com/axmq/mqttsn/pkg/logger"
	"github.com/axmq/mqttsn/pkg/metrics"
	"github.com/axmq/mqttsn/qos"
	"github.com/axmq/mqttsn/retained"
	"github.com/axmq/mqttsn/session"
	"github.com/axmq/mqttsn/topic"
	"github.com/axmq/mqttsn/wheel"
)

// ConnectAuthenticator gates CONNECT processing. A Dispatcher with no
// authenticator installed via SetAuthenticator admits every client.
type ConnectAuthenticator interface {
	Authenticate(clientID, peer string) bool
}

// RateLimiter gates PUBLISH ingress, feeding the Congestion return code. A
// Dispatcher with no limiter installed via SetRateLimiter never throttles.
type RateLimiter interface {
	Allow(clientID string) bool
}

// hook.Manager satisfies both extension points: its Authenticate/Allow
// methods fan out to every registered hook that Provides the matching event.
var (
	_ ConnectAuthenticator = (*hook.Manager)(nil)
	_ RateLimiter          = (*hook.Manager)(nil)
)

// Config holds the dispatcher's runtime tunables.
type Config struct {
	RetryInitialDelay time.Duration
	RetryMaxAttempts  int
	WheelTick         time.Duration
	AsleepBufferLimit int
	MaxTopicNameLen   int
	GatewayID         byte
	// PredefinedTopics maps out-of-band provisioned topic ids to names,
	// known to both sides in advance.
	PredefinedTopics map[uint16]string
}

// DefaultConfig returns the dispatcher's default tunables.
func DefaultConfig() Config {
	return Config{
		RetryInitialDelay: 10 * time.Second,
		RetryMaxAttempts:  3,
		WheelTick:         100 * time.Millisecond,
		AsleepBufferLimit: 64,
		MaxTopicNameLen:   256,
		GatewayID:         1,
		PredefinedTopics:  map[uint16]string{},
	}
}

// Dispatcher owns every collaborator the event loop touches as a field
// here rather than a package-level variable.
type Dispatcher struct {
	config Config
	log    *logger.SlogLogger

	sessions *session.Manager
	topics   *topic.Registry
	router   *topic.Router
	retained retained.Store

	wheel       *wheel.Wheel
	wheelDriver *wheel.Driver
	qos         *qos.Handler
	sender      qos.Sender

	auth    ConnectAuthenticator
	limiter RateLimiter
	metrics *metrics.Gateway

	pending *pendingWillStore
}

// New wires a Dispatcher over already-constructed collaborators, including
// registering itself as sessions' WillPublisher and LostObserver: the
// Dispatcher cannot exist before the Manager it will be attached to, so the
// wiring happens here rather than at the call site.
func New(config Config, sessions *session.Manager, topics *topic.Registry, router *topic.Router, retainedStore retained.Store, sender qos.Sender, log *logger.SlogLogger) *Dispatcher {
	w := wheel.New(config.WheelTick)

	d := &Dispatcher{
		config:   config,
		log:      log,
		sessions: sessions,
		topics:   topics,
		router:   router,
		retained: retainedStore,
		wheel:    w,
		sender:   sender,
		pending:  newPendingWillStore(),
	}

	d.qos = qos.NewHandler(w, sender, &qos.Config{
		MaxInflight:          65535,
		RetryInitialDelay:    config.RetryInitialDelay,
		MaxRetries:           config.RetryMaxAttempts,
		EnableDedup:          true,
		DedupWindowSize:      1000,
		DedupCleanupInterval: 5 * time.Minute,
	})
	d.wheelDriver = wheel.NewDriver(w, d.onWheelAction)

	sessions.SetWillPublisher(d)
	sessions.SetLostObserver(d)

	return d
}

// OnSessionLost implements session.LostObserver: it runs the cleanup every
// path to LOST shares, regardless of whether the sweep loop's keep-alive
// timeout or the wheel's retry exhaustion drove the transition. Wheel
// entries are cancelled unconditionally; topic-registry and subscription
// state only for clean_session sessions, since a persistent session's
// subscriptions must survive to be resumed on the next CONNECT.
func (d *Dispatcher) OnSessionLost(clientID, peer string, cleanSession bool) {
	d.wheel.CancelPeer(peer)
	if cleanSession {
		d.topics.DropSession(clientID)
		d.router.UnsubscribeAll(clientID)
	}
	if d.metrics != nil {
		d.metrics.SessionsLost.Inc()
		d.metrics.ActiveSessions.Set(float64(d.sessions.ActiveCount()))
	}
}

// SetAuthenticator installs the CONNECT authentication hook.
func (d *Dispatcher) SetAuthenticator(a ConnectAuthenticator) { d.auth = a }

// SetRateLimiter installs the PUBLISH rate-limit hook.
func (d *Dispatcher) SetRateLimiter(r RateLimiter) { d.limiter = r }

// SetMetrics installs the Prometheus collectors the dispatcher updates as
// it processes traffic. A nil metrics (the default) disables instrumentation
// entirely rather than updating unregistered collectors.
func (d *Dispatcher) SetMetrics(m *metrics.Gateway) { d.metrics = m }

// Start begins driving the timing wheel.
func (d *Dispatcher) Start() { d.wheelDriver.Start() }

// Close stops the wheel driver and the QoS handler's background cleanup.
func (d *Dispatcher) Close() error {
	d.wheelDriver.Stop()
	return d.qos.Close()
}

// OnIngress is the entry point of ingress processing: decode, classify,
// dispatch. A decode failure is dropped silently; there is no reply channel
// for a frame the codec could not parse.
func (d *Dispatcher) OnIngress(peer string, data []byte) {
	msg, err := message.Decode(data)
	if err != nil {
		d.log.Debug("dropping malformed frame", "peer", peer, "error", err)
		return
	}

	switch m := msg.(type) {
	case message.Connect:
		d.handleConnect(peer, m)
	case message.WillTopic:
		d.withSession(peer, func(s *session.Session) { d.handleWillTopic(s, peer, m) })
	case message.WillMsg:
		d.withSession(peer, func(s *session.Session) { d.handleWillMsg(s, peer, m) })
	case message.WillTopicUpd:
		d.withSession(peer, func(s *session.Session) { d.handleWillTopicUpd(s, peer, m) })
	case message.WillMsgUpd:
		d.withSession(peer, func(s *session.Session) { d.handleWillMsgUpd(s, peer, m) })
	case message.Register:
		d.withSession(peer, func(s *session.Session) { d.handleRegister(s, peer, m) })
	case message.Publish:
		d.withSession(peer, func(s *session.Session) { d.handlePublish(s, peer, m) })
	case message.PubAck:
		d.withSession(peer, func(s *session.Session) { _ = d.qos.HandlePubAck(s, peer, m) })
	case message.PubRec:
		d.withSession(peer, func(s *session.Session) { _ = d.qos.HandlePubRec(s, peer, m) })
	case message.PubRel:
		d.withSession(peer, func(s *session.Session) { d.handlePubRel(s, peer, m) })
	case message.PubComp:
		d.withSession(peer, func(s *session.Session) { _ = d.qos.HandlePubComp(s, peer, m) })
	case message.Subscribe:
		d.withSession(peer, func(s *session.Session) { d.handleSubscribe(s, peer, m) })
	case message.Unsubscribe:
		d.withSession(peer, func(s *session.Session) { d.handleUnsubscribe(s, peer, m) })
	case message.PingReq:
		d.handlePingReq(peer, m)
	case message.Disconnect:
		d.withSession(peer, func(s *session.Session) { d.handleDisconnect(s, peer, m) })
	case message.SearchGw:
		d.handleSearchGw(peer, m)
	default:
		d.log.Debug("dropping unhandled message type", "peer", peer, "type", msg.Type())
	}
}

// withSession looks up the session bound to peer, touches its keep-alive
// deadline on the caller's behalf (every successful message resets it), and
// runs fn. A peer with no bound session is silently dropped: every message
// type reaching here except CONNECT requires one.
func (d *Dispatcher) withSession(peer string, fn func(s *session.Session)) {
	s, ok := d.sessions.LookupByPeer(peer)
	if !ok {
		d.log.Debug("dropping message from unbound peer", "peer", peer)
		return
	}
	s.Touch()
	fn(s)
}

// onWheelAction handles a fired timing-wheel entry. A non-failed action is
// a retransmission, which is qos's concern; a failed one means the retry
// budget is exhausted, which transitions the owning session to LOST, a
// decision the wheel itself cannot make since it has no notion of sessions.
func (d *Dispatcher) onWheelAction(action wheel.RetryAction) {
	if !action.Failed {
		if err := d.qos.Retransmit(action); err != nil {
			d.log.Warn("retransmit failed", "peer", action.Key.Peer, "error", err)
		}
		if d.metrics != nil {
			d.metrics.RetriesTotal.Inc()
			d.metrics.WheelDepth.Set(float64(d.wheel.Len()))
		}
		return
	}

	s, ok := d.sessions.LookupByPeer(action.Key.Peer)
	if !ok {
		return
	}

	d.log.Warn("retry budget exhausted, marking session lost", "client_id", s.ClientID, "peer", action.Key.Peer)
	ctx := context.Background()
	_ = d.sessions.Transition(ctx, s.ClientID, session.StateLost)
}
