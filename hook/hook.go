package hook

// Event identifies a point in CONNECT/PUBLISH processing a Hook can plug
// into. Only the two the dispatcher actually calls out to are defined; the
// broader MQTT broker hook surface (ACL, retained-message lifecycle, will
// rewriting, storage callbacks, …) has no dispatcher call site and so no
// event here.
type Event byte

const (
	OnConnectAuthenticate Event = iota
	OnPublishRateLimit
)

func (e Event) String() string {
	switch e {
	case OnConnectAuthenticate:
		return "OnConnectAuthenticate"
	case OnPublishRateLimit:
		return "OnPublishRateLimit"
	default:
		return "Unknown"
	}
}

// Hook is a pluggable policy check invoked by Manager. Implementations that
// only care about one event should embed Base and override a single method.
type Hook interface {
	ID() string
	Provides(event Event) bool
	Init(config any) error
	Stop() error

	// Authenticate gates a CONNECT for clientID arriving from peer.
	Authenticate(clientID, peer string) bool
	// Allow gates a PUBLISH from clientID, feeding the Congestion return
	// code on rejection.
	Allow(clientID string) bool
}
