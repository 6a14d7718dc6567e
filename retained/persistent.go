package retained

import (
	"context"

	"github.com/axmq/mqttsn/store"
)

// PersistentStore backs the retained-message store with any generic
// store.Store[Message] (Pebble, Redis), keeping an in-memory trie index
// alongside it so Match can walk wildcard filters without a full scan of
// the backing store on every publish.
type PersistentStore struct {
	backend store.Store[Message]
	index   *MemoryStore
}

// NewPersistentStore wraps backend and rebuilds the wildcard-match index
// from its current contents; call this once at startup after opening the
// backend.
func NewPersistentStore(ctx context.Context, backend store.Store[Message]) (*PersistentStore, error) {
	ps := &PersistentStore{backend: backend, index: NewMemoryStore()}

	keys, err := backend.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, topic := range keys {
		msg, err := backend.Load(ctx, topic)
		if err != nil {
			continue
		}
		_ = ps.index.Set(msg.Topic, msg.Payload, msg.QoS)
	}
	return ps, nil
}

func (ps *PersistentStore) Set(topic string, payload []byte, qos int8) error {
	ctx := context.Background()
	if len(payload) == 0 {
		return ps.Delete(topic)
	}
	if err := ps.backend.Save(ctx, topic, Message{Topic: topic, Payload: payload, QoS: qos}); err != nil {
		return err
	}
	return ps.index.Set(topic, payload, qos)
}

func (ps *PersistentStore) Get(topic string) (Message, bool) {
	msg, err := ps.backend.Load(context.Background(), topic)
	if err != nil {
		return Message{}, false
	}
	return msg, true
}

func (ps *PersistentStore) Match(filter string) []Message {
	return ps.index.Match(filter)
}

func (ps *PersistentStore) Delete(topic string) error {
	if err := ps.backend.Delete(context.Background(), topic); err != nil && err != store.ErrNotFound {
		return err
	}
	return ps.index.Delete(topic)
}

func (ps *PersistentStore) Count() int {
	return ps.index.Count()
}

func (ps *PersistentStore) Close() error {
	_ = ps.index.Close()
	return ps.backend.Close()
}
