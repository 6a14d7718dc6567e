package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

var sessionPrefix = []byte("session:")

// PebbleStore is a Pebble-based implementation of the Store interface.
type PebbleStore struct {
	db     *pebble.DB
	mu     sync.RWMutex
	closed bool
}

// PebbleStoreConfig configures the Pebble store.
type PebbleStoreConfig struct {
	Path string
	Opts *pebble.Options
}

// sessionData is the serializable representation of a Session.
type sessionData struct {
	ClientID          string                     `json:"client_id"`
	Peer              string                     `json:"peer"`
	State             State                      `json:"state"`
	CleanSession      bool                       `json:"clean_session"`
	KeepAliveDuration time.Duration              `json:"keep_alive_duration"`
	SleepDuration     time.Duration              `json:"sleep_duration"`
	Will              *WillMessage               `json:"will,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
	LastActivityAt    time.Time                  `json:"last_activity_at"`
	DisconnectedAt    time.Time                  `json:"disconnected_at"`
	AsleepBuffer      [][]byte                   `json:"asleep_buffer"`
	PendingPublish    map[uint16]*PendingMessage `json:"pending_publish"`
	PendingPubrel     []uint16                   `json:"pending_pubrel"`
	NextMsgID         uint16                     `json:"next_msg_id"`
}

func NewPebbleStore(config PebbleStoreConfig) (*PebbleStore, error) {
	opts := config.Opts
	if opts == nil {
		opts = &pebble.Options{ErrorIfExists: false}
	}

	db, err := pebble.Open(config.Path, opts)
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func sessionToData(s *Session) *sessionData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := &sessionData{
		ClientID:          s.ClientID,
		Peer:              s.Peer,
		State:             s.State,
		CleanSession:      s.CleanSession,
		KeepAliveDuration: s.KeepAliveDuration,
		SleepDuration:     s.SleepDuration,
		Will:              s.Will,
		CreatedAt:         s.CreatedAt,
		LastActivityAt:    s.LastActivityAt,
		DisconnectedAt:    s.DisconnectedAt,
		AsleepBuffer:      s.AsleepBuffer,
		PendingPublish:    s.PendingPublish,
		NextMsgID:         s.nextMsgID,
	}

	data.PendingPubrel = make([]uint16, 0, len(s.PendingPubrel))
	for id := range s.PendingPubrel {
		data.PendingPubrel = append(data.PendingPubrel, id)
	}

	return data
}

func dataToSession(data *sessionData) *Session {
	s := &Session{
		ClientID:          data.ClientID,
		Peer:              data.Peer,
		State:             data.State,
		CleanSession:      data.CleanSession,
		KeepAliveDuration: data.KeepAliveDuration,
		SleepDuration:     data.SleepDuration,
		Will:              data.Will,
		CreatedAt:         data.CreatedAt,
		LastActivityAt:    data.LastActivityAt,
		DisconnectedAt:    data.DisconnectedAt,
		AsleepBuffer:      data.AsleepBuffer,
		AsleepBufferMax:   256,
		PendingPublish:    data.PendingPublish,
		nextMsgID:         data.NextMsgID,
	}

	if s.PendingPublish == nil {
		s.PendingPublish = make(map[uint16]*PendingMessage)
	}

	s.PendingPubrel = make(map[uint16]struct{}, len(data.PendingPubrel))
	for _, id := range data.PendingPubrel {
		s.PendingPubrel[id] = struct{}{}
	}

	return s
}

func makeKey(clientID string) []byte {
	key := make([]byte, len(sessionPrefix)+len(clientID))
	copy(key, sessionPrefix)
	copy(key[len(sessionPrefix):], clientID)
	return key
}

func (p *PebbleStore) Save(ctx context.Context, session *Session) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrStoreClosed
	}
	p.mu.RUnlock()

	data := sessionToData(session)
	value, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return p.db.Set(makeKey(session.ClientID), value, pebble.Sync)
}

func (p *PebbleStore) Load(ctx context.Context, clientID string) (*Session, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	p.mu.RUnlock()

	value, closer, err := p.db.Get(makeKey(clientID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	defer closer.Close()

	var data sessionData
	if err := json.Unmarshal(value, &data); err != nil {
		return nil, err
	}
	return dataToSession(&data), nil
}

func (p *PebbleStore) Delete(ctx context.Context, clientID string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrStoreClosed
	}
	p.mu.RUnlock()

	return p.db.Delete(makeKey(clientID), pebble.Sync)
}

func (p *PebbleStore) Exists(ctx context.Context, clientID string) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return false, ErrStoreClosed
	}
	p.mu.RUnlock()

	_, closer, err := p.db.Get(makeKey(clientID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	closer.Close()
	return true, nil
}

func (p *PebbleStore) List(ctx context.Context) ([]string, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	p.mu.RUnlock()

	var clientIDs []string

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: sessionPrefix,
		UpperBound: append(sessionPrefix, 0xff),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		clientIDs = append(clientIDs, string(key[len(sessionPrefix):]))
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}
	return clientIDs, nil
}

func (p *PebbleStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrStoreClosed
	}
	p.closed = true
	return p.db.Close()
}

func (p *PebbleStore) Count(ctx context.Context) (int64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return 0, ErrStoreClosed
	}
	p.mu.RUnlock()

	var count int64
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: sessionPrefix,
		UpperBound: append(sessionPrefix, 0xff),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		count++
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	return count, nil
}

func (p *PebbleStore) CountByState(ctx context.Context, state State) (int64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return 0, ErrStoreClosed
	}
	p.mu.RUnlock()

	var count int64
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: sessionPrefix,
		UpperBound: append(sessionPrefix, 0xff),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var data sessionData
		if err := json.Unmarshal(iter.Value(), &data); err != nil {
			continue
		}
		if data.State == state {
			count++
		}
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	return count, nil
}
