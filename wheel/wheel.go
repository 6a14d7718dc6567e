// Package wheel implements a hashed timing wheel that schedules per-message
// retransmissions and fires them on tick boundaries. Entries whose deadline
// falls beyond one full revolution of the wheel carry a round counter rather
// than occupying a second wheel level, the standard single-level variant of
// a hierarchical timing wheel.
package wheel

import (
	"container/list"
	"sync"
	"time"
)

const defaultSlotCount = 512

type entry struct {
	key      Key
	payload  []byte
	policy   RetryPolicy
	attempts int
	slot     int
	rounds   int
}

// RetryAction is emitted by Tick for an entry whose deadline has passed. Its
// Failed flag is set once the entry has exhausted its retry budget, in which
// case the entry has already been removed from the wheel.
type RetryAction struct {
	Key     Key
	Payload []byte
	Attempt int
	Failed  bool
}

type Wheel struct {
	mu           sync.Mutex
	tickInterval time.Duration
	slots        []*list.List
	slotCount    int
	hand         int
	index        map[Key]*list.Element
}

func New(tickInterval time.Duration) *Wheel {
	return NewWithSlots(tickInterval, defaultSlotCount)
}

func NewWithSlots(tickInterval time.Duration, slotCount int) *Wheel {
	if slotCount <= 0 {
		slotCount = defaultSlotCount
	}
	w := &Wheel{
		tickInterval: tickInterval,
		slots:        make([]*list.List, slotCount),
		slotCount:    slotCount,
		index:        make(map[Key]*list.Element),
	}
	for i := range w.slots {
		w.slots[i] = list.New()
	}
	return w
}

// Schedule inserts or replaces the InFlightMessage identified by key. An
// existing entry under the same key is removed and reinserted with a fresh
// deadline and reset attempt count, matching the protocol's idempotent
// rescheduling requirement.
func (w *Wheel) Schedule(key Key, payload []byte, initialDelay time.Duration, maxAttempts int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.removeLocked(key)

	policy := RetryPolicy{BaseDelay: initialDelay, MaxDelay: DefaultRetryPolicy().MaxDelay, MaxAttempts: maxAttempts}
	if policy.MaxDelay < initialDelay {
		policy.MaxDelay = initialDelay
	}

	e := &entry{key: key, payload: payload, policy: policy}
	w.placeLocked(e, initialDelay)
}

// ScheduleWithPolicy behaves like Schedule but lets the caller supply a full
// RetryPolicy (base delay, cap, attempt budget) instead of the wheel's
// defaults, for callers that need the §4.5 backoff curve rather than a fixed
// interval.
func (w *Wheel) ScheduleWithPolicy(key Key, payload []byte, policy RetryPolicy) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.removeLocked(key)
	e := &entry{key: key, payload: payload, policy: policy}
	w.placeLocked(e, policy.delayForAttempt(0))
}

func (w *Wheel) placeLocked(e *entry, delay time.Duration) {
	ticks := int(delay / w.tickInterval)
	if ticks < 1 {
		ticks = 1
	}
	e.slot = (w.hand + ticks) % w.slotCount
	e.rounds = (ticks - 1) / w.slotCount

	el := w.slots[e.slot].PushBack(e)
	w.index[e.key] = el
}

// Cancel removes the entry for key if present. It returns false if no entry
// was found, which is the expected outcome when an ACK arrives after the
// entry has already fired or been cancelled concurrently.
func (w *Wheel) Cancel(key Key) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.removeLocked(key)
}

// CancelPeer removes every entry keyed to peer, regardless of message type,
// topic id or message id. Used when a session transitions to LOST: every
// in-flight retransmission for that peer must stop, not just the one entry
// whose retry exhaustion triggered the transition.
func (w *Wheel) CancelPeer(peer string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	var keys []Key
	for key := range w.index {
		if key.Peer == peer {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		w.removeLocked(key)
	}
	return len(keys)
}

func (w *Wheel) removeLocked(key Key) bool {
	el, ok := w.index[key]
	if !ok {
		return false
	}
	e := el.Value.(*entry)
	w.slots[e.slot].Remove(el)
	delete(w.index, key)
	return true
}

// Tick advances the hand by one resolution boundary and returns a
// RetryAction for every entry whose deadline fired on this tick. Entries
// still within their retry budget are rearmed with the next backoff delay;
// entries that have exhausted max_attempts are removed and reported Failed.
func (w *Wheel) Tick() []RetryAction {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.hand = (w.hand + 1) % w.slotCount
	slot := w.slots[w.hand]

	var actions []RetryAction
	var next *list.Element
	for el := slot.Front(); el != nil; el = next {
		next = el.Next()
		e := el.Value.(*entry)
		if e.rounds > 0 {
			e.rounds--
			continue
		}

		slot.Remove(el)
		delete(w.index, e.key)

		if e.policy.exhausted(e.attempts + 1) {
			actions = append(actions, RetryAction{Key: e.key, Payload: e.payload, Attempt: e.attempts + 1, Failed: true})
			continue
		}

		e.attempts++
		actions = append(actions, RetryAction{Key: e.key, Payload: e.payload, Attempt: e.attempts})
		w.placeLocked(e, e.policy.delayForAttempt(e.attempts))
	}

	return actions
}

// Len reports the number of entries currently armed in the wheel.
func (w *Wheel) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.index)
}

// TickInterval returns the wheel's configured resolution.
func (w *Wheel) TickInterval() time.Duration {
	return w.tickInterval
}
