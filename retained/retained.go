// Package retained implements the per-topic retained-message store: the
// broker keeps at most one retained PUBLISH per topic name, replacing it on
// every retained publish and deleting it when the payload is empty.
package retained

import "errors"

var ErrStoreClosed = errors.New("retained: store is closed")

// Message is the last-retained PUBLISH payload for one topic name.
type Message struct {
	Topic   string
	Payload []byte
	QoS     int8
}

// Store is the retained-message collaborator. Implementations must be safe
// for concurrent use.
type Store interface {
	// Set replaces the retained message for topic, or deletes it when
	// payload is empty.
	Set(topic string, payload []byte, qos int8) error
	// Get returns the retained message for an exact topic name, if any.
	Get(topic string) (Message, bool)
	// Match returns every retained message whose topic matches filter
	// under the standard +/# wildcard rules.
	Match(filter string) []Message
	// Delete removes the retained message for topic, if any.
	Delete(topic string) error
	// Count returns the number of retained messages currently stored.
	Count() int
	Close() error
}

// Matcher is a filter-against-topic predicate. No type in this module
// implements it, and MemoryStore and PersistentStore do not take one: both
// match filters through their own trie index.
type Matcher interface {
	Match(filter, topic string) bool
}
