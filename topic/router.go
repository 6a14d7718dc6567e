package topic

import "sync"

// Router manages topic subscriptions and routes publishes to subscribers.
type Router struct {
	trie          *Trie
	subscriptions map[string]map[string]*Subscription // clientID -> filter -> Subscription
	mu            sync.RWMutex
}

func NewRouter() *Router {
	return &Router{
		trie:          NewTrie(),
		subscriptions: make(map[string]map[string]*Subscription),
	}
}

// Subscribe adds sub to the router. A repeat (ClientID, TopicFilter) pair
// replaces the stored QoS, per the Subscription Index's invariant.
func (r *Router) Subscribe(sub *Subscription) error {
	if err := ValidateTopicFilter(sub.TopicFilter); err != nil {
		return err
	}

	r.mu.Lock()
	existing, hadExisting := r.subscriptions[sub.ClientID][sub.TopicFilter]
	r.mu.Unlock()

	if hadExisting {
		existing.QoS = sub.QoS
		r.trie.Unsubscribe(sub.TopicFilter, sub.ClientID)
		return r.trie.Subscribe(sub.TopicFilter, SubscriberInfo{ClientID: sub.ClientID, QoS: sub.QoS})
	}

	subInfo := SubscriberInfo{ClientID: sub.ClientID, QoS: sub.QoS}
	if err := r.trie.Subscribe(sub.TopicFilter, subInfo); err != nil {
		return err
	}

	r.mu.Lock()
	if r.subscriptions[sub.ClientID] == nil {
		r.subscriptions[sub.ClientID] = make(map[string]*Subscription)
	}
	r.subscriptions[sub.ClientID][sub.TopicFilter] = sub
	r.mu.Unlock()

	return nil
}

// Unsubscribe removes a subscription from the router.
func (r *Router) Unsubscribe(clientID, filter string) bool {
	found := r.trie.Unsubscribe(filter, clientID)

	r.mu.Lock()
	if clientSubs, ok := r.subscriptions[clientID]; ok {
		delete(clientSubs, filter)
		if len(clientSubs) == 0 {
			delete(r.subscriptions, clientID)
		}
	}
	r.mu.Unlock()

	return found
}

// UnsubscribeAll removes every subscription held by clientID, used when a
// clean_session session ends, by DISCONNECT or by a LOST transition.
func (r *Router) UnsubscribeAll(clientID string) int {
	r.mu.Lock()
	clientSubs, ok := r.subscriptions[clientID]
	if !ok {
		r.mu.Unlock()
		return 0
	}

	filters := make([]string, 0, len(clientSubs))
	for filter := range clientSubs {
		filters = append(filters, filter)
	}
	delete(r.subscriptions, clientID)
	r.mu.Unlock()

	count := 0
	for _, filter := range filters {
		if r.Unsubscribe(clientID, filter) {
			count++
		}
	}

	return count
}

// Match finds all subscribers for a published topic name. Each subscriber
// appears at most once, with the highest QoS among its matching filters.
func (r *Router) Match(topic string) []SubscriberInfo {
	matches := r.trie.Match(topic)
	seen := make(map[string]int, len(matches))
	out := matches[:0]
	for _, m := range matches {
		if i, ok := seen[m.ClientID]; ok {
			if m.QoS > out[i].QoS {
				out[i].QoS = m.QoS
			}
			continue
		}
		seen[m.ClientID] = len(out)
		out = append(out, m)
	}
	return out
}

// GetSubscription retrieves a specific subscription.
func (r *Router) GetSubscription(clientID, filter string) (*Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if clientSubs, ok := r.subscriptions[clientID]; ok {
		sub, ok := clientSubs[filter]
		return sub, ok
	}
	return nil, false
}

// GetClientSubscriptions retrieves all subscriptions for a client.
func (r *Router) GetClientSubscriptions(clientID string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clientSubs, ok := r.subscriptions[clientID]
	if !ok {
		return nil
	}

	result := make([]*Subscription, 0, len(clientSubs))
	for _, sub := range clientSubs {
		result = append(result, sub)
	}
	return result
}

// Count returns the total number of subscriptions.
func (r *Router) Count() int {
	return r.trie.Count()
}

// CountClients returns the number of clients with subscriptions.
func (r *Router) CountClients() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscriptions)
}

// Clear removes all subscriptions.
func (r *Router) Clear() {
	r.mu.Lock()
	r.subscriptions = make(map[string]map[string]*Subscription)
	r.mu.Unlock()
	r.trie.Clear()
}
