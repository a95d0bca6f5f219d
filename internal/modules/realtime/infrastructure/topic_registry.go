package infrastructure

import "sort"

// TopicRegistry maps topics to the ids of the sessions subscribed to them, with a
// reverse index so a disconnecting session can be dropped from every topic at once.
// It is not safe for concurrent use; the Broker loop is its only caller.
type TopicRegistry struct {
	topics   map[string]map[string]struct{}
	sessions map[string]map[string]struct{}
}

func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{
		topics:   make(map[string]map[string]struct{}),
		sessions: make(map[string]map[string]struct{}),
	}
}

// Subscribe adds the session to the topic. Subscribing twice is a no-op.
func (r *TopicRegistry) Subscribe(topic, sessionID string) {
	if topic == "" || sessionID == "" {
		return
	}
	if r.topics[topic] == nil {
		r.topics[topic] = make(map[string]struct{})
	}
	r.topics[topic][sessionID] = struct{}{}
	if r.sessions[sessionID] == nil {
		r.sessions[sessionID] = make(map[string]struct{})
	}
	r.sessions[sessionID][topic] = struct{}{}
}

// Unsubscribe removes the session from the topic. Removing a non-member is a no-op.
func (r *TopicRegistry) Unsubscribe(topic, sessionID string) {
	if subs, ok := r.topics[topic]; ok {
		delete(subs, sessionID)
		if len(subs) == 0 {
			delete(r.topics, topic)
		}
	}
	if topics, ok := r.sessions[sessionID]; ok {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(r.sessions, sessionID)
		}
	}
}

// SubscribersOf returns the session ids subscribed to topic, sorted. Unknown topics
// yield an empty slice.
func (r *TopicRegistry) SubscribersOf(topic string) []string {
	return sortedKeys(r.topics[topic])
}

// TopicsOf returns the topics a session is subscribed to, sorted.
func (r *TopicRegistry) TopicsOf(sessionID string) []string {
	return sortedKeys(r.sessions[sessionID])
}

// RemoveSession drops the session from every topic it joined.
func (r *TopicRegistry) RemoveSession(sessionID string) {
	for topic := range r.sessions[sessionID] {
		if subs, ok := r.topics[topic]; ok {
			delete(subs, sessionID)
			if len(subs) == 0 {
				delete(r.topics, topic)
			}
		}
	}
	delete(r.sessions, sessionID)
}

// Topics lists every topic with at least one subscriber, sorted.
func (r *TopicRegistry) Topics() []string {
	return sortedKeys(r.topics)
}

// Len reports how many topics currently have subscribers.
func (r *TopicRegistry) Len() int {
	return len(r.topics)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
