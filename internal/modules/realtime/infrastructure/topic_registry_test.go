package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicRegistry_SubscribeIsIdempotent(t *testing.T) {
	r := NewTopicRegistry()
	r.Subscribe("prices", "s1")
	r.Subscribe("prices", "s1")

	assert.Equal(t, []string{"s1"}, r.SubscribersOf("prices"))
	assert.Equal(t, []string{"prices"}, r.TopicsOf("s1"))
	assert.Equal(t, 1, r.Len())
}

func TestTopicRegistry_UnsubscribeIsIdempotent(t *testing.T) {
	r := NewTopicRegistry()
	r.Subscribe("prices", "s1")
	r.Subscribe("prices", "s2")

	r.Unsubscribe("prices", "s1")
	r.Unsubscribe("prices", "s1")
	r.Unsubscribe("unknown", "s9")

	assert.Equal(t, []string{"s2"}, r.SubscribersOf("prices"))
	assert.Empty(t, r.TopicsOf("s1"))
}

func TestTopicRegistry_UnknownTopicIsEmpty(t *testing.T) {
	r := NewTopicRegistry()
	subs := r.SubscribersOf("nope")
	assert.NotNil(t, subs)
	assert.Empty(t, subs)
}

func TestTopicRegistry_RemoveSessionClearsEveryTopic(t *testing.T) {
	r := NewTopicRegistry()
	r.Subscribe("prices", "s1")
	r.Subscribe("deals", "s1")
	r.Subscribe("deals", "s2")

	r.RemoveSession("s1")
	r.RemoveSession("s1")

	assert.Empty(t, r.SubscribersOf("prices"))
	assert.Equal(t, []string{"s2"}, r.SubscribersOf("deals"))
	assert.Equal(t, []string{"deals"}, r.Topics())
}

func TestTopicRegistry_EmptyTopicIsCollected(t *testing.T) {
	r := NewTopicRegistry()
	r.Subscribe("prices", "s1")
	r.Unsubscribe("prices", "s1")

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Topics())
}

func TestTopicRegistry_IgnoresBlankInput(t *testing.T) {
	r := NewTopicRegistry()
	r.Subscribe("", "s1")
	r.Subscribe("prices", "")

	assert.Equal(t, 0, r.Len())
}
