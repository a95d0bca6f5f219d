package domain

import "strings"

const (
	// TopicPrices is the channel every storefront client joins by default.
	TopicPrices = "prices"

	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// NormalizeTopic trims the channel name. Topics are exact-match identifiers, so no
// case folding or hierarchy handling is applied.
func NormalizeTopic(topic string) string {
	return strings.TrimSpace(topic)
}

// DefaultChannels returns the channel set a receiver subscribes to when none is configured.
func DefaultChannels() []string {
	return []string{TopicPrices}
}
