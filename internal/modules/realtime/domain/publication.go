package domain

import (
	"encoding/json"
	"fmt"
)

// Publication is a request from an upstream producer (pricing engine, REST caller,
// Kafka or NATS message) to fan an event out on a channel.
type Publication struct {
	Channel string
	Event   Event
}

type rawPublication struct {
	Channel string          `json:"channel"`
	Topic   string          `json:"topic"`
	Type    EventType       `json:"type"`
	Data    json.RawMessage `json:"data"`
}

// DecodePublication parses the producer JSON shape
// {"channel":"prices","type":"price_update","data":{...}}. The channel defaults to
// TopicPrices; "topic" is accepted as an alias.
func DecodePublication(raw []byte) (Publication, error) {
	return DecodePublicationOn(raw, TopicPrices)
}

// DecodePublicationOn is DecodePublication with a caller-chosen fallback channel.
func DecodePublicationOn(raw []byte, fallback string) (Publication, error) {
	var in rawPublication
	if err := json.Unmarshal(raw, &in); err != nil {
		return Publication{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	ev, err := decodeEvent(in.Type, in.Data)
	if err != nil {
		return Publication{}, err
	}
	channel := NormalizeTopic(in.Channel)
	if channel == "" {
		channel = NormalizeTopic(in.Topic)
	}
	if channel == "" {
		channel = NormalizeTopic(fallback)
	}
	if channel == "" {
		channel = TopicPrices
	}
	return Publication{Channel: channel, Event: ev}, nil
}
