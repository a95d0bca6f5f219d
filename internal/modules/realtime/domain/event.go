package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrUnknownEventType is returned when an envelope carries a type tag outside the closed event set.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrMalformedMessage is returned when a frame is not a valid event envelope.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrInvalidEvent is returned when an event fails validation before publishing.
	ErrInvalidEvent = errors.New("invalid event")
)

// EventType is the wire tag of an event variant.
type EventType string

const (
	EventPriceUpdate EventType = "price_update"
	EventPriceAlert  EventType = "price_alert"
)

// Visitor handles every event variant. Adding a variant adds a method here, which makes
// every dispatcher fail to compile until it handles the new case.
type Visitor interface {
	VisitPriceUpdate(ev PriceUpdate, at time.Time)
	VisitPriceAlert(ev PriceAlert, at time.Time)
}

// Event is the closed set of payloads the broker fans out.
type Event interface {
	Type() EventType
	ProductKey() string
	Validate() error
	accept(v Visitor, at time.Time)
}

// PriceUpdate reports a new product price. OldPrice and Change are optional on the wire.
type PriceUpdate struct {
	ProductID string   `json:"productId"`
	NewPrice  float64  `json:"newPrice"`
	OldPrice  *float64 `json:"oldPrice,omitempty"`
	Change    *float64 `json:"change,omitempty"`
}

func (PriceUpdate) Type() EventType { return EventPriceUpdate }

func (e PriceUpdate) ProductKey() string { return e.ProductID }

func (e PriceUpdate) Validate() error {
	if err := validatePrice(e.ProductID, e.NewPrice); err != nil {
		return err
	}
	if e.OldPrice != nil && (math.IsNaN(*e.OldPrice) || *e.OldPrice < 0) {
		return fmt.Errorf("%w: oldPrice must be a non-negative number", ErrInvalidEvent)
	}
	return nil
}

// WithDerivedChange fills Change from OldPrice when the producer left it out.
func (e PriceUpdate) WithDerivedChange() PriceUpdate {
	if e.Change != nil || e.OldPrice == nil {
		return e
	}
	change := math.Round((e.NewPrice-*e.OldPrice)*100) / 100
	e.Change = &change
	return e
}

func (e PriceUpdate) accept(v Visitor, at time.Time) { v.VisitPriceUpdate(e, at) }

// PriceAlert signals that a watched product crossed an alerting threshold.
type PriceAlert struct {
	ProductID string  `json:"productId"`
	NewPrice  float64 `json:"newPrice"`
}

func (PriceAlert) Type() EventType { return EventPriceAlert }

func (e PriceAlert) ProductKey() string { return e.ProductID }

func (e PriceAlert) Validate() error { return validatePrice(e.ProductID, e.NewPrice) }

func (e PriceAlert) accept(v Visitor, at time.Time) { v.VisitPriceAlert(e, at) }

// Dispatch routes the event to the visitor method matching its variant.
func Dispatch(ev Event, at time.Time, v Visitor) {
	if ev == nil || v == nil {
		return
	}
	ev.accept(v, at)
}

func validatePrice(productID string, price float64) error {
	if strings.TrimSpace(productID) == "" {
		return fmt.Errorf("%w: productId is required", ErrInvalidEvent)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return fmt.Errorf("%w: newPrice must be a non-negative number", ErrInvalidEvent)
	}
	return nil
}

// Message is a decoded broker frame: the event plus its broker-assigned timestamp.
type Message struct {
	Event     Event
	Timestamp time.Time
}

// Type returns the tag of the carried event.
func (m Message) Type() EventType {
	if m.Event == nil {
		return ""
	}
	return m.Event.Type()
}

// envelope is the JSON shape shared by both directions of the price stream.
type envelope struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// EncodeMessage serialises an event with the broker timestamp in Unix milliseconds.
func EncodeMessage(ev Event, at time.Time) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Type(), err)
	}
	return json.Marshal(envelope{Type: ev.Type(), Data: data, Timestamp: at.UnixMilli()})
}

// DecodeMessage parses a broker frame. Unknown type tags yield ErrUnknownEventType so the
// caller can drop them without treating them as corruption.
func DecodeMessage(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	ev, err := decodeEvent(env.Type, env.Data)
	if err != nil {
		return Message{}, err
	}
	return Message{Event: ev, Timestamp: time.UnixMilli(env.Timestamp).UTC()}, nil
}

func decodeEvent(kind EventType, data json.RawMessage) (Event, error) {
	switch kind {
	case EventPriceUpdate:
		var ev PriceUpdate
		if err := unmarshalData(data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventPriceAlert:
		var ev PriceAlert
		if err := unmarshalData(data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, kind)
	}
}

func unmarshalData(data json.RawMessage, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: missing data", ErrMalformedMessage)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return nil
}
