package domain

import (
	"encoding/json"
	"strings"
)

// Request is a control frame sent by a client to the broker.
type Request struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// SubscribeRequest builds the frame a receiver sends to join a channel.
func SubscribeRequest(channel string) Request {
	return Request{Action: ActionSubscribe, Channel: channel}
}

// UnsubscribeRequest builds the frame a receiver sends to leave a channel.
func UnsubscribeRequest(channel string) Request {
	return Request{Action: ActionUnsubscribe, Channel: channel}
}

// ParseRequest accepts exactly the subscribe and unsubscribe shapes. Anything else,
// including invalid JSON or an empty channel, reports ok=false and should be dropped.
func ParseRequest(raw []byte) (Request, bool) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, false
	}
	req.Action = strings.ToLower(strings.TrimSpace(req.Action))
	req.Channel = NormalizeTopic(req.Channel)
	if req.Channel == "" {
		return Request{}, false
	}
	switch req.Action {
	case ActionSubscribe, ActionUnsubscribe:
		return req, true
	default:
		return Request{}, false
	}
}
