package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record is one entry of a client's notification feed.
type Record struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	URL       string `json:"url,omitempty"`
}

// MergeKey identifies records that coalesce inside the merge window. Only price
// alerts with a target URL are mergeable; other records return "".
func (r Record) MergeKey() string {
	if r.Type != string(EventPriceAlert) || strings.TrimSpace(r.URL) == "" {
		return ""
	}
	return r.Type + "|" + r.URL
}

// Time returns the record timestamp as a time.Time.
func (r Record) Time() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}

// ProductURL is the storefront path a price alert links to.
func ProductURL(productID string) string {
	return "/products/" + strings.TrimSpace(productID)
}

// AlertRecord builds the feed entry for a price alert delivered at the given time.
func AlertRecord(ev PriceAlert, at time.Time) Record {
	return Record{
		ID:        uuid.NewString(),
		Type:      string(EventPriceAlert),
		Message:   fmt.Sprintf("Price alert: %s is now $%.2f", ev.ProductID, ev.NewPrice),
		Timestamp: at.UnixMilli(),
		URL:       ProductURL(ev.ProductID),
	}
}
