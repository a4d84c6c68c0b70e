// Package events publishes group-buy domain events after their transaction commits.
// Delivery is best effort: a failed publish never undoes a committed change.
package events

import (
	"context"
	"sync"
	"time"

	"optifish/apps/groupbuy/model"
)

const (
	CampaignCreated    = "groupbuy.created"
	CampaignJoined     = "groupbuy.joined"
	CampaignFilled     = "groupbuy.filled"
	CampaignCompleted  = "groupbuy.completed"
	CampaignsExpired   = "groupbuy.expired"
	TransactionCreated = "groupbuy.transaction.created"
)

type Event struct {
	Type          string    `json:"type"`
	GroupBuyID    model.ID  `json:"groupBuyId,omitempty"`
	UserID        model.ID  `json:"userId,omitempty"`
	TransactionNo string    `json:"transactionNo,omitempty"`
	Count         int64     `json:"count,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
