package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"revenue/internal/core"
)

type EventType string

const (
	EventRevenueCreated     EventType = "revenue.created"
	EventRevenueUpdated     EventType = "revenue.updated"
	EventRevenueDeleted     EventType = "revenue.deleted"
	EventRevenueBulkDeleted EventType = "revenue.bulk_deleted"
	EventPartnerCreated     EventType = "partner.created"
)

func (t EventType) Valid() bool {
	switch t {
	case EventRevenueCreated, EventRevenueUpdated, EventRevenueDeleted, EventRevenueBulkDeleted, EventPartnerCreated:
		return true
	}
	return false
}

// RevenueEvent announces a committed ledger change. It carries ids only;
// consumers read current state back from the database.
type RevenueEvent struct {
	EventID     uuid.UUID `json:"event_id"`
	Type        EventType `json:"type"`
	RevenueIDs  []int64   `json:"revenue_ids"`
	PartnerIDs  []int64   `json:"partner_ids"`
	AmountCents int64     `json:"amount_cents"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewRevenueEvent builds an event for the given rows. Partner ids are
// deduplicated in first-seen order.
func NewRevenueEvent(t EventType, revenues ...core.Revenue) *RevenueEvent {
	ev := &RevenueEvent{
		EventID:    uuid.New(),
		Type:       t,
		RevenueIDs: make([]int64, 0, len(revenues)),
		PartnerIDs: []int64{},
		OccurredAt: time.Now().UTC(),
	}
	seen := make(map[int64]bool)
	for _, r := range revenues {
		ev.RevenueIDs = append(ev.RevenueIDs, r.ID)
		ev.AmountCents += r.Amount.Cents
		if !seen[r.PartnerID] {
			seen[r.PartnerID] = true
			ev.PartnerIDs = append(ev.PartnerIDs, r.PartnerID)
		}
	}
	return ev
}

// NewPartnerEvent builds the event emitted when a partner is registered.
func NewPartnerEvent(p core.Partner) *RevenueEvent {
	return &RevenueEvent{
		EventID:    uuid.New(),
		Type:       EventPartnerCreated,
		RevenueIDs: []int64{},
		PartnerIDs: []int64{p.ID},
		OccurredAt: time.Now().UTC(),
	}
}

func (e *RevenueEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func RevenueEventFromJSON(data []byte) (*RevenueEvent, error) {
	var ev RevenueEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if !ev.Type.Valid() {
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
	return &ev, nil
}
