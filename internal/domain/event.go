package domain

import "time"

// EventType classifies a notification.
type EventType string

const (
	EventCreated         EventType = "created"
	EventArmed           EventType = "armed"
	EventUpdated         EventType = "updated"
	EventPartiallyFilled EventType = "partially_filled"
	EventFilled          EventType = "filled"
	EventCancelled       EventType = "cancelled"
	EventFailed          EventType = "failed"
)

// Terminal reports whether the event accompanies a terminal transition.
// Terminal events are delivered exactly once per order; the rest are
// advisory.
func (t EventType) Terminal() bool {
	return t == EventFilled || t == EventCancelled || t == EventFailed
}

// Event is pushed to the owner of an order through the notification bus.
type Event struct {
	Type      EventType `json:"type"`
	OrderID   string    `json:"order_id"`
	Owner     string    `json:"owner"`
	Symbol    string    `json:"symbol"`
	Family    Family    `json:"family"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Order     Order     `json:"order"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds an event carrying a snapshot of o.
func NewEvent(t EventType, o *Order, msg string) Event {
	return Event{
		Type:      t,
		OrderID:   o.ID,
		Owner:     o.Owner,
		Symbol:    o.Symbol,
		Family:    o.Family,
		Status:    o.Status,
		Message:   msg,
		Order:     *o,
		Timestamp: time.Now().UTC(),
	}
}
