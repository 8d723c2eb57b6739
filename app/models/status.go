package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "PLACED"
	OrderStatusAccepted  OrderStatus = "ACCEPTED"
	OrderStatusChanged   OrderStatus = "CHANGED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusCompleted OrderStatus = "COMPLETED"

	// Kitchen workflow sub-states, reachable from ACCEPTED.
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusReady     OrderStatus = "READY"
)

// ErrUnknownStatus is returned by ParseOrderStatus for strings outside the
// canonical set and its legacy aliases.
var ErrUnknownStatus = errors.New("unknown order status")

// statusAliases maps upper-cased raw values (canonical and legacy) to canonical statuses.
var statusAliases = map[string]OrderStatus{
	"PLACED":          OrderStatusPlaced,
	"PENDING":         OrderStatusPlaced,
	"ACCEPTED":        OrderStatusAccepted,
	"CHANGED":         OrderStatusChanged,
	"CHANGEREQUESTED": OrderStatusChanged,
	"UPDATED":         OrderStatusChanged,
	"CANCELLED":       OrderStatusCancelled,
	"COMPLETED":       OrderStatusCompleted,
	"PREPARING":       OrderStatusPreparing,
	"READY":           OrderStatusReady,
}

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPlaced:    {OrderStatusAccepted, OrderStatusCancelled},
	OrderStatusAccepted:  {OrderStatusCompleted, OrderStatusCancelled, OrderStatusPreparing, OrderStatusReady},
	OrderStatusChanged:   {OrderStatusAccepted, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusReady, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusReady:     {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCancelled: {},
	OrderStatusCompleted: {},
}

// Higher wins when a session's orders are collapsed into one status.
var priorities = map[OrderStatus]float64{
	OrderStatusChanged:   6,
	OrderStatusPlaced:    5,
	OrderStatusAccepted:  4,
	OrderStatusPreparing: 3.5,
	OrderStatusCancelled: 3,
	OrderStatusReady:     2,
	OrderStatusCompleted: 1,
}

// ParseOrderStatus converts a raw status string, including legacy spellings
// such as "Pending" or "ChangeRequested", into its canonical value.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if s, ok := statusAliases[key]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

// CanonicalStatus is ParseOrderStatus without the error: unrecognized values
// are passed through unchanged so they fail transitions and rank lowest.
func CanonicalStatus(raw string) OrderStatus {
	if s, err := ParseOrderStatus(raw); err == nil {
		return s
	}
	return OrderStatus(raw)
}

// ValidateTransition reports whether an order in status current may move to
// requested. Both sides are canonicalized first.
func ValidateTransition(current, requested string) bool {
	return CanonicalStatus(current).CanTransitionTo(CanonicalStatus(requested))
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from s.
func (s OrderStatus) AllowedTransitions() []OrderStatus {
	out := make([]OrderStatus, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusCompleted
}

// IsBillable reports whether orders in this status are charged on the bill.
func (s OrderStatus) IsBillable() bool {
	switch s {
	case OrderStatusAccepted, OrderStatusCompleted, OrderStatusPreparing, OrderStatusReady:
		return true
	}
	return false
}

// Priority ranks statuses for session aggregation. Unknown statuses get 0.
func (s OrderStatus) Priority() float64 {
	return priorities[s]
}

// AllStatuses lists every known status in transition-table order.
func AllStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPlaced,
		OrderStatusAccepted,
		OrderStatusChanged,
		OrderStatusPreparing,
		OrderStatusReady,
		OrderStatusCancelled,
		OrderStatusCompleted,
	}
}

func (s OrderStatus) String() string {
	return string(s)
}

// Scan canonicalizes legacy values on read so callers never see aliases.
func (s *OrderStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*s = CanonicalStatus(v)
	case []byte:
		*s = CanonicalStatus(string(v))
	case nil:
		*s = ""
	default:
		return fmt.Errorf("cannot scan %T into OrderStatus", value)
	}
	return nil
}

func (s OrderStatus) Value() (driver.Value, error) {
	return string(s), nil
}
