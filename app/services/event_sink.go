package services

import (
	"sync"
	"time"

	"OrderDesk/app/models"
)

// Event names published by the order service
const (
	EventNewOrder           = "newOrder"
	EventSessionOrderUpdate = "sessionOrderUpdate"
)

// EventSink receives order events. Delivery is fire-and-forget: Publish must
// not block on slow consumers and reports no errors.
type EventSink interface {
	Publish(event string, payload interface{})
}

// NewOrderEvent summarizes a freshly placed order for the admin and kitchen screens
type NewOrderEvent struct {
	ID              uint      `json:"id"`
	OrderID         string    `json:"order_id"`
	SessionID       string    `json:"session_id"`
	TableNumber     string    `json:"table_number,omitempty"`
	OrderType       string    `json:"order_type"`
	IsDelivery      bool      `json:"is_delivery"`
	DeliveryAddress string    `json:"delivery_address,omitempty"`
	TotalAmount     float64   `json:"total_amount"`
	ItemsCount      int       `json:"items_count"`
	CustomerName    string    `json:"customer_name"`
	CreatedAt       time.Time `json:"created_at"`
}

func newOrderEvent(o *models.Order) NewOrderEvent {
	name := o.CustomerName
	if name == "" {
		name = "Guest"
	}
	return NewOrderEvent{
		ID:              o.ID,
		OrderID:         o.OrderID,
		SessionID:       o.SessionID,
		TableNumber:     o.TableNumber,
		OrderType:       string(o.OrderType),
		IsDelivery:      o.IsDelivery,
		DeliveryAddress: o.DeliveryAddress,
		TotalAmount:     o.TotalAmount,
		ItemsCount:      len(o.Items),
		CustomerName:    name,
		CreatedAt:       o.CreatedAt,
	}
}

// SessionOrderUpdateEvent carries every order of a session, oldest first
type SessionOrderUpdateEvent struct {
	SessionID string         `json:"session_id"`
	Orders    []models.Order `json:"orders"`
}

// NopSink drops every event
type NopSink struct{}

func (NopSink) Publish(string, interface{}) {}

// MultiSink fans events out to several sinks in registration order
type MultiSink struct {
	mu    sync.RWMutex
	sinks []EventSink
}

func NewMultiSink(sinks ...EventSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		m.Add(s)
	}
	return m
}

// Add registers another sink. Nil sinks are ignored.
func (m *MultiSink) Add(s EventSink) {
	if s == nil {
		return
	}
	m.mu.Lock()
	m.sinks = append(m.sinks, s)
	m.mu.Unlock()
}

func (m *MultiSink) Publish(event string, payload interface{}) {
	m.mu.RLock()
	sinks := m.sinks
	m.mu.RUnlock()
	for _, s := range sinks {
		s.Publish(event, payload)
	}
}
