package models

import "time"

// SessionView is the derived view of all orders sharing a session id.
// It is never persisted.
type SessionView struct {
	SessionID       string      `json:"session_id"`
	UserID          string      `json:"user_id"`
	CustomerName    string      `json:"customer_name"`
	Orders          []Order     `json:"orders"`
	OrderCount      int         `json:"order_count"`
	TotalAmount     float64     `json:"total_amount"`
	GrossTotal      float64     `json:"gross_total"`
	DiscountAmount  float64     `json:"discount_amount"`
	Status          OrderStatus `json:"status"`
	OrderType       OrderType   `json:"order_type"`
	TableNumber     string      `json:"table_number,omitempty"`
	IsDelivery      bool        `json:"is_delivery"`
	DeliveryAddress string      `json:"delivery_address,omitempty"`
	KOTPrinted      bool        `json:"kot_printed"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
