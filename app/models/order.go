package models

import (
	"time"
)

// OrderType is how the customer receives the order
type OrderType string

const (
	OrderTypeDineIn   OrderType = "Dine-in"
	OrderTypeTakeaway OrderType = "Takeaway"
)

func (t OrderType) IsValid() bool {
	return t == OrderTypeDineIn || t == OrderTypeTakeaway
}

// FeedbackStatus tracks the post-order feedback request
type FeedbackStatus string

const (
	FeedbackPending   FeedbackStatus = "Pending"
	FeedbackRequested FeedbackStatus = "Requested"
	FeedbackSubmitted FeedbackStatus = "Submitted"
	FeedbackSkipped   FeedbackStatus = "Skipped"
)

func (f FeedbackStatus) IsValid() bool {
	switch f {
	case FeedbackPending, FeedbackRequested, FeedbackSubmitted, FeedbackSkipped:
		return true
	}
	return false
}

// PrinterTarget identifies which printer a KOT was sent to
type PrinterTarget string

const (
	PrinterKitchen PrinterTarget = "KITCHEN"
	PrinterAdmin   PrinterTarget = "ADMIN"
	PrinterBoth    PrinterTarget = "BOTH"
)

func (p PrinterTarget) IsValid() bool {
	return p == PrinterKitchen || p == PrinterAdmin || p == PrinterBoth
}

// DefaultCountdownSeconds is the preparation countdown shown to the customer.
const DefaultCountdownSeconds = 900

// Order represents one customer order within a visit
type Order struct {
	ID                    uint           `gorm:"primaryKey" json:"id"`
	OrderID               string         `gorm:"uniqueIndex;size:20" json:"order_id"`
	UserID                string         `gorm:"index;not null" json:"user_id"`
	CustomerName          string         `json:"customer_name"`
	SessionID             string         `gorm:"index:idx_orders_session_created,priority:1;not null" json:"session_id"`
	Items                 []OrderItem    `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	TotalAmount           float64        `json:"total_amount"`
	GrossTotal            *float64       `json:"gross_total,omitempty"` // nil on orders placed before gross totals were recorded
	DiscountAmount        float64        `json:"discount_amount"`
	CouponCode            string         `json:"coupon_code,omitempty"`
	OrderType             OrderType      `gorm:"size:16;default:'Dine-in'" json:"order_type"`
	TableNumber           string         `json:"table_number,omitempty"`
	IsDelivery            bool           `gorm:"default:false" json:"is_delivery"`
	DeliveryAddress       string         `json:"delivery_address,omitempty"`
	Status                OrderStatus    `gorm:"index;size:16;default:'PLACED'" json:"status"`
	FeedbackStatus        FeedbackStatus `gorm:"size:16;default:'Pending'" json:"feedback_status"`
	CountdownSeconds      int            `gorm:"default:900" json:"countdown_seconds"`
	PreviousOrderSnapshot *OrderSnapshot `gorm:"serializer:json" json:"previous_order_snapshot,omitempty"`
	KOTPrinted            bool           `gorm:"default:false" json:"kot_printed"`
	KOTHistory            []KOTEntry     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"kot_history"`
	CreatedAt             time.Time      `gorm:"index:idx_orders_session_created,priority:2,sort:desc;index" json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// EffectiveGrossTotal returns the pre-discount subtotal, falling back to the
// payable total when none was recorded.
func (o *Order) EffectiveGrossTotal() float64 {
	if o.GrossTotal != nil && *o.GrossTotal != 0 {
		return *o.GrossTotal
	}
	return o.TotalAmount
}

// OrderItem represents a line in an order
type OrderItem struct {
	ID             uint     `gorm:"primaryKey" json:"id"`
	OrderID        uint     `gorm:"index" json:"-"`
	ItemID         string   `json:"item_id,omitempty"` // menu item reference
	Name           string   `gorm:"not null" json:"name"`
	Quantity       int      `json:"quantity"`
	Price          float64  `json:"price"` // unit price
	Customizations []string `gorm:"serializer:json" json:"customizations"`
}

// Subtotal returns quantity times unit price
func (i OrderItem) Subtotal() float64 {
	return float64(i.Quantity) * i.Price
}

// OrderSnapshot is the state of an order before a post-placement edit
type OrderSnapshot struct {
	Items          []OrderItem `json:"items"`
	TotalAmount    float64     `json:"total_amount"`
	GrossTotal     *float64    `json:"gross_total,omitempty"`
	DiscountAmount float64     `json:"discount_amount"`
	CouponCode     string      `json:"coupon_code,omitempty"`
	ModifiedAt     time.Time   `json:"modified_at"`
	PreviousStatus OrderStatus `json:"previous_status"`
}

// KOTItem is one line as it appeared on a printed ticket
type KOTItem struct {
	ItemID         string   `json:"item_id,omitempty"`
	Name           string   `json:"name"`
	Quantity       int      `json:"quantity"`
	Customizations []string `json:"customizations,omitempty"`
}

// KOTEntry records one kitchen order ticket print
type KOTEntry struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	OrderID      uint          `gorm:"index" json:"-"`
	PrintedAt    time.Time     `json:"printed_at"`
	PrintedItems []KOTItem     `gorm:"serializer:json" json:"printed_items"`
	PrintID      string        `gorm:"index" json:"print_id"`
	PrinterType  PrinterTarget `gorm:"size:8;default:'BOTH'" json:"printer_type"`
}

// PrinterConfig represents a configured ticket printer
type PrinterConfig struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"uniqueIndex;not null" json:"name"`
	Type       string    `json:"type"`    // "network", "usb", "serial", "file", "spool"
	Address    string    `json:"address"` // IP, device path, file path or spooler queue name
	Port       int       `json:"port"`    // For network printers
	Model      string    `json:"model"`
	PaperWidth int       `gorm:"default:80" json:"paper_width"` // 58mm, 80mm
	IsDefault  bool      `json:"is_default"`
	IsActive   bool      `gorm:"default:true" json:"is_active"`
	AutoCut    bool      `gorm:"default:true" json:"auto_cut"`
	PrintQR    bool      `gorm:"default:true" json:"print_qr"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
