package services

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"OrderDesk/app/apperrors"
	"OrderDesk/app/models"
)

// BillLine is one merged line on a session bill
type BillLine struct {
	Name           string   `json:"name"`
	Customizations []string `json:"customizations,omitempty"`
	Quantity       int      `json:"quantity"`
	UnitPrice      float64  `json:"unit_price"`
	Amount         float64  `json:"amount"`
}

// SessionBill is what the customer pays for a visit
type SessionBill struct {
	SessionID      string     `json:"session_id"`
	CustomerName   string     `json:"customer_name"`
	OrderType      string     `json:"order_type"`
	TableNumber    string     `json:"table_number,omitempty"`
	OrderIDs       []string   `json:"order_ids"`
	Lines          []BillLine `json:"lines"`
	GrossTotal     float64    `json:"gross_total"`
	DiscountAmount float64    `json:"discount_amount"`
	TotalAmount    float64    `json:"total_amount"`
	CouponCodes    []string   `json:"coupon_codes,omitempty"`
	GeneratedAt    time.Time  `json:"generated_at"`
}

// BillableOrders keeps the orders that are charged: accepted, completed and
// the kitchen sub-states. Placed, changed and cancelled orders are left out.
func BillableOrders(orders []models.Order) []models.Order {
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status.IsBillable() {
			out = append(out, o)
		}
	}
	return out
}

// BuildSessionBill merges the billable orders of a session into one bill.
// Lines with the same name, customizations and unit price are combined.
func BuildSessionBill(sessionID string, orders []models.Order, now time.Time) (*SessionBill, error) {
	billable := BillableOrders(orders)
	if len(billable) == 0 {
		return nil, apperrors.NewValidationError("session has no billable orders").WithField("session_id")
	}

	bill := &SessionBill{
		SessionID:   sessionID,
		OrderType:   string(billable[0].OrderType),
		TableNumber: billable[0].TableNumber,
		GeneratedAt: now,
	}

	lines := make(map[string]*BillLine)
	var keys []string
	coupons := make(map[string]bool)

	for _, o := range billable {
		bill.OrderIDs = append(bill.OrderIDs, o.OrderID)
		bill.GrossTotal += o.EffectiveGrossTotal()
		bill.DiscountAmount += o.DiscountAmount
		bill.TotalAmount += o.TotalAmount
		if bill.CustomerName == "" {
			bill.CustomerName = o.CustomerName
		}
		if o.OrderType == models.OrderTypeDineIn {
			bill.OrderType = string(o.OrderType)
			if o.TableNumber != "" {
				bill.TableNumber = o.TableNumber
			}
		}
		if o.CouponCode != "" && !coupons[o.CouponCode] {
			coupons[o.CouponCode] = true
			bill.CouponCodes = append(bill.CouponCodes, o.CouponCode)
		}

		for _, item := range o.Items {
			key := billLineKey(item)
			line, ok := lines[key]
			if !ok {
				line = &BillLine{
					Name:           item.Name,
					Customizations: item.Customizations,
					UnitPrice:      item.Price,
				}
				lines[key] = line
				keys = append(keys, key)
			}
			line.Quantity += item.Quantity
			line.Amount += item.Subtotal()
		}
	}

	for _, key := range keys {
		bill.Lines = append(bill.Lines, *lines[key])
	}
	return bill, nil
}

func billLineKey(item models.OrderItem) string {
	custom := append([]string(nil), item.Customizations...)
	sort.Strings(custom)
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(item.Name)))
	b.WriteString("|")
	b.WriteString(strings.Join(custom, ","))
	b.WriteString("|")
	b.WriteString(strconv.FormatFloat(item.Price, 'f', -1, 64))
	return b.String()
}
