package services

import (
	"fmt"
	"strings"
	"time"

	"OrderDesk/app/models"
)

// KOTTicket is the structured content of one kitchen order ticket
type KOTTicket struct {
	Restaurant      string               `json:"restaurant"`
	Target          models.PrinterTarget `json:"target"`
	SessionID       string               `json:"session_id"`
	OrderIDs        []string             `json:"order_ids"`
	OrderType       models.OrderType     `json:"order_type"`
	TableNumber     string               `json:"table_number,omitempty"`
	CustomerName    string               `json:"customer_name,omitempty"`
	IsDelivery      bool                 `json:"is_delivery"`
	DeliveryAddress string               `json:"delivery_address,omitempty"`
	Items           []models.KOTItem     `json:"items"`
	PrintedAt       time.Time            `json:"printed_at"`
}

// Reference is the short number called out in the kitchen: the last six
// characters of the session id, upper-cased
func (t KOTTicket) Reference() string {
	ref := t.SessionID
	if len(ref) > 6 {
		ref = ref[len(ref)-6:]
	}
	return strings.ToUpper(ref)
}

// KOTRenderOptions controls the physical layout
type KOTRenderOptions struct {
	PaperWidth int
	AutoCut    bool
	PrintQR    bool
}

// BuildKOTTicket collects the items of orders into one ticket for target.
// Cancelled orders are skipped.
func BuildKOTTicket(restaurant string, target models.PrinterTarget, orders []models.Order, now time.Time) (*KOTTicket, error) {
	view, err := AggregateSession(orders)
	if err != nil {
		return nil, err
	}

	ticket := &KOTTicket{
		Restaurant:      restaurant,
		Target:          target,
		SessionID:       view.SessionID,
		OrderType:       view.OrderType,
		TableNumber:     view.TableNumber,
		CustomerName:    view.CustomerName,
		IsDelivery:      view.IsDelivery,
		DeliveryAddress: view.DeliveryAddress,
		PrintedAt:       now,
	}

	for _, o := range orders {
		if o.Status == models.OrderStatusCancelled {
			continue
		}
		ticket.OrderIDs = append(ticket.OrderIDs, o.OrderID)
		ticket.Items = append(ticket.Items, kotItems(o.Items)...)
	}
	if len(ticket.Items) == 0 {
		return nil, fmt.Errorf("nothing to print for session %s", view.SessionID)
	}
	return ticket, nil
}

func kotItems(items []models.OrderItem) []models.KOTItem {
	out := make([]models.KOTItem, 0, len(items))
	for _, item := range items {
		out = append(out, models.KOTItem{
			ItemID:         item.ItemID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			Customizations: item.Customizations,
		})
	}
	return out
}

// RenderKOT lays the ticket out as an ESC/POS document
func RenderKOT(ticket *KOTTicket, opts KOTRenderOptions) ([]byte, error) {
	d := newEscposDoc(opts.PaperWidth)
	d.init()

	// Header
	d.setAlign("center")
	d.setEmphasize(true)
	d.setSize(2, 2)
	d.writeLine(strings.ToUpper(ticket.Restaurant))
	d.setSize(1, 1)
	d.writeLine(fmt.Sprintf("%s KOT", ticket.Target))
	d.setEmphasize(false)

	d.setAlign("left")
	d.separator()
	d.setEmphasize(true)
	d.setSize(1, 2)
	d.writeLine(fmt.Sprintf("Order #: %s", ticket.Reference()))
	d.setSize(1, 1)
	d.setEmphasize(false)
	if len(ticket.OrderIDs) > 0 {
		d.writeLine(strings.Join(ticket.OrderIDs, ", "))
	}
	d.writeLine(fmt.Sprintf("Date: %s  Time: %s",
		ticket.PrintedAt.Format("02/01/2006"), ticket.PrintedAt.Format("15:04")))

	if ticket.OrderType == models.OrderTypeDineIn && ticket.TableNumber != "" {
		d.setEmphasize(true)
		d.setSize(1, 2)
		d.writeLine(fmt.Sprintf("Table: %s", ticket.TableNumber))
		d.setSize(1, 1)
		d.setEmphasize(false)
	} else {
		d.writeLine(fmt.Sprintf("Type: %s", ticket.OrderType))
	}
	if ticket.IsDelivery {
		d.writeLine(fmt.Sprintf("Delivery: %s", ticket.DeliveryAddress))
	}
	if ticket.CustomerName != "" {
		d.writeLine(fmt.Sprintf("Customer: %s", ticket.CustomerName))
	}

	// Items
	d.separator()
	for _, item := range ticket.Items {
		d.setEmphasize(true)
		d.writeLine(fmt.Sprintf("%d x %s", item.Quantity, item.Name))
		d.setEmphasize(false)
		if len(item.Customizations) > 0 {
			d.writeLine(fmt.Sprintf("   (%s)", strings.Join(item.Customizations, ", ")))
		}
	}

	// Footer
	d.separator()
	d.setAlign("center")
	d.writeLine("*** End of Order ***")

	if opts.PrintQR && len(ticket.OrderIDs) > 0 {
		if err := d.printQRCode(ticket.OrderIDs[0], 160); err != nil {
			return nil, err
		}
	}

	if opts.AutoCut {
		d.cut()
	} else {
		d.lineFeed()
		d.lineFeed()
		d.lineFeed()
	}
	return d.Bytes(), nil
}
