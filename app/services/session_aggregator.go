package services

import (
	"sort"

	"OrderDesk/app/apperrors"
	"OrderDesk/app/models"
)

// AggregateSession collapses the orders of one visit into a SessionView.
//
// orders must be non-empty and in their natural (creation) order; ties in
// status priority are won by the earliest order. The result is recomputed
// from the input on every call.
func AggregateSession(orders []models.Order) (*models.SessionView, error) {
	if len(orders) == 0 {
		return nil, apperrors.ErrEmptySession
	}

	first := orders[0]
	view := &models.SessionView{
		SessionID:    first.SessionID,
		UserID:       first.UserID,
		CustomerName: first.CustomerName,
		Orders:       orders,
		OrderCount:   len(orders),
		OrderType:    first.OrderType,
		TableNumber:  first.TableNumber,
		KOTPrinted:   true,
		CreatedAt:    first.CreatedAt,
		UpdatedAt:    first.UpdatedAt,
	}

	for i := range orders {
		o := &orders[i]

		// Totals include every order, terminal ones too
		view.TotalAmount += o.TotalAmount
		view.GrossTotal += o.EffectiveGrossTotal()
		view.DiscountAmount += o.DiscountAmount

		if o.OrderType == models.OrderTypeDineIn {
			view.OrderType = models.OrderTypeDineIn
			if o.TableNumber != "" {
				view.TableNumber = o.TableNumber
			}
		}
		if o.IsDelivery {
			view.IsDelivery = true
			if o.DeliveryAddress != "" {
				view.DeliveryAddress = o.DeliveryAddress
			}
		}
		if view.CustomerName == "" && o.CustomerName != "" {
			view.CustomerName = o.CustomerName
		}
		if !o.KOTPrinted {
			view.KOTPrinted = false
		}
		if o.CreatedAt.Before(view.CreatedAt) {
			view.CreatedAt = o.CreatedAt
		}
		if o.UpdatedAt.After(view.UpdatedAt) {
			view.UpdatedAt = o.UpdatedAt
		}
	}

	view.Status = worstStatus(orders)
	return view, nil
}

// worstStatus picks the status needing the most attention. Terminal orders
// only count when nothing else is open.
func worstStatus(orders []models.Order) models.OrderStatus {
	consider := make([]*models.Order, 0, len(orders))
	for i := range orders {
		if !orders[i].Status.IsTerminal() {
			consider = append(consider, &orders[i])
		}
	}
	if len(consider) == 0 {
		for i := range orders {
			consider = append(consider, &orders[i])
		}
	}

	worst := models.OrderStatusCompleted
	for _, o := range consider {
		if o.Status.Priority() > worst.Priority() {
			worst = o.Status
		}
	}
	return worst
}

// GroupSessions splits a flat order list by session and aggregates each group.
// Member orders keep the order they had in the input; sessions are returned
// newest first.
func GroupSessions(orders []models.Order) []models.SessionView {
	groups := make(map[string][]models.Order)
	var keys []string
	for _, o := range orders {
		if _, ok := groups[o.SessionID]; !ok {
			keys = append(keys, o.SessionID)
		}
		groups[o.SessionID] = append(groups[o.SessionID], o)
	}

	views := make([]models.SessionView, 0, len(keys))
	for _, key := range keys {
		view, err := AggregateSession(groups[key])
		if err != nil {
			continue
		}
		views = append(views, *view)
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
	return views
}
