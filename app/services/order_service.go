package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"OrderDesk/app/apperrors"
	"OrderDesk/app/database"
	"OrderDesk/app/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateOrderRequest is a customer's order as submitted
type CreateOrderRequest struct {
	UserID           string             `json:"user_id"`
	CustomerName     string             `json:"customer_name"`
	Items            []models.OrderItem `json:"items"`
	TotalAmount      float64            `json:"total_amount"`
	GrossTotal       *float64           `json:"gross_total"`
	DiscountAmount   float64            `json:"discount_amount"`
	CouponCode       string             `json:"coupon_code"`
	OrderType        models.OrderType   `json:"order_type"`
	TableNumber      string             `json:"table_number"`
	IsDelivery       bool               `json:"is_delivery"`
	DeliveryAddress  string             `json:"delivery_address"`
	CountdownSeconds int                `json:"countdown_seconds"`
}

// Validate checks the request against the ordering rules
func (r *CreateOrderRequest) Validate() error {
	if len(r.Items) == 0 {
		return apperrors.NewValidationError("No order items").WithField("items")
	}
	if strings.TrimSpace(r.UserID) == "" {
		return apperrors.NewValidationError("user id is required").WithField("user_id")
	}
	if !r.OrderType.IsValid() {
		return apperrors.NewValidationError(fmt.Sprintf("invalid order type %q", r.OrderType)).WithField("order_type")
	}
	switch r.OrderType {
	case models.OrderTypeDineIn:
		if strings.TrimSpace(r.TableNumber) == "" {
			return apperrors.NewValidationError("table number is required for dine-in orders").WithField("table_number")
		}
		if r.IsDelivery {
			return apperrors.NewValidationError("delivery is only available for takeaway orders").WithField("is_delivery")
		}
	case models.OrderTypeTakeaway:
		if r.TableNumber != "" {
			return apperrors.NewValidationError("table number is only valid for dine-in orders").WithField("table_number")
		}
		if r.IsDelivery && strings.TrimSpace(r.DeliveryAddress) == "" {
			return apperrors.NewValidationError("delivery address is required for delivery orders").WithField("delivery_address")
		}
	}
	if r.TotalAmount < 0 || r.DiscountAmount < 0 || (r.GrossTotal != nil && *r.GrossTotal < 0) {
		return apperrors.NewValidationError("amounts must not be negative").WithField("total_amount")
	}
	return validateItems(r.Items)
}

func validateItems(items []models.OrderItem) error {
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(item.Name) == "" {
			return apperrors.NewValidationError("item name is required").WithField(field)
		}
		if item.Quantity <= 0 {
			return apperrors.NewValidationError(fmt.Sprintf("invalid quantity for %s", item.Name)).WithField(field)
		}
		if item.Price < 0 {
			return apperrors.NewValidationError(fmt.Sprintf("invalid price for %s", item.Name)).WithField(field)
		}
	}
	return nil
}

// UpdateStatusRequest changes the lifecycle and/or feedback status of one order
type UpdateStatusRequest struct {
	Status         string                `json:"status"`
	FeedbackStatus models.FeedbackStatus `json:"feedback_status"`
}

// UpdateItemsRequest modifies a placed order. Nil fields are left unchanged.
type UpdateItemsRequest struct {
	Items          []models.OrderItem `json:"items"`
	TotalAmount    *float64           `json:"total_amount"`
	GrossTotal     *float64           `json:"gross_total"`
	DiscountAmount *float64           `json:"discount_amount"`
	CouponCode     *string            `json:"coupon_code"`
}

// ConfirmPrintRequest records a successful KOT print
type ConfirmPrintRequest struct {
	OrderIDs     []string             `json:"order_ids"`
	PrintedItems []models.KOTItem     `json:"printed_items"`
	PrintID      string               `json:"print_id"`
	PrinterType  models.PrinterTarget `json:"printer_type"`
}

// AcceptedHook runs after an order was moved to ACCEPTED
type AcceptedHook func(ctx context.Context, order *models.Order)

// OrderService handles the order lifecycle
type OrderService struct {
	*BaseService
	sequencer  *OrderIDSequencer
	sessions   *SessionManager
	events     EventSink
	onAccepted AcceptedHook
}

// NewOrderService creates a new order service. events may be nil.
func NewOrderService(db *gorm.DB, sequencer *OrderIDSequencer, sessions *SessionManager, events EventSink) *OrderService {
	if events == nil {
		events = NopSink{}
	}
	return &OrderService{
		BaseService: NewBaseService(db),
		sequencer:   sequencer,
		sessions:    sessions,
		events:      events,
	}
}

// SetAcceptedHook registers the callback run when an order is accepted
func (s *OrderService) SetAcceptedHook(hook AcceptedHook) {
	log.Printf("OrderService: Setting accepted hook (hook=%v)", hook != nil)
	s.onAccepted = hook
}

func (s *OrderService) now() time.Time {
	return s.sequencer.Now().UTC()
}

// CreateOrder validates and stores a new order in the user's current session
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.EnsureDB(); err != nil {
		return nil, err
	}

	orderID, err := s.sequencer.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate order id: %w", err)
	}
	sessionID, err := s.sessions.CurrentSessionID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	countdown := req.CountdownSeconds
	if countdown <= 0 {
		countdown = models.DefaultCountdownSeconds
	}

	items := make([]models.OrderItem, len(req.Items))
	for i, item := range req.Items {
		item.ID = 0
		item.OrderID = 0
		items[i] = item
	}

	now := s.now()
	order := &models.Order{
		OrderID:          orderID,
		UserID:           req.UserID,
		CustomerName:     req.CustomerName,
		SessionID:        sessionID,
		Items:            items,
		TotalAmount:      req.TotalAmount,
		GrossTotal:       req.GrossTotal,
		DiscountAmount:   req.DiscountAmount,
		CouponCode:       req.CouponCode,
		OrderType:        req.OrderType,
		TableNumber:      req.TableNumber,
		IsDelivery:       req.IsDelivery,
		DeliveryAddress:  req.DeliveryAddress,
		Status:           models.OrderStatusPlaced,
		FeedbackStatus:   models.FeedbackPending,
		CountdownSeconds: countdown,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.db.WithContext(ctx).Create(order).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrOrderIDCollision, orderID)
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	log.Printf("OrderService: Created order %s (session=%s, items=%d, total=%.2f)",
		order.OrderID, order.SessionID, len(order.Items), order.TotalAmount)

	s.publishSession(ctx, sessionID)
	s.events.Publish(EventNewOrder, newOrderEvent(order))
	return order, nil
}

// GetOrder returns one order by database id or order id
func (s *OrderService) GetOrder(ctx context.Context, ref string) (*models.Order, error) {
	if err := s.EnsureDB(); err != nil {
		return nil, err
	}
	return findOrder(s.db.WithContext(ctx), ref)
}

// findOrder resolves ref as an ORD- id or a numeric primary key
func findOrder(db *gorm.DB, ref string) (*models.Order, error) {
	q := db.Preload("Items").Preload("KOTHistory")

	var order models.Order
	var err error
	if IsValidOrderID(ref) {
		err = q.Where("order_id = ?", ref).First(&order).Error
	} else {
		id, perr := strconv.ParseUint(ref, 10, 64)
		if perr != nil || id == 0 {
			return nil, apperrors.NewNotFoundError("Order", ref)
		}
		err = q.First(&order, id).Error
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFoundError("Order", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

// ListOrders returns every order, newest first
func (s *OrderService) ListOrders(ctx context.Context) ([]models.Order, error) {
	if err := s.EnsureDB(); err != nil {
		return nil, err
	}
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("KOTHistory").
		Order("created_at DESC, id DESC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// SessionOrders returns the orders of a session, oldest first
func (s *OrderService) SessionOrders(ctx context.Context, sessionID string) ([]models.Order, error) {
	if err := s.EnsureDB(); err != nil {
		return nil, err
	}
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("KOTHistory").
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load session orders: %w", err)
	}
	if len(orders) == 0 {
		return nil, apperrors.NewNotFoundError("Session", sessionID)
	}
	return orders, nil
}

// GetSession returns the aggregated view of one session
func (s *OrderService) GetSession(ctx context.Context, sessionID string) (*models.SessionView, error) {
	orders, err := s.SessionOrders(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return AggregateSession(orders)
}

// GroupedSessions returns every session, most recent first
func (s *OrderService) GroupedSessions(ctx context.Context) ([]models.SessionView, error) {
	if err := s.EnsureDB(); err != nil {
		return nil, err
	}
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("KOTHistory").
		Order("created_at ASC, id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	return GroupSessions(orders), nil
}

// SessionBill returns the bill for a session's billable orders
func (s *OrderService) SessionBill(ctx context.Context, sessionID string) (*SessionBill, error) {
	orders, err := s.SessionOrders(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return BuildSessionBill(sessionID, orders, s.now())
}

// UpdateOrderStatus changes one order's status and/or feedback status and
// returns the orders of its session
func (s *OrderService) UpdateOrderStatus(ctx context.Context, ref string, req *UpdateStatusRequest) ([]models.Order, error) {
	if req.Status == "" && req.FeedbackStatus == "" {
		return nil, apperrors.NewValidationError("status or feedback status is required").WithField("status")
	}
	if req.FeedbackStatus != "" && !req.FeedbackStatus.IsValid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid feedback status %q", req.FeedbackStatus)).WithField("feedback_status")
	}

	order, err := s.GetOrder(ctx, ref)
	if err != nil {
		return nil, err
	}

	previous := order.Status
	next := previous
	updates := map[string]interface{}{}
	if req.Status != "" {
		if !models.ValidateTransition(string(previous), req.Status) {
			return nil, apperrors.NewTransitionError(string(previous), req.Status)
		}
		next = models.CanonicalStatus(req.Status)
		updates["status"] = next
	}
	if req.FeedbackStatus != "" {
		updates["feedback_status"] = req.FeedbackStatus
	}

	if err := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	order.Status = next

	log.Printf("OrderService: Order %s status %s -> %s", order.OrderID, previous, order.Status)

	sessionOrders, err := s.SessionOrders(ctx, order.SessionID)
	if err != nil {
		return nil, err
	}
	s.events.Publish(EventSessionOrderUpdate, SessionOrderUpdateEvent{SessionID: order.SessionID, Orders: sessionOrders})

	if order.Status == models.OrderStatusAccepted && previous != models.OrderStatusAccepted && s.onAccepted != nil {
		s.onAccepted(ctx, order)
	}
	return sessionOrders, nil
}

// UpdateOrderItems modifies a non-terminal order. The prior state is kept as
// a snapshot and the order goes back to CHANGED for re-acceptance.
func (s *OrderService) UpdateOrderItems(ctx context.Context, ref string, req *UpdateItemsRequest) ([]models.Order, error) {
	if req.Items != nil {
		if len(req.Items) == 0 {
			return nil, apperrors.NewValidationError("No order items").WithField("items")
		}
		if err := validateItems(req.Items); err != nil {
			return nil, err
		}
	}

	var sessionID string
	err := s.WithTransaction(ctx, func(tx *gorm.DB) error {
		order, err := findOrder(tx, ref)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return apperrors.NewValidationError(fmt.Sprintf("Cannot modify %s order", strings.ToLower(string(order.Status)))).WithField("status")
		}
		sessionID = order.SessionID

		order.PreviousOrderSnapshot = &models.OrderSnapshot{
			Items:          order.Items,
			TotalAmount:    order.TotalAmount,
			GrossTotal:     order.GrossTotal,
			DiscountAmount: order.DiscountAmount,
			CouponCode:     order.CouponCode,
			ModifiedAt:     s.now(),
			PreviousStatus: order.Status,
		}

		if req.Items != nil {
			if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderItem{}).Error; err != nil {
				return fmt.Errorf("failed to delete existing items: %w", err)
			}
			items := make([]models.OrderItem, len(req.Items))
			for i, item := range req.Items {
				item.ID = 0
				item.OrderID = order.ID
				items[i] = item
			}
			if err := tx.Create(&items).Error; err != nil {
				return fmt.Errorf("failed to create items: %w", err)
			}
			order.Items = items
		}
		if req.TotalAmount != nil {
			order.TotalAmount = *req.TotalAmount
		}
		if req.GrossTotal != nil {
			order.GrossTotal = req.GrossTotal
		}
		if req.DiscountAmount != nil {
			order.DiscountAmount = *req.DiscountAmount
		}
		if req.CouponCode != nil {
			order.CouponCode = *req.CouponCode
		}
		order.Status = models.OrderStatusChanged

		if err := tx.Omit(clause.Associations).Save(order).Error; err != nil {
			return fmt.Errorf("failed to save order: %w", err)
		}
		log.Printf("OrderService: Modified order %s (items=%d, previous=%s)",
			order.OrderID, len(order.Items), order.PreviousOrderSnapshot.PreviousStatus)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sessionOrders, err := s.SessionOrders(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.events.Publish(EventSessionOrderUpdate, SessionOrderUpdateEvent{SessionID: sessionID, Orders: sessionOrders})
	return sessionOrders, nil
}

// ConfirmPrint marks orders as printed and appends a KOT history entry to
// each. Unknown ids are skipped. Returns how many orders were updated.
func (s *OrderService) ConfirmPrint(ctx context.Context, req *ConfirmPrintRequest) (int, error) {
	if len(req.OrderIDs) == 0 {
		return 0, apperrors.NewValidationError("No order IDs provided").WithField("order_ids")
	}
	printerType := req.PrinterType
	if printerType == "" {
		printerType = models.PrinterBoth
	}
	if !printerType.IsValid() {
		return 0, apperrors.NewValidationError(fmt.Sprintf("invalid printer type %q", printerType)).WithField("printer_type")
	}

	now := s.now()
	printID := req.PrintID
	if printID == "" {
		printID = fmt.Sprintf("P-%d", now.UnixMilli())
	}
	printed := req.PrintedItems
	if printed == nil {
		printed = []models.KOTItem{}
	}

	var updated int
	var sessionID string
	err := s.WithTransaction(ctx, func(tx *gorm.DB) error {
		for _, ref := range req.OrderIDs {
			order, err := findOrder(tx, ref)
			if apperrors.IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}

			entry := models.KOTEntry{
				OrderID:      order.ID,
				PrintedAt:    now,
				PrintedItems: printed,
				PrintID:      printID,
				PrinterType:  printerType,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return fmt.Errorf("failed to record print: %w", err)
			}
			if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Update("kot_printed", true).Error; err != nil {
				return fmt.Errorf("failed to mark order printed: %w", err)
			}
			if sessionID == "" {
				sessionID = order.SessionID
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Printf("OrderService: Confirmed print %s for %d of %d orders", printID, updated, len(req.OrderIDs))
	if sessionID != "" {
		s.publishSession(ctx, sessionID)
	}
	return updated, nil
}

// publishSession sends the current orders of a session to the event sink.
// Failures are logged; the triggering write already succeeded.
func (s *OrderService) publishSession(ctx context.Context, sessionID string) {
	orders, err := s.SessionOrders(ctx, sessionID)
	if err != nil {
		log.Printf("OrderService: Failed to load session %s for broadcast: %v", sessionID, err)
		return
	}
	s.events.Publish(EventSessionOrderUpdate, SessionOrderUpdateEvent{SessionID: sessionID, Orders: orders})
}
