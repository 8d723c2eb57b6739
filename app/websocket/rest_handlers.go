package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"OrderDesk/app/apperrors"
	"OrderDesk/app/models"
	"OrderDesk/app/services"

	"golang.org/x/crypto/bcrypt"
)

// OrderAPI is the part of the order service the REST layer calls
type OrderAPI interface {
	CreateOrder(ctx context.Context, req *services.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, ref string) (*models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	GroupedSessions(ctx context.Context) ([]models.SessionView, error)
	GetSession(ctx context.Context, sessionID string) (*models.SessionView, error)
	SessionBill(ctx context.Context, sessionID string) (*services.SessionBill, error)
	UpdateOrderStatus(ctx context.Context, ref string, req *services.UpdateStatusRequest) ([]models.Order, error)
	UpdateOrderItems(ctx context.Context, ref string, req *services.UpdateItemsRequest) ([]models.Order, error)
	ConfirmPrint(ctx context.Context, req *services.ConfirmPrintRequest) (int, error)
}

// AnalyticsAPI serves the admin dashboard
type AnalyticsAPI interface {
	GetAnalytics(ctx context.Context, rangeKey string) (*services.Analytics, error)
}

// RESTHandlers provides the HTTP order API for customer, kitchen and admin apps
type RESTHandlers struct {
	orders       OrderAPI
	analytics    AnalyticsAPI
	adminPINHash []byte
}

// NewRESTHandlers creates a new REST handlers instance. An empty
// adminPINHash leaves the admin routes open.
func NewRESTHandlers(orders OrderAPI, analytics AnalyticsAPI, adminPINHash string) *RESTHandlers {
	h := &RESTHandlers{orders: orders, analytics: analytics}
	if adminPINHash != "" {
		h.adminPINHash = []byte(adminPINHash)
	}
	return h
}

// Register adds every route to mux
func (h *RESTHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.HandleCreateOrder)
	mux.HandleFunc("GET /api/orders", h.requireAdmin(h.HandleListOrders))
	mux.HandleFunc("GET /api/orders/grouped", h.requireAdmin(h.HandleGroupedOrders))
	mux.HandleFunc("GET /api/orders/analytics", h.requireAdmin(h.HandleAnalytics))
	mux.HandleFunc("PUT /api/orders/print-success", h.requireAdmin(h.HandlePrintSuccess))
	mux.HandleFunc("GET /api/orders/{id}", h.HandleGetOrder)
	mux.HandleFunc("PUT /api/orders/{id}/status", h.requireAdmin(h.HandleUpdateStatus))
	mux.HandleFunc("PUT /api/orders/{id}/update", h.HandleUpdateItems)
	mux.HandleFunc("GET /api/sessions/{id}", h.HandleGetSession)
	mux.HandleFunc("GET /api/sessions/{id}/bill", h.HandleSessionBill)
}

// withCORS sets the CORS headers on every response and answers preflight
// requests before routing
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Admin-Pin")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin checks the X-Admin-Pin header against the configured hash
func (h *RESTHandlers) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.adminPINHash != nil {
			pin := r.Header.Get("X-Admin-Pin")
			if pin == "" || bcrypt.CompareHashAndPassword(h.adminPINHash, []byte(pin)) != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"message": "Invalid admin PIN"})
				return
			}
		}
		next(w, r)
	}
}

// HandleCreateOrder creates an order for the caller's session
func (h *RESTHandlers) HandleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req services.CreateOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), &req)
	if err != nil {
		writeServiceError(w, "creating order", err)
		return
	}

	log.Printf("REST API: Order %s created for session %s", order.OrderID, order.SessionID)
	writeJSON(w, http.StatusCreated, order)
}

// HandleListOrders returns every order, newest first
func (h *RESTHandlers) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(r.Context())
	if err != nil {
		writeServiceError(w, "listing orders", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// HandleGroupedOrders returns every session with its aggregated view
func (h *RESTHandlers) HandleGroupedOrders(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.orders.GroupedSessions(r.Context())
	if err != nil {
		writeServiceError(w, "grouping orders", err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// HandleAnalytics returns dashboard figures for ?range=1d|7d|30d
func (h *RESTHandlers) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	if h.analytics == nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"message": "Analytics not enabled"})
		return
	}
	stats, err := h.analytics.GetAnalytics(r.Context(), r.URL.Query().Get("range"))
	if err != nil {
		writeServiceError(w, "loading analytics", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandlePrintSuccess records a KOT printed by an external print client
func (h *RESTHandlers) HandlePrintSuccess(w http.ResponseWriter, r *http.Request) {
	var req services.ConfirmPrintRequest
	if !decodeBody(w, r, &req) {
		return
	}

	count, err := h.orders.ConfirmPrint(r.Context(), &req)
	if err != nil {
		writeServiceError(w, "confirming print", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":       "Print status updated",
		"updated_count": count,
	})
}

// HandleGetOrder returns one order by ORD- id or primary key
func (h *RESTHandlers) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "fetching order", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// HandleUpdateStatus moves an order through the status workflow and returns
// the orders of its session
func (h *RESTHandlers) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req services.UpdateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	orders, err := h.orders.UpdateOrderStatus(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		writeServiceError(w, "updating order status", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// HandleUpdateItems replaces the items of an open order
func (h *RESTHandlers) HandleUpdateItems(w http.ResponseWriter, r *http.Request) {
	var req services.UpdateItemsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	orders, err := h.orders.UpdateOrderItems(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		writeServiceError(w, "updating order items", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// HandleGetSession returns the aggregated view of one session
func (h *RESTHandlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.orders.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "fetching session", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleSessionBill returns the combined bill of a session
func (h *RESTHandlers) HandleSessionBill(w http.ResponseWriter, r *http.Request) {
	bill, err := h.orders.SessionBill(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "building bill", err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		log.Printf("REST API: Error decoding request: %v", err)
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"message": "Invalid request body"})
		return false
	}
	return true
}

// writeServiceError maps service errors onto HTTP statuses
func writeServiceError(w http.ResponseWriter, action string, err error) {
	var transition *apperrors.TransitionError
	var validation *apperrors.ValidationError

	switch {
	case errors.As(err, &transition):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"message":         transition.Error(),
			"currentStatus":   transition.Current,
			"requestedStatus": transition.Requested,
		})
	case errors.As(err, &validation):
		body := map[string]interface{}{"message": validation.Message}
		if validation.Field != "" {
			body["field"] = validation.Field
		}
		writeJSON(w, http.StatusBadRequest, body)
	case apperrors.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"message": err.Error()})
	case errors.Is(err, apperrors.ErrOrderIDCollision):
		writeJSON(w, http.StatusConflict, map[string]interface{}{"message": "Order id already taken, please retry"})
	default:
		log.Printf("REST API: Error %s: %v", action, err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"message": "Internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("REST API: Error encoding response: %v", err)
	}
}
