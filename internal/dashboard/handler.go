package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/jogardn/office-meals/internal/gateway"
	"github.com/jogardn/office-meals/internal/lifecycle"
	"github.com/jogardn/office-meals/internal/localcache"
	"github.com/jogardn/office-meals/internal/store"
	"github.com/jogardn/office-meals/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Board struct {
	Active    []models.Order             `json:"active"`
	History   []models.Order             `json:"history"`
	Counts    map[models.OrderStatus]int `json:"counts"`
	Revenue   decimal.Decimal            `json:"revenue"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

type Response struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Order   *models.Order `json:"order,omitempty"`
}

// Handler serves the agent's board from the latest orders snapshot and
// exposes the order workflow operations over HTTP.
type Handler struct {
	store   *store.Service
	logger  *logrus.Logger
	mutex   sync.RWMutex
	orders  []models.Order
	updated time.Time
}

func NewHandler(svc *store.Service, logger *logrus.Logger) *Handler {
	return &Handler{
		store:  svc,
		logger: logger,
		orders: []models.Order{},
	}
}

// Update replaces the snapshot. It is meant to be passed to SubscribeOrders.
func (h *Handler) Update(orders []models.Order) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.orders = orders
	h.updated = time.Now()
}

func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/board", h.GetBoard).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/connectivity", h.GetConnectivity).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/divergence", h.GetDivergence).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/orders/{id}/advance", h.AdvanceOrder).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/orders/{id}/paid", h.MarkPaid).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/orders/{id}/status", h.SetStatus).Methods("PUT", "OPTIONS")
	router.HandleFunc("/api/orders/{id}/lines/{index:[0-9]+}/toggle", h.ToggleLine).Methods("POST", "OPTIONS")
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "meal-agent",
		"reachable": h.store.Client().Tracker().IsReachable(),
	})
}

// GetBoard accepts optional requester and runner query parameters.
func (h *Handler) GetBoard(w http.ResponseWriter, r *http.Request) {
	h.mutex.RLock()
	orders := append([]models.Order(nil), h.orders...)
	updated := h.updated
	h.mutex.RUnlock()

	if requester := r.URL.Query().Get("requester"); requester != "" {
		orders = lifecycle.FilterByRequester(orders, requester)
	}
	if runner := r.URL.Query().Get("runner"); runner != "" {
		orders = lifecycle.FilterByRunner(orders, runner)
	}
	lifecycle.SortNewestFirst(orders)

	active, history := lifecycle.Partition(orders)
	h.respondWithJSON(w, http.StatusOK, Board{
		Active:    active,
		History:   history,
		Counts:    lifecycle.StatusCounts(orders),
		Revenue:   lifecycle.Revenue(orders),
		UpdatedAt: updated,
	})
}

func (h *Handler) GetConnectivity(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.store.Client().Tracker().Metrics())
}

// GetDivergence renders the cache versus remote report; format=summary
// returns plain text.
func (h *Handler) GetDivergence(w http.ResponseWriter, r *http.Request) {
	report, err := h.store.Divergence(r.Context())
	if err != nil {
		h.logger.WithError(err).Warn("Failed to compute divergence")
		h.respondWithError(w, statusFor(err), err.Error())
		return
	}

	format := r.URL.Query().Get("format")
	if format != "summary" {
		h.respondWithJSON(w, http.StatusOK, report)
		return
	}

	body, err := h.store.Analyzer().Render(report, format)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *Handler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "advance", h.store.AdvanceOrder)
}

func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "paid", h.store.MarkOrderPaid)
}

func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.apply(w, r, "status", func(ctx context.Context, o models.Order) (models.Order, error) {
		return h.store.SetOrderStatus(ctx, o, req.Status)
	})
}

func (h *Handler) ToggleLine(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid line index")
		return
	}

	h.apply(w, r, "toggle", func(ctx context.Context, o models.Order) (models.Order, error) {
		return h.store.ToggleOrderLine(ctx, o, index)
	})
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, models.Order) (models.Order, error)) {
	id := mux.Vars(r)["id"]
	logger := h.logger.WithFields(logrus.Fields{"order_id": id, "op": op})

	order, err := h.findOrder(r, id)
	if err != nil {
		logger.WithError(err).Warn("Order lookup failed")
		h.respondWithError(w, statusFor(err), err.Error())
		return
	}

	updated, err := fn(r.Context(), order)
	if err != nil {
		logger.WithError(err).Warn("Order operation rejected")
		h.respondWithError(w, statusFor(err), err.Error())
		return
	}

	logger.WithField("status", updated.Status).Info("Order updated")
	h.respondWithJSON(w, http.StatusOK, Response{Success: true, Order: &updated})
}

func (h *Handler) findOrder(r *http.Request, id string) (models.Order, error) {
	orders, err := h.store.ListOrders(r.Context())
	if err != nil {
		return models.Order{}, err
	}
	for _, o := range orders {
		if o.ID == id {
			return o, nil
		}
	}
	return models.Order{}, gateway.ErrNotFound
}

func statusFor(err error) int {
	var statusErr *gateway.StatusError
	switch {
	case errors.Is(err, lifecycle.ErrValidation), errors.Is(err, lifecycle.ErrLineOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrIllegalTransition), errors.Is(err, lifecycle.ErrNotEditable):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrNotFound), errors.Is(err, localcache.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gateway.ErrRemoteUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &statusErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, Response{Success: false, Message: message})
}
