package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sqkstwj/juzhondianping/internal/domain"
	"github.com/sqkstwj/juzhondianping/internal/seckill"
	"github.com/sqkstwj/juzhondianping/internal/shop"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	shops   *shop.Service
	seckill *seckill.Service
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, shops *shop.Service, seckillSvc *seckill.Service, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		shops:   shops,
		seckill: seckillSvc,
		version: version,
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// Ready handles GET /ready, checking backing stores.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  "database unreachable",
			})
			return
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  "cache unreachable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// GetShop handles GET /shops/{id}.
func (h *Handler) GetShop(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	s, err := h.shops.QueryByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s)
}

// CreateShop handles POST /shops.
func (h *Handler) CreateShop(w http.ResponseWriter, r *http.Request) {
	var s domain.Shop
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if s.ID == 0 || s.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and name are required",
		})
		return
	}

	if err := h.repo.SaveShop(r.Context(), &s); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, s)
}

// UpdateShop handles PUT /shops/{id}: persist, then invalidate the
// cache entry.
func (h *Handler) UpdateShop(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var s domain.Shop
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	s.ID = id

	if err := h.shops.Update(r.Context(), &s); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s)
}

// WarmShop handles POST /shops/{id}/warm, pre-heating the cache entry
// with a logical expiry.
func (h *Handler) WarmShop(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		TTLSeconds int64 `json:"ttlSeconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TTLSeconds <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "ttlSeconds must be a positive integer",
		})
		return
	}

	if err := h.shops.Warm(r.Context(), id, time.Duration(req.TTLSeconds)*time.Second); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "warmed"})
}

// GetVoucher handles GET /vouchers/{id}.
func (h *Handler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	v, err := h.repo.GetVoucher(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, v)
}

// CreateVoucher handles POST /vouchers.
func (h *Handler) CreateVoucher(w http.ResponseWriter, r *http.Request) {
	var v domain.SeckillVoucher
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if v.VoucherID == 0 || v.Stock < 0 || v.EndTime.Before(v.BeginTime) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "voucherId, non-negative stock and a valid sale window are required",
		})
		return
	}

	if err := h.repo.SaveVoucher(r.Context(), &v); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, v)
}

// SeckillResponse is the response for a successful purchase.
type SeckillResponse struct {
	OrderID int64 `json:"orderId"`
}

// Seckill handles POST /vouchers/{id}/seckill.
func (h *Handler) Seckill(w http.ResponseWriter, r *http.Request) {
	voucherID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID := GetUserID(r.Context())

	orderID, err := h.seckill.Purchase(r.Context(), voucherID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SeckillResponse{OrderID: orderID})
}

// pathID parses the {name} URL parameter as a positive integer,
// writing the error response itself on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": name + " must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

// writeError maps domain errors to HTTP responses with a distinct
// reason per cause, so clients can decide whether a retry makes sense.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, domain.ErrNotStarted):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "seckill has not started"})
	case errors.Is(err, domain.ErrEnded):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "seckill has ended"})
	case errors.Is(err, domain.ErrOutOfStock):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "out of stock"})
	case errors.Is(err, domain.ErrAlreadyPurchased):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "already purchased"})
	case errors.Is(err, domain.ErrLockTimeout):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "busy, retry later"})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
