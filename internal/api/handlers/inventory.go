package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cowrie-intel/enrichd/internal/enrichment/cascade"
	"github.com/cowrie-intel/enrichd/internal/models"
)

// *store.Store's Get* methods return (nil, nil) on miss, so handlers treat
// a nil row (no error) as the not-found case directly.

// InventoryStore is the subset of internal/store.Store the read-only query
// handlers depend on.
type InventoryStore interface {
	GetIPInventory(ctx context.Context, ip string) (*models.IPInventory, error)
	GetASN(ctx context.Context, asn int) (*models.ASNInventory, error)
	GetSessionSummary(ctx context.Context, sessionID string) (*models.SessionSummary, error)
	IPASNHistoryFor(ctx context.Context, ip string) ([]models.IPASNHistory, error)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, code, message string) {
	writeJSON(w, logger, status, map[string]string{
		"error": code,
		"message": message,
	})
}

// IPInventoryHandler handles GET /v1/ip/{ip} - returns the current
// IPInventory row, including derived fields (geo_country, ip_type,
// is_scanner, is_bogon).
func IPInventoryHandler(store InventoryStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := chi.URLParam(r, "ip")
		if ip == "" {
			writeError(w, logger, http.StatusBadRequest, "missing_ip", "ip path parameter is required")
			return
		}

		inv, err := store.GetIPInventory(r.Context(), ip)
		if err != nil {
			logger.Error("ip inventory lookup failed", zap.String("ip", ip), zap.Error(err))
			writeError(w, logger, http.StatusInternalServerError, "store_error", "lookup failed")
			return
		}
		if inv == nil {
			writeError(w, logger, http.StatusNotFound, "not_found", "ip not found in inventory")
			return
		}

		type response struct {
			*models.IPInventory
			GeoCountry string `json:"geo_country"`
			IPType     string `json:"ip_type,omitempty"`
			IsScanner  bool   `json:"is_scanner"`
			IsBogon    bool   `json:"is_bogon"`
		}

		writeJSON(w, logger, http.StatusOK, response{
			IPInventory: inv,
			GeoCountry:  inv.GeoCountry(),
			IPType:      inv.IPType(),
			IsScanner:   inv.IsScanner(),
			IsBogon:     inv.IsBogon(),
		})
	}
}

// IPASNHistoryHandler handles GET /v1/ip/{ip}/asn-history - returns the
// append-only ASN-assignment history for an IP (§3 IPASNHistory).
func IPASNHistoryHandler(store InventoryStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := chi.URLParam(r, "ip")
		if ip == "" {
			writeError(w, logger, http.StatusBadRequest, "missing_ip", "ip path parameter is required")
			return
		}

		history, err := store.IPASNHistoryFor(r.Context(), ip)
		if err != nil {
			logger.Error("asn history lookup failed", zap.String("ip", ip), zap.Error(err))
			writeError(w, logger, http.StatusInternalServerError, "store_error", "lookup failed")
			return
		}

		writeJSON(w, logger, http.StatusOK, map[string]interface{}{
			"ip_address": ip,
			"history":    history,
		})
	}
}

// ASNInventoryHandler handles GET /v1/asn/{asn} - returns the current
// ASNInventory row.
func ASNInventoryHandler(store InventoryStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		asnParam := chi.URLParam(r, "asn")
		asn, err := strconv.Atoi(asnParam)
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "invalid_asn", "asn path parameter must be numeric")
			return
		}

		row, err := store.GetASN(r.Context(), asn)
		if err != nil {
			logger.Error("asn lookup failed", zap.Int("asn", asn), zap.Error(err))
			writeError(w, logger, http.StatusInternalServerError, "store_error", "lookup failed")
			return
		}
		if row == nil {
			writeError(w, logger, http.StatusNotFound, "not_found", "asn not found in inventory")
			return
		}

		writeJSON(w, logger, http.StatusOK, row)
	}
}

// SessionSummaryHandler handles GET /v1/session/{session_id} - returns a
// session's aggregated summary plus its write-once enrichment snapshot.
func SessionSummaryHandler(store InventoryStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		if sessionID == "" {
			writeError(w, logger, http.StatusBadRequest, "missing_session_id", "session_id path parameter is required")
			return
		}

		sess, err := store.GetSessionSummary(r.Context(), sessionID)
		if err != nil {
			logger.Error("session lookup failed", zap.String("session_id", sessionID), zap.Error(err))
			writeError(w, logger, http.StatusInternalServerError, "store_error", "lookup failed")
			return
		}
		if sess == nil {
			writeError(w, logger, http.StatusNotFound, "not_found", "session not found")
			return
		}

		writeJSON(w, logger, http.StatusOK, sess)
	}
}

// CascadeStats is the subset of cascade.Orchestrator the stats handler
// depends on.
type CascadeStats interface {
	Stats() cascade.StatsSnapshot
}

// StatsHandler handles GET /v1/stats - returns cascade orchestrator
// counters (§4.G.5): total processed, cache hits, per-source hits, errors.
func StatsHandler(orchestrator CascadeStats, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, orchestrator.Stats())
	}
}
