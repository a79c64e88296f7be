package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/erazemk/prenos/internal/logging"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

type addStockRequest struct {
	LocationID int64  `json:"location_id"`
	VariantID  string `json:"variant_id"`
	Quantity   int    `json:"quantity"`
}

type adjustRequest struct {
	LocationID int64  `json:"location_id"`
	VariantID  string `json:"variant_id"`
	Delta      int    `json:"delta"`
	Notes      string `json:"notes"`
}

type lineResponse struct {
	LocationID int64  `json:"location_id"`
	VariantID  string `json:"variant_id"`
	Quantity   int    `json:"quantity"`
}

// ListInventory handles GET /api/inventory, optionally filtered by
// location_id and variant_id.
func (s *Server) ListInventory(w http.ResponseWriter, r *http.Request) {
	locationID, ok := queryID(r, "location_id")
	if !ok {
		badRequest(w, "invalid location_id")
		return
	}

	lines, err := s.ledger.Lines(r.Context(), store.LineFilter{
		LocationID: locationID,
		VariantID:  r.URL.Query().Get("variant_id"),
	})
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if lines == nil {
		lines = []model.InventoryLine{}
	}
	jsonResponse(w, http.StatusOK, lines)
}

// AddStock handles POST /api/inventory/stock.
func (s *Server) AddStock(w http.ResponseWriter, r *http.Request) {
	var req addStockRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	req.VariantID = strings.TrimSpace(req.VariantID)
	if req.LocationID <= 0 || req.VariantID == "" || req.Quantity <= 0 {
		badRequest(w, "location_id, variant_id, and a positive quantity are required")
		return
	}
	if _, err := store.GetVariant(r.Context(), s.db, req.VariantID); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	actor, _ := GetActor(r.Context())
	key := model.LineKey{LocationID: req.LocationID, VariantID: req.VariantID}
	qty, err := s.ledger.AddStock(r.Context(), key, req.Quantity, &actor.ID)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	logging.Info(r.Context(), s.logger, "stock added",
		zap.Int64("location_id", key.LocationID),
		zap.String("variant_id", key.VariantID),
		zap.Int("quantity", req.Quantity),
		zap.Int("quantity_after", qty),
		zap.Int64("actor_id", actor.ID),
	)
	jsonResponse(w, http.StatusOK, lineResponse{LocationID: key.LocationID, VariantID: key.VariantID, Quantity: qty})
}

// Adjust handles POST /api/inventory/adjust.
func (s *Server) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	req.VariantID = strings.TrimSpace(req.VariantID)
	if req.LocationID <= 0 || req.VariantID == "" || req.Delta == 0 {
		badRequest(w, "location_id, variant_id, and non-zero delta required")
		return
	}

	actor, _ := GetActor(r.Context())
	key := model.LineKey{LocationID: req.LocationID, VariantID: req.VariantID}
	qty, err := s.ledger.Adjust(r.Context(), key, req.Delta, req.Notes, &actor.ID)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	logging.Info(r.Context(), s.logger, "inventory adjusted",
		zap.Int64("location_id", key.LocationID),
		zap.String("variant_id", key.VariantID),
		zap.Int("delta", req.Delta),
		zap.Int("quantity_after", qty),
		zap.Int64("actor_id", actor.ID),
	)
	jsonResponse(w, http.StatusOK, lineResponse{LocationID: key.LocationID, VariantID: key.VariantID, Quantity: qty})
}
