package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/erazemk/prenos/internal/logging"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

type createLocationRequest struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Address string `json:"address"`
}

// ListLocations handles GET /api/locations.
func (s *Server) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := store.ListLocations(r.Context(), s.db, r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if locations == nil {
		locations = []model.Location{}
	}
	jsonResponse(w, http.StatusOK, locations)
}

// CreateLocation handles POST /api/locations.
func (s *Server) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req createLocationRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		badRequest(w, "name required")
		return
	}

	loc, err := store.CreateLocation(r.Context(), s.db, req.Name, req.Type, req.Address)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	logging.Info(r.Context(), s.logger, "location created",
		zap.Int64("location_id", loc.ID),
		zap.String("name", loc.Name),
		zap.String("type", loc.Type),
	)
	jsonResponse(w, http.StatusCreated, loc)
}

// DeleteLocation handles DELETE /api/locations/{id}. Stock lines and
// transfer history stay; the location just stops accepting new work.
func (s *Server) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid location id")
		return
	}

	if err := store.DeleteLocation(r.Context(), s.db, id); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	logging.Info(r.Context(), s.logger, "location deleted", zap.Int64("location_id", id))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "location deleted"})
}

// LocationInventory handles GET /api/locations/{id}/inventory.
func (s *Server) LocationInventory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid location id")
		return
	}

	loc, err := store.GetLocation(r.Context(), s.db, id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	lines, err := s.ledger.Lines(r.Context(), store.LineFilter{LocationID: id})
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if lines == nil {
		lines = []model.InventoryLine{}
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"location":  loc,
		"inventory": lines,
	})
}
