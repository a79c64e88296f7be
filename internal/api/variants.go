package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/erazemk/prenos/internal/imaging"
	"github.com/erazemk/prenos/internal/logging"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

// ListVariants handles GET /api/variants.
func (s *Server) ListVariants(w http.ResponseWriter, r *http.Request) {
	variants, err := store.ListVariants(r.Context(), s.db)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if variants == nil {
		variants = []model.Variant{}
	}
	jsonResponse(w, http.StatusOK, variants)
}

// CreateVariant handles POST /api/variants.
func (s *Server) CreateVariant(w http.ResponseWriter, r *http.Request) {
	var req model.Variant
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	if req.ID == "" || req.Name == "" {
		badRequest(w, "id and name required")
		return
	}

	if _, err := store.GetVariant(r.Context(), s.db, req.ID); err == nil {
		jsonError(w, http.StatusConflict, CodeConflict, "variant already exists")
		return
	}

	v, err := store.CreateVariant(r.Context(), s.db, req)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	logging.Info(r.Context(), s.logger, "variant created", zap.String("variant_id", v.ID))
	jsonResponse(w, http.StatusCreated, v)
}

// GetVariant handles GET /api/variants/{id}, with the variant's stock
// across locations.
func (s *Server) GetVariant(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	v, err := store.GetVariant(r.Context(), s.db, id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	dist, err := s.ledger.Lines(r.Context(), store.LineFilter{VariantID: id})
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if dist == nil {
		dist = []model.InventoryLine{}
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"variant":      v,
		"distribution": dist,
	})
}

// UploadPhoto handles PUT /api/variants/{id}/photo. The body is a
// multipart form with the file in the "photo" field.
func (s *Server) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := store.GetVariant(r.Context(), s.db, id); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		badRequest(w, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("photo")
	if err != nil {
		badRequest(w, "photo file required")
		return
	}
	defer file.Close()

	photo, err := imaging.Process(file)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	if err := store.SetVariantPhoto(r.Context(), s.db, id, photo.Data, photo.Thumbnail, photo.MIME); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	logging.Info(r.Context(), s.logger, "variant photo uploaded",
		zap.String("variant_id", id),
		zap.Int("bytes", len(photo.Data)),
	)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "photo uploaded"})
}

// GetPhoto handles GET /api/variants/{id}/photo. Add ?size=thumb for the
// thumbnail.
func (s *Server) GetPhoto(w http.ResponseWriter, r *http.Request) {
	thumb := r.URL.Query().Get("size") == "thumb"

	data, mime, err := store.GetVariantPhoto(r.Context(), s.db, r.PathValue("id"), thumb)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(data)
}
