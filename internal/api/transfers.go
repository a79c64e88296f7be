package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/erazemk/prenos/internal/lifecycle"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/transfer"
)

type transferResponse struct {
	Transfer         *model.Transfer `json:"transfer"`
	AvailableActions []model.Action  `json:"available_actions"`
	Hold             *model.Hold     `json:"hold,omitempty"`
}

type incidentRequest struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

func (s *Server) withActions(t *model.Transfer, actor model.Actor) transferResponse {
	actions := s.transfers.AvailableActions(t, actor)
	if actions == nil {
		actions = []model.Action{}
	}
	return transferResponse{Transfer: t, AvailableActions: actions}
}

// CreateTransfer handles POST /api/transfers.
func (s *Server) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req model.NewTransfer
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	actor, _ := GetActor(r.Context())
	t, err := s.transfers.CreateTransfer(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	jsonResponse(w, http.StatusCreated, s.withActions(t, actor))
}

// ListTransfers handles GET /api/transfers. Filters: status (repeatable or
// comma separated), location_id, urgency, limit.
func (s *Server) ListTransfers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f transfer.ListFilter
	for _, v := range q["status"] {
		for _, st := range strings.Split(v, ",") {
			if st = strings.TrimSpace(st); st != "" {
				f.Statuses = append(f.Statuses, model.Status(st))
			}
		}
	}

	var ok bool
	if f.LocationID, ok = queryID(r, "location_id"); !ok {
		badRequest(w, "invalid location_id")
		return
	}
	f.Urgency = model.Urgency(q.Get("urgency"))
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, "invalid limit")
			return
		}
		f.Limit = n
	}

	actor, _ := GetActor(r.Context())
	transfers, err := s.transfers.ListTransfers(r.Context(), actor, f)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if transfers == nil {
		transfers = []model.Transfer{}
	}
	jsonResponse(w, http.StatusOK, transfers)
}

// TransferSummary handles GET /api/transfers/summary.
func (s *Server) TransferSummary(w http.ResponseWriter, r *http.Request) {
	actor, _ := GetActor(r.Context())
	counts, err := s.transfers.Summary(r.Context(), actor)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, counts)
}

// Lifecycle handles GET /api/transfers/lifecycle.
func (s *Server) Lifecycle(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, lifecycle.Table())
}

// GetTransfer handles GET /api/transfers/{id}.
func (s *Server) GetTransfer(w http.ResponseWriter, r *http.Request) {
	actor, _ := GetActor(r.Context())
	t, err := s.transfers.GetVisible(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	resp := s.withActions(t, actor)
	hold, err := s.transfers.Held(r.Context(), t.ID)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if hold != nil {
		resp.Hold = hold
		resp.AvailableActions = []model.Action{}
	}
	jsonResponse(w, http.StatusOK, resp)
}

// ReleaseHold handles DELETE /api/transfers/{id}/hold.
func (s *Server) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	actor, _ := GetActor(r.Context())
	if err := s.transfers.ReleaseHold(r.Context(), actor, r.PathValue("id")); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "hold released"})
}

// ApplyAction handles POST /api/transfers/{id}/actions/{action}. The body,
// if any, carries notes, a reason, or a pickup estimate.
func (s *Server) ApplyAction(w http.ResponseWriter, r *http.Request) {
	var details model.ActionDetails
	if err := decodeJSON(r, &details, true); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	actor, _ := GetActor(r.Context())
	t, err := s.transfers.ApplyAction(r.Context(), r.PathValue("id"), actor, model.Action(r.PathValue("action")), details)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, s.withActions(t, actor))
}

// TransferMovements handles GET /api/transfers/{id}/movements.
func (s *Server) TransferMovements(w http.ResponseWriter, r *http.Request) {
	actor, _ := GetActor(r.Context())
	id := r.PathValue("id")
	if _, err := s.transfers.GetVisible(r.Context(), id, actor); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	moves, err := s.transfers.Movements(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if moves == nil {
		moves = []model.Movement{}
	}
	jsonResponse(w, http.StatusOK, moves)
}

// ListIncidents handles GET /api/transfers/{id}/incidents.
func (s *Server) ListIncidents(w http.ResponseWriter, r *http.Request) {
	actor, _ := GetActor(r.Context())
	id := r.PathValue("id")
	if _, err := s.transfers.GetVisible(r.Context(), id, actor); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	incidents, err := s.transfers.Incidents(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if incidents == nil {
		incidents = []model.Incident{}
	}
	jsonResponse(w, http.StatusOK, incidents)
}

// ReportIncident handles POST /api/transfers/{id}/incidents.
func (s *Server) ReportIncident(w http.ResponseWriter, r *http.Request) {
	var req incidentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	actor, _ := GetActor(r.Context())
	in, err := s.transfers.ReportIncident(r.Context(), r.PathValue("id"), actor, req.Type, req.Description)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	jsonResponse(w, http.StatusCreated, in)
}

// ListAlerts handles GET /api/alerts.
func (s *Server) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.transfers.SweepAlerts(r.Context(), s.clock.Now())
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	jsonResponse(w, http.StatusOK, alerts)
}
