// Package api is the JSON REST edge over the transfer service and the
// inventory ledger.
package api

import (
	"database/sql"
	"net/http"

	"go.uber.org/zap"

	"github.com/erazemk/prenos/internal/auth"
	"github.com/erazemk/prenos/internal/clock"
	"github.com/erazemk/prenos/internal/logging"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
	"github.com/erazemk/prenos/internal/transfer"
)

// Server holds what the handlers share.
type Server struct {
	db        *sql.DB
	transfers *transfer.Service
	ledger    *store.Ledger
	issuer    auth.Issuer
	clock     clock.Clock
	logger    *zap.Logger
}

// NewServer returns the API server.
func NewServer(db *sql.DB, transfers *transfer.Service, ledger *store.Ledger, issuer auth.Issuer, clk clock.Clock, logger *zap.Logger) *Server {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Server{
		db:        db,
		transfers: transfers,
		ledger:    ledger,
		issuer:    issuer,
		clock:     clk,
		logger:    logging.OrNop(logger).Named("api"),
	}
}

// Handler returns the router with every endpoint registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	authed := func(h http.HandlerFunc) http.Handler { return s.AuthMiddleware(h) }
	admin := func(h http.HandlerFunc) http.Handler {
		return s.AuthMiddleware(RequireRole(model.RoleAdmin)(h))
	}

	mux.HandleFunc("GET /healthz", s.Health)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", s.Login)
	mux.Handle("POST /api/auth/logout", authed(s.Logout))
	mux.Handle("PUT /api/auth/password", authed(s.ChangePassword))

	// Users (admin only).
	mux.Handle("GET /api/users", admin(s.ListUsers))
	mux.Handle("POST /api/users", admin(s.CreateUser))
	mux.Handle("GET /api/users/{id}", admin(s.GetUser))
	mux.Handle("PUT /api/users/{id}", admin(s.UpdateUser))
	mux.Handle("PUT /api/users/{id}/locations", admin(s.SetUserLocations))
	mux.Handle("PUT /api/users/{id}/password", admin(s.ResetPassword))
	mux.Handle("DELETE /api/users/{id}", admin(s.DeleteUser))

	// Locations: read (all roles), write (admin).
	mux.Handle("GET /api/locations", authed(s.ListLocations))
	mux.Handle("POST /api/locations", admin(s.CreateLocation))
	mux.Handle("DELETE /api/locations/{id}", admin(s.DeleteLocation))
	mux.Handle("GET /api/locations/{id}/inventory", authed(s.LocationInventory))

	// Variants: read (all roles), write (admin).
	mux.Handle("GET /api/variants", authed(s.ListVariants))
	mux.Handle("POST /api/variants", admin(s.CreateVariant))
	mux.Handle("GET /api/variants/{id}", authed(s.GetVariant))
	mux.Handle("PUT /api/variants/{id}/photo", admin(s.UploadPhoto))
	mux.Handle("GET /api/variants/{id}/photo", authed(s.GetPhoto))

	// Inventory: read (all), write (admin).
	mux.Handle("GET /api/inventory", authed(s.ListInventory))
	mux.Handle("POST /api/inventory/stock", admin(s.AddStock))
	mux.Handle("POST /api/inventory/adjust", admin(s.Adjust))

	// Transfers: visibility and permissions are decided per actor.
	mux.Handle("POST /api/transfers", authed(s.CreateTransfer))
	mux.Handle("GET /api/transfers", authed(s.ListTransfers))
	mux.Handle("GET /api/transfers/summary", authed(s.TransferSummary))
	mux.Handle("GET /api/transfers/lifecycle", authed(s.Lifecycle))
	mux.Handle("GET /api/transfers/{id}", authed(s.GetTransfer))
	mux.Handle("POST /api/transfers/{id}/actions/{action}", authed(s.ApplyAction))
	mux.Handle("DELETE /api/transfers/{id}/hold", admin(s.ReleaseHold))
	mux.Handle("GET /api/transfers/{id}/movements", authed(s.TransferMovements))
	mux.Handle("GET /api/transfers/{id}/incidents", authed(s.ListIncidents))
	mux.Handle("POST /api/transfers/{id}/incidents", authed(s.ReportIncident))

	mux.Handle("GET /api/alerts", admin(s.ListAlerts))

	return LoggingMiddleware(s.logger)(mux)
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		jsonError(w, http.StatusServiceUnavailable, CodeInternal, "database unavailable")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
