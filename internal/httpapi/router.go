package httpapi

import (
	"net/http"

	"github.com/rs/zerolog"

	"tochka-exchange/internal/auth"
	"tochka-exchange/internal/config"
	"tochka-exchange/internal/engine"
	"tochka-exchange/internal/storage"
)

// Server holds the dependencies every handler needs.
type Server struct {
	db     *storage.Adapter
	engine *engine.Engine
	authn  *auth.Authenticator
	cfg    *config.Config
	log    zerolog.Logger
}

// NewRouter builds the full mux for the exchange's wire API (§6.1).
func NewRouter(db *storage.Adapter, eng *engine.Engine, authn *auth.Authenticator, cfg *config.Config, log zerolog.Logger) http.Handler {
	s := &Server{db: db, engine: eng, authn: authn, cfg: cfg, log: log}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/public/register", s.handleRegister)
	mux.HandleFunc("/api/v1/public/instrument", s.handleListInstruments)
	mux.HandleFunc("/api/v1/public/orderbook/", s.handleOrderBook)
	mux.HandleFunc("/api/v1/public/transactions/", s.handleTrades)

	mux.HandleFunc("/api/v1/balance", s.handleBalance)
	mux.HandleFunc("/api/v1/order", s.handleOrders)
	mux.HandleFunc("/api/v1/order/", s.handleOrderByID)

	mux.HandleFunc("/api/v1/admin/instrument", s.handleAdminCreateInstrument)
	mux.HandleFunc("/api/v1/admin/instrument/", s.handleAdminDeleteInstrument)
	mux.HandleFunc("/api/v1/admin/balance/deposit", s.handleAdminDeposit)
	mux.HandleFunc("/api/v1/admin/balance/withdraw", s.handleAdminWithdraw)
	mux.HandleFunc("/api/v1/admin/user/", s.handleAdminDeleteUser)

	mux.HandleFunc("/health", s.handleHealth)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Code: "UNAVAILABLE", Message: "database unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}
