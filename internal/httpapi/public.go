package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"tochka-exchange/internal/apperr"
	"tochka-exchange/internal/models"
	"tochka-exchange/internal/storage"
)

// handleRegister implements POST /api/v1/public/register (§6.1).
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.log, apperr.Validation("invalid JSON body"))
		return
	}
	if len(req.Name) < 3 {
		writeError(w, s.log, apperr.Validation("name must be at least 3 characters"))
		return
	}

	user := &models.User{
		ID:        uuid.New(),
		Name:      req.Name,
		Role:      models.RoleUser,
		APIKey:    "key-" + uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}

	err := s.db.WithTx(r.Context(), func(tx *storage.Tx) error {
		return tx.CreateUser(r.Context(), user)
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{
		ID: user.ID.String(), Name: user.Name, Role: string(user.Role), APIKey: user.APIKey,
	})
}

// handleListInstruments implements GET /api/v1/public/instrument.
func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
		return
	}

	instruments, err := s.engine.ListInstruments(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	out := make([]instrumentResponse, 0, len(instruments))
	for _, ins := range instruments {
		out = append(out, instrumentResponse{Name: ins.Name, Ticker: ins.Ticker})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleOrderBook implements GET /api/v1/public/orderbook/{ticker}?limit=N.
func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
		return
	}

	ticker := strings.TrimPrefix(r.URL.Path, "/api/v1/public/orderbook/")
	if ticker == "" {
		writeError(w, s.log, apperr.Validation("ticker is required"))
		return
	}

	limit := s.cfg.DefaultOrderBookLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, s.log, apperr.Validation("invalid limit"))
			return
		}
		limit = n
	}
	if limit > s.cfg.MaxOrderBookLimit {
		limit = s.cfg.MaxOrderBookLimit
	}

	book, err := s.engine.GetOrderBook(r.Context(), strings.ToUpper(ticker), limit)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderBookResponse(book))
}

// handleTrades implements GET /api/v1/public/transactions/{ticker}?limit=N.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
		return
	}

	ticker := strings.TrimPrefix(r.URL.Path, "/api/v1/public/transactions/")
	if ticker == "" {
		writeError(w, s.log, apperr.Validation("ticker is required"))
		return
	}

	limit := s.cfg.DefaultTradeHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, s.log, apperr.Validation("invalid limit"))
			return
		}
		limit = n
	}
	if limit > s.cfg.MaxTradeHistoryLimit {
		limit = s.cfg.MaxTradeHistoryLimit
	}

	trades, err := s.engine.ListTrades(r.Context(), strings.ToUpper(ticker), limit)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	out := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, toTradeResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}
