package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"tochka-exchange/internal/apperr"
	"tochka-exchange/internal/models"
)

// handleAdminCreateInstrument implements POST /api/v1/admin/instrument
// (§6.1).
func (s *Server) handleAdminCreateInstrument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
		return
	}
	if _, err := s.authn.RequireAdmin(r.Context(), r); err != nil {
		writeError(w, s.log, err)
		return
	}

	var req createInstrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.log, apperr.Validation("invalid JSON body"))
		return
	}

	typ := models.InstrumentStock
	if strings.EqualFold(req.Type, "CURRENCY") {
		typ = models.InstrumentCurrency
	}
	ins := &models.Instrument{Ticker: strings.ToUpper(req.Ticker), Name: req.Name, Type: typ}

	if err := s.engine.CreateInstrument(r.Context(), ins); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, instrumentResponse{Name: ins.Name, Ticker: ins.Ticker})
}

// handleAdminDeleteInstrument implements
// DELETE /api/v1/admin/instrument/{ticker} (§6.1).
func (s *Server) handleAdminDeleteInstrument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
		return
	}
	if _, err := s.authn.RequireAdmin(r.Context(), r); err != nil {
		writeError(w, s.log, err)
		return
	}

	ticker := strings.TrimPrefix(r.URL.Path, "/api/v1/admin/instrument/")
	if ticker == "" {
		writeError(w, s.log, apperr.Validation("ticker is required"))
		return
	}

	if err := s.engine.DeleteInstrument(r.Context(), strings.ToUpper(ticker)); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

// handleAdminDeposit implements POST /api/v1/admin/balance/deposit.
func (s *Server) handleAdminDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleAdminBalanceOp(w, r, func(userID uuid.UUID, ticker string, amount int64) error {
		return s.engine.Deposit(r.Context(), userID, ticker, amount)
	})
}

// handleAdminWithdraw implements POST /api/v1/admin/balance/withdraw.
func (s *Server) handleAdminWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleAdminBalanceOp(w, r, func(userID uuid.UUID, ticker string, amount int64) error {
		return s.engine.Withdraw(r.Context(), userID, ticker, amount)
	})
}

func (s *Server) handleAdminBalanceOp(w http.ResponseWriter, r *http.Request, op func(uuid.UUID, string, int64) error) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
		return
	}
	if _, err := s.authn.RequireAdmin(r.Context(), r); err != nil {
		writeError(w, s.log, err)
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.log, apperr.Validation("invalid JSON body"))
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, s.log, apperr.Validation("invalid user_id"))
		return
	}
	if req.Amount <= 0 {
		writeError(w, s.log, apperr.Validation("amount must be > 0"))
		return
	}

	if err := op(userID, strings.ToUpper(req.Ticker), req.Amount); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

// handleAdminDeleteUser implements DELETE /api/v1/admin/user/{id}.
func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
		return
	}
	if _, err := s.authn.RequireAdmin(r.Context(), r); err != nil {
		writeError(w, s.log, err)
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/admin/user/")
	userID, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, s.log, apperr.Validation("invalid user id"))
		return
	}

	if err := s.engine.DeleteUser(r.Context(), userID); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}
