package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"tochka-exchange/internal/apperr"
	"tochka-exchange/internal/engine"
	"tochka-exchange/internal/models"
)

// handleBalance implements GET /api/v1/balance (§6.1).
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
		return
	}
	user, err := s.authn.Authenticate(r.Context(), r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	balances, err := s.engine.ListBalances(r.Context(), user.ID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	out := make(map[string]int64, len(balances))
	for _, b := range balances {
		if b.Amount != 0 {
			out[b.Ticker] = b.Amount
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleOrders implements POST /api/v1/order (create) and
// GET /api/v1/order (list, §6.1).
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	user, err := s.authn.Authenticate(r.Context(), r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.createOrder(w, r, user.ID)
	case http.MethodGet:
		orders, err := s.engine.ListOrders(r.Context(), user.ID)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		out := make([]orderResponse, 0, len(orders))
		for _, o := range orders {
			out = append(out, toOrderResponse(o))
		}
		writeJSON(w, http.StatusOK, out)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
	}
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.log, apperr.Validation("invalid JSON body"))
		return
	}

	var side models.Side
	switch strings.ToUpper(req.Direction) {
	case "BUY":
		side = models.SideBuy
	case "SELL":
		side = models.SideSell
	default:
		writeError(w, s.log, apperr.Validation("direction must be BUY or SELL"))
		return
	}

	kind := models.KindMarket
	if req.Price != nil {
		kind = models.KindLimit
	}

	order, _, err := s.engine.CreateOrder(r.Context(), engine.CreateOrderInput{
		UserID: userID,
		Ticker: strings.ToUpper(req.Ticker),
		Side:   side,
		Kind:   kind,
		Qty:    req.Qty,
		Price:  req.Price,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{Success: true, OrderID: order.ID.String()})
}

// handleOrderByID implements GET/DELETE /api/v1/order/{id} (§6.1).
func (s *Server) handleOrderByID(w http.ResponseWriter, r *http.Request) {
	user, err := s.authn.Authenticate(r.Context(), r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/order/")
	orderID, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, s.log, apperr.Validation("invalid order id"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		order, err := s.engine.GetOrder(r.Context(), user.ID, orderID)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(order))
	case http.MethodDelete:
		order, err := s.engine.CancelOrder(r.Context(), user.ID, orderID)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(order))
	default:
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
	}
}
