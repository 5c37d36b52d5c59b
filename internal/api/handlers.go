package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/jackpot/internal/chat"
	"github.com/MikeSquared-Agency/jackpot/internal/lottery"
	"github.com/MikeSquared-Agency/jackpot/internal/pool"
)

// PoolResponse is a pool snapshot plus whether the on-chain refresh failed.
// Payouts projects the pending winnings across members when there are any.
type PoolResponse struct {
	pool.Status
	AllMembers []pool.Member    `json:"all_members"`
	Payouts    map[string]int64 `json:"projected_payouts,omitempty"`
	Stale      bool             `json:"stale"`
}

// postMessage handles POST /api/v1/messages and replies synchronously.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var msg chat.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if msg.ThreadID == "" || msg.ParticipantID == "" || msg.Text == "" {
		writeError(w, http.StatusBadRequest, "thread_id, participant_id and text are required")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Messages.HandleMessage(r.Context(), msg))
}

// getPool handles GET /api/v1/pools/{threadID}. It reconciles first and
// falls back to local figures when the ledger is unreachable.
func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	st, err := s.deps.Pools.Reconcile(r.Context(), threadID)
	if errors.Is(err, pool.ErrPoolNotFound) {
		writeError(w, http.StatusNotFound, "pool not found")
		return
	}
	stale := false
	if err != nil {
		s.logger.Warn("pool reconcile failed", "thread_id", threadID, "error", err)
		if st, err = s.deps.Pools.GetStatus(threadID); err != nil {
			writeError(w, http.StatusNotFound, "pool not found")
			return
		}
		stale = true
	}
	resp := PoolResponse{Status: st, Stale: stale}
	if resp.AllMembers, err = s.deps.Pools.Members(threadID); err != nil {
		writeError(w, http.StatusNotFound, "pool not found")
		return
	}
	if st.PendingWinnings > 0 {
		if resp.Payouts, err = s.deps.Pools.ProjectPayout(threadID, st.PendingWinnings); err != nil {
			writeError(w, http.StatusNotFound, "pool not found")
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// putPoolContract handles PUT /api/v1/pools/{threadID}/contract, binding
// the thread's pool to a contract. A pool holding tickets cannot move.
func (s *Server) putPoolContract(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContractAddress string `json:"contract_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	threadID := chi.URLParam(r, "threadID")
	err := s.deps.Pools.Bind(threadID, body.ContractAddress)
	switch {
	case errors.Is(err, lottery.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, pool.ErrContractMismatch):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("failed to bind pool", "thread_id", threadID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to bind pool")
		return
	}
	s.logger.Info("pool bound", "thread_id", threadID, "contract", body.ContractAddress)
	writeJSON(w, http.StatusOK, map[string]string{
		"thread_id":        threadID,
		"contract_address": body.ContractAddress,
	})
}

// listPurchases handles GET /api/v1/pools/{threadID}/purchases?limit=N.
func (s *Server) listPurchases(w http.ResponseWriter, r *http.Request) {
	if s.deps.Wallets == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	records, err := s.deps.Wallets.ListPurchases(r.Context(), chi.URLParam(r, "threadID"), limit)
	if err != nil {
		s.logger.Error("failed to list purchases", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list purchases")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchases": records, "count": len(records)})
}

// putWallet handles PUT /api/v1/wallets/{participantID}.
func (s *Server) putWallet(w http.ResponseWriter, r *http.Request) {
	if s.deps.Wallets == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}
	var body struct {
		WalletAddress string `json:"wallet_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	participantID := chi.URLParam(r, "participantID")
	err := s.deps.Wallets.LinkWallet(r.Context(), participantID, body.WalletAddress)
	switch {
	case errors.Is(err, lottery.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("failed to link wallet", "participant_id", participantID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to link wallet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"participant_id": participantID,
		"wallet_address": body.WalletAddress,
	})
}
