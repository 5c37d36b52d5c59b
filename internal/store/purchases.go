package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/jackpot/internal/lottery"
)

// Purchase outcomes recorded in the audit trail.
const (
	OutcomeAssembled = "assembled"
	OutcomeFailed    = "failed"
)

// PurchaseRecord is one row of the purchase audit trail.
type PurchaseRecord struct {
	ID            uuid.UUID `json:"id"`
	ThreadID      string    `json:"thread_id"`
	ParticipantID string    `json:"participant_id"`
	PurchaseType  string    `json:"purchase_type"`
	WalletAddress string    `json:"wallet_address"`
	Quantity      int       `json:"quantity"`
	PoolContract  string    `json:"pool_contract,omitempty"`
	Outcome       string    `json:"outcome"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// RecordPurchaseRequest appends a handed-off purchase to the audit trail.
func (s *Store) RecordPurchaseRequest(ctx context.Context, participantID string, req lottery.PurchaseRequest, outcome, errText string) error {
	b := req.Base()
	var contract *string
	if p, ok := req.(lottery.PoolPurchase); ok {
		contract = &p.PoolContract
	}
	var errCol *string
	if errText != "" {
		errCol = &errText
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO purchase_requests (id, thread_id, participant_id, purchase_type, wallet_address, quantity, pool_contract, outcome, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (id) DO NOTHING`,
		b.ID, b.ThreadID, participantID, string(req.Type()), b.WalletAddress, b.Quantity, contract, outcome, errCol,
	)
	if err != nil {
		return fmt.Errorf("record purchase request: %w", err)
	}
	return nil
}

// ListPurchases returns the newest purchase requests for a thread.
func (s *Store) ListPurchases(ctx context.Context, threadID string, limit int) ([]PurchaseRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, thread_id, participant_id, purchase_type, wallet_address, quantity,
		       COALESCE(pool_contract, ''), outcome, COALESCE(error, ''), created_at
		FROM purchase_requests
		WHERE thread_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		threadID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	var out []PurchaseRecord
	for rows.Next() {
		var r PurchaseRecord
		if err := rows.Scan(&r.ID, &r.ThreadID, &r.ParticipantID, &r.PurchaseType, &r.WalletAddress, &r.Quantity,
			&r.PoolContract, &r.Outcome, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
