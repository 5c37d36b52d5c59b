package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/jackpot/internal/lottery"
)

// ErrWalletNotFound is returned when a participant has no linked wallet.
var ErrWalletNotFound = errors.New("no wallet linked")

// ResolveWallet maps a chat participant to their linked wallet address.
func (s *Store) ResolveWallet(ctx context.Context, participantID string) (string, error) {
	var addr string
	err := s.pool.QueryRow(ctx, `
		SELECT wallet_address
		FROM participant_wallets
		WHERE participant_id = $1`,
		participantID,
	).Scan(&addr)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrWalletNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve wallet: %w", err)
	}
	return addr, nil
}

// LinkWallet sets or replaces the participant's wallet.
func (s *Store) LinkWallet(ctx context.Context, participantID, wallet string) error {
	if !lottery.ValidWallet(wallet) {
		return fmt.Errorf("%w: wallet %q", lottery.ErrInvalidRequest, wallet)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO participant_wallets (participant_id, wallet_address, linked_at, updated_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (participant_id)
		DO UPDATE SET
			wallet_address = $2,
			updated_at = now()`,
		participantID, wallet,
	)
	if err != nil {
		return fmt.Errorf("link wallet: %w", err)
	}
	return nil
}
