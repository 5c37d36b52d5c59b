// Package assembler hands finalized purchase requests to the external
// transaction assembler and returns signable call data. Nothing here signs
// or submits transactions.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/jackpot/internal/hermes"
	"github.com/MikeSquared-Agency/jackpot/internal/lottery"
)

// ErrRejected is returned when the assembler answered with an error.
var ErrRejected = errors.New("transaction assembler rejected request")

const DefaultTimeout = 10 * time.Second

// Requester is satisfied by *hermes.Client.
type Requester interface {
	Request(ctx context.Context, subject string, data, out any) error
}

type ClaimRequest struct {
	ID            uuid.UUID `json:"id"`
	WalletAddress string    `json:"wallet_address"`
}

// Reply is what the assembler sends back on both subjects.
type Reply struct {
	Transaction *lottery.Transaction `json:"transaction,omitempty"`
	Error       string               `json:"error,omitempty"`
}

type Assembler struct {
	nc      Requester
	timeout time.Duration
	logger  *slog.Logger
}

func New(nc Requester, timeout time.Duration, logger *slog.Logger) *Assembler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Assembler{nc: nc, timeout: timeout, logger: logger}
}

// Assemble validates req and asks the assembler for its call data.
func (a *Assembler) Assemble(ctx context.Context, req lottery.PurchaseRequest) (lottery.Transaction, error) {
	if err := req.Validate(); err != nil {
		return lottery.Transaction{}, err
	}
	base := req.Base()

	tx, err := a.call(ctx, hermes.SubjectPurchaseTx, lottery.ToEnvelope(req))
	if err != nil {
		a.logger.Warn("purchase assembly failed",
			"request_id", base.ID.String(),
			"thread_id", base.ThreadID,
			"purchase_type", req.Type(),
			"error", err,
		)
		return lottery.Transaction{}, fmt.Errorf("assemble %s purchase: %w", req.Type(), err)
	}

	a.logger.Info("purchase assembled",
		"request_id", base.ID.String(),
		"thread_id", base.ThreadID,
		"purchase_type", req.Type(),
		"quantity", base.Quantity,
	)
	return tx, nil
}

// Claim asks the assembler for a winnings claim transaction.
func (a *Assembler) Claim(ctx context.Context, wallet string) (lottery.Transaction, error) {
	if !lottery.ValidWallet(wallet) {
		return lottery.Transaction{}, fmt.Errorf("%w: wallet %q", lottery.ErrInvalidRequest, wallet)
	}
	tx, err := a.call(ctx, hermes.SubjectClaimTx, ClaimRequest{ID: uuid.New(), WalletAddress: wallet})
	if err != nil {
		return lottery.Transaction{}, fmt.Errorf("assemble claim: %w", err)
	}
	return tx, nil
}

func (a *Assembler) call(ctx context.Context, subject string, payload any) (lottery.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var reply Reply
	if err := a.nc.Request(ctx, subject, payload, &reply); err != nil {
		return lottery.Transaction{}, err
	}
	if reply.Error != "" {
		return lottery.Transaction{}, fmt.Errorf("%w: %s", ErrRejected, reply.Error)
	}
	if reply.Transaction == nil {
		return lottery.Transaction{}, fmt.Errorf("%w: empty reply", ErrRejected)
	}
	return *reply.Transaction, nil
}
