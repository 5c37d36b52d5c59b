package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/MikeSquared-Agency/jackpot/internal/chat"
	"github.com/MikeSquared-Agency/jackpot/internal/convo"
	"github.com/MikeSquared-Agency/jackpot/internal/intent"
	"github.com/MikeSquared-Agency/jackpot/internal/lottery"
	"github.com/MikeSquared-Agency/jackpot/internal/pool"
	"github.com/MikeSquared-Agency/jackpot/internal/store"
)

// handlePurchase moves a buy intent through the confirmation protocol:
// ask for a quantity, ask for a type, hold for confirmation, or execute.
func (p *Processor) handlePurchase(ctx context.Context, key convo.Key, it intent.Intent) chat.Reply {
	// A type given while we were still asking for the quantity carries over.
	if it.PurchaseType == lottery.PurchaseUnknown {
		if cc, ok := p.Contexts.Peek(key); ok && cc.Stage() == convo.StageAwaitingQuantity {
			it.PurchaseType = cc.PendingType
		}
	}
	isPool := it.Type == intent.TypePooledPurchase || it.PurchaseType == lottery.PurchasePool

	if it.Quantity == 0 {
		p.Contexts.Update(key, func(c *convo.Context) {
			c.PendingQuantity = 0
			c.PendingPoolQuantity = 0
			c.PendingType = it.PurchaseType
			if isPool {
				c.Flow = convo.FlowPoolPurchase
			} else {
				c.Flow = convo.FlowTicketPurchase
			}
		})
		text := textAskQuantity
		if isPool {
			text = textAskPoolQuantity
		}
		return chat.Reply{Text: text, Actions: chat.QuantityMenu}
	}

	if it.PurchaseType == lottery.PurchaseUnknown {
		p.Contexts.Update(key, func(c *convo.Context) {
			c.Flow = convo.FlowTicketPurchase
			c.PendingQuantity = it.Quantity
			c.PendingPoolQuantity = 0
			c.PendingType = lottery.PurchaseUnknown
		})
		return chat.Reply{
			Text:    fmt.Sprintf(textAskPurchaseType, tickets(it.Quantity)),
			Actions: chat.PurchaseTypeMenu,
		}
	}

	wallet, err := p.resolveWallet(ctx, key)
	if err != nil {
		return p.walletFailure(key, err)
	}

	if it.Explicit && p.opts.FastPath {
		p.Contexts.ClearPendingConfirmation(key)
		return p.execute(ctx, key, wallet, it.Quantity, isPool)
	}

	cc := p.Contexts.SetPendingPurchase(key, it.Quantity, wallet, isPool)
	return chat.Reply{
		Text:    fmt.Sprintf(textConfirm, cc.ConfirmationSummary, p.cost(it.Quantity)),
		Actions: chat.ConfirmMenu,
	}
}

// resolvePurchaseType handles a bare "solo" or "pool" while a quantity is
// waiting for a type. The choice is the confirmation.
func (p *Processor) resolvePurchaseType(ctx context.Context, key convo.Key, cc convo.Context, choice lottery.PurchaseType) chat.Reply {
	wallet, err := p.resolveWallet(ctx, key)
	if err != nil {
		return p.walletFailure(key, err)
	}
	p.Contexts.ClearPendingConfirmation(key)
	return p.execute(ctx, key, wallet, cc.PendingQuantity, choice == lottery.PurchasePool)
}

func (p *Processor) handleConfirmation(ctx context.Context, key convo.Key) chat.Reply {
	cc := p.Contexts.Get(key)
	if !cc.AwaitingConfirmation {
		return menu(textNothingPending)
	}
	isPool := cc.Flow == convo.FlowPoolPurchase
	quantity := cc.PendingQuantity
	if isPool {
		quantity = cc.PendingPoolQuantity
	}
	wallet := cc.WalletAddress
	if wallet == "" {
		var err error
		if wallet, err = p.resolveWallet(ctx, key); err != nil {
			return p.walletFailure(key, err)
		}
	}
	p.Contexts.ClearPendingConfirmation(key)
	return p.execute(ctx, key, wallet, quantity, isPool)
}

func (p *Processor) handleCancellation(key convo.Key) chat.Reply {
	p.Contexts.ClearPendingConfirmation(key)
	return menu(textCancelled)
}

// execute hands the purchase to the transaction assembler. Failures are
// reported and not retried; the context is already idle either way.
func (p *Processor) execute(ctx context.Context, key convo.Key, wallet string, quantity int, isPool bool) chat.Reply {
	var req lottery.PurchaseRequest
	if isPool {
		contract, err := p.Pools.ContractFor(key.ThreadID)
		if err != nil {
			p.logger.Warn("pool purchase without contract", "thread_id", key.ThreadID, "error", err)
			return menu(textNoPoolContract)
		}
		req = lottery.NewPool(wallet, quantity, key.ThreadID, contract)
	} else {
		req = lottery.NewSolo(wallet, quantity, key.ThreadID)
	}

	tx, err := p.Assembler.Assemble(ctx, req)
	p.audit(ctx, key.ParticipantID, req, err)
	if err != nil {
		p.logger.Error("purchase failed",
			"thread_id", key.ThreadID,
			"participant_id", key.ParticipantID,
			"request_id", req.Base().ID.String(),
			"purchase_type", req.Type(),
			"quantity", quantity,
			"error", err,
		)
		return menu(textPurchaseFailed)
	}

	p.logger.Info("purchase assembled",
		"thread_id", key.ThreadID,
		"participant_id", key.ParticipantID,
		"request_id", req.Base().ID.String(),
		"purchase_type", req.Type(),
		"quantity", quantity,
	)

	text := fmt.Sprintf(textPurchased, tickets(quantity), p.cost(quantity))
	if isPool {
		share, err := p.Pools.RecordPurchase(key.ThreadID, key.ParticipantID, wallet, quantity)
		if err != nil {
			p.logger.Error("failed to record pool purchase", "thread_id", key.ThreadID, "error", err)
		} else {
			text = fmt.Sprintf(textPoolPurchased, tickets(quantity), p.cost(quantity),
				share.Tickets, share.TotalTickets, share.SharePercent) + "\n" + textPoolNotice
		}
	}
	return chat.Reply{Text: text, Actions: chat.MainMenu, Transaction: &tx}
}

// resolveWallet returns the cached wallet or looks it up and caches it.
func (p *Processor) resolveWallet(ctx context.Context, key convo.Key) (string, error) {
	if cc, ok := p.Contexts.Peek(key); ok && cc.WalletAddress != "" {
		return cc.WalletAddress, nil
	}
	if p.Wallets == nil {
		return "", store.ErrWalletNotFound
	}
	wallet, err := p.Wallets.ResolveWallet(ctx, key.ParticipantID)
	if err != nil {
		return "", err
	}
	p.Contexts.Update(key, func(c *convo.Context) { c.WalletAddress = wallet })
	return wallet, nil
}

// walletFailure leaves the context as it was so the participant can retry
// once a wallet is linked.
func (p *Processor) walletFailure(key convo.Key, err error) chat.Reply {
	if errors.Is(err, store.ErrWalletNotFound) {
		p.logger.Info("no wallet linked", "participant_id", key.ParticipantID)
		return chat.Reply{Text: textNoWallet}
	}
	p.logger.Error("wallet lookup failed", "participant_id", key.ParticipantID, "error", err)
	return chat.Reply{Text: textWalletLookupFailed}
}

func (p *Processor) cost(quantity int) string {
	return lottery.FormatUnits(int64(quantity) * p.opts.TicketPrice)
}

func tickets(n int) string {
	if n == 1 {
		return "1 ticket"
	}
	return fmt.Sprintf("%d tickets", n)
}

// poolErr reports whether err means the thread simply has no pool yet.
func poolErr(err error) bool {
	return errors.Is(err, pool.ErrPoolNotFound) || errors.Is(err, pool.ErrUnboundPool)
}
