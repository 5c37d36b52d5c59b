package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/jackpot/internal/chat"
	"github.com/MikeSquared-Agency/jackpot/internal/convo"
	"github.com/MikeSquared-Agency/jackpot/internal/intent"
	"github.com/MikeSquared-Agency/jackpot/internal/ledger"
	"github.com/MikeSquared-Agency/jackpot/internal/lottery"
)

func (p *Processor) handleStats(ctx context.Context, key convo.Key, it intent.Intent) chat.Reply {
	p.Contexts.Update(key, func(c *convo.Context) {
		if !c.Flow.Purchase() {
			c.Flow = convo.FlowStatsInquiry
		}
	})
	if it.PurchaseType == lottery.PurchasePool {
		return p.poolStats(ctx, key)
	}

	wallet, err := p.resolveWallet(ctx, key)
	if err != nil {
		return p.walletFailure(key, err)
	}
	stats, err := p.Lottery.PlayerStats(ctx, wallet)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return menu(textNoTickets)
	case err != nil:
		p.logger.Error("failed to read player stats", "participant_id", key.ParticipantID, "error", err)
		return menu(textLedgerUnavailable)
	}
	if stats.Tickets == 0 && stats.PendingWinnings == 0 {
		return menu(textNoTickets)
	}
	return menu(fmt.Sprintf(textStats, tickets(stats.Tickets), stats.OddsPercent,
		lottery.FormatUnits(stats.PendingWinnings)) + "\n" + textPoolNotice)
}

// poolStats reconciles the thread's pool and reports it with the
// participant's share. A failed reconcile falls back to local figures.
func (p *Processor) poolStats(ctx context.Context, key convo.Key) chat.Reply {
	st, err := p.Pools.Reconcile(ctx, key.ThreadID)
	if err != nil && !poolErr(err) {
		p.logger.Warn("pool reconcile failed, using local figures", "thread_id", key.ThreadID, "error", err)
		st, err = p.Pools.GetStatus(key.ThreadID)
	}
	if err != nil {
		return menu(textNoPool)
	}
	share, err := p.Pools.GetShare(key.ThreadID, key.ParticipantID)
	if err != nil {
		return menu(textNoPool)
	}

	var b strings.Builder
	fmt.Fprintf(&b, textPoolStatus, st.TotalTickets, st.Members, lottery.FormatUnits(st.TotalContributed))
	if len(st.TopContributors) > 0 {
		b.WriteString("\nTop contributors:")
		for i, m := range st.TopContributors {
			fmt.Fprintf(&b, "\n%d. <@%s> %s", i+1, m.ParticipantID, tickets(m.TicketsPurchased))
		}
	}
	fmt.Fprintf(&b, "\n"+textPoolShare, share.Tickets, share.TotalTickets, share.SharePercent)
	if !st.ReconciledAt.IsZero() {
		fmt.Fprintf(&b, "\nOn-chain: %s, %s USDC pending winnings.",
			tickets(st.OnChainTickets), lottery.FormatUnits(st.PendingWinnings))
	}
	if st.PendingWinnings > 0 {
		if payouts, err := p.Pools.ProjectPayout(key.ThreadID, st.PendingWinnings); err == nil {
			fmt.Fprintf(&b, "\n"+textPoolPayout, lottery.FormatUnits(payouts[key.ParticipantID]))
		}
	}
	b.WriteString("\n" + textPoolNotice)
	return menu(b.String())
}

func (p *Processor) handleJackpot(ctx context.Context) chat.Reply {
	st, err := p.Lottery.LotteryState(ctx)
	if err != nil {
		p.logger.Error("failed to read lottery state", "error", err)
		return menu(textLedgerUnavailable)
	}
	return menu("Current round: " + ledger.Describe(st) + ".")
}

func (p *Processor) handleClaim(ctx context.Context, key convo.Key) chat.Reply {
	wallet, err := p.resolveWallet(ctx, key)
	if err != nil {
		return p.walletFailure(key, err)
	}
	stats, err := p.Lottery.PlayerStats(ctx, wallet)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		p.logger.Error("failed to read player stats", "participant_id", key.ParticipantID, "error", err)
		return menu(textLedgerUnavailable)
	}
	if stats.PendingWinnings <= 0 {
		return menu(textNothingToClaim)
	}

	tx, err := p.Assembler.Claim(ctx, wallet)
	if err != nil {
		p.logger.Error("claim failed", "participant_id", key.ParticipantID, "error", err)
		return menu(textPurchaseFailed)
	}
	p.logger.Info("claim assembled", "participant_id", key.ParticipantID, "amount", stats.PendingWinnings)
	return chat.Reply{
		Text:        fmt.Sprintf(textClaim, lottery.FormatUnits(stats.PendingWinnings)),
		Actions:     chat.MainMenu,
		Transaction: &tx,
	}
}
