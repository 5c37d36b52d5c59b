// Package pool tracks proportional contributions to per-thread ticket pools.
//
// Writes are local and immediate. The authoritative totals live in the pool
// contract and are only pulled in by Reconcile, so local and on-chain figures
// are eventually, not strongly, consistent.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/jackpot/internal/clock"
	"github.com/MikeSquared-Agency/jackpot/internal/ledger"
	"github.com/MikeSquared-Agency/jackpot/internal/lottery"
)

var (
	ErrPoolNotFound     = errors.New("pool not found")
	ErrUnboundPool      = errors.New("pool has no contract address")
	ErrContractMismatch = errors.New("pool already bound to a different contract")
)

const (
	// DefaultRetention is how long an empty pool survives without activity.
	DefaultRetention = 30 * 24 * time.Hour
	// TopContributorsLimit caps Status.TopContributors.
	TopContributorsLimit = 5
)

// AggregateReader is satisfied by *ledger.Client.
type AggregateReader interface {
	ReadPoolAggregate(ctx context.Context, contract string) (ledger.PoolAggregate, error)
}

// Member is one participant's stake in a pool.
type Member struct {
	ParticipantID     string    `json:"participant_id"`
	WalletAddress     string    `json:"wallet_address"`
	TicketsPurchased  int       `json:"tickets_purchased"`
	AmountContributed int64     `json:"amount_contributed"`
	LastPurchaseTime  time.Time `json:"last_purchase_time"`

	seq int
}

type pool struct {
	threadID         string
	contract         string
	members          map[string]*Member
	totalTickets     int
	totalContributed int64
	createdAt        time.Time
	lastActivity     time.Time
	nextSeq          int

	onChainTickets  int
	pendingWinnings int64
	reconciledAt    time.Time
}

// Status is a snapshot of one pool.
type Status struct {
	ThreadID         string    `json:"thread_id"`
	ContractAddress  string    `json:"contract_address"`
	Members          int       `json:"members"`
	TotalTickets     int       `json:"total_tickets"`
	TotalContributed int64     `json:"total_contributed"`
	TopContributors  []Member  `json:"top_contributors"`
	CreatedAt        time.Time `json:"created_at"`
	LastActivity     time.Time `json:"last_activity"`

	// On-chain figures from the last Reconcile. Zero until reconciled.
	OnChainTickets  int       `json:"on_chain_tickets"`
	PendingWinnings int64     `json:"pending_winnings"`
	ReconciledAt    time.Time `json:"reconciled_at,omitempty"`
}

// Share is one participant's proportion of a pool.
type Share struct {
	Tickets      int     `json:"tickets"`
	TotalTickets int     `json:"total_tickets"`
	SharePercent float64 `json:"share_percent"`
}

type Options struct {
	// UnitPrice is the ticket price in 6-decimal token units.
	UnitPrice int64
	// DefaultContract binds new pools that were never explicitly bound.
	DefaultContract string
	Retention       time.Duration
}

// Ledger owns every pool in the process.
type Ledger struct {
	clock  clock.Clock
	reader AggregateReader
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	pools map[string]*pool
}

func New(clk clock.Clock, reader AggregateReader, opts Options, logger *slog.Logger) *Ledger {
	if clk == nil {
		clk = clock.Real{}
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	return &Ledger{
		clock:  clk,
		reader: reader,
		opts:   opts,
		logger: logger,
		pools:  make(map[string]*pool),
	}
}

// Bind ties thread's pool to contract, creating the pool if needed. A pool
// that already holds tickets cannot move to another contract.
func (l *Ledger) Bind(threadID, contract string) error {
	if !lottery.ValidWallet(contract) {
		return fmt.Errorf("%w: contract %q", lottery.ErrInvalidRequest, contract)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pools[threadID]
	if !ok {
		l.pools[threadID] = l.newPool(threadID, contract)
		return nil
	}
	if p.contract != contract && p.totalTickets > 0 {
		return ErrContractMismatch
	}
	p.contract = contract
	return nil
}

// ContractFor returns the contract a purchase in thread would go to.
func (l *Ledger) ContractFor(threadID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.pools[threadID]; ok && p.contract != "" {
		return p.contract, nil
	}
	if l.opts.DefaultContract != "" {
		return l.opts.DefaultContract, nil
	}
	return "", ErrUnboundPool
}

// RecordPurchase adds quantity tickets for participant, creating the pool
// and member on first use. Member and pool totals move together.
func (l *Ledger) RecordPurchase(threadID, participantID, wallet string, quantity int) (Share, error) {
	if !lottery.ValidQuantity(quantity) {
		return Share{}, fmt.Errorf("%w: quantity %d", lottery.ErrInvalidRequest, quantity)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pools[threadID]
	if !ok {
		if l.opts.DefaultContract == "" {
			return Share{}, ErrUnboundPool
		}
		p = l.newPool(threadID, l.opts.DefaultContract)
		l.pools[threadID] = p
	}
	if p.contract == "" {
		return Share{}, ErrUnboundPool
	}

	now := l.clock.Now()
	m, ok := p.members[participantID]
	if !ok {
		m = &Member{ParticipantID: participantID, seq: p.nextSeq}
		p.nextSeq++
		p.members[participantID] = m
	}
	if wallet != "" {
		m.WalletAddress = wallet
	}
	amount := int64(quantity) * l.opts.UnitPrice
	m.TicketsPurchased += quantity
	m.AmountContributed += amount
	m.LastPurchaseTime = now

	p.totalTickets += quantity
	p.totalContributed += amount
	p.lastActivity = now

	l.logger.Info("pool purchase recorded",
		"thread_id", threadID,
		"participant_id", participantID,
		"quantity", quantity,
		"pool_tickets", p.totalTickets,
	)
	return shareOf(p, participantID), nil
}

// GetStatus returns the pool snapshot with contributors ordered by tickets,
// earliest member first on ties.
func (l *Ledger) GetStatus(threadID string) (Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pools[threadID]
	if !ok {
		return Status{}, ErrPoolNotFound
	}
	return statusOf(p), nil
}

// Members returns every member of thread's pool in contributor order.
func (l *Ledger) Members(threadID string) ([]Member, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pools[threadID]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return rankedMembers(p), nil
}

// GetShare returns participant's share of thread's pool. A participant with
// no purchases has a zero share.
func (l *Ledger) GetShare(threadID, participantID string) (Share, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pools[threadID]
	if !ok {
		return Share{}, ErrPoolNotFound
	}
	return shareOf(p, participantID), nil
}

// Reconcile pulls the on-chain aggregate for thread's pool. On failure the
// pool is left untouched.
func (l *Ledger) Reconcile(ctx context.Context, threadID string) (Status, error) {
	l.mu.Lock()
	p, ok := l.pools[threadID]
	if !ok {
		l.mu.Unlock()
		return Status{}, ErrPoolNotFound
	}
	contract := p.contract
	l.mu.Unlock()

	if l.reader == nil || contract == "" {
		return l.GetStatus(threadID)
	}

	agg, err := l.reader.ReadPoolAggregate(ctx, contract)
	if err != nil {
		return Status{}, fmt.Errorf("reconcile pool %s: %w", threadID, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok = l.pools[threadID]
	if !ok {
		return Status{}, ErrPoolNotFound
	}
	p.onChainTickets = agg.TotalTickets
	p.pendingWinnings = agg.PendingWinnings
	p.reconciledAt = l.clock.Now()

	if agg.TotalTickets != p.totalTickets {
		l.logger.Debug("pool differs from chain",
			"thread_id", threadID,
			"local_tickets", p.totalTickets,
			"chain_tickets", agg.TotalTickets,
		)
	}
	return statusOf(p), nil
}

// ProjectPayout splits winnings across members by tickets. Amounts are
// floored so the sum never exceeds winnings.
func (l *Ledger) ProjectPayout(threadID string, winnings int64) (map[string]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pools[threadID]
	if !ok {
		return nil, ErrPoolNotFound
	}
	out := make(map[string]int64, len(p.members))
	if p.totalTickets == 0 {
		return out, nil
	}
	for id, m := range p.members {
		out[id] = winnings * int64(m.TicketsPurchased) / int64(p.totalTickets)
	}
	return out, nil
}

// GC removes empty pools idle past the retention window.
func (l *Ledger) GC() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.clock.Now().Add(-l.opts.Retention)
	removed := 0
	for id, p := range l.pools {
		if p.totalTickets == 0 && p.lastActivity.Before(cutoff) {
			delete(l.pools, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of pools.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pools)
}

// Run collects garbage every interval until ctx is cancelled.
func (l *Ledger) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := l.GC(); n > 0 {
				l.logger.Info("collected idle pools", "count", n)
			}
		}
	}
}

// Close drops every pool.
func (l *Ledger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pools = make(map[string]*pool)
}

func (l *Ledger) newPool(threadID, contract string) *pool {
	now := l.clock.Now()
	return &pool{
		threadID:     threadID,
		contract:     contract,
		members:      make(map[string]*Member),
		createdAt:    now,
		lastActivity: now,
	}
}

func statusOf(p *pool) Status {
	members := rankedMembers(p)
	if len(members) > TopContributorsLimit {
		members = members[:TopContributorsLimit]
	}
	return Status{
		ThreadID:         p.threadID,
		ContractAddress:  p.contract,
		Members:          len(p.members),
		TotalTickets:     p.totalTickets,
		TotalContributed: p.totalContributed,
		TopContributors:  members,
		CreatedAt:        p.createdAt,
		LastActivity:     p.lastActivity,
		OnChainTickets:   p.onChainTickets,
		PendingWinnings:  p.pendingWinnings,
		ReconciledAt:     p.reconciledAt,
	}
}

func rankedMembers(p *pool) []Member {
	members := make([]Member, 0, len(p.members))
	for _, m := range p.members {
		members = append(members, *m)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].TicketsPurchased != members[j].TicketsPurchased {
			return members[i].TicketsPurchased > members[j].TicketsPurchased
		}
		return members[i].seq < members[j].seq
	})
	return members
}

func shareOf(p *pool, participantID string) Share {
	s := Share{TotalTickets: p.totalTickets}
	if m, ok := p.members[participantID]; ok {
		s.Tickets = m.TicketsPurchased
	}
	if p.totalTickets > 0 {
		s.SharePercent = math.Round(float64(s.Tickets)*10000/float64(p.totalTickets)) / 100
	}
	return s
}
