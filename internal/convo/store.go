// Package convo keeps per-(thread, participant) conversational state in
// memory with a sliding idle timeout.
package convo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/jackpot/internal/clock"
	"github.com/MikeSquared-Agency/jackpot/internal/lottery"
)

// DefaultIdleTimeout is how long a context survives without a message.
const DefaultIdleTimeout = 5 * time.Minute

// Flow is the multi-turn activity a participant is in the middle of.
type Flow string

const (
	FlowNone           Flow = ""
	FlowTicketPurchase Flow = "ticket_purchase"
	FlowPoolPurchase   Flow = "pool_purchase"
	FlowStatsInquiry   Flow = "stats_inquiry"
)

// Purchase reports whether f is one of the buying flows.
func (f Flow) Purchase() bool {
	return f == FlowTicketPurchase || f == FlowPoolPurchase
}

// Key identifies one participant inside one thread.
type Key struct {
	ThreadID      string
	ParticipantID string
}

func (k Key) String() string { return k.ThreadID + "/" + k.ParticipantID }

// Context is the conversational record for a Key. Store hands out copies;
// mutate through Update and friends.
type Context struct {
	Key Key

	Flow                 Flow
	PendingQuantity      int
	PendingPoolQuantity  int
	AwaitingConfirmation bool
	ConfirmationSummary  string
	// PendingType is a purchase type stated before the quantity was known.
	PendingType lottery.PurchaseType

	WalletAddress string

	LastIntentType       string
	LastIntentConfidence float64

	LastTouched time.Time
}

// Stage is the confirmation protocol position derived from a Context.
type Stage string

const (
	StageIdle                 Stage = "idle"
	StageAwaitingQuantity     Stage = "awaiting_quantity"
	StageAwaitingPurchaseType Stage = "awaiting_purchase_type"
	StageAwaitingConfirmation Stage = "awaiting_confirmation"
)

// Stage derives the protocol state. A purchase flow with no quantity is
// waiting for one; a ticket flow holding a quantity without a confirmation is
// waiting for the participant to pick solo or pool.
func (c Context) Stage() Stage {
	switch {
	case c.AwaitingConfirmation:
		return StageAwaitingConfirmation
	case c.Flow == FlowTicketPurchase && c.PendingQuantity > 0:
		return StageAwaitingPurchaseType
	case c.Flow.Purchase():
		return StageAwaitingQuantity
	default:
		return StageIdle
	}
}

// Summary is a one-line description of the context for prompts and logs.
func (c Context) Summary() string {
	if c.Flow == FlowNone && c.LastIntentType == "" {
		return "no active conversation"
	}
	s := fmt.Sprintf("stage=%s flow=%s", c.Stage(), flowLabel(c.Flow))
	if c.PendingQuantity > 0 {
		s += fmt.Sprintf(" pending_quantity=%d", c.PendingQuantity)
	}
	if c.PendingPoolQuantity > 0 {
		s += fmt.Sprintf(" pending_pool_quantity=%d", c.PendingPoolQuantity)
	}
	if c.LastIntentType != "" {
		s += fmt.Sprintf(" last_intent=%s(%.2f)", c.LastIntentType, c.LastIntentConfidence)
	}
	return s
}

func flowLabel(f Flow) string {
	if f == FlowNone {
		return "none"
	}
	return string(f)
}

// clearPending resets every pending field. Flow and confirmation are cleared
// together so AwaitingConfirmation never outlives its flow.
func (c *Context) clearPending() {
	c.Flow = FlowNone
	c.PendingQuantity = 0
	c.PendingPoolQuantity = 0
	c.PendingType = lottery.PurchaseUnknown
	c.AwaitingConfirmation = false
	c.ConfirmationSummary = ""
}

// Store owns every live Context.
type Store struct {
	clock  clock.Clock
	idle   time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	contexts map[Key]*Context
}

// New builds a Store. A nil clock uses the system clock; a non-positive
// idle uses DefaultIdleTimeout.
func New(clk clock.Clock, idle time.Duration, logger *slog.Logger) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Store{
		clock:    clk,
		idle:     idle,
		logger:   logger,
		contexts: make(map[Key]*Context),
	}
}

// Get returns the context for key, creating it on first access, and
// refreshes LastTouched.
func (s *Store) Get(key Key) Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.touch(key)
}

// Peek returns the context without creating or refreshing it.
func (s *Store) Peek(key Key) (Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[key]
	if !ok {
		return Context{}, false
	}
	return *c, true
}

// Update applies fn to the context for key and refreshes LastTouched.
// Clearing Flow inside fn also clears any pending confirmation.
func (s *Store) Update(key Key, fn func(c *Context)) Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.touch(key)
	fn(c)
	c.Key = key
	if c.Flow == FlowNone {
		c.PendingType = lottery.PurchaseUnknown
		c.AwaitingConfirmation = false
		c.ConfirmationSummary = ""
	}
	return *c
}

// SetPendingPurchase holds a purchase of quantity tickets awaiting an
// explicit yes/no.
func (s *Store) SetPendingPurchase(key Key, quantity int, wallet string, isPool bool) Context {
	return s.Update(key, func(c *Context) {
		c.clearPending()
		if isPool {
			c.Flow = FlowPoolPurchase
			c.PendingPoolQuantity = quantity
		} else {
			c.Flow = FlowTicketPurchase
			c.PendingQuantity = quantity
		}
		if wallet != "" {
			c.WalletAddress = wallet
		}
		c.AwaitingConfirmation = true
		c.ConfirmationSummary = renderSummary(quantity, c.WalletAddress, isPool)
	})
}

// ClearPendingConfirmation returns the context to idle.
func (s *Store) ClearPendingConfirmation(key Key) Context {
	return s.Update(key, func(c *Context) { c.clearPending() })
}

// Sweep evicts every context idle for longer than the idle window and
// returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.clock.Now().Add(-s.idle)
	removed := 0
	for k, c := range s.contexts {
		if c.LastTouched.Before(cutoff) {
			delete(s.contexts, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live contexts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contexts)
}

// Run sweeps every interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = s.idle
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("evicted idle conversations", "count", n)
			}
		}
	}
}

// Close drops all state. Later calls to Get start from empty contexts.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts = make(map[Key]*Context)
}

func (s *Store) touch(key Key) *Context {
	c, ok := s.contexts[key]
	if !ok {
		c = &Context{Key: key}
		s.contexts[key] = c
	}
	c.LastTouched = s.clock.Now()
	return c
}

func renderSummary(quantity int, wallet string, isPool bool) string {
	noun := "tickets"
	if quantity == 1 {
		noun = "ticket"
	}
	dest := "for your wallet"
	if wallet != "" {
		dest = "for " + shortAddress(wallet)
	}
	if isPool {
		return fmt.Sprintf("Buy %d %s in this chat's pool %s", quantity, noun, dest)
	}
	return fmt.Sprintf("Buy %d %s %s", quantity, noun, dest)
}

// shortAddress renders 0x1234…abcd.
func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
