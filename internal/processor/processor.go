package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/MikeSquared-Agency/jackpot/internal/chat"
	"github.com/MikeSquared-Agency/jackpot/internal/convo"
	"github.com/MikeSquared-Agency/jackpot/internal/dedup"
	"github.com/MikeSquared-Agency/jackpot/internal/extractor"
	"github.com/MikeSquared-Agency/jackpot/internal/hermes"
	"github.com/MikeSquared-Agency/jackpot/internal/intent"
	"github.com/MikeSquared-Agency/jackpot/internal/ledger"
	"github.com/MikeSquared-Agency/jackpot/internal/lottery"
	"github.com/MikeSquared-Agency/jackpot/internal/pool"
	"github.com/MikeSquared-Agency/jackpot/internal/slack"
	"github.com/MikeSquared-Agency/jackpot/internal/store"
)

// Classifier is satisfied by *intent.Classifier.
type Classifier interface {
	Classify(ctx context.Context, key convo.Key, text string) intent.Intent
}

// WalletResolver maps a participant to a wallet. *store.Store implements it.
type WalletResolver interface {
	ResolveWallet(ctx context.Context, participantID string) (string, error)
}

// Assembler is satisfied by *assembler.Assembler.
type Assembler interface {
	Assemble(ctx context.Context, req lottery.PurchaseRequest) (lottery.Transaction, error)
	Claim(ctx context.Context, wallet string) (lottery.Transaction, error)
}

// LotteryReader is satisfied by *ledger.Client.
type LotteryReader interface {
	LotteryState(ctx context.Context) (ledger.State, error)
	PlayerStats(ctx context.Context, wallet string) (ledger.PlayerStats, error)
}

// AuditLog is satisfied by *store.Store.
type AuditLog interface {
	RecordPurchaseRequest(ctx context.Context, participantID string, req lottery.PurchaseRequest, outcome, errText string) error
}

// Publisher is satisfied by *hermes.Client.
type Publisher interface {
	Publish(subject string, data any) error
}

// Deps are the collaborators of a Processor. Audit, Events, Messenger and
// Dedup are optional.
type Deps struct {
	Classifier Classifier
	Contexts   *convo.Store
	Pools      *pool.Ledger
	Wallets    WalletResolver
	Assembler  Assembler
	Lottery    LotteryReader
	Audit      AuditLog
	Events     Publisher
	Messenger  chat.Messenger
	Dedup      *dedup.Filter
}

type Options struct {
	// FastPath executes purchases that state quantity and type in one
	// message without asking for confirmation.
	FastPath bool
	// TicketPrice in 6-decimal token units, used for cost lines.
	TicketPrice int64
}

// Processor runs the conversational purchase flow for every inbound message.
type Processor struct {
	Deps
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	threads map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func New(d Deps, opts Options, logger *slog.Logger) *Processor {
	return &Processor{
		Deps:    d,
		opts:    opts,
		logger:  logger,
		threads: make(map[string]*threadLock),
	}
}

// HandleMessage processes one message and returns the reply. Messages in
// the same thread are handled one at a time, in arrival order. It never
// fails: errors and panics become an apology with the main menu.
func (p *Processor) HandleMessage(ctx context.Context, msg chat.Message) (reply chat.Reply) {
	unlock := p.lockThread(msg.ThreadID)
	defer unlock()

	key := convo.Key{ThreadID: msg.ThreadID, ParticipantID: msg.ParticipantID}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic handling message",
				"thread_id", key.ThreadID,
				"participant_id", key.ParticipantID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			p.Contexts.ClearPendingConfirmation(key)
			reply = menu(textApology)
		}
		reply.ThreadID = msg.ThreadID
		reply.ParticipantID = msg.ParticipantID
	}()

	switch cc := p.Contexts.Get(key); cc.Stage() {
	case convo.StageAwaitingQuantity, convo.StageAwaitingPurchaseType:
		if _, cancel := intent.Vocabulary(msg.Text); cancel {
			return p.handleCancellation(key)
		}
		// A bare "solo" or "pool" answers the purchase-type question and is
		// the confirmation itself.
		if cc.Stage() == convo.StageAwaitingPurchaseType {
			if choice := extractor.WholeChoice(msg.Text); choice != lottery.PurchaseUnknown {
				return p.resolvePurchaseType(ctx, key, cc, choice)
			}
		}
	}

	it := p.Classifier.Classify(ctx, key, msg.Text)
	p.logger.Info("message classified",
		"thread_id", key.ThreadID,
		"participant_id", key.ParticipantID,
		"intent", it.Type,
		"confidence", it.Confidence,
		"quantity", it.Quantity,
		"purchase_type", it.PurchaseType,
		"source", it.Source,
	)

	if it.Type != intent.TypeConfirmation && it.Type != intent.TypeCancellation {
		p.Contexts.Update(key, func(c *convo.Context) {
			c.LastIntentType = string(it.Type)
			c.LastIntentConfidence = it.Confidence
			// Anything other than a purchase abandons a half-finished one.
			if !it.Type.Purchase() && c.Flow.Purchase() {
				c.Flow = convo.FlowNone
				c.PendingQuantity = 0
				c.PendingPoolQuantity = 0
			}
		})
	}

	switch it.Type {
	case intent.TypeBuyTickets, intent.TypePooledPurchase:
		return p.handlePurchase(ctx, key, it)
	case intent.TypeConfirmation:
		return p.handleConfirmation(ctx, key)
	case intent.TypeCancellation:
		return p.handleCancellation(key)
	case intent.TypeCheckStats:
		return p.handleStats(ctx, key, it)
	case intent.TypeJackpotInfo:
		return p.handleJackpot(ctx)
	case intent.TypeClaimWinnings:
		return p.handleClaim(ctx, key)
	case intent.TypeHelp:
		return menu(textHelp)
	case intent.TypeGreeting:
		return menu(textGreeting)
	case intent.TypeGeneralInquiry:
		if it.Guidance != "" {
			return menu(it.Guidance)
		}
		return menu(textHelp)
	default:
		return menu(textUnknown)
	}
}

// HandleInbound is the NATS handler for swarm.chat.message.received.
func (p *Processor) HandleInbound(subject string, data []byte) {
	msg, err := slack.ParseMessageEvent(data)
	if err != nil {
		if !errors.Is(err, slack.ErrIgnored) {
			p.logger.Warn("failed to parse inbound message", "subject", subject, "error", err)
		}
		return
	}
	p.respond(context.Background(), msg)
}

// HandleInteraction is the NATS handler for swarm.chat.interaction. A
// button click is treated as the participant typing the button's value.
func (p *Processor) HandleInteraction(subject string, data []byte) {
	msg, err := slack.ParseInteraction(data)
	if err != nil {
		if !errors.Is(err, slack.ErrIgnored) {
			p.logger.Warn("failed to parse interaction event", "subject", subject, "error", err)
		}
		return
	}
	p.respond(context.Background(), msg)
}

func (p *Processor) respond(ctx context.Context, msg chat.Message) {
	if p.Dedup != nil && msg.MessageID != "" && p.Dedup.Seen(msg.ThreadID+"/"+msg.MessageID) {
		p.logger.Debug("dropping redelivered message",
			"thread_id", msg.ThreadID,
			"message_id", msg.MessageID,
		)
		return
	}
	reply := p.HandleMessage(ctx, msg)
	if p.Messenger == nil {
		return
	}
	if err := p.Messenger.Send(ctx, reply); err != nil {
		p.logger.Error("failed to send reply",
			"thread_id", msg.ThreadID,
			"participant_id", msg.ParticipantID,
			"error", err,
		)
	}
}

func (p *Processor) lockThread(threadID string) func() {
	p.mu.Lock()
	l, ok := p.threads[threadID]
	if !ok {
		l = &threadLock{}
		p.threads[threadID] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.threads, threadID)
		}
		p.mu.Unlock()
	}
}

func (p *Processor) publish(evt hermes.PurchaseEvent) {
	if p.Events == nil {
		return
	}
	if err := p.Events.Publish(hermes.SubjectPurchaseEvent, evt); err != nil {
		p.logger.Warn("failed to publish purchase event", "error", err)
	}
}

func (p *Processor) audit(ctx context.Context, participantID string, req lottery.PurchaseRequest, err error) {
	outcome, errText := store.OutcomeAssembled, ""
	if err != nil {
		outcome, errText = store.OutcomeFailed, err.Error()
	}
	b := req.Base()
	p.publish(hermes.PurchaseEvent{
		RequestID:     b.ID.String(),
		ThreadID:      b.ThreadID,
		ParticipantID: participantID,
		PurchaseType:  string(req.Type()),
		Quantity:      b.Quantity,
		WalletAddress: b.WalletAddress,
		Outcome:       outcome,
		Error:         errText,
	})
	if p.Audit == nil {
		return
	}
	if err := p.Audit.RecordPurchaseRequest(ctx, participantID, req, outcome, errText); err != nil {
		p.logger.Warn("failed to record purchase audit", "request_id", b.ID.String(), "error", err)
	}
}

func menu(text string) chat.Reply {
	return chat.Reply{Text: text, Actions: chat.MainMenu}
}
