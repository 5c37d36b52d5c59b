// Package intent turns a chat message into a typed purchase intent.
//
// Classification is two-tier. While a purchase is awaiting confirmation the
// whole message is matched against fixed yes/no vocabularies. Otherwise an
// ordered list of strategies is tried until one succeeds: language-model
// guidance first, deterministic rules last. The rules strategy never fails.
package intent

import (
	"context"
	"log/slog"

	"github.com/MikeSquared-Agency/jackpot/internal/convo"
	"github.com/MikeSquared-Agency/jackpot/internal/extractor"
	"github.com/MikeSquared-Agency/jackpot/internal/lottery"
)

// Type is the kind of request a message expresses.
type Type string

const (
	TypeBuyTickets     Type = "buy_tickets"
	TypeCheckStats     Type = "check_stats"
	TypeJackpotInfo    Type = "jackpot_info"
	TypeClaimWinnings  Type = "claim_winnings"
	TypeHelp           Type = "help"
	TypeGreeting       Type = "greeting"
	TypePooledPurchase Type = "pooled_purchase"
	TypeConfirmation   Type = "confirmation"
	TypeCancellation   Type = "cancellation"
	TypeGeneralInquiry Type = "general_inquiry"
	TypeUnknown        Type = "unknown"
)

// Purchase reports whether t starts or continues a purchase.
func (t Type) Purchase() bool {
	return t == TypeBuyTickets || t == TypePooledPurchase
}

// Confidence values are fixed per rule. They order rules against each
// other and are not probabilities.
const (
	ConfidenceVocabulary = 0.95
	ConfidenceExplicit   = 0.9
	ConfidenceKeyword    = 0.85
	ConfidenceGuidance   = 0.8
	ConfidenceFollowUp   = 0.8
	ConfidenceVague      = 0.7
	ConfidenceBareNumber = 0.6
	ConfidenceInquiry    = 0.5
	ConfidenceNoMatch    = 0.3
)

// Source records which layer produced an Intent.
type Source string

const (
	SourceVocabulary Source = "vocabulary"
	SourceGuidance   Source = "guidance"
	SourceRules      Source = "rules"
)

// Intent is produced fresh for every message and never stored.
type Intent struct {
	Type       Type    `json:"type"`
	Confidence float64 `json:"confidence"`

	Quantity     int                  `json:"quantity,omitempty"`
	PurchaseType lottery.PurchaseType `json:"purchase_type,omitempty"`
	// Explicit is set when this message itself stated both a quantity and
	// a purchase type.
	Explicit bool `json:"explicit,omitempty"`
	Confirm  bool `json:"confirm,omitempty"`
	Cancel   bool `json:"cancel,omitempty"`

	// Guidance is the language model's suggested reply, if any.
	Guidance string `json:"guidance,omitempty"`
	Source   Source `json:"source"`
}

// ContextStore is the slice of convo.Store the classifier needs.
type ContextStore interface {
	Get(key convo.Key) convo.Context
	ClearPendingConfirmation(key convo.Key) convo.Context
}

var confirmVocabulary = map[string]struct{}{
	"yes": {}, "yeah": {}, "yep": {}, "ok": {}, "confirm": {}, "approve": {}, "proceed": {}, "continue": {},
}

var cancelVocabulary = map[string]struct{}{
	"no": {}, "nope": {}, "cancel": {}, "stop": {}, "abort": {}, "nevermind": {},
}

// Classifier resolves messages into intents.
type Classifier struct {
	store      ContextStore
	strategies []Strategy
	logger     *slog.Logger
}

// New builds a Classifier that tries strategies in order and always ends
// with the rules strategy.
func New(store ContextStore, logger *slog.Logger, strategies ...Strategy) *Classifier {
	chain := make([]Strategy, 0, len(strategies)+1)
	for _, s := range strategies {
		if s != nil {
			chain = append(chain, s)
		}
	}
	chain = append(chain, Rules{})
	return &Classifier{store: store, strategies: chain, logger: logger}
}

// Classify never fails. A pending confirmation is either resolved by a
// whole-message yes/no or abandoned before the new message is classified.
func (c *Classifier) Classify(ctx context.Context, key convo.Key, text string) Intent {
	cc := c.store.Get(key)

	if cc.AwaitingConfirmation {
		if it, ok := matchVocabulary(text, cc); ok {
			return it
		}
		c.logger.Debug("pending confirmation abandoned",
			"thread_id", key.ThreadID,
			"participant_id", key.ParticipantID,
		)
		cc = c.store.ClearPendingConfirmation(key)
	}

	in := Input{Text: text, Context: cc, Extraction: extractor.Extract(text)}

	for _, s := range c.strategies {
		it, err := s.Resolve(ctx, in)
		if err != nil {
			c.logger.Warn("classification strategy failed, falling back",
				"strategy", s.Name(),
				"thread_id", key.ThreadID,
				"error", err,
			)
			continue
		}
		return finalize(in, it)
	}
	return Intent{Type: TypeUnknown, Confidence: ConfidenceNoMatch, Source: SourceRules}
}

// Vocabulary matches text against the confirmation and cancellation
// vocabularies as a whole message.
func Vocabulary(text string) (confirm, cancel bool) {
	norm := extractor.Normalize(text)
	_, confirm = confirmVocabulary[norm]
	_, cancel = cancelVocabulary[norm]
	return confirm, cancel
}

func matchVocabulary(text string, cc convo.Context) (Intent, bool) {
	confirm, cancel := Vocabulary(text)
	if !confirm && !cancel {
		return Intent{}, false
	}

	it := Intent{Confidence: ConfidenceVocabulary, Source: SourceVocabulary}
	switch cc.Flow {
	case convo.FlowPoolPurchase:
		it.Quantity = cc.PendingPoolQuantity
		it.PurchaseType = lottery.PurchasePool
	case convo.FlowTicketPurchase:
		it.Quantity = cc.PendingQuantity
		it.PurchaseType = lottery.PurchaseSolo
	}
	if confirm {
		it.Type = TypeConfirmation
		it.Confirm = true
	} else {
		it.Type = TypeCancellation
		it.Cancel = true
	}
	return it, true
}

// finalize applies the tie-breaks shared by every strategy.
func finalize(in Input, it Intent) Intent {
	ex := in.Extraction

	// The extractor's pattern match is deterministic, so its quantity and
	// purchase hint override whatever the strategy read.
	if ex.HasQuantity() {
		it.Quantity = ex.Quantity
	} else if !lottery.ValidQuantity(it.Quantity) {
		it.Quantity = 0
	}
	if ex.PurchaseType != lottery.PurchaseUnknown {
		it.PurchaseType = ex.PurchaseType
	}

	// A bare number while we are waiting for a quantity continues that flow.
	if in.Context.Stage() == convo.StageAwaitingQuantity && ex.HasQuantity() {
		switch it.Type {
		case TypeUnknown, TypeGeneralInquiry, TypeBuyTickets, TypePooledPurchase:
			if in.Context.Flow == convo.FlowPoolPurchase {
				it.Type = TypePooledPurchase
			} else if it.Type != TypePooledPurchase {
				it.Type = TypeBuyTickets
			}
			if it.Confidence < ConfidenceFollowUp {
				it.Confidence = ConfidenceFollowUp
			}
		}
	}

	// Pool keywords outrank generic buy keywords.
	if it.Type == TypeBuyTickets && ex.PurchaseType == lottery.PurchasePool {
		it.Type = TypePooledPurchase
	}
	if it.Type == TypePooledPurchase {
		it.PurchaseType = lottery.PurchasePool
	}

	if !it.Type.Purchase() {
		it.Quantity = 0
		it.Explicit = false
		if it.Type != TypeCheckStats {
			it.PurchaseType = lottery.PurchaseUnknown
		}
		return it
	}
	it.Explicit = ex.HasQuantity() && ex.PurchaseType != lottery.PurchaseUnknown
	return it
}
