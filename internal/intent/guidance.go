package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/jackpot/internal/anthropic"
	"github.com/MikeSquared-Agency/jackpot/internal/convo"
	"github.com/MikeSquared-Agency/jackpot/internal/extractor"
	"github.com/MikeSquared-Agency/jackpot/internal/lottery"
)

// ErrNoGuidance is returned when the language model produced nothing usable.
var ErrNoGuidance = errors.New("no usable guidance")

// DefaultGuidanceTimeout bounds one guidance round trip.
const DefaultGuidanceTimeout = 8 * time.Second

// Input is what every strategy sees for one message.
type Input struct {
	Text       string
	Context    convo.Context
	Extraction extractor.Result
}

// Strategy is one classification layer. Returning an error hands the
// message to the next strategy.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, in Input) (Intent, error)
}

// Completer is satisfied by *anthropic.Client.
type Completer interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (string, error)
}

// StateDescriber renders current lottery state for the prompt.
type StateDescriber interface {
	DescribeState(ctx context.Context) (string, error)
}

// Guided asks a language model to classify the message.
type Guided struct {
	llm     Completer
	state   StateDescriber
	timeout time.Duration
	logger  *slog.Logger
}

// NewGuided returns nil when llm is nil so callers can pass the result
// straight to New.
func NewGuided(llm Completer, state StateDescriber, timeout time.Duration, logger *slog.Logger) Strategy {
	if llm == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultGuidanceTimeout
	}
	return &Guided{llm: llm, state: state, timeout: timeout, logger: logger}
}

func (g *Guided) Name() string { return "guidance" }

func (g *Guided) Resolve(ctx context.Context, in Input) (Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	state := "unavailable"
	if g.state != nil {
		if s, err := g.state.DescribeState(ctx); err != nil {
			g.logger.Debug("lottery state unavailable for guidance", "error", err)
		} else if s != "" {
			state = s
		}
	}

	prompt := fmt.Sprintf(guidanceUserPrompt, state, in.Context.Summary(), in.Text)
	raw, err := g.llm.Complete(ctx, guidanceSystemPrompt, []anthropic.Message{
		{Role: "user", Content: prompt},
	}, 512)
	if err != nil {
		return Intent{}, fmt.Errorf("llm guidance: %w", err)
	}

	it, err := ParseGuidance(raw)
	if err != nil {
		g.logger.Debug("failed to parse guidance", "error", err, "raw", raw)
		return Intent{}, err
	}
	return it, nil
}

type guidanceResponse struct {
	Intent       string  `json:"intent"`
	Quantity     int     `json:"quantity"`
	PurchaseType string  `json:"purchase_type"`
	Confidence   float64 `json:"confidence"`
	Reply        string  `json:"reply"`
}

var guidableTypes = map[Type]struct{}{
	TypeBuyTickets:     {},
	TypePooledPurchase: {},
	TypeCheckStats:     {},
	TypeJackpotInfo:    {},
	TypeClaimWinnings:  {},
	TypeHelp:           {},
	TypeGreeting:       {},
	TypeGeneralInquiry: {},
	TypeUnknown:        {},
}

// ParseGuidance decodes a model reply. Confirmation and cancellation are
// never accepted from guidance.
func ParseGuidance(raw string) (Intent, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var resp guidanceResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrNoGuidance, err)
	}

	t := Type(strings.ToLower(strings.TrimSpace(resp.Intent)))
	if _, ok := guidableTypes[t]; !ok {
		return Intent{}, fmt.Errorf("%w: intent %q", ErrNoGuidance, resp.Intent)
	}

	it := Intent{
		Type:       t,
		Confidence: ConfidenceGuidance,
		Guidance:   strings.TrimSpace(resp.Reply),
		Source:     SourceGuidance,
	}
	if resp.Confidence > 0 && resp.Confidence <= 1 {
		it.Confidence = resp.Confidence
	}
	if lottery.ValidQuantity(resp.Quantity) {
		it.Quantity = resp.Quantity
	}
	switch lottery.PurchaseType(strings.ToLower(resp.PurchaseType)) {
	case lottery.PurchaseSolo:
		it.PurchaseType = lottery.PurchaseSolo
	case lottery.PurchasePool:
		it.PurchaseType = lottery.PurchasePool
	}
	return it, nil
}
