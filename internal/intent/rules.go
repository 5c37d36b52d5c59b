package intent

import (
	"context"
	"regexp"
	"strings"

	"github.com/MikeSquared-Agency/jackpot/internal/convo"
	"github.com/MikeSquared-Agency/jackpot/internal/extractor"
	"github.com/MikeSquared-Agency/jackpot/internal/lottery"
)

var greetings = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {}, "gm": {}, "yo": {}, "hola": {}, "sup": {},
	"hi there": {}, "hey there": {}, "hello there": {}, "good morning": {}, "good afternoon": {}, "good evening": {},
}

var (
	helpPattern     = regexp.MustCompile(`\b(?:help|commands|how does (?:this|it) work|what can you do|how do i)\b`)
	claimPattern    = regexp.MustCompile(`\b(?:claim|withdraw|collect|cash out|payout|redeem)\b`)
	statsPattern    = regexp.MustCompile(`\b(?:stats|statistics|my tickets|how many tickets (?:do|have) i|balance|my share|pool share|pool status|odds|status|leaderboard|contributors|history)\b`)
	poolStats       = regexp.MustCompile(`\b(?:share|pool|contributors|leaderboard)\b`)
	jackpotPattern  = regexp.MustCompile(`\b(?:jackpot|prize|pot|price|cost|draw|drawing|ends?|deadline)\b|\bhow much\b`)
	questionPattern = regexp.MustCompile(`^(?:how|what|what's|whats|when|why|who|where|which|is|are|can|does|do)\b`)
	strongBuy       = regexp.MustCompile(`\b(?:buy|purchase|order)\b|\b(?:tickets?|entries|entry)\b`)
	weakBuy         = regexp.MustCompile(`\b(?:get|grab|want|take|gimme|need)\b`)
	buyVerb         = regexp.MustCompile(`\b(?:buy|purchase|order)\b`)
	joinPattern     = regexp.MustCompile(`\b(?:join|participate|participating)\b`)
	onlyNumber      = regexp.MustCompile(`^(?:\d+|[a-z]+(?: [a-z]+)?)(?: (?:please|pls|tickets?))?$`)
)

// Rules classifies from the extractor output and keyword tables alone.
type Rules struct{}

func (Rules) Name() string { return "rules" }

func (Rules) Resolve(_ context.Context, in Input) (Intent, error) {
	return classifyRules(in), nil
}

func classifyRules(in Input) Intent {
	norm := extractor.Normalize(in.Text)
	ex := in.Extraction

	purchase := func(t Type, conf float64) Intent {
		return Intent{Type: t, Confidence: conf, Quantity: ex.Quantity, PurchaseType: ex.PurchaseType, Source: SourceRules}
	}
	plain := func(t Type, conf float64) Intent {
		return Intent{Type: t, Confidence: conf, Source: SourceRules}
	}

	if norm == "" {
		return plain(TypeUnknown, ConfidenceNoMatch)
	}
	if _, ok := greetings[norm]; ok {
		return plain(TypeGreeting, ConfidenceExplicit)
	}
	if helpPattern.MatchString(norm) && !ex.HasQuantity() {
		return plain(TypeHelp, ConfidenceKeyword)
	}
	if claimPattern.MatchString(norm) {
		return plain(TypeClaimWinnings, ConfidenceKeyword)
	}

	buying := buyVerb.MatchString(norm) && ex.HasQuantity()
	if statsPattern.MatchString(norm) && !buying {
		it := plain(TypeCheckStats, ConfidenceFollowUp)
		if poolStats.MatchString(norm) {
			it.PurchaseType = lottery.PurchasePool
		}
		return it
	}

	question := questionPattern.MatchString(norm) || strings.HasSuffix(strings.TrimSpace(strings.ToLower(in.Text)), "?")
	if question && jackpotPattern.MatchString(norm) && !buyVerb.MatchString(norm) {
		return plain(TypeJackpotInfo, ConfidenceKeyword)
	}

	if extractor.HasPoolKeyword(norm) && (strongBuy.MatchString(norm) || weakBuy.MatchString(norm) || joinPattern.MatchString(norm) || ex.HasQuantity()) {
		if ex.HasQuantity() {
			return purchase(TypePooledPurchase, ConfidenceExplicit)
		}
		return purchase(TypePooledPurchase, ConfidenceVague)
	}

	if strongBuy.MatchString(norm) || (weakBuy.MatchString(norm) && ex.HasQuantity()) {
		if ex.HasQuantity() {
			return purchase(TypeBuyTickets, ConfidenceExplicit)
		}
		return purchase(TypeBuyTickets, ConfidenceVague)
	}

	if jackpotPattern.MatchString(norm) {
		return plain(TypeJackpotInfo, ConfidenceKeyword)
	}

	if ex.HasQuantity() && followsPurchase(in.Context) {
		t := TypeBuyTickets
		if in.Context.Flow == convo.FlowPoolPurchase || (in.Context.Flow == convo.FlowNone && Type(in.Context.LastIntentType) == TypePooledPurchase) {
			t = TypePooledPurchase
		}
		return purchase(t, ConfidenceFollowUp)
	}
	if ex.HasQuantity() && onlyNumber.MatchString(norm) {
		return purchase(TypeBuyTickets, ConfidenceBareNumber)
	}

	if question {
		return plain(TypeGeneralInquiry, ConfidenceInquiry)
	}
	return plain(TypeUnknown, ConfidenceNoMatch)
}

func followsPurchase(c convo.Context) bool {
	return c.Flow.Purchase() || Type(c.LastIntentType).Purchase()
}
