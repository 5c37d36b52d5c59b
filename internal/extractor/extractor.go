// Package extractor pulls a ticket quantity and a solo/pool hint out of free
// chat text. It is deterministic and makes no external calls, so it is what
// classification falls back on when the language model is unavailable.
package extractor

import (
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/jackpot/internal/lottery"
)

// Result is the structural reading of one message.
type Result struct {
	// Quantity is 0 when no ticket quantity in [1,100] was found.
	Quantity int `json:"quantity,omitempty"`
	// PurchaseType is PurchaseUnknown when no keyword was present.
	PurchaseType lottery.PurchaseType `json:"purchase_type,omitempty"`
	// Adjacent is true when the quantity was attached to a ticket noun.
	Adjacent bool `json:"adjacent,omitempty"`
}

// HasQuantity reports whether a usable quantity was found.
func (r Result) HasQuantity() bool { return r.Quantity > 0 }

// Extract reads text and returns the candidate quantity and purchase hint.
func Extract(text string) Result {
	norm := Normalize(text)

	var r Result
	switch {
	case HasPoolKeyword(norm):
		r.PurchaseType = lottery.PurchasePool
	case soloKeywords.MatchString(norm):
		r.PurchaseType = lottery.PurchaseSolo
	}

	// A number attached to a ticket noun is authoritative even when it is out
	// of range: "buy 150 tickets for 5 bucks" must not fall back to 5.
	if n, ok := adjacentQuantity(norm); ok {
		r.Adjacent = true
		if lottery.ValidQuantity(n) {
			r.Quantity = n
		}
		return r
	}

	if singular.MatchString(norm) {
		r.Quantity = 1
		r.Adjacent = true
		return r
	}

	r.Quantity = bareQuantity(norm)
	return r
}

// HasPoolKeyword reports whether text mentions pooling in any form.
func HasPoolKeyword(text string) bool {
	return poolKeywords.MatchString(Normalize(text))
}

// WholeChoice matches a whole message against the solo/pool answers used
// when the participant is asked to pick a purchase type.
func WholeChoice(text string) lottery.PurchaseType {
	norm := Normalize(text)
	if _, ok := soloAnswers[norm]; ok {
		return lottery.PurchaseSolo
	}
	if _, ok := poolAnswers[norm]; ok {
		return lottery.PurchasePool
	}
	return lottery.PurchaseUnknown
}

// Normalize lowercases text, folds hyphens and runs of whitespace to single
// spaces, and strips surrounding punctuation.
func Normalize(text string) string {
	s := strings.ToLower(text)
	s = strings.ReplaceAll(s, "-", " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.Trim(s, " .,!?;:'\"")
}

func adjacentQuantity(norm string) (int, bool) {
	if m := adjacentBefore.FindStringSubmatch(norm); m != nil {
		return parseNumber(m[1])
	}
	if m := adjacentAfter.FindStringSubmatch(norm); m != nil {
		return parseNumber(m[1])
	}
	return 0, false
}

// bareQuantity returns the first standalone in-range number, skipping
// prices, decimals, times and percentages.
func bareQuantity(norm string) int {
	for _, loc := range bareDigits.FindAllStringIndex(norm, -1) {
		if looksLikeMeasure(norm, loc[0], loc[1]) {
			continue
		}
		if n, err := strconv.Atoi(norm[loc[0]:loc[1]]); err == nil && lottery.ValidQuantity(n) {
			return n
		}
	}

	words := strings.Fields(norm)
	for _, w := range bareWords.FindAllString(norm, -1) {
		// "one" is too often a pronoun ("no one", "the one with") to trust
		// outside a short reply.
		if w == "one" && len(words) > 3 {
			continue
		}
		if n, ok := parseNumber(w); ok && lottery.ValidQuantity(n) {
			return n
		}
	}
	return 0
}

func looksLikeMeasure(s string, start, end int) bool {
	if start > 0 {
		switch s[start-1] {
		case '$', '#', '.', '/', ':':
			return true
		}
	}
	if end < len(s) {
		switch s[end] {
		case '%', '/', ':':
			return true
		case '.':
			return end+1 < len(s) && s[end+1] >= '0' && s[end+1] <= '9'
		}
	}
	return false
}

func parseNumber(tok string) (int, bool) {
	if n, err := strconv.Atoi(tok); err == nil {
		return n, true
	}
	n, ok := wordNumbers[whitespace.ReplaceAllString(tok, " ")]
	return n, ok
}
