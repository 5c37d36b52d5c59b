package extractor

import (
	"regexp"
	"sort"
	"strings"
)

var units = []string{"one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}

var teens = []string{"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen", "seventeen", "eighteen", "nineteen"}

var tens = map[string]int{"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50}

// wordNumbers maps the closed vocabulary one..fifty to its value. Compounds
// are keyed with a single space ("twenty one"); hyphens are folded to spaces
// before matching.
var wordNumbers = buildWordNumbers()

func buildWordNumbers() map[string]int {
	m := make(map[string]int, 50)
	for i, w := range units {
		m[w] = i + 1
	}
	for i, w := range teens {
		m[w] = i + 10
	}
	for w, v := range tens {
		m[w] = v
		if v == 50 {
			continue
		}
		for i, u := range units {
			m[w+" "+u] = v + i + 1
		}
	}
	return m
}

// wordAlternation is a regexp alternation of every word-number, longest
// first so "twenty one" wins over "twenty".
func wordAlternation() string {
	words := make([]string, 0, len(wordNumbers))
	for w := range wordNumbers {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	for i, w := range words {
		words[i] = strings.ReplaceAll(regexp.QuoteMeta(w), " ", `\s+`)
	}
	return strings.Join(words, "|")
}

const ticketNoun = `(?:tickets?|entries|entry|tix)`

var (
	numberToken = `(\d+|` + wordAlternation() + `)`

	// "5 tickets", "five lottery tickets", "10 more entries"
	adjacentBefore = regexp.MustCompile(`\b` + numberToken + `\s+(?:(?:more|extra|lottery|lotto|raffle|pool|pooled|group|new)\s+)?` + ticketNoun + `\b`)

	// "tickets: 5", "tickets x 3"
	adjacentAfter = regexp.MustCompile(`\b` + ticketNoun + `\s*(?:x|:|=|\*)\s*` + numberToken + `\b`)

	// "a ticket", "me a ticket", "an entry"
	singular = regexp.MustCompile(`\b(?:a|an)\s+(?:single\s+)?(?:lottery\s+|lotto\s+|raffle\s+)?(?:ticket|entry)\b`)

	bareDigits = regexp.MustCompile(`\b\d+\b`)
	bareWords  = regexp.MustCompile(`\b(?:` + wordAlternation() + `)\b`)

	poolKeywords = regexp.MustCompile(`\b(?:pool|pools|pooled|pooling|group|together|shared|collective|collectively|join|joining|participate|participating)\b|\bwith\s+(?:others|friends|everyone|everybody|the\s+group)\b`)

	soloKeywords = regexp.MustCompile(`\b(?:solo|individual|individually|myself|alone|personally)\b|\bjust\s+(?:me|for\s+me)\b|\bon\s+my\s+own\b`)

	whitespace = regexp.MustCompile(`\s+`)
)

var soloAnswers = map[string]struct{}{
	"solo": {}, "individual": {}, "myself": {}, "just me": {}, "me": {}, "alone": {},
}

var poolAnswers = map[string]struct{}{
	"pool": {}, "group": {}, "shared": {}, "the pool": {}, "join pool": {}, "join the pool": {}, "group pool": {},
}
