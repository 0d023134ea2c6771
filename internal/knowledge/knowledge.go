// Package knowledge matches caller questions against the curated
// question→answer knowledge base.
//
// Matching runs four tiers in order and the first tier with a hit wins.
// Within a tier entries are tried in stored order, so the earliest entry
// wins ties:
//
//  1. Exact: normalized query equals the normalized stored question.
//  2. Substring: either normalized string contains the other.
//  3. Fuzzy: Levenshtein similarity ratio above the fuzzy threshold.
//  4. Overlap: at least two distinct tokens shared.
//
// An empty normalized query never matches.
package knowledge

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultFuzzyThreshold = 0.8
	defaultMinOverlap     = 2
)

// Entry is one stored question/answer pair.
type Entry struct {
	// ID increases in insertion order.
	ID int64

	// Question is stored lowercased.
	Question string

	// Answer is returned verbatim to the caller.
	Answer string

	CreatedAt time.Time
}

// Tier identifies which matching stage produced a hit.
type Tier int

const (
	// TierNone is reported alongside ok == false.
	TierNone Tier = iota
	TierExact
	TierSubstring
	TierFuzzy
	TierOverlap
)

// String returns the tier name used in logs and metric attributes.
func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierSubstring:
		return "substring"
	case TierFuzzy:
		return "fuzzy"
	case TierOverlap:
		return "overlap"
	default:
		return "none"
	}
}

// Normalize lowercases s, strips every rune that is not a letter, digit,
// underscore or whitespace, collapses whitespace runs to one space and trims.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Similarity returns 1 − Levenshtein(a, b) / max(len(a), len(b)) counted in
// runes. Two empty strings are identical.
func Similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(matchr.Levenshtein(a, b))/float64(longest)
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithFuzzyThreshold sets the similarity ratio a tier-3 match must exceed.
// Default: 0.8.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// WithMinOverlap sets the number of shared distinct tokens a tier-4 match
// needs. Default: 2.
func WithMinOverlap(n int) Option {
	return func(m *Matcher) {
		m.minOverlap = n
	}
}

// Matcher implements the tiered lookup. It is read-only after construction
// and safe for concurrent use.
type Matcher struct {
	fuzzyThreshold float64
	minOverlap     int
}

// New returns a Matcher configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		fuzzyThreshold: defaultFuzzyThreshold,
		minOverlap:     defaultMinOverlap,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the first entry that matches query, the tier that matched,
// and whether any entry matched.
func (m *Matcher) Match(query string, entries []Entry) (Entry, Tier, bool) {
	q := Normalize(query)
	if q == "" || len(entries) == 0 {
		return Entry{}, TierNone, false
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = Normalize(e.Question)
	}

	for i, k := range keys {
		if k == q {
			return entries[i], TierExact, true
		}
	}
	for i, k := range keys {
		if k != "" && (strings.Contains(q, k) || strings.Contains(k, q)) {
			return entries[i], TierSubstring, true
		}
	}
	for i, k := range keys {
		if Similarity(q, k) > m.fuzzyThreshold {
			return entries[i], TierFuzzy, true
		}
	}
	qTokens := tokens(q)
	for i, k := range keys {
		shared := 0
		for t := range tokens(k) {
			if _, ok := qTokens[t]; ok {
				shared++
			}
		}
		if shared >= m.minOverlap {
			return entries[i], TierOverlap, true
		}
	}
	return Entry{}, TierNone, false
}

func tokens(s string) map[string]struct{} {
	fields := strings.Fields(s)
	m := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		m[f] = struct{}{}
	}
	return m
}
