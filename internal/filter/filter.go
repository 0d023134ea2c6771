// Package filter decides whether a transcript is worth answering.
//
// Transcripts of background noise, fillers and one-word acknowledgements are
// dropped silently: no reply is spoken and nothing is escalated.
package filter

import (
	"strings"
	"unicode/utf8"
)

// Reason explains a [Verdict].
type Reason string

const (
	// Accepted means the transcript should be answered.
	Accepted Reason = "accepted"

	// TooShort means the trimmed text is shorter than the minimum length.
	TooShort Reason = "too_short"

	// Noise means the text is a single filler or greeting word.
	Noise Reason = "noise"

	// NotQuestion means the text looks neither like a question nor like a
	// sentence long enough to answer.
	NotQuestion Reason = "not_question"
)

// Verdict is the outcome of [Filter.Check].
type Verdict struct {
	Accept bool
	Reason Reason
}

// minLength is the shortest trimmed transcript, in runes, that can be answered.
const minLength = 4

// minWords is the distinct-word count that admits a transcript without a
// question word or question mark.
const minWords = 3

// DefaultNoise lists fillers and acknowledgements that are never answered.
var DefaultNoise = []string{
	"um", "uh", "ah", "hello", "hi", "hey", "yes", "no", "ok", "okay", "you",
}

// DefaultQuestionWords lists words that mark a transcript as a question.
var DefaultQuestionWords = []string{
	"what", "when", "where", "who", "how", "can", "do", "does", "is", "are",
	"price", "cost", "book", "appointment", "hours", "walk", "service",
	"hair", "color", "cut", "available", "stylist", "much",
}

// Filter applies the noise and question gates. The zero value is not usable;
// construct with [New]. A Filter is safe for concurrent use.
type Filter struct {
	noise     map[string]struct{}
	questions map[string]struct{}
}

// Option is a functional option for configuring a Filter.
type Option func(*Filter)

// WithNoise replaces the noise vocabulary.
func WithNoise(words ...string) Option {
	return func(f *Filter) { f.noise = set(words) }
}

// WithQuestionWords replaces the question vocabulary.
func WithQuestionWords(words ...string) Option {
	return func(f *Filter) { f.questions = set(words) }
}

// New returns a Filter using [DefaultNoise] and [DefaultQuestionWords] unless
// overridden by opts.
func New(opts ...Option) *Filter {
	f := &Filter{
		noise:     set(DefaultNoise),
		questions: set(DefaultQuestionWords),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Check runs the gates in order; the first that rejects decides the verdict.
func (f *Filter) Check(text string) Verdict {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minLength {
		return Verdict{Reason: TooShort}
	}

	lower := strings.ToLower(text)
	if _, ok := f.noise[strings.Trim(lower, ".,!?")]; ok {
		return Verdict{Reason: Noise}
	}

	words := set(strings.Fields(lower))
	if strings.HasSuffix(text, "?") || len(words) >= minWords {
		return Verdict{Accept: true, Reason: Accepted}
	}
	for w := range words {
		if _, ok := f.questions[w]; ok {
			return Verdict{Accept: true, Reason: Accepted}
		}
	}
	return Verdict{Reason: NotQuestion}
}

func set(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
