// Package resolver turns a caller's question into the reply the receptionist
// speaks.
//
// A [Resolver] answers from the knowledge base when the tiered matcher finds
// an entry, and otherwise asks an [llm.Provider] with the whole knowledge base
// embedded in the system prompt. When the model signals uncertainty (or fails)
// the question is escalated: a pending help request is stored for the caller
// and a fixed hand-off phrase is returned instead.
//
// A Resolver holds no per-call state and is safe for concurrent use.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/frontdesk/internal/knowledge"
	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/internal/store"
	"github.com/MrWong99/frontdesk/pkg/provider/llm"
)

// ErrEmptyQuestion is returned when the question has no letters or digits.
var ErrEmptyQuestion = errors.New("resolver: empty question")

// HandOffPhrase is spoken whenever a question is escalated.
const HandOffPhrase = "Hold on one sec, let me check that for you with my supervisor!"

// DefaultEscalationPhrases mark a generative reply as uncertain. Matching is
// a case-insensitive substring test.
var DefaultEscalationPhrases = []string{
	"let me check",
	"i'll check",
	"not sure",
	"let me ask",
	"check with my supervisor",
	"i'll find out",
}

// defaultCustomerName is stored for customers first seen through escalation.
const defaultCustomerName = "Customer"

const (
	defaultTemperature = 0.8
	defaultMaxTokens   = 130
	defaultAgentName   = "Maya"
	defaultBusiness    = "Glamour Salon"
)

// systemPromptTemplate receives the agent name, the business and the
// formatted knowledge base.
const systemPromptTemplate = `You are %s, the friendliest, most helpful receptionist at %s.

You know these facts and ONLY these facts:
%s
INSTRUCTIONS:
- Answer EVERY question using the facts above when possible
- If someone asks "available Friday", it means "are you open on Friday?", so answer from hours
- If someone asks about booking, specific stylist availability, or exact time slots, say "Let me check that for you!"
- NEVER say you're closed on days we're open
- NEVER invent stylist names or schedules
- Speak warmly, naturally, like a real person
- Use contractions: we're, you're, it's
- Max 2 sentences`

// Source identifies where a [Reply] came from.
type Source string

const (
	SourceKnowledge  Source = "knowledge"
	SourceGenerative Source = "generative"
	SourceEscalation Source = "escalation"
)

// Reply is the text to speak plus how it was produced.
type Reply struct {
	Text   string
	Source Source

	// Tier is the knowledge tier that matched when Source is SourceKnowledge.
	Tier knowledge.Tier

	// RequestID is the help request created for an escalation. It is empty
	// when the request could not be stored.
	RequestID string
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithAgent sets the receptionist's name and the business it answers for.
func WithAgent(name, business string) Option {
	return func(r *Resolver) {
		if name != "" {
			r.agentName = name
		}
		if business != "" {
			r.business = business
		}
	}
}

// WithTemperature sets the sampling temperature. Default: 0.8.
func WithTemperature(t float64) Option {
	return func(r *Resolver) { r.temperature = t }
}

// WithMaxTokens caps the generated reply. Default: 130.
func WithMaxTokens(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxTokens = n
		}
	}
}

// WithEscalationPhrases replaces [DefaultEscalationPhrases].
func WithEscalationPhrases(phrases ...string) Option {
	return func(r *Resolver) {
		r.phrases = make([]string, 0, len(phrases))
		for _, p := range phrases {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				r.phrases = append(r.phrases, p)
			}
		}
	}
}

// WithMatcher overrides the knowledge matcher.
func WithMatcher(m *knowledge.Matcher) Option {
	return func(r *Resolver) { r.matcher = m }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// Resolver answers caller questions.
type Resolver struct {
	store   store.Store
	llm     llm.Provider
	matcher *knowledge.Matcher
	metrics *observe.Metrics

	agentName   string
	business    string
	temperature float64
	maxTokens   int
	phrases     []string
}

// New returns a Resolver backed by st and provider.
func New(st store.Store, provider llm.Provider, opts ...Option) *Resolver {
	r := &Resolver{
		store:       st,
		llm:         provider,
		agentName:   defaultAgentName,
		business:    defaultBusiness,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		phrases:     DefaultEscalationPhrases,
	}
	for _, o := range opts {
		o(r)
	}
	if r.matcher == nil {
		r.matcher = knowledge.New()
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Resolve produces the reply to question for the caller reachable at phone.
// The only error is [ErrEmptyQuestion]; every other failure is absorbed into
// an escalation.
func (r *Resolver) Resolve(ctx context.Context, phone, question string) (Reply, error) {
	question = strings.TrimSpace(question)
	if knowledge.Normalize(question) == "" {
		return Reply{}, ErrEmptyQuestion
	}
	ctx, span := observe.StartSpan(ctx, "resolver.resolve")
	defer span.End()
	log := observe.Logger(ctx)

	kb, err := r.store.GetKnowledgeBase(ctx)
	if err != nil {
		log.Error("resolver: knowledge base unavailable, continuing without it", "err", err)
		kb = nil
	}

	if e, tier, ok := r.matcher.Match(question, kb); ok {
		log.Info("knowledge hit", "tier", tier.String(), "question", question)
		r.metrics.RecordReply(ctx, string(SourceKnowledge))
		return Reply{Text: e.Answer, Source: SourceKnowledge, Tier: tier}, nil
	}

	text, err := r.generate(ctx, question, kb)
	switch {
	case err != nil:
		log.Warn("resolver: generative reply failed, escalating", "err", err)
	case r.uncertain(text):
		log.Info("reply signals uncertainty, escalating", "reply", text)
	default:
		r.metrics.RecordReply(ctx, string(SourceGenerative))
		return Reply{Text: text, Source: SourceGenerative}, nil
	}

	reply := Reply{Text: HandOffPhrase, Source: SourceEscalation}
	reply.RequestID = r.escalate(ctx, log, phone, question)
	r.metrics.RecordReply(ctx, string(SourceEscalation))
	return reply, nil
}

func (r *Resolver) generate(ctx context.Context, question string, kb []store.KnowledgeEntry) (string, error) {
	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: r.systemPrompt(kb),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: question}},
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("resolver: complete: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("resolver: complete: %w", llm.ErrEmptyResponse)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", fmt.Errorf("resolver: complete: %w", llm.ErrEmptyResponse)
	}
	return text, nil
}

// uncertain reports whether text contains an escalation phrase.
func (r *Resolver) uncertain(text string) bool {
	lower := strings.ToLower(text)
	// Models often answer with a typographic apostrophe.
	lower = strings.ReplaceAll(lower, "’", "'")
	for _, p := range r.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// escalate stores a pending help request and returns its id, or "" when the
// store fails. Failures are logged only.
func (r *Resolver) escalate(ctx context.Context, log *slog.Logger, phone, question string) string {
	cust, err := r.store.GetOrCreateCustomer(ctx, phone, defaultCustomerName)
	if err != nil {
		log.Error("resolver: lookup customer for escalation", "phone", phone, "err", err)
		return ""
	}
	id, err := r.store.CreateHelpRequest(ctx, question, cust.ID, phone)
	if err != nil {
		log.Error("resolver: create help request", "phone", phone, "err", err)
		return ""
	}
	r.metrics.RecordHelpRequest(ctx, "created")
	log.Warn("escalated to supervisor", "request_id", id, "question", question)
	return id
}

// systemPrompt embeds every knowledge entry as a bullet line.
func (r *Resolver) systemPrompt(kb []store.KnowledgeEntry) string {
	var sb strings.Builder
	for _, e := range kb {
		sb.WriteString("- ")
		sb.WriteString(capitalize(strings.TrimSpace(e.Question)))
		sb.WriteString(": ")
		sb.WriteString(strings.TrimSpace(e.Answer))
		sb.WriteByte('\n')
	}
	return fmt.Sprintf(systemPromptTemplate, r.agentName, r.business, sb.String())
}

func capitalize(s string) string {
	first, size := utf8.DecodeRuneInString(s)
	if first == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(first)) + s[size:]
}
