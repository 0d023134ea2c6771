package resolver_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/frontdesk/internal/knowledge"
	"github.com/MrWong99/frontdesk/internal/resolver"
	"github.com/MrWong99/frontdesk/internal/store"
	"github.com/MrWong99/frontdesk/internal/store/memstore"
	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	llmmock "github.com/MrWong99/frontdesk/pkg/provider/llm/mock"
)

const (
	phone = "5550001"

	// unknownQuestion shares fewer than two tokens with every seeded entry.
	unknownQuestion = "is parking free nearby"
)

var errBoom = errors.New("boom")

// faultyStore injects errors into selected operations of an in-memory store.
type faultyStore struct {
	store.Store
	kbErr       error
	customerErr error
	createErr   error
}

func (s *faultyStore) GetKnowledgeBase(ctx context.Context) ([]store.KnowledgeEntry, error) {
	if s.kbErr != nil {
		return nil, s.kbErr
	}
	return s.Store.GetKnowledgeBase(ctx)
}

func (s *faultyStore) GetOrCreateCustomer(ctx context.Context, phone, name string) (store.Customer, error) {
	if s.customerErr != nil {
		return store.Customer{}, s.customerErr
	}
	return s.Store.GetOrCreateCustomer(ctx, phone, name)
}

func (s *faultyStore) CreateHelpRequest(ctx context.Context, q, callerID, phone string) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	return s.Store.CreateHelpRequest(ctx, q, callerID, phone)
}

func reply(text string) *llmmock.Provider {
	return llmmock.Answering(text)
}

func pending(t *testing.T, st store.Store) []store.HelpRequest {
	t.Helper()
	reqs, err := st.ListPendingRequests(context.Background())
	if err != nil {
		t.Fatalf("ListPendingRequests: %v", err)
	}
	return reqs
}

func TestResolve_KnowledgeHitSkipsModel(t *testing.T) {
	st := memstore.New()
	model := reply("should not be used")
	r := resolver.New(st, model)

	got, err := r.Resolve(context.Background(), phone, "What are your hours?")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Source != resolver.SourceKnowledge || got.Tier != knowledge.TierExact {
		t.Errorf("source/tier = %s/%s, want knowledge/exact", got.Source, got.Tier)
	}
	if got.Text != "We're open Monday to Friday 9AM-7PM, Saturday 10AM-5PM" {
		t.Errorf("text = %q", got.Text)
	}
	if model.CallCount() != 0 {
		t.Errorf("model called %d times, want 0", model.CallCount())
	}
}

func TestResolve_GenerativeReply(t *testing.T) {
	st := memstore.New()
	model := reply("  We don't have a parking lot, but street parking is free.  ")
	r := resolver.New(st, model)

	got, err := r.Resolve(context.Background(), phone, unknownQuestion)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Source != resolver.SourceGenerative {
		t.Fatalf("source = %s, want generative", got.Source)
	}
	if got.Text != "We don't have a parking lot, but street parking is free." {
		t.Errorf("text = %q", got.Text)
	}
	if n := len(pending(t, st)); n != 0 {
		t.Errorf("pending requests = %d, want 0", n)
	}

	req := model.CompleteCalls[0].Req
	if req.Temperature != 0.8 || req.MaxTokens != 130 {
		t.Errorf("temperature/max tokens = %v/%d, want 0.8/130", req.Temperature, req.MaxTokens)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser || req.Messages[0].Content != unknownQuestion {
		t.Errorf("messages = %+v", req.Messages)
	}
	for _, want := range []string{
		"You are Maya",
		"Glamour Salon",
		"- What are your hours: We're open Monday to Friday 9AM-7PM, Saturday 10AM-5PM",
		"Let me check that for you!",
	} {
		if !strings.Contains(req.SystemPrompt, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestResolve_EscalationPhrases(t *testing.T) {
	replies := []string{
		"Let me check that for you!",
		"I'll check with the team.",
		"I'm not sure about that.",
		"Hmm, let me ask.",
		"I'd need to CHECK WITH MY SUPERVISOR.",
		"I’ll find out for you.",
	}
	for _, text := range replies {
		t.Run(text, func(t *testing.T) {
			st := memstore.New()
			r := resolver.New(st, reply(text))

			got, err := r.Resolve(context.Background(), phone, unknownQuestion)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got.Source != resolver.SourceEscalation || got.Text != resolver.HandOffPhrase {
				t.Fatalf("got %+v, want hand-off", got)
			}
			reqs := pending(t, st)
			if len(reqs) != 1 {
				t.Fatalf("pending requests = %d, want 1", len(reqs))
			}
			if reqs[0].ID != got.RequestID || reqs[0].Question != unknownQuestion || reqs[0].PhoneNumber != phone {
				t.Errorf("request = %+v", reqs[0])
			}
			cust, err := st.GetOrCreateCustomer(context.Background(), phone, "ignored")
			if err != nil {
				t.Fatalf("GetOrCreateCustomer: %v", err)
			}
			if reqs[0].CallerID != cust.ID || cust.Name != "Customer" {
				t.Errorf("caller = %q (customer %+v)", reqs[0].CallerID, cust)
			}
		})
	}
}

func TestResolve_ModelFailureEscalates(t *testing.T) {
	for name, model := range map[string]*llmmock.Provider{
		"error": {CompleteErr: errBoom},
		"nil":   {},
		"blank": reply("   "),
	} {
		t.Run(name, func(t *testing.T) {
			st := memstore.New()
			got, err := resolver.New(st, model).Resolve(context.Background(), phone, unknownQuestion)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got.Source != resolver.SourceEscalation || got.RequestID == "" {
				t.Errorf("got %+v, want stored escalation", got)
			}
			if n := len(pending(t, st)); n != 1 {
				t.Errorf("pending requests = %d, want 1", n)
			}
		})
	}
}

func TestResolve_PersistenceFailureStillHandsOff(t *testing.T) {
	for name, st := range map[string]*faultyStore{
		"customer": {Store: memstore.New(), customerErr: errBoom},
		"create":   {Store: memstore.New(), createErr: errBoom},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := resolver.New(st, reply("I'm not sure.")).Resolve(context.Background(), phone, unknownQuestion)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got.Text != resolver.HandOffPhrase || got.RequestID != "" {
				t.Errorf("got %+v, want hand-off without request id", got)
			}
		})
	}
}

func TestResolve_KnowledgeFailureFallsThrough(t *testing.T) {
	st := &faultyStore{Store: memstore.New(), kbErr: errBoom}
	model := reply("We're open until seven.")

	got, err := resolver.New(st, model).Resolve(context.Background(), phone, "what are your hours")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Source != resolver.SourceGenerative {
		t.Errorf("source = %s, want generative", got.Source)
	}
	if model.CallCount() != 1 {
		t.Fatalf("model called %d times, want 1", model.CallCount())
	}
	if strings.Contains(model.CompleteCalls[0].Req.SystemPrompt, "What are your hours") {
		t.Error("system prompt should not contain knowledge when the read failed")
	}
}

func TestResolve_EmptyQuestion(t *testing.T) {
	r := resolver.New(memstore.New(), reply("x"))
	for _, q := range []string{"", "   ", "?!."} {
		if _, err := r.Resolve(context.Background(), phone, q); !errors.Is(err, resolver.ErrEmptyQuestion) {
			t.Errorf("Resolve(%q) err = %v, want ErrEmptyQuestion", q, err)
		}
	}
}

func TestResolve_Options(t *testing.T) {
	model := reply("Sure thing.")
	r := resolver.New(memstore.New(), model,
		resolver.WithAgent("Ava", "Cut Above"),
		resolver.WithTemperature(0.2),
		resolver.WithMaxTokens(64),
		resolver.WithEscalationPhrases("  SURE THING ", ""),
	)
	got, err := r.Resolve(context.Background(), phone, unknownQuestion)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Source != resolver.SourceEscalation {
		t.Errorf("source = %s, want escalation via custom phrase", got.Source)
	}
	req := model.CompleteCalls[0].Req
	if !strings.HasPrefix(req.SystemPrompt, "You are Ava, the friendliest, most helpful receptionist at Cut Above.") {
		t.Errorf("prompt prefix = %q", req.SystemPrompt[:80])
	}
	if req.Temperature != 0.2 || req.MaxTokens != 64 {
		t.Errorf("temperature/max tokens = %v/%d", req.Temperature, req.MaxTokens)
	}
}
