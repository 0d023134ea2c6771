package supervisor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/frontdesk/internal/store"
	"github.com/MrWong99/frontdesk/internal/store/memstore"
	"github.com/MrWong99/frontdesk/internal/supervisor"
)

// recordingSpeaker records spoken text and optionally fails.
type recordingSpeaker struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (s *recordingSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.texts = append(s.texts, text)
	return nil
}

func (s *recordingSpeaker) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// escalate creates a customer and a help request for phone and returns both.
func escalate(t *testing.T, st store.Store, phone, question string) (store.Customer, string) {
	t.Helper()
	ctx := context.Background()
	cust, err := st.GetOrCreateCustomer(ctx, phone, "Customer")
	if err != nil {
		t.Fatalf("GetOrCreateCustomer: %v", err)
	}
	id, err := st.CreateHelpRequest(ctx, question, cust.ID, phone)
	if err != nil {
		t.Fatalf("CreateHelpRequest: %v", err)
	}
	return cust, id
}

func status(t *testing.T, st store.Store, id string) store.Status {
	t.Helper()
	r, err := st.GetRequest(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	return r.Status
}

func TestBridge_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	cust, id := escalate(t, st, "5550001", "do you do bridal makeup")
	if err := st.ResolveRequest(ctx, id, "Yes, book two weeks ahead."); err != nil {
		t.Fatalf("ResolveRequest: %v", err)
	}

	sp := &recordingSpeaker{}
	b := supervisor.NewBridge(st, sp, cust.ID)

	n, err := b.Poll(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Poll = %d, %v; want 1, nil", n, err)
	}
	if got := sp.Texts(); len(got) != 1 || got[0] != "Great news! My supervisor says: Yes, book two weeks ahead." {
		t.Errorf("spoken = %q", got)
	}
	if s := status(t, st, id); s != store.StatusDelivered {
		t.Errorf("status = %s, want delivered", s)
	}

	n, err = b.Poll(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second Poll = %d, %v; want 0, nil", n, err)
	}
	if len(sp.Texts()) != 1 {
		t.Error("second poll spoke again")
	}
}

func TestBridge_NoMatchHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	_, otherID := escalate(t, st, "5550002", "is there parking")
	if err := st.ResolveRequest(ctx, otherID, "Street parking only."); err != nil {
		t.Fatalf("ResolveRequest: %v", err)
	}
	mine, pendingID := escalate(t, st, "5550001", "do you sell gift cards")

	sp := &recordingSpeaker{}
	n, err := supervisor.NewBridge(st, sp, mine.ID).Poll(ctx)
	if err != nil || n != 0 {
		t.Fatalf("Poll = %d, %v; want 0, nil", n, err)
	}
	if len(sp.Texts()) != 0 {
		t.Errorf("spoke %q for another caller", sp.Texts())
	}
	if s := status(t, st, otherID); s != store.StatusResolved {
		t.Errorf("other caller's request status = %s, want resolved", s)
	}
	if s := status(t, st, pendingID); s != store.StatusPending {
		t.Errorf("pending request status = %s, want pending", s)
	}
}

func TestBridge_SpeakFailureRetriesNextCycle(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	cust, id := escalate(t, st, "5550001", "do you do nails")
	if err := st.ResolveRequest(ctx, id, "Not yet."); err != nil {
		t.Fatalf("ResolveRequest: %v", err)
	}

	sp := &recordingSpeaker{err: errors.New("tts down")}
	b := supervisor.NewBridge(st, sp, cust.ID)
	if n, err := b.Poll(ctx); err != nil || n != 0 {
		t.Fatalf("Poll = %d, %v; want 0, nil", n, err)
	}
	if s := status(t, st, id); s != store.StatusResolved {
		t.Fatalf("status = %s, want resolved", s)
	}

	sp.mu.Lock()
	sp.err = nil
	sp.mu.Unlock()
	if n, err := b.Poll(ctx); err != nil || n != 1 {
		t.Fatalf("Poll = %d, %v; want 1, nil", n, err)
	}
	if s := status(t, st, id); s != store.StatusDelivered {
		t.Errorf("status = %s, want delivered", s)
	}
}

type failingList struct {
	store.Store
}

func (failingList) ListAllRequests(context.Context) ([]store.HelpRequest, error) {
	return nil, errors.New("db gone")
}

func TestBridge_PollListError(t *testing.T) {
	b := supervisor.NewBridge(failingList{memstore.New()}, &recordingSpeaker{}, "c1")
	if _, err := b.Poll(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestBridge_RunDeliversAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := memstore.New()
	cust, id := escalate(t, st, "5550001", "do you do perms")
	if err := st.ResolveRequest(ctx, id, "Yes we do."); err != nil {
		t.Fatalf("ResolveRequest: %v", err)
	}

	sp := &recordingSpeaker{}
	b := supervisor.NewBridge(st, sp, cust.ID, supervisor.WithPollInterval(5*time.Millisecond))
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for status(t, st, id) != store.StatusDelivered {
		select {
		case <-deadline:
			t.Fatal("request was not delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if len(sp.Texts()) != 1 {
		t.Errorf("spoken %d times, want 1", len(sp.Texts()))
	}
}
