// Package storetest provides a behavioural test suite that every
// [store.Store] implementation runs against itself.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/MrWong99/frontdesk/internal/store"
)

// Run executes the suite. open must return a fresh store seeded with
// [store.DefaultKnowledge] and no customers or requests; Run closes it.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"SeededKnowledge", testSeededKnowledge},
		{"GetAnswer", testGetAnswer},
		{"AddKnowledge", testAddKnowledge},
		{"Customers", testCustomers},
		{"CustomersConcurrent", testCustomersConcurrent},
		{"HelpRequestLifecycle", testHelpRequestLifecycle},
		{"InvalidTransitions", testInvalidTransitions},
		{"NotFound", testNotFound},
		{"ListOrder", testListOrder},
		{"Ping", testPing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s)
		})
	}
}

func testSeededKnowledge(t *testing.T, s store.Store) {
	kb, err := s.GetKnowledgeBase(context.Background())
	if err != nil {
		t.Fatalf("GetKnowledgeBase: %v", err)
	}
	if len(kb) != len(store.DefaultKnowledge) {
		t.Fatalf("seeded entries: got %d, want %d", len(kb), len(store.DefaultKnowledge))
	}
	for i, e := range kb {
		if e.Question != store.DefaultKnowledge[i].Question || e.Answer != store.DefaultKnowledge[i].Answer {
			t.Errorf("entry %d: got %q → %q", i, e.Question, e.Answer)
		}
		if i > 0 && e.ID <= kb[i-1].ID {
			t.Errorf("entry %d: id %d not increasing", i, e.ID)
		}
	}
}

func testGetAnswer(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, ok, err := s.GetAnswer(ctx, "What are your hours?")
	if err != nil || !ok {
		t.Fatalf("GetAnswer(hours): ok=%v err=%v", ok, err)
	}
	if a != store.DefaultKnowledge[0].Answer {
		t.Errorf("GetAnswer(hours) = %q", a)
	}
	if _, ok, err := s.GetAnswer(ctx, "tell me a joke"); err != nil || ok {
		t.Errorf("GetAnswer(unrelated): ok=%v err=%v, want no match", ok, err)
	}
}

func testAddKnowledge(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.AddKnowledge(ctx, "Do You Have PARKING", "Yes, free parking behind the salon"); err != nil {
		t.Fatalf("AddKnowledge: %v", err)
	}
	kb, err := s.GetKnowledgeBase(ctx)
	if err != nil {
		t.Fatal(err)
	}
	last := kb[len(kb)-1]
	if last.Question != "do you have parking" {
		t.Errorf("question not lowercased: %q", last.Question)
	}
	a, ok, err := s.GetAnswer(ctx, "do you have parking?")
	if err != nil || !ok || a != "Yes, free parking behind the salon" {
		t.Errorf("GetAnswer after add: %q ok=%v err=%v", a, ok, err)
	}
}

func testCustomers(t *testing.T, s store.Store) {
	ctx := context.Background()
	c1, err := s.GetOrCreateCustomer(ctx, "5550001", "Customer")
	if err != nil {
		t.Fatalf("GetOrCreateCustomer: %v", err)
	}
	if c1.ID == "" || c1.PhoneNumber != "5550001" || c1.Name != "Customer" {
		t.Errorf("unexpected customer: %+v", c1)
	}
	again, err := s.GetOrCreateCustomer(ctx, "5550001", "Other Name")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != c1.ID || again.Name != "Customer" {
		t.Errorf("second lookup created a new customer: %+v vs %+v", again, c1)
	}
	c2, err := s.GetOrCreateCustomer(ctx, "5550002", "")
	if err != nil {
		t.Fatal(err)
	}
	if c2.ID == c1.ID {
		t.Error("different phones share a customer id")
	}
	if c2.Name != "Unknown" {
		t.Errorf("empty name: got %q, want Unknown", c2.Name)
	}
}

func testCustomersConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	const n = 16
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.GetOrCreateCustomer(ctx, "5559999", "Customer")
			ids[i], errs[i] = c.ID, err
		}()
	}
	wg.Wait()
	for i := range n {
		if errs[i] != nil {
			t.Fatalf("goroutine %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("goroutine %d got id %s, want %s", i, ids[i], ids[0])
		}
	}
}

func testHelpRequestLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	c, err := s.GetOrCreateCustomer(ctx, "5551234567", "Customer")
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.CreateHelpRequest(ctx, "Is Sarah available Friday?", c.ID, c.PhoneNumber)
	if err != nil {
		t.Fatalf("CreateHelpRequest: %v", err)
	}

	r, err := s.GetRequest(ctx, id)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if r.Status != store.StatusPending || r.CallerID != c.ID || r.PhoneNumber != c.PhoneNumber {
		t.Errorf("new request: %+v", r)
	}
	if r.SupervisorAnswer != "" || r.CreatedAt.IsZero() || !r.ResolvedAt.IsZero() {
		t.Errorf("new request fields: %+v", r)
	}
	pending, err := s.ListPendingRequests(ctx)
	if err != nil || len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("ListPendingRequests: %v, %v", pending, err)
	}

	if err := s.ResolveRequest(ctx, id, "Yes, from 2pm"); err != nil {
		t.Fatalf("ResolveRequest: %v", err)
	}
	r, _ = s.GetRequest(ctx, id)
	if r.Status != store.StatusResolved || r.SupervisorAnswer != "Yes, from 2pm" || r.ResolvedAt.IsZero() {
		t.Errorf("resolved request: %+v", r)
	}
	if pending, _ := s.ListPendingRequests(ctx); len(pending) != 0 {
		t.Errorf("resolved request still pending: %v", pending)
	}

	if err := s.MarkDelivered(ctx, id); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	r, _ = s.GetRequest(ctx, id)
	if r.Status != store.StatusDelivered || r.DeliveredAt.IsZero() || r.SupervisorAnswer != "Yes, from 2pm" {
		t.Errorf("delivered request: %+v", r)
	}
}

func testInvalidTransitions(t *testing.T, s store.Store) {
	ctx := context.Background()
	id, err := s.CreateHelpRequest(ctx, "q", "caller", "555")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.MarkDelivered(ctx, id); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("deliver pending: got %v, want ErrInvalidTransition", err)
	}
	if err := s.ResolveRequest(ctx, id, "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.ResolveRequest(ctx, id, "b"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("resolve twice: got %v, want ErrInvalidTransition", err)
	}
	if err := s.MarkDelivered(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkDelivered(ctx, id); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("deliver twice: got %v, want ErrInvalidTransition", err)
	}
	r, _ := s.GetRequest(ctx, id)
	if r.SupervisorAnswer != "a" {
		t.Errorf("answer overwritten by rejected transition: %q", r.SupervisorAnswer)
	}
}

func testNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()
	const missing = "00000000-0000-0000-0000-000000000000"
	if err := s.ResolveRequest(ctx, missing, "a"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ResolveRequest: got %v, want ErrNotFound", err)
	}
	if err := s.MarkDelivered(ctx, missing); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("MarkDelivered: got %v, want ErrNotFound", err)
	}
	if _, err := s.GetRequest(ctx, missing); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetRequest: got %v, want ErrNotFound", err)
	}
}

func testListOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	var want []string
	for i := range 5 {
		id, err := s.CreateHelpRequest(ctx, fmt.Sprintf("question %d", i), "caller", "555")
		if err != nil {
			t.Fatal(err)
		}
		want = append(want, id)
	}
	all, err := s.ListAllRequests(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(want) {
		t.Fatalf("ListAllRequests: got %d, want %d", len(all), len(want))
	}
	for i := range want {
		if all[i].ID != want[i] {
			t.Errorf("position %d: got %s, want %s", i, all[i].ID, want[i])
		}
	}
}

func testPing(t *testing.T, s store.Store) {
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
