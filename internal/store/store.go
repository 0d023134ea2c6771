// Package store defines the persistence contract shared by the receptionist,
// the supervisor bridge and the supervisor API: the knowledge base, customers
// and help requests.
//
// Implementations live in sub-packages: memstore (in-process), sqlite
// (modernc.org/sqlite) and postgres (pgx). All implementations must be safe for
// concurrent use, since every active call and the supervisor API share one store.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/frontdesk/internal/knowledge"
)

// ErrNotFound is returned when a referenced help request does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrInvalidTransition is returned when a help request status change would
// violate pending → resolved → delivered.
var ErrInvalidTransition = errors.New("store: invalid status transition")

// KnowledgeEntry is one question/answer pair of the knowledge base.
type KnowledgeEntry = knowledge.Entry

// Status is the lifecycle state of a [HelpRequest].
type Status string

const (
	StatusPending   Status = "pending"
	StatusResolved  Status = "resolved"
	StatusDelivered Status = "delivered"
)

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusResolved, StatusDelivered:
		return true
	}
	return false
}

// CanTransition reports whether a request may move from s to next.
func (s Status) CanTransition(next Status) bool {
	return (s == StatusPending && next == StatusResolved) ||
		(s == StatusResolved && next == StatusDelivered)
}

// Customer is a caller, identified by phone number.
type Customer struct {
	ID          string
	PhoneNumber string
	Name        string
	CreatedAt   time.Time
}

// HelpRequest is a question escalated to the human supervisor.
type HelpRequest struct {
	ID       string
	Question string

	// CallerID references [Customer.ID].
	CallerID    string
	PhoneNumber string
	Status      Status

	// SupervisorAnswer is empty until the request is resolved.
	SupervisorAnswer string

	CreatedAt   time.Time
	ResolvedAt  time.Time
	DeliveredAt time.Time
}

// Store is the persistence contract.
type Store interface {
	// GetAnswer runs the tiered knowledge matcher over the whole knowledge
	// base and returns the matching answer, if any.
	GetAnswer(ctx context.Context, question string) (answer string, ok bool, err error)

	// GetKnowledgeBase returns all entries in insertion order.
	GetKnowledgeBase(ctx context.Context) ([]KnowledgeEntry, error)

	// AddKnowledge appends an entry. The question is stored lowercased.
	AddKnowledge(ctx context.Context, question, answer string) error

	// CreateHelpRequest stores a new pending request and returns its id.
	CreateHelpRequest(ctx context.Context, question, callerID, phone string) (string, error)

	// ResolveRequest moves a pending request to resolved with the given answer.
	// Returns [ErrNotFound] or [ErrInvalidTransition].
	ResolveRequest(ctx context.Context, id, answer string) error

	// MarkDelivered moves a resolved request to delivered.
	// Returns [ErrNotFound] or [ErrInvalidTransition].
	MarkDelivered(ctx context.Context, id string) error

	// GetOrCreateCustomer returns the customer with the given phone number,
	// creating it with name on first contact.
	GetOrCreateCustomer(ctx context.Context, phone, name string) (Customer, error)

	// GetRequest returns a single request. Returns [ErrNotFound].
	GetRequest(ctx context.Context, id string) (HelpRequest, error)

	// ListAllRequests returns every request, oldest first.
	ListAllRequests(ctx context.Context) ([]HelpRequest, error)

	// ListPendingRequests returns pending requests, oldest first.
	ListPendingRequests(ctx context.Context) ([]HelpRequest, error)

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources.
	Close() error
}

// DefaultKnowledge is seeded into an empty knowledge base.
var DefaultKnowledge = []struct{ Question, Answer string }{
	{"what are your hours", "We're open Monday to Friday 9AM-7PM, Saturday 10AM-5PM"},
	{"when are you open", "Our hours are Monday-Friday 9AM-7PM, Saturday 10AM-5PM"},
	{"where are you located", "We're at 123 Beauty Street, Glamour City"},
	{"what services do you offer", "We offer haircuts, coloring, styling, and spa treatments"},
	{"how much is a haircut", "Haircuts start at $45"},
	{"do you accept walk ins", "Yes, we accept walk-ins based on availability"},
	{"do you take walk ins", "Yes, we accept walk-ins based on availability"},
	{"walk ins", "Yes, we accept walk-ins based on stylist availability"},
	{"how to book appointment", "You can book by calling us or through our website"},
	{"what is your cancellation policy", "We require 24 hours notice for cancellations"},
	{"do you offer hair coloring", "Yes, we offer professional hair coloring services"},
	{"what brands do you use", "We use premium brands like Redken and Olaplex"},
}

// MatchAnswer is the shared GetAnswer implementation: it runs m (or a
// default matcher when m is nil) over entries.
func MatchAnswer(m *knowledge.Matcher, question string, entries []KnowledgeEntry) (string, bool) {
	if m == nil {
		m = knowledge.New()
	}
	e, _, ok := m.Match(question, entries)
	if !ok {
		return "", false
	}
	return e.Answer, true
}
