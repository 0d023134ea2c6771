package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/frontdesk/internal/knowledge"
	"github.com/MrWong99/frontdesk/internal/store"
)

// Compile-time assertion that Store satisfies the store.Store interface.
var _ store.Store = (*Store)(nil)

// Store is a PostgreSQL-backed [store.Store]. All operations are safe for
// concurrent use.
type Store struct {
	pool    *pgxpool.Pool
	matcher *knowledge.Matcher
}

// NewStore creates a connection pool to the database at dsn, runs [Migrate]
// and seeds the knowledge base when it is empty.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	s := &Store{pool: pool, matcher: knowledge.New()}
	if err := s.seed(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) seed(ctx context.Context) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Serialise concurrent first starts of several instances.
		if _, err := tx.Exec(ctx, `LOCK TABLE knowledge_base IN EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("postgres store: seed: lock: %w", err)
		}
		var n int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge_base`).Scan(&n); err != nil {
			return fmt.Errorf("postgres store: seed: count: %w", err)
		}
		if n > 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, d := range store.DefaultKnowledge {
			batch.Queue(`INSERT INTO knowledge_base (question, answer) VALUES ($1, $2)`, d.Question, d.Answer)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres store: seed: insert: %w", err)
		}
		return nil
	})
}

// GetAnswer implements [store.Store.GetAnswer].
func (s *Store) GetAnswer(ctx context.Context, question string) (string, bool, error) {
	kb, err := s.GetKnowledgeBase(ctx)
	if err != nil {
		return "", false, err
	}
	a, ok := store.MatchAnswer(s.matcher, question, kb)
	return a, ok, nil
}

// GetKnowledgeBase implements [store.Store.GetKnowledgeBase].
func (s *Store) GetKnowledgeBase(ctx context.Context) ([]store.KnowledgeEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, question, answer, created_at FROM knowledge_base ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: knowledge base: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.KnowledgeEntry, error) {
		var e store.KnowledgeEntry
		err := row.Scan(&e.ID, &e.Question, &e.Answer, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: knowledge base: %w", err)
	}
	return entries, nil
}

// AddKnowledge implements [store.Store.AddKnowledge].
func (s *Store) AddKnowledge(ctx context.Context, question, answer string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO knowledge_base (question, answer) VALUES ($1, $2)`,
		strings.ToLower(question), answer)
	if err != nil {
		return fmt.Errorf("postgres store: add knowledge: %w", err)
	}
	return nil
}

// CreateHelpRequest implements [store.Store.CreateHelpRequest].
func (s *Store) CreateHelpRequest(ctx context.Context, question, callerID, phone string) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO help_requests (id, question, caller_id, phone_number, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, question, callerID, phone, string(store.StatusPending))
	if err != nil {
		return "", fmt.Errorf("postgres store: create help request: %w", err)
	}
	return id, nil
}

// ResolveRequest implements [store.Store.ResolveRequest].
func (s *Store) ResolveRequest(ctx context.Context, id, answer string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE help_requests SET status = $1, supervisor_answer = $2, resolved_at = now()
		 WHERE id = $3 AND status = $4`,
		string(store.StatusResolved), answer, id, string(store.StatusPending))
	if err != nil {
		return fmt.Errorf("postgres store: resolve request: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return s.transitionError(ctx, id)
}

// MarkDelivered implements [store.Store.MarkDelivered].
func (s *Store) MarkDelivered(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE help_requests SET status = $1, delivered_at = now() WHERE id = $2 AND status = $3`,
		string(store.StatusDelivered), id, string(store.StatusResolved))
	if err != nil {
		return fmt.Errorf("postgres store: mark delivered: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return s.transitionError(ctx, id)
}

// transitionError distinguishes a missing request from one in the wrong
// state after a guarded UPDATE touched no rows.
func (s *Store) transitionError(ctx context.Context, id string) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM help_requests WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres store: lookup request: %w", err)
	}
	return store.ErrInvalidTransition
}

// GetOrCreateCustomer implements [store.Store.GetOrCreateCustomer].
func (s *Store) GetOrCreateCustomer(ctx context.Context, phone, name string) (store.Customer, error) {
	if name == "" {
		name = "Unknown"
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO customers (id, phone_number, name) VALUES ($1, $2, $3)
		 ON CONFLICT (phone_number) DO NOTHING`,
		uuid.New().String(), phone, name)
	if err != nil {
		return store.Customer{}, fmt.Errorf("postgres store: create customer: %w", err)
	}

	var c store.Customer
	err = s.pool.QueryRow(ctx,
		`SELECT id, phone_number, name, created_at FROM customers WHERE phone_number = $1`, phone,
	).Scan(&c.ID, &c.PhoneNumber, &c.Name, &c.CreatedAt)
	if err != nil {
		return store.Customer{}, fmt.Errorf("postgres store: get customer: %w", err)
	}
	return c, nil
}

const selectRequests = `SELECT id, question, caller_id, phone_number, status, supervisor_answer,
	created_at, resolved_at, delivered_at FROM help_requests`

// GetRequest implements [store.Store.GetRequest].
func (s *Store) GetRequest(ctx context.Context, id string) (store.HelpRequest, error) {
	rows, err := s.pool.Query(ctx, selectRequests+` WHERE id = $1`, id)
	if err != nil {
		return store.HelpRequest{}, fmt.Errorf("postgres store: get request: %w", err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanRequest)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.HelpRequest{}, store.ErrNotFound
	}
	if err != nil {
		return store.HelpRequest{}, fmt.Errorf("postgres store: get request: %w", err)
	}
	return r, nil
}

// ListAllRequests implements [store.Store.ListAllRequests].
func (s *Store) ListAllRequests(ctx context.Context) ([]store.HelpRequest, error) {
	return s.listRequests(ctx, selectRequests+` ORDER BY seq`)
}

// ListPendingRequests implements [store.Store.ListPendingRequests].
func (s *Store) ListPendingRequests(ctx context.Context) ([]store.HelpRequest, error) {
	return s.listRequests(ctx, selectRequests+` WHERE status = $1 ORDER BY seq`, string(store.StatusPending))
}

func (s *Store) listRequests(ctx context.Context, query string, args ...any) ([]store.HelpRequest, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list requests: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanRequest)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list requests: %w", err)
	}
	return out, nil
}

func scanRequest(row pgx.CollectableRow) (store.HelpRequest, error) {
	var (
		r                   store.HelpRequest
		status              string
		resolved, delivered *time.Time
	)
	err := row.Scan(&r.ID, &r.Question, &r.CallerID, &r.PhoneNumber, &status, &r.SupervisorAnswer,
		&r.CreatedAt, &resolved, &delivered)
	if err != nil {
		return store.HelpRequest{}, err
	}
	r.Status = store.Status(status)
	if resolved != nil {
		r.ResolvedAt = *resolved
	}
	if delivered != nil {
		r.DeliveredAt = *delivered
	}
	return r, nil
}

// Ping implements [store.Store.Ping].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres store: ping: %w", err)
	}
	return nil
}

// Close implements [store.Store.Close]. It releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
