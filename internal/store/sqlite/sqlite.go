// Package sqlite implements [store.Store] on a local SQLite file using the
// pure-Go modernc.org/sqlite driver, so the binary needs no cgo.
//
// Timestamps are stored as Unix nanoseconds; 0 means "not yet".
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/MrWong99/frontdesk/internal/knowledge"
	"github.com/MrWong99/frontdesk/internal/store"
)

//go:embed schema.sql
var schema string

// Compile-time assertion that Store satisfies the store.Store interface.
var _ store.Store = (*Store)(nil)

// Store is a SQLite-backed [store.Store].
type Store struct {
	db      *sql.DB
	matcher *knowledge.Matcher
}

// Open opens (creating if necessary) the database at path, applies the schema
// and seeds the knowledge base when it is empty. Use ":memory:" for a
// throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, matcher: knowledge.New()}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("sqlite store: %s: %w", pragma, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite store: migrate: %w", err)
	}
	return s.seed(ctx)
}

func (s *Store) seed(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite store: seed: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_base`).Scan(&n); err != nil {
		return fmt.Errorf("sqlite store: seed: count: %w", err)
	}
	if n > 0 {
		return nil
	}
	now := time.Now().UnixNano()
	for _, d := range store.DefaultKnowledge {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO knowledge_base (question, answer, created_at) VALUES (?, ?, ?)`,
			d.Question, d.Answer, now); err != nil {
			return fmt.Errorf("sqlite store: seed: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite store: seed: commit: %w", err)
	}
	return nil
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer, created_at FROM knowledge_base ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: knowledge base: %w", err)
	}
	defer rows.Close()

	var out []store.KnowledgeEntry
	for rows.Next() {
		var (
			e       store.KnowledgeEntry
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &created); err != nil {
			return nil, fmt.Errorf("sqlite store: knowledge base: scan: %w", err)
		}
		e.CreatedAt = fromNanos(created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: knowledge base: %w", err)
	}
	return out, nil
}

// AddKnowledge implements [store.Store.AddKnowledge].
func (s *Store) AddKnowledge(ctx context.Context, question, answer string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge_base (question, answer, created_at) VALUES (?, ?, ?)`,
		strings.ToLower(question), answer, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite store: add knowledge: %w", err)
	}
	return nil
}

// CreateHelpRequest implements [store.Store.CreateHelpRequest].
func (s *Store) CreateHelpRequest(ctx context.Context, question, callerID, phone string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO help_requests (id, question, caller_id, phone_number, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, question, callerID, phone, string(store.StatusPending), time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("sqlite store: create help request: %w", err)
	}
	return id, nil
}

// ResolveRequest implements [store.Store.ResolveRequest].
func (s *Store) ResolveRequest(ctx context.Context, id, answer string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE help_requests SET status = ?, supervisor_answer = ?, resolved_at = ?
		 WHERE id = ? AND status = ?`,
		string(store.StatusResolved), answer, time.Now().UnixNano(), id, string(store.StatusPending))
	if err != nil {
		return fmt.Errorf("sqlite store: resolve request: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// MarkDelivered implements [store.Store.MarkDelivered].
func (s *Store) MarkDelivered(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE help_requests SET status = ?, delivered_at = ? WHERE id = ? AND status = ?`,
		string(store.StatusDelivered), time.Now().UnixNano(), id, string(store.StatusResolved))
	if err != nil {
		return fmt.Errorf("sqlite store: mark delivered: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// checkTransition distinguishes a missing request from one in the wrong
// state when a guarded UPDATE touched no rows.
func (s *Store) checkTransition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite store: rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM help_requests WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("sqlite store: lookup request: %w", err)
	}
	return store.ErrInvalidTransition
}

// GetOrCreateCustomer implements [store.Store.GetOrCreateCustomer].
func (s *Store) GetOrCreateCustomer(ctx context.Context, phone, name string) (store.Customer, error) {
	if name == "" {
		name = "Unknown"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (id, phone_number, name, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (phone_number) DO NOTHING`,
		uuid.New().String(), phone, name, time.Now().UnixNano())
	if err != nil {
		return store.Customer{}, fmt.Errorf("sqlite store: create customer: %w", err)
	}

	var (
		c       store.Customer
		created int64
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT id, phone_number, name, created_at FROM customers WHERE phone_number = ?`, phone,
	).Scan(&c.ID, &c.PhoneNumber, &c.Name, &created)
	if err != nil {
		return store.Customer{}, fmt.Errorf("sqlite store: get customer: %w", err)
	}
	c.CreatedAt = fromNanos(created)
	return c, nil
}

const selectRequests = `SELECT id, question, caller_id, phone_number, status, supervisor_answer,
	created_at, resolved_at, delivered_at FROM help_requests`

// GetRequest implements [store.Store.GetRequest].
func (s *Store) GetRequest(ctx context.Context, id string) (store.HelpRequest, error) {
	r, err := scanRequest(s.db.QueryRowContext(ctx, selectRequests+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return store.HelpRequest{}, store.ErrNotFound
	}
	if err != nil {
		return store.HelpRequest{}, fmt.Errorf("sqlite store: get request: %w", err)
	}
	return r, nil
}

// ListAllRequests implements [store.Store.ListAllRequests].
func (s *Store) ListAllRequests(ctx context.Context) ([]store.HelpRequest, error) {
	return s.listRequests(ctx, selectRequests+` ORDER BY seq`)
}

// ListPendingRequests implements [store.Store.ListPendingRequests].
func (s *Store) ListPendingRequests(ctx context.Context) ([]store.HelpRequest, error) {
	return s.listRequests(ctx, selectRequests+` WHERE status = ? ORDER BY seq`, string(store.StatusPending))
}

func (s *Store) listRequests(ctx context.Context, query string, args ...any) ([]store.HelpRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list requests: %w", err)
	}
	defer rows.Close()

	var out []store.HelpRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: list requests: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: list requests: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (store.HelpRequest, error) {
	var (
		r      store.HelpRequest
		status string
		ts     [3]int64
	)
	err := row.Scan(&r.ID, &r.Question, &r.CallerID, &r.PhoneNumber, &status, &r.SupervisorAnswer,
		&ts[0], &ts[1], &ts[2])
	if err != nil {
		return store.HelpRequest{}, err
	}
	r.Status = store.Status(status)
	r.CreatedAt = fromNanos(ts[0])
	r.ResolvedAt = fromNanos(ts[1])
	r.DeliveredAt = fromNanos(ts[2])
	return r, nil
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Ping implements [store.Store.Ping].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite store: ping: %w", err)
	}
	return nil
}

// Close implements [store.Store.Close].
func (s *Store) Close() error {
	return s.db.Close()
}
