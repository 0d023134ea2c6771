package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/internal/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// Notifier tells a customer their question was answered outside the call.
type Notifier interface {
	Notify(ctx context.Context, phone, question, answer string) error
}

// LogNotifier stands in for an SMS gateway by logging the message.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements [Notifier].
func (n LogNotifier) Notify(_ context.Context, phone, question, answer string) error {
	l := n.Logger
	if l == nil {
		l = slog.Default()
	}
	if phone == "" {
		phone = "unknown"
	}
	l.Info("sms callback", "to", phone, "question", truncate(question, 55), "answer", truncate(answer, 55))
	return nil
}

// APIOption configures an [API].
type APIOption func(*API)

// WithNotifier replaces the default [LogNotifier].
func WithNotifier(n Notifier) APIOption {
	return func(a *API) { a.notifier = n }
}

// WithAPILogger sets the logger. Default: slog.Default().
func WithAPILogger(l *slog.Logger) APIOption {
	return func(a *API) { a.log = l }
}

// WithAPIMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithAPIMetrics(m *observe.Metrics) APIOption {
	return func(a *API) { a.metrics = m }
}

// API serves the supervisor's JSON endpoints. Register the routes with
// [API.Register].
type API struct {
	store    store.Store
	notifier Notifier
	log      *slog.Logger
	metrics  *observe.Metrics
}

// NewAPI returns an API over st.
func NewAPI(st store.Store, opts ...APIOption) *API {
	a := &API{store: st, log: slog.Default()}
	for _, o := range opts {
		o(a)
	}
	if a.notifier == nil {
		a.notifier = LogNotifier{Logger: a.log}
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// Register adds the supervisor routes to mux:
//
//	GET  /api/requests[?status=pending|resolved|delivered]
//	GET  /api/requests/{id}
//	POST /api/requests/{id}/resolve   {"answer": "..."}
//	GET  /api/knowledge
//	POST /api/knowledge               {"question": "...", "answer": "..."}
//	GET  /api/stats
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/requests", a.handleListRequests)
	mux.HandleFunc("GET /api/requests/{id}", a.handleGetRequest)
	mux.HandleFunc("POST /api/requests/{id}/resolve", a.handleResolve)
	mux.HandleFunc("GET /api/knowledge", a.handleListKnowledge)
	mux.HandleFunc("POST /api/knowledge", a.handleAddKnowledge)
	mux.HandleFunc("GET /api/stats", a.handleStats)
}

// requestJSON is the wire form of [store.HelpRequest].
type requestJSON struct {
	ID               string     `json:"id"`
	Question         string     `json:"question"`
	CallerID         string     `json:"caller_id"`
	PhoneNumber      string     `json:"phone_number"`
	Status           string     `json:"status"`
	SupervisorAnswer string     `json:"supervisor_answer,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
}

func toRequestJSON(r store.HelpRequest) requestJSON {
	out := requestJSON{
		ID:               r.ID,
		Question:         r.Question,
		CallerID:         r.CallerID,
		PhoneNumber:      r.PhoneNumber,
		Status:           string(r.Status),
		SupervisorAnswer: r.SupervisorAnswer,
		CreatedAt:        r.CreatedAt,
	}
	if !r.ResolvedAt.IsZero() {
		t := r.ResolvedAt
		out.ResolvedAt = &t
	}
	if !r.DeliveredAt.IsZero() {
		t := r.DeliveredAt
		out.DeliveredAt = &t
	}
	return out
}

type knowledgeJSON struct {
	ID        int64     `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarises help request handling. Delivered requests count as
// resolved.
type Stats struct {
	Total          int     `json:"total"`
	Pending        int     `json:"pending"`
	Resolved       int     `json:"resolved"`
	ResolutionRate float64 `json:"resolution_rate"`
}

// ComputeStats derives [Stats] from a request list. ResolutionRate is a
// percentage and zero for an empty list.
func ComputeStats(reqs []store.HelpRequest) Stats {
	s := Stats{Total: len(reqs)}
	for _, r := range reqs {
		switch r.Status {
		case store.StatusPending:
			s.Pending++
		case store.StatusResolved, store.StatusDelivered:
			s.Resolved++
		}
	}
	if s.Total > 0 {
		s.ResolutionRate = float64(s.Resolved) / float64(s.Total) * 100
	}
	return s
}

type errorJSON struct {
	Error string `json:"error"`
}

// ---- handlers ----

func (a *API) handleListRequests(w http.ResponseWriter, r *http.Request) {
	status := store.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+string(status))
		return
	}
	reqs, err := a.store.ListAllRequests(r.Context())
	if err != nil {
		a.internalError(w, r, "list requests", err)
		return
	}
	out := make([]requestJSON, 0, len(reqs))
	for _, req := range reqs {
		if status == "" || req.Status == status {
			out = append(out, toRequestJSON(req))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := a.store.GetRequest(r.Context(), r.PathValue("id"))
	if err != nil {
		a.storeError(w, r, "get request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestJSON(req))
}

type resolveBody struct {
	Answer string `json:"answer"`
}

// handleResolve resolves a pending request, teaches the knowledge base the
// answer and notifies the customer.
func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var body resolveBody
	if !decodeBody(w, r, &body) {
		return
	}
	answer := strings.TrimSpace(body.Answer)
	if answer == "" {
		writeError(w, http.StatusBadRequest, "answer is required")
		return
	}

	if err := a.store.ResolveRequest(ctx, id, answer); err != nil {
		a.storeError(w, r, "resolve request", err)
		return
	}
	a.metrics.RecordHelpRequest(ctx, "resolved")

	req, err := a.store.GetRequest(ctx, id)
	if err != nil {
		a.storeError(w, r, "get request", err)
		return
	}
	if err := a.store.AddKnowledge(ctx, req.Question, answer); err != nil {
		a.log.Error("supervisor api: add knowledge", "request_id", id, "err", err)
	}
	if err := a.notifier.Notify(ctx, req.PhoneNumber, req.Question, answer); err != nil {
		a.log.Warn("supervisor api: notify customer", "request_id", id, "err", err)
	}
	a.log.Info("help request resolved", "request_id", id)
	writeJSON(w, http.StatusOK, toRequestJSON(req))
}

func (a *API) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	kb, err := a.store.GetKnowledgeBase(r.Context())
	if err != nil {
		a.internalError(w, r, "list knowledge", err)
		return
	}
	out := make([]knowledgeJSON, len(kb))
	for i, e := range kb {
		out[i] = knowledgeJSON{ID: e.ID, Question: e.Question, Answer: e.Answer, CreatedAt: e.CreatedAt}
	}
	writeJSON(w, http.StatusOK, out)
}

type knowledgeBody struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (a *API) handleAddKnowledge(w http.ResponseWriter, r *http.Request) {
	var body knowledgeBody
	if !decodeBody(w, r, &body) {
		return
	}
	q, ans := strings.TrimSpace(body.Question), strings.TrimSpace(body.Answer)
	if q == "" || ans == "" {
		writeError(w, http.StatusBadRequest, "question and answer are required")
		return
	}
	if err := a.store.AddKnowledge(r.Context(), q, ans); err != nil {
		a.internalError(w, r, "add knowledge", err)
		return
	}
	writeJSON(w, http.StatusCreated, knowledgeBody{Question: strings.ToLower(q), Answer: ans})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	reqs, err := a.store.ListAllRequests(r.Context())
	if err != nil {
		a.internalError(w, r, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, ComputeStats(reqs))
}

// ---- helpers ----

// storeError maps store sentinels to HTTP statuses.
func (a *API) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "request not found")
	case errors.Is(err, store.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "request is not pending")
	default:
		a.internalError(w, r, op, err)
	}
}

func (a *API) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	observe.Logger(r.Context()).Error("supervisor api: "+op, "err", err)
	writeError(w, http.StatusInternalServerError, op+" failed")
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorJSON{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
