package call_test

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/frontdesk/internal/call"
	"github.com/MrWong99/frontdesk/internal/endpoint"
	"github.com/MrWong99/frontdesk/internal/resolver"
	"github.com/MrWong99/frontdesk/internal/store"
	"github.com/MrWong99/frontdesk/internal/store/memstore"
	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	llmmock "github.com/MrWong99/frontdesk/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/frontdesk/pkg/provider/stt/mock"
	"github.com/MrWong99/frontdesk/pkg/provider/vad"
	"github.com/MrWong99/frontdesk/pkg/provider/vad/energy"
	vadmock "github.com/MrWong99/frontdesk/pkg/provider/vad/mock"
)

// 20 ms of canonical audio.
const frameSamples = 320

func pcmFrame(level int16) audio.AudioFrame {
	buf := make([]byte, frameSamples*2)
	for i := range frameSamples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(level))
	}
	return audio.AudioFrame{Data: buf, SampleRate: audio.CanonicalRate, Channels: 1}
}

var (
	loud  = pcmFrame(2000)
	quiet = pcmFrame(0)
)

// shortEndpoint completes after 10 speech frames followed by 5 silent ones.
var shortEndpoint = endpoint.Config{
	MinUtterance:    200 * time.Millisecond,
	TrailingSilence: 100 * time.Millisecond,
	MaxUtterance:    time.Second,
}

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

type harness struct {
	session *call.Session
	store   store.Store
	stt     *sttmock.Provider
	llm     *llmmock.Provider
	speaker *recordingSpeaker
	input   chan audio.AudioFrame
	done    chan error
}

func newHarness(t *testing.T, mutate func(*call.Config)) *harness {
	t.Helper()
	h := &harness{
		store:   memstore.New(),
		stt:     &sttmock.Provider{Text: "What are your hours?"},
		llm:     &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "We do!"}},
		speaker: &recordingSpeaker{},
		input:   make(chan audio.AudioFrame),
		done:    make(chan error, 1),
	}
	cfg := call.Config{
		Info:         audio.CallInfo{ID: "call-1", PhoneNumber: "5550001"},
		Store:        h.store,
		VAD:          energy.New(),
		Transcriber:  h.stt,
		Resolver:     resolver.New(h.store, h.llm),
		Speaker:      h.speaker,
		Endpoint:     shortEndpoint,
		SkipGreeting: true,
		Cooldown:     time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := call.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("call.New: %v", err)
	}
	h.session = s
	return h
}

func (h *harness) start(ctx context.Context) {
	go func() { h.done <- h.session.Run(ctx, h.input) }()
}

// utter sends one complete utterance.
func (h *harness) utter() {
	for range 10 {
		h.input <- loud
	}
	for range 5 {
		h.input <- quiet
	}
}

// stop closes the input and waits for Run to return.
func (h *harness) stop(t *testing.T) {
	t.Helper()
	close(h.input)
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after input closed")
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := call.New(context.Background(), call.Config{Store: memstore.New()})
	if err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestNew_DefaultsPhoneAndCreatesCustomer(t *testing.T) {
	h := newHarness(t, func(c *call.Config) { c.Info = audio.CallInfo{ID: "anon"} })
	if got := h.session.Phone(); got != audio.DefaultPhoneNumber {
		t.Errorf("Phone = %q, want %q", got, audio.DefaultPhoneNumber)
	}
	c := h.session.Customer()
	if c.ID == "" || c.Name != call.DefaultCustomerName || c.PhoneNumber != audio.DefaultPhoneNumber {
		t.Errorf("customer = %+v", c)
	}
	if h.session.State() != call.Idle {
		t.Errorf("State = %s, want idle", h.session.State())
	}
}

func TestSession_GreetsOnStart(t *testing.T) {
	h := newHarness(t, func(c *call.Config) { c.SkipGreeting = false })
	h.start(context.Background())
	h.stop(t)

	if got := h.speaker.Texts(); len(got) != 1 || got[0] != call.DefaultGreeting {
		t.Errorf("spoken = %q, want greeting", got)
	}
}

func TestSession_AnswersFromKnowledgeBase(t *testing.T) {
	h := newHarness(t, nil)
	h.start(context.Background())
	h.utter()
	eventually(t, "reply", func() bool { return len(h.speaker.Texts()) == 1 })
	h.stop(t)

	if got := h.speaker.Texts()[0]; got != "We're open Monday to Friday 9AM-7PM, Saturday 10AM-5PM" {
		t.Errorf("spoken = %q", got)
	}
	if h.stt.CallCount() != 1 {
		t.Errorf("transcribe calls = %d, want 1", h.stt.CallCount())
	}
	if len(h.llm.CompleteCalls) != 0 {
		t.Error("knowledge hit should not reach the llm")
	}
	wav := h.stt.Calls[0].WAV
	if _, f, err := audio.DecodeWAV(wav); err != nil || f != audio.Canonical {
		t.Errorf("transcribed audio format = %+v, err %v", f, err)
	}
	if h.session.State() != call.Idle {
		t.Errorf("State = %s, want idle", h.session.State())
	}
}

func TestSession_FilteredTranscriptIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.stt.Text = "um"
	h.start(context.Background())
	h.utter()
	eventually(t, "transcription", func() bool { return h.stt.CallCount() == 1 })
	eventually(t, "idle", func() bool { return h.session.State() == call.Idle })
	h.stop(t)

	if got := h.speaker.Texts(); len(got) != 0 {
		t.Errorf("spoken = %q, want nothing", got)
	}
}

func TestSession_TranscriptionFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.stt.Err = errors.New("stt down")
	h.start(context.Background())
	h.utter()
	eventually(t, "idle after failure", func() bool {
		return h.stt.CallCount() == 1 && h.session.State() == call.Idle
	})

	h.utter()
	eventually(t, "second transcription", func() bool { return h.stt.CallCount() == 2 })
	h.stop(t)

	if got := h.speaker.Texts(); len(got) != 0 {
		t.Errorf("spoken = %q, want nothing", got)
	}
}

func TestSession_NoSecondCycleWhileBusy(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	h := newHarness(t, nil)
	h.stt.TranscribeFunc = func(context.Context, []byte) (string, error) {
		started <- struct{}{}
		<-release
		return "What are your hours?", nil
	}
	h.start(context.Background())
	h.utter()
	<-started

	// A full utterance while transcribing must be dropped.
	h.utter()
	if got := h.session.State(); got != call.Transcribing {
		t.Errorf("State = %s, want transcribing", got)
	}
	close(release)
	eventually(t, "reply", func() bool { return len(h.speaker.Texts()) == 1 })
	h.stop(t)

	if h.stt.CallCount() != 1 {
		t.Errorf("transcribe calls = %d, want 1", h.stt.CallCount())
	}
}

func TestSession_EscalationAndSupervisorFollowUp(t *testing.T) {
	h := newHarness(t, nil)
	h.stt.Text = "Is parking free nearby?"
	h.llm.CompleteResponse = &llm.CompletionResponse{Content: "Hmm, let me check on that."}
	h.start(context.Background())
	h.utter()
	eventually(t, "hand-off", func() bool { return len(h.speaker.Texts()) == 1 })
	if got := h.speaker.Texts()[0]; got != resolver.HandOffPhrase {
		t.Fatalf("spoken = %q, want hand-off phrase", got)
	}

	ctx := context.Background()
	pending, err := h.store.ListPendingRequests(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v, %v; want one request", pending, err)
	}
	req := pending[0]
	if req.CallerID != h.session.Customer().ID || req.PhoneNumber != "5550001" {
		t.Errorf("request = %+v", req)
	}

	if err := h.store.ResolveRequest(ctx, req.ID, "Yes, behind the building."); err != nil {
		t.Fatalf("ResolveRequest: %v", err)
	}
	eventually(t, "follow-up", func() bool { return len(h.speaker.Texts()) == 2 })
	h.stop(t)

	if got := h.speaker.Texts()[1]; got != "Great news! My supervisor says: Yes, behind the building." {
		t.Errorf("follow-up = %q", got)
	}
	got, err := h.store.GetRequest(ctx, req.ID)
	if err != nil || got.Status != store.StatusDelivered {
		t.Errorf("request status = %v, %v; want delivered", got.Status, err)
	}
}

func TestSession_SpeakFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.speaker.err = errors.New("sink closed")
	h.start(context.Background())
	h.utter()
	eventually(t, "idle after failure", func() bool {
		return h.stt.CallCount() == 1 && h.session.State() == call.Idle
	})
	h.stop(t)
}

func TestSession_PanicInCycleIsRecovered(t *testing.T) {
	h := newHarness(t, nil)
	h.stt.TranscribeFunc = func(context.Context, []byte) (string, error) {
		panic("boom")
	}
	h.start(context.Background())
	h.utter()
	eventually(t, "idle after panic", func() bool {
		return h.stt.CallCount() == 1 && h.session.State() == call.Idle
	})
	h.stop(t)
}

type panickingVAD struct{ vadmock.Session }

func (*panickingVAD) ProcessFrame([]byte) (vad.VADEvent, error) { panic("corrupt frame") }

type panickingStore struct{ *memstore.Store }

func (panickingStore) ListAllRequests(context.Context) ([]store.HelpRequest, error) {
	panic("driver bug")
}

func TestSession_TaskPanicEndsRun(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*call.Config)
		feed   bool
	}{
		{
			name:   "frame loop",
			mutate: func(c *call.Config) { c.VAD = &vadmock.Engine{Session: &panickingVAD{}} },
			feed:   true,
		},
		{
			name:   "supervisor bridge",
			mutate: func(c *call.Config) { c.Store = panickingStore{memstore.New()} },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.mutate)
			h.start(context.Background())
			if tt.feed {
				h.input <- loud
			}
			select {
			case err := <-h.done:
				if !errors.Is(err, call.ErrPanicked) {
					t.Errorf("Run = %v, want ErrPanicked", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("Run did not return after the panic")
			}
		})
	}
}

func TestSession_OverflowDiscardsUtterance(t *testing.T) {
	h := newHarness(t, func(c *call.Config) {
		c.Endpoint.MaxUtterance = 300 * time.Millisecond
	})
	h.start(context.Background())
	for range 16 {
		h.input <- loud
	}
	h.input <- quiet
	h.stop(t)

	if h.stt.CallCount() != 0 {
		t.Errorf("transcribe calls = %d, want 0", h.stt.CallCount())
	}
	if h.session.State() != call.Idle {
		t.Errorf("State = %s, want idle", h.session.State())
	}
}

func TestSession_ConvertsTransportAudio(t *testing.T) {
	h := newHarness(t, nil)
	h.start(context.Background())

	// 20 ms of 48 kHz stereo speech and silence.
	stereo := func(level int16) audio.AudioFrame {
		buf := make([]byte, 960*2*2)
		for i := 0; i < len(buf); i += 2 {
			binary.LittleEndian.PutUint16(buf[i:], uint16(level))
		}
		return audio.AudioFrame{Data: buf, SampleRate: 48000, Channels: 2}
	}
	for range 10 {
		h.input <- stereo(2000)
	}
	for range 5 {
		h.input <- stereo(0)
	}
	eventually(t, "transcription", func() bool { return h.stt.CallCount() == 1 })
	h.stop(t)
}

func TestSession_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	h.start(ctx)
	cancel()
	select {
	case err := <-h.done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    call.State
		want string
	}{
		{call.Idle, "idle"},
		{call.Capturing, "capturing"},
		{call.Transcribing, "transcribing"},
		{call.Resolving, "resolving"},
		{call.Speaking, "speaking"},
		{call.State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
