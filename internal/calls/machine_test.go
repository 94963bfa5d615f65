package calls

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-phone-assistant/internal/finalize"
	"ai-phone-assistant/internal/language"
	"ai-phone-assistant/internal/responder"
	"ai-phone-assistant/internal/session"
	"ai-phone-assistant/pkg/logger"
)

type stubReplier struct {
	mu      sync.Mutex
	reply   string
	err     error
	window  int
	calls   int
	lastIn  string
	lastTag language.Tag
	history []session.Turn
	// during runs while the session lock is released, before the reply returns.
	during func()
}

func (r *stubReplier) Reply(_ context.Context, utterance string, tag language.Tag, history []session.Turn) responder.Result {
	r.mu.Lock()
	r.calls++
	r.lastIn, r.lastTag, r.history = utterance, tag, history
	during := r.during
	r.mu.Unlock()
	if during != nil {
		during()
	}
	if r.err != nil {
		return responder.Result{Text: "sorry", Degraded: true, Err: r.err}
	}
	return responder.Result{Text: r.reply}
}

func (r *stubReplier) Window() int { return r.window }

type countingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *countingNotifier) Notify(context.Context, string, string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

type harness struct {
	store    *session.Store
	replier  *stubReplier
	notifier *countingNotifier
	machine  *Machine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := session.NewStore(session.Options{Logger: logger.Discard()})
	n := &countingNotifier{}
	coord := finalize.NewCoordinator(finalize.Options{Store: store, Notifier: n, Logger: logger.Discard()})
	r := &stubReplier{reply: "I'll send a plumber today.", window: 10}
	catalog := language.NewCatalog(language.English)
	m := NewMachine(Options{
		Store:         store,
		Resolver:      language.NewResolver(language.English, language.NewWhatlangDetector(), logger.Discard()),
		Catalog:       catalog,
		Responder:     r,
		Finalizer:     coord,
		ListenTimeout: 4 * time.Second,
	})
	return &harness{store: store, replier: r, notifier: n, machine: m}
}

func (h *harness) turn(callID, text string) Response {
	return h.machine.HandleTurn(context.Background(), TurnRequest{CallID: callID, Utterance: text, From: "+15550001111", To: "+15559990000"})
}

func mustSession(t *testing.T, h *harness, callID string) *session.CallSession {
	t.Helper()
	sess, ok := h.store.Get(callID)
	if !ok {
		t.Fatalf("expected session %s", callID)
	}
	return sess
}

func TestHandleTurn_ScenariosABC(t *testing.T) {
	h := newHarness(t)

	// A: greeting.
	resp := h.turn("C1", "")
	if resp.Kind != TurnGreeting || len(resp.Instructions) != 2 {
		t.Fatalf("unexpected greeting response %+v", resp)
	}
	sp, ok := resp.Instructions[0].(Speak)
	if !ok || sp.Text != language.NewCatalog(language.English).Profile(language.English).Greeting || sp.Voice != "Polly.Joanna" {
		t.Fatalf("expected greeting speech, got %+v", resp.Instructions[0])
	}
	if l, ok := resp.Instructions[1].(Listen); !ok || l.Timeout != 4*time.Second || l.Locale != "en-US" {
		t.Fatalf("expected listen, got %+v", resp.Instructions[1])
	}
	sess := mustSession(t, h, "C1")
	if sess.Status() != session.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", sess.Status())
	}

	// B: first utterance.
	resp = h.turn("C1", "My toilet is leaking")
	if resp.Kind != TurnReply || resp.HangsUp() {
		t.Fatalf("unexpected reply response %+v", resp)
	}
	if sp := resp.Instructions[0].(Speak); sp.Text != "I'll send a plumber today." {
		t.Fatalf("unexpected reply speech %+v", sp)
	}
	if _, ok := resp.Instructions[1].(Listen); !ok {
		t.Fatalf("expected listen after reply")
	}
	if h.replier.lastIn != "My toilet is leaking" || len(h.replier.history) != 0 || h.replier.lastTag != language.English {
		t.Fatalf("unexpected responder input %q history=%d tag=%s", h.replier.lastIn, len(h.replier.history), h.replier.lastTag)
	}
	if n := len(sess.Turns()); n != 2 {
		t.Fatalf("expected 2 turns, got %d", n)
	}

	// C: farewell.
	resp = h.turn("C1", "Okay thank you, bye")
	if resp.Kind != TurnFarewell || !resp.HangsUp() {
		t.Fatalf("unexpected farewell response %+v", resp)
	}
	if sp := resp.Instructions[0].(Speak); sp.Text != language.NewCatalog(language.English).Profile(language.English).Farewell {
		t.Fatalf("expected fixed farewell, got %q", sp.Text)
	}
	if h.replier.calls != 1 {
		t.Fatalf("farewell must not call the responder")
	}
	if !sess.Notified() || sess.Status() != session.StatusTerminated || h.notifier.count() != 1 {
		t.Fatalf("expected notified terminated call, notified=%v status=%s sends=%d", sess.Notified(), sess.Status(), h.notifier.count())
	}
	if n := len(sess.Turns()); n != 4 {
		t.Fatalf("expected 4 turns, got %d", n)
	}
}

func TestHandleTurn_AfterTerminationHangsUp(t *testing.T) {
	h := newHarness(t)
	h.turn("C1", "")
	h.turn("C1", "hello I need help")
	h.turn("C1", "goodbye")
	sess := mustSession(t, h, "C1")
	before := len(sess.Turns())

	for _, text := range []string{"", "are you there", "goodbye"} {
		resp := h.turn("C1", text)
		if resp.Kind != TurnAbsorbed || len(resp.Instructions) != 1 || !resp.HangsUp() {
			t.Fatalf("expected hangup only for %q, got %+v", text, resp)
		}
	}
	if len(sess.Turns()) != before || h.notifier.count() != 1 || h.replier.calls != 1 {
		t.Fatalf("post-termination webhooks must not change the call")
	}
}

func TestHandleTurn_ScenarioD_CompletionWithoutTurns(t *testing.T) {
	h := newHarness(t)
	h.turn("C2", "")

	resp := h.machine.HandleTurn(context.Background(), TurnRequest{CallID: "C2", ProviderStatus: CallStatusCompleted})
	if resp.Kind != TurnProviderEnded || !resp.HangsUp() {
		t.Fatalf("unexpected response %+v", resp)
	}
	sess := mustSession(t, h, "C2")
	if h.notifier.count() != 0 || sess.Notified() || sess.Status() != session.StatusTerminated {
		t.Fatalf("expected silent termination, sends=%d notified=%v status=%s", h.notifier.count(), sess.Notified(), sess.Status())
	}
}

func TestHandleTurn_ScenarioE_RetriedFarewell(t *testing.T) {
	h := newHarness(t)
	h.turn("C3", "")
	h.turn("C3", "hi my heater is broken")
	first := h.turn("C3", "thanks, bye")
	second := h.turn("C3", "thanks, bye")

	if first.Kind != TurnFarewell || !second.HangsUp() {
		t.Fatalf("unexpected responses %+v / %+v", first, second)
	}
	if h.notifier.count() != 1 {
		t.Fatalf("expected a single notification, got %d", h.notifier.count())
	}
}

func TestHandleTurn_UnknownTerminalDoesNotCreate(t *testing.T) {
	h := newHarness(t)
	resp := h.machine.HandleTurn(context.Background(), TurnRequest{CallID: "ghost", ProviderStatus: CallStatusBusy})
	if resp.Kind != TurnUnknownTerminal || !resp.HangsUp() {
		t.Fatalf("unexpected response %+v", resp)
	}
	if _, ok := h.store.Get("ghost"); ok {
		t.Fatalf("terminal status must not create a session")
	}
}

func TestHandleTurn_LanguagePinnedOnce(t *testing.T) {
	h := newHarness(t)
	h.turn("C4", "")
	resp := h.turn("C4", "Hola, necesito ayuda con mi renta")
	if sp := resp.Instructions[0].(Speak); sp.Voice != "Polly.Conchita" || sp.Locale != "es-ES" {
		t.Fatalf("expected spanish voice, got %+v", sp)
	}
	if h.replier.lastTag != language.Spanish {
		t.Fatalf("expected spanish responder tag, got %s", h.replier.lastTag)
	}

	h.turn("C4", "Hello, I need to pay my rent please")
	sess := mustSession(t, h, "C4")
	if got := sess.Language(language.English); got != language.Spanish {
		t.Fatalf("language must stay pinned, got %s", got)
	}
	if h.replier.lastTag != language.Spanish {
		t.Fatalf("responder must keep the pinned language")
	}
}

func TestHandleTurn_TextOnFirstWebhookSkipsGreeting(t *testing.T) {
	h := newHarness(t)
	resp := h.turn("C5", "my sink is clogged")
	if resp.Kind != TurnReply {
		t.Fatalf("expected reply, got %s", resp.Kind)
	}
	if mustSession(t, h, "C5").Status() != session.StatusActive {
		t.Fatalf("expected ACTIVE")
	}
}

func TestHandleTurn_SilenceListensWithoutLLM(t *testing.T) {
	h := newHarness(t)
	h.turn("C6", "")
	resp := h.turn("C6", "   ")
	if resp.Kind != TurnSilence || len(resp.Instructions) != 1 {
		t.Fatalf("unexpected silence response %+v", resp)
	}
	if _, ok := resp.Instructions[0].(Listen); !ok {
		t.Fatalf("expected listen")
	}
	if h.replier.calls != 0 || len(mustSession(t, h, "C6").Turns()) != 0 {
		t.Fatalf("silence must not call the responder or record turns")
	}
}

func TestHandleTurn_HistoryExcludesCurrentUtterance(t *testing.T) {
	h := newHarness(t)
	h.replier.window = 2
	h.turn("C7", "")
	h.turn("C7", "hello I need a repair")
	h.turn("C7", "the kitchen sink")
	h.turn("C7", "it is leaking")

	if len(h.replier.history) != 2 {
		t.Fatalf("expected window of 2, got %d", len(h.replier.history))
	}
	last := h.replier.history[len(h.replier.history)-1]
	if last.Speaker != session.SpeakerAssistant || h.replier.lastIn != "it is leaking" {
		t.Fatalf("unexpected history tail %+v", last)
	}
}

func TestHandleTurn_DegradedReply(t *testing.T) {
	h := newHarness(t)
	h.replier.err = errors.New("timeout")
	h.turn("C8", "")
	resp := h.turn("C8", "hello can you help")
	if resp.Kind != TurnDegradedReply || resp.HangsUp() {
		t.Fatalf("expected degraded reply that keeps listening, got %+v", resp)
	}
	if sp := resp.Instructions[0].(Speak); sp.Text != "sorry" {
		t.Fatalf("unexpected degraded text %q", sp.Text)
	}
}

func TestHandleTurn_EndedWhileReplying(t *testing.T) {
	h := newHarness(t)
	h.turn("C9", "")
	h.replier.during = func() {
		h.machine.HandleStatus(context.Background(), "C9", CallStatusCompleted)
	}
	resp := h.turn("C9", "hello my door is stuck")
	if resp.Kind != TurnInterrupted || !resp.HangsUp() {
		t.Fatalf("expected interrupted hangup, got %+v", resp)
	}
	sess := mustSession(t, h, "C9")
	if len(sess.Turns()) != 1 || h.notifier.count() != 1 {
		t.Fatalf("expected caller turn only and one notification, turns=%d sends=%d", len(sess.Turns()), h.notifier.count())
	}
}

func TestHandleTurn_EvictedCallHangsUp(t *testing.T) {
	h := newHarness(t)
	h.turn("C10", "")
	h.store.Remove("C10")

	resp := h.turn("C10", "hello?")
	if resp.Kind != TurnEvicted || !resp.HangsUp() {
		t.Fatalf("expected evicted hangup, got %+v", resp)
	}
	if _, ok := h.store.Get("C10"); ok {
		t.Fatalf("evicted call must not be re-created")
	}
}

func TestHandleStatus(t *testing.T) {
	h := newHarness(t)
	h.turn("C11", "")
	h.turn("C11", "hi there I need help")

	if h.machine.HandleStatus(context.Background(), "C11", CallStatusInProgress) {
		t.Fatalf("non-terminal status must be ignored")
	}
	if !h.machine.HandleStatus(context.Background(), "C11", CallStatusCompleted) {
		t.Fatalf("expected finalize on completed")
	}
	if h.machine.HandleStatus(context.Background(), "C11", CallStatusCompleted) {
		t.Fatalf("second completion must be absorbed")
	}
	if h.machine.HandleStatus(context.Background(), "nobody", CallStatusFailed) {
		t.Fatalf("unknown call must be a no-op")
	}
	if h.notifier.count() != 1 {
		t.Fatalf("expected one notification, got %d", h.notifier.count())
	}
}

func TestHandleTurn_ConcurrentTurnsAllRecorded(t *testing.T) {
	h := newHarness(t)
	h.turn("C12", "")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.turn("C12", "hello I have a question")
		}()
	}
	wg.Wait()

	turns := mustSession(t, h, "C12").Turns()
	if len(turns) != 40 {
		t.Fatalf("expected 40 turns, got %d", len(turns))
	}
}

func TestParseCallStatus(t *testing.T) {
	cases := map[string]struct {
		want     CallStatus
		terminal bool
	}{
		"completed":   {CallStatusCompleted, true},
		" No-Answer ": {CallStatusNoAnswer, true},
		"no_answer":   {CallStatusNoAnswer, true},
		"in-progress": {CallStatusInProgress, false},
		"ringing":     {CallStatusRinging, false},
		"something":   {CallStatus("something"), false},
	}
	for in, tc := range cases {
		got := ParseCallStatus(in)
		if got != tc.want || got.IsTerminal() != tc.terminal {
			t.Fatalf("ParseCallStatus(%q) = %q terminal=%v", in, got, got.IsTerminal())
		}
	}
}
