package calls

import (
	"context"
	"strings"
	"time"

	"ai-phone-assistant/internal/finalize"
	"ai-phone-assistant/internal/language"
	"ai-phone-assistant/internal/observability"
	"ai-phone-assistant/internal/responder"
	"ai-phone-assistant/internal/session"
	"ai-phone-assistant/pkg/logger"
)

// Replier produces the assistant's next utterance.
type Replier interface {
	Reply(ctx context.Context, utterance string, tag language.Tag, history []session.Turn) responder.Result
	Window() int
}

// Finalizer ends a call and sends its summary at most once.
type Finalizer interface {
	Trigger(callID string, reason finalize.Reason)
}

type Options struct {
	Store     *session.Store
	Resolver  *language.Resolver
	Catalog   *language.Catalog
	Responder Replier
	Finalizer Finalizer

	// ListenTimeout is how long the caller may stay silent before the turn ends.
	ListenTimeout time.Duration
	Metrics       *observability.Metrics
}

// Machine interprets each voice webhook against the stored session and decides
// what the caller hears next.
//
//	AWAITING_GREETING --no text--> ACTIVE            speak greeting, listen
//	AWAITING_GREETING --text-----> (as ACTIVE)
//	ACTIVE            --no text--> ACTIVE            listen
//	ACTIVE            --farewell-> TERMINATING       speak farewell, hang up, finalize
//	ACTIVE            --text-----> ACTIVE            speak reply, listen
//	live              --provider terminal status---> finalize, hang up
//	TERMINATING/TERMINATED --anything--> unchanged   hang up
type Machine struct {
	store         *session.Store
	resolver      *language.Resolver
	catalog       *language.Catalog
	responder     Replier
	finalizer     Finalizer
	listenTimeout time.Duration
	metrics       *observability.Metrics
}

func NewMachine(opts Options) *Machine {
	if opts.Catalog == nil {
		opts.Catalog = language.NewCatalog(language.English)
	}
	if opts.Resolver == nil {
		opts.Resolver = language.NewResolver(opts.Catalog.Default(), nil, nil)
	}
	if opts.ListenTimeout <= 0 {
		opts.ListenTimeout = 5 * time.Second
	}
	return &Machine{
		store:         opts.Store,
		resolver:      opts.Resolver,
		catalog:       opts.Catalog,
		responder:     opts.Responder,
		finalizer:     opts.Finalizer,
		listenTimeout: opts.ListenTimeout,
		metrics:       opts.Metrics,
	}
}

type plan int

const (
	planAbsorb plan = iota
	planGreet
	planSilence
	planReply
	planFarewell
)

// HandleTurn never fails: every path returns at least one instruction.
func (m *Machine) HandleTurn(ctx context.Context, req TurnRequest) Response {
	log := logger.ForCall(ctx, req.CallID)
	ctx = logger.With(ctx, log)
	text := strings.TrimSpace(req.Utterance)

	if req.ProviderStatus.IsTerminal() {
		return m.providerEnded(ctx, req.CallID, req.ProviderStatus)
	}

	sess, created := m.store.GetOrCreate(req.CallID, req.From, req.To)
	if sess == nil {
		log.Info("turn for evicted call")
		return m.done(ctx, TurnEvicted, m.catalog.Default(), hangup())
	}
	if created {
		log.Info("call session created", "from", req.From, "to", req.To)
	}

	var (
		p       plan
		tag     language.Tag
		history []session.Turn
	)
	sess.Update(func(tx *session.Tx) {
		st := tx.Status()
		if !st.Live() {
			p = planAbsorb
			return
		}
		if text == "" {
			if st == session.StatusAwaitingGreeting {
				tx.Advance(session.StatusActive)
				tx.Touch()
				p = planGreet
			} else {
				p = planSilence
			}
			tag = m.pinned(tx)
			return
		}

		tx.Advance(session.StatusActive)
		tx.Touch()
		if _, ok := tx.Language(); !ok {
			tx.PinLanguage(m.resolver.Resolve(text))
		}
		tag = m.pinned(tx)

		if m.catalog.IsFarewell(text, tag) {
			tx.Append(session.SpeakerCaller, text)
			tx.Append(session.SpeakerAssistant, m.catalog.Profile(tag).Farewell)
			tx.Advance(session.StatusTerminating)
			p = planFarewell
			return
		}
		history = tx.Recent(m.window())
		tx.Append(session.SpeakerCaller, text)
		p = planReply
	})

	profile := m.catalog.Profile(tag)
	switch p {
	case planGreet:
		return m.done(ctx, TurnGreeting, tag, m.speak(profile.Greeting, tag), m.listen(tag))
	case planSilence:
		return m.done(ctx, TurnSilence, tag, m.listen(tag))
	case planFarewell:
		m.trigger(req.CallID, finalize.ReasonFarewell)
		return m.done(ctx, TurnFarewell, tag, m.speak(profile.Farewell, tag), hangup())
	case planReply:
		return m.reply(ctx, sess, text, tag, history)
	default:
		return m.done(ctx, TurnAbsorbed, tag, hangup())
	}
}

// reply runs the responder without holding the session lock.
func (m *Machine) reply(ctx context.Context, sess *session.CallSession, text string, tag language.Tag, history []session.Turn) Response {
	var res responder.Result
	if m.responder == nil {
		res = responder.Result{Text: m.catalog.Profile(tag).Apology, Degraded: true}
	} else {
		res = m.responder.Reply(ctx, text, tag, history)
	}

	appended := false
	sess.Update(func(tx *session.Tx) {
		if tx.Status() == session.StatusActive {
			appended = tx.Append(session.SpeakerAssistant, res.Text)
		}
	})
	if !appended {
		// The call ended while the model was answering.
		return m.done(ctx, TurnInterrupted, tag, hangup())
	}

	kind := TurnReply
	if res.Degraded {
		kind = TurnDegradedReply
	}
	return m.done(ctx, kind, tag, m.speak(res.Text, tag), m.listen(tag))
}

// HandleStatus processes the asynchronous status callback. It reports whether
// finalization was triggered.
func (m *Machine) HandleStatus(ctx context.Context, callID string, status CallStatus) bool {
	ctx = logger.With(ctx, logger.ForCall(ctx, callID))
	if !status.IsTerminal() {
		logger.From(ctx).Debug("non-terminal call status ignored", "call_status", status)
		return false
	}
	resp := m.providerEnded(ctx, callID, status)
	return resp.Kind == TurnProviderEnded
}

func (m *Machine) providerEnded(ctx context.Context, callID string, status CallStatus) Response {
	sess, ok := m.store.Get(callID)
	if !ok {
		logger.From(ctx).Info("terminal status for unknown call", "call_status", status, "evicted", m.store.Evicted(callID))
		return m.done(ctx, TurnUnknownTerminal, m.catalog.Default(), hangup())
	}
	if sess.Status() == session.StatusTerminated {
		return m.done(ctx, TurnAbsorbed, sess.Language(m.catalog.Default()), hangup())
	}
	m.trigger(callID, finalize.ReasonProviderCompleted)
	return m.done(ctx, TurnProviderEnded, sess.Language(m.catalog.Default()), hangup())
}

func (m *Machine) trigger(callID string, reason finalize.Reason) {
	if m.finalizer != nil {
		m.finalizer.Trigger(callID, reason)
	}
}

func (m *Machine) done(ctx context.Context, kind TurnKind, tag language.Tag, ins ...Instruction) Response {
	m.metrics.Turn(string(kind))
	logger.From(ctx).Debug("turn handled", "kind", kind, "language", tag)
	return Response{Instructions: ins, Kind: kind}
}

func (m *Machine) pinned(tx *session.Tx) language.Tag {
	if t, ok := tx.Language(); ok {
		return t
	}
	return m.catalog.Default()
}

func (m *Machine) window() int {
	if m.responder == nil {
		return 0
	}
	return m.responder.Window()
}

func (m *Machine) speak(text string, tag language.Tag) Speak {
	loc := m.catalog.Locale(tag)
	return Speak{Text: text, Voice: loc.Voice, Locale: loc.Language}
}

func (m *Machine) listen(tag language.Tag) Listen {
	return Listen{Timeout: m.listenTimeout, Locale: m.catalog.Locale(tag).Language}
}

func hangup() Hangup { return Hangup{} }
