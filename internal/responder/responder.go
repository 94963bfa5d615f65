package responder

import (
	"context"
	"errors"
	"strings"
	"time"

	"ai-phone-assistant/internal/language"
	"ai-phone-assistant/internal/llm"
	"ai-phone-assistant/internal/observability"
	"ai-phone-assistant/internal/session"
	"ai-phone-assistant/pkg/logger"
)

const DefaultWindow = 10

const summaryPrompt = "Summarize this tenant call for the property management team in a few concise sentences. Highlight what action is needed. Write the summary in English even if the caller spoke another language."

var ErrEmptyTranscript = errors.New("transcript is empty")

type Options struct {
	// SystemPrompts holds one system prompt per language.
	SystemPrompts map[language.Tag]string
	// Window is how many prior turns are sent with each request; <= 0 means DefaultWindow.
	Window int

	Catalog *language.Catalog
	Metrics *observability.Metrics
}

// Result is the reply for one turn. Text is always speakable: on LLM failure it is
// the apology for the turn's language, Degraded is set and Err carries the cause.
type Result struct {
	Text     string
	Degraded bool
	Err      error
}

type Responder struct {
	client  llm.Client
	prompts map[language.Tag]string
	window  int
	catalog *language.Catalog
	metrics *observability.Metrics
}

func New(client llm.Client, opts Options) *Responder {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Catalog == nil {
		opts.Catalog = language.NewCatalog(language.English)
	}
	return &Responder{
		client:  client,
		prompts: opts.SystemPrompts,
		window:  opts.Window,
		catalog: opts.Catalog,
		metrics: opts.Metrics,
	}
}

// Window is the number of prior turns Reply uses.
func (r *Responder) Window() int { return r.window }

// Reply asks the model for the next assistant utterance. history must not include utterance.
func (r *Responder) Reply(ctx context.Context, utterance string, tag language.Tag, history []session.Turn) Result {
	if len(history) > r.window {
		history = history[len(history)-r.window:]
	}

	msgs := make([]llm.Message, 0, len(history)+2)
	if p := r.prompts[tag]; p != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: p})
	}
	for _, t := range history {
		msgs = append(msgs, llm.Message{Role: roleOf(t.Speaker), Content: t.Text})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: utterance})

	text, err := r.complete(ctx, msgs)
	if err != nil {
		r.metrics.Degraded("reply")
		logger.From(ctx).Warn("llm reply failed, using apology", "err", err, "language", tag)
		return Result{Text: r.catalog.Profile(tag).Apology, Degraded: true, Err: err}
	}
	return Result{Text: text}
}

// Summarize condenses a finished call for staff. Failures are returned so the caller
// can fall back to the raw transcript.
func (r *Responder) Summarize(ctx context.Context, turns []session.Turn, tag language.Tag) (string, error) {
	if len(turns) == 0 {
		return "", ErrEmptyTranscript
	}
	msgs := make([]llm.Message, 0, len(turns)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: summaryPrompt + " Caller language: " + tag.String() + "."})
	for _, t := range turns {
		msgs = append(msgs, llm.Message{Role: roleOf(t.Speaker), Content: t.Text})
	}
	text, err := r.complete(ctx, msgs)
	if err != nil {
		r.metrics.Degraded("summary")
		return "", err
	}
	return text, nil
}

func (r *Responder) complete(ctx context.Context, msgs []llm.Message) (string, error) {
	if r.client == nil {
		return "", errors.New("no llm client configured")
	}
	start := time.Now()
	text, err := r.client.Complete(ctx, msgs)
	r.metrics.ObserveLLMLatency(time.Since(start))
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", llm.ErrEmptyCompletion
	}
	return text, nil
}

func roleOf(s session.Speaker) llm.Role {
	if s == session.SpeakerAssistant {
		return llm.RoleAssistant
	}
	return llm.RoleUser
}

