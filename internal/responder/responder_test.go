package responder

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"ai-phone-assistant/internal/language"
	"ai-phone-assistant/internal/llm"
	"ai-phone-assistant/internal/observability"
	"ai-phone-assistant/internal/session"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordingClient struct {
	reply string
	err   error
	got   [][]llm.Message
}

func (c *recordingClient) Complete(_ context.Context, msgs []llm.Message) (string, error) {
	c.got = append(c.got, append([]llm.Message(nil), msgs...))
	return c.reply, c.err
}

func prompts() map[language.Tag]string {
	return map[language.Tag]string{language.English: "sys-en", language.Spanish: "sys-es"}
}

func TestReply_BuildsPromptWithEmptyHistory(t *testing.T) {
	c := &recordingClient{reply: "I'll send a plumber."}
	r := New(c, Options{SystemPrompts: prompts()})

	res := r.Reply(context.Background(), "My toilet is leaking", language.English, nil)
	if res.Degraded || res.Err != nil || res.Text != "I'll send a plumber." {
		t.Fatalf("unexpected result %+v", res)
	}
	msgs := c.got[0]
	if len(msgs) != 2 {
		t.Fatalf("expected system + user, got %+v", msgs)
	}
	if msgs[0].Role != llm.RoleSystem || msgs[0].Content != "sys-en" {
		t.Fatalf("unexpected system message %+v", msgs[0])
	}
	if msgs[1].Role != llm.RoleUser || msgs[1].Content != "My toilet is leaking" {
		t.Fatalf("unexpected user message %+v", msgs[1])
	}
}

func TestReply_BoundsHistoryWindow(t *testing.T) {
	c := &recordingClient{reply: "ok"}
	r := New(c, Options{SystemPrompts: prompts(), Window: 3})

	var history []session.Turn
	for i := 0; i < 8; i++ {
		sp := session.SpeakerCaller
		if i%2 == 1 {
			sp = session.SpeakerAssistant
		}
		history = append(history, session.Turn{Speaker: sp, Text: fmt.Sprintf("t%d", i)})
	}
	r.Reply(context.Background(), "now", language.Spanish, history)

	msgs := c.got[0]
	if len(msgs) != 5 {
		t.Fatalf("expected system + 3 history + user, got %d", len(msgs))
	}
	if msgs[0].Content != "sys-es" {
		t.Fatalf("expected spanish system prompt, got %q", msgs[0].Content)
	}
	if msgs[1].Content != "t5" || msgs[1].Role != llm.RoleAssistant || msgs[3].Content != "t7" {
		t.Fatalf("unexpected window %+v", msgs[1:4])
	}
}

func TestReply_FailureReturnsApologyInLanguage(t *testing.T) {
	m := observability.NewMetrics("test")
	cases := []struct {
		name string
		c    *recordingClient
	}{
		{"error", &recordingClient{err: context.DeadlineExceeded}},
		{"empty", &recordingClient{reply: "   "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cat := language.NewCatalog(language.English)
			r := New(tc.c, Options{SystemPrompts: prompts(), Catalog: cat, Metrics: m})
			res := r.Reply(context.Background(), "hola", language.Spanish, nil)
			if !res.Degraded || res.Err == nil {
				t.Fatalf("expected degraded result, got %+v", res)
			}
			if res.Text != cat.Profile(language.Spanish).Apology {
				t.Fatalf("expected spanish apology, got %q", res.Text)
			}
		})
	}
	if got := testutil.ToFloat64(m.LLMDegraded.WithLabelValues("reply")); got != 2 {
		t.Fatalf("degraded counter = %v, want 2", got)
	}
}

func TestReply_NilClientDegrades(t *testing.T) {
	r := New(nil, Options{})
	res := r.Reply(context.Background(), "hello", language.English, nil)
	if !res.Degraded || res.Text == "" {
		t.Fatalf("expected apology, got %+v", res)
	}
}

func TestSummarize(t *testing.T) {
	c := &recordingClient{reply: "Tenant reports a leak; send plumber."}
	r := New(c, Options{})
	turns := []session.Turn{
		{Speaker: session.SpeakerCaller, Text: "My toilet is leaking"},
		{Speaker: session.SpeakerAssistant, Text: "I'll send a plumber."},
	}
	got, err := r.Summarize(context.Background(), turns, language.English)
	if err != nil || got != "Tenant reports a leak; send plumber." {
		t.Fatalf("Summarize = %q, %v", got, err)
	}
	if len(c.got[0]) != 3 || c.got[0][0].Role != llm.RoleSystem {
		t.Fatalf("unexpected summary request %+v", c.got[0])
	}

	if _, err := r.Summarize(context.Background(), nil, language.English); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}

	c.err = errors.New("quota")
	if _, err := r.Summarize(context.Background(), turns, language.English); err == nil {
		t.Fatalf("expected error to surface")
	}
}
