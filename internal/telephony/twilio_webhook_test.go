package telephony

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"ai-phone-assistant/internal/calls"

	"github.com/gin-gonic/gin"
)

func TestParseTwilioVoice(t *testing.T) {
	body := strings.NewReader("CallSid=CA123&From=%2B15551234567&To=%2B15557654321&CallStatus=in-progress&SpeechResult=+My+sink+is+leaking+&Confidence=0.91")
	r := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/voice", body)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, err := ParseTwilioVoice(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if form.From != "+15551234567" || form.To != "+15557654321" {
		t.Fatalf("unexpected from/to: %q %q", form.From, form.To)
	}
	if form.Confidence != 0.91 {
		t.Fatalf("unexpected confidence %v", form.Confidence)
	}

	req := form.ToTurnRequest()
	if req.CallID != "CA123" || req.Utterance != "My sink is leaking" {
		t.Fatalf("unexpected turn request %+v", req)
	}
	if req.ProviderStatus != calls.CallStatusInProgress || req.ProviderStatus.IsTerminal() {
		t.Fatalf("unexpected provider status %q", req.ProviderStatus)
	}
}

func TestParseTwilioVoice_MissingCallSid(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/voice", strings.NewReader("From=%2B1555"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if _, err := ParseTwilioVoice(r); !errors.Is(err, ErrMissingCallSid) {
		t.Fatalf("expected ErrMissingCallSid, got %v", err)
	}
}

type fakeMachine struct {
	turns    []calls.TurnRequest
	statuses []calls.CallStatus
	resp     calls.Response
}

func (f *fakeMachine) HandleTurn(_ context.Context, req calls.TurnRequest) calls.Response {
	f.turns = append(f.turns, req)
	return f.resp
}

func (f *fakeMachine) HandleStatus(_ context.Context, _ string, status calls.CallStatus) bool {
	f.statuses = append(f.statuses, status)
	return status.IsTerminal()
}

func newWebhookRouter(m *fakeMachine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := TwilioWebhookHandler{Machine: m, VoiceURL: voiceURL}
	r := gin.New()
	r.POST("/webhooks/twilio/voice", h.HandleVoice)
	r.POST("/webhooks/twilio/status", h.HandleStatus)
	return r
}

func postForm(r http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleVoice_WritesTwiML(t *testing.T) {
	m := &fakeMachine{resp: calls.Response{Instructions: []calls.Instruction{
		calls.Speak{Text: "Hello", Voice: "Polly.Joanna", Locale: "en-US"},
		calls.Listen{Locale: "en-US"},
	}}}
	w := postForm(newWebhookRouter(m), "/webhooks/twilio/voice", url.Values{"CallSid": {"CA1"}, "From": {"+1555"}})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(w.Body.String(), "<Gather") {
		t.Fatalf("expected gather, got %s", w.Body.String())
	}
	if len(m.turns) != 1 || m.turns[0].CallID != "CA1" || m.turns[0].Utterance != "" {
		t.Fatalf("unexpected turn %+v", m.turns)
	}
}

func TestHandleVoice_MissingCallSid(t *testing.T) {
	m := &fakeMachine{}
	w := postForm(newWebhookRouter(m), "/webhooks/twilio/voice", url.Values{"SpeechResult": {"hi"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if len(m.turns) != 0 {
		t.Fatalf("machine must not be called")
	}
}

func TestHandleVoice_RenderFailureHangsUp(t *testing.T) {
	m := &fakeMachine{}
	w := postForm(newWebhookRouter(m), "/webhooks/twilio/voice", url.Values{"CallSid": {"CA1"}})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<Hangup>") {
		t.Fatalf("expected fallback hangup, got %d %s", w.Code, w.Body.String())
	}
}

func TestHandleStatus_NoContent(t *testing.T) {
	m := &fakeMachine{}
	w := postForm(newWebhookRouter(m), "/webhooks/twilio/status", url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if len(m.statuses) != 1 || m.statuses[0] != calls.CallStatusCompleted {
		t.Fatalf("unexpected statuses %v", m.statuses)
	}
}

func TestTwilioProvider_StartOutboundCall(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Accounts/AC1/Calls.json" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Basic "+base64.StdEncoding.EncodeToString([]byte("AC1:secret")) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = r.ParseForm()
		got = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA9","status":"queued","to":"+15550001111","from":"+15559990000","date_created":"Sat, 17 Oct 2026 10:00:00 +0000"}`))
	}))
	defer srv.Close()

	p, err := NewTwilioProvider(TwilioConfig{
		AccountSID: "AC1",
		AuthToken:  "secret",
		FromNumber: "+15559990000",
		VoiceURL:   voiceURL,
		StatusURL:  "https://assistant.example.com/webhooks/twilio/status",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewTwilioProvider: %v", err)
	}
	res, err := p.StartOutboundCall(context.Background(), OutboundCallRequest{To: "+15550001111"})
	if err != nil {
		t.Fatalf("StartOutboundCall: %v", err)
	}
	if res.CallID != "CA9" || res.Status != "queued" || res.CreatedAt.Year() != 2026 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got.Get("Url") != voiceURL || got.Get("StatusCallback") == "" || got.Get("From") != "+15559990000" {
		t.Fatalf("unexpected form %v", got)
	}
}

func TestTwilioProvider_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	}))
	defer srv.Close()

	p, err := NewTwilioProvider(TwilioConfig{AccountSID: "AC1", AuthToken: "s", FromNumber: "+1", VoiceURL: voiceURL, BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewTwilioProvider: %v", err)
	}
	_, err = p.StartOutboundCall(context.Background(), OutboundCallRequest{To: "bogus"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 21211 || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected APIError 21211, got %v", err)
	}

	if _, err := p.StartOutboundCall(context.Background(), OutboundCallRequest{}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
