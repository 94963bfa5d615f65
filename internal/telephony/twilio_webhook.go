package telephony

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"ai-phone-assistant/internal/calls"
)

// TwilioVoiceForm captures the subset of voice webhook fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/twiml/gather#attributes-action
//
// The same shape arrives on the initial call webhook, on every Gather action and
// on the status callback.
type TwilioVoiceForm struct {
	CallSid      string
	AccountSid   string
	From         string
	To           string
	Direction    string
	CallStatus   string
	SpeechResult string
	Confidence   float64
}

var ErrMissingCallSid = errors.New("telephony: CallSid is required")

func ParseTwilioVoice(r *http.Request) (TwilioVoiceForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioVoiceForm{}, err
	}
	f := TwilioVoiceForm{
		CallSid:      strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid:   r.PostFormValue("AccountSid"),
		From:         normalizePhone(r.PostFormValue("From")),
		To:           normalizePhone(r.PostFormValue("To")),
		Direction:    r.PostFormValue("Direction"),
		CallStatus:   r.PostFormValue("CallStatus"),
		SpeechResult: strings.TrimSpace(r.PostFormValue("SpeechResult")),
	}
	if c := r.PostFormValue("Confidence"); c != "" {
		// A malformed confidence is not worth rejecting the turn over.
		f.Confidence, _ = strconv.ParseFloat(c, 64)
	}
	if f.CallSid == "" {
		return f, ErrMissingCallSid
	}
	return f, nil
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return s
}

func (f TwilioVoiceForm) ToTurnRequest() calls.TurnRequest {
	return calls.TurnRequest{
		CallID:         f.CallSid,
		Utterance:      f.SpeechResult,
		ProviderStatus: calls.ParseCallStatus(f.CallStatus),
		From:           f.From,
		To:             f.To,
	}
}
