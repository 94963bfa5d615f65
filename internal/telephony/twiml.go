package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ai-phone-assistant/internal/calls"
)

// TwiML is a minimal Twilio Markup Language response builder.
// Only include primitives we need at the adapter boundary.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName       xml.Name   `xml:"Gather"`
	Input         string     `xml:"input,attr"`
	Action        string     `xml:"action,attr"`
	Method        string     `xml:"method,attr"`
	Timeout       string     `xml:"timeout,attr,omitempty"`
	SpeechTimeout string     `xml:"speechTimeout,attr"`
	Language      string     `xml:"language,attr,omitempty"`
	Says          []twimlSay `xml:"Say"`
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr"`
	URL     string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

var ErrEmptyResponse = errors.New("telephony: response has no instructions")

// RenderTwiML maps a state machine response to TwiML.
//
// Speech that precedes a Listen is nested in the Gather so the caller can barge
// in. A Gather that hears nothing falls through to a Redirect back to voiceURL,
// which arrives as a turn without text.
func RenderTwiML(resp calls.Response, voiceURL string) (string, error) {
	if len(resp.Instructions) == 0 {
		return "", ErrEmptyResponse
	}

	var (
		r       twimlResponse
		pending []twimlSay
	)
	flush := func() {
		for _, s := range pending {
			r.Verbs = append(r.Verbs, s)
		}
		pending = nil
	}

	for _, in := range resp.Instructions {
		switch v := in.(type) {
		case calls.Speak:
			pending = append(pending, twimlSay{Voice: v.Voice, Language: v.Locale, Text: v.Text})
		case calls.Listen:
			if voiceURL == "" {
				return "", errors.New("telephony: voice url required for listen")
			}
			r.Verbs = append(r.Verbs,
				twimlGather{
					Input:         "speech",
					Action:        voiceURL,
					Method:        "POST",
					Timeout:       seconds(v.Timeout),
					SpeechTimeout: "auto",
					Language:      v.Locale,
					Says:          pending,
				},
				twimlRedirect{Method: "POST", URL: voiceURL},
			)
			pending = nil
		case calls.Hangup:
			flush()
			r.Verbs = append(r.Verbs, twimlHangup{})
		default:
			return "", fmt.Errorf("telephony: unknown instruction %T", in)
		}
	}
	flush()

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func seconds(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	s := int((d + time.Second - 1) / time.Second)
	return strconv.Itoa(s)
}
