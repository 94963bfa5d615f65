package telephony

import (
	"context"
	"errors"
	"net/http"

	"ai-phone-assistant/internal/calls"
	"ai-phone-assistant/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TurnHandler is the state machine as seen from the webhook boundary.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req calls.TurnRequest) calls.Response
	HandleStatus(ctx context.Context, callID string, status calls.CallStatus) bool
}

// TwilioWebhookHandler converts Twilio webhooks to turn requests and writes TwiML.
//
// No business logic here. Inbound webhook callers are not authenticated.
type TwilioWebhookHandler struct {
	Machine TurnHandler

	// VoiceURL is where Gather actions and redirects post back to.
	VoiceURL string
}

func (h TwilioWebhookHandler) HandleVoice(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Machine == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call handler not configured"})
		return
	}

	form, err := ParseTwilioVoice(c.Request)
	if err != nil {
		if errors.Is(err, ErrMissingCallSid) {
			log.Warn("twilio voice webhook without CallSid")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "CallSid is required"})
			return
		}
		log.Warn("twilio webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	resp := h.Machine.HandleTurn(c.Request.Context(), form.ToTurnRequest())

	twiml, err := RenderTwiML(resp, h.voiceURL(c))
	if err != nil {
		log.Error("twiml render failed", "call_id", form.CallSid, "err", err)
		// Fall back to ending the call cleanly.
		twiml, _ = RenderTwiML(calls.Response{Instructions: []calls.Instruction{calls.Hangup{}}}, "")
	}

	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}

func (h TwilioWebhookHandler) HandleStatus(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Machine == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call handler not configured"})
		return
	}

	form, err := ParseTwilioVoice(c.Request)
	if err != nil {
		log.Warn("twilio status callback rejected", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "CallSid is required"})
		return
	}

	status := calls.ParseCallStatus(form.CallStatus)
	finalized := h.Machine.HandleStatus(c.Request.Context(), form.CallSid, status)
	log.Info("twilio status callback", "call_id", form.CallSid, "call_status", status, "finalized", finalized)
	c.Status(http.StatusNoContent)
}

// voiceURL prefers the configured public URL; behind no proxy the request URL is enough.
func (h TwilioWebhookHandler) voiceURL(c *gin.Context) string {
	if h.VoiceURL != "" {
		return h.VoiceURL
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.Path
}
