package main

import (
	"context"
	"net/http"

	"ai-phone-assistant/internal/archive"
	"ai-phone-assistant/internal/audit"
	"ai-phone-assistant/internal/auth"
	"ai-phone-assistant/internal/httpapi"
	"ai-phone-assistant/internal/observability"
	"ai-phone-assistant/internal/rbac"
	"ai-phone-assistant/internal/reporting"
	"ai-phone-assistant/internal/session"
	"ai-phone-assistant/internal/telephony"
	"ai-phone-assistant/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	voicePath  = "/webhooks/twilio/voice"
	statusPath = "/webhooks/twilio/status"
)

type routeDeps struct {
	Machine  telephony.TurnHandler
	VoiceURL string
	Metrics  *observability.Metrics

	// Admin API; disabled when Auth is nil.
	Auth     *auth.Manager
	AdminKey string
	Calls    httpapi.OutboundCaller
	Sessions *session.Store
	Archive  archive.Repository
	Reports  *reporting.Service
	Audit    *audit.Service

	Health func(ctx context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "AI phone assistant is running")
	})
	r.GET("/healthz", func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health(c.Request.Context()); err != nil {
				logger.FromGin(c).Warn("health check failed", "err", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	// Provider webhooks (public).
	// NOTE: Twilio request signatures are not validated.
	{
		h := telephony.TwilioWebhookHandler{Machine: d.Machine, VoiceURL: d.VoiceURL}
		r.POST(voicePath, h.HandleVoice)
		r.POST(statusPath, h.HandleStatus)
	}

	if d.Auth == nil {
		return
	}

	h := httpapi.Handlers{
		Auth:     d.Auth,
		Calls:    d.Calls,
		Sessions: d.Sessions,
		Archive:  d.Archive,
		Reports:  d.Reports,
		Audit:    d.Audit,
	}

	v1 := r.Group("/v1")
	v1.POST("/auth/token", auth.RequireAdminKey(d.AdminKey), h.IssueToken)
	v1.POST("/auth/refresh", h.RefreshToken)

	// ADMIN routes
	// Operators can place calls and read sessions; reports are admin only.
	admin := v1.Group("/admin")
	{
		staff := admin.Group("", httpapi.RequireAccessAndAnyRole(d.Auth, rbac.RoleOperator)...)
		staff.POST("/calls", h.StartOutboundCall)
		staff.GET("/sessions", h.SessionStats)
		staff.GET("/sessions/:call_id", h.GetSession)

		reports := admin.Group("/reports", httpapi.RequireAccessAndAnyRole(d.Auth, rbac.RoleAdmin)...)
		reports.GET("/calls", h.CallsReport)
	}
}
