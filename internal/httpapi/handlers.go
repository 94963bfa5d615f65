package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"ai-phone-assistant/internal/archive"
	"ai-phone-assistant/internal/audit"
	"ai-phone-assistant/internal/auth"
	"ai-phone-assistant/internal/rbac"
	"ai-phone-assistant/internal/reporting"
	"ai-phone-assistant/internal/session"
	"ai-phone-assistant/internal/telephony"
	"ai-phone-assistant/pkg/logger"

	"github.com/gin-gonic/gin"
)

// OutboundCaller starts calls through the telephony provider.
type OutboundCaller interface {
	StartOutboundCall(ctx context.Context, req telephony.OutboundCallRequest) (telephony.OutboundCallResult, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Calls    OutboundCaller
	Sessions *session.Store
	Archive  archive.Repository
	Reports  *reporting.Service
	Audit    *audit.Service

	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// --- Auth ---

type tokenRequest struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

// IssueToken issues a JWT token pair to staff holding the admin key.
// The key check is done by auth.RequireAdminKey in front of this handler.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin api not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.Subject = strings.TrimSpace(req.Subject)
	if req.Subject == "" || !rbac.Valid(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "subject and role (admin|operator) required"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), req.Subject, req.Role)
	if err != nil {
		logger.FromGin(c).Error("token issuance failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken exchanges a refresh token for a new pair. No admin key needed.
func (h Handlers) RefreshToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin api not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	pair, err := h.Auth.Refresh(h.now(), req.RefreshToken)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// --- Calls ---

type startCallRequest struct {
	To string `json:"to"`
}

// StartOutboundCall dials a tenant and hands the call to the assistant.
// RBAC: admin or operator.
func (h Handlers) StartOutboundCall(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "outbound calling not configured"})
		return
	}
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, err := h.Calls.StartOutboundCall(c.Request.Context(), telephony.OutboundCallRequest{To: req.To})
	if err != nil {
		var apiErr *telephony.APIError
		switch {
		case errors.Is(err, telephony.ErrInvalidArgument):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.As(err, &apiErr):
			log.Warn("outbound call rejected by provider", "code", apiErr.Code, "err", apiErr.Message)
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		default:
			log.Error("outbound call failed", "err", err)
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "provider unavailable"})
		}
		return
	}

	staff, _ := auth.StaffFrom(c.Request.Context())
	if h.Audit != nil {
		if err := h.Audit.LogOutboundCall(c.Request.Context(), staff.Subject, staff.Role, c.ClientIP(), req.To, res.CallID); err != nil {
			log.Warn("audit append failed", "err", err)
		}
	}
	log.Info("outbound call started", "call_id", res.CallID, "subject", staff.Subject)
	c.JSON(http.StatusAccepted, res)
}

// --- Sessions ---

// GetSession returns the live session, or the archived record once it has been evicted.
// RBAC: admin or operator.
func (h Handlers) GetSession(c *gin.Context) {
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}
	if h.Sessions != nil {
		if snap, ok := h.Sessions.Snapshot(callID); ok {
			c.JSON(http.StatusOK, gin.H{"source": "live", "session": snap})
			return
		}
	}
	if h.Archive != nil {
		rec, err := h.Archive.Get(c.Request.Context(), callID)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"source": "archive", "call": rec})
			return
		case !errors.Is(err, archive.ErrNotFound):
			logger.FromGin(c).Error("archive lookup failed", "call_id", callID, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "archive lookup failed"})
			return
		}
	}
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
}

// SessionStats reports live session counts by status.
func (h Handlers) SessionStats(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "sessions not configured"})
		return
	}
	c.JSON(http.StatusOK, h.Sessions.Stats())
}

// --- Reports ---

// CallsReport summarizes archived calls in [from, to). Defaults to the last 24h.
// RBAC: admin.
func (h Handlers) CallsReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "reporting not configured"})
		return
	}
	to := h.now().UTC()
	from := to.Add(-24 * time.Hour)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
	}

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		Range:  reporting.TimeRange{From: from, To: to},
		Reason: c.Query("reason"),
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
			return
		}
		logger.FromGin(c).Error("calls report failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// Convenience middleware bundles.

func RequireAccessAndAnyRole(m *auth.Manager, roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{auth.RequireAccessToken(m), rbac.RequireAnyRole(roles...)}
}
