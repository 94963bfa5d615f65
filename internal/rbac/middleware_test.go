package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"ai-phone-assistant/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveWithRole(role string, allowed ...string) int {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithStaff(c.Request.Context(), auth.Staff{Subject: "u", Role: role})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAnyRole_AdminBypasses(t *testing.T) {
	if code := serveWithRole(RoleAdmin, RoleOperator); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_OperatorAllowedWhenListed(t *testing.T) {
	if code := serveWithRole(RoleOperator, RoleOperator); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_OperatorDeniedOnAdminRoutes(t *testing.T) {
	if code := serveWithRole(RoleOperator, RoleAdmin); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_UnknownRoleDenied(t *testing.T) {
	if code := serveWithRole("finance", "finance"); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_RoleRequired(t *testing.T) {
	if code := serveWithRole("", RoleOperator); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestAllows(t *testing.T) {
	cases := []struct {
		role    string
		allowed []string
		want    bool
	}{
		{RoleAdmin, nil, true},
		{RoleOperator, nil, false},
		{RoleOperator, []string{RoleAdmin, RoleOperator}, true},
		{"root", []string{"root"}, false},
	}
	for _, tc := range cases {
		if got := Allows(tc.role, tc.allowed...); got != tc.want {
			t.Fatalf("Allows(%q, %v) = %v, want %v", tc.role, tc.allowed, got, tc.want)
		}
	}
}
