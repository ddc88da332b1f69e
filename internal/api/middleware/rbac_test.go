package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func roleRouter(role any) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/player/toggle-play",
		func(c *gin.Context) {
			if role != nil {
				c.Set("user_role", role)
			}
		},
		RequireRole(RoleOperator),
		func(c *gin.Context) { c.Status(http.StatusNoContent) },
	)
	return r
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name string
		role any
		want int
	}{
		{"operator allowed", RoleOperator, http.StatusNoContent},
		{"admin always allowed", RoleAdmin, http.StatusNoContent},
		{"viewer forbidden", RoleViewer, http.StatusForbidden},
		{"no role claim", nil, http.StatusUnauthorized},
		{"non-string claim", 7.0, http.StatusUnauthorized},
		{"empty role", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/player/toggle-play", nil)
			roleRouter(tt.role).ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireRoleNamesRejectedRole(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/player/toggle-play", nil)
	roleRouter(RoleViewer).ServeHTTP(w, req)
	assert.JSONEq(t, `{"error":"role viewer cannot use this player endpoint"}`, w.Body.String())
}
