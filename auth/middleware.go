package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/draiimon/PanicSense-Final-sub000/app/logging"

	"github.com/gin-gonic/gin"
)

// Guard describes how the admin route group admits operators.
type Guard struct {
	Verifier *Verifier
	// Scope every operator token must carry. Empty admits any valid token.
	Scope string
	// Bypass admits every request as a local operator.
	Bypass bool
	Logger *slog.Logger
}

// RequireOperator rejects admin requests without a valid operator token
// (401) or without the guard's scope (403). Admitted requests carry the
// Operator in their context.
func RequireOperator(g Guard) gin.HandlerFunc {
	if g.Logger == nil {
		g.Logger = logging.Discard()
	}
	return func(c *gin.Context) {
		op, reason := g.authenticate(c)
		if op == nil {
			g.Logger.Warn("admin request rejected", "path", c.Request.URL.Path, "client_ip", c.ClientIP(), "reason", reason)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason})
			return
		}
		if !op.HasScope(g.Scope) {
			g.Logger.Warn("operator lacks admin scope", "path", c.Request.URL.Path, "operator", op.ID, "scope", g.Scope)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient scope"})
			return
		}
		c.Request = c.Request.WithContext(WithOperator(c.Request.Context(), op))
		c.Next()
	}
}

func (g Guard) authenticate(c *gin.Context) (*Operator, string) {
	if g.Bypass {
		op := &Operator{ID: "local-operator", Local: true}
		if g.Scope != "" {
			op.Scopes = []string{g.Scope}
		}
		return op, ""
	}
	if g.Verifier == nil {
		return nil, "operator auth not configured"
	}
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		return nil, "missing bearer token"
	}
	op, err := g.Verifier.Operator(token)
	if err != nil {
		g.Logger.Debug("operator token refused", "error", err)
		return nil, "invalid token"
	}
	return op, ""
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
