package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/draiimon/PanicSense-Final-sub000/app/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "https://panicsense.auth0.com/"
	testAudience = "https://api.panicsense"
	testKID      = "ops-key"
	adminScope   = "admin:pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestVerifier(t *testing.T) (*Verifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}

	jwks := newJWKS(key, testKID)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(server.Close)

	verifier, err := NewVerifier(config.AuthConfig{Issuer: testIssuer, Audience: testAudience, JWKSURL: server.URL})
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}
	return verifier, key
}

func operatorToken(t *testing.T, key *rsa.PrivateKey, extra jwt.MapClaims) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": testIssuer,
		"aud": testAudience,
		"sub": "auth0|ops-oncall",
		"exp": now.Add(10 * time.Minute).Unix(),
		"iat": now.Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKID
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func newJWKS(key *rsa.PrivateKey, kid string) map[string][]jwk {
	return map[string][]jwk{"keys": {{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}}}
}

// adminRouter echoes the admitted operator's ID.
func adminRouter(g Guard) *gin.Engine {
	router := gin.New()
	router.Use(RequireOperator(g))
	router.POST("/api/admin/cancel-all", func(c *gin.Context) {
		op, ok := OperatorFrom(c.Request.Context())
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, op.ID)
	})
	return router
}

func callAdmin(router http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/cancel-all", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestRequireOperatorRejectsMissingOrMalformedToken(t *testing.T) {
	verifier, _ := newTestVerifier(t)
	router := adminRouter(Guard{Verifier: verifier, Scope: adminScope})

	for _, header := range []string{"", "Token abc", "Bearer", "Bearer    "} {
		if resp := callAdmin(router, header); resp.Code != http.StatusUnauthorized {
			t.Fatalf("Authorization %q: expected 401, got %d", header, resp.Code)
		}
	}
}

func TestRequireOperatorRejectsForeignKey(t *testing.T) {
	verifier, _ := newTestVerifier(t)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}
	router := adminRouter(Guard{Verifier: verifier, Scope: adminScope})

	resp := callAdmin(router, "Bearer "+operatorToken(t, otherKey, jwt.MapClaims{"scope": adminScope}))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestRequireOperatorRejectsExpiredAndWrongAudience(t *testing.T) {
	verifier, key := newTestVerifier(t)
	router := adminRouter(Guard{Verifier: verifier, Scope: adminScope})

	expired := operatorToken(t, key, jwt.MapClaims{"scope": adminScope, "exp": time.Now().Add(-time.Hour).Unix()})
	if resp := callAdmin(router, "Bearer "+expired); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: expected 401, got %d", resp.Code)
	}
	otherAPI := operatorToken(t, key, jwt.MapClaims{"scope": adminScope, "aud": "https://api.elsewhere"})
	if resp := callAdmin(router, "Bearer "+otherAPI); resp.Code != http.StatusUnauthorized {
		t.Fatalf("foreign audience: expected 401, got %d", resp.Code)
	}
}

func TestRequireOperatorAdmitsScopedToken(t *testing.T) {
	verifier, key := newTestVerifier(t)
	router := adminRouter(Guard{Verifier: verifier, Scope: adminScope})

	resp := callAdmin(router, "Bearer "+operatorToken(t, key, jwt.MapClaims{"scope": "read:sessions " + adminScope}))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Body.String() != "auth0|ops-oncall" {
		t.Fatalf("operator = %q", resp.Body.String())
	}
}

func TestRequireOperatorAcceptsPermissionsClaim(t *testing.T) {
	verifier, key := newTestVerifier(t)
	router := adminRouter(Guard{Verifier: verifier, Scope: adminScope})

	resp := callAdmin(router, "Bearer "+operatorToken(t, key, jwt.MapClaims{"permissions": []string{adminScope}}))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestRequireOperatorForbidsMissingScope(t *testing.T) {
	verifier, key := newTestVerifier(t)
	router := adminRouter(Guard{Verifier: verifier, Scope: adminScope})

	resp := callAdmin(router, "Bearer "+operatorToken(t, key, jwt.MapClaims{"scope": "read:sessions"}))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestRequireOperatorWithoutVerifier(t *testing.T) {
	resp := callAdmin(adminRouter(Guard{Scope: adminScope}), "Bearer abc")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestRequireOperatorBypassAdmitsLocalOperator(t *testing.T) {
	resp := callAdmin(adminRouter(Guard{Scope: adminScope, Bypass: true}), "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Body.String() != "local-operator" {
		t.Fatalf("operator = %q", resp.Body.String())
	}
}

func TestBearerToken(t *testing.T) {
	if token, ok := bearerToken("bearer abc"); !ok || token != "abc" {
		t.Fatalf("expected token, got %q %v", token, ok)
	}
	for _, header := range []string{"", "Bearer", "Bearer  ", "Basic abc"} {
		if _, ok := bearerToken(header); ok {
			t.Fatalf("%q should not yield a token", header)
		}
	}
}

func TestOperatorContext(t *testing.T) {
	if _, ok := OperatorFrom(context.Background()); ok {
		t.Fatalf("empty context should carry no operator")
	}
	ctx := WithOperator(context.Background(), &Operator{ID: "ops-1", Scopes: []string{adminScope}})
	op, ok := OperatorFrom(ctx)
	if !ok || op.ID != "ops-1" {
		t.Fatalf("expected operator from context")
	}
	if !op.HasScope(adminScope) || op.HasScope("billing:write") || !op.HasScope("") {
		t.Fatalf("unexpected scope check result for %v", op.Scopes)
	}
}

func TestNewVerifierRequiresIssuerAndAudience(t *testing.T) {
	if _, err := NewVerifier(config.AuthConfig{Issuer: testIssuer}); err == nil {
		t.Fatalf("expected error without audience")
	}
	if _, err := NewVerifier(config.AuthConfig{Audience: testAudience}); err == nil {
		t.Fatalf("expected error without issuer")
	}
}

func TestLocalBypassIgnoredInLambda(t *testing.T) {
	cfg := config.AuthConfig{Disabled: true}

	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	if !LocalBypass(cfg) {
		t.Fatalf("expected bypass outside Lambda")
	}
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "panicsense-api")
	if LocalBypass(cfg) {
		t.Fatalf("bypass must not apply inside Lambda")
	}
	if LocalBypass(config.AuthConfig{}) {
		t.Fatalf("bypass must be opt-in")
	}
}
