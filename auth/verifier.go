package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/draiimon/PanicSense-Final-sub000/app/config"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const clockSkew = 30 * time.Second

// Verifier turns operator access tokens into an Operator. Keys come from the
// identity provider's JWKS endpoint.
type Verifier struct {
	keys   keyfunc.Keyfunc
	parser *jwt.Parser
}

// tokenClaims covers both ways the provider grants admin rights: OAuth
// scopes and RBAC permissions.
type tokenClaims struct {
	jwt.RegisteredClaims
	Scope       string   `json:"scope"`
	Permissions []string `json:"permissions"`
}

// NewVerifier needs an issuer and an audience. The JWKS URL defaults to the
// issuer's well-known path.
func NewVerifier(cfg config.AuthConfig) (*Verifier, error) {
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" || strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("AUTH0_ISSUER and AUTH0_AUDIENCE must be set for the admin API")
	}
	if !strings.HasSuffix(issuer, "/") {
		issuer += "/"
	}
	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = issuer + ".well-known/jwks.json"
	}

	keys, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("load operator signing keys from %s: %w", jwksURL, err)
	}
	return &Verifier{
		keys: keys,
		parser: jwt.NewParser(
			jwt.WithIssuer(issuer),
			jwt.WithAudience(strings.TrimSpace(cfg.Audience)),
			jwt.WithLeeway(clockSkew),
			jwt.WithExpirationRequired(),
			jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		),
	}, nil
}

// Operator validates token and returns who sent it with the scopes granted.
func (v *Verifier) Operator(token string) (*Operator, error) {
	var claims tokenClaims
	if _, err := v.parser.ParseWithClaims(token, &claims, v.keys.Keyfunc); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	op := &Operator{ID: claims.Subject}
	if claims.ExpiresAt != nil {
		op.ExpiresAt = claims.ExpiresAt.Time
	}
	for _, s := range append(strings.Fields(claims.Scope), claims.Permissions...) {
		if !op.HasScope(s) {
			op.Scopes = append(op.Scopes, s)
		}
	}
	return op, nil
}

// LocalBypass reports whether admin auth is switched off. The switch is
// ignored inside Lambda so a deployed function always verifies tokens.
func LocalBypass(cfg config.AuthConfig) bool {
	return cfg.Disabled && os.Getenv("AWS_LAMBDA_FUNCTION_NAME") == ""
}
