package router

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"anarchy.ttfm/sbtcpay/chain"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	PrincipalKey = "principal"
	Leeway       = 30 * time.Second
)

var ErrMissingToken = errors.New("missing bearer token")

// Authenticator turns HS256 bearer tokens into the principal signing the call
type Authenticator struct {
	Secret []byte
}

// Issue signs a token whose subject is principal
func (a *Authenticator) Issue(principal chain.Principal, ttl time.Duration) (token string, err error) {
	err = principal.Validate()
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   principal.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}

// Verify returns the principal of a signed token
func (a *Authenticator) Verify(raw string) (principal chain.Principal, err error) {
	parsed, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		return a.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(Leeway), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", errors.New("invalid token claims")
	}

	principal = chain.Principal(claims.Subject)
	err = principal.Validate()
	if err != nil {
		return "", fmt.Errorf("invalid subject: %w", err)
	}
	return principal, nil
}

// Middleware rejects requests without a valid token and stores the principal in the context
func (a *Authenticator) Middleware(ctx *gin.Context) {
	raw, found := strings.CutPrefix(ctx.GetHeader("Authorization"), "Bearer ")
	if !found || raw == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, Error{Error: ErrMissingToken.Error()})
		return
	}

	principal, err := a.Verify(raw)
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, Error{Error: err.Error()})
		return
	}

	ctx.Set(PrincipalKey, principal)
	ctx.Next()
}

func sender(ctx *gin.Context) (principal chain.Principal) {
	return ctx.MustGet(PrincipalKey).(chain.Principal)
}
