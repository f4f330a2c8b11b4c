// Package session issues and verifies the signed, self-contained tokens that
// carry an account's identity and role between requests.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
)

const tokenType = "session"

var (
	ErrInvalidToken = core.NewError(core.KindAuthentication, "invalid or expired session")
	ErrMissingToken = core.NewError(core.KindAuthentication, "authentication required")
)

type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
	Type  string `json:"typ"`
}

// Actor returns the caller identity carried by the claims.
func (c Claims) Actor() account.Actor {
	return account.Actor{ID: c.Subject, Role: c.Role}
}

// Revoker records tokens invalidated before their expiry (logout).
type Revoker interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// NopRevoker keeps sessions fully stateless: nothing is ever revoked.
type NopRevoker struct{}

func (NopRevoker) Revoke(context.Context, string, time.Time) error  { return nil }
func (NopRevoker) IsRevoked(context.Context, string) (bool, error) { return false, nil }

type Issuer struct {
	secret  []byte
	ttl     time.Duration
	issuer  string
	revoker Revoker
	nowFunc func() time.Time
}

func NewIssuer(conf *core.Config, revoker Revoker) *Issuer {
	if revoker == nil {
		revoker = NopRevoker{}
	}
	return &Issuer{
		secret:  []byte(conf.SecretKey),
		ttl:     conf.Server.JWTExpirationDelta,
		issuer:  conf.AppName,
		revoker: revoker,
		nowFunc: core.NowFunc,
	}
}

// TTL is the validity window of issued tokens.
func (iss *Issuer) TTL() time.Duration { return iss.ttl }

// Issue mints a token for acc.
func (iss *Issuer) Issue(acc account.Account) (string, Claims, error) {
	now := iss.nowFunc()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   acc.ID,
			Issuer:    iss.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(iss.ttl)),
		},
		Email: acc.Email,
		Role:  acc.Role,
		Type:  tokenType,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(iss.secret)
	if err != nil {
		return "", Claims{}, err
	}
	return token, claims, nil
}

// Verify checks the signature, expiry, type and revocation state of token.
// Every failure is reported as ErrInvalidToken, except revocation store failures.
func (iss *Issuer) Verify(ctx context.Context, token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrMissingToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return iss.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(iss.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(iss.nowFunc),
	)
	if err != nil || claims.Type != tokenType || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}

	revoked, err := iss.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Claims{}, core.NewDependencyError("session.revocation", err)
	}
	if revoked {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// Revoke invalidates the token identified by claims until its natural expiry.
func (iss *Issuer) Revoke(ctx context.Context, claims Claims) error {
	if claims.ID == "" || claims.ExpiresAt == nil {
		return errors.New("session: claims carry no id")
	}
	return iss.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}
