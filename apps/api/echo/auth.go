package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
	"github.com/socportal/jumuiya/core/session"
)

const (
	sessionCookieName = "session"
	contextClaimsKey  = "claims"
	contextTokenErr   = "tokenErr"
)

// sessionMiddleware attaches the caller's session claims when a valid token is
// sent by cookie or bearer header. Invalid tokens leave the request anonymous;
// requireAuth turns that into an authentication error where a session is needed.
func sessionMiddleware(sessions *session.Issuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			token := tokenFromRequest(ctx)
			if token == "" {
				return next(ctx)
			}
			claims, err := sessions.Verify(ctx.Request().Context(), token)
			switch {
			case err == nil:
				ctx.Set(contextClaimsKey, claims)
			case core.Is(err, core.KindAuthentication):
				ctx.Set(contextTokenErr, err)
			default:
				return errors.Wrap(err, "verifying session")
			}
			return next(ctx)
		}
	}
}

func tokenFromRequest(ctx echo.Context) string {
	if auth := ctx.Request().Header.Get(echo.HeaderAuthorization); auth != "" {
		const prefix = "Bearer "
		if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
			return strings.TrimSpace(auth[len(prefix):])
		}
	}
	if cookie, err := ctx.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func contextClaims(ctx echo.Context) (session.Claims, bool) {
	claims, ok := ctx.Get(contextClaimsKey).(session.Claims)
	return claims, ok
}

// actorFrom returns the caller, anonymous when no valid session was sent.
func actorFrom(ctx echo.Context) account.Actor {
	if claims, ok := contextClaims(ctx); ok {
		return claims.Actor()
	}
	return account.Actor{}
}

func requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if _, ok := contextClaims(ctx); ok {
			return next(ctx)
		}
		if err, ok := ctx.Get(contextTokenErr).(error); ok {
			return err
		}
		return session.ErrMissingToken
	}
}

// requireRoles lets through authenticated callers holding one of roles.
func requireRoles(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return requireAuth(func(ctx echo.Context) error {
			if core.ContainsString(roles, actorFrom(ctx).Role) {
				return next(ctx)
			}
			return account.ErrForbidden
		})
	}
}

var (
	requireElevated   = requireRoles(account.ElevatedRoles...)
	requireSuperAdmin = requireRoles(account.RoleSuperAdmin)
)

func isSecureRequest(ctx echo.Context, mode string) bool {
	switch mode {
	case core.CookieSecureAlways:
		return true
	case core.CookieSecureNever:
		return false
	default:
		return ctx.Scheme() == "https"
	}
}

func sessionCookie(ctx echo.Context, mode, token string, maxAge time.Duration) *http.Cookie {
	secure := isSecureRequest(ctx, mode)
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteStrictMode
	}
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	}
}

func clearSessionCookie(ctx echo.Context, mode string) *http.Cookie {
	cookie := sessionCookie(ctx, mode, "", 0)
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	return cookie
}
