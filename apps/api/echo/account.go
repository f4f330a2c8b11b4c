package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
	"github.com/socportal/jumuiya/core/session"
	"github.com/socportal/jumuiya/services/metrics"
)

type (
	LoginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	LoginResponse struct {
		Account account.Account `json:"account"`
		Token   string          `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email"`
	}

	ApprovalRequest struct {
		Status string `json:"status"`
	}

	RoleRequest struct {
		Role string `json:"role"`
	}
)

type accountAPI struct {
	svc      account.Service
	sessions *session.Issuer
	metrics  *metrics.Metrics
	conf     *core.Config
	logger   core.Logger
}

func registerAccountAPI(
	e *echo.Echo,
	svc account.Service,
	sessions *session.Issuer,
	m *metrics.Metrics,
	conf *core.Config,
	logger core.Logger,
) {
	api := accountAPI{svc: svc, sessions: sessions, metrics: m, conf: conf, logger: logger}

	// un-authed endpoints
	e.POST("/register", api.register)
	e.POST("/login", api.login)
	e.POST("/logout", api.logout)
	e.POST("/forgot-password", api.forgotPassword)
	e.POST("/reset-password", api.resetPassword)

	// authed endpoints
	e.GET("/user", api.current, requireAuth)
	e.PUT("/profile", api.updateProfile, requireAuth)

	ag := e.Group("/admin/users", requireElevated)
	ag.GET("", api.query)
	ag.PUT("/:id/approval", api.setApproval)
	ag.PUT("/:id/role", api.setRole, requireSuperAdmin)
}

// Handlers

func (api *accountAPI) register(ctx echo.Context) error {
	var data account.NewAccount
	if err := bind(ctx, &data, "NewAccount"); err != nil {
		return err
	}
	acc, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering account")
	}
	api.metrics.Registrations.Inc()
	return ctx.JSON(http.StatusCreated, acc)
}

func (api *accountAPI) login(ctx echo.Context) error {
	var data LoginRequest
	if err := bind(ctx, &data, "LoginRequest"); err != nil {
		return err
	}

	acc, err := api.svc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	api.metrics.RecordLogin(err)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}

	token, _, err := api.sessions.Issue(acc)
	if err != nil {
		return errors.Wrap(err, "issuing session")
	}
	ctx.SetCookie(sessionCookie(ctx, api.conf.Server.CookieSecure, token, api.sessions.TTL()))
	return ctx.JSON(http.StatusOK, LoginResponse{Account: acc, Token: token})
}

// logout clears the cookie and, when the caller still holds a valid session, revokes it.
func (api *accountAPI) logout(ctx echo.Context) error {
	if claims, ok := contextClaims(ctx); ok {
		if err := api.sessions.Revoke(ctx.Request().Context(), claims); err != nil {
			api.logger.Error(fmt.Sprintf("revoking session: %v", err), err)
		}
	}
	ctx.SetCookie(clearSessionCookie(ctx, api.conf.Server.CookieSecure))
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "You have been logged out."})
}

func (api *accountAPI) current(ctx echo.Context) error {
	acc, err := api.svc.GetByID(ctx.Request().Context(), actorFrom(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "finding current account")
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *accountAPI) updateProfile(ctx echo.Context) error {
	var data account.UpdateProfile
	if err := bind(ctx, &data, "UpdateProfile"); err != nil {
		return err
	}
	acc, err := api.svc.UpdateProfile(ctx.Request().Context(), actorFrom(ctx).ID, data)
	if err != nil {
		return errors.Wrap(err, "updating profile")
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *accountAPI) forgotPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := bind(ctx, &data, "PasswordResetRequest"); err != nil {
		return err
	}
	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil {
		// do not tell callers whether the lookup failed
		api.logger.Error(fmt.Sprintf("requesting password reset: %v", err), err)
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *accountAPI) resetPassword(ctx echo.Context) error {
	var data account.ResetPassword
	if err := bind(ctx, &data, "ResetPassword"); err != nil {
		return err
	}
	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Your password has been reset."})
}

func (api *accountAPI) query(ctx echo.Context) error {
	var filter account.QueryFilter
	if err := bind(ctx, &filter, "account.QueryFilter"); err != nil {
		return err
	}
	accs, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx)...)
	if err != nil {
		return errors.Wrap(err, "querying accounts")
	}
	return ctx.JSON(http.StatusOK, accs)
}

func (api *accountAPI) setApproval(ctx echo.Context) error {
	var data ApprovalRequest
	if err := bind(ctx, &data, "ApprovalRequest"); err != nil {
		return err
	}
	acc, err := api.svc.SetApproval(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "setting approval")
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *accountAPI) setRole(ctx echo.Context) error {
	var data RoleRequest
	if err := bind(ctx, &data, "RoleRequest"); err != nil {
		return err
	}
	acc, err := api.svc.SetRole(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id"), data.Role)
	if err != nil {
		return errors.Wrap(err, "setting role")
	}
	return ctx.JSON(http.StatusOK, acc)
}
