package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/socportal/jumuiya/core/engagement"
	"github.com/socportal/jumuiya/core/stats"
)

type adminAPI struct {
	stats      stats.Service
	engagement engagement.Service
}

func registerAdminAPI(e *echo.Echo, statsSvc stats.Service, engagementSvc engagement.Service) {
	api := adminAPI{stats: statsSvc, engagement: engagementSvc}

	e.GET("/leaderboard", api.leaderboard)
	e.GET("/admin/stats", api.dashboard, requireElevated)
	e.POST("/admin/engagement/reconcile", api.reconcile, requireSuperAdmin)
}

func (api *adminAPI) dashboard(ctx echo.Context) error {
	dash, err := api.stats.Dashboard(ctx.Request().Context(), actorFrom(ctx))
	if err != nil {
		return errors.Wrap(err, "computing dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *adminAPI) leaderboard(ctx echo.Context) error {
	limit, err := intQueryParam(ctx, "limit")
	if err != nil {
		return err
	}
	entries, err := api.stats.Leaderboard(ctx.Request().Context(), limit)
	if err != nil {
		return errors.Wrap(err, "computing leaderboard")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *adminAPI) reconcile(ctx echo.Context) error {
	report, err := api.engagement.Reconcile(ctx.Request().Context(), actorFrom(ctx))
	if err != nil {
		return errors.Wrap(err, "reconciling counters")
	}
	return ctx.JSON(http.StatusOK, report)
}
