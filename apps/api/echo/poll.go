package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/socportal/jumuiya/core/poll"
	"github.com/socportal/jumuiya/services/metrics"
)

type pollAPI struct {
	svc     poll.Service
	metrics *metrics.Metrics
}

func registerPollAPI(e *echo.Echo, svc poll.Service, m *metrics.Metrics) {
	api := pollAPI{svc: svc, metrics: m}

	e.GET("/polls", api.query)
	e.POST("/polls", api.create, requireElevated)
	e.GET("/polls/:id", api.retrieve)
	e.DELETE("/polls/:id", api.destroy, requireElevated)
	e.POST("/polls/:id/vote", api.vote, requireAuth)
	e.PUT("/polls/:id/close", api.close, requireElevated)
}

func (api *pollAPI) query(ctx echo.Context) error {
	var filter poll.QueryFilter
	if err := bind(ctx, &filter, "poll.QueryFilter"); err != nil {
		return err
	}
	polls, err := api.svc.Query(ctx.Request().Context(), actorFrom(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying polls")
	}
	return ctx.JSON(http.StatusOK, polls)
}

func (api *pollAPI) create(ctx echo.Context) error {
	var data poll.NewPoll
	if err := bind(ctx, &data, "NewPoll"); err != nil {
		return err
	}
	p, err := api.svc.Create(ctx.Request().Context(), actorFrom(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating poll")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *pollAPI) retrieve(ctx echo.Context) error {
	p, err := api.svc.Get(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding poll")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *pollAPI) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting poll")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *pollAPI) vote(ctx echo.Context) error {
	var data poll.VoteInput
	if err := bind(ctx, &data, "VoteInput"); err != nil {
		return err
	}
	p, err := api.svc.Vote(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id"), data.OptionID)
	api.metrics.RecordEngagement("vote", err)
	if err != nil {
		return errors.Wrap(err, "voting")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *pollAPI) close(ctx echo.Context) error {
	p, err := api.svc.Close(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "closing poll")
	}
	return ctx.JSON(http.StatusOK, p)
}
