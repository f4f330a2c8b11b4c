package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/socportal/jumuiya/core/event"
	"github.com/socportal/jumuiya/services/metrics"
)

type eventAPI struct {
	svc     event.Service
	metrics *metrics.Metrics
}

func registerEventAPI(e *echo.Echo, svc event.Service, m *metrics.Metrics) {
	api := eventAPI{svc: svc, metrics: m}

	e.GET("/events", api.query)
	e.POST("/events", api.create, requireElevated)
	e.GET("/events/:id", api.retrieve)
	e.PUT("/events/:id", api.update, requireElevated)
	e.DELETE("/events/:id", api.destroy, requireElevated)
	e.POST("/events/:id/registration", api.register, requireAuth)
	e.DELETE("/events/:id/registration", api.unregister, requireAuth)
}

func (api *eventAPI) query(ctx echo.Context) error {
	var filter event.QueryFilter
	if err := bind(ctx, &filter, "event.QueryFilter"); err != nil {
		return err
	}
	events, err := api.svc.Query(ctx.Request().Context(), actorFrom(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *eventAPI) create(ctx echo.Context) error {
	var data event.EventInput
	if err := bind(ctx, &data, "EventInput"); err != nil {
		return err
	}
	ev, err := api.svc.Create(ctx.Request().Context(), actorFrom(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, ev)
}

func (api *eventAPI) retrieve(ctx echo.Context) error {
	ev, err := api.svc.Get(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding event")
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *eventAPI) update(ctx echo.Context) error {
	var data event.EventInput
	if err := bind(ctx, &data, "EventInput"); err != nil {
		return err
	}
	ev, err := api.svc.Update(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating event")
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *eventAPI) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting event")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *eventAPI) register(ctx echo.Context) error {
	ev, err := api.svc.Register(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id"))
	api.metrics.RecordEngagement("event_registration", err)
	if err != nil {
		return errors.Wrap(err, "registering for event")
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *eventAPI) unregister(ctx echo.Context) error {
	ev, err := api.svc.Unregister(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "unregistering from event")
	}
	return ctx.JSON(http.StatusOK, ev)
}
