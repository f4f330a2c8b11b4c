package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/socportal/jumuiya/core/resource"
)

type resourceAPI struct {
	svc resource.Service
}

func registerResourceAPI(e *echo.Echo, svc resource.Service) {
	api := resourceAPI{svc: svc}

	g := e.Group("/resources", requireAuth)
	g.GET("", api.query)
	g.POST("", api.create)
	g.GET("/:id", api.retrieve)
	g.PUT("/:id", api.update)
	g.DELETE("/:id", api.destroy)
	g.GET("/:id/download", api.download)
}

func (api *resourceAPI) query(ctx echo.Context) error {
	var filter resource.QueryFilter
	if err := bind(ctx, &filter, "resource.QueryFilter"); err != nil {
		return err
	}
	res, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying resources")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *resourceAPI) create(ctx echo.Context) error {
	var data resource.NewResource
	if err := bind(ctx, &data, "NewResource"); err != nil {
		return err
	}
	upload, err := api.svc.Create(ctx.Request().Context(), actorFrom(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating resource")
	}
	return ctx.JSON(http.StatusCreated, upload)
}

func (api *resourceAPI) retrieve(ctx echo.Context) error {
	res, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding resource")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *resourceAPI) update(ctx echo.Context) error {
	var data resource.UpdateResource
	if err := bind(ctx, &data, "UpdateResource"); err != nil {
		return err
	}
	res, err := api.svc.Update(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating resource")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *resourceAPI) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting resource")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *resourceAPI) download(ctx echo.Context) error {
	dl, err := api.svc.Download(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "downloading resource")
	}
	return ctx.JSON(http.StatusOK, dl)
}
