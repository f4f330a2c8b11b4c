package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/socportal/jumuiya/core/blog"
	"github.com/socportal/jumuiya/core/engagement"
	"github.com/socportal/jumuiya/services/metrics"
)

type blogAPI struct {
	svc        blog.Service
	engagement engagement.Service
	metrics    *metrics.Metrics
}

func registerBlogAPI(e *echo.Echo, svc blog.Service, engagementSvc engagement.Service, m *metrics.Metrics) {
	api := blogAPI{svc: svc, engagement: engagementSvc, metrics: m}

	e.GET("/blogs", api.query)
	e.POST("/blogs", api.create, requireAuth)
	e.GET("/blogs/:id", api.retrieve)
	e.PUT("/blogs/:id", api.update, requireAuth)
	e.DELETE("/blogs/:id", api.destroy, requireAuth)

	e.POST("/blogs/:id/like", api.like, requireAuth)
	e.DELETE("/blogs/:id/like", api.unlike, requireAuth)

	e.GET("/blogs/:id/comments", api.comments)
	e.POST("/blogs/:id/comments", api.comment, requireAuth)
	e.DELETE("/blogs/:id/comments/:commentId", api.destroyComment, requireAuth)

	e.PUT("/admin/blogs/:id/moderation", api.moderate, requireElevated)
}

func (api *blogAPI) query(ctx echo.Context) error {
	var filter blog.QueryFilter
	if err := bind(ctx, &filter, "blog.QueryFilter"); err != nil {
		return err
	}
	posts, err := api.svc.Query(ctx.Request().Context(), actorFrom(ctx), filter, bindOrdering(ctx)...)
	if err != nil {
		return errors.Wrap(err, "querying posts")
	}
	return ctx.JSON(http.StatusOK, posts)
}

func (api *blogAPI) create(ctx echo.Context) error {
	var data blog.NewPost
	if err := bind(ctx, &data, "NewPost"); err != nil {
		return err
	}
	post, err := api.svc.Create(ctx.Request().Context(), actorFrom(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating post")
	}
	return ctx.JSON(http.StatusCreated, post)
}

// retrieve also records the caller's view.
func (api *blogAPI) retrieve(ctx echo.Context) error {
	actor := actorFrom(ctx)
	post, err := api.engagement.ViewPost(ctx.Request().Context(), actor, ctx.Param("id"))
	if !actor.IsAnonymous() {
		api.metrics.RecordEngagement("view", err)
	}
	if err != nil {
		return errors.Wrap(err, "viewing post")
	}
	return ctx.JSON(http.StatusOK, post)
}

func (api *blogAPI) update(ctx echo.Context) error {
	var data blog.UpdatePost
	if err := bind(ctx, &data, "UpdatePost"); err != nil {
		return err
	}
	post, err := api.svc.Update(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating post")
	}
	return ctx.JSON(http.StatusOK, post)
}

func (api *blogAPI) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting post")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *blogAPI) moderate(ctx echo.Context) error {
	var data blog.Moderation
	if err := bind(ctx, &data, "Moderation"); err != nil {
		return err
	}
	post, err := api.svc.Moderate(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "moderating post")
	}
	return ctx.JSON(http.StatusOK, post)
}

func (api *blogAPI) like(ctx echo.Context) error {
	state, err := api.engagement.Like(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id"))
	api.metrics.RecordEngagement("like", err)
	if err != nil {
		return errors.Wrap(err, "liking post")
	}
	return ctx.JSON(http.StatusOK, state)
}

func (api *blogAPI) unlike(ctx echo.Context) error {
	state, err := api.engagement.Unlike(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id"))
	api.metrics.RecordEngagement("unlike", err)
	if err != nil {
		return errors.Wrap(err, "unliking post")
	}
	return ctx.JSON(http.StatusOK, state)
}

func (api *blogAPI) comments(ctx echo.Context) error {
	comments, err := api.svc.Comments(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing comments")
	}
	return ctx.JSON(http.StatusOK, comments)
}

func (api *blogAPI) comment(ctx echo.Context) error {
	var data blog.NewComment
	if err := bind(ctx, &data, "NewComment"); err != nil {
		return err
	}
	comment, err := api.svc.Comment(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "commenting")
	}
	return ctx.JSON(http.StatusCreated, comment)
}

func (api *blogAPI) destroyComment(ctx echo.Context) error {
	err := api.svc.DeleteComment(ctx.Request().Context(), actorFrom(ctx), ctx.Param("id"), ctx.Param("commentId"))
	if err != nil {
		return errors.Wrap(err, "deleting comment")
	}
	return ctx.NoContent(http.StatusNoContent)
}
