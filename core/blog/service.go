package blog

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
)

var (
	ErrNotFound        = core.NewError(core.KindNotFound, "blog post not found")
	ErrCommentNotFound = core.NewError(core.KindNotFound, "comment not found")
	ErrNotPublished    = core.NewError(core.KindValidation, "this post is not published")
)

type (
	Repository interface {
		CreatePost(ctx context.Context, post Post) (Post, error)
		GetPost(ctx context.Context, id string) (Post, error)
		QueryPosts(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Post, error)
		UpdatePost(ctx context.Context, post Post) (Post, error)
		// DeletePost removes the post with its likes, views and comments.
		DeletePost(ctx context.Context, id string) error

		CreateComment(ctx context.Context, cmt Comment) (Comment, error)
		GetComment(ctx context.Context, postID, id string) (Comment, error)
		QueryComments(ctx context.Context, postID string) ([]Comment, error)
		DeleteComment(ctx context.Context, postID, id string) error
	}

	// AccountGetter resolves author names.
	AccountGetter interface {
		GetByID(ctx context.Context, id string) (account.Account, error)
	}

	Service interface {
		Create(ctx context.Context, actor account.Actor, np NewPost) (Post, error)
		// Get returns the post if actor may see it: published, authored by actor, or actor is elevated.
		Get(ctx context.Context, actor account.Actor, id string) (Post, error)
		Query(ctx context.Context, actor account.Actor, filter QueryFilter, ordering ...core.DBOrdering) ([]Post, error)
		Update(ctx context.Context, actor account.Actor, id string, up UpdatePost) (Post, error)
		Delete(ctx context.Context, actor account.Actor, id string) error
		Moderate(ctx context.Context, actor account.Actor, id, status string) (Post, error)

		Comment(ctx context.Context, actor account.Actor, postID string, nc NewComment) (Comment, error)
		Comments(ctx context.Context, actor account.Actor, postID string) ([]Comment, error)
		DeleteComment(ctx context.Context, actor account.Actor, postID, id string) error
	}

	service struct {
		repo     Repository
		accounts AccountGetter
		validate *validator.Validate
	}
)

func NewService(repo Repository, accounts AccountGetter, validate *validator.Validate) Service {
	return &service{repo: repo, accounts: accounts, validate: validate}
}

func canSee(actor account.Actor, post Post) bool {
	return post.IsPublished() || actor.CanManage(post.AuthorID)
}

func (svc *service) authorName(ctx context.Context, id string) (string, error) {
	acc, err := svc.accounts.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return acc.Name(), nil
}

func (svc *service) Create(ctx context.Context, actor account.Actor, np NewPost) (Post, error) {
	if actor.IsAnonymous() {
		return Post{}, account.ErrForbidden
	}
	if err := np.Validate(svc.validate); err != nil {
		return Post{}, err
	}
	name, err := svc.authorName(ctx, actor.ID)
	if err != nil {
		return Post{}, err
	}

	status := StatusPending
	if actor.IsElevated() {
		status = StatusPublished
	}
	now := core.NowFunc()
	return svc.repo.CreatePost(ctx, Post{
		ID:         uuid.NewString(),
		AuthorID:   actor.ID,
		AuthorName: name,
		Title:      np.Title,
		Content:    np.Content,
		Tags:       np.Tags,
		CoverURL:   np.CoverURL,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func (svc *service) Get(ctx context.Context, actor account.Actor, id string) (Post, error) {
	post, err := svc.repo.GetPost(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if !canSee(actor, post) {
		return Post{}, ErrNotFound
	}
	return post, nil
}

func (svc *service) Query(ctx context.Context, actor account.Actor, filter QueryFilter, ordering ...core.DBOrdering) ([]Post, error) {
	filter.Clean()
	filter.PublishedOnly = !actor.IsElevated()
	filter.OrAuthoredBy = actor.ID
	return svc.repo.QueryPosts(ctx, filter, core.FilterOrderings(ordering, OrderingFields)...)
}

func (svc *service) Update(ctx context.Context, actor account.Actor, id string, up UpdatePost) (Post, error) {
	post, err := svc.Get(ctx, actor, id)
	if err != nil {
		return Post{}, err
	}
	if !actor.CanManage(post.AuthorID) {
		return Post{}, account.ErrForbidden
	}
	if err = up.Validate(svc.validate); err != nil {
		return Post{}, err
	}

	if up.Title != "" {
		post.Title = up.Title
	}
	if up.Content != "" {
		post.Content = up.Content
	}
	if up.Tags != nil {
		post.Tags = up.Tags
	}
	if up.CoverURL != "" {
		post.CoverURL = up.CoverURL
	}
	// a rejected post edited by its author goes back to moderation
	if post.Status == StatusRejected && !actor.IsElevated() {
		post.Status = StatusPending
	}
	post.UpdatedAt = core.NowFunc()
	return svc.repo.UpdatePost(ctx, post)
}

func (svc *service) Delete(ctx context.Context, actor account.Actor, id string) error {
	post, err := svc.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if !actor.CanManage(post.AuthorID) {
		return account.ErrForbidden
	}
	return svc.repo.DeletePost(ctx, id)
}

func (svc *service) Moderate(ctx context.Context, actor account.Actor, id, status string) (Post, error) {
	if !actor.IsElevated() {
		return Post{}, account.ErrForbidden
	}
	mod := Moderation{Status: core.CleanString(status, true /* lower */)}
	if err := svc.validate.Struct(mod); err != nil {
		return Post{}, err
	}
	post, err := svc.repo.GetPost(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if post.Status == mod.Status {
		return post, nil
	}
	post.Status = mod.Status
	post.UpdatedAt = core.NowFunc()
	return svc.repo.UpdatePost(ctx, post)
}

func (svc *service) Comment(ctx context.Context, actor account.Actor, postID string, nc NewComment) (Comment, error) {
	if actor.IsAnonymous() {
		return Comment{}, account.ErrForbidden
	}
	post, err := svc.Get(ctx, actor, postID)
	if err != nil {
		return Comment{}, err
	}
	if !post.IsPublished() {
		return Comment{}, ErrNotPublished
	}
	if err = nc.Validate(svc.validate); err != nil {
		return Comment{}, err
	}
	name, err := svc.authorName(ctx, actor.ID)
	if err != nil {
		return Comment{}, err
	}
	return svc.repo.CreateComment(ctx, Comment{
		ID:         uuid.NewString(),
		PostID:     post.ID,
		AuthorID:   actor.ID,
		AuthorName: name,
		Content:    nc.Content,
		CreatedAt:  core.NowFunc(),
	})
}

func (svc *service) Comments(ctx context.Context, actor account.Actor, postID string) ([]Comment, error) {
	if _, err := svc.Get(ctx, actor, postID); err != nil {
		return nil, err
	}
	return svc.repo.QueryComments(ctx, postID)
}

func (svc *service) DeleteComment(ctx context.Context, actor account.Actor, postID, id string) error {
	cmt, err := svc.repo.GetComment(ctx, postID, id)
	if err != nil {
		return err
	}
	if !actor.CanManage(cmt.AuthorID) {
		return account.ErrForbidden
	}
	return svc.repo.DeleteComment(ctx, postID, id)
}
