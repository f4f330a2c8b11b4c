// Package engagement keeps the one-per-account like and view facts on blog posts
// and the counters derived from them.
//
// Repositories write a fact and its counter in one atomic unit and rely on a
// storage-enforced unique key to absorb duplicates: the counter only moves when
// a fact was actually inserted or deleted. Anonymous views are never counted.
package engagement

import (
	"context"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
	"github.com/socportal/jumuiya/core/blog"
)

// Drift targets
const (
	TargetPostLikes       = "post.likes"
	TargetPostViews       = "post.views"
	TargetOptionVotes     = "poll_option.votes"
	TargetPollTotalVotes  = "poll.total_votes"
	TargetEventRegistered = "event.registered"
)

type (
	// LikeState is returned by like toggles.
	LikeState struct {
		LikesCount    int  `json:"likesCount"`
		IsLikedByUser bool `json:"isLikedByUser"`
	}

	// Drift is a stored counter that disagreed with its facts.
	Drift struct {
		Target string `json:"target"`
		ID     string `json:"id"`
		Stored int    `json:"stored"`
		Actual int    `json:"actual"`
	}

	Report struct {
		Drifts   []Drift `json:"drifts"`
		Repaired int     `json:"repaired"`
	}

	Repository interface {
		// AddLike inserts the (post, account) like fact if absent and returns the post's likes.
		AddLike(ctx context.Context, postID, accountID string) (int, error)
		// RemoveLike deletes the (post, account) like fact if present and returns the post's likes.
		RemoveLike(ctx context.Context, postID, accountID string) (int, error)
		// AddView inserts the (post, account) view fact if absent and returns the post's views.
		AddView(ctx context.Context, postID, accountID string) (int, error)
		HasLiked(ctx context.Context, postID, accountID string) (bool, error)
		// Reconcile recomputes every derived counter from its facts, fixes the
		// drifted ones and returns what it found.
		Reconcile(ctx context.Context) ([]Drift, error)
	}

	Service interface {
		Like(ctx context.Context, actor account.Actor, postID string) (LikeState, error)
		Unlike(ctx context.Context, actor account.Actor, postID string) (LikeState, error)
		// ViewPost returns a visible post, recording actor's view and like state.
		ViewPost(ctx context.Context, actor account.Actor, postID string) (blog.Post, error)
		Reconcile(ctx context.Context, actor account.Actor) (Report, error)
	}

	service struct {
		repo  Repository
		blogs blog.Service
	}
)

func NewService(repo Repository, blogs blog.Service) Service {
	return &service{repo: repo, blogs: blogs}
}

func (svc *service) likeablePost(ctx context.Context, actor account.Actor, postID string) error {
	if actor.IsAnonymous() {
		return account.ErrForbidden
	}
	post, err := svc.blogs.Get(ctx, actor, postID)
	if err != nil {
		return err
	}
	if !post.IsPublished() {
		return blog.ErrNotPublished
	}
	return nil
}

func (svc *service) Like(ctx context.Context, actor account.Actor, postID string) (LikeState, error) {
	if err := svc.likeablePost(ctx, actor, postID); err != nil {
		return LikeState{}, err
	}
	likes, err := svc.repo.AddLike(ctx, postID, actor.ID)
	if err != nil {
		return LikeState{}, core.NewDependencyError("engagement.like", err)
	}
	return LikeState{LikesCount: likes, IsLikedByUser: true}, nil
}

func (svc *service) Unlike(ctx context.Context, actor account.Actor, postID string) (LikeState, error) {
	if err := svc.likeablePost(ctx, actor, postID); err != nil {
		return LikeState{}, err
	}
	likes, err := svc.repo.RemoveLike(ctx, postID, actor.ID)
	if err != nil {
		return LikeState{}, core.NewDependencyError("engagement.unlike", err)
	}
	return LikeState{LikesCount: likes, IsLikedByUser: false}, nil
}

func (svc *service) ViewPost(ctx context.Context, actor account.Actor, postID string) (blog.Post, error) {
	post, err := svc.blogs.Get(ctx, actor, postID)
	if err != nil {
		return blog.Post{}, err
	}
	if actor.IsAnonymous() || !post.IsPublished() {
		return post, nil
	}

	if post.Views, err = svc.repo.AddView(ctx, postID, actor.ID); err != nil {
		return blog.Post{}, core.NewDependencyError("engagement.view", err)
	}
	if post.IsLikedByUser, err = svc.repo.HasLiked(ctx, postID, actor.ID); err != nil {
		return blog.Post{}, core.NewDependencyError("engagement.liked", err)
	}
	return post, nil
}

func (svc *service) Reconcile(ctx context.Context, actor account.Actor) (Report, error) {
	if !actor.IsSuperAdmin() {
		return Report{}, account.ErrForbidden
	}
	drifts, err := svc.repo.Reconcile(ctx)
	if err != nil {
		return Report{}, core.NewDependencyError("engagement.reconcile", err)
	}
	if drifts == nil {
		drifts = []Drift{}
	}
	return Report{Drifts: drifts, Repaired: len(drifts)}, nil
}
