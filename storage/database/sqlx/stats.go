package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/socportal/jumuiya/core/stats"
)

type statsRepository struct {
	db *sqlx.DB
}

var _ stats.Repository = (*statsRepository)(nil) // interface compliance check

func NewStatsRepository(db *sqlx.DB) stats.Repository {
	return &statsRepository{db: db}
}

func (repo *statsRepository) Dashboard(ctx context.Context) (stats.Dashboard, error) {
	var dash stats.Dashboard
	accQ := `SELECT
		COUNT(*) FILTER (WHERE approval_status = 'pending') AS pending,
		COUNT(*) FILTER (WHERE approval_status = 'approved') AS approved,
		COUNT(*) FILTER (WHERE approval_status = 'rejected') AS rejected,
		COUNT(*) AS total
		FROM accounts`
	if err := repo.db.GetContext(ctx, &dash.Accounts, accQ); err != nil {
		return stats.Dashboard{}, errors.Wrap(err, "counting accounts")
	}

	q := `SELECT
		(SELECT COUNT(*) FROM posts) AS posts,
		(SELECT COUNT(*) FROM posts WHERE status = 'pending') AS pending_posts,
		(SELECT COUNT(*) FROM post_likes) AS likes,
		(SELECT COUNT(*) FROM post_views) AS views,
		(SELECT COUNT(*) FROM comments) AS comments,
		(SELECT COUNT(*) FROM polls) AS polls,
		(SELECT COUNT(*) FROM polls WHERE status = 'active') AS active_polls,
		(SELECT COUNT(*) FROM poll_votes) AS votes,
		(SELECT COUNT(*) FROM events) AS events,
		(SELECT COUNT(*) FROM event_registrations) AS registrations,
		(SELECT COUNT(*) FROM resources) AS resources,
		(SELECT COALESCE(SUM(downloads), 0) FROM resources) AS downloads`
	row := repo.db.QueryRowxContext(ctx, q)
	err := row.Scan(&dash.Posts, &dash.PendingPosts, &dash.Likes, &dash.Views, &dash.Comments, &dash.Polls,
		&dash.ActivePolls, &dash.Votes, &dash.Events, &dash.Registrations, &dash.Resources, &dash.Downloads)
	if err != nil {
		return stats.Dashboard{}, errors.Wrap(err, "counting content")
	}
	return dash, nil
}

func (repo *statsRepository) Contributions(ctx context.Context) ([]stats.Contribution, error) {
	q := `SELECT a.id AS account_id, a.first_name || ' ' || a.last_name AS name,
		(SELECT COUNT(*) FROM posts p WHERE p.author_id = a.id AND p.status = 'published') AS published_posts,
		(SELECT COALESCE(SUM(p.likes), 0) FROM posts p WHERE p.author_id = a.id AND p.status = 'published') AS likes_received,
		(SELECT COUNT(*) FROM comments c WHERE c.author_id = a.id) AS comments,
		(SELECT COUNT(*) FROM poll_votes v WHERE v.user_id = a.id) AS votes,
		(SELECT COUNT(*) FROM event_registrations r WHERE r.user_id = a.id) AS registrations,
		(SELECT COUNT(*) FROM resources r WHERE r.owner_id = a.id) AS resources
		FROM accounts a WHERE a.approval_status = 'approved'`
	var contribs []stats.Contribution
	if err := repo.db.SelectContext(ctx, &contribs, q); err != nil {
		return nil, errors.Wrap(err, "counting contributions")
	}
	return contribs, nil
}
