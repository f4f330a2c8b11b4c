package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/blog"
	"github.com/socportal/jumuiya/core/engagement"
)

type engagementRepository struct {
	db *sqlx.DB
}

var _ engagement.Repository = (*engagementRepository)(nil) // interface compliance check

func NewEngagementRepository(db *sqlx.DB) engagement.Repository {
	return &engagementRepository{db: db}
}

// toggleFact runs factQ (an insert ... on conflict do nothing, or a delete) and moves the
// post counter by delta only when a row was affected, in one transaction.
func (repo *engagementRepository) toggleFact(ctx context.Context, postID, counter string, delta int, factQ string, factArgs ...interface{}) (int, error) {
	var count int
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		// lock the post row so the fact and counter move together
		if err := tx.GetContext(ctx, &count, `SELECT `+counter+` FROM posts WHERE id = $1 FOR UPDATE`, postID); err != nil {
			return trapNoRowsErr(err, blog.ErrNotFound, "locking post")
		}

		res, err := tx.ExecContext(ctx, factQ, factArgs...)
		if err != nil {
			return errors.Wrap(err, "writing engagement fact")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "writing engagement fact")
		}
		if n == 0 {
			return nil // duplicate or absent fact: nothing to count
		}

		q := `UPDATE posts SET ` + counter + ` = ` + counter + ` + $1 WHERE id = $2 RETURNING ` + counter
		return errors.Wrap(tx.GetContext(ctx, &count, q, delta, postID), "updating post counter")
	})
	return count, err
}

func (repo *engagementRepository) AddLike(ctx context.Context, postID, accountID string) (int, error) {
	q := `INSERT INTO post_likes (post_id, user_id, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	return repo.toggleFact(ctx, postID, "likes", 1, q, postID, accountID, core.NowFunc())
}

func (repo *engagementRepository) RemoveLike(ctx context.Context, postID, accountID string) (int, error) {
	q := `DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`
	return repo.toggleFact(ctx, postID, "likes", -1, q, postID, accountID)
}

func (repo *engagementRepository) AddView(ctx context.Context, postID, accountID string) (int, error) {
	q := `INSERT INTO post_views (post_id, user_id, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	return repo.toggleFact(ctx, postID, "views", 1, q, postID, accountID, core.NowFunc())
}

func (repo *engagementRepository) HasLiked(ctx context.Context, postID, accountID string) (bool, error) {
	var liked bool
	q := `SELECT EXISTS(SELECT 1 FROM post_likes WHERE post_id = $1 AND user_id = $2)`
	if err := repo.db.GetContext(ctx, &liked, q, postID, accountID); err != nil {
		return false, errors.Wrap(err, "checking like")
	}
	return liked, nil
}

// reconcileQueries fix one counter each and return the drifted rows.
var reconcileQueries = []struct {
	target string
	query  string
}{
	{engagement.TargetPostLikes, `
		WITH actual AS (
			SELECT p.id, p.likes AS stored, COUNT(l.user_id)::int AS actual
			FROM posts p LEFT JOIN post_likes l ON l.post_id = p.id GROUP BY p.id
		)
		UPDATE posts SET likes = actual.actual FROM actual
		WHERE posts.id = actual.id AND actual.stored <> actual.actual
		RETURNING posts.id, actual.stored, actual.actual`},
	{engagement.TargetPostViews, `
		WITH actual AS (
			SELECT p.id, p.views AS stored, COUNT(v.user_id)::int AS actual
			FROM posts p LEFT JOIN post_views v ON v.post_id = p.id GROUP BY p.id
		)
		UPDATE posts SET views = actual.actual FROM actual
		WHERE posts.id = actual.id AND actual.stored <> actual.actual
		RETURNING posts.id, actual.stored, actual.actual`},
	{engagement.TargetOptionVotes, `
		WITH actual AS (
			SELECT o.id, o.votes AS stored, COUNT(v.user_id)::int AS actual
			FROM poll_options o LEFT JOIN poll_votes v ON v.option_id = o.id GROUP BY o.id
		)
		UPDATE poll_options SET votes = actual.actual FROM actual
		WHERE poll_options.id = actual.id AND actual.stored <> actual.actual
		RETURNING poll_options.id, actual.stored, actual.actual`},
	{engagement.TargetPollTotalVotes, `
		WITH actual AS (
			SELECT p.id, p.total_votes AS stored, COUNT(v.user_id)::int AS actual
			FROM polls p LEFT JOIN poll_votes v ON v.poll_id = p.id GROUP BY p.id
		)
		UPDATE polls SET total_votes = actual.actual FROM actual
		WHERE polls.id = actual.id AND actual.stored <> actual.actual
		RETURNING polls.id, actual.stored, actual.actual`},
	{engagement.TargetEventRegistered, `
		WITH actual AS (
			SELECT e.id, e.registered AS stored, COUNT(r.user_id)::int AS actual
			FROM events e LEFT JOIN event_registrations r ON r.event_id = e.id GROUP BY e.id
		)
		UPDATE events SET registered = actual.actual FROM actual
		WHERE events.id = actual.id AND actual.stored <> actual.actual
		RETURNING events.id, actual.stored, actual.actual`},
}

func (repo *engagementRepository) Reconcile(ctx context.Context) ([]engagement.Drift, error) {
	var drifts []engagement.Drift
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, rq := range reconcileQueries {
			var rows []struct {
				ID     string `db:"id"`
				Stored int    `db:"stored"`
				Actual int    `db:"actual"`
			}
			if err := tx.SelectContext(ctx, &rows, rq.query); err != nil {
				return errors.Wrapf(err, "reconciling %s", rq.target)
			}
			for _, row := range rows {
				drifts = append(drifts, engagement.Drift{Target: rq.target, ID: row.ID, Stored: row.Stored, Actual: row.Actual})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drifts, nil
}
