package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/poll"
)

const pollColumns = `id, question, description, target_levels, status, allow_multiple_votes, total_votes,
	created_by, created_at, updated_at, closed_at`

type pollRow struct {
	ID                 string         `db:"id"`
	Question           string         `db:"question"`
	Description        null.String    `db:"description"`
	TargetLevels       pq.StringArray `db:"target_levels"`
	Status             string         `db:"status"`
	AllowMultipleVotes bool           `db:"allow_multiple_votes"`
	TotalVotes         int            `db:"total_votes"`
	CreatedBy          string         `db:"created_by"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
	ClosedAt           null.Time      `db:"closed_at"`
}

type optionRow struct {
	ID       string `db:"id"`
	PollID   string `db:"poll_id"`
	Text     string `db:"text"`
	Position int    `db:"position"`
	Votes    int    `db:"votes"`
}

type pollRepository struct {
	db *sqlx.DB
}

var _ poll.Repository = (*pollRepository)(nil) // interface compliance check

func NewPollRepository(db *sqlx.DB) poll.Repository {
	return &pollRepository{db: db}
}

func (repo *pollRepository) unboil(row pollRow, opts []optionRow) poll.Poll {
	p := poll.Poll{
		ID:                 row.ID,
		Question:           row.Question,
		Description:        row.Description.String,
		Options:            make([]poll.Option, 0, len(opts)),
		TargetLevels:       []string(row.TargetLevels),
		Status:             row.Status,
		AllowMultipleVotes: row.AllowMultipleVotes,
		TotalVotes:         row.TotalVotes,
		CreatedBy:          row.CreatedBy,
		CreatedAt:          row.CreatedAt.UTC(),
		ClosedAt:           row.ClosedAt.Ptr(),
	}
	if p.TargetLevels == nil {
		p.TargetLevels = []string{}
	}
	for _, o := range opts {
		p.Options = append(p.Options, poll.Option{ID: o.ID, Text: o.Text, Votes: o.Votes})
	}
	return p
}

// load fetches the polls selected by tail, with their options.
func (repo *pollRepository) load(ctx context.Context, q sqlx.QueryerContext, tail string, args ...interface{}) ([]poll.Poll, error) {
	var rows []pollRow
	if err := sqlx.SelectContext(ctx, q, &rows, `SELECT `+pollColumns+` FROM polls`+tail, args...); err != nil {
		return nil, errors.Wrap(err, "querying polls")
	}
	if len(rows) == 0 {
		return []poll.Poll{}, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	var opts []optionRow
	optQ := `SELECT id, poll_id, text, position, votes FROM poll_options WHERE poll_id = ANY($1) ORDER BY position`
	if err := sqlx.SelectContext(ctx, q, &opts, optQ, pq.StringArray(ids)); err != nil {
		return nil, errors.Wrap(err, "querying poll options")
	}
	byPoll := make(map[string][]optionRow, len(rows))
	for _, o := range opts {
		byPoll[o.PollID] = append(byPoll[o.PollID], o)
	}

	polls := make([]poll.Poll, 0, len(rows))
	for _, row := range rows {
		polls = append(polls, repo.unboil(row, byPoll[row.ID]))
	}
	return polls, nil
}

func (repo *pollRepository) get(ctx context.Context, q sqlx.QueryerContext, id string) (poll.Poll, error) {
	polls, err := repo.load(ctx, q, ` WHERE id = $1`, id)
	if err != nil {
		return poll.Poll{}, err
	}
	if len(polls) == 0 {
		return poll.Poll{}, poll.ErrNotFound
	}
	return polls[0], nil
}

func (repo *pollRepository) CreatePoll(ctx context.Context, p poll.Poll) (poll.Poll, error) {
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `INSERT INTO polls (` + pollColumns + `) VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $8, NULL)`
		_, err := tx.ExecContext(ctx, q, p.ID, p.Question, nullString(p.Description), append(pq.StringArray{}, p.TargetLevels...),
			p.Status, p.AllowMultipleVotes, p.CreatedBy, p.CreatedAt.UTC())
		if err != nil {
			return errors.Wrap(err, "inserting poll")
		}
		for i, opt := range p.Options {
			q = `INSERT INTO poll_options (id, poll_id, text, position, votes) VALUES ($1, $2, $3, $4, 0)`
			if _, err = tx.ExecContext(ctx, q, opt.ID, p.ID, opt.Text, i); err != nil {
				return errors.Wrap(err, "inserting poll option")
			}
		}
		return nil
	})
	if err != nil {
		return poll.Poll{}, err
	}
	return repo.GetPoll(ctx, p.ID)
}

func (repo *pollRepository) GetPoll(ctx context.Context, id string) (poll.Poll, error) {
	return repo.get(ctx, repo.db, id)
}

func (repo *pollRepository) QueryPolls(ctx context.Context, filter poll.QueryFilter) ([]poll.Poll, error) {
	var w where
	if len(filter.Statuses) > 0 {
		w.add("status = ANY(?)", pq.StringArray(filter.Statuses))
	}
	if filter.Search != "" {
		val := likePattern(filter.Search)
		w.add("(question ILIKE ? OR description ILIKE ?)", val, val)
	}
	return repo.load(ctx, repo.db, w.String()+` ORDER BY created_at DESC`, w.args...)
}

func (repo *pollRepository) ClosePoll(ctx context.Context, id string) (poll.Poll, error) {
	q := `UPDATE polls SET status = $1, closed_at = $2, updated_at = $2 WHERE id = $3 AND status = $4`
	if _, err := repo.db.ExecContext(ctx, q, poll.StatusClosed, core.NowFunc(), id, poll.StatusActive); err != nil {
		return poll.Poll{}, errors.Wrap(err, "closing poll")
	}
	return repo.GetPoll(ctx, id)
}

func (repo *pollRepository) DeletePoll(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM polls WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting poll")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return poll.ErrNotFound
	}
	return nil
}

func (repo *pollRepository) InsertVote(ctx context.Context, v poll.Vote) (poll.Poll, error) {
	var p poll.Poll
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var status string
		if err := tx.GetContext(ctx, &status, `SELECT status FROM polls WHERE id = $1 FOR UPDATE`, v.PollID); err != nil {
			return trapNoRowsErr(err, poll.ErrNotFound, "locking poll")
		}
		if status != poll.StatusActive {
			return poll.ErrPollClosed
		}

		q := `INSERT INTO poll_votes (poll_id, option_id, user_id, slot, created_at)
			SELECT $1, o.id, $3, $4, $5 FROM poll_options o WHERE o.id = $2 AND o.poll_id = $1
			ON CONFLICT DO NOTHING`
		res, err := tx.ExecContext(ctx, q, v.PollID, v.OptionID, v.AccountID, v.Slot, v.CreatedAt.UTC())
		if err != nil {
			return errors.Wrap(err, "inserting vote")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "inserting vote")
		}
		if n == 0 {
			// either the option vanished or the (poll, user, slot) key exists
			var optExists bool
			q = `SELECT EXISTS(SELECT 1 FROM poll_options WHERE id = $1 AND poll_id = $2)`
			if err = tx.GetContext(ctx, &optExists, q, v.OptionID, v.PollID); err != nil {
				return errors.Wrap(err, "checking poll option")
			}
			if !optExists {
				return poll.ErrInvalidOption
			}
			return poll.ErrDuplicateVote
		}

		if _, err = tx.ExecContext(ctx, `UPDATE poll_options SET votes = votes + 1 WHERE id = $1`, v.OptionID); err != nil {
			return errors.Wrap(err, "counting option vote")
		}
		if _, err = tx.ExecContext(ctx, `UPDATE polls SET total_votes = total_votes + 1 WHERE id = $1`, v.PollID); err != nil {
			return errors.Wrap(err, "counting poll vote")
		}
		p, err = repo.get(ctx, tx, v.PollID)
		return err
	})
	if err != nil {
		return poll.Poll{}, err
	}
	return p, nil
}

func (repo *pollRepository) VotedOptions(ctx context.Context, accountID string, pollIDs ...string) (map[string][]string, error) {
	var rows []struct {
		PollID   string `db:"poll_id"`
		OptionID string `db:"option_id"`
	}
	q := `SELECT poll_id, option_id FROM poll_votes WHERE user_id = $1 AND poll_id = ANY($2) ORDER BY option_id`
	if err := repo.db.SelectContext(ctx, &rows, q, accountID, pq.StringArray(pollIDs)); err != nil {
		return nil, errors.Wrap(err, "querying votes")
	}
	res := make(map[string][]string)
	for _, row := range rows {
		res[row.PollID] = append(res[row.PollID], row.OptionID)
	}
	return res, nil
}
