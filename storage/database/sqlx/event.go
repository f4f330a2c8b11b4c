package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/event"
)

const eventColumns = `id, title, description, location, starts_at, ends_at, capacity, registered, created_by,
	created_at, updated_at`

type eventRow struct {
	ID          string      `db:"id"`
	Title       string      `db:"title"`
	Description null.String `db:"description"`
	Location    null.String `db:"location"`
	StartsAt    time.Time   `db:"starts_at"`
	EndsAt      null.Time   `db:"ends_at"`
	Capacity    int         `db:"capacity"`
	Registered  int         `db:"registered"`
	CreatedBy   string      `db:"created_by"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

type eventRepository struct {
	db *sqlx.DB
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(db *sqlx.DB) event.Repository {
	return &eventRepository{db: db}
}

func (repo *eventRepository) boil(e event.Event) eventRow {
	return eventRow{
		ID:          e.ID,
		Title:       e.Title,
		Description: nullString(e.Description),
		Location:    nullString(e.Location),
		StartsAt:    e.StartsAt.UTC(),
		EndsAt:      null.TimeFromPtr(e.EndsAt),
		Capacity:    e.Capacity,
		Registered:  e.Registered,
		CreatedBy:   e.CreatedBy,
		CreatedAt:   e.CreatedAt.UTC(),
		UpdatedAt:   e.UpdatedAt.UTC(),
	}
}

func (repo *eventRepository) unboil(row eventRow) event.Event {
	e := event.Event{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description.String,
		Location:    row.Location.String,
		StartsAt:    row.StartsAt.UTC(),
		Capacity:    row.Capacity,
		Registered:  row.Registered,
		CreatedBy:   row.CreatedBy,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	if row.EndsAt.Valid {
		end := row.EndsAt.Time.UTC()
		e.EndsAt = &end
	}
	return e
}

func (repo *eventRepository) get(ctx context.Context, q sqlx.QueryerContext, id string, lock bool) (event.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var row eventRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		return event.Event{}, trapNoRowsErr(err, event.ErrNotFound, "finding event")
	}
	return repo.unboil(row), nil
}

func (repo *eventRepository) CreateEvent(ctx context.Context, e event.Event) (event.Event, error) {
	e.Registered = 0
	q := `INSERT INTO events (` + eventColumns + `) VALUES (:id, :title, :description, :location, :starts_at,
		:ends_at, :capacity, :registered, :created_by, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, repo.boil(e)); err != nil {
		return event.Event{}, errors.Wrap(err, "inserting event")
	}
	return repo.GetEvent(ctx, e.ID)
}

func (repo *eventRepository) GetEvent(ctx context.Context, id string) (event.Event, error) {
	return repo.get(ctx, repo.db, id, false)
}

func (repo *eventRepository) QueryEvents(ctx context.Context, filter event.QueryFilter) ([]event.Event, error) {
	var w where
	if filter.Upcoming {
		w.add("COALESCE(ends_at, starts_at) >= ?", filter.Now())
	}
	if filter.Search != "" {
		val := likePattern(filter.Search)
		w.add("(title ILIKE ? OR description ILIKE ? OR location ILIKE ?)", val, val, val)
	}
	var rows []eventRow
	q := `SELECT ` + eventColumns + ` FROM events` + w.String() + ` ORDER BY starts_at`
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	events := make([]event.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, repo.unboil(row))
	}
	return events, nil
}

func (repo *eventRepository) UpdateEvent(ctx context.Context, e event.Event) (event.Event, error) {
	var updated event.Event
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		orig, err := repo.get(ctx, tx, e.ID, true)
		if err != nil {
			return err
		}
		if e.Capacity > 0 && e.Capacity < orig.Registered {
			return event.ErrEventFull
		}
		q := `UPDATE events SET title = :title, description = :description, location = :location,
			starts_at = :starts_at, ends_at = :ends_at, capacity = :capacity, updated_at = :updated_at
			WHERE id = :id`
		if _, err = tx.NamedExecContext(ctx, q, repo.boil(e)); err != nil {
			return errors.Wrap(err, "updating event")
		}
		updated, err = repo.get(ctx, tx, e.ID, false)
		return err
	})
	return updated, err
}

func (repo *eventRepository) DeleteEvent(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting event")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return event.ErrNotFound
	}
	return nil
}

func (repo *eventRepository) AddRegistration(ctx context.Context, eventID, accountID string) (event.Event, error) {
	var e event.Event
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var err error
		if e, err = repo.get(ctx, tx, eventID, true); err != nil {
			return err
		}
		var exists bool
		q := `SELECT EXISTS(SELECT 1 FROM event_registrations WHERE event_id = $1 AND user_id = $2)`
		if err = tx.GetContext(ctx, &exists, q, eventID, accountID); err != nil {
			return errors.Wrap(err, "checking registration")
		}
		if exists {
			return nil
		}
		if e.Capacity > 0 && e.Registered >= e.Capacity {
			return event.ErrEventFull
		}

		q = `INSERT INTO event_registrations (event_id, user_id, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
		res, err := tx.ExecContext(ctx, q, eventID, accountID, core.NowFunc())
		if err != nil {
			return errors.Wrap(err, "inserting registration")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "inserting registration")
		}
		if n == 0 {
			return nil
		}
		q = `UPDATE events SET registered = registered + 1 WHERE id = $1 RETURNING registered`
		return errors.Wrap(tx.GetContext(ctx, &e.Registered, q, eventID), "counting registration")
	})
	if err != nil {
		return event.Event{}, err
	}
	return e, nil
}

func (repo *eventRepository) RemoveRegistration(ctx context.Context, eventID, accountID string) (event.Event, error) {
	var e event.Event
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var err error
		if e, err = repo.get(ctx, tx, eventID, true); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM event_registrations WHERE event_id = $1 AND user_id = $2`, eventID, accountID)
		if err != nil {
			return errors.Wrap(err, "deleting registration")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "deleting registration")
		}
		if n == 0 {
			return nil
		}
		q := `UPDATE events SET registered = registered - 1 WHERE id = $1 RETURNING registered`
		return errors.Wrap(tx.GetContext(ctx, &e.Registered, q, eventID), "counting registration")
	})
	if err != nil {
		return event.Event{}, err
	}
	return e, nil
}

func (repo *eventRepository) RegisteredEvents(ctx context.Context, accountID string, eventIDs ...string) (map[string]bool, error) {
	var ids []string
	q := `SELECT event_id FROM event_registrations WHERE user_id = $1 AND event_id = ANY($2)`
	if err := repo.db.SelectContext(ctx, &ids, q, accountID, pq.StringArray(eventIDs)); err != nil {
		return nil, errors.Wrap(err, "querying registrations")
	}
	res := make(map[string]bool, len(ids))
	for _, id := range ids {
		res[id] = true
	}
	return res, nil
}
