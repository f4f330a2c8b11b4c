package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/socportal/jumuiya/core/resource"
)

const resourceSelect = `SELECT r.id, r.owner_id, a.first_name || ' ' || a.last_name AS owner_name, r.title,
	r.description, r.course, r.level, r.file_name, r.content_type, r.object_key, r.downloads, r.created_at, r.updated_at
	FROM resources r JOIN accounts a ON a.id = r.owner_id`

type resourceRow struct {
	ID          string      `db:"id"`
	OwnerID     string      `db:"owner_id"`
	OwnerName   string      `db:"owner_name"`
	Title       string      `db:"title"`
	Description null.String `db:"description"`
	Course      null.String `db:"course"`
	Level       null.String `db:"level"`
	FileName    string      `db:"file_name"`
	ContentType string      `db:"content_type"`
	ObjectKey   string      `db:"object_key"`
	Downloads   int         `db:"downloads"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

type resourceRepository struct {
	db *sqlx.DB
}

var _ resource.Repository = (*resourceRepository)(nil) // interface compliance check

func NewResourceRepository(db *sqlx.DB) resource.Repository {
	return &resourceRepository{db: db}
}

func (repo *resourceRepository) boil(r resource.Resource) resourceRow {
	return resourceRow{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		Description: nullString(r.Description),
		Course:      nullString(r.Course),
		Level:       nullString(r.Level),
		FileName:    r.FileName,
		ContentType: r.ContentType,
		ObjectKey:   r.ObjectKey,
		Downloads:   r.Downloads,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func (repo *resourceRepository) unboil(row resourceRow) resource.Resource {
	return resource.Resource{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		OwnerName:   row.OwnerName,
		Title:       row.Title,
		Description: row.Description.String,
		Course:      row.Course.String,
		Level:       row.Level.String,
		FileName:    row.FileName,
		ContentType: row.ContentType,
		ObjectKey:   row.ObjectKey,
		Downloads:   row.Downloads,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func (repo *resourceRepository) CreateResource(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	q := `INSERT INTO resources (id, owner_id, title, description, course, level, file_name, content_type,
		object_key, downloads, created_at, updated_at) VALUES (:id, :owner_id, :title, :description, :course, :level,
		:file_name, :content_type, :object_key, 0, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, repo.boil(r)); err != nil {
		return resource.Resource{}, errors.Wrap(err, "inserting resource")
	}
	return repo.GetResource(ctx, r.ID)
}

func (repo *resourceRepository) GetResource(ctx context.Context, id string) (resource.Resource, error) {
	var row resourceRow
	if err := repo.db.GetContext(ctx, &row, resourceSelect+` WHERE r.id = $1`, id); err != nil {
		return resource.Resource{}, trapNoRowsErr(err, resource.ErrNotFound, "finding resource")
	}
	return repo.unboil(row), nil
}

func (repo *resourceRepository) QueryResources(ctx context.Context, filter resource.QueryFilter) ([]resource.Resource, error) {
	var w where
	if len(filter.Courses) > 0 {
		w.add("r.course = ANY(?)", pq.StringArray(filter.Courses))
	}
	if len(filter.Levels) > 0 {
		w.add("r.level = ANY(?)", pq.StringArray(filter.Levels))
	}
	if filter.OwnerID != "" {
		w.add("r.owner_id = ?", filter.OwnerID)
	}
	if filter.Search != "" {
		val := likePattern(filter.Search)
		w.add("(r.title ILIKE ? OR r.description ILIKE ?)", val, val)
	}
	var rows []resourceRow
	if err := repo.db.SelectContext(ctx, &rows, resourceSelect+w.String()+` ORDER BY r.created_at DESC`, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying resources")
	}
	res := make([]resource.Resource, 0, len(rows))
	for _, row := range rows {
		res = append(res, repo.unboil(row))
	}
	return res, nil
}

func (repo *resourceRepository) UpdateResource(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	q := `UPDATE resources SET title = :title, description = :description, course = :course, level = :level,
		updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, repo.boil(r))
	if err != nil {
		return resource.Resource{}, errors.Wrap(err, "updating resource")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return resource.Resource{}, resource.ErrNotFound
	}
	return repo.GetResource(ctx, r.ID)
}

func (repo *resourceRepository) DeleteResource(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting resource")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return resource.ErrNotFound
	}
	return nil
}

func (repo *resourceRepository) IncrementDownloads(ctx context.Context, id string) (int, error) {
	var downloads int
	q := `UPDATE resources SET downloads = downloads + 1 WHERE id = $1 RETURNING downloads`
	if err := repo.db.GetContext(ctx, &downloads, q, id); err != nil {
		return 0, trapNoRowsErr(err, resource.ErrNotFound, "counting download")
	}
	return downloads, nil
}
