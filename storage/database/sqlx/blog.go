package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/blog"
)

const postSelect = `SELECT p.id, p.author_id, a.first_name || ' ' || a.last_name AS author_name, p.title, p.content,
	p.tags, p.cover_url, p.status, p.likes, p.views, p.created_at, p.updated_at
	FROM posts p JOIN accounts a ON a.id = p.author_id`

const commentSelect = `SELECT c.id, c.post_id, c.author_id, a.first_name || ' ' || a.last_name AS author_name,
	c.content, c.created_at
	FROM comments c JOIN accounts a ON a.id = c.author_id`

type postRow struct {
	ID         string         `db:"id"`
	AuthorID   string         `db:"author_id"`
	AuthorName string         `db:"author_name"`
	Title      string         `db:"title"`
	Content    string         `db:"content"`
	Tags       pq.StringArray `db:"tags"`
	CoverURL   null.String    `db:"cover_url"`
	Status     string         `db:"status"`
	Likes      int            `db:"likes"`
	Views      int            `db:"views"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

type commentRow struct {
	ID         string    `db:"id"`
	PostID     string    `db:"post_id"`
	AuthorID   string    `db:"author_id"`
	AuthorName string    `db:"author_name"`
	Content    string    `db:"content"`
	CreatedAt  time.Time `db:"created_at"`
}

type blogRepository struct {
	db *sqlx.DB
}

var _ blog.Repository = (*blogRepository)(nil) // interface compliance check

func NewBlogRepository(db *sqlx.DB) blog.Repository {
	return &blogRepository{db: db}
}

func (repo *blogRepository) boil(p blog.Post) postRow {
	tags := pq.StringArray(p.Tags)
	if tags == nil {
		tags = pq.StringArray{}
	}
	return postRow{
		ID:        p.ID,
		AuthorID:  p.AuthorID,
		Title:     p.Title,
		Content:   p.Content,
		Tags:      tags,
		CoverURL:  nullString(p.CoverURL),
		Status:    p.Status,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}
}

func (repo *blogRepository) unboil(row postRow) blog.Post {
	tags := []string(row.Tags)
	if tags == nil {
		tags = []string{}
	}
	return blog.Post{
		ID:         row.ID,
		AuthorID:   row.AuthorID,
		AuthorName: row.AuthorName,
		Title:      row.Title,
		Content:    row.Content,
		Tags:       tags,
		CoverURL:   row.CoverURL.String,
		Status:     row.Status,
		Likes:      row.Likes,
		Views:      row.Views,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

func (repo *blogRepository) CreatePost(ctx context.Context, post blog.Post) (blog.Post, error) {
	q := `INSERT INTO posts (id, author_id, title, content, tags, cover_url, status, created_at, updated_at)
		VALUES (:id, :author_id, :title, :content, :tags, :cover_url, :status, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, repo.boil(post)); err != nil {
		return blog.Post{}, errors.Wrap(err, "inserting post")
	}
	return repo.GetPost(ctx, post.ID)
}

func (repo *blogRepository) GetPost(ctx context.Context, id string) (blog.Post, error) {
	var row postRow
	if err := repo.db.GetContext(ctx, &row, postSelect+` WHERE p.id = $1`, id); err != nil {
		return blog.Post{}, trapNoRowsErr(err, blog.ErrNotFound, "finding post")
	}
	return repo.unboil(row), nil
}

func (repo *blogRepository) QueryPosts(ctx context.Context, filter blog.QueryFilter, ordering ...core.DBOrdering) ([]blog.Post, error) {
	var w where
	if filter.PublishedOnly {
		w.add("(p.status = ? OR p.author_id = ?)", blog.StatusPublished, filter.OrAuthoredBy)
	}
	if len(filter.Statuses) > 0 {
		w.add("p.status = ANY(?)", pq.StringArray(filter.Statuses))
	}
	if filter.AuthorID != "" {
		w.add("p.author_id = ?", filter.AuthorID)
	}
	if len(filter.Tags) > 0 {
		w.add("p.tags @> ?", pq.StringArray(filter.Tags))
	}
	if filter.Search != "" {
		val := likePattern(filter.Search)
		w.add("(p.title ILIKE ? OR p.content ILIKE ?)", val, val)
	}

	for i := range ordering {
		ordering[i].Field = "p." + ordering[i].Field
	}
	var rows []postRow
	if err := repo.db.SelectContext(ctx, &rows, postSelect+w.String()+orderBy(ordering, "p.created_at DESC"), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying posts")
	}
	posts := make([]blog.Post, 0, len(rows))
	for _, row := range rows {
		posts = append(posts, repo.unboil(row))
	}
	return posts, nil
}

// UpdatePost saves the editable fields; counters are owned by the engagement ledger.
func (repo *blogRepository) UpdatePost(ctx context.Context, post blog.Post) (blog.Post, error) {
	q := `UPDATE posts SET title = :title, content = :content, tags = :tags, cover_url = :cover_url,
		status = :status, updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, repo.boil(post))
	if err != nil {
		return blog.Post{}, errors.Wrap(err, "updating post")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return blog.Post{}, blog.ErrNotFound
	}
	return repo.GetPost(ctx, post.ID)
}

func (repo *blogRepository) DeletePost(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting post")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return blog.ErrNotFound
	}
	return nil
}

func (repo *blogRepository) CreateComment(ctx context.Context, cmt blog.Comment) (blog.Comment, error) {
	q := `INSERT INTO comments (id, post_id, author_id, content, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := repo.db.ExecContext(ctx, q, cmt.ID, cmt.PostID, cmt.AuthorID, cmt.Content, cmt.CreatedAt.UTC()); err != nil {
		return blog.Comment{}, errors.Wrap(err, "inserting comment")
	}
	return cmt, nil
}

func (repo *blogRepository) GetComment(ctx context.Context, postID, id string) (blog.Comment, error) {
	var row commentRow
	if err := repo.db.GetContext(ctx, &row, commentSelect+` WHERE c.post_id = $1 AND c.id = $2`, postID, id); err != nil {
		return blog.Comment{}, trapNoRowsErr(err, blog.ErrCommentNotFound, "finding comment")
	}
	return blog.Comment(row), nil
}

func (repo *blogRepository) QueryComments(ctx context.Context, postID string) ([]blog.Comment, error) {
	var rows []commentRow
	if err := repo.db.SelectContext(ctx, &rows, commentSelect+` WHERE c.post_id = $1 ORDER BY c.created_at`, postID); err != nil {
		return nil, errors.Wrap(err, "querying comments")
	}
	cmts := make([]blog.Comment, 0, len(rows))
	for _, row := range rows {
		cmts = append(cmts, blog.Comment(row))
	}
	return cmts, nil
}

func (repo *blogRepository) DeleteComment(ctx context.Context, postID, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM comments WHERE post_id = $1 AND id = $2`, postID, id)
	if err != nil {
		return errors.Wrap(err, "deleting comment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return blog.ErrCommentNotFound
	}
	return nil
}
