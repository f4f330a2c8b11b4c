package blog

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/socportal/jumuiya/core"
)

// Post statuses
const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusRejected  = "rejected"
)

var AllStatuses = []string{StatusPending, StatusPublished, StatusRejected}

type Post struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"authorId"`
	AuthorName    string    `json:"authorName"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Tags          []string  `json:"tags"`
	CoverURL      string    `json:"coverUrl,omitempty"`
	Status        string    `json:"status"`
	Likes         int       `json:"likes"`
	Views         int       `json:"views"`
	IsLikedByUser bool      `json:"isLikedByUser"`
	CreatedAt     time.Time `json:"createdAt"` // UTC
	UpdatedAt     time.Time `json:"updatedAt"` // UTC
}

func (p Post) IsPublished() bool { return p.Status == StatusPublished }

type Comment struct {
	ID         string    `json:"id"`
	PostID     string    `json:"postId"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"` // UTC
}

type NewPost struct {
	Title    string   `json:"title" validate:"required,notblank,max=200"`
	Content  string   `json:"content" validate:"required,notblank"`
	Tags     []string `json:"tags" validate:"max=10,unique,dive,max=30"`
	CoverURL string   `json:"coverUrl" validate:"omitempty,url"`
}

func (np *NewPost) Validate(validate *validator.Validate) error {
	np.Title = core.CleanString(np.Title)
	np.Content = core.CleanString(np.Content)
	np.Tags = core.CleanStrings(np.Tags, true /* lower */)
	np.CoverURL = core.CleanString(np.CoverURL)
	return validate.Struct(np)
}

// UpdatePost holds the editable fields of a Post; empty fields are left unchanged.
type UpdatePost struct {
	Title    string   `json:"title" validate:"omitempty,max=200"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags" validate:"omitempty,max=10,unique,dive,max=30"`
	CoverURL string   `json:"coverUrl" validate:"omitempty,url"`
}

func (up *UpdatePost) Validate(validate *validator.Validate) error {
	up.Title = core.CleanString(up.Title)
	up.Content = core.CleanString(up.Content)
	up.Tags = core.CleanStrings(up.Tags, true /* lower */)
	up.CoverURL = core.CleanString(up.CoverURL)
	return validate.Struct(up)
}

type NewComment struct {
	Content string `json:"content" validate:"required,notblank,max=2000"`
}

func (nc *NewComment) Validate(validate *validator.Validate) error {
	nc.Content = core.CleanString(nc.Content)
	return validate.Struct(nc)
}

type Moderation struct {
	Status string `json:"status" validate:"required,oneof=published rejected pending"`
}

type QueryFilter struct {
	Search   string   `query:"search"`
	Tags     []string `query:"tag"`
	Statuses []string `query:"status"`
	AuthorID string   `query:"author"`

	// set by the service from the caller's identity
	PublishedOnly bool   `query:"-"`
	OrAuthoredBy  string `query:"-"` // with PublishedOnly, also lets this author see their own posts
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Tags = core.CleanStrings(qf.Tags, true /* lower */)
	qf.Statuses = core.CleanStrings(qf.Statuses, true /* lower */)
	qf.AuthorID = core.CleanString(qf.AuthorID)
}

// Match reports whether p satisfies the filter (used by in-memory repositories).
func (qf QueryFilter) Match(p Post) bool {
	if qf.PublishedOnly && !p.IsPublished() && (qf.OrAuthoredBy == "" || p.AuthorID != qf.OrAuthoredBy) {
		return false
	}
	if len(qf.Statuses) > 0 && !core.ContainsString(qf.Statuses, p.Status) {
		return false
	}
	if qf.AuthorID != "" && p.AuthorID != qf.AuthorID {
		return false
	}
	for _, tag := range qf.Tags {
		if !core.ContainsString(p.Tags, tag) {
			return false
		}
	}
	if qf.Search != "" {
		return core.ContainsFold(p.Title, qf.Search) || core.ContainsFold(p.Content, qf.Search)
	}
	return true
}

var OrderingFields = map[string]string{
	"createdat": "created_at",
	"likes":     "likes",
	"views":     "views",
	"title":     "title",
}
