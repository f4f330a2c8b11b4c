// Package resource manages shared learning materials. File bytes never pass
// through the API: clients upload and download through signed object storage URLs.
package resource

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
)

var (
	ErrNotFound = core.NewError(core.KindNotFound, "resource not found")

	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

type Resource struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	OwnerName   string    `json:"ownerName"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Course      string    `json:"course,omitempty"`
	Level       string    `json:"level,omitempty"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	ObjectKey   string    `json:"-"`
	Downloads   int       `json:"downloads"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Upload is returned on creation: the stored resource and where to PUT its file.
type Upload struct {
	Resource  Resource `json:"resource"`
	UploadURL string   `json:"uploadUrl"`
}

type Download struct {
	URL       string `json:"url"`
	Downloads int    `json:"downloads"`
}

type NewResource struct {
	Title       string `json:"title" validate:"required,notblank,max=200"`
	Description string `json:"description" validate:"omitempty,max=2000"`
	Course      string `json:"course" validate:"omitempty,max=20"`
	Level       string `json:"level" validate:"omitempty,level"`
	FileName    string `json:"fileName" validate:"required,notblank,max=255"`
	ContentType string `json:"contentType" validate:"required,max=100"`
}

func (nr *NewResource) Validate(validate *validator.Validate) error {
	nr.Title = core.CleanString(nr.Title)
	nr.Description = core.CleanString(nr.Description)
	nr.Course = strings.ToUpper(core.CleanString(nr.Course))
	nr.Level = core.CleanString(nr.Level)
	nr.FileName = core.CleanString(nr.FileName)
	nr.ContentType = core.CleanString(nr.ContentType, true /* lower */)
	return validate.Struct(nr)
}

// UpdateResource holds the editable metadata; empty fields are left unchanged.
type UpdateResource struct {
	Title       string `json:"title" validate:"omitempty,max=200"`
	Description string `json:"description" validate:"omitempty,max=2000"`
	Course      string `json:"course" validate:"omitempty,max=20"`
	Level       string `json:"level" validate:"omitempty,level"`
}

func (ur *UpdateResource) Validate(validate *validator.Validate) error {
	ur.Title = core.CleanString(ur.Title)
	ur.Description = core.CleanString(ur.Description)
	ur.Course = strings.ToUpper(core.CleanString(ur.Course))
	ur.Level = core.CleanString(ur.Level)
	return validate.Struct(ur)
}

type QueryFilter struct {
	Search  string   `query:"search"`
	Courses []string `query:"course"`
	Levels  []string `query:"level"`
	OwnerID string   `query:"owner"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Courses = core.CleanStrings(qf.Courses)
	for i, c := range qf.Courses {
		qf.Courses[i] = strings.ToUpper(c)
	}
	qf.Levels = core.CleanStrings(qf.Levels)
	qf.OwnerID = core.CleanString(qf.OwnerID)
}

func (qf QueryFilter) Match(r Resource) bool {
	if len(qf.Courses) > 0 && !core.ContainsString(qf.Courses, r.Course) {
		return false
	}
	if len(qf.Levels) > 0 && !core.ContainsString(qf.Levels, r.Level) {
		return false
	}
	if qf.OwnerID != "" && r.OwnerID != qf.OwnerID {
		return false
	}
	if qf.Search != "" {
		return core.ContainsFold(r.Title, qf.Search) || core.ContainsFold(r.Description, qf.Search)
	}
	return true
}

// objectKey builds the storage key of a resource file.
func objectKey(id, fileName string) string {
	name := unsafeNameChars.ReplaceAllString(path.Base(fileName), "_")
	return fmt.Sprintf("resources/%s/%s", id, name)
}

type (
	// ObjectStore signs direct-to-storage URLs.
	ObjectStore interface {
		SignedUploadURL(ctx context.Context, key, contentType string) (string, error)
		SignedDownloadURL(ctx context.Context, key, fileName string) (string, error)
		Delete(ctx context.Context, key string) error
	}

	Repository interface {
		CreateResource(ctx context.Context, r Resource) (Resource, error)
		GetResource(ctx context.Context, id string) (Resource, error)
		QueryResources(ctx context.Context, filter QueryFilter) ([]Resource, error)
		UpdateResource(ctx context.Context, r Resource) (Resource, error)
		DeleteResource(ctx context.Context, id string) error
		// IncrementDownloads atomically bumps the download counter and returns it.
		IncrementDownloads(ctx context.Context, id string) (int, error)
	}

	AccountGetter interface {
		GetByID(ctx context.Context, id string) (account.Account, error)
	}

	Service interface {
		Create(ctx context.Context, actor account.Actor, nr NewResource) (Upload, error)
		Get(ctx context.Context, id string) (Resource, error)
		Query(ctx context.Context, filter QueryFilter) ([]Resource, error)
		Update(ctx context.Context, actor account.Actor, id string, ur UpdateResource) (Resource, error)
		Delete(ctx context.Context, actor account.Actor, id string) error
		Download(ctx context.Context, actor account.Actor, id string) (Download, error)
	}

	service struct {
		repo     Repository
		store    ObjectStore
		accounts AccountGetter
		validate *validator.Validate
		log      core.Logger
	}
)

func NewService(repo Repository, store ObjectStore, accounts AccountGetter, validate *validator.Validate, logger core.Logger) Service {
	return &service{repo: repo, store: store, accounts: accounts, validate: validate, log: logger}
}

func (svc *service) Create(ctx context.Context, actor account.Actor, nr NewResource) (Upload, error) {
	if actor.IsAnonymous() {
		return Upload{}, account.ErrForbidden
	}
	if err := nr.Validate(svc.validate); err != nil {
		return Upload{}, err
	}
	owner, err := svc.accounts.GetByID(ctx, actor.ID)
	if err != nil {
		return Upload{}, err
	}

	id := uuid.NewString()
	key := objectKey(id, nr.FileName)
	uploadURL, err := svc.store.SignedUploadURL(ctx, key, nr.ContentType)
	if err != nil {
		return Upload{}, core.NewDependencyError("resource.upload_url", err)
	}

	now := core.NowFunc()
	res, err := svc.repo.CreateResource(ctx, Resource{
		ID:          id,
		OwnerID:     owner.ID,
		OwnerName:   owner.Name(),
		Title:       nr.Title,
		Description: nr.Description,
		Course:      nr.Course,
		Level:       nr.Level,
		FileName:    nr.FileName,
		ContentType: nr.ContentType,
		ObjectKey:   key,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Upload{}, err
	}
	return Upload{Resource: res, UploadURL: uploadURL}, nil
}

func (svc *service) Get(ctx context.Context, id string) (Resource, error) {
	return svc.repo.GetResource(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter QueryFilter) ([]Resource, error) {
	filter.Clean()
	return svc.repo.QueryResources(ctx, filter)
}

func (svc *service) Update(ctx context.Context, actor account.Actor, id string, ur UpdateResource) (Resource, error) {
	res, err := svc.repo.GetResource(ctx, id)
	if err != nil {
		return Resource{}, err
	}
	if !actor.CanManage(res.OwnerID) {
		return Resource{}, account.ErrForbidden
	}
	if err = ur.Validate(svc.validate); err != nil {
		return Resource{}, err
	}
	if ur.Title != "" {
		res.Title = ur.Title
	}
	if ur.Description != "" {
		res.Description = ur.Description
	}
	if ur.Course != "" {
		res.Course = ur.Course
	}
	if ur.Level != "" {
		res.Level = ur.Level
	}
	res.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateResource(ctx, res)
}

// Delete removes the resource; removing the stored file is best-effort.
func (svc *service) Delete(ctx context.Context, actor account.Actor, id string) error {
	res, err := svc.repo.GetResource(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanManage(res.OwnerID) {
		return account.ErrForbidden
	}
	if err = svc.repo.DeleteResource(ctx, id); err != nil {
		return err
	}
	if err = svc.store.Delete(ctx, res.ObjectKey); err != nil {
		svc.log.Warn(fmt.Sprintf("deleting object %q: %v", res.ObjectKey, err))
	}
	return nil
}

func (svc *service) Download(ctx context.Context, actor account.Actor, id string) (Download, error) {
	if actor.IsAnonymous() {
		return Download{}, account.ErrForbidden
	}
	res, err := svc.repo.GetResource(ctx, id)
	if err != nil {
		return Download{}, err
	}
	url, err := svc.store.SignedDownloadURL(ctx, res.ObjectKey, res.FileName)
	if err != nil {
		return Download{}, core.NewDependencyError("resource.download_url", err)
	}
	downloads, err := svc.repo.IncrementDownloads(ctx, id)
	if err != nil {
		return Download{}, err
	}
	return Download{URL: url, Downloads: downloads}, nil
}
