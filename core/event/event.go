// Package event manages department events and seat registrations.
package event

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
)

var (
	ErrNotFound  = core.NewError(core.KindNotFound, "event not found")
	ErrEventFull = core.NewError(core.KindEventFull, "this event is full")
	ErrEnded     = core.NewError(core.KindValidation, "this event has already ended")
)

type Event struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Location     string     `json:"location,omitempty"`
	StartsAt     time.Time  `json:"startsAt"`
	EndsAt       *time.Time `json:"endsAt,omitempty"`
	Capacity     int        `json:"capacity"` // 0 = unlimited
	Registered   int        `json:"registered"`
	IsRegistered bool       `json:"isRegistered"`
	CreatedBy    string     `json:"createdBy"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (e Event) hasEnded(now time.Time) bool {
	end := e.StartsAt
	if e.EndsAt != nil {
		end = *e.EndsAt
	}
	return end.Before(now)
}

// EventInput is used to create or replace the editable fields of an Event.
type EventInput struct {
	Title       string     `json:"title" validate:"required,notblank,max=200"`
	Description string     `json:"description" validate:"omitempty,max=5000"`
	Location    string     `json:"location" validate:"omitempty,max=200"`
	StartsAt    time.Time  `json:"startsAt" validate:"required"`
	EndsAt      *time.Time `json:"endsAt" validate:"omitempty,gtfield=StartsAt"`
	Capacity    int        `json:"capacity" validate:"min=0"`
}

func (in *EventInput) Validate(validate *validator.Validate) error {
	in.Title = core.CleanString(in.Title)
	in.Description = core.CleanString(in.Description)
	in.Location = core.CleanString(in.Location)
	return validate.Struct(in)
}

type QueryFilter struct {
	Search   string `query:"search"`
	Upcoming bool   `query:"upcoming"`

	now time.Time
}

func (qf QueryFilter) Now() time.Time { return qf.now }

func (qf QueryFilter) Match(e Event) bool {
	if qf.Upcoming && e.hasEnded(qf.now) {
		return false
	}
	if qf.Search != "" {
		return core.ContainsFold(e.Title, qf.Search) ||
			core.ContainsFold(e.Description, qf.Search) ||
			core.ContainsFold(e.Location, qf.Search)
	}
	return true
}

type (
	Repository interface {
		CreateEvent(ctx context.Context, e Event) (Event, error)
		GetEvent(ctx context.Context, id string) (Event, error)
		QueryEvents(ctx context.Context, filter QueryFilter) ([]Event, error)
		// UpdateEvent fails with ErrEventFull when the capacity drops below the registrations.
		UpdateEvent(ctx context.Context, e Event) (Event, error)
		DeleteEvent(ctx context.Context, id string) error
		// AddRegistration inserts the (event, account) fact if absent and bumps
		// the counter in one atomic unit, failing with ErrEventFull at capacity.
		AddRegistration(ctx context.Context, eventID, accountID string) (Event, error)
		RemoveRegistration(ctx context.Context, eventID, accountID string) (Event, error)
		RegisteredEvents(ctx context.Context, accountID string, eventIDs ...string) (map[string]bool, error)
	}

	Service interface {
		Create(ctx context.Context, actor account.Actor, in EventInput) (Event, error)
		Get(ctx context.Context, actor account.Actor, id string) (Event, error)
		Query(ctx context.Context, actor account.Actor, filter QueryFilter) ([]Event, error)
		Update(ctx context.Context, actor account.Actor, id string, in EventInput) (Event, error)
		Delete(ctx context.Context, actor account.Actor, id string) error
		Register(ctx context.Context, actor account.Actor, id string) (Event, error)
		Unregister(ctx context.Context, actor account.Actor, id string) (Event, error)
	}

	service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) Service {
	return &service{repo: repo, validate: validate}
}

func (svc *service) withRegistration(ctx context.Context, actor account.Actor, events ...Event) error {
	if actor.IsAnonymous() || len(events) == 0 {
		return nil
	}
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	registered, err := svc.repo.RegisteredEvents(ctx, actor.ID, ids...)
	if err != nil {
		return core.NewDependencyError("event.registered", err)
	}
	for i := range events {
		events[i].IsRegistered = registered[events[i].ID]
	}
	return nil
}

func (svc *service) Create(ctx context.Context, actor account.Actor, in EventInput) (Event, error) {
	if !actor.IsElevated() {
		return Event{}, account.ErrForbidden
	}
	if err := in.Validate(svc.validate); err != nil {
		return Event{}, err
	}
	now := core.NowFunc()
	return svc.repo.CreateEvent(ctx, Event{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		StartsAt:    in.StartsAt.UTC(),
		EndsAt:      utcPtr(in.EndsAt),
		Capacity:    in.Capacity,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *service) Get(ctx context.Context, actor account.Actor, id string) (Event, error) {
	e, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}
	events := []Event{e}
	if err = svc.withRegistration(ctx, actor, events...); err != nil {
		return Event{}, err
	}
	return events[0], nil
}

func (svc *service) Query(ctx context.Context, actor account.Actor, filter QueryFilter) ([]Event, error) {
	filter.Search = core.CleanString(filter.Search)
	filter.now = core.NowFunc()
	events, err := svc.repo.QueryEvents(ctx, filter)
	if err != nil {
		return nil, err
	}
	if err = svc.withRegistration(ctx, actor, events...); err != nil {
		return nil, err
	}
	return events, nil
}

func (svc *service) Update(ctx context.Context, actor account.Actor, id string, in EventInput) (Event, error) {
	e, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if !actor.CanManage(e.CreatedBy) {
		return Event{}, account.ErrForbidden
	}
	if err = in.Validate(svc.validate); err != nil {
		return Event{}, err
	}
	e.Title = in.Title
	e.Description = in.Description
	e.Location = in.Location
	e.StartsAt = in.StartsAt.UTC()
	e.EndsAt = utcPtr(in.EndsAt)
	e.Capacity = in.Capacity
	e.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateEvent(ctx, e)
}

func (svc *service) Delete(ctx context.Context, actor account.Actor, id string) error {
	e, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanManage(e.CreatedBy) {
		return account.ErrForbidden
	}
	return svc.repo.DeleteEvent(ctx, id)
}

// Register is idempotent: registering twice keeps one registration.
func (svc *service) Register(ctx context.Context, actor account.Actor, id string) (Event, error) {
	if actor.IsAnonymous() {
		return Event{}, account.ErrForbidden
	}
	e, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if e.hasEnded(core.NowFunc()) {
		return Event{}, ErrEnded
	}
	if e, err = svc.repo.AddRegistration(ctx, id, actor.ID); err != nil {
		return Event{}, err
	}
	e.IsRegistered = true
	return e, nil
}

// Unregister is idempotent.
func (svc *service) Unregister(ctx context.Context, actor account.Actor, id string) (Event, error) {
	if actor.IsAnonymous() {
		return Event{}, account.ErrForbidden
	}
	e, err := svc.repo.RemoveRegistration(ctx, id, actor.ID)
	if err != nil {
		return Event{}, err
	}
	e.IsRegistered = false
	return e, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
