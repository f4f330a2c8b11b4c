package inmemdb

import (
	"context"
	"sort"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/event"
)

type eventRepository struct {
	db *DB
}

func NewEventRepository(db *DB) event.Repository {
	return &eventRepository{db: db}
}

func (repo *eventRepository) CreateEvent(_ context.Context, e event.Event) (event.Event, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	e.Registered, e.IsRegistered = 0, false
	repo.db.events[e.ID] = &e
	return e, nil
}

func (repo *eventRepository) GetEvent(_ context.Context, id string) (event.Event, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if e, ok := repo.db.events[id]; ok {
		return *e, nil
	}
	return event.Event{}, event.ErrNotFound
}

func (repo *eventRepository) QueryEvents(_ context.Context, filter event.QueryFilter) ([]event.Event, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	events := make([]event.Event, 0)
	for _, e := range repo.db.events {
		if filter.Match(*e) {
			events = append(events, *e)
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].StartsAt.Before(events[j].StartsAt) })
	return events, nil
}

func (repo *eventRepository) UpdateEvent(_ context.Context, e event.Event) (event.Event, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.events[e.ID]
	if !ok {
		return event.Event{}, event.ErrNotFound
	}
	if e.Capacity > 0 && e.Capacity < orig.Registered {
		return event.Event{}, event.ErrEventFull
	}
	e.Registered, e.IsRegistered = orig.Registered, false
	repo.db.events[e.ID] = &e
	return e, nil
}

func (repo *eventRepository) DeleteEvent(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.events[id]; !ok {
		return event.ErrNotFound
	}
	delete(repo.db.events, id)
	for key := range repo.db.registrations {
		if key.target == id {
			delete(repo.db.registrations, key)
		}
	}
	return nil
}

func (repo *eventRepository) AddRegistration(_ context.Context, eventID, accountID string) (event.Event, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	e, ok := repo.db.events[eventID]
	if !ok {
		return event.Event{}, event.ErrNotFound
	}
	key := factKey{eventID, accountID}
	if repo.db.registrations[key] {
		return *e, nil
	}
	if e.Capacity > 0 && e.Registered >= e.Capacity {
		return event.Event{}, event.ErrEventFull
	}
	repo.db.registrations[key] = true
	e.Registered++
	return *e, nil
}

func (repo *eventRepository) RemoveRegistration(_ context.Context, eventID, accountID string) (event.Event, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	e, ok := repo.db.events[eventID]
	if !ok {
		return event.Event{}, event.ErrNotFound
	}
	key := factKey{eventID, accountID}
	if repo.db.registrations[key] {
		delete(repo.db.registrations, key)
		e.Registered--
	}
	return *e, nil
}

func (repo *eventRepository) RegisteredEvents(_ context.Context, accountID string, eventIDs ...string) (map[string]bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res := make(map[string]bool)
	for key := range repo.db.registrations {
		if key.account == accountID && core.ContainsString(eventIDs, key.target) {
			res[key.target] = true
		}
	}
	return res, nil
}
