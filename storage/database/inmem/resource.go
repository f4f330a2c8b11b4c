package inmemdb

import (
	"context"
	"sort"

	"github.com/socportal/jumuiya/core/resource"
)

type resourceRepository struct {
	db *DB
}

func NewResourceRepository(db *DB) resource.Repository {
	return &resourceRepository{db: db}
}

func (repo *resourceRepository) CreateResource(_ context.Context, r resource.Resource) (resource.Resource, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.resources[r.ID] = &r
	return r, nil
}

func (repo *resourceRepository) GetResource(_ context.Context, id string) (resource.Resource, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.resources[id]; ok {
		return *r, nil
	}
	return resource.Resource{}, resource.ErrNotFound
}

func (repo *resourceRepository) QueryResources(_ context.Context, filter resource.QueryFilter) ([]resource.Resource, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res := make([]resource.Resource, 0)
	for _, r := range repo.db.resources {
		if filter.Match(*r) {
			res = append(res, *r)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (repo *resourceRepository) UpdateResource(_ context.Context, r resource.Resource) (resource.Resource, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.resources[r.ID]
	if !ok {
		return resource.Resource{}, resource.ErrNotFound
	}
	r.Downloads = orig.Downloads
	repo.db.resources[r.ID] = &r
	return r, nil
}

func (repo *resourceRepository) DeleteResource(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.resources[id]; !ok {
		return resource.ErrNotFound
	}
	delete(repo.db.resources, id)
	return nil
}

func (repo *resourceRepository) IncrementDownloads(_ context.Context, id string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r, ok := repo.db.resources[id]
	if !ok {
		return 0, resource.ErrNotFound
	}
	r.Downloads++
	return r.Downloads, nil
}
