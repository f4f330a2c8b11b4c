package inmemdb

import (
	"context"
	"sort"

	"github.com/socportal/jumuiya/core/blog"
	"github.com/socportal/jumuiya/core/engagement"
)

type engagementRepository struct {
	db *DB
}

func NewEngagementRepository(db *DB) engagement.Repository {
	return &engagementRepository{db: db}
}

func (repo *engagementRepository) AddLike(_ context.Context, postID, accountID string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.posts[postID]
	if !ok {
		return 0, blog.ErrNotFound
	}
	key := factKey{postID, accountID}
	if !repo.db.likes[key] {
		repo.db.likes[key] = true
		p.Likes++
	}
	return p.Likes, nil
}

func (repo *engagementRepository) RemoveLike(_ context.Context, postID, accountID string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.posts[postID]
	if !ok {
		return 0, blog.ErrNotFound
	}
	key := factKey{postID, accountID}
	if repo.db.likes[key] {
		delete(repo.db.likes, key)
		p.Likes--
	}
	return p.Likes, nil
}

func (repo *engagementRepository) AddView(_ context.Context, postID, accountID string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.posts[postID]
	if !ok {
		return 0, blog.ErrNotFound
	}
	key := factKey{postID, accountID}
	if !repo.db.views[key] {
		repo.db.views[key] = true
		p.Views++
	}
	return p.Views, nil
}

func (repo *engagementRepository) HasLiked(_ context.Context, postID, accountID string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.likes[factKey{postID, accountID}], nil
}

func (repo *engagementRepository) Reconcile(context.Context) ([]engagement.Drift, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var drifts []engagement.Drift
	check := func(target, id string, stored *int, actual int) {
		if *stored != actual {
			drifts = append(drifts, engagement.Drift{Target: target, ID: id, Stored: *stored, Actual: actual})
			*stored = actual
		}
	}

	likes, views := map[string]int{}, map[string]int{}
	for key := range repo.db.likes {
		likes[key.target]++
	}
	for key := range repo.db.views {
		views[key.target]++
	}
	for id, p := range repo.db.posts {
		check(engagement.TargetPostLikes, id, &p.Likes, likes[id])
		check(engagement.TargetPostViews, id, &p.Views, views[id])
	}

	optVotes, pollVotes := map[string]int{}, map[string]int{}
	for _, v := range repo.db.votes {
		optVotes[v.OptionID]++
		pollVotes[v.PollID]++
	}
	for id, p := range repo.db.polls {
		for i := range p.Options {
			check(engagement.TargetOptionVotes, p.Options[i].ID, &p.Options[i].Votes, optVotes[p.Options[i].ID])
		}
		check(engagement.TargetPollTotalVotes, id, &p.TotalVotes, pollVotes[id])
	}

	regs := map[string]int{}
	for key := range repo.db.registrations {
		regs[key.target]++
	}
	for id, e := range repo.db.events {
		check(engagement.TargetEventRegistered, id, &e.Registered, regs[id])
	}

	sort.Slice(drifts, func(i, j int) bool {
		if drifts[i].Target != drifts[j].Target {
			return drifts[i].Target < drifts[j].Target
		}
		return drifts[i].ID < drifts[j].ID
	})
	return drifts, nil
}
