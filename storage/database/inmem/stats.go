package inmemdb

import (
	"context"

	"github.com/socportal/jumuiya/core/account"
	"github.com/socportal/jumuiya/core/blog"
	"github.com/socportal/jumuiya/core/poll"
	"github.com/socportal/jumuiya/core/stats"
)

type statsRepository struct {
	db *DB
}

func NewStatsRepository(db *DB) stats.Repository {
	return &statsRepository{db: db}
}

func (repo *statsRepository) Dashboard(context.Context) (stats.Dashboard, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var dash stats.Dashboard
	for _, acc := range repo.db.accounts {
		switch acc.ApprovalStatus {
		case account.StatusPending:
			dash.Accounts.Pending++
		case account.StatusApproved:
			dash.Accounts.Approved++
		case account.StatusRejected:
			dash.Accounts.Rejected++
		}
		dash.Accounts.Total++
	}
	for _, p := range repo.db.posts {
		dash.Posts++
		if p.Status == blog.StatusPending {
			dash.PendingPosts++
		}
	}
	dash.Likes = len(repo.db.likes)
	dash.Views = len(repo.db.views)
	dash.Comments = len(repo.db.comments)
	for _, p := range repo.db.polls {
		dash.Polls++
		if p.Status == poll.StatusActive {
			dash.ActivePolls++
		}
	}
	dash.Votes = len(repo.db.votes)
	dash.Events = len(repo.db.events)
	dash.Registrations = len(repo.db.registrations)
	for _, r := range repo.db.resources {
		dash.Resources++
		dash.Downloads += r.Downloads
	}
	return dash, nil
}

func (repo *statsRepository) Contributions(context.Context) ([]stats.Contribution, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	byID := make(map[string]*stats.Contribution)
	for _, acc := range repo.db.accounts {
		if acc.IsApproved() {
			byID[acc.ID] = &stats.Contribution{AccountID: acc.ID, Name: acc.Name()}
		}
	}
	get := func(id string) *stats.Contribution {
		if c, ok := byID[id]; ok {
			return c
		}
		return &stats.Contribution{} // discarded
	}

	for _, p := range repo.db.posts {
		if p.IsPublished() {
			c := get(p.AuthorID)
			c.PublishedPosts++
			c.LikesReceived += p.Likes
		}
	}
	for _, cmt := range repo.db.comments {
		get(cmt.AuthorID).Comments++
	}
	for key := range repo.db.votes {
		get(key.account).Votes++
	}
	for key := range repo.db.registrations {
		get(key.account).Registrations++
	}
	for _, r := range repo.db.resources {
		get(r.OwnerID).Resources++
	}

	res := make([]stats.Contribution, 0, len(byID))
	for _, c := range byID {
		res = append(res, *c)
	}
	return res, nil
}
