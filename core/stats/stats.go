// Package stats computes the admin dashboard and the contribution leaderboard.
package stats

import (
	"context"
	"sort"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
)

// Leaderboard points per contribution
const (
	PointsPerPost          = 10
	PointsPerLikeReceived  = 2
	PointsPerComment       = 1
	PointsPerVote          = 3
	PointsPerRegistration  = 2
	PointsPerResource      = 5
	DefaultLeaderboardSize = 10
	MaxLeaderboardSize     = 100
)

type (
	AccountCounts struct {
		Pending  int `json:"pending" db:"pending"`
		Approved int `json:"approved" db:"approved"`
		Rejected int `json:"rejected" db:"rejected"`
		Total    int `json:"total" db:"total"`
	}

	Dashboard struct {
		Accounts      AccountCounts `json:"accounts"`
		Posts         int           `json:"posts" db:"posts"`
		PendingPosts  int           `json:"pendingPosts" db:"pending_posts"`
		Likes         int           `json:"likes" db:"likes"`
		Views         int           `json:"views" db:"views"`
		Comments      int           `json:"comments" db:"comments"`
		Polls         int           `json:"polls" db:"polls"`
		ActivePolls   int           `json:"activePolls" db:"active_polls"`
		Votes         int           `json:"votes" db:"votes"`
		Events        int           `json:"events" db:"events"`
		Registrations int           `json:"registrations" db:"registrations"`
		Resources     int           `json:"resources" db:"resources"`
		Downloads     int           `json:"downloads" db:"downloads"`
	}

	// Contribution counts what one approved account has done.
	Contribution struct {
		AccountID      string `json:"accountId" db:"account_id"`
		Name           string `json:"name" db:"name"`
		PublishedPosts int    `json:"publishedPosts" db:"published_posts"`
		LikesReceived  int    `json:"likesReceived" db:"likes_received"`
		Comments       int    `json:"comments" db:"comments"`
		Votes          int    `json:"votes" db:"votes"`
		Registrations  int    `json:"registrations" db:"registrations"`
		Resources      int    `json:"resources" db:"resources"`
	}

	LeaderboardEntry struct {
		Rank int `json:"rank"`
		Contribution
		Points int `json:"points"`
	}

	Repository interface {
		Dashboard(ctx context.Context) (Dashboard, error)
		Contributions(ctx context.Context) ([]Contribution, error)
	}

	Service interface {
		Dashboard(ctx context.Context, actor account.Actor) (Dashboard, error)
		Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
	}

	service struct {
		repo Repository
	}
)

func (c Contribution) Points() int {
	return c.PublishedPosts*PointsPerPost +
		c.LikesReceived*PointsPerLikeReceived +
		c.Comments*PointsPerComment +
		c.Votes*PointsPerVote +
		c.Registrations*PointsPerRegistration +
		c.Resources*PointsPerResource
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Dashboard(ctx context.Context, actor account.Actor) (Dashboard, error) {
	if !actor.IsElevated() {
		return Dashboard{}, account.ErrForbidden
	}
	dash, err := svc.repo.Dashboard(ctx)
	if err != nil {
		return Dashboard{}, core.NewDependencyError("stats.dashboard", err)
	}
	return dash, nil
}

// Leaderboard ranks accounts by points; ties share a rank and are ordered by name.
// Accounts without points are left out.
func (svc *service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	} else if limit > MaxLeaderboardSize {
		limit = MaxLeaderboardSize
	}

	contribs, err := svc.repo.Contributions(ctx)
	if err != nil {
		return nil, core.NewDependencyError("stats.contributions", err)
	}

	entries := make([]LeaderboardEntry, 0, len(contribs))
	for _, c := range contribs {
		if pts := c.Points(); pts > 0 {
			entries = append(entries, LeaderboardEntry{Contribution: c, Points: pts})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
		if i > 0 && entries[i].Points == entries[i-1].Points {
			entries[i].Rank = entries[i-1].Rank
		}
	}
	return entries, nil
}
