package inmemdb

import (
	"context"
	"sort"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/poll"
)

type pollRepository struct {
	db *DB
}

func NewPollRepository(db *DB) poll.Repository {
	return &pollRepository{db: db}
}

func copyPoll(p *poll.Poll) poll.Poll {
	cp := *p
	cp.Options = append([]poll.Option{}, p.Options...)
	cp.TargetLevels = append([]string{}, p.TargetLevels...)
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		cp.ClosedAt = &t
	}
	return cp
}

func (repo *pollRepository) CreatePoll(_ context.Context, p poll.Poll) (poll.Poll, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	cp := copyPoll(&p)
	repo.db.polls[p.ID] = &cp
	return copyPoll(&cp), nil
}

func (repo *pollRepository) GetPoll(_ context.Context, id string) (poll.Poll, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.db.polls[id]; ok {
		return copyPoll(p), nil
	}
	return poll.Poll{}, poll.ErrNotFound
}

func (repo *pollRepository) QueryPolls(_ context.Context, filter poll.QueryFilter) ([]poll.Poll, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	polls := make([]poll.Poll, 0)
	for _, p := range repo.db.polls {
		if filter.Match(*p) {
			polls = append(polls, copyPoll(p))
		}
	}
	sort.SliceStable(polls, func(i, j int) bool { return polls[i].CreatedAt.After(polls[j].CreatedAt) })
	return polls, nil
}

func (repo *pollRepository) ClosePoll(_ context.Context, id string) (poll.Poll, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.polls[id]
	if !ok {
		return poll.Poll{}, poll.ErrNotFound
	}
	if p.IsActive() {
		now := core.NowFunc()
		p.Status = poll.StatusClosed
		p.ClosedAt = &now
	}
	return copyPoll(p), nil
}

func (repo *pollRepository) DeletePoll(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.polls[id]; !ok {
		return poll.ErrNotFound
	}
	delete(repo.db.polls, id)
	for key := range repo.db.votes {
		if key.poll == id {
			delete(repo.db.votes, key)
		}
	}
	return nil
}

func (repo *pollRepository) InsertVote(_ context.Context, v poll.Vote) (poll.Poll, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.polls[v.PollID]
	if !ok {
		return poll.Poll{}, poll.ErrNotFound
	}
	if !p.IsActive() {
		return poll.Poll{}, poll.ErrPollClosed
	}
	key := voteKey{v.PollID, v.AccountID, v.Slot}
	if _, dup := repo.db.votes[key]; dup {
		return poll.Poll{}, poll.ErrDuplicateVote
	}

	optIdx := -1
	for i := range p.Options {
		if p.Options[i].ID == v.OptionID {
			optIdx = i
		}
	}
	if optIdx < 0 {
		return poll.Poll{}, poll.ErrInvalidOption
	}
	repo.db.votes[key] = v
	p.Options[optIdx].Votes++
	p.TotalVotes++
	return copyPoll(p), nil
}

func (repo *pollRepository) VotedOptions(_ context.Context, accountID string, pollIDs ...string) (map[string][]string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res := make(map[string][]string)
	for key, v := range repo.db.votes {
		if key.account == accountID && core.ContainsString(pollIDs, key.poll) {
			res[key.poll] = append(res[key.poll], v.OptionID)
		}
	}
	for _, opts := range res {
		sort.Strings(opts)
	}
	return res, nil
}
