package poll

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
)

var (
	ErrNotFound      = core.NewError(core.KindNotFound, "poll not found")
	ErrPollClosed    = core.NewError(core.KindPollClosed, "this poll is closed")
	ErrNotEligible   = core.NewError(core.KindEligibility, "your level is not eligible to vote on this poll")
	ErrInvalidOption = core.NewError(core.KindInvalidOption, "the selected option does not belong to this poll")
	ErrDuplicateVote = core.NewError(core.KindDuplicateVote, "you have already voted on this poll")
)

type (
	Repository interface {
		CreatePoll(ctx context.Context, p Poll) (Poll, error)
		GetPoll(ctx context.Context, id string) (Poll, error)
		QueryPolls(ctx context.Context, filter QueryFilter) ([]Poll, error)
		// ClosePoll sets the poll closed; closing a closed poll is a no-op.
		ClosePoll(ctx context.Context, id string) (Poll, error)
		DeletePoll(ctx context.Context, id string) error
		// InsertVote stores v, the option votes and the poll total in one atomic unit.
		// A (poll, account, slot) conflict is ErrDuplicateVote; a poll closed in the
		// meantime is ErrPollClosed.
		InsertVote(ctx context.Context, v Vote) (Poll, error)
		// VotedOptions returns the option ids accountID voted for in each of pollIDs.
		VotedOptions(ctx context.Context, accountID string, pollIDs ...string) (map[string][]string, error)
	}

	AccountGetter interface {
		GetByID(ctx context.Context, id string) (account.Account, error)
	}

	Service interface {
		Create(ctx context.Context, actor account.Actor, np NewPoll) (Poll, error)
		Get(ctx context.Context, actor account.Actor, id string) (Poll, error)
		Query(ctx context.Context, actor account.Actor, filter QueryFilter) ([]Poll, error)
		Vote(ctx context.Context, actor account.Actor, pollID, optionID string) (Poll, error)
		Close(ctx context.Context, actor account.Actor, id string) (Poll, error)
		Delete(ctx context.Context, actor account.Actor, id string) error
	}

	service struct {
		repo     Repository
		accounts AccountGetter
		validate *validator.Validate
	}
)

func NewService(repo Repository, accounts AccountGetter, validate *validator.Validate) Service {
	return &service{repo: repo, accounts: accounts, validate: validate}
}

func (svc *service) Create(ctx context.Context, actor account.Actor, np NewPoll) (Poll, error) {
	if !actor.IsElevated() {
		return Poll{}, account.ErrForbidden
	}
	if err := np.Validate(svc.validate); err != nil {
		return Poll{}, err
	}

	p := Poll{
		ID:                 uuid.NewString(),
		Question:           np.Question,
		Description:        np.Description,
		Options:            make([]Option, 0, len(np.Options)),
		TargetLevels:       np.TargetLevels,
		Status:             StatusActive,
		AllowMultipleVotes: np.AllowMultipleVotes,
		CreatedBy:          actor.ID,
		CreatedAt:          core.NowFunc(),
	}
	if p.TargetLevels == nil {
		p.TargetLevels = []string{}
	}
	for _, text := range np.Options {
		p.Options = append(p.Options, Option{ID: uuid.NewString(), Text: text})
	}
	p, err := svc.repo.CreatePoll(ctx, p)
	if err != nil {
		return Poll{}, err
	}
	p.UserVotes = []string{}
	return p, nil
}

func (svc *service) withUserVotes(ctx context.Context, actor account.Actor, polls ...Poll) error {
	if len(polls) == 0 {
		return nil
	}
	votes := map[string][]string{}
	if !actor.IsAnonymous() {
		ids := make([]string, len(polls))
		for i, p := range polls {
			ids[i] = p.ID
		}
		var err error
		if votes, err = svc.repo.VotedOptions(ctx, actor.ID, ids...); err != nil {
			return core.NewDependencyError("poll.voted_options", err)
		}
	}
	for i := range polls {
		polls[i].UserVotes = votes[polls[i].ID]
		if polls[i].UserVotes == nil {
			polls[i].UserVotes = []string{}
		}
	}
	return nil
}

func (svc *service) Get(ctx context.Context, actor account.Actor, id string) (Poll, error) {
	p, err := svc.repo.GetPoll(ctx, id)
	if err != nil {
		return Poll{}, err
	}
	polls := []Poll{p}
	if err = svc.withUserVotes(ctx, actor, polls...); err != nil {
		return Poll{}, err
	}
	return polls[0], nil
}

func (svc *service) Query(ctx context.Context, actor account.Actor, filter QueryFilter) ([]Poll, error) {
	filter.Clean()
	polls, err := svc.repo.QueryPolls(ctx, filter)
	if err != nil {
		return nil, err
	}
	if err = svc.withUserVotes(ctx, actor, polls...); err != nil {
		return nil, err
	}
	return polls, nil
}

// Vote checks, in order: the poll is active, the voter's level is targeted,
// the option belongs to the poll, and the vote is not a duplicate.
func (svc *service) Vote(ctx context.Context, actor account.Actor, pollID, optionID string) (Poll, error) {
	if actor.IsAnonymous() {
		return Poll{}, account.ErrForbidden
	}
	if err := svc.validate.Struct(VoteInput{OptionID: optionID}); err != nil {
		return Poll{}, err
	}

	p, err := svc.repo.GetPoll(ctx, pollID)
	if err != nil {
		return Poll{}, err
	}
	if !p.IsActive() {
		return Poll{}, ErrPollClosed
	}
	voter, err := svc.accounts.GetByID(ctx, actor.ID)
	if err != nil {
		return Poll{}, err
	}
	if !p.IsEligible(voter.Level) {
		return Poll{}, ErrNotEligible
	}
	if !p.HasOption(optionID) {
		return Poll{}, ErrInvalidOption
	}

	if p, err = svc.repo.InsertVote(ctx, NewVote(p, voter.ID, optionID)); err != nil {
		return Poll{}, err
	}
	polls := []Poll{p}
	if err = svc.withUserVotes(ctx, actor, polls...); err != nil {
		return Poll{}, err
	}
	return polls[0], nil
}

func (svc *service) Close(ctx context.Context, actor account.Actor, id string) (Poll, error) {
	if !actor.IsElevated() {
		return Poll{}, account.ErrForbidden
	}
	p, err := svc.repo.ClosePoll(ctx, id)
	if err != nil {
		return Poll{}, err
	}
	polls := []Poll{p}
	if err = svc.withUserVotes(ctx, actor, polls...); err != nil {
		return Poll{}, err
	}
	return polls[0], nil
}

func (svc *service) Delete(ctx context.Context, actor account.Actor, id string) error {
	if !actor.IsElevated() {
		return account.ErrForbidden
	}
	return svc.repo.DeletePoll(ctx, id)
}
