package poll

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/socportal/jumuiya/core"
)

// Poll statuses
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

type Option struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

type Poll struct {
	ID                 string     `json:"id"`
	Question           string     `json:"question"`
	Description        string     `json:"description,omitempty"`
	Options            []Option   `json:"options"`
	TargetLevels       []string   `json:"targetLevels"`
	Status             string     `json:"status"`
	AllowMultipleVotes bool       `json:"allowMultipleVotes"`
	TotalVotes         int        `json:"totalVotes"`
	CreatedBy          string     `json:"createdBy"`
	CreatedAt          time.Time  `json:"createdAt"` // UTC
	ClosedAt           *time.Time `json:"closedAt,omitempty"`

	// option ids the caller voted for; filled per request
	UserVotes []string `json:"userVotes"`
}

func (p Poll) IsActive() bool { return p.Status == StatusActive }

// IsEligible reports whether an account at level may vote.
func (p Poll) IsEligible(level string) bool {
	return len(p.TargetLevels) == 0 || core.ContainsString(p.TargetLevels, level)
}

func (p Poll) HasOption(optionID string) bool {
	for _, opt := range p.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// Vote is one ballot. Slot is the uniqueness discriminator of the
// (poll, account, slot) key: empty for single-vote polls, the option id otherwise.
type Vote struct {
	PollID    string
	AccountID string
	OptionID  string
	Slot      string
	CreatedAt time.Time
}

func NewVote(p Poll, accountID, optionID string) Vote {
	v := Vote{PollID: p.ID, AccountID: accountID, OptionID: optionID, CreatedAt: core.NowFunc()}
	if p.AllowMultipleVotes {
		v.Slot = optionID
	}
	return v
}

type NewPoll struct {
	Question           string   `json:"question" validate:"required,notblank,max=300"`
	Description        string   `json:"description" validate:"omitempty,max=2000"`
	Options            []string `json:"options" validate:"required,min=2,max=10,dive,required,max=200"`
	TargetLevels       []string `json:"targetLevels" validate:"omitempty,unique,dive,level"`
	AllowMultipleVotes bool     `json:"allowMultipleVotes"`
}

var (
	distinctOptionsTag  = "distinctoptions"
	distinctOptionsText = "poll options must be distinct"
)

func (np *NewPoll) Validate(validate *validator.Validate) error {
	np.Question = core.CleanString(np.Question)
	np.Description = core.CleanString(np.Description)
	np.Options = core.CleanStrings(np.Options)
	np.TargetLevels = core.CleanStrings(np.TargetLevels)
	return validate.Struct(np)
}

// pollStructValidation checks that options are distinct, ignoring case.
func pollStructValidation(sl validator.StructLevel) {
	np, ok := sl.Current().Interface().(NewPoll)
	if !ok {
		return
	}
	seen := make(map[string]bool, len(np.Options))
	for _, opt := range np.Options {
		key := strings.ToLower(opt)
		if seen[key] {
			sl.ReportError(np.Options, "options", "Options", distinctOptionsTag, "")
			return
		}
		seen[key] = true
	}
}

type VoteInput struct {
	OptionID string `json:"optionId" validate:"required"`
}

type QueryFilter struct {
	Statuses []string `query:"status"`
	Search   string   `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Statuses = core.CleanStrings(qf.Statuses, true /* lower */)
}

func (qf QueryFilter) Match(p Poll) bool {
	if len(qf.Statuses) > 0 && !core.ContainsString(qf.Statuses, p.Status) {
		return false
	}
	if qf.Search != "" {
		return core.ContainsFold(p.Question, qf.Search) || core.ContainsFold(p.Description, qf.Search)
	}
	return true
}
