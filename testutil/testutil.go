// Package testutil builds fully wired services for tests, over the in-memory
// repositories unless told otherwise.
package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
	"github.com/socportal/jumuiya/core/blog"
	"github.com/socportal/jumuiya/core/engagement"
	"github.com/socportal/jumuiya/core/event"
	"github.com/socportal/jumuiya/core/poll"
	"github.com/socportal/jumuiya/core/resource"
	"github.com/socportal/jumuiya/core/session"
	"github.com/socportal/jumuiya/core/stats"
	emailsvc "github.com/socportal/jumuiya/services/email"
	"github.com/socportal/jumuiya/services/objectstore"
	inmemdb "github.com/socportal/jumuiya/storage/database/inmem"
)

// Password satisfies the password policy for every account created by tests.
const Password = "Quiet-Harbour-42"

func NewValidator(conf *core.Config) (*validator.Validate, ut.Translator) {
	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	account.RegisterValidators(validate, translator, conf.DepartmentMarker)
	poll.RegisterValidators(validate, translator)
	return validate, translator
}

type Env struct {
	Conf       *core.Config
	DB         *inmemdb.DB
	Mail       *emailsvc.Mock
	Store      *objectstore.MemoryStore
	Validate   *validator.Validate
	Translator ut.Translator
	Sessions   *session.Issuer

	Accounts   account.Service
	Blogs      blog.Service
	Engagement engagement.Service
	Polls      poll.Service
	Events     event.Service
	Resources  resource.Service
	Stats      stats.Service
}

// Repositories is the storage a test Env runs on.
type Repositories struct {
	Accounts   account.Repository
	Blogs      blog.Repository
	Engagement engagement.Repository
	Polls      poll.Repository
	Events     event.Repository
	Resources  resource.Repository
	Stats      stats.Repository
}

func MemoryRepositories(db *inmemdb.DB) Repositories {
	return Repositories{
		Accounts:   inmemdb.NewAccountRepository(db),
		Blogs:      inmemdb.NewBlogRepository(db),
		Engagement: inmemdb.NewEngagementRepository(db),
		Polls:      inmemdb.NewPollRepository(db),
		Events:     inmemdb.NewEventRepository(db),
		Resources:  inmemdb.NewResourceRepository(db),
		Stats:      inmemdb.NewStatsRepository(db),
	}
}

// NewEnv returns services sharing one in-memory database.
// revoker may be nil.
func NewEnv(t *testing.T, revoker session.Revoker) *Env {
	t.Helper()
	db := inmemdb.Open()
	env := NewEnvWith(t, revoker, MemoryRepositories(db))
	env.DB = db
	return env
}

// NewEnvWith wires the services over repos.
func NewEnvWith(t *testing.T, revoker session.Revoker, repos Repositories) *Env {
	t.Helper()

	conf := core.NewTestConfig()
	mail := emailsvc.NewMock(conf)
	store := objectstore.NewMemoryStore("http://files.test", conf.Storage.SignedURLExpiry)
	validate, translator := NewValidator(conf)

	accounts := account.NewService(conf, repos.Accounts, mail, validate)
	blogs := blog.NewService(repos.Blogs, accounts, validate)

	return &Env{
		Conf:       conf,
		Mail:       mail,
		Store:      store,
		Validate:   validate,
		Translator: translator,
		Sessions:   session.NewIssuer(conf, revoker),
		Accounts:   accounts,
		Blogs:      blogs,
		Engagement: engagement.NewService(repos.Engagement, blogs),
		Polls:      poll.NewService(repos.Polls, accounts, validate),
		Events:     event.NewService(repos.Events, validate),
		Resources:  resource.NewService(repos.Resources, store, accounts, validate, core.NopLogger{}),
		Stats:      stats.NewService(repos.Stats),
	}
}

// CreateAccount creates an approved account with the given role.
// Students get level 100 unless a level is given.
func (env *Env) CreateAccount(t *testing.T, email, first, last, role string, level ...string) account.Account {
	t.Helper()
	na := account.NewAccount{
		Email:           email,
		Password:        Password,
		PasswordConfirm: Password,
		FirstName:       first,
		LastName:        last,
	}
	if role == account.RoleStudent {
		na.Level = "100"
	}
	if len(level) > 0 {
		na.Level = level[0]
	}
	acc, err := env.Accounts.CreateApproved(context.Background(), na, role)
	if err != nil {
		t.Fatalf("CreateAccount(%s) failed: %v", email, err)
	}
	return acc
}

// Token issues a session token for acc.
func (env *Env) Token(t *testing.T, acc account.Account) string {
	t.Helper()
	token, _, err := env.Sessions.Issue(acc)
	if err != nil {
		t.Fatalf("Token() failed: %v", err)
	}
	return token
}

// CreatePost creates a published post authored by an elevated account.
func (env *Env) CreatePost(t *testing.T, author account.Account, title string) blog.Post {
	t.Helper()
	post, err := env.Blogs.Create(context.Background(), author.Actor(), blog.NewPost{Title: title, Content: title + " content"})
	if err != nil {
		t.Fatalf("CreatePost(%s) failed: %v", title, err)
	}
	return post
}

func (env *Env) CreatePoll(t *testing.T, creator account.Account, np poll.NewPoll) poll.Poll {
	t.Helper()
	p, err := env.Polls.Create(context.Background(), creator.Actor(), np)
	if err != nil {
		t.Fatalf("CreatePoll(%s) failed: %v", np.Question, err)
	}
	return p
}

func (env *Env) CreateEvent(t *testing.T, creator account.Account, title string, capacity int, startsIn time.Duration) event.Event {
	t.Helper()
	ev, err := env.Events.Create(context.Background(), creator.Actor(), event.EventInput{
		Title:    title,
		StartsAt: time.Now().UTC().Add(startsIn),
		Capacity: capacity,
	})
	if err != nil {
		t.Fatalf("CreateEvent(%s) failed: %v", title, err)
	}
	return ev
}
