// Package dig_container wires the API dependencies with go.uber.org/dig.
package dig_container

import (
	"context"
	"fmt"
	"log"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/socportal/jumuiya/apps/api/echo"
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
	logsvc "github.com/socportal/jumuiya/services/logger"
	"github.com/socportal/jumuiya/services/metrics"
	"github.com/socportal/jumuiya/services/objectstore"
	"github.com/socportal/jumuiya/services/revocation"
	"github.com/socportal/jumuiya/storage/database"
	inmemdb "github.com/socportal/jumuiya/storage/database/inmem"
	sqlxrepos "github.com/socportal/jumuiya/storage/database/sqlx"
)

// EngineMemory selects the in-memory repositories instead of Postgres.
const EngineMemory = "memory"

type Repositories struct {
	dig.Out

	Accounts   account.Repository
	Blogs      blog.Repository
	Engagement engagement.Repository
	Polls      poll.Repository
	Events     event.Repository
	Resources  resource.Repository
	Stats      stats.Repository
}

func newLogger(conf *core.Config) (core.Logger, *logsvc.RollbarLogger, error) {
	zl, err := logsvc.NewZap(conf)
	if err != nil {
		return nil, nil, errors.Wrap(err, "building zap logger")
	}
	logger := logsvc.NewRollbarLogger(zl, conf)
	return logger, logger, nil
}

// newDB returns nil when the in-memory engine is configured.
func newDB(conf *core.Config, logger core.Logger) (*sqlx.DB, error) {
	if conf.Database.Engine == EngineMemory {
		logger.Warn("using the in-memory database: data is lost on restart")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if conf.Database.URL == "" {
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(ctx, db, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newRepositories(db *sqlx.DB) Repositories {
	if db == nil {
		mem := inmemdb.Open()
		return Repositories{
			Accounts:   inmemdb.NewAccountRepository(mem),
			Blogs:      inmemdb.NewBlogRepository(mem),
			Engagement: inmemdb.NewEngagementRepository(mem),
			Polls:      inmemdb.NewPollRepository(mem),
			Events:     inmemdb.NewEventRepository(mem),
			Resources:  inmemdb.NewResourceRepository(mem),
			Stats:      inmemdb.NewStatsRepository(mem),
		}
	}
	return Repositories{
		Accounts:   sqlxrepos.NewAccountRepository(db),
		Blogs:      sqlxrepos.NewBlogRepository(db),
		Engagement: sqlxrepos.NewEngagementRepository(db),
		Polls:      sqlxrepos.NewPollRepository(db),
		Events:     sqlxrepos.NewEventRepository(db),
		Resources:  sqlxrepos.NewResourceRepository(db),
		Stats:      sqlxrepos.NewStatsRepository(db),
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridAPIKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newRevoker(conf *core.Config, logger core.Logger) (session.Revoker, error) {
	if conf.Redis.URL == "" {
		logger.Warn("REDIS_URL not set: logout will not revoke sessions server-side")
		return session.NopRevoker{}, nil
	}
	client, err := revocation.NewRedisClient(conf.Redis.URL)
	if err != nil {
		return nil, err
	}
	return revocation.NewRedisRevoker(client), nil
}

func newObjectStore(conf *core.Config, logger core.Logger) (resource.ObjectStore, error) {
	if conf.Storage.Bucket == "" {
		logger.Warn("STORAGE_BUCKET not set: resource files use the in-memory object store")
		base := fmt.Sprintf("http://%s/files", conf.Server.Host)
		return objectstore.NewMemoryStore(base, conf.Storage.SignedURLExpiry), nil
	}
	return objectstore.NewGCSStore(context.Background(), conf.Storage)
}

func newValidator(conf *core.Config, translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	account.RegisterValidators(validate, translator, conf.DepartmentMarker)
	poll.RegisterValidators(validate, translator)
	return validate
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	translator ut.Translator,
	m *metrics.Metrics,
	deps *echoapi.Deps,
) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Conf:       conf,
		Logger:     logger,
		Translator: translator,
		Metrics:    m,
		Deps:       deps,
	})
}

func newDeps(
	accounts account.Service,
	blogs blog.Service,
	engagementSvc engagement.Service,
	polls poll.Service,
	events event.Service,
	resources resource.Service,
	statsSvc stats.Service,
	sessions *session.Issuer,
) *echoapi.Deps {
	return &echoapi.Deps{
		AccountSvc:    accounts,
		BlogSvc:       blogs,
		EngagementSvc: engagementSvc,
		PollSvc:       polls,
		EventSvc:      events,
		ResourceSvc:   resources,
		StatsSvc:      statsSvc,
		Sessions:      sessions,
	}
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDB))
	must(c.Provide(newRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(newRevoker))
	must(c.Provide(newObjectStore))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(metrics.New))

	must(c.Provide(session.NewIssuer))
	must(c.Provide(account.NewService))
	must(c.Provide(func(accounts account.Service) blog.AccountGetter { return accounts }))
	must(c.Provide(func(accounts account.Service) poll.AccountGetter { return accounts }))
	must(c.Provide(func(accounts account.Service) resource.AccountGetter { return accounts }))
	must(c.Provide(blog.NewService))
	must(c.Provide(engagement.NewService))
	must(c.Provide(poll.NewService))
	must(c.Provide(event.NewService))
	must(c.Provide(resource.NewService))
	must(c.Provide(stats.NewService))

	must(c.Provide(newDeps))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
