package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
	"github.com/socportal/jumuiya/core/blog"
	"github.com/socportal/jumuiya/core/engagement"
	emailsvc "github.com/socportal/jumuiya/services/email"
	logsvc "github.com/socportal/jumuiya/services/logger"
	"github.com/socportal/jumuiya/storage/database"
	sqlxrepos "github.com/socportal/jumuiya/storage/database/sqlx"
)

func main() {
	os.Exit(run())
}

func run() int {
	conf := core.NewConfig()
	zl, err := logsvc.NewZap(conf)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := logsvc.NewRollbarLogger(zl, conf)
	defer logger.Sync()

	ctx := context.Background()

	// set up DB
	db, err := database.Open(ctx, conf)
	if err != nil {
		logger.Error(fmt.Sprintf("opening database: %v", err), err)
		return 1
	}
	defer func() { _ = db.Close() }()

	// set up services
	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	account.RegisterValidators(validate, translator, conf.DepartmentMarker)

	mailSvc := emailsvc.NewConsoleService(conf, logger)
	accounts := account.NewService(conf, sqlxrepos.NewAccountRepository(db), mailSvc, validate)
	blogs := blog.NewService(sqlxrepos.NewBlogRepository(db), accounts, validate)

	// start CLI
	cli := commandLine{
		accounts:   accounts,
		engagement: engagement.NewService(sqlxrepos.NewEngagementRepository(db), blogs),
		migrate: func(ctx context.Context, command string, args ...string) error {
			return database.Migrate(ctx, db, command, args...)
		},
		out: os.Stdout,
	}
	err = cli.run(ctx, os.Args)
	mailSvc.Wait()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", core.TranslateValidationErrors(err, translator))
		}
		return 1
	}
	return 0
}
