package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/socportal/jumuiya/core/account"
	"github.com/socportal/jumuiya/core/engagement"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")

	// cliActor is the identity of privileged operations run from the command line.
	cliActor = account.Actor{ID: "admin-cli", Role: account.RoleSuperAdmin}
)

type (
	migrateFunc func(ctx context.Context, command string, args ...string) error

	commandLine struct {
		accounts   account.Service
		engagement engagement.Service
		migrate    migrateFunc
		out        io.Writer
	}
)

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  createsuperuser -email EMAIL -first FIRST -last LAST - create an approved super admin")
	_, _ = fmt.Fprintln(cli.out, "  resetpassword -email EMAIL                          - reset an account's password")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                              - run a goose migrations command")
	_, _ = fmt.Fprintln(cli.out, "  reconcile                                           - repair drifted engagement counters")
}

func (cli *commandLine) promptPassword() (string, error) {
	_, _ = fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createCmd := flag.NewFlagSet("createsuperuser", flag.ContinueOnError)
	createCmd.SetOutput(cli.out)
	createEmail := createCmd.String("email", "", "The super admin's email. The password will be prompted next.")
	createFirst := createCmd.String("first", "", "First name")
	createLast := createCmd.String("last", "", "Last name")

	resetCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetCmd.SetOutput(cli.out)
	resetEmail := resetCmd.String("email", "", "The account's email. The password will be prompted next.")

	switch args[1] {
	case "createsuperuser":
		if err := createCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *createEmail == "" || *createFirst == "" || *createLast == "" {
			createCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			createCmd.Usage()
			return errHelp
		}
		return cli.createSuperuser(ctx, *createEmail, *createFirst, *createLast, pwd)

	case "resetpassword":
		if err := resetCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetEmail == "" {
			resetCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetCmd.Usage()
			return errHelp
		}
		return cli.accounts.SetPassword(ctx, *resetEmail, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2], args[3:]...)

	case "reconcile":
		return cli.reconcile(ctx)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) createSuperuser(ctx context.Context, email, first, last, pwd string) error {
	acc, err := cli.accounts.CreateApproved(ctx, account.NewAccount{
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		FirstName:       first,
		LastName:        last,
	}, account.RoleSuperAdmin)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "super admin %s created (id %s)\n", acc.Email, acc.ID)
	return nil
}

func (cli *commandLine) reconcile(ctx context.Context) error {
	report, err := cli.engagement.Reconcile(ctx, cliActor)
	if err != nil {
		return err
	}
	for _, d := range report.Drifts {
		_, _ = fmt.Fprintf(cli.out, "%s %s: stored %d, actual %d\n", d.Target, d.ID, d.Stored, d.Actual)
	}
	_, _ = fmt.Fprintf(cli.out, "%d counter(s) repaired\n", report.Repaired)
	return nil
}
