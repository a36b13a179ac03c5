// Package authctl implements the operator commands of the authctl binary:
// applying schema migrations and creating users from the terminal.
package authctl

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/notify"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

const usage = `usage:
  authctl migrate -d <dsn>
  authctl create-user -d <dsn> -n <name> -e <email> [-m bcrypt|argon2id] [-k cost]
`

var ErrUsage = errors.New("invalid usage")

// Run executes the command named by args[0].
func Run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return ErrUsage
	}

	switch args[0] {
	case "migrate":
		return migrate(ctx, args[1:], out)
	case "create-user":
		return createUser(ctx, args[1:], out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func migrate(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("migrate", out)
	dsn := fs.String("d", "", "database DSN (sqlite:<path> or postgres://...)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if *dsn == "" || *dsn == repomanager.BackendMemory {
		return fmt.Errorf("%w: a persistent -d dsn is required", ErrUsage)
	}

	store, err := repomanager.Open(ctx, *dsn, true)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Fprintf(out, "%s schema is up to date\n", store.Backend)
	return nil
}

func createUser(ctx context.Context, args []string, out io.Writer) error {
	cfg := &config.Config{}
	cfg.LoadDefaults()

	fs := newFlagSet("create-user", out)
	dsn := fs.String("d", "", "database DSN (sqlite:<path> or postgres://...)")
	name := fs.String("n", "", "display name")
	email := fs.String("e", "", "email address")
	fs.StringVar(&cfg.PasswordHashAlgorithm, "m", cfg.PasswordHashAlgorithm, "password hash algorithm")
	fs.IntVar(&cfg.PasswordHashCost, "k", cfg.PasswordHashCost, "password hash cost")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if *dsn == "" || *name == "" || *email == "" {
		return fmt.Errorf("%w: -d, -n and -e are required", ErrUsage)
	}

	password, err := GetPassword(out, "Enter password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	confirm, err := GetPassword(out, "Repeat password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(password, confirm) {
		return errors.New("passwords do not match")
	}

	store, err := repomanager.Open(ctx, *dsn, true)
	if err != nil {
		return err
	}
	defer store.Close()

	logger := logging.Discard()
	svc, err := server.NewAuthService(cfg, store.Users, notify.NewLogNotifier(logger), logger)
	if err != nil {
		return err
	}

	profile, err := svc.Register(ctx, *name, *email, string(password))
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "created user %s <%s> id=%s\n", profile.Name, profile.Email, profile.ID)
	return nil
}
