// Package userstore parses userstore command flags and runs its subcommands
// against the file-backed user store.
package userstore

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/objectstore/internal/auth/password"
	"github.com/louisbranch/objectstore/internal/auth/token"
	"github.com/louisbranch/objectstore/internal/mail"
	"github.com/louisbranch/objectstore/internal/mail/outbox"
	"github.com/louisbranch/objectstore/internal/mail/smtp"
	entrypoint "github.com/louisbranch/objectstore/internal/platform/cmd"
	apperrors "github.com/louisbranch/objectstore/internal/platform/errors"
	"github.com/louisbranch/objectstore/internal/storage"
	"github.com/louisbranch/objectstore/internal/user"
)

const commandList = "add, list, find, reset-password, login, verify-token, dispatch-mail, remove-collection"

var errInvalidCredentials = apperrors.New(apperrors.CodeCredentialsInvalid, "invalid user id or password")

// Config holds userstore command configuration.
type Config struct {
	DataDir          string        `env:"OBJECTSTORE_DATA_DIR"           envDefault:"data/users"`
	OutboxDB         string        `env:"OBJECTSTORE_OUTBOX_DB"          envDefault:"data/outbox.db"`
	MailMaxAttempts  int           `env:"OBJECTSTORE_MAIL_MAX_ATTEMPTS"  envDefault:"5"`
	MailPollInterval time.Duration `env:"OBJECTSTORE_MAIL_POLL_INTERVAL" envDefault:"10s"`

	// Command is the subcommand name and Args its remaining arguments.
	Command string
	Args    []string

	lookup EnvLookup
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses environment and global flags into a Config. The first
// positional argument selects the subcommand.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg, lookup); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory holding one YAML file per user")
	fs.StringVar(&cfg.OutboxDB, "outbox-db", cfg.OutboxDB, "Mail outbox SQLite database path")
	fs.IntVar(&cfg.MailMaxAttempts, "mail-max-attempts", cfg.MailMaxAttempts, "Delivery attempts before a mail is dead-lettered")
	fs.DurationVar(&cfg.MailPollInterval, "mail-poll-interval", cfg.MailPollInterval, "Mail outbox poll interval")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if fs.NArg() == 0 {
		return Config{}, fmt.Errorf("command is required (%s)", commandList)
	}
	cfg.Command = fs.Arg(0)
	cfg.Args = fs.Args()[1:]
	cfg.lookup = lookup
	return cfg, nil
}

// Run executes the configured subcommand with tracing enabled.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceUserStore, func(ctx context.Context) error {
		return execute(ctx, cfg, deps{out: out})
	})
}

// deps holds the collaborators subcommands use. Zero fields are filled with
// the production implementations.
type deps struct {
	out        io.Writer
	now        func() time.Time
	logf       func(format string, args ...any)
	hasher     user.Hasher
	generate   user.PasswordGenerator
	issuer     func() (token.Issuer, error)
	delivery   func() (mail.Sender, error)
	resetMails func(*outbox.Store) mail.Sender
}

// withDefaults fills zero fields. Env-driven collaborators read through lookup.
func (d deps) withDefaults(lookup EnvLookup) deps {
	if d.out == nil {
		d.out = io.Discard
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.logf == nil {
		d.logf = log.Printf
	}
	if d.hasher == nil {
		d.hasher = password.Hasher{Cost: password.DefaultCost}
	}
	if d.issuer == nil {
		now := d.now
		d.issuer = func() (token.Issuer, error) { return token.LoadIssuerFromEnv(lookup, now) }
	}
	if d.delivery == nil {
		d.delivery = func() (mail.Sender, error) { return smtpDelivery(lookup) }
	}
	if d.resetMails == nil {
		now := d.now
		d.resetMails = func(queue *outbox.Store) mail.Sender { return outbox.NewSender(queue, now) }
	}
	return d
}

func smtpDelivery(lookup EnvLookup) (mail.Sender, error) {
	cfg, err := smtp.LoadConfigFromEnv(lookup)
	if err != nil {
		return nil, err
	}
	sender, err := smtp.NewSender(cfg)
	if err != nil {
		return nil, err
	}
	return sender, nil
}

func execute(ctx context.Context, cfg Config, d deps) error {
	d = d.withDefaults(cfg.lookup)
	switch cfg.Command {
	case "add":
		return runAdd(ctx, cfg, d)
	case "list":
		return runList(ctx, cfg, d)
	case "find":
		return runFind(ctx, cfg, d)
	case "reset-password":
		return runResetPassword(ctx, cfg, d)
	case "login":
		return runLogin(ctx, cfg, d)
	case "verify-token":
		return runVerifyToken(cfg, d)
	case "dispatch-mail":
		return runDispatchMail(ctx, cfg, d)
	case "remove-collection":
		return runRemoveCollection(ctx, cfg, d)
	default:
		return fmt.Errorf("unknown command %q (%s)", cfg.Command, commandList)
	}
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func openUsers(ctx context.Context, cfg Config) (*storage.Shared[user.User, *user.User], error) {
	store, err := user.Load(ctx, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return storage.NewShared(store), nil
}

func openOutbox(ctx context.Context, cfg Config) (*outbox.Store, error) {
	if dir := filepath.Dir(cfg.OutboxDB); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create outbox dir: %w", err)
		}
	}
	return outbox.Open(ctx, cfg.OutboxDB)
}

func runAdd(ctx context.Context, cfg Config, d deps) error {
	fs := newFlagSet("add", d.out)
	id := fs.String("id", "", "User id, longer than 5 characters")
	name := fs.String("name", "", "Display name")
	email := fs.String("email", "", "Email address")
	address := fs.String("address", "", "Postal address (optional)")
	phone := fs.String("phone", "", "Phone number (optional)")
	plain := fs.String("password", "", "Initial password (optional)")
	if err := fs.Parse(cfg.Args); err != nil {
		return err
	}

	u, err := user.New(*id)
	if err != nil {
		return err
	}
	if err := u.SetName(*name); err != nil {
		return err
	}
	if err := u.SetEmail(*email); err != nil {
		return err
	}
	if *address != "" {
		if err := u.SetAddress(*address); err != nil {
			return err
		}
	}
	if *phone != "" {
		if err := u.SetPhone(*phone); err != nil {
			return err
		}
	}
	if *plain != "" {
		if err := u.SetPassword(d.hasher, *plain); err != nil {
			return err
		}
	}

	users, err := openUsers(ctx, cfg)
	if err != nil {
		return err
	}
	err = users.Do(func(s *user.Store) error {
		return s.Insert(ctx, u)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(d.out, "added %s\n", u.ID())
	return nil
}

func runList(ctx context.Context, cfg Config, d deps) error {
	fs := newFlagSet("list", d.out)
	if err := fs.Parse(cfg.Args); err != nil {
		return err
	}
	users, err := openUsers(ctx, cfg)
	if err != nil {
		return err
	}
	return users.Do(func(s *user.Store) error {
		for u := range s.All() {
			printUser(d.out, u)
		}
		return nil
	})
}

func runFind(ctx context.Context, cfg Config, d deps) error {
	fs := newFlagSet("find", d.out)
	name := fs.String("name", "", "Case-insensitive name fragment")
	if err := fs.Parse(cfg.Args); err != nil {
		return err
	}
	if strings.TrimSpace(*name) == "" {
		return errors.New("find: -name is required")
	}
	users, err := openUsers(ctx, cfg)
	if err != nil {
		return err
	}
	return users.Do(func(s *user.Store) error {
		found := user.FindByName(s.All(), *name)
		if len(found) == 0 {
			fmt.Fprintf(d.out, "no users match %q\n", *name)
			return nil
		}
		for _, u := range found {
			printUser(d.out, u)
		}
		return nil
	})
}

func printUser(out io.Writer, u *user.User) {
	fmt.Fprintf(out, "%s\t%s\t%s\n", u.ID(), u.Name(), u.Email())
}

func runResetPassword(ctx context.Context, cfg Config, d deps) error {
	fs := newFlagSet("reset-password", d.out)
	id := fs.String("id", "", "User id")
	if err := fs.Parse(cfg.Args); err != nil {
		return err
	}

	users, err := openUsers(ctx, cfg)
	if err != nil {
		return err
	}
	queue, err := openOutbox(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			d.logf("close outbox: %v", err)
		}
	}()
	sender := d.resetMails(queue)

	var resetID string
	err = users.Do(func(s *user.Store) error {
		u, err := s.Reference(user.NormalizeID(*id))
		if err != nil {
			return err
		}
		previous := *u
		plain, err := u.RegeneratePassword(d.generate, d.hasher)
		if err != nil {
			return err
		}
		// No mail leaves until the new hash is on disk.
		if err := u.Persist(); err != nil {
			*u = previous
			return err
		}
		if err := u.SendPassword(ctx, sender, plain); err != nil {
			// The old password stays valid when the new one never reached the user.
			*u = previous
			if restoreErr := u.Persist(); restoreErr != nil {
				return errors.Join(err, restoreErr)
			}
			return err
		}
		resetID = u.ID()
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(d.out, "password reset for %s, mail queued\n", resetID)
	return nil
}

func runLogin(ctx context.Context, cfg Config, d deps) error {
	fs := newFlagSet("login", d.out)
	id := fs.String("id", "", "User id")
	plain := fs.String("password", "", "Password")
	if err := fs.Parse(cfg.Args); err != nil {
		return err
	}
	issuer, err := d.issuer()
	if err != nil {
		return err
	}
	users, err := openUsers(ctx, cfg)
	if err != nil {
		return err
	}

	var subject string
	err = users.Do(func(s *user.Store) error {
		u, err := s.Reference(user.NormalizeID(*id))
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeReferenceLookupFailed) {
				return errInvalidCredentials
			}
			return err
		}
		ok, err := u.VerifyPassword(d.hasher, *plain)
		if errors.Is(err, user.ErrPasswordNotSet) {
			return errInvalidCredentials
		}
		if err != nil {
			return err
		}
		if !ok {
			return errInvalidCredentials
		}
		subject = u.ID()
		return nil
	})
	if err != nil {
		return err
	}

	signed, err := issuer.Issue(subject)
	if err != nil {
		return err
	}
	fmt.Fprintln(d.out, signed)
	return nil
}

func runVerifyToken(cfg Config, d deps) error {
	fs := newFlagSet("verify-token", d.out)
	raw := fs.String("token", "", "Token printed by login")
	if err := fs.Parse(cfg.Args); err != nil {
		return err
	}
	issuer, err := d.issuer()
	if err != nil {
		return err
	}
	subject, err := issuer.Validate(*raw)
	if err != nil {
		return err
	}
	fmt.Fprintln(d.out, subject)
	return nil
}

func runDispatchMail(ctx context.Context, cfg Config, d deps) error {
	fs := newFlagSet("dispatch-mail", d.out)
	once := fs.Bool("once", false, "Dispatch one batch and exit")
	if err := fs.Parse(cfg.Args); err != nil {
		return err
	}
	delivery, err := d.delivery()
	if err != nil {
		return err
	}
	queue, err := openOutbox(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			d.logf("close outbox: %v", err)
		}
	}()

	dispatcher := outbox.NewDispatcher(queue, delivery, outbox.Config{
		PollInterval: cfg.MailPollInterval,
		MaxAttempts:  cfg.MailMaxAttempts,
	}, d.now, d.logf)
	if !*once {
		d.logf("dispatching mail from %s", cfg.OutboxDB)
		return dispatcher.Run(ctx)
	}
	result, err := dispatcher.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(d.out, "sent=%d retried=%d dead=%d\n", result.Sent, result.Retried, result.Dead)
	return nil
}

func runRemoveCollection(ctx context.Context, cfg Config, d deps) error {
	fs := newFlagSet("remove-collection", d.out)
	if err := fs.Parse(cfg.Args); err != nil {
		return err
	}
	// The directory is removed without loading it so an unreadable
	// collection can still be cleared.
	existed, err := storage.RemoveDir(ctx, cfg.DataDir)
	if err != nil {
		return err
	}
	if existed {
		fmt.Fprintf(d.out, "removed %s\n", cfg.DataDir)
	} else {
		fmt.Fprintf(d.out, "nothing to remove at %s\n", cfg.DataDir)
	}
	return nil
}
