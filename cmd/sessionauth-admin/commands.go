package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/target/sessionauth/config"
	"github.com/target/sessionauth/internal/bootstrap"
	"github.com/target/sessionauth/internal/data"
	domainauth "github.com/target/sessionauth/internal/domain/auth"
	"github.com/target/sessionauth/internal/migrate"
	"github.com/target/sessionauth/internal/service"
)

const defaultCommandTimeout = 5 * time.Minute

type migrateOptions struct {
	Timeout time.Duration
	Status  bool
}

type listUsersOptions struct {
	Limit  int
	Offset int
	JSON   bool
}

type revokeOptions struct {
	UserID string
	DryRun bool
}

type purgeOptions struct {
	Grace     time.Duration
	BatchSize int
}

func commandContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContextWithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	pending, err := migrate.Pending(ctx, db)
	if err != nil {
		return fmt.Errorf("list pending migrations: %w", err)
	}
	if opts.Status {
		applied, appliedErr := migrate.Applied(ctx, db)
		if appliedErr != nil {
			return fmt.Errorf("list applied migrations: %w", appliedErr)
		}
		return printMigrationStatus(cmdCtx.Out, applied, pending)
	}

	cmdCtx.Logger.Info("running database migrations", "pending", len(pending))
	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return migrateErr
	}
	cmdCtx.Logger.Info("migrations completed successfully")
	return writef(cmdCtx.Out, "applied %d migration(s)\n", len(pending))
}

func runListUsers(cmdCtx *commandContext, args []string) error {
	opts, err := parseListUsersFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContextWithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cmdCtx.Config.Postgres, Logger: cmdCtx.Logger})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	repo := data.NewUserRepo(db)
	users, err := repo.List(ctx, opts.Limit, opts.Offset)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	rows := make([]userRow, 0, len(users))
	for _, u := range users {
		accounts, aerr := repo.ListAccounts(ctx, u.ID)
		if aerr != nil {
			return fmt.Errorf("list accounts for %s: %w", u.ID, aerr)
		}
		rows = append(rows, newUserRow(u, accounts))
	}

	if opts.JSON {
		return printUsersJSON(cmdCtx.Out, rows)
	}
	return printUsersTable(cmdCtx.Out, rows)
}

func runRevokeSessions(cmdCtx *commandContext, args []string) error {
	opts, err := parseRevokeFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContextWithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	in, err := connectInfra(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer in.Close()

	if _, err = data.NewUserRepo(in.DB).GetByID(ctx, opts.UserID); err != nil {
		return fmt.Errorf("lookup user %s: %w", opts.UserID, err)
	}

	if opts.DryRun {
		if cmdCtx.Config.Session.Store == config.SessionStoreRedis {
			return errors.New("--dry-run only applies to the postgres session store")
		}
		sessions, listErr := data.NewSessionRepo(in.DB).ListByUser(ctx, opts.UserID)
		if listErr != nil {
			return fmt.Errorf("list sessions: %w", listErr)
		}
		return printSessionsTable(cmdCtx.Out, sessions, time.Now())
	}

	purger, err := in.sessionPurger(cmdCtx.Config.Session.Store)
	if err != nil {
		return err
	}
	n, err := purger.DeleteByUser(ctx, opts.UserID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return writef(cmdCtx.Out, "revoked %d session(s) for user %s\n", n, opts.UserID)
}

func runPurgeSessions(cmdCtx *commandContext, args []string) error {
	opts, err := parsePurgeFlags(args)
	if err != nil {
		return err
	}
	if cmdCtx.Config.Session.Store == config.SessionStoreRedis {
		return errors.New("purge-sessions only applies to the postgres session store; redis expires keys itself")
	}

	ctx, cancel := commandContextWithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	in, err := connectInfra(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer in.Close()

	purger, err := in.sessionPurger(config.SessionStorePostgres)
	if err != nil {
		return err
	}
	reaper, err := service.NewSessionReaperService(service.SessionReaperServiceOptions{
		Purger: purger,
		Config: config.ReaperConfig{Interval: time.Minute, Grace: opts.Grace, BatchSize: opts.BatchSize},
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	n, err := reaper.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	return writef(cmdCtx.Out, "deleted %d expired session(s)\n", n)
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum time to wait for migrations")
	fs.BoolVar(&opts.Status, "status", false, "Print applied and pending versions without migrating")
	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be positive")
	}
	return opts, nil
}

func parseListUsersFlags(args []string) (listUsersOptions, error) {
	fs := flag.NewFlagSet("list-users", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts listUsersOptions
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum number of users to print (1-500)")
	fs.IntVar(&opts.Offset, "offset", 0, "Number of users to skip")
	fs.BoolVar(&opts.JSON, "json", false, "Print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return listUsersOptions{}, err
	}
	if opts.Limit < 1 || opts.Limit > 500 {
		return listUsersOptions{}, errors.New("--limit must be between 1 and 500")
	}
	if opts.Offset < 0 {
		return listUsersOptions{}, errors.New("--offset must not be negative")
	}
	return opts, nil
}

func parseRevokeFlags(args []string) (revokeOptions, error) {
	fs := flag.NewFlagSet("revoke-sessions", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts revokeOptions
	fs.StringVar(&opts.UserID, "user", "", "User ID whose sessions are deleted (required)")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "List the sessions that would be deleted (postgres only)")
	if err := fs.Parse(args); err != nil {
		return revokeOptions{}, err
	}
	opts.UserID = strings.TrimSpace(opts.UserID)
	if opts.UserID == "" {
		return revokeOptions{}, errors.New("--user is required")
	}
	return opts, nil
}

func parsePurgeFlags(args []string) (purgeOptions, error) {
	fs := flag.NewFlagSet("purge-sessions", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts purgeOptions
	fs.DurationVar(&opts.Grace, "grace", 0, "Only delete sessions expired for longer than this")
	fs.IntVar(&opts.BatchSize, "batch-size", 1000, "Rows deleted per statement")
	if err := fs.Parse(args); err != nil {
		return purgeOptions{}, err
	}
	if opts.Grace < 0 {
		return purgeOptions{}, errors.New("--grace must not be negative")
	}
	if opts.BatchSize < 1 {
		return purgeOptions{}, errors.New("--batch-size must be positive")
	}
	return opts, nil
}

// userRow is the printed shape of a user.
type userRow struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Role      domainauth.Role `json:"role"`
	Providers []string        `json:"providers"`
	CreatedAt time.Time       `json:"created_at"`
}

func newUserRow(u domainauth.User, accounts []domainauth.Account) userRow {
	row := userRow{
		ID:        u.ID,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		Providers: make([]string, 0, len(accounts)),
	}
	if u.Name != nil {
		row.Name = *u.Name
	}
	if u.Email != nil {
		row.Email = *u.Email
	}
	for _, a := range accounts {
		row.Providers = append(row.Providers, a.Provider+":"+a.ProviderAccountID)
	}
	return row
}

func printUsersTable(w io.Writer, rows []userRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "ID\tNAME\tEMAIL\tROLE\tPROVIDERS\tCREATED\n"); err != nil {
		return err
	}
	for _, r := range rows {
		email := r.Email
		if email == "" {
			email = "-"
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Name, email, r.Role, strings.Join(r.Providers, ","), r.CreatedAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printUsersJSON(w io.Writer, rows []userRow) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func printMigrationStatus(w io.Writer, applied, pending []string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "VERSION\tSTATUS\n"); err != nil {
		return err
	}
	for _, v := range applied {
		if err := writef(tw, "%s\tapplied\n", v); err != nil {
			return err
		}
	}
	for _, v := range pending {
		if err := writef(tw, "%s\tpending\n", v); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// printSessionsTable prints session ids truncated to a short prefix; full tokens are credentials.
func printSessionsTable(w io.Writer, sessions []domainauth.Session, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "SESSION\tCREATED\tEXPIRES\tSTATE\n"); err != nil {
		return err
	}
	for _, sess := range sessions {
		state := "active"
		if sess.Expired(now) {
			state = "expired"
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\n", shortID(sess.ID),
			sess.CreatedAt.UTC().Format(time.RFC3339), sess.ExpiresAt.UTC().Format(time.RFC3339), state); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writef(w, "%d session(s) would be revoked\n", len(sessions))
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
