// Command tally-cli manages expenses from the terminal. Records live in the
// same key-value store the server uses; by default that is a SQLite file under
// $TALLY_HOME.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"tally/internal/cli"
	"tally/internal/config"
	"tally/internal/log"
	"tally/internal/services"
	"tally/internal/session"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	if os.Getenv("DATA_BACKEND") == "" {
		cfg.DataBackend = config.BackendSQLite
		cfg.SQLiteDBPath = filepath.Join(cfg.Home, "tally.db")
		cfg.CacheSize = 0
		if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
			fmt.Fprintf(os.Stderr, "tally: create %s: %v\n", cfg.Home, err)
			os.Exit(1)
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "tally: %v\n", err)
		os.Exit(1)
	}

	// the terminal is for results; only warnings and errors are logged
	level := cfg.LogLevel
	if os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	logger := log.New(log.Config{
		Level:     log.ParseLevel(level),
		Format:    cfg.LogFormat,
		Component: log.ComponentCLI,
		Output:    os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := cli.InitBackend(ctx, logger, cfg, nil)
	svc := services.NewExpenseService(res.Store, nil,
		services.WithLogger(logger.WithComponent(log.ComponentLedger)))
	defer svc.Close()

	auth := session.NewAuthenticator(cli.NewVerifier(cfg, res.Store))
	sessions, err := session.Open(ctx, res.Store, auth,
		session.WithLogger(logger.WithComponent(log.ComponentSession)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "tally: %v\n", err)
		os.Exit(1)
	}

	a := &app{out: os.Stdout, svc: svc, sessions: sessions}
	if err := a.run(ctx, os.Args[1:]); err != nil {
		code := 1
		if errors.Is(err, errUsage) {
			code = 2
		}
		fmt.Fprintf(os.Stderr, "tally: %v\n", err)
		svc.Close()
		os.Exit(code)
	}
}

type app struct {
	out      io.Writer
	svc      *services.ExpenseService
	sessions *session.Store
}

var (
	errNotLoggedIn = errors.New("not logged in")
	errUsage       = errors.New("usage")
)

type command struct {
	name    string
	summary string
	run     func(a *app, ctx context.Context, args []string) error
	// needsSession gates record commands on a logged-in user
	needsSession bool
}

var commands = []command{
	{name: "login", summary: "log in with email and password", run: (*app).login},
	{name: "signup", summary: "create an account and log in", run: (*app).signup},
	{name: "logout", summary: "forget the current session", run: (*app).logout},
	{name: "whoami", summary: "show the logged in user", run: (*app).whoami},
	{name: "add", summary: "record an expense", run: (*app).add, needsSession: true},
	{name: "edit", summary: "change fields of an expense", run: (*app).edit, needsSession: true},
	{name: "rm", summary: "delete an expense", run: (*app).remove, needsSession: true},
	{name: "list", summary: "list expenses, newest first", run: (*app).list, needsSession: true},
	{name: "budget", summary: "show or set monthly budgets", run: (*app).budget, needsSession: true},
	{name: "stats", summary: "show the spending summary", run: (*app).stats, needsSession: true},
	{name: "export", summary: "export expenses as csv, json or yaml", run: (*app).export, needsSession: true},
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		a.usage()
		if len(args) == 0 {
			return fmt.Errorf("%w: missing command", errUsage)
		}
		return nil
	}

	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		if c.needsSession {
			if _, ok := a.sessions.Current(); !ok {
				return errNotLoggedIn
			}
		}
		return c.run(a, ctx, args[1:])
	}
	a.usage()
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func (a *app) usage() {
	fmt.Fprintln(a.out, "usage: tally-cli <command> [flags]")
	fmt.Fprintln(a.out)
	for _, c := range commands {
		fmt.Fprintf(a.out, "  %-8s %s\n", c.name, c.summary)
	}
}

// userID is only called by commands gated on a session.
func (a *app) userID() string {
	sess, _ := a.sessions.Current()
	return sess.ID
}
