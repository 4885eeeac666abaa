package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	errors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/landslide-report/go-auth"
	"github.com/landslide-report/go-auth/activitymap"
	"github.com/landslide-report/go-auth/api"
	"github.com/landslide-report/go-auth/config"
	"github.com/landslide-report/go-auth/provider/gemini"
	"github.com/landslide-report/go-auth/retry"
	"github.com/spf13/pflag"
)

const usage = `usage: landslide-auth [flags] <command>

commands:
  whoami    restore the saved session and print it
  signin    sign in with --email and --password
  signup    create an account with --email, --username and --password
  signout   forget the saved session
  funfact   print a fun fact about landslides
`

type App struct {
	cfg     *config.Config
	logger  *glog.BaseLogger
	store   auth.TokenStore
	closer  io.Closer
	manager *auth.Manager
	out     io.Writer
}

func (a *App) SetLogger(lgr *glog.BaseLogger) *App {
	a.logger = lgr
	return a
}

func (a *App) GetLogger(name string) auth.Logger {
	return a.logger.GetLogger(name)
}

func (a *App) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("landslide-auth", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	config.Flags(fs)
	email := fs.String("email", "", "account email")
	username := fs.String("username", "", "account username (signup)")
	password := fs.String("password", "", "account password, prompted when omitted")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(ctx, "", fs)
	if err != nil {
		fmt.Fprintln(stderr, print.MaybePrettyJSON(err))
		return 1
	}

	app := (&App{cfg: cfg, out: stdout}).SetLogger(newLogger(cfg.Log))
	lgr := app.GetLogger("app")

	command := strings.ToLower(fs.Arg(0))
	if command == "funfact" {
		return app.funFact(ctx)
	}

	if err := app.openStore(ctx); err != nil {
		lgr.Error("failed to open token store", "driver", cfg.Storage.Driver, "error", err)
		return 1
	}
	defer func() {
		if err := app.Close(); err != nil {
			lgr.Warn("failed to close token store", "error", err)
		}
	}()

	app.manager = app.newManager()

	creds := auth.Credentials{Email: *email, Username: *username, Password: *password}

	switch command {
	case "whoami":
		return app.report(app.manager.Rehydrate(ctx))
	case "signout":
		return app.report(app.manager.SignOut(ctx))
	case "signin", "signup":
		if _, err := app.manager.Rehydrate(ctx); err != nil {
			lgr.Debug("saved session not restored", "error", err)
		}
		if creds.Password == "" {
			if creds.Password, err = promptPassword(stderr); err != nil {
				lgr.Error("failed to read password", "error", err)
				return 1
			}
		}
		app.manager.Input().Set(creds)
		if command == "signin" {
			return app.report(app.manager.SubmitSignIn(ctx))
		}
		return app.report(app.manager.SubmitSignUp(ctx))
	default:
		fs.Usage()
		return 2
	}
}

func newLogger(cfg config.Log) *glog.BaseLogger {
	level := glog.Info
	switch strings.ToLower(cfg.Level) {
	case "trace":
		level = glog.Trace
	case "debug":
		level = glog.Debug
	case "warn", "warning":
		level = glog.Warn
	case "error":
		level = glog.Error
	}

	if !cfg.Pretty {
		return glog.NewLogger(
			glog.WithLevel(level),
			glog.WithName("landslide"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(errors.ToSlogAttributes),
		)
	}

	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(level),
		glog.WithName("landslide"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
}

func (a *App) newManager() *auth.Manager {
	backend := api.New(api.Config{
		BaseURL: a.cfg.API.BaseURL,
		Timeout: a.cfg.API.Timeout,
		Logger:  a.GetLogger("api"),
	})

	policy := retry.NoRetry()
	if a.cfg.Session.RehydrateAttempts > 1 {
		policy = retry.DefaultPolicy()
		policy.MaxAttempts = a.cfg.Session.RehydrateAttempts
	}

	return auth.NewManager(a.store, backend,
		auth.WithLoggerProvider(a),
		auth.WithRehydratePolicy(policy),
		auth.WithExpiryCheck(a.cfg.Session.CheckExpiry),
		auth.WithActivitySink(activitymap.LogSink(a.GetLogger("activity"), activitymap.WithDefaultChannel("cli"))),
	)
}

// report prints the session snapshot and maps it to an exit code.
func (a *App) report(session auth.Session, err error) int {
	fmt.Fprintln(a.out, print.MaybePrettyJSON(session))
	if err != nil {
		a.GetLogger("app").Debug("operation finished with error", "error", err)
	}
	if session.Error != "" {
		return 1
	}
	return 0
}

func (a *App) funFact(ctx context.Context) int {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = a.cfg.Content.MaxAttempts
	policy.InitialDelay = a.cfg.Content.InitialDelay

	client := gemini.New(gemini.Config{
		APIKey:  a.cfg.Content.APIKey,
		Model:   a.cfg.Content.Model,
		BaseURL: a.cfg.Content.BaseURL,
		Retry:   policy,
		Logger:  a.GetLogger("gemini"),
	})

	fact, err := client.FunFact(ctx)
	if err != nil {
		a.GetLogger("gemini").Warn("fun fact unavailable", "error", err)
		fmt.Fprintln(a.out, gemini.UserMessage(err))
		return 0
	}
	fmt.Fprintln(a.out, fact)
	return 0
}
