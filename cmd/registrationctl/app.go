package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	registration "github.com/goliatone/go-registration"
	"github.com/goliatone/go-registration/cleanup"
	"github.com/goliatone/go-registration/internal/config"
	"github.com/goliatone/go-registration/lock"
	"github.com/goliatone/go-registration/metrics"
	"github.com/goliatone/go-registration/notifier"
	"github.com/goliatone/go-registration/repository"
	"github.com/goliatone/go-registration/sinks/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	_ "github.com/lib/pq"
)

const usage = `usage: registrationctl [-env file] [-print-config] <command> [flags]

commands:
  migrate                      create or migrate the schema
  register  -email -password   register a new account
  activate  -key               verify or activate an account
  moderate  -key -decision     approve or reject a verified account
  pending   -queue             list unverified, unmoderated or inactivated profiles
  cleanup                      delete expired, never activated accounts`

// App holds the wired dependencies for one CLI invocation.
type App struct {
	cfg       *config.Config
	logger    *glog.BaseLogger
	db        *bun.DB
	store     *repository.Store
	policy    *registration.StaticPolicy
	engine    *registration.Engine
	registry  *prometheus.Registry
	collector *metrics.Collector
	closers   []func() error
	out       io.Writer
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("registrationctl", flag.ContinueOnError)
	envFile := global.String("env", ".env", "dotenv file to load")
	printConfig := global.Bool("print-config", false, "print the resolved configuration")
	global.Usage = func() { fmt.Fprintln(global.Output(), usage) }

	if err := global.Parse(args); err != nil {
		return err
	}

	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Info),
		glog.WithName("registrationctl"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)

	if *printConfig {
		fmt.Fprintln(out, print.MaybePrettyJSON(cfg.Redacted()))
	}

	app := &App{cfg: cfg, logger: lgr, out: out}
	defer app.Close()

	if err := app.openDB(); err != nil {
		return err
	}

	cmd, cmdArgs := global.Arg(0), global.Args()[1:]
	if cmd == "migrate" {
		return app.migrate(ctx)
	}

	if err := app.wire(ctx); err != nil {
		return err
	}

	switch cmd {
	case "register":
		err = app.register(ctx, cmdArgs)
	case "activate":
		err = app.activate(ctx, cmdArgs)
	case "moderate":
		err = app.moderate(ctx, cmdArgs)
	case "pending":
		err = app.pending(ctx, cmdArgs)
	case "cleanup":
		err = app.cleanup(ctx)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}

	if werr := app.writeMetrics(); werr != nil {
		app.GetLogger("metrics").Warn("failed to write metrics textfile", "error", werr)
	}

	return err
}

func (a *App) openDB() error {
	switch a.cfg.DatabaseDriver {
	case config.DriverPostgres:
		sqldb, err := sql.Open("postgres", a.cfg.DatabaseURL)
		if err != nil {
			return err
		}
		a.db = bun.NewDB(sqldb, pgdialect.New())
	default:
		sqldb, err := sql.Open(sqliteshim.ShimName, a.cfg.DatabaseURL)
		if err != nil {
			return err
		}
		sqldb.SetMaxOpenConns(1)
		a.db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	a.closers = append(a.closers, a.db.Close)
	return nil
}

func (a *App) migrate(ctx context.Context) error {
	logger := a.GetLogger("migrate")

	if a.cfg.DatabaseDriver == config.DriverPostgres {
		if err := repository.MigratePostgres(a.cfg.DatabaseURL); err != nil {
			return err
		}
	} else if err := repository.CreateSchema(ctx, a.db); err != nil {
		return err
	}

	logger.Info("schema is up to date", "driver", a.cfg.DatabaseDriver)
	return nil
}

func (a *App) wire(ctx context.Context) error {
	a.store = repository.NewStore(a.db)
	a.store.MustValidate()

	a.policy = registration.NewConfigPolicy(a.cfg)

	a.registry = prometheus.NewRegistry()
	a.collector = metrics.NewCollector(a.registry)

	var n registration.Notifier = notifier.NewLogNotifier(a.GetLogger("notifier"), a.cfg.SMTP.BaseURL)
	if a.cfg.SMTP.Enabled() {
		n = notifier.NewSMTPNotifier(a.cfg.SMTP, a.policy, notifier.WithLogger(a.GetLogger("notifier")))
	}

	opts := []registration.EngineOption{
		registration.WithLogger(a.GetLogger("engine")),
		registration.WithNotifier(n),
		registration.WithPhoneRegion(a.cfg.PhoneRegion),
		registration.WithEventSink(a.collector),
	}

	if a.cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis URL: %w", err)
		}
		client := redis.NewClient(redisOpts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("redis ping failed: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		opts = append(opts, registration.WithTokenLocker(
			lock.NewRedisLocker(client, lock.WithLogger(a.GetLogger("lock"))),
		))
	}

	if len(a.cfg.KafkaBrokers) > 0 {
		client, err := kafka.NewClient(a.cfg.KafkaBrokers, a.cfg.KafkaTopic)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { client.Close(); return nil })
		opts = append(opts, registration.WithEventSink(kafka.NewSink(client, a.cfg.KafkaTopic)))
	}

	a.engine = registration.NewEngine(a.store, a.policy, opts...)
	return nil
}

func (a *App) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	msg := registration.RegisterAccountMessage{}
	fs.StringVar(&msg.Email, "email", "", "email address")
	fs.StringVar(&msg.Username, "username", "", "username, random when empty")
	fs.StringVar(&msg.Password, "password", "", "password")
	fs.StringVar(&msg.FirstName, "first", "", "first name")
	fs.StringVar(&msg.LastName, "last", "", "last name")
	fs.StringVar(&msg.Phone, "phone", "", "phone number")
	fs.BoolVar(&msg.UseHashid, "hashid", false, "derive the account id from the email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	msg.OnResult = func(res *registration.RegistrationResult) {
		if res.NotificationErr != nil {
			a.GetLogger("register").Warn("registration email not delivered", "error", res.NotificationErr)
		}
		a.print(profileView(res.Profile, true))
	}

	return registration.NewRegisterAccountHandler(a.engine).Execute(ctx, msg)
}

func (a *App) activate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("activate", flag.ContinueOnError)
	msg := registration.ActivateAccountMessage{}
	fs.StringVar(&msg.ActivationKey, "key", "", "activation key")
	if err := fs.Parse(args); err != nil {
		return err
	}

	msg.OnResult = func(res *registration.ActivationResult) {
		view := profileView(res.Profile, false)
		view.ModerationPending = res.ModerationPending
		a.print(view)
	}

	return registration.NewActivateAccountHandler(a.engine).Execute(ctx, msg)
}

func (a *App) moderate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("moderate", flag.ContinueOnError)
	msg := registration.ModerateAccountMessage{}
	moderatorEmail := fs.String("moderator", "", "moderator email")
	fs.StringVar(&msg.ActivationKey, "key", "", "activation key")
	fs.StringVar(&msg.Decision, "decision", "", "approve or reject")
	fs.StringVar(&msg.Comment, "comment", "", "note sent to the account")
	if err := fs.Parse(args); err != nil {
		return err
	}

	moderator, err := a.findModerator(ctx, *moderatorEmail)
	if err != nil {
		return err
	}
	msg.Moderator = moderator

	msg.OnResult = func(res *registration.ModerationResult) {
		if !res.Applied {
			a.GetLogger("moderate").Info("profile already moderated")
		}
		a.print(profileView(res.Profile, false))
	}

	return registration.NewModerateAccountHandler(a.engine).Execute(ctx, msg)
}

// findModerator resolves a configured moderator to its stored, active
// account so the decision records who made it.
func (a *App) findModerator(ctx context.Context, email string) (*registration.Account, error) {
	moderators, err := a.policy.Moderators(ctx)
	if err != nil {
		return nil, err
	}

	for _, m := range moderators {
		if !strings.EqualFold(m.Email, email) {
			continue
		}

		stored, err := a.store.FindAccountByEmailOrUsername(ctx, m.Email, "")
		if registration.IsRecordNotFound(err) {
			a.GetLogger("moderate").Warn("configured moderator has no account", "moderator", m.Email)
			return nil, goerrors.New("moderator has no registered account", goerrors.CategoryAuthz).
				WithCode(goerrors.CodeForbidden).
				WithMetadata(map[string]any{"moderator": m.Email})
		}
		if err != nil {
			return nil, err
		}
		if !stored.Active {
			return nil, goerrors.New("moderator account is not active", goerrors.CategoryAuthz).
				WithCode(goerrors.CodeForbidden).
				WithMetadata(map[string]any{"moderator": m.Email})
		}
		return stored, nil
	}

	return nil, goerrors.New("moderator is not configured", goerrors.CategoryAuthz).
		WithCode(goerrors.CodeForbidden).
		WithMetadata(map[string]any{"moderator": email})
}

func (a *App) pending(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pending", flag.ContinueOnError)
	queue := fs.String("queue", "unmoderated", "unverified, unmoderated or inactivated")
	limit := fs.Int("limit", 50, "maximum number of profiles")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		profiles []*registration.RegistrationProfile
		err      error
	)

	switch *queue {
	case "unverified":
		profiles, err = a.engine.UnverifiedProfiles(ctx, *limit)
	case "unmoderated":
		profiles, err = a.engine.UnmoderatedProfiles(ctx, *limit)
	case "inactivated":
		profiles, err = a.engine.InactivatedProfiles(ctx, *limit)
	default:
		return fmt.Errorf("unknown queue %q", *queue)
	}
	if err != nil {
		return err
	}

	views := make([]ProfileView, 0, len(profiles))
	for _, p := range profiles {
		views = append(views, profileView(p, true))
	}
	a.print(views)
	return nil
}

func (a *App) cleanup(ctx context.Context) error {
	job := cleanup.NewJob(a.store, a.policy,
		cleanup.WithLogger(a.GetLogger("cleanup")),
		cleanup.WithReporter(a.collector),
	)
	_, err := job.Run(ctx)
	return err
}

func (a *App) writeMetrics() error {
	if a.cfg.MetricsTextfile == "" || a.registry == nil {
		return nil
	}
	return prometheus.WriteToTextfile(a.cfg.MetricsTextfile, a.registry)
}

func (a *App) print(v any) {
	fmt.Fprintln(a.out, print.MaybePrettyJSON(v))
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.GetLogger("app").Warn("close failed", "error", err)
		}
	}
}

// ProfileView is the CLI rendering of a registration profile.
type ProfileView struct {
	AccountID         string     `json:"account_id"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	Active            bool       `json:"active"`
	ActivationKey     string     `json:"activation_key,omitempty"`
	Verified          bool       `json:"verified"`
	Activated         bool       `json:"activated"`
	Moderated         bool       `json:"moderated"`
	ModerationStatus  string     `json:"moderation_status,omitempty"`
	ModerationPending bool       `json:"moderation_pending,omitempty"`
	ModerationTime    *time.Time `json:"moderation_time,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func profileView(p *registration.RegistrationProfile, withKey bool) ProfileView {
	v := ProfileView{
		AccountID:        p.AccountID.String(),
		Verified:         p.Verified,
		Activated:        p.Activated,
		Moderated:        p.Moderated,
		ModerationStatus: string(p.ModerationStatus),
		ModerationTime:   p.ModerationTime,
		CreatedAt:        p.CreatedAt,
	}
	if withKey {
		v.ActivationKey = p.ActivationKey
	}
	if p.Account != nil {
		v.Username = p.Account.Username
		v.Email = p.Account.Email
		v.Active = p.Account.Active
	}
	return v
}
