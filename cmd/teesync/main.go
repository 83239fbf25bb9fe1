package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"teesync/internal/booking"
	"teesync/internal/config"
	"teesync/internal/gcal"
	"teesync/internal/ics"
	appLog "teesync/internal/log"
	"teesync/internal/portal"
	"teesync/internal/runner"
	"teesync/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	dryRun     bool
	dumpDir    string
	debug      bool
}

func main() {
	os.Exit(run())
}

func run() int {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("teesync starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return runner.ExitFatal
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if !flags.debug && conf.LogLevel != "" {
		appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		return runner.ExitFatal
	}

	appLog.Info("effective config",
		"portal", conf.Portal.BaseURL,
		"club", conf.Portal.Club,
		"backend", conf.Calendar.Backend,
		"calendar", conf.Calendar.Name,
		"event_name", conf.Calendar.EventName,
		"timezone", conf.Calendar.Timezone,
		"refresh", conf.Refresh,
		"listen", conf.Listen,
		"once", flags.once,
		"dry_run", flags.dryRun,
		"dump", flags.dumpDir,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := buildRunner(ctx, conf, flags)
	if err != nil {
		appLog.Error("failed to initialize", err)
		return runner.ExitFatal
	}

	if flags.once || flags.dryRun || flags.dumpDir != "" {
		return runOnce(ctx, r, conf, flags)
	}
	if err := runDaemon(ctx, r, conf); err != nil {
		appLog.Error("daemon stopped", err)
		return runner.ExitFatal
	}
	appLog.Info("teesync exiting")
	return runner.ExitOK
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/teesync/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one sync and exit")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "Compute and log the plan without changing the calendar (implies --once)")
	flag.StringVar(&cfg.dumpDir, "dump", "", "Write bookings.ics and bookings.png to this directory (implies --once)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

func buildRunner(ctx context.Context, conf *config.Config, flags flagConfig) (*runner.Runner, error) {
	loc := conf.Location()

	creds, err := config.LoadPortalCredentials(conf.Portal.CredentialsFile)
	if err != nil {
		return nil, err
	}
	scraper := &portal.Scraper{
		Options: portal.Options{
			BaseURL:  conf.Portal.BaseURL,
			Club:     conf.Portal.Club,
			ExecPath: conf.Browser.ExecPath,
			Headless: conf.Browser.Headless,
			Timeout:  conf.BrowserTimeout(),
		},
		Username: creds.Username,
		Password: creds.Password,
	}
	if flags.dumpDir != "" {
		if err := os.MkdirAll(flags.dumpDir, 0o755); err != nil {
			return nil, fmt.Errorf("create dump dir: %w", err)
		}
		scraper.ScreenshotPath = filepath.Join(flags.dumpDir, "bookings.png")
	}

	cal, err := buildCalendar(ctx, conf, loc)
	if err != nil {
		return nil, err
	}

	return runner.New(scraper, booking.TextParser{Location: loc}, cal, runner.Options{
		EventName:       conf.Calendar.EventName,
		Location:        conf.Calendar.Location,
		ReminderMinutes: conf.Calendar.ReminderMinutes,
		DryRun:          flags.dryRun,
	}), nil
}

func buildCalendar(ctx context.Context, conf *config.Config, loc *time.Location) (runner.Calendar, error) {
	switch conf.Calendar.Backend {
	case config.BackendICS:
		appLog.Info("using ics calendar backend", "path", conf.Calendar.ICSPath)
		return ics.NewStore(conf.Calendar.ICSPath, loc), nil
	case config.BackendGoogle:
		httpClient, err := gcal.HTTPClient(ctx, gcal.AuthOptions{
			CredentialsFile: conf.Calendar.CredentialsFile,
			TokenFile:       conf.Calendar.TokenFile,
		})
		if err != nil {
			return nil, err
		}
		client, err := gcal.New(ctx, httpClient, gcal.Options{
			CalendarName: conf.Calendar.Name,
			Location:     loc,
			EventName:    conf.Calendar.EventName,
			MaxResults:   conf.Calendar.MaxResults,
		})
		if err != nil {
			return nil, err
		}
		appLog.Info("using google calendar backend", "calendar_id", client.CalendarID())
		return client, nil
	default:
		return nil, fmt.Errorf("unknown calendar backend %q", conf.Calendar.Backend)
	}
}

// runOnce performs a single sync and maps its outcome to an exit code.
func runOnce(ctx context.Context, r *runner.Runner, conf *config.Config, flags flagConfig) int {
	res, err := r.Run(ctx)
	logResult(res, err)

	if flags.dumpDir != "" && res != nil {
		path := filepath.Join(flags.dumpDir, "bookings.ics")
		data := ics.Encode(res.BookingList(), ics.EncodeOptions{
			Summary:         conf.Calendar.EventName,
			Location:        conf.Calendar.Location,
			ReminderMinutes: conf.Calendar.ReminderMinutes,
		})
		if werr := os.WriteFile(path, data, 0o644); werr != nil {
			appLog.Error("failed to write bookings dump", werr, "path", path)
		} else {
			appLog.Info("bookings dumped", "path", path, "bookings", len(res.BookingList()))
		}
	}

	return runner.ExitCode(err)
}

// runDaemon syncs on the configured cron schedule and serves the status API
// until ctx is cancelled. One sync runs immediately at startup.
func runDaemon(ctx context.Context, r *runner.Runner, conf *config.Config) error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(conf.Location()),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)),
	)

	scheduled := func() {
		res, err := r.TryRun(ctx)
		if errors.Is(err, runner.ErrRunInProgress) {
			appLog.Warn("sync skipped; previous run still in progress")
			return
		}
		logResult(res, err)
	}

	id, err := c.AddFunc(conf.Refresh, scheduled)
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", conf.Refresh, err)
	}
	next := func() time.Time { return c.Entry(id).Next }

	c.Start()
	defer func() {
		<-c.Stop().Done()
	}()

	go scheduled()

	return web.StartServer(ctx, conf, r, next)
}

func logResult(res *runner.Result, err error) {
	if res == nil {
		return
	}
	kv := []any{
		"bookings", res.Bookings,
		"managed_events", res.Managed,
		"deleted", res.Deleted,
		"created", res.Created,
		"failed", res.Failed,
		"dry_run", res.DryRun,
		"duration", res.Duration.Round(time.Millisecond),
	}
	if err != nil {
		appLog.Error("sync finished with errors", err, kv...)
		return
	}
	appLog.Info("sync finished", kv...)
}

// cronLogger routes robfig/cron's logging through appLog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
