// Command autonomyd runs the autonomy orchestrator daemon: the periodic
// scan cycle, the simulation batch loop, settings seeding, and evidence
// export.
//
// Usage:
//
//	autonomyd [serve]          run the scan and simulation loops
//	autonomyd once             run a single scan cycle and exit
//	autonomyd export [-hours]  write an evidence pack zip to stdout-adjacent file
//	autonomyd apply-profile <name>
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/complyon/autonomy/pkg/audit"
	"github.com/complyon/autonomy/pkg/config"
	"github.com/complyon/autonomy/pkg/detect"
	"github.com/complyon/autonomy/pkg/guardrail"
	"github.com/complyon/autonomy/pkg/observability"
	"github.com/complyon/autonomy/pkg/orchestrator"
	"github.com/complyon/autonomy/pkg/providers"
	"github.com/complyon/autonomy/pkg/settings"
	"github.com/complyon/autonomy/pkg/simulate"
	"github.com/complyon/autonomy/pkg/store"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver
)

func main() {
	os.Exit(run(os.Args, os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	cmd := "serve"
	rest := args[1:]
	if len(rest) > 0 && rest[0][0] != '-' {
		cmd = rest[0]
		rest = rest[1:]
	}

	switch cmd {
	case "serve":
		return runServe(cfg, logger, rest, false)
	case "once":
		return runServe(cfg, logger, rest, true)
	case "export":
		return runExport(cfg, logger, rest, stderr)
	case "apply-profile":
		return runApplyProfile(cfg, logger, rest, stderr)
	case "help", "--help", "-h":
		printUsage(stderr)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", cmd)
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: autonomyd [serve|once|export|apply-profile <name>]")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func openStore(cfg *config.Config) (store.Store, *sql.DB, error) {
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		return store.NewPostgres(db), db, nil
	}
	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	st, err := store.NewSQLite(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return st, db, nil
}

func runServe(cfg *config.Config, logger *slog.Logger, args []string, once bool) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.BoolVar(&once, "once", once, "run a single scan cycle and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, db, err := openStore(cfg)
	if err != nil {
		logger.Error("store init failed", "error", err)
		return 1
	}
	defer db.Close()

	if err := st.SeedSettings(ctx, settings.Defaults()); err != nil {
		logger.Error("settings seed failed", "error", err)
		return 1
	}
	if cfg.Profile != "" {
		profile, err := config.LoadProfile(cfg.ProfilesDir, cfg.Profile)
		if err != nil {
			logger.Error("profile load failed", "profile", cfg.Profile, "error", err)
			return 1
		}
		if err := profile.Apply(ctx, settings.NewService(st)); err != nil {
			logger.Error("profile apply failed", "profile", cfg.Profile, "error", err)
			return 1
		}
		logger.Info("autonomy profile applied", "profile", cfg.Profile)
	}

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:  "autonomyd",
		OTLPEndpoint: cfg.OTLPEndpoint,
		Enabled:      cfg.OTLPEndpoint != "",
		Insecure:     true,
	})
	if err != nil {
		logger.Error("observability init failed", "error", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(sctx); err != nil {
			logger.Warn("observability shutdown", "error", err)
		}
	}()

	var locker orchestrator.ScanLocker = orchestrator.NewMutexLocker()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("redis url parse failed", "error", err)
			return 1
		}
		locker = orchestrator.NewRedisLocker(redis.NewClient(opts), "autonomy:scan_lock", 0)
	}

	dialect := providers.DialectSQLite
	if cfg.DatabaseURL != "" {
		dialect = providers.DialectPostgres
	}
	deps := providers.NewSQL(db, dialect)

	guard := guardrail.NewEvaluator(st, st, logger)
	runner := detect.NewRunner(detect.DefaultDetectors(), logger)
	orch := orchestrator.New(st, deps, runner, guard, locker, obs, logger)
	sim, err := simulate.New(st, deps, guard, logger)
	if err != nil {
		logger.Error("simulator init failed", "error", err)
		return 1
	}

	if once {
		if _, err := orch.RunScanCycle(ctx); err != nil {
			logger.Error("scan cycle failed", "error", err)
			return 1
		}
		return 0
	}

	logger.Info("autonomyd starting",
		"scan_interval", cfg.ScanInterval,
		"simulation_interval", cfg.SimulationInterval,
	)

	scanTicker := time.NewTicker(cfg.ScanInterval)
	defer scanTicker.Stop()
	simTicker := time.NewTicker(cfg.SimulationInterval)
	defer simTicker.Stop()

	// First scan immediately; tickers take over afterward.
	if _, err := orch.RunScanCycle(ctx); err != nil {
		logger.Error("scan cycle failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("autonomyd stopping")
			return 0
		case <-scanTicker.C:
			if _, err := orch.RunScanCycle(ctx); err != nil {
				logger.Error("scan cycle failed", "error", err)
			}
		case <-simTicker.C:
			snap, err := settings.Load(ctx, st)
			if err != nil {
				logger.Error("settings load failed", "error", err)
				continue
			}
			if _, err := sim.RunBatch(ctx, snap); err != nil {
				logger.Error("simulation batch failed", "error", err)
			}
		}
	}
}

func runExport(cfg *config.Config, logger *slog.Logger, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	hours := fs.Int("hours", 24, "evidence window in hours, ending now")
	out := fs.String("out", "evidence.zip", "output file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	st, db, err := openStore(cfg)
	if err != nil {
		logger.Error("store init failed", "error", err)
		return 1
	}
	defer db.Close()

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(stderr, "create %s: %v\n", *out, err)
		return 1
	}
	defer f.Close()

	until := time.Now().UTC()
	since := until.Add(-time.Duration(*hours) * time.Hour)
	manifest, err := audit.NewExporter(st, st).Export(ctx, f, since, until)
	if err != nil {
		fmt.Fprintf(stderr, "export: %v\n", err)
		return 1
	}
	logger.Info("evidence pack written",
		"file", *out,
		"scan_logs", manifest.ScanLogs,
		"violations", manifest.Violations,
	)
	return 0
}

func runApplyProfile(cfg *config.Config, logger *slog.Logger, args []string, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: autonomyd apply-profile <name>")
		return 2
	}
	ctx := context.Background()
	st, db, err := openStore(cfg)
	if err != nil {
		logger.Error("store init failed", "error", err)
		return 1
	}
	defer db.Close()

	if err := st.SeedSettings(ctx, settings.Defaults()); err != nil {
		logger.Error("settings seed failed", "error", err)
		return 1
	}
	profile, err := config.LoadProfile(cfg.ProfilesDir, args[0])
	if err != nil {
		fmt.Fprintf(stderr, "load profile: %v\n", err)
		return 1
	}
	if err := profile.Apply(ctx, settings.NewService(st)); err != nil {
		fmt.Fprintf(stderr, "apply profile: %v\n", err)
		return 1
	}
	logger.Info("autonomy profile applied", "profile", profile.Name)
	return 0
}
