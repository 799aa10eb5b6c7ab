package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	_ "golang.org/x/crypto/x509roots/fallback"

	"pointsweep/internal/adapter/driven/jsonfile"
	"pointsweep/internal/adapter/driven/push"
	"pointsweep/internal/adapter/driven/remote"
	"pointsweep/internal/adapter/driven/report"
	"pointsweep/internal/adapter/driven/sqlite"
	"pointsweep/internal/application"
	"pointsweep/internal/config"
	"pointsweep/internal/domain/model"
	"pointsweep/internal/domain/port/driven"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pointsweep",
		Short:         "Unattended rewards portal runs for multiple accounts",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default pointsweep.yaml)")
	root.AddCommand(newRunCmd(), newWorkerCmd(), newDoctorCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every configured account once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			accounts, err := config.LoadAccounts(cfg.AccountsFile)
			if err != nil {
				return err
			}
			logger.Info("run starting", "accounts", len(accounts), "workers", cfg.Workers)

			if cfg.Workers <= 1 {
				return runSlice(ctx, cfg, logger, accounts)
			}
			var extra []string
			if cfgFile != "" {
				extra = append(extra, "--config", cfgFile)
			}
			return application.NewDispatcher(logger).Dispatch(ctx, len(accounts), cfg.Workers, extra...)
		},
	}
}

func newWorkerCmd() *cobra.Command {
	var offset, count int
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run a contiguous slice of the accounts list",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			accounts, err := config.LoadAccounts(cfg.AccountsFile)
			if err != nil {
				return err
			}
			if offset < 0 || count < 1 || offset+count > len(accounts) {
				return fmt.Errorf("slice [%d, %d) out of range for %d accounts", offset, offset+count, len(accounts))
			}
			logger = logger.With("offset", offset, "count", count)
			return runSlice(ctx, cfg, logger, accounts[offset:offset+count])
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "first account index")
	cmd.Flags().IntVar(&count, "count", 0, "number of accounts")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, accounts file, state backend and sidecar",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Check", "Status"})

			failed := false
			check := func(name string, err error) {
				if err != nil {
					failed = true
					t.AppendRow(table.Row{name, fmt.Sprintf("FAIL: %v", err)})
					return
				}
				t.AppendRow(table.Row{name, "ok"})
			}

			cfg, err := config.Load(cfgFile)
			check("config", err)
			if cfg != nil {
				_, err = config.LoadAccounts(cfg.AccountsFile)
				check("accounts file", err)
				check("state backend", checkState(cfg))
				check("automation sidecar", checkSidecar(cfg.Surface.BaseURL))
			}

			t.Render()
			if failed {
				return fmt.Errorf("doctor found problems")
			}
			return nil
		},
	}
}

func checkState(cfg *config.Config) error {
	switch cfg.State.Backend {
	case "sqlite":
		db, err := sqlite.NewDB(cfg.State.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		return sqlite.RunMigrations(db.Writer)
	case "json":
		return os.MkdirAll(cfg.State.Path, 0o755)
	}
	return fmt.Errorf("unknown backend %q", cfg.State.Backend)
}

func checkSidecar(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(baseURL + "/healthz")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("sidecar unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cfg.Log), nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runSlice wires the full runtime and processes the given accounts in this
// process.
func runSlice(ctx context.Context, cfg *config.Config, logger *slog.Logger, accounts []model.Account) error {
	// 1. State store.
	store, cleanup, err := newStateStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// 2. Notification sinks.
	notifier := newNotifier(cfg, logger)

	// 3. Core services.
	loginCfg := application.DefaultLoginConfig()
	loginCfg.NavigationTimeout = cfg.Login.NavigationTimeout
	loginCfg.TwoFactorPollInterval = cfg.Login.TwoFactorPollInterval
	loginCfg.TwoFactorTimeout = cfg.Login.TwoFactorTimeout
	loginCfg.PostLoginTimeout = cfg.Login.PostLoginTimeout
	login := application.NewLoginService(loginCfg, notifier, logger)
	tokens := application.NewTokenService(application.DefaultTokenConfig(), logger)
	dashboard := application.NewDashboardReader(application.DefaultDashboardConfig(), logger)
	ledger := application.NewLedger(store, logger)
	breaker := application.NewCircuitBreaker(store, logger)

	// 4. Automation surface.
	browser := remote.NewFactory(remote.Config{BaseURL: cfg.Surface.BaseURL}, logger)

	// 5. Result reporting.
	reporter := newReporter(cfg)

	// 6. Orchestrator.
	runner := application.NewRunner(application.RunnerDeps{
		Browser:   browser,
		Login:     login,
		Tokens:    tokens,
		Dashboard: dashboard,
		Pipeline:  application.NoopPipeline{},
		Ledger:    ledger,
		Breaker:   breaker,
		Notifier:  notifier,
		Reporter:  reporter,
	}, application.RunnerConfig{RunOnZeroPoints: cfg.RunOnZeroPoints}, logger)

	return runner.RunAccounts(ctx, accounts)
}

func newStateStore(cfg *config.Config) (driven.StateStore, func(), error) {
	switch cfg.State.Backend {
	case "json":
		return jsonfile.NewStore(cfg.State.Path), func() {}, nil
	default:
		db, err := sqlite.NewDB(cfg.State.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open state database: %w", err)
		}
		if err := sqlite.RunMigrations(db.Writer); err != nil {
			db.Close()
			return nil, nil, err
		}
		return sqlite.NewStateStore(db), func() { db.Close() }, nil
	}
}

func newNotifier(cfg *config.Config, logger *slog.Logger) driven.Notifier {
	var sinks push.Multi
	if cfg.Ntfy.Topic != "" {
		sinks = append(sinks, push.NewNtfy(push.NtfyConfig{
			ServerURL: cfg.Ntfy.ServerURL,
			Topic:     cfg.Ntfy.Topic,
			Token:     cfg.Ntfy.Token,
		}, logger))
	}
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, push.NewWebhook(cfg.Webhook.URL, logger))
	}
	if len(sinks) == 0 {
		return push.Nop{}
	}
	return sinks
}

func newReporter(cfg *config.Config) driven.Reporter {
	reporters := report.Multi{report.NewConsole(os.Stdout)}
	if cfg.Webhook.URL != "" {
		reporters = append(reporters, report.NewWebhook(cfg.Webhook.URL))
	}
	return reporters
}
