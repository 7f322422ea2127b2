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

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/pep8bot/internal/checker"
	"github.com/hochfrequenz/pep8bot/internal/config"
	"github.com/hochfrequenz/pep8bot/internal/logging"
	"github.com/hochfrequenz/pep8bot/internal/metrics"
	"github.com/hochfrequenz/pep8bot/internal/notify"
	"github.com/hochfrequenz/pep8bot/internal/queue"
	"github.com/hochfrequenz/pep8bot/internal/status"
	"github.com/hochfrequenz/pep8bot/internal/store"
	"github.com/hochfrequenz/pep8bot/internal/worker"
	"github.com/hochfrequenz/pep8bot/internal/workspace"
)

var errUsage = errors.New("usage")

var rootCmd = &cobra.Command{
	Use:   "pep8bot-worker <config_uri>",
	Short: "PEP8bot worker - checks queued commits and reports their status",
	Long: `PEP8bot worker waits for tasks on the commits queue, clones each
repository, runs the style checker over every commit and posts the result
as a commit status.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errUsage
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stdout, filepath.Base(os.Args[0]))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func printUsage(w io.Writer, name string) {
	fmt.Fprintf(w, "usage: %s <config_uri>\n(example: \"%s config.toml\")\n", name, name)
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFile(args[0])
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Worker.ScratchDir, 0755); err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("creating database dir: %w", err)
	}

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to redis at %s: %w", cfg.Queue.RedisAddr, err)
	}

	reporter, err := status.NewGitHub(status.GitHubConfig{
		APIURL:    cfg.GitHub.APIURL,
		Context:   cfg.GitHub.StatusContext,
		TargetURL: cfg.GitHub.TargetURL,
	})
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Listen != "" {
		m = metrics.New()
	}

	w := worker.New(
		worker.Config{
			SleepInterval: cfg.Worker.SleepInterval.Std(),
			Extension:     cfg.Checker.Extension,
			WebURL:        cfg.GitHub.WebURL,
		},
		queue.NewRedis(rdb, cfg.Worker.QueueName, cfg.Queue.PollInterval.Std()),
		st,
		workspace.NewManager(cfg.Worker.ScratchDir, cfg.Worker.KeepWorkingCopies),
		checker.New(checker.NewPyCodeStyle(cfg.Checker.Command, cfg.Checker.BatchSize)),
		reporter,
		worker.WithLogger(logger.With().Str("component", "worker").Logger()),
		worker.WithNotifier(newNotifier(cfg)),
		worker.WithMetrics(m),
	)

	logger.Info().
		Str("queue", cfg.Worker.QueueName).
		Str("scratch_dir", cfg.Worker.ScratchDir).
		Msg("worker started")

	g, gctx := errgroup.WithContext(ctx)
	if m != nil {
		g.Go(func() error {
			return m.Serve(gctx, cfg.Metrics.Listen, logger.With().Str("component", "metrics").Logger())
		})
	}
	g.Go(func() error {
		return w.Run(gctx)
	})

	err = g.Wait()
	logShutdown(logger, err)
	return err
}

func newNotifier(cfg *config.Config) notify.Notifier {
	if cfg.Notifications.SlackWebhook == "" {
		return notify.NoopNotifier{}
	}
	return notify.NewSlackNotifier(cfg.Notifications.SlackWebhook)
}

func logShutdown(logger zerolog.Logger, err error) {
	if err != nil {
		logger.Error().Err(err).Msg("worker stopped")
		return
	}
	logger.Info().Msg("worker stopped")
}
