// Package worker runs the task loop: it pulls tasks off the queue, clones
// each repository once and checks its commits one by one.
package worker

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hochfrequenz/pep8bot/internal/domain"
	"github.com/hochfrequenz/pep8bot/internal/metrics"
	"github.com/hochfrequenz/pep8bot/internal/notify"
	"github.com/hochfrequenz/pep8bot/internal/queue"
	"github.com/hochfrequenz/pep8bot/internal/report"
	"github.com/hochfrequenz/pep8bot/internal/status"
	"github.com/hochfrequenz/pep8bot/internal/store"
	"github.com/hochfrequenz/pep8bot/internal/workspace"
)

// Store is the persistence the worker needs
type Store interface {
	ResolveToken(username string) (string, error)
	GetCommit(sha string) (*domain.CommitRecord, error)
	Begin(ctx context.Context) (*store.Tx, error)
	CreateRun(run *domain.Run) error
	UpdateRunProgress(id, workingDir string, done int) error
	FinishRun(id string, status domain.RunStatus, errText string) error
}

// Materializer provides working copies of repositories
type Materializer interface {
	Clone(ctx context.Context, url, owner, repo string) (*workspace.WorkingCopy, error)
	Release(wc *workspace.WorkingCopy) error
}

// Checker analyzes source files
type Checker interface {
	Check(ctx context.Context, dir string, files []string, configFile string) (*domain.AnalysisResult, error)
}

// Config holds the worker settings
type Config struct {
	// SleepInterval is waited after dequeuing, before processing
	SleepInterval time.Duration
	// Extension selects the files handed to the checker
	Extension string
	// WebURL is the hosting service's web root used in report links
	WebURL string
}

// Worker processes tasks from a queue
type Worker struct {
	cfg      Config
	queue    queue.Queue
	store    Store
	repos    Materializer
	checker  Checker
	reporter status.Reporter
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures optional worker collaborators
type Option func(*Worker)

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithNotifier sets where commit errors are announced
func WithNotifier(n notify.Notifier) Option {
	return func(w *Worker) { w.notifier = n }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// New creates a worker
func New(cfg Config, q queue.Queue, st Store, repos Materializer, chk Checker, rep status.Reporter, opts ...Option) *Worker {
	if cfg.Extension == "" {
		cfg.Extension = ".py"
	}
	w := &Worker{
		cfg:      cfg,
		queue:    q,
		store:    st,
		repos:    repos,
		checker:  chk,
		reporter: rep,
		notifier: notify.NoopNotifier{},
		logger:   zerolog.Nop(),
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run processes tasks until ctx is cancelled or a task fails. Cancellation
// is a clean shutdown and returns nil.
func (w *Worker) Run(ctx context.Context) error {
	for {
		w.logger.Debug().Msg("waiting on a task")
		task, err := w.queue.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, queue.ErrMalformed) {
				w.logger.Warn().Err(err).Msg("skipping malformed task")
				continue
			}
			return fmt.Errorf("waiting for task: %w", err)
		}

		w.logger.Debug().Stringer("task", task).Dur("sleep", w.cfg.SleepInterval).Msg("popped a task")
		if err := w.sleep(ctx, w.cfg.SleepInterval); err != nil {
			return nil
		}

		if err := w.ProcessTask(ctx, task); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// ProcessTask clones the task's repository and checks each commit in
// order. The first commit that fails aborts the task; commits before it
// keep their results.
func (w *Worker) ProcessTask(ctx context.Context, task *domain.Task) error {
	run := &domain.Run{
		ID:           uuid.New().String(),
		Username:     task.Username,
		Reponame:     task.Reponame,
		CloneURL:     task.CloneURL,
		CommitsTotal: len(task.Commits),
		Status:       domain.RunRunning,
		StartedAt:    time.Now(),
	}
	if err := w.store.CreateRun(run); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	log := w.logger.With().
		Str("run_id", run.ID).
		Str("owner", task.Username).
		Str("repo", task.Reponame).
		Logger()

	err := w.processTask(ctx, run, task, log)

	result, runStatus, errText := metrics.TaskCompleted, domain.RunCompleted, ""
	if err != nil {
		result, runStatus, errText = metrics.TaskFailed, domain.RunFailed, err.Error()
		log.Error().Err(err).Msg("task failed")
	} else {
		log.Info().Int("commits", len(task.Commits)).Msg("task completed")
	}
	w.metrics.ObserveTask(result)
	if ferr := w.store.FinishRun(run.ID, runStatus, errText); ferr != nil {
		log.Error().Err(ferr).Msg("failed to record run result")
	}
	return err
}

func (w *Worker) processTask(ctx context.Context, run *domain.Run, task *domain.Task, log zerolog.Logger) error {
	token, err := w.store.ResolveToken(task.Username)
	if err != nil {
		return fmt.Errorf("resolving token for %s: %w", task.Username, err)
	}
	if token == "" {
		log.Warn().Msg("no access token found, status reports may be rejected")
		if err := w.notifier.Send(ctx, notify.MissingToken(task.Username, task.Reponame)); err != nil {
			log.Warn().Err(err).Msg("failed to send notification")
		}
	}

	wc, err := w.repos.Clone(ctx, task.CloneURL, task.Username, task.Reponame)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.repos.Release(wc); err != nil {
			log.Warn().Err(err).Str("dir", wc.Root).Msg("failed to remove working copy")
		}
	}()
	log.Info().Str("dir", wc.Root).Msg("cloned repository")
	w.progress(run, wc.Root, 0, log)

	for i, sha := range task.Commits {
		if err := w.checkCommit(ctx, task, wc, sha, token, log.With().Str("sha", sha).Logger()); err != nil {
			return err
		}
		w.progress(run, wc.Root, i+1, log)
	}
	return nil
}

func (w *Worker) progress(run *domain.Run, dir string, done int, log zerolog.Logger) {
	if err := w.store.UpdateRunProgress(run.ID, dir, done); err != nil {
		log.Warn().Err(err).Msg("failed to record run progress")
	}
}

// checkCommit checks out and analyzes one commit, then records and
// reports the outcome inside its own transaction. The transaction only
// spans the read-modify-write of the record and the status post, and is
// committed whether the commit succeeded or failed.
func (w *Worker) checkCommit(ctx context.Context, task *domain.Task, wc *workspace.WorkingCopy, sha, token string, log zerolog.Logger) error {
	start := time.Now()

	result, err := w.analyzeCommit(ctx, wc, sha)
	// Interrupted: leave the record as it was
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	// The transaction outlives cancellation; it is ended explicitly below
	tx, berr := w.store.Begin(context.WithoutCancel(ctx))
	if berr != nil {
		return errors.Join(err, fmt.Errorf("starting transaction for %s: %w", sha, berr))
	}
	defer tx.Rollback()

	var outcome domain.Outcome
	if err == nil {
		outcome, err = w.processCommit(ctx, tx, task, wc, sha, token, result)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = w.failCommit(ctx, tx, task, sha, token, err, log)
		w.metrics.ObserveCommit(domain.StatusError, time.Since(start), 0)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s: %w", sha, err)
	}
	w.metrics.ObserveCommit(outcome.Status, time.Since(start), outcome.ErrorCount)
	log.Info().Str("status", string(outcome.Status)).Int("errors", outcome.ErrorCount).Msg("checked commit")
	return nil
}

// analyzeCommit checks out sha and runs the checker over its source files.
// Commits without a record are rejected before any work is done.
func (w *Worker) analyzeCommit(ctx context.Context, wc *workspace.WorkingCopy, sha string) (*domain.AnalysisResult, error) {
	if _, err := w.store.GetCommit(sha); err != nil {
		return nil, err
	}

	if err := wc.Checkout(ctx, sha); err != nil {
		return nil, err
	}

	files, err := collect(wc.SourceFiles(w.cfg.Extension))
	if err != nil {
		return nil, fmt.Errorf("listing source files: %w", err)
	}

	return w.checker.Check(ctx, wc.Root, files, wc.ConfigFile())
}

// processCommit persists the analysis outcome for sha and reports it
func (w *Worker) processCommit(ctx context.Context, tx *store.Tx, task *domain.Task, wc *workspace.WorkingCopy, sha, token string, result *domain.AnalysisResult) (domain.Outcome, error) {
	rec, err := tx.GetCommit(sha)
	if err != nil {
		return domain.Outcome{}, err
	}

	lines := report.Format(result, report.Target{
		BaseURL: w.cfg.WebURL,
		Owner:   task.Username,
		Repo:    task.Reponame,
		SHA:     sha,
		Root:    wc.Root,
	})
	outcome := domain.Outcome{
		Status:      result.Status(),
		ErrorCount:  result.TotalErrors,
		ErrorReport: report.Join(lines),
	}

	rec.Apply(outcome)
	if err := tx.SaveCommit(rec); err != nil {
		return domain.Outcome{}, fmt.Errorf("saving %s: %w", sha, err)
	}

	desc := status.Describe(outcome.Status, outcome.ErrorCount)
	if err := w.reporter.PostStatus(ctx, task.Username, task.Reponame, sha, outcome.Status, token, desc); err != nil {
		return domain.Outcome{}, err
	}
	return outcome, nil
}

// failCommit records and reports the error status for sha. Failures here
// are joined to cause and never replace it.
func (w *Worker) failCommit(ctx context.Context, tx *store.Tx, task *domain.Task, sha, token string, cause error, log zerolog.Logger) error {
	log.Error().Err(cause).Msg("commit failed")
	errs := []error{fmt.Errorf("checking %s: %w", sha, cause)}

	rec := &domain.CommitRecord{SHA: sha}
	rec.Apply(domain.ErrorOutcome())
	if err := tx.SaveCommit(rec); err != nil && !errors.Is(err, store.ErrCommitNotFound) {
		errs = append(errs, fmt.Errorf("saving error status: %w", err))
	}

	desc := status.Describe(domain.StatusError, 0)
	if err := w.reporter.PostStatus(ctx, task.Username, task.Reponame, sha, domain.StatusError, token, desc); err != nil {
		log.Error().Err(err).Msg("failed to report error status")
		errs = append(errs, err)
	}

	if err := tx.Commit(); err != nil {
		errs = append(errs, fmt.Errorf("committing %s: %w", sha, err))
	}

	if err := w.notifier.Send(ctx, notify.CommitError(task.Username, task.Reponame, sha, w.cfg.WebURL, cause)); err != nil {
		log.Warn().Err(err).Msg("failed to send notification")
	}

	return errors.Join(errs...)
}

func collect(seq iter.Seq2[string, error]) ([]string, error) {
	var files []string
	for f, err := range seq {
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}
