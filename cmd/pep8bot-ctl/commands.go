package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/pep8bot/internal/config"
	"github.com/hochfrequenz/pep8bot/internal/domain"
	"github.com/hochfrequenz/pep8bot/internal/queue"
	"github.com/hochfrequenz/pep8bot/internal/store"
	"github.com/hochfrequenz/pep8bot/internal/workspace"
)

var (
	enqueueNoRecord bool
	listOwner       string
	listRepo        string
	listStatus      string
	listLimit       int
	runsLimit       int
	userToken       string
	userIdentities  []string
	pruneDryRun     bool
	pruneForce      bool
)

func init() {
	// enqueue command
	enqueueCmd := &cobra.Command{
		Use:   "enqueue OWNER REPO CLONE_URL SHA...",
		Short: "Queue commits of a repository for checking",
		Args:  cobra.MinimumNArgs(3),
		RunE:  runEnqueue,
	}
	enqueueCmd.Flags().BoolVar(&enqueueNoRecord, "no-record", false, "do not create pending commit records")
	rootCmd.AddCommand(enqueueCmd)

	// status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue length and commit counts",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	// commits command
	commitsCmd := &cobra.Command{
		Use:   "commits",
		Short: "List commit records",
		RunE:  runCommits,
	}
	commitsCmd.Flags().StringVar(&listOwner, "owner", "", "filter by owner")
	commitsCmd.Flags().StringVar(&listRepo, "repo", "", "filter by repository")
	commitsCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	commitsCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum number of records")
	rootCmd.AddCommand(commitsCmd)

	// show command
	showCmd := &cobra.Command{
		Use:   "show SHA",
		Short: "Show the error report of a commit",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	rootCmd.AddCommand(showCmd)

	// runs command
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent task runs",
		RunE:  runRuns,
	}
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs")
	rootCmd.AddCommand(runsCmd)

	// add-user command
	addUserCmd := &cobra.Command{
		Use:   "add-user USERNAME",
		Short: "Register an account and its access tokens",
		Args:  cobra.ExactArgs(1),
		RunE:  runAddUser,
	}
	addUserCmd.Flags().StringVar(&userToken, "token", "", "access token of the account")
	addUserCmd.Flags().StringArrayVar(&userIdentities, "identity", nil, "linked identity as NAME or NAME=TOKEN (repeatable)")
	rootCmd.AddCommand(addUserCmd)

	// prune command
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove working copies left in the scratch dir",
		Long: `Remove working copies left in the scratch dir.

Working copies of runs still marked running are skipped, since the worker
may be checking them. Use --force to remove them as well, for example after
the worker crashed.`,
		RunE: runPrune,
	}
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "only list what would be removed")
	pruneCmd.Flags().BoolVar(&pruneForce, "force", false, "also remove working copies of running tasks")
	rootCmd.AddCommand(pruneCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return nil, err
	}
	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return st, nil
}

func openQueue(cfg *config.Config) (*queue.Redis, *redis.Client) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})
	return queue.NewRedis(rdb, cfg.Worker.QueueName, cfg.Queue.PollInterval.Std()), rdb
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	task := &domain.Task{
		Username: args[0],
		Reponame: args[1],
		CloneURL: args[2],
		Commits:  args[3:],
	}
	if err := task.Validate(); err != nil {
		return err
	}

	if !enqueueNoRecord {
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		for _, sha := range task.Commits {
			rec := &domain.CommitRecord{SHA: sha, Username: task.Username, Reponame: task.Reponame}
			if err := st.UpsertCommit(rec); err != nil {
				return fmt.Errorf("recording %s: %w", sha, err)
			}
		}
	}

	q, rdb := openQueue(cfg)
	defer rdb.Close()

	urn, err := q.Enqueue(cmd.Context(), task)
	if err != nil {
		return err
	}

	fmt.Printf("Queued %s with %d commits as %s\n", task, len(task.Commits), urn)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	q, rdb := openQueue(cfg)
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	pending, err := q.Len(ctx)
	if err != nil {
		return fmt.Errorf("reading queue %s: %w", q.Key(), err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	counts, err := st.CountCommits()
	if err != nil {
		return err
	}

	fmt.Println(renderStatus(q.Key(), pending, counts))
	return nil
}

func runCommits(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	status := domain.Status(listStatus)
	if status != "" && !status.Valid() {
		return fmt.Errorf("unknown status %q", listStatus)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.ListCommits(store.ListOptions{
		Username: listOwner,
		Reponame: listRepo,
		Status:   status,
		Limit:    listLimit,
	})
	if err != nil {
		return err
	}

	if len(recs) == 0 {
		fmt.Println("No commit records")
		return nil
	}
	return writeCommits(os.Stdout, recs, time.Now())
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.GetCommit(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s %s/%s %s (%d errors)\n", rec.SHA, rec.Username, rec.Reponame,
		styleStatus(rec.Status), rec.ErrorCount)
	if rec.ErrorReport != "" {
		fmt.Println(rec.ErrorReport)
	}
	return nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(runsLimit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}
	return writeRuns(os.Stdout, runs, time.Now())
}

func runAddUser(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	user := &domain.User{Username: args[0], AccessToken: userToken}
	for _, raw := range userIdentities {
		id, err := parseIdentity(raw)
		if err != nil {
			return err
		}
		user.Identities = append(user.Identities, id)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.UpsertUser(user); err != nil {
		return fmt.Errorf("saving %s: %w", user.Username, err)
	}

	if user.Token() == "" {
		fmt.Printf("Saved %s (no access token, status reports will be unauthenticated)\n", user.Username)
	} else {
		fmt.Printf("Saved %s with %d linked identities\n", user.Username, len(user.Identities))
	}
	return nil
}

// parseIdentity parses NAME or NAME=TOKEN
func parseIdentity(raw string) (domain.Identity, error) {
	name, token, _ := strings.Cut(raw, "=")
	if name == "" {
		return domain.Identity{}, fmt.Errorf("invalid identity %q: name is required", raw)
	}
	return domain.Identity{Name: name, AccessToken: token}, nil
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mgr := workspace.NewManager(cfg.Worker.ScratchDir, false)
	paths, err := mgr.List()
	if err != nil {
		return err
	}

	if !pruneForce {
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		active, err := st.ActiveWorkingDirs()
		st.Close()
		if err != nil {
			return err
		}
		var skipped []string
		paths, skipped = splitActive(paths, active)
		for _, path := range skipped {
			fmt.Printf("  %s (in use, skipped)\n", path)
		}
	}

	var total uint64
	for _, path := range paths {
		size := dirSize(path)
		total += size
		fmt.Printf("  %s (%s)\n", path, humanize.Bytes(size))
		if pruneDryRun {
			continue
		}
		if err := mgr.Release(&workspace.WorkingCopy{Root: path}); err != nil {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}

	verb := "Removed"
	if pruneDryRun {
		verb = "Would remove"
	}
	fmt.Printf("%s %d working copies (%s)\n", verb, len(paths), humanize.Bytes(total))
	return nil
}

// splitActive separates working copies still used by a running task from
// the ones that can be removed
func splitActive(paths, active []string) (idle, inUse []string) {
	busy := make(map[string]bool, len(active))
	for _, dir := range active {
		busy[absPath(dir)] = true
	}
	for _, path := range paths {
		if busy[absPath(path)] {
			inUse = append(inUse, path)
		} else {
			idle = append(idle, path)
		}
	}
	return idle, inUse
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func dirSize(root string) uint64 {
	var size uint64
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if info, err := d.Info(); err == nil && info.Mode().IsRegular() {
			size += uint64(info.Size())
		}
		return nil
	})
	return size
}
