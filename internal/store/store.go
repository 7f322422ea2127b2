package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hochfrequenz/pep8bot/internal/domain"
	_ "modernc.org/sqlite"
)

var (
	// ErrUserNotFound is returned when no account matches a username
	ErrUserNotFound = errors.New("user not found")
	// ErrCommitNotFound is returned when no commit record matches a sha
	ErrCommitNotFound = errors.New("commit record not found")
)

// Store provides SQLite-backed persistence for accounts, commit records and runs
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, err
	}

	// One connection: the worker is single threaded and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// BusyTimeout is how long a write waits for another process holding the
// database lock before failing with SQLITE_BUSY.
const BusyTimeout = 10 * time.Second

// dsn adds the connection pragmas shared by the worker and pep8bot-ctl.
// Writers queue behind each other instead of failing, readers never block
// in WAL mode, and transactions take the write lock up front so a
// read-then-write transaction cannot lose its snapshot.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + fmt.Sprintf(
		"_pragma=busy_timeout(%d)&_pragma=journal_mode(wal)&_pragma=foreign_keys(1)&_txlock=immediate",
		BusyTimeout.Milliseconds(),
	)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertUser inserts or updates a user and replaces its linked identities
func (s *Store) UpsertUser(u *domain.User) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO users (username, oauth_access_token, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			oauth_access_token = excluded.oauth_access_token
	`, u.Username, nullString(u.AccessToken), time.Now())
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM identities WHERE username = ?`, u.Username); err != nil {
		return err
	}
	for _, id := range u.Identities {
		_, err := tx.Exec(`INSERT INTO identities (username, name, oauth_access_token) VALUES (?, ?, ?)`,
			u.Username, id.Name, nullString(id.AccessToken))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetUser retrieves a user and its linked identities
func (s *Store) GetUser(username string) (*domain.User, error) {
	var token sql.NullString
	err := s.db.QueryRow(`SELECT oauth_access_token FROM users WHERE username = ?`, username).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	if err != nil {
		return nil, err
	}

	u := &domain.User{Username: username, AccessToken: token.String}

	rows, err := s.db.Query(`SELECT name, oauth_access_token FROM identities WHERE username = ? ORDER BY id`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id domain.Identity
		var idToken sql.NullString
		if err := rows.Scan(&id.Name, &idToken); err != nil {
			return nil, err
		}
		id.AccessToken = idToken.String
		u.Identities = append(u.Identities, id)
	}

	return u, rows.Err()
}

// ResolveToken returns the access token to act on behalf of username.
// An empty token with a nil error means the account exists but has none.
func (s *Store) ResolveToken(username string) (string, error) {
	u, err := s.GetUser(username)
	if err != nil {
		return "", err
	}
	return u.Token(), nil
}

// UpsertCommit inserts a commit record or resets an existing one to rec's state
func (s *Store) UpsertCommit(rec *domain.CommitRecord) error {
	now := time.Now()
	if rec.Status == "" {
		rec.Status = domain.StatusPending
	}
	_, err := s.db.Exec(`
		INSERT INTO commits (sha, username, reponame, status, error_count, error_report, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sha) DO UPDATE SET
			username = excluded.username,
			reponame = excluded.reponame,
			status = excluded.status,
			error_count = excluded.error_count,
			error_report = excluded.error_report,
			updated_at = excluded.updated_at
	`,
		rec.SHA,
		rec.Username,
		rec.Reponame,
		string(rec.Status),
		rec.ErrorCount,
		rec.ErrorReport,
		now,
		now,
	)
	return err
}

// GetCommit retrieves a commit record by sha
func (s *Store) GetCommit(sha string) (*domain.CommitRecord, error) {
	return getCommit(s.db, sha)
}

// ListOptions specifies filters for listing commit records
type ListOptions struct {
	Username string
	Reponame string
	Status   domain.Status
	Limit    int
}

// ListCommits returns commit records matching the given options, newest first
func (s *Store) ListCommits(opts ListOptions) ([]*domain.CommitRecord, error) {
	query := `SELECT ` + commitColumns + ` FROM commits WHERE 1=1`
	var args []interface{}

	if opts.Username != "" {
		query += " AND username = ?"
		args = append(args, opts.Username)
	}
	if opts.Reponame != "" {
		query += " AND reponame = ?"
		args = append(args, opts.Reponame)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	query += " ORDER BY updated_at DESC, sha"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commits []*domain.CommitRecord
	for rows.Next() {
		rec, err := scanCommit(rows)
		if err != nil {
			return nil, err
		}
		commits = append(commits, rec)
	}

	return commits, rows.Err()
}

// CountCommits returns the number of commit records per status
func (s *Store) CountCommits() (map[domain.Status]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM commits GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[domain.Status(st)] = n
	}
	return counts, rows.Err()
}

// Tx is the unit of durability for one processed commit
type Tx struct {
	tx *sql.Tx
}

// Begin starts a transaction
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// GetCommit retrieves a commit record inside the transaction
func (t *Tx) GetCommit(sha string) (*domain.CommitRecord, error) {
	return getCommit(t.tx, sha)
}

// SaveCommit writes the record's status, count and report in one statement
func (t *Tx) SaveCommit(rec *domain.CommitRecord) error {
	rec.UpdatedAt = time.Now()
	res, err := t.tx.Exec(`
		UPDATE commits SET status = ?, error_count = ?, error_report = ?, updated_at = ?
		WHERE sha = ?
	`, string(rec.Status), rec.ErrorCount, rec.ErrorReport, rec.UpdatedAt, rec.SHA)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrCommitNotFound, rec.SHA)
	}
	return nil
}

// Commit makes the transaction durable
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction. It is a no-op after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// CreateRun records the start of a task run
func (s *Store) CreateRun(run *domain.Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, username, reponame, clone_url, working_dir, commits_total, commits_done, status, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Username,
		run.Reponame,
		run.CloneURL,
		run.WorkingDir,
		run.CommitsTotal,
		run.CommitsDone,
		string(run.Status),
		run.Error,
		run.StartedAt,
	)
	return err
}

// UpdateRunProgress records the working dir and how many commits are done
func (s *Store) UpdateRunProgress(id, workingDir string, done int) error {
	_, err := s.db.Exec(`UPDATE runs SET working_dir = ?, commits_done = ? WHERE id = ?`, workingDir, done, id)
	return err
}

// FinishRun marks a run completed or failed
func (s *Store) FinishRun(id string, status domain.RunStatus, errText string) error {
	_, err := s.db.Exec(`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), errText, time.Now(), id)
	return err
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(id string) (*domain.Run, error) {
	return scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
}

// ListRuns returns the most recent runs first
func (s *Store) ListRuns(limit int) ([]*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ActiveWorkingDirs returns the working copies of runs still in progress
func (s *Store) ActiveWorkingDirs() ([]string, error) {
	rows, err := s.db.Query(`SELECT working_dir FROM runs WHERE status = ? AND working_dir != ''`, string(domain.RunRunning))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dirs []string
	for rows.Next() {
		var dir string
		if err := rows.Scan(&dir); err != nil {
			return nil, err
		}
		dirs = append(dirs, dir)
	}
	return dirs, rows.Err()
}

const commitColumns = `sha, username, reponame, status, error_count, error_report, created_at, updated_at`

const runColumns = `id, username, reponame, clone_url, working_dir, commits_total, commits_done, status, error, started_at, finished_at`

type queryRower interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func getCommit(q queryRower, sha string) (*domain.CommitRecord, error) {
	rec, err := scanCommit(q.QueryRow(`SELECT `+commitColumns+` FROM commits WHERE sha = ?`, sha))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCommitNotFound, sha)
	}
	return rec, err
}

func scanCommit(row scanner) (*domain.CommitRecord, error) {
	var rec domain.CommitRecord
	var status string

	err := row.Scan(&rec.SHA, &rec.Username, &rec.Reponame, &status, &rec.ErrorCount, &rec.ErrorReport, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = domain.Status(status)

	return &rec, nil
}

func scanRun(row scanner) (*domain.Run, error) {
	var run domain.Run
	var status string
	var workingDir, errText sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&run.ID, &run.Username, &run.Reponame, &run.CloneURL, &workingDir, &run.CommitsTotal, &run.CommitsDone, &status, &errText, &run.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	run.WorkingDir = workingDir.String
	run.Error = errText.String
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}

	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
