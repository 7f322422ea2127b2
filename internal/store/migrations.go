package store

const schema = `
CREATE TABLE IF NOT EXISTS users (
    username TEXT PRIMARY KEY,
    oauth_access_token TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS identities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
    name TEXT NOT NULL,
    oauth_access_token TEXT
);

CREATE INDEX IF NOT EXISTS idx_identities_username ON identities(username);

CREATE TABLE IF NOT EXISTS commits (
    sha TEXT PRIMARY KEY,
    username TEXT NOT NULL,
    reponame TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    error_count INTEGER NOT NULL DEFAULT 0,
    error_report TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_commits_repo ON commits(username, reponame);
CREATE INDEX IF NOT EXISTS idx_commits_status ON commits(status);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL,
    reponame TEXT NOT NULL,
    clone_url TEXT NOT NULL,
    working_dir TEXT,
    commits_total INTEGER NOT NULL DEFAULT 0,
    commits_done INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    error TEXT,
    started_at TIMESTAMP,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`
