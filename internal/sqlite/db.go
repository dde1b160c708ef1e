package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

// RunMigrations creates the schema. Idempotent; safe to run at every
// startup.
func (db *DB) RunMigrations() error {
	migration := `
-- Users table (accounts are seeded from config, never created via API)
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    full_name TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL CHECK(role IN (
        'admin', 'question_submitter', 'ocr_editor', 'ocr_reviewer',
        'rewrite_editor', 'rewrite_reviewer')),
    superuser INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    token_hash TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_token_hash ON users(token_hash);
CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);

-- Questions table
CREATE TABLE IF NOT EXISTS questions (
    id TEXT PRIMARY KEY,
    subject TEXT NOT NULL,
    grade TEXT NOT NULL,
    question_type TEXT NOT NULL,
    source TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',
    images TEXT NOT NULL DEFAULT '[]',

    ocr_raw_question TEXT NOT NULL DEFAULT '',
    ocr_raw_answer TEXT NOT NULL DEFAULT '',
    draft_question TEXT NOT NULL DEFAULT '',
    draft_answer TEXT NOT NULL DEFAULT '',
    accepted_question TEXT NOT NULL DEFAULT '',
    accepted_answer TEXT NOT NULL DEFAULT '',
    ocr_review_status TEXT NOT NULL DEFAULT 'pending'
        CHECK(ocr_review_status IN ('pending', 'approved', 'changes_requested')),
    ocr_review_comment TEXT NOT NULL DEFAULT '',
    ocr_review_by TEXT NOT NULL DEFAULT '',
    ocr_reviewed_at TIMESTAMP,

    prompt_version INTEGER NOT NULL DEFAULT 0,

    ocr_editor_id TEXT NOT NULL DEFAULT '',
    ocr_reviewer_id TEXT NOT NULL DEFAULT '',
    rewrite_editor_id TEXT NOT NULL DEFAULT '',
    rewrite_reviewer_id TEXT NOT NULL DEFAULT '',

    status TEXT NOT NULL CHECK(status IN (
        'new', 'ocr_editing', 'ocr_reviewing', 'ocr_approved',
        'rewrite_generating', 'rewrite_editing', 'rewrite_reviewing',
        'done', 'archived')),

    recognition_epoch INTEGER NOT NULL DEFAULT 0,
    recognition_applied_epoch INTEGER NOT NULL DEFAULT 0,
    recognition_handle TEXT NOT NULL DEFAULT '',
    rewrite_epoch INTEGER NOT NULL DEFAULT 0,
    rewrite_applied_epoch INTEGER NOT NULL DEFAULT 0,
    rewrite_handle TEXT NOT NULL DEFAULT '',

    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    ocr_completed_at TIMESTAMP,
    rewrite_completed_at TIMESTAMP,

    version INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_questions_status ON questions(status);
CREATE INDEX IF NOT EXISTS idx_questions_subject ON questions(subject);
CREATE INDEX IF NOT EXISTS idx_questions_created_at ON questions(created_at);

-- One row per rewrite slot, idx 1..5
CREATE TABLE IF NOT EXISTS rewrite_slots (
    question_id TEXT NOT NULL,
    idx INTEGER NOT NULL CHECK(idx BETWEEN 1 AND 5),
    draft_question TEXT NOT NULL DEFAULT '',
    draft_answer TEXT NOT NULL DEFAULT '',
    accepted_question TEXT NOT NULL DEFAULT '',
    accepted_answer TEXT NOT NULL DEFAULT '',
    edit_comment TEXT NOT NULL DEFAULT '',
    review_status TEXT NOT NULL DEFAULT 'pending'
        CHECK(review_status IN ('pending', 'approved', 'changes_requested')),
    review_comment TEXT NOT NULL DEFAULT '',
    review_by TEXT NOT NULL DEFAULT '',
    reviewed_at TIMESTAMP,
    PRIMARY KEY (question_id, idx),
    FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE
);
`

	if _, err := db.Exec(migration); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
