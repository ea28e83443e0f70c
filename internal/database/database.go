package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Project sync outcomes
const (
	StatusSynced     = "synced"
	StatusNoIssues   = "no-issues"
	StatusFailed     = "failed"
	StatusRolledBack = "rolled-back"
)

// DB represents our database connection
type DB struct {
	*sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates the database tables if they don't exist
func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		organization TEXT,
		started_at TIMESTAMP,
		finished_at TIMESTAMP,
		projects_total INTEGER DEFAULT 0,
		projects_failed INTEGER DEFAULT 0,
		findings_uploaded INTEGER DEFAULT 0,
		findings_failed INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS project_syncs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		project_key TEXT,
		project_name TEXT,
		product_id INTEGER,
		engagement_id INTEGER,
		engagement_created BOOLEAN,
		test_id INTEGER,
		issues_found INTEGER,
		findings_uploaded INTEGER,
		status TEXT,
		failed_stage TEXT,
		error TEXT,
		synced_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS findings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		project_key TEXT,
		issue_key TEXT,
		finding_id INTEGER,
		severity TEXT,
		uploaded_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_project_syncs_run ON project_syncs(run_id);
	CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id);
	CREATE INDEX IF NOT EXISTS idx_findings_issue ON findings(issue_key);
	`

	_, err := db.Exec(schema)
	return err
}

// Run represents a row in the runs table
type Run struct {
	ID               string     `json:"id"`
	Organization     string     `json:"organization"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	ProjectsTotal    int        `json:"projects_total"`
	ProjectsFailed   int        `json:"projects_failed"`
	FindingsUploaded int        `json:"findings_uploaded"`
	FindingsFailed   int        `json:"findings_failed"`
}

// ProjectSync represents the outcome of one project within a run
type ProjectSync struct {
	ID                int64     `json:"id"`
	RunID             string    `json:"run_id"`
	ProjectKey        string    `json:"project_key"`
	ProjectName       string    `json:"project_name"`
	ProductID         int       `json:"product_id"`
	EngagementID      int       `json:"engagement_id"`
	EngagementCreated bool      `json:"engagement_created"`
	TestID            int       `json:"test_id"`
	IssuesFound       int       `json:"issues_found"`
	FindingsUploaded  int       `json:"findings_uploaded"`
	Status            string    `json:"status"`
	FailedStage       string    `json:"failed_stage"`
	Error             string    `json:"error"`
	SyncedAt          time.Time `json:"synced_at"`
}

// Finding represents a finding uploaded during a run
type Finding struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	ProjectKey string    `json:"project_key"`
	IssueKey   string    `json:"issue_key"`
	FindingID  int       `json:"finding_id"`
	Severity   string    `json:"severity"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// InsertRun records the start of a run
func (db *DB) InsertRun(run *Run) error {
	_, err := db.Exec(`
		INSERT INTO runs (id, organization, started_at) VALUES (?, ?, ?)
	`, run.ID, run.Organization, run.StartedAt)
	return err
}

// FinishRun stores the finish time and totals of a run
func (db *DB) FinishRun(run *Run) error {
	_, err := db.Exec(`
		UPDATE runs
		SET finished_at = ?, projects_total = ?, projects_failed = ?,
			findings_uploaded = ?, findings_failed = ?
		WHERE id = ?
	`, run.FinishedAt, run.ProjectsTotal, run.ProjectsFailed,
		run.FindingsUploaded, run.FindingsFailed, run.ID)
	return err
}

// GetRun retrieves a run by id; it returns sql.ErrNoRows when unknown
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`
		SELECT id, organization, started_at, finished_at, projects_total,
			projects_failed, findings_uploaded, findings_failed
		FROM runs WHERE id = ?
	`, id)
	return scanRun(row)
}

// GetRecentRuns retrieves the latest runs, newest first
func (db *DB) GetRecentRuns(limit int) ([]*Run, error) {
	rows, err := db.Query(`
		SELECT id, organization, started_at, finished_at, projects_total,
			projects_failed, findings_uploaded, findings_failed
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	run := &Run{}
	err := s.Scan(
		&run.ID, &run.Organization, &run.StartedAt, &run.FinishedAt,
		&run.ProjectsTotal, &run.ProjectsFailed, &run.FindingsUploaded, &run.FindingsFailed,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// InsertProjectSync records a project outcome and sets its ID
func (db *DB) InsertProjectSync(ps *ProjectSync) error {
	result, err := db.Exec(`
		INSERT INTO project_syncs (
			run_id, project_key, project_name, product_id, engagement_id,
			engagement_created, test_id, issues_found, findings_uploaded,
			status, failed_stage, error, synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ps.RunID, ps.ProjectKey, ps.ProjectName, ps.ProductID, ps.EngagementID,
		ps.EngagementCreated, ps.TestID, ps.IssuesFound, ps.FindingsUploaded,
		ps.Status, ps.FailedStage, ps.Error, ps.SyncedAt,
	)
	if err != nil {
		return err
	}
	ps.ID, err = result.LastInsertId()
	return err
}

// GetProjectSyncsByRunID retrieves the project outcomes of a run in sync order
func (db *DB) GetProjectSyncsByRunID(runID string) ([]*ProjectSync, error) {
	rows, err := db.Query(`
		SELECT id, run_id, project_key, project_name, product_id, engagement_id,
			engagement_created, test_id, issues_found, findings_uploaded,
			status, failed_stage, error, synced_at
		FROM project_syncs WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var syncs []*ProjectSync
	for rows.Next() {
		ps := &ProjectSync{}
		err := rows.Scan(
			&ps.ID, &ps.RunID, &ps.ProjectKey, &ps.ProjectName, &ps.ProductID, &ps.EngagementID,
			&ps.EngagementCreated, &ps.TestID, &ps.IssuesFound, &ps.FindingsUploaded,
			&ps.Status, &ps.FailedStage, &ps.Error, &ps.SyncedAt,
		)
		if err != nil {
			return nil, err
		}
		syncs = append(syncs, ps)
	}
	return syncs, rows.Err()
}

// MarkProjectSyncRolledBack flags a project outcome as rolled back
func (db *DB) MarkProjectSyncRolledBack(id int64) error {
	_, err := db.Exec(`UPDATE project_syncs SET status = ? WHERE id = ?`, StatusRolledBack, id)
	return err
}

// InsertFinding records an uploaded finding
func (db *DB) InsertFinding(f *Finding) error {
	result, err := db.Exec(`
		INSERT INTO findings (run_id, project_key, issue_key, finding_id, severity, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, f.RunID, f.ProjectKey, f.IssueKey, f.FindingID, f.Severity, f.UploadedAt)
	if err != nil {
		return err
	}
	f.ID, err = result.LastInsertId()
	return err
}

// CountFindingsByRunID counts the findings uploaded by a run
func (db *DB) CountFindingsByRunID(runID string) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM findings WHERE run_id = ?`, runID).Scan(&count)
	return count, err
}
