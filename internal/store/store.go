// Package store archives completed research runs to SQLite. Each run
// persists the rendered report plus per-domain outcomes and ordered
// findings; the history and show commands read them back. The archive
// consumes finished runs only: a failure here is returned to the caller
// but never fails the run that produced the report.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	rerr "prospect/internal/errors"
	"prospect/internal/logging"
	"prospect/internal/research"

	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned when no archived run matches the given ID.
var ErrRunNotFound = rerr.New("run not found in archive")

// ErrAmbiguousRunID is returned when a run ID prefix matches several runs.
var ErrAmbiguousRunID = rerr.New("run id prefix matches multiple runs")

// defaultHistoryLimit caps RecentRuns when the caller passes no limit.
const defaultHistoryLimit = 20

// RunSummary is one line of the archive history listing.
type RunSummary struct {
	RunID     string
	Subject   string
	Degraded  bool
	Findings  int
	CreatedAt time.Time
}

// DomainRecord is one domain's archived outcome, findings in collection
// order.
type DomainRecord struct {
	Domain   research.Domain
	Status   research.Status
	Failure  string
	Summary  string
	Attempts int
	Failures int
	Findings []research.Finding
}

// ArchivedRun is a fully loaded archived run, domains in launch order.
type ArchivedRun struct {
	RunID     string
	Subject   string
	Context   string
	Markdown  string
	Degraded  bool
	CreatedAt time.Time
	Domains   []DomainRecord
}

// Archive is the SQLite-backed run store.
type Archive struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Open creates or opens the archive database at the given path.
func Open(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	a := &Archive{db: db, dbPath: path}
	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}

	logging.Store("archive ready at %s", path)
	return a, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Path returns the database file path.
func (a *Archive) Path() string {
	return a.dbPath
}

// initSchema creates the archive tables.
func (a *Archive) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		subject TEXT NOT NULL,
		role_context TEXT,
		report_markdown TEXT NOT NULL,
		degraded INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_subject ON runs(subject);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

	CREATE TABLE IF NOT EXISTS run_domains (
		run_id TEXT NOT NULL,
		domain TEXT NOT NULL,
		position INTEGER NOT NULL,
		status TEXT NOT NULL,
		failure TEXT,
		summary TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, domain),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);
	CREATE INDEX IF NOT EXISTS idx_run_domains_run ON run_domains(run_id);

	CREATE TABLE IF NOT EXISTS findings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		domain TEXT NOT NULL,
		position INTEGER NOT NULL,
		tool TEXT NOT NULL,
		source TEXT,
		content TEXT NOT NULL,
		collected_at DATETIME,
		FOREIGN KEY (run_id) REFERENCES runs(id),
		UNIQUE(run_id, domain, position)
	);
	CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id);
	`

	if _, err := a.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// SaveRun persists one finished run in a single transaction: the report
// row, one row per launched domain, and every finding in collection
// order. Saving the same run again replaces the archived copy.
func (a *Archive) SaveRun(ctx context.Context, report research.Report, state *research.AggregateState) error {
	timer := logging.StartTimer(logging.CategoryStore, "SaveRun")
	defer timer.Stop()

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.saveRunTx(ctx, report, state); err != nil {
		logging.StoreError("failed to archive run %s: %v", report.RunID, err)
		logging.Audit().ArchiveWrite(report.RunID, false, err.Error())
		return err
	}

	logging.Store("archived run %s (%d findings)", report.RunID, state.TotalFindings())
	logging.Audit().ArchiveWrite(report.RunID, true, "")
	return nil
}

func (a *Archive) saveRunTx(ctx context.Context, report research.Report, state *research.AggregateState) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, subject, role_context, report_markdown, degraded, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject = excluded.subject,
			role_context = excluded.role_context,
			report_markdown = excluded.report_markdown,
			degraded = excluded.degraded,
			created_at = excluded.created_at
	`, report.RunID, report.Request.Subject, report.Request.Context,
		report.Markdown, report.Degraded, report.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save run row: %w", err)
	}

	// Replace rather than merge so a re-save cannot leave stale rows.
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_domains WHERE run_id = ?`, report.RunID); err != nil {
		return fmt.Errorf("failed to clear domain rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM findings WHERE run_id = ?`, report.RunID); err != nil {
		return fmt.Errorf("failed to clear finding rows: %w", err)
	}

	for pos, result := range state.Results() {
		failure := ""
		if result.Failure != nil {
			failure = result.Failure.String()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_domains (run_id, domain, position, status, failure, summary, attempts, failure_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, report.RunID, result.Domain.String(), pos, result.Status.String(),
			failure, result.Summary, result.Attempts, result.FailureCount)
		if err != nil {
			return fmt.Errorf("failed to save %s domain row: %w", result.Domain, err)
		}

		for i, f := range result.Findings {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO findings (run_id, domain, position, tool, source, content, collected_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, report.RunID, result.Domain.String(), i, f.Tool, f.Source, f.Content, f.Timestamp)
			if err != nil {
				return fmt.Errorf("failed to save %s finding %d: %w", result.Domain, i, err)
			}
		}
	}

	return tx.Commit()
}

// RecentRuns returns run summaries, newest first. A non-positive limit
// selects the default history depth.
func (a *Archive) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT r.id, r.subject, r.degraded, r.created_at,
			(SELECT COUNT(*) FROM findings f WHERE f.run_id = r.id)
		FROM runs r
		ORDER BY r.created_at DESC, r.id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.RunID, &s.Subject, &s.Degraded, &s.CreatedAt, &s.Findings); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetRun loads one archived run with its domain outcomes and findings.
func (a *Archive) GetRun(ctx context.Context, runID string) (*ArchivedRun, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loadRun(ctx, runID)
}

// FindRun resolves a run by exact ID or unique prefix and loads it.
func (a *Archive) FindRun(ctx context.Context, idOrPrefix string) (*ArchivedRun, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if idOrPrefix == "" {
		return nil, ErrRunNotFound
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE id = ? OR id LIKE ? || '%' ORDER BY id LIMIT 3`,
		idOrPrefix, idOrPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve run id: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		if id == idOrPrefix {
			// Exact match wins over longer IDs sharing the prefix.
			return a.loadRun(ctx, id)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(ids) {
	case 0:
		return nil, ErrRunNotFound
	case 1:
		return a.loadRun(ctx, ids[0])
	default:
		return nil, fmt.Errorf("%w: %q", ErrAmbiguousRunID, idOrPrefix)
	}
}

func (a *Archive) loadRun(ctx context.Context, runID string) (*ArchivedRun, error) {
	var run ArchivedRun
	var roleContext sql.NullString

	err := a.db.QueryRowContext(ctx, `
		SELECT id, subject, role_context, report_markdown, degraded, created_at
		FROM runs WHERE id = ?
	`, runID).Scan(&run.RunID, &run.Subject, &roleContext, &run.Markdown,
		&run.Degraded, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %q", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	run.Context = roleContext.String

	findings, err := a.loadFindings(ctx, runID)
	if err != nil {
		return nil, err
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT domain, status, failure, summary, attempts, failure_count
		FROM run_domains WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load domain rows for %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec DomainRecord
		var domain, status string
		var failure, summary sql.NullString
		if err := rows.Scan(&domain, &status, &failure, &summary, &rec.Attempts, &rec.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan domain row: %w", err)
		}
		rec.Domain = research.Domain(domain)
		rec.Status = research.Status(status)
		rec.Failure = failure.String
		rec.Summary = summary.String
		rec.Findings = findings[rec.Domain]
		run.Domains = append(run.Domains, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &run, nil
}

func (a *Archive) loadFindings(ctx context.Context, runID string) (map[research.Domain][]research.Finding, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT domain, tool, source, content, collected_at
		FROM findings WHERE run_id = ? ORDER BY domain, position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load findings for %s: %w", runID, err)
	}
	defer rows.Close()

	out := make(map[research.Domain][]research.Finding)
	for rows.Next() {
		var domain string
		var f research.Finding
		var source sql.NullString
		var collected sql.NullTime
		if err := rows.Scan(&domain, &f.Tool, &source, &f.Content, &collected); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		f.Source = source.String
		f.Timestamp = collected.Time
		d := research.Domain(domain)
		out[d] = append(out[d], f)
	}
	return out, rows.Err()
}
