package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cmdlauncher/internal/config"
)

const entryColumns = "id, request_id, client_pid, command, output_path, error_path, status, exit_code, error_message, started_at, finished_at"

// Store manages the execution journal backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.JournalPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin records a command as running and returns its row id.
func (s *Store) Begin(ctx context.Context, entry Entry) (int64, error) {
	if strings.TrimSpace(entry.RequestID) == "" {
		return 0, errors.New("request id is required")
	}
	started := entry.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO executions (
            request_id, client_pid, command, output_path, error_path, status, started_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID,
		nullableInt(entry.ClientPID),
		entry.Command,
		entry.OutputPath,
		entry.ErrorPath,
		StatusRunning,
		started.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert execution: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Finish closes a row opened by Begin.
func (s *Store) Finish(ctx context.Context, id int64, status Status, exitCode int, errMsg string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE executions
         SET status = ?, exit_code = ?, error_message = ?, finished_at = ?
         WHERE id = ?`,
		status,
		exitCode,
		nullableString(errMsg),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish execution %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish execution %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

// Recent returns up to limit rows, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM executions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Stats returns a count of rows grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM executions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("journal stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// MarkInterrupted closes every row still marked running. The daemon calls it
// at startup, when no command can legitimately be in flight.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE executions SET status = ?, error_message = ?, finished_at = ? WHERE status = ?`,
		StatusInterrupted,
		DaemonStopReason,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted: %w", err)
	}
	return res.RowsAffected()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry       Entry
		clientPID   sql.NullInt64
		status      string
		exitCode    sql.NullInt64
		errMsg      sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.RequestID,
		&clientPID,
		&entry.Command,
		&entry.OutputPath,
		&entry.ErrorPath,
		&status,
		&exitCode,
		&errMsg,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return Entry{}, err
	}
	entry.ClientPID = int(clientPID.Int64)
	entry.Status = Status(status)
	if exitCode.Valid {
		code := int(exitCode.Int64)
		entry.ExitCode = &code
	}
	entry.ErrorMessage = errMsg.String
	entry.StartedAt = parseTime(startedRaw)
	if finishedRaw.Valid {
		entry.FinishedAt = parseTime(finishedRaw.String)
	}
	return entry, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableInt(value int) any {
	if value == 0 {
		return nil
	}
	return value
}
