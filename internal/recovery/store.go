// Package recovery provides the durable registry of export jobs whose
// outcome is unconfirmed. Entries survive crashes and are drained at the
// start of every run.
//
// Scheduled invocations may overlap, so fetching pending entries claims
// them with a lease: a conditional UPDATE guarded by the current claim
// state, checked via RowsAffected. Two concurrent runs never both hold the
// same entry inside the lease window.
package recovery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nikhilbadyal/notion-backup/internal/db"
)

// DiscardThreshold is the retry count at which an entry is dropped instead
// of persisted. An entry never survives with retry_count >= 3.
const DiscardThreshold = 3

// Entry is a durable record of a job whose outcome could not be confirmed.
type Entry struct {
	JobID      string
	RetryCount int
	LastError  string
	EnqueuedAt time.Time
}

// Store is the recovery queue over a SQLite or PostgreSQL database.
type Store struct {
	db     *db.DB
	lease  time.Duration
	owner  string
	logger *slog.Logger
}

// New opens a recovery store over database, running migrations. The lease
// bounds how long a fetched entry stays claimed before another run may
// reclaim it.
func New(database *db.DB, lease time.Duration, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if lease <= 0 {
		lease = 10 * time.Minute
	}

	if err := database.Migrate("recovery"); err != nil {
		return nil, fmt.Errorf("migrate recovery schema: %w", err)
	}

	hostname, _ := os.Hostname()
	return &Store{
		db:     database,
		lease:  lease,
		owner:  fmt.Sprintf("%s:%d", hostname, os.Getpid()),
		logger: logger,
	}, nil
}

// Owner identifies this process for claim bookkeeping.
func (s *Store) Owner() string {
	return s.owner
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	row := s.db.QueryRowContext(ctx, "SELECT 1")
	if err := row.Scan(&one); err != nil {
		return fmt.Errorf("ping recovery store: %w", err)
	}
	return nil
}

// Enqueue inserts an entry with retry count 0 if absent. Re-enqueueing a
// job already tracked leaves the existing entry unchanged; the retry count
// is never reset.
func (s *Store) Enqueue(ctx context.Context, jobID, lastError string) error {
	if jobID == "" {
		return fmt.Errorf("enqueue: empty job id")
	}

	query := fmt.Sprintf(`
		INSERT INTO recovery_queue (job_id, retry_count, last_error, enqueued_at)
		VALUES (%s, 0, %s, %s)
		ON CONFLICT (job_id) DO NOTHING
	`, s.db.Placeholder(1), s.db.Placeholder(2), s.db.Placeholder(3))

	result, err := s.db.ExecContext(ctx, query,
		jobID, lastError, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("enqueue recovery entry: %w", err)
	}

	switch n, raErr := result.RowsAffected(); {
	case raErr != nil:
		s.logger.Warn("enqueue outcome unknown", "job_id", jobID, "error", raErr)
	case n == 0:
		s.logger.Debug("job already queued for recovery", "job_id", jobID)
	default:
		s.logger.Info("queued job for recovery", "job_id", jobID, "error", lastError)
	}
	return nil
}

// FetchPending returns all unclaimed entries, oldest first, claiming each
// one for this process. Entries claimed by a concurrent run inside its
// lease window are skipped; expired claims are reclaimed.
func (s *Store) FetchPending(ctx context.Context) ([]Entry, error) {
	now := time.Now()

	listQuery := fmt.Sprintf(`
		SELECT job_id, retry_count, last_error, enqueued_at
		FROM recovery_queue
		WHERE claimed_by IS NULL OR claim_expires_at < %s
		ORDER BY enqueued_at ASC
	`, s.db.Placeholder(1))

	rows, err := s.db.QueryContext(ctx, listQuery, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("list pending entries: %w", err)
	}
	candidates, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	claimQuery := fmt.Sprintf(`
		UPDATE recovery_queue
		SET claimed_by = %s, claim_expires_at = %s
		WHERE job_id = %s
		  AND (claimed_by IS NULL OR claim_expires_at < %s)
	`, s.db.Placeholder(1), s.db.Placeholder(2), s.db.Placeholder(3), s.db.Placeholder(4))

	expires := formatTime(now.Add(s.lease))
	var claimed []Entry
	for _, e := range candidates {
		result, err := s.db.ExecContext(ctx, claimQuery,
			s.owner, expires, e.JobID, formatTime(now))
		if err != nil {
			return nil, fmt.Errorf("claim entry %s: %w", e.JobID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("check claim result: %w", err)
		}
		if n == 0 {
			// Lost the race to a concurrent run
			s.logger.Debug("entry claimed by another run", "job_id", e.JobID)
			continue
		}
		claimed = append(claimed, e)
	}

	return claimed, nil
}

// Release drops this process's claim on an entry without recording a
// failed attempt. Used when the run could not even query for the job's
// outcome, so nothing was learned that should count toward discard.
func (s *Store) Release(ctx context.Context, jobID string) error {
	query := fmt.Sprintf(`
		UPDATE recovery_queue
		SET claimed_by = NULL, claim_expires_at = NULL
		WHERE job_id = %s AND claimed_by = %s
	`, s.db.Placeholder(1), s.db.Placeholder(2))

	if _, err := s.db.ExecContext(ctx, query, jobID, s.owner); err != nil {
		return fmt.Errorf("release recovery claim: %w", err)
	}
	return nil
}

// Ack removes an entry. Called only after the job's artifact has been
// durably stored; crash-before-ack leaves the entry present and safe to
// retry.
func (s *Store) Ack(ctx context.Context, jobID string) error {
	query := fmt.Sprintf(
		"DELETE FROM recovery_queue WHERE job_id = %s", s.db.Placeholder(1))
	result, err := s.db.ExecContext(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("ack recovery entry: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check ack result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("recovery entry %s not found", jobID)
	}

	s.logger.Info("recovery entry resolved", "job_id", jobID)
	return nil
}

// MarkFailedAttempt atomically increments the entry's retry count, records
// the error, and releases the claim. If the incremented count reaches the
// discard threshold the entry is removed instead, and discarded is true.
func (s *Store) MarkFailedAttempt(ctx context.Context, jobID, lastError string) (retryCount int, discarded bool, err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, false, fmt.Errorf("begin mark-failed transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	bump := fmt.Sprintf(`
		UPDATE recovery_queue
		SET retry_count = retry_count + 1,
		    last_error = %s,
		    claimed_by = NULL,
		    claim_expires_at = NULL
		WHERE job_id = %s
		RETURNING retry_count
	`, s.db.Placeholder(1), s.db.Placeholder(2))

	row := tx.QueryRow(ctx, bump, lastError, jobID)
	if scanErr := row.Scan(&retryCount); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			err = fmt.Errorf("recovery entry %s not found", jobID)
			return 0, false, err
		}
		err = fmt.Errorf("increment retry count: %w", scanErr)
		return 0, false, err
	}

	if retryCount >= DiscardThreshold {
		del := fmt.Sprintf(
			"DELETE FROM recovery_queue WHERE job_id = %s", s.db.Placeholder(1))
		if _, delErr := tx.Exec(ctx, del, jobID); delErr != nil {
			err = fmt.Errorf("discard exhausted entry: %w", delErr)
			return 0, false, err
		}
		discarded = true
	}

	if err = tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit mark-failed transaction: %w", err)
	}
	return retryCount, discarded, nil
}

// List returns all entries oldest first without claiming them. Used for
// inspection only.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, retry_count, last_error, enqueued_at
		FROM recovery_queue
		ORDER BY enqueued_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list recovery entries: %w", err)
	}
	return scanEntries(rows)
}

// scanEntries scans rows into entries.
func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var lastError sql.NullString
		var enqueuedAt string

		if err := rows.Scan(&e.JobID, &e.RetryCount, &lastError, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("scan recovery entry: %w", err)
		}
		e.LastError = lastError.String
		if t, err := parseTime(enqueuedAt); err == nil {
			e.EnqueuedAt = t
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recovery entries: %w", err)
	}
	return entries, nil
}

// Timestamps are stored as RFC3339 UTC strings so that lexicographic
// comparison in SQL matches chronological order on both dialects.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(s))
}
