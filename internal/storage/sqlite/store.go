package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
)

// Store is a SQLite implementation of LogStore.
type Store struct {
	db *sqlx.DB
}

var _ ports.LogStore = (*Store)(nil)

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("path", dbPath))
	}
	// single writer; also keeps ":memory:" databases on one connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to enable WAL mode")
	}

	store := &Store{db: db}

	// Initialize schema
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to initialize schema")
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS session_logs (
			session_id TEXT PRIMARY KEY,
			variant TEXT NOT NULL,
			participant_id TEXT,
			n_trials INTEGER NOT NULL,
			n_results INTEGER NOT NULL,
			metadata TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			submitted_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trial_results (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			trial INTEGER NOT NULL,
			stimulus TEXT NOT NULL,
			rt INTEGER NOT NULL,
			resp TEXT NOT NULL,
			category TEXT,
			accuracy INTEGER,
			selected TEXT,
			FOREIGN KEY (session_id) REFERENCES session_logs(session_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_logs_variant ON session_logs(variant)`,
		`CREATE INDEX IF NOT EXISTS idx_session_logs_submitted ON session_logs(submitted_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_trial_results_session_seq ON trial_results(session_id, seq)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return goerr.Wrap(err, "failed to execute schema statement")
		}
	}
	return nil
}

type logRow struct {
	SessionID     string         `db:"session_id"`
	Variant       string         `db:"variant"`
	ParticipantID sql.NullString `db:"participant_id"`
	NTrials       int            `db:"n_trials"`
	NResults      int            `db:"n_results"`
	Metadata      string         `db:"metadata"`
	StartedAt     time.Time      `db:"started_at"`
	SubmittedAt   time.Time      `db:"submitted_at"`
}

type resultRow struct {
	ID        string         `db:"id"`
	SessionID string         `db:"session_id"`
	Seq       int            `db:"seq"`
	Trial     int            `db:"trial"`
	Stimulus  string         `db:"stimulus"`
	RT        int64          `db:"rt"`
	Resp      string         `db:"resp"`
	Category  sql.NullString `db:"category"`
	Accuracy  sql.NullInt64  `db:"accuracy"`
	Selected  sql.NullString `db:"selected"`
}

func (s *Store) SaveLog(ctx context.Context, log *domain.Log) error {
	meta := log.Metadata
	if meta.SessionID == "" {
		return goerr.New("session id required")
	}

	metadata, err := json.Marshal(meta)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal metadata", goerr.V("session_id", meta.SessionID))
	}

	submittedAt := time.Now()
	if meta.SubmittedAt != nil {
		submittedAt = *meta.SubmittedAt
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `INSERT INTO session_logs
		(session_id, variant, participant_id, n_trials, n_results, metadata, started_at, submitted_at)
		VALUES (:session_id, :variant, :participant_id, :n_trials, :n_results, :metadata, :started_at, :submitted_at)`,
		logRow{
			SessionID:     meta.SessionID,
			Variant:       meta.Variant,
			ParticipantID: sql.NullString{String: meta.ParticipantID, Valid: meta.ParticipantID != ""},
			NTrials:       meta.NTrials,
			NResults:      len(log.Results),
			Metadata:      string(metadata),
			StartedAt:     meta.StartedAt,
			SubmittedAt:   submittedAt,
		})
	if err != nil {
		if isUniqueViolation(err) {
			return goerr.Wrap(ports.ErrLogExists, "failed to save log", goerr.V("session_id", meta.SessionID))
		}
		return goerr.Wrap(err, "failed to save log", goerr.V("session_id", meta.SessionID))
	}

	for i, r := range log.Results {
		row := resultRow{
			ID:        uuid.NewString(),
			SessionID: meta.SessionID,
			Seq:       i,
			Trial:     r.Trial,
			Stimulus:  r.Stimulus,
			RT:        r.RT,
			Resp:      string(r.Response),
			Category:  sql.NullString{String: r.Category, Valid: r.Category != ""},
			Selected:  sql.NullString{String: r.Selected, Valid: r.Selected != ""},
		}
		if r.Accuracy != nil {
			row.Accuracy = sql.NullInt64{Int64: int64(*r.Accuracy), Valid: true}
		}
		_, err := tx.NamedExecContext(ctx, `INSERT INTO trial_results
			(id, session_id, seq, trial, stimulus, rt, resp, category, accuracy, selected)
			VALUES (:id, :session_id, :seq, :trial, :stimulus, :rt, :resp, :category, :accuracy, :selected)`, row)
		if err != nil {
			return goerr.Wrap(err, "failed to save trial result",
				goerr.V("session_id", meta.SessionID), goerr.V("seq", i))
		}
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit log", goerr.V("session_id", meta.SessionID))
	}
	return nil
}

func (s *Store) GetLog(ctx context.Context, sessionID string) (*domain.Log, error) {
	var row logRow
	err := s.db.GetContext(ctx, &row, `SELECT session_id, variant, participant_id, n_trials, n_results,
		metadata, started_at, submitted_at FROM session_logs WHERE session_id = ?`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ports.ErrLogNotFound, "failed to get log", goerr.V("session_id", sessionID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get log", goerr.V("session_id", sessionID))
	}

	var meta domain.Metadata
	if err := json.Unmarshal([]byte(row.Metadata), &meta); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal metadata", goerr.V("session_id", sessionID))
	}

	var rows []resultRow
	err = s.db.SelectContext(ctx, &rows, `SELECT id, session_id, seq, trial, stimulus, rt, resp,
		category, accuracy, selected FROM trial_results WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query trial results", goerr.V("session_id", sessionID))
	}

	results := make([]domain.Result, len(rows))
	for i, r := range rows {
		results[i] = domain.Result{
			Trial:    r.Trial,
			Stimulus: r.Stimulus,
			RT:       r.RT,
			Response: domain.Input(r.Resp),
			Category: r.Category.String,
			Selected: r.Selected.String,
		}
		if r.Accuracy.Valid {
			acc := int(r.Accuracy.Int64)
			results[i].Accuracy = &acc
		}
	}

	return domain.RestoreLog(meta, results), nil
}

func (s *Store) ListLogs(ctx context.Context, opts ports.ListOptions) ([]*ports.LogSummary, error) {
	query := `SELECT session_id, variant, participant_id, n_trials, n_results, metadata, started_at, submitted_at
		FROM session_logs`
	var args []any
	if opts.Variant != "" {
		query += ` WHERE variant = ?`
		args = append(args, opts.Variant)
	}
	query += ` ORDER BY submitted_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	} else if opts.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, opts.Offset)
	}

	var rows []logRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, goerr.Wrap(err, "failed to list logs", goerr.V("variant", opts.Variant))
	}

	summaries := make([]*ports.LogSummary, len(rows))
	for i, r := range rows {
		summaries[i] = &ports.LogSummary{
			SessionID:     r.SessionID,
			Variant:       r.Variant,
			ParticipantID: r.ParticipantID.String,
			NTrials:       r.NTrials,
			NResults:      r.NResults,
			SubmittedAt:   r.SubmittedAt,
		}
	}
	return summaries, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
