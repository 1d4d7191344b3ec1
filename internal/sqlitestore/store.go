package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vk/connectome/internal/ctxlog"
	"github.com/vk/connectome/internal/inmemorystore"
	"github.com/vk/connectome/internal/nodestore"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the workflow base directory.
const FileName = "provenance.db"

// Store is a nodestore.Store whose records survive the process.
type Store struct {
	*inmemorystore.Store
	db    *sql.DB
	runID string
}

// Open opens (creating if needed) the database at path, migrates it and
// registers a new run.
func Open(ctx context.Context, path, runID string, subjects []string) (*Store, error) {
	logger := ctxlog.FromContext(ctx)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open provenance database: %w", err)
	}
	// SQLite allows a single writer; serialize access instead of retrying on SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := migrateUp(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, subjects, status) VALUES (?, ?, ?, ?)`,
		runID, formatTime(time.Now()), strings.Join(subjects, ","), "running",
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register run: %w", err)
	}

	logger.Debug("Provenance database ready.", "path", path, "run_id", runID)
	return &Store{Store: inmemorystore.New(), db: db, runID: runID}, nil
}

// Save writes rec to the database and keeps successful records in memory.
func (s *Store) Save(ctx context.Context, rec *nodestore.Record) error {
	if rec == nil {
		return nil
	}
	var outType, outJSON sql.NullString
	if !rec.Outputs.IsNull() {
		ty := rec.Outputs.Type()
		tyJSON, err := ctyjson.MarshalType(ty)
		if err != nil {
			return fmt.Errorf("failed to encode output type of %s: %w", rec.InstanceID, err)
		}
		valJSON, err := ctyjson.Marshal(rec.Outputs, ty)
		if err != nil {
			return fmt.Errorf("failed to encode outputs of %s: %w", rec.InstanceID, err)
		}
		outType = sql.NullString{String: string(tyJSON), Valid: true}
		outJSON = sql.NullString{String: string(valJSON), Valid: true}
	}

	runID := rec.RunID
	if runID == "" {
		runID = s.runID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO node_runs (run_id, instance_id, subject, tool, hash, outputs_type, outputs, status, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.InstanceID, rec.Subject, rec.Tool, rec.Hash, outType, outJSON,
		string(rec.Status), rec.Error, formatTime(rec.Started), formatTime(rec.Finished),
	)
	if err != nil {
		return fmt.Errorf("failed to save record of %s: %w", rec.InstanceID, err)
	}
	return s.Store.Save(ctx, rec)
}

// Lookup returns the most recent successful record with the given hash
// across all runs recorded in the database.
func (s *Store) Lookup(ctx context.Context, hash string) (*nodestore.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, instance_id, subject, tool, hash, outputs_type, outputs, status, error, started_at, finished_at
		 FROM node_runs
		 WHERE hash = ? AND status IN (?, ?)
		 ORDER BY id DESC LIMIT 1`,
		hash, string(nodestore.StatusCompleted), string(nodestore.StatusCached),
	)

	var (
		rec               nodestore.Record
		status            string
		outType, outJSON  sql.NullString
		started, finished string
	)
	err := row.Scan(&rec.RunID, &rec.InstanceID, &rec.Subject, &rec.Tool, &rec.Hash,
		&outType, &outJSON, &status, &rec.Error, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up hash %s: %w", hash, err)
	}
	rec.Status = nodestore.Status(status)
	rec.Started = parseTime(started)
	rec.Finished = parseTime(finished)

	if outType.Valid && outJSON.Valid {
		ty, err := ctyjson.UnmarshalType([]byte(outType.String))
		if err != nil {
			return nil, fmt.Errorf("failed to decode output type for hash %s: %w", hash, err)
		}
		rec.Outputs, err = ctyjson.Unmarshal([]byte(outJSON.String), ty)
		if err != nil {
			return nil, fmt.Errorf("failed to decode outputs for hash %s: %w", hash, err)
		}
	}
	return &rec, nil
}

// Finish marks the run as finished with the given status.
func (s *Store) Finish(ctx context.Context, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ? WHERE run_id = ?`,
		formatTime(time.Now()), status, s.runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", s.runID, err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

var _ nodestore.Store = (*Store)(nil)
