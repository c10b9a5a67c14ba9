// Package sqlite keeps the session history in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/neoxalle/nx/internal/adapters/repo/sqlite/migrations"
	"github.com/neoxalle/nx/internal/domain"
	"github.com/neoxalle/nx/internal/ports"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const (
	migrationTable = "schema_migrations"
	historyDirMode = 0o700
)

var (
	ErrDuplicateID = errors.New("session id already stored")

	_ ports.SessionRepository = (*Store)(nil)
)

// Store persists finished sessions. Timestamps are stored as epoch millis.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the history database at path, creating it if needed, and
// applies the embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("history path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), historyDirMode); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Append(ctx context.Context, record domain.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("session id is required")
	}

	scores, err := encodeScores(record.Scores)
	if err != nil {
		return err
	}

	var winner sql.NullInt64
	if record.HasWinner {
		winner = sql.NullInt64{Int64: int64(record.Winner), Valid: true}
	}

	var reactions sql.NullString
	if len(record.ReactionMs) > 0 {
		encoded, err := encodeReactions(record.ReactionMs)
		if err != nil {
			return err
		}
		reactions = sql.NullString{String: encoded, Valid: true}
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sessions (
		   id,
		   played_at,
		   game_type,
		   duration_sec,
		   players,
		   scores_json,
		   winner,
		   reaction_ms_json
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		toMillis(record.Timestamp),
		string(record.GameType),
		record.DurationSec,
		record.Players,
		scores,
		winner,
		reactions,
	)
	if err != nil {
		if isPrimaryKeyViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, record.ID)
		}
		return fmt.Errorf("append session: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.SessionRecord{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, selectSessions+` WHERE id = ?`, strings.TrimSpace(id))
	record, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SessionRecord{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
		}
		return domain.SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	return record, nil
}

func (s *Store) List(ctx context.Context, limit int) ([]domain.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.sqlDB.QueryContext(ctx, selectSessions+` ORDER BY played_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []domain.SessionRecord
	for rows.Next() {
		record, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return records, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	return nil
}

const selectSessions = `SELECT id, played_at, game_type, duration_sec, players, scores_json, winner, reaction_ms_json FROM sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.SessionRecord, error) {
	var (
		record    domain.SessionRecord
		playedAt  int64
		gameType  string
		scores    string
		winner    sql.NullInt64
		reactions sql.NullString
	)
	if err := row.Scan(&record.ID, &playedAt, &gameType, &record.DurationSec, &record.Players, &scores, &winner, &reactions); err != nil {
		return domain.SessionRecord{}, err
	}

	record.Timestamp = fromMillis(playedAt)
	record.GameType = domain.GameMode(gameType)
	if winner.Valid {
		record.Winner = domain.SlaveID(winner.Int64)
		record.HasWinner = true
	}
	if err := json.Unmarshal([]byte(scores), &record.Scores); err != nil {
		return domain.SessionRecord{}, fmt.Errorf("decode scores of %s: %w", record.ID, err)
	}
	if reactions.Valid && reactions.String != "" {
		if err := json.Unmarshal([]byte(reactions.String), &record.ReactionMs); err != nil {
			return domain.SessionRecord{}, fmt.Errorf("decode reaction times of %s: %w", record.ID, err)
		}
	}
	return record, nil
}

// encodeScores writes scores as {"<id>":n}; a nil map is stored as {}.
func encodeScores(scores map[domain.SlaveID]int) (string, error) {
	if scores == nil {
		scores = map[domain.SlaveID]int{}
	}
	data, err := json.Marshal(scores)
	if err != nil {
		return "", fmt.Errorf("encode scores: %w", err)
	}
	return string(data), nil
}

func encodeReactions(reactions map[domain.SlaveID]int64) (string, error) {
	data, err := json.Marshal(reactions)
	if err != nil {
		return "", fmt.Errorf("encode reaction times: %w", err)
	}
	return string(data), nil
}

func isPrimaryKeyViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// applyMigrations runs each embedded .sql file at most once, in name order.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	slices.Sort(files)

	createSQL := `CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`
	if _, err := sqlDB.Exec(createSQL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var found int
		err := sqlDB.QueryRow(`SELECT 1 FROM `+migrationTable+` WHERE name = ?`, file).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", file, err)
		}

		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(upSection(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`, file, toMillis(time.Now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

func upSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	start := strings.Index(content, up)
	if start == -1 {
		return content
	}
	content = content[start+len(up):]
	if end := strings.Index(content, down); end != -1 {
		content = content[:end]
	}
	return content
}
