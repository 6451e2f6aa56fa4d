// Package archive provides a SQLite-backed record of finished authoritative
// matches. Every record carries enough to replay the match through the engine.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"vector-void/internal/archive/migrations"
	"vector-void/internal/game"
)

var (
	// ErrNotFound is returned when no match has the requested id.
	ErrNotFound = errors.New("match not found")
	// ErrAlreadyExists is returned when saving a match id twice.
	ErrAlreadyExists = errors.New("match already exists")
)

// DefaultListLimit caps ListMatches when the caller passes no limit.
const DefaultListLimit = 50

// Match is one archived game.
type Match struct {
	ID             string        `json:"id"`
	Room           string        `json:"room"`
	StageID        string        `json:"stageId"`
	Seed           int64         `json:"seed"`
	P1Character    string        `json:"p1Character"`
	P2Character    string        `json:"p2Character"`
	StartingPlayer string        `json:"startingPlayer"`
	Winner         string        `json:"winner"`
	Reason         string        `json:"reason"`
	Turns          int           `json:"turns"`
	Actions        []game.Action `json:"actions,omitempty"`
	StartedAt      time.Time     `json:"startedAt"`
	FinishedAt     time.Time     `json:"finishedAt"`
}

// Config rebuilds the engine configuration the match was played with.
func (m Match) Config() (game.Config, error) {
	stage, err := game.GetStage(m.StageID)
	if err != nil {
		return game.Config{}, err
	}
	p1, err := game.ParseCharacter(m.P1Character)
	if err != nil {
		return game.Config{}, err
	}
	p2, err := game.ParseCharacter(m.P2Character)
	if err != nil {
		return game.Config{}, err
	}
	return game.Config{
		MatchID:    m.ID,
		Layout:     stage.Layout,
		Characters: [2]game.CharacterType{p1, p2},
		Seed:       m.Seed,
	}, nil
}

// NewMatchID returns a fresh match id.
func NewMatchID() string {
	return uuid.NewString()
}

// Store persists matches in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite archive and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveMatch inserts one match. An empty ID is filled with a new UUID and
// written back into m.
func (s *Store) SaveMatch(ctx context.Context, m *Match) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if m.ID == "" {
		m.ID = NewMatchID()
	} else if _, err := uuid.Parse(m.ID); err != nil {
		return fmt.Errorf("match id %q: %w", m.ID, err)
	}
	if strings.TrimSpace(m.StageID) == "" {
		return fmt.Errorf("stage id is required")
	}
	finished := m.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	started := m.StartedAt
	if started.IsZero() {
		started = finished
	}

	actions := m.Actions
	if actions == nil {
		actions = []game.Action{}
	}
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("encode actions: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO matches (
		   id, room, stage_id, seed,
		   p1_character, p2_character, starting_player,
		   winner, reason, turns, actions,
		   started_at, finished_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Room, m.StageID, m.Seed,
		m.P1Character, m.P2Character, m.StartingPlayer,
		m.Winner, m.Reason, m.Turns, string(actionsJSON),
		toMillis(started), toMillis(finished),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("save match: %w", err)
	}
	return nil
}

const matchColumns = `id, room, stage_id, seed,
		        p1_character, p2_character, starting_player,
		        winner, reason, turns, actions,
		        started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMatch(row scanner, withActions bool) (Match, error) {
	var (
		m          Match
		actions    string
		startedAt  int64
		finishedAt int64
	)
	if err := row.Scan(
		&m.ID, &m.Room, &m.StageID, &m.Seed,
		&m.P1Character, &m.P2Character, &m.StartingPlayer,
		&m.Winner, &m.Reason, &m.Turns, &actions,
		&startedAt, &finishedAt,
	); err != nil {
		return Match{}, err
	}
	if withActions {
		if err := json.Unmarshal([]byte(actions), &m.Actions); err != nil {
			return Match{}, fmt.Errorf("decode actions of %s: %w", m.ID, err)
		}
	}
	m.StartedAt = fromMillis(startedAt)
	m.FinishedAt = fromMillis(finishedAt)
	return m, nil
}

// GetMatch returns one match, including its action journal.
func (s *Store) GetMatch(ctx context.Context, id string) (Match, error) {
	if err := ctx.Err(); err != nil {
		return Match{}, err
	}
	if s == nil || s.sqlDB == nil {
		return Match{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Match{}, fmt.Errorf("match id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id)
	m, err := scanMatch(row, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Match{}, ErrNotFound
		}
		return Match{}, fmt.Errorf("get match: %w", err)
	}
	return m, nil
}

// ListMatches returns the most recently finished matches without their
// journals. limit <= 0 uses DefaultListLimit.
func (s *Store) ListMatches(ctx context.Context, limit int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+matchColumns+`
		   FROM matches
		  ORDER BY finished_at DESC, id ASC
		  LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	out := make([]Match, 0, limit)
	for rows.Next() {
		m, err := scanMatch(rows, false)
		if err != nil {
			return nil, fmt.Errorf("list matches: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
