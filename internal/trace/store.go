package trace

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const maxTurns = 500

// Store persists turn traces to PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to the trace database at connStr and applies migrations.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("trace open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTurn inserts a new turn and prunes old ones.
func (s *Store) CreateTurn(id, sessionID, kind string) error {
	_, err := s.db.Exec(
		`INSERT INTO turns (id, session_id, kind, started_at, status) VALUES ($1, $2, $3, $4, 'running')`,
		id, sessionID, kind, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`DELETE FROM turns WHERE id NOT IN (SELECT id FROM turns ORDER BY started_at DESC LIMIT $1)`,
		maxTurns,
	)
	return err
}

// UpdateTurn sets the turn's final fields.
func (s *Store) UpdateTurn(id string, durationMs float64, userText, replyText, status string) error {
	_, err := s.db.Exec(
		`UPDATE turns SET duration_ms = $1, user_text = $2, reply_text = $3, status = $4 WHERE id = $5`,
		durationMs, userText, replyText, status, id,
	)
	return err
}

// CreateSpan inserts a span.
func (s *Store) CreateSpan(sp Span) error {
	_, err := s.db.Exec(
		`INSERT INTO spans (id, turn_id, name, started_at, duration_ms, detail, status, error_msg)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sp.ID, sp.TurnID, sp.Name, sp.StartedAt.UTC(),
		sp.DurationMs, sp.Detail, sp.Status, sp.Error,
	)
	return err
}

// ListTurns returns turns ordered newest first, with span counts.
func (s *Store) ListTurns(limit, offset int) ([]Turn, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM turns`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT t.id, t.session_id, t.kind, t.started_at, COALESCE(t.duration_ms, 0),
		       COALESCE(t.user_text, ''), COALESCE(t.reply_text, ''), t.status,
		       COUNT(sp.id) as span_count
		FROM turns t
		LEFT JOIN spans sp ON sp.turn_id = t.id
		GROUP BY t.id
		ORDER BY t.started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err = rows.Scan(&t.ID, &t.SessionID, &t.Kind, &t.StartedAt, &t.DurationMs,
			&t.UserText, &t.ReplyText, &t.Status, &t.SpanCount); err != nil {
			return nil, 0, err
		}
		turns = append(turns, t)
	}
	return turns, total, rows.Err()
}
