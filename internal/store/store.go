// Package store persists the project configuration, saved presets and a
// lifecycle event log in a local SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrPresetNotFound is returned when loading or deleting a preset by a name
// that does not exist
var ErrPresetNotFound = errors.New("preset not found")

// Store wraps the SQLite connection
type Store struct {
	conn *sql.DB
	path string
}

// Project is the single project configuration row. There is exactly one;
// it is created with defaults on first open.
type Project struct {
	Name              string    `json:"name"`
	Directory         string    `json:"directory"`
	Command           string    `json:"command"`
	Port              int       `json:"port"`
	LanEnabled        bool      `json:"lan_enabled"`
	NgrokEnabled      bool      `json:"ngrok_enabled"`
	CloudflareEnabled bool      `json:"cloudflare_enabled"`
	QueueEnabled      bool      `json:"queue_enabled"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Preset is a saved project setup for quick switching
type Preset struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Directory string    `json:"directory"`
	Command   string    `json:"command"`
	Port      int       `json:"port"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is one lifecycle event (daemon, server, tunnel, queue)
type Event struct {
	ID        int64     `json:"id"`
	Category  string    `json:"category"`
	EventType string    `json:"event_type"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// Open opens or creates the database, ensuring the schema and the default
// project row exist.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL keeps concurrent daemon reads from blocking writes
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{conn: conn, path: path}

	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.ensureDefaultProject(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create default project: %w", err)
	}

	return s, nil
}

// Close checkpoints the WAL and closes the connection
func (s *Store) Close() error {
	if s.conn != nil {
		s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.conn.Close()
	}
	return nil
}

func (s *Store) initSchema() error {
	schema := `
	-- The single project configuration (one row, id = 1)
	CREATE TABLE IF NOT EXISTS project_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		name TEXT NOT NULL DEFAULT 'My Project',
		directory TEXT NOT NULL DEFAULT '',
		command TEXT NOT NULL DEFAULT '',
		port INTEGER NOT NULL DEFAULT 8000,
		lan_enabled INTEGER NOT NULL DEFAULT 0,
		ngrok_enabled INTEGER NOT NULL DEFAULT 0,
		cloudflare_enabled INTEGER NOT NULL DEFAULT 0,
		queue_enabled INTEGER NOT NULL DEFAULT 1,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Saved project presets
	CREATE TABLE IF NOT EXISTS presets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		directory TEXT NOT NULL DEFAULT '',
		command TEXT NOT NULL DEFAULT '',
		port INTEGER NOT NULL DEFAULT 8000,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Lifecycle events
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category TEXT NOT NULL,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_presets_name ON presets(name);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_category ON events(category);
	`

	_, err := s.conn.Exec(schema)
	return err
}

// ensureDefaultProject inserts the config row if this is a fresh database
func (s *Store) ensureDefaultProject() error {
	_, err := s.conn.Exec(
		`INSERT OR IGNORE INTO project_config (id) VALUES (1)`,
	)
	return err
}

// GetProject returns the project configuration
func (s *Store) GetProject() (Project, error) {
	var p Project
	err := s.conn.QueryRow(
		`SELECT name, directory, command, port, lan_enabled, ngrok_enabled,
		        cloudflare_enabled, queue_enabled, updated_at
		 FROM project_config WHERE id = 1`,
	).Scan(&p.Name, &p.Directory, &p.Command, &p.Port, &p.LanEnabled,
		&p.NgrokEnabled, &p.CloudflareEnabled, &p.QueueEnabled, &p.UpdatedAt)
	if err != nil {
		return Project{}, fmt.Errorf("failed to read project config: %w", err)
	}
	return p, nil
}

// UpdateProject replaces the project configuration
func (s *Store) UpdateProject(p Project) error {
	_, err := s.conn.Exec(
		`UPDATE project_config
		 SET name = ?, directory = ?, command = ?, port = ?, lan_enabled = ?,
		     ngrok_enabled = ?, cloudflare_enabled = ?, queue_enabled = ?,
		     updated_at = ?
		 WHERE id = 1`,
		p.Name, p.Directory, p.Command, p.Port, p.LanEnabled,
		p.NgrokEnabled, p.CloudflareEnabled, p.QueueEnabled, time.Now(),
	)
	return err
}

// SavePreset stores the given setup under a name, replacing any preset with
// the same name.
func (s *Store) SavePreset(name, directory, command string, port int) error {
	_, err := s.conn.Exec(
		`INSERT INTO presets (name, directory, command, port, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		     directory = excluded.directory,
		     command = excluded.command,
		     port = excluded.port`,
		name, directory, command, port, time.Now(),
	)
	return err
}

// ListPresets returns all presets, newest first
func (s *Store) ListPresets() ([]Preset, error) {
	rows, err := s.conn.Query(
		`SELECT id, name, directory, command, port, created_at
		 FROM presets ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var presets []Preset
	for rows.Next() {
		var p Preset
		if err := rows.Scan(&p.ID, &p.Name, &p.Directory, &p.Command, &p.Port, &p.CreatedAt); err != nil {
			return nil, err
		}
		presets = append(presets, p)
	}
	return presets, rows.Err()
}

// GetPreset returns one preset by name
func (s *Store) GetPreset(name string) (Preset, error) {
	var p Preset
	err := s.conn.QueryRow(
		`SELECT id, name, directory, command, port, created_at
		 FROM presets WHERE name = ?`,
		name,
	).Scan(&p.ID, &p.Name, &p.Directory, &p.Command, &p.Port, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Preset{}, fmt.Errorf("%w: %s", ErrPresetNotFound, name)
	}
	if err != nil {
		return Preset{}, err
	}
	return p, nil
}

// DeletePreset removes a preset by name
func (s *Store) DeletePreset(name string) error {
	res, err := s.conn.Exec(`DELETE FROM presets WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrPresetNotFound, name)
	}
	return nil
}

// LoadPreset applies a preset's directory, command and port to the project
// configuration
func (s *Store) LoadPreset(name string) (Project, error) {
	preset, err := s.GetPreset(name)
	if err != nil {
		return Project{}, err
	}

	project, err := s.GetProject()
	if err != nil {
		return Project{}, err
	}

	project.Name = preset.Name
	project.Directory = preset.Directory
	project.Command = preset.Command
	project.Port = preset.Port

	if err := s.UpdateProject(project); err != nil {
		return Project{}, err
	}
	return project, nil
}

// LogEvent records a lifecycle event. Retries briefly on SQLITE_BUSY since
// this is best-effort and must never block shutdown.
func (s *Store) LogEvent(category, eventType, details string) error {
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		_, err := s.conn.Exec(
			`INSERT INTO events (category, event_type, details, timestamp)
			 VALUES (?, ?, ?, ?)`,
			category, eventType, details, time.Now(),
		)
		if err == nil {
			return nil
		}
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		return err
	}
	return fmt.Errorf("failed to log event after %d retries: database locked", maxRetries)
}

// RecentEvents returns the most recent events, newest first
func (s *Store) RecentEvents(limit int) ([]Event, error) {
	rows, err := s.conn.Query(
		`SELECT id, category, event_type, details, timestamp
		 FROM events ORDER BY timestamp DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Category, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
