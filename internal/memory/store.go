package memory

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/chronolens/chronolens/internal/logging"
)

//go:embed migrations/*.sql
var migrations embed.FS

// profileKey is the fixed row key; the store holds exactly one profile
const profileKey = "profile"

// Store persists the profile whole-object in a local sqlite database.
// A single connection avoids writer contention; sqlite handles one writer
// at a time anyway.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenStore opens (creating if needed) the profile database at path and
// applies pending migrations.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the stored profile, or nil when none exists. A record with
// an unexpected schema version is discarded, not migrated.
func (s *Store) Load() (*ProfileMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data string
	err := s.db.QueryRow(`SELECT data FROM profile_memory WHERE key = ?`, profileKey).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	var mem ProfileMemory
	if err := json.Unmarshal([]byte(data), &mem); err != nil {
		logging.Warnf("[Memory] Stored profile is corrupt, discarding: %v", err)
		return nil, nil
	}
	if mem.Version != SchemaVersion {
		logging.Warnf("[Memory] Stored profile has schema version %d, want %d; discarding", mem.Version, SchemaVersion)
		return nil, nil
	}
	return &mem, nil
}

// Save writes the profile whole-object, stamping the current schema version
func (s *Store) Save(mem *ProfileMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mem.Version = SchemaVersion
	data, err := json.Marshal(mem)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO profile_memory (key, data, updated_at) VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		profileKey, string(data))
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// ClearPatterns removes detected workflow patterns but keeps the rest of
// the profile. No-op when no profile is stored.
func (s *Store) ClearPatterns() error {
	mem, err := s.Load()
	if err != nil {
		return err
	}
	if mem == nil {
		return nil
	}
	mem.Patterns = []WorkflowPattern{}
	return s.Save(mem)
}

// Clear deletes the stored profile entirely
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM profile_memory WHERE key = ?`, profileKey)
	if err != nil {
		return fmt.Errorf("clear profile: %w", err)
	}
	return nil
}
