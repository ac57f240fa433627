package sink

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/lamim/tunekit/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite stores examples in an examples table, one transaction per sink.
// Id lists are stored as JSON arrays.
type SQLite struct {
	path    string
	tmpPath string
	split   string
	db      *sql.DB
	tx      *sql.Tx
	insert  *sql.Stmt
	count   int
	err     error
}

// NewSQLite creates a database at path (built under a temporary name)
func NewSQLite(path, split string) (*SQLite, error) {
	tmpPath := path + ".tmp"
	_ = os.Remove(tmpPath)

	db, err := openDB(tmpPath)
	if err != nil {
		return nil, err
	}

	s := &SQLite{path: path, tmpPath: tmpPath, split: split, db: db}
	if err := s.begin(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		return nil, err
	}
	return s, nil
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// migrate applies embedded migrations that are not yet recorded in schema_version
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

func (s *SQLite) begin() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO examples
		(split, position, source_line, input_ids, attention_mask, labels)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("preparing insert: %w", err)
	}
	s.tx = tx
	s.insert = stmt
	return nil
}

func (s *SQLite) Write(ex models.EncodedExample) error {
	if s.err != nil {
		return s.err
	}

	inputIDs, err := json.Marshal(ex.InputIDs)
	if err != nil {
		s.err = err
		return err
	}
	mask, err := json.Marshal(ex.AttentionMask)
	if err != nil {
		s.err = err
		return err
	}
	var labels any
	if ex.Labels != nil {
		raw, err := json.Marshal(ex.Labels)
		if err != nil {
			s.err = err
			return err
		}
		labels = string(raw)
	}

	if _, err := s.insert.Exec(s.split, s.count, ex.SourceLine, string(inputIDs), string(mask), labels); err != nil {
		s.err = fmt.Errorf("inserting example %d: %w", s.count, err)
		return s.err
	}
	s.count++
	return nil
}

// Close commits the transaction and moves the database into place
func (s *SQLite) Close() error {
	_ = s.insert.Close()
	if s.err != nil {
		_ = s.tx.Rollback()
	} else if err := s.tx.Commit(); err != nil {
		s.err = fmt.Errorf("committing examples: %w", err)
	}
	if err := s.db.Close(); err != nil && s.err == nil {
		s.err = fmt.Errorf("closing database: %w", err)
	}
	if s.err != nil {
		_ = os.Remove(s.tmpPath)
		return s.err
	}
	if err := os.Rename(s.tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to rename database: %w", err)
	}
	return nil
}

func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Count() int { return s.count }

// ReadSQLite loads the examples of one split in write order
func ReadSQLite(path, split string) ([]models.EncodedExample, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.Query(`SELECT source_line, input_ids, attention_mask, labels
		FROM examples WHERE split = ? ORDER BY position ASC`, split)
	if err != nil {
		return nil, fmt.Errorf("querying examples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.EncodedExample
	for rows.Next() {
		var (
			ex        models.EncodedExample
			ids, mask string
			labels    sql.NullString
		)
		if err := rows.Scan(&ex.SourceLine, &ids, &mask, &labels); err != nil {
			return nil, fmt.Errorf("scanning example: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &ex.InputIDs); err != nil {
			return nil, fmt.Errorf("decoding input_ids: %w", err)
		}
		if err := json.Unmarshal([]byte(mask), &ex.AttentionMask); err != nil {
			return nil, fmt.Errorf("decoding attention_mask: %w", err)
		}
		if labels.Valid {
			if err := json.Unmarshal([]byte(labels.String), &ex.Labels); err != nil {
				return nil, fmt.Errorf("decoding labels: %w", err)
			}
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}
