package kkc

import (
	"bufio"
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed seed.tsv
var seedTSV string

const dictSchema = `
CREATE TABLE IF NOT EXISTS entries (
    reading     TEXT NOT NULL,
    surface     TEXT NOT NULL,
    cost        INTEGER NOT NULL DEFAULT 100,
    uses        INTEGER NOT NULL DEFAULT 0,
    last_used   INTEGER,
    PRIMARY KEY (reading, surface)
);

CREATE INDEX IF NOT EXISTS idx_entries_reading ON entries(reading);
`

// Entry is one dictionary word.
type Entry struct {
	Reading string
	Surface string
	Cost    int
	Uses    int
}

// Dictionary maps readings to surfaces and remembers what was committed.
type Dictionary struct {
	db *sql.DB
}

// OpenDictionary opens or creates the dictionary at path and seeds it when
// empty. An empty path opens a private in-memory dictionary.
func OpenDictionary(path string) (*Dictionary, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create dictionary directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	if path == "" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(dictSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	d := &Dictionary{db: db}
	n, err := d.Count(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	if n == 0 {
		if _, err := d.Import(context.Background(), strings.NewReader(seedTSV)); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed dictionary: %w", err)
		}
	}
	return d, nil
}

// Close closes the database connection.
func (d *Dictionary) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Ping checks that the database answers.
func (d *Dictionary) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Import adds the words of a tab-separated "reading surface cost" list,
// skipping blank and '#' lines. Known words keep their cost. It returns
// the number of lines read as words.
func (d *Dictionary) Import(ctx context.Context, r io.Reader) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO entries (reading, surface, cost) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	sc := bufio.NewScanner(r)
	line, words := 0, 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 3 {
			return 0, fmt.Errorf("line %d: want 3 fields, got %d", line, len(fields))
		}
		cost, err := strconv.Atoi(fields[2])
		if err != nil {
			return 0, fmt.Errorf("line %d: %w", line, err)
		}
		if _, err := stmt.ExecContext(ctx, fields[0], fields[1], cost); err != nil {
			return 0, fmt.Errorf("line %d: %w", line, err)
		}
		words++
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return words, nil
}

// ImportFile imports a word list from path.
func (d *Dictionary) ImportFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n, err := d.Import(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// Count returns the number of entries.
func (d *Dictionary) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Lookup returns the surfaces for reading, most used first, then cheapest.
func (d *Dictionary) Lookup(ctx context.Context, reading string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT reading, surface, cost, uses FROM entries
		WHERE reading = ?
		ORDER BY uses DESC, cost ASC, surface ASC
		LIMIT ?`, reading, limit)
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", reading, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Reading, &e.Surface, &e.Cost, &e.Uses); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Learn records that surface was committed for reading.
func (d *Dictionary) Learn(ctx context.Context, reading, surface string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO entries (reading, surface, cost, uses, last_used) VALUES (?, ?, 100, 1, ?)
		ON CONFLICT (reading, surface) DO UPDATE SET uses = uses + 1, last_used = excluded.last_used`,
		reading, surface, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("learn %q: %w", reading, err)
	}
	return nil
}
