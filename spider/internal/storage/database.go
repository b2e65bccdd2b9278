// Package storage keeps the crawl database: accepted pages, the link graph
// between them and a log of every fetch the crawler made.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/deidaraiorek/campusrag/internal/corpus"
)

const (
	OutcomeAccepted   = "accepted"
	OutcomeRejected   = "rejected"
	OutcomeFetchError = "fetch_error"
)

type Database struct {
	db *sql.DB
	// sqlite allows one writer; workers share this lock.
	mu sync.Mutex
}

func NewDatabase(dbPath string) (*Database, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	database := &Database{db: db}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return database, nil
}

func (d *Database) initSchema() error {
	schema := `
	-- Pages: accepted page records, id order is acceptance order
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT UNIQUE NOT NULL,
		text TEXT NOT NULL,
		crawled_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS links (
		from_url TEXT,
		to_url TEXT,
		PRIMARY KEY (from_url, to_url)
	);

	CREATE TABLE IF NOT EXISTS fetch_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		status_code INTEGER,
		outcome TEXT NOT NULL,
		error TEXT,
		fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fetch_log_url ON fetch_log(url);
	`
	_, err := d.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Reset empties every table. Each crawl run starts from nothing.
func (d *Database) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"pages", "links", "fetch_log"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	if _, err := tx.Exec("DELETE FROM sqlite_sequence WHERE name IN ('pages', 'fetch_log')"); err != nil {
		return fmt.Errorf("failed to reset sequences: %w", err)
	}
	return tx.Commit()
}

type Page struct {
	URL       string
	Text      string
	CrawledAt time.Time
}

func (d *Database) SavePage(page *Page) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	crawledAt := page.CrawledAt
	if crawledAt.IsZero() {
		crawledAt = time.Now().UTC()
	}

	_, err := d.db.Exec(`
		INSERT INTO pages (url, text, crawled_at)
		VALUES (?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			text = excluded.text,
			crawled_at = excluded.crawled_at
	`, page.URL, page.Text, crawledAt)
	return err
}

func (d *Database) GetPage(url string) (*Page, error) {
	var page Page
	err := d.db.QueryRow(
		"SELECT url, text, crawled_at FROM pages WHERE url = ?", url,
	).Scan(&page.URL, &page.Text, &page.CrawledAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// Records returns every accepted page as a corpus record, in acceptance order.
func (d *Database) Records() ([]corpus.Record, error) {
	rows, err := d.db.Query("SELECT url, text FROM pages ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []corpus.Record{}
	for rows.Next() {
		var rec corpus.Record
		if err := rows.Scan(&rec.URL, &rec.Text); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (d *Database) SaveLinks(fromURL string, toURLs []string) error {
	if len(toURLs) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT OR IGNORE INTO links (from_url, to_url) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, toURL := range toURLs {
		if _, err := stmt.Exec(fromURL, toURL); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *Database) LinksFrom(fromURL string) ([]string, error) {
	rows, err := d.db.Query("SELECT to_url FROM links WHERE from_url = ? ORDER BY rowid", fromURL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

type FetchLog struct {
	URL        string
	StatusCode int
	Outcome    string
	Error      string
	FetchedAt  time.Time
}

func (d *Database) LogFetch(entry *FetchLog) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	fetchedAt := entry.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	var errText sql.NullString
	if entry.Error != "" {
		errText = sql.NullString{String: entry.Error, Valid: true}
	}

	_, err := d.db.Exec(
		"INSERT INTO fetch_log (url, status_code, outcome, error, fetched_at) VALUES (?, ?, ?, ?, ?)",
		entry.URL, entry.StatusCode, entry.Outcome, errText, fetchedAt,
	)
	return err
}

func (d *Database) FetchLog() ([]FetchLog, error) {
	rows, err := d.db.Query("SELECT url, status_code, outcome, error, fetched_at FROM fetch_log ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []FetchLog
	for rows.Next() {
		var e FetchLog
		var errText sql.NullString
		if err := rows.Scan(&e.URL, &e.StatusCode, &e.Outcome, &errText, &e.FetchedAt); err != nil {
			return nil, err
		}
		e.Error = errText.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DuplicateFetches lists URLs that were fetched more than once.
func (d *Database) DuplicateFetches() ([]string, error) {
	rows, err := d.db.Query("SELECT url FROM fetch_log GROUP BY url HAVING COUNT(*) > 1 ORDER BY url")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

func (d *Database) Close() error {
	return d.db.Close()
}
