package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sjawhar/ghost-wispr-live/internal/api"
)

const (
	SortNewest = "newest"
	SortOldest = "oldest"

	DefaultLimit = 50

	// Fixed width so created_at sorts lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

type Entry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Duration  float64   `json:"duration"`
	CreatedAt time.Time `json:"createdAt"`
}

// FromAPI converts server history entries.
func FromAPI(items []api.HistoryEntry) []Entry {
	out := make([]Entry, 0, len(items))
	for _, it := range items {
		out = append(out, Entry(it))
	}
	return out
}

type Query struct {
	Search string
	Sort   string
	Limit  int
	Offset int
}

// Cache mirrors the server's history listing in a private in-memory SQLite
// database. Nothing survives Close.
type Cache struct {
	db *sql.DB
}

func NewCache() (*Cache, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open history cache: %w", err)
	}

	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	c := &Cache{db: db}
	if err := c.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) init() error {
	if _, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			duration REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create entries table: %w", err)
	}
	if _, err := c.db.Exec("CREATE INDEX IF NOT EXISTS idx_entries_created_at ON entries(created_at)"); err != nil {
		return fmt.Errorf("create entries index: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Replace swaps the whole mirror for entries in one transaction.
func (c *Cache) Replace(ctx context.Context, entries []Entry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO entries(id, title, content, duration, created_at) VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		if strings.TrimSpace(e.ID) == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.Title, e.Content, e.Duration,
			e.CreatedAt.UTC().Format(timeLayout)); err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

func whereSearch(search string) (string, []any) {
	search = strings.TrimSpace(search)
	if search == "" {
		return "", nil
	}
	pattern := "%" + escapeLike(search) + "%"
	return ` WHERE title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\'`, []any{pattern, pattern}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (c *Cache) Query(ctx context.Context, q Query) ([]Entry, error) {
	where, args := whereSearch(q.Search)

	order := "DESC"
	if q.Sort == SortOldest {
		order = "ASC"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	offset := max(q.Offset, 0)

	query := `SELECT id, title, content, duration, created_at FROM entries` + where +
		` ORDER BY created_at ` + order + `, id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Title, &e.Content, &e.Duration, &createdAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		parsed, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse entry %s created_at: %w", e.ID, err)
		}
		e.CreatedAt = parsed
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entry rows: %w", err)
	}
	return entries, nil
}

func (c *Cache) Count(ctx context.Context, search string) (int, error) {
	where, args := whereSearch(search)
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}
