package dedup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dumpwatch/internal/config"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Entry is a persisted dedup record.
type Entry struct {
	Name       string
	RecordedAt time.Time
}

// Store is the SQLite-backed set of notified artifact names.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens the dedup database under the configured state directory.
func Open(cfg *config.Config) (*Store, error) {
	return OpenPath(cfg.DedupDBPath())
}

// OpenPath opens or creates the dedup database at path.
func OpenPath(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dedup directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// dsn applies pragmas per connection so a recycled connection keeps them.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(FULL)")
	q.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + q.Encode()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Contains reports whether name has already been notified.
func (s *Store) Contains(ctx context.Context, name string) (bool, error) {
	ctx = ensureContext(ctx)
	var found int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM dedup_entries WHERE name = ?", name).Scan(&found)
	})
	if err != nil {
		return false, fmt.Errorf("dedup contains %q: %w", name, err)
	}
	return found > 0, nil
}

// Put records name. Recording an existing name keeps the original entry.
func (s *Store) Put(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("dedup put: empty name")
	}
	recorded := s.now().UTC().Format(time.RFC3339Nano)
	if err := s.exec(ctx,
		"INSERT INTO dedup_entries (name, recorded_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING",
		name, recorded,
	); err != nil {
		return fmt.Errorf("dedup put %q: %w", name, err)
	}
	return nil
}

// Remove deletes name if present.
func (s *Store) Remove(ctx context.Context, name string) error {
	_, err := s.Forget(ctx, name)
	return err
}

// Forget deletes name and reports whether an entry existed.
func (s *Store) Forget(ctx context.Context, name string) (bool, error) {
	ctx = ensureContext(ctx)
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, "DELETE FROM dedup_entries WHERE name = ?", name)
		return execErr
	})
	if err != nil {
		return false, fmt.Errorf("dedup remove %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nil
	}
	return n > 0, nil
}

// AllKeys returns every recorded name.
func (s *Store) AllKeys(ctx context.Context) (map[string]struct{}, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		keys[e.Name] = struct{}{}
	}
	return keys, nil
}

// List returns all entries ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	ctx = ensureContext(ctx)
	var entries []Entry
	err := retryOnBusy(ctx, func() error {
		entries = entries[:0]
		rows, err := s.db.QueryContext(ctx, "SELECT name, recorded_at FROM dedup_entries ORDER BY name")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				name     string
				recorded string
			)
			if err := rows.Scan(&name, &recorded); err != nil {
				return err
			}
			ts, _ := time.Parse(time.RFC3339Nano, recorded)
			entries = append(entries, Entry{Name: name, RecordedAt: ts})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("dedup list: %w", err)
	}
	return entries, nil
}

// Clear removes every entry and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, "DELETE FROM dedup_entries")
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("dedup clear: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
