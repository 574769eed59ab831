// Package meta tracks per-artifact metadata in a SQLite database.
//
// The database lives next to the objects directory and records size,
// creation time, last access time and access count per identifier. It is
// opened in WAL mode so concurrent handles on the same cache root can
// read and write without blocking each other. Access tracking is batched
// through a background worker so Get never waits on the database.
package meta

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // pure Go sqlite driver
)

// Object is one metadata row.
type Object struct {
	ID          string
	Size        int64
	CreatedAt   int64
	AccessedAt  int64
	AccessCount int64
}

// Migrations are applied in order; the applied count is tracked with
// SQLite's user_version pragma. Never modify an existing entry, append.
var migrations = []string{
	`CREATE TABLE objects (
		id TEXT PRIMARY KEY,
		size INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		accessed_at INTEGER NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX idx_accessed_at ON objects(accessed_at);
	CREATE INDEX idx_access_count ON objects(access_count);`,
}

const (
	touchBuffer   = 1000
	touchBatchMax = 100
	touchFlush    = 100 * time.Millisecond
)

type touch struct {
	id string
	ts int64
}

// DB wraps the metadata database and its touch worker.
type DB struct {
	sql     *sql.DB
	logger  *slog.Logger
	touches chan touch
	done    chan struct{}
}

// Open opens or creates the metadata database at path, applies pragmas
// and migrations, and starts the touch worker.
func Open(path string, logger *slog.Logger) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := sqldb.Exec(pragma); err != nil {
			sqldb.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}

	if err := migrate(sqldb); err != nil {
		sqldb.Close()
		return nil, err
	}

	d := &DB{
		sql:     sqldb,
		logger:  logger,
		touches: make(chan touch, touchBuffer),
		done:    make(chan struct{}),
	}
	go d.touchLoop()
	return d, nil
}

func migrate(sqldb *sql.DB) error {
	var version int
	if err := sqldb.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		if _, err := sqldb.Exec(migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := sqldb.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			return fmt.Errorf("bump schema version: %w", err)
		}
	}
	return nil
}

// Record inserts or replaces the row for id, preserving its access count
// across re-puts of the same identifier.
func (d *DB) Record(id string, size, now int64) error {
	_, err := d.sql.Exec(
		`INSERT OR REPLACE INTO objects (id, size, created_at, accessed_at, access_count)
		 VALUES (?1, ?2, ?3, ?3, COALESCE((SELECT access_count FROM objects WHERE id = ?1), 0))`,
		id, size, now)
	if err != nil {
		return fmt.Errorf("record object: %w", err)
	}
	return nil
}

// Forget removes the row for id.
func (d *DB) Forget(id string) error {
	if _, err := d.sql.Exec("DELETE FROM objects WHERE id = ?1", id); err != nil {
		return fmt.Errorf("forget object: %w", err)
	}
	return nil
}

// Touch queues an access-time update. Never blocks; when the queue is
// full the update is dropped, an acceptable trade for read latency.
func (d *DB) Touch(id string, now int64) {
	select {
	case d.touches <- touch{id: id, ts: now}:
	default:
	}
}

// Size returns the recorded payload size and whether the row exists.
func (d *DB) Size(id string) (int64, bool, error) {
	var size int64
	err := d.sql.QueryRow("SELECT size FROM objects WHERE id = ?1", id).Scan(&size)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query size: %w", err)
	}
	return size, true, nil
}

// Stats returns the object count and total stored bytes.
func (d *DB) Stats() (objects, bytes int64, err error) {
	err = d.sql.QueryRow("SELECT COUNT(*), COALESCE(SUM(size), 0) FROM objects").Scan(&objects, &bytes)
	if err != nil {
		return 0, 0, fmt.Errorf("query stats: %w", err)
	}
	return objects, bytes, nil
}

// Objects returns every row, for eviction candidate selection.
func (d *DB) Objects() ([]Object, error) {
	rows, err := d.sql.Query("SELECT id, size, created_at, accessed_at, access_count FROM objects")
	if err != nil {
		return nil, fmt.Errorf("query objects: %w", err)
	}
	defer rows.Close()

	var objs []Object
	for rows.Next() {
		var o Object
		if err := rows.Scan(&o.ID, &o.Size, &o.CreatedAt, &o.AccessedAt, &o.AccessCount); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		objs = append(objs, o)
	}
	return objs, rows.Err()
}

// Close flushes pending touches, stops the worker and closes the database.
func (d *DB) Close() error {
	close(d.touches)
	<-d.done
	return d.sql.Close()
}

func (d *DB) touchLoop() {
	defer close(d.done)

	ticker := time.NewTicker(touchFlush)
	defer ticker.Stop()

	batch := make([]touch, 0, touchBatchMax)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.flushBatch(batch); err != nil {
			d.logger.Debug("access tracking flush failed", "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case t, ok := <-d.touches:
			if !ok {
				flush()
				return
			}
			batch = append(batch, t)
			if len(batch) >= touchBatchMax {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *DB) flushBatch(batch []touch) error {
	tx, err := d.sql.Begin()
	if err != nil {
		return fmt.Errorf("begin touch batch: %w", err)
	}
	for _, t := range batch {
		// Individual misses (row deleted since the touch) are not errors.
		tx.Exec(
			"UPDATE objects SET accessed_at = ?1, access_count = access_count + 1 WHERE id = ?2",
			t.ts, t.id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit touch batch: %w", err)
	}
	d.logger.Debug("flushed access tracking batch", "updates", len(batch))
	return nil
}
