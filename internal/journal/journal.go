// Package journal records widget events in an in-memory DuckDB database and
// answers per-area interaction statistics. Nothing is written to disk; the
// journal lives as long as the process.
package journal

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"
	"k8s.io/klog/v2"

	"github.com/nb-picture/backend/internal/events"
)

const defaultBatchSize = 256

// AreaStat aggregates the interactions recorded for one area.
type AreaStat struct {
	AreaID   string    `json:"areaId" msgpack:"areaId"`
	Clicks   int       `json:"clicks" msgpack:"clicks"`
	Focuses  int       `json:"focuses" msgpack:"focuses"`
	Hovers   int       `json:"hovers" msgpack:"hovers"`
	Changes  int       `json:"changes" msgpack:"changes"` // interactions that changed a highlighted set
	LastSeen time.Time `json:"lastSeen" msgpack:"lastSeen"`
}

// Journal is an append-only event log.
type Journal struct {
	mu        sync.Mutex
	db        *sql.DB
	next      int64
	batch     []events.Event
	batchSize int
}

// New opens an in-memory journal.
func New() (*Journal, error) {
	connector, err := duckdb.NewConnector("", func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE events (
			id         BIGINT PRIMARY KEY,
			ts         TIMESTAMP NOT NULL,
			picture_id VARCHAR NOT NULL,
			type       VARCHAR NOT NULL,
			area_id    VARCHAR,
			blur       BOOLEAN NOT NULL,
			overlays   VARCHAR,
			changed    BOOLEAN NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	klog.V(1).Info("[Journal] in-memory database ready")
	return &Journal{
		db:        db,
		batch:     make([]events.Event, 0, defaultBatchSize),
		batchSize: defaultBatchSize,
	}, nil
}

// Record queues an event. Events are appended in batches.
func (j *Journal) Record(e events.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.batch = append(j.batch, e)
	if len(j.batch) >= j.batchSize {
		return j.flushLocked()
	}
	return nil
}

// Flush appends every queued event.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.flushLocked()
}

func (j *Journal) flushLocked() error {
	if len(j.batch) == 0 {
		return nil
	}

	conn, err := j.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn any) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "events")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		for i, e := range j.batch {
			ts := e.Timestamp
			if ts.IsZero() {
				ts = time.Now()
			}
			err := appender.AppendRow(
				j.next+int64(i),
				ts.UTC(),
				e.PictureID,
				string(e.Type),
				e.AreaID,
				e.Blur,
				strings.Join(e.Overlays, ","),
				e.Changed(),
			)
			if err != nil {
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	j.next += int64(len(j.batch))
	j.batch = j.batch[:0]
	return nil
}

// Count returns the number of recorded events.
func (j *Journal) Count(ctx context.Context) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.flushLocked(); err != nil {
		return 0, err
	}
	var n int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return n, nil
}

// AreaStats returns interaction counts per area of a picture, ordered by
// area id.
func (j *Journal) AreaStats(ctx context.Context, pictureID string) ([]AreaStat, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.flushLocked(); err != nil {
		return nil, err
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT
			area_id,
			CAST(SUM(CASE WHEN type = 'clickArea' THEN 1 ELSE 0 END) AS BIGINT),
			CAST(SUM(CASE WHEN type = 'focusArea' AND NOT blur THEN 1 ELSE 0 END) AS BIGINT),
			CAST(SUM(CASE WHEN type = 'hoverArea' AND NOT blur THEN 1 ELSE 0 END) AS BIGINT),
			CAST(SUM(CASE WHEN changed THEN 1 ELSE 0 END) AS BIGINT),
			MAX(ts)
		FROM events
		WHERE picture_id = ? AND area_id <> ''
		GROUP BY area_id
		ORDER BY area_id`, pictureID)
	if err != nil {
		return nil, fmt.Errorf("querying area stats: %w", err)
	}
	defer rows.Close()

	stats := []AreaStat{}
	for rows.Next() {
		var s AreaStat
		var clicks, focuses, hovers, changes int64
		if err := rows.Scan(&s.AreaID, &clicks, &focuses, &hovers, &changes, &s.LastSeen); err != nil {
			return nil, fmt.Errorf("scanning area stats: %w", err)
		}
		s.Clicks, s.Focuses, s.Hovers, s.Changes = int(clicks), int(focuses), int(hovers), int(changes)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Forget drops every event of a picture.
func (j *Journal) Forget(ctx context.Context, pictureID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.flushLocked(); err != nil {
		return err
	}
	if _, err := j.db.ExecContext(ctx, "DELETE FROM events WHERE picture_id = ?", pictureID); err != nil {
		return fmt.Errorf("deleting events: %w", err)
	}
	return nil
}

// Close releases the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.Close()
}
