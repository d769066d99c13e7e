package storage

import (
	"database/sql"
	"time"
)

// EventRecord 持久化的重连事件
type EventRecord struct {
	ID             int64     `json:"id"`
	CycleID        string    `json:"cycle_id"`
	Kind           string    `json:"kind"`
	Attempt        int       `json:"attempt"`
	Reason         string    `json:"reason,omitempty"`
	Strategy       string    `json:"strategy,omitempty"`
	Error          string    `json:"error,omitempty"`
	FallbackActive bool      `json:"fallback_active"`
	At             time.Time `json:"at"`
}

// EventStore 重连事件存储
type EventStore struct {
	db *DB
}

// NewEventStore 创建事件存储
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

// Append 写入一条事件并回填 ID
func (s *EventStore) Append(rec *EventRecord) error {
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	res, err := s.db.Exec(
		`INSERT INTO reconnect_events (cycle_id, kind, attempt, reason, strategy, error, fallback_active, at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CycleID, rec.Kind, rec.Attempt, rec.Reason, rec.Strategy, rec.Error,
		boolToInt(rec.FallbackActive), toMillis(rec.At),
	)
	if err != nil {
		return err
	}
	rec.ID, err = res.LastInsertId()
	return err
}

// List 返回最近的 limit 条事件，最新的在前；limit <= 0 表示不限制
func (s *EventStore) List(limit int) ([]*EventRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, cycle_id, kind, attempt, reason, strategy, error, fallback_active, at_ms
		 FROM reconnect_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// ListByCycle 按发生顺序返回某个重连周期的全部事件
func (s *EventStore) ListByCycle(cycleID string) ([]*EventRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, cycle_id, kind, attempt, reason, strategy, error, fallback_active, at_ms
		 FROM reconnect_events WHERE cycle_id = ? ORDER BY id ASC`,
		cycleID,
	)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// Count 返回事件总数
func (s *EventStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM reconnect_events").Scan(&n)
	return n, err
}

// Prune 删除 before 之前的事件
func (s *EventStore) Prune(before time.Time) (int64, error) {
	return pruneEvents(s.db, before)
}

func pruneEvents(ex execer, before time.Time) (int64, error) {
	res, err := ex.Exec("DELETE FROM reconnect_events WHERE at_ms < ?", before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanEvents(rows *sql.Rows) ([]*EventRecord, error) {
	defer rows.Close()

	var out []*EventRecord
	for rows.Next() {
		var (
			rec      EventRecord
			fallback int
			atMs     int64
		)
		if err := rows.Scan(&rec.ID, &rec.CycleID, &rec.Kind, &rec.Attempt, &rec.Reason,
			&rec.Strategy, &rec.Error, &fallback, &atMs); err != nil {
			return nil, err
		}
		rec.FallbackActive = fallback != 0
		rec.At = fromMillis(atMs)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
