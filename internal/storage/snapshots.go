package storage

import (
	"database/sql"
	"errors"
	"time"
)

// Snapshot 某一时刻的控制器指标与状态
type Snapshot struct {
	ID                      int64         `json:"id"`
	TakenAt                 time.Time     `json:"taken_at"`
	TotalAttempts           int           `json:"total_attempts"`
	SuccessfulReconnections int           `json:"successful_reconnections"`
	FailedAttempts          int           `json:"failed_attempts"`
	AverageReconnectionTime time.Duration `json:"average_reconnection_time"`
	LastSuccessAt           time.Time     `json:"last_success_at,omitzero"`
	CumulativeUptime        time.Duration `json:"cumulative_uptime"`
	Phase                   string        `json:"phase"`
	Reconnecting            bool          `json:"reconnecting"`
	CircuitOpen             bool          `json:"circuit_open"`
	FallbackActive          bool          `json:"fallback_active"`
	AdaptiveMultiplier      float64       `json:"adaptive_multiplier"`
}

// SnapshotStore 指标快照存储
type SnapshotStore struct {
	db *DB
}

// NewSnapshotStore 创建快照存储
func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

const snapshotColumns = `id, taken_at_ms, total_attempts, successful_reconnections, failed_attempts,
	avg_reconnection_ms, last_success_ms, cumulative_uptime_ms, phase, reconnecting,
	circuit_open, fallback_active, adaptive_multiplier`

// Save 写入快照并回填 ID
func (s *SnapshotStore) Save(snap *Snapshot) error {
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now().UTC()
	}
	res, err := s.db.Exec(
		`INSERT INTO metrics_snapshots (taken_at_ms, total_attempts, successful_reconnections, failed_attempts,
			avg_reconnection_ms, last_success_ms, cumulative_uptime_ms, phase, reconnecting,
			circuit_open, fallback_active, adaptive_multiplier)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		toMillis(snap.TakenAt), snap.TotalAttempts, snap.SuccessfulReconnections, snap.FailedAttempts,
		snap.AverageReconnectionTime.Milliseconds(), toMillis(snap.LastSuccessAt), snap.CumulativeUptime.Milliseconds(),
		snap.Phase, boolToInt(snap.Reconnecting), boolToInt(snap.CircuitOpen), boolToInt(snap.FallbackActive),
		snap.AdaptiveMultiplier,
	)
	if err != nil {
		return err
	}
	snap.ID, err = res.LastInsertId()
	return err
}

// Latest 返回最新的快照，没有时返回 ErrNotFound
func (s *SnapshotStore) Latest() (*Snapshot, error) {
	row := s.db.QueryRow("SELECT " + snapshotColumns + " FROM metrics_snapshots ORDER BY id DESC LIMIT 1")
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return snap, err
}

// List 返回最近的 limit 个快照，最新的在前；limit <= 0 表示不限制
func (s *SnapshotStore) List(limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query("SELECT "+snapshotColumns+" FROM metrics_snapshots ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Prune 删除 before 之前的快照
func (s *SnapshotStore) Prune(before time.Time) (int64, error) {
	return pruneSnapshots(s.db, before)
}

func pruneSnapshots(ex execer, before time.Time) (int64, error) {
	res, err := ex.Exec("DELETE FROM metrics_snapshots WHERE taken_at_ms < ?", before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*Snapshot, error) {
	var (
		snap                           Snapshot
		takenMs, avgMs, lastMs, uptime int64
		reconnecting, circuit, fb      int
	)
	if err := row.Scan(&snap.ID, &takenMs, &snap.TotalAttempts, &snap.SuccessfulReconnections,
		&snap.FailedAttempts, &avgMs, &lastMs, &uptime, &snap.Phase, &reconnecting,
		&circuit, &fb, &snap.AdaptiveMultiplier); err != nil {
		return nil, err
	}
	snap.TakenAt = fromMillis(takenMs)
	snap.AverageReconnectionTime = time.Duration(avgMs) * time.Millisecond
	snap.LastSuccessAt = fromMillis(lastMs)
	snap.CumulativeUptime = time.Duration(uptime) * time.Millisecond
	snap.Reconnecting = reconnecting != 0
	snap.CircuitOpen = circuit != 0
	snap.FallbackActive = fb != 0
	return &snap, nil
}
