package history

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"relink/internal/reconnect"
	"relink/internal/storage"
)

// StatusSource exposes the controller snapshots a metrics snapshot is built from.
type StatusSource interface {
	State() reconnect.State
	Metrics() reconnect.Metrics
}

// SnapshotSaver stores one snapshot.
type SnapshotSaver interface {
	Save(snap *storage.Snapshot) error
}

// Pruner deletes history older than a cutoff.
type Pruner interface {
	Prune(before time.Time) (storage.PruneResult, error)
}

// JobsConfig holds the cron schedules. An empty schedule disables that job.
type JobsConfig struct {
	SnapshotSchedule string
	PruneSchedule    string
	Retention        time.Duration
}

// Jobs runs the periodic snapshot and retention tasks on robfig/cron.
type Jobs struct {
	cron      *cron.Cron
	source    StatusSource
	snapshots SnapshotSaver
	pruner    Pruner
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewJobs validates the schedules and registers the jobs. Nothing runs
// until Start.
func NewJobs(source StatusSource, snapshots SnapshotSaver, pruner Pruner, cfg JobsConfig, log zerolog.Logger) (*Jobs, error) {
	cl := cronLogger{log: log}
	j := &Jobs{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		source:    source,
		snapshots: snapshots,
		pruner:    pruner,
		retention: cfg.Retention,
		now:       time.Now,
		log:       log,
	}

	if cfg.SnapshotSchedule != "" {
		if _, err := j.cron.AddFunc(cfg.SnapshotSchedule, j.runSnapshot); err != nil {
			return nil, fmt.Errorf("invalid snapshot schedule %q: %w", cfg.SnapshotSchedule, err)
		}
	}
	if cfg.PruneSchedule != "" && cfg.Retention > 0 {
		if _, err := j.cron.AddFunc(cfg.PruneSchedule, j.runPrune); err != nil {
			return nil, fmt.Errorf("invalid prune schedule %q: %w", cfg.PruneSchedule, err)
		}
	}
	return j, nil
}

// Start begins running the jobs in the background.
func (j *Jobs) Start() {
	j.cron.Start()
	j.log.Info().Int("jobs", len(j.cron.Entries())).Msg("History jobs started")
}

// Stop stops scheduling; the returned context is done once running jobs finish.
func (j *Jobs) Stop() context.Context {
	return j.cron.Stop()
}

// TakeSnapshot stores the controller's current metrics and state.
func (j *Jobs) TakeSnapshot() (*storage.Snapshot, error) {
	snap := SnapshotOf(j.source.State(), j.source.Metrics(), j.now())
	if err := j.snapshots.Save(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Prune deletes events and snapshots older than the retention window.
func (j *Jobs) Prune() (storage.PruneResult, error) {
	return j.pruner.Prune(j.now().Add(-j.retention))
}

func (j *Jobs) runSnapshot() {
	if _, err := j.TakeSnapshot(); err != nil {
		j.log.Error().Err(err).Msg("Metrics snapshot failed")
	}
}

func (j *Jobs) runPrune() {
	res, err := j.Prune()
	if err != nil {
		j.log.Error().Err(err).Msg("History prune failed")
		return
	}
	j.log.Info().Int64("events", res.Events).Int64("snapshots", res.Snapshots).Msg("History pruned")
}

// SnapshotOf builds a stored snapshot from controller snapshots.
func SnapshotOf(st reconnect.State, m reconnect.Metrics, at time.Time) *storage.Snapshot {
	return &storage.Snapshot{
		TakenAt:                 at.UTC(),
		TotalAttempts:           m.TotalAttempts,
		SuccessfulReconnections: m.SuccessfulReconnections,
		FailedAttempts:          m.FailedAttempts,
		AverageReconnectionTime: m.AverageReconnectionTime,
		LastSuccessAt:           m.LastSuccessAt,
		CumulativeUptime:        m.CumulativeUptime,
		Phase:                   string(st.Phase),
		Reconnecting:            st.IsReconnecting,
		CircuitOpen:             st.CircuitBreakerOpen,
		FallbackActive:          st.FallbackModeActive,
		AdaptiveMultiplier:      st.AdaptiveDelayMultiplier,
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
