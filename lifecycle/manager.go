// Package lifecycle manages the registration and heartbeating of one
// scheduler run against the metadata store.
package lifecycle

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warehaul/warehaul/metrics"
	"github.com/warehaul/warehaul/store"
)

// Config holds configuration for the lifecycle Manager.
type Config struct {
	// Store is the metadata store recording run liveness (required).
	Store store.MetaStore

	// HeartbeatInterval is the interval between heartbeats (default: 5s).
	HeartbeatInterval time.Duration

	// Logger is for observability (optional).
	Logger logrus.FieldLogger

	// Collector is for metrics (optional).
	Collector *metrics.Collector
}

// Manager manages the lifecycle of a single scheduler run.
type Manager struct {
	config Config
	runID  string
}

// New creates a new lifecycle Manager with the given configuration.
// Applies a default HeartbeatInterval if not set.
func New(cfg Config) *Manager {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}

	return &Manager{
		config: cfg,
	}
}

// Register records a new run in the store and remembers its ID.
func (m *Manager) Register(ctx context.Context) (store.Run, error) {
	run, err := m.config.Store.RegisterRun(ctx)
	if err != nil {
		return store.Run{}, err
	}

	m.runID = run.ID
	if m.config.Logger != nil {
		m.config.Logger.WithField("run_id", run.ID).Info("run registered")
	}
	return run, nil
}

// StartHeartbeat runs a heartbeat loop until the context is cancelled.
// Sends heartbeats at the configured interval and logs if a logger is
// provided. A failed heartbeat ends the loop with the store's error.
func (m *Manager) StartHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(m.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.config.Store.Heartbeat(ctx, m.runID); err != nil {
				if m.config.Logger != nil {
					m.config.Logger.WithField("run_id", m.runID).WithError(err).Error("heartbeat failed")
				}
				return err
			}

			if m.config.Collector != nil {
				m.config.Collector.IncHeartbeats()
			}
			if m.config.Logger != nil {
				m.config.Logger.WithField("run_id", m.runID).Debug("heartbeat sent")
			}
		}
	}
}

// Finish marks the run as completed in the store.
func (m *Manager) Finish(ctx context.Context) error {
	if err := m.config.Store.FinishRun(ctx, m.runID); err != nil {
		return err
	}

	if m.config.Logger != nil {
		m.config.Logger.WithField("run_id", m.runID).Info("run finished")
	}
	return nil
}

// GetRun returns the current run from the store.
func (m *Manager) GetRun(ctx context.Context) (store.Run, error) {
	return m.config.Store.GetRun(ctx, m.runID)
}

// RunID returns the stored run ID.
func (m *Manager) RunID() string {
	return m.runID
}
