package run

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jobscout/jobscout/internal/scout"
)

// Manager owns run lifecycle: record creation, background execution,
// lookup and cancellation. It is the surface the HTTP API talks to.
type Manager struct {
	coordinator *Coordinator
	runs        scout.RunStore
	ids         scout.IDGenerator
	clock       scout.Clock
	logger      *zap.Logger

	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewManager wires a Manager. baseCtx bounds the lifetime of background
// runs; cancelling it stops dispatching on every active run.
func NewManager(
	baseCtx context.Context,
	coordinator *Coordinator,
	runs scout.RunStore,
	ids scout.IDGenerator,
	clock scout.Clock,
	logger *zap.Logger,
) (*Manager, error) {
	if coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if runs == nil {
		return nil, fmt.Errorf("run store is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Manager{
		coordinator: coordinator,
		runs:        runs,
		ids:         ids,
		clock:       clock,
		logger:      logger,
		baseCtx:     baseCtx,
	}, nil
}

// StartRun creates a pending run record and launches execution in the
// background. It returns the run ID immediately.
func (m *Manager) StartRun(ctx context.Context, spec scout.SearchSpec) (string, error) {
	runID, err := m.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}

	run := scout.Run{
		ID:        runID,
		Status:    scout.RunStatusPending,
		Spec:      spec,
		Submitted: m.clock.Now(),
	}
	if err := m.runs.Create(ctx, run); err != nil {
		return "", fmt.Errorf("create run record: %w", err)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.coordinator.Execute(m.baseCtx, runID, spec)
	}()

	m.logger.Info("run submitted", zap.String("run_id", runID))
	return runID, nil
}

// GetRun returns the stored run record.
func (m *Manager) GetRun(ctx context.Context, runID string) (scout.Run, error) {
	return m.runs.Get(ctx, runID)
}

// CancelRun marks a run cancelled. The coordinator observes the status on
// its next poll and stops dispatching; terminal runs cannot be cancelled.
func (m *Manager) CancelRun(ctx context.Context, runID string) error {
	run, err := m.runs.Get(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("run %s already %s", runID, run.Status)
	}
	if err := m.runs.Update(ctx, runID, scout.RunStatusCancelled, "cancelled by operator", run.Counters); err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	m.logger.Info("run cancelled", zap.String("run_id", runID))
	return nil
}

// Wait blocks until every background run launched by StartRun returns.
// Used during graceful shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}
