package opengine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
	"github.com/dreamware/shardcatalog/internal/catalogstore"
)

// Runner drives one Operation through its Do phase sequence, persisting a
// PendingOperation row before the first phase and advancing its recorded
// phase after each one completes, so a crash mid-run leaves behind
// exactly the state the recovery scanner (recovery.go) knows how to
// resume or unwind.
type Runner struct {
	Global  catalogstore.GlobalStore
	Factory OperationFactory
	Retry   Policy
	Logger  *zap.Logger
}

// NewRunner builds a Runner with sane defaults: DefaultFactory, the spec's
// default retry policy (no retries), and a no-op logger.
func NewRunner(global catalogstore.GlobalStore) *Runner {
	return &Runner{Global: global, Factory: DefaultFactory{}, Retry: DefaultPolicy, Logger: zap.NewNop()}
}

// Run executes op's Do phases in order, advancing (and, on success,
// deleting) its pending-operation log entry as it goes. On any phase
// failure it runs Undo phases from the last completed phase backward and
// returns the original Do error, not any Undo error (an Undo failure is
// logged and left for the recovery scanner).
func (r *Runner) Run(ctx context.Context, op Operation) error {
	op = r.Factory.Wrap(op)

	opID := uuid.New()
	pending := catalogmodel.PendingOperation{
		ID: opID, MapID: op.MapID(), Kind: op.Kind(), Phase: catalogmodel.PhaseNotStarted,
		SourceShard: op.SourceShard(), TargetShard: op.TargetShard(), Payload: op.Payload(), StartedAt: time.Now(),
	}
	if err := r.Global.LogOperation(ctx, pending); err != nil {
		return err
	}

	phases := []struct {
		phase catalogmodel.OperationPhase
		run   func(context.Context) error
	}{
		{catalogmodel.PhaseGlobalPreLocal, op.GlobalPreLocal},
		{catalogmodel.PhaseLocalSource, op.LocalSource},
		{catalogmodel.PhaseLocalTarget, op.LocalTarget},
		{catalogmodel.PhaseGlobalPostLocal, op.GlobalPostLocal},
	}

	completed := -1
	var runErr error
	for i, p := range phases {
		if err := Do(ctx, r.Retry, p.run); err != nil {
			runErr = err
			break
		}
		completed = i
		if err := r.Global.AdvanceOperation(ctx, opID, p.phase); err != nil {
			r.Logger.Warn("failed to advance pending operation", zap.String("op", opID.String()), zap.Error(err))
		}
	}

	if runErr == nil {
		if err := r.Global.DeleteOperation(ctx, opID); err != nil {
			r.Logger.Warn("failed to delete completed pending operation", zap.String("op", opID.String()), zap.Error(err))
		}
		return nil
	}

	r.undo(ctx, op, completed)
	if err := r.Global.DeleteOperation(ctx, opID); err != nil {
		r.Logger.Warn("failed to delete pending operation after undo", zap.String("op", opID.String()), zap.Error(err))
	}
	return runErr
}

// undo runs the Undo phases that correspond to Do phases with index <=
// lastCompleted, in reverse order: UndoLocalTarget, UndoLocalSource,
// UndoGlobalPostLocal. There is no UndoGlobalPreLocal — GlobalPreLocal's
// effect is unwound by UndoGlobalPostLocal, per spec.md §4.9.
func (r *Runner) undo(ctx context.Context, op Operation, lastCompleted int) {
	const (
		idxGlobalPreLocal = 0
		idxLocalSource    = 1
		idxLocalTarget    = 2
	)

	if lastCompleted >= idxLocalTarget {
		if err := Do(ctx, r.Retry, op.UndoLocalTarget); err != nil {
			r.Logger.Error("undo local target failed", zap.Error(err))
		}
	}
	if lastCompleted >= idxLocalSource {
		if err := Do(ctx, r.Retry, op.UndoLocalSource); err != nil {
			r.Logger.Error("undo local source failed", zap.Error(err))
		}
	}
	if lastCompleted >= idxGlobalPreLocal {
		if err := Do(ctx, r.Retry, op.UndoGlobalPostLocal); err != nil {
			r.Logger.Error("undo global post-local failed", zap.Error(err))
		}
	}
}
