package opengine

import (
	"context"

	"go.uber.org/zap"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
	"github.com/dreamware/shardcatalog/internal/catalogstore"
)

// Rehydrator reconstructs a concrete Operation from a logged
// PendingOperation, so the recovery scanner can resume or unwind work left
// behind by a crash without the original in-memory call having survived.
// pkg/shardmgmt registers one Rehydrator per OperationKind it can produce.
type Rehydrator interface {
	Rehydrate(ctx context.Context, op catalogmodel.PendingOperation) (Operation, error)
}

// RehydratorFunc adapts a function to a Rehydrator.
type RehydratorFunc func(ctx context.Context, op catalogmodel.PendingOperation) (Operation, error)

func (f RehydratorFunc) Rehydrate(ctx context.Context, op catalogmodel.PendingOperation) (Operation, error) {
	return f(ctx, op)
}

// Scanner runs at startup (and may be re-run periodically) to drain the
// pending-operations log: spec.md §4.9 requires this to happen, per
// catalog, before the next operation against that same catalog is allowed
// to start.
type Scanner struct {
	Global     catalogstore.GlobalStore
	Rehydrator Rehydrator
	Runner     *Runner
	Logger     *zap.Logger
}

// NewScanner builds a Scanner with a no-op logger.
func NewScanner(global catalogstore.GlobalStore, rehydrator Rehydrator, runner *Runner) *Scanner {
	return &Scanner{Global: global, Rehydrator: rehydrator, Runner: runner, Logger: zap.NewNop()}
}

// Run lists every pending operation and resolves it: operations that never
// reached GlobalPostLocal are unwound (Undo from their recorded phase
// backward); this scanner never attempts forward resumption of partially
// completed Do sequences, since redoing a phase that already partially
// wrote data is unsafe without per-phase idempotence guarantees this
// engine doesn't make — unwinding to a known-good state is always safe.
func (s *Scanner) Run(ctx context.Context) error {
	pending, err := s.Global.ListPendingOperations(ctx)
	if err != nil {
		return err
	}

	for _, p := range pending {
		if p.Phase == catalogmodel.PhaseCommitted || p.Phase == catalogmodel.PhaseGlobalPostLocal {
			// Every Do phase succeeded; only the final log deletion was
			// lost to the crash.
			if err := s.Global.DeleteOperation(ctx, p.ID); err != nil {
				s.Logger.Warn("failed to delete committed operation during recovery", zap.String("op", p.ID.String()), zap.Error(err))
			}
			continue
		}

		op, err := s.Rehydrator.Rehydrate(ctx, p)
		if err != nil {
			s.Logger.Error("failed to rehydrate pending operation, leaving it for the next scan",
				zap.String("op", p.ID.String()), zap.Error(err))
			continue
		}

		s.Runner.undo(ctx, op, phaseIndex(p.Phase))

		if err := s.Global.DeleteOperation(ctx, p.ID); err != nil {
			s.Logger.Warn("failed to delete operation after recovery undo", zap.String("op", p.ID.String()), zap.Error(err))
		}
	}
	return nil
}

// phaseIndex converts the last-completed phase recorded in the log into
// the zero-based Do-phase index Runner.undo expects (-1 meaning nothing
// completed yet).
func phaseIndex(phase catalogmodel.OperationPhase) int {
	switch phase {
	case catalogmodel.PhaseNotStarted:
		return -1
	case catalogmodel.PhaseGlobalPreLocal:
		return 0
	case catalogmodel.PhaseLocalSource:
		return 1
	case catalogmodel.PhaseLocalTarget:
		return 2
	case catalogmodel.PhaseGlobalPostLocal:
		return 3
	default:
		return -1
	}
}
