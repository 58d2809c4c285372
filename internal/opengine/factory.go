package opengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
	"github.com/dreamware/shardcatalog/internal/shardmaperr"
)

// OperationFactory is the mandatory extension point named in Design Notes
// §9: operation construction is routed through it so tests can substitute a
// fault-injecting factory without touching the Runner or the façade.
type OperationFactory interface {
	// Wrap lets a factory observe or replace an already-constructed
	// Operation before the Runner executes it. The default factory
	// returns op unchanged.
	Wrap(op Operation) Operation
}

// DefaultFactory passes operations through unchanged; it exists so call
// sites can depend on an OperationFactory without a nil check.
type DefaultFactory struct{}

func (DefaultFactory) Wrap(op Operation) Operation { return op }

// FaultPoint names a specific phase of a specific operation kind to fail.
type FaultPoint struct {
	Kind  catalogmodel.OperationKind
	Phase catalogmodel.OperationPhase
}

// FaultInjectingFactory wraps operations so that the phase named by Fault
// fails for the first FailCount invocations (FailCount <= 0 means fail
// forever), letting recovery- and retry-path tests force a crash at an
// exact point in the Do/Undo sequence.
type FaultInjectingFactory struct {
	mu        sync.Mutex
	Fault     FaultPoint
	FailCount int
	failures  int
}

func (f *FaultInjectingFactory) Wrap(op Operation) Operation {
	return &faultInjectingOperation{Operation: op, factory: f}
}

func (f *FaultInjectingFactory) shouldFail(phase catalogmodel.OperationPhase, kind catalogmodel.OperationKind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fault.Kind != kind || f.Fault.Phase != phase {
		return false
	}
	if f.FailCount > 0 && f.failures >= f.FailCount {
		return false
	}
	f.failures++
	return true
}

type faultInjectingOperation struct {
	Operation
	factory *FaultInjectingFactory
}

func (o *faultInjectingOperation) failIfTargeted(phase catalogmodel.OperationPhase) error {
	if o.factory.shouldFail(phase, o.Kind()) {
		return shardmaperr.New(shardmaperr.CategoryGeneral, shardmaperr.CodeStorageOperationFailure,
			fmt.Sprintf("injected fault at phase %s", phase))
	}
	return nil
}

func (o *faultInjectingOperation) GlobalPreLocal(ctx context.Context) error {
	if err := o.failIfTargeted(catalogmodel.PhaseGlobalPreLocal); err != nil {
		return err
	}
	return o.Operation.GlobalPreLocal(ctx)
}

func (o *faultInjectingOperation) LocalSource(ctx context.Context) error {
	if err := o.failIfTargeted(catalogmodel.PhaseLocalSource); err != nil {
		return err
	}
	return o.Operation.LocalSource(ctx)
}

func (o *faultInjectingOperation) LocalTarget(ctx context.Context) error {
	if err := o.failIfTargeted(catalogmodel.PhaseLocalTarget); err != nil {
		return err
	}
	return o.Operation.LocalTarget(ctx)
}

func (o *faultInjectingOperation) GlobalPostLocal(ctx context.Context) error {
	if err := o.failIfTargeted(catalogmodel.PhaseGlobalPostLocal); err != nil {
		return err
	}
	return o.Operation.GlobalPostLocal(ctx)
}
