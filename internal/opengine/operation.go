package opengine

import (
	"context"

	"github.com/google/uuid"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
)

// Operation is one multi-phase catalog mutation: add/remove/update a
// mapping, or split/merge a range. Each phase method is called in order by
// the Runner; a phase returning an error stops the Do sequence and triggers
// Undo from the last completed phase backward (spec.md §4.4, §4.9).
//
// LocalTarget only does work for operations that can touch a second shard
// (split and merge, when the two ranges sit on different shards); operations touching
// one shard return nil immediately from both LocalTarget and
// UndoLocalTarget.
type Operation interface {
	Kind() catalogmodel.OperationKind
	MapID() uuid.UUID
	SourceShard() uuid.UUID
	TargetShard() uuid.UUID

	GlobalPreLocal(ctx context.Context) error
	LocalSource(ctx context.Context) error
	LocalTarget(ctx context.Context) error
	GlobalPostLocal(ctx context.Context) error

	UndoLocalTarget(ctx context.Context) error
	UndoLocalSource(ctx context.Context) error
	UndoGlobalPostLocal(ctx context.Context) error

	// Payload returns the operation-specific state persisted alongside the
	// pending-operation log row, so a recovery scan restarted in a new
	// process can reconstruct an equivalent Operation via the factory.
	Payload() []byte
}
