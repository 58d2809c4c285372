package catalogmodel

import (
	"testing"

	"github.com/google/uuid"
)

func TestMappingLockState(t *testing.T) {
	m := PointMapping{LockOwnerID: UnlockedToken}
	if m.IsLocked() {
		t.Errorf("expected unlocked mapping to report IsLocked() == false")
	}

	m.LockOwnerID = uuid.New()
	if !m.IsLocked() {
		t.Errorf("expected mapping with an owner id to report IsLocked() == true")
	}

	m.LockOwnerID = ForceUnlockToken
	if !m.IsLocked() {
		t.Errorf("force-unlock token is still a non-empty owner id before UnlockMapping clears it")
	}
}

func TestShardMapTypeString(t *testing.T) {
	cases := map[ShardMapType]string{
		ShardMapTypeList:  "list",
		ShardMapTypeRange: "range",
	}
	for typ, want := range cases {
		if got := typ.String(); got != want {
			t.Errorf("ShardMapType(%d).String() = %q, want %q", typ, got, want)
		}
	}
}

func TestSnapshotCloneIsIndependent(t *testing.T) {
	original := &Snapshot{
		Shards: []Shard{{Status: ShardStatusOnline}},
	}
	clone := original.Clone()
	clone.Shards[0].Status = ShardStatusOffline

	if original.Shards[0].Status != ShardStatusOnline {
		t.Errorf("mutating a clone's shard slice must not affect the original")
	}
}

func TestShardLocationString(t *testing.T) {
	loc := ShardLocation{Server: "shard-db-1", Database: "tenants_00"}
	if got, want := loc.String(), "shard-db-1/tenants_00"; got != want {
		t.Errorf("ShardLocation.String() = %q, want %q", got, want)
	}
}
