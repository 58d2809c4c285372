package catalogstore

import (
	"testing"

	"github.com/google/uuid"
)

func TestKillRegistry(t *testing.T) {
	reg := NewKillRegistry()
	mappingID := uuid.New()

	gen := reg.CurrentGeneration(mappingID)
	if gen != 0 {
		t.Fatalf("expected generation 0 for an untouched mapping, got %d", gen)
	}
	if !reg.IsCurrent(mappingID, gen) {
		t.Fatalf("expected a freshly-read generation to be current")
	}

	next := reg.MarkOffline(mappingID)
	if next != gen+1 {
		t.Fatalf("expected MarkOffline to increment the generation, got %d want %d", next, gen+1)
	}
	if reg.IsCurrent(mappingID, gen) {
		t.Fatalf("expected the pre-offline generation to no longer be current")
	}
	if !reg.IsCurrent(mappingID, next) {
		t.Fatalf("expected the post-offline generation to be current")
	}

	reg.Forget(mappingID)
	if reg.CurrentGeneration(mappingID) != 0 {
		t.Fatalf("expected Forget to reset the tracked generation")
	}
}
