package memory

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreLoadEmpty(t *testing.T) {
	store := openTestStore(t)
	mem, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if mem != nil {
		t.Errorf("empty store should load nil, got %+v", mem)
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)

	mem := NewProfileMemory()
	mem.Summary = "likes documentation"
	mem.StableTraits.CoreIdentities = []string{"developer"}
	mem.Patterns = []WorkflowPattern{{Pattern: "daily standup prep", Frequency: 4, AutomationPotential: AutomationMedium}}
	mem.LastAnalyzedAt = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	if err := store.Save(mem); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil {
		t.Fatal("Load returned nil after Save")
	}
	if got.Summary != mem.Summary {
		t.Errorf("summary = %q", got.Summary)
	}
	if len(got.Patterns) != 1 || got.Patterns[0].Frequency != 4 {
		t.Errorf("patterns = %+v", got.Patterns)
	}
	if !got.LastAnalyzedAt.Equal(mem.LastAnalyzedAt) {
		t.Errorf("lastAnalyzedAt = %s", got.LastAnalyzedAt)
	}
	if got.Version != SchemaVersion {
		t.Errorf("version = %d, want %d", got.Version, SchemaVersion)
	}
}

func TestStoreSaveOverwrites(t *testing.T) {
	store := openTestStore(t)

	first := NewProfileMemory()
	first.Summary = "first"
	if err := store.Save(first); err != nil {
		t.Fatal(err)
	}

	second := NewProfileMemory()
	second.Summary = "second"
	if err := store.Save(second); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary != "second" {
		t.Errorf("summary = %q, want whole-object overwrite", got.Summary)
	}
}

func TestStoreDiscardsVersionMismatch(t *testing.T) {
	store := openTestStore(t)

	mem := NewProfileMemory()
	mem.Summary = "stale"
	if err := store.Save(mem); err != nil {
		t.Fatal(err)
	}

	// Corrupt the stored version directly
	if _, err := store.db.Exec(`UPDATE profile_memory SET data = json_set(data, '$.version', 99)`); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("version mismatch must not be an error: %v", err)
	}
	if got != nil {
		t.Errorf("mismatched version should be discarded, got %+v", got)
	}
}

func TestStoreClearPatterns(t *testing.T) {
	store := openTestStore(t)

	mem := NewProfileMemory()
	mem.Summary = "keep me"
	mem.Patterns = []WorkflowPattern{{Pattern: "p", Frequency: 1}}
	if err := store.Save(mem); err != nil {
		t.Fatal(err)
	}

	if err := store.ClearPatterns(); err != nil {
		t.Fatalf("ClearPatterns: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Patterns) != 0 {
		t.Errorf("patterns = %+v, want empty", got.Patterns)
	}
	if got.Summary != "keep me" {
		t.Errorf("summary lost: %q", got.Summary)
	}
}

func TestStoreClearPatternsNoProfile(t *testing.T) {
	store := openTestStore(t)
	if err := store.ClearPatterns(); err != nil {
		t.Errorf("ClearPatterns on empty store: %v", err)
	}
}

func TestStoreClear(t *testing.T) {
	store := openTestStore(t)
	if err := store.Save(NewProfileMemory()); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("profile survived Clear: %+v", got)
	}
}
