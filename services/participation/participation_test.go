package participation

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"lootCrate/api"
	"lootCrate/storage"
)

func participationFor(boxID, userID string) api.Participation {
	return api.Participation{
		GroupBoxID:         boxID,
		UserID:             userID,
		UserName:           "Alice",
		UserRemainingTries: 3,
		Status:             api.StatusActive,
	}
}

func seedBox(t *testing.T, remote *storage.MemoryRemote, createdBy string, participates bool) string {
	t.Helper()
	id, err := remote.CreateGroupBox(context.Background(), api.GroupBox{
		CreatedBy:   createdBy,
		CreatorName: "Alice",
		Lootbox: api.LootboxDefinition{
			Name:  "Starter",
			Items: []api.Item{{Name: "A", Odds: 1}},
		},
		Settings: api.GroupBoxSettings{TriesPerPerson: 3, CreatorParticipates: participates},
		Status:   api.StatusActive,
	})
	if err != nil {
		t.Fatalf("CreateGroupBox() error = %v", err)
	}
	return id
}

func ids(list []api.Participation) []string {
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = p.GroupBoxID
	}
	return out
}

func TestMerge(t *testing.T) {
	local := []api.Participation{participationFor("a", "u"), participationFor("b", "u")}
	remote := []api.Participation{participationFor("b", "u"), participationFor("c", "u")}
	remote[0].UserRemainingTries = 7

	t.Run("remote wins on conflict, nothing is lost", func(t *testing.T) {
		merged := Merge(remote, local)
		if got := ids(merged); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
			t.Fatalf("merged ids = %v", got)
		}
		for _, p := range merged {
			if p.GroupBoxID == "b" && p.UserRemainingTries != 7 {
				t.Errorf("remote record must win, got tries %d", p.UserRemainingTries)
			}
		}
	})

	t.Run("empty remote never erases local", func(t *testing.T) {
		if got := Merge(nil, local); !reflect.DeepEqual(got, local) {
			t.Errorf("Merge(nil, local) = %v, want local unchanged", got)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		once := Merge(remote, local)
		twice := Merge(remote, once)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("Merge is not idempotent:\nonce:  %v\ntwice: %v", once, twice)
		}
	})

	t.Run("result at least as large as both sides", func(t *testing.T) {
		merged := Merge(remote, local)
		if len(merged) < len(remote) || len(merged) < len(local) {
			t.Errorf("merged size %d smaller than inputs", len(merged))
		}
	})
}

func TestLoadPrunesOrphans(t *testing.T) {
	ctx := context.Background()
	remote := storage.NewMemoryRemote()
	cache := storage.NewMemoryCache()
	store := NewStore(remote, cache)

	live := seedBox(t, remote, "creator", true)
	if err := remote.SetParticipation(ctx, participationFor(live, "u1")); err != nil {
		t.Fatal(err)
	}
	// A record whose aggregate was deleted out from under it.
	if err := remote.SetParticipation(ctx, participationFor("gone-box", "u1")); err != nil {
		t.Fatal(err)
	}

	list, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := ids(list); !reflect.DeepEqual(got, []string{live}) {
		t.Errorf("Load() ids = %v, want only %s", got, live)
	}

	// The orphan is gone remotely too.
	remaining, err := remote.ListParticipations(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 {
		t.Errorf("orphaned remote record not pruned, %d records remain", len(remaining))
	}
}

func TestLoadFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	remote := storage.NewMemoryRemote()
	cache := storage.NewMemoryCache()
	store := NewStore(remote, cache)

	cached := []api.Participation{participationFor("cached-box", "u1")}
	if err := cache.Set("participations/u1", cached); err != nil {
		t.Fatal(err)
	}

	remote.Err = errors.New("network down")
	list, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load() error = %v, want cached fallback", err)
	}
	if got := ids(list); !reflect.DeepEqual(got, []string{"cached-box"}) {
		t.Errorf("Load() ids = %v, want cached snapshot", got)
	}

	t.Run("no cache either", func(t *testing.T) {
		empty := NewStore(remote, storage.NewMemoryCache())
		if _, err := empty.Load(ctx, "u1"); err == nil {
			t.Error("Load() expected error with remote down and empty cache")
		}
	})
}

func TestLoadReconstructsOrganizerRecord(t *testing.T) {
	ctx := context.Background()
	remote := storage.NewMemoryRemote()
	store := NewStore(remote, storage.NewMemoryCache())

	// Creator's personal record was lost to a partial write; the aggregate
	// alone must resurrect it with organizer flags.
	boxID := seedBox(t, remote, "creator", false)

	list, err := store.Load(ctx, "creator")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("Load() returned %d records, want 1", len(list))
	}
	p := list[0]
	if p.GroupBoxID != boxID || !p.OrganizerOnly {
		t.Errorf("reconstructed record = %+v, want organizer-only for %s", p, boxID)
	}
	if p.UserRemainingTries != 0 {
		t.Errorf("organizer tries = %d, want 0", p.UserRemainingTries)
	}
}

func TestLoadAppliesTryRecord(t *testing.T) {
	ctx := context.Background()
	remote := storage.NewMemoryRemote()
	store := NewStore(remote, storage.NewMemoryCache())

	boxID := seedBox(t, remote, "creator", true)
	if err := remote.SetParticipation(ctx, participationFor(boxID, "u1")); err != nil {
		t.Fatal(err)
	}
	if err := remote.SetTryRecord(ctx, api.TryRecord{
		GroupBoxID: boxID, UserID: "u1", RemainingTries: 9, TotalOpens: 4,
	}); err != nil {
		t.Fatal(err)
	}

	list, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if list[0].UserRemainingTries != 9 || list[0].UserTotalOpens != 4 {
		t.Errorf("try record not applied: tries=%d opens=%d", list[0].UserRemainingTries, list[0].UserTotalOpens)
	}
}

func TestUpsertAndRemove(t *testing.T) {
	ctx := context.Background()
	remote := storage.NewMemoryRemote()
	cache := storage.NewMemoryCache()
	store := NewStore(remote, cache)

	p := participationFor("box-a", "u1")
	if err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	t.Run("replaces by id", func(t *testing.T) {
		p.UserRemainingTries = 1
		if err := store.Upsert(ctx, p); err != nil {
			t.Fatal(err)
		}
		list := store.List("u1")
		if len(list) != 1 || list[0].UserRemainingTries != 1 {
			t.Errorf("List() = %v, want single updated record", list)
		}
	})

	t.Run("cache is written before return", func(t *testing.T) {
		var cached []api.Participation
		ok, err := cache.Get("participations/u1", &cached)
		if err != nil || !ok {
			t.Fatalf("cache.Get() = %v, %v", ok, err)
		}
		if len(cached) != 1 || cached[0].UserRemainingTries != 1 {
			t.Errorf("cached = %v, want updated record", cached)
		}
	})

	t.Run("remote failure does not block the update", func(t *testing.T) {
		remote.Err = errors.New("network down")
		defer func() { remote.Err = nil }()
		q := participationFor("box-b", "u1")
		if err := store.Upsert(ctx, q); err != nil {
			t.Fatalf("Upsert() error = %v, remote write is best effort", err)
		}
		if len(store.List("u1")) != 2 {
			t.Error("in-memory update lost on remote failure")
		}
	})

	t.Run("remove drops by id", func(t *testing.T) {
		if err := store.Remove(ctx, "u1", "box-a"); err != nil {
			t.Fatal(err)
		}
		if got := ids(store.List("u1")); !reflect.DeepEqual(got, []string{"box-b"}) {
			t.Errorf("List() ids = %v, want [box-b]", got)
		}
	})
}

func TestReconcileConvergesGrantedTries(t *testing.T) {
	ctx := context.Background()
	remote := storage.NewMemoryRemote()
	store := NewStore(remote, storage.NewMemoryCache())

	boxID := seedBox(t, remote, "creator", true)
	if err := remote.SetParticipation(ctx, participationFor(boxID, "u1")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if err := remote.SetTryRecord(ctx, api.TryRecord{
		GroupBoxID: boxID, UserID: "u1", RemainingTries: 2, FirstTryAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := remote.AdjustTries(ctx, boxID, "u1", 3, 0); err != nil {
		t.Fatal(err)
	}

	store.Reconcile(ctx)
	p, ok := store.Get("u1", boxID)
	if !ok {
		t.Fatal("record missing after reconcile")
	}
	if p.UserRemainingTries != 5 {
		t.Errorf("UserRemainingTries = %d, want 5 after grant", p.UserRemainingTries)
	}
}
