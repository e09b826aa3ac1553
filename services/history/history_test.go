package history

import (
	"context"
	"fmt"
	"testing"

	"lootCrate/api"
	"lootCrate/storage"
	"lootCrate/utils"
)

func TestAppendPrependsAndCaps(t *testing.T) {
	remote := storage.NewMemoryRemote()
	log := NewLog(remote)
	ctx := context.Background()

	for i := 0; i < MaxEntries+10; i++ {
		log.Append(ctx, "box-1", SpinEntry("u1", "Alice", "s1", fmt.Sprintf("item-%d", i)))
	}

	entries := log.Entries("box-1")
	if len(entries) != MaxEntries {
		t.Fatalf("in-memory view holds %d entries, want cap %d", len(entries), MaxEntries)
	}
	if *entries[0].Item != fmt.Sprintf("item-%d", MaxEntries+9) {
		t.Errorf("newest entry = %s, want most recent first", *entries[0].Item)
	}

	// The remote log is append-only and uncapped.
	if got := remote.HistoryLen("box-1"); got != MaxEntries+10 {
		t.Errorf("remote log holds %d entries, want %d", got, MaxEntries+10)
	}
}

func TestLoadReplacesWholesale(t *testing.T) {
	remote := storage.NewMemoryRemote()
	log := NewLog(remote)
	ctx := context.Background()

	if err := remote.AppendHistory(ctx, "box-1", SpinEntry("u2", "Bob", "s2", "remote-item")); err != nil {
		t.Fatal(err)
	}
	log.Append(ctx, "box-1", SpinEntry("u1", "Alice", "s1", "local-item"))

	entries, err := log.Load(ctx, "box-1", 10)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	// Load is a refresh, not a merge: whatever the remote says, in order.
	if len(entries) != 2 {
		t.Fatalf("Load() returned %d entries, want 2", len(entries))
	}
	if *entries[0].Item != "local-item" {
		t.Errorf("newest first order broken, got %s", *entries[0].Item)
	}
	if got := log.Entries("box-1"); len(got) != 2 {
		t.Errorf("in-memory view not replaced, holds %d", len(got))
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name   string
		entry  api.HistoryEntry
		want   string
		wantOK bool
	}{
		{"join", api.HistoryEntry{UserName: "Alice", Action: utils.ToPointer(api.ActionJoin)}, "Alice has joined the box", true},
		{"leave", api.HistoryEntry{UserName: "Bob", Action: utils.ToPointer(api.ActionLeave)}, "Bob has left the box", true},
		{"spin", api.HistoryEntry{UserName: "Cleo", Item: utils.ToPointer("Golden Sword")}, "Cleo got: Golden Sword", true},
		{"invalid entry skipped", api.HistoryEntry{UserName: "Mallory"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Render(tt.entry)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Render() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
