package storage

import (
	"context"
	"errors"

	"lootCrate/api"
)

var NotFound = errors.New("not found")

// Remote is the document-store surface the group box core consumes. One
// aggregate document per box, a tries sub-collection keyed by user, an
// append-only history sub-collection, and per-user participation records
// keyed by box.
type Remote interface {
	// CreateGroupBox writes a new aggregate document and returns its
	// generated id.
	CreateGroupBox(ctx context.Context, box api.GroupBox) (string, error)
	// GetGroupBox returns the aggregate document or NotFound.
	GetGroupBox(ctx context.Context, groupBoxID string) (*api.GroupBox, error)
	// UpdateGroupBoxItems replaces the aggregate's item pool.
	UpdateGroupBoxItems(ctx context.Context, groupBoxID string, items []api.Item) error
	// IncrementGroupBoxCounters adds to totalOpens and uniqueUsers using the
	// store's atomic increment primitive. Concurrent spins from different
	// users must not lose updates.
	IncrementGroupBoxCounters(ctx context.Context, groupBoxID string, opens, uniqueUsers int) error
	// DeleteGroupBox removes the aggregate document. Participation records
	// pointing at it become orphans, pruned lazily on the next load.
	DeleteGroupBox(ctx context.Context, groupBoxID string) error
	// ListOrganizerBoxes returns active boxes the user created without
	// participating in them.
	ListOrganizerBoxes(ctx context.Context, userID string) ([]api.GroupBox, error)

	// SetParticipation upserts the user's personal record for a box.
	SetParticipation(ctx context.Context, p api.Participation) error
	// DeleteParticipation removes the user's personal record for a box.
	DeleteParticipation(ctx context.Context, groupBoxID, userID string) error
	// ListParticipations returns every personal record the user holds.
	ListParticipations(ctx context.Context, userID string) ([]api.Participation, error)

	// GetTryRecord returns the per-user try document or NotFound.
	GetTryRecord(ctx context.Context, groupBoxID, userID string) (*api.TryRecord, error)
	// SetTryRecord upserts the per-user try document.
	SetTryRecord(ctx context.Context, rec api.TryRecord) error
	// AdjustTries atomically adds triesDelta to the user's remaining tries
	// and opensDelta to their open count.
	AdjustTries(ctx context.Context, groupBoxID, userID string, triesDelta, opensDelta int) error

	// AppendHistory adds one event to the box's history.
	AppendHistory(ctx context.Context, groupBoxID string, entry api.HistoryEntry) error
	// ListHistory returns the newest events first, capped at limit.
	ListHistory(ctx context.Context, groupBoxID string, limit int) ([]api.HistoryEntry, error)
}

// Cache is the durable local key/value mirror. Values round-trip through
// JSON; Get reports false when the key has never been written.
type Cache interface {
	Get(key string, v any) (bool, error)
	Set(key string, v any) error
	Delete(key string) error
}
