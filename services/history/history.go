package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"lootCrate/api"
	"lootCrate/storage"
)

var now = time.Now

// MaxEntries caps the in-memory view per box. The remote log is append-only
// and unbounded; queries are capped instead.
const MaxEntries = 50

// Log is the community history for group boxes: a shared, newest-first view
// of spin/join/leave events. Appends go to the remote log and into the local
// view; Load refreshes the local view wholesale. Clients never rewrite
// remote history beyond appending.
type Log struct {
	remote storage.Remote

	mu      sync.Mutex
	entries map[string][]api.HistoryEntry
}

func NewLog(remote storage.Remote) *Log {
	return &Log{
		remote:  remote,
		entries: map[string][]api.HistoryEntry{},
	}
}

// Append records one event. The remote write is best effort; the local view
// is updated regardless so the user sees their own action immediately.
func (l *Log) Append(ctx context.Context, groupBoxID string, entry api.HistoryEntry) {
	if err := l.remote.AppendHistory(ctx, groupBoxID, entry); err != nil {
		log.Warn().Err(err).Str("groupBoxId", groupBoxID).Msg("failed to append history remotely")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	entries := append([]api.HistoryEntry{entry}, l.entries[groupBoxID]...)
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	l.entries[groupBoxID] = entries
}

// Load refreshes the in-memory view from the remote log, newest first. This
// is a wholesale replace, not a merge: community history is a derived read.
func (l *Log) Load(ctx context.Context, groupBoxID string, limit int) ([]api.HistoryEntry, error) {
	if limit <= 0 || limit > MaxEntries {
		limit = MaxEntries
	}
	entries, err := l.remote.ListHistory(ctx, groupBoxID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	l.mu.Lock()
	l.entries[groupBoxID] = entries
	l.mu.Unlock()
	return entries, nil
}

// Entries returns the current in-memory view for a box, newest first.
func (l *Log) Entries(groupBoxID string) []api.HistoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]api.HistoryEntry, len(l.entries[groupBoxID]))
	copy(entries, l.entries[groupBoxID])
	return entries
}

// Render turns an entry into its display line. Entries carrying neither an
// item nor an action are invalid and reported as not renderable.
func Render(entry api.HistoryEntry) (string, bool) {
	switch {
	case entry.Action != nil && *entry.Action == api.ActionJoin:
		return fmt.Sprintf("%s has joined the box", entry.UserName), true
	case entry.Action != nil && *entry.Action == api.ActionLeave:
		return fmt.Sprintf("%s has left the box", entry.UserName), true
	case entry.Item != nil:
		return fmt.Sprintf("%s got: %s", entry.UserName, *entry.Item), true
	default:
		return "", false
	}
}

// SpinEntry builds a spin event.
func SpinEntry(userID, userName, sessionID, item string) api.HistoryEntry {
	return api.HistoryEntry{
		UserID:    userID,
		UserName:  userName,
		Item:      &item,
		Timestamp: now(),
		SessionID: sessionID,
	}
}

// ActionEntry builds a join or leave event.
func ActionEntry(userID, userName, sessionID, action string) api.HistoryEntry {
	return api.HistoryEntry{
		UserID:    userID,
		UserName:  userName,
		Action:    &action,
		Timestamp: now(),
		SessionID: sessionID,
	}
}
