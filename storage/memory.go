package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"lootCrate/api"
)

// MemoryRemote is an in-memory Remote used by tests and local development.
// Setting Err makes every call fail with it, which is how tests exercise the
// cache-fallback and best-effort-write paths.
type MemoryRemote struct {
	mu             sync.Mutex
	boxes          map[string]api.GroupBox
	participations map[string]map[string]api.Participation
	tryRecords     map[string]map[string]api.TryRecord
	history        map[string][]api.HistoryEntry
	nextID         int

	Err error
}

var _ Remote = (*MemoryRemote)(nil)

func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{
		boxes:          map[string]api.GroupBox{},
		participations: map[string]map[string]api.Participation{},
		tryRecords:     map[string]map[string]api.TryRecord{},
		history:        map[string][]api.HistoryEntry{},
	}
}

func (m *MemoryRemote) CreateGroupBox(_ context.Context, box api.GroupBox) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.nextID++
	box.GroupBoxID = fmt.Sprintf("box-%d", m.nextID)
	box.CreatedAt = time.Now()
	m.boxes[box.GroupBoxID] = box
	return box.GroupBoxID, nil
}

func (m *MemoryRemote) GetGroupBox(_ context.Context, groupBoxID string) (*api.GroupBox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	box, ok := m.boxes[groupBoxID]
	if !ok {
		return nil, NotFound
	}
	return &box, nil
}

func (m *MemoryRemote) UpdateGroupBoxItems(_ context.Context, groupBoxID string, items []api.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	box, ok := m.boxes[groupBoxID]
	if !ok {
		return NotFound
	}
	box.Lootbox.Items = items
	m.boxes[groupBoxID] = box
	return nil
}

func (m *MemoryRemote) IncrementGroupBoxCounters(_ context.Context, groupBoxID string, opens, uniqueUsers int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	box, ok := m.boxes[groupBoxID]
	if !ok {
		return NotFound
	}
	box.TotalOpens += opens
	box.UniqueUsers += uniqueUsers
	m.boxes[groupBoxID] = box
	return nil
}

func (m *MemoryRemote) DeleteGroupBox(_ context.Context, groupBoxID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.boxes, groupBoxID)
	return nil
}

func (m *MemoryRemote) ListOrganizerBoxes(_ context.Context, userID string) ([]api.GroupBox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	boxes := make([]api.GroupBox, 0)
	for _, box := range m.boxes {
		if box.CreatedBy == userID && !box.Settings.CreatorParticipates && box.Status == api.StatusActive {
			boxes = append(boxes, box)
		}
	}
	return boxes, nil
}

func (m *MemoryRemote) SetParticipation(_ context.Context, p api.Participation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	byBox, ok := m.participations[p.UserID]
	if !ok {
		byBox = map[string]api.Participation{}
		m.participations[p.UserID] = byBox
	}
	byBox[p.GroupBoxID] = p
	return nil
}

func (m *MemoryRemote) DeleteParticipation(_ context.Context, groupBoxID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.participations[userID], groupBoxID)
	return nil
}

func (m *MemoryRemote) ListParticipations(_ context.Context, userID string) ([]api.Participation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	list := make([]api.Participation, 0)
	for _, p := range m.participations[userID] {
		list = append(list, p)
	}
	return list, nil
}

func (m *MemoryRemote) GetTryRecord(_ context.Context, groupBoxID, userID string) (*api.TryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	rec, ok := m.tryRecords[groupBoxID][userID]
	if !ok {
		return nil, NotFound
	}
	return &rec, nil
}

func (m *MemoryRemote) SetTryRecord(_ context.Context, rec api.TryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	byUser, ok := m.tryRecords[rec.GroupBoxID]
	if !ok {
		byUser = map[string]api.TryRecord{}
		m.tryRecords[rec.GroupBoxID] = byUser
	}
	byUser[rec.UserID] = rec
	return nil
}

func (m *MemoryRemote) AdjustTries(_ context.Context, groupBoxID, userID string, triesDelta, opensDelta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	rec, ok := m.tryRecords[groupBoxID][userID]
	if !ok {
		return NotFound
	}
	rec.RemainingTries += triesDelta
	rec.TotalOpens += opensDelta
	rec.LastTryAt = time.Now()
	m.tryRecords[groupBoxID][userID] = rec
	return nil
}

func (m *MemoryRemote) AppendHistory(_ context.Context, groupBoxID string, entry api.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.history[groupBoxID] = append(m.history[groupBoxID], entry)
	return nil
}

func (m *MemoryRemote) ListHistory(_ context.Context, groupBoxID string, limit int) ([]api.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	stored := m.history[groupBoxID]
	entries := make([]api.HistoryEntry, 0, limit)
	for i := len(stored) - 1; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, stored[i])
	}
	return entries, nil
}

// HistoryLen reports how many events a box has accumulated.
func (m *MemoryRemote) HistoryLen(groupBoxID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history[groupBoxID])
}

// MemoryCache is an in-memory Cache double. Values round-trip through JSON
// like the SQLite implementation so type mismatches surface in tests too.
type MemoryCache struct {
	mu     sync.Mutex
	values map[string][]byte

	Err error
}

var _ Cache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{values: map[string][]byte{}}
}

func (c *MemoryCache) Get(key string, v any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return false, c.Err
	}
	raw, ok := c.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func (c *MemoryCache) Set(key string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.values[key] = raw
	return nil
}

func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	delete(c.values, key)
	return nil
}
