package participation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"lootCrate/api"
	"lootCrate/set"
	"lootCrate/storage"
)

// Store holds the authoritative in-memory set of group boxes each user
// participates in or organizes. The remote store and the local cache are
// durable backing copies; in-memory is always the merge target, never the
// other way around.
type Store struct {
	remote storage.Remote
	cache  storage.Cache

	mu     sync.Mutex
	byUser map[string][]api.Participation
}

func NewStore(remote storage.Remote, cache storage.Cache) *Store {
	return &Store{
		remote: remote,
		cache:  cache,
		byUser: map[string][]api.Participation{},
	}
}

func cacheKey(userID string) string {
	return "participations/" + userID
}

// Load rebuilds the user's participation set from the remote store: their
// personal records plus boxes they created as organizer-only. Personal
// records whose aggregate no longer exists are orphans and silently dropped.
// When the remote store is unreachable the last cached snapshot is served
// instead. The result is written back to the cache before returning.
func (s *Store) Load(ctx context.Context, userID string) ([]api.Participation, error) {
	personal, err := s.remote.ListParticipations(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("remote load failed, serving cached participations")
		return s.loadFromCache(userID, err)
	}

	kept := make([]api.Participation, 0, len(personal))
	pruned := set.New[string]()
	for _, p := range personal {
		box, err := s.remote.GetGroupBox(ctx, p.GroupBoxID)
		if errors.Is(err, storage.NotFound) {
			// Creator deleted the box for everyone; this record is stale.
			log.Info().Str("groupBoxId", p.GroupBoxID).Str("userId", userID).Msg("pruning orphaned participation")
			if derr := s.remote.DeleteParticipation(ctx, p.GroupBoxID, userID); derr != nil {
				log.Warn().Err(derr).Str("groupBoxId", p.GroupBoxID).Msg("failed to delete orphaned participation")
			}
			pruned.Add(p.GroupBoxID)
			continue
		}
		if err != nil {
			// Unreachable aggregate is not proof of an orphan, keep it.
			kept = append(kept, p)
			continue
		}
		p = RefreshFromAggregate(p, *box)
		// The try document is authoritative for tries once it exists; this
		// is how organizer grants reach the participant.
		if rec, terr := s.remote.GetTryRecord(ctx, p.GroupBoxID, userID); terr == nil {
			p.UserRemainingTries = rec.RemainingTries
			p.UserTotalOpens = rec.TotalOpens
		}
		kept = append(kept, p)
	}

	organizer, err := s.remote.ListOrganizerBoxes(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("failed to list organizer boxes")
	}
	merged := mergeOrganizerBoxes(kept, organizer, userID)

	// Pruned ids must not resurrect from the local copy through the merge.
	local := s.snapshot(userID)
	if pruned.Size() > 0 {
		filtered := local[:0]
		for _, p := range local {
			if !pruned.Contains(p.GroupBoxID) {
				filtered = append(filtered, p)
			}
		}
		local = filtered
	}
	merged = Merge(merged, local)

	s.replace(userID, merged)
	if err := s.cache.Set(cacheKey(userID), merged); err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("failed to write participation cache")
	}
	return merged, nil
}

func (s *Store) loadFromCache(userID string, cause error) ([]api.Participation, error) {
	cached := make([]api.Participation, 0)
	ok, err := s.cache.Get(cacheKey(userID), &cached)
	if err != nil || !ok {
		return nil, fmt.Errorf("remote store unavailable and no cached snapshot: %w", cause)
	}
	s.replace(userID, cached)
	return cached, nil
}

// Merge reconciles a remote result list with the local list, keyed by group
// box id. Remote records win on conflict, but an empty remote list never
// erases a non-empty local one; a slow or failed query must not make boxes
// vanish from the user's screen. Merge is idempotent:
// Merge(r, l) == Merge(r, Merge(r, l)).
func Merge(remote, local []api.Participation) []api.Participation {
	if len(remote) == 0 {
		return local
	}
	byID := make(map[string]api.Participation, len(remote))
	for _, p := range remote {
		byID[p.GroupBoxID] = p
	}

	seen := set.New[string]()
	merged := make([]api.Participation, 0, len(remote)+len(local))
	for _, p := range local {
		if seen.Contains(p.GroupBoxID) {
			continue
		}
		seen.Add(p.GroupBoxID)
		if r, ok := byID[p.GroupBoxID]; ok {
			merged = append(merged, r)
		} else {
			merged = append(merged, p)
		}
	}
	for _, p := range remote {
		if seen.Contains(p.GroupBoxID) {
			continue
		}
		seen.Add(p.GroupBoxID)
		merged = append(merged, p)
	}
	return merged
}

// Upsert replaces or appends a record in the user's set. The cache write
// completes before Upsert returns so the next read in this session sees it;
// the remote write is best effort and never blocks the in-memory update.
func (s *Store) Upsert(ctx context.Context, p api.Participation) error {
	s.mu.Lock()
	list := s.byUser[p.UserID]
	replaced := false
	for i := range list {
		if list[i].GroupBoxID == p.GroupBoxID {
			list[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, p)
	}
	s.byUser[p.UserID] = list
	snapshot := make([]api.Participation, len(list))
	copy(snapshot, list)
	s.mu.Unlock()

	if err := s.cache.Set(cacheKey(p.UserID), snapshot); err != nil {
		return fmt.Errorf("failed to write participation cache: %w", err)
	}
	if err := s.remote.SetParticipation(ctx, p); err != nil {
		log.Warn().Err(err).Str("groupBoxId", p.GroupBoxID).Str("userId", p.UserID).
			Msg("best-effort remote participation write failed")
	}
	return nil
}

// Remove drops a record from the user's set and cache. The remote delete is
// best effort.
func (s *Store) Remove(ctx context.Context, userID, groupBoxID string) error {
	s.mu.Lock()
	list := s.byUser[userID]
	filtered := list[:0]
	for _, p := range list {
		if p.GroupBoxID != groupBoxID {
			filtered = append(filtered, p)
		}
	}
	s.byUser[userID] = filtered
	snapshot := make([]api.Participation, len(filtered))
	copy(snapshot, filtered)
	s.mu.Unlock()

	if err := s.cache.Set(cacheKey(userID), snapshot); err != nil {
		return fmt.Errorf("failed to write participation cache: %w", err)
	}
	if err := s.remote.DeleteParticipation(ctx, groupBoxID, userID); err != nil {
		log.Warn().Err(err).Str("groupBoxId", groupBoxID).Str("userId", userID).
			Msg("best-effort remote participation delete failed")
	}
	return nil
}

// Get returns the user's record for one box, if any.
func (s *Store) Get(userID, groupBoxID string) (api.Participation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byUser[userID] {
		if p.GroupBoxID == groupBoxID {
			return p, true
		}
	}
	return api.Participation{}, false
}

// List returns a copy of the user's current in-memory set.
func (s *Store) List(userID string) []api.Participation {
	return s.snapshot(userID)
}

func (s *Store) snapshot(userID string) []api.Participation {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]api.Participation, len(s.byUser[userID]))
	copy(list, s.byUser[userID])
	return list
}

func (s *Store) replace(userID string, list []api.Participation) {
	s.mu.Lock()
	s.byUser[userID] = list
	s.mu.Unlock()
}

// Reconcile re-runs Load for every user currently held in memory. This is
// the explicit resync pass behind the optimistic, fire-and-forget remote
// writes.
func (s *Store) Reconcile(ctx context.Context) {
	s.mu.Lock()
	users := make([]string, 0, len(s.byUser))
	for userID := range s.byUser {
		users = append(users, userID)
	}
	s.mu.Unlock()

	for _, userID := range users {
		if _, err := s.Load(ctx, userID); err != nil {
			log.Warn().Err(err).Str("userId", userID).Msg("reconcile pass failed")
		}
	}
}

// StartReconciler runs Reconcile on a fixed interval until ctx is done.
func (s *Store) StartReconciler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Reconcile(ctx)
			}
		}
	}()
}

// RefreshFromAggregate overwrites the replicated aggregate fields on a
// personal record. Per-user tries and stats are left alone.
func RefreshFromAggregate(p api.Participation, box api.GroupBox) api.Participation {
	p.BoxName = box.Lootbox.Name
	p.CreatorName = box.CreatorName
	p.CreatedBy = box.CreatedBy
	p.Settings = box.Settings
	p.Lootbox = box.Lootbox
	p.TotalOpens = box.TotalOpens
	p.UniqueUsers = box.UniqueUsers
	p.Status = box.Status
	return p
}

// mergeOrganizerBoxes folds boxes the user created as organizer-only into
// the personal list. On conflict the organizer flag wins; boxes with no
// personal record yet get one reconstructed from the aggregate, which also
// repairs a creator record lost to a partial write at creation time.
func mergeOrganizerBoxes(personal []api.Participation, organizer []api.GroupBox, userID string) []api.Participation {
	merged := make([]api.Participation, len(personal))
	copy(merged, personal)

	for _, box := range organizer {
		found := false
		for i := range merged {
			if merged[i].GroupBoxID == box.GroupBoxID {
				merged[i].OrganizerOnly = true
				merged[i] = RefreshFromAggregate(merged[i], box)
				found = true
				break
			}
		}
		if found {
			continue
		}
		p := api.Participation{
			GroupBoxID:         box.GroupBoxID,
			UserID:             userID,
			UserName:           box.CreatorName,
			OrganizerOnly:      true,
			UserRemainingTries: 0,
			FirstParticipated:  box.CreatedAt,
			LastParticipated:   box.CreatedAt,
		}
		merged = append(merged, RefreshFromAggregate(p, box))
	}
	return merged
}
