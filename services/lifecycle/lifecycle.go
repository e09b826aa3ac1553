package lifecycle

import (
	"context"
	"errors"
	"math/rand"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"lootCrate/api"
	"lootCrate/auth"
	"lootCrate/services/groupbox"
	"lootCrate/services/history"
	"lootCrate/services/lootbox"
	"lootCrate/services/participation"
	"lootCrate/storage"
)

// Service is the group box lifecycle: every state transition a user can
// drive, from creating and joining through spinning to leaving or deleting.
// Methods return a Result and never an error; backing-store failures are
// folded into the result at this boundary.
type Service interface {
	CreateGroupBox(ctx context.Context, snapshot api.Lootbox, settings api.GroupBoxSettings) CreateResult
	JoinGroupBox(ctx context.Context, groupBoxID string) JoinResult
	SpinGroupBox(ctx context.Context, groupBoxID string) SpinResult
	LeaveGroupBox(ctx context.Context, groupBoxID string) Result
	DeleteGroupBox(ctx context.Context, groupBoxID string, forEveryone bool) Result
	GrantExtraTries(ctx context.Context, groupBoxID, targetUserID string, delta int) Result
	EditItems(ctx context.Context, groupBoxID string, items []api.Item) Result
	SyncGroupBoxData(ctx context.Context, groupBoxID string) SyncResult
	SetFavorite(ctx context.Context, groupBoxID string, favorite bool) Result
	ListGroupBoxes(ctx context.Context) ListResult
	History(ctx context.Context, groupBoxID string, limit int) HistoryResult
}

type service struct {
	remote    storage.Remote
	store     *participation.Store
	history   *history.Log
	sessionID string
}

var _ Service = (*service)(nil)

// randomSample feeds the weighted draw; swapped out in tests.
var randomSample = rand.Float64

func NewService(remote storage.Remote, store *participation.Store, hist *history.Log) Service {
	return &service{
		remote:    remote,
		store:     store,
		history:   hist,
		sessionID: gonanoid.Must(),
	}
}

func (s *service) CreateGroupBox(ctx context.Context, snapshot api.Lootbox, settings api.GroupBoxSettings) CreateResult {
	user, ok := auth.FromContext(ctx)
	if !ok {
		return CreateResult{Result: fail(CodeUnauthenticated, "sign in to create a group box")}
	}

	shared := groupbox.ShareCopy(snapshot)
	warnings, err := lootbox.Validate(shared.LootboxDefinition)
	if err != nil {
		return CreateResult{Result: failErr(CodeValidationError, err)}
	}
	if settings.TriesPerPerson < 1 {
		return CreateResult{Result: fail(CodeValidationError, "triesPerPerson must be at least 1")}
	}

	box := api.GroupBox{
		CreatedBy:   user.ID,
		CreatorName: user.Name,
		Lootbox:     shared.LootboxDefinition,
		Settings:    settings,
		TotalOpens:  0,
		UniqueUsers: 0,
		Status:      api.StatusActive,
	}
	groupBoxID, err := s.remote.CreateGroupBox(ctx, box)
	if err != nil {
		return CreateResult{Result: failErr(CodeStorageUnavailable, err)}
	}
	box.GroupBoxID = groupBoxID

	// The creator always gets a participation record, organizer or not, so
	// the box shows up in their list. Organizers get zero tries.
	now := time.Now()
	p := api.Participation{
		GroupBoxID:        groupBoxID,
		UserID:            user.ID,
		UserName:          user.Name,
		OrganizerOnly:     !settings.CreatorParticipates,
		FirstParticipated: now,
		LastParticipated:  now,
	}
	if settings.CreatorParticipates {
		p.UserRemainingTries = settings.TriesPerPerson
	}
	p = participation.RefreshFromAggregate(p, box)
	if err := s.store.Upsert(ctx, p); err != nil {
		// The aggregate is the source of truth; the next load reconstructs
		// the creator's record from it.
		log.Warn().Err(err).Str("groupBoxId", groupBoxID).Msg("creator participation write failed after create")
	}

	if settings.CreatorParticipates {
		s.history.Append(ctx, groupBoxID, history.ActionEntry(user.ID, user.Name, s.sessionID, api.ActionJoin))
	}

	return CreateResult{Result: okWarn(warnings), GroupBoxID: groupBoxID, Box: &p}
}

func (s *service) JoinGroupBox(ctx context.Context, groupBoxID string) JoinResult {
	user, ok := auth.FromContext(ctx)
	if !ok {
		return JoinResult{Result: fail(CodeUnauthenticated, "sign in to join a group box")}
	}

	if existing, found := s.store.Get(user.ID, groupBoxID); found {
		return JoinResult{Result: okResult(), AlreadyJoined: true, Box: &existing}
	}

	box, err := s.remote.GetGroupBox(ctx, groupBoxID)
	if errors.Is(err, storage.NotFound) {
		return JoinResult{Result: fail(CodeNotFound, "group box does not exist")}
	}
	if err != nil {
		return JoinResult{Result: failErr(CodeStorageUnavailable, err)}
	}
	if box.Status != api.StatusActive {
		return JoinResult{Result: fail(CodeInactive, "group box is no longer active")}
	}
	if box.Settings.ExpiresAt != nil && box.Settings.ExpiresAt.Before(time.Now()) {
		return JoinResult{Result: fail(CodeExpired, "group box has expired")}
	}

	now := time.Now()
	p := api.Participation{
		GroupBoxID:         groupBoxID,
		UserID:             user.ID,
		UserName:           user.Name,
		UserRemainingTries: box.Settings.TriesPerPerson,
		FirstParticipated:  now,
		LastParticipated:   now,
	}
	p = participation.RefreshFromAggregate(p, *box)
	if err := s.store.Upsert(ctx, p); err != nil {
		return JoinResult{Result: failErr(CodeStorageUnavailable, err)}
	}

	s.history.Append(ctx, groupBoxID, history.ActionEntry(user.ID, user.Name, s.sessionID, api.ActionJoin))
	return JoinResult{Result: okResult(), Box: &p}
}

func (s *service) SpinGroupBox(ctx context.Context, groupBoxID string) SpinResult {
	user, ok := auth.FromContext(ctx)
	if !ok {
		return SpinResult{Result: fail(CodeUnauthenticated, "sign in to spin")}
	}

	p, found := s.store.Get(user.ID, groupBoxID)
	if !found {
		return SpinResult{Result: fail(CodeNotFound, "you are not participating in this box")}
	}

	box := groupbox.New(p)
	outcome, err := box.SpinForUser(randomSample())
	if err != nil {
		return SpinResult{Result: failErr(spinDenialCode(err), err)}
	}

	// First try document for this user also bumps the aggregate's unique
	// user count. Counter writes use the store's atomic increment and are
	// best effort: a failure is logged, the optimistic local state stands.
	firstTry := false
	if _, err := s.remote.GetTryRecord(ctx, groupBoxID, user.ID); errors.Is(err, storage.NotFound) {
		firstTry = true
		rec := api.TryRecord{
			GroupBoxID:     groupBoxID,
			UserID:         user.ID,
			UserName:       user.Name,
			RemainingTries: box.UserRemainingTries,
			TotalOpens:     box.UserTotalOpens,
			FirstTryAt:     outcome.Timestamp,
			LastTryAt:      outcome.Timestamp,
		}
		if err := s.remote.SetTryRecord(ctx, rec); err != nil {
			log.Warn().Err(err).Str("groupBoxId", groupBoxID).Msg("failed to write try record")
		}
	} else if err != nil {
		log.Warn().Err(err).Str("groupBoxId", groupBoxID).Msg("failed to read try record")
	} else {
		if err := s.remote.AdjustTries(ctx, groupBoxID, user.ID, -1, 1); err != nil {
			log.Warn().Err(err).Str("groupBoxId", groupBoxID).Msg("failed to update try record")
		}
	}
	uniqueDelta := 0
	if firstTry {
		uniqueDelta = 1
	}
	if err := s.remote.IncrementGroupBoxCounters(ctx, groupBoxID, 1, uniqueDelta); err != nil {
		log.Warn().Err(err).Str("groupBoxId", groupBoxID).Msg("failed to increment aggregate counters")
	}

	if err := s.store.Upsert(ctx, box.Participation); err != nil {
		return SpinResult{Result: failErr(CodeStorageUnavailable, err)}
	}

	s.history.Append(ctx, groupBoxID, history.SpinEntry(user.ID, user.Name, s.sessionID, outcome.Item.Name))
	return SpinResult{Result: okResult(), Outcome: &outcome, RemainingTries: box.UserRemainingTries}
}

func (s *service) LeaveGroupBox(ctx context.Context, groupBoxID string) Result {
	user, ok := auth.FromContext(ctx)
	if !ok {
		return fail(CodeUnauthenticated, "sign in to leave a group box")
	}
	if _, found := s.store.Get(user.ID, groupBoxID); !found {
		return fail(CodeNotFound, "you are not participating in this box")
	}
	if err := s.store.Remove(ctx, user.ID, groupBoxID); err != nil {
		return failErr(CodeStorageUnavailable, err)
	}
	s.history.Append(ctx, groupBoxID, history.ActionEntry(user.ID, user.Name, s.sessionID, api.ActionLeave))
	return okResult()
}

// DeleteGroupBox with forEveryone removes the aggregate document; other
// participants' records become orphans and are pruned on their next load.
// Without forEveryone it degrades to leaving.
func (s *service) DeleteGroupBox(ctx context.Context, groupBoxID string, forEveryone bool) Result {
	if !forEveryone {
		return s.LeaveGroupBox(ctx, groupBoxID)
	}
	user, ok := auth.FromContext(ctx)
	if !ok {
		return fail(CodeUnauthenticated, "sign in to delete a group box")
	}
	p, found := s.store.Get(user.ID, groupBoxID)
	if !found {
		return fail(CodeNotFound, "you are not participating in this box")
	}
	if !groupbox.New(p).IsCreator() {
		return fail(CodeForbidden, "only the creator can delete a box for everyone")
	}
	if err := s.remote.DeleteGroupBox(ctx, groupBoxID); err != nil {
		return failErr(CodeStorageUnavailable, err)
	}
	if err := s.store.Remove(ctx, user.ID, groupBoxID); err != nil {
		return failErr(CodeStorageUnavailable, err)
	}
	return okResult()
}

func (s *service) GrantExtraTries(ctx context.Context, groupBoxID, targetUserID string, delta int) Result {
	user, ok := auth.FromContext(ctx)
	if !ok {
		return fail(CodeUnauthenticated, "sign in to grant tries")
	}
	if delta <= 0 {
		delta = 1
	}
	p, found := s.store.Get(user.ID, groupBoxID)
	if !found {
		return fail(CodeNotFound, "you are not participating in this box")
	}
	if !groupbox.New(p).IsCreator() {
		return fail(CodeForbidden, "only the creator can grant extra tries")
	}
	err := s.remote.AdjustTries(ctx, groupBoxID, targetUserID, delta, 0)
	if errors.Is(err, storage.NotFound) {
		return fail(CodeNotFound, "that user has not opened this box yet")
	}
	if err != nil {
		return failErr(CodeStorageUnavailable, err)
	}
	return okResult()
}

// EditItems replaces the aggregate's item pool. Participants' tries and
// stats are untouched.
func (s *service) EditItems(ctx context.Context, groupBoxID string, items []api.Item) Result {
	user, ok := auth.FromContext(ctx)
	if !ok {
		return fail(CodeUnauthenticated, "sign in to edit a group box")
	}
	p, found := s.store.Get(user.ID, groupBoxID)
	if !found {
		return fail(CodeNotFound, "you are not participating in this box")
	}
	if !groupbox.New(p).IsCreator() {
		return fail(CodeForbidden, "only the creator can edit the items")
	}
	def := p.Lootbox
	def.Items = items
	warnings, err := lootbox.Validate(def)
	if err != nil {
		return failErr(CodeValidationError, err)
	}
	if err := s.remote.UpdateGroupBoxItems(ctx, groupBoxID, items); err != nil {
		if errors.Is(err, storage.NotFound) {
			return fail(CodeNotFound, "group box does not exist")
		}
		return failErr(CodeStorageUnavailable, err)
	}
	p.Lootbox.Items = items
	if err := s.store.Upsert(ctx, p); err != nil {
		return failErr(CodeStorageUnavailable, err)
	}
	return okWarn(warnings)
}

// SyncGroupBoxData pulls fresh aggregate counters and settings into the
// local record. Per-user try counts are never reset here.
func (s *service) SyncGroupBoxData(ctx context.Context, groupBoxID string) SyncResult {
	user, ok := auth.FromContext(ctx)
	if !ok {
		return SyncResult{Result: fail(CodeUnauthenticated, "sign in to sync")}
	}
	p, found := s.store.Get(user.ID, groupBoxID)
	if !found {
		return SyncResult{Result: fail(CodeNotFound, "you are not participating in this box")}
	}
	box, err := s.remote.GetGroupBox(ctx, groupBoxID)
	if errors.Is(err, storage.NotFound) {
		// Deleted out from under us; drop the stale record.
		if rerr := s.store.Remove(ctx, user.ID, groupBoxID); rerr != nil {
			log.Warn().Err(rerr).Str("groupBoxId", groupBoxID).Msg("failed to drop stale participation")
		}
		return SyncResult{Result: fail(CodeNotFound, "group box no longer exists")}
	}
	if err != nil {
		return SyncResult{Result: failErr(CodeStorageUnavailable, err)}
	}
	p = participation.RefreshFromAggregate(p, *box)
	p.LastParticipated = time.Now()
	if err := s.store.Upsert(ctx, p); err != nil {
		return SyncResult{Result: failErr(CodeStorageUnavailable, err)}
	}
	return SyncResult{Result: okResult(), Box: &p}
}

func (s *service) SetFavorite(ctx context.Context, groupBoxID string, favorite bool) Result {
	user, ok := auth.FromContext(ctx)
	if !ok {
		return fail(CodeUnauthenticated, "sign in to favorite a box")
	}
	p, found := s.store.Get(user.ID, groupBoxID)
	if !found {
		return fail(CodeNotFound, "you are not participating in this box")
	}
	p.Favorite = favorite
	if err := s.store.Upsert(ctx, p); err != nil {
		return failErr(CodeStorageUnavailable, err)
	}
	return okResult()
}

func (s *service) ListGroupBoxes(ctx context.Context) ListResult {
	user, ok := auth.FromContext(ctx)
	if !ok {
		return ListResult{Result: fail(CodeUnauthenticated, "sign in to list group boxes")}
	}
	boxes, err := s.store.Load(ctx, user.ID)
	if err != nil {
		return ListResult{Result: failErr(CodeStorageUnavailable, err)}
	}
	return ListResult{Result: okResult(), Boxes: boxes}
}

func (s *service) History(ctx context.Context, groupBoxID string, limit int) HistoryResult {
	entries, err := s.history.Load(ctx, groupBoxID, limit)
	if err != nil {
		// Serve the in-memory view rather than nothing.
		entries = s.history.Entries(groupBoxID)
		if len(entries) == 0 {
			return HistoryResult{Result: failErr(CodeStorageUnavailable, err)}
		}
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if line, ok := history.Render(e); ok {
			lines = append(lines, line)
		}
	}
	return HistoryResult{Result: okResult(), Entries: entries, Lines: lines}
}

func spinDenialCode(err error) string {
	switch {
	case errors.Is(err, groupbox.ErrOrganizerOnly):
		return CodeOrganizerCannotParticipate
	case errors.Is(err, groupbox.ErrNoTries):
		return CodeNoTriesRemaining
	case errors.Is(err, groupbox.ErrExpired):
		return CodeExpired
	case errors.Is(err, groupbox.ErrInactive):
		return CodeInactive
	default:
		return CodeValidationError
	}
}
