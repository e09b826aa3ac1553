package groupbox

import (
	"errors"
	"time"

	"lootCrate/api"
	"lootCrate/services/lootbox"
)

var (
	ErrNoItems       = errors.New("group box has no items")
	ErrInactive      = errors.New("group box is not active")
	ErrExpired       = errors.New("group box has expired")
	ErrOrganizerOnly = errors.New("organizer does not participate in this box")
	ErrNoTries       = errors.New("no tries remaining")
)

// Box is one group box from a single user's perspective: their participation
// record joined with the replicated aggregate fields. It carries the spin
// rules; it never performs I/O.
type Box struct {
	api.Participation
}

// New wraps a participation record.
func New(p api.Participation) *Box {
	return &Box{Participation: p}
}

// IsCreator reports whether this participation belongs to the box creator.
func (b *Box) IsCreator() bool {
	return b.CreatedBy != "" && b.CreatedBy == b.UserID
}

// OrganizerOnlyMode reports whether the viewer is a creator who configured
// the box to manage it without personally spinning. Such a participation is
// never spinnable, whatever its try count says.
func (b *Box) OrganizerOnlyMode() bool {
	return b.OrganizerOnly && b.IsCreator() && !b.Settings.CreatorParticipates
}

// IsExpired reports whether the box's expiry, if any, has passed.
func (b *Box) IsExpired() bool {
	return b.Settings.ExpiresAt != nil && b.Settings.ExpiresAt.Before(time.Now())
}

// SpinCheck returns nil when the viewer may spin, otherwise the specific
// reason they may not.
func (b *Box) SpinCheck() error {
	if len(b.Lootbox.Items) == 0 {
		return ErrNoItems
	}
	if b.Status != api.StatusActive {
		return ErrInactive
	}
	if b.IsExpired() {
		return ErrExpired
	}
	if b.OrganizerOnlyMode() {
		return ErrOrganizerOnly
	}
	if b.UserRemainingTries <= 0 {
		return ErrNoTries
	}
	return nil
}

// CanSpin reports whether a spin would be allowed right now.
func (b *Box) CanSpin() bool {
	return b.SpinCheck() == nil
}

// SpinForUser performs a weighted draw with sample in [0,1) and applies the
// bookkeeping for one open: spins and opens go up, one try is consumed, the
// participation timestamps move. The state is untouched when the spin is
// denied. Persistence is the caller's concern.
func (b *Box) SpinForUser(sample float64) (api.SpinOutcome, error) {
	if err := b.SpinCheck(); err != nil {
		return api.SpinOutcome{}, err
	}
	item, err := lootbox.Draw(b.Lootbox.Items, sample)
	if err != nil {
		return api.SpinOutcome{}, err
	}
	now := time.Now()
	b.Spins++
	b.UserTotalOpens++
	b.UserRemainingTries--
	b.TotalOpens++
	b.LastUsed = &now
	b.LastParticipated = now
	return api.SpinOutcome{Item: item, Timestamp: now}, nil
}

// ShareCopy returns a fresh copy of a personal lootbox suitable for turning
// into a group box: the pool, name, chest image and reveal flags survive,
// per-user stats reset.
func ShareCopy(lb api.Lootbox) api.Lootbox {
	out := lb
	out.Items = make([]api.Item, len(lb.Items))
	copy(out.Items, lb.Items)
	out.Spins = 0
	out.LastUsed = nil
	out.Favorite = false
	out.RemainingTries = lb.MaxTries
	return out
}
