package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// Tries counts spin attempts. A value of TriesUnlimited marks a box with no
// cap; any other value must be >= 0. It marshals to the string "unlimited"
// so stored documents stay readable.
type Tries int

const TriesUnlimited Tries = -1

func (t Tries) Unlimited() bool {
	return t == TriesUnlimited
}

func (t Tries) MarshalJSON() ([]byte, error) {
	if t == TriesUnlimited {
		return json.Marshal("unlimited")
	}
	return json.Marshal(int(t))
}

func (t *Tries) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "unlimited" {
			return fmt.Errorf("invalid tries value %q", s)
		}
		*t = TriesUnlimited
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = Tries(n)
	return nil
}

// Item is a single entry in a lootbox pool. Odds is a probability in [0,1];
// the pool's odds need not sum to exactly 1.
type Item struct {
	Name string  `json:"name" firestore:"name"`
	Odds float64 `json:"odds" firestore:"odds"`
}

// LootboxDefinition is the shareable part of a lootbox: the pool itself plus
// presentation flags. Per-user state lives elsewhere.
type LootboxDefinition struct {
	ID             string `json:"id" firestore:"id"`
	Name           string `json:"name" firestore:"name"`
	Items          []Item `json:"items" firestore:"items"`
	ChestImage     string `json:"chestImage" firestore:"chestImage"`
	RevealContents bool   `json:"revealContents" firestore:"revealContents"`
	RevealOdds     bool   `json:"revealOdds" firestore:"revealOdds"`
}

// Lootbox is a personal, single-user box: a definition plus the owner's
// usage stats.
type Lootbox struct {
	LootboxDefinition `firestore:"definition"`
	MaxTries          Tries      `json:"maxTries" firestore:"maxTries"`
	RemainingTries    Tries      `json:"remainingTries" firestore:"remainingTries"`
	Spins             int        `json:"spins" firestore:"spins"`
	LastUsed          *time.Time `json:"lastUsed,omitempty" firestore:"lastUsed"`
	Favorite          bool       `json:"favorite" firestore:"favorite"`
}

// GroupBoxSettings is the creator's configuration for a shared box.
type GroupBoxSettings struct {
	TriesPerPerson      int        `json:"triesPerPerson" firestore:"triesPerPerson"`
	ExpiresAt           *time.Time `json:"expiresAt,omitempty" firestore:"expiresAt"`
	CreatorParticipates bool       `json:"creatorParticipates" firestore:"creatorParticipates"`
	HideContents        bool       `json:"hideContents" firestore:"hideContents"`
	HideOdds            bool       `json:"hideOdds" firestore:"hideOdds"`
}

const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// GroupBox is the aggregate document: the single shared record of a group
// box's definition and totals. GroupBoxID is the stable identity used by the
// creator's document, every participation record and every try record.
type GroupBox struct {
	GroupBoxID  string            `json:"groupBoxId" firestore:"groupBoxId"`
	CreatedBy   string            `json:"createdBy" firestore:"createdBy"`
	CreatorName string            `json:"creatorName" firestore:"creatorName"`
	Lootbox     LootboxDefinition `json:"lootbox" firestore:"lootbox"`
	Settings    GroupBoxSettings  `json:"settings" firestore:"settings"`
	TotalOpens  int               `json:"totalOpens" firestore:"totalOpens"`
	UniqueUsers int               `json:"uniqueUsers" firestore:"uniqueUsers"`
	Status      string            `json:"status" firestore:"status"`
	CreatedAt   time.Time         `json:"createdAt" firestore:"createdAt"`
}

// Participation is one user's personal join of a group box: their tries,
// stats and favorite flag. It also replicates the aggregate fields it was
// last synced against so the box list renders offline.
type Participation struct {
	GroupBoxID         string     `json:"groupBoxId" firestore:"groupBoxId"`
	UserID             string     `json:"userId" firestore:"userId"`
	UserName           string     `json:"userName" firestore:"userName"`
	OrganizerOnly      bool       `json:"organizerOnly" firestore:"organizerOnly"`
	UserTotalOpens     int        `json:"userTotalOpens" firestore:"userTotalOpens"`
	UserRemainingTries int        `json:"userRemainingTries" firestore:"userRemainingTries"`
	Favorite           bool       `json:"favorite" firestore:"favorite"`
	Spins              int        `json:"spins" firestore:"spins"`
	LastUsed           *time.Time `json:"lastUsed,omitempty" firestore:"lastUsed"`
	FirstParticipated  time.Time  `json:"firstParticipated" firestore:"firstParticipated"`
	LastParticipated   time.Time  `json:"lastParticipated" firestore:"lastParticipated"`

	// Replicated aggregate fields, refreshed on sync.
	BoxName     string            `json:"boxName" firestore:"boxName"`
	CreatorName string            `json:"creatorName" firestore:"creatorName"`
	CreatedBy   string            `json:"createdBy" firestore:"createdBy"`
	Settings    GroupBoxSettings  `json:"settings" firestore:"settings"`
	Lootbox     LootboxDefinition `json:"lootbox" firestore:"lootbox"`
	TotalOpens  int               `json:"totalOpens" firestore:"totalOpens"`
	UniqueUsers int               `json:"uniqueUsers" firestore:"uniqueUsers"`
	Status      string            `json:"status" firestore:"status"`
}

// TryRecord is the per-user per-box try-count document. It is the record the
// creator mutates when granting extra tries, and the one a spin decrements.
type TryRecord struct {
	GroupBoxID     string    `json:"groupBoxId" firestore:"groupBoxId"`
	UserID         string    `json:"userId" firestore:"userId"`
	UserName       string    `json:"userName" firestore:"userName"`
	RemainingTries int       `json:"remainingTries" firestore:"remainingTries"`
	TotalOpens     int       `json:"totalOpens" firestore:"totalOpens"`
	FirstTryAt     time.Time `json:"firstTryAt" firestore:"firstTryAt"`
	LastTryAt      time.Time `json:"lastTryAt" firestore:"lastTryAt"`
}

const (
	ActionJoin  = "join"
	ActionLeave = "leave"
	ActionSpin  = "spin"
)

// HistoryEntry is one community history event. Spin entries carry a non-nil
// Item and nil Action; join/leave entries carry Action and nil Item. An entry
// with neither is invalid and skipped at render time.
type HistoryEntry struct {
	UserID    string    `json:"userId" firestore:"userId"`
	UserName  string    `json:"userName" firestore:"userName"`
	Item      *string   `json:"item" firestore:"item"`
	Action    *string   `json:"action" firestore:"action"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
	SessionID string    `json:"sessionId" firestore:"sessionId"`
}

// SpinOutcome is what a successful spin returns to the caller.
type SpinOutcome struct {
	Item      Item      `json:"item"`
	Timestamp time.Time `json:"timestamp"`
}
