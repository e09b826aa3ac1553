package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lootCrate/api"
	"lootCrate/utils"
)

const (
	groupBoxCollection      = "groupBoxes"
	triesSubCollection      = "tries"
	historySubCollection    = "history"
	userCollection          = "users"
	participationCollection = "participations"
)

// FirestoreRemote implements Remote on a Firestore project. Aggregates live
// in groupBoxes/{id} with tries and history sub-collections; each user's
// participation records live under users/{uid}/participations/{boxId}.
type FirestoreRemote struct {
	db *firestore.Client
}

var _ Remote = (*FirestoreRemote)(nil)

func NewFirestoreRemote(db *firestore.Client) *FirestoreRemote {
	return &FirestoreRemote{db: db}
}

func (s *FirestoreRemote) boxRef(groupBoxID string) *firestore.DocumentRef {
	return s.db.Collection(groupBoxCollection).Doc(groupBoxID)
}

func (s *FirestoreRemote) participationRef(userID, groupBoxID string) *firestore.DocumentRef {
	return s.db.Collection(userCollection).Doc(userID).
		Collection(participationCollection).Doc(groupBoxID)
}

func (s *FirestoreRemote) CreateGroupBox(ctx context.Context, box api.GroupBox) (string, error) {
	ref := s.db.Collection(groupBoxCollection).NewDoc()
	box.GroupBoxID = ref.ID
	box.CreatedAt = time.Now()
	if _, err := ref.Set(ctx, box); err != nil {
		return "", fmt.Errorf("failed to create group box: %w", err)
	}
	return ref.ID, nil
}

func (s *FirestoreRemote) GetGroupBox(ctx context.Context, groupBoxID string) (*api.GroupBox, error) {
	doc, err := s.boxRef(groupBoxID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, NotFound
	}
	if err != nil {
		return nil, err
	}
	box := api.GroupBox{}
	if err := doc.DataTo(&box); err != nil {
		return nil, err
	}
	return &box, nil
}

func (s *FirestoreRemote) UpdateGroupBoxItems(ctx context.Context, groupBoxID string, items []api.Item) error {
	_, err := s.boxRef(groupBoxID).Update(ctx, []firestore.Update{
		{Path: "lootbox.items", Value: items},
	})
	if status.Code(err) == codes.NotFound {
		return NotFound
	}
	return err
}

// IncrementGroupBoxCounters uses Firestore's server-side increment so
// concurrent spins from different participants never lose updates.
func (s *FirestoreRemote) IncrementGroupBoxCounters(ctx context.Context, groupBoxID string, opens, uniqueUsers int) error {
	updates := []firestore.Update{
		{Path: "totalOpens", Value: firestore.Increment(opens)},
	}
	if uniqueUsers != 0 {
		updates = append(updates, firestore.Update{Path: "uniqueUsers", Value: firestore.Increment(uniqueUsers)})
	}
	_, err := s.boxRef(groupBoxID).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return NotFound
	}
	return err
}

func (s *FirestoreRemote) DeleteGroupBox(ctx context.Context, groupBoxID string) error {
	_, err := s.boxRef(groupBoxID).Delete(ctx)
	return err
}

func (s *FirestoreRemote) ListOrganizerBoxes(ctx context.Context, userID string) ([]api.GroupBox, error) {
	docs, err := s.db.Collection(groupBoxCollection).
		Where("createdBy", "==", userID).
		Where("settings.creatorParticipates", "==", false).
		Where("status", "==", api.StatusActive).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return utils.GetAllToStructs[api.GroupBox](docs)
}

func (s *FirestoreRemote) SetParticipation(ctx context.Context, p api.Participation) error {
	_, err := s.participationRef(p.UserID, p.GroupBoxID).Set(ctx, p)
	return err
}

func (s *FirestoreRemote) DeleteParticipation(ctx context.Context, groupBoxID, userID string) error {
	_, err := s.participationRef(userID, groupBoxID).Delete(ctx)
	return err
}

func (s *FirestoreRemote) ListParticipations(ctx context.Context, userID string) ([]api.Participation, error) {
	docs, err := s.db.Collection(userCollection).Doc(userID).
		Collection(participationCollection).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return utils.GetAllToStructs[api.Participation](docs)
}

func (s *FirestoreRemote) GetTryRecord(ctx context.Context, groupBoxID, userID string) (*api.TryRecord, error) {
	doc, err := s.boxRef(groupBoxID).Collection(triesSubCollection).Doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, NotFound
	}
	if err != nil {
		return nil, err
	}
	rec := api.TryRecord{}
	if err := doc.DataTo(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *FirestoreRemote) SetTryRecord(ctx context.Context, rec api.TryRecord) error {
	_, err := s.boxRef(rec.GroupBoxID).Collection(triesSubCollection).Doc(rec.UserID).Set(ctx, rec)
	return err
}

// AdjustTries applies the deltas server-side; a read-then-write here would
// race with the user's own spins from another tab.
func (s *FirestoreRemote) AdjustTries(ctx context.Context, groupBoxID, userID string, triesDelta, opensDelta int) error {
	updates := []firestore.Update{
		{Path: "remainingTries", Value: firestore.Increment(triesDelta)},
		{Path: "lastTryAt", Value: time.Now()},
	}
	if opensDelta != 0 {
		updates = append(updates, firestore.Update{Path: "totalOpens", Value: firestore.Increment(opensDelta)})
	}
	_, err := s.boxRef(groupBoxID).Collection(triesSubCollection).Doc(userID).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return NotFound
	}
	return err
}

func (s *FirestoreRemote) AppendHistory(ctx context.Context, groupBoxID string, entry api.HistoryEntry) error {
	_, err := s.boxRef(groupBoxID).Collection(historySubCollection).NewDoc().Set(ctx, entry)
	return err
}

func (s *FirestoreRemote) ListHistory(ctx context.Context, groupBoxID string, limit int) ([]api.HistoryEntry, error) {
	iter := s.boxRef(groupBoxID).Collection(historySubCollection).
		OrderBy("timestamp", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	entries := make([]api.HistoryEntry, 0, limit)
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		entry := api.HistoryEntry{}
		if err := doc.DataTo(&entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
