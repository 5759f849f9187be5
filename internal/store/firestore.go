package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rotisserie/eris"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/pdfformfiller/internal/models"
)

const fieldsCollection = "fields"

// FirestoreStore keeps each session as a document in a collection, with
// its fields in a "fields" sub-collection ordered by position.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

func NewFirestore(client *firestore.Client, collection string) *FirestoreStore {
	if collection == "" {
		collection = "formSessions"
	}
	return &FirestoreStore{client: client, collection: collection}
}

func (s *FirestoreStore) sessionRef(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

// fieldRef keys field documents by position; field names may contain
// characters that are not valid in document IDs.
func (s *FirestoreStore) fieldRef(sessionID string, position int) *firestore.DocumentRef {
	return s.sessionRef(sessionID).Collection(fieldsCollection).Doc(fmt.Sprintf("f%05d", position))
}

// Migrate is a no-op; Firestore collections are created on first write.
func (s *FirestoreStore) Migrate(context.Context) error { return nil }

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) CreateSession(ctx context.Context, sess *models.Session, fields []models.Field) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(s.sessionRef(sess.ID), sess); err != nil {
			return err
		}
		for _, f := range fields {
			if err := tx.Create(s.fieldRef(sess.ID, f.Position), f); err != nil {
				return err
			}
		}
		return nil
	})
	return eris.Wrapf(err, "firestore: create session %s", sess.ID)
}

func (s *FirestoreStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	snap, err := s.sessionRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, &models.NotFoundError{Resource: "session", ID: id}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "firestore: get session %s", id)
	}
	var sess models.Session
	if err := snap.DataTo(&sess); err != nil {
		return nil, eris.Wrapf(err, "firestore: decode session %s", id)
	}
	return &sess, nil
}

func (s *FirestoreStore) ListFields(ctx context.Context, sessionID string) ([]models.Field, error) {
	docs, err := s.sessionRef(sessionID).Collection(fieldsCollection).
		OrderBy("position", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, eris.Wrapf(err, "firestore: list fields %s", sessionID)
	}
	fields := make([]models.Field, 0, len(docs))
	for _, doc := range docs {
		var f models.Field
		if err := doc.DataTo(&f); err != nil {
			return nil, eris.Wrapf(err, "firestore: decode field %s", doc.Ref.ID)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// SaveAnswer writes the field and the session counters in one transaction.
// The counters come from the transaction's own reads, so a concurrent
// answer or expiry forces a retry instead of being overwritten.
func (s *FirestoreStore) SaveAnswer(ctx context.Context, sess *models.Session, f models.Field) error {
	sessRef := s.sessionRef(sess.ID)
	fieldRef := s.fieldRef(sess.ID, f.Position)

	var filled int
	var st models.SessionStatus
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		sessSnap, err := tx.Get(sessRef)
		if status.Code(err) == codes.NotFound {
			return &models.NotFoundError{Resource: "session", ID: sess.ID}
		}
		if err != nil {
			return err
		}
		var stored models.Session
		if err := sessSnap.DataTo(&stored); err != nil {
			return err
		}
		if stored.Status == models.StatusExpired {
			return &models.ValidationError{Reason: expiredReason}
		}

		fieldSnap, err := tx.Get(fieldRef)
		if status.Code(err) == codes.NotFound {
			return &models.NotFoundError{Resource: "field", ID: f.Name}
		}
		if err != nil {
			return err
		}
		var storedField models.Field
		if err := fieldSnap.DataTo(&storedField); err != nil {
			return err
		}
		if storedField.Name != f.Name {
			return &models.NotFoundError{Resource: "field", ID: f.Name}
		}

		filled, st = advance(stored, storedField.IsFilled, f.IsFilled)
		if err := tx.Update(fieldRef, []firestore.Update{
			{Path: "value", Value: f.Value},
			{Path: "isFilled", Value: f.IsFilled},
			{Path: "updatedAt", Value: f.UpdatedAt},
		}); err != nil {
			return err
		}
		return tx.Update(sessRef, []firestore.Update{
			{Path: "filledFields", Value: filled},
			{Path: "status", Value: st},
			{Path: "updatedAt", Value: sess.UpdatedAt},
		})
	})
	var (
		notFound   *models.NotFoundError
		validation *models.ValidationError
	)
	switch {
	case err == nil:
		sess.FilledFields, sess.Status = filled, st
		return nil
	case errors.As(err, &notFound):
		return notFound
	case errors.As(err, &validation):
		return validation
	}
	return eris.Wrapf(err, "firestore: save answer %s/%s", sess.ID, f.Name)
}

func (s *FirestoreStore) SetOutput(ctx context.Context, sessionID, outputPath string) error {
	_, err := s.sessionRef(sessionID).Update(ctx, []firestore.Update{
		{Path: "outputPath", Value: outputPath},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	if status.Code(err) == codes.NotFound {
		return &models.NotFoundError{Resource: "session", ID: sessionID}
	}
	return eris.Wrapf(err, "firestore: set output %s", sessionID)
}

func (s *FirestoreStore) ExpireSessions(ctx context.Context, before time.Time) (int, error) {
	docs, err := s.client.Collection(s.collection).
		Where("status", "==", string(models.StatusActive)).
		Where("updatedAt", "<", before).
		Documents(ctx).GetAll()
	if err != nil {
		return 0, eris.Wrap(err, "firestore: query stale sessions")
	}

	n := 0
	for _, doc := range docs {
		_, err := doc.Ref.Update(ctx, []firestore.Update{
			{Path: "status", Value: string(models.StatusExpired)},
			{Path: "updatedAt", Value: firestore.ServerTimestamp},
		}, firestore.LastUpdateTime(doc.UpdateTime))
		if err != nil {
			// Touched since the query ran; leave it active.
			if status.Code(err) == codes.FailedPrecondition {
				continue
			}
			return n, eris.Wrapf(err, "firestore: expire session %s", doc.Ref.ID)
		}
		n++
	}
	return n, nil
}
