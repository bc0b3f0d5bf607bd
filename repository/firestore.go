package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/krshsl/mensetsu/backend/models"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreCollection adapts a Firestore collection to DocumentCollection.
// Versions are document update times.
type FirestoreCollection struct {
	ref *firestore.CollectionRef
}

func NewFirestoreCollection(ref *firestore.CollectionRef) *FirestoreCollection {
	return &FirestoreCollection{ref: ref}
}

// OpenFirestore connects to the configured project and returns a store over
// its users and interviews collections.
func OpenFirestore(ctx context.Context, cfg FirestoreConfig) (*DocumentStore, error) {
	if cfg.ProjectID == "" || cfg.UsersCollection == "" || cfg.InterviewsCollection == "" {
		return nil, fmt.Errorf("firestore project and collections are required: %w", models.ErrConfiguration)
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	interviews := client.Collection(cfg.InterviewsCollection)
	store := NewDocumentStore(
		"firestore",
		NewFirestoreCollection(client.Collection(cfg.UsersCollection)),
		NewFirestoreCollection(interviews),
	)
	store.ping = func(ctx context.Context) error {
		iter := interviews.Limit(1).Documents(ctx)
		defer iter.Stop()
		if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
			return err
		}
		return nil
	}
	store.close = client.Close
	slog.Info("Connected to firestore", "project", cfg.ProjectID)
	return store, nil
}

func (c *FirestoreCollection) Create(ctx context.Context, id string, doc map[string]any) error {
	if _, err := c.ref.Doc(id).Create(ctx, doc); err != nil {
		return translateStatus(err, id)
	}
	return nil
}

func (c *FirestoreCollection) Get(ctx context.Context, id string) (map[string]any, string, error) {
	snap, err := c.ref.Doc(id).Get(ctx)
	if err != nil {
		return nil, "", translateStatus(err, id)
	}
	return snap.Data(), snap.UpdateTime.Format(time.RFC3339Nano), nil
}

func (c *FirestoreCollection) Replace(ctx context.Context, id string, doc map[string]any, version string) error {
	precondition := firestore.Exists
	if version != "" {
		updated, err := time.Parse(time.RFC3339Nano, version)
		if err != nil {
			return fmt.Errorf("invalid document version %q: %w", version, err)
		}
		precondition = firestore.LastUpdateTime(updated)
	}

	updates := make([]firestore.Update, 0, len(doc))
	for key, value := range doc {
		updates = append(updates, firestore.Update{Path: key, Value: value})
	}
	if _, err := c.ref.Doc(id).Update(ctx, updates, precondition); err != nil {
		return translateStatus(err, id)
	}
	return nil
}

func (c *FirestoreCollection) Delete(ctx context.Context, id string) error {
	if _, err := c.ref.Doc(id).Delete(ctx); err != nil {
		return translateStatus(err, id)
	}
	return nil
}

func (c *FirestoreCollection) QueryByField(ctx context.Context, field string, value any) ([]map[string]any, error) {
	iter := c.ref.Where(field, "==", value).Documents(ctx)
	defer iter.Stop()

	var docs []map[string]any
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", c.ref.ID, err)
		}
		data := snap.Data()
		if _, ok := data["id"]; !ok {
			data["id"] = snap.Ref.ID
		}
		docs = append(docs, data)
	}
	return docs, nil
}

func translateStatus(err error, id string) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return fmt.Errorf("document %s: %w", id, models.ErrConflict)
	}
	return err
}
