package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
)

// FirestoreOptions selects the project and database a session store talks to.
type FirestoreOptions struct {
	ProjectID string
	// DatabaseID names a non-default Firestore database. Empty means "(default)".
	DatabaseID string
}

func (o FirestoreOptions) database() string {
	if o.DatabaseID == "" {
		return firestore.DefaultDatabaseID
	}
	return o.DatabaseID
}

// NewFirestoreClient opens a client on the configured database.
// When FIRESTORE_EMULATOR_HOST is set the client library connects to the emulator.
func NewFirestoreClient(ctx context.Context, opts FirestoreOptions) (*firestore.Client, error) {
	if opts.ProjectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	db := opts.database()
	logCtx := slog.With("projectId", opts.ProjectID, "database", db)
	if host := os.Getenv("FIRESTORE_EMULATOR_HOST"); host != "" {
		logCtx = logCtx.With("emulator", host)
	}

	client, err := firestore.NewClientWithDatabase(ctx, opts.ProjectID, db)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client for database %s: %w", db, err)
	}

	logCtx.Info("Firestore client ready.")
	return client, nil
}
