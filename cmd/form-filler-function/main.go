package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/pdfformfiller/internal/api"
	"github.com/Lllllllleong/pdfformfiller/internal/app"
	"github.com/Lllllllleong/pdfformfiller/internal/config"
	"github.com/Lllllllleong/pdfformfiller/internal/models"
)

var (
	env     *app.Env
	router  http.Handler
	filter  app.IngestFilter
	once    sync.Once
	initErr error
)

func init() {
	functions.HTTP("HandleFormFiller", handleFormFiller)
	functions.CloudEvent("IngestUploadedForm", ingestUploadedForm)
}

// main is required by the Go Functions Framework.
func main() {}

func setup() {
	once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			initErr = err
			return
		}
		if err := config.InitLogger(cfg.Log); err != nil {
			initErr = err
			return
		}
		env, initErr = app.Build(context.Background(), cfg)
		if initErr != nil {
			return
		}
		router = api.NewRouter(api.NewHandler(env.Service, cfg.Upload.MaxFileSize), cfg.Server.CORSOrigins)
		filter = app.NewIngestFilter(cfg.Storage)
	})
}

// handleFormFiller serves the whole HTTP API from a single function.
func handleFormFiller(w http.ResponseWriter, r *http.Request) {
	setup()
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	router.ServeHTTP(w, r)
}

// ingestUploadedForm starts a session for every PDF finalized under the
// ingest prefix of the upload bucket.
func ingestUploadedForm(ctx context.Context, e cloudevents.Event) error {
	setup()
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	logCtx := slog.With("gcsBucket", gcsEvent.Bucket, "gcsObject", gcsEvent.Name)

	objectName, ok := filter.ObjectName(gcsEvent)
	if !ok {
		logCtx.Info("Object outside the ingest prefix. Skipping.")
		return nil
	}

	sess, err := env.Service.Ingest(ctx, objectName)
	if err != nil {
		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) {
			// Retrying cannot fix a bad document.
			logCtx.Warn("Uploaded object rejected.", "reason", validationErr.Reason)
			return nil
		}
		logCtx.Error("Failed to ingest uploaded form", "error", err)
		return err
	}
	logCtx.Info("Session created from upload.", "sessionId", sess.ID, "totalFields", sess.TotalFields)
	return nil
}
