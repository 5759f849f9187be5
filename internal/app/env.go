// Package app assembles a session.Service from configuration. It is shared
// by the CLI and the Cloud Functions entry points.
package app

import (
	"context"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/Lllllllleong/pdfformfiller/internal/blob"
	"github.com/Lllllllleong/pdfformfiller/internal/config"
	"github.com/Lllllllleong/pdfformfiller/internal/form"
	"github.com/Lllllllleong/pdfformfiller/internal/gcp"
	"github.com/Lllllllleong/pdfformfiller/internal/oracle"
	"github.com/Lllllllleong/pdfformfiller/internal/pdf"
	"github.com/Lllllllleong/pdfformfiller/internal/session"
	"github.com/Lllllllleong/pdfformfiller/internal/store"
)

const defaultAnthropicModel = "claude-haiku-4-5-20251001"

// Env is a fully wired service plus the clients it holds open.
type Env struct {
	Service *session.Service
	Store   store.Store
	Engine  *pdf.Engine

	closers []func() error
}

// Close releases every client opened by Build, newest first.
func (e *Env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			slog.Warn("Failed to close client.", "error", err)
		}
	}
	e.closers = nil
}

func (e *Env) onClose(fn func() error) {
	e.closers = append(e.closers, fn)
}

// Build validates cfg and wires the store, blob store, oracle, PDF engine
// and optional completion workflow into a session.Service.
func Build(ctx context.Context, cfg *config.Config) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	env := &Env{}
	ok := false
	defer func() {
		if !ok {
			env.Close()
		}
	}()

	st, err := openStore(ctx, env, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		return nil, eris.Wrap(err, "migrate store")
	}
	env.Store = st

	blobs, err := openBlobs(ctx, env, cfg)
	if err != nil {
		return nil, err
	}

	orc, err := openOracle(ctx, env, cfg.Oracle)
	if err != nil {
		return nil, err
	}

	policy, err := pdf.ParseDuplicatePolicy(cfg.Fields.DuplicatePolicy)
	if err != nil {
		return nil, eris.Wrap(err, "fields.duplicate_policy")
	}
	env.Engine = pdf.NewEngine(policy)

	deps := session.Deps{
		Store:       st,
		Blobs:       blobs,
		Extractor:   env.Engine,
		Composer:    form.NewComposer(orc, cfg.Oracle.Timeout),
		Normalizer:  form.NewNormalizer(orc, cfg.Oracle.Timeout),
		Synthesizer: pdf.NewSynthesizer(env.Engine),
	}

	if cfg.Workflow.ID != "" {
		trigger, err := gcp.NewWorkflowTrigger(ctx, cfg.Workflow.ProjectID, cfg.Workflow.Location, cfg.Workflow.ID)
		if err != nil {
			return nil, err
		}
		env.onClose(trigger.Close)
		deps.Hook = trigger
	}

	svc, err := session.NewService(session.Config{
		MaxFileSize: cfg.Upload.MaxFileSize,
	}, deps)
	if err != nil {
		return nil, err
	}
	env.Service = svc

	slog.Info("Form filler initialized.",
		"store", cfg.Store.Driver,
		"storage", cfg.Storage.Backend,
		"oracle", cfg.Oracle.Provider,
		"duplicatePolicy", string(policy),
		"workflow", cfg.Workflow.ID,
	)
	ok = true
	return env, nil
}

func openStore(ctx context.Context, env *Env, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "firestore":
		client, err := gcp.NewFirestoreClient(ctx, gcp.FirestoreOptions{ProjectID: cfg.ProjectID, DatabaseID: cfg.Database})
		if err != nil {
			return nil, err
		}
		st := store.NewFirestore(client, cfg.Collection)
		env.onClose(st.Close)
		return st, nil
	default:
		st, err := store.NewSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		env.onClose(st.Close)
		return st, nil
	}
}

func openBlobs(ctx context.Context, env *Env, cfg *config.Config) (blob.Store, error) {
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "failed to create Storage client")
		}
		env.onClose(client.Close)
		return blob.NewGCS(client, cfg.Storage.Bucket, cfg.Storage.Prefix)
	default:
		return blob.NewLocal(cfg.Upload.Dir)
	}
}

// openOracle returns the configured provider behind a rate limiter, or nil
// when the provider is "none" so that every question and answer takes the
// deterministic path.
func openOracle(ctx context.Context, env *Env, cfg config.OracleConfig) (oracle.Oracle, error) {
	var o oracle.Oracle
	switch cfg.Provider {
	case "vertex":
		client, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.Region, cfg.Model)
		if err != nil {
			return nil, err
		}
		env.onClose(client.Close)
		o = client
	case "anthropic":
		model := cfg.Model
		if model == "" {
			model = defaultAnthropicModel
		}
		o = oracle.NewAnthropic(cfg.APIKey, model)
	default:
		return nil, nil
	}

	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		o = oracle.Limit(o, rate.NewLimiter(rate.Limit(cfg.Rate), burst))
	}
	return o, nil
}
