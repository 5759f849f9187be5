// Package session runs the question-and-answer workflow for one uploaded
// form: field extraction on upload, one question per unfilled field,
// answer normalization, and synthesis of the flattened PDF.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/Lllllllleong/pdfformfiller/internal/blob"
	"github.com/Lllllllleong/pdfformfiller/internal/form"
	"github.com/Lllllllleong/pdfformfiller/internal/models"
	"github.com/Lllllllleong/pdfformfiller/internal/pdf"
	"github.com/Lllllllleong/pdfformfiller/internal/store"
)

const (
	// CompletionMessage is the question text once every field is filled.
	CompletionMessage = "All fields have been filled! You can now download your completed form."
	answerAccepted    = "Answer submitted successfully"
)

// Extractor lists the fillable fields of a PDF on disk.
type Extractor interface {
	ExtractFields(path string) ([]pdf.FieldInfo, error)
}

// Synthesizer writes a flattened copy of src with values baked in to dst.
type Synthesizer interface {
	Synthesize(ctx context.Context, src, dst string, values map[string]string) error
}

// CompletionHook is notified after a filled PDF has been stored.
type CompletionHook interface {
	SessionCompleted(ctx context.Context, ev models.CompletionEvent) error
}

// Config holds the service limits.
type Config struct {
	// MaxFileSize caps uploads in bytes. Zero disables the check.
	MaxFileSize int64
	// TempDir is where uploads and synthesis scratch files live. Empty
	// means os.TempDir().
	TempDir string
}

// Deps are the collaborators of a Service. Hook is optional.
type Deps struct {
	Store       store.Store
	Blobs       blob.Store
	Extractor   Extractor
	Composer    *form.Composer
	Normalizer  *form.Normalizer
	Synthesizer Synthesizer
	Hook        CompletionHook
}

// Service is the session workflow. It is safe for concurrent use; answer
// submission and completion are serialized per session.
type Service struct {
	config Config
	deps   Deps
	locks  *keyedMutex
}

func NewService(cfg Config, deps Deps) (*Service, error) {
	if deps.Store == nil || deps.Blobs == nil || deps.Extractor == nil || deps.Synthesizer == nil {
		return nil, fmt.Errorf("session.NewService: store, blobs, extractor and synthesizer are required")
	}
	if deps.Composer == nil {
		deps.Composer = form.NewComposer(nil, 0)
	}
	if deps.Normalizer == nil {
		deps.Normalizer = form.NewNormalizer(nil, 0)
	}
	return &Service{config: cfg, deps: deps, locks: newKeyedMutex()}, nil
}

// Start creates a session from an uploaded PDF. The upload is validated,
// its fields extracted, and the original stored as "<id>.pdf".
func (s *Service) Start(ctx context.Context, filename string, r io.Reader) (*models.Session, error) {
	if !isPDFName(filename) {
		return nil, &models.ValidationError{Reason: "Only PDF files are allowed"}
	}

	tmp, err := os.CreateTemp(s.config.TempDir, "upload-*.pdf")
	if err != nil {
		return nil, eris.Wrap(err, "session: create upload temp file")
	}
	defer os.Remove(tmp.Name())

	limit := s.config.MaxFileSize
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, eris.Wrap(err, "session: buffer upload")
	}
	if limit > 0 && n > limit {
		return nil, &models.ValidationError{Reason: "File size exceeds limit"}
	}

	id := uuid.New().String()
	return s.register(ctx, id, filepath.Base(filename), tmp.Name(), "")
}

// Ingest creates a session for a PDF that already lives in the blob store,
// as happens when a file lands in the upload bucket.
func (s *Service) Ingest(ctx context.Context, objectName string) (*models.Session, error) {
	if !isPDFName(objectName) {
		return nil, &models.ValidationError{Reason: "Only PDF files are allowed"}
	}

	dir, err := os.MkdirTemp(s.config.TempDir, "ingest-")
	if err != nil {
		return nil, eris.Wrap(err, "session: create ingest dir")
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, "source.pdf")
	if err := s.deps.Blobs.Fetch(ctx, objectName, local); err != nil {
		if errors.Is(err, blob.ErrNotExist) {
			return nil, &models.NotFoundError{Resource: "object", ID: objectName}
		}
		return nil, err
	}

	id := uuid.New().String()
	return s.register(ctx, id, path.Base(objectName), local, objectName)
}

// register extracts fields from localPath and persists a new session. When
// blobName is empty the file is uploaded to the blob store first.
func (s *Service) register(ctx context.Context, id, filename, localPath, blobName string) (*models.Session, error) {
	logCtx := slog.With("sessionId", id, "filename", filename)

	infos, err := s.deps.Extractor.ExtractFields(localPath)
	if err != nil {
		logCtx.Warn("Rejected unreadable PDF.", "error", err)
		return nil, &models.ValidationError{Reason: fmt.Sprintf("Error processing PDF: %v", err)}
	}
	if len(infos) == 0 {
		return nil, &models.ValidationError{Reason: "No form fields found in PDF"}
	}

	if blobName == "" {
		blobName = id + ".pdf"
		f, err := os.Open(localPath)
		if err != nil {
			return nil, eris.Wrap(err, "session: reopen upload")
		}
		err = s.deps.Blobs.Put(ctx, blobName, f)
		f.Close()
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	sess := &models.Session{
		ID:          id,
		Filename:    filename,
		FilePath:    blobName,
		TotalFields: len(infos),
		Status:      models.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	fields := make([]models.Field, len(infos))
	for i, info := range infos {
		fields[i] = models.Field{
			SessionID: id,
			Name:      info.Name,
			Kind:      form.Classify(info.Code),
			Choices:   info.Choices,
			Position:  i,
			UpdatedAt: now,
		}
	}

	if err := s.deps.Store.CreateSession(ctx, sess, fields); err != nil {
		return nil, err
	}
	logCtx.Info("Session created.", "totalFields", sess.TotalFields, "filePath", blobName)
	return sess, nil
}

// Fields returns the session's fields in extraction order.
func (s *Service) Fields(ctx context.Context, id string) ([]models.Field, error) {
	_, fields, err := s.load(ctx, id)
	return fields, err
}

// NextQuestion composes the question for the first unfilled field.
func (s *Service) NextQuestion(ctx context.Context, id string) (models.QuestionResponse, error) {
	_, fields, err := s.load(ctx, id)
	if err != nil {
		return models.QuestionResponse{}, err
	}

	f, ok := NextQuestionField(fields)
	if !ok {
		return models.QuestionResponse{Question: CompletionMessage, IsComplete: true}, nil
	}

	q := s.deps.Composer.Compose(ctx, f.Name, f.Kind)
	name, kind := f.Name, f.Kind
	return models.QuestionResponse{
		Question:  q.Text,
		FieldName: &name,
		FieldType: &kind,
		Choices:   f.Choices,
	}, nil
}

// SubmitAnswer normalizes raw for the named field and stores it.
func (s *Service) SubmitAnswer(ctx context.Context, id, fieldName, raw string) (models.AnswerResponse, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, fields, err := s.load(ctx, id)
	if err != nil {
		return models.AnswerResponse{}, err
	}
	if sess.Status == models.StatusExpired {
		return models.AnswerResponse{}, &models.ValidationError{Reason: "session has expired"}
	}

	var target *models.Field
	for i := range fields {
		if fields[i].Name == fieldName {
			target = &fields[i]
			break
		}
	}
	if target == nil {
		return models.AnswerResponse{}, &models.NotFoundError{Resource: "field", ID: fieldName}
	}

	answer := s.deps.Normalizer.Normalize(ctx, raw, target.Kind, target.Name, target.Choices)

	idx, err := RecordAnswer(sess, fields, fieldName, answer.Value)
	if err != nil {
		return models.AnswerResponse{}, err
	}
	if err := s.deps.Store.SaveAnswer(ctx, sess, fields[idx]); err != nil {
		return models.AnswerResponse{}, err
	}

	slog.Info("Answer recorded.", "sessionId", id, "field", fieldName,
		"filledFields", sess.FilledFields, "totalFields", sess.TotalFields,
		"status", sess.Status, "fallback", answer.Fallback)
	return models.AnswerResponse{Message: answerAccepted, ProcessedValue: answer.Value}, nil
}

// Status reports the session's progress.
func (s *Service) Status(ctx context.Context, id string) (models.StatusResponse, error) {
	sess, err := s.deps.Store.GetSession(ctx, id)
	if err != nil {
		return models.StatusResponse{}, err
	}
	return models.StatusResponse{
		SessionID:    sess.ID,
		Status:       sess.Status,
		FilledFields: sess.FilledFields,
		TotalFields:  sess.TotalFields,
		Progress:     Progress(*sess),
	}, nil
}

// Complete synthesizes the filled PDF and stores it as "<id>_filled.pdf".
// The session is left untouched if any field is unfilled or synthesis fails.
func (s *Service) Complete(ctx context.Context, id string) (models.CompletionResponse, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	logCtx := slog.With("sessionId", id)

	sess, fields, err := s.load(ctx, id)
	if err != nil {
		return models.CompletionResponse{}, err
	}
	if filled := CountFilled(fields); len(fields) == 0 || filled < len(fields) {
		return models.CompletionResponse{}, &models.IncompleteFormError{SessionID: id, Filled: filled, Total: len(fields)}
	}

	values := make(map[string]string, len(fields))
	for _, f := range fields {
		if f.Value != "" {
			values[f.Name] = f.Value
		}
	}

	workDir, err := os.MkdirTemp(s.config.TempDir, "synth-")
	if err != nil {
		return models.CompletionResponse{}, eris.Wrap(err, "session: create synthesis dir")
	}
	defer os.RemoveAll(workDir)

	src := filepath.Join(workDir, "source.pdf")
	dst := filepath.Join(workDir, "filled.pdf")
	if err := s.deps.Blobs.Fetch(ctx, sess.FilePath, src); err != nil {
		return models.CompletionResponse{}, err
	}

	if err := s.deps.Synthesizer.Synthesize(ctx, src, dst, values); err != nil {
		logCtx.Error("Synthesis failed.", "error", err)
		var synthErr *models.SynthesisError
		if errors.As(err, &synthErr) {
			return models.CompletionResponse{}, &models.SynthesisError{SessionID: id, Err: synthErr.Err}
		}
		return models.CompletionResponse{}, &models.SynthesisError{SessionID: id, Err: err}
	}

	outName := id + "_filled.pdf"
	out, err := os.Open(dst)
	if err != nil {
		return models.CompletionResponse{}, eris.Wrap(err, "session: open synthesized file")
	}
	err = s.deps.Blobs.Put(ctx, outName, out)
	out.Close()
	if err != nil {
		return models.CompletionResponse{}, err
	}

	if err := s.deps.Store.SetOutput(ctx, id, outName); err != nil {
		return models.CompletionResponse{}, err
	}
	logCtx.Info("Filled PDF stored.", "outputPath", outName, "values", len(values))

	if s.deps.Hook != nil {
		ev := models.CompletionEvent{SessionID: id, Filename: sess.Filename, OutputPath: outName}
		if err := s.deps.Hook.SessionCompleted(ctx, ev); err != nil {
			logCtx.Warn("Completion hook failed.", "error", err)
		}
	}

	return models.CompletionResponse{
		SessionID:    id,
		DownloadURL:  "/download/" + id,
		FilledFields: len(values),
		TotalFields:  sess.TotalFields,
	}, nil
}

// Download opens the synthesized PDF. The returned name is the filename
// offered to the client.
func (s *Service) Download(ctx context.Context, id string) (io.ReadCloser, string, error) {
	sess, err := s.deps.Store.GetSession(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if sess.OutputPath == "" {
		return nil, "", &models.NotFoundError{Resource: "completed form", ID: id}
	}

	rc, err := s.deps.Blobs.Open(ctx, sess.OutputPath)
	if err != nil {
		if errors.Is(err, blob.ErrNotExist) {
			return nil, "", &models.NotFoundError{Resource: "completed form", ID: id}
		}
		return nil, "", err
	}
	return rc, "completed_" + sess.Filename, nil
}

// ExpireStale marks active sessions idle for longer than ttl as expired.
func (s *Service) ExpireStale(ctx context.Context, ttl time.Duration) (int, error) {
	n, err := s.deps.Store.ExpireSessions(ctx, time.Now().UTC().Add(-ttl))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("Expired stale sessions.", "count", n, "ttl", ttl.String())
	}
	return n, nil
}

// Sweep calls ExpireStale every interval until ctx is cancelled. Sweep
// errors are logged and do not stop the loop.
func (s *Service) Sweep(ctx context.Context, interval, ttl time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.ExpireStale(ctx, ttl); err != nil {
				slog.Error("Session sweep failed.", "error", err)
			}
		}
	}
}

func (s *Service) load(ctx context.Context, id string) (*models.Session, []models.Field, error) {
	sess, err := s.deps.Store.GetSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	fields, err := s.deps.Store.ListFields(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return sess, fields, nil
}

func isPDFName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
