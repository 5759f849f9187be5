package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/pdfformfiller/internal/blob"
	"github.com/Lllllllleong/pdfformfiller/internal/form"
	"github.com/Lllllllleong/pdfformfiller/internal/models"
	"github.com/Lllllllleong/pdfformfiller/internal/oracle"
	"github.com/Lllllllleong/pdfformfiller/internal/pdf"
	"github.com/Lllllllleong/pdfformfiller/internal/store"
)

type memStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	fields   map[string][]models.Field
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]models.Session{}, fields: map[string][]models.Field{}}
}

func (m *memStore) CreateSession(_ context.Context, s *models.Session, fields []models.Field) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	m.fields[s.ID] = append([]models.Field(nil), fields...)
	return nil
}

func (m *memStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &models.NotFoundError{Resource: "session", ID: id}
	}
	return &s, nil
}

func (m *memStore) ListFields(_ context.Context, id string) ([]models.Field, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Field(nil), m.fields[id]...), nil
}

func (m *memStore) SaveAnswer(_ context.Context, s *models.Session, f models.Field) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[s.ID]
	if !ok {
		return &models.NotFoundError{Resource: "session", ID: s.ID}
	}
	if stored.Status == models.StatusExpired {
		return &models.ValidationError{Reason: "session has expired"}
	}
	idx := -1
	for i := range m.fields[s.ID] {
		if m.fields[s.ID][i].Name == f.Name {
			idx = i
		}
	}
	if idx < 0 {
		return &models.NotFoundError{Resource: "field", ID: f.Name}
	}
	if !m.fields[s.ID][idx].IsFilled && f.IsFilled && stored.FilledFields < stored.TotalFields {
		stored.FilledFields++
	}
	Recompute(&stored)
	stored.UpdatedAt = s.UpdatedAt
	m.fields[s.ID][idx] = f
	m.sessions[s.ID] = stored
	s.FilledFields, s.Status = stored.FilledFields, stored.Status
	return nil
}

func (m *memStore) SetOutput(_ context.Context, id, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	s.OutputPath = path
	m.sessions[id] = s
	return nil
}

func (m *memStore) ExpireSessions(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.Status == models.StatusActive && s.UpdatedAt.Before(before) {
			s.Status = models.StatusExpired
			m.sessions[id] = s
			n++
		}
	}
	return n, nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *memBlobs) Put(_ context.Context, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[name] = data
	return nil
}

func (b *memBlobs) Fetch(_ context.Context, name, dest string) error {
	b.mu.Lock()
	data, ok := b.objects[name]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("fetch %s: %w", name, blob.ErrNotExist)
	}
	return os.WriteFile(dest, data, 0o600)
}

func (b *memBlobs) Open(_ context.Context, name string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[name]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", name, blob.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type fakeExtractor struct {
	fields []pdf.FieldInfo
	err    error
}

func (f fakeExtractor) ExtractFields(string) ([]pdf.FieldInfo, error) { return f.fields, f.err }

type fakeSynth struct {
	values map[string]string
	err    error
}

func (f *fakeSynth) Synthesize(_ context.Context, src, dst string, values map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.values = values
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, append([]byte("FILLED:"), data...), 0o600)
}

type recordingHook struct{ events []models.CompletionEvent }

func (h *recordingHook) SessionCompleted(_ context.Context, ev models.CompletionEvent) error {
	h.events = append(h.events, ev)
	return errors.New("hook failures are only logged")
}

type fixture struct {
	svc   *Service
	store *memStore
	blobs *memBlobs
	synth *fakeSynth
	hook  *recordingHook
}

func newFixture(t *testing.T, infos []pdf.FieldInfo, o oracle.Oracle) *fixture {
	t.Helper()
	f := &fixture{
		store: newMemStore(),
		blobs: &memBlobs{objects: map[string][]byte{}},
		synth: &fakeSynth{},
		hook:  &recordingHook{},
	}
	svc, err := NewService(Config{MaxFileSize: 1024, TempDir: t.TempDir()}, Deps{
		Store:       f.store,
		Blobs:       f.blobs,
		Extractor:   fakeExtractor{fields: infos},
		Composer:    form.NewComposer(o, time.Second),
		Normalizer:  form.NewNormalizer(o, time.Second),
		Synthesizer: f.synth,
		Hook:        f.hook,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

var nameEmail = []pdf.FieldInfo{
	{Name: "name", Code: form.CodeTextAlt, Page: 1},
	{Name: "email", Code: form.CodeTextAlt, Page: 1},
}

func TestStart_CreatesActiveSession(t *testing.T) {
	fx := newFixture(t, nameEmail, nil)

	s, err := fx.svc.Start(context.Background(), "form.pdf", strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)

	assert.Equal(t, 2, s.TotalFields)
	assert.Equal(t, 0, s.FilledFields)
	assert.Equal(t, models.StatusActive, s.Status)
	assert.Equal(t, "form.pdf", s.Filename)
	assert.Equal(t, s.ID+".pdf", s.FilePath)
	assert.Equal(t, []byte("%PDF-1.7"), fx.blobs.objects[s.ID+".pdf"])

	fields, err := fx.svc.Fields(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "name", fields[0].Name)
	assert.Equal(t, models.KindText, fields[0].Kind)
	assert.Equal(t, 1, fields[1].Position)
}

func TestStart_Validation(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		body     string
		infos    []pdf.FieldInfo
	}{
		{"wrong extension", "form.docx", "x", nameEmail},
		{"oversize", "form.pdf", strings.Repeat("x", 1025), nameEmail},
		{"no fields", "form.pdf", "x", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, tt.infos, nil)
			_, err := fx.svc.Start(context.Background(), tt.filename, strings.NewReader(tt.body))
			var ve *models.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Empty(t, fx.store.sessions)
		})
	}
}

func TestStart_UnreadablePDF(t *testing.T) {
	fx := newFixture(t, nil, nil)
	svc, err := NewService(Config{TempDir: t.TempDir()}, Deps{
		Store:       fx.store,
		Blobs:       fx.blobs,
		Extractor:   fakeExtractor{err: errors.New("not a pdf")},
		Synthesizer: fx.synth,
	})
	require.NoError(t, err)

	_, err = svc.Start(context.Background(), "FORM.PDF", strings.NewReader("garbage"))
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Reason, "not a pdf")
}

func TestNextQuestion_FallbackAndCompletion(t *testing.T) {
	fx := newFixture(t, nameEmail, oracle.Disabled{})
	ctx := context.Background()
	s, err := fx.svc.Start(ctx, "form.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)

	q, err := fx.svc.NextQuestion(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, q.IsComplete)
	require.NotNil(t, q.FieldName)
	assert.Equal(t, "name", *q.FieldName)
	assert.Equal(t, models.KindText, *q.FieldType)
	assert.Equal(t, "Please provide a value for Name:", q.Question)

	_, err = fx.svc.SubmitAnswer(ctx, s.ID, "name", "Jane Doe")
	require.NoError(t, err)
	_, err = fx.svc.SubmitAnswer(ctx, s.ID, "email", "jane@example.com")
	require.NoError(t, err)

	q, err = fx.svc.NextQuestion(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, q.IsComplete)
	assert.Nil(t, q.FieldName)
	assert.Equal(t, CompletionMessage, q.Question)

	st, err := fx.svc.Status(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, st.Status)
	assert.Equal(t, 100.0, st.Progress)
}

func TestSubmitAnswer_RadioStoresYes(t *testing.T) {
	fx := newFixture(t, []pdf.FieldInfo{{Name: "agree", Code: form.CodeRadioButton, Page: 1}}, nil)
	ctx := context.Background()
	s, err := fx.svc.Start(ctx, "form.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)

	resp, err := fx.svc.SubmitAnswer(ctx, s.ID, "agree", "yes please check this")
	require.NoError(t, err)
	assert.Equal(t, "yes", resp.ProcessedValue)
	assert.Equal(t, "yes", fx.store.fields[s.ID][0].Value)
}

func TestSubmitAnswer_Errors(t *testing.T) {
	fx := newFixture(t, nameEmail, nil)
	ctx := context.Background()
	s, err := fx.svc.Start(ctx, "form.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)

	var nf *models.NotFoundError
	_, err = fx.svc.SubmitAnswer(ctx, "missing", "name", "x")
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "session", nf.Resource)

	_, err = fx.svc.SubmitAnswer(ctx, s.ID, "phone", "x")
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "field", nf.Resource)

	n, err := fx.svc.ExpireStale(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = fx.svc.SubmitAnswer(ctx, s.ID, "name", "x")
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestComplete_IncompleteLeavesSessionUntouched(t *testing.T) {
	fx := newFixture(t, nameEmail, nil)
	ctx := context.Background()
	s, err := fx.svc.Start(ctx, "form.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	_, err = fx.svc.SubmitAnswer(ctx, s.ID, "name", "Jane Doe")
	require.NoError(t, err)
	before := fx.store.sessions[s.ID]

	_, err = fx.svc.Complete(ctx, s.ID)
	var ie *models.IncompleteFormError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 1, ie.Filled)
	assert.Equal(t, 2, ie.Total)
	assert.Equal(t, 1, ie.Remaining())

	assert.Equal(t, before, fx.store.sessions[s.ID])
	assert.Nil(t, fx.synth.values)
	assert.Empty(t, fx.hook.events)
}

func TestComplete_SynthesizesAndDownloads(t *testing.T) {
	fx := newFixture(t, nameEmail, nil)
	ctx := context.Background()
	s, err := fx.svc.Start(ctx, "form.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	_, err = fx.svc.SubmitAnswer(ctx, s.ID, "name", " Jane Doe ")
	require.NoError(t, err)
	_, err = fx.svc.SubmitAnswer(ctx, s.ID, "email", "jane@example.com")
	require.NoError(t, err)

	resp, err := fx.svc.Complete(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "/download/"+s.ID, resp.DownloadURL)
	assert.Equal(t, 2, resp.FilledFields)
	assert.Equal(t, 2, resp.TotalFields)
	assert.Equal(t, map[string]string{"name": "Jane Doe", "email": "jane@example.com"}, fx.synth.values)

	require.Len(t, fx.hook.events, 1)
	assert.Equal(t, s.ID+"_filled.pdf", fx.hook.events[0].OutputPath)

	rc, name, err := fx.svc.Download(ctx, s.ID)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "completed_form.pdf", name)
	assert.Equal(t, "FILLED:%PDF", string(body))
}

func TestComplete_SynthesisFailure(t *testing.T) {
	fx := newFixture(t, nameEmail[:1], nil)
	fx.synth.err = errors.New("engine exploded")
	ctx := context.Background()
	s, err := fx.svc.Start(ctx, "form.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	_, err = fx.svc.SubmitAnswer(ctx, s.ID, "name", "Jane")
	require.NoError(t, err)

	_, err = fx.svc.Complete(ctx, s.ID)
	var se *models.SynthesisError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, s.ID, se.SessionID)
	assert.Empty(t, fx.store.sessions[s.ID].OutputPath)
}

func TestDownload_BeforeCompletion(t *testing.T) {
	fx := newFixture(t, nameEmail, nil)
	ctx := context.Background()
	s, err := fx.svc.Start(ctx, "form.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)

	_, _, err = fx.svc.Download(ctx, s.ID)
	var nf *models.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "completed form", nf.Resource)
}

func TestIngest_UsesExistingObject(t *testing.T) {
	fx := newFixture(t, nameEmail, nil)
	fx.blobs.objects["incoming/w9.pdf"] = []byte("%PDF")

	s, err := fx.svc.Ingest(context.Background(), "incoming/w9.pdf")
	require.NoError(t, err)
	assert.Equal(t, "w9.pdf", s.Filename)
	assert.Equal(t, "incoming/w9.pdf", s.FilePath)
	assert.Len(t, fx.blobs.objects, 1)

	_, err = fx.svc.Ingest(context.Background(), "incoming/missing.pdf")
	var nf *models.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestSubmitAnswer_ConcurrentReanswersCountOnce(t *testing.T) {
	fx := newFixture(t, nameEmail, nil)
	ctx := context.Background()
	s, err := fx.svc.Start(ctx, "form.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := fx.svc.SubmitAnswer(ctx, s.ID, "name", fmt.Sprintf("v%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st, err := fx.svc.Status(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.FilledFields)
	assert.Equal(t, 50.0, st.Progress)
}

func TestSubmitAnswer_ServicesSharingStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "shared.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))
	blobs := &memBlobs{objects: map[string][]byte{}}

	// Each normalization waits for the other so both answers are computed
	// from the same loaded session.
	var arrived sync.WaitGroup
	arrived.Add(2)
	slow := oracle.Func(func(context.Context, string, oracle.Params) (string, error) {
		arrived.Done()
		arrived.Wait()
		return "cleaned", nil
	})
	newSvc := func() *Service {
		svc, err := NewService(Config{TempDir: t.TempDir()}, Deps{
			Store:       st,
			Blobs:       blobs,
			Extractor:   fakeExtractor{fields: nameEmail},
			Normalizer:  form.NewNormalizer(slow, 5*time.Second),
			Synthesizer: &fakeSynth{},
		})
		require.NoError(t, err)
		return svc
	}
	first, second := newSvc(), newSvc()

	s, err := first.Start(ctx, "form.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, tc := range []struct {
		svc   *Service
		field string
	}{{first, "name"}, {second, "email"}} {
		wg.Add(1)
		go func(svc *Service, field string) {
			defer wg.Done()
			_, err := svc.SubmitAnswer(ctx, s.ID, field, "raw")
			assert.NoError(t, err)
		}(tc.svc, tc.field)
	}
	wg.Wait()

	status, err := first.Status(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, status.FilledFields)
	assert.Equal(t, models.StatusCompleted, status.Status)

	fields, err := second.Fields(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, CountFilled(fields))
}

func TestSubmitAnswer_ExpiredDuringNormalize(t *testing.T) {
	var fx *fixture
	expiring := oracle.Func(func(ctx context.Context, _ string, _ oracle.Params) (string, error) {
		_, err := fx.svc.ExpireStale(ctx, -time.Minute)
		return "Jane Doe", err
	})
	fx = newFixture(t, nameEmail, expiring)
	ctx := context.Background()
	s, err := fx.svc.Start(ctx, "form.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)

	_, err = fx.svc.SubmitAnswer(ctx, s.ID, "name", "jane doe")
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)

	st, err := fx.svc.Status(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, st.Status)
	assert.Equal(t, 0, st.FilledFields)
	assert.False(t, fx.store.fields[s.ID][0].IsFilled)
}
