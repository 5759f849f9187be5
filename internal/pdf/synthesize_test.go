package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/pdfformfiller/internal/form"
	"github.com/Lllllllleong/pdfformfiller/internal/models"
)

type fakeDocument struct {
	widgets []Widget
	calls   []string
	saveErr error
}

func (f *fakeDocument) Widgets() ([]Widget, error) { return f.widgets, nil }

func (f *fakeDocument) SetFieldValue(w Widget, value string) error {
	f.calls = append(f.calls, fmt.Sprintf("set %s=%s", w.Name, value))
	return nil
}

func (f *fakeDocument) DrawText(page int, r Rect, text string, size float64) error {
	f.calls = append(f.calls, fmt.Sprintf("text p%d %v %q %v", page, r, text, size))
	return nil
}

func (f *fakeDocument) DrawCheck(page int, r Rect) error {
	f.calls = append(f.calls, fmt.Sprintf("check p%d", page))
	return nil
}

func (f *fakeDocument) DrawFilledCircle(page int, cx, cy, radius float64) error {
	f.calls = append(f.calls, fmt.Sprintf("circle p%d %v %v %v", page, cx, cy, radius))
	return nil
}

func (f *fakeDocument) DeleteAnnotation(w Widget) error {
	f.calls = append(f.calls, "delete "+w.Name)
	return nil
}

func (f *fakeDocument) RemoveForm() error {
	f.calls = append(f.calls, "remove form")
	return nil
}

func (f *fakeDocument) Save(path string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.calls = append(f.calls, "save")
	return os.WriteFile(path, []byte("%PDF-out"), 0o600)
}

type fakeOpener struct {
	doc *fakeDocument
	err error
}

func (o fakeOpener) Open(string) (Document, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.doc, nil
}

func TestSynthesize_PassOrder(t *testing.T) {
	doc := &fakeDocument{widgets: []Widget{
		{Name: "name", Page: 1, Rect: Rect{100, 700, 300, 720}, Code: form.CodeTextAlt},
		{Name: "agree", Page: 1, Rect: Rect{100, 650, 115, 665}, Code: form.CodeComboBox},
		{Name: "plan", Page: 2, Rect: Rect{100, 550, 112, 562}, Code: form.CodeRadioButton},
		{Name: "plan", Page: 2, Rect: Rect{150, 550, 162, 562}, Code: form.CodeRadioButton},
		{Name: "skip", Page: 2, Rect: Rect{0, 0, 10, 10}, Code: form.CodeComboBox},
		{Name: "", Page: 2, Rect: Rect{0, 0, 10, 10}},
	}}
	dst := filepath.Join(t.TempDir(), "out.pdf")

	err := NewSynthesizer(fakeOpener{doc: doc}).Synthesize(context.Background(), "src.pdf", dst,
		map[string]string{"name": "Jane Doe", "agree": "yes", "plan": "yes", "skip": "no"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"set name=Jane Doe",
		"set agree=yes",
		"set plan=yes",
		"set plan=yes",
		"set skip=no",
		`text p1 {102 701 298 719} "Jane Doe" 10`,
		"check p1",
		"circle p2 106 556 3",
		"circle p2 156 556 3",
		"delete name",
		"delete agree",
		"delete plan",
		"delete plan",
		"delete skip",
		"delete ",
		"remove form",
		"save",
	}, doc.calls)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-out", string(data))

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be renamed away")
}

func TestSynthesize_DropdownAndSignatureDrawText(t *testing.T) {
	doc := &fakeDocument{widgets: []Widget{
		{Name: "color", Page: 1, Rect: Rect{0, 0, 100, 20}, Code: form.CodeComboBox, Choices: []string{"Red", "Blue"}},
		{Name: "sig", Page: 1, Rect: Rect{0, 30, 100, 50}, Code: form.CodeSignature},
		{Name: "button", Page: 1, Rect: Rect{0, 60, 100, 80}, Code: form.CodePushButton},
	}}
	dst := filepath.Join(t.TempDir(), "out.pdf")

	err := NewSynthesizer(fakeOpener{doc: doc}).Synthesize(context.Background(), "src.pdf", dst,
		map[string]string{"color": "Blue", "sig": "J. Doe", "button": "x"})
	require.NoError(t, err)
	assert.Contains(t, doc.calls, `text p1 {2 1 98 19} "Blue" 10`)
	assert.Contains(t, doc.calls, `text p1 {2 31 98 49} "J. Doe" 10`)
	for _, c := range doc.calls {
		assert.NotContains(t, c, `"x"`)
	}
}

func TestSynthesize_Failures(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.pdf")

	err := NewSynthesizer(fakeOpener{err: errors.New("corrupt")}).Synthesize(context.Background(), "src.pdf", dst, nil)
	var se *models.SynthesisError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Error(), "corrupt")

	doc := &fakeDocument{saveErr: errors.New("disk full")}
	err = NewSynthesizer(fakeOpener{doc: doc}).Synthesize(context.Background(), "src.pdf", dst, nil)
	require.ErrorAs(t, err, &se)
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSynthesize_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := &fakeDocument{widgets: []Widget{{Name: "name", Page: 1, Code: form.CodeTextAlt}}}

	err := NewSynthesizer(fakeOpener{doc: doc}).Synthesize(ctx, "src.pdf", filepath.Join(t.TempDir(), "out.pdf"), map[string]string{"name": "x"})
	var se *models.SynthesisError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, doc.calls, "save")
}

func TestSynthesize_WarnsOnReplacedCharacters(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		name  string
		value string
		warn  bool
	}{
		{"latin", "Zoë Müller", false},
		{"cjk", "李小龙", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs.Reset()
			doc := &fakeDocument{widgets: []Widget{{Name: "name", Page: 1, Rect: Rect{0, 0, 100, 20}, Code: form.CodeTextAlt}}}
			dst := filepath.Join(t.TempDir(), "out.pdf")

			err := NewSynthesizer(fakeOpener{doc: doc}).Synthesize(context.Background(), "src.pdf", dst,
				map[string]string{"name": tt.value})
			require.NoError(t, err)

			if tt.warn {
				assert.Contains(t, logs.String(), `"level":"WARN"`)
				assert.Contains(t, logs.String(), `"field":"name"`)
				assert.Contains(t, logs.String(), `"replaced":3`)
			} else {
				assert.NotContains(t, logs.String(), `"level":"WARN"`)
			}
		})
	}
}
