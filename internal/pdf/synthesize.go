package pdf

import (
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/Lllllllleong/pdfformfiller/internal/form"
	"github.com/Lllllllleong/pdfformfiller/internal/models"
)

const (
	textFontSize = 10
	textInsetX   = 2
	textInsetY   = 1
)

// Synthesizer produces flattened copies of filled forms.
type Synthesizer struct {
	opener Opener
}

func NewSynthesizer(opener Opener) *Synthesizer {
	return &Synthesizer{opener: opener}
}

// Synthesize copies src to dst with values drawn into the page content
// and every widget annotation and the form dictionary removed. values is
// keyed by logical field name. src is never modified; dst is written via a
// temp file in the same directory and renamed into place. Failures are
// reported as *models.SynthesisError.
func (s *Synthesizer) Synthesize(ctx context.Context, src, dst string, values map[string]string) error {
	if err := s.synthesize(ctx, src, dst, values); err != nil {
		return &models.SynthesisError{Err: err}
	}
	return nil
}

func (s *Synthesizer) synthesize(ctx context.Context, src, dst string, values map[string]string) error {
	doc, err := s.opener.Open(src)
	if err != nil {
		return err
	}
	widgets, err := doc.Widgets()
	if err != nil {
		return err
	}

	// Pass 1: field values.
	for _, w := range widgets {
		if v, ok := values[w.Name]; ok && w.Name != "" {
			if _, lost := winAnsi(v); lost > 0 && w.Behavior() != form.BehaviorCheckbox && w.Behavior() != form.BehaviorRadio {
				slog.Warn("Characters outside WinAnsi replaced with '?'.", "field", w.Name, "replaced", lost)
			}
			if err := doc.SetFieldValue(w, v); err != nil {
				return eris.Wrapf(err, "set value of %s", w.Name)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Pass 2: bake values into the page content.
	drawn := 0
	for _, w := range widgets {
		v, ok := values[w.Name]
		if !ok || w.Name == "" || v == "" {
			continue
		}
		did, err := flatten(doc, w, v)
		if err != nil {
			return eris.Wrapf(err, "flatten %s", w.Name)
		}
		if did {
			drawn++
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Pass 3: drop the interactive layer.
	for _, w := range widgets {
		if err := doc.DeleteAnnotation(w); err != nil {
			return eris.Wrapf(err, "delete widget %s", w.Name)
		}
	}
	if err := doc.RemoveForm(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".synth-*.pdf")
	if err != nil {
		return eris.Wrap(err, "create temp output")
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName)

	if err := doc.Save(tmpName); err != nil {
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return eris.Wrap(err, "move output into place")
	}

	slog.Info("Form flattened.", "widgets", len(widgets), "drawn", drawn, "output", dst)
	return nil
}

// flatten draws the value of one widget. It reports whether anything was
// drawn.
func flatten(doc Document, w Widget, value string) (bool, error) {
	switch w.Behavior() {
	case form.BehaviorText, form.BehaviorDropdown:
		return true, doc.DrawText(w.Page, w.Rect.Inset(textInsetX, textInsetY), value, textFontSize)
	case form.BehaviorCheckbox:
		if !form.Affirmative(value) {
			return false, nil
		}
		return true, doc.DrawCheck(w.Page, w.Rect)
	case form.BehaviorRadio:
		if !form.Affirmative(value) {
			return false, nil
		}
		cx, cy := w.Rect.Center()
		return true, doc.DrawFilledCircle(w.Page, cx, cy, math.Min(w.Rect.Width(), w.Rect.Height())/4)
	case form.BehaviorRaw:
		if w.Kind() == models.KindSignature {
			return true, doc.DrawText(w.Page, w.Rect.Inset(textInsetX, textInsetY), value, textFontSize)
		}
		return false, nil
	default:
		return false, nil
	}
}
