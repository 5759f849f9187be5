// Package pdf reads AcroForm widgets from PDF documents and produces
// flattened copies with field values drawn into the page content.
package pdf

import (
	"fmt"

	"github.com/Lllllllleong/pdfformfiller/internal/form"
	"github.com/Lllllllleong/pdfformfiller/internal/models"
)

// Rect is a rectangle in default user space, lower-left origin.
type Rect struct {
	LLX, LLY, URX, URY float64
}

func (r Rect) Width() float64  { return r.URX - r.LLX }
func (r Rect) Height() float64 { return r.URY - r.LLY }

// Inset shrinks r by dx on the left and right and dy on the top and bottom.
func (r Rect) Inset(dx, dy float64) Rect {
	return Rect{LLX: r.LLX + dx, LLY: r.LLY + dy, URX: r.URX - dx, URY: r.URY - dy}
}

func (r Rect) Center() (float64, float64) {
	return (r.LLX + r.URX) / 2, (r.LLY + r.URY) / 2
}

// Widget is one widget annotation of a form field. Several widgets may
// share a Name (radio groups, fields repeated across pages).
type Widget struct {
	// Name is the logical field key after the duplicate policy is applied.
	Name string
	// FullName is the fully qualified field name from the document.
	FullName string
	Page     int
	Rect     Rect
	Code     form.WidgetCode
	Choices  []string
	// OnState is the appearance state used when a checkbox or radio
	// widget is on.
	OnState string

	id int
}

func (w Widget) Kind() models.FieldKind {
	return form.Classify(w.Code)
}

func (w Widget) Behavior() form.Behavior {
	return form.ResolveBehavior(w.Kind(), w.Choices)
}

// FieldInfo is an extracted logical field, in document order.
type FieldInfo struct {
	Name    string
	Code    form.WidgetCode
	Choices []string
	Page    int
}

// Document is an open PDF being filled and flattened.
type Document interface {
	Widgets() ([]Widget, error)
	SetFieldValue(w Widget, value string) error
	// DrawText draws text inside r on page, wrapping on word boundaries and
	// clipping to r.
	DrawText(page int, r Rect, text string, fontSize float64) error
	// DrawCheck draws a check mark centered in r.
	DrawCheck(page int, r Rect) error
	DrawFilledCircle(page int, cx, cy, radius float64) error
	DeleteAnnotation(w Widget) error
	// RemoveForm drops the interactive form dictionary.
	RemoveForm() error
	Save(path string) error
}

// Opener opens documents for synthesis.
type Opener interface {
	Open(path string) (Document, error)
}

// DuplicatePolicy decides how widgets that share a field name map to
// logical fields.
type DuplicatePolicy string

const (
	// PolicyCollapse maps every widget with the same name to one field.
	PolicyCollapse DuplicatePolicy = "collapse"
	// PolicyPerPage keeps one field per page: occurrences on pages after the
	// name's first page are keyed "<name>@p<page>".
	PolicyPerPage DuplicatePolicy = "per_page"
)

func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(s) {
	case "", PolicyCollapse:
		return PolicyCollapse, nil
	case PolicyPerPage:
		return PolicyPerPage, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// FieldKey is the logical key for a widget named name on page, given the
// first page on which name appears.
func (p DuplicatePolicy) FieldKey(name string, page, firstPage int) string {
	if p == PolicyPerPage && page != firstPage {
		return fmt.Sprintf("%s@p%d", name, page)
	}
	return name
}

// applyPolicy fills in Widget.Name for widgets listed in page order.
func applyPolicy(p DuplicatePolicy, widgets []Widget) {
	first := make(map[string]int)
	for i := range widgets {
		w := &widgets[i]
		if w.FullName == "" {
			continue
		}
		fp, ok := first[w.FullName]
		if !ok {
			fp = w.Page
			first[w.FullName] = fp
		}
		w.Name = p.FieldKey(w.FullName, w.Page, fp)
	}
}

// collectFields reduces widgets to logical fields, first occurrence wins.
func collectFields(widgets []Widget) []FieldInfo {
	seen := make(map[string]bool)
	var out []FieldInfo
	for _, w := range widgets {
		if w.Name == "" || seen[w.Name] {
			continue
		}
		seen[w.Name] = true
		out = append(out, FieldInfo{Name: w.Name, Code: w.Code, Choices: w.Choices, Page: w.Page})
	}
	return out
}
