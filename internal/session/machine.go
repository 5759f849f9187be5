package session

import (
	"sort"
	"time"

	"github.com/Lllllllleong/pdfformfiller/internal/models"
)

// NextQuestionField returns the first unfilled field in extraction order.
// The boolean is false once every field has a value.
func NextQuestionField(fields []models.Field) (models.Field, bool) {
	ordered := make([]models.Field, len(fields))
	copy(ordered, fields)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	for _, f := range ordered {
		if !f.IsFilled {
			return f, true
		}
	}
	return models.Field{}, false
}

// RecordAnswer stores value on the named field and updates the session
// counters. It returns the index of the updated field in fields. The filled
// counter only moves when a field goes from unfilled to filled, so
// re-answering a field overwrites its value without double counting.
// Nothing is mutated when the name is unknown.
func RecordAnswer(s *models.Session, fields []models.Field, name, value string) (int, error) {
	idx := -1
	for i := range fields {
		if fields[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return -1, &models.NotFoundError{Resource: "field", ID: name}
	}

	now := time.Now().UTC()
	f := &fields[idx]
	if !f.IsFilled {
		f.IsFilled = true
		if s.FilledFields < s.TotalFields {
			s.FilledFields++
		}
	}
	f.Value = value
	f.UpdatedAt = now

	s.UpdatedAt = now
	Recompute(s)
	return idx, nil
}

// Recompute derives the status from the counters. A completed session is
// never moved back to active.
func Recompute(s *models.Session) {
	if s.Status == models.StatusCompleted {
		return
	}
	if s.TotalFields > 0 && s.FilledFields == s.TotalFields {
		s.Status = models.StatusCompleted
	}
}

// Progress is the filled percentage, 0 for a session with no fields.
func Progress(s models.Session) float64 {
	if s.TotalFields == 0 {
		return 0
	}
	return float64(s.FilledFields) / float64(s.TotalFields) * 100
}

// CountFilled recounts the filled fields, used to repair a session whose
// counter disagrees with its fields.
func CountFilled(fields []models.Field) int {
	n := 0
	for _, f := range fields {
		if f.IsFilled {
			n++
		}
	}
	return n
}
