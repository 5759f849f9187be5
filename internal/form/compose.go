package form

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Lllllllleong/pdfformfiller/internal/models"
	"github.com/Lllllllleong/pdfformfiller/internal/oracle"
)

const questionPromptTemplate = `Generate a clear, friendly question to ask the user for the following form field:

Field Name: %s
Field Type: %s

Make the question easy to understand and conversational, and specific about what information is needed. Include a short example if it helps. Keep it concise.

Just return the question text, nothing else.`

var questionParams = oracle.Params{Temperature: 0.7, MaxTokens: 4096}

// Question is the prompt shown to the user for one field.
type Question struct {
	Text string
	// Fallback is true when Text came from FallbackQuestion rather than the oracle.
	Fallback bool
}

// Composer produces user-facing questions for form fields.
type Composer struct {
	oracle  oracle.Oracle
	timeout time.Duration
}

// NewComposer returns a Composer. A zero timeout leaves the caller's context deadline in charge.
func NewComposer(o oracle.Oracle, timeout time.Duration) *Composer {
	if o == nil {
		o = oracle.Disabled{}
	}
	return &Composer{oracle: o, timeout: timeout}
}

// Compose asks the oracle for a question about the named field. It never
// fails: any oracle error or blank reply yields the fallback question.
func (c *Composer) Compose(ctx context.Context, fieldName string, kind models.FieldKind) Question {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	prompt := fmt.Sprintf(questionPromptTemplate, fieldName, kind)
	text, err := c.oracle.Generate(ctx, prompt, questionParams)
	if err == nil {
		text = strings.TrimSpace(text)
		if text != "" {
			return Question{Text: text}
		}
		err = oracle.ErrEmptyResponse
	}

	oerr := &models.OracleError{Op: "compose question", Field: fieldName, Err: err}
	slog.Warn("Falling back to default question.", "field", fieldName, "error", oerr)
	return Question{Text: FallbackQuestion(fieldName), Fallback: true}
}

// FallbackQuestion builds the deterministic question used when the oracle
// is unavailable: underscores, hyphens and dots become spaces and each word
// is title-cased.
func FallbackQuestion(fieldName string) string {
	return fmt.Sprintf("Please provide a value for %s:", titleName(fieldName))
}

var nameSeparators = strings.NewReplacer("_", " ", "-", " ", ".", " ")

func titleName(name string) string {
	// Casers carry state, so one per call.
	return cases.Title(language.Und).String(nameSeparators.Replace(name))
}
