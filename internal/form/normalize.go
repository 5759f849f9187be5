package form

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/pdfformfiller/internal/models"
	"github.com/Lllllllleong/pdfformfiller/internal/oracle"
)

const cleanupPromptTemplate = `Clean up and format this user input for a form field named "%s":

User input: "%s"
Field type: %s

Return a clean, properly formatted version suitable for a PDF form. Keep it concise and remove any unnecessary words.
Just return the cleaned text, nothing else.`

var cleanupParams = oracle.Params{Temperature: 0.3, MaxTokens: 100}

// Answer is a normalized value ready to be stored on a field.
type Answer struct {
	Value string
	// Fallback is true when the oracle was consulted but its result was not used.
	Fallback bool
	// OracleErr records why the oracle result was discarded. It is for
	// logging only and never fails the answer.
	OracleErr *models.OracleError
}

// Normalizer turns raw user answers into stored field values.
type Normalizer struct {
	oracle  oracle.Oracle
	timeout time.Duration
}

func NewNormalizer(o oracle.Oracle, timeout time.Duration) *Normalizer {
	if o == nil {
		o = oracle.Disabled{}
	}
	return &Normalizer{oracle: o, timeout: timeout}
}

// Normalize converts raw into the value stored for a field of the given
// kind. Toggle fields collapse to "yes"/"no" without consulting the oracle.
// Text-like fields are cleaned by the oracle and fall back to the trimmed
// input. Everything else is stored trimmed.
func (n *Normalizer) Normalize(ctx context.Context, raw string, kind models.FieldKind, fieldName string, choices []string) Answer {
	switch b := ResolveBehavior(kind, choices); b {
	case BehaviorCheckbox, BehaviorRadio:
		return Answer{Value: YesNo(raw)}
	case BehaviorText, BehaviorDropdown:
		return n.clean(ctx, raw, kind, fieldName)
	case BehaviorRaw:
		return Answer{Value: strings.TrimSpace(raw)}
	default:
		return Answer{Value: strings.TrimSpace(raw)}
	}
}

func (n *Normalizer) clean(ctx context.Context, raw string, kind models.FieldKind, fieldName string) Answer {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	prompt := fmt.Sprintf(cleanupPromptTemplate, fieldName, raw, kind)
	text, err := n.oracle.Generate(ctx, prompt, cleanupParams)
	if err == nil {
		text = strings.TrimSpace(text)
		if text != "" {
			return Answer{Value: text}
		}
		err = oracle.ErrEmptyResponse
	}

	oerr := &models.OracleError{Op: "normalize answer", Field: fieldName, Err: err}
	slog.Warn("Storing raw answer.", "field", fieldName, "error", oerr)
	return Answer{Value: strings.TrimSpace(raw), Fallback: true, OracleErr: oerr}
}
