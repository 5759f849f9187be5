// Package form holds the per-field logic of a filling session: mapping
// widget codes to field kinds, composing the question for a field and
// normalizing the user's answer before it is committed.
package form

import "github.com/Lllllllleong/pdfformfiller/internal/models"

// WidgetCode is the numeric widget type reported by the extraction engine.
type WidgetCode int

const (
	CodeText        WidgetCode = 1
	CodeRadioButton WidgetCode = 2
	CodeComboBox    WidgetCode = 3 // also used for checkboxes
	CodeListBox     WidgetCode = 4
	CodeSignature   WidgetCode = 5
	CodePushButton  WidgetCode = 6
	CodeTextAlt     WidgetCode = 7
)

// Classify maps a widget code to a field kind. Codes outside the table
// default to text.
func Classify(code WidgetCode) models.FieldKind {
	switch code {
	case CodeText, CodeTextAlt:
		return models.KindText
	case CodeRadioButton:
		return models.KindRadioButton
	case CodeComboBox:
		return models.KindComboBox
	case CodeListBox:
		return models.KindListBox
	case CodeSignature:
		return models.KindSignature
	case CodePushButton:
		return models.KindUnknown
	default:
		return models.KindText
	}
}

// Behavior is how a field is answered and rendered once the combobox
// overload has been resolved.
type Behavior int

const (
	BehaviorText Behavior = iota
	BehaviorDropdown
	BehaviorCheckbox
	BehaviorRadio
	BehaviorRaw
)

func (b Behavior) String() string {
	switch b {
	case BehaviorText:
		return "text"
	case BehaviorDropdown:
		return "dropdown"
	case BehaviorCheckbox:
		return "checkbox"
	case BehaviorRadio:
		return "radio"
	case BehaviorRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// ResolveBehavior decides how a field of the given kind behaves. A combobox
// with a choice list is a dropdown; one without is a checkbox. A dropdown
// that genuinely has no configured choices is therefore treated as a
// checkbox.
func ResolveBehavior(kind models.FieldKind, choices []string) Behavior {
	switch kind {
	case models.KindText, models.KindListBox:
		return BehaviorText
	case models.KindComboBox:
		if len(choices) > 0 {
			return BehaviorDropdown
		}
		return BehaviorCheckbox
	case models.KindRadioButton:
		return BehaviorRadio
	case models.KindSignature, models.KindUnknown:
		return BehaviorRaw
	default:
		return BehaviorRaw
	}
}

// IsToggle reports whether answers for b collapse to "yes"/"no".
func (b Behavior) IsToggle() bool {
	return b == BehaviorCheckbox || b == BehaviorRadio
}
