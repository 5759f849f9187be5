package models

import "time"

// SessionStatus is the lifecycle state of a form-filling session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusExpired   SessionStatus = "expired"
)

// FieldKind is the semantic category of a form input. The set is closed;
// KindUnknown is the explicit member for widgets that carry no usable type.
type FieldKind string

const (
	KindText        FieldKind = "text"
	KindRadioButton FieldKind = "radiobutton"
	KindComboBox    FieldKind = "combobox"
	KindListBox     FieldKind = "listbox"
	KindSignature   FieldKind = "signature"
	KindUnknown     FieldKind = "unknown"
)

// Session represents one user's pass through filling a single uploaded PDF.
// It is the parent record of its Fields and is stored in Firestore or SQLite.
type Session struct {
	ID           string        `firestore:"sessionId" json:"session_id"`
	Filename     string        `firestore:"filename" json:"filename"`
	FilePath     string        `firestore:"filePath" json:"-"`
	OutputPath   string        `firestore:"outputPath,omitempty" json:"-"`
	TotalFields  int           `firestore:"totalFields" json:"total_fields"`
	FilledFields int           `firestore:"filledFields" json:"filled_fields"`
	Status       SessionStatus `firestore:"status" json:"status"`
	CreatedAt    time.Time     `firestore:"createdAt" json:"created_at"`
	UpdatedAt    time.Time     `firestore:"updatedAt" json:"updated_at"`
}

// Field is a single fillable form field belonging to a Session.
// Name is unique within the session; Position preserves extraction order.
type Field struct {
	SessionID string    `firestore:"sessionId" json:"-"`
	Name      string    `firestore:"fieldName" json:"field_name"`
	Kind      FieldKind `firestore:"fieldType" json:"field_type"`
	Choices   []string  `firestore:"choices,omitempty" json:"choices,omitempty"`
	Position  int       `firestore:"position" json:"-"`
	Value     string    `firestore:"value,omitempty" json:"value,omitempty"`
	IsFilled  bool      `firestore:"isFilled" json:"is_filled"`
	UpdatedAt time.Time `firestore:"updatedAt" json:"-"`
}
