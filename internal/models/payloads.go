package models

// These structs define the JSON payloads exchanged with the frontend and
// with the Cloud Function entry points.

// SessionResponse is returned after a PDF has been uploaded and its fields extracted.
type SessionResponse struct {
	SessionID   string        `json:"session_id"`
	Filename    string        `json:"filename"`
	TotalFields int           `json:"total_fields"`
	Status      SessionStatus `json:"status"`
}

// QuestionResponse carries the next question, or IsComplete when none remain.
type QuestionResponse struct {
	Question   string     `json:"question"`
	FieldName  *string    `json:"field_name"`
	FieldType  *FieldKind `json:"field_type"`
	Choices    []string   `json:"choices,omitempty"`
	IsComplete bool       `json:"is_complete"`
}

// AnswerRequest is the body of an answer submission.
type AnswerRequest struct {
	FieldName string `json:"field_name"`
	Answer    string `json:"answer"`
}

// AnswerResponse echoes the value that was stored for the field.
type AnswerResponse struct {
	Message        string `json:"message"`
	ProcessedValue string `json:"processed_value"`
}

// CompletionResponse is returned once the filled PDF has been synthesized.
type CompletionResponse struct {
	SessionID    string `json:"session_id"`
	DownloadURL  string `json:"download_url"`
	FilledFields int    `json:"filled_fields"`
	TotalFields  int    `json:"total_fields"`
}

// StatusResponse reports session progress.
type StatusResponse struct {
	SessionID    string        `json:"session_id"`
	Status       SessionStatus `json:"status"`
	FilledFields int           `json:"filled_fields"`
	TotalFields  int           `json:"total_fields"`
	Progress     float64       `json:"progress"`
}

// CompletionEvent is the argument passed to the completion workflow.
type CompletionEvent struct {
	SessionID  string `json:"sessionId"`
	Filename   string `json:"filename"`
	OutputPath string `json:"outputPath"`
}

// GCSEvent is the payload of a Cloud Storage object-finalized CloudEvent.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        string `json:"size"`
}
