// Package feedback implements the two-phase reader feedback workflow: an
// accept/decline signal followed by an optional free-text elaboration, with a
// per (respondent, document) cooldown enforced through a throttle store.
package feedback

import (
	"context"
	"time"
)

// Phase identifies which half of the submission is being processed.
type Phase string

const (
	PhasePrompt   Phase = "prompt"
	PhaseResponse Phase = "response"
)

// Choice is the binary signal sent with the prompt phase.
type Choice string

const (
	ChoiceAccept  Choice = "accept"
	ChoiceDecline Choice = "decline"
)

// RecordPhase is the persisted form of a Choice.
type RecordPhase string

const (
	RecordAccepted RecordPhase = "accepted"
	RecordDeclined RecordPhase = "declined"
)

// Status is the top-level outcome carried by every Result.
type Status string

const (
	StatusSuccess       Status = "success"
	StatusFinalResponse Status = "final_response"
	StatusError         Status = "error"
)

// Respondent is the authenticated identity submitting feedback.
// SessionID binds the CSRF token to the respondent's current session.
type Respondent struct {
	ID          int64
	DisplayName string
	Email       string
	URL         string
	SessionID   string
}

// Document is a content unit that may receive feedback.
type Document struct {
	ID       int64
	Kind     string
	Title    string
	AuthorID int64
}

// Record is one respondent's feedback on one document.
type Record struct {
	ID           int64
	DocumentID   int64
	RespondentID int64
	Phase        RecordPhase
	Content      string
	CreatedAt    time.Time
	RespondedAt  *time.Time
}

// Answered reports whether the elaboration phase already completed.
func (r Record) Answered() bool {
	return r.RespondedAt != nil
}

// Request is a decoded submission. Text is nil when the field was absent.
type Request struct {
	Respondent *Respondent
	CSRFToken  string
	DocumentID int64
	CommentID  int64
	Phase      Phase
	Choice     Choice
	Text       *string
}

// Result is the single response shape of Submit.
type Result struct {
	Status   Status `json:"status"`
	Message  string `json:"message"`
	RecordID int64  `json:"recordId,omitempty"`
	Kind     Kind   `json:"-"`
}

// Options are fixed at startup and never mutated at request time.
type Options struct {
	SendNotification bool
	ThrottleLimit    time.Duration
	ThrottlePrefix   string
	DocumentKinds    []string
}

// DefaultOptions has notifications on, a one hour cooldown and pages only.
func DefaultOptions() Options {
	return Options{
		SendNotification: true,
		ThrottleLimit:    3600 * time.Second,
		ThrottlePrefix:   "document_feedback_",
		DocumentKinds:    []string{"page"},
	}
}

// AllowsKind reports whether documents of the given kind take part in feedback.
func (o Options) AllowsKind(kind string) bool {
	for _, k := range o.DocumentKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ThrottleStore decides whether a respondent may be prompted again for a document.
type ThrottleStore interface {
	IsThrottled(ctx context.Context, respondentID, documentID int64) (bool, error)
	SetThrottle(ctx context.Context, respondentID, documentID int64, ttl time.Duration) error
}

// AnnotationStore persists feedback records. UpdateRecord returns false when
// the store did not apply the write.
type AnnotationStore interface {
	CreateRecord(ctx context.Context, rec Record) (int64, error)
	GetRecord(ctx context.Context, id int64) (Record, error)
	UpdateRecord(ctx context.Context, rec Record) (bool, error)
}

// DocumentSource resolves documents by id.
type DocumentSource interface {
	GetDocument(ctx context.Context, id int64) (Document, error)
}

// TokenVerifier checks a CSRF token against the respondent's session.
type TokenVerifier interface {
	VerifyToken(respondent Respondent, token string) bool
}

// TokenVerifierFunc adapts a plain function to TokenVerifier.
type TokenVerifierFunc func(respondent Respondent, token string) bool

// VerifyToken calls f.
func (f TokenVerifierFunc) VerifyToken(respondent Respondent, token string) bool {
	return f(respondent, token)
}
