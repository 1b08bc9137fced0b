package feedback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Controller drives the prompt/response state machine for one submission at a
// time. It holds no per-request state and is safe for concurrent use.
type Controller struct {
	opts      Options
	msgs      Messages
	documents DocumentSource
	records   AnnotationStore
	throttle  ThrottleStore
	tokens    TokenVerifier
	now       func() time.Time
}

// NewController makes a Controller. opts and msgs are copied.
func NewController(opts Options, msgs Messages, documents DocumentSource, records AnnotationStore, throttle ThrottleStore, tokens TokenVerifier) *Controller {
	kinds := make([]string, len(opts.DocumentKinds))
	copy(kinds, opts.DocumentKinds)
	opts.DocumentKinds = kinds

	return &Controller{
		opts:      opts,
		msgs:      msgs.Merge(DefaultMessages()),
		documents: documents,
		records:   records,
		throttle:  throttle,
		tokens:    tokens,
		now:       time.Now,
	}
}

// Options returns the options the controller was built with.
func (c *Controller) Options() Options {
	return c.opts
}

// Messages returns the strings table in use.
func (c *Controller) Messages() Messages {
	return c.msgs
}

// Submit validates req, advances the state machine and returns the outcome.
// Failures are reported through the error Result, never as a Go error.
func (c *Controller) Submit(ctx context.Context, req Request) Result {
	res, err := c.submit(ctx, req)
	if err != nil {
		var fe *Error
		if errors.As(err, &fe) && fe.Err != nil {
			log.Printf("[WARN] feedback submission rejected: %v", err)
		}
		return ErrorResult(err)
	}
	return res
}

func (c *Controller) submit(ctx context.Context, req Request) (Result, error) {
	if req.Respondent == nil || req.Respondent.ID == 0 {
		return Result{}, NewError(KindUnauthenticated, c.msgs.ErrUnauthenticated, nil)
	}
	respondent := *req.Respondent

	if req.CSRFToken == "" || c.tokens == nil || !c.tokens.VerifyToken(respondent, req.CSRFToken) {
		return Result{}, NewError(KindInvalidToken, c.msgs.ErrInvalidToken, nil)
	}

	doc, err := c.Document(ctx, req.DocumentID)
	if err != nil {
		return Result{}, err
	}

	var rec *Record
	switch {
	case req.CommentID < 0:
		return Result{}, NewError(KindInvalidRecord, c.msgs.ErrInvalidRecord, nil)
	case req.CommentID > 0:
		found, err := c.records.GetRecord(ctx, req.CommentID)
		if errors.Is(err, ErrNotFound) {
			return Result{}, NewError(KindInvalidRecord, c.msgs.ErrInvalidRecord, nil)
		}
		if err != nil {
			return Result{}, NewError(KindPersistenceFailure, c.msgs.ErrUnavailable, fmt.Errorf("get record %d: %w", req.CommentID, err))
		}
		rec = &found
	}

	switch req.Phase {
	case PhasePrompt:
		return c.prompt(ctx, respondent, doc, req.Choice)
	case PhaseResponse:
		return c.respond(ctx, respondent, doc, rec, req.Text)
	default:
		return Result{}, NewError(KindInvalidRequest, c.msgs.ErrInvalidRequest, nil)
	}
}

// Document resolves id to a document eligible for feedback.
func (c *Controller) Document(ctx context.Context, id int64) (Document, error) {
	if id <= 0 {
		return Document{}, NewError(KindInvalidDocument, c.msgs.ErrInvalidDocument, nil)
	}
	doc, err := c.documents.GetDocument(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Document{}, NewError(KindInvalidDocument, c.msgs.ErrInvalidDocument, nil)
	}
	if err != nil {
		return Document{}, NewError(KindPersistenceFailure, c.msgs.ErrUnavailable, fmt.Errorf("get document %d: %w", id, err))
	}
	if !c.opts.AllowsKind(doc.Kind) {
		return Document{}, NewError(KindInvalidDocument, c.msgs.ErrInvalidDocument, nil)
	}
	return doc, nil
}

// Throttled reports whether a live throttle marker exists. A failing throttle
// backend reads as "not throttled".
func (c *Controller) Throttled(ctx context.Context, respondentID, documentID int64) bool {
	throttled, err := c.throttle.IsThrottled(ctx, respondentID, documentID)
	if err != nil {
		log.Printf("[WARN] throttle check failed for respondent %d, document %d: %v", respondentID, documentID, err)
		return false
	}
	return throttled
}

// prompt handles Unanswered -> Awaiting Elaboration.
func (c *Controller) prompt(ctx context.Context, respondent Respondent, doc Document, choice Choice) (Result, error) {
	var phase RecordPhase
	switch choice {
	case ChoiceAccept:
		phase = RecordAccepted
	case ChoiceDecline:
		phase = RecordDeclined
	default:
		return Result{}, NewError(KindInvalidRequest, c.msgs.ErrInvalidRequest, nil)
	}

	if c.Throttled(ctx, respondent.ID, doc.ID) {
		return Result{}, NewError(KindThrottled, c.msgs.ErrThrottled, nil)
	}

	id, err := c.records.CreateRecord(ctx, Record{
		DocumentID:   doc.ID,
		RespondentID: respondent.ID,
		Phase:        phase,
	})
	if err != nil {
		return Result{}, NewError(KindPersistenceFailure, c.msgs.ErrNotCreated, fmt.Errorf("create record: %w", err))
	}

	log.Printf("[DEBUG] feedback record %d created, respondent %d, document %d, phase %s", id, respondent.ID, doc.ID, phase)
	return Result{
		Status:   StatusSuccess,
		Message:  fmt.Sprintf("comment-id-%d", id),
		RecordID: id,
	}, nil
}

// respond handles Awaiting Elaboration -> Completed.
func (c *Controller) respond(ctx context.Context, respondent Respondent, doc Document, rec *Record, text *string) (Result, error) {
	if rec == nil || text == nil {
		return Result{}, NewError(KindInvalidRequest, c.msgs.ErrInvalidRequest, nil)
	}
	if rec.RespondentID != respondent.ID {
		return Result{}, NewError(KindForbidden, c.msgs.ErrForbidden, nil)
	}
	if rec.DocumentID != doc.ID {
		return Result{}, NewError(KindInvalidRecord, c.msgs.ErrMissingRecord, nil)
	}
	if rec.Answered() {
		return Result{}, NewError(KindAlreadyAnswered, c.msgs.ErrAlreadyAnswered, nil)
	}

	updated := *rec
	updated.Content = *text
	respondedAt := c.now().UTC()
	updated.RespondedAt = &respondedAt

	ok, err := c.records.UpdateRecord(ctx, updated)
	if err != nil {
		return Result{}, NewError(KindPersistenceFailure, c.msgs.ErrNotUpdated, fmt.Errorf("update record %d: %w", rec.ID, err))
	}
	if !ok {
		return Result{}, NewError(KindPersistenceFailure, c.msgs.ErrNotUpdated, nil)
	}

	c.markThrottled(ctx, respondent.ID, doc.ID)

	log.Printf("[DEBUG] feedback record %d completed, respondent %d, document %d", rec.ID, respondent.ID, doc.ID)
	return Result{Status: StatusFinalResponse, Message: updated.Content}, nil
}

// markThrottled writes the cooldown marker once. The record is already updated
// at this point, so a failed write only means the respondent may be prompted again.
func (c *Controller) markThrottled(ctx context.Context, respondentID, documentID int64) {
	if err := c.throttle.SetThrottle(ctx, respondentID, documentID, c.opts.ThrottleLimit); err != nil {
		log.Printf("[WARN] can't set throttle marker for respondent %d, document %d: %v", respondentID, documentID, err)
	}
}
