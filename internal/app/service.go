package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"docfeedback/internal/auth"
	"docfeedback/internal/email"
	"docfeedback/internal/feedback"
)

// FeedbackAction is the action CSRF nonces of the feedback form are bound to.
const FeedbackAction = "document-feedback"

type Session struct {
	Respondent feedback.Respondent
	JTI        string
	ExpiresAt  time.Time
}

// DataStore is the persistence the service needs.
type DataStore interface {
	feedback.AnnotationStore
	feedback.DocumentSource
	GetRespondent(context.Context, int64) (feedback.Respondent, error)
	Ping(context.Context) error
}

// ThrottleBackend holds throttle markers. Redis and SQL stores both satisfy it.
type ThrottleBackend interface {
	feedback.ThrottleStore
	Remaining(ctx context.Context, respondentID, documentID int64) (time.Duration, error)
	Ping(context.Context) error
}

type Notifier interface {
	IsConfigured() bool
	SendFeedbackNotification(to string, data email.FeedbackNotificationData) error
}

// Deps are the collaborators of a Service. Mailer may be nil.
type Deps struct {
	Secret   []byte
	Store    DataStore
	Throttle ThrottleBackend
	Mailer   Notifier
	Options  feedback.Options
	Messages feedback.Messages
	AppName  string
}

type Service struct {
	secret     []byte
	store      DataStore
	throttle   ThrottleBackend
	mailer     Notifier
	nonces     *auth.Nonces
	controller *feedback.Controller
	appName    string
	notifyWG   sync.WaitGroup
}

func New(deps Deps) (*Service, error) {
	if len(deps.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	nonces, err := auth.NewNonces(deps.Secret, FeedbackAction)
	if err != nil {
		return nil, err
	}
	return &Service{
		secret:     deps.Secret,
		store:      deps.Store,
		throttle:   deps.Throttle,
		mailer:     deps.Mailer,
		nonces:     nonces,
		controller: feedback.NewController(deps.Options, deps.Messages, deps.Store, deps.Store, deps.Throttle, nonces),
		appName:    deps.AppName,
	}, nil
}

func (s *Service) Messages() feedback.Messages {
	return s.controller.Messages()
}

// SessionFromToken resolves a bearer token to the respondent it was issued for.
// Token problems and unknown respondents return auth.ErrInvalidToken or
// auth.ErrExpiredToken; anything else is a store failure.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken(s.secret, token)
	if err != nil {
		return Session{}, err
	}
	id, err := claims.RespondentID()
	if err != nil {
		return Session{}, err
	}
	respondent, err := s.store.GetRespondent(ctx, id)
	if errors.Is(err, feedback.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, fmt.Errorf("load respondent %d: %w", id, err)
	}
	respondent.SessionID = claims.JTI
	return Session{
		Respondent: respondent,
		JTI:        claims.JTI,
		ExpiresAt:  time.Unix(claims.Exp, 0),
	}, nil
}

type SubmitInput struct {
	CSRFToken  string
	DocumentID int64
	CommentID  int64
	Phase      feedback.Phase
	Choice     feedback.Choice
	Text       *string
}

// Submit runs one submission for session, which is nil for anonymous callers.
// After a completed elaboration the document author is notified in the background.
func (s *Service) Submit(ctx context.Context, session *Session, in SubmitInput) feedback.Result {
	req := feedback.Request{
		CSRFToken:  in.CSRFToken,
		DocumentID: in.DocumentID,
		CommentID:  in.CommentID,
		Phase:      in.Phase,
		Choice:     in.Choice,
		Text:       in.Text,
	}
	if session != nil {
		respondent := session.Respondent
		req.Respondent = &respondent
	}

	res := s.controller.Submit(ctx, req)
	if res.Status == feedback.StatusFinalResponse && s.shouldNotify() {
		s.notifyWG.Add(1)
		go func() {
			defer s.notifyWG.Done()
			s.notify(context.WithoutCancel(ctx), req.Respondent, in.DocumentID, in.CommentID)
		}()
	}
	return res
}

func (s *Service) shouldNotify() bool {
	return s.controller.Options().SendNotification && s.mailer != nil && s.mailer.IsConfigured()
}

func (s *Service) notify(ctx context.Context, respondent *feedback.Respondent, documentID, recordID int64) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		log.Printf("[WARN] feedback notification skipped, document %d: %v", documentID, err)
		return
	}
	if doc.AuthorID == 0 || doc.AuthorID == respondent.ID {
		return
	}
	author, err := s.store.GetRespondent(ctx, doc.AuthorID)
	if err != nil {
		log.Printf("[WARN] feedback notification skipped, author %d: %v", doc.AuthorID, err)
		return
	}
	if author.Email == "" {
		return
	}
	rec, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		log.Printf("[WARN] feedback notification skipped, record %d: %v", recordID, err)
		return
	}

	err = s.mailer.SendFeedbackNotification(author.Email, email.FeedbackNotificationData{
		AppName:        s.appName,
		AuthorName:     author.DisplayName,
		DocumentTitle:  doc.Title,
		RespondentName: respondent.DisplayName,
		Accepted:       rec.Phase == feedback.RecordAccepted,
		Text:           rec.Content,
	})
	if err != nil {
		log.Printf("[WARN] can't send feedback notification for record %d: %v", recordID, err)
		return
	}
	log.Printf("[DEBUG] feedback notification for record %d sent to author %d", recordID, author.ID)
}

// Wait blocks until background notifications finish.
func (s *Service) Wait() {
	s.notifyWG.Wait()
}

// PromptState is what a client needs to render the feedback prompt.
type PromptState struct {
	DocumentID        int64             `json:"documentId"`
	Throttled         bool              `json:"throttled"`
	RetryAfterSeconds int64             `json:"retryAfterSeconds"`
	CSRFToken         string            `json:"csrfToken"`
	Strings           map[string]string `json:"strings"`
}

// PromptState reports whether the respondent may be prompted for documentID and
// hands out a fresh CSRF nonce.
func (s *Service) PromptState(ctx context.Context, session Session, documentID int64) (PromptState, error) {
	if _, err := s.controller.Document(ctx, documentID); err != nil {
		return PromptState{}, err
	}

	respondentID := session.Respondent.ID
	state := PromptState{
		DocumentID: documentID,
		Throttled:  s.controller.Throttled(ctx, respondentID, documentID),
		CSRFToken:  s.nonces.Issue(session.Respondent),
		Strings:    s.controller.Messages().PromptStrings(),
	}
	if state.Throttled {
		left, err := s.throttle.Remaining(ctx, respondentID, documentID)
		if err != nil {
			log.Printf("[WARN] can't read throttle ttl for respondent %d, document %d: %v", respondentID, documentID, err)
		}
		state.RetryAfterSeconds = int64(left / time.Second)
	}
	return state, nil
}

// Readiness pings every backend and returns the failures by name.
func (s *Service) Readiness(ctx context.Context) map[string]error {
	checks := map[string]error{
		"database": s.store.Ping(ctx),
		"throttle": s.throttle.Ping(ctx),
	}
	return checks
}
