package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/google/uuid"

	"docfeedback/internal/auth"
	"docfeedback/internal/feedback"
)

const maxBodySize = 64 * 1024

type ServerOptions struct {
	CORSOrigins []string
	SubmitRate  float64
	SubmitBurst int
	Version     string
	Debug       bool
}

type HTTPServer struct {
	service *Service
	opts    ServerOptions
	limiter *clientLimiter
}

func NewHTTPServer(service *Service, opts ServerOptions) *HTTPServer {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.SubmitRate <= 0 {
		opts.SubmitRate = 1
	}
	if opts.SubmitBurst <= 0 {
		opts.SubmitBurst = 10
	}
	return &HTTPServer{
		service: service,
		opts:    opts,
		limiter: newClientLimiter(opts.SubmitRate, opts.SubmitBurst),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(rest.RealIP)
	r.Use(s.withRequestLog)
	r.Use(rest.Recoverer(lgr.Default()))
	r.Use(rest.AppInfo("docfeedback", "docfeedback", s.opts.Version))
	r.Use(rest.Ping)
	if s.opts.Debug {
		r.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         300,
	}))

	r.Group(func(r chi.Router) {
		r.Use(rest.Throttle(100))
		r.Use(rest.SizeLimit(maxBodySize))
		r.Get("/api/health", s.handleHealth)
		r.Get("/api/ready", s.handleReady)
		r.Get("/api/documents/{id}/feedback", s.handlePromptState)
	})

	// submit answers in the feedback.Result shape only, so its limits are its own
	r.With(s.limiter.Middleware(s.rejectRateLimited)).Post("/api/feedback", s.handleSubmit)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	rest.RenderJSON(w, rest.JSON{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Readiness(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handlePromptState(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	documentID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, string(feedback.KindInvalidDocument), s.service.Messages().ErrInvalidDocument, nil)
		return
	}

	state, err := s.service.PromptState(r.Context(), session, documentID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	in, err := decodeSubmission(r)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, feedback.Result{
			Status:  feedback.StatusError,
			Message: s.service.Messages().ErrInvalidRequest,
		})
		return
	}

	var session *Session
	if token := bearerToken(r); token != "" {
		resolved, err := s.service.SessionFromToken(r.Context(), token)
		switch {
		case err == nil:
			session = &resolved
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
			// treated as anonymous
		default:
			log.Printf("[WARN] session lookup failed: %v", err)
			res := feedback.ErrorResult(feedback.NewError(feedback.KindPersistenceFailure, s.service.Messages().ErrUnavailable, err))
			writeJSON(w, http.StatusInternalServerError, res)
			return
		}
	}

	res := s.service.Submit(r.Context(), session, in)
	writeJSON(w, statusFor(res.Kind), res)
}

func (s *HTTPServer) rejectRateLimited(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, feedback.Result{
		Status:  feedback.StatusError,
		Message: s.service.Messages().ErrRateLimited,
	})
}

type submitBody struct {
	CSRFToken  string  `json:"csrfToken"`
	DocumentID int64   `json:"documentId"`
	CommentID  int64   `json:"commentId"`
	Phase      string  `json:"phase"`
	Choice     string  `json:"choice"`
	Text       *string `json:"text"`
}

// decodeSubmission reads a JSON body, or a form post with the field names of
// the legacy form: nonce, post_id, comment_id, form and response.
func decodeSubmission(r *http.Request) (SubmitInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		parse := r.ParseForm
		if mediaType == "multipart/form-data" {
			parse = func() error { return r.ParseMultipartForm(maxBodySize) }
		}
		if err := parse(); err != nil {
			return SubmitInput{}, fmt.Errorf("invalid form body: %w", err)
		}
		in := SubmitInput{
			CSRFToken:  r.PostForm.Get("nonce"),
			DocumentID: formInt(r.PostForm.Get("post_id")),
			CommentID:  formInt(r.PostForm.Get("comment_id")),
			Phase:      feedback.Phase(r.PostForm.Get("form")),
		}
		if values, ok := r.PostForm["response"]; ok && len(values) > 0 {
			if in.Phase == feedback.PhasePrompt {
				in.Choice = feedback.Choice(values[0])
			} else {
				text := values[0]
				in.Text = &text
			}
		}
		return in, nil
	}

	var body submitBody
	if err := decodeBody(r, &body); err != nil {
		return SubmitInput{}, err
	}
	return SubmitInput{
		CSRFToken:  body.CSRFToken,
		DocumentID: body.DocumentID,
		CommentID:  body.CommentID,
		Phase:      feedback.Phase(body.Phase),
		Choice:     feedback.Choice(body.Choice),
		Text:       body.Text,
	}, nil
}

// formInt parses a form id, garbage reads as 0.
func formInt(v string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

var errUnauthorized = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		status, code, message, details := mapError(errUnauthorized)
		writeError(w, status, code, message, details)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if !errors.Is(err, auth.ErrExpiredToken) && !errors.Is(err, auth.ErrInvalidToken) {
			log.Printf("[WARN] session lookup failed: %v", err)
		}
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)
		writer.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(writer, r)

		log.Printf(`[INFO] {"request_id":%q,"method":%q,"path":%q,"status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var fe *feedback.Error
	if errors.As(err, &fe) {
		return statusFor(fe.Kind), string(fe.Kind), fe.Message, nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
