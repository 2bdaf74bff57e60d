package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"checklist/api/internal/checklist"
	"checklist/api/internal/logging"
	"checklist/api/internal/util"
	"github.com/go-chi/chi/v5"
)

// UserHeader carries the acting user label when the body omits it.
const UserHeader = "X-Checklist-User"

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *slog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *slog.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logging.OrDiscard(logger)}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, checklist.CodeNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Get("/api/health", s.handleHealth)
	r.Head("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Head("/api/ready", s.handleReady)

	r.Route("/api/templates", func(r chi.Router) {
		r.Get("/", s.handleListTemplates)
		r.Get("/{name}", s.handleGetTemplate)
		r.Put("/{name}", s.handleUpsertTemplate)
		r.Delete("/{name}", s.handleDeleteTemplate)
	})

	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Post("/", s.handleCreateSession)
		r.Get("/{id}", s.handleGetSession)
		r.Patch("/{id}/items/{index}", s.handleUpdateItem)
		r.Post("/{id}/complete", s.handleCompleteSession)
	})

	return s.withMiddleware(r)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	// Check database connectivity
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListTemplates(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": items})
}

func (s *HTTPServer) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.service.GetTemplate(r.Context(), pathParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (s *HTTPServer) handleUpsertTemplate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Items     []string `json:"items"`
		Mandatory []bool   `json:"mandatory"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, checklist.CodeValidation, err.Error(), nil)
		return
	}
	tpl, err := s.service.UpsertTemplate(r.Context(), pathParam(r, "name"), body.Items, body.Mandatory)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (s *HTTPServer) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteTemplate(r.Context(), pathParam(r, "name")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var (
		items []checklist.SessionSummary
		err   error
	)
	switch status := strings.TrimSpace(r.URL.Query().Get("status")); status {
	case "", "active":
		items, err = s.service.ListActiveSessions(r.Context())
	case "completed":
		items, err = s.service.ListCompletedSessions(r.Context())
	default:
		writeError(w, http.StatusBadRequest, checklist.CodeValidation, fmt.Sprintf("unknown status %q", status), nil)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": items})
}

func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionName  string `json:"sessionName"`
		TemplateName string `json:"templateName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, checklist.CodeValidation, err.Error(), nil)
		return
	}
	id, err := s.service.CreateSession(r.Context(), body.SessionName, body.TemplateName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.GetSession(r.Context(), pathParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(pathParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, checklist.CodeValidation, "item index must be an integer", nil)
		return
	}
	var body struct {
		Checked *bool   `json:"checked"`
		Comment *string `json:"comment"`
		User    string  `json:"user"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, checklist.CodeValidation, err.Error(), nil)
		return
	}
	actor := strings.TrimSpace(body.User)
	if actor == "" {
		actor = strings.TrimSpace(r.Header.Get(UserHeader))
	}

	progress, err := s.service.ApplyItemUpdate(r.Context(), pathParam(r, "id"), index, checklist.ItemUpdate{
		Checked: body.Checked,
		Comment: body.Comment,
	}, actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *HTTPServer) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.CompleteSession(r.Context(), pathParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// fail writes err as a domain error response. Server errors are logged with
// their full chain since the response hides it.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"request_id", requestIDFrom(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"code", code,
			"error", err.Error(),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
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

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, "+UserHeader)
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
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
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// pathParam returns the decoded route parameter. chi hands back the escaped
// form when the request path carried escaped separators.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func mapError(err error) (status int, code, message string, details any) {
	domainErr := toDomainError(err)
	return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
}
