package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"checklist/api/internal/checklist"
	"checklist/api/internal/config"
	"checklist/api/internal/logging"
	"checklist/api/internal/store"
)

type dataStore interface {
	ListTemplates(context.Context) ([]store.Template, error)
	GetTemplate(context.Context, string) (store.Template, error)
	UpsertTemplate(context.Context, store.Template) (store.Template, error)
	DeleteTemplate(context.Context, string) error
	InsertSession(context.Context, store.ChecklistSession) (string, error)
	GetSession(context.Context, string) (store.ChecklistSession, error)
	UpdateSession(context.Context, store.ChecklistSession, int64) (store.ChecklistSession, error)
	ListSessions(context.Context, bool) ([]store.ChecklistSession, error)
	Ping(ctx context.Context) error
}

type Service struct {
	cfg    config.Config
	store  dataStore
	engine *checklist.Engine
	logger *slog.Logger
}

func New(cfg config.Config, dataStore *store.SQLStore, locker checklist.Locker, logger *slog.Logger) *Service {
	return newService(cfg, dataStore, locker, logger)
}

func newService(cfg config.Config, dataStore dataStore, locker checklist.Locker, logger *slog.Logger) *Service {
	logger = logging.OrDiscard(logger)
	return &Service{
		cfg:   cfg,
		store: dataStore,
		engine: checklist.NewEngine(dataStore, locker, checklist.EngineConfig{
			Retries: cfg.UpdateRetries,
			Timeout: cfg.StorageTimeout,
			Logger:  logger,
		}),
		logger: logger,
	}
}

// withTimeout bounds a storage call so a hung backend surfaces as
// ErrStorageUnavailable instead of blocking the caller.
func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StorageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.StorageTimeout)
}

func (s *Service) ListTemplates(ctx context.Context) ([]checklist.TemplateSummary, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	templates, err := s.store.ListTemplates(ctx)
	if err != nil {
		return nil, checklist.StorageError("list templates", err)
	}
	items := make([]checklist.TemplateSummary, 0, len(templates))
	for _, tpl := range templates {
		items = append(items, checklist.SummarizeTemplate(tpl))
	}
	return items, nil
}

func (s *Service) GetTemplate(ctx context.Context, name string) (store.Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Template{}, fmt.Errorf("template name is required: %w", checklist.ErrInvalidInput)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tpl, err := s.store.GetTemplate(ctx, name)
	if err != nil {
		return store.Template{}, checklist.StorageError("get template", err)
	}
	return tpl, nil
}

// UpsertTemplate creates or replaces the named template. Items are trimmed
// and blank items dropped together with their flags. A nil mandatory slice
// marks every item mandatory.
func (s *Service) UpsertTemplate(ctx context.Context, name string, items []string, mandatory []bool) (store.Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Template{}, fmt.Errorf("template name is required: %w", checklist.ErrInvalidInput)
	}
	cleanItems, cleanMandatory, err := normalizeTemplateItems(items, mandatory)
	if err != nil {
		return store.Template{}, fmt.Errorf("template %q: %w", name, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tpl, err := s.store.UpsertTemplate(ctx, store.Template{Name: name, Items: cleanItems, Mandatory: cleanMandatory})
	if err != nil {
		return store.Template{}, checklist.StorageError("upsert template", err)
	}
	s.logger.Info("template saved", "template", name, "items", len(cleanItems))
	return tpl, nil
}

func normalizeTemplateItems(items []string, mandatory []bool) ([]string, []bool, error) {
	if mandatory == nil {
		mandatory = make([]bool, len(items))
		for i := range mandatory {
			mandatory[i] = true
		}
	}
	if len(items) != len(mandatory) {
		return nil, nil, fmt.Errorf("%d items but %d mandatory flags: %w", len(items), len(mandatory), checklist.ErrInvalidTemplate)
	}
	outItems := make([]string, 0, len(items))
	outMandatory := make([]bool, 0, len(items))
	for i, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		outItems = append(outItems, item)
		outMandatory = append(outMandatory, mandatory[i])
	}
	if len(outItems) == 0 {
		return nil, nil, fmt.Errorf("no items: %w", checklist.ErrInvalidTemplate)
	}
	return outItems, outMandatory, nil
}

func (s *Service) DeleteTemplate(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("template name is required: %w", checklist.ErrInvalidInput)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.store.DeleteTemplate(ctx, name); err != nil {
		return checklist.StorageError("delete template", err)
	}
	s.logger.Info("template deleted", "template", name)
	return nil
}

// CreateSession snapshots the named template into a new session and persists
// it with a single insert. Later template edits do not affect the session.
func (s *Service) CreateSession(ctx context.Context, sessionName, templateName string) (string, error) {
	sessionName = strings.TrimSpace(sessionName)
	templateName = strings.TrimSpace(templateName)
	if sessionName == "" {
		return "", fmt.Errorf("session name is required: %w", checklist.ErrInvalidInput)
	}
	if templateName == "" {
		return "", fmt.Errorf("template name is required: %w", checklist.ErrInvalidInput)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tpl, err := s.store.GetTemplate(ctx, templateName)
	if err != nil {
		return "", checklist.StorageError("create session", err)
	}
	if len(tpl.Items) == 0 {
		return "", fmt.Errorf("template %q has no items: %w", templateName, checklist.ErrInvalidTemplate)
	}
	if len(tpl.Items) != len(tpl.Mandatory) {
		return "", fmt.Errorf("template %q has %d items but %d mandatory flags: %w", templateName, len(tpl.Items), len(tpl.Mandatory), checklist.ErrInvalidTemplate)
	}

	n := len(tpl.Items)
	snapshot := tpl.Clone()
	id, err := s.store.InsertSession(ctx, store.ChecklistSession{
		SessionName:  sessionName,
		TemplateName: tpl.Name,
		Items:        snapshot.Items,
		Mandatory:    snapshot.Mandatory,
		Checked:      make([]bool, n),
		Comments:     make([]string, n),
		UserNames:    make([]string, n),
	})
	if err != nil {
		return "", checklist.StorageError("create session", err)
	}
	s.logger.Info("session created", "session_id", id, "session_name", sessionName, "template", tpl.Name)
	return id, nil
}

// ListActiveSessions returns sessions that are not completed, newest first.
func (s *Service) ListActiveSessions(ctx context.Context) ([]checklist.SessionSummary, error) {
	return s.listSessions(ctx, false)
}

// ListCompletedSessions returns the completed archive, newest first.
func (s *Service) ListCompletedSessions(ctx context.Context) ([]checklist.SessionSummary, error) {
	return s.listSessions(ctx, true)
}

func (s *Service) listSessions(ctx context.Context, completed bool) ([]checklist.SessionSummary, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sessions, err := s.store.ListSessions(ctx, completed)
	if err != nil {
		return nil, checklist.StorageError("list sessions", err)
	}
	items := make([]checklist.SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		items = append(items, checklist.SummarizeSession(session))
	}
	return items, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (checklist.SessionView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return checklist.SessionView{}, fmt.Errorf("session id is required: %w", checklist.ErrInvalidInput)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return checklist.SessionView{}, checklist.StorageError("get session", err)
	}
	return checklist.NewSessionView(session), nil
}

func (s *Service) ApplyItemUpdate(ctx context.Context, id string, index int, update checklist.ItemUpdate, actor string) (checklist.Progress, error) {
	return s.engine.ApplyItemUpdate(ctx, id, index, update, actor)
}

func (s *Service) CompleteSession(ctx context.Context, id string) (checklist.SessionView, error) {
	view, err := s.engine.CompleteSession(ctx, id)
	if err != nil {
		return checklist.SessionView{}, err
	}
	s.logger.Info("session completed", "session_id", view.Session.ID, "session_name", view.Session.SessionName)
	return view, nil
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
