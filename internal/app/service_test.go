package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"checklist/api/internal/checklist"
	"checklist/api/internal/config"
	"checklist/api/internal/lock"
	"checklist/api/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "checklist.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(ctx, db, store.DriverSQLite); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	cfg := config.Config{StorageTimeout: 5 * time.Second, UpdateRetries: 3}
	return New(cfg, store.NewSQLStore(db, store.DriverSQLite), lock.NewKeyedMutex(), nil)
}

func TestUpsertTemplateNormalizesItems(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tpl, err := svc.UpsertTemplate(ctx, "  Hotfire ", []string{" Check fuel ", "", "Verify seal", "   "}, []bool{true, true, false, false})
	if err != nil {
		t.Fatalf("UpsertTemplate failed: %v", err)
	}
	if tpl.Name != "Hotfire" {
		t.Fatalf("expected trimmed name, got %q", tpl.Name)
	}
	if len(tpl.Items) != 2 || tpl.Items[0] != "Check fuel" || tpl.Items[1] != "Verify seal" {
		t.Fatalf("unexpected items %q", tpl.Items)
	}
	if len(tpl.Mandatory) != 2 || !tpl.Mandatory[0] || tpl.Mandatory[1] {
		t.Fatalf("flags must follow their items, got %v", tpl.Mandatory)
	}
}

func TestUpsertTemplateDefaultsToMandatory(t *testing.T) {
	svc := newTestService(t)
	tpl, err := svc.UpsertTemplate(context.Background(), "Preflight", []string{"a", "b"}, nil)
	if err != nil {
		t.Fatalf("UpsertTemplate failed: %v", err)
	}
	if !tpl.Mandatory[0] || !tpl.Mandatory[1] {
		t.Fatalf("expected all mandatory, got %v", tpl.Mandatory)
	}
}

func TestUpsertTemplateRejectsInvalid(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		tplName   string
		items     []string
		mandatory []bool
		want      error
	}{
		{"blank name", " ", []string{"a"}, []bool{true}, checklist.ErrInvalidInput},
		{"no items", "Empty", nil, nil, checklist.ErrInvalidTemplate},
		{"only blank items", "Blank", []string{" ", ""}, []bool{true, false}, checklist.ErrInvalidTemplate},
		{"length mismatch", "Ragged", []string{"a", "b"}, []bool{true}, checklist.ErrInvalidTemplate},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.UpsertTemplate(ctx, tc.tplName, tc.items, tc.mandatory); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	templates, err := svc.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates failed: %v", err)
	}
	if len(templates) != 0 {
		t.Fatalf("rejected templates must not be stored, found %d", len(templates))
	}
}

func TestListTemplatesSummaries(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.UpsertTemplate(ctx, "Teardown", []string{"a", "b", "c"}, []bool{true, false, true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := svc.UpsertTemplate(ctx, "Hotfire", []string{"a"}, []bool{false}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	templates, err := svc.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates failed: %v", err)
	}
	if len(templates) != 2 || templates[0].Name != "Hotfire" || templates[1].Name != "Teardown" {
		t.Fatalf("expected templates ordered by name, got %+v", templates)
	}
	teardown := templates[1]
	if teardown.ItemCount != 3 || teardown.MandatoryCount != 2 || teardown.EstimatedMinutes != 6 {
		t.Fatalf("unexpected summary %+v", teardown)
	}
}

func TestCreateSessionSnapshotsTemplate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.UpsertTemplate(ctx, "Hotfire", []string{"Check fuel", "Verify seal"}, []bool{true, false}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	id, err := svc.CreateSession(ctx, "T1", "Hotfire")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if _, err := svc.UpsertTemplate(ctx, "Hotfire", []string{"Something else"}, []bool{true}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if err := svc.DeleteTemplate(ctx, "Hotfire"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	view, err := svc.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	session := view.Session
	if len(session.Items) != 2 || session.Items[0] != "Check fuel" {
		t.Fatalf("session must keep its snapshot, got %q", session.Items)
	}
	if session.Checked[0] || session.Checked[1] || session.Comments[0] != "" || session.UserNames[1] != "" {
		t.Fatalf("session must start unchecked and unattributed: %+v", session)
	}
	if view.Progress.Total != 2 || view.Progress.MandatoryCount != 1 {
		t.Fatalf("unexpected progress %+v", view.Progress)
	}
}

func TestCreateSessionErrors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateSession(ctx, "", "Hotfire"); !errors.Is(err, checklist.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank session name, got %v", err)
	}
	if _, err := svc.CreateSession(ctx, "T1", " "); !errors.Is(err, checklist.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank template, got %v", err)
	}
	if _, err := svc.CreateSession(ctx, "T1", "Missing"); !errors.Is(err, checklist.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateSessionRejectsEmptyStoredTemplate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	// Bypass service validation to simulate a template written by another tool.
	sqlStore := svc.store.(*store.SQLStore)
	if _, err := sqlStore.UpsertTemplate(ctx, store.Template{Name: "Hollow", Items: []string{}, Mandatory: []bool{}}); err != nil {
		t.Fatalf("raw upsert: %v", err)
	}

	if _, err := svc.CreateSession(ctx, "T1", "Hollow"); !errors.Is(err, checklist.ErrInvalidTemplate) {
		t.Fatalf("expected ErrInvalidTemplate, got %v", err)
	}
	sessions, _ := svc.ListActiveSessions(ctx)
	if len(sessions) != 0 {
		t.Fatalf("no session may be persisted, found %d", len(sessions))
	}
}

func TestActiveListingExcludesCompleted(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.UpsertTemplate(ctx, "Hotfire", []string{"Check fuel"}, []bool{false}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	first, _ := svc.CreateSession(ctx, "T1", "Hotfire")
	time.Sleep(2 * time.Millisecond)
	second, _ := svc.CreateSession(ctx, "T2", "Hotfire")

	active, err := svc.ListActiveSessions(ctx)
	if err != nil {
		t.Fatalf("ListActiveSessions failed: %v", err)
	}
	if len(active) != 2 || active[0].ID != second || active[1].ID != first {
		t.Fatalf("expected newest first, got %+v", active)
	}

	if _, err := svc.CompleteSession(ctx, first); err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}

	active, _ = svc.ListActiveSessions(ctx)
	if len(active) != 1 || active[0].ID != second {
		t.Fatalf("completed session must leave the active listing, got %+v", active)
	}
	completed, _ := svc.ListCompletedSessions(ctx)
	if len(completed) != 1 || completed[0].ID != first || !completed[0].Completed {
		t.Fatalf("expected completed session in archive, got %+v", completed)
	}
}

func TestServiceStorageTimeout(t *testing.T) {
	fs := &fakeStoreForHealth{}
	svc := newService(config.Config{StorageTimeout: 10 * time.Millisecond}, &blockingStore{fakeStoreForHealth: fs}, lock.NewKeyedMutex(), nil)

	_, err := svc.GetSession(context.Background(), "cls_1")
	if !errors.Is(err, checklist.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

// blockingStore hangs until the caller's deadline.
type blockingStore struct {
	*fakeStoreForHealth
}

func (b *blockingStore) GetSession(ctx context.Context, id string) (store.ChecklistSession, error) {
	<-ctx.Done()
	return store.ChecklistSession{}, ctx.Err()
}
