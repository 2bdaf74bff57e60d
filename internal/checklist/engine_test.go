package checklist

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"checklist/api/internal/lock"
	"checklist/api/internal/store"
	"golang.org/x/sync/errgroup"
)

func newTestStore(t *testing.T) *store.SQLStore {
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
	return store.NewSQLStore(db, store.DriverSQLite)
}

func newTestEngine(t *testing.T) (*Engine, *store.SQLStore) {
	t.Helper()
	sessions := newTestStore(t)
	engine := NewEngine(sessions, lock.NewKeyedMutex(), EngineConfig{Retries: 3, Timeout: 5 * time.Second})
	return engine, sessions
}

func insertSession(t *testing.T, sessions *store.SQLStore, items []string, mandatory []bool) string {
	t.Helper()
	n := len(items)
	id, err := sessions.InsertSession(context.Background(), store.ChecklistSession{
		SessionName:  "T1",
		TemplateName: "Hotfire",
		Items:        items,
		Mandatory:    mandatory,
		Checked:      make([]bool, n),
		Comments:     make([]string, n),
		UserNames:    make([]string, n),
	})
	if err != nil {
		t.Fatalf("insert session: %v", err)
	}
	return id
}

func boolPtr(v bool) *bool       { return &v }
func stringPtr(v string) *string { return &v }

func TestHotfireScenario(t *testing.T) {
	engine, sessions := newTestEngine(t)
	ctx := context.Background()
	id := insertSession(t, sessions, []string{"Check fuel", "Verify seal"}, []bool{true, false})

	progress, err := engine.ApplyItemUpdate(ctx, id, 0, ItemUpdate{Checked: boolPtr(true)}, "Bob")
	if err != nil {
		t.Fatalf("ApplyItemUpdate failed: %v", err)
	}
	if progress.MandatoryRatio != 1 || progress.OverallRatio != 0.5 {
		t.Fatalf("unexpected progress %+v", progress)
	}

	got, err := sessions.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !got.Checked[0] || got.Checked[1] {
		t.Fatalf("expected checked [true false], got %v", got.Checked)
	}
	if got.UserNames[0] != "Bob" || got.UserNames[1] != "" {
		t.Fatalf("expected user_names [Bob \"\"], got %q", got.UserNames)
	}

	view, err := engine.CompleteSession(ctx, id)
	if err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}
	if !view.Session.Completed {
		t.Fatal("expected session completed")
	}
	if view.Progress.IsComplete {
		t.Fatal("optional item is open, progress should not report complete")
	}
}

func TestConcurrentUpdatesToDifferentItemsAreNotLost(t *testing.T) {
	engine, sessions := newTestEngine(t)
	ctx := context.Background()
	items := make([]string, 12)
	for i := range items {
		items[i] = fmt.Sprintf("Step %d", i+1)
	}
	id := insertSession(t, sessions, items, make([]bool, len(items)))

	var g errgroup.Group
	for i := range items {
		index := i
		g.Go(func() error {
			_, err := engine.ApplyItemUpdate(ctx, id, index, ItemUpdate{Checked: boolPtr(true)}, fmt.Sprintf("user-%d", index))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent update failed: %v", err)
	}

	got, err := sessions.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !got.Consistent() {
		t.Fatal("per-item arrays diverged in length")
	}
	for i := range items {
		if !got.Checked[i] {
			t.Errorf("item %d lost its check", i)
		}
		if want := fmt.Sprintf("user-%d", i); got.UserNames[i] != want {
			t.Errorf("item %d attributed to %q, want %q", i, got.UserNames[i], want)
		}
	}
	if got.Version != int64(len(items))+1 {
		t.Fatalf("expected version %d, got %d", len(items)+1, got.Version)
	}
}

func TestAttributionPreservedOnUncheck(t *testing.T) {
	engine, sessions := newTestEngine(t)
	ctx := context.Background()
	id := insertSession(t, sessions, []string{"a", "b"}, []bool{true, true})

	steps := []struct {
		checked bool
		actor   string
		want    string
	}{
		{true, "Alice", "Alice"},
		{false, "Carol", "Alice"},
		{true, "Dave", "Dave"},
		{true, "Erin", "Dave"},
	}
	for _, step := range steps {
		if _, err := engine.ApplyItemUpdate(ctx, id, 0, ItemUpdate{Checked: boolPtr(step.checked)}, step.actor); err != nil {
			t.Fatalf("ApplyItemUpdate(%v, %s) failed: %v", step.checked, step.actor, err)
		}
		got, _ := sessions.GetSession(ctx, id)
		if got.Checked[0] != step.checked {
			t.Fatalf("expected checked=%v, got %v", step.checked, got.Checked[0])
		}
		if got.UserNames[0] != step.want {
			t.Fatalf("after %s set checked=%v expected attribution %q, got %q", step.actor, step.checked, step.want, got.UserNames[0])
		}
	}
}

func TestCommentDoesNotTouchCheckOrAttribution(t *testing.T) {
	engine, sessions := newTestEngine(t)
	ctx := context.Background()
	id := insertSession(t, sessions, []string{"a"}, []bool{true})

	if _, err := engine.ApplyItemUpdate(ctx, id, 0, ItemUpdate{Checked: boolPtr(true)}, "Alice"); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if _, err := engine.ApplyItemUpdate(ctx, id, 0, ItemUpdate{Comment: stringPtr("torque 12Nm")}, "Bob"); err != nil {
		t.Fatalf("comment failed: %v", err)
	}
	got, _ := sessions.GetSession(ctx, id)
	if got.Comments[0] != "torque 12Nm" || !got.Checked[0] || got.UserNames[0] != "Alice" {
		t.Fatalf("unexpected item state: checked=%v user=%q comment=%q", got.Checked[0], got.UserNames[0], got.Comments[0])
	}
}

func TestBlankActorIsAnonymous(t *testing.T) {
	engine, sessions := newTestEngine(t)
	ctx := context.Background()
	id := insertSession(t, sessions, []string{"a"}, []bool{false})

	if _, err := engine.ApplyItemUpdate(ctx, id, 0, ItemUpdate{Checked: boolPtr(true)}, "  "); err != nil {
		t.Fatalf("ApplyItemUpdate failed: %v", err)
	}
	got, _ := sessions.GetSession(ctx, id)
	if got.UserNames[0] != AnonymousUser {
		t.Fatalf("expected %q, got %q", AnonymousUser, got.UserNames[0])
	}
}

func TestApplyItemUpdateErrors(t *testing.T) {
	engine, sessions := newTestEngine(t)
	ctx := context.Background()
	id := insertSession(t, sessions, []string{"a", "b"}, []bool{false, false})

	tests := []struct {
		name    string
		session string
		index   int
		update  ItemUpdate
		want    error
	}{
		{"missing session", "cls_missing", 0, ItemUpdate{Checked: boolPtr(true)}, ErrNotFound},
		{"index past end", id, 2, ItemUpdate{Checked: boolPtr(true)}, ErrNotFound},
		{"negative index", id, -1, ItemUpdate{Checked: boolPtr(true)}, ErrNotFound},
		{"empty update", id, 0, ItemUpdate{}, ErrInvalidInput},
		{"blank session id", " ", 0, ItemUpdate{Checked: boolPtr(true)}, ErrInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.ApplyItemUpdate(ctx, tc.session, tc.index, tc.update, "Alice")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	got, _ := sessions.GetSession(ctx, id)
	if got.Version != 1 {
		t.Fatalf("failed updates must not write, version is %d", got.Version)
	}
}

func TestCompleteSessionGating(t *testing.T) {
	engine, sessions := newTestEngine(t)
	ctx := context.Background()
	id := insertSession(t, sessions, []string{"a", "b", "c"}, []bool{true, true, false})

	if _, err := engine.CompleteSession(ctx, id); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
	if _, err := engine.ApplyItemUpdate(ctx, id, 0, ItemUpdate{Checked: boolPtr(true)}, "Alice"); err != nil {
		t.Fatalf("check 0 failed: %v", err)
	}
	if _, err := engine.CompleteSession(ctx, id); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete with one mandatory open, got %v", err)
	}
	if _, err := engine.ApplyItemUpdate(ctx, id, 1, ItemUpdate{Checked: boolPtr(true)}, "Bob"); err != nil {
		t.Fatalf("check 1 failed: %v", err)
	}

	view, err := engine.CompleteSession(ctx, id)
	if err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}
	if !view.Session.Completed || view.Progress.Remaining != 1 {
		t.Fatalf("unexpected view %+v", view.Progress)
	}

	if _, err := engine.ApplyItemUpdate(ctx, id, 2, ItemUpdate{Checked: boolPtr(true)}, "Carol"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on completed session, got %v", err)
	}
	if _, err := engine.CompleteSession(ctx, id); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict completing twice, got %v", err)
	}
}

func TestCompleteSessionWithoutMandatoryItems(t *testing.T) {
	engine, sessions := newTestEngine(t)
	id := insertSession(t, sessions, []string{"a"}, []bool{false})

	if _, err := engine.CompleteSession(context.Background(), id); err != nil {
		t.Fatalf("expected completion with zero mandatory items, got %v", err)
	}
}

type fakeStore struct {
	getSession    func(context.Context, string) (store.ChecklistSession, error)
	updateSession func(context.Context, store.ChecklistSession, int64) (store.ChecklistSession, error)
}

func (f *fakeStore) GetSession(ctx context.Context, id string) (store.ChecklistSession, error) {
	return f.getSession(ctx, id)
}

func (f *fakeStore) UpdateSession(ctx context.Context, item store.ChecklistSession, version int64) (store.ChecklistSession, error) {
	return f.updateSession(ctx, item, version)
}

func TestApplyItemUpdateRetriesVersionConflict(t *testing.T) {
	reads, writes := 0, 0
	fake := &fakeStore{
		getSession: func(context.Context, string) (store.ChecklistSession, error) {
			reads++
			s := sessionWith([]bool{false, false}, []bool{true, false})
			s.ID = "cls_1"
			s.Version = int64(reads)
			return s, nil
		},
		updateSession: func(_ context.Context, item store.ChecklistSession, version int64) (store.ChecklistSession, error) {
			writes++
			if writes == 1 {
				return store.ChecklistSession{}, store.ErrVersionConflict
			}
			item.Version = version + 1
			return item, nil
		},
	}
	engine := NewEngine(fake, lock.NewKeyedMutex(), EngineConfig{Retries: 3})

	progress, err := engine.ApplyItemUpdate(context.Background(), "cls_1", 0, ItemUpdate{Checked: boolPtr(true)}, "Alice")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if reads != 2 || writes != 2 {
		t.Fatalf("expected 2 reads and 2 writes, got %d and %d", reads, writes)
	}
	if progress.CheckedCount != 1 {
		t.Fatalf("unexpected progress %+v", progress)
	}
}

func TestApplyItemUpdateRetriesAreBounded(t *testing.T) {
	writes := 0
	fake := &fakeStore{
		getSession: func(context.Context, string) (store.ChecklistSession, error) {
			return sessionWith([]bool{false}, []bool{true}), nil
		},
		updateSession: func(context.Context, store.ChecklistSession, int64) (store.ChecklistSession, error) {
			writes++
			return store.ChecklistSession{}, store.ErrVersionConflict
		},
	}
	engine := NewEngine(fake, lock.NewKeyedMutex(), EngineConfig{Retries: 3})

	_, err := engine.ApplyItemUpdate(context.Background(), "cls_1", 0, ItemUpdate{Checked: boolPtr(true)}, "Alice")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if writes != 4 {
		t.Fatalf("expected 1 attempt plus 3 retries, got %d writes", writes)
	}
}

func TestStorageFailureSurfacesUnavailable(t *testing.T) {
	fake := &fakeStore{
		getSession: func(context.Context, string) (store.ChecklistSession, error) {
			return store.ChecklistSession{}, fmt.Errorf("get session: %w: connection refused", store.ErrUnavailable)
		},
	}
	engine := NewEngine(fake, lock.NewKeyedMutex(), EngineConfig{})

	_, err := engine.ApplyItemUpdate(context.Background(), "cls_1", 0, ItemUpdate{Checked: boolPtr(true)}, "Alice")
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestLockContentionTimesOut(t *testing.T) {
	locks := lock.NewKeyedMutex()
	fake := &fakeStore{
		getSession: func(context.Context, string) (store.ChecklistSession, error) {
			t.Fatal("store must not be read without the lock")
			return store.ChecklistSession{}, nil
		},
	}
	engine := NewEngine(fake, locks, EngineConfig{Timeout: 20 * time.Millisecond})

	release, err := locks.Lock(context.Background(), "cls_1")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	defer release()

	_, err = engine.ApplyItemUpdate(context.Background(), "cls_1", 0, ItemUpdate{Checked: boolPtr(true)}, "Alice")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict while another writer holds the session, got %v", err)
	}
}
