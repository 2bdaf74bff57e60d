package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"checklist/api/internal/util"
)

// SQLStore persists templates and checklist sessions in Postgres or SQLite.
// Per-item arrays are stored as JSON text so both dialects share one schema.
type SQLStore struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{
		db:     db,
		driver: driver,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *SQLStore) ListTemplates(ctx context.Context) ([]Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, items, mandatory, created_at, updated_at
		FROM templates
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, unavailable("list templates", err)
	}
	defer rows.Close()

	items := make([]Template, 0)
	for rows.Next() {
		item, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate templates", err)
	}
	return items, nil
}

func (s *SQLStore) GetTemplate(ctx context.Context, name string) (Template, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, name, items, mandatory, created_at, updated_at
		FROM templates
		WHERE name = ?
	`), name)
	item, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, fmt.Errorf("template %q: %w", name, ErrNotFound)
	}
	return item, err
}

// UpsertTemplate creates the template or replaces the items of the template
// with the same name. The id of an existing template is preserved.
func (s *SQLStore) UpsertTemplate(ctx context.Context, item Template) (Template, error) {
	itemsJSON, err := encodeJSON(item.Items)
	if err != nil {
		return Template{}, err
	}
	mandatoryJSON, err := encodeJSON(item.Mandatory)
	if err != nil {
		return Template{}, err
	}
	if item.ID == "" {
		item.ID = util.NewID("tpl")
	}
	now := s.now()
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO templates (id, name, items, mandatory, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			items = excluded.items,
			mandatory = excluded.mandatory,
			updated_at = excluded.updated_at
	`), item.ID, item.Name, itemsJSON, mandatoryJSON, now, now)
	if err != nil {
		return Template{}, unavailable("upsert template", err)
	}
	return s.GetTemplate(ctx, item.Name)
}

func (s *SQLStore) DeleteTemplate(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM templates WHERE name = ?`), name)
	if err != nil {
		return unavailable("delete template", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return unavailable("delete template", err)
	}
	if affected == 0 {
		return fmt.Errorf("template %q: %w", name, ErrNotFound)
	}
	return nil
}

// InsertSession persists a new session in a single statement and returns its
// id. A blank ID is generated.
func (s *SQLStore) InsertSession(ctx context.Context, item ChecklistSession) (string, error) {
	if !item.Consistent() {
		return "", fmt.Errorf("insert session: per-item arrays differ in length")
	}
	cols, err := encodeSessionArrays(item)
	if err != nil {
		return "", err
	}
	if item.ID == "" {
		item.ID = util.NewID("cls")
	}
	now := s.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = now
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO checklists (id, session_name, template_name, items, mandatory, checked, comments, user_names, completed, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`), item.ID, item.SessionName, item.TemplateName, cols.items, cols.mandatory, cols.checked, cols.comments, cols.userNames, item.Completed, item.CreatedAt.UTC(), item.UpdatedAt.UTC())
	if err != nil {
		return "", unavailable("insert session", err)
	}
	return item.ID, nil
}

func (s *SQLStore) GetSession(ctx context.Context, id string) (ChecklistSession, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, session_name, template_name, items, mandatory, checked, comments, user_names, completed, version, created_at, updated_at
		FROM checklists
		WHERE id = ?
	`), id)
	item, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ChecklistSession{}, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return item, err
}

// UpdateSession replaces the whole record when the stored version still equals
// expectedVersion. It fails with ErrVersionConflict when another writer got
// there first and ErrNotFound when the session is gone.
func (s *SQLStore) UpdateSession(ctx context.Context, item ChecklistSession, expectedVersion int64) (ChecklistSession, error) {
	if !item.Consistent() {
		return ChecklistSession{}, fmt.Errorf("update session: per-item arrays differ in length")
	}
	cols, err := encodeSessionArrays(item)
	if err != nil {
		return ChecklistSession{}, err
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE checklists
		SET items = ?, mandatory = ?, checked = ?, comments = ?, user_names = ?, completed = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`), cols.items, cols.mandatory, cols.checked, cols.comments, cols.userNames, item.Completed, item.UpdatedAt.UTC(), item.ID, expectedVersion)
	if err != nil {
		return ChecklistSession{}, unavailable("update session", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ChecklistSession{}, unavailable("update session", err)
	}
	if affected == 0 {
		if _, err := s.GetSession(ctx, item.ID); err != nil {
			return ChecklistSession{}, err
		}
		return ChecklistSession{}, fmt.Errorf("session %q at version %d: %w", item.ID, expectedVersion, ErrVersionConflict)
	}
	out := item.Clone()
	out.Version = expectedVersion + 1
	return out, nil
}

// ListSessions returns sessions with the given completion flag, newest first.
func (s *SQLStore) ListSessions(ctx context.Context, completed bool) ([]ChecklistSession, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, session_name, template_name, items, mandatory, checked, comments, user_names, completed, version, created_at, updated_at
		FROM checklists
		WHERE completed = ?
		ORDER BY created_at DESC, id DESC
	`), completed)
	if err != nil {
		return nil, unavailable("list sessions", err)
	}
	defer rows.Close()

	items := make([]ChecklistSession, 0)
	for rows.Next() {
		item, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate sessions", err)
	}
	return items, nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (Template, error) {
	var item Template
	var itemsJSON, mandatoryJSON string
	if err := row.Scan(&item.ID, &item.Name, &itemsJSON, &mandatoryJSON, &item.CreatedAt, &item.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Template{}, err
		}
		return Template{}, unavailable("scan template", err)
	}
	if err := decodeJSON(itemsJSON, &item.Items); err != nil {
		return Template{}, fmt.Errorf("decode template items: %w", err)
	}
	if err := decodeJSON(mandatoryJSON, &item.Mandatory); err != nil {
		return Template{}, fmt.Errorf("decode template mandatory: %w", err)
	}
	if item.Items == nil {
		item.Items = []string{}
	}
	if item.Mandatory == nil {
		item.Mandatory = []bool{}
	}
	return item, nil
}

func scanSession(row rowScanner) (ChecklistSession, error) {
	var item ChecklistSession
	var items, mandatory, checked, comments, userNames string
	err := row.Scan(&item.ID, &item.SessionName, &item.TemplateName, &items, &mandatory, &checked, &comments, &userNames, &item.Completed, &item.Version, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ChecklistSession{}, err
		}
		return ChecklistSession{}, unavailable("scan session", err)
	}
	decoders := []struct {
		raw    string
		target any
	}{
		{items, &item.Items},
		{mandatory, &item.Mandatory},
		{checked, &item.Checked},
		{comments, &item.Comments},
		{userNames, &item.UserNames},
	}
	for _, d := range decoders {
		if err := decodeJSON(d.raw, d.target); err != nil {
			return ChecklistSession{}, fmt.Errorf("decode session %s arrays: %w", item.ID, err)
		}
	}
	normalizeSession(&item)
	return item, nil
}

// normalizeSession replaces nil slices with empty ones so records always
// serialize as arrays.
func normalizeSession(item *ChecklistSession) {
	if item.Items == nil {
		item.Items = []string{}
	}
	if item.Mandatory == nil {
		item.Mandatory = []bool{}
	}
	if item.Checked == nil {
		item.Checked = []bool{}
	}
	if item.Comments == nil {
		item.Comments = []string{}
	}
	if item.UserNames == nil {
		item.UserNames = []string{}
	}
}

type sessionColumns struct {
	items, mandatory, checked, comments, userNames string
}

func encodeSessionArrays(item ChecklistSession) (sessionColumns, error) {
	var cols sessionColumns
	var err error
	if cols.items, err = encodeJSON(item.Items); err != nil {
		return cols, err
	}
	if cols.mandatory, err = encodeJSON(item.Mandatory); err != nil {
		return cols, err
	}
	if cols.checked, err = encodeJSON(item.Checked); err != nil {
		return cols, err
	}
	if cols.comments, err = encodeJSON(item.Comments); err != nil {
		return cols, err
	}
	if cols.userNames, err = encodeJSON(item.UserNames); err != nil {
		return cols, err
	}
	return cols, nil
}

func encodeJSON[T any](values []T) (string, error) {
	if values == nil {
		values = []T{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode array: %w", err)
	}
	return string(raw), nil
}

func decodeJSON(raw string, target any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), target)
}
