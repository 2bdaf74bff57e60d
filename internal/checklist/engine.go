package checklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"checklist/api/internal/logging"
	"checklist/api/internal/store"
)

// AnonymousUser is recorded when a check arrives without an acting user.
const AnonymousUser = "Anonymous"

const defaultUpdateRetries = 3

// Store is the storage collaborator the engine writes through.
type Store interface {
	GetSession(context.Context, string) (store.ChecklistSession, error)
	UpdateSession(context.Context, store.ChecklistSession, int64) (store.ChecklistSession, error)
}

// Locker provides the per-session critical section. Lock blocks until the
// key is held or ctx is done and returns the release func.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// ItemUpdate carries the fields to change on one item. Nil fields are left
// untouched.
type ItemUpdate struct {
	Checked *bool   `json:"checked,omitempty"`
	Comment *string `json:"comment,omitempty"`
}

func (u ItemUpdate) empty() bool {
	return u.Checked == nil && u.Comment == nil
}

// SessionView pairs a session snapshot with its derived progress.
type SessionView struct {
	Session  store.ChecklistSession `json:"session"`
	Progress Progress               `json:"progress"`
}

func NewSessionView(session store.ChecklistSession) SessionView {
	return SessionView{Session: session, Progress: ComputeProgress(session)}
}

type EngineConfig struct {
	// Retries bounds how often a write is retried after a version conflict.
	// Negative selects the default of 3.
	Retries int
	// Timeout bounds lock acquisition plus the whole read-modify-write cycle.
	// Zero leaves the caller's deadline in charge.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Engine is the only writer of session item state. Each mutation runs a full
// read-modify-write cycle inside the session's critical section and commits
// with a version check, so concurrent edits to different items of the same
// session never overwrite each other.
type Engine struct {
	store   Store
	locker  Locker
	retries int
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewEngine(sessions Store, locker Locker, cfg EngineConfig) *Engine {
	retries := cfg.Retries
	if retries < 0 {
		retries = defaultUpdateRetries
	}
	return &Engine{
		store:   sessions,
		locker:  locker,
		retries: retries,
		timeout: cfg.Timeout,
		logger:  logging.OrDiscard(cfg.Logger),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ApplyItemUpdate changes the checked flag and/or comment of item index and
// returns the progress of the written record.
//
// Checking an unchecked item attributes it to actor. Unchecking keeps the
// previous attribution, and comment edits never touch it.
func (e *Engine) ApplyItemUpdate(ctx context.Context, sessionID string, index int, update ItemUpdate, actor string) (Progress, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Progress{}, fmt.Errorf("apply item update: session id is required: %w", ErrInvalidInput)
	}
	if update.empty() {
		return Progress{}, fmt.Errorf("apply item update %s[%d]: nothing to change: %w", sessionID, index, ErrInvalidInput)
	}
	if index < 0 {
		return Progress{}, fmt.Errorf("apply item update %s[%d]: item %w", sessionID, index, ErrNotFound)
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = AnonymousUser
	}

	saved, err := e.mutate(ctx, sessionID, "apply item update", func(next *store.ChecklistSession) error {
		if index >= next.Len() {
			return fmt.Errorf("item %d of %d: %w", index, next.Len(), ErrNotFound)
		}
		if update.Checked != nil {
			if *update.Checked && !next.Checked[index] {
				next.UserNames[index] = actor
			}
			next.Checked[index] = *update.Checked
		}
		if update.Comment != nil {
			next.Comments[index] = *update.Comment
		}
		return nil
	})
	if err != nil {
		return Progress{}, err
	}
	return ComputeProgress(saved), nil
}

// CompleteSession marks the session completed once every mandatory item is
// checked. Optional items may remain open.
func (e *Engine) CompleteSession(ctx context.Context, sessionID string) (SessionView, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionView{}, fmt.Errorf("complete session: session id is required: %w", ErrInvalidInput)
	}
	saved, err := e.mutate(ctx, sessionID, "complete session", func(next *store.ChecklistSession) error {
		progress := ComputeProgress(*next)
		if !progress.MandatorySatisfied() {
			return fmt.Errorf("%d of %d mandatory items checked: %w", progress.CheckedMandatoryCount, progress.MandatoryCount, ErrIncomplete)
		}
		next.Completed = true
		return nil
	})
	if err != nil {
		return SessionView{}, err
	}
	return NewSessionView(saved), nil
}

// mutate runs apply against a private copy of the current record and writes
// it back, retrying from a fresh read when the version moved underneath. A
// failed cycle leaves the stored record unchanged.
func (e *Engine) mutate(ctx context.Context, sessionID, op string, apply func(*store.ChecklistSession) error) (store.ChecklistSession, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	release, err := e.locker.Lock(ctx, sessionID)
	if err != nil {
		return store.ChecklistSession{}, fmt.Errorf("%s: %w", op, lockError(sessionID, err))
	}
	defer release()

	for attempt := 0; ; attempt++ {
		current, err := e.store.GetSession(ctx, sessionID)
		if err != nil {
			return store.ChecklistSession{}, StorageError(op, err)
		}
		if current.Completed {
			return store.ChecklistSession{}, fmt.Errorf("%s %s: session already completed: %w", op, sessionID, ErrConflict)
		}
		if !current.Consistent() {
			return store.ChecklistSession{}, fmt.Errorf("%s %s: per-item arrays differ in length", op, sessionID)
		}

		next := current.Clone()
		if err := apply(&next); err != nil {
			return store.ChecklistSession{}, fmt.Errorf("%s %s: %w", op, sessionID, err)
		}
		next.UpdatedAt = e.now()

		saved, err := e.store.UpdateSession(ctx, next, current.Version)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return store.ChecklistSession{}, StorageError(op, err)
		}
		if attempt >= e.retries {
			e.logger.Warn("session update retries exhausted", "session_id", sessionID, "attempts", attempt+1)
			return store.ChecklistSession{}, StorageError(op, err)
		}
		e.logger.Debug("session version moved, retrying", "session_id", sessionID, "attempt", attempt+1)
	}
}
