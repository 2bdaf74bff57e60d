// Package poller keeps a viewer of one checklist session converged on server
// state without a push channel.
//
// A Viewer polls the session currently in view on a fixed interval and right
// after the viewer's own mutations. Switching to another session or stopping
// cancels the in-flight fetch of the abandoned view and waits for its loop to
// exit, so no result for an abandoned session is delivered once View or Stop
// has returned. Another client's edit becomes visible within one interval
// plus one round trip.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"checklist/api/internal/checklist"
	"checklist/api/internal/logging"
)

const (
	DefaultInterval     = 5 * time.Second
	DefaultFetchTimeout = 5 * time.Second
)

// Fetcher reads the full state of one session.
type Fetcher interface {
	Fetch(ctx context.Context, sessionID string) (checklist.SessionView, error)
}

// Update is one fetch result for the session in view. Err is set when the
// fetch failed; View is then the zero value.
type Update struct {
	SessionID string
	View      checklist.SessionView
	Err       error
	FetchedAt time.Time
}

type Config struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

type Viewer struct {
	fetcher      Fetcher
	onUpdate     func(Update)
	interval     time.Duration
	fetchTimeout time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	current *view
}

type view struct {
	sessionID string
	cancel    context.CancelFunc
	refresh   chan struct{}
	done      chan struct{}
}

// NewViewer returns an idle viewer. onUpdate runs on the polling goroutine and
// must not call View or Stop.
func NewViewer(fetcher Fetcher, onUpdate func(Update), cfg Config) *Viewer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	return &Viewer{
		fetcher:      fetcher,
		onUpdate:     onUpdate,
		interval:     cfg.Interval,
		fetchTimeout: cfg.FetchTimeout,
		logger:       logging.OrDiscard(cfg.Logger),
	}
}

// View starts polling sessionID and stops the previous view. Viewing the
// session already in view keeps its loop running.
func (v *Viewer) View(sessionID string) {
	v.mu.Lock()
	if v.current != nil && v.current.sessionID == sessionID {
		v.mu.Unlock()
		return
	}
	old := v.current
	ctx, cancel := context.WithCancel(context.Background())
	next := &view{
		sessionID: sessionID,
		cancel:    cancel,
		refresh:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	v.current = next
	v.mu.Unlock()

	if old != nil {
		old.cancel()
		<-old.done
		v.logger.Debug("stopped polling", "session_id", old.sessionID)
	}
	v.logger.Debug("started polling", "session_id", sessionID, "interval", v.interval)
	go v.run(ctx, next)
}

// Refresh asks for an immediate fetch of the session in view, typically right
// after a local mutation. It reports false when nothing is in view.
func (v *Viewer) Refresh() bool {
	v.mu.Lock()
	current := v.current
	v.mu.Unlock()
	if current == nil {
		return false
	}
	select {
	case current.refresh <- struct{}{}:
	default:
		// a refresh is already pending
	}
	return true
}

// Current returns the session in view, or "" when idle.
func (v *Viewer) Current() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return ""
	}
	return v.current.sessionID
}

// Stop ends the current view and waits for its loop to exit.
func (v *Viewer) Stop() {
	v.mu.Lock()
	old := v.current
	v.current = nil
	v.mu.Unlock()
	if old != nil {
		old.cancel()
		<-old.done
		v.logger.Debug("stopped polling", "session_id", old.sessionID)
	}
}

func (v *Viewer) run(ctx context.Context, vw *view) {
	defer close(vw.done)

	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	v.fetch(ctx, vw)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-vw.refresh:
			ticker.Reset(v.interval)
		}
		v.fetch(ctx, vw)
	}
}

func (v *Viewer) fetch(ctx context.Context, vw *view) {
	fetchCtx, cancel := context.WithTimeout(ctx, v.fetchTimeout)
	result, err := v.fetcher.Fetch(fetchCtx, vw.sessionID)
	cancel()

	if ctx.Err() != nil {
		v.logger.Debug("discarding fetch for abandoned view", "session_id", vw.sessionID)
		return
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, checklist.ErrStorageUnavailable) {
			err = fmt.Errorf("fetch session %s: %w: %w", vw.sessionID, checklist.ErrStorageUnavailable, err)
		}
		v.logger.Warn("session fetch failed", "session_id", vw.sessionID, "error", err.Error())
		result = checklist.SessionView{}
	}

	v.mu.Lock()
	stale := v.current != vw
	v.mu.Unlock()
	if stale {
		v.logger.Debug("discarding fetch for abandoned view", "session_id", vw.sessionID)
		return
	}
	if v.onUpdate != nil {
		v.onUpdate(Update{
			SessionID: vw.sessionID,
			View:      result,
			Err:       err,
			FetchedAt: time.Now(),
		})
	}
}
