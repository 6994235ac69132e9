package service

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/metrics"
	"github.com/raphaelgruber/docchat/internal/session"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/singleflight"
)

// loader generates study material for the active document. It follows the
// store: a new session id drops the old material and, when none is loaded,
// generates automatically. Duplicate concurrent requests share one call.
type loader[T any] struct {
	op       string
	generate func(ctx context.Context, sessionID string) ([]T, error)
	timeout  time.Duration
	store    *session.Store
	metrics  *metrics.Collector
	logger   *slog.Logger

	group singleflight.Group

	mu        sync.RWMutex
	sessionID string
	items     []T
	loading   bool
	err       error
	onChange  func()
	onReset   func()

	bg          conc.WaitGroup
	bgCtx       context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

func (l *loader[T]) start(ctx context.Context) {
	l.bgCtx, l.cancel = context.WithCancel(ctx)
	l.unsubscribe = l.store.Subscribe(func(st session.State) {
		l.follow(st.SessionID())
	})
	l.follow(l.store.Snapshot().SessionID())
}

func (l *loader[T]) close() {
	if l.unsubscribe != nil {
		l.unsubscribe()
	}
	if l.cancel != nil {
		l.cancel()
	}
	l.bg.Wait()
}

// follow reacts to the active session id.
func (l *loader[T]) follow(sessionID string) {
	l.mu.Lock()
	if sessionID == l.sessionID {
		l.mu.Unlock()
		return
	}
	l.sessionID = sessionID
	l.items = nil
	l.err = nil
	l.loading = false
	reset := l.onReset
	auto := sessionID != "" && l.bgCtx != nil
	l.mu.Unlock()

	if reset != nil {
		reset()
	}
	l.changed()

	if auto {
		l.bg.Go(func() {
			if _, err := l.load(l.bgCtx); err != nil {
				l.logger.Warn("automatic generation failed", "op", l.op, "session_id", sessionID, "error", err)
			}
		})
	}
}

// load generates material for the current session id.
func (l *loader[T]) load(ctx context.Context) ([]T, error) {
	l.mu.Lock()
	sessionID := l.sessionID
	if sessionID == "" {
		sessionID = l.store.Snapshot().SessionID()
		l.sessionID = sessionID
	}
	if sessionID == "" {
		l.mu.Unlock()
		return nil, client.Validation(l.op, "Please upload a PDF first")
	}
	l.loading = true
	l.err = nil
	l.mu.Unlock()
	l.changed()

	v, err, shared := l.group.Do(sessionID, func() (any, error) {
		callCtx := ctx
		if l.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, l.timeout)
			defer cancel()
		}
		done := l.metrics.Track(l.op)
		items, err := l.generate(callCtx, sessionID)
		done(err)
		return items, err
	})

	l.mu.Lock()
	current := l.sessionID == sessionID
	if current {
		l.loading = false
		if err != nil {
			l.err = err
		} else {
			l.items = slices.Clone(v.([]T))
		}
	}
	l.mu.Unlock()

	if current {
		l.changed()
	}
	if err != nil {
		return nil, err
	}

	items := v.([]T)
	l.logger.Info("study material generated", "op", l.op, "session_id", sessionID, "count", len(items), "shared", shared)
	return slices.Clone(items), nil
}

func (l *loader[T]) snapshot() (items []T, loading bool, err error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.items), l.loading, l.err
}

func (l *loader[T]) changed() {
	l.mu.RLock()
	fn := l.onChange
	l.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
