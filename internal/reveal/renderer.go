// Package reveal discloses an already received answer one character at a
// time so it reads like live generation.
package reveal

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raphaelgruber/docchat/internal/models"
)

// DefaultInterval is the delay between two revealed characters.
const DefaultInterval = 30 * time.Millisecond

// Target is the message log a reveal writes into.
type Target interface {
	// UpdateLastMessage must refuse the write when id is no longer the
	// trailing message.
	UpdateLastMessage(id string, patch models.MessagePatch) bool
	SetResponding(v bool)
}

// Reveal is one running disclosure.
type Reveal struct {
	Generation uint64
	MessageID  string

	done      chan struct{}
	completed atomic.Bool
}

// Done is closed when the reveal stops, completed or not.
func (r *Reveal) Done() <-chan struct{} { return r.done }

// Completed reports whether the full content was written.
func (r *Reveal) Completed() bool { return r.completed.Load() }

// Renderer runs at most one reveal at a time. Starting a reveal cancels the
// previous one; every step checks its generation, so a superseded reveal
// never writes again.
type Renderer struct {
	target   Target
	interval time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	current    *Reveal
}

// New creates a renderer writing into target. interval <= 0 uses DefaultInterval.
func New(target Target, interval time.Duration, logger *slog.Logger) *Renderer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{target: target, interval: interval, logger: logger}
}

// Start reveals content into message id, which must already be the last
// message with empty content. The first character is written immediately.
func (r *Renderer) Start(ctx context.Context, id, content string) *Reveal {
	r.mu.Lock()
	r.stopLocked()
	r.generation++
	rev := &Reveal{Generation: r.generation, MessageID: id, done: make(chan struct{})}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.current = rev
	r.mu.Unlock()

	r.logger.Debug("reveal started", "message_id", id, "generation", rev.Generation, "runes", len([]rune(content)))
	go r.run(runCtx, rev, []rune(content))
	return rev
}

// Cancel stops the running reveal, if any, and clears the in-progress flag.
func (r *Renderer) Cancel() {
	r.mu.Lock()
	had := r.current != nil
	r.stopLocked()
	r.generation++
	r.mu.Unlock()

	if had {
		r.target.SetResponding(false)
	}
}

// Wait blocks until the current reveal stops or ctx is done.
func (r *Renderer) Wait(ctx context.Context) error {
	r.mu.Lock()
	rev := r.current
	r.mu.Unlock()
	if rev == nil {
		return nil
	}
	select {
	case <-rev.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Generation returns the generation of the most recent Start or Cancel.
func (r *Renderer) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

func (r *Renderer) stopLocked() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.current = nil
}

func (r *Renderer) isCurrent(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation == gen
}

// finish clears the in-progress flag if rev still owns it.
func (r *Renderer) finish(rev *Reveal) {
	r.mu.Lock()
	owner := r.generation == rev.Generation
	if owner {
		r.current = nil
		if r.cancel != nil {
			r.cancel()
			r.cancel = nil
		}
	}
	r.mu.Unlock()

	if owner {
		r.target.SetResponding(false)
	}
}

func (r *Renderer) run(ctx context.Context, rev *Reveal, runes []rune) {
	defer close(rev.done)

	if len(runes) == 0 {
		rev.completed.Store(true)
		r.finish(rev)
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for i := 1; i <= len(runes); i++ {
		if ctx.Err() != nil || !r.isCurrent(rev.Generation) {
			r.logger.Debug("reveal superseded", "message_id", rev.MessageID, "generation", rev.Generation, "at", i-1)
			return
		}

		prefix := string(runes[:i])
		if !r.target.UpdateLastMessage(rev.MessageID, models.MessagePatch{Content: &prefix}) {
			r.logger.Debug("reveal target replaced", "message_id", rev.MessageID, "generation", rev.Generation)
			r.finish(rev)
			return
		}

		if i == len(runes) {
			break
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}

	rev.completed.Store(true)
	r.finish(rev)
}
