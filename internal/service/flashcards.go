package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/docchat/internal/metrics"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/session"
)

// DefaultFlashcardTimeout bounds a flashcard generation request.
const DefaultFlashcardTimeout = 60 * time.Second

// FlashcardView is what the flashcard panel renders.
type FlashcardView struct {
	Card    *models.Flashcard
	Index   int
	Total   int
	Flipped bool
	Loading bool
	Err     error
}

// Flashcards steps through generated front/back cards.
type Flashcards struct {
	l *loader[models.Flashcard]

	mu      sync.Mutex
	index   int
	flipped bool
}

// NewFlashcards creates a flashcard panel for the active document.
// A non-positive timeout uses DefaultFlashcardTimeout.
func NewFlashcards(api FlashcardAPI, store *session.Store, collector *metrics.Collector, logger *slog.Logger, timeout time.Duration) *Flashcards {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultFlashcardTimeout
	}
	f := &Flashcards{}
	f.l = &loader[models.Flashcard]{
		op:       metrics.OpFlashcards,
		generate: api.GenerateFlashcards,
		timeout:  timeout,
		store:    store,
		metrics:  collector,
		logger:   logger,
	}
	f.l.onReset = f.resetPosition
	return f
}

// Start follows the store and generates automatically for new documents.
func (f *Flashcards) Start(ctx context.Context) { f.l.start(ctx) }

// Close stops following the store and waits for running generation.
func (f *Flashcards) Close() { f.l.close() }

// OnChange registers fn to be called after cards load or fail.
func (f *Flashcards) OnChange(fn func()) {
	f.l.mu.Lock()
	f.l.onChange = fn
	f.l.mu.Unlock()
}

// Generate requests new cards for the active document.
func (f *Flashcards) Generate(ctx context.Context) ([]models.Flashcard, error) {
	cards, err := f.l.load(ctx)
	if err == nil {
		f.resetPosition()
	}
	return cards, err
}

func (f *Flashcards) resetPosition() {
	f.mu.Lock()
	f.index, f.flipped = 0, false
	f.mu.Unlock()
}

// View returns the current panel state.
func (f *Flashcards) View() FlashcardView {
	cards, loading, err := f.l.snapshot()

	f.mu.Lock()
	defer f.mu.Unlock()

	v := FlashcardView{Index: f.index, Total: len(cards), Flipped: f.flipped, Loading: loading, Err: err}
	if f.index < len(cards) {
		c := cards[f.index]
		v.Card = &c
	}
	return v
}

// Flip turns the current card over.
func (f *Flashcards) Flip() {
	f.mu.Lock()
	f.flipped = !f.flipped
	f.mu.Unlock()
}

// Next shows the following card, wrapping to the first.
func (f *Flashcards) Next() {
	f.move(1)
}

// Prev shows the previous card, wrapping to the last.
func (f *Flashcards) Prev() {
	f.move(-1)
}

func (f *Flashcards) move(delta int) {
	cards, _, _ := f.l.snapshot()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(cards) == 0 {
		return
	}
	f.index = (f.index + delta + len(cards)) % len(cards)
	f.flipped = false
}
