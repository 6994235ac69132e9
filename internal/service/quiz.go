package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/raphaelgruber/docchat/internal/metrics"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/session"
)

// Quiz progress errors.
var (
	ErrNoQuestion       = errors.New("no quiz question available")
	ErrInvalidChoice    = errors.New("choice must be A, B, C or D")
	ErrNoAnswer         = errors.New("select an answer first")
	ErrAlreadySubmitted = errors.New("answer already submitted")
)

// QuizView is what the quiz panel renders.
type QuizView struct {
	Question  *models.QuizQuestion
	Index     int
	Total     int
	Selected  string
	Submitted bool
	Correct   bool
	Score     int
	Answered  int
	Finished  bool
	Loading   bool
	Err       error
}

// Quiz walks the user through generated multiple-choice questions.
type Quiz struct {
	l *loader[models.QuizQuestion]

	mu        sync.Mutex
	index     int
	selected  string
	submitted bool
	score     int
	answered  int
}

// NewQuiz creates a quiz panel for the active document.
func NewQuiz(api QuizAPI, store *session.Store, collector *metrics.Collector, logger *slog.Logger) *Quiz {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Quiz{}
	q.l = &loader[models.QuizQuestion]{
		op:       metrics.OpQuiz,
		generate: api.GenerateQuiz,
		store:    store,
		metrics:  collector,
		logger:   logger,
	}
	q.l.onReset = q.resetProgress
	return q
}

// Start follows the store and generates automatically for new documents.
func (q *Quiz) Start(ctx context.Context) { q.l.start(ctx) }

// Close stops following the store and waits for running generation.
func (q *Quiz) Close() { q.l.close() }

// OnChange registers fn to be called after questions load or fail.
func (q *Quiz) OnChange(fn func()) {
	q.l.mu.Lock()
	q.l.onChange = fn
	q.l.mu.Unlock()
}

// Generate requests a new quiz for the active document and restarts progress.
func (q *Quiz) Generate(ctx context.Context) ([]models.QuizQuestion, error) {
	questions, err := q.l.load(ctx)
	if err == nil {
		q.resetProgress()
	}
	return questions, err
}

func (q *Quiz) resetProgress() {
	q.mu.Lock()
	q.index, q.selected, q.submitted, q.score, q.answered = 0, "", false, 0, 0
	q.mu.Unlock()
}

// View returns the current panel state.
func (q *Quiz) View() QuizView {
	questions, loading, err := q.l.snapshot()

	q.mu.Lock()
	defer q.mu.Unlock()

	v := QuizView{
		Index:     q.index,
		Total:     len(questions),
		Selected:  q.selected,
		Submitted: q.submitted,
		Score:     q.score,
		Answered:  q.answered,
		Loading:   loading,
		Err:       err,
	}
	if q.index < len(questions) {
		cur := questions[q.index]
		v.Question = &cur
		v.Correct = q.submitted && cur.IsCorrect(q.selected)
	}
	v.Finished = len(questions) > 0 && q.index >= len(questions)
	return v
}

func (q *Quiz) current() (models.QuizQuestion, bool) {
	questions, _, _ := q.l.snapshot()
	if q.index >= len(questions) {
		return models.QuizQuestion{}, false
	}
	return questions[q.index], true
}

// Answer selects a choice for the current question.
func (q *Quiz) Answer(choice string) error {
	choice = strings.ToUpper(strings.TrimSpace(choice))
	if len(choice) != 1 || !strings.Contains("ABCD", choice) {
		return ErrInvalidChoice
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.current(); !ok {
		return ErrNoQuestion
	}
	if q.submitted {
		return ErrAlreadySubmitted
	}
	q.selected = choice
	return nil
}

// Submit checks the selected choice and reports whether it was correct.
func (q *Quiz) Submit() (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cur, ok := q.current()
	if !ok {
		return false, ErrNoQuestion
	}
	if q.submitted {
		return false, ErrAlreadySubmitted
	}
	if q.selected == "" {
		return false, ErrNoAnswer
	}

	q.submitted = true
	q.answered++
	correct := cur.IsCorrect(q.selected)
	if correct {
		q.score++
	}
	return correct, nil
}

// Next moves to the following question. Returns false once past the last one.
func (q *Quiz) Next() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.current(); !ok {
		return false
	}
	q.index++
	q.selected, q.submitted = "", false
	_, ok := q.current()
	return ok
}

// Score returns correct answers and questions answered so far.
func (q *Quiz) Score() (correct, answered int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.score, q.answered
}
