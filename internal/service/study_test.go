package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleQuiz = []models.QuizQuestion{
	{Question: "2+2?", A: "3", B: "4", C: "5", D: "6", Correct: "B"},
	{Question: "Capital of France?", A: "Paris", B: "Rome", C: "Oslo", D: "Bern", Correct: "a"},
}

func TestQuizGeneratesWhenDocumentArrives(t *testing.T) {
	h := newHarness(t)
	h.backend.quiz = sampleQuiz
	q := NewQuiz(h.backend, h.store, h.metrics, testLogger())
	q.Start(context.Background())
	defer q.Close()

	assert.Zero(t, h.backend.quizCalls.Load(), "nothing to generate without a document")

	h.store.SetDocumentHandle(&models.DocumentHandle{SessionID: "s1"})
	require.Eventually(t, func() bool { return q.View().Total == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), h.backend.quizCalls.Load())

	// Unrelated mutations do not regenerate
	h.store.AppendMessage(models.NewMessage(models.AuthorUser, "hi", time.Now()))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), h.backend.quizCalls.Load())
}

func TestQuizDuplicateRequestsCollapse(t *testing.T) {
	h := newHarness(t)
	h.backend.quiz = sampleQuiz
	h.backend.quizGate = make(chan struct{})
	h.store.SetDocumentHandle(&models.DocumentHandle{SessionID: "s1"})
	q := NewQuiz(h.backend, h.store, h.metrics, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Generate(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return h.backend.quizCalls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(h.backend.quizGate)
	wg.Wait()

	assert.Less(t, h.backend.quizCalls.Load(), int32(4))
	assert.Equal(t, 2, q.View().Total)
}

func TestQuizFlow(t *testing.T) {
	h := newHarness(t)
	h.backend.quiz = sampleQuiz
	h.store.SetDocumentHandle(&models.DocumentHandle{SessionID: "s1"})
	q := NewQuiz(h.backend, h.store, h.metrics, testLogger())

	_, err := q.Generate(context.Background())
	require.NoError(t, err)

	_, err = q.Submit()
	assert.ErrorIs(t, err, ErrNoAnswer)
	assert.ErrorIs(t, q.Answer("E"), ErrInvalidChoice)

	require.NoError(t, q.Answer("b"))
	correct, err := q.Submit()
	require.NoError(t, err)
	assert.True(t, correct)
	assert.ErrorIs(t, q.Answer("a"), ErrAlreadySubmitted)

	require.True(t, q.Next())
	require.NoError(t, q.Answer("C"))
	correct, err = q.Submit()
	require.NoError(t, err)
	assert.False(t, correct)

	v := q.View()
	assert.True(t, v.Submitted)
	assert.Equal(t, "Capital of France?", v.Question.Question)

	assert.False(t, q.Next(), "past the last question")
	assert.True(t, q.View().Finished)

	score, answered := q.Score()
	assert.Equal(t, 1, score)
	assert.Equal(t, 2, answered)
}

func TestQuizWithoutDocument(t *testing.T) {
	h := newHarness(t)
	q := NewQuiz(h.backend, h.store, h.metrics, testLogger())

	_, err := q.Generate(context.Background())
	assert.ErrorIs(t, err, client.ErrValidation)
	assert.ErrorIs(t, q.Answer("A"), ErrNoQuestion)
}

func TestQuizResetsOnNewDocument(t *testing.T) {
	h := newHarness(t)
	h.backend.quiz = sampleQuiz
	q := NewQuiz(h.backend, h.store, h.metrics, testLogger())
	q.Start(context.Background())
	defer q.Close()

	h.store.SetDocumentHandle(&models.DocumentHandle{SessionID: "s1"})
	require.Eventually(t, func() bool { return q.View().Total == 2 }, time.Second, time.Millisecond)
	require.NoError(t, q.Answer("B"))
	_, err := q.Submit()
	require.NoError(t, err)

	h.store.SetDocumentHandle(&models.DocumentHandle{SessionID: "s2"})
	require.Eventually(t, func() bool { return h.backend.quizCalls.Load() == 2 && q.View().Total == 2 }, time.Second, time.Millisecond)

	score, answered := q.Score()
	assert.Zero(t, score)
	assert.Zero(t, answered)
}

func TestFlashcardsEmptyIsDataIntegrity(t *testing.T) {
	h := newHarness(t)
	h.store.SetDocumentHandle(&models.DocumentHandle{SessionID: "s1"})
	f := NewFlashcards(h.backend, h.store, h.metrics, testLogger(), 0)

	_, err := f.Generate(context.Background())
	assert.ErrorIs(t, err, client.ErrDataIntegrity)
	assert.ErrorIs(t, f.View().Err, client.ErrDataIntegrity)
	assert.Equal(t, "no flashcards were generated", StatusText(err))
}

func TestFlashcardsNavigation(t *testing.T) {
	h := newHarness(t)
	h.backend.cards = []models.Flashcard{{Front: "F1", Back: "B1"}, {Front: "F2", Back: "B2"}, {Front: "F3", Back: "B3"}}
	h.store.SetDocumentHandle(&models.DocumentHandle{SessionID: "s1"})
	f := NewFlashcards(h.backend, h.store, h.metrics, testLogger(), time.Second)

	_, err := f.Generate(context.Background())
	require.NoError(t, err)

	v := f.View()
	assert.Equal(t, "F1", v.Card.Front)
	assert.False(t, v.Flipped)

	f.Flip()
	assert.True(t, f.View().Flipped)

	f.Next()
	v = f.View()
	assert.Equal(t, "F2", v.Card.Front)
	assert.False(t, v.Flipped, "moving resets the flip")

	f.Prev()
	f.Prev()
	assert.Equal(t, "F3", f.View().Card.Front, "wraps around")

	snap := h.metrics.Snapshot()
	require.NotNil(t, snap.Flashcards)
	assert.Equal(t, int64(1), snap.Flashcards.Count)
}

func TestFlashcardsTimeout(t *testing.T) {
	h := newHarness(t)
	h.store.SetDocumentHandle(&models.DocumentHandle{SessionID: "s1"})

	slow := slowFlashcards{}
	f := NewFlashcards(slow, h.store, h.metrics, testLogger(), 20*time.Millisecond)

	_, err := f.Generate(context.Background())
	require.Error(t, err)
	assert.Equal(t, timeoutText, StatusText(err))
}

type slowFlashcards struct{}

func (slowFlashcards) GenerateFlashcards(ctx context.Context, sessionID string) ([]models.Flashcard, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
