package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/service"
	"github.com/raphaelgruber/docchat/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticQuiz []models.QuizQuestion

func (q staticQuiz) GenerateQuiz(ctx context.Context, sessionID string) ([]models.QuizQuestion, error) {
	return q, nil
}

func TestPlayQuiz(t *testing.T) {
	store := session.NewStore()
	store.SetDocumentHandle(&models.DocumentHandle{SessionID: "s1"})
	q := service.NewQuiz(staticQuiz{
		{Question: "2+2?", A: "3", B: "4", C: "5", D: "6", Correct: "B"},
		{Question: "Capital of Italy?", A: "Paris", B: "Rome", C: "Oslo", D: "Bern", Correct: "B"},
		{Question: "Skipped?", A: "x", B: "y", C: "z", D: "w", Correct: "A"},
	}, store, nil, nil)
	_, err := q.Generate(context.Background())
	require.NoError(t, err)

	var out bytes.Buffer
	in := strings.NewReader("b\nz\nc\n\n")
	require.NoError(t, playQuiz(q, in, &out))

	text := out.String()
	assert.Contains(t, text, "Question 1/3")
	assert.Contains(t, text, "Correct")
	assert.Contains(t, text, "Choose A, B, C or D")
	assert.Contains(t, text, "The answer is B) Rome")
	assert.Contains(t, text, "Score: 1/2")
}

func TestPlayQuizQuit(t *testing.T) {
	store := session.NewStore()
	store.SetDocumentHandle(&models.DocumentHandle{SessionID: "s1"})
	q := service.NewQuiz(staticQuiz{{Question: "Q", A: "a", B: "b", C: "c", D: "d", Correct: "A"}}, store, nil, nil)
	_, err := q.Generate(context.Background())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, playQuiz(q, strings.NewReader("q\n"), &out))
	assert.Contains(t, out.String(), "Score: 0/0")
}

func TestStreamReplyPrintsDeltas(t *testing.T) {
	store := session.NewStore()
	store.AppendMessage(models.NewMessage(models.AuthorUser, "old question", time.Now()))

	var out bytes.Buffer
	stop := streamReply(store, &out, 1)

	store.AppendMessage(models.NewMessage(models.AuthorUser, "new question", time.Now()))
	reply := models.NewMessage(models.AuthorAssistant, "", time.Now())
	store.AppendMessage(reply)
	for _, prefix := range []string{"H", "He", "Hel", "Hello"} {
		content := prefix
		store.UpdateLastMessage(reply.ID, models.MessagePatch{Content: &content})
	}
	stop()

	// Further updates are not printed
	done := "Hello!"
	store.UpdateLastMessage(reply.ID, models.MessagePatch{Content: &done})

	text := out.String()
	assert.True(t, strings.HasSuffix(text, "Hello"), text)
	assert.Equal(t, 1, strings.Count(text, "DocChat"))
	assert.NotContains(t, text, "question")
}

func TestCountingReader(t *testing.T) {
	var n atomic.Int64
	f := withCounter(service.File{
		Name: "a.pdf",
		Size: 11,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("hello world")), nil },
	}, &n)

	rc, err := f.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, int64(11), n.Load())
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "10.0 MB", formatBytes(10<<20))
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "42s", formatUptime(42))
	assert.Equal(t, "2m 5s", formatUptime(125))
	assert.Equal(t, "1h 1m", formatUptime(3660))
}
