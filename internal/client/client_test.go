package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, testLogger())
}

func TestUploadSendsMultipartForm(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)

		assert.Equal(t, "report.pdf", hdr.Filename)
		assert.Equal(t, "%PDF-1.7", string(data))
		assert.Equal(t, "c1", r.FormValue("conversation_id"))

		_, _ = w.Write([]byte(`{"session_id":"s1","chunks_count":42,"conversation_id":"c1"}`))
	})

	res, err := c.Upload(context.Background(), "report.pdf", strings.NewReader("%PDF-1.7"), "c1")
	require.NoError(t, err)
	assert.Equal(t, "s1", res.SessionID)
	assert.Equal(t, 42, res.ChunksCount)
	assert.Equal(t, "c1", res.ConversationID)
}

func TestUploadOmitsEmptyConversationID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, ok := r.MultipartForm.Value["conversation_id"]
		assert.False(t, ok)
		_, _ = w.Write([]byte(`{"session_id":"s1","chunks_count":1}`))
	})

	_, err := c.Upload(context.Background(), "a.pdf", strings.NewReader("x"), "")
	require.NoError(t, err)
}

func TestUploadMissingSessionID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chunks_count":3}`))
	})

	_, err := c.Upload(context.Background(), "a.pdf", strings.NewReader("x"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataIntegrity)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    error
		message string
	}{
		{"bad request", http.StatusBadRequest, `{"error":"Only PDF files are allowed"}`, ErrValidation, "Only PDF files are allowed"},
		{"unavailable", http.StatusServiceUnavailable, `{"detail":"vector store down"}`, ErrConnectivity, "vector store down"},
		{"gateway timeout", http.StatusGatewayTimeout, ``, ErrTimeout, "Gateway Timeout"},
		{"server error", http.StatusInternalServerError, `{"detail":"boom"}`, ErrBackend, "boom"},
		{"plain text body", http.StatusBadGateway, `upstream exploded`, ErrBackend, "upstream exploded"},
		{"validation list", http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","question"],"msg":"field required"}]}`, ErrBackend, "field required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Chat(context.Background(), ChatRequest{Question: "q", SessionID: "s1"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Contains(t, apiErr.Message, tt.message)
		})
	}
}

func TestChatRequestShape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "What is the conclusion?", body["question"])
		assert.Equal(t, "s1", body["session_id"])
		assert.Equal(t, "c1", body["conversation_id"])

		_, _ = w.Write([]byte(`{"id":"m2","author":"assistant","content":"The conclusion is X.",
			"sources":[{"title":"report.pdf p.3","description":"Section 5"}]}`))
	})

	resp, err := c.Chat(context.Background(), ChatRequest{
		Question:       "What is the conclusion?",
		SessionID:      "s1",
		ConversationID: "c1",
	})
	require.NoError(t, err)
	assert.Equal(t, "The conclusion is X.", resp.Content)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "report.pdf p.3", resp.Sources[0].Title)
	assert.Nil(t, resp.Sources[0].URL)
}

func TestDeadlineIsTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Upload(ctx, "a.pdf", strings.NewReader("x"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestCanceledIsNotTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Chat(ctx, ChatRequest{Question: "q", SessionID: "s"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestRefusedConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(url, testLogger())
	err := c.Health(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectivity)
	assert.Contains(t, err.Error(), "cannot connect")
}

func TestGenerateFlashcardsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"flashcards":[]}`))
	})

	_, err := c.GenerateFlashcards(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrDataIntegrity)
}

func TestGenerateQuiz(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/quiz", r.URL.Path)
		_, _ = w.Write([]byte(`{"questions":[{"question":"2+2?","A":"3","B":"4","C":"5","D":"6","correct":"B"}]}`))
	})

	qs, err := c.GenerateQuiz(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.True(t, qs[0].IsCorrect("b"))
}

func TestConversationEndpoints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		switch r.URL.Path {
		case "/api/conversations":
			assert.Equal(t, "New Conversation", body["title"])
			assert.Equal(t, "alice", body["user_id"])
			_, _ = w.Write([]byte(`{"conversation":{"id":"c9","title":"New Conversation"}}`))
		case "/api/conversations/rename":
			assert.Equal(t, "c9", body["conversation_id"])
			assert.Equal(t, "Renamed", body["title"])
			w.WriteHeader(http.StatusOK)
		case "/api/generate-conversation-name":
			assert.Equal(t, "s1", body["session_id"])
			_, _ = w.Write([]byte(`{"name":"  Quarterly Report  "}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	conv, err := c.CreateConversation(ctx, "alice", "New Conversation")
	require.NoError(t, err)
	assert.Equal(t, "c9", conv.ID)

	require.NoError(t, c.RenameConversation(ctx, "c9", "Renamed"))

	name, err := c.GenerateConversationName(ctx, "s1", "c9")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Report", name)
}

func TestCreateConversationMissingBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := c.CreateConversation(context.Background(), "alice", "t")
	assert.ErrorIs(t, err, ErrDataIntegrity)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}
