package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/metrics"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/notify"
	"github.com/raphaelgruber/docchat/internal/reveal"
	"github.com/raphaelgruber/docchat/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend implements every backend port in memory.
type fakeBackend struct {
	mu sync.Mutex

	uploadResult *client.UploadResult
	uploadErr    error
	uploadCalls  int
	uploadedName string
	uploadedBody string
	uploadedConv string
	uploadBlock  bool

	chatResponse *client.ChatResponse
	chatErr      error
	chatRequests []client.ChatRequest
	chatGate     chan struct{}
	chatCalls    atomic.Int32

	createErr   error
	created     []string
	nextConvID  atomic.Int64
	renamed     map[string]string
	renameErr   error
	autoName    string
	autoNameErr error

	quiz       []models.QuizQuestion
	quizErr    error
	quizCalls  atomic.Int32
	quizGate   chan struct{}
	cards      []models.Flashcard
	cardsErr   error
	cardsCalls atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{renamed: make(map[string]string)}
}

func (f *fakeBackend) Upload(ctx context.Context, filename string, content io.Reader, conversationID string) (*client.UploadResult, error) {
	body, _ := io.ReadAll(content)

	f.mu.Lock()
	f.uploadCalls++
	f.uploadedName = filename
	f.uploadedBody = string(body)
	f.uploadedConv = conversationID
	block := f.uploadBlock
	res, err := f.uploadResult, f.uploadErr
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, &client.APIError{Op: "upload", Kind: client.ErrTimeout, Message: "the backend did not respond in time", Err: ctx.Err()}
	}
	if err != nil {
		return nil, err
	}
	out := *res
	return &out, nil
}

func (f *fakeBackend) Chat(ctx context.Context, in client.ChatRequest) (*client.ChatResponse, error) {
	f.mu.Lock()
	gate := f.chatGate
	f.mu.Unlock()
	f.chatCalls.Add(1)
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatRequests = append(f.chatRequests, in)
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	out := *f.chatResponse
	return &out, nil
}

func (f *fakeBackend) CreateConversation(ctx context.Context, userID, title string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, title)
	id := fmt.Sprintf("c%d", 100+f.nextConvID.Add(1))
	return &models.Conversation{ID: id, Title: title, UpdatedAt: time.Now()}, nil
}

func (f *fakeBackend) RenameConversation(ctx context.Context, conversationID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renameErr != nil {
		return f.renameErr
	}
	f.renamed[conversationID] = title
	return nil
}

func (f *fakeBackend) GenerateConversationName(ctx context.Context, sessionID, conversationID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.autoName, f.autoNameErr
}

func (f *fakeBackend) GenerateQuiz(ctx context.Context, sessionID string) ([]models.QuizQuestion, error) {
	f.quizCalls.Add(1)
	if f.quizGate != nil {
		select {
		case <-f.quizGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return slices.Clone(f.quiz), f.quizErr
}

func (f *fakeBackend) GenerateFlashcards(ctx context.Context, sessionID string) ([]models.Flashcard, error) {
	f.cardsCalls.Add(1)
	if f.cardsErr != nil {
		return nil, f.cardsErr
	}
	if len(f.cards) == 0 {
		return nil, client.DataIntegrity("flashcards", "no flashcards were generated")
	}
	return slices.Clone(f.cards), nil
}

func (f *fakeBackend) renamedTitle(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.renamed[id]
	return t, ok
}

// fakeHistory is an in-memory persistence layer.
type fakeHistory struct {
	mu            sync.Mutex
	conversations []models.Conversation
	documents     map[string]*models.DocumentRecord
	messages      map[string][]models.MessageRecord

	listErr     error
	listCalls   atomic.Int32
	listGate    chan struct{}
	documentErr error
	messagesErr error
	deleteErr   error
	messageWait map[string]chan struct{}
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		documents:   make(map[string]*models.DocumentRecord),
		messages:    make(map[string][]models.MessageRecord),
		messageWait: make(map[string]chan struct{}),
	}
}

func (h *fakeHistory) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	h.listCalls.Add(1)
	if h.listGate != nil {
		<-h.listGate
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listErr != nil {
		return nil, h.listErr
	}
	return slices.Clone(h.conversations), nil
}

func (h *fakeHistory) GetDocumentByConversation(ctx context.Context, conversationID string) (*models.DocumentRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.documentErr != nil {
		return nil, h.documentErr
	}
	return h.documents[conversationID], nil
}

func (h *fakeHistory) ListMessages(ctx context.Context, conversationID string) ([]models.MessageRecord, error) {
	h.mu.Lock()
	wait := h.messageWait[conversationID]
	h.mu.Unlock()
	if wait != nil {
		<-wait
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.messagesErr != nil {
		return nil, h.messagesErr
	}
	return slices.Clone(h.messages[conversationID]), nil
}

func (h *fakeHistory) DeleteConversation(ctx context.Context, conversationID string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.deleteErr != nil {
		return false, h.deleteErr
	}
	i := slices.IndexFunc(h.conversations, func(c models.Conversation) bool { return c.ID == conversationID })
	if i < 0 {
		return false, nil
	}
	h.conversations = slices.Delete(h.conversations, i, i+1)
	delete(h.messages, conversationID)
	delete(h.documents, conversationID)
	return true, nil
}

func (h *fakeHistory) bind(conversationID, sessionID, filename string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.documents[conversationID] = &models.DocumentRecord{
		VectorStoreSessionID: sessionID,
		Filename:             filename,
	}
}

func (h *fakeHistory) addMessage(conversationID string, author models.Author, content string, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages[conversationID] = append(h.messages[conversationID], models.MessageRecord{
		Author:    string(author),
		Content:   content,
		CreatedAt: at,
	})
}

// harness wires the services the way the CLI does.
type harness struct {
	backend  *fakeBackend
	history  *fakeHistory
	store    *session.Store
	events   *notify.Notifier
	tasks    *TaskRunner
	metrics  *metrics.Collector
	renderer *reveal.Renderer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := testLogger()
	store := session.NewStore()
	h := &harness{
		backend:  newFakeBackend(),
		history:  newFakeHistory(),
		store:    store,
		events:   notify.New(logger),
		tasks:    NewTaskRunner(logger),
		metrics:  metrics.NewCollector(),
		renderer: reveal.New(store, time.Millisecond, logger),
	}
	t.Cleanup(h.tasks.Close)
	return h
}

func (h *harness) uploader(opts UploadOptions) *Uploader {
	if opts.AutoNameDelay == 0 {
		opts.AutoNameDelay = time.Millisecond
	}
	return NewUploader(h.backend, h.history, h.store, h.events, h.tasks, h.metrics, testLogger(), opts)
}

func (h *harness) directory() *Directory {
	return NewDirectory(h.history, h.backend, h.store, h.events, h.metrics, testLogger(), "alice")
}

func (h *harness) chat() *Chat {
	return NewChat(h.backend, h.backend, h.store, h.renderer, h.events, h.metrics, testLogger(), "alice")
}

// pdf returns an in-memory upload of the given size.
func pdf(name string, size int64) File {
	return File{
		Name: name,
		Size: size,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("%PDF-1.7 test")), nil
		},
	}
}
