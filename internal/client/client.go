// Package client provides an HTTP client for the document Q&A backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/raphaelgruber/docchat/internal/models"
)

// Client talks to the retrieval backend over HTTP/JSON.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is still
// wrapped with request logging.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a backend client for baseURL (e.g. http://localhost:8000).
// Operations without an explicit deadline rely on the caller's context; the
// HTTP client itself carries no timeout so long uploads are governed by the
// per-call deadline only.
func New(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := *c.httpClient
	hc.Transport = LoggingMiddleware(hc.Transport, logger)
	c.httpClient = &hc
	return c
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string { return c.baseURL }

// do sends req and decodes a JSON success body into result.
func (c *Client) do(op string, req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp.StatusCode, body)
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return DataIntegrity(op, fmt.Sprintf("unmarshal response: %v", err))
		}
	}
	return nil
}

// postJSON sends payload as JSON to path.
func (c *Client) postJSON(ctx context.Context, op, path string, payload, result any) error {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(op, req, result)
}

// =============================================================================
// UPLOAD
// =============================================================================

// UploadResult is the backend's answer to a processed upload.
type UploadResult struct {
	SessionID      string `json:"session_id"`
	Message        string `json:"message,omitempty"`
	ChunksCount    int    `json:"chunks_count"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Upload submits a PDF as multipart form data. conversationID is attached
// when non-empty so the backend can bind the document to it.
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader, conversationID string) (*UploadResult, error) {
	const op = "upload"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("%s: create form file: %w", op, err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("%s: read file: %w", op, err)
	}
	if conversationID != "" {
		if err := mw.WriteField("conversation_id", conversationID); err != nil {
			return nil, fmt.Errorf("%s: write conversation id: %w", op, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%s: close form: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result UploadResult
	if err := c.do(op, req, &result); err != nil {
		return nil, err
	}
	if result.SessionID == "" {
		return nil, DataIntegrity(op, "response has no session_id")
	}
	return &result, nil
}

// =============================================================================
// CHAT
// =============================================================================

// ChatRequest asks a question about the document of SessionID.
type ChatRequest struct {
	Question       string `json:"question"`
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatResponse is a complete answer; the backend does not stream.
type ChatResponse struct {
	ID        string          `json:"id"`
	Author    string          `json:"author"`
	Timestamp string          `json:"timestamp"`
	Content   string          `json:"content"`
	Sources   []models.Source `json:"sources,omitempty"`
}

// Chat sends one question and returns the full answer.
func (c *Client) Chat(ctx context.Context, in ChatRequest) (*ChatResponse, error) {
	var result ChatResponse
	if err := c.postJSON(ctx, "chat", "/api/chat", in, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// STUDY MATERIAL
// =============================================================================

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

// GenerateQuiz requests multiple-choice questions for a document.
func (c *Client) GenerateQuiz(ctx context.Context, sessionID string) ([]models.QuizQuestion, error) {
	var result struct {
		Questions []models.QuizQuestion `json:"questions"`
	}
	if err := c.postJSON(ctx, "quiz", "/api/quiz", sessionRequest{SessionID: sessionID}, &result); err != nil {
		return nil, err
	}
	return result.Questions, nil
}

// GenerateFlashcards requests flashcards for a document. An empty set is a
// data integrity failure.
func (c *Client) GenerateFlashcards(ctx context.Context, sessionID string) ([]models.Flashcard, error) {
	var result struct {
		Flashcards []models.Flashcard `json:"flashcards"`
	}
	if err := c.postJSON(ctx, "flashcards", "/api/flashcards", sessionRequest{SessionID: sessionID}, &result); err != nil {
		return nil, err
	}
	if len(result.Flashcards) == 0 {
		return nil, DataIntegrity("flashcards", "no flashcards were generated")
	}
	return result.Flashcards, nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// CreateConversation creates a conversation owned by userID.
func (c *Client) CreateConversation(ctx context.Context, userID, title string) (*models.Conversation, error) {
	const op = "create conversation"
	var result struct {
		Conversation *models.Conversation `json:"conversation"`
	}
	payload := map[string]string{"title": title, "user_id": userID}
	if err := c.postJSON(ctx, op, "/api/conversations", payload, &result); err != nil {
		return nil, err
	}
	if result.Conversation == nil || result.Conversation.ID == "" {
		return nil, DataIntegrity(op, "response has no conversation")
	}
	return result.Conversation, nil
}

// RenameConversation sets a new title.
func (c *Client) RenameConversation(ctx context.Context, conversationID, title string) error {
	payload := map[string]string{"conversation_id": conversationID, "title": title}
	return c.postJSON(ctx, "rename conversation", "/api/conversations/rename", payload, nil)
}

// GenerateConversationName asks the backend for a short title derived from
// the document's content.
func (c *Client) GenerateConversationName(ctx context.Context, sessionID, conversationID string) (string, error) {
	const op = "generate conversation name"
	var result struct {
		Name string `json:"name"`
	}
	payload := map[string]string{"session_id": sessionID, "conversation_id": conversationID}
	if err := c.postJSON(ctx, op, "/api/generate-conversation-name", payload, &result); err != nil {
		return "", err
	}
	name := strings.TrimSpace(result.Name)
	if name == "" {
		return "", DataIntegrity(op, "empty name")
	}
	return name, nil
}

// Health checks that the backend answers.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("health: create request: %w", err)
	}
	return c.do("health", req, nil)
}
