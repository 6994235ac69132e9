package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/metrics"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/notify"
	"github.com/raphaelgruber/docchat/internal/reveal"
	"github.com/raphaelgruber/docchat/internal/session"
)

// maxFirstTitleLen bounds the title derived from a conversation's first question.
const maxFirstTitleLen = 50

// Chat runs question/answer exchanges against the active document.
type Chat struct {
	api           ChatAPI
	conversations ConversationAPI
	store         *session.Store
	renderer      *reveal.Renderer
	events        *notify.Notifier
	metrics       *metrics.Collector
	logger        *slog.Logger
	userID        string

	mu         sync.Mutex
	lastFailed string
}

// NewChat creates a chat service. conversations may be nil, in which case
// questions are sent without creating a conversation first.
func NewChat(
	api ChatAPI,
	conversations ConversationAPI,
	store *session.Store,
	renderer *reveal.Renderer,
	events *notify.Notifier,
	collector *metrics.Collector,
	logger *slog.Logger,
	userID string,
) *Chat {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chat{
		api:           api,
		conversations: conversations,
		store:         store,
		renderer:      renderer,
		events:        events,
		metrics:       collector,
		logger:        logger,
		userID:        userID,
	}
}

// Send asks text about the active document. Blank text is ignored. The
// answer is revealed into the log in the background; use Wait to block until
// it is fully shown.
func (c *Chat) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sessionID := c.store.Snapshot().SessionID()
	if sessionID == "" {
		return client.Validation("chat", "Please upload a PDF first")
	}

	conversationID := c.ensureConversation(ctx, text)

	c.renderer.Cancel()
	if !c.store.AppendMessageFor(conversationID, sessionID, models.NewMessage(models.AuthorUser, text, time.Now())) {
		c.logger.Debug("question dropped, conversation changed", "conversation_id", conversationID)
		return nil
	}
	c.store.SetResponding(true)

	done := c.metrics.Track(metrics.OpChat)
	resp, err := c.api.Chat(ctx, client.ChatRequest{
		Question:       text,
		SessionID:      sessionID,
		ConversationID: conversationID,
	})
	done(err)
	if err != nil {
		c.fail(conversationID, sessionID, text, err)
		return err
	}

	c.mu.Lock()
	c.lastFailed = ""
	c.mu.Unlock()

	reply := replyMessage(resp)
	if !c.store.AppendMessageFor(conversationID, sessionID, reply) {
		c.store.SetResponding(false)
		c.logger.Info("answer dropped, conversation changed while waiting",
			"conversation_id", conversationID,
			"message_id", reply.ID)
		return nil
	}
	c.logger.Debug("answer received",
		"conversation_id", conversationID,
		"message_id", reply.ID,
		"runes", len([]rune(resp.Content)),
		"sources", len(resp.Sources))

	// The reveal outlives the request context; Cancel stops it.
	c.renderer.Start(context.WithoutCancel(ctx), reply.ID, resp.Content)
	return nil
}

// Retry resends the last question that failed, if any.
func (c *Chat) Retry(ctx context.Context) error {
	c.mu.Lock()
	text := c.lastFailed
	c.mu.Unlock()
	if text == "" {
		return nil
	}
	return c.Send(ctx, text)
}

// LastFailed returns the question of the last failed exchange, or "".
func (c *Chat) LastFailed() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFailed
}

// Wait blocks until the current reveal ends.
func (c *Chat) Wait(ctx context.Context) error {
	return c.renderer.Wait(ctx)
}

// Stop cancels a running reveal.
func (c *Chat) Stop() {
	c.renderer.Cancel()
}

// fail records text for Retry and reports err in the log it was asked from.
func (c *Chat) fail(conversationID, sessionID, text string, err error) {
	c.mu.Lock()
	c.lastFailed = text
	c.mu.Unlock()

	c.logger.Warn("chat failed", "conversation_id", conversationID, "error", err)
	c.store.AppendMessageFor(conversationID, sessionID, models.NewMessage(models.AuthorSystem, ErrorLine(err), time.Now()))
	c.store.SetResponding(false)
}

// ensureConversation returns the active conversation id, creating one titled
// after the question when none exists. Creation failures are logged and the
// question is sent without a conversation.
func (c *Chat) ensureConversation(ctx context.Context, question string) string {
	if id := c.store.Snapshot().ConversationID; id != "" || c.conversations == nil {
		return id
	}
	if !c.store.BeginConversationCreation() {
		// Another send is already creating one
		return c.store.Snapshot().ConversationID
	}

	title := models.TruncateTitle(question, maxFirstTitleLen)
	conv, err := c.conversations.CreateConversation(ctx, c.userID, title)
	if err != nil {
		c.store.FailConversationCreation()
		c.logger.Warn("conversation creation failed", "error", err)
		return ""
	}

	c.store.CompleteConversationCreation(conv.ID)
	c.logger.Info("conversation created for first question", "conversation_id", conv.ID, "title", title)
	c.events.Notify(notify.ConversationsChanged)
	return conv.ID
}

func replyMessage(resp *client.ChatResponse) models.Message {
	author := models.AuthorAssistant
	if resp.Author != "" {
		author = models.ParseAuthor(resp.Author)
	}
	id := resp.ID
	if id == "" {
		id = uuid.New().String()
	}
	ts := resp.Timestamp
	if ts == "" {
		ts = models.FormatTimestamp(time.Now())
	}
	return models.Message{
		ID:        id,
		Author:    author,
		Avatar:    author.Avatar(),
		Timestamp: ts,
		Sources:   resp.Sources,
	}
}
