// Package db provides SurrealDB query functions for conversations, messages
// and document bindings.
package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// =============================================================================
// CONVERSATIONS
// =============================================================================

// ListConversations returns a user's conversations, most recently updated first.
func (c *Client) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	results, err := surrealdb.Query[[]models.ConversationRecord](ctx, c.db, `
		SELECT * FROM conversation WHERE user_id = $user ORDER BY updated_at DESC
	`, map[string]any{"user": userID})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Conversation{}, nil
	}
	return conversationViews((*results)[0].Result)
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if it does not exist.
func (c *Client) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	results, err := surrealdb.Query[[]models.ConversationRecord](ctx, c.db, `
		SELECT * FROM type::record("conversation", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return firstConversation(results, "get conversation", id)
}

// CreateConversation creates a conversation owned by userID with a generated ID.
func (c *Client) CreateConversation(ctx context.Context, userID, title string) (*models.Conversation, error) {
	id := uuid.New().String()
	results, err := surrealdb.Query[[]models.ConversationRecord](ctx, c.db, `
		CREATE type::record("conversation", $id) SET
			user_id = $user,
			title = $title,
			created_at = time::now(),
			updated_at = time::now()
	`, map[string]any{
		"id":    id,
		"user":  userID,
		"title": strings.TrimSpace(title),
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", wrapQueryError(err))
	}
	return firstConversation(results, "create conversation", id)
}

// RenameConversation sets a new title and bumps updated_at.
// Returns ErrNotFound if the conversation does not exist.
func (c *Client) RenameConversation(ctx context.Context, id, title string) error {
	results, err := surrealdb.Query[[]models.ConversationRecord](ctx, c.db, `
		UPDATE type::record("conversation", $id) SET
			title = $title,
			updated_at = time::now()
		RETURN AFTER
	`, map[string]any{"id": id, "title": strings.TrimSpace(title)})
	if err != nil {
		return fmt.Errorf("rename conversation: %w", wrapQueryError(err))
	}
	_, err = firstConversation(results, "rename conversation", id)
	return err
}

// DeleteConversation removes a conversation together with its messages and
// document binding. Returns false if no conversation was deleted (idempotent).
func (c *Client) DeleteConversation(ctx context.Context, id string) (bool, error) {
	// Statement results: BEGIN, message, document, conversation, COMMIT
	var results *[]surrealdb.QueryResult[[]models.ConversationRecord]
	err := retryConflicts(ctx, func() error {
		var err error
		results, err = surrealdb.Query[[]models.ConversationRecord](ctx, c.db, `
			BEGIN TRANSACTION;
			DELETE message WHERE conversation = type::record("conversation", $id);
			DELETE document WHERE conversation = type::record("conversation", $id);
			DELETE type::record("conversation", $id) RETURN BEFORE;
			COMMIT TRANSACTION;
		`, map[string]any{"id": id})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}

	if results == nil {
		return false, nil
	}
	for _, r := range *results {
		if len(r.Result) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// touchConversation bumps updated_at so the conversation moves to the top of the listing.
func (c *Client) touchConversation(ctx context.Context, id string) error {
	err := retryConflicts(ctx, func() error {
		_, err := surrealdb.Query[any](ctx, c.db, `
			UPDATE type::record("conversation", $id) SET updated_at = time::now()
		`, map[string]any{"id": id})
		return err
	})
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func firstConversation(results *[]surrealdb.QueryResult[[]models.ConversationRecord], op, id string) (*models.Conversation, error) {
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	view, err := (*results)[0].Result[0].View()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &view, nil
}

func conversationViews(records []models.ConversationRecord) ([]models.Conversation, error) {
	out := make([]models.Conversation, 0, len(records))
	for _, r := range records {
		v, err := r.View()
		if err != nil {
			return nil, fmt.Errorf("conversation view: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// =============================================================================
// MESSAGES
// =============================================================================

// ListMessages returns the persisted history of a conversation, oldest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]models.MessageRecord, error) {
	results, err := surrealdb.Query[[]models.MessageRecord](ctx, c.db, `
		SELECT * FROM message
		WHERE conversation = type::record("conversation", $id)
		ORDER BY created_at ASC
	`, map[string]any{"id": conversationID})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.MessageRecord{}, nil
	}
	return (*results)[0].Result, nil
}

// CreateMessage appends a message to a conversation and bumps its updated_at.
func (c *Client) CreateMessage(
	ctx context.Context,
	conversationID string,
	author models.Author,
	content string,
	sources []models.Source,
) (*models.MessageRecord, error) {
	vars := map[string]any{
		"id":      uuid.New().String(),
		"conv":    conversationID,
		"author":  string(author),
		"content": content,
	}
	sourcesClause := ""
	if len(sources) > 0 {
		sourcesClause = ", sources = $sources"
		vars["sources"] = sources
	}

	sql := fmt.Sprintf(`
		CREATE type::record("message", $id) SET
			conversation = type::record("conversation", $conv),
			author = $author,
			content = $content,
			created_at = time::now()%s
	`, sourcesClause)

	results, err := surrealdb.Query[[]models.MessageRecord](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create message: empty result")
	}

	if err := c.touchConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return &(*results)[0].Result[0], nil
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// GetDocumentByConversation returns the document bound to a conversation.
// Returns nil if the conversation has no document.
func (c *Client) GetDocumentByConversation(ctx context.Context, conversationID string) (*models.DocumentRecord, error) {
	results, err := surrealdb.Query[[]models.DocumentRecord](ctx, c.db, `
		SELECT * FROM document
		WHERE conversation = type::record("conversation", $id)
		LIMIT 1
	`, map[string]any{"id": conversationID})
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// BindDocument records that a processed document belongs to a conversation.
// A conversation holds at most one document; binding again replaces it.
func (c *Client) BindDocument(ctx context.Context, conversationID, sessionID, filename string) (*models.DocumentRecord, error) {
	// Document ID mirrors the conversation ID so UPSERT replaces the binding
	results, err := surrealdb.Query[[]models.DocumentRecord](ctx, c.db, `
		UPSERT type::record("document", $conv) SET
			conversation = type::record("conversation", $conv),
			vector_store_session_id = $session,
			filename = $filename,
			created_at = time::now()
	`, map[string]any{
		"conv":     conversationID,
		"session":  sessionID,
		"filename": filename,
	})
	if err != nil {
		return nil, fmt.Errorf("bind document: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("bind document: empty result")
	}

	if err := c.touchConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return &(*results)[0].Result[0], nil
}

// =============================================================================
// STATS
// =============================================================================

// Counts summarizes what a user has stored.
type Counts struct {
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
	Documents     int `json:"documents"`
}

// CountForUser returns record counts across a user's conversations.
func (c *Client) CountForUser(ctx context.Context, userID string) (Counts, error) {
	results, err := surrealdb.Query[[]Counts](ctx, c.db, `
		LET $convs = (SELECT VALUE id FROM conversation WHERE user_id = $user);
		RETURN [{
			conversations: array::len($convs),
			messages: count(SELECT id FROM message WHERE conversation IN $convs),
			documents: count(SELECT id FROM document WHERE conversation IN $convs)
		}];
	`, map[string]any{"user": userID})
	if err != nil {
		return Counts{}, fmt.Errorf("count for user: %w", err)
	}

	// Statement results: LET, RETURN
	if results == nil || len(*results) < 2 || len((*results)[1].Result) == 0 {
		return Counts{}, nil
	}
	return (*results)[1].Result[0], nil
}
