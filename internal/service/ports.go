package service

import (
	"context"
	"io"

	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/models"
)

// UploadAPI is the backend surface the Uploader needs.
type UploadAPI interface {
	Upload(ctx context.Context, filename string, content io.Reader, conversationID string) (*client.UploadResult, error)
	GenerateConversationName(ctx context.Context, sessionID, conversationID string) (string, error)
	RenameConversation(ctx context.Context, conversationID, title string) error
}

// ChatAPI answers questions about an uploaded document.
type ChatAPI interface {
	Chat(ctx context.Context, in client.ChatRequest) (*client.ChatResponse, error)
}

// ConversationAPI creates and renames conversations.
type ConversationAPI interface {
	CreateConversation(ctx context.Context, userID, title string) (*models.Conversation, error)
	RenameConversation(ctx context.Context, conversationID, title string) error
}

// QuizAPI generates quizzes.
type QuizAPI interface {
	GenerateQuiz(ctx context.Context, sessionID string) ([]models.QuizQuestion, error)
}

// FlashcardAPI generates flashcards.
type FlashcardAPI interface {
	GenerateFlashcards(ctx context.Context, sessionID string) ([]models.Flashcard, error)
}

// History reads and deletes persisted conversations.
type History interface {
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	GetDocumentByConversation(ctx context.Context, conversationID string) (*models.DocumentRecord, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.MessageRecord, error)
	DeleteConversation(ctx context.Context, conversationID string) (bool, error)
}
