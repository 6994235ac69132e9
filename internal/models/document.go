package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// DocumentHandle references a PDF the retrieval backend has processed.
// It is always replaced as a whole.
type DocumentHandle struct {
	SessionID   string `json:"session_id"`
	DisplayName string `json:"display_name"`
}

// DocumentRecord binds a processed document to a conversation.
type DocumentRecord struct {
	ID                   surrealmodels.RecordID `json:"id"`
	Conversation         surrealmodels.RecordID `json:"conversation"`
	VectorStoreSessionID string                 `json:"vector_store_session_id"`
	Filename             string                 `json:"filename"`
	CreatedAt            time.Time              `json:"created_at"`
}

// Handle converts the binding into a DocumentHandle. A binding without a
// session id yields nil, matching a conversation whose upload never finished.
func (r *DocumentRecord) Handle() *DocumentHandle {
	if r == nil || r.VectorStoreSessionID == "" {
		return nil
	}
	return &DocumentHandle{SessionID: r.VectorStoreSessionID, DisplayName: r.Filename}
}
