package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raphaelgruber/docchat/internal/metrics"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/notify"
	"github.com/raphaelgruber/docchat/internal/session"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/singleflight"
)

// DefaultTitle is the title given to a conversation created without one.
func DefaultTitle(now time.Time) string {
	return "New Conversation " + now.Format("1/2/2006")
}

// Directory lists, selects, creates, renames and deletes the current user's
// conversations and keeps the visible list fresh.
type Directory struct {
	history History
	api     ConversationAPI
	store   *session.Store
	events  *notify.Notifier
	metrics *metrics.Collector
	logger  *slog.Logger
	userID  string

	group     singleflight.Group
	selectSeq atomic.Uint64

	mu            sync.RWMutex
	conversations []models.Conversation
	lastErr       error
	onChange      func()

	bg          conc.WaitGroup
	bgCtx       context.Context
	bgCancel    context.CancelFunc
	unsubscribe func()
}

// NewDirectory creates a directory for userID.
func NewDirectory(
	history History,
	api ConversationAPI,
	store *session.Store,
	events *notify.Notifier,
	collector *metrics.Collector,
	logger *slog.Logger,
	userID string,
) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		history: history,
		api:     api,
		store:   store,
		events:  events,
		metrics: collector,
		logger:  logger,
		userID:  userID,
	}
}

// Start subscribes to ConversationsChanged; each event triggers a background refresh.
func (d *Directory) Start(ctx context.Context) {
	d.bgCtx, d.bgCancel = context.WithCancel(ctx)
	d.unsubscribe = d.events.Subscribe(notify.ConversationsChanged, func(notify.Event) {
		d.bg.Go(func() {
			if _, err := d.Refresh(d.bgCtx); err != nil {
				d.logger.Warn("conversation refresh failed", "error", err)
			}
		})
	})
}

// Close unsubscribes and waits for background refreshes.
func (d *Directory) Close() {
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
	if d.bgCancel != nil {
		d.bgCancel()
	}
	d.bg.Wait()
}

// OnChange registers fn to be called after the visible list or error indicator changed.
func (d *Directory) OnChange(fn func()) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

// Conversations returns the visible list, most recent first.
func (d *Directory) Conversations() []models.Conversation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.conversations)
}

// Err returns the error of the last failed refresh, or nil after a success.
func (d *Directory) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastErr
}

func (d *Directory) changed() {
	d.mu.RLock()
	fn := d.onChange
	d.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// List fetches userID's conversations in backend order. Concurrent calls for
// the same user share one request. On failure the visible list is unchanged
// and the error indicator is raised.
func (d *Directory) List(ctx context.Context, userID string) ([]models.Conversation, error) {
	v, err, shared := d.group.Do(userID, func() (any, error) {
		done := d.metrics.Track(metrics.OpList)
		list, err := d.history.ListConversations(ctx, userID)
		done(err)
		return list, err
	})

	if err != nil {
		d.mu.Lock()
		d.lastErr = fmt.Errorf("list conversations: %w", err)
		d.mu.Unlock()
		d.changed()
		return nil, err
	}

	list := v.([]models.Conversation)
	if userID == d.userID {
		d.mu.Lock()
		d.conversations = slices.Clone(list)
		d.lastErr = nil
		d.mu.Unlock()
		d.changed()
	}
	d.logger.Debug("conversations listed", "user_id", userID, "count", len(list), "shared", shared)
	return slices.Clone(list), nil
}

// Refresh reloads the current user's list.
func (d *Directory) Refresh(ctx context.Context) ([]models.Conversation, error) {
	return d.List(ctx, d.userID)
}

// Select makes conv the active conversation: its bound document (if any) and
// formatted history replace the store in one step. If the document lookup
// fails the store is unchanged. If the history fails to load the conversation
// is still activated with an empty log and the error is returned. When
// selections overlap, only the most recently started one is applied.
func (d *Directory) Select(ctx context.Context, conv models.Conversation) error {
	seq := d.selectSeq.Add(1)
	done := d.metrics.Track(metrics.OpSelect)

	record, err := d.history.GetDocumentByConversation(ctx, conv.ID)
	if err != nil {
		done(err)
		return fmt.Errorf("load conversation: %w", err)
	}
	doc := record.Handle()

	records, loadErr := d.history.ListMessages(ctx, conv.ID)
	var log []models.Message
	if loadErr == nil {
		log = models.FormatMessages(records)
	}

	current := func(session.State) bool { return d.selectSeq.Load() == seq }
	if !d.store.ReplaceIf(current, doc, conv.ID, log) {
		done(nil)
		d.logger.Debug("selection superseded", "conversation_id", conv.ID)
		return nil
	}
	done(loadErr)

	d.logger.Info("conversation selected",
		"conversation_id", conv.ID,
		"has_document", doc != nil,
		"messages", len(log))

	if loadErr != nil {
		return fmt.Errorf("load messages: %w", loadErr)
	}
	return nil
}

// Create creates a conversation and makes it active with no document and an
// empty log. An empty title gets DefaultTitle.
func (d *Directory) Create(ctx context.Context, title string) (*models.Conversation, error) {
	if title == "" {
		title = DefaultTitle(time.Now())
	}

	conv, err := d.api.CreateConversation(ctx, d.userID, title)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	d.selectSeq.Add(1)
	d.store.Replace(nil, conv.ID, nil)
	d.logger.Info("conversation created", "conversation_id", conv.ID, "title", conv.Title)
	d.events.Notify(notify.ConversationsChanged)
	return conv, nil
}

// Delete removes a conversation. If it was active the store is cleared.
func (d *Directory) Delete(ctx context.Context, id string) error {
	deleted, err := d.history.DeleteConversation(ctx, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}

	cleared := d.store.ResetIfActive(id)
	d.logger.Info("conversation deleted", "conversation_id", id, "found", deleted, "was_active", cleared)

	if _, err := d.Refresh(ctx); err != nil {
		d.logger.Warn("refresh after delete failed", "error", err)
	}
	return nil
}

// Rename sets a new title and refreshes the list.
func (d *Directory) Rename(ctx context.Context, id, title string) error {
	if title == "" {
		return fmt.Errorf("rename conversation: empty title")
	}
	if err := d.api.RenameConversation(ctx, id, title); err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}

	if _, err := d.Refresh(ctx); err != nil {
		d.logger.Warn("refresh after rename failed", "error", err)
	}
	return nil
}
