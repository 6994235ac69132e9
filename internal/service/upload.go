package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/metrics"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/notify"
	"github.com/raphaelgruber/docchat/internal/session"
)

// MaxUploadSize is the largest PDF accepted for upload.
const MaxUploadSize = 50 << 20

// maxAutoNameLen bounds generated conversation titles.
const maxAutoNameLen = 60

var errEmptyName = errors.New("generated name is empty")

// File is a PDF selected for upload.
type File struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// FileFromPath describes a file on disk.
func FileFromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	return File{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// UploadOptions configures the Uploader.
type UploadOptions struct {
	// Timeout aborts the upload request (default 120s)
	Timeout time.Duration
	// AutoNameDelay is waited before requesting a generated title (default 2s)
	AutoNameDelay time.Duration
}

// Uploader validates a PDF, submits it to the backend and binds the result
// to the session store.
type Uploader struct {
	api     UploadAPI
	history History
	store   *session.Store
	events  *notify.Notifier
	tasks   *TaskRunner
	metrics *metrics.Collector
	logger  *slog.Logger
	opts    UploadOptions

	mu       sync.Mutex
	status   string
	onStatus func(string)
}

// NewUploader creates an uploader. history may be nil, in which case
// persisted messages are not reloaded after binding.
func NewUploader(
	api UploadAPI,
	history History,
	store *session.Store,
	events *notify.Notifier,
	tasks *TaskRunner,
	collector *metrics.Collector,
	logger *slog.Logger,
	opts UploadOptions,
) *Uploader {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.AutoNameDelay <= 0 {
		opts.AutoNameDelay = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		api:     api,
		history: history,
		store:   store,
		events:  events,
		tasks:   tasks,
		metrics: collector,
		logger:  logger,
		opts:    opts,
	}
}

// Status returns the last user-visible upload status line.
func (u *Uploader) Status() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// OnStatus registers fn to be called whenever the status line changes.
func (u *Uploader) OnStatus(fn func(string)) {
	u.mu.Lock()
	u.onStatus = fn
	u.mu.Unlock()
}

func (u *Uploader) setStatus(s string) {
	u.mu.Lock()
	u.status = s
	fn := u.onStatus
	u.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Validate checks name and size without touching the network.
func Validate(f File) error {
	if !strings.HasSuffix(strings.ToLower(f.Name), ".pdf") {
		return client.Validation("upload", "Please upload a PDF file")
	}
	if f.Size > MaxUploadSize {
		return client.Validation("upload", fmt.Sprintf("File is too large (%.1f MB). The limit is 50 MB.", float64(f.Size)/(1<<20)))
	}
	if f.Open == nil {
		return client.Validation("upload", "No file selected")
	}
	return nil
}

// Upload submits f and binds the processed document to the store. The store
// is unchanged on every failure path.
func (u *Uploader) Upload(ctx context.Context, f File) (*models.DocumentHandle, error) {
	if err := Validate(f); err != nil {
		u.setStatus(ErrorLine(err))
		return nil, err
	}

	u.setStatus("Uploading PDF...")
	conversationID := u.store.Snapshot().ConversationID
	start := time.Now()

	res, err := u.submit(ctx, f, conversationID)
	if err != nil {
		u.metrics.Record(metrics.OpUpload, time.Since(start), err)
		u.logger.Warn("upload failed", "file", f.Name, "size", f.Size, "error", err)
		u.setStatus(ErrorLine(err))
		return nil, err
	}
	u.metrics.RecordUpload(time.Since(start), f.Size, res.ChunksCount)

	handle := models.DocumentHandle{SessionID: res.SessionID, DisplayName: f.Name}
	announcement := models.NewMessage(models.AuthorSystem,
		fmt.Sprintf("PDF %q uploaded and processed successfully (%d chunks). You can now ask questions about the document.", f.Name, res.ChunksCount),
		time.Now())
	u.store.BindDocument(handle, res.ConversationID, []models.Message{announcement})

	u.logger.Info("document bound",
		"file", f.Name,
		"session_id", res.SessionID,
		"chunks", res.ChunksCount,
		"conversation_id", res.ConversationID)
	u.setStatus(fmt.Sprintf("PDF uploaded successfully! %d chunks created.", res.ChunksCount))

	u.events.Notify(notify.DocumentChanged)
	u.events.Notify(notify.ConversationsChanged)

	bound := res.ConversationID
	if bound == "" {
		bound = conversationID
	}
	if bound != "" {
		u.followUp(handle.SessionID, bound)
	}

	return &handle, nil
}

func (u *Uploader) submit(ctx context.Context, f File, conversationID string) (*client.UploadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	defer cancel()

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	return u.api.Upload(ctx, f.Name, rc, conversationID)
}

// followUp schedules history reconciliation and auto-naming.
func (u *Uploader) followUp(sessionID, conversationID string) {
	if u.tasks == nil {
		return
	}

	if u.history != nil {
		u.tasks.Go("reconcile", conversationID, func(ctx context.Context) error {
			return u.reconcile(ctx, sessionID, conversationID)
		})
	}

	u.tasks.Go("autoname", conversationID, func(ctx context.Context) error {
		return u.autoName(ctx, sessionID, conversationID)
	})
}

// reconcile replaces the log with persisted history when there is any.
func (u *Uploader) reconcile(ctx context.Context, sessionID, conversationID string) error {
	records, err := u.history.ListMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("reload messages: %w", err)
	}
	if len(records) == 0 {
		return nil
	}
	if !u.store.ReplaceMessagesFor(conversationID, sessionID, models.FormatMessages(records)) {
		u.logger.Debug("skipped history reload, session moved on", "conversation_id", conversationID)
	}
	return nil
}

// autoName waits for the backend to settle, then renames the conversation.
func (u *Uploader) autoName(ctx context.Context, sessionID, conversationID string) error {
	timer := time.NewTimer(u.opts.AutoNameDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	done := u.metrics.Track(metrics.OpAutoName)
	name, err := u.api.GenerateConversationName(ctx, sessionID, conversationID)
	if err != nil {
		done(err)
		return fmt.Errorf("generate name: %w", err)
	}

	name = models.TruncateTitle(name, maxAutoNameLen)
	if name == "" {
		done(errEmptyName)
		return errEmptyName
	}
	if err := u.api.RenameConversation(ctx, conversationID, name); err != nil {
		done(err)
		return fmt.Errorf("rename: %w", err)
	}
	done(nil)

	u.logger.Info("conversation auto-named", "conversation_id", conversationID, "name", name)
	u.events.Notify(notify.ConversationsChanged)
	return nil
}
