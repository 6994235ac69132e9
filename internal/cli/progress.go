package cli

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/service"
)

const pollInterval = 100 * time.Millisecond

// countingReader tracks how many bytes the upload has consumed.
type countingReader struct {
	io.ReadCloser
	n *atomic.Int64
}

func (r countingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.n.Add(int64(n))
	return n, err
}

// withCounter returns a copy of f whose reads are counted into n.
func withCounter(f service.File, n *atomic.Int64) service.File {
	open := f.Open
	f.Open = func() (io.ReadCloser, error) {
		rc, err := open()
		if err != nil {
			return nil, err
		}
		return countingReader{ReadCloser: rc, n: n}, nil
	}
	return f
}

// tickMsg triggers sampling the byte counter
type tickMsg time.Time

// uploadDoneMsg carries the upload outcome
type uploadDoneMsg struct {
	handle *models.DocumentHandle
	err    error
}

// progressModel is the bubbletea model for a running upload.
type progressModel struct {
	uploader *service.Uploader
	file     service.File
	sent     *atomic.Int64
	ctx      context.Context
	cancel   context.CancelFunc
	progress progress.Model
	theme    Theme
	handle   *models.DocumentHandle
	done     bool
	quitting bool
	err      error
}

// newProgressModel creates a new progress model.
func newProgressModel(ctx context.Context, u *service.Uploader, f service.File) progressModel {
	// Create progress bar with color blend
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	sent := new(atomic.Int64)
	ctx, cancel := context.WithCancel(ctx)
	return progressModel{
		uploader: u,
		file:     withCounter(f, sent),
		sent:     sent,
		ctx:      ctx,
		cancel:   cancel,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init starts the upload and the sampling ticker.
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		m.runUpload(),
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		}

	case tickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case uploadDoneMsg:
		m.done = true
		m.handle = msg.handle
		m.err = msg.err
		return m, tea.Quit

	case progress.FrameMsg:
		// Update progress bar animation
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	var pct float64
	if m.file.Size > 0 {
		pct = float64(m.sent.Load()) / float64(m.file.Size)
	}

	status := m.theme.statusStyle().Render("[" + m.uploader.Status() + "]")
	if pct >= 1 {
		// Everything is sent; the backend is extracting and chunking.
		status = m.theme.statusStyle().Render("[Processing document...]")
	}
	progressBar := m.progress.ViewAs(min(pct, 1))
	counts := fmt.Sprintf("%s / %s", formatBytes(m.sent.Load()), formatBytes(m.file.Size))
	hint := m.theme.hintStyle().Render("Press Ctrl+C to cancel")

	return fmt.Sprintf("%s %s %s\n%s\n", status, progressBar, counts, hint)
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render("\nUpload cancelled.\n")
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s\n", service.ErrorLine(m.err)))
	}
	return m.theme.completedStyle().Render("✓ "+m.uploader.Status()) + "\n"
}

// runUpload performs the upload off the update loop.
func (m progressModel) runUpload() tea.Cmd {
	return func() tea.Msg {
		handle, err := m.uploader.Upload(m.ctx, m.file)
		return uploadDoneMsg{handle: handle, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunUploadProgress uploads f while showing an interactive progress bar.
// Returns the bound document, or an error if the upload failed or was cancelled.
func RunUploadProgress(ctx context.Context, u *service.Uploader, f service.File) (*models.DocumentHandle, error) {
	model := newProgressModel(ctx, u, f)
	defer model.cancel()
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("progress UI error: %w", err)
	}

	m, ok := finalModel.(progressModel)
	if !ok {
		return nil, nil
	}
	if m.quitting {
		return nil, context.Canceled
	}
	return m.handle, m.err
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
