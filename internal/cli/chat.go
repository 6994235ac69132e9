package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/textinput"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/service"
	"github.com/raphaelgruber/docchat/internal/session"
	"github.com/spf13/cobra"
)

var chatConversation string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat",
	Long: `Open a full-screen chat about your documents.

Type a question and press enter. Commands start with a slash:
  /upload <file.pdf>   upload and bind a PDF
  /new [title]         start an empty conversation
  /rename <title>      rename the active conversation
  /delete              delete the active conversation

Keys:
  tab      switch between chat, conversations, quiz and flashcards
  ctrl+r   retry the last failed question
  esc      quit

Examples:
  docchat chat
  docchat chat --conversation 3f1c...`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatConversation, "conversation", "c", "", "conversation to open")
}

func runChat(cmd *cobra.Command, args []string) error {
	if !stdoutIsTerminal() {
		return fmt.Errorf("chat needs an interactive terminal; use 'docchat ask' instead")
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, appOptions{withHistory: true})
	if err != nil {
		return err
	}
	defer a.close()

	// p.Send blocks until the program runs, so the initial selection
	// happens in Init rather than here.
	p := tea.NewProgram(newChatModel(ctx, a, chatConversation))

	// Panels push their changes into the update loop.
	unsubscribe := a.store.Subscribe(func(st session.State) { p.Send(storeMsg(st)) })
	defer unsubscribe()
	a.directory.OnChange(func() { p.Send(directoryMsg{}) })
	a.quiz.OnChange(func() { p.Send(studyMsg{}) })
	a.flashcards.OnChange(func() { p.Send(studyMsg{}) })
	a.uploader.OnStatus(func(s string) { p.Send(statusMsg(s)) })

	a.directory.Start(ctx)
	a.quiz.Start(ctx)
	a.flashcards.Start(ctx)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	return nil
}

// pane is the panel currently receiving keys.
type pane int

const (
	paneChat pane = iota
	paneConversations
	paneQuiz
	paneFlashcards
)

func (p pane) String() string {
	switch p {
	case paneConversations:
		return "Conversations"
	case paneQuiz:
		return "Quiz"
	case paneFlashcards:
		return "Flashcards"
	default:
		return "Chat"
	}
}

type (
	storeMsg     session.State
	directoryMsg struct{}
	studyMsg     struct{}
	statusMsg    string
	// opDoneMsg reports an asynchronous operation started from the UI.
	opDoneMsg struct {
		op  string
		err error
	}
)

// chatModel is the bubbletea model for the interactive chat.
type chatModel struct {
	ctx   context.Context
	app   *app
	theme Theme

	input    textinput.Model
	viewport viewport.Model
	width    int
	height   int

	openID   string
	pane     pane
	state    session.State
	cursor   int
	status   string
	quitting bool
}

func newChatModel(ctx context.Context, a *app, openID string) chatModel {
	in := textinput.New()
	in.Placeholder = "Ask a question about your document, or /upload <file.pdf>"
	in.Prompt = "> "
	in.CharLimit = 2000
	in.Focus()

	return chatModel{
		ctx:      ctx,
		app:      a,
		theme:    defaultTheme,
		input:    in,
		viewport: viewport.New(viewport.WithWidth(80), viewport.WithHeight(20)),
		state:    a.store.Snapshot(),
		openID:   openID,
	}
}

// Init loads the conversation list and opens the requested conversation.
func (m chatModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.run("list", func(ctx context.Context) error {
		_, err := m.app.directory.Refresh(ctx)
		return err
	})}
	if m.openID != "" {
		id := m.openID
		cmds = append(cmds, m.run("select", func(ctx context.Context) error {
			return m.app.directory.Select(ctx, models.Conversation{ID: id})
		}))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and returns the updated model.
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.SetWidth(max(msg.Width-4, 10))
		m.viewport.SetWidth(msg.Width)
		m.viewport.SetHeight(max(msg.Height-5, 3))
		m.refreshViewport()
		return m, nil

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "tab":
			m.pane = (m.pane + 1) % 4
			m.refreshViewport()
			return m, nil
		case "shift+tab":
			m.pane = (m.pane + 3) % 4
			m.refreshViewport()
			return m, nil
		case "ctrl+r":
			if m.app.chat.LastFailed() == "" {
				return m, nil
			}
			return m, m.run("retry", m.app.chat.Retry)
		}
		return m.handleKey(msg)

	case storeMsg:
		m.state = session.State(msg)
		m.refreshViewport()
		return m, nil

	case directoryMsg, studyMsg:
		m.refreshViewport()
		return m, nil

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case opDoneMsg:
		if msg.err != nil {
			m.status = service.ErrorLine(msg.err)
		} else if msg.op != "upload" && msg.op != "send" && msg.op != "retry" {
			m.status = ""
		}
		m.refreshViewport()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleKey routes a key press to the active pane.
func (m chatModel) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch m.pane {
	case paneConversations:
		return m.conversationsKey(msg)
	case paneQuiz:
		return m.quizKey(msg)
	case paneFlashcards:
		return m.flashcardsKey(msg)
	}

	switch msg.String() {
	case "enter":
		line := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if line == "" {
			return m, nil
		}
		if strings.HasPrefix(line, "/") {
			return m, m.command(line)
		}
		return m, m.run("send", func(ctx context.Context) error {
			return m.app.chat.Send(ctx, line)
		})
	case "pgup", "pgdown", "up", "down":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// command runs a slash command from the input line.
func (m chatModel) command(line string) tea.Cmd {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/upload":
		if arg == "" {
			return status("Usage: /upload <file.pdf>")
		}
		return m.run("upload", func(ctx context.Context) error {
			f, err := service.FileFromPath(arg)
			if err != nil {
				return err
			}
			_, err = m.app.uploader.Upload(ctx, f)
			return err
		})
	case "/new":
		return m.run("new", func(ctx context.Context) error {
			_, err := m.app.directory.Create(ctx, arg)
			return err
		})
	case "/rename":
		id := m.state.ConversationID
		if id == "" {
			return status("No active conversation")
		}
		return m.run("rename", func(ctx context.Context) error {
			return m.app.directory.Rename(ctx, id, arg)
		})
	case "/delete":
		id := m.state.ConversationID
		if id == "" {
			return status("No active conversation")
		}
		return m.run("delete", func(ctx context.Context) error {
			return m.app.directory.Delete(ctx, id)
		})
	}
	return status("Unknown command " + name)
}

func (m chatModel) conversationsKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	list := m.app.directory.Conversations()
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(list)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor < len(list) {
			conv := list[m.cursor]
			m.pane = paneChat
			return m, m.run("select", func(ctx context.Context) error {
				return m.app.directory.Select(ctx, conv)
			})
		}
	case "n":
		m.pane = paneChat
		return m, m.run("new", func(ctx context.Context) error {
			_, err := m.app.directory.Create(ctx, "")
			return err
		})
	case "d", "delete":
		if m.cursor < len(list) {
			id := list[m.cursor].ID
			return m, m.run("delete", func(ctx context.Context) error {
				return m.app.directory.Delete(ctx, id)
			})
		}
	case "r":
		return m, m.run("list", func(ctx context.Context) error {
			_, err := m.app.directory.Refresh(ctx)
			return err
		})
	}
	m.refreshViewport()
	return m, nil
}

func (m chatModel) quizKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	q := m.app.quiz
	switch key := msg.String(); key {
	case "a", "b", "c", "d", "A", "B", "C", "D":
		if err := q.Answer(key); err == nil {
			_, _ = q.Submit()
		}
	case "enter", "right", "l":
		q.Next()
	case "g":
		return m, m.run("quiz", func(ctx context.Context) error {
			_, err := q.Generate(ctx)
			return err
		})
	}
	m.refreshViewport()
	return m, nil
}

func (m chatModel) flashcardsKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	f := m.app.flashcards
	switch msg.String() {
	case "space", " ", "enter":
		f.Flip()
	case "right", "l":
		f.Next()
	case "left", "h":
		f.Prev()
	case "g":
		return m, m.run("flashcards", func(ctx context.Context) error {
			_, err := f.Generate(ctx)
			return err
		})
	}
	m.refreshViewport()
	return m, nil
}

// run executes fn off the update loop and reports the outcome.
func (m chatModel) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func status(s string) tea.Cmd {
	return func() tea.Msg { return statusMsg(s) }
}

// refreshViewport re-renders the active pane into the viewport.
func (m *chatModel) refreshViewport() {
	var content string
	switch m.pane {
	case paneConversations:
		content = m.conversationsView()
	case paneQuiz:
		content = m.quizView()
	case paneFlashcards:
		content = m.flashcardsView()
	default:
		content = m.messagesView()
	}
	m.viewport.SetContent(content)
	if m.pane == paneChat {
		m.viewport.GotoBottom()
	}
}

func (m chatModel) messagesView() string {
	if len(m.state.Messages) == 0 {
		if m.state.Document == nil {
			return m.theme.hintStyle().Render("Upload a PDF with /upload <file.pdf> to get started.")
		}
		return m.theme.hintStyle().Render("Ask a question about " + m.state.Document.DisplayName + ".")
	}

	var b strings.Builder
	last := len(m.state.Messages) - 1
	for i, msg := range m.state.Messages {
		b.WriteString(m.theme.messageHeader(msg))
		b.WriteString("\n")
		body := msg.Content
		if msg.Author == models.AuthorSystem {
			body = m.theme.hintStyle().Render(body)
		}
		b.WriteString(lipgloss.NewStyle().Width(max(m.width-2, 20)).Render(body))
		b.WriteString("\n")
		// Sources belong to the final answer only.
		if i == last && !m.state.Responding {
			b.WriteString(m.theme.renderSources(msg.Sources))
		}
		b.WriteString("\n")
	}
	if m.state.Responding && m.state.Messages[last].Author == models.AuthorUser {
		b.WriteString(m.theme.hintStyle().Render("Thinking..."))
	}
	return b.String()
}

func (m chatModel) conversationsView() string {
	list := m.app.directory.Conversations()
	var b strings.Builder
	if err := m.app.directory.Err(); err != nil {
		b.WriteString(m.theme.errorStyle().Render("Could not load conversations: "+service.StatusText(err)) + "\n\n")
	}
	if len(list) == 0 {
		b.WriteString(m.theme.hintStyle().Render("No conversations yet. Press n to start one."))
		return b.String()
	}
	for i, c := range list {
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		line := marker + c.Title
		if c.ID == m.state.ConversationID {
			line = m.theme.statusStyle().Render(line + " (active)")
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + m.theme.hintStyle().Render("enter open · n new · d delete · r refresh"))
	return b.String()
}

func (m chatModel) quizView() string {
	v := m.app.quiz.View()
	switch {
	case v.Loading:
		return m.theme.statusStyle().Render("Generating quiz...")
	case v.Err != nil:
		return m.theme.errorStyle().Render(service.ErrorLine(v.Err)) + "\n" + m.theme.hintStyle().Render("g to try again")
	case v.Finished:
		return m.theme.completedStyle().Render(fmt.Sprintf("Score: %d/%d", v.Score, v.Answered)) + "\n" + m.theme.hintStyle().Render("g for a new quiz")
	case v.Question == nil:
		return m.theme.hintStyle().Render("Upload a PDF to generate a quiz.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\n", m.theme.statusStyle().Render(fmt.Sprintf("Question %d/%d", v.Index+1, v.Total)), v.Question.Question)
	for _, choice := range []string{"A", "B", "C", "D"} {
		line := fmt.Sprintf("  %s) %s", choice, v.Question.Option(choice))
		switch {
		case v.Submitted && strings.EqualFold(choice, v.Question.Correct):
			line = m.theme.completedStyle().Render(line)
		case v.Submitted && choice == v.Selected:
			line = m.theme.errorStyle().Render(line)
		}
		b.WriteString(line + "\n")
	}
	fmt.Fprintf(&b, "\nScore: %d/%d\n", v.Score, v.Answered)
	b.WriteString(m.theme.hintStyle().Render("a-d answer · enter next · g regenerate"))
	return b.String()
}

func (m chatModel) flashcardsView() string {
	v := m.app.flashcards.View()
	switch {
	case v.Loading:
		return m.theme.statusStyle().Render("Generating flashcards...")
	case v.Err != nil:
		return m.theme.errorStyle().Render(service.ErrorLine(v.Err)) + "\n" + m.theme.hintStyle().Render("g to try again")
	case v.Card == nil:
		return m.theme.hintStyle().Render("Upload a PDF to generate flashcards.")
	}

	side, text := "Front", v.Card.Front
	if v.Flipped {
		side, text = "Back", v.Card.Back
	}
	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.theme.Status).
		Padding(1, 2).
		Width(min(max(m.width-4, 20), 70)).
		Render(text)
	return fmt.Sprintf("%s\n%s\n%s",
		m.theme.statusStyle().Render(fmt.Sprintf("Card %d/%d · %s", v.Index+1, v.Total, side)),
		card,
		m.theme.hintStyle().Render("space flip · ←/→ move · g regenerate"))
}

// View renders the full screen.
func (m chatModel) View() tea.View {
	if m.quitting {
		return tea.NewView("")
	}

	title := "DocChat"
	if m.state.Document != nil {
		title += " · " + m.state.Document.DisplayName
	}
	header := m.theme.completedStyle().Render(title) + "  " + m.theme.hintStyle().Render("["+m.pane.String()+"]")

	var b strings.Builder
	b.WriteString(header + "\n")
	b.WriteString(m.viewport.View() + "\n")
	if m.pane == paneChat {
		b.WriteString(m.input.View() + "\n")
	} else {
		b.WriteString("\n")
	}
	b.WriteString(m.footer())

	v := tea.NewView(b.String())
	v.AltScreen = true
	return v
}

// footer shows the status line, retry hint and client timings.
func (m chatModel) footer() string {
	var parts []string
	if m.status != "" {
		style := m.theme.statusStyle()
		if strings.HasPrefix(m.status, "Error") {
			style = m.theme.errorStyle()
		}
		parts = append(parts, style.Render(m.status))
	}
	if m.app.chat.LastFailed() != "" {
		parts = append(parts, m.theme.hintStyle().Render("ctrl+r retry"))
	}
	if n := m.app.tasks.Running(); n > 0 {
		parts = append(parts, m.theme.hintStyle().Render(fmt.Sprintf("%d background task(s)", n)))
	}
	if s := collector.Snapshot().Chat; s != nil && s.Count > 0 {
		avg := time.Duration(s.AvgTimeMs * float64(time.Millisecond)).Round(time.Millisecond)
		parts = append(parts, m.theme.hintStyle().Render("avg answer "+avg.String()))
	}
	return strings.Join(parts, "  ")
}
