package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/service"
	"github.com/raphaelgruber/docchat/internal/session"
	"github.com/spf13/cobra"
)

var (
	askConversation string
	askSession      string
	askHistory      bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about an uploaded document",
	Long: `Ask a question about the document bound to a conversation, or about a
backend session directly.

The answer is revealed character by character on a terminal and printed
at once when output is redirected.

Examples:
  docchat ask "What is the conclusion?" --conversation 3f1c...
  docchat ask "Summarize section 2" --session 9a7b...
  docchat ask "And the budget?" -c 3f1c... --history`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askConversation, "conversation", "c", "", "conversation to ask in")
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "backend session id (without a stored conversation)")
	askCmd.Flags().BoolVar(&askHistory, "history", false, "print the conversation so far before asking")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if askConversation == "" && askSession == "" {
		return errors.New("either --conversation or --session is required")
	}

	tty := stdoutIsTerminal()
	opts := appOptions{withHistory: askConversation != ""}
	if !tty {
		opts.revealInterval = time.Microsecond
	}
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.activate(ctx, askConversation, askSession); err != nil {
		return fmt.Errorf("select conversation: %s", service.StatusText(err))
	}
	if askHistory {
		for _, m := range a.store.Snapshot().Messages {
			defaultTheme.printMessage(os.Stdout, m)
		}
	}

	before := len(a.store.Snapshot().Messages)
	if tty {
		stop := streamReply(a.store, os.Stdout, before)
		defer stop()
	}

	if err := a.chat.Send(ctx, args[0]); err != nil {
		return errors.New(service.StatusText(err))
	}
	if err := a.chat.Wait(ctx); err != nil {
		return fmt.Errorf("wait for answer: %w", err)
	}

	reply, ok := a.store.Snapshot().LastMessage()
	if !ok || reply.Author != models.AuthorAssistant {
		return nil
	}
	if tty {
		fmt.Println()
		fmt.Print(defaultTheme.renderSources(reply.Sources))
		return nil
	}
	defaultTheme.printMessage(os.Stdout, reply)
	return nil
}

// streamReply prints the assistant reply appended after the first skip
// messages as it is revealed. The returned func unsubscribes.
func streamReply(store *session.Store, w io.Writer, skip int) func() {
	var (
		mu      sync.Mutex
		id      string
		printed int
	)
	return store.Subscribe(func(st session.State) {
		if len(st.Messages) <= skip {
			return
		}
		last := st.Messages[len(st.Messages)-1]
		if last.Author != models.AuthorAssistant {
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if last.ID != id {
			id, printed = last.ID, 0
			fmt.Fprintln(w, defaultTheme.messageHeader(last))
		}
		if len(last.Content) > printed {
			fmt.Fprint(w, last.Content[printed:])
			printed = len(last.Content)
		}
	})
}
