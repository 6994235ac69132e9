package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/raphaelgruber/docchat/internal/service"
	"github.com/spf13/cobra"
)

var (
	uploadConversation string
	uploadNoWait       bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a PDF and bind it to a conversation",
	Long: `Upload a PDF to the retrieval backend. The processed document is bound to
the given conversation, or to a new one the backend creates.

After a successful upload the conversation is renamed from the document's
content in the background; the command waits for that unless --no-wait
is set.

Examples:
  docchat upload report.pdf
  docchat upload report.pdf --conversation 3f1c...
  docchat upload slides.pdf --no-wait`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadConversation, "conversation", "c", "", "conversation to bind the document to")
	uploadCmd.Flags().BoolVar(&uploadNoWait, "no-wait", false, "do not wait for background naming")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	f, err := service.FileFromPath(args[0])
	if err != nil {
		return err
	}
	if err := service.Validate(f); err != nil {
		return errors.New(service.StatusText(err))
	}

	a, err := newApp(ctx, appOptions{withHistory: uploadConversation != ""})
	if err != nil {
		return err
	}
	defer a.close()

	if uploadConversation != "" {
		if err := a.activate(ctx, uploadConversation, ""); err != nil {
			return fmt.Errorf("select conversation: %s", service.StatusText(err))
		}
	}

	var uploadErr error
	if stdoutIsTerminal() {
		_, uploadErr = RunUploadProgress(ctx, a.uploader, f)
	} else {
		a.uploader.OnStatus(func(s string) { fmt.Fprintln(os.Stderr, s) })
		_, uploadErr = a.uploader.Upload(ctx, f)
	}
	if uploadErr != nil {
		return errors.New(service.StatusText(uploadErr))
	}

	st := a.store.Snapshot()
	fmt.Printf("Session:      %s\n", st.SessionID())
	if st.ConversationID != "" {
		fmt.Printf("Conversation: %s\n", st.ConversationID)
	}

	if uploadNoWait || a.tasks.Running() == 0 {
		return nil
	}
	fmt.Println(defaultTheme.hintStyle().Render("Naming conversation..."))
	a.tasks.Wait()
	for _, t := range a.tasks.ListTasks() {
		if t.Status == service.TaskStatusFailed {
			fmt.Fprintf(os.Stderr, "Warning: %s failed: %s\n", t.Kind, t.Error)
		}
	}
	return nil
}
