package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/raphaelgruber/docchat/internal/service"
	"github.com/spf13/cobra"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage conversations",
	Long: `List, create, rename and delete persisted conversations.

Subcommands:
  list    List conversations, most recent first (default)
  new     Create an empty conversation
  rename  Rename a conversation
  rm      Delete a conversation with its messages and document

Examples:
  docchat conversations
  docchat conversations new "Budget review"
  docchat conversations rename 3f1c... "Budget 2025"
  docchat conversations rm 3f1c...`,
	RunE: runConversationsList,
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE:  runConversationsList,
}

var conversationsNewCmd = &cobra.Command{
	Use:   "new [title]",
	Short: "Create an empty conversation",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConversationsNew,
}

var conversationsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runConversationsRename,
}

var conversationsRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a conversation",
	Args:    cobra.ExactArgs(1),
	RunE:    runConversationsRm,
}

func init() {
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsNewCmd)
	conversationsCmd.AddCommand(conversationsRenameCmd)
	conversationsCmd.AddCommand(conversationsRmCmd)
}

func runConversationsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{withHistory: true})
	if err != nil {
		return err
	}
	defer a.close()

	list, err := a.directory.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No conversations yet. Upload a PDF to start one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUPDATED")
	for _, c := range list {
		updated := ""
		if !c.UpdatedAt.IsZero() {
			updated = c.UpdatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Title, updated)
	}
	return w.Flush()
}

func runConversationsNew(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{withHistory: true})
	if err != nil {
		return err
	}
	defer a.close()

	title := ""
	if len(args) == 1 {
		title = args[0]
	}
	conv, err := a.directory.Create(ctx, title)
	if err != nil {
		return errors.New(service.StatusText(err))
	}
	fmt.Printf("Created %s (%s)\n", conv.ID, conv.Title)
	return nil
}

func runConversationsRename(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{withHistory: true})
	if err != nil {
		return err
	}
	defer a.close()

	title := strings.Join(args[1:], " ")
	if err := a.directory.Rename(ctx, args[0], title); err != nil {
		return errors.New(service.StatusText(err))
	}
	fmt.Printf("Renamed %s to %q\n", args[0], title)
	return nil
}

func runConversationsRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{withHistory: true})
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.directory.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
