package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raphaelgruber/docchat/internal/service"
	"github.com/spf13/cobra"
)

var (
	studyConversation string
	studySession      string
)

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Take a multiple-choice quiz on a document",
	Long: `Generate a multiple-choice quiz from the document bound to a conversation
and answer it question by question. Type A-D and press enter; an empty
line skips a question, q quits.

Examples:
  docchat quiz --conversation 3f1c...
  docchat quiz --session 9a7b...`,
	Args: cobra.NoArgs,
	RunE: runQuiz,
}

var flashcardsCmd = &cobra.Command{
	Use:   "flashcards",
	Short: "Print flashcards for a document",
	Long: `Generate flashcards from the document bound to a conversation.

Examples:
  docchat flashcards --conversation 3f1c...
  docchat flashcards --session 9a7b...`,
	Args: cobra.NoArgs,
	RunE: runFlashcards,
}

func init() {
	for _, c := range []*cobra.Command{quizCmd, flashcardsCmd} {
		c.Flags().StringVarP(&studyConversation, "conversation", "c", "", "conversation whose document to use")
		c.Flags().StringVarP(&studySession, "session", "s", "", "backend session id (without a stored conversation)")
	}
}

// openStudy builds an app with the requested document active.
func openStudy(cmd *cobra.Command) (*app, error) {
	if studyConversation == "" && studySession == "" {
		return nil, errors.New("either --conversation or --session is required")
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{withHistory: studyConversation != ""})
	if err != nil {
		return nil, err
	}
	if err := a.activate(ctx, studyConversation, studySession); err != nil {
		a.close()
		return nil, fmt.Errorf("select conversation: %s", service.StatusText(err))
	}
	return a, nil
}

func runQuiz(cmd *cobra.Command, args []string) error {
	a, err := openStudy(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Println(defaultTheme.statusStyle().Render("Generating quiz..."))
	if _, err := a.quiz.Generate(cmd.Context()); err != nil {
		return errors.New(service.StatusText(err))
	}
	return playQuiz(a.quiz, os.Stdin, os.Stdout)
}

// playQuiz runs the question loop until the quiz ends or input is exhausted.
func playQuiz(q *service.Quiz, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	t := defaultTheme

	for {
		v := q.View()
		if v.Question == nil {
			break
		}

		fmt.Fprintf(out, "\n%s\n", t.statusStyle().Render(fmt.Sprintf("Question %d/%d", v.Index+1, v.Total)))
		fmt.Fprintln(out, v.Question.Question)
		for _, choice := range []string{"A", "B", "C", "D"} {
			fmt.Fprintf(out, "  %s) %s\n", choice, v.Question.Option(choice))
		}

		for {
			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				return finishQuiz(q, out)
			}
			line := strings.TrimSpace(scanner.Text())
			if strings.EqualFold(line, "q") {
				return finishQuiz(q, out)
			}
			if line == "" {
				break
			}
			if err := q.Answer(line); err != nil {
				fmt.Fprintln(out, t.errorStyle().Render("Choose A, B, C or D"))
				continue
			}
			correct, err := q.Submit()
			if err != nil {
				return err
			}
			if correct {
				fmt.Fprintln(out, t.completedStyle().Render("✓ Correct"))
			} else {
				answer := strings.ToUpper(v.Question.Correct)
				fmt.Fprintln(out, t.errorStyle().Render(fmt.Sprintf("✗ The answer is %s) %s", answer, v.Question.Option(answer))))
			}
			break
		}

		if !q.Next() {
			break
		}
	}
	return finishQuiz(q, out)
}

func finishQuiz(q *service.Quiz, out io.Writer) error {
	score, answered := q.Score()
	fmt.Fprintf(out, "\nScore: %d/%d\n", score, answered)
	return nil
}

func runFlashcards(cmd *cobra.Command, args []string) error {
	a, err := openStudy(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Println(defaultTheme.statusStyle().Render("Generating flashcards..."))
	cards, err := a.flashcards.Generate(cmd.Context())
	if err != nil {
		return errors.New(service.StatusText(err))
	}

	for i, c := range cards {
		fmt.Printf("\n%s %s\n", defaultTheme.statusStyle().Render(fmt.Sprintf("%d.", i+1)), c.Front)
		fmt.Printf("   %s\n", defaultTheme.hintStyle().Render(c.Back))
	}
	return nil
}
