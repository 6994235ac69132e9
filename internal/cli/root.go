// Package cli provides the command-line interface for docchat.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/config"
	"github.com/raphaelgruber/docchat/internal/db"
	"github.com/raphaelgruber/docchat/internal/metrics"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/notify"
	"github.com/raphaelgruber/docchat/internal/reveal"
	"github.com/raphaelgruber/docchat/internal/service"
	"github.com/raphaelgruber/docchat/internal/session"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	cfg       config.Config
	logger    *slog.Logger
	closeLog  func() error
	dbClient  *db.Client
	collector = metrics.NewCollector()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Ask questions about PDF documents",
	Long: `DocChat uploads a PDF to a retrieval backend and lets you chat about it.

Conversations, their messages and the bound document are persisted in
SurrealDB so a thread can be resumed later. Quizzes and flashcards are
generated from the active document.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		output := config.OutputLine
		if cmd.Name() == "chat" {
			output = config.OutputFullScreen
		}
		logger, closeLog = config.NewLogger(config.LoggerOptions{
			File:   cfg.LogFile,
			Level:  cfg.LogLevel,
			Output: output,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
			dbClient = nil
		}
		if closeLog != nil {
			_ = closeLog()
		}
	},
}

// connectDB opens the SurrealDB connection and ensures the schema exists.
// Commands that read or delete history call it; upload and ask work without it.
func connectDB(ctx context.Context) (*db.Client, error) {
	if dbClient != nil {
		return dbClient, nil
	}

	dbCfg := db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}

	c, err := db.NewClient(ctx, dbCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := c.InitSchema(ctx); err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	dbClient = c
	return c, nil
}

// app wires one session store and the services that share it.
type app struct {
	api      *client.Client
	store    *session.Store
	events   *notify.Notifier
	renderer *reveal.Renderer
	tasks    *service.TaskRunner

	uploader   *service.Uploader
	chat       *service.Chat
	quiz       *service.Quiz
	flashcards *service.Flashcards

	// directory is nil when no database is connected.
	directory *service.Directory
}

// appOptions tunes newApp for the calling command.
type appOptions struct {
	// withHistory connects SurrealDB for the conversation directory.
	withHistory bool
	// revealInterval overrides the configured per-character delay.
	revealInterval time.Duration
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	a := &app{
		api:    client.New(cfg.BackendURL, logger),
		store:  session.NewStore(),
		events: notify.New(logger),
		tasks:  service.NewTaskRunner(logger),
	}

	interval := cfg.RevealInterval
	if opts.revealInterval > 0 {
		interval = opts.revealInterval
	}
	a.renderer = reveal.New(a.store, interval, logger)

	var history service.History
	if opts.withHistory {
		c, err := connectDB(ctx)
		if err != nil {
			a.tasks.Close()
			return nil, err
		}
		history = c
		a.directory = service.NewDirectory(c, a.api, a.store, a.events, collector, logger, cfg.UserID)
	}

	a.uploader = service.NewUploader(a.api, history, a.store, a.events, a.tasks, collector, logger, service.UploadOptions{
		Timeout:       cfg.UploadTimeout,
		AutoNameDelay: cfg.AutoNameDelay,
	})
	a.chat = service.NewChat(a.api, a.api, a.store, a.renderer, a.events, collector, logger, cfg.UserID)
	a.quiz = service.NewQuiz(a.api, a.store, collector, logger)
	a.flashcards = service.NewFlashcards(a.api, a.store, collector, logger, cfg.FlashcardTimeout)
	return a, nil
}

// close stops reveals and waits for background tasks.
func (a *app) close() {
	a.chat.Stop()
	a.quiz.Close()
	a.flashcards.Close()
	if a.directory != nil {
		a.directory.Close()
	}
	a.tasks.Close()
}

// activate makes a conversation or a bare backend session active before a
// one-shot command runs.
func (a *app) activate(ctx context.Context, conversationID, sessionID string) error {
	switch {
	case conversationID != "":
		if a.directory == nil {
			return fmt.Errorf("selecting a conversation requires the database")
		}
		return a.directory.Select(ctx, models.Conversation{ID: conversationID})
	case sessionID != "":
		a.store.SetDocumentHandle(&models.DocumentHandle{SessionID: sessionID})
	}
	return nil
}

// stdoutIsTerminal reports whether output goes to an interactive terminal.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(quizCmd)
	rootCmd.AddCommand(flashcardsCmd)
	rootCmd.AddCommand(statsCmd)
}
