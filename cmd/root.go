// Package cmd wires configuration, storage and the remote clients into the
// terminal UI.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"copilotos/internal/config"
	"copilotos/internal/db"
	"copilotos/internal/logging"
	"copilotos/internal/saptiva"
	"copilotos/internal/tools"
	"copilotos/internal/ui"
	"copilotos/internal/workspace"
)

var (
	modelFlag    string
	baseURLFlag  string
	apiURLFlag   string
	dbFlag       string
	toolsFlag    string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "copilotos",
	Short: "Chat with Saptiva models and review documents from the terminal",
	Long: `copilotos is a terminal chat client for Saptiva models.

Upload a document with /upload <path>, then ask for a summary or a review
("resume el documento", "review the file"). Chats are kept in a local
SQLite history.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "model to chat with")
	rootCmd.Flags().StringVar(&baseURLFlag, "base-url", "", "OpenAI-compatible model gateway URL")
	rootCmd.Flags().StringVar(&apiURLFlag, "api-url", "", "Copilotos API URL for uploads and reviews")
	rootCmd.Flags().StringVar(&dbFlag, "db", "", "chat history database path")
	rootCmd.Flags().StringVar(&toolsFlag, "tools-file", "", "tool visibility YAML file")
	rootCmd.Flags().StringVar(&logLevelFlag, "log-level", "", "log level (debug, info, warn, error)")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.Model = modelFlag
	}
	if flags.Changed("base-url") {
		cfg.Saptiva.BaseURL = baseURLFlag
	}
	if flags.Changed("api-url") {
		cfg.API.URL = apiURLFlag
	}
	if flags.Changed("db") {
		cfg.DBPath = dbFlag
	}
	if flags.Changed("tools-file") {
		cfg.ToolsFile = toolsFlag
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevelFlag
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, logFile, err := logging.Open(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer closeQuietly(logFile)

	logger.Info().
		Str("model", cfg.Model).
		Str("base_url", cfg.Saptiva.BaseURL).
		Str("api_url", cfg.API.URL).
		Msg("starting")

	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer closeQuietly(conn)

	vis, err := tools.NewVisibilitySource(cfg.ToolsFile).Load()
	if err != nil {
		// A broken visibility file should not keep the chat from starting.
		logger.Warn().Err(err).Str("path", cfg.ToolsFile).Msg("tool visibility not loaded, showing all tools")
		vis = tools.AllVisible()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	chat := saptiva.NewChatClient(saptiva.ChatConfig{
		APIKey:     cfg.Saptiva.APIKey,
		BaseURL:    cfg.Saptiva.BaseURL,
		MaxRetries: 2,
		Inspector:  workspace.NewInspector(cwd),
		Logger:     logger,
	})
	api := saptiva.NewAPIClient(saptiva.APIConfig{
		BaseURL: cfg.API.URL,
		Token:   cfg.API.Token,
		Logger:  logger,
	})

	p := ui.NewProgram(ui.Deps{
		Sender:     chat,
		Reviewer:   api,
		Uploader:   api,
		DB:         conn,
		Visibility: vis,
		Model:      cfg.Model,
		Logger:     logger,
		Context:    ctx,
	})

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	finalModel, err := p.Run()
	if m, ok := finalModel.(*ui.Model); ok {
		m.Controller().Stop()
	}
	if err != nil {
		logger.Error().Err(err).Msg("ui exited with error")
		return fmt.Errorf("ui: %w", err)
	}
	logger.Info().Msg("bye")
	return nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
