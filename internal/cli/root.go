package cli

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pdfchat/internal/config"
	"pdfchat/internal/logger"
	"pdfchat/internal/session"
	"pdfchat/internal/tui"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "pdfchat [file.pdf]",
	Short: "Chat with a PDF document",
	Long: `pdfchat loads a PDF into a terminal chat and answers questions about it
with retrieval-augmented generation: the text is split into chunks, embedded,
indexed in memory, and the nearest chunks ground each answer.

Example usage:
  pdfchat                     # start empty, open a PDF with ctrl+o
  pdfchat report.pdf          # start with report.pdf loaded
  pdfchat --config my.yaml    # use a specific config file`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml, then ~/.config/pdfchat/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "write debug-level logs")
}

func run(cmd *cobra.Command, args []string) error {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, cfgPath, err := config.Resolve(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		cfg.Logging.Debug = true
	}

	log, err := logger.New(cfg.Logging.Debug, cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	log.Info("starting pdfchat",
		zap.String("config", cfgPath),
		zap.String("embedder", cfg.Embedder.Type),
		zap.String("llm", cfg.LLM.Type),
	)

	var notices []string
	if warning := credentialWarning(cfg); warning != "" {
		log.Warn(warning)
		notices = append(notices, warning)
	}

	svc, err := buildService(cfg, log)
	if err != nil {
		return err
	}
	ctrl := session.NewController(svc, session.Options{
		UploadPolicy:         session.UploadPolicy(cfg.Session.UploadPolicy),
		ClearHistoryOnUpload: *cfg.Session.ClearHistoryOnUpload,
	}, log)
	defer ctrl.Close()

	opts := tui.Options{Notices: notices, ShowSources: cfg.UI.ShowSources}
	if len(args) == 1 {
		opts.Preload = args[0]
	}
	program := tea.NewProgram(tui.New(ctrl, opts), tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("ui: %w", err)
	}
	return nil
}
