package commands

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"pdfrag/internal/config"
	"pdfrag/internal/logger"
)

// globals holds what every subcommand shares once flags are parsed.
type globals struct {
	configPath string
	logLevel   string
	cfg        *config.AppConfig
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd creates the pdfrag command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:   "pdfrag",
		Short: "Ask questions about PDF documents",
		Long: `pdfrag answers questions about a PDF using both its text and its images.

Pages are split into overlapping chunks, embedded into one vector space
together with the page images, and the best matches are sent to a
multimodal model along with the question.

Examples:
  pdfrag chat report.pdf
  pdfrag ask report.pdf "What does the chart on page 2 show?"
  pdfrag index --config config.yaml report.pdf
  pdfrag serve`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.load()
		},
	}

	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to YAML config file (default ./config.yaml or ~/.config/pdfrag/config.yaml)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	cmd.AddCommand(
		newChatCmd(g),
		newAskCmd(g),
		newIndexCmd(g),
		newServeCmd(g),
	)
	return cmd
}

func (g *globals) load() error {
	_ = godotenv.Load()

	var (
		cfg *config.AppConfig
		err error
	)
	if g.configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(g.configPath)
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	g.cfg = cfg
	return nil
}
