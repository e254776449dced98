package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"adfbridge/internal/config"
	"adfbridge/internal/logging"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	noJournal  bool

	logger *zap.Logger
	cfg    *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "adfbridge",
	Short: "Update Jira issues with rich Atlassian Document Format content",
	Long: `adfbridge builds Atlassian Document Format (ADF) documents from Markdown
and applies them to Jira issues, either through an MCP protocol server
(mcp-atlassian) or directly through the Jira Cloud REST API.

Write commands act on a single issue. Submissions are recorded in a local
journal; see "adfbridge history".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if workspace == "" {
			if workspace, err = os.Getwd(); err != nil {
				return fmt.Errorf("failed to resolve workspace: %w", err)
			}
		}
		fileLogErr := logging.Initialize(workspace)

		cfg, err = config.Load(workspacePath(configPath))
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		if logger, err = buildLogger(cfg.Logging); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if fileLogErr != nil {
			logger.Warn("file logging unavailable", zap.Error(fileLogErr))
		}
		logging.Boot("command %s in %s", cmd.CommandPath(), workspace)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// buildLogger builds the process logger from config. --verbose forces
// debug level.
func buildLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Format == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	if lc.Level != "" {
		level, err := zapcore.ParseLevel(lc.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}

// workspacePath resolves p against the workspace unless it is absolute.
func workspacePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workspace, p)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current directory)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file, relative to the workspace")
	rootCmd.PersistentFlags().BoolVar(&noJournal, "no-journal", false, "Do not record submissions in the journal")

	rootCmd.AddCommand(
		updateCmd,
		createCmd,
		commentCmd,
		metadataCmd,
		toolsCmd,
		previewCmd,
		historyCmd,
		devCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
