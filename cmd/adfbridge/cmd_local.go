package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"adfbridge/internal/adf"
	"adfbridge/internal/devserver"
	"adfbridge/internal/journal"
)

var (
	previewFile  string
	previewJSON  bool
	historyLimit int
)

// previewCmd converts Markdown to ADF without contacting Jira.
var previewCmd = &cobra.Command{
	Use:   "preview [markdown]",
	Short: "Convert Markdown to ADF and show the result",
	Long: `Preview converts Markdown to an ADF document and validates it. With --json
the document is printed as sent to Jira; otherwise it is rendered back to
Markdown for the terminal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().StringVarP(&previewFile, "file", "f", "", "Read Markdown from a file (- for stdin)")
	previewCmd.Flags().BoolVar(&previewJSON, "json", false, "Print the ADF document as JSON")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of entries")
}

func runPreview(cmd *cobra.Command, args []string) error {
	inline := ""
	if len(args) == 1 {
		inline = args[0]
	}
	doc, err := loadDocument(previewFile, inline)
	if err != nil {
		return err
	}
	if doc == nil {
		return errors.New("nothing to preview: pass Markdown or --file")
	}
	if err := adf.Validate(*doc); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if previewJSON {
		return printJSON(w, doc)
	}

	md := adf.ToMarkdown(*doc)
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		fmt.Fprint(w, md)
		return nil
	}
	out, err := renderer.Render(md)
	if err != nil {
		fmt.Fprint(w, md)
		return nil
	}
	fmt.Fprint(w, out)
	return nil
}

// historyCmd lists journaled submissions.
var historyCmd = &cobra.Command{
	Use:   "history [issue]",
	Short: "List recorded submissions",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	j, err := journal.Open(workspacePath(cfg.Journal.Path))
	if err != nil {
		return err
	}
	defer j.Close()

	var entries []journal.Entry
	if len(args) == 1 {
		entries, err = j.ForIssue(ctx, args[0], historyLimit)
	} else {
		entries, err = j.Recent(ctx, historyLimit)
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(w, "No submissions recorded.")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("TIME", "OPERATION", "ISSUE", "TRANSPORT", "RESULT")
	for _, e := range entries {
		result := okStyle.Render("ok")
		if !e.Succeeded {
			result = failStyle.Render("failed") + " " + e.ErrorMessage
		}
		t.Row(e.CreatedAt.Local().Format(time.DateTime), e.Operation, e.Identifier, e.Transport, result)
	}
	fmt.Fprintln(w, t.Render())
	return nil
}

// devCmd runs the MCP server and restarts it on source changes.
var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Run the MCP server, restarting it when its sources change",
	Long: `Dev starts the configured MCP server command and watches its source
directory. Changes to files with a configured extension restart the server
after a short debounce. Interrupt to stop.`,
	Args: cobra.NoArgs,
	RunE: runDev,
}

func runDev(cmd *cobra.Command, args []string) error {
	dc := cfg.DevServer
	sup, err := devserver.New(devserver.Options{
		Command:     dc.Command,
		Args:        dc.Args,
		WatchDir:    workspacePath(dc.WatchDir),
		Extensions:  dc.Extensions,
		Debounce:    cfg.GetDebounce(),
		StopTimeout: cfg.GetStopTimeout(),
		Stdout:      cmd.OutOrStdout(),
		Stderr:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting dev server",
		zap.String("command", dc.Command),
		zap.String("watch", sup.WatchDir()),
		zap.Strings("extensions", dc.Extensions))

	if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("dev server stopped", zap.Int("restarts", sup.Restarts()))
	return nil
}
