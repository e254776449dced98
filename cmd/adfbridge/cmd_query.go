package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"adfbridge/internal/mcp"
	"adfbridge/internal/response"
	"adfbridge/internal/tracker"
)

var metadataIssueTypeID string

// metadataCmd fetches project metadata through the read-only tools.
var metadataCmd = &cobra.Command{
	Use:   "metadata <project>",
	Short: "Show project metadata from the MCP server",
	Long: `Metadata queries every project-level tool of the MCP server in parallel
and prints the combined results as JSON, keyed by tool name. Tools that
fail are reported under "errors".`,
	Args: cobra.ExactArgs(1),
	RunE: runMetadata,
}

func init() {
	metadataCmd.Flags().StringVar(&metadataIssueTypeID, "issue-type-id", "", "Also fetch the fields of this issue type")
}

func runMetadata(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	project := args[0]

	client := newMCPClient()
	defer closeMCP(client)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	var (
		mu      sync.Mutex
		results = make(map[string]response.Result)
	)
	collect := func(tool string, res response.Result) {
		mu.Lock()
		results[tool] = res
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, tool := range tracker.ProjectTools {
		g.Go(func() error {
			collect(tool, tracker.Query(gctx, client, tool, map[string]any{"project_key": project}))
			return nil
		})
	}
	if metadataIssueTypeID != "" {
		g.Go(func() error {
			collect(tracker.ToolGetIssueTypeFields, tracker.IssueTypeFields(gctx, client, project, metadataIssueTypeID))
			return nil
		})
	}
	_ = g.Wait()

	out := map[string]any{"project": project}
	errs := map[string]string{}
	for tool, res := range results {
		if res.Succeeded {
			out[tool] = res.Payload
		} else {
			errs[tool] = res.ErrorMessage
		}
	}
	if len(errs) > 0 {
		out["errors"] = errs
	}
	if err := printJSON(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	if len(errs) == len(results) {
		return fmt.Errorf("all %d metadata queries failed", len(results))
	}
	return nil
}

// toolsCmd lists the tools the MCP server advertises.
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools offered by the MCP server",
	Args:  cobra.NoArgs,
	RunE:  runTools,
}

func runTools(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	client := newMCPClient()
	defer closeMCP(client)

	tools, err := client.ListTools(ctx)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if info := client.ServerInfo(); info != nil {
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s %s", info.ServerInfo.Name, info.ServerInfo.Version)))
	}
	update, hasUpdate := mcp.FindTool(tools, "jira", "update")
	for _, name := range mcp.ToolNames(tools) {
		marker := " "
		if hasUpdate && name == update.Name {
			marker = okStyle.Render("*")
		}
		fmt.Fprintf(w, "%s %s\n", marker, name)
	}
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d tools", len(tools))))
	return nil
}
