package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"adfbridge/internal/tracker"
)

var (
	updateSummary     string
	updateDescription string
	updateDescFile    string
	updateFields      []string
	updateREST        bool
	updateTool        string
	updateDiscover    bool
)

// updateCmd applies a partial update to one issue.
var updateCmd = &cobra.Command{
	Use:   "update <issue>",
	Short: "Update the summary, description or fields of an issue",
	Long: `Update applies a partial update to a single issue. Only the fields given
on the command line are sent; everything else is left untouched.

The description is written in Markdown and converted to ADF. A file ending
in .json is read as an ADF document instead.

Examples:
  adfbridge update GRW-1 --summary "New title"
  adfbridge update GRW-1 --description-file notes.md
  adfbridge update GRW-1 --field priority='{"name":"High"}' --rest`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().StringVarP(&updateSummary, "summary", "s", "", "New summary")
	updateCmd.Flags().StringVarP(&updateDescription, "description", "d", "", "New description as Markdown")
	updateCmd.Flags().StringVarP(&updateDescFile, "description-file", "f", "", "Read the description from a file (- for stdin)")
	updateCmd.Flags().StringArrayVar(&updateFields, "field", nil, "Additional field as name=value; JSON values are decoded (repeatable)")
	updateCmd.Flags().BoolVar(&updateREST, "rest", false, "Call the Jira REST API directly instead of the MCP server")
	updateCmd.Flags().StringVar(&updateTool, "tool", "", "MCP tool to call (default from config)")
	updateCmd.Flags().BoolVar(&updateDiscover, "discover", false, "Find the update tool by listing the server's tools")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	identifier := args[0]

	desc, err := loadDocument(updateDescFile, updateDescription)
	if err != nil {
		return err
	}
	fields, err := parseFields(updateFields)
	if err != nil {
		return err
	}
	u := tracker.Update{
		Identifier:  identifier,
		Summary:     updateSummary,
		Description: desc,
		Fields:      fields,
	}

	var transport tracker.Transport
	if updateREST {
		t, closeIdle, err := restTransport()
		if err != nil {
			return err
		}
		defer closeIdle()
		transport = t
	} else {
		client := newMCPClient()
		defer closeMCP(client)
		tool, err := resolveUpdateTool(ctx, client, updateTool, updateDiscover)
		if err != nil {
			return err
		}
		transport = tracker.ViaTool(client, tool)
	}

	logger.Debug("submitting update",
		zap.String("issue", identifier),
		zap.String("transport", transport.Name()),
		zap.Bool("description", desc != nil))

	res := tracker.SubmitUpdate(ctx, transport, u)
	record(ctx, "update", identifier, transport.Name(), tracker.BuildPayload(u), res)
	return printResult(cmd.OutOrStdout(), fmt.Sprintf("update %s via %s", identifier, transport.Name()), res)
}

var (
	createProject  string
	createSummary  string
	createType     string
	createDescFile string
)

// createCmd creates a new issue through the MCP server.
var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an issue through the MCP server",
	Args:  cobra.NoArgs,
	RunE:  runCreate,
}

func init() {
	createCmd.Flags().StringVarP(&createProject, "project", "p", "", "Project key")
	createCmd.Flags().StringVarP(&createSummary, "summary", "s", "", "Issue summary")
	createCmd.Flags().StringVarP(&createType, "type", "t", "Task", "Issue type")
	createCmd.Flags().StringVarP(&createDescFile, "description-file", "f", "", "Read the description from a file (- for stdin)")
	_ = createCmd.MarkFlagRequired("project")
	_ = createCmd.MarkFlagRequired("summary")
}

func runCreate(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	desc, err := loadDocument(createDescFile, "")
	if err != nil {
		return err
	}

	client := newMCPClient()
	defer closeMCP(client)

	issue := tracker.NewIssue{
		ProjectKey:  createProject,
		Summary:     createSummary,
		IssueType:   createType,
		Description: desc,
	}
	res := tracker.CreateIssue(ctx, client, issue)

	identifier := tracker.CreatedKey(res)
	if identifier == "" {
		identifier = createProject
	}
	record(ctx, "create", identifier, "tool:"+tracker.ToolCreateIssue, issue, res)
	return printResult(cmd.OutOrStdout(), "create "+identifier, res)
}

// commentCmd adds a comment to an issue.
var commentCmd = &cobra.Command{
	Use:   "comment <issue> <text>",
	Short: "Add a comment to an issue",
	Args:  cobra.ExactArgs(2),
	RunE:  runComment,
}

func runComment(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	identifier, text := args[0], args[1]

	client := newMCPClient()
	defer closeMCP(client)

	res := tracker.AddComment(ctx, client, identifier, text)
	record(ctx, "comment", identifier, "tool:"+tracker.ToolAddComment, map[string]any{"comment": text}, res)
	return printResult(cmd.OutOrStdout(), "comment on "+identifier, res)
}
