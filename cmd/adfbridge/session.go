package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"adfbridge/internal/adf"
	"adfbridge/internal/jira"
	"adfbridge/internal/journal"
	"adfbridge/internal/mcp"
	"adfbridge/internal/response"
	"adfbridge/internal/tracker"
)

// newMCPClient returns a client for the configured protocol server. The
// caller closes it.
func newMCPClient() *mcp.Client {
	return mcp.NewClient(cfg.MCP.URL, cfg.GetMCPTimeout())
}

func closeMCP(client *mcp.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetMCPTimeout())
	defer cancel()
	if err := client.Close(ctx); err != nil {
		logger.Debug("closing MCP session", zap.Error(err))
	}
}

// resolveUpdateTool picks the update tool: an explicit name wins, then
// discovery by name, then the configured default.
func resolveUpdateTool(ctx context.Context, client *mcp.Client, explicit string, discover bool) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if !discover {
		return cfg.MCP.UpdateTool, nil
	}
	tools, err := client.ListTools(ctx)
	if err != nil {
		return "", err
	}
	tool, ok := mcp.FindTool(tools, "jira", "update")
	if !ok {
		return "", fmt.Errorf("no Jira update tool among %d tools", len(tools))
	}
	logger.Debug("discovered update tool", zap.String("tool", tool.Name))
	return tool.Name, nil
}

// restTransport builds the direct REST transport from configured
// credentials.
func restTransport() (tracker.Transport, func(), error) {
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, nil, err
	}
	client := jira.NewRESTClient(cfg.GetJiraTimeout())
	return tracker.ViaREST(client, cfg.Credentials()), client.CloseIdleConnections, nil
}

// loadDocument reads Markdown from a file ("-" for stdin) or inline text
// and converts it to ADF. Files ending in .json are read as ADF directly.
func loadDocument(file, inline string) (*adf.Node, error) {
	var source string
	switch {
	case file == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		source = string(data)
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		if strings.HasSuffix(strings.ToLower(file), ".json") {
			var doc adf.Node
			if err := json.Unmarshal(data, &doc); err != nil {
				return nil, fmt.Errorf("failed to parse ADF in %s: %w", file, err)
			}
			if err := adf.Validate(doc); err != nil {
				return nil, err
			}
			return &doc, nil
		}
		source = string(data)
	case inline != "":
		source = inline
	default:
		return nil, nil
	}
	doc := adf.FromMarkdown(source)
	return &doc, nil
}

// parseFields turns name=value pairs into payload fields. Values that
// parse as JSON keep their JSON type; anything else is a string.
func parseFields(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid field %q, expected name=value", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			fields[name] = decoded
		} else {
			fields[name] = value
		}
	}
	return fields, nil
}

// record appends a submission to the journal unless journaling is off.
// Journal failures are logged and never fail the command.
func record(ctx context.Context, operation, identifier, transport string, payload any, res response.Result) {
	if noJournal || !cfg.Journal.Enabled {
		return
	}
	j, err := journal.Open(workspacePath(cfg.Journal.Path))
	if err != nil {
		logger.Warn("journal unavailable", zap.Error(err))
		return
	}
	defer j.Close()

	entry, err := j.Record(ctx, journal.NewEntry(operation, identifier, transport, payload, res))
	if err != nil {
		logger.Warn("failed to record submission", zap.Error(err))
		return
	}
	logger.Debug("recorded submission", zap.String("id", entry.ID), zap.String("issue", identifier))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
