package tracker

import (
	"context"
	"fmt"
	"strings"

	"adfbridge/internal/adf"
	"adfbridge/internal/logging"
	"adfbridge/internal/response"
)

// Tool names exposed by the protocol server.
const (
	ToolCreateIssue          = "jira_create_issue"
	ToolAddComment           = "jira_add_comment"
	ToolGetProject           = "jira_get_project"
	ToolGetProjectIssueTypes = "jira_get_project_issue_types"
	ToolGetProjectComponents = "jira_get_project_components"
	ToolGetProjectVersions   = "jira_get_project_versions"
	ToolGetProjectCreateMeta = "jira_get_project_createmeta"
	ToolGetIssueTypeFields   = "jira_get_issue_type_fields"
	ToolGetAllProjectMembers = "jira_get_all_project_members"
)

// ProjectTools are the read-only tools that take only a project key.
var ProjectTools = []string{
	ToolGetProject,
	ToolGetProjectIssueTypes,
	ToolGetProjectComponents,
	ToolGetProjectVersions,
	ToolGetProjectCreateMeta,
	ToolGetAllProjectMembers,
}

// NewIssue describes an issue to create.
type NewIssue struct {
	ProjectKey  string
	Summary     string
	IssueType   string
	Description *adf.Node
}

// CreateIssue creates one issue through the protocol server. On success
// CreatedKey(res) yields the new issue key.
func CreateIssue(ctx context.Context, invoker ToolInvoker, issue NewIssue) response.Result {
	switch {
	case strings.TrimSpace(issue.ProjectKey) == "":
		return response.Failure("project key is required")
	case strings.TrimSpace(issue.Summary) == "":
		return response.Failure("summary is required")
	case strings.TrimSpace(issue.IssueType) == "":
		return response.Failure("issue type is required")
	}

	args := map[string]any{
		"project_key": issue.ProjectKey,
		"summary":     issue.Summary,
		"issue_type":  issue.IssueType,
	}
	if issue.Description != nil {
		if err := adf.Validate(*issue.Description); err != nil {
			return response.Failure(fmt.Sprintf("invalid description: %v", err))
		}
		args["description"] = issue.Description.Clone()
	}

	res := invoke(ctx, invoker, ToolCreateIssue, args)
	if res.Succeeded {
		if key := CreatedKey(res); key != "" {
			logging.Update("created %s in %s", key, issue.ProjectKey)
		} else {
			logging.UpdateWarn("create in %s returned no issue key", issue.ProjectKey)
		}
	}
	return res
}

// CreatedKey extracts the new issue key from a CreateIssue result. Both
// {"issue":{"key":...}} and {"key":...} payloads are understood.
func CreatedKey(res response.Result) string {
	if !res.Succeeded {
		return ""
	}
	m, ok := res.Payload.(map[string]any)
	if !ok {
		return ""
	}
	if issue, ok := m["issue"].(map[string]any); ok {
		if key, ok := issue["key"].(string); ok && key != "" {
			return key
		}
	}
	return res.Field("key")
}

// AddComment posts a plain-text comment on one issue.
func AddComment(ctx context.Context, invoker ToolInvoker, identifier, comment string) response.Result {
	if strings.TrimSpace(identifier) == "" {
		return response.Failure("issue identifier is required")
	}
	if strings.TrimSpace(comment) == "" {
		return response.Failure("comment is empty")
	}
	res := invoke(ctx, invoker, ToolAddComment, map[string]any{
		"issue_key": identifier,
		"comment":   comment,
	})
	if res.Succeeded {
		logging.Update("commented on %s", identifier)
	}
	return res
}

// Query calls a read-only tool and normalizes its answer.
func Query(ctx context.Context, invoker ToolInvoker, tool string, args map[string]any) response.Result {
	if tool == "" {
		return response.Failure("tool name is required")
	}
	if args == nil {
		args = map[string]any{}
	}
	return invoke(ctx, invoker, tool, args)
}

// IssueTypeFields lists the fields of one issue type in a project.
func IssueTypeFields(ctx context.Context, invoker ToolInvoker, projectKey, issueTypeID string) response.Result {
	return Query(ctx, invoker, ToolGetIssueTypeFields, map[string]any{
		"project_key":   projectKey,
		"issue_type_id": issueTypeID,
	})
}

func invoke(ctx context.Context, invoker ToolInvoker, tool string, args map[string]any) (res response.Result) {
	defer func() {
		if r := recover(); r != nil {
			logging.UpdateError("tool %s panicked: %v", tool, r)
			res = response.Failure(fmt.Sprintf("%s: %v", tool, r))
		}
	}()

	if invoker == nil {
		return response.Failure("no tool invoker configured")
	}
	raw, err := invoker.Invoke(ctx, tool, args)
	if err != nil {
		logging.TransportWarn("tool %s failed: %v", tool, err)
		return response.Failure(err.Error())
	}
	res = response.Normalize(raw)
	if res.Succeeded {
		logging.ResponseDebug("%s -> %s", tool, res)
	} else {
		logging.Response("%s -> %s", tool, res)
	}
	return res
}
