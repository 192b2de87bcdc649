package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/remindd/internal/lifecycle"
	"github.com/kalambet/remindd/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Control   Lifecycle
	Reminders ReminderReader
}

// NewMCPServer creates an MCP server exposing reminder tools so assistants can
// set and manage reminders on the user's behalf.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"remindd",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("remindd — local reminder scheduler. Times are local unless an offset is given."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("add_reminder",
			mcp.WithDescription("Create a reminder that fires at the given local datetime, optionally recurring."),
			mcp.WithString("title", mcp.Description("What to remind about"), mcp.Required()),
			mcp.WithString("at", mcp.Description("Datetime, e.g. 2026-03-01 09:00 or RFC 3339"), mcp.Required()),
			mcp.WithString("notes", mcp.Description("Optional free-form notes")),
			mcp.WithString("recurrence", mcp.Description("NONE, DAILY, EVERY_N_DAYS:n, WEEKLY:MON,WED, MONTHLY or YEARLY")),
		),
		mcpAddReminder(deps),
	)

	s.AddTool(
		mcp.NewTool("list_reminders",
			mcp.WithDescription("List reminders, soonest first."),
			mcp.WithBoolean("active_only", mcp.Description("Only enabled reminders (default true)")),
		),
		mcpListReminders(deps),
	)

	s.AddTool(
		mcp.NewTool("snooze_reminder",
			mcp.WithDescription("Push a reminder to a later time without touching its schedule."),
			mcp.WithString("id", mcp.Description("Reminder id; a unique prefix is accepted"), mcp.Required()),
			mcp.WithNumber("minutes", mcp.Description("Snooze duration in minutes (default 15)")),
		),
		mcpSnoozeReminder(deps),
	)

	s.AddTool(
		mcp.NewTool("complete_reminder",
			mcp.WithDescription("Mark a one-shot reminder done. Fails for recurring reminders."),
			mcp.WithString("id", mcp.Description("Reminder id; a unique prefix is accepted"), mcp.Required()),
		),
		mcpCompleteReminder(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_reminder",
			mcp.WithDescription("Delete a reminder entirely."),
			mcp.WithString("id", mcp.Description("Reminder id; a unique prefix is accepted"), mcp.Required()),
		),
		mcpDeleteReminder(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"reminders://upcoming",
			"Upcoming Reminders",
			mcp.WithResourceDescription("Enabled reminders ordered by effective trigger time"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceUpcoming(deps),
	)

	return s
}

func mcpAddReminder(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}
		atStr, err := req.RequireString("at")
		if err != nil {
			return mcpError("at is required"), nil
		}
		at, err := parseWhen(atStr)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		rule, err := parseRule(req.GetString("recurrence", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		rem, err := deps.Control.Create(title, req.GetString("notes", ""), at, rule)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create reminder: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Created reminder %s for %s", rem.ID, rem.NextTrigger.Format(timeLayout))), nil
	}
}

func mcpListReminders(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var (
			reminders []storage.Reminder
			err       error
		)
		if req.GetBool("active_only", true) {
			reminders, err = deps.Reminders.GetActive()
		} else {
			reminders, err = deps.Reminders.GetAll()
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list reminders: %v", err)), nil
		}

		out := make([]ReminderJSON, len(reminders))
		for i, r := range reminders {
			out[i] = toJSON(r)
		}
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reminders: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSnoozeReminder(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		id, err := deps.Reminders.ResolveID(raw)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("reminder not found"), nil
		}
		if err != nil {
			return mcpError(err.Error()), nil
		}
		minutes := req.GetInt("minutes", 15)
		if minutes <= 0 {
			return mcpError("minutes must be positive"), nil
		}

		until := time.Now().Add(time.Duration(minutes) * time.Minute)
		rem, err := deps.Control.Snooze(id, until)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("reminder not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to snooze: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Snoozed %q until %s", rem.Title, rem.SnoozeUntil.Format(timeLayout))), nil
	}
}

func mcpCompleteReminder(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		id, err := deps.Reminders.ResolveID(raw)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("reminder not found"), nil
		}
		if err != nil {
			return mcpError(err.Error()), nil
		}

		rem, err := deps.Control.Complete(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("reminder not found"), nil
		}
		if errors.Is(err, lifecycle.ErrRecurring) {
			return mcpError("recurring reminders cannot be completed; snooze or delete instead"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to complete: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Completed %q", rem.Title)), nil
	}
}

func mcpDeleteReminder(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		id, err := deps.Reminders.ResolveID(raw)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("reminder not found"), nil
		}
		if err != nil {
			return mcpError(err.Error()), nil
		}

		if err := deps.Control.Delete(id); err != nil {
			return mcpError(fmt.Sprintf("failed to delete: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Deleted reminder %s", id)), nil
	}
}

func mcpResourceUpcoming(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		reminders, err := deps.Reminders.GetActive()
		if err != nil {
			return nil, fmt.Errorf("failed to list reminders: %w", err)
		}

		out := make([]ReminderJSON, len(reminders))
		for i, r := range reminders {
			out[i] = toJSON(r)
		}
		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal reminders: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
