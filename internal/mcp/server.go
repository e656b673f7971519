package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nick-dorsch/projectpilot/internal/board"
	"github.com/nick-dorsch/projectpilot/internal/link"
	"github.com/nick-dorsch/projectpilot/internal/suggest"
	"github.com/nick-dorsch/projectpilot/pkg/models"
)

type Options struct {
	Runner      *suggest.Runner
	ShareOrigin string
	SharePath   string
}

// NewServer exposes the board store as MCP tools.
func NewServer(store *board.Store, opts Options) *server.MCPServer {
	s := server.NewMCPServer("Project Pilot", "0.1.0")

	s.AddTool(mcp.NewTool("get_board",
		mcp.WithDescription("Get the whole board: tasks, columns and column order."),
	), getBoardHandler(store))

	s.AddTool(mcp.NewTool("list_users",
		mcp.WithDescription("List the people tasks can be assigned to."),
	), listUsersHandler(store))

	s.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get a single task with its comments and subtasks."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
	), getTaskHandler(store))

	s.AddTool(mcp.NewTool("add_task",
		mcp.WithDescription("Add a task to the end of a column. A blank title does nothing."),
		mcp.WithString("column_id", mcp.Description("Column ID"), mcp.Required()),
		mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
	), addTaskHandler(store))

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update task fields. Omitted fields are left as they are; an empty string clears an optional field."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("assigned_to", mcp.Description("User ID of the assignee")),
		mcp.WithString("due_date", mcp.Description("Due date as YYYY-MM-DD")),
		mcp.WithString("priority", mcp.Description("Low, Medium or High")),
		mcp.WithString("reminder_at", mcp.Description("Reminder time in RFC 3339; empty clears it")),
	), updateTaskHandler(store))

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task. Deleting a missing task succeeds."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
	), deleteTaskHandler(store))

	s.AddTool(mcp.NewTool("move_task",
		mcp.WithDescription("Move a task to a position in a column."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("column_id", mcp.Description("Destination column ID"), mcp.Required()),
		mcp.WithNumber("index", mcp.Description("Destination index, 0 is the top. Defaults to the end of the column.")),
	), moveTaskHandler(store))

	s.AddTool(mcp.NewTool("add_comment",
		mcp.WithDescription("Add a comment to a task."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("text", mcp.Description("Comment text"), mcp.Required()),
	), addCommentHandler(store))

	s.AddTool(mcp.NewTool("add_subtasks",
		mcp.WithDescription("Append subtasks to a task in the given order."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithArray("texts", mcp.Description("Subtask texts"), mcp.Required(), mcp.Items(map[string]any{"type": "string"})),
	), addSubtasksHandler(store))

	s.AddTool(mcp.NewTool("toggle_subtask",
		mcp.WithDescription("Flip a subtask between done and not done."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("subtask_id", mcp.Description("Subtask ID"), mcp.Required()),
	), toggleSubtaskHandler(store))

	if opts.Runner != nil {
		s.AddTool(mcp.NewTool("suggest_subtasks",
			mcp.WithDescription("Ask the model for 3 to 5 subtasks for a task."),
			mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
			mcp.WithBoolean("apply", mcp.Description("Append the suggestions to the task")),
		), suggestSubtasksHandler(store, opts.Runner))
	}

	s.AddTool(mcp.NewTool("share_task",
		mcp.WithDescription("Get the share message for a task."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
	), shareTaskHandler(store, opts))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func lookupTask(store *board.Store, id string) (models.Task, *mcp.CallToolResult) {
	t, ok := store.Snapshot().Tasks[id]
	if !ok {
		return models.Task{}, mcp.NewToolResultError(fmt.Sprintf("Task with id '%s' not found", id))
	}
	return t, nil
}

func getBoardHandler(store *board.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(store.Snapshot())
	}
}

func listUsersHandler(store *board.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(map[string]any{"users": store.Users()})
	}
}

func getTaskHandler(store *board.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t, errResult := lookupTask(store, mcp.ParseString(request, "task_id", ""))
		if errResult != nil {
			return errResult, nil
		}
		return jsonResult(t)
	}
}

func addTaskHandler(store *board.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		columnID := mcp.ParseString(request, "column_id", "")
		title := mcp.ParseString(request, "title", "")

		t, err := store.AddTask(columnID, title)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if t == nil {
			return mcp.NewToolResultText("Title is blank, no task added"), nil
		}
		return jsonResult(t)
	}
}

func updateTaskHandler(store *board.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "task_id", "")
		args, _ := request.Params.Arguments.(map[string]any)

		var patch board.TaskPatch
		str := func(key string) *string {
			if v, ok := args[key].(string); ok {
				return &v
			}
			return nil
		}
		patch.Title = str("title")
		patch.Description = str("description")
		patch.AssignedTo = str("assigned_to")
		patch.DueDate = str("due_date")
		if p := str("priority"); p != nil {
			prio := models.Priority(*p)
			if !prio.Valid() {
				return mcp.NewToolResultError(fmt.Sprintf("Invalid priority '%s'", *p)), nil
			}
			patch.Priority = &prio
		}
		if r := str("reminder_at"); r != nil {
			if *r == "" {
				patch.ClearReminder = true
			} else {
				at, err := time.Parse(time.RFC3339, *r)
				if err != nil {
					return mcp.NewToolResultError(fmt.Sprintf("Invalid reminder_at: %v", err)), nil
				}
				patch.ReminderAt = &at
			}
		}

		t, err := store.UpdateTask(id, patch)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(t)
	}
}

func deleteTaskHandler(store *board.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := store.DeleteTask(mcp.ParseString(request, "task_id", "")); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Task deleted successfully"), nil
	}
}

func moveTaskHandler(store *board.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "task_id", "")
		columnID := mcp.ParseString(request, "column_id", "")

		snap := store.Snapshot()
		src, ok := board.LocateTask(snap, id)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("Task with id '%s' not found", id)), nil
		}
		col, ok := snap.Columns[columnID]
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("Column with id '%s' not found", columnID)), nil
		}
		end := len(col.TaskIDs)
		if columnID == src.ColumnID {
			end--
		}
		index := mcp.ParseInt(request, "index", end)
		if index < 0 || index > end {
			return mcp.NewToolResultError(fmt.Sprintf("Index %d out of range 0..%d", index, end)), nil
		}

		if err := store.MoveTask(id, src, board.Position{ColumnID: columnID, Index: index}); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Task moved to %s at position %d", col.Title, index)), nil
	}
}

func addCommentHandler(store *board.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		c, err := store.AddComment(mcp.ParseString(request, "task_id", ""), mcp.ParseString(request, "text", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(c)
	}
}

func addSubtasksHandler(store *board.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)
		raw, ok := args["texts"].([]any)
		if !ok {
			return mcp.NewToolResultError("texts must be an array of strings"), nil
		}
		texts := make([]string, 0, len(raw))
		for _, v := range raw {
			s, ok := v.(string)
			if !ok {
				return mcp.NewToolResultError("texts must be an array of strings"), nil
			}
			texts = append(texts, s)
		}

		added, err := store.AddSubtasks(mcp.ParseString(request, "task_id", ""), texts)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"subtasks": added})
	}
}

func toggleSubtaskHandler(store *board.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "task_id", "")
		if err := store.ToggleSubtask(id, mcp.ParseString(request, "subtask_id", "")); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(store.Snapshot().Tasks[id].Subtasks)
	}
}

func suggestSubtasksHandler(store *board.Store, runner *suggest.Runner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t, errResult := lookupTask(store, mcp.ParseString(request, "task_id", ""))
		if errResult != nil {
			return errResult, nil
		}

		res, err := runner.Run(ctx, t.ID, t.Title, t.Description)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if res.Failed() {
			return mcp.NewToolResultError(suggest.ErrorText), nil
		}

		if mcp.ParseBoolean(request, "apply", false) {
			if _, err := store.AddSubtasks(t.ID, res.Subtasks); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}
		return jsonResult(map[string]any{"subtasks": res.Subtasks})
	}
}

func shareTaskHandler(store *board.Store, opts Options) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t, errResult := lookupTask(store, mcp.ParseString(request, "task_id", ""))
		if errResult != nil {
			return errResult, nil
		}
		path := opts.SharePath
		if path == "" {
			path = "/"
		}
		return mcp.NewToolResultText(link.ShareText(t.Title, opts.ShareOrigin, path, t.ID)), nil
	}
}
