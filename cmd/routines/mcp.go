package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"routines/runtime-go/pkg/engine"
	"routines/runtime-go/pkg/interpreter"
	"routines/runtime-go/pkg/runtime"
)

func (c *cli) mcpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve routines as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open()
			if err != nil {
				return err
			}
			defer e.Close()
			tools := newToolServer()
			tools.engine = e.engine(tools)
			e.logger.Info().Int("routines", len(e.registry.List())).Msg("serving MCP on stdio")
			return server.ServeStdio(tools.mcpServer())
		},
	}
}

// toolServer exposes an engine as MCP tools. Events are buffered per session
// and returned with the tool call that produced them.
type toolServer struct {
	engine *engine.Engine

	mu     sync.Mutex
	events map[string][]engine.Event
}

func newToolServer() *toolServer {
	return &toolServer{events: make(map[string][]engine.Event)}
}

func (t *toolServer) Emit(ev engine.Event) {
	t.mu.Lock()
	t.events[ev.Session] = append(t.events[ev.Session], ev)
	t.mu.Unlock()
}

func (t *toolServer) drain(session string) []engine.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	events := t.events[session]
	delete(t.events, session)
	return events
}

func (t *toolServer) mcpServer() *server.MCPServer {
	s := server.NewMCPServer(
		"routines",
		cliToolVersion,
		server.WithToolCapabilities(false),
	)

	s.AddTool(
		mcp.NewTool("routine_list",
			mcp.WithDescription("List the registered routines with their parameters."),
		),
		t.handleList,
	)

	s.AddTool(
		mcp.NewTool("routine_start",
			mcp.WithDescription("Start a routine. Returns its status, value, or the question it is waiting on."),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Routine name, optionally qualified as skill.name"),
			),
			mcp.WithString("arguments",
				mcp.Description("JSON object of keyword arguments"),
			),
			mcp.WithString("session",
				mcp.Description("Session id (default \"default\")"),
			),
		),
		t.handleStart,
	)

	s.AddTool(
		mcp.NewTool("routine_resume",
			mcp.WithDescription("Answer the question a paused session is waiting on."),
			mcp.WithString("value",
				mcp.Required(),
				mcp.Description("The answer"),
			),
			mcp.WithBoolean("json",
				mcp.Description("If true, value is parsed as JSON instead of taken as a string"),
			),
			mcp.WithString("session",
				mcp.Description("Session id (default \"default\")"),
			),
		),
		t.handleResume,
	)

	s.AddTool(
		mcp.NewTool("routine_stack",
			mcp.WithDescription("Show the frame stack of a session, bottom first."),
			mcp.WithString("session",
				mcp.Description("Session id (default \"default\")"),
			),
		),
		t.handleStack,
	)

	s.AddTool(
		mcp.NewTool("routine_cancel",
			mcp.WithDescription("Drop every frame of a session."),
			mcp.WithString("session",
				mcp.Description("Session id (default \"default\")"),
			),
		),
		t.handleCancel,
	)

	return s
}

func (t *toolServer) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type entry struct {
		Name        string   `json:"name"`
		Kind        string   `json:"kind"`
		Params      []string `json:"params"`
		Description string   `json:"description,omitempty"`
	}
	routines := t.engine.Registry().List()
	out := make([]entry, 0, len(routines))
	for _, r := range routines {
		params := r.Params
		if params == nil {
			params = []string{}
		}
		out = append(out, entry{Name: r.QualifiedName(), Kind: string(r.Kind), Params: params, Description: r.Description})
	}
	return jsonResult(out)
}

func (t *toolServer) handleStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kwargs, err := kwargsFromJSON(request.GetString("arguments", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	session := request.GetString("session", defaultSession)
	res, err := t.engine.Start(ctx, session, name, nil, kwargs)
	return t.routineResult(session, res, err)
}

func (t *toolServer) handleResume(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := answerValue(text, request.GetBool("json", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	session := request.GetString("session", defaultSession)
	res, err := t.engine.Resume(ctx, session, value)
	return t.routineResult(session, res, err)
}

func (t *toolServer) handleStack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session := request.GetString("session", defaultSession)
	frameList, err := t.engine.Stack(ctx, session)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	type entry struct {
		ID      string `json:"id"`
		Routine string `json:"routine"`
	}
	out := make([]entry, len(frameList))
	for i, f := range frameList {
		out[i] = entry{ID: f.ID, Routine: f.Routine}
	}
	return jsonResult(map[string]any{"session": session, "frames": out})
}

func (t *toolServer) handleCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session := request.GetString("session", defaultSession)
	dropped, err := t.engine.Cancel(ctx, session)
	t.drain(session)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"session": session, "cancelled": len(dropped)})
}

type toolEvent struct {
	Kind    string `json:"kind"`
	Routine string `json:"routine,omitempty"`
	Status  string `json:"status,omitempty"`
	Text    string `json:"text,omitempty"`
}

type toolOutcome struct {
	Session string          `json:"session"`
	Routine string          `json:"routine"`
	Status  string          `json:"status"`
	Value   json.RawMessage `json:"value,omitempty"`
	Prompt  string          `json:"prompt,omitempty"`
	Error   string          `json:"error,omitempty"`
	Events  []toolEvent     `json:"events"`
}

// routineResult reports a Start or Resume outcome. Engine errors such as a
// busy session become tool errors; routine failures are regular results with
// an error field.
func (t *toolServer) routineResult(session string, res *engine.RoutineResult, err error) (*mcp.CallToolResult, error) {
	events := t.drain(session)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := toolOutcome{
		Session: session,
		Routine: res.Routine,
		Status:  string(res.Status),
		Events:  make([]toolEvent, 0, len(events)),
	}
	for _, ev := range events {
		out.Events = append(out.Events, toolEvent{Kind: string(ev.Kind), Routine: ev.Routine, Status: string(ev.Status), Text: ev.Text})
	}
	switch {
	case res.Err != nil:
		out.Error = res.Err.Error()
	case res.Status == interpreter.StatePaused:
		out.Prompt = res.Prompt
	case res.Value != nil:
		data, err := runtime.MarshalValue(res.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		out.Value = data
	}
	return jsonResult(out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}
