// Package server exposes registered toolkit tasks as MCP tools.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hsp/internal/core"
	"github.com/dorcha-inc/hsp/internal/parfile"
	"github.com/dorcha-inc/hsp/internal/params"
	"github.com/dorcha-inc/hsp/internal/registry"
	"github.com/dorcha-inc/hsp/internal/task"
)

// ServerName is the implementation name reported to MCP clients.
const ServerName = "hsp"

// ReloadFunc builds a fresh runner, typically from reloaded configuration.
type ReloadFunc func() (*task.Runner, error)

// TaskServer stores the state and dependencies for the hsp MCP server.
type TaskServer struct {
	runner          *task.Runner
	reload          ReloadFunc
	version         string
	mcpServer       *mcp.Server
	mu              sync.RWMutex
	httpHandler     *mcp.StreamableHTTPHandler
	registeredTools mapset.Set[string]         // MCP tool names
	skipped         *xsync.MapOf[string, error] // task name -> why it has no tool
}

// NewTaskServer creates a server publishing every task of runner. reload may be
// nil, in which case Reload only rescans the current runner.
func NewTaskServer(runner *task.Runner, reload ReloadFunc, version string) *TaskServer {
	s := &TaskServer{
		runner:          runner,
		reload:          reload,
		version:         version,
		registeredTools: mapset.NewSet[string](),
		skipped:         xsync.NewMapOf[string, error](),
	}

	s.rebuildServer()

	s.httpHandler = mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server {
			s.mu.RLock()
			defer s.mu.RUnlock()
			return s.mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: false,
		},
	)

	return s
}

// rebuildServer replaces the MCP server instance with one built from the
// current runner. Connections already running keep the instance they captured.
func (s *TaskServer) rebuildServer() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mcpServer = mcp.NewServer(
		&mcp.Implementation{Name: ServerName, Version: s.version},
		nil,
	)
	s.registeredTools.Clear()
	s.skipped.Clear()

	entries := s.runner.Registry().List()
	if len(entries) == 0 {
		zap.L().Warn("No tasks registered",
			zap.String("hint", "Set HEADAS or add a task manifest to publish toolkit tasks"))
	}

	for _, entry := range entries {
		_, schema, err := s.runner.Describe(entry.Name)
		if err != nil {
			zap.L().Warn("Skipping task without a usable parameter file",
				zap.String("task", entry.Name),
				zap.Error(err))
			s.skipped.Store(entry.Name, err)
			continue
		}
		s.registerTask(entry, schema)
	}

	zap.L().Info("Registered tasks as MCP tools",
		zap.Int("count", s.registeredTools.Cardinality()),
		zap.Int("skipped", s.skipped.Size()))
}

// registerTask registers a single task with the MCP server. Caller holds mu.
func (s *TaskServer) registerTask(entry *registry.Entry, schema *parfile.File) {
	runner := s.runner
	handler := func(ctx context.Context, req *mcp.CallToolRequest, input map[string]any) (
		result *mcp.CallToolResult,
		output map[string]any,
		err error,
	) {
		defer func() {
			if r := recover(); r != nil {
				core.LogPanicRecovery("task handler", r)
				result = errorResult(fmt.Sprintf("internal error: panic recovered in task execution: %v%s", r, core.BugReportMessage()))
				output = nil
				err = fmt.Errorf("panic recovered: %v", r)
			}
		}()
		return handleTaskCall(ctx, runner, entry, input)
	}

	name := entry.CallableName()
	tool := &mcp.Tool{
		Name:        name,
		Description: toolDescription(entry),
		InputSchema: InputSchema(entry, schema),
	}

	mcp.AddTool(s.mcpServer, tool, handler)
	s.registeredTools.Add(name)
	zap.L().Debug("Registered task", zap.String("task", entry.Name), zap.String("tool", name))
}

func toolDescription(entry *registry.Entry) string {
	if entry.Description != "" {
		return entry.Description
	}
	return fmt.Sprintf("Run the %s task of the %s package", entry.Name, entry.Module)
}

// InputSchema derives the JSON schema of a task's MCP input from its parameter
// file. Parameters that would be prompted for are required.
func InputSchema(entry *registry.Entry, schema *parfile.File) map[string]any {
	properties := make(map[string]any, len(schema.Names()))
	for _, d := range schema.Params() {
		properties[d.Name] = propertySchema(d)
	}

	out := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": entry.AcceptsExtra,
	}
	if required := params.NewStore(entry.Name, schema, entry.AcceptsExtra).Unresolved(); len(required) > 0 {
		out["required"] = required
	}
	return out
}

// propertySchema describes one parameter. The current default goes into the
// description rather than "default": the SDK would otherwise fill it in and
// shadow values learned after registration.
func propertySchema(d *parfile.Descriptor) map[string]any {
	prop := map[string]any{}
	description := d.Prompt
	if d.Default.IsDefined() {
		description = strings.TrimSpace(fmt.Sprintf("%s (default: %s)", description, d.Default))
	}
	if description != "" {
		prop["description"] = description
	}

	switch d.Type {
	case parfile.TypeBool:
		prop["type"] = "boolean"
	case parfile.TypeInt:
		// INDEF is passed as text
		prop["type"] = []string{"integer", "string"}
	case parfile.TypeReal:
		prop["type"] = []string{"number", "string"}
	default:
		prop["type"] = "string"
		if choices := d.Choices(); len(choices) > 0 {
			prop["enum"] = choices
		}
	}

	return prop
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// handleTaskCall runs a task without prompting or echoing. Failures to run
// the task at all are reported as tool errors, not protocol errors.
func handleTaskCall(
	ctx context.Context,
	runner *task.Runner,
	entry *registry.Entry,
	input map[string]any,
) (*mcp.CallToolResult, map[string]any, error) {
	startTime := time.Now()

	// Later sources win: clients cannot turn prompting or echo back on.
	controls := task.Args{
		task.ControlPrefix + task.ControlNoPrompt: true,
		task.ControlPrefix + task.ControlVerbose:  int(task.VerboseQuiet),
	}

	res, err := runner.Run(ctx, entry.Name, task.Args(input), controls)
	core.LogRequest("tools/call "+entry.Name, time.Since(startTime).Seconds(), err)
	if err != nil {
		return errorResult(callErrorMessage(entry, err)), nil, nil
	}

	result, output := buildTaskResponse(res)
	return result, output, nil
}

// callErrorMessage turns resolution errors into hints an MCP client can act on.
func callErrorMessage(entry *registry.Entry, err error) string {
	var missing *params.MissingParameterError
	if errors.As(err, &missing) {
		return fmt.Sprintf("Task '%s' needs values for: %s", entry.Name, strings.Join(missing.Names, ", "))
	}
	return fmt.Sprintf("Task execution failed: %v", err)
}

// buildTaskResponse builds the MCP result and structured output of a finished
// task. A non-zero return code marks the result as an error.
func buildTaskResponse(res *task.TaskResult) (*mcp.CallToolResult, map[string]any) {
	content := []mcp.Content{
		&mcp.TextContent{Text: res.Stdout()},
	}
	if res.Stderr() != "" {
		content = append(content, &mcp.TextContent{
			Text: fmt.Sprintf("stderr: %s", res.Stderr()),
		})
	}
	if res.ReturnCode() != 0 {
		content = append(content, &mcp.TextContent{
			Text: fmt.Sprintf("return_code: %d", res.ReturnCode()),
		})
	}

	output := map[string]any{
		"return_code": res.ReturnCode(),
		"stdout":      res.Stdout(),
		"stderr":      res.Stderr(),
		"params":      plainValues(res.Params()),
	}
	if custom := res.Custom(); len(custom) > 0 {
		output["custom"] = custom
	}

	return &mcp.CallToolResult{
		IsError: res.ReturnCode() != 0,
		Content: content,
	}, output
}

// plainValues converts a store's values to JSON-friendly Go values.
func plainValues(p *params.Store) map[string]any {
	out := make(map[string]any)
	for name, v := range p.Values() {
		if pv, ok := v.(parfile.Value); ok {
			out[name] = pv.Interface()
			continue
		}
		out[name] = v
	}
	return out
}

// Tools returns the names of the published MCP tools.
func (s *TaskServer) Tools() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := s.registeredTools.ToSlice()
	slices.Sort(names)
	return names
}

// Skipped reports the tasks that could not be published and why.
func (s *TaskServer) Skipped() map[string]error {
	out := make(map[string]error)
	s.skipped.Range(func(name string, err error) bool {
		out[name] = err
		return true
	})
	return out
}

// Reload swaps in a fresh runner and republishes its tasks.
func (s *TaskServer) Reload() (err error) {
	defer func() {
		if r := recover(); r != nil {
			core.LogPanicRecovery("reload", r)
			err = fmt.Errorf("panic during reload: %v", r)
		}
	}()

	if s.reload != nil {
		runner, err := s.reload()
		if err != nil {
			return fmt.Errorf("failed to reload configuration: %w", err)
		}
		s.mu.Lock()
		s.runner = runner
		s.mu.Unlock()
	}

	s.rebuildServer()
	return nil
}

// Serve starts the server on the given address using the Streamable HTTP
// transport. It returns when ctx is cancelled.
func (s *TaskServer) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", s.httpHandler)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	zap.L().Info("Server listening", zap.String("address", addr))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("Server shutdown error", zap.Error(err))
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}

	return nil
}

// ServeStdio starts the server using the stdio transport.
func (s *TaskServer) ServeStdio(ctx context.Context) error {
	s.mu.RLock()
	server := s.mcpServer
	s.mu.RUnlock()
	return server.Run(ctx, &mcp.StdioTransport{})
}
