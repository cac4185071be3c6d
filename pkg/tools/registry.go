// Package tools holds the tools an agent may call and validates their
// arguments against each tool's JSON schema.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrToolExists  = errors.New("tool already registered")
	ErrInvalidTool = errors.New("invalid tool")
)

// Tool is a capability exposed to the model through function calling.
type Tool interface {
	Name() string
	Description() string
	// Parameters is the JSON schema of the arguments object.
	Parameters() map[string]any
	// Execute runs the tool. Failures the model should see are reported in
	// the Result. A returned error means the call may succeed on retry.
	Execute(ctx context.Context, args map[string]any) (Result, error)
}

type Result struct {
	Success   bool   `json:"success"`
	Completed bool   `json:"completed,omitempty"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Definition is the description of a tool handed to the model.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type entry struct {
	tool   Tool
	schema *gojsonschema.Schema
}

type Registry struct {
	mu     sync.RWMutex
	tools  map[string]entry
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]entry),
		logger: logger.With("module", "tools"),
	}
}

// Register adds tool after compiling its parameter schema.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTool)
	}

	var schema *gojsonschema.Schema

	if params := tool.Parameters(); params != nil {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(params))
		if err != nil {
			return fmt.Errorf("%w: %s parameters: %w", ErrInvalidTool, name, err)
		}

		schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("%w: %s", ErrToolExists, name)
	}

	r.tools[name] = entry{tool: tool, schema: schema}

	return nil
}

// MustRegister registers built-in tools, whose schemas are known to compile.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]

	return e.tool, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Definitions describes the named tools, or every tool when names is empty.
// Unknown names are skipped.
func (r *Registry) Definitions(names []string) []Definition {
	if len(names) == 0 {
		names = r.Names()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(names))

	for _, name := range names {
		e, ok := r.tools[name]
		if !ok {
			r.logger.Warn("Unknown tool requested", "tool", name)

			continue
		}

		defs = append(defs, Definition{
			Name:        name,
			Description: e.tool.Description(),
			Parameters:  e.tool.Parameters(),
		})
	}

	return defs
}

// Execute validates args and runs the named tool. Unknown tools and invalid
// arguments produce an unsuccessful Result, not an error.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (Result, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return Result{Error: fmt.Sprintf("unknown tool %q", name)}, nil
	}

	if args == nil {
		args = map[string]any{}
	}

	if e.schema != nil {
		if problems := validateArgs(e.schema, args); problems != "" {
			r.logger.InfoContext(ctx, "Rejected tool arguments", "tool", name, "problems", problems)

			return Result{Error: "invalid arguments: " + problems}, nil
		}
	}

	return e.tool.Execute(ctx, args)
}

func validateArgs(schema *gojsonschema.Schema, args map[string]any) string {
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err.Error()
	}

	if result.Valid() {
		return ""
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return strings.Join(problems, "; ")
}
