package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/toolhop/internal/logger"
)

// Registry holds the tools exposed to the model.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	tools   map[string]Spec
	timeout time.Duration
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Spec),
	}
}

// SetTimeout bounds every executor run; zero disables the bound.
func (r *Registry) SetTimeout(d time.Duration) {
	r.mu.Lock()
	r.timeout = d
	r.mu.Unlock()
}

// Register adds a tool. Names must be unique and non-empty.
func (r *Registry) Register(spec Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if spec.Exec == nil {
		return fmt.Errorf("tool %s has no executor", spec.Name)
	}
	if spec.Schema == nil {
		spec.Schema = emptyObjectSchema()
	}
	settle(spec.Schema)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("tool %s already registered", spec.Name)
	}
	r.tools[spec.Name] = spec
	r.order = append(r.order, spec.Name)
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.tools[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return spec, nil
}

// List returns all registered tools in registration order.
func (r *Registry) List() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// IsTerminal reports whether name is a registered terminal tool.
func (r *Registry) IsTerminal(name string) bool {
	spec, err := r.Get(name)
	return err == nil && spec.Kind == KindTerminal
}

// Declarations renders the tools for a chat completion request.
func (r *Registry) Declarations() []openai.Tool {
	specs := r.List()
	out := make([]openai.Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Schema,
			},
		})
	}
	return out
}

// Dispatch validates raw JSON arguments and runs the named tool. It returns
// ErrUnknownTool or *InvalidArgumentsError when the call cannot be attempted.
// Executor failures are not errors: they come back as a Failed result.
func (r *Registry) Dispatch(ctx context.Context, name, rawArguments string) (Result, error) {
	spec, err := r.Get(name)
	if err != nil {
		return Result{}, err
	}

	args, err := parseArguments(rawArguments)
	if err != nil {
		return Result{}, &InvalidArgumentsError{Tool: name, Reason: err.Error()}
	}
	if err := validate(args, spec.Schema, ""); err != nil {
		return Result{}, &InvalidArgumentsError{Tool: name, Reason: err.Error()}
	}

	r.mu.RLock()
	timeout := r.timeout
	r.mu.RUnlock()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	content, err := run(ctx, spec, args)
	if err != nil {
		logger.L.Warn("tool execution failed", "tool", name, "kind", spec.Kind.String(), "error", err)
		return Result{Content: ErrorContent(err), Failed: true}, nil
	}
	return Result{Content: content, Terminal: spec.Kind == KindTerminal}, nil
}

func run(ctx context.Context, spec Spec, args map[string]any) (content string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool %s panicked: %v", spec.Name, p)
		}
	}()
	return spec.Exec(ctx, args)
}

func parseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("arguments contain trailing data")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("arguments must be a JSON object, got %s", jsonType(v))
	}
	return obj, nil
}
