// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools exposes the sandboxed capabilities an agent may call.
// definitions.go holds the tool, schema and registry types.
package tools

import (
	"context"
	"strings"
	"time"

	"github.com/jeranaias/rigtools/internal/sandbox"
)

// =============================================================================
// RISK LEVELS
// =============================================================================

// RiskLevel indicates how much a tool can observe or affect.
type RiskLevel int

const (
	// RiskLow - Reads a single confined file or searches within the base directory
	RiskLow RiskLevel = iota

	// RiskMedium - Runs allow-listed external commands
	RiskMedium
)

// String returns the string representation of a risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "Low"
	case RiskMedium:
		return "Medium"
	default:
		return "Unknown"
	}
}

// Color returns the color associated with a risk level.
func (r RiskLevel) Color() string {
	switch r {
	case RiskLow:
		return "#34D399" // Emerald
	case RiskMedium:
		return "#FBBF24" // Amber
	default:
		return "#A6ADC8" // Text secondary
	}
}

// =============================================================================
// TOOL DEFINITION
// =============================================================================

// Tool describes one callable capability.
type Tool struct {
	// Capability identifies the tool; its String() is the wire name.
	Capability Capability

	// Name is the wire name ("bash", "read_file", "search_docs")
	Name string

	// Description is shown to the model verbatim
	Description string

	// Schema defines the tool's parameters
	Schema Schema

	// RiskLevel indicates how much the tool can observe
	RiskLevel RiskLevel

	// Executor handles the actual execution
	Executor ToolExecutor
}

// ShortDescription returns the first sentence of the description.
func (t *Tool) ShortDescription() string {
	if idx := strings.Index(t.Description, ". "); idx != -1 {
		return t.Description[:idx+1]
	}
	return t.Description
}

// Schema defines a tool's parameters.
type Schema struct {
	Parameters []Parameter
}

// Parameter defines a single tool parameter.
type Parameter struct {
	// Name of the parameter
	Name string

	// Type is the parameter type ("string", "integer", "number", "boolean")
	Type string

	// Required indicates if the parameter must be provided
	Required bool

	// Description explains the parameter
	Description string

	// Default is the default value if not provided
	Default interface{}

	// Minimum bounds integer parameters when non-nil
	Minimum *int
}

// JSONSchema renders the schema as a JSON-Schema object.
func (s Schema) JSONSchema() map[string]interface{} {
	properties := make(map[string]interface{}, len(s.Parameters))
	required := make([]string, 0, len(s.Parameters))

	for _, p := range s.Parameters {
		prop := map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// =============================================================================
// TOOL EXECUTOR INTERFACE
// =============================================================================

// ToolExecutor is implemented by each capability façade.
// A non-nil error is one of the typed errors of this package or of sandbox.
type ToolExecutor interface {
	Execute(ctx context.Context, params map[string]interface{}) (Result, error)
}

// Result holds the outcome of a tool execution.
type Result struct {
	// Success indicates if the tool executed successfully
	Success bool

	// Output is the tool's output (for successful execution)
	Output string

	// Error is the error message (for failed execution)
	Error string

	// Class is the error class for failed execution
	Class ErrorClass

	// Duration is how long execution took
	Duration time.Duration

	// Truncated indicates read_file hit its size or line limit
	Truncated bool

	// LinesCount is the number of lines returned by read_file
	LinesCount int
}

// =============================================================================
// TOOL REGISTRY
// =============================================================================

// Registry holds the tools of one base directory.
type Registry struct {
	tools    map[string]*Tool
	order    []string
	resolver *sandbox.Resolver
	policy   *sandbox.CommandPolicy
}

// NewRegistry creates a registry with the three built-in tools bound to
// resolver and policy.
func NewRegistry(resolver *sandbox.Resolver, policy *sandbox.CommandPolicy) *Registry {
	r := &Registry{
		tools:    make(map[string]*Tool),
		resolver: resolver,
		policy:   policy,
	}

	r.Register(NewBashTool(policy, resolver.Base()))
	r.Register(NewReadFileTool(resolver))
	r.Register(NewSearchDocsTool(resolver))

	return r
}

// Register adds a tool to the registry, replacing any tool of the same name.
func (r *Registry) Register(tool *Tool) {
	if _, exists := r.tools[tool.Name]; !exists {
		r.order = append(r.order, tool.Name)
	}
	r.tools[tool.Name] = tool
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Lookup resolves name through the capability set.
func (r *Registry) Lookup(name string) (*Tool, error) {
	if _, err := ParseCapability(name); err != nil {
		return nil, err
	}
	tool := r.tools[name]
	if tool == nil {
		return nil, &UnknownCapabilityError{Name: name}
	}
	return tool, nil
}

// All returns all registered tools in registration order.
func (r *Registry) All() []*Tool {
	result := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.tools[name])
	}
	return result
}

// SetSearchProgram overrides the binary search_docs runs. Empty restores rga.
func (r *Registry) SetSearchProgram(program string) {
	t := r.tools[CapabilitySearchDocs.String()]
	if t == nil {
		return
	}
	if e, ok := t.Executor.(*SearchDocsExecutor); ok {
		e.Program = program
	}
}

// Resolver returns the path resolver the tools are confined by.
func (r *Registry) Resolver() *sandbox.Resolver { return r.resolver }

// Policy returns the command policy of the bash tool.
func (r *Registry) Policy() *sandbox.CommandPolicy { return r.policy }

// =============================================================================
// TOOL CALL
// =============================================================================

// ToolCall represents a parsed tool invocation.
type ToolCall struct {
	ID     string
	Name   string
	Params map[string]interface{}
}

// GetString gets a string parameter with a default value.
func (tc *ToolCall) GetString(name string, defaultVal string) string {
	return getStringParam(tc.Params, name, defaultVal)
}

// GetInt gets an integer parameter with a default value.
func (tc *ToolCall) GetInt(name string, defaultVal int) int {
	return getIntParam(tc.Params, name, defaultVal)
}

func getStringParam(params map[string]interface{}, name, defaultVal string) string {
	if val, ok := params[name]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultVal
}

func getIntParam(params map[string]interface{}, name string, defaultVal int) int {
	if val, ok := params[name]; ok {
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return defaultVal
}
