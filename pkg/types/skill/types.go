// Package skill defines the core data model shared by the skill parsers,
// the capability validator, the argument binder and the execution backends:
// skill definitions, tool schemas, capability sets and execution results.
package skill

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Kind discriminates how a skill's tools are executed. It is selected once at
// parse time; all later dispatch goes through the execution backend interface.
type Kind string

const (
	// NativeCommand is a SKILL.md-described wrapper around allowlisted executables.
	NativeCommand Kind = "native"
	// SandboxedModule is a WebAssembly module executed with restricted capabilities.
	SandboxedModule Kind = "wasm"
)

// ParameterType enumerates the value types a tool parameter may declare.
type ParameterType string

const (
	TypeString  ParameterType = "string"
	TypeInteger ParameterType = "integer"
	TypeNumber  ParameterType = "number"
	TypeBoolean ParameterType = "boolean"
	TypeEnum    ParameterType = "enum"
	TypeArray   ParameterType = "array"
)

// Parameter describes a single tool parameter.
type Parameter struct {
	Name        string        `json:"name"`
	Type        ParameterType `json:"paramType"`
	Description string        `json:"description,omitempty"`
	Required    bool          `json:"required"`
	Default     *string       `json:"defaultValue,omitempty"`
	Enum        []string      `json:"enum,omitempty"`
}

// Tool is a single invocable action. Template is only set for NativeCommand
// skills and holds the verbatim command snippet with ${name} tokens.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  []Parameter `json:"parameters,omitempty"`
	Template    string      `json:"-"`
}

// Parameter returns the named parameter spec, if declared.
func (t *Tool) Parameter(name string) (*Parameter, bool) {
	for i := range t.Parameters {
		if t.Parameters[i].Name == name {
			return &t.Parameters[i], true
		}
	}
	return nil, false
}

// CapabilitySet is the skill's declared permissions. Anything not declared is
// denied; there is no implicit wildcard. AllowedTools applies to NativeCommand
// skills, Network and Filesystem to SandboxedModule skills.
type CapabilitySet struct {
	AllowedTools []string `json:"allowedTools,omitempty"`
	Network      []string `json:"network,omitempty"`
	Filesystem   []string `json:"filesystem,omitempty"`
}

// Definition is a fully parsed skill. It is immutable once built and is shared
// read-only across concurrent invocations; the definition cache owns it, keyed
// by Hash.
type Definition struct {
	Name         string        `json:"name"`
	Version      string        `json:"version,omitempty"`
	Description  string        `json:"description,omitempty"`
	Author       string        `json:"author,omitempty"`
	Repository   string        `json:"repository,omitempty"`
	License      string        `json:"license,omitempty"`
	Kind         Kind          `json:"kind"`
	Tools        []Tool        `json:"tools"`
	Capabilities CapabilitySet `json:"capabilities"`
	// Hash is the content hash of the source the definition was parsed from.
	Hash string `json:"hash,omitempty"`
	// Module holds the raw WebAssembly bytes for SandboxedModule skills.
	Module []byte `json:"-"`
}

// Tool returns the named tool definition, if the skill provides it.
func (d *Definition) Tool(name string) (*Tool, bool) {
	for i := range d.Tools {
		if d.Tools[i].Name == name {
			return &d.Tools[i], true
		}
	}
	return nil, false
}

// BoundArguments maps parameter names to validated, typed values. It is
// produced by the binder and is the only argument shape that ever reaches
// template substitution or module invocation.
type BoundArguments map[string]any

// JSON encodes the bound arguments for the sandboxed-module entry point.
func (a BoundArguments) JSON() (string, error) {
	b, err := json.Marshal(map[string]any(a))
	if err != nil {
		return "", errors.Wrap(err, "failed to encode bound arguments")
	}
	return string(b), nil
}

// ExecutionRequest is the per-call input to the engine. It holds no state
// across calls.
type ExecutionRequest struct {
	Skill     string
	Tool      string
	Arguments map[string]any
	Timeout   time.Duration
}

// ErrorKind classifies a failed execution for collaborators that branch on the
// failure class (e.g. retry policy lives with the caller, never in the engine).
type ErrorKind string

const (
	ErrKindParse            ErrorKind = "parse"
	ErrKindCapabilityDenied ErrorKind = "capability_denied"
	ErrKindMissingParameter ErrorKind = "missing_parameter"
	ErrKindTypeMismatch     ErrorKind = "type_mismatch"
	ErrKindSubstitution     ErrorKind = "substitution"
	ErrKindExecution        ErrorKind = "execution"
	ErrKindTimeout          ErrorKind = "timeout"
	ErrKindInternal         ErrorKind = "internal"
)

// ResultError is the structured error carried by a failed ExecutionResult.
type ResultError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ExecutionResult is the uniform outcome of a tool invocation, identical in
// shape for both backends. It is terminal and immutable; results are never
// cached or reused across requests.
type ExecutionResult struct {
	Success   bool          `json:"success"`
	Output    string        `json:"output"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"-"`
	Error     *ResultError  `json:"error,omitempty"`
}

// WireResult is the stable collaborator-facing wire shape.
type WireResult struct {
	Success      bool    `json:"success"`
	Output       string  `json:"output"`
	ErrorMessage *string `json:"errorMessage"`
}

// Wire converts the result to its wire shape.
func (r *ExecutionResult) Wire() WireResult {
	w := WireResult{Success: r.Success, Output: r.Output}
	if r.Error != nil {
		msg := r.Error.Message
		w.ErrorMessage = &msg
	}
	return w
}
