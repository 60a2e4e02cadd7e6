// Package capability routes invocation envelopes to the handlers that own
// their command names.
package capability

import "context"

// Request is an inbound invocation envelope. Args holds decoded JSON values:
// strings, float64 numbers, bools, []interface{} and map[string]interface{}.
type Request struct {
	ID      string                 `json:"id"`
	Command string                 `json:"command"`
	Args    map[string]interface{} `json:"args,omitempty"`
}

// Response answers exactly one Request. Error is set only when OK is false.
type Response struct {
	ID      string      `json:"id"`
	OK      bool        `json:"ok"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Capability is a group of commands sharing one category.
type Capability interface {
	Category() string
	Commands() []string
	CanHandle(command string) bool
	Execute(ctx context.Context, req Request) Response
}

// Success builds an OK response.
func Success(id string, payload interface{}) Response {
	return Response{ID: id, OK: true, Payload: payload}
}

// Error builds a failed response carrying msg.
func Error(id, msg string) Response {
	return Response{ID: id, OK: false, Error: msg}
}

// Base implements the fixed parts of Capability for embedding.
type Base struct {
	category string
	commands []string
}

func NewBase(category string, commands ...string) Base {
	return Base{category: category, commands: append([]string(nil), commands...)}
}

func (b Base) Category() string {
	return b.category
}

func (b Base) Commands() []string {
	return append([]string(nil), b.commands...)
}

// CanHandle matches command names exactly, including case.
func (b Base) CanHandle(command string) bool {
	for _, c := range b.commands {
		if c == command {
			return true
		}
	}
	return false
}
