// Package llm is the LLM invocation wrapper (C1): render a named template
// with variables, call the model, and return raw text. The upstream model
// client and the prompt template bodies themselves are external
// collaborators (see the prompt package for the template contract); this
// package owns only the call boundary and its error surface.
package llm

import (
	"context"
	"fmt"

	"genforge/internal/logging"
	"genforge/internal/prompt"
)

// Error wraps any failure from the upstream model call. Callers must treat
// it as recoverable: the enclosing generate-critique-refine loop surfaces it
// as an "invalid output" extraction failure and relies on its own retry.
type Error struct {
	TemplateID string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm: template %q failed: %v", e.TemplateID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client is the minimal contract an upstream model backend must satisfy.
// Implementations are expected to run at temperature 0, top-p 1, against a
// fixed model id, and to perform no internal retry — retry policy belongs to
// the calling loop, not the client.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Wrapper renders templates via the prompt registry and invokes a Client.
type Wrapper struct {
	client   Client
	registry *prompt.Registry
}

// New builds a Wrapper over the given client and template registry.
func New(client Client, registry *prompt.Registry) *Wrapper {
	return &Wrapper{client: client, registry: registry}
}

// Invoke renders templateID with vars and returns the model's raw text.
func (w *Wrapper) Invoke(ctx context.Context, templateID string, vars map[string]any) (string, error) {
	rendered, err := w.registry.Render(templateID, vars)
	if err != nil {
		return "", &Error{TemplateID: templateID, Err: err}
	}

	timer := logging.StartTimer(logging.CategoryLLM, templateID)
	defer timer.Stop()

	text, err := w.client.Complete(ctx, rendered.System, rendered.User)
	if err != nil {
		logging.LLMError("invoke %s failed: %v", templateID, err)
		return "", &Error{TemplateID: templateID, Err: err}
	}
	return text, nil
}
