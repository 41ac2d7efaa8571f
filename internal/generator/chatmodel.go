package generator

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModel generates answers through any eino chat model (OpenAI, Azure,
// Gemini, Ark, or Ollama's chat endpoint). The persona is sent as the system
// message and the rendered prompt as the user message.
type ChatModel struct {
	model    model.BaseChatModel
	backend  string
	timeout  time.Duration
	handlers []callbacks.Handler
}

// NewChatModel wraps m. backend names the provider in failure messages and
// timeout bounds each call (defaults to 60s).
func NewChatModel(m model.BaseChatModel, backend string, timeout time.Duration) *ChatModel {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ChatModel{model: m, backend: backend, timeout: timeout}
}

// WithHandlers attaches eino callback handlers (tracing) to every call.
func (c *ChatModel) WithHandlers(handlers ...callbacks.Handler) *ChatModel {
	c.handlers = append(c.handlers, handlers...)
	return c
}

// Generate sends a single request to the chat model. It is never retried.
func (c *ChatModel) Generate(ctx context.Context, question, grounding string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if len(c.handlers) > 0 {
		ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
			Name:      "yolsda-answer",
			Type:      c.backend,
			Component: components.ComponentOfChatModel,
		}, c.handlers...)
	}

	msg, err := c.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(SystemPersona),
		schema.UserMessage(BuildPrompt(question, grounding)),
	})
	if err != nil {
		return c.classify(err)
	}
	if msg == nil {
		return Result{Kind: KindUpstream, Backend: c.backend, Body: "empty response"}
	}
	return Result{Kind: KindOK, Backend: c.backend, Text: msg.Content}
}

// classify separates timeouts and network failures from errors reported by
// the provider itself. Provider SDKs rarely expose the HTTP status, so
// upstream results carry the error text with Status left at zero.
func (c *ChatModel) classify(err error) Result {
	r := classify(c.backend, err)
	if r.Kind == KindTimeout {
		return r
	}
	if isNetworkError(err) {
		return r
	}
	return Result{Kind: KindUpstream, Backend: c.backend, Body: err.Error()}
}

// isNetworkError reports whether err carries a net.Error.
func isNetworkError(err error) bool {
	var ne net.Error
	return errors.As(err, &ne)
}
