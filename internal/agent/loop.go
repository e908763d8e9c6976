package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clipsmith/clipsmith/internal/content"
	"github.com/clipsmith/clipsmith/internal/llm"
	"github.com/clipsmith/clipsmith/internal/prompt"
	"github.com/clipsmith/clipsmith/internal/sanitize"
)

// maxSteps bounds how many model turns a single user turn may take. Each
// step is one streamed completion; tool calls consume a step.
const maxSteps = 5

const agentTemp = 0.7

// Event is one unit of agent output forwarded to the caller as it
// happens. Text deltas are never retracted once sent, even if a later
// step fails.
type Event struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Tool string `json:"tool,omitempty"`
}

// Sink receives agent events in order. A Send error aborts the turn.
type Sink interface {
	Send(Event) error
}

// TurnRequest carries the conversation plus optional ambient context
// that is folded into the system prompt.
type TurnRequest struct {
	Messages   []llm.Message
	Transcript string
	Style      *content.StyleProfile
	Purpose    string
}

// Loop drives the multi-step conversation: stream a model turn, execute
// any tool calls synchronously in call order, feed results back, repeat.
type Loop struct {
	llm    llm.Streamer
	tools  *Toolbox
	model  string
	logger *slog.Logger
}

func NewLoop(client llm.Streamer, tools *Toolbox, model string, logger *slog.Logger) *Loop {
	return &Loop{llm: client, tools: tools, model: model, logger: logger}
}

// Run executes one user turn to completion, forwarding deltas and tool
// activity to the sink. It returns once the model produces a turn with
// no tool calls, the step budget is exhausted, or ctx is cancelled.
func (l *Loop) Run(ctx context.Context, req TurnRequest, sink Sink) error {
	messages := make([]llm.Message, 0, len(req.Messages)+1)
	messages = append(messages, llm.Message{Role: "system", Content: l.systemPrompt(req)})
	messages = append(messages, req.Messages...)

	defs := l.tools.Definitions()

	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := l.llm.StreamChat(ctx, llm.ChatRequest{
			Model:       l.model,
			Messages:    messages,
			Temperature: agentTemp,
			Tools:       defs,
			Stream:      true,
		}, func(delta string) {
			if delta != "" {
				_ = sink.Send(Event{Type: "delta", Text: delta})
			}
		})
		if err != nil {
			return fmt.Errorf("agent step %d: %w", step+1, err)
		}
		messages = append(messages, msg)

		if len(msg.ToolCalls) == 0 {
			return sink.Send(Event{Type: "done"})
		}

		for _, call := range msg.ToolCalls {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := sink.Send(Event{Type: "tool_call", Tool: call.Function.Name}); err != nil {
				return err
			}

			result, err := l.tools.Execute(ctx, call.Function.Name, []byte(call.Function.Arguments))
			if err != nil {
				l.logger.Warn("tool call failed", "tool", call.Function.Name, "error", err)
				result = fmt.Sprintf(`{"error":%q}`, err.Error())
			}
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})

			if err := sink.Send(Event{Type: "tool_result", Tool: call.Function.Name}); err != nil {
				return err
			}
		}
	}

	l.logger.Warn("agent turn hit step limit", "steps", maxSteps)
	return sink.Send(Event{Type: "done"})
}

func (l *Loop) systemPrompt(req TurnRequest) string {
	sys := prompt.AgentSystemPrompt
	if req.Transcript != "" {
		sys += "\n\n" + prompt.ContextMessage(req.Transcript, req.Style)
	}
	if req.Purpose != "" {
		sys += "\n\nContent purpose: " + sanitize.Purpose(req.Purpose)
	}
	return sys
}
