// Package capability defines the uniform contract over the specialized
// responders (summarizer, action items, search). Each capability constructs
// its own tool-augmented prompt; the routing decision between them belongs to
// the manager.
package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"teamassist/internal/models"
	"teamassist/internal/storage"
	"teamassist/internal/timerange"
)

// Config is the per-request context a capability runs under. It is built by
// the manager at the start of one inbound-event handling cycle and owned by
// that cycle.
type Config struct {
	ConversationID string
	Timezone       string
	Store          *storage.Store
	Model          model.ToolCallingChatModel

	// Personal marks a 1:1 conversation; UserID/UserName identify the single
	// external user in that mode.
	Personal bool
	UserID   string
	UserName string

	// Participants is the group roster, when one could be fetched.
	Participants []models.Participant

	// Window is the pre-resolved time range shared with the manager so both
	// sides never derive two different windows for the same request.
	Window *timerange.Window

	// Output collects side artifacts (citations, quoted cards) produced by
	// tool calls during the prompt cycle.
	Output *Output

	Logger *zap.Logger
}

func (c *Config) validate() error {
	if c == nil {
		return errors.New("capability config is required")
	}
	if c.Store == nil {
		return errors.New("capability config missing storage")
	}
	if c.ConversationID == "" {
		return errors.New("capability config missing conversation id")
	}
	return nil
}

func (c *Config) log() *zap.Logger {
	if c == nil || c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Output is the side channel for artifacts that do not belong in the textual
// response.
type Output struct {
	Citations []models.Citation
	Cards     []models.QuotedCard
}

// Result is the normalized outcome of one capability request. Err carries a
// capability-reported failure instead of a raised error so the manager can
// fall back to a generic reply.
type Result struct {
	Response  string
	Citations []models.Citation
	Err       string
}

// Capability is the shared contract implemented by the summarizer, action
// items and search variants.
type Capability interface {
	Name() string
	// CreatePrompt constructs a prompt runner pre-registered with the
	// capability's tools. It fails fast when required configuration is
	// missing.
	CreatePrompt(ctx context.Context, cfg *Config) (PromptRunner, error)
	// ProcessRequest runs one full prompt cycle for the user text.
	ProcessRequest(ctx context.Context, userText string, cfg *Config) Result
	// ToolInfos exposes the tool contracts for introspection and tests
	// without invoking the model.
	ToolInfos() []*schema.ToolInfo
}

// PromptRunner is one constructed prompt instance ready to take user text.
type PromptRunner interface {
	Generate(ctx context.Context, messages []*schema.Message) (*schema.Message, error)
}

// NewRunner builds the tool-calling agent behind PromptRunner. It is a
// package variable so tests can substitute a scripted runner and keep the
// model's tool-selection out of the deterministic paths.
var NewRunner = func(ctx context.Context, m model.ToolCallingChatModel, tools []tool.BaseTool) (PromptRunner, error) {
	agent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: m,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: tools,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init react agent: %w", err)
	}
	return reactRunner{agent: agent}, nil
}

type reactRunner struct {
	agent *react.Agent
}

func (r reactRunner) Generate(ctx context.Context, messages []*schema.Message) (*schema.Message, error) {
	return r.agent.Generate(ctx, messages)
}

// run is the default ProcessRequest behavior shared by all capabilities:
// build the prompt, append the pre-resolved window as explicit instruction
// text, send the user text, and report failures as a Result instead of an
// error.
func run(ctx context.Context, cfg *Config, systemPrompt string, tools []tool.BaseTool, userText string) Result {
	if err := cfg.validate(); err != nil {
		return Result{Err: err.Error()}
	}
	runner, err := NewRunner(ctx, cfg.Model, tools)
	if err != nil {
		cfg.log().Error("capability prompt init failed", zap.Error(err))
		return Result{Err: err.Error()}
	}

	messages := []*schema.Message{{Role: schema.System, Content: systemPrompt}}
	if cfg.Window != nil {
		messages = append(messages, &schema.Message{
			Role: schema.System,
			Content: fmt.Sprintf(
				"The relevant time range has already been resolved: %s, from %s to %s (UTC). Use these exact bounds; do not derive your own.",
				cfg.Window.Description,
				storage.Timestamp(cfg.Window.Start),
				storage.Timestamp(cfg.Window.End)),
		})
	}
	messages = append(messages, &schema.Message{Role: schema.User, Content: userText})

	resp, err := runner.Generate(ctx, messages)
	if err != nil {
		cfg.log().Error("capability generate failed",
			zap.String("conversation_id", cfg.ConversationID), zap.Error(err))
		return Result{Err: err.Error()}
	}

	out := Result{Response: resp.Content}
	if cfg.Output != nil {
		out.Citations = cfg.Output.Citations
	}
	return out
}

// toolError converts an internal tool failure into a structured payload for
// the model, so a single failing tool never hard-fails the conversation.
func toolError(logger *zap.Logger, toolName string, err error) (string, error) {
	logger.Error("tool call failed", zap.String("tool", toolName), zap.Error(err))
	payload, _ := json.Marshal(map[string]string{"status": "error", "message": err.Error()})
	return string(payload), nil
}

func toolJSON(logger *zap.Logger, toolName string, v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return toolError(logger, toolName, err)
	}
	return string(payload), nil
}

// normalizeBound renders a caller-supplied ISO-8601 bound in the canonical
// stored format so lexical range comparison stays valid.
func normalizeBound(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	t, err := storage.ParseTimestamp(raw)
	if err != nil {
		t, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return "", fmt.Errorf("unparseable time bound %q", raw)
		}
	}
	return storage.Timestamp(t), nil
}
