package reasoner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/teemow/noon/internal/agent"
	"github.com/teemow/noon/internal/instrumentation"
	"github.com/teemow/noon/internal/logging"
)

// OpenAI defaults.
const (
	DefaultModel       = openai.GPT5Nano
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

// ErrNoToolCall is returned when the model answers without calling a tool.
var ErrNoToolCall = errors.New("model answered without a tool call")

// ChatClient is the part of the go-openai client the reasoner uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig configures the OpenAI reasoner.
type OpenAIConfig struct {
	APIKey string
	// BaseURL points at an OpenAI-compatible endpoint; empty means api.openai.com.
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// OpenAI asks a chat model for the next step through function calling.
// Every registry tool is advertised with its JSON Schema; the model's tool
// calls are validated with agent.DecodeCall. The conversation is rebuilt
// from the cycle's facts on every step, so the reasoner holds no state.
type OpenAI struct {
	client ChatClient
	cfg    OpenAIConfig
	logger *slog.Logger
}

var _ agent.Reasoner = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI reasoner talking to the configured endpoint.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	return NewOpenAIWithClient(openai.NewClientWithConfig(clientCfg), cfg), nil
}

// NewOpenAIWithClient creates an OpenAI reasoner using client.
func NewOpenAIWithClient(client ChatClient, cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{client: client, cfg: cfg, logger: logger}
}

// Next implements agent.Reasoner.
func (o *OpenAI) Next(ctx context.Context, s *agent.State) (agent.Step, error) {
	ctx, span := instrumentation.StartSpan(ctx, "reasoner.openai")
	defer span.End()

	messages, err := transcript(s)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return agent.Step{}, err
	}
	req := openai.ChatCompletionRequest{
		Model:               o.cfg.Model,
		Messages:            messages,
		Tools:               tools(s.Remaining() > 0),
		ToolChoice:          "required",
		MaxCompletionTokens: o.cfg.MaxTokens,
	}
	// Reasoning models only accept their fixed temperature.
	if !reasoningModel(o.cfg.Model) {
		req.Temperature = o.cfg.Temperature
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		err = fmt.Errorf("chat completion failed: %w", err)
		instrumentation.SetSpanError(span, err)
		return agent.Step{}, err
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("%w: empty response", ErrNoToolCall)
		instrumentation.SetSpanError(span, err)
		return agent.Step{}, err
	}

	msg := resp.Choices[0].Message
	o.logger.DebugContext(ctx, "model step",
		logging.Cycle(s.CycleID),
		slog.Int("tool_calls", len(msg.ToolCalls)),
		slog.Int("total_tokens", resp.Usage.TotalTokens))

	if len(msg.ToolCalls) == 0 {
		err := fmt.Errorf("%w: %s", ErrNoToolCall, logging.TruncateQuery(msg.Content, 200))
		instrumentation.SetSpanError(span, err)
		return agent.Step{}, err
	}

	step := agent.Step{Note: strings.TrimSpace(msg.Content)}
	for _, tc := range msg.ToolCalls {
		call, err := agent.DecodeCall(tc.Function.Name, json.RawMessage(tc.Function.Arguments))
		if err != nil {
			instrumentation.SetSpanError(span, err)
			return agent.Step{}, err
		}
		step.Calls = append(step.Calls, call)
	}
	instrumentation.SetSpanSuccess(span)
	return step, nil
}

// tools advertises the registry. Without round trips left only terminal
// tools are offered.
func tools(gathering bool) []openai.Tool {
	var out []openai.Tool
	for _, spec := range agent.Tools() {
		if !spec.Terminal && !gathering {
			continue
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}
	return out
}

func reasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// transcript replays the cycle as a chat: the system prompt, the query,
// then one tool call and its result per fact.
func transcript(s *agent.State) ([]openai.ChatCompletionMessage, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(s)},
		{Role: openai.ChatMessageRoleUser, Content: s.Query.Text},
	}
	for i, f := range s.Facts {
		args, err := agent.EncodeCall(f.Call)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(f.Output())
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s result: %w", f.Call.Tool(), err)
		}
		id := fmt.Sprintf("call_%d", i+1)
		messages = append(messages,
			openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:   id,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      f.Call.Tool(),
						Arguments: string(args),
					},
				}},
			},
			openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: id,
				Content:    string(out),
			},
		)
	}
	return messages, nil
}
