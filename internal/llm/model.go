// Package llm provides LLM text generation and tool calling using langchaingo.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/radar/internal/config"
	"github.com/raphaelgruber/radar/internal/metrics"
)

// Default chat models per provider, applied when RADAR_LLM_MODEL is unset.
const (
	defaultOllamaModel    = "llama3.1"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-haiku-20241022"
	defaultBedrockModel   = "anthropic.claude-3-5-haiku-20241022-v1:0"
)

// Model wraps langchaingo LLM for text generation and tool calling.
type Model struct {
	llm       llms.Model
	modelName string
	collector *metrics.Collector
}

// NewModel creates an LLM model based on configuration. The context is used
// only for provider setup (AWS credential resolution for bedrock); generation
// calls carry their own contexts. The collector may be nil.
func NewModel(ctx context.Context, cfg config.Config, collector *metrics.Collector) (*Model, error) {
	var model llms.Model
	var err error

	modelName := cfg.LLMModel

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		if modelName == "" {
			modelName = defaultOllamaModel
		}
		model, err = ollama.New(
			ollama.WithModel(modelName),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		if modelName == "" {
			modelName = defaultOpenAIModel
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIKey),
			openai.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		if modelName == "" {
			modelName = defaultAnthropicModel
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicKey),
			anthropic.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		if modelName == "" {
			modelName = defaultBedrockModel
		}
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx)
		if awsErr != nil {
			return nil, fmt.Errorf("load aws config: %w", awsErr)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		llm:       model,
		modelName: modelName,
		collector: collector,
	}, nil
}

// Generate generates text based on a prompt.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	response, err := llms.GenerateFromSinglePrompt(ctx, m.llm, prompt)
	if err != nil {
		return "", wrapFatalError(fmt.Errorf("generate: %w", err))
	}
	m.record(metrics.OpLLMGenerate, start, nil)
	return response, nil
}

// GenerateWithSystem generates text with a system prompt.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	start := time.Now()
	response, err := m.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", wrapFatalError(fmt.Errorf("generate with system: %w", err))
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	m.record(metrics.OpLLMGenerate, start, response.Choices[0])
	return response.Choices[0].Content, nil
}

// GenerateWithTools runs one round of generation with tool definitions
// attached. Callers inspect the returned choice's ToolCalls and loop with
// extended messages until the model stops calling tools.
func (m *Model) GenerateWithTools(ctx context.Context, messages []llms.MessageContent, tools []llms.Tool) (*llms.ContentResponse, error) {
	start := time.Now()
	response, err := m.llm.GenerateContent(ctx, messages, llms.WithTools(tools))
	if err != nil {
		return nil, wrapFatalError(fmt.Errorf("generate with tools: %w", err))
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}

	m.record(metrics.OpLLMTools, start, response.Choices[0])
	return response, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// GroupThemes asks the model to group the given signal digest into themes.
// The reply is expected to be a JSON array; parsing belongs to the caller.
func (m *Model) GroupThemes(ctx context.Context, signalBlock string) (string, error) {
	systemPrompt := `You are a research analyst. Group the numbered signals into themes of related work.

Rules:
- A theme needs at least 2 signals; leave loners out
- Every signal index may appear in at most one theme
- Name each theme in at most five words and describe it in one sentence

Respond with ONLY a JSON array, no prose:
[{"name": "...", "description": "...", "members": [1, 4, 7]}]`

	userPrompt := fmt.Sprintf(`Signals:
%s

JSON:`, signalBlock)

	return m.GenerateWithSystem(ctx, systemPrompt, userPrompt)
}

// record adds timing and, when the choice carries usage info, token counts.
func (m *Model) record(op string, start time.Time, choice *llms.ContentChoice) {
	if m.collector == nil {
		return
	}
	in, out := tokenUsage(choice)
	if in > 0 || out > 0 {
		m.collector.RecordLLMUsage(op, time.Since(start), in, out)
		return
	}
	m.collector.RecordTiming(op, time.Since(start))
}

// tokenUsage pulls token counts out of a choice's GenerationInfo. Providers
// disagree on key names, so match loosely.
func tokenUsage(choice *llms.ContentChoice) (in, out int64) {
	if choice == nil || choice.GenerationInfo == nil {
		return 0, 0
	}
	for key, val := range choice.GenerationInfo {
		switch strings.ReplaceAll(strings.ToLower(key), "_", "") {
		case "prompttokens", "inputtokens":
			in = asInt64(val)
		case "completiontokens", "outputtokens":
			out = asInt64(val)
		}
	}
	return in, out
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}
