// Package llm 根据配置构建 eino ChatModel，屏蔽各模型提供方的差异。
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/eino-contrib/jsonschema"
	"github.com/projectlens/backend/config"
	"google.golang.org/genai"
	"k8s.io/klog/v2"
)

// DefaultOllamaURL 本地 Ollama 默认地址
const DefaultOllamaURL = "http://localhost:11434"

// ErrMissingAPIKey 缺少提供方凭据
var ErrMissingAPIKey = errors.New("llm api key is required")

// ErrUnsupportedProvider 未知的提供方
var ErrUnsupportedProvider = errors.New("unsupported llm provider")

// ResponseSchema 要求模型按该 JSON Schema 输出
type ResponseSchema struct {
	Name   string
	Schema *jsonschema.Schema
}

type options struct {
	responseSchema *ResponseSchema
}

// Option ChatModel 构建选项
type Option func(*options)

// WithResponseSchema 对支持结构化输出的提供方启用 schema 约束。
// anthropic 没有对应参数，只能依靠提示词约束输出。
func WithResponseSchema(name string, s *jsonschema.Schema) Option {
	return func(o *options) {
		if s != nil {
			o.responseSchema = &ResponseSchema{Name: name, Schema: s}
		}
	}
}

// NewChatModel 按 llm.provider 创建 ChatModel，返回值已包装日志
func NewChatModel(ctx context.Context, cfg *config.Config, opts ...Option) (model.BaseChatModel, error) {
	llmCfg := cfg.LLM
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	klog.V(6).Infof("[llm.NewChatModel] 创建 ChatModel: provider=%s, model=%s, responseSchema=%v",
		llmCfg.Provider, llmCfg.Model, o.responseSchema != nil)

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch llmCfg.Provider {
	case config.ProviderOpenAI:
		chatModel, err = newOpenAI(ctx, llmCfg, o.responseSchema)
	case config.ProviderAnthropic:
		chatModel, err = newClaude(ctx, llmCfg)
	case config.ProviderGemini:
		chatModel, err = newGemini(ctx, llmCfg, o.responseSchema)
	case config.ProviderOllama:
		chatModel, err = newOllama(ctx, llmCfg, o.responseSchema)
	default:
		return nil, fmt.Errorf("%w: %q (supported: openai, anthropic, gemini, ollama)", ErrUnsupportedProvider, llmCfg.Provider)
	}
	if err != nil {
		klog.Errorf("[llm.NewChatModel] 创建 ChatModel 失败: provider=%s, error=%v", llmCfg.Provider, err)
		return nil, err
	}

	klog.V(6).Infof("[llm.NewChatModel] ChatModel 创建成功")
	return NewLoggingChatModel(chatModel, llmCfg.Model), nil
}

func requireKey(llmCfg config.LLMConfig) error {
	if strings.TrimSpace(llmCfg.APIKey) == "" {
		return fmt.Errorf("%w: provider=%s", ErrMissingAPIKey, llmCfg.Provider)
	}
	return nil
}

// newOpenAI 有 schema 时使用严格的 json_schema 模式，否则退回 json_object
func newOpenAI(ctx context.Context, llmCfg config.LLMConfig, rs *ResponseSchema) (model.BaseChatModel, error) {
	if err := requireKey(llmCfg); err != nil {
		return nil, err
	}
	temperature := llmCfg.Temperature
	c := &openai.ChatModelConfig{
		APIKey:         llmCfg.APIKey,
		BaseURL:        llmCfg.APIURL,
		Model:          llmCfg.Model,
		Timeout:        llmCfg.Timeout,
		Temperature:    &temperature,
		ResponseFormat: openAIResponseFormat(rs),
	}
	if llmCfg.MaxTokens > 0 {
		maxTokens := llmCfg.MaxTokens
		c.MaxTokens = &maxTokens
	}
	return openai.NewChatModel(ctx, c)
}

func openAIResponseFormat(rs *ResponseSchema) *openai.ChatCompletionResponseFormat {
	if rs == nil {
		return &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:       rs.Name,
			JSONSchema: rs.Schema,
			Strict:     true,
		},
	}
}

// newClaude 没有结构化输出参数，输出格式只由提示词约束
func newClaude(ctx context.Context, llmCfg config.LLMConfig) (model.BaseChatModel, error) {
	if err := requireKey(llmCfg); err != nil {
		return nil, err
	}
	maxTokens := llmCfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return claude.NewChatModel(ctx, &claude.Config{
		APIKey:    llmCfg.APIKey,
		Model:     llmCfg.Model,
		MaxTokens: maxTokens,
	})
}

// newGemini 设置 ResponseJSONSchema 后同时启用 application/json 输出
func newGemini(ctx context.Context, llmCfg config.LLMConfig, rs *ResponseSchema) (model.BaseChatModel, error) {
	if err := requireKey(llmCfg); err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  llmCfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client failed: %w", err)
	}
	c := &gemini.Config{
		Client: client,
		Model:  llmCfg.Model,
	}
	if rs != nil {
		c.ResponseJSONSchema = rs.Schema
	}
	if llmCfg.MaxTokens > 0 {
		maxTokens := llmCfg.MaxTokens
		c.MaxTokens = &maxTokens
	}
	return gemini.NewChatModel(ctx, c)
}

func newOllama(ctx context.Context, llmCfg config.LLMConfig, rs *ResponseSchema) (model.BaseChatModel, error) {
	baseURL := llmCfg.APIURL
	if baseURL == "" || baseURL == config.DefaultOpenAIURL {
		baseURL = DefaultOllamaURL
	}
	format, err := ollamaFormat(rs)
	if err != nil {
		return nil, err
	}
	return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
		BaseURL: baseURL,
		Model:   llmCfg.Model,
		Timeout: llmCfg.Timeout,
		Format:  format,
	})
}

// ollamaFormat format 字段接受 "json" 或完整的 JSON Schema
func ollamaFormat(rs *ResponseSchema) (json.RawMessage, error) {
	if rs == nil {
		return json.RawMessage(`"json"`), nil
	}
	raw, err := json.Marshal(rs.Schema)
	if err != nil {
		return nil, fmt.Errorf("marshal response schema failed: %w", err)
	}
	return raw, nil
}
