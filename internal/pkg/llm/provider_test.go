package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/eino-contrib/jsonschema"
	"github.com/projectlens/backend/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChatModelMissingKey(t *testing.T) {
	for _, provider := range []string{config.ProviderOpenAI, config.ProviderAnthropic, config.ProviderGemini} {
		cfg := config.Default()
		cfg.LLM.Provider = provider
		cfg.LLM.APIKey = "  "

		_, err := NewChatModel(context.Background(), cfg)
		require.Error(t, err, provider)
		assert.True(t, errors.Is(err, ErrMissingAPIKey), "provider=%s err=%v", provider, err)
	}
}

func TestNewChatModelUnsupportedProvider(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = "mistral"

	_, err := NewChatModel(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedProvider))
}

func TestNewChatModelOpenAI(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = "sk-test"

	m, err := NewChatModel(context.Background(), cfg)
	require.NoError(t, err)
	wrapped, ok := m.(*LoggingChatModel)
	require.True(t, ok, "应返回带日志的包装")
	assert.Equal(t, "gpt-4o", wrapped.ModelName())
}

func TestNewChatModelOllamaWithoutKey(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = config.ProviderOllama
	cfg.LLM.Model = "llama3"

	m, err := NewChatModel(context.Background(), cfg, WithResponseSchema("audit_report", &jsonschema.Schema{Type: "object"}))
	require.NoError(t, err)
	assert.NotNil(t, m)
}

type stubChatModel struct {
	reply *schema.Message
	err   error
	calls int
}

func (s *stubChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	s.calls++
	return s.reply, s.err
}

func (s *stubChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return schema.StreamReaderFromArray([]*schema.Message{s.reply}), nil
}

func TestLoggingChatModelDelegates(t *testing.T) {
	stub := &stubChatModel{reply: schema.AssistantMessage(`{"ok":true}`, nil)}
	m := NewLoggingChatModel(stub, "test-model")

	resp, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Content)

	reader, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	msg, err := reader.Recv()
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, msg.Content)
	assert.Equal(t, 2, stub.calls)
}

func TestLoggingChatModelPropagatesError(t *testing.T) {
	stub := &stubChatModel{err: errors.New("connection refused")}
	m := NewLoggingChatModel(stub, "test-model")

	_, err := m.Generate(context.Background(), nil)
	assert.EqualError(t, err, "connection refused")
}

func TestLoggingChatModelNilResponse(t *testing.T) {
	stub := &stubChatModel{}
	m := NewLoggingChatModel(stub, "test-model")

	resp, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIResponseFormat(t *testing.T) {
	f := openAIResponseFormat(nil)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, f.Type)
	assert.Nil(t, f.JSONSchema)

	s := &jsonschema.Schema{Type: "object"}
	f = openAIResponseFormat(&ResponseSchema{Name: "audit_report", Schema: s})
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONSchema, f.Type)
	require.NotNil(t, f.JSONSchema)
	assert.Equal(t, "audit_report", f.JSONSchema.Name)
	assert.True(t, f.JSONSchema.Strict)
	assert.Same(t, s, f.JSONSchema.JSONSchema)
}

func TestOllamaFormat(t *testing.T) {
	raw, err := ollamaFormat(nil)
	require.NoError(t, err)
	assert.Equal(t, `"json"`, string(raw))

	raw, err = ollamaFormat(&ResponseSchema{Name: "audit_report", Schema: &jsonschema.Schema{Type: "object"}})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"object"`)
}

func TestWithResponseSchemaIgnoresNil(t *testing.T) {
	o := &options{}
	WithResponseSchema("audit_report", nil)(o)
	assert.Nil(t, o.responseSchema)
}
