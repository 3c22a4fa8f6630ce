package analysis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/projectlens/backend/config"
	"github.com/projectlens/backend/internal/domain"
	"github.com/projectlens/backend/internal/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

const validPayload = `{
  "riskLevel": "High",
  "riskJustification": "Understaffed timeline",
  "topRisks": [
    {"name": "Schedule risk", "why": "12 weeks for a full migration", "reference": "Timeline: 3 months"},
    {"name": "QA gap", "why": "No dedicated QA", "reference": "No dedicated QA"}
  ],
  "fixNowSuggestions": [
    {"riskName": "Schedule risk", "action": "Add one developer"},
    {"riskName": "QA gap", "action": "Book a tester for UAT"}
  ]
}`

// scriptedChatModel 按顺序返回预设的回复或错误
type scriptedChatModel struct {
	replies []reply
	calls   int
	inputs  [][]*schema.Message
}

type reply struct {
	msg *schema.Message
	err error
}

func (m *scriptedChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.inputs = append(m.inputs, input)
	idx := m.calls
	m.calls++
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	return m.replies[idx].msg, m.replies[idx].err
}

func (m *scriptedChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func contentReply(content string) reply {
	return reply{msg: schema.AssistantMessage(content, nil)}
}

func errReply(err error) reply {
	return reply{err: err}
}

func TestAnalyzeSuccessPreservesOrder(t *testing.T) {
	msg := schema.AssistantMessage(validPayload, nil)
	msg.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}}
	fake := &scriptedChatModel{replies: []reply{{msg: msg}}}
	client := New(fake, WithModelName("gpt-test"))

	result, err := client.Analyze(context.Background(), domain.SamplePlan)
	require.NoError(t, err)

	report := result.Report
	assert.Equal(t, domain.RiskLevelHigh, report.RiskLevel)
	assert.Equal(t, "Understaffed timeline", report.RiskJustification)
	require.Len(t, report.TopRisks, 2)
	assert.Equal(t, "Schedule risk", report.TopRisks[0].Name)
	assert.Equal(t, "QA gap", report.TopRisks[1].Name)
	assert.Equal(t, "Timeline: 3 months", report.TopRisks[0].Reference)
	require.Len(t, report.FixNowSuggestions, 2)
	assert.Equal(t, "Add one developer", report.FixNowSuggestions[0].Action)
	assert.Equal(t, "QA gap", report.FixNowSuggestions[1].RiskName)

	assert.Equal(t, "gpt-test", result.Model)
	assert.Equal(t, 1, result.Attempts)
	require.NotNil(t, result.Usage)
	assert.Equal(t, 30, result.Usage.TotalTokens)
	assert.Equal(t, 1, fake.calls)
}

func TestAnalyzeSendsPlanAndShapeInstruction(t *testing.T) {
	fake := &scriptedChatModel{replies: []reply{contentReply(validPayload)}}
	client := New(fake)

	_, err := client.Analyze(context.Background(), "Build a CRM in 3 months")
	require.NoError(t, err)

	require.Len(t, fake.inputs, 1)
	msgs := fake.inputs[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, `"riskLevel"`)
	assert.Contains(t, msgs[0].Content, `"fixNowSuggestions"`)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "Build a CRM in 3 months")
}

func TestAnalyzeAcceptsFencedJSON(t *testing.T) {
	fake := &scriptedChatModel{replies: []reply{contentReply("```json\n" + validPayload + "\n```")}}

	result, err := New(fake).Analyze(context.Background(), "plan")
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLevelHigh, result.Report.RiskLevel)
}

func TestAnalyzeAcceptsEmptyLists(t *testing.T) {
	payload := `{"riskLevel":"Low","riskJustification":"Well staffed","topRisks":[],"fixNowSuggestions":[]}`
	fake := &scriptedChatModel{replies: []reply{contentReply(payload)}}

	result, err := New(fake).Analyze(context.Background(), "plan")
	require.NoError(t, err)
	assert.Empty(t, result.Report.TopRisks)
	assert.NotNil(t, result.Report.TopRisks)
}

func TestAnalyzeMalformedResponses(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"risk level outside enum", `{"riskLevel":"Severe","riskJustification":"x","topRisks":[],"fixNowSuggestions":[]}`, "riskLevel must be one of"},
		{"lowercase risk level", `{"riskLevel":"high","riskJustification":"x","topRisks":[],"fixNowSuggestions":[]}`, "riskLevel"},
		{"missing justification", `{"riskLevel":"Low","topRisks":[],"fixNowSuggestions":[]}`, "riskJustification is required"},
		{"blank justification", `{"riskLevel":"Low","riskJustification":"  ","topRisks":[],"fixNowSuggestions":[]}`, "riskJustification cannot be empty"},
		{"missing topRisks", `{"riskLevel":"Low","riskJustification":"x","fixNowSuggestions":[]}`, "topRisks is required"},
		{"null suggestions", `{"riskLevel":"Low","riskJustification":"x","topRisks":[],"fixNowSuggestions":null}`, "fixNowSuggestions is required"},
		{"risk item missing reference", `{"riskLevel":"Low","riskJustification":"x","topRisks":[{"name":"a","why":"b"}],"fixNowSuggestions":[]}`, "topRisks[0].reference"},
		{"suggestion missing action", `{"riskLevel":"Low","riskJustification":"x","topRisks":[],"fixNowSuggestions":[{"riskName":"a"}]}`, "fixNowSuggestions[0].action"},
		{"wrong type", `{"riskLevel":3,"riskJustification":"x","topRisks":[],"fixNowSuggestions":[]}`, "decode report"},
		{"topRisks not an array", `{"riskLevel":"Low","riskJustification":"x","topRisks":"none","fixNowSuggestions":[]}`, "decode report"},
		{"prose instead of json", "I think the plan is risky.", "decode report"},
		{"empty content", "", "empty response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &scriptedChatModel{replies: []reply{contentReply(tt.content)}}
			client := New(fake, WithRetry(3, 0))

			result, err := client.Analyze(context.Background(), "plan")
			require.Error(t, err)
			assert.Nil(t, result, "结构错误时不能返回部分结果")
			assert.Equal(t, KindMalformedResponse, KindOf(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, 1, fake.calls, "结构错误不应重试")
		})
	}
}

func TestAnalyzeTransportFailure(t *testing.T) {
	fake := &scriptedChatModel{replies: []reply{errReply(errors.New("dial tcp 10.0.0.1:443: connection refused"))}}

	_, err := New(fake).Analyze(context.Background(), "plan")
	require.Error(t, err)
	assert.Equal(t, KindServiceUnavailable, KindOf(err))
	assert.Contains(t, err.Error(), "connection refused")

	var aErr *Error
	require.True(t, errors.As(err, &aErr))
	assert.Equal(t, 1, aErr.Attempts)
	assert.Equal(t, 1, fake.calls, "默认只请求一次")
}

func TestAnalyzeAuthFailureIsConfigurationError(t *testing.T) {
	fake := &scriptedChatModel{replies: []reply{errReply(errors.New("error, status code: 401, message: Incorrect API key provided"))}}

	_, err := New(fake, WithRetry(2, 0)).Analyze(context.Background(), "plan")
	require.Error(t, err)
	assert.Equal(t, KindConfigurationError, KindOf(err))
	assert.Equal(t, 1, fake.calls, "配置错误不应重试")
}

func TestClassifyProviderError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"openai status code", errors.New("error, status code: 401, status: 401 Unauthorized, message: Incorrect API key provided"), KindConfigurationError},
		{"anthropic status line", errors.New(`POST "https://api.anthropic.com/v1/messages": 401 Unauthorized {"type":"error"}`), KindConfigurationError},
		{"status forbidden", errors.New("status 403: forbidden"), KindConfigurationError},
		{"gemini key message", errors.New("API key not valid. Please pass a valid API key."), KindConfigurationError},
		{"port containing 403", errors.New(`Post "http://10.0.0.5:4030/v1/chat": dial tcp 10.0.0.5:4030: connect: connection refused`), KindServiceUnavailable},
		{"request id containing 401", errors.New("status 502: upstream request id req_4017a failed"), KindServiceUnavailable},
		{"byte count containing 401", errors.New("unexpected EOF after 4013 bytes"), KindServiceUnavailable},
		{"local socket permission", errors.New("dial unix /var/run/llm.sock: connect: permission denied"), KindServiceUnavailable},
		{"deadline", fmt.Errorf("generate: %w", context.DeadlineExceeded), KindServiceUnavailable},
		{"typed unauthorized", fmt.Errorf("gemini: %w", genai.APIError{Code: 401, Message: "denied"}), KindConfigurationError},
		{"typed server error", genai.APIError{Code: 503, Message: "status 401 mirrored from upstream"}, KindServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyProviderError(tt.err))
		})
	}
}

func TestAnalyzeRetriesNetworkFailureOnPort4030(t *testing.T) {
	fake := &scriptedChatModel{replies: []reply{
		errReply(errors.New("dial tcp 10.0.0.5:4030: connect: connection refused")),
		contentReply(validPayload),
	}}

	result, err := New(fake, WithRetry(1, 0)).Analyze(context.Background(), "plan")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempts)
}

func TestAnalyzeRetriesTransientFailures(t *testing.T) {
	fake := &scriptedChatModel{replies: []reply{
		errReply(errors.New("status code: 503, service overloaded")),
		errReply(errors.New("connection reset by peer")),
		contentReply(validPayload),
	}}

	result, err := New(fake, WithRetry(2, time.Millisecond)).Analyze(context.Background(), "plan")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, fake.calls)
}

func TestAnalyzeRetriesExhausted(t *testing.T) {
	fake := &scriptedChatModel{replies: []reply{errReply(errors.New("timeout awaiting response headers"))}}

	_, err := New(fake, WithRetry(2, time.Millisecond)).Analyze(context.Background(), "plan")
	require.Error(t, err)
	assert.Equal(t, KindServiceUnavailable, KindOf(err))
	assert.Equal(t, 3, fake.calls)
}

func TestAnalyzeRetryStopsWhenContextCanceled(t *testing.T) {
	fake := &scriptedChatModel{replies: []reply{errReply(errors.New("connection refused"))}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(fake, WithRetry(5, time.Hour)).Analyze(ctx, "plan")
	require.Error(t, err)
	assert.Equal(t, KindServiceUnavailable, KindOf(err))
	assert.Equal(t, 1, fake.calls)
}

func TestAnalyzeEmptyPlan(t *testing.T) {
	fake := &scriptedChatModel{replies: []reply{contentReply(validPayload)}}

	_, err := New(fake).Analyze(context.Background(), " \n\t ")
	assert.ErrorIs(t, err, ErrEmptyPlan)
	assert.Equal(t, 0, fake.calls)
}

func TestAnalyzeNilResponse(t *testing.T) {
	fake := &scriptedChatModel{replies: []reply{{}}}

	_, err := New(fake).Analyze(context.Background(), "plan")
	require.Error(t, err)
	assert.Equal(t, KindServiceUnavailable, KindOf(err))
}

func TestAnalyzeNilResponseThroughLoggingModel(t *testing.T) {
	fake := &scriptedChatModel{replies: []reply{{}}}

	_, err := New(llm.NewLoggingChatModel(fake, "m")).Analyze(context.Background(), "plan")
	require.Error(t, err)
	assert.Equal(t, KindServiceUnavailable, KindOf(err))
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestNewClientConfigurationError(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = ""

	client, err := NewClient(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Equal(t, KindConfigurationError, KindOf(err))

	cfg.LLM.Provider = "unknown"
	cfg.LLM.APIKey = "key"
	_, err = NewClient(context.Background(), cfg)
	assert.Equal(t, KindConfigurationError, KindOf(err))
}

func TestNewClientFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = "sk-test"
	cfg.LLM.MaxRetries = 2

	client, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", client.modelName)
	assert.Equal(t, 2, client.maxRetries)
	assert.Equal(t, cfg.LLM.Timeout, client.timeout)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
	wrapped := errors.Join(errors.New("outer"), newError(KindMalformedResponse, nil))
	assert.Equal(t, KindMalformedResponse, KindOf(wrapped))
	assert.Equal(t, "analysis service returned a malformed report", newError(KindMalformedResponse, nil).Error())
}
