package analysis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/projectlens/backend/config"
	"github.com/projectlens/backend/internal/domain"
	"github.com/projectlens/backend/internal/pkg/llm"
	"k8s.io/klog/v2"
)

// Analyzer 把计划文本转换为经过校验的风险报告
type Analyzer interface {
	Analyze(ctx context.Context, plan string) (*Result, error)
}

// Result 一次成功分析的结果
type Result struct {
	Report   *domain.AuditReport
	Usage    *schema.TokenUsage // 提供方未返回时为 nil
	Model    string
	Attempts int
}

// Client 基于 eino ChatModel 的 Analyzer 实现
type Client struct {
	chatModel    model.BaseChatModel
	modelName    string
	timeout      time.Duration
	maxRetries   int
	retryBackoff time.Duration
}

// Option 客户端可选项
type Option func(*Client)

// WithModelName 记录到结果中的模型名称
func WithModelName(name string) Option {
	return func(c *Client) { c.modelName = name }
}

// WithTimeout 单次请求超时，0 表示不限制
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetry 仅对 ServiceUnavailable 进行有限次重试
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(c *Client) {
		if maxRetries < 0 {
			maxRetries = 0
		}
		c.maxRetries = maxRetries
		c.retryBackoff = backoff
	}
}

// New 使用已创建的 ChatModel 构建客户端
func New(chatModel model.BaseChatModel, opts ...Option) *Client {
	c := &Client{chatModel: chatModel}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClient 根据配置创建客户端，配置问题在此处立即以 ConfigurationError 返回
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, newError(KindConfigurationError, err)
	}

	chatModel, err := llm.NewChatModel(ctx, cfg, llm.WithResponseSchema(ReportSchemaName, ReportSchema()))
	if err != nil {
		return nil, newError(KindConfigurationError, err)
	}

	klog.V(6).Infof("[analysis.NewClient] 分析客户端就绪: provider=%s, model=%s, maxRetries=%d",
		cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.MaxRetries)
	return New(chatModel,
		WithModelName(cfg.LLM.Model),
		WithTimeout(cfg.LLM.Timeout),
		WithRetry(cfg.LLM.MaxRetries, cfg.LLM.RetryBackoff),
	), nil
}

// Analyze 发起分析请求并校验回复结构
func (c *Client) Analyze(ctx context.Context, plan string) (*Result, error) {
	if strings.TrimSpace(plan) == "" {
		return nil, ErrEmptyPlan
	}

	messages := buildMessages(plan)
	maxAttempts := c.maxRetries + 1

	for attempt := 1; ; attempt++ {
		klog.V(6).Infof("[analysis.Analyze] 发起分析请求: model=%s, attempt=%d/%d, planLength=%d",
			c.modelName, attempt, maxAttempts, len(plan))

		resp, err := c.generate(ctx, messages)
		if err != nil {
			aErr := newError(classifyProviderError(err), err)
			aErr.Attempts = attempt
			if aErr.Kind != KindServiceUnavailable || attempt >= maxAttempts || ctx.Err() != nil {
				klog.Errorf("[analysis.Analyze] 分析请求失败: kind=%s, attempt=%d, error=%v", aErr.Kind, attempt, err)
				return nil, aErr
			}

			wait := c.retryBackoff * time.Duration(attempt)
			klog.Warningf("[analysis.Analyze] 服务暂不可用，%s 后重试: attempt=%d, error=%v", wait, attempt, err)
			if !sleepCtx(ctx, wait) {
				aErr.Err = errors.Join(err, ctx.Err())
				return nil, aErr
			}
			continue
		}

		report, err := ParseReport(resp.Content)
		if err != nil {
			// 结构错误是确定性的，不重试
			klog.Errorf("[analysis.Analyze] 模型回复结构不合法: attempt=%d, error=%v", attempt, err)
			klog.V(8).Infof("[analysis.Analyze] 原始回复: %s", resp.Content)
			aErr := newError(KindMalformedResponse, err)
			aErr.Attempts = attempt
			return nil, aErr
		}

		result := &Result{
			Report:   report,
			Model:    c.modelName,
			Attempts: attempt,
		}
		if resp.ResponseMeta != nil {
			result.Usage = resp.ResponseMeta.Usage
		}

		klog.V(6).Infof("[analysis.Analyze] 分析完成: riskLevel=%s, topRisks=%d, suggestions=%d",
			report.RiskLevel, len(report.TopRisks), len(report.FixNowSuggestions))
		return result, nil
	}
}

func (c *Client) generate(ctx context.Context, messages []*schema.Message) (*schema.Message, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, llm.ErrEmptyResponse
	}
	return resp, nil
}

// sleepCtx 等待指定时长，ctx 结束时返回 false
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
