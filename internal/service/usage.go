package service

import (
	"context"
	"fmt"

	"github.com/projectlens/backend/internal/eventbus"
	"github.com/projectlens/backend/internal/model"
	"github.com/projectlens/backend/internal/repository"
	"k8s.io/klog/v2"
)

const (
	DefaultUsageListLimit = 20
	MaxUsageListLimit     = 100
)

// UsageService 分析计量服务接口
type UsageService interface {
	RecordRun(ctx context.Context, event eventbus.AuditEvent) error
	ListRecent(ctx context.Context, limit int) ([]model.AnalysisUsage, error)
	Stats(ctx context.Context) (*model.UsageStats, error)
}

type usageService struct {
	repo repository.UsageRepository
}

// NewUsageService 创建分析计量服务
func NewUsageService(repo repository.UsageRepository) UsageService {
	return &usageService{repo: repo}
}

// RecordRun 记录一次已结束的分析运行
func (s *usageService) RecordRun(ctx context.Context, event eventbus.AuditEvent) error {
	status, ok := runStatus(event.Type)
	if !ok {
		klog.V(6).Infof("计量记录跳过：事件类型=%s", event.Type)
		return nil
	}
	if event.RequestID == "" {
		klog.V(6).Infof("计量记录失败：requestID 为空, sessionID=%s", event.SessionID)
		return fmt.Errorf("requestID 为空")
	}

	record := &model.AnalysisUsage{
		RequestID:  event.RequestID,
		SessionID:  event.SessionID,
		Run:        event.Run,
		Status:     status,
		ErrorKind:  event.ErrorKind,
		ErrorMsg:   truncate(event.ErrorMsg, 1000),
		RiskLevel:  event.RiskLevel,
		Model:      event.Model,
		Attempts:   event.Attempts,
		PlanLength: event.PlanLength,
		DurationMs: event.Duration.Milliseconds(),
	}
	// 将 SDK 的 usage 结构映射为数据库模型字段
	if usage := event.Usage; usage != nil {
		record.PromptTokens = usage.PromptTokens
		record.CompletionTokens = usage.CompletionTokens
		record.TotalTokens = usage.TotalTokens
		record.CachedTokens = usage.PromptTokenDetails.CachedTokens
		record.ReasoningTokens = usage.CompletionTokensDetails.ReasoningTokens
	}

	if err := s.repo.Create(ctx, record); err != nil {
		klog.V(6).Infof("计量记录失败：requestID=%s, status=%s, err=%v", event.RequestID, status, err)
		return err
	}
	klog.V(6).Infof("计量记录成功：requestID=%s, status=%s, 模型=%s, tokens=%d", event.RequestID, status, event.Model, record.TotalTokens)
	return nil
}

// ListRecent 最近的计量记录，limit 超出范围时取默认值或上限
func (s *usageService) ListRecent(ctx context.Context, limit int) ([]model.AnalysisUsage, error) {
	if limit <= 0 {
		limit = DefaultUsageListLimit
	}
	if limit > MaxUsageListLimit {
		limit = MaxUsageListLimit
	}
	return s.repo.ListRecent(ctx, limit)
}

func (s *usageService) Stats(ctx context.Context) (*model.UsageStats, error) {
	return s.repo.Stats(ctx)
}

func runStatus(t eventbus.AuditEventType) (string, bool) {
	switch t {
	case eventbus.AuditEventSucceeded:
		return "succeeded", true
	case eventbus.AuditEventFailed:
		return "failed", true
	case eventbus.AuditEventDiscarded:
		return "discarded", true
	default:
		return "", false
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
