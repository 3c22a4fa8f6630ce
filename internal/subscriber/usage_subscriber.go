package subscriber

import (
	"context"

	"github.com/projectlens/backend/internal/eventbus"
	"github.com/projectlens/backend/internal/utils"
	"k8s.io/klog/v2"
)

// UsageSubscriber 把分析运行结果写入计量表
type UsageSubscriber struct {
	recorder usageRecorder
}

type usageRecorder interface {
	RecordRun(ctx context.Context, event eventbus.AuditEvent) error
}

func NewUsageSubscriber(recorder usageRecorder) *UsageSubscriber {
	return &UsageSubscriber{recorder: recorder}
}

func (s *UsageSubscriber) Register(bus *eventbus.AuditEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.AuditEventSubmitted, s.handleSubmitted)
	bus.Subscribe(eventbus.AuditEventSucceeded, s.handleFinished)
	bus.Subscribe(eventbus.AuditEventFailed, s.handleFinished)
	bus.Subscribe(eventbus.AuditEventDiscarded, s.handleFinished)
}

func (s *UsageSubscriber) handleSubmitted(ctx context.Context, event eventbus.AuditEvent) error {
	klog.V(6).Infof("分析已提交: sessionID=%s, run=%d, requestID=%s", event.SessionID, event.Run, event.RequestID)
	return nil
}

func (s *UsageSubscriber) handleFinished(ctx context.Context, event eventbus.AuditEvent) error {
	klog.V(8).Infof("分析结束事件: %s", utils.ToJSON(event))
	if err := s.recorder.RecordRun(ctx, event); err != nil {
		klog.Errorf("计量事件处理失败: type=%s, requestID=%s, error=%v", event.Type, event.RequestID, err)
		return err
	}
	return nil
}
