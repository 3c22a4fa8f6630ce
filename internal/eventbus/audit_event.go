package eventbus

import (
	"time"

	"github.com/cloudwego/eino/schema"
)

type AuditEventType string

const (
	AuditEventSubmitted AuditEventType = "Submitted"
	AuditEventSucceeded AuditEventType = "Succeeded"
	AuditEventFailed    AuditEventType = "Failed"
	AuditEventDiscarded AuditEventType = "Discarded" // 结果返回时已被 reset 取代
)

// AuditEvent 一次分析运行的生命周期事件，不携带计划原文和报告内容
type AuditEvent struct {
	Type       AuditEventType
	SessionID  string
	Run        uint64
	RequestID  string
	PlanLength int
	Duration   time.Duration
	Model      string
	Attempts   int
	RiskLevel  string
	ErrorKind  string
	ErrorMsg   string
	Usage      *schema.TokenUsage
}

type AuditEventHandler = Handler[AuditEvent]
type AuditEventBus = Bus[AuditEventType, AuditEvent]

func NewAuditEventBus() *AuditEventBus {
	return NewBus(func(e AuditEvent) AuditEventType { return e.Type })
}
