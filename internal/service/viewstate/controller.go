// Package viewstate 管理单个会话的视图状态，所有修改都通过具名操作完成。
package viewstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/projectlens/backend/internal/domain"
	"github.com/projectlens/backend/internal/eventbus"
	"github.com/projectlens/backend/internal/service/analysis"
	"github.com/projectlens/backend/internal/service/statemachine"
	"k8s.io/klog/v2"
)

// DefaultErrorMessage 失败但没有错误信息时展示的文案
const DefaultErrorMessage = "An unexpected error occurred."

// ErrAnalysisInFlight 已有分析在进行中时拒绝再次提交
var ErrAnalysisInFlight = errors.New("an analysis is already in progress")

// ErrRunnerClosed 工作池已关闭，服务正在停止
var ErrRunnerClosed = errors.New("analysis service is shutting down")

// Publisher 分析生命周期事件的接收方
type Publisher interface {
	Publish(ctx context.Context, event eventbus.AuditEvent) error
}

// Runner 执行分析任务。已关闭时应返回 ErrRunnerClosed
type Runner interface {
	Submit(task func()) error
}

type goRunner struct{}

func (goRunner) Submit(task func()) error {
	go task()
	return nil
}

// Controller 单个会话的状态控制器。
// 每次提交分配递增的运行编号，Reset 会使当前编号失效，过期运行的结果直接丢弃。
type Controller struct {
	id        string
	analyzer  analysis.Analyzer
	publisher Publisher
	runner    Runner
	sm        *statemachine.RunStateMachine
	now       func() time.Time

	mu    sync.Mutex
	state State
	run   uint64                            // 当前有效的运行编号
	runs  map[uint64]statemachine.RunStatus // 未结束的运行及其状态
	wg    sync.WaitGroup
}

// Option 控制器可选项
type Option func(*Controller)

// WithPublisher 设置事件发布方
func WithPublisher(p Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

// WithRunner 设置执行分析的工作池，默认每次启动一个 goroutine
func WithRunner(r Runner) Option {
	return func(c *Controller) { c.runner = r }
}

// WithClock 替换时钟，用于测试耗时统计
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController 创建处于编辑模式的控制器
func NewController(id string, analyzer analysis.Analyzer, opts ...Option) *Controller {
	c := &Controller{
		id:       id,
		analyzer: analyzer,
		runner:   goRunner{},
		sm:       statemachine.NewRunStateMachine(),
		now:      time.Now,
		runs:     make(map[uint64]statemachine.RunStatus),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID 会话 ID
func (c *Controller) ID() string {
	return c.id
}

// Snapshot 返回当前状态的副本
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode 当前界面模式
func (c *Controller) Mode() Mode {
	return c.Snapshot().Mode()
}

// SetPlanText 原样替换计划文本，不裁剪不限长，任何模式下都允许
func (c *Controller) SetPlanText(text string) {
	c.mu.Lock()
	c.state.ProjectPlan = text
	c.mu.Unlock()
}

// LoadSample 用内置示例替换计划文本，不影响报告、错误和加载状态
func (c *Controller) LoadSample() {
	c.mu.Lock()
	c.state.ProjectPlan = domain.SamplePlan
	c.mu.Unlock()
	klog.V(6).Infof("[viewstate] 加载示例计划: sessionID=%s", c.id)
}

// Reset 回到空白编辑模式，并使进行中的运行失效
func (c *Controller) Reset() {
	c.mu.Lock()
	c.state = State{}
	c.run++
	c.mu.Unlock()
	klog.V(6).Infof("[viewstate] 重置会话: sessionID=%s", c.id)
}

// Submit 提交当前计划进行分析。
// 计划为空（去除空白后）时不做任何事，返回已关闭的 channel；
// 已有分析进行中时返回 ErrAnalysisInFlight。
// 返回的 channel 在结果写入（或因过期被丢弃）后关闭。
func (c *Controller) Submit(ctx context.Context) (<-chan struct{}, error) {
	done := make(chan struct{})

	c.mu.Lock()
	if strings.TrimSpace(c.state.ProjectPlan) == "" {
		c.mu.Unlock()
		klog.V(6).Infof("[viewstate] 计划为空，忽略提交: sessionID=%s", c.id)
		close(done)
		return done, nil
	}
	if c.state.IsLoading {
		c.mu.Unlock()
		klog.V(6).Infof("[viewstate] 已有分析进行中，拒绝提交: sessionID=%s, run=%d", c.id, c.run)
		return nil, ErrAnalysisInFlight
	}
	c.run++
	run := c.run
	c.runs[run] = statemachine.RunStatusPending
	plan := c.state.ProjectPlan
	c.state.IsLoading = true
	c.state.Error = ""
	c.wg.Add(1)
	c.mu.Unlock()

	requestID := uuid.New().String()
	klog.V(6).Infof("[viewstate] 提交分析: sessionID=%s, run=%d, requestID=%s, planLength=%d", c.id, run, requestID, len(plan))

	// 运行不随 HTTP 请求结束而取消
	runCtx := context.WithoutCancel(ctx)
	c.publish(runCtx, eventbus.AuditEvent{
		Type:       eventbus.AuditEventSubmitted,
		SessionID:  c.id,
		Run:        run,
		RequestID:  requestID,
		PlanLength: len(plan),
	})

	task := func() { c.execute(runCtx, run, requestID, plan, done) }
	if err := c.runner.Submit(task); err != nil {
		c.reject(runCtx, run, requestID, len(plan), err, done)
	}
	return done, nil
}

// advanceLocked 按状态机推进运行状态，调用方持有 c.mu。
// 未知或已结束的运行不能再迁移。
func (c *Controller) advanceLocked(run uint64, to statemachine.RunStatus) error {
	from := c.runs[run]
	if err := c.sm.Transition(from, to, c.id, run); err != nil {
		return err
	}
	if statemachine.IsTerminal(to) {
		delete(c.runs, run)
	} else {
		c.runs[run] = to
	}
	return nil
}

// reject 任务未能进入工作池，本次运行直接以失败结束
func (c *Controller) reject(ctx context.Context, run uint64, requestID string, planLength int, cause error, done chan struct{}) {
	err := fmt.Errorf("analysis capacity exhausted: %w", cause)
	if errors.Is(cause, ErrRunnerClosed) {
		err = cause
	}

	c.mu.Lock()
	current := run == c.run
	to := statemachine.RunStatusFailed
	if !current {
		to = statemachine.RunStatusDiscarded
	}
	if tErr := c.advanceLocked(run, to); tErr != nil {
		c.mu.Unlock()
		klog.Warningf("[viewstate] 运行已开始或已结束，忽略提交失败: sessionID=%s, run=%d, error=%v", c.id, run, tErr)
		return
	}
	if current {
		c.state.IsLoading = false
		c.state.Error = err.Error()
	}
	c.mu.Unlock()
	defer c.wg.Done()
	defer close(done)

	klog.Warningf("[viewstate] 分析任务提交失败: sessionID=%s, run=%d, error=%v", c.id, run, cause)
	event := eventbus.AuditEvent{
		Type:       eventbus.AuditEventFailed,
		SessionID:  c.id,
		Run:        run,
		RequestID:  requestID,
		PlanLength: planLength,
		ErrorMsg:   err.Error(),
	}
	if !current {
		event.Type = eventbus.AuditEventDiscarded
	}
	c.publish(ctx, event)
}

// Wait 等待本控制器启动的所有运行结束
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) execute(ctx context.Context, run uint64, requestID, plan string, done chan struct{}) {
	c.mu.Lock()
	err := c.advanceLocked(run, statemachine.RunStatusRunning)
	c.mu.Unlock()
	if err != nil {
		// 同一运行只执行一次
		klog.Warningf("[viewstate] 运行无法开始: sessionID=%s, run=%d, error=%v", c.id, run, err)
		return
	}
	defer c.wg.Done()
	defer close(done)

	start := c.now()
	result, err := c.analyze(ctx, plan)
	event := eventbus.AuditEvent{
		SessionID:  c.id,
		Run:        run,
		RequestID:  requestID,
		PlanLength: len(plan),
		Duration:   c.now().Sub(start),
	}
	if result != nil {
		event.Model = result.Model
		event.Attempts = result.Attempts
		event.Usage = result.Usage
		event.RiskLevel = string(result.Report.RiskLevel)
	}
	if err != nil {
		event.ErrorKind = string(analysis.KindOf(err))
		event.ErrorMsg = err.Error()
		var aErr *analysis.Error
		if errors.As(err, &aErr) {
			event.Attempts = aErr.Attempts
		}
	}

	c.mu.Lock()
	current := run == c.run
	to := statemachine.RunStatusSucceeded
	switch {
	case !current:
		to = statemachine.RunStatusDiscarded
	case err != nil:
		to = statemachine.RunStatusFailed
	}
	if tErr := c.advanceLocked(run, to); tErr != nil {
		c.mu.Unlock()
		klog.Warningf("[viewstate] 运行已结束，忽略重复结果: sessionID=%s, run=%d, error=%v", c.id, run, tErr)
		return
	}
	if current {
		c.state.IsLoading = false
		if err != nil {
			c.state.Error = errorMessage(err)
		} else {
			c.state.Report = result.Report
		}
	}
	c.mu.Unlock()

	switch to {
	case statemachine.RunStatusDiscarded:
		klog.V(6).Infof("[viewstate] 运行已过期，丢弃结果: sessionID=%s, run=%d", c.id, run)
		event.Type = eventbus.AuditEventDiscarded
	case statemachine.RunStatusFailed:
		klog.Errorf("[viewstate] 分析失败: sessionID=%s, run=%d, requestID=%s, error=%v", c.id, run, requestID, err)
		event.Type = eventbus.AuditEventFailed
	default:
		event.Type = eventbus.AuditEventSucceeded
	}
	c.publish(ctx, event)
}

func (c *Controller) analyze(ctx context.Context, plan string) (result *analysis.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("[viewstate] 分析器 panic: sessionID=%s, panic=%v", c.id, r)
			result, err = nil, fmt.Errorf("analysis panicked: %v", r)
		}
	}()

	result, err = c.analyzer.Analyze(ctx, plan)
	if err == nil && (result == nil || result.Report == nil) {
		err = errors.New("analysis returned no report")
	}
	if err != nil {
		result = nil
	}
	return result, err
}

func (c *Controller) publish(ctx context.Context, event eventbus.AuditEvent) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, event); err != nil {
		klog.Errorf("[viewstate] 事件处理失败: type=%s, sessionID=%s, run=%d, error=%v", event.Type, c.id, event.Run, err)
	}
}

func errorMessage(err error) string {
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return DefaultErrorMessage
	}
	return msg
}
