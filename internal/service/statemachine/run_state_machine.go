package statemachine

import (
	"fmt"

	"k8s.io/klog/v2"
)

// RunStatus 一次分析运行的状态
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"   // 已提交，等待工作池执行
	RunStatusRunning   RunStatus = "running"   // 正在等待模型返回
	RunStatusSucceeded RunStatus = "succeeded" // 报告已写入会话
	RunStatusFailed    RunStatus = "failed"    // 错误信息已写入会话
	RunStatusDiscarded RunStatus = "discarded" // 返回时已被 reset 取代，结果被丢弃
)

// RunTransition 定义运行状态迁移
type RunTransition struct {
	From RunStatus
	To   RunStatus
}

// RunStateMachine 分析运行状态机
type RunStateMachine struct {
	allowedTransitions map[RunTransition]bool
}

// NewRunStateMachine 创建运行状态机
func NewRunStateMachine() *RunStateMachine {
	sm := &RunStateMachine{
		allowedTransitions: make(map[RunTransition]bool),
	}

	// pending -> running/failed/discarded，running -> succeeded/failed/discarded，终止态不可再迁移
	transitions := []RunTransition{
		{RunStatusPending, RunStatusRunning},
		{RunStatusPending, RunStatusFailed},
		{RunStatusPending, RunStatusDiscarded},
		{RunStatusRunning, RunStatusSucceeded},
		{RunStatusRunning, RunStatusFailed},
		{RunStatusRunning, RunStatusDiscarded},
	}
	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}
	return sm
}

// CanTransition 检查状态迁移是否合法
func (sm *RunStateMachine) CanTransition(from, to RunStatus) bool {
	if from == to {
		return false
	}
	return sm.allowedTransitions[RunTransition{From: from, To: to}]
}

// Transition 执行状态迁移（带日志）
func (sm *RunStateMachine) Transition(from, to RunStatus, sessionID string, run uint64) error {
	if !sm.CanTransition(from, to) {
		err := &InvalidStateTransitionError{From: string(from), To: string(to)}
		klog.V(6).Infof("运行状态迁移被拒绝: sessionID=%s, run=%d, %s -> %s", sessionID, run, from, to)
		return err
	}

	klog.V(6).Infof("运行状态迁移: sessionID=%s, run=%d, %s -> %s", sessionID, run, from, to)
	return nil
}

// InvalidStateTransitionError 无效的状态迁移错误
type InvalidStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid run state transition: %s -> %s", e.From, e.To)
}

// IsTerminal 判断状态是否为终止态
func IsTerminal(status RunStatus) bool {
	return status == RunStatusSucceeded || status == RunStatusFailed || status == RunStatusDiscarded
}
