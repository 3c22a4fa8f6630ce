package model

import "time"

// AnalysisUsage 一次分析运行的计量记录，不保存计划原文和报告内容
type AnalysisUsage struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	RequestID        string    `json:"request_id" gorm:"size:64;uniqueIndex;not null"`
	SessionID        string    `json:"session_id" gorm:"size:64;index;not null"`
	Run              uint64    `json:"run"`
	Status           string    `json:"status" gorm:"size:20;index;not null"` // succeeded, failed, discarded
	ErrorKind        string    `json:"error_kind" gorm:"size:50"`
	ErrorMsg         string    `json:"error_msg" gorm:"size:1000"`
	RiskLevel        string    `json:"risk_level" gorm:"size:10;index"`
	Model            string    `json:"model" gorm:"size:255"`
	Attempts         int       `json:"attempts" gorm:"default:0"`
	PlanLength       int       `json:"plan_length" gorm:"default:0"`
	DurationMs       int64     `json:"duration_ms" gorm:"default:0"`
	PromptTokens     int       `json:"prompt_tokens" gorm:"default:0"`
	CompletionTokens int       `json:"completion_tokens" gorm:"default:0"`
	TotalTokens      int       `json:"total_tokens" gorm:"default:0"`
	CachedTokens     int       `json:"cached_tokens" gorm:"default:0"`
	ReasoningTokens  int       `json:"reasoning_tokens" gorm:"default:0"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName 指定表名
func (AnalysisUsage) TableName() string {
	return "analysis_usages"
}

// UsageStats 计量汇总
type UsageStats struct {
	TotalRuns     int64            `json:"total_runs"`
	ByStatus      map[string]int64 `json:"by_status"`
	ByRiskLevel   map[string]int64 `json:"by_risk_level"`
	TotalTokens   int64            `json:"total_tokens"`
	AvgDurationMs float64          `json:"avg_duration_ms"`
}
