package domain

import "fmt"

// RiskLevel 项目整体风险等级
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "Low"
	RiskLevelMedium RiskLevel = "Medium"
	RiskLevelHigh   RiskLevel = "High"
)

// RiskLevels 按从低到高排列
var RiskLevels = []RiskLevel{RiskLevelLow, RiskLevelMedium, RiskLevelHigh}

// ParseRiskLevel 严格匹配（区分大小写）
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(s) {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh:
		return RiskLevel(s), nil
	default:
		return "", fmt.Errorf("invalid risk level: %q", s)
	}
}

// Valid 是否为已知等级
func (l RiskLevel) Valid() bool {
	_, err := ParseRiskLevel(string(l))
	return err == nil
}

// Rank 用于排序比较，Low < Medium < High；未知等级返回 0
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLevelLow:
		return 1
	case RiskLevelMedium:
		return 2
	case RiskLevelHigh:
		return 3
	default:
		return 0
	}
}

func (l RiskLevel) String() string {
	return string(l)
}

// RiskItem 识别出的单个风险
type RiskItem struct {
	Name      string `json:"name"`
	Why       string `json:"why"`
	Reference string `json:"reference"` // 引用自计划原文的片段
}

// Suggestion 针对某个风险的整改建议，RiskName 仅按名称软关联
type Suggestion struct {
	RiskName string `json:"riskName"`
	Action   string `json:"action"`
}

// AuditReport 一次风险评估的完整结果。
// TopRisks 与 FixNowSuggestions 保持模型返回的顺序，不做重排。
type AuditReport struct {
	RiskLevel         RiskLevel    `json:"riskLevel"`
	RiskJustification string       `json:"riskJustification"`
	TopRisks          []RiskItem   `json:"topRisks"`
	FixNowSuggestions []Suggestion `json:"fixNowSuggestions"`
}
