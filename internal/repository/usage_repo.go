package repository

import (
	"context"

	"github.com/projectlens/backend/internal/model"
	"gorm.io/gorm"
)

type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository 创建分析计量仓储
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

// Create 新增计量记录
func (r *usageRepository) Create(ctx context.Context, usage *model.AnalysisUsage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}

// ListRecent 按时间倒序返回最近的记录
func (r *usageRepository) ListRecent(ctx context.Context, limit int) ([]model.AnalysisUsage, error) {
	var usages []model.AnalysisUsage
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&usages).Error
	return usages, err
}

// Stats 按状态和风险等级汇总
func (r *usageRepository) Stats(ctx context.Context) (*model.UsageStats, error) {
	stats := &model.UsageStats{
		ByStatus:    make(map[string]int64),
		ByRiskLevel: make(map[string]int64),
	}

	type groupCount struct {
		GroupKey string
		Count    int64
	}

	var byStatus []groupCount
	if err := r.db.WithContext(ctx).Model(&model.AnalysisUsage{}).
		Select("status AS group_key, COUNT(*) AS count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, err
	}
	for _, row := range byStatus {
		stats.ByStatus[row.GroupKey] = row.Count
		stats.TotalRuns += row.Count
	}

	var byRisk []groupCount
	if err := r.db.WithContext(ctx).Model(&model.AnalysisUsage{}).
		Select("risk_level AS group_key, COUNT(*) AS count").
		Where("risk_level <> ''").
		Group("risk_level").
		Scan(&byRisk).Error; err != nil {
		return nil, err
	}
	for _, row := range byRisk {
		stats.ByRiskLevel[row.GroupKey] = row.Count
	}

	var totals struct {
		TotalTokens   int64
		AvgDurationMs float64
	}
	if err := r.db.WithContext(ctx).Model(&model.AnalysisUsage{}).
		Select("COALESCE(SUM(total_tokens), 0) AS total_tokens, COALESCE(AVG(duration_ms), 0) AS avg_duration_ms").
		Scan(&totals).Error; err != nil {
		return nil, err
	}
	stats.TotalTokens = totals.TotalTokens
	stats.AvgDurationMs = totals.AvgDurationMs

	return stats, nil
}
