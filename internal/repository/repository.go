package repository

import (
	"context"

	"github.com/projectlens/backend/internal/model"
)

type UsageRepository interface {
	Create(ctx context.Context, usage *model.AnalysisUsage) error
	ListRecent(ctx context.Context, limit int) ([]model.AnalysisUsage, error)
	Stats(ctx context.Context) (*model.UsageStats, error)
}
