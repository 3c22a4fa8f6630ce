package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/projectlens/backend/internal/model"
	"gorm.io/gorm"
)

func setupUsageDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&model.AnalysisUsage{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestUsageRepository_CreateAndListRecent(t *testing.T) {
	repo := NewUsageRepository(setupUsageDB(t))
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		u := &model.AnalysisUsage{
			RequestID: fmt.Sprintf("req-%d", i),
			SessionID: "s1",
			Run:       uint64(i),
			Status:    "succeeded",
		}
		if err := repo.Create(ctx, u); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if u.ID == 0 {
			t.Fatalf("expected ID to be assigned")
		}
	}

	list, err := repo.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 records, got %d", len(list))
	}
	if list[0].RequestID != "req-5" || list[2].RequestID != "req-3" {
		t.Errorf("expected newest first, got %s..%s", list[0].RequestID, list[2].RequestID)
	}
}

func TestUsageRepository_DuplicateRequestID(t *testing.T) {
	repo := NewUsageRepository(setupUsageDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, &model.AnalysisUsage{RequestID: "dup", SessionID: "s1", Status: "failed"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.Create(ctx, &model.AnalysisUsage{RequestID: "dup", SessionID: "s1", Status: "failed"}); err == nil {
		t.Errorf("expected unique constraint violation")
	}
}

func TestUsageRepository_Stats(t *testing.T) {
	repo := NewUsageRepository(setupUsageDB(t))
	ctx := context.Background()

	seed := []model.AnalysisUsage{
		{RequestID: "a", SessionID: "s1", Status: "succeeded", RiskLevel: "High", TotalTokens: 100, DurationMs: 1000},
		{RequestID: "b", SessionID: "s1", Status: "succeeded", RiskLevel: "High", TotalTokens: 50, DurationMs: 3000},
		{RequestID: "c", SessionID: "s2", Status: "succeeded", RiskLevel: "Low", TotalTokens: 30, DurationMs: 2000},
		{RequestID: "d", SessionID: "s2", Status: "failed", ErrorKind: "ServiceUnavailable", DurationMs: 2000},
	}
	for i := range seed {
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalRuns != 4 {
		t.Errorf("expected 4 runs, got %d", stats.TotalRuns)
	}
	if stats.ByStatus["succeeded"] != 3 || stats.ByStatus["failed"] != 1 {
		t.Errorf("unexpected status counts: %+v", stats.ByStatus)
	}
	if stats.ByRiskLevel["High"] != 2 || stats.ByRiskLevel["Low"] != 1 {
		t.Errorf("unexpected risk counts: %+v", stats.ByRiskLevel)
	}
	if _, ok := stats.ByRiskLevel[""]; ok {
		t.Errorf("failed runs must not be counted under an empty risk level")
	}
	if stats.TotalTokens != 180 {
		t.Errorf("expected 180 tokens, got %d", stats.TotalTokens)
	}
	if stats.AvgDurationMs != 2000 {
		t.Errorf("expected avg 2000ms, got %f", stats.AvgDurationMs)
	}
}

func TestUsageRepository_StatsEmpty(t *testing.T) {
	repo := NewUsageRepository(setupUsageDB(t))

	stats, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalRuns != 0 || stats.TotalTokens != 0 || stats.AvgDurationMs != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
	if stats.ByStatus == nil || stats.ByRiskLevel == nil {
		t.Errorf("expected non-nil maps")
	}
}
