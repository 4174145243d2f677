package cache

import (
	"context"
	"time"

	"sarafa/backend/internal/domain"
)

// ReportCache holds rendered financial reports keyed by their filter. The
// service invalidates by prefix whenever a transaction mutates.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.FinancialReport, bool, error)
	Set(ctx context.Context, key string, value *domain.FinancialReport, ttl time.Duration) error
	Invalidate(ctx context.Context, prefix string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.FinancialReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.FinancialReport, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
