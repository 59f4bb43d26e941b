package cron

import (
	"context"
	"fmt"

	"github.com/sarqyt/sarqyt-backend/pkg/logger"
)

const fiscalRetryBatchSize = 20

type fiscalRetrier interface {
	RetryFailed(ctx context.Context, limit int) (retried, succeeded int, err error)
}

// FiscalRetryJobParams configure the receipt retry job.
type FiscalRetryJobParams struct {
	Logger *logger.Logger
	Fiscal fiscalRetrier
}

// NewFiscalRetryJob builds the job that re-dispatches failed fiscal
// receipts still under the attempt cap.
func NewFiscalRetryJob(params FiscalRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Fiscal == nil {
		return nil, fmt.Errorf("fiscal service required")
	}
	return &fiscalRetryJob{
		logg:   params.Logger,
		fiscal: params.Fiscal,
	}, nil
}

type fiscalRetryJob struct {
	logg   *logger.Logger
	fiscal fiscalRetrier
}

func (j *fiscalRetryJob) Name() string { return "fiscal-retry" }

func (j *fiscalRetryJob) Run(ctx context.Context) error {
	retried, succeeded, err := j.fiscal.RetryFailed(ctx, fiscalRetryBatchSize)
	if err != nil {
		return fmt.Errorf("retry fiscal receipts: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"retried":   retried,
		"succeeded": succeeded,
	})
	j.logg.Info(logCtx, "fiscal retry loop complete")
	return nil
}
