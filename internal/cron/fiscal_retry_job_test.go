package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/sarqyt/sarqyt-backend/pkg/logger"
)

type stubRetrier struct {
	retried   int
	succeeded int
	err       error
	calls     int
}

func (s *stubRetrier) RetryFailed(context.Context, int) (int, int, error) {
	s.calls++
	return s.retried, s.succeeded, s.err
}

func TestFiscalRetryJob(t *testing.T) {
	retrier := &stubRetrier{retried: 3, succeeded: 2}
	job, err := NewFiscalRetryJob(FiscalRetryJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Fiscal: retrier,
	})
	if err != nil {
		t.Fatalf("NewFiscalRetryJob: %v", err)
	}
	if job.Name() != "fiscal-retry" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if retrier.calls != 1 {
		t.Fatalf("expected 1 call, got %d", retrier.calls)
	}
}

func TestFiscalRetryJobPropagatesErrors(t *testing.T) {
	retrier := &stubRetrier{err: errors.New("db down")}
	job, err := NewFiscalRetryJob(FiscalRetryJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Fiscal: retrier,
	})
	if err != nil {
		t.Fatalf("NewFiscalRetryJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
