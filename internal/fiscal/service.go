package fiscal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/sarqyt/sarqyt-backend/pkg/config"
	"github.com/sarqyt/sarqyt-backend/pkg/db/models"
	"github.com/sarqyt/sarqyt-backend/pkg/enums"
	pkgerrors "github.com/sarqyt/sarqyt-backend/pkg/errors"
	"github.com/sarqyt/sarqyt-backend/pkg/logger"
	"github.com/sarqyt/sarqyt-backend/pkg/metrics"
	"github.com/sarqyt/sarqyt-backend/pkg/outbox"
)

const (
	dispatchTimeout          = time.Minute
	inProcessRetries         = 2
	retryBackoffBase         = 500 * time.Millisecond
	defaultMaxAttempts       = 5
	defaultPendingStaleAfter = 10 * time.Minute
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ReceiptEvent is the outbox payload for fiscal lifecycle events.
type ReceiptEvent struct {
	ReceiptID uuid.UUID `json:"receipt_id"`
	OrderID   uuid.UUID `json:"order_id"`
	QRCodeURL *string   `json:"qr_code_url,omitempty"`
	Error     *string   `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
}

// Service drives fiscal receipt registration. Fiscalization is strictly
// fire-and-forget relative to payments: a failure here lands in the
// receipt row and an outbox event, never back in order or payment state.
type Service struct {
	repo              Repository
	tx                txRunner
	outbox            outboxPublisher
	sender            Sender
	metrics           *metrics.PaymentMetrics
	logg              *logger.Logger
	maxAttempts       int
	pendingStaleAfter time.Duration
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Sender  Sender
	Metrics *metrics.PaymentMetrics
	Logger  *logger.Logger
	Config  config.FiscalConfig
}

// NewService builds the fiscal dispatch service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("fiscal repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("fiscal sender required")
	}
	maxAttempts := params.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	pendingStaleAfter := params.Config.PendingStaleAfter
	if pendingStaleAfter <= 0 {
		pendingStaleAfter = defaultPendingStaleAfter
	}
	return &Service{
		repo:              params.Repo,
		tx:                params.Tx,
		outbox:            params.Outbox,
		sender:            params.Sender,
		metrics:           params.Metrics,
		logg:              params.Logger,
		maxAttempts:       maxAttempts,
		pendingStaleAfter: pendingStaleAfter,
	}, nil
}

// DispatchAsync starts a dispatch after the caller's transaction has
// committed. Errors land in the receipt row, not with the caller.
func (s *Service) DispatchAsync(receiptID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		if err := s.Dispatch(ctx, receiptID); err != nil && s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"receipt_id": receiptID.String(),
				"error":      err.Error(),
			})
			s.logg.Warn(logCtx, "fiscal dispatch failed")
		}
	}()
}

// Dispatch registers one receipt with the gateway and records the
// outcome. Already-issued receipts and receipts over the attempt cap
// are a no-op.
func (s *Service) Dispatch(ctx context.Context, receiptID uuid.UUID) error {
	receipt, err := s.repo.FindReceipt(ctx, receiptID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "fiscal receipt not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load receipt")
	}
	if receipt.Status == enums.FiscalStatusSuccess {
		return nil
	}
	if receipt.Attempts >= s.maxAttempts {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "receipt_id", receiptID.String()), "fiscal receipt over attempt cap")
		}
		return nil
	}

	amount, err := s.repo.TransactionAmount(ctx, receipt.PaymentTransactionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction amount")
	}

	qrCodeURL, issueErr := s.issueWithRetry(ctx, IssueRequest{
		ReceiptID:            receipt.ID,
		OrderID:              receipt.OrderID,
		PaymentTransactionID: receipt.PaymentTransactionID,
		AmountMinor:          amount,
	})

	if issueErr != nil {
		if err := s.recordFailure(ctx, receipt, issueErr); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.IncFiscal("failed")
		}
		return issueErr
	}

	if err := s.recordSuccess(ctx, receipt, qrCodeURL); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.IncFiscal("success")
	}
	return nil
}

// issueWithRetry retries transient gateway failures a few times in
// process; durable retries belong to the retry job.
func (s *Service) issueWithRetry(ctx context.Context, req IssueRequest) (string, error) {
	var qrCodeURL string
	backoff := retry.WithMaxRetries(inProcessRetries, retry.NewExponential(retryBackoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		url, err := s.sender.Issue(ctx, req)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
				return retry.RetryableError(err)
			}
			return err
		}
		qrCodeURL = url
		return nil
	})
	if err != nil {
		return "", err
	}
	return qrCodeURL, nil
}

func (s *Service) recordSuccess(ctx context.Context, receipt *models.FiscalReceipt, qrCodeURL string) error {
	now := time.Now()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateReceipt(ctx, receipt.ID, map[string]any{
			"status":          enums.FiscalStatusSuccess,
			"qr_code_url":     qrCodeURL,
			"error_note":      nil,
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update receipt")
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventFiscalReceiptIssued,
			AggregateType: enums.AggregateFiscalReceipt,
			AggregateID:   receipt.ID,
			Data: ReceiptEvent{
				ReceiptID: receipt.ID,
				OrderID:   receipt.OrderID,
				QRCodeURL: &qrCodeURL,
				Attempts:  receipt.Attempts + 1,
			},
			Version: 1,
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit receipt issued")
		}
		return nil
	})
}

func (s *Service) recordFailure(ctx context.Context, receipt *models.FiscalReceipt, issueErr error) error {
	now := time.Now()
	note := issueErr.Error()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateReceipt(ctx, receipt.ID, map[string]any{
			"status":          enums.FiscalStatusFailed,
			"error_note":      note,
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update receipt")
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventFiscalReceiptFailed,
			AggregateType: enums.AggregateFiscalReceipt,
			AggregateID:   receipt.ID,
			Data: ReceiptEvent{
				ReceiptID: receipt.ID,
				OrderID:   receipt.OrderID,
				Error:     &note,
				Attempts:  receipt.Attempts + 1,
			},
			Version: 1,
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit receipt failed")
		}
		return nil
	})
}

// RetryFailed re-dispatches failed receipts still under the attempt
// cap, plus pending receipts old enough that the process which created
// them has clearly died before dispatching. Returns how many receipts
// were retried and how many of those succeeded.
func (s *Service) RetryFailed(ctx context.Context, limit int) (retried, succeeded int, err error) {
	if limit <= 0 {
		limit = 20
	}
	receipts, err := s.repo.FindRetryable(ctx, s.maxAttempts, limit, time.Now().Add(-s.pendingStaleAfter))
	if err != nil {
		return 0, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list retryable receipts")
	}
	for _, receipt := range receipts {
		retried++
		if err := s.Dispatch(ctx, receipt.ID); err != nil {
			continue
		}
		succeeded++
	}
	return retried, succeeded, nil
}
