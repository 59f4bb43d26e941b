package fiscal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sarqyt/sarqyt-backend/pkg/config"
	"github.com/sarqyt/sarqyt-backend/pkg/enums"
	pkgerrors "github.com/sarqyt/sarqyt-backend/pkg/errors"
	"github.com/sarqyt/sarqyt-backend/pkg/outbox"
)

type sqliteTxRunner struct {
	db *gorm.DB
}

func (r sqliteTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubSender struct {
	issue func(IssueRequest) (string, error)
	calls int
}

func (s *stubSender) Issue(_ context.Context, req IssueRequest) (string, error) {
	s.calls++
	return s.issue(req)
}

func newFiscalTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS payment_transactions (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  provider TEXT NOT NULL,
  provider_tx_id TEXT NOT NULL,
  amount_minor INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'prepared',
  error_code TEXT,
  error_note TEXT,
  raw_request TEXT,
  raw_response TEXT,
  prepared_at DATETIME,
  confirmed_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS fiscal_receipts (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  payment_transaction_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  qr_code_url TEXT,
  error_note TEXT,
  attempts INTEGER NOT NULL DEFAULT 0,
  last_attempt_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	} {
		if err := db.Exec(ddl).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
	return db
}

func newFiscalService(t *testing.T, db *gorm.DB, sender Sender) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(db),
		Tx:     sqliteTxRunner{db: db},
		Outbox: outbox.NewService(outbox.NewRepository(db), nil),
		Sender: sender,
		Config: config.FiscalConfig{MaxAttempts: 3},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func seedReceipt(t *testing.T, db *gorm.DB, status enums.FiscalStatus, attempts int) uuid.UUID {
	t.Helper()
	txID := uuid.New()
	if err := db.Exec(`INSERT INTO payment_transactions (id, order_id, provider, provider_tx_id, amount_minor, status) VALUES (?, ?, 'click', ?, 1500000, 'confirmed')`,
		txID, uuid.New(), "seed-"+txID.String()).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	receiptID := uuid.New()
	if err := db.Exec(`INSERT INTO fiscal_receipts (id, order_id, payment_transaction_id, status, attempts) VALUES (?, ?, ?, ?, ?)`,
		receiptID, uuid.New(), txID, status, attempts).Error; err != nil {
		t.Fatalf("seed receipt: %v", err)
	}
	return receiptID
}

func receiptRow(t *testing.T, db *gorm.DB, id uuid.UUID) (status string, attempts int, qr *string) {
	t.Helper()
	var row struct {
		Status    string
		Attempts  int
		QRCodeURL *string `gorm:"column:qr_code_url"`
	}
	if err := db.Raw(`SELECT status, attempts, qr_code_url FROM fiscal_receipts WHERE id = ?`, id).Scan(&row).Error; err != nil {
		t.Fatalf("load receipt: %v", err)
	}
	return row.Status, row.Attempts, row.QRCodeURL
}

func TestDispatchIssuesReceipt(t *testing.T) {
	db := newFiscalTestDB(t)
	sender := &stubSender{
		issue: func(req IssueRequest) (string, error) {
			if req.AmountMinor != 1_500_000 {
				t.Fatalf("unexpected amount %d", req.AmountMinor)
			}
			return "https://ofd.example/qr/abc", nil
		},
	}
	svc := newFiscalService(t, db, sender)
	receiptID := seedReceipt(t, db, enums.FiscalStatusPending, 0)

	if err := svc.Dispatch(context.Background(), receiptID); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	status, attempts, qr := receiptRow(t, db, receiptID)
	if status != string(enums.FiscalStatusSuccess) {
		t.Fatalf("expected success, got %q", status)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
	if qr == nil || *qr != "https://ofd.example/qr/abc" {
		t.Fatalf("unexpected qr %v", qr)
	}

	var eventCount int
	if err := db.Raw(`SELECT COUNT(*) FROM outbox_events WHERE event_type = ? AND aggregate_id = ?`,
		enums.EventFiscalReceiptIssued, receiptID).Scan(&eventCount).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if eventCount != 1 {
		t.Fatalf("expected 1 issued event, got %d", eventCount)
	}
}

func TestDispatchRecordsFailure(t *testing.T) {
	db := newFiscalTestDB(t)
	sender := &stubSender{
		issue: func(IssueRequest) (string, error) {
			// non-retryable: the in-process backoff must not kick in
			return "", pkgerrors.New(pkgerrors.CodeValidation, "fiscal gateway rejected receipt")
		},
	}
	svc := newFiscalService(t, db, sender)
	receiptID := seedReceipt(t, db, enums.FiscalStatusPending, 0)

	if err := svc.Dispatch(context.Background(), receiptID); err == nil {
		t.Fatal("expected dispatch error")
	}
	if sender.calls != 1 {
		t.Fatalf("expected 1 sender call, got %d", sender.calls)
	}

	status, attempts, _ := receiptRow(t, db, receiptID)
	if status != string(enums.FiscalStatusFailed) {
		t.Fatalf("expected failed, got %q", status)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}

	var eventCount int
	if err := db.Raw(`SELECT COUNT(*) FROM outbox_events WHERE event_type = ? AND aggregate_id = ?`,
		enums.EventFiscalReceiptFailed, receiptID).Scan(&eventCount).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if eventCount != 1 {
		t.Fatalf("expected 1 failed event, got %d", eventCount)
	}
}

func TestDispatchRetriesTransientErrors(t *testing.T) {
	db := newFiscalTestDB(t)
	failures := 2
	sender := &stubSender{}
	sender.issue = func(IssueRequest) (string, error) {
		if sender.calls <= failures {
			return "", pkgerrors.New(pkgerrors.CodeDependency, "fiscal gateway unavailable")
		}
		return "https://ofd.example/qr/retry", nil
	}
	svc := newFiscalService(t, db, sender)
	receiptID := seedReceipt(t, db, enums.FiscalStatusPending, 0)

	if err := svc.Dispatch(context.Background(), receiptID); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sender.calls != failures+1 {
		t.Fatalf("expected %d sender calls, got %d", failures+1, sender.calls)
	}

	status, _, _ := receiptRow(t, db, receiptID)
	if status != string(enums.FiscalStatusSuccess) {
		t.Fatalf("expected success, got %q", status)
	}
}

func TestDispatchSkipsIssuedReceipt(t *testing.T) {
	db := newFiscalTestDB(t)
	sender := &stubSender{
		issue: func(IssueRequest) (string, error) {
			t.Fatal("sender must not be called for an issued receipt")
			return "", nil
		},
	}
	svc := newFiscalService(t, db, sender)
	receiptID := seedReceipt(t, db, enums.FiscalStatusSuccess, 1)

	if err := svc.Dispatch(context.Background(), receiptID); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
}

func TestDispatchHonorsAttemptCap(t *testing.T) {
	db := newFiscalTestDB(t)
	sender := &stubSender{
		issue: func(IssueRequest) (string, error) {
			t.Fatal("sender must not be called over the attempt cap")
			return "", nil
		},
	}
	svc := newFiscalService(t, db, sender)
	receiptID := seedReceipt(t, db, enums.FiscalStatusFailed, 3)

	if err := svc.Dispatch(context.Background(), receiptID); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	status, attempts, _ := receiptRow(t, db, receiptID)
	if status != string(enums.FiscalStatusFailed) || attempts != 3 {
		t.Fatalf("capped receipt changed: %q %d", status, attempts)
	}
}

func TestRetryFailedPicksUpStalePendingReceipt(t *testing.T) {
	db := newFiscalTestDB(t)
	sender := &stubSender{
		issue: func(IssueRequest) (string, error) {
			return "https://ofd.example/qr/recovered", nil
		},
	}
	svc := newFiscalService(t, db, sender)

	// A receipt committed by a process that died before dispatching:
	// still pending, zero attempts, old enough to be stale.
	stale := seedReceipt(t, db, enums.FiscalStatusPending, 0)
	if err := db.Exec(`UPDATE fiscal_receipts SET created_at = ? WHERE id = ?`, time.Now().Add(-time.Hour), stale).Error; err != nil {
		t.Fatalf("backdate receipt: %v", err)
	}
	// A receipt whose dispatch is presumably still in flight.
	fresh := seedReceipt(t, db, enums.FiscalStatusPending, 0)
	if err := db.Exec(`UPDATE fiscal_receipts SET created_at = ? WHERE id = ?`, time.Now(), fresh).Error; err != nil {
		t.Fatalf("timestamp receipt: %v", err)
	}

	if _, _, err := svc.RetryFailed(context.Background(), 10); err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}

	staleStatus, staleAttempts, _ := receiptRow(t, db, stale)
	if staleStatus != string(enums.FiscalStatusSuccess) {
		t.Fatalf("expected stale pending receipt issued, got %q", staleStatus)
	}
	if staleAttempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", staleAttempts)
	}

	freshStatus, freshAttempts, _ := receiptRow(t, db, fresh)
	if freshStatus != string(enums.FiscalStatusPending) || freshAttempts != 0 {
		t.Fatalf("fresh pending receipt changed: %q %d", freshStatus, freshAttempts)
	}
}

func TestRetryFailed(t *testing.T) {
	db := newFiscalTestDB(t)
	sender := &stubSender{
		issue: func(IssueRequest) (string, error) {
			return "https://ofd.example/qr/second-chance", nil
		},
	}
	svc := newFiscalService(t, db, sender)

	retryable := seedReceipt(t, db, enums.FiscalStatusFailed, 1)
	capped := seedReceipt(t, db, enums.FiscalStatusFailed, 3)

	retried, succeeded, err := svc.RetryFailed(context.Background(), 10)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if retried < 1 || succeeded < 1 {
		t.Fatalf("expected at least one retried success, got retried=%d succeeded=%d", retried, succeeded)
	}

	status, _, _ := receiptRow(t, db, retryable)
	if status != string(enums.FiscalStatusSuccess) {
		t.Fatalf("expected retried receipt issued, got %q", status)
	}
	cappedStatus, cappedAttempts, _ := receiptRow(t, db, capped)
	if cappedStatus != string(enums.FiscalStatusFailed) || cappedAttempts != 3 {
		t.Fatalf("capped receipt changed: %q %d", cappedStatus, cappedAttempts)
	}
}
