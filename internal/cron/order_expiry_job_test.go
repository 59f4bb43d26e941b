package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sarqyt/sarqyt-backend/internal/orders"
	"github.com/sarqyt/sarqyt-backend/pkg/config"
	"github.com/sarqyt/sarqyt-backend/pkg/enums"
	"github.com/sarqyt/sarqyt-backend/pkg/logger"
	"github.com/sarqyt/sarqyt-backend/pkg/outbox"
)

type sqliteTxRunner struct {
	db *gorm.DB
}

func (r sqliteTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newExpiryTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS offers (
  id TEXT PRIMARY KEY,
  store_id TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  unit TEXT NOT NULL DEFAULT 'pcs',
  original_price_minor INTEGER NOT NULL DEFAULT 0,
  discount_price_minor INTEGER NOT NULL DEFAULT 0,
  stock_qty INTEGER NOT NULL DEFAULT 0,
  expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS pickup_slots (
  id TEXT PRIMARY KEY,
  store_id TEXT NOT NULL,
  slot_at DATETIME NOT NULL,
  capacity INTEGER NOT NULL,
  reserved INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  user_id INTEGER NOT NULL,
  store_id TEXT NOT NULL,
  order_type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  cancel_reason TEXT,
  payment_provider TEXT NOT NULL DEFAULT 'cash',
  pickup_code TEXT,
  pickup_time DATETIME,
  delivery_address TEXT,
  total_minor INTEGER NOT NULL DEFAULT 0,
  status_message_id INTEGER,
  created_at DATETIME,
  updated_at DATETIME,
  CHECK ((status IN ('cancelled', 'rejected')) = (cancel_reason IS NOT NULL))
);`,
		`CREATE TABLE IF NOT EXISTS order_lines (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  offer_id TEXT NOT NULL,
  qty INTEGER NOT NULL,
  unit_price_minor INTEGER NOT NULL,
  total_minor INTEGER NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS payment_proofs (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'awaiting_payment',
  image_ref TEXT,
  reject_count INTEGER NOT NULL DEFAULT 0,
  review_note TEXT,
  submitted_at DATETIME,
  reviewed_at DATETIME,
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

type expiryFixture struct {
	db     *gorm.DB
	orders orders.Service
	job    Job
}

func newExpiryFixture(t *testing.T, ttl time.Duration) *expiryFixture {
	t.Helper()

	db := newExpiryTestDB(t)
	runner := sqliteTxRunner{db: db}
	outboxSvc := outbox.NewService(outbox.NewRepository(db), nil)
	repo := orders.NewRepository(db)

	ordersSvc, err := orders.NewService(repo, runner, outboxSvc, config.OrdersConfig{PickupCodeLength: 4})
	if err != nil {
		t.Fatalf("orders.NewService: %v", err)
	}

	job, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		DB:         runner,
		Reader:     repo,
		Terminator: ordersSvc,
		Outbox:     outboxSvc,
		PaymentTTL: ttl,
	})
	if err != nil {
		t.Fatalf("NewOrderExpiryJob: %v", err)
	}
	return &expiryFixture{db: db, orders: ordersSvc, job: job}
}

// newStaleOrder creates a pending click order and backdates it past the
// payment window.
func (f *expiryFixture) newStaleOrder(t *testing.T, age time.Duration) uuid.UUID {
	t.Helper()

	storeID := uuid.New()
	offerID := uuid.New()
	slotAt := time.Date(2025, 8, 12, 18, 0, 0, 0, time.UTC)

	if err := f.db.Exec(`INSERT INTO offers (id, store_id, title, discount_price_minor, stock_qty) VALUES (?, ?, ?, ?, ?)`,
		offerID, storeID, "surprise bag", 500000, 3).Error; err != nil {
		t.Fatalf("seed offer: %v", err)
	}
	if err := f.db.Exec(`INSERT INTO pickup_slots (id, store_id, slot_at, capacity, reserved) VALUES (?, ?, ?, ?, 0)`,
		uuid.New(), storeID, slotAt, 5).Error; err != nil {
		t.Fatalf("seed slot: %v", err)
	}

	view, err := f.orders.Create(context.Background(), orders.CreateOrderInput{
		UserID:          44871,
		StoreID:         storeID,
		Lines:           []orders.LineInput{{OfferID: offerID, Qty: 1}},
		Type:            enums.OrderTypePickup,
		PaymentProvider: enums.PaymentProviderClick,
		PickupTime:      &slotAt,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := f.db.Exec(`UPDATE orders SET created_at = ? WHERE id = ?`,
		time.Now().Add(-age), view.ID).Error; err != nil {
		t.Fatalf("backdate order: %v", err)
	}
	return view.ID
}

func (f *expiryFixture) orderRow(t *testing.T, orderID uuid.UUID) (status, reason string) {
	t.Helper()
	var row struct {
		Status       string
		CancelReason *string
	}
	if err := f.db.Raw(`SELECT status, cancel_reason FROM orders WHERE id = ?`, orderID).Scan(&row).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if row.CancelReason != nil {
		reason = *row.CancelReason
	}
	return row.Status, reason
}

func TestOrderExpiryJobCancelsStaleOrders(t *testing.T) {
	f := newExpiryFixture(t, 30*time.Minute)
	stale := f.newStaleOrder(t, time.Hour)
	fresh := f.newStaleOrder(t, 5*time.Minute)

	if err := f.job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	status, reason := f.orderRow(t, stale)
	if status != string(enums.OrderStatusCancelled) {
		t.Fatalf("expected stale order cancelled, got %q", status)
	}
	if reason != string(enums.CancelReasonTechnicalIssue) {
		t.Fatalf("expected technical_issue, got %q", reason)
	}

	freshStatus, _ := f.orderRow(t, fresh)
	if freshStatus != string(enums.OrderStatusPending) {
		t.Fatalf("expected fresh order untouched, got %q", freshStatus)
	}

	// the reserved unit went back on the shelf
	var stock int
	if err := f.db.Raw(`SELECT o.stock_qty FROM offers o JOIN order_lines l ON l.offer_id = o.id WHERE l.order_id = ?`, stale).
		Scan(&stock).Error; err != nil {
		t.Fatalf("load stock: %v", err)
	}
	if stock != 3 {
		t.Fatalf("expected stock back at 3, got %d", stock)
	}

	var eventCount int
	if err := f.db.Raw(`SELECT COUNT(*) FROM outbox_events WHERE event_type = ? AND aggregate_id = ?`,
		enums.EventOrderExpired, stale).Scan(&eventCount).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if eventCount != 1 {
		t.Fatalf("expected 1 expired event, got %d", eventCount)
	}
}

func TestOrderExpiryJobIsIdempotent(t *testing.T) {
	f := newExpiryFixture(t, 30*time.Minute)
	stale := f.newStaleOrder(t, time.Hour)

	for i := 0; i < 2; i++ {
		if err := f.job.Run(context.Background()); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}

	status, _ := f.orderRow(t, stale)
	if status != string(enums.OrderStatusCancelled) {
		t.Fatalf("expected cancelled, got %q", status)
	}

	var eventCount int
	if err := f.db.Raw(`SELECT COUNT(*) FROM outbox_events WHERE event_type = ? AND aggregate_id = ?`,
		enums.EventOrderExpired, stale).Scan(&eventCount).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if eventCount != 1 {
		t.Fatalf("expected 1 expired event after reruns, got %d", eventCount)
	}
}
