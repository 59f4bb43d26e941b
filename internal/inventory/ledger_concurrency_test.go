package inventory

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pkgerrors "github.com/sarqyt/sarqyt-backend/pkg/errors"
)

// The shared in-memory fixture serializes everything on one cache, so
// interleaving tests use a file-backed database where each goroutine's
// UPDATE really races the others.
func newFileTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "inventory.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	createInventoryTables(t, db)
	return db
}

// retryLocked re-runs fn while sqlite reports lock contention; the
// busy timeout handles most of it, this covers the rest.
func retryLocked(t *testing.T, fn func() error) error {
	t.Helper()

	var err error
	for i := 0; i < 50; i++ {
		err = fn()
		if err == nil || !strings.Contains(err.Error(), "locked") {
			return err
		}
		time.Sleep(10 * time.Millisecond)
	}
	return err
}

func TestConcurrentStockReservationsNeverOversell(t *testing.T) {
	db := newFileTestDB(t)
	ctx := context.Background()
	const stock, attempts = 3, 10
	offerID := seedOffer(t, db, stock)

	start := make(chan struct{})
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = retryLocked(t, func() error {
				return ReserveStock(ctx, db, offerID, 1)
			})
		}(i)
	}
	close(start)
	wg.Wait()

	wins := 0
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
		case pkgerrors.HasCode(err, pkgerrors.CodeOutOfStock):
		default:
			t.Fatalf("reservation %d: unexpected error %v", i, err)
		}
	}
	if wins != stock {
		t.Fatalf("expected exactly %d winners, got %d", stock, wins)
	}
	if got := stockOf(t, db, offerID); got != 0 {
		t.Fatalf("expected stock 0 after race, got %d", got)
	}
}

func TestConcurrentSlotReservationsNeverExceedCapacity(t *testing.T) {
	db := newFileTestDB(t)
	ctx := context.Background()
	const attempts = 8
	storeID, slotAt := seedSlot(t, db, 1, 0)

	start := make(chan struct{})
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = retryLocked(t, func() error {
				return ReserveSlot(ctx, db, storeID, slotAt)
			})
		}(i)
	}
	close(start)
	wg.Wait()

	wins := 0
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
		case pkgerrors.HasCode(err, pkgerrors.CodeSlotFull):
		default:
			t.Fatalf("reservation %d: unexpected error %v", i, err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", wins)
	}
	if got := reservedOf(t, db, storeID, slotAt); got != 1 {
		t.Fatalf("expected reserved 1 after race, got %d", got)
	}
}
