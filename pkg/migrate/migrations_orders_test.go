package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_orders.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"status order_status NOT NULL DEFAULT 'pending'",
		"CREATE TABLE IF NOT EXISTS order_lines",
		"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE",
		"CHECK (qty > 0)",
		"CHECK ((status IN ('cancelled', 'rejected')) = (cancel_reason IS NOT NULL))",
		"DROP TABLE IF EXISTS order_lines",
		"DROP TABLE IF EXISTS orders",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOffersMigrationGuardsStock(t *testing.T) {
	content := readMigration(t, "*_create_offers.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS offers",
		"CHECK (stock_qty >= 0)",
		"CHECK (original_price_minor >= discount_price_minor)",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPickupSlotsMigrationGuardsCapacity(t *testing.T) {
	content := readMigration(t, "*_create_pickup_slots.sql")

	checks := []string{
		"CHECK (reserved >= 0)",
		"CHECK (reserved <= capacity)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_pickup_slots_store_slot",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q found", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
