package migrate_test

import (
	"strings"
	"testing"

	"github.com/sarqyt/sarqyt-backend/pkg/migrate"
)

func TestPaymentTransactionsMigrationHasIdempotencyIndex(t *testing.T) {
	content := readMigration(t, "*_create_payment_transactions.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS payment_transactions",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_tx_provider_tx ON payment_transactions (provider, provider_tx_id)",
		"status payment_tx_status NOT NULL DEFAULT 'prepared'",
		"DROP TABLE IF EXISTS payment_transactions",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPaymentProofsMigrationEnforcesOnePerOrder(t *testing.T) {
	content := readMigration(t, "*_create_payment_proofs.sql")

	checks := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_proofs_order",
		"status proof_status NOT NULL DEFAULT 'awaiting_payment'",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("shipped migrations should validate: %v", err)
	}
}
