package migrations

import "gorm.io/gorm"

// AddLedgerIndexes adds the indexes used by order history and ledger
// replay queries.
func AddLedgerIndexes(db *gorm.DB) error {
	indexes := []string{
		// Ledger replay walks one account in append order
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_seq
		 ON ledger_entries(account_id, id)`,

		// Ledger lookups by source event
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_ref
		 ON ledger_entries(ref_type, ref_id)`,

		// Order history per user, newest first, optionally by status
		`CREATE INDEX IF NOT EXISTS idx_orders_user_status_created
		 ON orders(user_id, status, created_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
