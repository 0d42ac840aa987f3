package pipeline

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-assistant/internal/domain"
)

// ValidateEntry checks that tx can be persisted and posted.
func ValidateEntry(tx domain.Transaction) error {
	if tx.UserID == "" {
		return fmt.Errorf("missing user_id")
	}
	if tx.AccountID == "" {
		return fmt.Errorf("missing account_id")
	}
	if tx.Amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", tx.Amount)
	}
	if !tx.Type.Valid() {
		return fmt.Errorf("invalid type %q", tx.Type)
	}
	if _, err := civil.ParseDate(tx.Date); err != nil {
		return fmt.Errorf("invalid date %q: %w", tx.Date, err)
	}
	if _, ok := ValidateAndFixTime(tx.Time); !ok || len(tx.Time) != 5 {
		return fmt.Errorf("invalid time %q", tx.Time)
	}
	if tx.Confidence < 0 || tx.Confidence > 100 {
		return fmt.Errorf("confidence out of range: %d", tx.Confidence)
	}
	if tx.Type == domain.TypeTransfer && !tx.IsLinkedTransfer() {
		return fmt.Errorf("transfer entry must carry transfer_to_account_id and transfer_id")
	}
	return nil
}

// validateEntries checks every entry before anything is written.
func validateEntries(entries []domain.Transaction) error {
	if len(entries) == 0 {
		return fmt.Errorf("no entries to persist")
	}
	for i, e := range entries {
		if err := ValidateEntry(e); err != nil {
			return fmt.Errorf("entry %d: %w", i+1, err)
		}
	}
	return nil
}
