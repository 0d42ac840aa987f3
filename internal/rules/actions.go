package rules

import (
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/google/uuid"
)

// EffectiveActions returns the rule's actions with the rule-level transfer
// target filled in as the link fallback.
func EffectiveActions(rule domain.AutomationRule) domain.Actions {
	a := rule.Actions
	if a.LinkToAccount == "" && rule.TransferToAccountID != nil {
		a.LinkToAccount = *rule.TransferToAccountID
	}
	return a
}

// ApplyActions mutates tx with the present action fields in a fixed order:
// type, category, account, transfer link, reconcile flag, note. It returns the
// subset of actions that actually changed something.
func ApplyActions(tx *domain.Transaction, a domain.Actions) domain.Actions {
	var applied domain.Actions

	if a.SetType != "" {
		tx.Type = a.SetType
		applied.SetType = a.SetType
	}

	if a.SetCategory.Present {
		if a.SetCategory.Clears() {
			tx.CategoryID = nil
		} else {
			tx.CategoryID = domain.StringPtr(a.SetCategory.Value)
		}
		applied.SetCategory = a.SetCategory
	}

	if a.SetAccount != "" {
		tx.AccountID = a.SetAccount
		applied.SetAccount = a.SetAccount
	}

	// An entry that is already one side of a linked pair keeps its link.
	if a.LinkToAccount != "" && !tx.IsLinkedTransfer() {
		tx.TransferToAccountID = domain.StringPtr(a.LinkToAccount)
		tx.TransferID = domain.StringPtr(uuid.NewString())
		applied.LinkToAccount = a.LinkToAccount
	}

	if a.AutoReconcile {
		tx.Reconciled = true
		applied.AutoReconcile = true
	}

	if a.AddNote != "" {
		tx.Notes = AppendNote(tx.Notes, a.AddNote)
		applied.AddNote = a.AddNote
	}

	return applied
}

// AppendNote joins note onto existing notes with a line break.
func AppendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
