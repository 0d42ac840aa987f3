package transfer

import (
	"fmt"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/rules"
	"github.com/google/uuid"
)

// Info summarises how a transfer message was interpreted.
type Info struct {
	DestinationPhone   string `json:"destination_phone,omitempty"`
	OriginSuffix       string `json:"origin_suffix,omitempty"`
	IsInternalTransfer bool   `json:"is_internal_transfer"`
	LinkedAccountID    string `json:"linked_account_id,omitempty"`
	RuleName           string `json:"rule_name,omitempty"`
	TransferID         string `json:"transfer_id,omitempty"`
}

// Categories carries the category ids the expander may assign. Either may be
// nil when the user has no such category.
type Categories struct {
	Transfer *string
	Missing  *string
}

// Expansion is the result of expanding one candidate.
type Expansion struct {
	Entries []domain.Transaction
	Info    Info
}

// Expand decides how many ledger entries a transfer-shaped candidate becomes.
//
// Without a destination identifier the candidate stays a single entry with
// its type unchanged. With an identifier that no rule maps, it becomes a
// single expense whose note records the identifier. With a mapped identifier
// it becomes an outgoing/incoming transfer pair sharing a new transfer id.
func Expand(candidate domain.Transaction, rawText string, transferRules []domain.AutomationRule, cats Categories) Expansion {
	d := Detect(rawText, transferRules)
	info := Info{DestinationPhone: d.Phone, OriginSuffix: d.OriginSuffix}

	destination := d.DestinationAccountID()

	switch {
	case d.Phone == "":
		tx := candidate.Clone()
		if tx.CategoryID == nil {
			tx.CategoryID = cloneID(cats.Missing)
		}
		tx.Notes = rules.AppendNote(tx.Notes, "Transfer: destination not identified")
		return Expansion{Entries: []domain.Transaction{tx}, Info: info}

	case destination == "":
		tx := candidate.Clone()
		tx.Type = domain.TypeExpense
		if tx.CategoryID == nil {
			tx.CategoryID = cloneID(cats.Missing)
		}
		tx.Notes = rules.AppendNote(tx.Notes, fmt.Sprintf("Transfer to unregistered destination *%s", d.Phone))
		return Expansion{Entries: []domain.Transaction{tx}, Info: info}
	}

	transferID := uuid.NewString()
	origin := candidate.AccountID

	outgoing := candidate.Clone()
	outgoing.Type = domain.TypeTransfer
	outgoing.TransferSide = domain.SideOutgoing
	outgoing.TransferToAccountID = domain.StringPtr(destination)
	outgoing.TransferID = domain.StringPtr(transferID)
	if cats.Transfer != nil {
		outgoing.CategoryID = cloneID(cats.Transfer)
	}
	outgoing.Notes = rules.AppendNote(outgoing.Notes, fmt.Sprintf("Transfer to %s (*%s)", d.Rule.Name, d.Phone))

	incoming := candidate.Clone()
	incoming.Type = domain.TypeTransfer
	incoming.TransferSide = domain.SideIncoming
	incoming.AccountID = destination
	incoming.TransferToAccountID = domain.StringPtr(origin)
	incoming.TransferID = domain.StringPtr(transferID)
	if cats.Transfer != nil {
		incoming.CategoryID = cloneID(cats.Transfer)
	}
	if d.OriginSuffix != "" {
		incoming.Notes = rules.AppendNote(incoming.Notes, fmt.Sprintf("Transfer received from account *%s", d.OriginSuffix))
	} else {
		incoming.Notes = rules.AppendNote(incoming.Notes, "Transfer received")
	}

	info.IsInternalTransfer = true
	info.LinkedAccountID = destination
	info.RuleName = d.Rule.Name
	info.TransferID = transferID

	return Expansion{Entries: []domain.Transaction{outgoing, incoming}, Info: info}
}

func cloneID(p *string) *string {
	if p == nil {
		return nil
	}
	return domain.StringPtr(*p)
}
