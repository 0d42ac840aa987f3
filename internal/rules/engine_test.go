package rules

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(zerolog.Nop())
}

func rule(id string, priority int, conds domain.Conditions, actions domain.Actions) domain.AutomationRule {
	return domain.AutomationRule{
		ID:             id,
		Name:           "rule " + id,
		IsActive:       true,
		Priority:       priority,
		RuleType:       domain.RuleGeneral,
		ConditionLogic: domain.LogicOr,
		Conditions:     conds,
		Actions:        actions,
	}
}

func baseTx() domain.Transaction {
	return domain.Transaction{
		UserID:      "user-1",
		Date:        "2025-01-15",
		Time:        "10:30",
		Amount:      45000,
		Description: "Compra en RAPPI",
		CategoryID:  domain.StringPtr("cat-other"),
		AccountID:   "acc-1",
		Type:        domain.TypeExpense,
		Source:      "telegram",
		RawText:     "Compraste $45.000 en RAPPI",
	}
}

func TestEngine_Apply_NonMatchingRulesLeaveTransactionUntouched(t *testing.T) {
	tx := baseTx()
	rules := []domain.AutomationRule{
		rule("r1", 10, domain.Conditions{DescriptionContains: []string{"uber"}},
			domain.Actions{SetCategory: domain.SetCategoryTo("cat-transport"), AddNote: "uber"}),
		rule("r2", 5, domain.Conditions{Source: []string{"email"}},
			domain.Actions{SetType: domain.TypeIncome}),
	}

	got, provenance := newTestEngine().Apply(context.Background(), tx, rules)

	assert.Equal(t, tx, got)
	assert.Nil(t, provenance)
	assert.Nil(t, got.AppliedRules)
}

func TestEngine_Apply_IsCumulativeInPriorityOrder(t *testing.T) {
	tx := baseTx()
	rules := []domain.AutomationRule{
		rule("low", 1, domain.Conditions{DescriptionContains: []string{"rappi"}},
			domain.Actions{SetCategory: domain.SetCategoryTo("cat-delivery"), AddNote: "low"}),
		rule("high", 90, domain.Conditions{DescriptionContains: []string{"rappi"}},
			domain.Actions{SetCategory: domain.SetCategoryTo("cat-restaurant"), AddNote: "high"}),
	}

	got, provenance := newTestEngine().Apply(context.Background(), tx, rules)

	require.Len(t, provenance, 2)
	assert.Equal(t, "high", provenance[0].RuleID)
	assert.Equal(t, "low", provenance[1].RuleID)
	assert.Equal(t, "cat-delivery", domain.Deref(got.CategoryID), "lower priority rule overrides")
	assert.Equal(t, "high\nlow", got.Notes)
	assert.Equal(t, provenance, got.AppliedRules)
	assert.Equal(t, "cat-other", domain.Deref(tx.CategoryID), "input is not mutated")
}

func TestEngine_Apply_LaterRulesSeeRewrittenFields(t *testing.T) {
	tx := baseTx()
	rules := []domain.AutomationRule{
		rule("move", 50, domain.Conditions{DescriptionContains: []string{"rappi"}},
			domain.Actions{SetAccount: "acc-card"}),
		rule("tag", 10, domain.Conditions{FromAccount: "acc-card"},
			domain.Actions{AddNote: "card purchase"}),
	}

	got, provenance := newTestEngine().Apply(context.Background(), tx, rules)

	require.Len(t, provenance, 2)
	assert.Equal(t, "acc-card", got.AccountID)
	assert.Equal(t, "card purchase", got.Notes)
}

func TestEngine_Apply_EqualPriorityIsStable(t *testing.T) {
	rules := []domain.AutomationRule{
		rule("a", 10, domain.Conditions{}, domain.Actions{AddNote: "a"}),
		rule("b", 10, domain.Conditions{}, domain.Actions{AddNote: "b"}),
		rule("c", 10, domain.Conditions{}, domain.Actions{AddNote: "c"}),
	}

	for i := 0; i < 20; i++ {
		got, _ := newTestEngine().Apply(context.Background(), baseTx(), rules)
		assert.Equal(t, "a\nb\nc", got.Notes)
	}
}

func TestEngine_Apply_SkipsIneligibleRules(t *testing.T) {
	deleted := time.Now()
	inactive := rule("inactive", 10, domain.Conditions{}, domain.Actions{AddNote: "inactive"})
	inactive.IsActive = false
	softDeleted := rule("deleted", 10, domain.Conditions{}, domain.Actions{AddNote: "deleted"})
	softDeleted.DeletedAt = &deleted
	detection := rule("detect", 10, domain.Conditions{}, domain.Actions{SetAccount: "acc-x"})
	detection.RuleType = domain.RuleAccountDetection

	got, provenance := newTestEngine().Apply(context.Background(), baseTx(), []domain.AutomationRule{inactive, softDeleted, detection})

	assert.Nil(t, provenance)
	assert.Equal(t, "acc-1", got.AccountID)
	assert.Empty(t, got.Notes)
}

func TestEngine_Apply_MisconfiguredRuleIsLoggedAndSkipped(t *testing.T) {
	buf := &bytes.Buffer{}
	engine := NewEngine(zerolog.New(buf))
	rules := []domain.AutomationRule{
		rule("broken", 90, domain.Conditions{DescriptionRegex: "rappi(?=x)"}, domain.Actions{AddNote: "broken"}),
		rule("ok", 10, domain.Conditions{DescriptionContains: []string{"rappi"}}, domain.Actions{AddNote: "ok"}),
	}

	got, provenance := engine.Apply(context.Background(), baseTx(), rules)

	require.Len(t, provenance, 1)
	assert.Equal(t, "ok", provenance[0].RuleID)
	assert.Equal(t, "ok", got.Notes)
	assert.Contains(t, buf.String(), "broken")
}

func TestEngine_Apply_SkipsRuleLeavingUnlinkedTransfer(t *testing.T) {
	buf := &bytes.Buffer{}
	engine := NewEngine(zerolog.New(buf))
	rules := []domain.AutomationRule{
		rule("unlinked", 90, domain.Conditions{DescriptionContains: []string{"rappi"}},
			domain.Actions{SetType: domain.TypeTransfer, SetAccount: "acc-9", AddNote: "moved"}),
		rule("ok", 10, domain.Conditions{DescriptionContains: []string{"rappi"}}, domain.Actions{AddNote: "ok"}),
	}

	got, provenance := engine.Apply(context.Background(), baseTx(), rules)

	require.Len(t, provenance, 1)
	assert.Equal(t, "ok", provenance[0].RuleID)
	assert.Equal(t, domain.TypeExpense, got.Type)
	assert.Equal(t, "acc-1", got.AccountID)
	assert.Equal(t, "ok", got.Notes)
	assert.Nil(t, got.TransferID)
	assert.Contains(t, buf.String(), "unlinked")
}

func TestEngine_Apply_ClearsCategoryOnExplicitNull(t *testing.T) {
	rules := []domain.AutomationRule{
		rule("clear", 10, domain.Conditions{}, domain.Actions{SetCategory: domain.ClearCategory()}),
	}

	got, provenance := newTestEngine().Apply(context.Background(), baseTx(), rules)

	require.Len(t, provenance, 1)
	assert.Nil(t, got.CategoryID)
}

func TestEngine_Apply_LinkUsesRuleLevelFallback(t *testing.T) {
	r := rule("link", 10, domain.Conditions{DescriptionContains: []string{"rappi"}}, domain.Actions{SetType: domain.TypeTransfer})
	r.TransferToAccountID = domain.StringPtr("acc-savings")

	got, provenance := newTestEngine().Apply(context.Background(), baseTx(), []domain.AutomationRule{r})

	require.Len(t, provenance, 1)
	assert.Equal(t, "acc-savings", domain.Deref(got.TransferToAccountID))
	require.NotNil(t, got.TransferID)
	assert.NotEmpty(t, *got.TransferID)
	assert.Equal(t, "acc-savings", provenance[0].ActionsApplied.LinkToAccount)
}

func TestEngine_Apply_ExplicitLinkWinsOverFallback(t *testing.T) {
	r := rule("link", 10, domain.Conditions{}, domain.Actions{LinkToAccount: "acc-explicit"})
	r.TransferToAccountID = domain.StringPtr("acc-fallback")

	got, _ := newTestEngine().Apply(context.Background(), baseTx(), []domain.AutomationRule{r})

	assert.Equal(t, "acc-explicit", domain.Deref(got.TransferToAccountID))
}

func TestEngine_Apply_KeepsExistingTransferLink(t *testing.T) {
	tx := baseTx()
	tx.Type = domain.TypeTransfer
	tx.TransferToAccountID = domain.StringPtr("acc-dest")
	tx.TransferID = domain.StringPtr("pair-1")

	r := rule("link", 10, domain.Conditions{}, domain.Actions{LinkToAccount: "acc-other"})
	got, provenance := newTestEngine().Apply(context.Background(), tx, []domain.AutomationRule{r})

	require.Len(t, provenance, 1)
	assert.Equal(t, "acc-dest", domain.Deref(got.TransferToAccountID))
	assert.Equal(t, "pair-1", domain.Deref(got.TransferID))
	assert.Empty(t, provenance[0].ActionsApplied.LinkToAccount)
}

func TestEngine_DetectAccount(t *testing.T) {
	detect := func(id string, priority int, keywords ...string) domain.AutomationRule {
		r := rule(id, priority, domain.Conditions{RawTextContains: keywords}, domain.Actions{SetAccount: "acc-" + id})
		r.RuleType = domain.RuleAccountDetection
		r.ConditionLogic = domain.LogicAnd
		return r
	}
	general := rule("general", 1000, domain.Conditions{}, domain.Actions{SetAccount: "acc-general"})

	rules := []domain.AutomationRule{
		general,
		detect("nequi", 100, "nequi"),
		detect("card", 100, "bancolombia", "7799"),
		detect("bank", 200, "bancolombia"),
	}

	tests := []struct {
		name    string
		rawText string
		want    string
	}{
		{"highest priority wins", "Bancolombia: compraste con *7799", "bank"},
		{"no match", "Daviplata: recibiste $10.000", ""},
		{"single keyword", "Nequi: enviaste $5.000", "nequi"},
	}

	engine := newTestEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.DetectAccount(context.Background(), tt.rawText, rules)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestSortRules(t *testing.T) {
	in := []domain.AutomationRule{
		{ID: "a", Priority: 1}, {ID: "b", Priority: 5}, {ID: "c", Priority: 5}, {ID: "d", Priority: 9},
	}
	out := SortRules(in)

	ids := make([]string, len(out))
	for i, r := range out {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids)
	assert.Equal(t, "a", in[0].ID, "input order preserved")
}

func TestGenerateAccountRules(t *testing.T) {
	accounts := []domain.Account{
		{ID: "acc-1", Name: "Ahorros", Institution: "bancolombia", LastFour: domain.StringPtr("2651"), Kind: domain.KindSavings, IsActive: true},
		{ID: "acc-2", Name: "Efectivo", Institution: "cash", Kind: domain.KindCash, IsActive: true},
		{ID: "acc-3", Name: "Old", Institution: "davivienda", Kind: domain.KindChecking, IsActive: false},
		{ID: "acc-4", Name: "Nequi", Institution: "nequi", Kind: domain.KindSavings, IsActive: true},
	}

	got := GenerateAccountRules("user-1", accounts)

	require.Len(t, got, 2)
	assert.Equal(t, "Account: Ahorros", got[0].Name)
	assert.Equal(t, []string{"bancolombia", "2651"}, got[0].Conditions.RawTextContains)
	assert.Equal(t, domain.LogicAnd, got[0].ConditionLogic)
	assert.Equal(t, domain.RuleAccountDetection, got[0].RuleType)
	assert.Equal(t, AccountRulePriority, got[0].Priority)
	assert.Equal(t, "acc-1", got[0].Actions.SetAccount)
	assert.Equal(t, []string{"nequi"}, got[1].Conditions.RawTextContains)
	for _, r := range got {
		assert.NoError(t, r.Validate())
	}
}

func TestGeneratedRule_Normalize(t *testing.T) {
	inactive := false
	got := GeneratedRule{IsActive: &inactive}.Normalize("user-1", "tag rappi")

	assert.Equal(t, DefaultGeneratedName, got.Name)
	assert.False(t, got.IsActive)
	assert.Equal(t, DefaultGeneratedPriority, got.Priority)
	assert.Equal(t, domain.RuleGeneral, got.RuleType)
	assert.Equal(t, domain.LogicOr, got.ConditionLogic)
	assert.Equal(t, "tag rappi", domain.Deref(got.AIPrompt))
	assert.Equal(t, "user-1", got.UserID)
}
