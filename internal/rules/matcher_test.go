package rules

import (
	"testing"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amountPtr(v int64) *int64 { return &v }

func floatPtr(v float64) *float64 { return &v }

func TestMatch(t *testing.T) {
	base := Subject{
		Description: "Compra en RAPPI Restaurante",
		RawText:     "Bancolombia: Compraste $45.000 en RAPPI con tu T.Cred *7799",
		Amount:      amountPtr(45000),
		AccountID:   "acc-1",
		Source:      "telegram",
	}

	tests := []struct {
		name    string
		subject *Subject
		conds   domain.Conditions
		logic   domain.ConditionLogic
		want    bool
	}{
		{
			name:  "no conditions matches everything",
			conds: domain.Conditions{},
			logic: domain.LogicOr,
			want:  true,
		},
		{
			name:  "or keyword any match",
			conds: domain.Conditions{DescriptionContains: []string{"uber", "rappi"}},
			logic: domain.LogicOr,
			want:  true,
		},
		{
			name:  "and keyword needs all",
			conds: domain.Conditions{DescriptionContains: []string{"rappi", "uber"}},
			logic: domain.LogicAnd,
			want:  false,
		},
		{
			name:  "and keyword all present",
			conds: domain.Conditions{DescriptionContains: []string{"rappi", "restaurante"}},
			logic: domain.LogicAnd,
			want:  true,
		},
		{
			name:  "keyword match is case insensitive",
			conds: domain.Conditions{DescriptionContains: []string{"RaPpI"}},
			logic: domain.LogicOr,
			want:  true,
		},
		{
			name:  "regex is case insensitive",
			conds: domain.Conditions{DescriptionRegex: `^compra\s+en\s+rappi`},
			logic: domain.LogicOr,
			want:  true,
		},
		{
			name:  "raw text keywords",
			conds: domain.Conditions{RawTextContains: []string{"bancolombia", "7799"}},
			logic: domain.LogicAnd,
			want:  true,
		},
		{
			name:  "amount between inclusive lower bound",
			conds: domain.Conditions{AmountBetween: &[2]float64{45000, 50000}},
			logic: domain.LogicOr,
			want:  true,
		},
		{
			name:  "amount between out of range",
			conds: domain.Conditions{AmountBetween: &[2]float64{1, 100}},
			logic: domain.LogicOr,
			want:  false,
		},
		{
			name:  "amount equals",
			conds: domain.Conditions{AmountEquals: floatPtr(45000)},
			logic: domain.LogicOr,
			want:  true,
		},
		{
			name:    "missing amount never matches amount_between",
			subject: &Subject{Description: "x"},
			conds:   domain.Conditions{AmountBetween: &[2]float64{0, 1e9}},
			logic:   domain.LogicOr,
			want:    false,
		},
		{
			name:    "missing amount never matches amount_equals",
			subject: &Subject{Description: "x"},
			conds:   domain.Conditions{AmountEquals: floatPtr(0)},
			logic:   domain.LogicOr,
			want:    false,
		},
		{
			name:  "from account mismatch",
			conds: domain.Conditions{FromAccount: "acc-2"},
			logic: domain.LogicOr,
			want:  false,
		},
		{
			name:  "source membership",
			conds: domain.Conditions{Source: []string{"api", "telegram"}},
			logic: domain.LogicOr,
			want:  true,
		},
		{
			name:  "fields combine with and even under or logic",
			conds: domain.Conditions{DescriptionContains: []string{"rappi"}, Source: []string{"email"}},
			logic: domain.LogicOr,
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject := base
			if tt.subject != nil {
				subject = *tt.subject
			}
			got, err := Match(subject, tt.conds, tt.logic)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatch_InvalidRegex(t *testing.T) {
	_, err := Match(Subject{Description: "abc"}, domain.Conditions{DescriptionRegex: "(?=lookahead)"}, domain.LogicOr)
	assert.ErrorIs(t, err, domain.ErrInvalidRule)
}

func TestMatch_KeywordLogicOnRawText(t *testing.T) {
	s := RawTextSubject("pago a nequi desde ahorros")

	ok, err := Match(s, domain.Conditions{RawTextContains: []string{"nequi", "daviplata"}}, domain.LogicOr)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Match(s, domain.Conditions{RawTextContains: []string{"nequi", "daviplata"}}, domain.LogicAnd)
	require.NoError(t, err)
	assert.False(t, ok)
}
