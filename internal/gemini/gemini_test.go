package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	text   string
	err    error
	model  string
	prompt string
	input  string
	temp   float32
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	if len(contents) > 0 && len(contents[0].Parts) == 2 {
		f.prompt = contents[0].Parts[0].Text
		f.input = contents[0].Parts[1].Text
	}
	if config != nil && config.Temperature != nil {
		f.temp = *config.Temperature
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: f.text}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     120,
			CandidatesTokenCount: 30,
		},
	}, nil
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n[1,2]\n```", `[1,2]`},
		{"prose around object", `Here you go: {"a":{"b":2}} hope it helps`, `{"a":{"b":2}}`},
		{"array first", `[{"a":1}] trailing`, `[{"a":1}]`},
		{"no json", "nothing here", "nothing here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanModelJSON(tt.raw))
		})
	}
}

func TestDecodeParsedExpense(t *testing.T) {
	raw := "```json\n" + `{
		"is_transaction": true,
		"skip_reason": null,
		"amount": "20000",
		"description": "Rappi",
		"category": "restaurant",
		"bank": "bancolombia",
		"payment_type": "debit",
		"confidence": 140,
		"original_date": "05/02/2025",
		"original_time": "",
		"last_four": "2651",
		"account_type": null
	}` + "\n```"

	p, err := decodeParsedExpense(raw)
	require.NoError(t, err)

	assert.True(t, p.IsTransaction)
	assert.Nil(t, p.SkipReason)
	assert.Equal(t, 20000.0, p.Amount)
	assert.Equal(t, "Rappi", p.Description)
	assert.Equal(t, "restaurant", p.Category)
	assert.Equal(t, 100, p.Confidence)
	assert.Equal(t, "05/02/2025", domain.Deref(p.OriginalDate))
	assert.Nil(t, p.OriginalTime)
	assert.Equal(t, "2651", domain.Deref(p.LastFour))
	assert.Nil(t, p.AccountType)
}

func TestDecodeParsedExpense_NotATransaction(t *testing.T) {
	p, err := decodeParsedExpense(`{"is_transaction": false, "skip_reason": "otp_code"}`)
	require.NoError(t, err)

	assert.False(t, p.IsTransaction)
	assert.Equal(t, "otp_code", domain.Deref(p.SkipReason))
}

func TestDecodeParsedExpense_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "sorry, I cannot help"},
		{"missing amount", `{"is_transaction": true, "description": "x"}`},
		{"bad amount", `{"is_transaction": true, "amount": "lots"}`},
		{"wrong type", `{"is_transaction": "yes"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeParsedExpense(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestBuildParsePrompt(t *testing.T) {
	hint := &domain.Account{Name: "Ahorros", Institution: "bancolombia", Kind: domain.KindSavings, LastFour: domain.StringPtr("2651")}

	got := BuildParsePrompt(PromptContext{
		CurrentDate:     "2025-02-05",
		CurrentTime:     "14:30",
		Categories:      []domain.Category{{Slug: "restaurant", Name: "Restaurants", Type: domain.TypeExpense}},
		AccountHint:     hint,
		TransferSection: "KNOWN TRANSFERS:\n- *3104633357 → Nequi (internal transfer)",
		RulesSection:    "USER AUTOMATION RULES (apply when relevant):\n- Salary: if x then y",
		PromptTexts:     []string{"Uber is always taxi", "  "},
	})

	assert.Contains(t, got, "CURRENT_DATE: 2025-02-05")
	assert.Contains(t, got, "CURRENT_TIME: 14:30")
	assert.Contains(t, got, "America/Bogota")
	assert.Contains(t, got, "- restaurant: Restaurants")
	assert.Contains(t, got, `"Ahorros"`)
	assert.Contains(t, got, "*2651")
	assert.Contains(t, got, "KNOWN TRANSFERS")
	assert.Contains(t, got, "USER AUTOMATION RULES")
	assert.Contains(t, got, "- Uber is always taxi")
	assert.NotContains(t, got, "- \n")
}

func TestBuildParsePrompt_Minimal(t *testing.T) {
	got := BuildParsePrompt(PromptContext{})

	assert.Contains(t, got, "CURRENT_DATE: unknown")
	assert.Contains(t, got, "- missing")
	assert.NotContains(t, got, "ACCOUNT HINT")
	assert.NotContains(t, got, "ADDITIONAL USER INSTRUCTIONS")
}

func TestParseExpense(t *testing.T) {
	gen := &fakeGenerator{text: `{"is_transaction": true, "amount": 50000, "description": "Almuerzo", "category": "restaurant"}`}
	c := NewClientWithGenerator(gen, "")

	res, err := c.ParseExpense(context.Background(), "50mil almuerzo", PromptContext{CurrentDate: "2025-02-05"})
	require.NoError(t, err)

	assert.Equal(t, DefaultModelName, gen.model)
	assert.Equal(t, "50mil almuerzo", gen.input)
	assert.Contains(t, gen.prompt, "CURRENT_DATE: 2025-02-05")
	assert.Equal(t, ParseTemperature, gen.temp)
	assert.Equal(t, 50000.0, res.Parsed.Amount)
	assert.Equal(t, int64(120), res.Usage.InputTokens)
	assert.Equal(t, int64(30), res.Usage.OutputTokens)
	assert.NotEmpty(t, res.Raw)
}

func TestParseExpense_Errors(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		c := NewClientWithGenerator(&fakeGenerator{}, "m")
		_, err := c.ParseExpense(context.Background(), "  ", PromptContext{})
		assert.Error(t, err)
	})

	t.Run("model error", func(t *testing.T) {
		boom := errors.New("quota exceeded")
		c := NewClientWithGenerator(&fakeGenerator{err: boom}, "m")
		_, err := c.ParseExpense(context.Background(), "x", PromptContext{})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("empty response", func(t *testing.T) {
		c := NewClientWithGenerator(&fakeGenerator{text: ""}, "m")
		_, err := c.ParseExpense(context.Background(), "x", PromptContext{})
		assert.Error(t, err)
	})

	t.Run("undecodable keeps raw", func(t *testing.T) {
		c := NewClientWithGenerator(&fakeGenerator{text: "no idea"}, "m")
		res, err := c.ParseExpense(context.Background(), "x", PromptContext{})
		assert.Error(t, err)
		assert.Equal(t, "no idea", res.Raw)
	})
}

func TestGenerateRules(t *testing.T) {
	gen := &fakeGenerator{text: "```json\n" + `[
		{"name": "Rappi", "rule_type": "general", "conditions": {"description_contains": ["rappi"]}, "actions": {"set_category": "cat-1"}},
		{"priority": 90, "conditions": {"raw_text_contains": ["nequi"]}, "actions": {"set_account": "acc-1"}}
	]` + "\n```"}
	c := NewClientWithGenerator(gen, "m")

	got, err := c.GenerateRules(context.Background(), "categorize rappi", GenerateContext{
		Accounts:   []domain.Account{{ID: "acc-1", Name: "Nequi", Institution: "nequi", Kind: domain.KindSavings}},
		Categories: []domain.Category{{ID: "cat-1", Slug: "restaurant", Name: "Restaurants"}},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, GenerateTemperature, gen.temp)
	assert.Contains(t, gen.prompt, "id=acc-1")
	assert.Contains(t, gen.prompt, "id=cat-1")
	assert.Contains(t, gen.input, "categorize rappi")

	assert.Equal(t, "Rappi", got[0].Name)
	assert.Equal(t, "cat-1", got[0].Actions.SetCategory.Value)

	normalized := got[1].Normalize("user-1", "categorize rappi")
	assert.Equal(t, "Unnamed Rule", normalized.Name)
	assert.Equal(t, 90, normalized.Priority)
	assert.Equal(t, domain.RuleGeneral, normalized.RuleType)
	assert.Equal(t, domain.LogicOr, normalized.ConditionLogic)
}

func TestGenerateRules_SingleObject(t *testing.T) {
	c := NewClientWithGenerator(&fakeGenerator{text: `{"name": "One"}`}, "m")

	got, err := c.GenerateRules(context.Background(), "one rule", GenerateContext{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "One", got[0].Name)
}

func TestGenerateRules_EmptyPrompt(t *testing.T) {
	c := NewClientWithGenerator(&fakeGenerator{}, "m")
	_, err := c.GenerateRules(context.Background(), "", GenerateContext{})
	assert.Error(t, err)
}
