package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/logger"
	"github.com/dvloznov/expense-assistant/internal/rules"
)

// Temperatures used for each kind of request.
const (
	ParseTemperature    float32 = 0
	GenerateTemperature float32 = 0.2
)

// ParseResult is the decoded model answer plus the raw text for auditing.
type ParseResult struct {
	Parsed domain.ParsedExpense
	Raw    string
	Usage  Usage
}

// ParseExpense extracts a ParsedExpense from a message text.
func (c *Client) ParseExpense(ctx context.Context, text string, pc PromptContext) (ParseResult, error) {
	log := logger.FromContext(ctx)

	if strings.TrimSpace(text) == "" {
		return ParseResult{}, fmt.Errorf("ParseExpense: empty message text")
	}

	raw, usage, err := c.generate(ctx, BuildParsePrompt(pc), text, ParseTemperature)
	if err != nil {
		return ParseResult{}, fmt.Errorf("ParseExpense: %w", err)
	}

	log.Debug().
		Str("model", c.model).
		Int64("input_tokens", usage.InputTokens).
		Int64("output_tokens", usage.OutputTokens).
		Msg("Received parse response")

	parsed, err := decodeParsedExpense(raw)
	if err != nil {
		return ParseResult{Raw: raw, Usage: usage}, fmt.Errorf("ParseExpense: %w", err)
	}
	return ParseResult{Parsed: parsed, Raw: raw, Usage: usage}, nil
}

// GenerateRules asks the model for automation rules matching prompt. The
// returned rules are raw; callers normalise them before saving.
func (c *Client) GenerateRules(ctx context.Context, prompt string, gc GenerateContext) ([]rules.GeneratedRule, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("GenerateRules: empty prompt")
	}

	raw, _, err := c.generate(ctx, BuildGeneratePrompt(gc), "USER REQUEST:\n"+prompt, GenerateTemperature)
	if err != nil {
		return nil, fmt.Errorf("GenerateRules: %w", err)
	}

	out, err := decodeGeneratedRules(raw)
	if err != nil {
		return nil, fmt.Errorf("GenerateRules: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Int("rule_count", len(out)).Msg("Generated automation rules")
	return out, nil
}

// decodeGeneratedRules accepts a JSON array or a single object.
func decodeGeneratedRules(raw string) ([]rules.GeneratedRule, error) {
	cleaned := cleanModelJSON(raw)

	var out []rules.GeneratedRule
	if strings.HasPrefix(cleaned, "{") {
		var one rules.GeneratedRule
		if err := json.Unmarshal([]byte(cleaned), &one); err != nil {
			return nil, fmt.Errorf("decodeGeneratedRules: unmarshal JSON: %w", err)
		}
		return []rules.GeneratedRule{one}, nil
	}
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, fmt.Errorf("decodeGeneratedRules: unmarshal JSON: %w", err)
	}
	return out, nil
}
