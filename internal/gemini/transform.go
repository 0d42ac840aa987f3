package gemini

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/domain"
)

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object or array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	// Remove trailing ``` if present.
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	open := strings.IndexAny(s, "{[")
	if open == -1 {
		return s
	}
	closer := "}"
	if s[open] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(s, closer); end > open {
		s = strings.TrimSpace(s[open : end+1])
	}
	return s
}

// decodeParsedExpense maps the model's JSON object onto a ParsedExpense,
// tolerating numbers sent as strings.
func decodeParsedExpense(raw string) (domain.ParsedExpense, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &obj); err != nil {
		return domain.ParsedExpense{}, fmt.Errorf("decodeParsedExpense: unmarshal JSON: %w", err)
	}

	isTx, err := getBoolField(obj, "is_transaction", true)
	if err != nil {
		return domain.ParsedExpense{}, err
	}
	skip, err := getOptionalStringField(obj, "skip_reason")
	if err != nil {
		return domain.ParsedExpense{}, err
	}

	p := domain.ParsedExpense{IsTransaction: isTx, SkipReason: skip}
	if !isTx {
		return p, nil
	}

	if p.Amount, err = getFloat64Field(obj, "amount", true); err != nil {
		return domain.ParsedExpense{}, err
	}
	if p.Description, err = getStringField(obj, "description", false); err != nil {
		return domain.ParsedExpense{}, err
	}
	if p.Category, err = getStringField(obj, "category", false); err != nil {
		return domain.ParsedExpense{}, err
	}
	if p.Bank, err = getStringField(obj, "bank", false); err != nil {
		return domain.ParsedExpense{}, err
	}
	if p.PaymentType, err = getStringField(obj, "payment_type", false); err != nil {
		return domain.ParsedExpense{}, err
	}
	confidence, err := getFloat64Field(obj, "confidence", false)
	if err != nil {
		return domain.ParsedExpense{}, err
	}
	p.Confidence = clampConfidence(confidence)

	for key, dst := range map[string]**string{
		"original_date": &p.OriginalDate,
		"original_time": &p.OriginalTime,
		"last_four":     &p.LastFour,
		"account_type":  &p.AccountType,
	} {
		v, err := getOptionalStringField(obj, key)
		if err != nil {
			return domain.ParsedExpense{}, err
		}
		*dst = v
	}
	return p, nil
}

func clampConfidence(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return int(v)
}

// getStringField extracts a string field. Missing or null values are an
// error only when required.
func getStringField(obj map[string]interface{}, key string, required bool) (string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, want string", key, v)
	}
	return s, nil
}

// getOptionalStringField returns nil for missing, null or empty values.
func getOptionalStringField(obj map[string]interface{}, key string) (*string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		return &t, nil
	case float64:
		s := strconv.FormatFloat(t, 'f', -1, 64)
		return &s, nil
	}
	return nil, fmt.Errorf("field %q is %T, want string or null", key, v)
}

// getFloat64Field accepts JSON numbers and numeric strings.
func getFloat64Field(obj map[string]interface{}, key string, required bool) (float64, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		if required {
			return 0, fmt.Errorf("missing required field %q", key)
		}
		return 0, nil
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", key, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("field %q is %T, want number", key, v)
}

func getBoolField(obj map[string]interface{}, key string, fallback bool) (bool, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return fallback, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("field %q is %T, want bool", key, v)
	}
	return b, nil
}
