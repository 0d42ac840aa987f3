package bigquery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAuditRows_Success(t *testing.T) {
	started := time.Date(2025, 2, 5, 14, 0, 0, 0, time.UTC)
	parsed := &domain.ParsedExpense{IsTransaction: true, Amount: 20000, Description: "Rappi"}

	run, out := BuildAuditRows(ParseRecord{
		MessageID:       "msg-1",
		UserID:          "user-1",
		Source:          "telegram",
		Model:           "gemini-2.5-flash",
		StartedAt:       started,
		FinishedAt:      started.Add(2 * time.Second),
		InputTokens:     120,
		OutputTokens:    30,
		RawOutput:       `{"amount":20000}`,
		Parsed:          parsed,
		TransactionDate: "2025-02-05",
	})

	require.NotNil(t, run)
	assert.NotEmpty(t, run.ParsingRunID)
	assert.Equal(t, StatusSuccess, run.Status)
	assert.Equal(t, "gemini-2.5-flash", run.ParserVersion)
	assert.True(t, run.FinishedTS.Valid)
	assert.Equal(t, int64(120), run.TokensInput.Int64)
	assert.True(t, run.TokensOutput.Valid)

	require.NotNil(t, out)
	assert.Equal(t, run.ParsingRunID, out.ParsingRunID)
	assert.Equal(t, "msg-1", out.MessageID)
	assert.True(t, out.ParsedJSON.Valid)
	assert.Contains(t, out.ParsedJSON.JSONVal, `"description":"Rappi"`)
	assert.Equal(t, 20000.0, out.Amount.Float64)
	assert.True(t, out.TransactionDate.Valid)
	assert.Equal(t, civil.Date{Year: 2025, Month: time.February, Day: 5}, out.TransactionDate.Date)
}

func TestBuildAuditRows_FailureWithoutOutput(t *testing.T) {
	run, out := BuildAuditRows(ParseRecord{
		MessageID: "msg-1",
		Err:       errors.New(strings.Repeat("x", 10)),
	})

	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, strings.Repeat("x", 10), run.ErrorMessage)
	assert.False(t, run.TokensInput.Valid)
	assert.False(t, run.FinishedTS.Valid)
	assert.Nil(t, out)
}

func TestBuildAuditRows_SkippedMessage(t *testing.T) {
	run, out := BuildAuditRows(ParseRecord{
		RawOutput:       `{"is_transaction":false}`,
		Parsed:          &domain.ParsedExpense{IsTransaction: false},
		TransactionDate: "not a date",
	})

	assert.Equal(t, StatusSkipped, run.Status)
	require.NotNil(t, out)
	assert.False(t, out.Amount.Valid)
	assert.False(t, out.TransactionDate.Valid)
}

func TestTruncateError(t *testing.T) {
	assert.Len(t, truncateError(strings.Repeat("e", 5000)), maxErrorMessage)
	assert.Equal(t, "short", truncateError("short"))
}

func TestTableRef(t *testing.T) {
	assert.Equal(t, "`expense_assistant.parsing_runs`", tableRef(DefaultDataset, parsingRunsTable))
}

func TestNopAuditor(t *testing.T) {
	assert.NoError(t, NopAuditor{}.RecordParse(context.Background(), ParseRecord{}))
}
