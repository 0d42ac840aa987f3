package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/google/uuid"
)

// DefaultDataset is used when no dataset is configured.
const DefaultDataset = "expense_assistant"

// ParseRecord describes one model call made for an inbound message.
type ParseRecord struct {
	MessageID string
	UserID    string
	Source    string
	Model     string

	StartedAt  time.Time
	FinishedAt time.Time

	// Err is set when the call or its decoding failed.
	Err error

	InputTokens  int64
	OutputTokens int64

	RawOutput string
	Parsed    *domain.ParsedExpense
	// TransactionDate is the resolved YYYY-MM-DD date, when known.
	TransactionDate string
}

// BuildAuditRows maps a ParseRecord onto its parsing run and model output
// rows. The output row is nil when the model returned nothing.
func BuildAuditRows(rec ParseRecord) (*ParsingRunRow, *ModelOutputRow) {
	run := &ParsingRunRow{
		ParsingRunID:  uuid.NewString(),
		MessageID:     rec.MessageID,
		UserID:        rec.UserID,
		Source:        rec.Source,
		StartedTS:     rec.StartedAt,
		FinishedTS:    bigquery.NullTimestamp{Timestamp: rec.FinishedAt, Valid: !rec.FinishedAt.IsZero()},
		ParserType:    parserTypeGemini,
		ParserVersion: rec.Model,
		Status:        StatusSuccess,
		TokensInput:   bigquery.NullInt64{Int64: rec.InputTokens, Valid: rec.InputTokens > 0},
		TokensOutput:  bigquery.NullInt64{Int64: rec.OutputTokens, Valid: rec.OutputTokens > 0},
	}
	switch {
	case rec.Err != nil:
		run.Status = StatusFailed
		run.ErrorMessage = rec.Err.Error()
	case rec.Parsed != nil && !rec.Parsed.IsTransaction:
		run.Status = StatusSkipped
	}

	if rec.RawOutput == "" {
		return run, nil
	}

	out := &ModelOutputRow{
		OutputID:     uuid.NewString(),
		ParsingRunID: run.ParsingRunID,
		MessageID:    rec.MessageID,
		ModelName:    rec.Model,
		RawText:      bigquery.NullString{StringVal: rec.RawOutput, Valid: true},
		CreatedTS:    bigquery.NullTimestamp{Timestamp: rec.FinishedAt, Valid: !rec.FinishedAt.IsZero()},
	}
	if rec.Parsed != nil {
		out.ParsedJSON = bigquery.NullJSON{JSONVal: string(rec.Parsed.JSON()), Valid: true}
		if rec.Parsed.IsTransaction {
			out.Amount = bigquery.NullFloat64{Float64: rec.Parsed.Amount, Valid: true}
		}
	}
	if d, err := civil.ParseDate(rec.TransactionDate); err == nil {
		out.TransactionDate = bigquery.NullDate{Date: d, Valid: true}
	}
	return run, out
}

// BigQueryAuditRepository records parsing runs and model outputs in BigQuery.
type BigQueryAuditRepository struct {
	client  *bigquery.Client
	dataset string
}

// NewBigQueryAuditRepository creates a repository with a shared BigQuery
// client for projectID.
func NewBigQueryAuditRepository(ctx context.Context, projectID, dataset string) (*BigQueryAuditRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryAuditRepository: creating client: %w", err)
	}
	if dataset == "" {
		dataset = DefaultDataset
	}
	return &BigQueryAuditRepository{client: client, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryAuditRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// RecordParse writes the parsing run and, when present, the model output.
func (r *BigQueryAuditRepository) RecordParse(ctx context.Context, rec ParseRecord) error {
	run, out := BuildAuditRows(rec)
	if err := InsertParsingRunWithClient(ctx, r.client, r.dataset, run); err != nil {
		return fmt.Errorf("RecordParse: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := InsertModelOutputWithClient(ctx, r.client, r.dataset, out); err != nil {
		return fmt.Errorf("RecordParse: %w", err)
	}
	return nil
}

// ListParsingRuns returns the user's most recent parsing runs.
func (r *BigQueryAuditRepository) ListParsingRuns(ctx context.Context, userID string, limit int) ([]*ParsingRunRow, error) {
	return ListParsingRunsWithClient(ctx, r.client, r.dataset, userID, limit)
}

// NopAuditor discards audit records. It is used when BigQuery is not
// configured.
type NopAuditor struct{}

func (NopAuditor) RecordParse(context.Context, ParseRecord) error { return nil }
