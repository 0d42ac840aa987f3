package bigquery

import "cloud.google.com/go/bigquery"

type ModelOutputRow struct {
	OutputID     string `bigquery:"output_id"`      // REQUIRED
	ParsingRunID string `bigquery:"parsing_run_id"` // REQUIRED
	MessageID    string `bigquery:"message_id"`     // REQUIRED

	ModelName string `bigquery:"model_name"` // REQUIRED

	RawText    bigquery.NullString `bigquery:"raw_text"`    // NULLABLE
	ParsedJSON bigquery.NullJSON   `bigquery:"parsed_json"` // NULLABLE

	TransactionDate bigquery.NullDate    `bigquery:"transaction_date"` // NULLABLE
	Amount          bigquery.NullFloat64 `bigquery:"amount"`           // NULLABLE

	CreatedTS bigquery.NullTimestamp `bigquery:"created_ts"` // REQUIRED
}
