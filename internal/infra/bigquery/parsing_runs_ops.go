package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const (
	parsingRunsTable  = "parsing_runs"
	maxErrorMessage   = 2000
	defaultRunsLimit  = 50
	maxRunsLimit      = 1000
	parserTypeGemini  = "GEMINI_TEXT"
	modelOutputsTable = "model_outputs"
)

func tableRef(dataset, table string) string {
	return "`" + dataset + "." + table + "`"
}

func truncateError(msg string) string {
	if len(msg) > maxErrorMessage {
		return msg[:maxErrorMessage]
	}
	return msg
}

// InsertParsingRunWithClient writes one finished parsing run using DML.
func InsertParsingRunWithClient(ctx context.Context, client *bigquery.Client, dataset string, row *ParsingRunRow) error {
	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			parsing_run_id,
			message_id,
			user_id,
			source,
			started_ts,
			finished_ts,
			parser_type,
			parser_version,
			status,
			error_message,
			tokens_input,
			tokens_output
		)
		VALUES (
			@parsing_run_id,
			@message_id,
			@user_id,
			@source,
			@started_ts,
			@finished_ts,
			@parser_type,
			@parser_version,
			@status,
			@error_message,
			@tokens_input,
			@tokens_output
		)
	`, tableRef(dataset, parsingRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "parsing_run_id", Value: row.ParsingRunID},
		{Name: "message_id", Value: row.MessageID},
		{Name: "user_id", Value: row.UserID},
		{Name: "source", Value: row.Source},
		{Name: "started_ts", Value: row.StartedTS},
		{Name: "finished_ts", Value: row.FinishedTS},
		{Name: "parser_type", Value: row.ParserType},
		{Name: "parser_version", Value: row.ParserVersion},
		{Name: "status", Value: row.Status},
		{Name: "error_message", Value: truncateError(row.ErrorMessage)},
		{Name: "tokens_input", Value: row.TokensInput},
		{Name: "tokens_output", Value: row.TokensOutput},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("InsertParsingRun: running insert query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("InsertParsingRun: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("InsertParsingRun: job error: %w", err)
	}

	return nil
}

// ListParsingRunsWithClient returns the user's most recent parsing runs,
// newest first.
func ListParsingRunsWithClient(ctx context.Context, client *bigquery.Client, dataset, userID string, limit int) ([]*ParsingRunRow, error) {
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}

	q := client.Query(fmt.Sprintf(`
		SELECT
		  parsing_run_id,
		  message_id,
		  user_id,
		  source,
		  started_ts,
		  finished_ts,
		  parser_type,
		  parser_version,
		  status,
		  error_message,
		  tokens_input,
		  tokens_output
		FROM %s
		WHERE user_id = @user_id
		ORDER BY started_ts DESC
		LIMIT @limit
	`, tableRef(dataset, parsingRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListParsingRuns: query read: %w", err)
	}

	var rows []*ParsingRunRow
	for {
		var r ParsingRunRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListParsingRuns: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
