package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/gcs"
	"github.com/dvloznov/expense-assistant/internal/logger"
	"github.com/dvloznov/expense-assistant/internal/pipeline"
)

// MessageProcessor runs a message through the ingestion pipeline.
// *pipeline.Processor satisfies it.
type MessageProcessor interface {
	Process(ctx context.Context, msg pipeline.Message) (*pipeline.Result, error)
}

// Fetcher reads archived message bodies.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// NewProcessMessageHandler returns the JobHandler for ProcessMessageJob.
// fetcher may be nil when only inline text is published.
func NewProcessMessageHandler(proc MessageProcessor, fetcher Fetcher) JobHandler {
	return func(ctx context.Context, job Job) error {
		j, ok := job.(*ProcessMessageJob)
		if !ok {
			return Permanent(fmt.Errorf("unsupported job type %s", job.GetType()))
		}

		text, err := messageText(ctx, j, fetcher)
		if err != nil {
			return err
		}

		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With().Str("job_id", j.JobID).Logger())
		res, err := proc.Process(ctx, pipeline.Message{
			ID:     j.MessageID,
			UserID: j.UserID,
			Text:   text,
			Source: j.Source,
		})
		if err != nil {
			if retryable(err) {
				return err
			}
			return Permanent(err)
		}

		j.Result = &JobResult{Status: res.Status, Reason: res.Reason}
		for _, tx := range res.Transactions {
			j.Result.TransactionIDs = append(j.Result.TransactionIDs, tx.ID)
		}
		return nil
	}
}

func messageText(ctx context.Context, j *ProcessMessageJob, fetcher Fetcher) (string, error) {
	if j.GCSURI == "" {
		return j.Text, nil
	}
	if !gcs.IsURI(j.GCSURI) {
		return "", Permanent(fmt.Errorf("invalid message uri %q", j.GCSURI))
	}
	if fetcher == nil {
		return "", Permanent(fmt.Errorf("no storage configured for %s", j.GCSURI))
	}
	body, err := fetcher.Fetch(ctx, j.GCSURI)
	if err != nil {
		return "", fmt.Errorf("fetch message: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}

// retryable reports whether a pipeline failure may succeed on a later
// attempt. Partially persisted messages are never retried.
func retryable(err error) bool {
	f, ok := pipeline.AsFailure(err)
	if !ok {
		return true
	}
	if f.Inconsistent {
		return false
	}
	switch f.Code {
	case pipeline.CodeStoreError, pipeline.CodeModelError:
		return true
	}
	return false
}
