package main

import (
	"context"
	"strings"
	"testing"

	"github.com/dvloznov/expense-assistant/internal/jobs"
	"github.com/dvloznov/expense-assistant/internal/jobs/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayJob(t *testing.T) {
	job, err := replayJob("gs://inbox/messages/user-1/2025/02/06/msg-9.txt", "replay")
	require.NoError(t, err)
	assert.Equal(t, "user-1", job.UserID)
	assert.Equal(t, "msg-9", job.MessageID)
	assert.Equal(t, "replay", job.Source)
	assert.Equal(t, "gs://inbox/messages/user-1/2025/02/06/msg-9.txt", job.GCSURI)
	assert.Empty(t, job.Text)

	_, err = replayJob("gs://inbox/uploads/a.pdf", "replay")
	assert.Error(t, err)
}

func TestReadURIs(t *testing.T) {
	in := "gs://inbox/messages/u/2025/01/01/a.txt\n\n  # comment\n gs://inbox/messages/u/2025/01/01/b.txt \n"
	got, err := readURIs(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"gs://inbox/messages/u/2025/01/01/a.txt",
		"gs://inbox/messages/u/2025/01/01/b.txt",
	}, got)
}

func TestCountFinal(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	for id, status := range map[string]jobs.JobStatus{
		"a": jobs.JobStatusCompleted,
		"b": jobs.JobStatusFailed,
		"c": jobs.JobStatusRetrying,
	} {
		require.NoError(t, store.SaveJob(ctx, &jobs.ProcessMessageJob{JobID: id, Status: status}))
	}

	summary, finished := countFinal(ctx, store)
	assert.Equal(t, 2, finished)
	assert.Equal(t, 1, summary[jobs.JobStatusRetrying])
}
