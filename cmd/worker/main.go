package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/expense-assistant/internal/app"
	"github.com/dvloznov/expense-assistant/internal/config"
	"github.com/dvloznov/expense-assistant/internal/gcs"
	"github.com/dvloznov/expense-assistant/internal/jobs"
	"github.com/dvloznov/expense-assistant/internal/jobs/inmemory"
	"github.com/dvloznov/expense-assistant/internal/logger"
	"github.com/rs/zerolog"
)

// The worker replays archived raw messages through the pipeline. It reads
// gs:// URIs written by the API's message archive from the arguments, or
// one per line from stdin, and exits once every job has finished.
func main() {
	cfgFile := flag.String("config", "", "Optional config file (env vars take precedence)")
	source := flag.String("source", "replay", "Source recorded on replayed messages")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log := logger.NewWithConfig(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	uris := flag.Args()
	if len(uris) == 0 {
		if uris, err = readURIs(os.Stdin); err != nil {
			log.Fatal().Err(err).Msg("Failed to read URIs from stdin")
		}
	}
	if len(uris) == 0 {
		log.Fatal().Msg("No archived message URIs given")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer a.Close()
	if a.Storage == nil {
		log.Fatal().Msg("GCS_BUCKET is required to fetch archived messages")
	}

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(len(uris), cfg.WorkerCount, jobStore)
	if err := jobQueue.Start(ctx, jobs.NewProcessMessageHandler(a.Processor, a.Storage)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	published := 0
	for _, uri := range uris {
		job, err := replayJob(uri, *source)
		if err != nil {
			log.Warn().Err(err).Str("gcs_uri", uri).Msg("Skipping URI")
			continue
		}
		if err := jobQueue.PublishProcessMessage(ctx, job); err != nil {
			log.Error().Err(err).Str("gcs_uri", uri).Msg("Failed to enqueue message")
			continue
		}
		published++
	}
	log.Info().Int("jobs", published).Msg("Replaying archived messages")

	summary := waitForJobs(ctx, jobStore, published, log)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().
		Int("completed", summary[jobs.JobStatusCompleted]).
		Int("failed", summary[jobs.JobStatusFailed]).
		Msg("Worker exited")
	if summary[jobs.JobStatusFailed] > 0 {
		os.Exit(1)
	}
}

// replayJob builds the job for one archived message. The owner and message
// id come from the archive path, so the audit trail lines up with the
// original request.
func replayJob(uri, source string) (*jobs.ProcessMessageJob, error) {
	userID, messageID, err := gcs.ParseArchiveURI(uri)
	if err != nil {
		return nil, err
	}
	return &jobs.ProcessMessageJob{
		MessageID: messageID,
		UserID:    userID,
		Source:    source,
		GCSURI:    uri,
	}, nil
}

func readURIs(r io.Reader) ([]string, error) {
	var uris []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" && !strings.HasPrefix(line, "#") {
			uris = append(uris, line)
		}
	}
	return uris, scanner.Err()
}

// waitForJobs polls the store until want jobs reached a final status or ctx
// is done, and returns the count per status.
func waitForJobs(ctx context.Context, store jobs.JobStore, want int, log zerolog.Logger) map[jobs.JobStatus]int {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		summary, finished := countFinal(ctx, store)
		if finished >= want {
			return summary
		}
		select {
		case <-ctx.Done():
			log.Warn().Int("finished", finished).Int("total", want).Msg("Interrupted before all jobs finished")
			return summary
		case <-ticker.C:
		}
	}
}

func countFinal(ctx context.Context, store jobs.JobStore) (map[jobs.JobStatus]int, int) {
	summary := make(map[jobs.JobStatus]int)
	all, err := store.ListJobs(ctx, jobs.JobFilter{})
	if err != nil {
		return summary, 0
	}
	finished := 0
	for _, j := range all {
		summary[j.Status]++
		if j.Status == jobs.JobStatusCompleted || j.Status == jobs.JobStatusFailed {
			finished++
		}
	}
	return summary, finished
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: worker [flags] [gs://bucket/messages/<user>/<yyyy>/<mm>/<dd>/<id>.txt ...]\n")
		flag.PrintDefaults()
	}
}
