// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/mailgraph"
	"github.com/poiesic/mailgraph/config"
	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/graph"
	"github.com/poiesic/mailgraph/metrics"
	"github.com/poiesic/mailgraph/storage"
)

func main() {
	app := &cli.App{
		Name:   "mailgraph",
		Usage:  "Email knowledge-graph ingestion pipeline",
		Before: setupLogger,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "Run a backfill sync for a tenant and wait for it to finish",
				Action: syncCommand,
				Flags: append(pipelineFlags(),
					&cli.StringFlag{
						Name:     "tenant",
						Aliases:  []string{"t"},
						Usage:    "External tenant id (the connected user)",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "days",
						Usage: "How many days of mailbox history to sync",
						Value: 30,
					},
					&cli.StringFlag{
						Name:  "account",
						Usage: "Provider account id to sync from",
					},
					&cli.BoolFlag{
						Name:  "metrics",
						Usage: "Serve Prometheus metrics on the configured address while syncing",
					},
				),
			},
			{
				Name:   "status",
				Usage:  "Show a sync job",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "job",
						Aliases:  []string{"j"},
						Usage:    "Job id",
						Required: true,
					},
				},
			},
			{
				Name:   "jobs",
				Usage:  "List a tenant's sync jobs, most recent first",
				Action: jobsCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "tenant",
						Aliases:  []string{"t"},
						Usage:    "External tenant id",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum jobs to list",
						Value: 20,
					},
				},
			},
			{
				Name:   "cancel",
				Usage:  "Cancel an active sync job",
				Action: cancelCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "job",
						Aliases:  []string{"j"},
						Usage:    "Job id",
						Required: true,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Run a hybrid fact and document search for a tenant",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: append(pipelineFlags(),
					&cli.StringFlag{
						Name:     "tenant",
						Aliases:  []string{"t"},
						Usage:    "External tenant id",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum hits per result leg",
						Value: 10,
					},
				),
			},
			{
				Name:      "webhook",
				Usage:     "Replay a webhook payload file through the intake pipeline",
				ArgsUsage: "<payload.json>",
				Action:    webhookCommand,
				Flags:     pipelineFlags(),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// pipelineFlags are shared by commands that run the full pipeline.
func pipelineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "graph-journal",
			Usage: "Append graph writes to this JSON-lines file (discarded when unset)",
		},
	}
}

// buildService wires the pipeline from the environment configuration.
// The graph driver is a write journal; deployments embedding mailgraph
// as a library supply a real driver instead.
func buildService(c *cli.Context) (*mailgraph.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	var out io.Writer = io.Discard
	if path := c.String("graph-journal"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open graph journal: %w", err)
		}
		out = f
	} else {
		slog.Warn("no graph journal configured, graph writes will be discarded")
	}

	svc, err := mailgraph.NewService(cfg, graph.NewJournalDriver(out))
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func openStore() (storage.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	store, err := mailgraph.OpenStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func syncCommand(c *cli.Context) error {
	ctx := c.Context

	svc, err := buildService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	if c.Bool("metrics") {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		go serveMetrics(cfg.Addr)
	}

	job, err := svc.Orchestrator().Enqueue(ctx, c.String("tenant"), c.Int("days"), c.String("account"))
	if err != nil {
		return fmt.Errorf("enqueue sync: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Job %s queued for tenant %s (%d days)\n", job.Id, job.TenantId, job.Days)

	// Poll until the job reaches a terminal status
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		current, err := svc.Orchestrator().Status(ctx, job.Id)
		if err != nil {
			return fmt.Errorf("poll job: %w", err)
		}
		fmt.Fprintf(os.Stderr, "  %s %s %d%% (%d emails)\n",
			current.Status, current.Progress.Phase, current.Progress.Percent, current.EmailsProcessed)

		if current.Status.Terminal() {
			printJob(current)
			if current.Status != core.JobCompleted {
				return cli.Exit(fmt.Sprintf("job %s %s", current.Id, current.Status), 1)
			}
			return nil
		}
	}
}

func statusCommand(c *cli.Context) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	job, err := store.Jobs().GetJob(c.Context, c.String("job"))
	if err != nil {
		return err
	}
	printJob(job)
	return nil
}

func jobsCommand(c *cli.Context) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	jobs, err := store.Jobs().ListJobs(c.Context, c.String("tenant"), c.Int("limit"))
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("no jobs")
		return nil
	}
	for _, job := range jobs {
		fmt.Printf("%s  %-10s  %3d%%  %4d emails  %s\n",
			job.Id, job.Status, job.Progress.Percent, job.EmailsProcessed,
			job.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

// cancelCommand flips a stored job to cancelled. A worker holding the job
// in another process observes the terminal status on its next write.
func cancelCommand(c *cli.Context) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	job, err := store.Jobs().GetJob(c.Context, c.String("job"))
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s is already %s", job.Id, job.Status)
	}

	job.Status = core.JobCancelled
	job.ErrorMessage = "cancelled by user"
	job.CompletedAt = time.Now().UTC()
	if err := store.Jobs().UpdateJob(c.Context, job); err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) {
			return fmt.Errorf("job %s already finished", job.Id)
		}
		return err
	}
	fmt.Fprintf(os.Stderr, "Job %s cancelled\n", job.Id)
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("a query argument is required")
	}

	svc, err := buildService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.Searcher().Search(c.Context, query, c.String("tenant"), c.Int("limit"))
	if err != nil {
		return err
	}

	if len(result.Facts) == 0 && len(result.Documents) == 0 {
		fmt.Println("no results")
		return nil
	}
	for _, fact := range result.Facts {
		fmt.Printf("fact  %s\n", fact.Fact)
	}
	for _, match := range result.Documents {
		fmt.Printf("email %.2f  %s  %s\n",
			match.Score, match.Document.MessageId, match.Document.Subject)
	}
	return nil
}

func webhookCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("a payload file argument is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	svc, err := buildService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.Webhook().Process(c.Context, raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s  message %s  tenant %s\n", result.Status, result.MessageId, result.TenantId)

	// Wait for the background processing the replay scheduled
	svc.Webhook().Wait()
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server stopped", "err", err)
	}
}

func printJob(job *core.SyncJob) {
	fmt.Printf("job:     %s\n", job.Id)
	fmt.Printf("tenant:  %s\n", job.TenantId)
	fmt.Printf("status:  %s\n", job.Status)
	fmt.Printf("phase:   %s (%d%%)\n", job.Progress.Phase, job.Progress.Percent)
	fmt.Printf("emails:  %d\n", job.EmailsProcessed)
	if !job.StartedAt.IsZero() {
		fmt.Printf("started: %s\n", job.StartedAt.Format(time.RFC3339))
	}
	if !job.CompletedAt.IsZero() {
		fmt.Printf("ended:   %s\n", job.CompletedAt.Format(time.RFC3339))
	}
	if job.ErrorMessage != "" {
		fmt.Printf("error:   %s\n", job.ErrorMessage)
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
