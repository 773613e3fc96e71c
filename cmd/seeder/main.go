// seeder fills a local store with a synthetic mailbox and runs it
// through the full sync pipeline using in-process doubles: the mock mail
// provider serves generated emails, the mock extraction engine fabricates
// entities, and graph writes land in a JSON-lines journal. Useful for
// exercising storage, admission, and search locally without credentials.
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"time"

	"github.com/poiesic/mailgraph"
	"github.com/poiesic/mailgraph/config"
	"github.com/poiesic/mailgraph/core"
	extractmock "github.com/poiesic/mailgraph/extract/mock"
	"github.com/poiesic/mailgraph/graph"
	mailmock "github.com/poiesic/mailgraph/mail/mock"
)

var subjects = []string{
	"Q3 renewal pricing for Acme Corporation",
	"Intro: Northwind procurement team",
	"Follow-up on the Globex pilot",
	"Contract redlines from Initech legal",
	"Demo scheduled with Umbrella operations",
	"Budget approval for the Stark expansion",
	"Kickoff notes, Wayne Industries rollout",
	"Invoice 4021 for Tyrell Corp",
	"Renewal risk: Soylent account going quiet",
	"Security questionnaire from Cyberdyne IT",
	"Upsell opportunity at Hooli after the all-hands",
	"Pied Piper compression benchmarks attached",
	"Massive Dynamic wants a multi-year quote",
	"Oscorp trial extension request",
	"Weyland-Yutani master services agreement",
	"Aperture Labs onboarding checklist",
	"Black Mesa support escalation recap",
	"Vandelay Industries import pricing",
	"Duff Brewing seasonal order forecast",
	"Gringotts compliance review findings",
}

var senders = []string{
	"Sarah Johnson <sarah.johnson@acme.com>",
	"Miguel Alvarez <miguel@northwind.example>",
	"Priya Natarajan <priya.n@globex.example>",
	"Tom Walsh <twalsh@initech.example>",
	"Dana Kim <dana.kim@umbrella.example>",
	"Oliver Grant <oliver@stark.example>",
}

var bodies = []string{
	"Thanks for the call earlier. Sending over the revised pricing we discussed, let me know if the volume tiers work for your team.",
	"Looping in our procurement lead. We would like to close before the end of the quarter if the legal review goes smoothly.",
	"The pilot metrics look strong. Adoption is up forty percent and the ops team wants to expand to two more regions.",
	"Attached are the redlines from legal. Most changes are in the liability section, nothing controversial.",
	"Confirming Thursday at 10am for the demo. We will have the VP of operations and two engineers on the call.",
	"Budget was approved this morning. Can you send the order form so we can route it for signature?",
	"Quick recap from kickoff: rollout starts in March, success criteria are attached, weekly syncs on Mondays.",
	"Friendly reminder that invoice 4021 is due next week. Happy to resend if it went to spam.",
	"We have not heard from their team in three weeks. Suggest we schedule an executive check-in before renewal.",
	"Their IT team sent the standard security questionnaire. I filled in most of it, two questions need engineering.",
}

var (
	dbPath = flag.String("db", "./data/mailgraph", "path to the badger store directory")
	tenant = flag.String("tenant", "seed-tenant", "tenant id to seed")
	count  = flag.Int("count", 60, "number of synthetic emails")
	days   = flag.Int("days", 30, "spread emails over this many days and sync that window")
	src    = flag.String("src", "", "optional file of body lines, one email body per line")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// linesFromFile returns an iterator over lines in a file.
func linesFromFile(filename string) (iter.Seq[string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
	}, nil
}

// linesFromSlice returns an iterator over a slice of strings.
func linesFromSlice(lines []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, line := range lines {
			if !yield(line) {
				return
			}
		}
	}
}

// synthesize builds count messages spread evenly over the day window,
// cycling through the body source.
func synthesize(source iter.Seq[string], count, days int) []*core.Message {
	var lines []string
	for line := range source {
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		lines = bodies
	}

	now := time.Now().UTC()
	window := time.Duration(days) * 24 * time.Hour
	step := window / time.Duration(count+1)

	messages := make([]*core.Message, 0, count)
	for i := 0; i < count; i++ {
		ts := now.Add(-window + step*time.Duration(i+1))
		body := lines[i%len(lines)]
		messages = append(messages, &core.Message{
			Id:           fmt.Sprintf("seed-%04d", i+1),
			ThreadId:     fmt.Sprintf("thread-%04d", i+1),
			InternalDate: ts.UnixMilli(),
			Headers: []core.Header{
				{Name: "From", Value: senders[i%len(senders)]},
				{Name: "To", Value: "me@example.com"},
				{Name: "Subject", Value: subjects[i%len(subjects)]},
				{Name: "Date", Value: ts.Format(time.RFC1123Z)},
			},
			Parts: []core.BodyPart{
				{MimeType: "text/plain", Data: base64.RawURLEncoding.EncodeToString([]byte(body))},
			},
		})
	}
	return messages
}

func main() {
	ctx := context.Background()

	var source iter.Seq[string]
	if *src != "" {
		var err error
		source, err = linesFromFile(*src)
		if err != nil {
			panic(err)
		}
	} else {
		source = linesFromSlice(bodies)
	}

	provider := mailmock.NewMockProvider()
	provider.AddMessages(synthesize(source, *count, *days)...)

	cfg := config.New()
	cfg.StoragePath = *dbPath
	cfg.EpisodePauseSeconds = 0

	svc, err := mailgraph.NewService(cfg, graph.NewJournalDriver(os.Stdout),
		mailgraph.WithProvider(provider),
		mailgraph.WithEngine(extractmock.NewMockEngine()),
		mailgraph.WithEmbedder(extractmock.NewMockEmbedder()),
	)
	if err != nil {
		panic(err)
	}
	defer svc.Close()

	job, err := svc.Orchestrator().Enqueue(ctx, *tenant, *days, "seed-account")
	if err != nil {
		panic(err)
	}
	slog.Info("seed sync enqueued", "job_id", job.Id, "tenant", *tenant, "emails", *count)

	for {
		time.Sleep(500 * time.Millisecond)
		current, err := svc.Orchestrator().Status(ctx, job.Id)
		if err != nil {
			panic(err)
		}
		if current.Status.Terminal() {
			slog.Info("seed sync finished",
				"status", current.Status,
				"emails_processed", current.EmailsProcessed,
				"error", current.ErrorMessage)
			return
		}
	}
}
