package backfill_test

import (
	"bytes"
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sigmetric/ccmeter/pkg/backfill"
	"github.com/sigmetric/ccmeter/pkg/config"
)

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Backend.Endpoint = "https://metering.example.com"
	cfg.Backend.APIKey = "test-key"
	cfg.Backend.ClientID = "client-1"
	return cfg
}

// fakeScan emits n synthetic usage records per scanned file.
func fakeScan(n int) func(string, *time.Time, func(backfill.Outcome) bool) error {
	return func(path string, _ *time.Time, visit func(backfill.Outcome) bool) error {
		for i := 0; i < n; i++ {
			ok := visit(backfill.Outcome{
				Kind: backfill.OutcomeRecord,
				Record: backfill.UsageRecord{
					SessionID:    "s1",
					Timestamp:    fmt.Sprintf("2026-02-01T10:00:%02d.000Z", i%60),
					Model:        "claude-sonnet-4-5-20250929",
					InputTokens:  10,
					OutputTokens: 5,
				},
			})
			if !ok {
				return nil
			}
		}
		return nil
	}
}

var _ = Describe("NewBackfiller", func() {
	It("refuses to run without backend settings", func() {
		_, err := backfill.NewBackfiller(config.NewDefaultConfig(), backfill.Options{}, &bytes.Buffer{})
		Expect(err).To(MatchError(backfill.ErrNotConfigured))
	})

	It("falls back to the configured batch size", func() {
		cfg := testConfig()
		cfg.Backfill.BatchSize = 25

		var sizes []int
		deps := backfill.Dependencies{
			Discover: func(string) ([]string, []string) { return []string{"a.jsonl"}, nil },
			Scan:     fakeScan(60),
			Deliver: func(_ context.Context, p *backfill.Payload) backfill.DeliveryResult {
				sizes = append(sizes, len(p.ResourceLogs[0].ScopeLogs[0].LogRecords))
				return backfill.DeliveryResult{Success: true, Attempts: 1}
			},
			Sleep: func(time.Duration) {},
		}

		b, err := backfill.NewBackfillerWithDeps(cfg, backfill.Options{}, deps, &bytes.Buffer{})
		Expect(err).NotTo(HaveOccurred())

		_, err = b.Run(context.Background(), "/projects")
		Expect(err).NotTo(HaveOccurred())
		Expect(sizes).To(Equal([]int{25, 25, 10}))
	})
})

var _ = Describe("Backfiller.Run", func() {
	It("errors when no transcript files exist", func() {
		deps := backfill.Dependencies{
			Discover: func(string) ([]string, []string) { return nil, nil },
		}

		b, err := backfill.NewBackfillerWithDeps(testConfig(), backfill.Options{}, deps, &bytes.Buffer{})
		Expect(err).NotTo(HaveOccurred())

		_, err = b.Run(context.Background(), "/projects")
		Expect(err).To(MatchError(backfill.ErrNoTranscripts))
		Expect(err.Error()).To(ContainSubstring("/projects"))
	})

	It("rejects an invalid since value before discovery", func() {
		deps := backfill.Dependencies{
			Discover: func(string) ([]string, []string) {
				Fail("discovery should not run")
				return nil, nil
			},
		}

		b, err := backfill.NewBackfillerWithDeps(testConfig(), backfill.Options{Since: "bogus"}, deps, &bytes.Buffer{})
		Expect(err).NotTo(HaveOccurred())

		_, err = b.Run(context.Background(), "/projects")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("invalid since value"))
	})

	It("treats zero records as a valid empty run", func() {
		deps := backfill.Dependencies{
			Discover: func(string) ([]string, []string) { return []string{"a.jsonl"}, nil },
			Scan:     fakeScan(0),
			Deliver: func(context.Context, *backfill.Payload) backfill.DeliveryResult {
				Fail("nothing should be delivered")
				return backfill.DeliveryResult{}
			},
		}

		b, err := backfill.NewBackfillerWithDeps(testConfig(), backfill.Options{}, deps, &bytes.Buffer{})
		Expect(err).NotTo(HaveOccurred())

		result, err := b.Run(context.Background(), "/projects")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Stats.TotalRecords).To(Equal(0))
		Expect(result.BatchesSent).To(Equal(0))
	})

	It("sends batches sequentially with the inter-batch delay", func() {
		var delivered int
		var slept []time.Duration

		deps := backfill.Dependencies{
			Discover: func(string) ([]string, []string) { return []string{"a.jsonl"}, nil },
			Scan:     fakeScan(150),
			Deliver: func(_ context.Context, _ *backfill.Payload) backfill.DeliveryResult {
				delivered++
				return backfill.DeliveryResult{Success: true, Attempts: 1}
			},
			Sleep: func(d time.Duration) { slept = append(slept, d) },
		}

		opts := backfill.Options{BatchSize: 100, Delay: 100 * time.Millisecond}
		b, err := backfill.NewBackfillerWithDeps(testConfig(), opts, deps, &bytes.Buffer{})
		Expect(err).NotTo(HaveOccurred())

		result, err := b.Run(context.Background(), "/projects")
		Expect(err).NotTo(HaveOccurred())
		Expect(delivered).To(Equal(2))
		Expect(result.BatchesSent).To(Equal(2))
		Expect(result.RecordsSent).To(Equal(150))
		// One sleep between two batches, none after the last.
		Expect(slept).To(Equal([]time.Duration{100 * time.Millisecond}))
	})

	It("records permanent batch failures and keeps going", func() {
		batch := 0

		deps := backfill.Dependencies{
			Discover: func(string) ([]string, []string) { return []string{"a.jsonl"}, nil },
			Scan:     fakeScan(30),
			Deliver: func(_ context.Context, _ *backfill.Payload) backfill.DeliveryResult {
				batch++
				if batch == 2 {
					return backfill.DeliveryResult{Attempts: 3, Error: "request failed with status 503: down"}
				}
				return backfill.DeliveryResult{Success: true, Attempts: 1}
			},
			Sleep: func(time.Duration) {},
		}

		opts := backfill.Options{BatchSize: 10}
		b, err := backfill.NewBackfillerWithDeps(testConfig(), opts, deps, &bytes.Buffer{})
		Expect(err).NotTo(HaveOccurred())

		result, err := b.Run(context.Background(), "/projects")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.BatchesSent).To(Equal(2))
		Expect(result.RecordsSent).To(Equal(20))
		Expect(result.FailedBatches).To(HaveLen(1))
		Expect(result.FailedBatches[0].Batch).To(Equal(2))
		Expect(result.RetryAttempts).To(Equal(2))
	})

	It("skips unreadable files without aborting the run", func() {
		deps := backfill.Dependencies{
			Discover: func(string) ([]string, []string) { return []string{"bad.jsonl", "good.jsonl"}, nil },
			Scan: func(path string, since *time.Time, visit func(backfill.Outcome) bool) error {
				if path == "bad.jsonl" {
					return fmt.Errorf("opening transcript: permission denied")
				}
				return fakeScan(5)(path, since, visit)
			},
			Deliver: func(_ context.Context, _ *backfill.Payload) backfill.DeliveryResult {
				return backfill.DeliveryResult{Success: true, Attempts: 1}
			},
			Sleep: func(time.Duration) {},
		}

		b, err := backfill.NewBackfillerWithDeps(testConfig(), backfill.Options{BatchSize: 10}, deps, &bytes.Buffer{})
		Expect(err).NotTo(HaveOccurred())

		result, err := b.Run(context.Background(), "/projects")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.FailedFiles).To(Equal(1))
		Expect(result.RecordsSent).To(Equal(5))
	})

	It("counts parse errors and missing fields across files", func() {
		deps := backfill.Dependencies{
			Discover: func(string) ([]string, []string) { return []string{"a.jsonl"}, nil },
			Scan: func(_ string, _ *time.Time, visit func(backfill.Outcome) bool) error {
				visit(backfill.Outcome{Kind: backfill.OutcomeParseError})
				visit(backfill.Outcome{Kind: backfill.OutcomeMissingFields})
				visit(backfill.Outcome{Kind: backfill.OutcomeParseError})
				return nil
			},
		}

		b, err := backfill.NewBackfillerWithDeps(testConfig(), backfill.Options{}, deps, &bytes.Buffer{})
		Expect(err).NotTo(HaveOccurred())

		result, err := b.Run(context.Background(), "/projects")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.ParseErrors).To(Equal(2))
		Expect(result.MissingFields).To(Equal(1))
	})

	It("builds a small sample payload on dry runs", func() {
		deps := backfill.Dependencies{
			Discover: func(string) ([]string, []string) { return []string{"a.jsonl"}, nil },
			Scan:     fakeScan(150),
			Deliver: func(context.Context, *backfill.Payload) backfill.DeliveryResult {
				Fail("dry run must not deliver")
				return backfill.DeliveryResult{}
			},
			Sleep: func(time.Duration) { Fail("dry run must not sleep") },
		}

		opts := backfill.Options{DryRun: true, BatchSize: 100}
		b, err := backfill.NewBackfillerWithDeps(testConfig(), opts, deps, &bytes.Buffer{})
		Expect(err).NotTo(HaveOccurred())

		result, err := b.Run(context.Background(), "/projects")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.DryRun).To(BeTrue())
		Expect(result.Stats.TotalRecords).To(Equal(150))
		Expect(result.BatchesSent).To(Equal(0))
		Expect(result.SamplePayload).NotTo(BeNil())
		Expect(result.SamplePayload.ResourceLogs[0].ScopeLogs[0].LogRecords).To(HaveLen(3))
	})

	It("forwards the since cutoff to the scanner", func() {
		now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
		var gotSince *time.Time

		deps := backfill.Dependencies{
			Discover: func(string) ([]string, []string) { return []string{"a.jsonl"}, nil },
			Scan: func(_ string, since *time.Time, _ func(backfill.Outcome) bool) error {
				gotSince = since
				return nil
			},
			Now: func() time.Time { return now },
		}

		b, err := backfill.NewBackfillerWithDeps(testConfig(), backfill.Options{Since: "7d"}, deps, &bytes.Buffer{})
		Expect(err).NotTo(HaveOccurred())

		_, err = b.Run(context.Background(), "/projects")
		Expect(err).NotTo(HaveOccurred())
		Expect(gotSince).NotTo(BeNil())
		Expect(*gotSince).To(Equal(now.AddDate(0, 0, -7)))
	})
})

var _ = Describe("Result", func() {
	It("formats a summary for a successful run", func() {
		r := &backfill.Result{
			TranscriptFiles: 4,
			Stats: backfill.Statistics{
				TotalRecords:    150,
				InputTokens:     1500,
				OutputTokens:    750,
				OldestTimestamp: "2026-01-01T00:00:00.000Z",
				NewestTimestamp: "2026-02-01T00:00:00.000Z",
			},
			BatchesSent: 2,
			RecordsSent: 150,
		}

		summary := r.Summary()
		Expect(summary).To(ContainSubstring("Scanned 4 transcript files"))
		Expect(summary).To(ContainSubstring("Found 150 usage records"))
		Expect(summary).To(ContainSubstring("Sent 2 batches (150 records)"))
	})

	It("reports failed batches with a re-run hint", func() {
		r := &backfill.Result{
			TranscriptFiles: 1,
			Stats:           backfill.Statistics{TotalRecords: 10},
			BatchesSent:     0,
			FailedBatches: []backfill.BatchFailure{
				{Batch: 1, Error: "request failed with status 503: down"},
			},
			RetryAttempts: 2,
		}

		summary := r.Summary()
		Expect(summary).To(ContainSubstring("1 batches failed permanently"))
		Expect(summary).To(ContainSubstring("status 503"))
		Expect(summary).To(ContainSubstring("Re-run 'ccmeter backfill'"))
	})

	It("labels dry runs", func() {
		r := &backfill.Result{DryRun: true, TranscriptFiles: 1}
		Expect(r.Summary()).To(ContainSubstring("Dry run: nothing was sent"))
	})
})
