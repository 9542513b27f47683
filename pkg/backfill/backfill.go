package backfill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sigmetric/ccmeter/pkg/config"
)

// ErrNotConfigured is returned when the backend connection settings required
// for delivery are missing. This is a precondition failure, not a pipeline one.
var ErrNotConfigured = errors.New("no backend configured: run 'ccmeter setup' first")

// ErrNoTranscripts is returned when discovery finds no transcript files.
var ErrNoTranscripts = errors.New("no transcript files found")

// Options configures one backfill run.
type Options struct {
	// Since optionally filters out records older than a cutoff. Accepts the
	// formats understood by ParseSince.
	Since string

	// DryRun reports what would be sent without contacting the network.
	DryRun bool

	// BatchSize is the number of records per delivery batch.
	BatchSize int

	// Delay is the pause between consecutive batches.
	Delay time.Duration

	// Verbose enables per-file progress output.
	Verbose bool
}

// Dependencies bundles the collaborators the orchestrator drives. Tests
// substitute fakes here instead of patching global state.
type Dependencies struct {
	Discover func(root string) (files []string, errs []string)
	Scan     func(path string, since *time.Time, visit func(Outcome) bool) error
	Deliver  func(ctx context.Context, payload *Payload) DeliveryResult
	Sleep    func(time.Duration)
	Now      func() time.Time
}

// Backfiller sequences discovery, streaming, aggregation, batching, and
// delivery for one run. Batches are processed strictly sequentially; the
// inter-batch delay is the only rate limiting applied.
type Backfiller struct {
	cfg  *config.Config
	opts Options
	deps Dependencies
	out  io.Writer
}

// NewBackfiller creates a Backfiller with production dependencies. It fails
// up front when the backend connection settings are missing.
func NewBackfiller(cfg *config.Config, opts Options, out io.Writer) (*Backfiller, error) {
	if cfg == nil || !cfg.IsConfigured() {
		return nil, ErrNotConfigured
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = cfg.Backfill.BatchSize
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}

	deliverer := &Deliverer{
		Send:        NewHTTPSender(cfg.Backend.Endpoint, cfg.Backend.APIKey),
		MaxAttempts: defaultMaxAttempts,
	}

	return &Backfiller{
		cfg:  cfg,
		opts: opts,
		deps: Dependencies{
			Discover: ScanTranscriptDir,
			Scan:     ScanFile,
			Deliver:  deliverer.DeliverWithRetry,
			Sleep:    time.Sleep,
			Now:      time.Now,
		},
		out: out,
	}, nil
}

// defaultMaxAttempts bounds delivery retries per batch.
const defaultMaxAttempts = 3

// NewBackfillerWithDeps creates a Backfiller driven by the given collaborators.
func NewBackfillerWithDeps(cfg *config.Config, opts Options, deps Dependencies, out io.Writer) (*Backfiller, error) {
	b, err := NewBackfiller(cfg, opts, out)
	if err != nil {
		return nil, err
	}

	if deps.Discover != nil {
		b.deps.Discover = deps.Discover
	}
	if deps.Scan != nil {
		b.deps.Scan = deps.Scan
	}
	if deps.Deliver != nil {
		b.deps.Deliver = deps.Deliver
	}
	if deps.Sleep != nil {
		b.deps.Sleep = deps.Sleep
	}
	if deps.Now != nil {
		b.deps.Now = deps.Now
	}

	return b, nil
}

// Run executes the backfill against transcripts under projectsDir.
// Precondition failures (invalid since, zero files) return errors; a run that
// finds zero records is a valid empty result, not an error. One corrupt file
// or one failed batch never aborts the rest of the run.
func (b *Backfiller) Run(ctx context.Context, projectsDir string) (*Result, error) {
	var since *time.Time
	if b.opts.Since != "" {
		cutoff, err := ParseSince(b.opts.Since, b.deps.Now())
		if err != nil {
			return nil, err
		}
		since = &cutoff
	}

	files, discoveryErrs := b.deps.Discover(projectsDir)

	result := &Result{
		DryRun:          b.opts.DryRun,
		TranscriptFiles: len(files),
		DiscoveryErrors: discoveryErrs,
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoTranscripts, projectsDir)
	}

	var records []UsageRecord
	for _, f := range files {
		err := b.deps.Scan(f, since, func(o Outcome) bool {
			switch o.Kind {
			case OutcomeRecord:
				records = append(records, o.Record)
			case OutcomeParseError:
				result.ParseErrors++
			case OutcomeMissingFields:
				result.MissingFields++
			}
			return true
		})
		if err != nil {
			// One corrupt file is just a counter; move on to the next file.
			result.FailedFiles++
			if b.opts.Verbose {
				fmt.Fprintf(b.out, "  warning: skipping %s: %v\n", f, err)
			}
		}
	}

	result.Stats = ComputeStatistics(records)

	if len(records) == 0 {
		return result, nil
	}

	payloadOpts := PayloadOptions{
		CostMultiplier:   config.ResolveCostMultiplier(b.cfg),
		ClientID:         b.cfg.Backend.ClientID,
		Email:            b.cfg.Attribution.Email,
		OrganizationName: b.cfg.Attribution.OrganizationName,
		ProductName:      b.cfg.Attribution.ProductName,
	}

	if b.opts.DryRun {
		sampleSize := min(b.opts.BatchSize, 3, len(records))
		result.SamplePayload = BuildPayload(records[:sampleSize], payloadOpts)
		return result, nil
	}

	total := len(records)
	batchNum := 0
	for start := 0; start < total; start += b.opts.BatchSize {
		batchNum++
		end := min(start+b.opts.BatchSize, total)

		payload := BuildPayload(records[start:end], payloadOpts)
		delivery := b.deps.Deliver(ctx, payload)

		result.RetryAttempts += delivery.Attempts - 1
		if delivery.Success {
			result.BatchesSent++
			result.RecordsSent += end - start
			if b.opts.Verbose {
				fmt.Fprintf(b.out, "  batch %d: sent %d records (%d attempts)\n",
					batchNum, end-start, delivery.Attempts)
			}
		} else {
			result.FailedBatches = append(result.FailedBatches, BatchFailure{
				Batch: batchNum,
				Error: delivery.Error,
			})
			if b.opts.Verbose {
				fmt.Fprintf(b.out, "  batch %d: failed after %d attempts: %s\n",
					batchNum, delivery.Attempts, delivery.Error)
			}
		}

		if end < total {
			b.deps.Sleep(b.opts.Delay)
		}
	}

	return result, nil
}
