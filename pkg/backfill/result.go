package backfill

import (
	"fmt"
	"strings"
)

// BatchFailure identifies a batch that failed permanently, with its truncated
// error message.
type BatchFailure struct {
	Batch int
	Error string
}

// Result contains statistics from one backfill run.
type Result struct {
	DryRun bool

	TranscriptFiles int
	FailedFiles     int
	DiscoveryErrors []string

	ParseErrors   int
	MissingFields int

	Stats Statistics

	BatchesSent   int
	RecordsSent   int
	FailedBatches []BatchFailure

	// RetryAttempts counts attempts beyond the minimum of one per batch.
	RetryAttempts int

	// SamplePayload is populated on dry runs so the caller can render what
	// would have been sent.
	SamplePayload *Payload
}

// Summary returns a human-readable report of the run. A run with permanently
// failed batches suggests re-running: backfill is safely repeatable and the
// backend deduplicates by transaction ID.
func (r *Result) Summary() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Scanned %d transcript files", r.TranscriptFiles)
	if r.FailedFiles > 0 {
		fmt.Fprintf(&sb, " (%d unreadable)", r.FailedFiles)
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Found %d usage records", r.Stats.TotalRecords)
	if r.Stats.TotalRecords > 0 {
		fmt.Fprintf(&sb, " from %s to %s", r.Stats.OldestTimestamp, r.Stats.NewestTimestamp)
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Tokens: %d input, %d output, %d cache read, %d cache creation\n",
		r.Stats.InputTokens, r.Stats.OutputTokens,
		r.Stats.CacheReadTokens, r.Stats.CacheCreationTokens)

	if r.ParseErrors > 0 || r.MissingFields > 0 {
		fmt.Fprintf(&sb, "Skipped lines: %d unparseable, %d missing fields\n",
			r.ParseErrors, r.MissingFields)
	}

	for _, e := range r.DiscoveryErrors {
		fmt.Fprintf(&sb, "Discovery warning: %s\n", e)
	}

	switch {
	case r.DryRun:
		sb.WriteString("Dry run: nothing was sent")
	case r.Stats.TotalRecords == 0:
		sb.WriteString("Nothing to send")
	default:
		fmt.Fprintf(&sb, "Sent %d batches (%d records)", r.BatchesSent, r.RecordsSent)
		if r.RetryAttempts > 0 {
			fmt.Fprintf(&sb, ", %d retries", r.RetryAttempts)
		}
		if len(r.FailedBatches) > 0 {
			fmt.Fprintf(&sb, "\n%d batches failed permanently:", len(r.FailedBatches))
			for _, f := range r.FailedBatches {
				fmt.Fprintf(&sb, "\n  batch %d: %s", f.Batch, f.Error)
			}
			sb.WriteString("\nRe-run 'ccmeter backfill' to retry failed batches")
		}
	}

	return sb.String()
}
