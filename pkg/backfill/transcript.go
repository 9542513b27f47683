// Package backfill re-derives usage telemetry from Claude Code's local JSONL
// transcripts and delivers it to the metering backend in batches.
package backfill

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// transcriptUsage contains token counts from a Claude Code transcript entry.
type transcriptUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

// transcriptMessage represents the message field within a JSONL entry.
type transcriptMessage struct {
	Model string           `json:"model"`
	Usage *transcriptUsage `json:"usage"`
}

// transcriptEntry represents a single line in a Claude Code JSONL transcript.
type transcriptEntry struct {
	Type      string             `json:"type"`
	SessionID string             `json:"sessionId"`
	Timestamp string             `json:"timestamp"`
	Message   *transcriptMessage `json:"message"`
}

// UsageRecord is one assistant-turn usage event reconstructed from a
// transcript line. Timestamp keeps the source string verbatim because the
// transaction ID hash is computed over it.
type UsageRecord struct {
	SessionID           string
	Timestamp           string
	Model               string
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
}

// OutcomeKind classifies the visible result of parsing one transcript line.
type OutcomeKind int

const (
	// OutcomeRecord means the line produced a usable UsageRecord.
	OutcomeRecord OutcomeKind = iota

	// OutcomeParseError means the line was not valid JSON.
	OutcomeParseError

	// OutcomeMissingFields means the line was valid JSON with usage data but
	// lacked sessionId, timestamp, or model.
	OutcomeMissingFields
)

// Outcome is the tagged result of parsing one transcript line. Lines that are
// blank, non-assistant, usage-free, older than the cutoff, or all-zero are
// dropped silently and never materialize as an Outcome.
type Outcome struct {
	Kind   OutcomeKind
	Record UsageRecord
}

// parseTimestamp accepts the timestamp formats Claude Code writes.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05.000Z", s)
}

// ParseLine classifies a single transcript line. The second return value is
// false for silent skips: blank lines, non-assistant entries, entries without
// usage, unparseable timestamps, entries before since, and all-zero usage.
func ParseLine(line []byte, since *time.Time) (Outcome, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Outcome{}, false
	}

	var entry transcriptEntry
	if err := json.Unmarshal(line, &entry); err != nil {
		return Outcome{Kind: OutcomeParseError}, true
	}

	if entry.Type != "assistant" || entry.Message == nil || entry.Message.Usage == nil {
		return Outcome{}, false
	}

	if entry.SessionID == "" || entry.Timestamp == "" || entry.Message.Model == "" {
		return Outcome{Kind: OutcomeMissingFields}, true
	}

	ts, err := parseTimestamp(entry.Timestamp)
	if err != nil {
		// Soft data-quality issue: the schema is complete but the value is
		// garbage. Not worth an error counter.
		return Outcome{}, false
	}

	if since != nil && ts.Before(*since) {
		return Outcome{}, false
	}

	usage := entry.Message.Usage
	if usage.InputTokens == 0 && usage.OutputTokens == 0 &&
		usage.CacheReadInputTokens == 0 && usage.CacheCreationInputTokens == 0 {
		return Outcome{}, false
	}

	return Outcome{
		Kind: OutcomeRecord,
		Record: UsageRecord{
			SessionID:           entry.SessionID,
			Timestamp:           entry.Timestamp,
			Model:               entry.Message.Model,
			InputTokens:         usage.InputTokens,
			OutputTokens:        usage.OutputTokens,
			CacheReadTokens:     usage.CacheReadInputTokens,
			CacheCreationTokens: usage.CacheCreationInputTokens,
		},
	}, true
}

// ScanFile streams a transcript file line by line, invoking visit for every
// visible outcome in file order. Silent skips are never passed to visit.
// Returning false from visit stops the scan early. The file handle is
// released on every exit path. An unopenable or unreadable file propagates
// as an error; the caller decides whether that is fatal.
func ScanFile(path string, since *time.Time, visit func(Outcome) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening transcript: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024) // 10MB max line

	for scanner.Scan() {
		outcome, ok := ParseLine(scanner.Bytes(), since)
		if !ok {
			continue
		}
		if !visit(outcome) {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading transcript: %w", err)
	}

	return nil
}
