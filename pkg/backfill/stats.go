package backfill

// Statistics summarizes a closed set of usage records.
type Statistics struct {
	TotalRecords        int
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
	OldestTimestamp     string
	NewestTimestamp     string
}

// ComputeStatistics aggregates counts, token sums, and the time range over
// records. It is a pure function computed fresh from the full set; empty
// input yields zero sums and empty timestamp strings.
func ComputeStatistics(records []UsageRecord) Statistics {
	stats := Statistics{TotalRecords: len(records)}

	first := true
	var oldest, newest int64

	for _, r := range records {
		stats.InputTokens += r.InputTokens
		stats.OutputTokens += r.OutputTokens
		stats.CacheReadTokens += r.CacheReadTokens
		stats.CacheCreationTokens += r.CacheCreationTokens

		ts, err := parseTimestamp(r.Timestamp)
		if err != nil {
			continue
		}

		nano := ts.UnixNano()
		if first {
			first = false
			oldest, newest = nano, nano
			stats.OldestTimestamp = r.Timestamp
			stats.NewestTimestamp = r.Timestamp
			continue
		}
		if nano < oldest {
			oldest = nano
			stats.OldestTimestamp = r.Timestamp
		}
		if nano > newest {
			newest = nano
			stats.NewestTimestamp = r.Timestamp
		}
	}

	return stats
}
