package backfill_test

import (
	"os"
	"path/filepath"
	"runtime"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sigmetric/ccmeter/pkg/backfill"
)

var _ = Describe("ScanTranscriptDir", func() {
	It("finds JSONL files in nested directories", func() {
		tmpDir := GinkgoT().TempDir()

		subDir := filepath.Join(tmpDir, "project", "subagents")
		Expect(os.MkdirAll(subDir, 0o755)).To(Succeed())

		writeJSONL(tmpDir, "session1.jsonl", "{}")
		writeJSONL(subDir, "agent.jsonl", "{}")
		writeJSONL(tmpDir, "readme.txt", "not a jsonl")

		files, errs := backfill.ScanTranscriptDir(tmpDir)
		Expect(errs).To(BeEmpty())
		Expect(files).To(HaveLen(2))
	})

	It("returns empty for a directory with no JSONL files", func() {
		files, errs := backfill.ScanTranscriptDir(GinkgoT().TempDir())
		Expect(errs).To(BeEmpty())
		Expect(files).To(BeEmpty())
	})

	It("records an error for a missing root", func() {
		files, errs := backfill.ScanTranscriptDir(filepath.Join(GinkgoT().TempDir(), "missing"))
		Expect(files).To(BeEmpty())
		Expect(errs).To(HaveLen(1))
		Expect(errs[0]).To(ContainSubstring("missing"))
	})

	It("continues past unreadable subdirectories", func() {
		if runtime.GOOS == "windows" || os.Getuid() == 0 {
			Skip("permission bits are not enforced here")
		}

		tmpDir := GinkgoT().TempDir()
		locked := filepath.Join(tmpDir, "locked")
		open := filepath.Join(tmpDir, "open")
		Expect(os.MkdirAll(locked, 0o755)).To(Succeed())
		Expect(os.MkdirAll(open, 0o755)).To(Succeed())
		writeJSONL(locked, "hidden.jsonl", "{}")
		writeJSONL(open, "visible.jsonl", "{}")
		Expect(os.Chmod(locked, 0o000)).To(Succeed())
		defer os.Chmod(locked, 0o755) //nolint:errcheck

		files, errs := backfill.ScanTranscriptDir(tmpDir)
		Expect(files).To(HaveLen(1))
		Expect(files[0]).To(ContainSubstring("visible.jsonl"))
		Expect(errs).To(HaveLen(1))
		Expect(errs[0]).To(ContainSubstring("locked"))
	})
})

var _ = Describe("ComputeStatistics", func() {
	It("returns zeros for an empty set", func() {
		stats := backfill.ComputeStatistics(nil)
		Expect(stats.TotalRecords).To(Equal(0))
		Expect(stats.InputTokens).To(Equal(int64(0)))
		Expect(stats.OldestTimestamp).To(BeEmpty())
		Expect(stats.NewestTimestamp).To(BeEmpty())
	})

	It("sums tokens and tracks the time range", func() {
		records := []backfill.UsageRecord{
			{SessionID: "s1", Timestamp: "2026-02-02T10:00:00.000Z", Model: "m", InputTokens: 10, OutputTokens: 20, CacheReadTokens: 30, CacheCreationTokens: 40},
			{SessionID: "s1", Timestamp: "2026-02-01T09:00:00.000Z", Model: "m", InputTokens: 1, OutputTokens: 2, CacheReadTokens: 3, CacheCreationTokens: 4},
			{SessionID: "s2", Timestamp: "2026-02-03T11:00:00.000Z", Model: "m", InputTokens: 100, OutputTokens: 200, CacheReadTokens: 300, CacheCreationTokens: 400},
		}

		stats := backfill.ComputeStatistics(records)
		Expect(stats.TotalRecords).To(Equal(3))
		Expect(stats.InputTokens).To(Equal(int64(111)))
		Expect(stats.OutputTokens).To(Equal(int64(222)))
		Expect(stats.CacheReadTokens).To(Equal(int64(333)))
		Expect(stats.CacheCreationTokens).To(Equal(int64(444)))
		Expect(stats.OldestTimestamp).To(Equal("2026-02-01T09:00:00.000Z"))
		Expect(stats.NewestTimestamp).To(Equal("2026-02-03T11:00:00.000Z"))
	})
})
