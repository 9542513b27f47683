package dotdir_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sigmetric/ccmeter/pkg/dotdir"
)

var _ = Describe("dotdir.Manager backfill state", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "dotdir-test-*")
		Expect(err).NotTo(HaveOccurred())
		m = dotdir.NewManager()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("LoadBackfillState", func() {
		It("returns nil when no state file exists", func() {
			state, err := m.LoadBackfillState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(BeNil())
		})

		It("loads a valid state file", func() {
			data := `{"last_run_at":"2026-02-01T10:00:00Z","records_sent":150,"batches_sent":2,"failed_batches":0}`
			err := os.WriteFile(filepath.Join(tmpDir, "backfill.json"), []byte(data), 0o644)
			Expect(err).NotTo(HaveOccurred())

			state, err := m.LoadBackfillState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).NotTo(BeNil())
			Expect(state.RecordsSent).To(Equal(150))
			Expect(state.BatchesSent).To(Equal(2))
			Expect(state.LastRunAt).To(Equal(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)))
		})

		It("returns error for invalid JSON", func() {
			err := os.WriteFile(filepath.Join(tmpDir, "backfill.json"), []byte("not json"), 0o644)
			Expect(err).NotTo(HaveOccurred())

			state, err := m.LoadBackfillState(tmpDir)
			Expect(err).To(HaveOccurred())
			Expect(state).To(BeNil())
		})
	})

	Describe("SaveBackfillState", func() {
		It("round-trips through the state file", func() {
			state := &dotdir.BackfillState{
				LastRunAt:     time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
				RecordsSent:   150,
				BatchesSent:   2,
				FailedBatches: 1,
			}

			Expect(m.SaveBackfillState(state, tmpDir)).To(Succeed())

			loaded, err := m.LoadBackfillState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(state))
		})

		It("rejects nil state", func() {
			Expect(m.SaveBackfillState(nil, tmpDir)).To(HaveOccurred())
		})
	})

	Describe("ClearBackfillState", func() {
		It("removes an existing state file", func() {
			state := &dotdir.BackfillState{LastRunAt: time.Now().UTC()}
			Expect(m.SaveBackfillState(state, tmpDir)).To(Succeed())

			Expect(m.ClearBackfillState(tmpDir)).To(Succeed())

			loaded, err := m.LoadBackfillState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(BeNil())
		})

		It("succeeds when no state file exists", func() {
			Expect(m.ClearBackfillState(tmpDir)).To(Succeed())
		})
	})
})
