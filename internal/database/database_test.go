package database

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Database", func() {
	var (
		db     *DB
		dbPath string
	)

	BeforeEach(func() {
		dir, err := os.MkdirTemp("", "sonar2dojo-db")
		Expect(err).NotTo(HaveOccurred())
		dbPath = filepath.Join(dir, "test.db")

		db, err = New(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		db.Close()
		os.RemoveAll(filepath.Dir(dbPath))
	})

	It("should insert, finish and retrieve runs", func() {
		started := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
		run := &Run{ID: "run-1", Organization: "acme", StartedAt: started}
		Expect(db.InsertRun(run)).To(Succeed())

		stored, err := db.GetRun("run-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Organization).To(Equal("acme"))
		Expect(stored.FinishedAt).To(BeNil())

		finished := started.Add(2 * time.Minute)
		run.FinishedAt = &finished
		run.ProjectsTotal = 3
		run.ProjectsFailed = 1
		run.FindingsUploaded = 12
		run.FindingsFailed = 2
		Expect(db.FinishRun(run)).To(Succeed())

		stored, err = db.GetRun("run-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.FinishedAt).NotTo(BeNil())
		Expect(stored.FinishedAt.Equal(finished)).To(BeTrue())
		Expect(stored.ProjectsTotal).To(Equal(3))
		Expect(stored.ProjectsFailed).To(Equal(1))
		Expect(stored.FindingsUploaded).To(Equal(12))
		Expect(stored.FindingsFailed).To(Equal(2))
	})

	It("should return sql.ErrNoRows for an unknown run", func() {
		_, err := db.GetRun("missing")
		Expect(err).To(MatchError(sql.ErrNoRows))
	})

	It("should list recent runs newest first", func() {
		base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
		for i, id := range []string{"a", "b", "c"} {
			Expect(db.InsertRun(&Run{ID: id, Organization: "acme", StartedAt: base.Add(time.Duration(i) * time.Hour)})).To(Succeed())
		}

		runs, err := db.GetRecentRuns(2)
		Expect(err).NotTo(HaveOccurred())
		Expect(runs).To(HaveLen(2))
		Expect(runs[0].ID).To(Equal("c"))
		Expect(runs[1].ID).To(Equal("b"))
	})

	It("should store project outcomes in order and mark rollbacks", func() {
		now := time.Now()
		first := &ProjectSync{
			RunID: "run-1", ProjectKey: "org:svc-a", ProjectName: "svc-a",
			ProductID: 1, EngagementID: 2, EngagementCreated: true, TestID: 3,
			IssuesFound: 1, FindingsUploaded: 1, Status: StatusSynced, SyncedAt: now,
		}
		second := &ProjectSync{
			RunID: "run-1", ProjectKey: "org:svc-b", ProjectName: "svc-b",
			ProductID: 4, Status: StatusFailed, FailedStage: "engagement",
			Error: "unexpected status code: 500", SyncedAt: now,
		}
		Expect(db.InsertProjectSync(first)).To(Succeed())
		Expect(db.InsertProjectSync(second)).To(Succeed())
		Expect(first.ID).NotTo(BeZero())
		Expect(second.ID).To(BeNumerically(">", first.ID))

		Expect(db.MarkProjectSyncRolledBack(first.ID)).To(Succeed())

		syncs, err := db.GetProjectSyncsByRunID("run-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(syncs).To(HaveLen(2))
		Expect(syncs[0].ProjectName).To(Equal("svc-a"))
		Expect(syncs[0].Status).To(Equal(StatusRolledBack))
		Expect(syncs[0].EngagementCreated).To(BeTrue())
		Expect(syncs[1].FailedStage).To(Equal("engagement"))
		Expect(syncs[1].EngagementCreated).To(BeFalse())
	})

	It("should count findings per run", func() {
		for _, key := range []string{"ISSUE-1", "ISSUE-2"} {
			Expect(db.InsertFinding(&Finding{
				RunID: "run-1", ProjectKey: "org:svc-a", IssueKey: key,
				FindingID: 10, Severity: "Critical", UploadedAt: time.Now(),
			})).To(Succeed())
		}
		Expect(db.InsertFinding(&Finding{RunID: "run-2", IssueKey: "ISSUE-3", UploadedAt: time.Now()})).To(Succeed())

		count, err := db.CountFindingsByRunID("run-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(2))
	})
})
