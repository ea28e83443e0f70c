package commands_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/z4ce/sonar2dojo/internal/commands"
	"github.com/z4ce/sonar2dojo/internal/config"
	"github.com/z4ce/sonar2dojo/internal/database"
	"github.com/z4ce/sonar2dojo/internal/dojo"
	"github.com/z4ce/sonar2dojo/internal/metrics"
	"github.com/z4ce/sonar2dojo/internal/sonar"
)

var _ = Describe("Sync Command", func() {
	var (
		source   *MockSource
		target   *MockTarget
		ledger   *MockLedger
		recorder *metrics.Recorder
		cfg      *config.Config
		runs     int
	)

	newCommand := func() *commands.SyncCommand {
		cmd := commands.NewSyncCommand(cfg, source, target, ledger, recorder, nil)
		cmd.Now = func() time.Time { return time.Date(2026, 10, 18, 9, 30, 15, 0, time.UTC) }
		cmd.NewRunID = func() string {
			runs++
			return fmt.Sprintf("run-%d", runs)
		}
		return cmd
	}

	BeforeEach(func() {
		source = NewMockSource()
		target = NewMockTarget()
		ledger = NewMockLedger()
		recorder = metrics.NewRecorder()
		cfg = config.Default()
		cfg.Organization = "acme"
		runs = 0

		source.ListProjectsFunc = func() ([]sonar.Project, error) {
			return []sonar.Project{
				{Key: "org:svc-a", Name: "svc-a"},
				{Key: "org:svc-b", Name: "svc-b"},
			}, nil
		}
		source.ListVulnerabilitiesFunc = func(projectKey string) ([]sonar.Issue, error) {
			if projectKey == "org:svc-b" {
				return nil, nil
			}
			return []sonar.Issue{
				{Key: "ISSUE-1", Message: "SQL injection", Severity: "CRITICAL", Component: "svc-a:db.py", Line: 42},
				{Key: "ISSUE-2", Message: "Weak hash", Severity: "MINOR", Component: "svc-a:auth.py", Line: 7},
			}, nil
		}
	})

	Describe("Execute", func() {
		It("should provision and import every project", func() {
			cmd := newCommand()
			Expect(cmd.Execute()).To(Succeed())

			Expect(target.Products).To(HaveLen(2))
			Expect(target.Engagements).To(HaveLen(2))
			Expect(target.Tests).To(HaveLen(2))
			Expect(target.Findings).To(HaveLen(2))
			Expect(target.Findings[0].Test).To(Equal(target.Tests[0].ID))

			run := cmd.Run()
			Expect(run.ID).To(Equal("run-1"))
			Expect(run.ProjectsTotal).To(Equal(2))
			Expect(run.ProjectsFailed).To(Equal(0))
			Expect(run.FindingsUploaded).To(Equal(2))
			Expect(run.FinishedAt).NotTo(BeNil())
		})

		It("should record each project outcome and uploaded finding", func() {
			Expect(newCommand().Execute()).To(Succeed())

			Expect(ledger.Syncs).To(HaveLen(2))
			Expect(ledger.Syncs[0].Status).To(Equal(database.StatusSynced))
			Expect(ledger.Syncs[0].IssuesFound).To(Equal(2))
			Expect(ledger.Syncs[0].FindingsUploaded).To(Equal(2))
			Expect(ledger.Syncs[0].EngagementCreated).To(BeTrue())
			Expect(ledger.Syncs[1].Status).To(Equal(database.StatusNoIssues))

			Expect(ledger.Findings).To(HaveLen(2))
			Expect(ledger.Findings[0].IssueKey).To(Equal("ISSUE-1"))
			Expect(ledger.Findings[0].Severity).To(Equal("Critical"))
			Expect(ledger.Runs["run-1"].FindingsUploaded).To(Equal(2))
			Expect(ledger.FinishRunCalls).To(Equal(1))
		})

		It("should leave an empty test behind for a project without issues", func() {
			source.ListProjectsFunc = func() ([]sonar.Project, error) {
				return []sonar.Project{{Key: "org:svc-b", Name: "svc-b"}}, nil
			}

			Expect(newCommand().Execute()).To(Succeed())
			Expect(target.Tests).To(HaveLen(1))
			Expect(target.FindingAttempts).To(BeZero())
		})

		It("should reuse the product but not the engagement on a second run", func() {
			Expect(newCommand().Execute()).To(Succeed())
			Expect(newCommand().Execute()).To(Succeed())

			Expect(target.Products).To(HaveLen(2))
			Expect(target.Engagements).To(HaveLen(4))
			Expect(target.Tests).To(HaveLen(4))
			Expect(target.Findings).To(HaveLen(4))
		})

		It("should continue with the next project when provisioning fails", func() {
			target.CreateEngagementFunc = func(engagement *dojo.Engagement) (*dojo.Engagement, error) {
				if engagement.Product == target.Products[0].ID {
					return nil, errors.New("500 Internal Server Error")
				}
				engagement.ID = 99
				target.Engagements = append(target.Engagements, engagement)
				return engagement, nil
			}

			cmd := newCommand()
			Expect(cmd.Execute()).To(Succeed())

			Expect(target.Tests).To(HaveLen(1))
			Expect(source.ListVulnerabilitiesCalls).To(Equal([]string{"org:svc-b"}))
			Expect(ledger.Syncs[0].Status).To(Equal(database.StatusFailed))
			Expect(ledger.Syncs[0].FailedStage).To(Equal(commands.StageEngagement))
			Expect(ledger.Syncs[0].Error).To(ContainSubstring("500"))
			Expect(cmd.Run().ProjectsFailed).To(Equal(1))
		})

		It("should mark a project failed when its issues cannot be fetched", func() {
			source.ListVulnerabilitiesFunc = func(projectKey string) ([]sonar.Issue, error) {
				return nil, errors.New("401 Unauthorized")
			}

			Expect(newCommand().Execute()).To(Succeed())
			Expect(ledger.Syncs).To(HaveLen(2))
			Expect(ledger.Syncs[0].FailedStage).To(Equal(commands.StageIssues))
			Expect(ledger.Syncs[0].TestID).NotTo(BeZero())
			Expect(target.FindingAttempts).To(BeZero())
		})

		It("should count rejected findings without failing the project", func() {
			target.CreateFindingFunc = func(finding *dojo.Finding) (*dojo.Finding, error) {
				return nil, errors.New("400 Bad Request")
			}

			cmd := newCommand()
			Expect(cmd.Execute()).To(Succeed())
			Expect(target.FindingAttempts).To(Equal(2))
			Expect(cmd.Run().FindingsFailed).To(Equal(2))
			Expect(cmd.Run().FindingsUploaded).To(BeZero())
			Expect(ledger.Syncs[0].Status).To(Equal(database.StatusSynced))
			Expect(ledger.Findings).To(BeEmpty())
		})

		It("should return ErrNoProjects when the organization is empty", func() {
			source.ListProjectsFunc = func() ([]sonar.Project, error) { return nil, nil }

			err := newCommand().Execute()
			Expect(err).To(MatchError(commands.ErrNoProjects))
			Expect(target.Products).To(BeEmpty())
			Expect(ledger.FinishRunCalls).To(Equal(1))
		})

		It("should treat a listing failure as an empty organization", func() {
			source.ListProjectsFunc = func() ([]sonar.Project, error) {
				return nil, errors.New("failed to list projects (page 2)")
			}

			Expect(newCommand().Execute()).To(MatchError(commands.ErrNoProjects))
		})

		It("should not let ledger failures change the outcome", func() {
			ledger.InsertProjectSyncFunc = func(*database.ProjectSync) error { return errors.New("disk I/O error") }
			ledger.InsertFindingFunc = func(*database.Finding) error { return errors.New("disk I/O error") }

			cmd := newCommand()
			Expect(cmd.Execute()).To(Succeed())
			Expect(target.Findings).To(HaveLen(2))
			Expect(cmd.Run().FindingsUploaded).To(Equal(2))
		})

		It("should run without a ledger", func() {
			cmd := commands.NewSyncCommand(cfg, source, target, nil, nil, nil)
			Expect(cmd.Execute()).To(Succeed())
			Expect(cmd.Run().ProjectsTotal).To(Equal(2))
		})

		Context("with a single project configured", func() {
			BeforeEach(func() {
				cfg.Project = "svc-a"
			})

			It("should sync only the searched project", func() {
				var searched string
				source.SearchProjectFunc = func(name string) (*sonar.Project, error) {
					searched = name
					return &sonar.Project{Key: "org:svc-a", Name: "svc-a"}, nil
				}
				source.ListProjectsFunc = func() ([]sonar.Project, error) {
					Fail("the registry should not be listed")
					return nil, nil
				}

				Expect(newCommand().Execute()).To(Succeed())
				Expect(searched).To(Equal("svc-a"))
				Expect(target.Products).To(HaveLen(1))
			})

			It("should return ErrNoProjects when the project does not exist", func() {
				Expect(newCommand().Execute()).To(MatchError(commands.ErrNoProjects))
			})
		})

		It("should write the metrics textfile when configured", func() {
			cfg.MetricsFile = filepath.Join(GinkgoT().TempDir(), "sonar2dojo.prom")

			Expect(newCommand().Execute()).To(Succeed())

			data, err := os.ReadFile(cfg.MetricsFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`sonar2dojo_projects_total{outcome="synced"} 1`))
			Expect(string(data)).To(ContainSubstring(`sonar2dojo_projects_total{outcome="no-issues"} 1`))
			Expect(string(data)).To(ContainSubstring(`sonar2dojo_findings_total{result="uploaded"} 2`))
		})
	})
})
