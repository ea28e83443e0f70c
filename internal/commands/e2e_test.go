package commands_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/z4ce/sonar2dojo/internal/commands"
	"github.com/z4ce/sonar2dojo/internal/config"
	"github.com/z4ce/sonar2dojo/internal/database"
	"github.com/z4ce/sonar2dojo/internal/dojo"
	"github.com/z4ce/sonar2dojo/internal/dojo/dojotest"
	"github.com/z4ce/sonar2dojo/internal/sonar"
)

func newSonarServer(projects []sonar.Project, issues map[string][]sonar.Issue) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/projects/search", func(w http.ResponseWriter, r *http.Request) {
		if user, _, ok := r.BasicAuth(); !ok || user != "sq-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		resp := sonar.ProjectsSearchResponse{Components: []sonar.Project{}}
		if r.URL.Query().Get("p") == "1" {
			resp.Components = projects
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api/issues/search", func(w http.ResponseWriter, r *http.Request) {
		found := issues[r.URL.Query().Get("componentKeys")]
		_ = json.NewEncoder(w).Encode(sonar.IssuesSearchResponse{Total: len(found), Issues: found})
	})
	return httptest.NewServer(mux)
}

var _ = Describe("Sync end to end", func() {
	var (
		sonarServer *httptest.Server
		dojoServer  *dojotest.Server
		ledger      *database.DB
		cfg         *config.Config
	)

	BeforeEach(func() {
		sonarServer = newSonarServer(
			[]sonar.Project{{Key: "org:svc-a", Name: "svc-a"}, {Key: "org:svc-b", Name: "svc-b"}},
			map[string][]sonar.Issue{
				"org:svc-a": {{
					Key:       "ISSUE-1",
					Message:   "SQL injection",
					Severity:  "CRITICAL",
					Component: "svc-a:db.py",
					Line:      42,
				}},
			},
		)
		dojoServer = dojotest.NewServer("dd-token")

		cfg = config.Default()
		cfg.SonarURL = sonarServer.URL
		cfg.SonarToken = "sq-token"
		cfg.Organization = "org"
		cfg.DojoURL = dojoServer.URL
		cfg.DojoToken = "dd-token"
		cfg.DBPath = filepath.Join(GinkgoT().TempDir(), "sonar2dojo.db")

		var err error
		ledger, err = database.New(cfg.DBPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		ledger.Close()
		sonarServer.Close()
		dojoServer.Close()
	})

	newCommand := func() *commands.SyncCommand {
		return commands.NewSyncCommand(cfg, sonar.New(cfg, nil), dojo.New(cfg, nil), ledger, nil, nil)
	}

	It("should create the svc-a finding in DefectDojo", func() {
		cmd := newCommand()
		Expect(cmd.Execute()).To(Succeed())

		state := dojoServer.State()
		Expect(state.Products).To(HaveLen(2))
		Expect(state.Tests).To(HaveLen(2))
		Expect(state.Findings).To(HaveLen(1))

		finding := state.Findings[0]
		Expect(finding.Severity).To(Equal("Critical"))
		Expect(finding.NumericalSeverity).To(Equal("4"))
		Expect(finding.Test).To(Equal(state.Tests[0].ID))
		for _, want := range []string{"SQL injection", "db.py", "42", "ISSUE-1"} {
			Expect(finding.Description).To(ContainSubstring(want))
		}

		count, err := ledger.CountFindingsByRunID(cmd.Run().ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))
	})

	It("should keep one product per project across runs", func() {
		Expect(newCommand().Execute()).To(Succeed())
		Expect(newCommand().Execute()).To(Succeed())

		state := dojoServer.State()
		Expect(state.Products).To(HaveLen(2))
		Expect(state.Engagements).To(HaveLen(4))
		Expect(state.Tests).To(HaveLen(4))
		Expect(dojoServer.Count("POST /products/")).To(Equal(2))
	})

	It("should undo a run with rollback", func() {
		cmd := newCommand()
		Expect(cmd.Execute()).To(Succeed())

		rollback := commands.NewRollbackCommand(ledger, dojo.New(cfg, nil), cmd.Run().ID, nil)
		Expect(rollback.Execute()).To(Succeed())
		Expect(rollback.Deleted()).To(Equal(2))

		state := dojoServer.State()
		Expect(state.Engagements).To(BeEmpty())
		Expect(state.Products).To(HaveLen(2))

		syncs, err := ledger.GetProjectSyncsByRunID(cmd.Run().ID)
		Expect(err).NotTo(HaveOccurred())
		for _, ps := range syncs {
			Expect(ps.Status).To(Equal(database.StatusRolledBack))
		}
	})

	It("should report a rejected finding without failing the run", func() {
		dojoServer.FailFinding = func(*dojo.Finding) bool { return true }

		cmd := newCommand()
		Expect(cmd.Execute()).To(Succeed())
		Expect(cmd.Run().FindingsFailed).To(Equal(1))
		Expect(dojoServer.State().Findings).To(BeEmpty())
	})
})
