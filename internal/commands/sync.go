package commands

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/z4ce/sonar2dojo/internal/config"
	"github.com/z4ce/sonar2dojo/internal/database"
	"github.com/z4ce/sonar2dojo/internal/logging"
	"github.com/z4ce/sonar2dojo/internal/metrics"
	"github.com/z4ce/sonar2dojo/internal/sonar"
)

// ErrNoProjects is returned when discovery yields nothing to sync
var ErrNoProjects = errors.New("no SonarCloud projects found")

// Stages a project can fail at
const (
	StageProduct    = "product"
	StageEngagement = "engagement"
	StageTest       = "test"
	StageIssues     = "issues"
)

// SyncCommand copies the vulnerabilities of every SonarCloud project into
// DefectDojo, one product/engagement/test chain per project
type SyncCommand struct {
	cfg     *config.Config
	source  SourceInterface
	target  TargetInterface
	ledger  LedgerInterface
	metrics *metrics.Recorder
	log     *logging.Logger

	provisioner *Provisioner
	importer    *Importer

	// Now and NewRunID are replaceable in tests
	Now      func() time.Time
	NewRunID func() string

	run *database.Run
}

// NewSyncCommand creates a new sync command. ledger and recorder may be nil.
func NewSyncCommand(cfg *config.Config, source SourceInterface, target TargetInterface,
	ledger LedgerInterface, recorder *metrics.Recorder, log *logging.Logger) *SyncCommand {
	if log == nil {
		log = logging.Discard()
	}
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}
	c := &SyncCommand{
		cfg:         cfg,
		source:      source,
		target:      target,
		ledger:      ledger,
		metrics:     recorder,
		log:         log,
		provisioner: NewProvisioner(target, cfg, log.WithComponent("provision")),
		importer:    NewImporter(target, cfg, log.WithComponent("import")),
		Now:         time.Now,
		NewRunID:    uuid.NewString,
	}
	c.provisioner.Now = func() time.Time { return c.Now() }
	return c
}

// Run returns the totals of the last Execute call
func (c *SyncCommand) Run() *database.Run {
	return c.run
}

// Execute runs the sync. Per-project failures are logged and recorded; only
// an empty discovery is reported as an error.
func (c *SyncCommand) Execute() error {
	c.run = &database.Run{
		ID:           c.NewRunID(),
		Organization: c.cfg.Organization,
		StartedAt:    c.Now(),
	}
	c.log.Info("Starting sync %s for organization: %s", c.run.ID, c.cfg.Organization)
	if c.ledger != nil {
		if err := c.ledger.InsertRun(c.run); err != nil {
			c.log.Warn("Failed to record run %s: %v", c.run.ID, err)
		}
	}

	projects := c.discover()
	if len(projects) == 0 {
		c.finish()
		c.log.Error("No projects found in organization %s", c.cfg.Organization)
		return ErrNoProjects
	}
	c.log.Console("Found %d project(s) to sync", len(projects))

	for i, project := range projects {
		c.log.Console("[%d/%d] %s (%s)", i+1, len(projects), project.Name, project.Key)
		ps := c.syncProject(project)

		c.run.ProjectsTotal++
		if ps.Status == database.StatusFailed {
			c.run.ProjectsFailed++
		}
		c.metrics.ProjectDone(ps.Status)

		if c.ledger != nil {
			if err := c.ledger.InsertProjectSync(ps); err != nil {
				c.log.Warn("Failed to record outcome of %s: %v", project.Key, err)
			}
		}
	}

	c.finish()
	c.log.Console("Sync %s complete: %d project(s), %d failed, %d finding(s) uploaded, %d rejected",
		c.run.ID, c.run.ProjectsTotal, c.run.ProjectsFailed, c.run.FindingsUploaded, c.run.FindingsFailed)
	return nil
}

// discover lists the projects to sync. Listing errors are logged and treated
// as an empty organization.
func (c *SyncCommand) discover() []sonar.Project {
	if c.cfg.Project != "" {
		project, err := c.source.SearchProject(c.cfg.Project)
		if err != nil {
			c.log.Error("Failed to search project %s: %v", c.cfg.Project, err)
			return nil
		}
		if project == nil {
			c.log.Warn("Project %s not found in organization %s", c.cfg.Project, c.cfg.Organization)
			return nil
		}
		return []sonar.Project{*project}
	}

	projects, err := c.source.ListProjects()
	if err != nil {
		c.log.Error("Failed to list projects: %v", err)
		return nil
	}
	return projects
}

// syncProject provisions the DefectDojo chain for one project and imports
// its vulnerabilities. It stops at the first failing stage.
func (c *SyncCommand) syncProject(project sonar.Project) *database.ProjectSync {
	log := c.log.WithField("project", project.Key)
	ps := &database.ProjectSync{
		RunID:       c.run.ID,
		ProjectKey:  project.Key,
		ProjectName: project.Name,
		Status:      database.StatusFailed,
	}
	fail := func(stage string, err error) *database.ProjectSync {
		log.Error("Skipping %s, %s stage failed: %v", project.Name, stage, err)
		ps.FailedStage = stage
		ps.Error = err.Error()
		ps.SyncedAt = c.Now()
		return ps
	}

	product, err := c.provisioner.EnsureProduct(project.Name)
	if err != nil {
		return fail(StageProduct, err)
	}
	ps.ProductID = product.ID

	engagement, created, err := c.provisioner.CreateEngagement(product.ID, project.Name)
	if err != nil {
		return fail(StageEngagement, err)
	}
	ps.EngagementID = engagement.ID
	ps.EngagementCreated = created

	test, err := c.provisioner.CreateTest(engagement.ID, project.Name)
	if err != nil {
		return fail(StageTest, err)
	}
	ps.TestID = test.ID

	issues, err := c.source.ListVulnerabilities(project.Key)
	if err != nil {
		return fail(StageIssues, err)
	}
	ps.IssuesFound = len(issues)
	ps.SyncedAt = c.Now()

	if len(issues) == 0 {
		log.Info("No vulnerabilities in %s", project.Name)
		ps.Status = database.StatusNoIssues
		return ps
	}

	result := c.importer.Import(test.ID, project.Key, issues)
	c.record(project.Key, result)

	ps.FindingsUploaded = len(result.Uploaded)
	ps.Status = database.StatusSynced
	c.log.Console("  uploaded %d/%d finding(s) to test %d", len(result.Uploaded), len(issues), test.ID)
	return ps
}

// record adds an import batch to the run totals, the metrics and the ledger
func (c *SyncCommand) record(projectKey string, result ImportResult) {
	c.run.FindingsUploaded += len(result.Uploaded)
	c.run.FindingsFailed += result.Failed
	for i := 0; i < result.Failed; i++ {
		c.metrics.FindingFailed()
	}

	for _, uploaded := range result.Uploaded {
		c.metrics.FindingUploaded()
		if c.ledger == nil {
			continue
		}
		err := c.ledger.InsertFinding(&database.Finding{
			RunID:      c.run.ID,
			ProjectKey: projectKey,
			IssueKey:   uploaded.IssueKey,
			FindingID:  uploaded.FindingID,
			Severity:   uploaded.Severity.String(),
			UploadedAt: c.Now(),
		})
		if err != nil {
			c.log.Warn("Failed to record finding %d for issue %s: %v", uploaded.FindingID, uploaded.IssueKey, err)
		}
	}
}

func (c *SyncCommand) finish() {
	finished := c.Now()
	c.run.FinishedAt = &finished
	c.metrics.RunFinished(c.run.StartedAt, finished)

	if c.ledger != nil {
		if err := c.ledger.FinishRun(c.run); err != nil {
			c.log.Warn("Failed to record totals of run %s: %v", c.run.ID, err)
		}
	}
	if c.cfg.MetricsFile != "" {
		if err := c.metrics.WriteTextfile(c.cfg.MetricsFile); err != nil {
			c.log.Warn("Failed to write metrics to %s: %v", c.cfg.MetricsFile, err)
		}
	}
}
