package commands

import (
	"github.com/z4ce/sonar2dojo/internal/database"
	"github.com/z4ce/sonar2dojo/internal/dojo"
	"github.com/z4ce/sonar2dojo/internal/sonar"
)

// SourceInterface defines the SonarCloud operations needed by the sync
type SourceInterface interface {
	ListProjects() ([]sonar.Project, error)
	SearchProject(name string) (*sonar.Project, error)
	ListVulnerabilities(projectKey string) ([]sonar.Issue, error)
}

// TargetInterface defines the DefectDojo operations needed by the commands
type TargetInterface interface {
	FindProduct(name string) (*dojo.Product, error)
	CreateProduct(product *dojo.Product) (*dojo.Product, error)
	FindEngagement(productID int, name string) (*dojo.Engagement, error)
	CreateEngagement(engagement *dojo.Engagement) (*dojo.Engagement, error)
	DeleteEngagement(id int) error
	CreateTest(test *dojo.Test) (*dojo.Test, error)
	CreateFinding(finding *dojo.Finding) (*dojo.Finding, error)
}

// LedgerInterface defines the sync ledger operations needed by the commands
type LedgerInterface interface {
	InsertRun(run *database.Run) error
	FinishRun(run *database.Run) error
	GetRun(id string) (*database.Run, error)
	GetRecentRuns(limit int) ([]*database.Run, error)
	InsertProjectSync(ps *database.ProjectSync) error
	GetProjectSyncsByRunID(runID string) ([]*database.ProjectSync, error)
	MarkProjectSyncRolledBack(id int64) error
	InsertFinding(f *database.Finding) error
	CountFindingsByRunID(runID string) (int, error)
	Close() error
}
