package commands

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/z4ce/sonar2dojo/internal/database"
	"github.com/z4ce/sonar2dojo/internal/logging"
)

// RollbackCommand undoes a sync run in DefectDojo.
// It deletes every engagement the run created, which takes the run's tests
// and findings with it. Products and reused engagements are left alone.
type RollbackCommand struct {
	ledger LedgerInterface
	target TargetInterface
	runID  string
	log    *logging.Logger

	deleted int
	failed  int
}

// NewRollbackCommand creates a new rollback command
func NewRollbackCommand(ledger LedgerInterface, target TargetInterface, runID string, log *logging.Logger) *RollbackCommand {
	if log == nil {
		log = logging.Discard()
	}
	return &RollbackCommand{
		ledger: ledger,
		target: target,
		runID:  runID,
		log:    log,
	}
}

// Execute runs the rollback command
func (c *RollbackCommand) Execute() error {
	if c.runID == "" {
		return errors.New("a run id is required")
	}

	run, err := c.ledger.GetRun(c.runID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("run %s not found in the ledger", c.runID)
	}
	if err != nil {
		return fmt.Errorf("failed to get run %s: %w", c.runID, err)
	}
	c.log.Info("Starting rollback of run %s for organization: %s", run.ID, run.Organization)

	syncs, err := c.ledger.GetProjectSyncsByRunID(run.ID)
	if err != nil {
		return fmt.Errorf("failed to get project outcomes: %w", err)
	}

	for _, ps := range syncs {
		if ps.Status == database.StatusRolledBack || ps.EngagementID == 0 {
			continue
		}
		if !ps.EngagementCreated {
			c.log.Info("Keeping reused engagement %d of %s", ps.EngagementID, ps.ProjectName)
			continue
		}

		c.log.Info("Deleting engagement %d of %s", ps.EngagementID, ps.ProjectName)
		if err := c.target.DeleteEngagement(ps.EngagementID); err != nil {
			c.log.Warn("Failed to delete engagement %d: %v", ps.EngagementID, err)
			c.failed++
			continue
		}
		c.deleted++

		if err := c.ledger.MarkProjectSyncRolledBack(ps.ID); err != nil {
			c.log.Warn("Failed to mark %s as rolled back: %v", ps.ProjectName, err)
		}
	}

	c.log.Console("Rollback of run %s complete: %d engagement(s) deleted, %d failed", run.ID, c.deleted, c.failed)
	return nil
}

// Deleted returns how many engagements the last Execute removed
func (c *RollbackCommand) Deleted() int {
	return c.deleted
}
