package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/z4ce/sonar2dojo/internal/database"
	"github.com/z4ce/sonar2dojo/internal/logging"
)

// DefaultStatusLimit is how many runs status shows when no limit is given
const DefaultStatusLimit = 10

// StatusCommand prints the most recent sync runs recorded in the ledger
type StatusCommand struct {
	ledger LedgerInterface
	limit  int
	out    io.Writer
	log    *logging.Logger
}

// NewStatusCommand creates a new status command writing to stdout
func NewStatusCommand(ledger LedgerInterface, limit int, log *logging.Logger) *StatusCommand {
	if limit <= 0 {
		limit = DefaultStatusLimit
	}
	if log == nil {
		log = logging.Discard()
	}
	return &StatusCommand{ledger: ledger, limit: limit, out: os.Stdout, log: log}
}

// SetOutput redirects the report
func (c *StatusCommand) SetOutput(w io.Writer) {
	c.out = w
}

// Execute runs the status command
func (c *StatusCommand) Execute() error {
	runs, err := c.ledger.GetRecentRuns(c.limit)
	if err != nil {
		return fmt.Errorf("failed to get runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "No sync runs recorded yet.")
		return nil
	}

	for _, run := range runs {
		syncs, err := c.ledger.GetProjectSyncsByRunID(run.ID)
		if err != nil {
			return fmt.Errorf("failed to get project outcomes for run %s: %w", run.ID, err)
		}
		recorded, err := c.ledger.CountFindingsByRunID(run.ID)
		if err != nil {
			return fmt.Errorf("failed to count findings for run %s: %w", run.ID, err)
		}
		c.printRun(run, syncs, recorded)
	}
	return nil
}

func (c *StatusCommand) printRun(run *database.Run, syncs []*database.ProjectSync, recorded int) {
	finished := "unfinished"
	if run.FinishedAt != nil {
		finished = run.FinishedAt.Format("2006-01-02 15:04:05")
	}

	fmt.Fprintf(c.out, "Run %s (%s)\n", run.ID, run.Organization)
	fmt.Fprintf(c.out, "  Started:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(c.out, "  Finished: %s\n", finished)
	fmt.Fprintf(c.out, "  Projects: %d (%d failed)\n", run.ProjectsTotal, run.ProjectsFailed)
	fmt.Fprintf(c.out, "  Findings: %d uploaded, %d rejected, %d in ledger\n", run.FindingsUploaded, run.FindingsFailed, recorded)

	if len(syncs) > 0 {
		w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  PROJECT\tSTATUS\tISSUES\tUPLOADED\tENGAGEMENT\tDETAIL")
		for _, ps := range syncs {
			detail := ""
			if ps.Status == database.StatusFailed {
				detail = ps.FailedStage + ": " + ps.Error
			}
			fmt.Fprintf(w, "  %s\t%s\t%d\t%d\t%d\t%s\n",
				ps.ProjectName, ps.Status, ps.IssuesFound, ps.FindingsUploaded, ps.EngagementID, detail)
		}
		w.Flush()
	}
	fmt.Fprintln(c.out)
}
