package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/z4ce/sonar2dojo/internal/config"
	"github.com/z4ce/sonar2dojo/internal/dojo"
	"github.com/z4ce/sonar2dojo/internal/logging"
	"github.com/z4ce/sonar2dojo/internal/severity"
	"github.com/z4ce/sonar2dojo/internal/sonar"
)

// UploadedFinding links a Sonar issue to the finding created for it
type UploadedFinding struct {
	IssueKey  string
	FindingID int
	Severity  severity.Level
}

// ImportResult summarizes one import batch
type ImportResult struct {
	Uploaded []UploadedFinding
	Failed   int
}

// Importer uploads Sonar issues as DefectDojo findings
type Importer struct {
	client TargetInterface
	cfg    *config.Config
	log    *logging.Logger
}

// NewImporter creates a new importer
func NewImporter(client TargetInterface, cfg *config.Config, log *logging.Logger) *Importer {
	if log == nil {
		log = logging.Discard()
	}
	return &Importer{client: client, cfg: cfg, log: log}
}

// Import submits one finding per issue into the test. A rejected finding is
// logged and counted; the rest of the batch is still attempted.
func (i *Importer) Import(testID int, projectKey string, issues []sonar.Issue) ImportResult {
	var result ImportResult
	for n, issue := range issues {
		finding := BuildFinding(issue, projectKey, testID, i.cfg.FoundBy)

		created, err := i.client.CreateFinding(finding)
		if err != nil {
			i.log.Warn("Failed to upload issue %d/%d (%s): %v", n+1, len(issues), issue.Key, err)
			result.Failed++
			continue
		}

		result.Uploaded = append(result.Uploaded, UploadedFinding{
			IssueKey:  issue.Key,
			FindingID: created.ID,
			Severity:  severity.Level(finding.Severity),
		})
	}
	return result
}

// BuildFinding maps a Sonar issue onto a DefectDojo finding
func BuildFinding(issue sonar.Issue, projectKey string, testID, foundBy int) *dojo.Finding {
	level := severity.FromSonar(issue.Severity)
	if issue.Project != "" {
		projectKey = issue.Project
	}
	path := componentPath(issue.Component, projectKey)

	title := issue.Message
	if title == "" {
		title = "SonarCloud issue " + issue.Key
	}

	return &dojo.Finding{
		Title:             title,
		Severity:          level.String(),
		NumericalSeverity: strconv.Itoa(level.Numerical()),
		Description:       describe(issue, path),
		Test:              testID,
		FoundBy:           []int{foundBy},
		Active:            true,
		Verified:          false,
		StaticFinding:     true,
		FilePath:          path,
		Line:              issue.Line,
		UniqueIDFromTool:  issue.Key,
	}
}

func describe(issue sonar.Issue, path string) string {
	message := issue.Message
	if message == "" {
		message = "No description"
	}

	line := "-"
	if issue.Line > 0 {
		line = strconv.Itoa(issue.Line)
	}

	var b strings.Builder
	b.WriteString(message)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "**File:** %s\n", path)
	fmt.Fprintf(&b, "**Line:** %s\n", line)
	fmt.Fprintf(&b, "**SonarCloud issue:** %s", issue.Key)
	if issue.Rule != "" {
		fmt.Fprintf(&b, "\n**Rule:** %s", issue.Rule)
	}
	return b.String()
}

// componentPath strips the "<project key>:" prefix Sonar puts on component keys
func componentPath(component, projectKey string) string {
	if projectKey != "" && strings.HasPrefix(component, projectKey+":") {
		return strings.TrimPrefix(component, projectKey+":")
	}
	if _, path, ok := strings.Cut(component, ":"); ok {
		return path
	}
	return component
}
