package main

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/z4ce/sonar2dojo/internal/commands"
	"github.com/z4ce/sonar2dojo/internal/config"
	"github.com/z4ce/sonar2dojo/internal/database"
	"github.com/z4ce/sonar2dojo/internal/dojo"
	"github.com/z4ce/sonar2dojo/internal/logging"
	"github.com/z4ce/sonar2dojo/internal/metrics"
	"github.com/z4ce/sonar2dojo/internal/sonar"
)

func main() {
	log := logging.NewLogger(false, "sonar2dojo")
	if err := newCLI(log).rootCommand().Execute(); err != nil {
		if errors.Is(err, commands.ErrNoProjects) {
			log.Error("Nothing to sync: %v", err)
		} else {
			log.Error("%v", err)
		}
		os.Exit(1)
	}
}

// cli holds the flag values and the configuration resolved from them
type cli struct {
	log *logging.Logger
	cfg *config.Config

	configPath string
	overrides  overrides

	statusLimit int
	runID       string
	backupFile  string
}

// overrides are the flags that map onto config fields. Only flags set on
// the command line replace what the file and environment provided.
type overrides struct {
	sonarURL     string
	organization string
	sonarToken   string
	dojoURL      string
	dojoToken    string
	project      string
	productType  int
	testType     int
	foundBy      int
	reuse        bool
	dbPath       string
	backupPath   string
	metricsFile  string
	httpTimeout  time.Duration
	debug        bool
}

func newCLI(log *logging.Logger) *cli {
	return &cli{log: log}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "sonar2dojo",
		Short: "Copy SonarCloud vulnerabilities into DefectDojo",
		Long: `sonar2dojo reads the vulnerability issues of every project in a SonarCloud
organization and files them as findings in DefectDojo, one product per project
and a fresh engagement and test per run.

Settings come from --config (YAML), SONAR2DOJO_* environment variables and
flags, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig(cmd.Flags())
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&c.configPath, "config", "", "Path to a YAML config file")
	f.StringVar(&c.overrides.dojoURL, "dojo-url", "", "DefectDojo base URL")
	f.StringVar(&c.overrides.dojoToken, "dojo-token", "", "DefectDojo API token")
	f.StringVar(&c.overrides.dbPath, "db-path", config.DefaultDBPath, "Path to the SQLite sync ledger")
	f.StringVar(&c.overrides.backupPath, "backup-path", config.DefaultBackupPath, "Path to the backup directory")
	f.DurationVar(&c.overrides.httpTimeout, "http-timeout", config.DefaultHTTPTimeout, "HTTP client timeout (0 disables it)")
	f.BoolVar(&c.overrides.debug, "debug", false, "Enable debug output of HTTP requests and responses")

	root.AddCommand(c.syncCommand(), c.statusCommand(), c.rollbackCommand(), c.backupCommand(), c.restoreCommand())
	return root
}

func (c *cli) loadConfig(flags *pflag.FlagSet) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.overrides.apply(flags, cfg)
	c.cfg = cfg
	c.log.SetDebug(cfg.Debug)
	return nil
}

func (o *overrides) apply(flags *pflag.FlagSet, cfg *config.Config) {
	set := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}
	if set("sonar-url") {
		cfg.SonarURL = o.sonarURL
	}
	if set("organization") {
		cfg.Organization = o.organization
	}
	if set("sonar-token") {
		cfg.SonarToken = o.sonarToken
	}
	if set("dojo-url") {
		cfg.DojoURL = o.dojoURL
	}
	if set("dojo-token") {
		cfg.DojoToken = o.dojoToken
	}
	if set("project") {
		cfg.Project = o.project
	}
	if set("product-type") {
		cfg.ProductType = o.productType
	}
	if set("test-type") {
		cfg.TestType = o.testType
	}
	if set("found-by") {
		cfg.FoundBy = o.foundBy
	}
	if set("reuse-engagements") {
		cfg.ReuseEngagements = o.reuse
	}
	if set("db-path") {
		cfg.DBPath = o.dbPath
	}
	if set("backup-path") {
		cfg.BackupPath = o.backupPath
	}
	if set("metrics-file") {
		cfg.MetricsFile = o.metricsFile
	}
	if set("http-timeout") {
		cfg.HTTPTimeout = o.httpTimeout
	}
	if set("debug") {
		cfg.Debug = o.debug
	}
}

func (c *cli) syncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import the organization's vulnerabilities into DefectDojo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			ledger, err := database.New(c.cfg.DBPath)
			if err != nil {
				return err
			}
			defer ledger.Close()

			source := sonar.New(c.cfg, c.log.WithComponent("sonar"))
			target := dojo.New(c.cfg, c.log.WithComponent("dojo"))
			sync := commands.NewSyncCommand(c.cfg, source, target, ledger, metrics.NewRecorder(), c.log.WithComponent("sync"))
			return sync.Execute()
		},
	}

	f := cmd.Flags()
	f.StringVar(&c.overrides.sonarURL, "sonar-url", config.DefaultSonarURL, "SonarCloud base URL")
	f.StringVar(&c.overrides.organization, "organization", "", "SonarCloud organization key")
	f.StringVar(&c.overrides.sonarToken, "sonar-token", "", "SonarCloud API token")
	f.StringVar(&c.overrides.project, "project", "", "Only sync the project with this name")
	f.IntVar(&c.overrides.productType, "product-type", 1, "DefectDojo product type id for new products")
	f.IntVar(&c.overrides.testType, "test-type", 1, "DefectDojo test type id for new tests")
	f.IntVar(&c.overrides.foundBy, "found-by", 1, "DefectDojo test type id recorded as found_by")
	f.BoolVar(&c.overrides.reuse, "reuse-engagements", false, "Reuse one engagement per product and day")
	f.StringVar(&c.overrides.metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")
	return cmd
}

func (c *cli) statusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the most recent sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := database.New(c.cfg.DBPath)
			if err != nil {
				return err
			}
			defer ledger.Close()

			status := commands.NewStatusCommand(ledger, c.statusLimit, c.log.WithComponent("status"))
			status.SetOutput(cmd.OutOrStdout())
			return status.Execute()
		},
	}
	cmd.Flags().IntVar(&c.statusLimit, "limit", commands.DefaultStatusLimit, "Number of runs to show")
	return cmd
}

func (c *cli) rollbackCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Delete the engagements created by a sync run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.ValidateDojo(); err != nil {
				return err
			}
			ledger, err := database.New(c.cfg.DBPath)
			if err != nil {
				return err
			}
			defer ledger.Close()

			target := dojo.New(c.cfg, c.log.WithComponent("dojo"))
			return commands.NewRollbackCommand(ledger, target, c.runID, c.log.WithComponent("rollback")).Execute()
		},
	}
	cmd.Flags().StringVar(&c.runID, "run-id", "", "Id of the run to roll back (see status)")
	_ = cmd.MarkFlagRequired("run-id")
	return cmd
}

func (c *cli) backupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Copy the sync ledger into the backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.NewBackupCommand(c.cfg.DBPath, c.cfg.BackupPath, c.log.WithComponent("backup")).Execute()
		},
	}
}

func (c *cli) restoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace the sync ledger with a backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// the restore command closes the open ledger before replacing its file
			var ledger io.Closer
			if _, err := os.Stat(c.cfg.DBPath); err == nil {
				db, err := database.New(c.cfg.DBPath)
				if err != nil {
					return err
				}
				ledger = db
			}

			restore := commands.NewRestoreCommand(ledger, c.cfg.DBPath, c.cfg.BackupPath, c.backupFile, c.log.WithComponent("restore"))
			return restore.Execute()
		},
	}
	cmd.Flags().StringVar(&c.backupFile, "backup-file", "", "Backup to restore (defaults to the latest)")
	return cmd
}
