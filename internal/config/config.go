package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSonarURL    = "https://sonarcloud.io"
	DefaultDBPath      = "./sonar2dojo.db"
	DefaultBackupPath  = "./backups"
	DefaultHTTPTimeout = 30 * time.Second

	envPrefix = "SONAR2DOJO_"
)

// Config holds every setting the tool needs. It is built once at startup
// and handed to each collaborator by pointer.
type Config struct {
	SonarURL     string `yaml:"sonar_url"`
	Organization string `yaml:"organization"`
	SonarToken   string `yaml:"sonar_token"`

	DojoURL   string `yaml:"dojo_url"`
	DojoToken string `yaml:"dojo_token"`

	// Project restricts a sync to the single SonarCloud project with this name.
	Project string `yaml:"project"`

	ProductType      int  `yaml:"product_type"`
	TestType         int  `yaml:"test_type"`
	FoundBy          int  `yaml:"found_by"`
	ReuseEngagements bool `yaml:"reuse_engagements"`

	DBPath      string        `yaml:"db_path"`
	BackupPath  string        `yaml:"backup_path"`
	MetricsFile string        `yaml:"metrics_file"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	Debug       bool          `yaml:"debug"`
}

// Default returns a configuration populated with defaults only
func Default() *Config {
	return &Config{
		SonarURL:    DefaultSonarURL,
		ProductType: 1,
		TestType:    1,
		FoundBy:     1,
		DBPath:      DefaultDBPath,
		BackupPath:  DefaultBackupPath,
		HTTPTimeout: DefaultHTTPTimeout,
	}
}

// Load builds a configuration from defaults, an optional YAML file and the
// environment, in that order of precedence. Flags are applied by the caller.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
			}
			*dst = n
		}
		return nil
	}
	flag := func(name string, dst *bool) error {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
			}
			*dst = b
		}
		return nil
	}

	// Token names used by the upstream tools' own CLIs.
	if v, ok := lookup("SONARCLOUD_TOKEN"); ok && v != "" {
		c.SonarToken = v
	}
	if v, ok := lookup("DEFECTDOJO_TOKEN"); ok && v != "" {
		c.DojoToken = v
	}

	str("SONAR_URL", &c.SonarURL)
	str("ORGANIZATION", &c.Organization)
	str("SONAR_TOKEN", &c.SonarToken)
	str("DOJO_URL", &c.DojoURL)
	str("DOJO_TOKEN", &c.DojoToken)
	str("PROJECT", &c.Project)
	str("DB_PATH", &c.DBPath)
	str("BACKUP_PATH", &c.BackupPath)
	str("METRICS_FILE", &c.MetricsFile)

	for name, dst := range map[string]*int{
		"PRODUCT_TYPE": &c.ProductType,
		"TEST_TYPE":    &c.TestType,
		"FOUND_BY":     &c.FoundBy,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}

	if err := flag("REUSE_ENGAGEMENTS", &c.ReuseEngagements); err != nil {
		return err
	}
	if err := flag("DEBUG", &c.Debug); err != nil {
		return err
	}

	if v, ok := lookup(envPrefix + "HTTP_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sHTTP_TIMEOUT: %w", envPrefix, err)
		}
		c.HTTPTimeout = d
	}

	return nil
}

// Validate checks the settings required by a full sync
func (c *Config) Validate() error {
	var missing []string
	if c.Organization == "" {
		missing = append(missing, "organization")
	}
	if c.SonarToken == "" {
		missing = append(missing, "sonar-token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.SonarURL == "" {
		return fmt.Errorf("sonar-url must not be empty")
	}
	return c.ValidateDojo()
}

// ValidateDojo checks only the DefectDojo settings
func (c *Config) ValidateDojo() error {
	var missing []string
	if c.DojoURL == "" {
		missing = append(missing, "dojo-url")
	}
	if c.DojoToken == "" {
		missing = append(missing, "dojo-token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.ProductType <= 0 || c.TestType <= 0 || c.FoundBy <= 0 {
		return fmt.Errorf("product-type, test-type and found-by must be positive ids")
	}
	return nil
}
