package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/z4ce/sonar2dojo/internal/logging"
)

const backupTimestamp = "20060102-150405"

// BackupCommand copies the ledger file into the backup directory
type BackupCommand struct {
	dbPath     string
	backupPath string
	log        *logging.Logger

	Now func() time.Time
}

// NewBackupCommand creates a new backup command
func NewBackupCommand(dbPath, backupPath string, log *logging.Logger) *BackupCommand {
	if log == nil {
		log = logging.Discard()
	}
	return &BackupCommand{
		dbPath:     dbPath,
		backupPath: backupPath,
		log:        log,
		Now:        time.Now,
	}
}

// Execute runs the backup command
func (c *BackupCommand) Execute() error {
	_, err := c.Backup()
	return err
}

// Backup copies the ledger and returns the path of the copy
func (c *BackupCommand) Backup() (string, error) {
	c.log.Info("Starting ledger backup from %s", c.dbPath)

	if err := os.MkdirAll(c.backupPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	backupFile := filepath.Join(c.backupPath, fmt.Sprintf("sonar2dojo-%s.db", c.Now().Format(backupTimestamp)))
	if err := copyFile(c.dbPath, backupFile); err != nil {
		return "", fmt.Errorf("failed to copy ledger to backup: %w", err)
	}

	c.log.Console("Backup created at: %s", backupFile)
	return backupFile, nil
}

// RestoreCommand replaces the ledger with a backup copy
type RestoreCommand struct {
	ledger     io.Closer
	dbPath     string
	backupPath string
	backupFile string
	log        *logging.Logger

	Now func() time.Time
}

// NewRestoreCommand creates a new restore command. ledger is the open ledger
// connection, closed before the file is replaced; it may be nil.
func NewRestoreCommand(ledger io.Closer, dbPath, backupPath, backupFile string, log *logging.Logger) *RestoreCommand {
	if log == nil {
		log = logging.Discard()
	}
	return &RestoreCommand{
		ledger:     ledger,
		dbPath:     dbPath,
		backupPath: backupPath,
		backupFile: backupFile,
		log:        log,
		Now:        time.Now,
	}
}

// Execute runs the restore command
func (c *RestoreCommand) Execute() error {
	if c.ledger != nil {
		if err := c.ledger.Close(); err != nil {
			c.log.Warn("Failed to close ledger connection: %v", err)
		}
	}

	sourceFile := c.backupFile
	if sourceFile == "" {
		var err error
		sourceFile, err = c.findLatestBackup()
		if err != nil {
			return err
		}
	} else if !filepath.IsAbs(sourceFile) && !strings.ContainsRune(sourceFile, filepath.Separator) {
		sourceFile = filepath.Join(c.backupPath, sourceFile)
	}

	if _, err := os.Stat(sourceFile); err != nil {
		return fmt.Errorf("backup file %s is not readable: %w", sourceFile, err)
	}
	c.log.Info("Restoring ledger from backup: %s", sourceFile)

	currentBackup := ""
	if _, err := os.Stat(c.dbPath); err == nil {
		currentBackup = fmt.Sprintf("%s.before-restore.%s", c.dbPath, c.Now().Format(backupTimestamp))
		if err := copyFile(c.dbPath, currentBackup); err != nil {
			return fmt.Errorf("failed to back up current ledger: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to inspect current ledger: %w", err)
	}

	if err := copyFile(sourceFile, c.dbPath); err != nil {
		return fmt.Errorf("failed to restore ledger: %w", err)
	}

	c.log.Console("Ledger restored from: %s", sourceFile)
	if currentBackup != "" {
		c.log.Console("Previous ledger backed up to: %s", currentBackup)
	}
	return nil
}

// findLatestBackup finds the most recent backup file
func (c *RestoreCommand) findLatestBackup() (string, error) {
	files, err := os.ReadDir(c.backupPath)
	if err != nil {
		return "", fmt.Errorf("failed to read backup directory: %w", err)
	}

	var latest string
	var latestTime time.Time
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".db" {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestTime) {
			latest = filepath.Join(c.backupPath, file.Name())
			latestTime = info.ModTime()
		}
	}

	if latest == "" {
		return "", fmt.Errorf("no backup files found in %s", c.backupPath)
	}
	return latest, nil
}

func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		destFile.Close()
		return err
	}
	return destFile.Close()
}
