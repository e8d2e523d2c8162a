// Package walfs implements the on-disk archive directory layout, WAL
// segment classification, and the polymorphic file abstraction over
// plain, gzip, zstd, and piped-external-process storage.
package walfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
)

const (
	baseDirName   = "base"
	logDirName    = "log"
	signatureName = "PG_BACKUP_CTL_INFO"
)

// Layout wraps one archive's root directory ('s on-disk layout:
// <archive_dir>/{PG_BACKUP_CTL_INFO, base/, log/}).
type Layout struct {
	Root string
}

// NewLayout creates base/ and log/ under root if they don't already
// exist.
func NewLayout(root string) (*Layout, error) {
	l := &Layout{Root: root}
	for _, dir := range []string{l.BaseDir(), l.LogDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.Archive("create archive layout", err)
		}
	}
	return l, nil
}

// BaseDir is the directory holding one subdirectory per base backup.
func (l *Layout) BaseDir() string { return filepath.Join(l.Root, baseDirName) }

// LogDir is the directory holding WAL segment and history files.
func (l *Layout) LogDir() string { return filepath.Join(l.Root, logDirName) }

// BackupDir returns the directory for a single base backup, named by its
// fsentry label.
func (l *Layout) BackupDir(fsentry string) string { return filepath.Join(l.BaseDir(), fsentry) }

// SignaturePath is the root-level verification file.
func (l *Layout) SignaturePath() string { return filepath.Join(l.Root, signatureName) }

// WriteSignature writes "<catalogMagic> | <timestamp>" to the signature
// file, overwriting any previous contents — called on every VERIFY
// ARCHIVE.
func (l *Layout) WriteSignature(catalogMagic string, at time.Time) error {
	content := fmt.Sprintf("%s | %s", catalogMagic, at.UTC().Format(time.RFC3339))
	if err := os.WriteFile(l.SignaturePath(), []byte(content), 0o644); err != nil {
		return apperrors.Archive("write signature file", err)
	}
	return nil
}

// ReadSignature parses the signature file back into its magic and
// timestamp components.
func (l *Layout) ReadSignature() (magic string, at time.Time, err error) {
	data, err := os.ReadFile(l.SignaturePath())
	if err != nil {
		return "", time.Time{}, apperrors.Archive("read signature file", err)
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return "", time.Time{}, apperrors.Archive("read signature file", fmt.Errorf("malformed signature file content %q", data))
	}
	magic = strings.TrimSpace(parts[0])
	at, err = time.Parse(time.RFC3339, strings.TrimSpace(parts[1]))
	if err != nil {
		return "", time.Time{}, apperrors.Archive("read signature file", fmt.Errorf("malformed verification timestamp: %w", err))
	}
	return magic, at, nil
}

// RemoveBackupDir unlinks one base backup's directory subtree. Satisfies
// retention.ArchiveFS.
func (l *Layout) RemoveBackupDir(fsentry string) error {
	if fsentry == "" {
		return nil
	}
	if err := os.RemoveAll(l.BackupDir(fsentry)); err != nil {
		return apperrors.Archive("remove backup directory", err)
	}
	return nil
}
