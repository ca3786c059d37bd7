// Package backup keeps timestamped copies of scenario containers before
// they are overwritten, with retention policies that prune old copies.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// timeLayout is embedded in backup names; it sorts lexicographically.
const timeLayout = "20060102-150405.000000000"

// DefaultDir returns the default backup directory (~/.autoscene/backups/).
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".autoscene", "backups"), nil
}

// Name returns the backup file name for container path taken at t, e.g.
// "crossing.20261019-120000.000000000.kbs".
func Name(path string, t time.Time) string {
	return stem(path) + "." + t.UTC().Format(timeLayout) + ".kbs"
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Snapshot copies the container at path into dir. It returns "" without
// error when path does not exist yet.
func Snapshot(path, dir string, now time.Time) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer src.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	dst := filepath.Join(dir, Name(path, now))
	tmp, err := os.CreateTemp(dir, ".backup-*")
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to copy %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close backup file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to finalize backup: %w", err)
	}
	return dst, nil
}

// Policy returns the retention used when rotating: the keep newest
// backups, plus every backup younger than maxAge when maxAge is positive.
func Policy(keep int, maxAge time.Duration, now time.Time) RetentionPolicy {
	count := &CountPolicy{MaxCount: keep}
	if maxAge <= 0 {
		return count
	}
	return &CompositePolicy{Policies: []RetentionPolicy{
		count,
		&AgePolicy{MaxAge: maxAge, Now: func() time.Time { return now }},
	}}
}

// Rotate snapshots path into dir and then deletes the backups of the same
// container that policy does not keep.
func Rotate(path, dir string, policy RetentionPolicy, now time.Time) (created string, deleted []string, err error) {
	created, err = Snapshot(path, dir, now)
	if err != nil || created == "" {
		return created, nil, err
	}
	deleted, err = ApplyRetention(dir, path, policy)
	return created, deleted, err
}
