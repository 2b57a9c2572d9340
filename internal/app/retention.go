package app

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/nkoval/pgkeep/internal/storage/prunable"
)

// artifactPattern matches keys produced by ArtifactKey. The name capture is
// greedy, so a database name containing underscores still parses: the last
// two underscore-separated groups are always the timestamp.
var artifactPattern = regexp.MustCompile(`^backup_(.+)_(\d{8}_\d{6})\.sql\.gz$`)

// ParseArtifactKey extracts the database name and UTC creation time from an
// artifact key. ok is false for keys that are not backup artifacts.
func ParseArtifactKey(key string) (db string, createdAt time.Time, ok bool) {
	m := artifactPattern.FindStringSubmatch(key)
	if m == nil {
		return "", time.Time{}, false
	}
	ts, err := time.ParseInLocation(timestampLayout, m[2], time.UTC)
	if err != nil {
		return "", time.Time{}, false
	}
	return m[1], ts, true
}

// Sweep deletes artifacts of db older than maxAgeDays, judged by the
// timestamp embedded in the key rather than storage mtime. Keys that do not
// match the artifact pattern, or that belong to a different database, are
// left alone; "euem_db" never claims "euem_db_staging" artifacts. Individual
// delete failures are collected and the sweep continues.
func Sweep(ctx context.Context, store prunable.Prunable, db string, maxAgeDays int, now time.Time) ([]string, error) {
	if maxAgeDays <= 0 {
		return nil, nil
	}

	objects, err := store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%w: list artifacts: %v", ErrRetention, err)
	}

	cutoff := now.UTC().AddDate(0, 0, -maxAgeDays)

	var deleted []string
	var errs []error
	for _, obj := range objects {
		name, createdAt, ok := ParseArtifactKey(obj.Key)
		if !ok || name != db {
			continue
		}
		if !createdAt.Before(cutoff) {
			continue
		}
		if err := store.Delete(ctx, obj.Key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", obj.Key, err))
			continue
		}
		deleted = append(deleted, obj.Key)
	}

	if len(errs) > 0 {
		return deleted, fmt.Errorf("%w: %v", ErrRetention, errors.Join(errs...))
	}
	return deleted, nil
}
