// Package migrations embeds the schema migration files and runs them against
// the local store at startup.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

//go:embed *.sql
var embeddedMigrations embed.FS

// Migration filename standard: 001_migration_name.up.sql / 001_migration_name.down.sql.
var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// Files returns the embedded migration file system.
func Files() fs.FS {
	return embeddedMigrations
}

// List returns the embedded migration filenames that conform to the naming
// standard, sorted lexicographically. Files outside the standard are left out
// of the list.
func List() ([]string, error) {
	entries, err := fs.ReadDir(embeddedMigrations, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		if filepath.Ext(filename) == ".sql" && migrationFilenameRegex.MatchString(filename) {
			files = append(files, filename)
		}
	}

	sort.Strings(files)

	return files, nil
}

// Validate checks that every migration has both an up and a down file and
// that sequence numbers are contiguous from 001.
func Validate() error {
	files, err := List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no embedded migration files found")
	}

	ups := make(map[string]bool)
	downs := make(map[string]bool)

	for _, file := range files {
		base := strings.TrimSuffix(strings.TrimSuffix(file, ".up.sql"), ".down.sql")
		if strings.HasSuffix(file, ".up.sql") {
			ups[base] = true
		} else {
			downs[base] = true
		}
	}

	for base := range ups {
		if !downs[base] {
			return fmt.Errorf("migration %s has no down file", base)
		}
	}

	for base := range downs {
		if !ups[base] {
			return fmt.Errorf("migration %s has no up file", base)
		}
	}

	for i := 1; i <= len(ups); i++ {
		prefix := fmt.Sprintf("%03d_", i)
		found := false

		for base := range ups {
			if strings.HasPrefix(base, prefix) {
				found = true

				break
			}
		}

		if !found {
			return fmt.Errorf("migration sequence gap: missing %s", prefix)
		}
	}

	return nil
}
