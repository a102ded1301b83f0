package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	gooseUp   = "-- +goose Up"
	gooseDown = "-- +goose Down"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ledgerRewrites are statements that would edit posted ledger history. The
// append-only trigger rejects the first three at runtime; the validator
// catches them, and attempts to switch the trigger off, before deploy.
var ledgerRewrites = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bUPDATE\s+(ONLY\s+)?ledger_entries\b`),
	regexp.MustCompile(`(?i)\bDELETE\s+FROM\s+(ONLY\s+)?ledger_entries\b`),
	regexp.MustCompile(`(?i)\bTRUNCATE\s+(TABLE\s+)?(ONLY\s+)?ledger_entries\b`),
	regexp.MustCompile(`(?i)\bALTER\s+TABLE\s+(ONLY\s+)?ledger_entries\s+DISABLE\s+TRIGGER\b`),
}

// ValidateDir checks every .sql file in dir: a YYYYMMDDHHMMSS_name.sql
// filename with a unique version, both goose sections, and an Up section
// that leaves existing ledger entries untouched.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	versions := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := versions[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		versions[m[1]] = name

		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read file %q: %w", name, err)
		}
		if err := validateSQL(name, string(b)); err != nil {
			return err
		}
	}
	return nil
}

func validateSQL(name, txt string) error {
	upAt := strings.Index(txt, gooseUp)
	if upAt < 0 {
		return fmt.Errorf("migration %q missing %q", name, gooseUp)
	}
	downAt := strings.Index(txt, gooseDown)
	if downAt < 0 {
		return fmt.Errorf("migration %q missing %q", name, gooseDown)
	}
	if downAt < upAt {
		return fmt.Errorf("migration %q has its Down section before Up", name)
	}

	up := txt[upAt:downAt]
	for _, re := range ledgerRewrites {
		if stmt := re.FindString(up); stmt != "" {
			return fmt.Errorf("migration %q rewrites ledger history (%s); post a correcting entry instead", name, stmt)
		}
	}
	return nil
}
