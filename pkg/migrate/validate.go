package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// dialectDirs are the per-driver subdirectories of the migrations root.
var dialectDirs = []string{"postgres", "sqlite"}

// ValidateDir checks every dialect directory under root and requires them to
// carry the same set of migration filenames.
func ValidateDir(root string) error {
	if root == "" {
		return fmt.Errorf("dir is required")
	}

	var reference []string
	for _, sub := range dialectDirs {
		names, err := validateDialectDir(filepath.Join(root, sub))
		if err != nil {
			return err
		}
		if reference == nil {
			reference = names
			continue
		}
		if missing := difference(reference, names); len(missing) > 0 {
			return fmt.Errorf("%s migrations missing in %s: %s", dialectDirs[0], sub, strings.Join(missing, ", "))
		}
		if extra := difference(names, reference); len(extra) > 0 {
			return fmt.Errorf("%s migrations missing in %s: %s", sub, dialectDirs[0], strings.Join(extra, ", "))
		}
	}
	return nil
}

// validateDialectDir checks filenames and goose headers and returns the
// migration filenames in version order.
func validateDialectDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return nil, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		full := filepath.Join(dir, name)
		b, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("read file %q: %w", full, err)
		}
		txt := string(b)
		if !strings.Contains(txt, "-- +goose Up") {
			return nil, fmt.Errorf("migration %q missing \"-- +goose Up\"", full)
		}
		if !strings.Contains(txt, "-- +goose Down") {
			return nil, fmt.Errorf("migration %q missing \"-- +goose Down\"", full)
		}
		names = append(names, name)
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("no migrations found in %q", dir)
	}
	sort.Strings(names)
	return names, nil
}

func difference(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, name := range b {
		inB[name] = struct{}{}
	}
	var out []string
	for _, name := range a {
		if _, ok := inB[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}
