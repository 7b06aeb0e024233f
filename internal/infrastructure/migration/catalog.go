package migration

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const versionLayout = "20060102150405"

// Migration is one up/down pair of a migration set.
type Migration struct {
	Version uint64
	Name    string
	HasDown bool
	base    string
}

// Base is the file name shared by both halves, without direction and extension.
func (m Migration) Base() string { return m.base }

// List reads the up migrations of fsys ordered by version. A missing
// directory is an empty set. Files that are not NNN_name.up.sql are ignored.
func List(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var set []Migration
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), ".up.sql")
		if e.IsDir() || !ok {
			continue
		}
		m, err := parseBase(base)
		if err != nil {
			return nil, err
		}
		_, statErr := fs.Stat(fsys, base+".down.sql")
		m.HasDown = statErr == nil
		set = append(set, m)
	}
	slices.SortFunc(set, func(a, b Migration) int {
		return cmp.Or(cmp.Compare(a.Version, b.Version), strings.Compare(a.Name, b.Name))
	})
	return set, nil
}

func parseBase(base string) (Migration, error) {
	prefix, name, _ := strings.Cut(base, "_")
	version, err := strconv.ParseUint(prefix, 10, 64)
	if err != nil || name == "" {
		return Migration{}, fmt.Errorf("migration %q: want <version>_<name>", base)
	}
	return Migration{Version: version, Name: name, base: base}, nil
}

// Validate checks that every migration has a down half and a unique version.
func Validate(fsys fs.FS) error {
	set, err := List(fsys)
	if err != nil {
		return err
	}
	var errs []error
	for i, m := range set {
		if !m.HasDown {
			errs = append(errs, fmt.Errorf("migration %s has no down file", m.Base()))
		}
		if i > 0 && set[i-1].Version == m.Version {
			errs = append(errs, fmt.Errorf("migrations %s and %s share version %d", set[i-1].Base(), m.Base(), m.Version))
		}
	}
	return errors.Join(errs...)
}

// Scaffold writes an empty up/down pair to dir, versioned by now.
func Scaffold(dir, name, description string, now time.Time) (up, down string, err error) {
	slug := Slug(name)
	if slug == "" {
		return "", "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create %s: %w", dir, err)
	}

	base := filepath.Join(dir, now.UTC().Format(versionLayout)+"_"+slug)
	header := fmt.Sprintf("-- %s\n-- Created: %s\n", name, now.UTC().Format(time.RFC3339))
	if description != "" {
		header += "-- " + description + "\n"
	}

	up, down = base+".up.sql", base+".down.sql"
	if err := writeNew(up, header+"\n"); err != nil {
		return "", "", err
	}
	if err := writeNew(down, header+"-- Reverts the up migration.\n\n"); err != nil {
		_ = os.Remove(up)
		return "", "", err
	}
	return up, down, nil
}

func writeNew(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	_, werr := f.WriteString(content)
	return errors.Join(werr, f.Close())
}

// Slug lowercases name and joins its alphanumeric words with underscores.
func Slug(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	})
	parts := words[:0]
	for _, w := range words {
		w = strings.Map(func(r rune) rune {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				return unicode.ToLower(r)
			}
			return -1
		}, w)
		if w != "" {
			parts = append(parts, w)
		}
	}
	return strings.Join(parts, "_")
}
