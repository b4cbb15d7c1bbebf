package u_io

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// CleanFilename removes potentially dangerous characters from filenames
func CleanFilename(filename string) string {
	// Replace any path separators
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")

	// Remove any other potentially dangerous characters
	filename = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '-' || r == '_' || r == ' ' {
			return r
		}
		return '_'
	}, filename)

	return strings.TrimSpace(filename)
}

// maxProbes bounds the collision loop so a pathological directory cannot spin
// forever.
const maxProbes = 10000

// CreateUnique writes data to the first candidate filename in dir that does
// not exist yet. Candidates are produced by candidate(n) for n = 0, 1, 2, ...
// and must be deterministic. Creation uses O_EXCL so the existence check and
// the create are atomic with respect to concurrent writers of the same
// directory.
func CreateUnique(dir string, candidate func(n int) string, data []byte) (string, error) {
	for n := 0; n < maxProbes; n++ {
		name := candidate(n)
		if name == "" {
			return "", fmt.Errorf("empty candidate filename at probe %d", n)
		}

		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return "", fmt.Errorf("failed to create %s: %w", path, err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("failed to write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to close %s: %w", path, err)
		}
		return path, nil
	}

	return "", fmt.Errorf("no unique filename found in %s after %d probes", dir, maxProbes)
}

// EnsureDir creates dir (and parents) if absent and verifies it is a
// directory.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists and is not a directory", dir)
	}
	return nil
}
