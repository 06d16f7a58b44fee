package oplog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Filter narrows records returned by Read.
type Filter struct {
	Level     Level  // only rows of this level; empty matches all
	Cmdlet    string // only rows from this command; empty matches all
	CallingID string // only rows of this session; empty matches all
}

// Read parses a log file, applying the filter. Malformed rows are skipped
// rather than failing the whole read; operators inspect logs while the
// writer may still be appending.
func Read(path string, filter Filter) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if first {
			first = false
			if line == Header {
				continue
			}
		}
		if line == "" {
			continue
		}

		rec, err := ParseRecord(line)
		if err != nil {
			continue
		}
		if filter.Level != "" && rec.Level != filter.Level {
			continue
		}
		if filter.Cmdlet != "" && !strings.EqualFold(rec.CallingCmdlet, filter.Cmdlet) {
			continue
		}
		if filter.CallingID != "" && rec.CallingID != filter.CallingID {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	return records, nil
}

// LatestFile returns the newest log file for the given user under root, or
// an empty string when none exists.
func LatestFile(root, userName string) string {
	dir := filepath.Join(root, sanitizeComponent(userName))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "opx-") && strings.HasSuffix(name, ".log") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}

	// File names embed the date, so lexical order is chronological.
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1])
}
