// Package dbcopy backs up database-copy layouts to CSV and plans their
// restoration after a server rebuild.
package dbcopy

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/isometry/opx/internal/exchange"
)

// Record is one (database, copy-holding server) pair.
type Record struct {
	ServerName           string
	DBName               string
	ActivationPreference int
	ReplayLagTimes       string
	TruncationLagTimes   string
}

var header = []string{"ServerName", "DBName", "ActivationPreference", "ReplayLagTimes", "TruncationLagTimes"}

// FromCopyStatus converts copy-status rows into backup records, sorted by
// database then preference for stable files.
func FromCopyStatus(copies []exchange.DatabaseCopyStatus) []Record {
	records := make([]Record, 0, len(copies))
	for _, c := range copies {
		records = append(records, Record{
			ServerName:           c.MailboxServer,
			DBName:               c.DatabaseName,
			ActivationPreference: c.ActivationPreference,
			ReplayLagTimes:       c.ReplayLagTime,
			TruncationLagTimes:   c.TruncationLagTime,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].DBName != records[j].DBName {
			return records[i].DBName < records[j].DBName
		}
		return records[i].ActivationPreference < records[j].ActivationPreference
	})
	return records
}

// Write stores records as CSV with the canonical header.
func Write(path string, records []Record) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.ServerName,
			r.DBName,
			strconv.Itoa(r.ActivationPreference),
			r.ReplayLagTimes,
			r.TruncationLagTimes,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write record for %s: %w", r.DBName, err)
		}
	}
	w.Flush()
	return w.Error()
}

// Read loads a backup file, validating the header and every row.
func Read(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse backup file: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("backup file is empty")
	}
	for i, name := range header {
		if !strings.EqualFold(rows[0][i], name) {
			return nil, fmt.Errorf("unexpected column %q, want %q", rows[0][i], name)
		}
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		pref, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid activation preference %q", i+2, row[2])
		}
		records = append(records, Record{
			ServerName:           row[0],
			DBName:               row[1],
			ActivationPreference: pref,
			ReplayLagTimes:       row[3],
			TruncationLagTimes:   row[4],
		})
	}
	return records, nil
}

// RestoreAction is one copy re-add a recovered server needs.
type RestoreAction struct {
	Database             string
	Server               string
	ActivationPreference int
	ReplayLagTime        string
	TruncationLagTime    string
}

// PlanRestore selects the copies held by one server (short name or FQDN
// prefix match) and orders them by activation preference, so preferred
// copies are re-seeded first.
func PlanRestore(records []Record, server string) []RestoreAction {
	short := strings.SplitN(server, ".", 2)[0]

	var actions []RestoreAction
	for _, r := range records {
		if !strings.EqualFold(r.ServerName, server) && !strings.EqualFold(r.ServerName, short) {
			continue
		}
		actions = append(actions, RestoreAction{
			Database:             r.DBName,
			Server:               r.ServerName,
			ActivationPreference: r.ActivationPreference,
			ReplayLagTime:        r.ReplayLagTimes,
			TruncationLagTime:    r.TruncationLagTimes,
		})
	}
	sort.Slice(actions, func(i, j int) bool {
		if actions[i].ActivationPreference != actions[j].ActivationPreference {
			return actions[i].ActivationPreference < actions[j].ActivationPreference
		}
		return actions[i].Database < actions[j].Database
	})
	return actions
}
