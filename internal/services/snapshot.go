// Package services snapshots Windows service startup types to JSON and
// plans their restoration.
package services

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/isometry/opx/internal/exchange"
)

// Snapshot is a point-in-time record of a server's services.
type Snapshot struct {
	Server   string             `json:"Server"`
	Taken    string             `json:"Taken"` // RFC 3339
	Services []exchange.Service `json:"Services"`
}

// New builds a snapshot, sorted by service name. Only Exchange-relevant
// services are kept when filter is true.
func New(server, taken string, services []exchange.Service, filter bool) *Snapshot {
	kept := make([]exchange.Service, 0, len(services))
	for _, s := range services {
		if filter && !relevant(s.Name) {
			continue
		}
		kept = append(kept, s)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Name < kept[j].Name })
	return &Snapshot{Server: server, Taken: taken, Services: kept}
}

// relevant matches the Exchange service families plus their IIS and
// search dependencies.
func relevant(name string) bool {
	prefixes := []string{"MSExchange", "HostControllerService", "W3SVC", "WAS", "IISAdmin"}
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) || strings.EqualFold(name, p) {
			return true
		}
	}
	return false
}

// Save writes the snapshot as indented JSON.
func (s *Snapshot) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o640); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if len(s.Services) == 0 {
		return nil, fmt.Errorf("snapshot contains no services")
	}
	return &s, nil
}

// RestorePlan computes the startup-type changes needed to bring current
// services back to the snapshot. Services missing from current are
// skipped; status differences alone do not produce a change.
func (s *Snapshot) RestorePlan(current []exchange.Service) []exchange.SetServiceOptions {
	byName := make(map[string]exchange.Service, len(current))
	for _, c := range current {
		byName[c.Name] = c
	}

	var plan []exchange.SetServiceOptions
	for _, want := range s.Services {
		have, ok := byName[want.Name]
		if !ok || have.StartType == want.StartType {
			continue
		}
		plan = append(plan, exchange.SetServiceOptions{
			Server:    s.Server,
			Name:      want.Name,
			StartType: want.StartType,
		})
	}
	return plan
}
