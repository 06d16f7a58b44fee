package services

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/opx/internal/exchange"
)

func sampleServices() []exchange.Service {
	return []exchange.Service{
		{Name: "MSExchangeTransport", DisplayName: "Microsoft Exchange Transport", StartType: "Automatic", Status: "Running"},
		{Name: "MSExchangeIS", DisplayName: "Microsoft Exchange Information Store", StartType: "Automatic", Status: "Running"},
		{Name: "W3SVC", DisplayName: "World Wide Web Publishing Service", StartType: "Automatic", Status: "Running"},
		{Name: "Spooler", DisplayName: "Print Spooler", StartType: "Disabled", Status: "Stopped"},
	}
}

func TestNew_FiltersAndSorts(t *testing.T) {
	snap := New("exch01.contoso.com", "2025-03-14T10:00:00Z", sampleServices(), true)

	require.Len(t, snap.Services, 3)
	assert.Equal(t, "MSExchangeIS", snap.Services[0].Name)
	assert.Equal(t, "MSExchangeTransport", snap.Services[1].Name)
	assert.Equal(t, "W3SVC", snap.Services[2].Name)

	unfiltered := New("exch01.contoso.com", "2025-03-14T10:00:00Z", sampleServices(), false)
	assert.Len(t, unfiltered.Services, 4)
}

func TestSnapshot_SaveLoadRoundTrip(t *testing.T) {
	snap := New("exch01.contoso.com", "2025-03-14T10:00:00Z", sampleServices(), true)
	path := filepath.Join(t.TempDir(), "services.json")

	require.NoError(t, snap.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)
}

func TestLoad_EmptySnapshot(t *testing.T) {
	snap := &Snapshot{Server: "exch01"}
	path := filepath.Join(t.TempDir(), "services.json")
	require.NoError(t, snap.Save(path))

	_, err := Load(path)
	assert.ErrorContains(t, err, "no services")
}

func TestRestorePlan(t *testing.T) {
	snap := New("exch01.contoso.com", "2025-03-14T10:00:00Z", sampleServices(), true)

	current := []exchange.Service{
		// Changed during maintenance.
		{Name: "MSExchangeTransport", StartType: "Disabled", Status: "Stopped"},
		// Unchanged startup type, different status: no action.
		{Name: "MSExchangeIS", StartType: "Automatic", Status: "Stopped"},
		// Not in the snapshot's filtered set.
		{Name: "Spooler", StartType: "Automatic", Status: "Running"},
	}

	plan := snap.RestorePlan(current)
	require.Len(t, plan, 1)
	assert.Equal(t, exchange.SetServiceOptions{
		Server:    "exch01.contoso.com",
		Name:      "MSExchangeTransport",
		StartType: "Automatic",
	}, plan[0])
}
