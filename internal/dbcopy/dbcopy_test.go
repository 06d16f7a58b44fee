package dbcopy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/opx/internal/exchange"
)

func sampleCopies() []exchange.DatabaseCopyStatus {
	return []exchange.DatabaseCopyStatus{
		{DatabaseName: "DB2", MailboxServer: "EXCH02", ActivationPreference: 1, Status: "Mounted"},
		{DatabaseName: "DB1", MailboxServer: "EXCH02", ActivationPreference: 2, ReplayLagTime: "1.00:00:00", Status: "Healthy"},
		{DatabaseName: "DB1", MailboxServer: "EXCH01", ActivationPreference: 1, Status: "Mounted"},
	}
}

func TestFromCopyStatus_SortsByDatabaseThenPreference(t *testing.T) {
	records := FromCopyStatus(sampleCopies())
	require.Len(t, records, 3)

	assert.Equal(t, Record{ServerName: "EXCH01", DBName: "DB1", ActivationPreference: 1}, records[0])
	assert.Equal(t, "DB1", records[1].DBName)
	assert.Equal(t, 2, records[1].ActivationPreference)
	assert.Equal(t, "1.00:00:00", records[1].ReplayLagTimes)
	assert.Equal(t, "DB2", records[2].DBName)
}

func TestWriteRead_RoundTrip(t *testing.T) {
	records := FromCopyStatus(sampleCopies())
	path := filepath.Join(t.TempDir(), "copies.csv")

	require.NoError(t, Write(path, records))

	loaded, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, records, loaded)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ServerName,DBName,ActivationPreference,ReplayLagTimes,TruncationLagTimes")
}

func TestRead_RejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o640))
	_, err := Read(empty)
	assert.ErrorContains(t, err, "empty")

	wrongHeader := filepath.Join(dir, "wrong.csv")
	require.NoError(t, os.WriteFile(wrongHeader, []byte("A,B,C,D,E\n"), 0o640))
	_, err = Read(wrongHeader)
	assert.ErrorContains(t, err, "unexpected column")

	badPref := filepath.Join(dir, "badpref.csv")
	require.NoError(t, os.WriteFile(badPref,
		[]byte("ServerName,DBName,ActivationPreference,ReplayLagTimes,TruncationLagTimes\nEXCH01,DB1,first,,\n"), 0o640))
	_, err = Read(badPref)
	assert.ErrorContains(t, err, "invalid activation preference")
}

func TestPlanRestore(t *testing.T) {
	records := []Record{
		{ServerName: "EXCH02", DBName: "DB2", ActivationPreference: 2},
		{ServerName: "EXCH01", DBName: "DB1", ActivationPreference: 1},
		{ServerName: "EXCH02", DBName: "DB1", ActivationPreference: 2, ReplayLagTimes: "1.00:00:00"},
		{ServerName: "EXCH02", DBName: "DB3", ActivationPreference: 1},
	}

	actions := PlanRestore(records, "exch02.contoso.com")
	require.Len(t, actions, 3)

	// Preferred copies first, then alphabetical.
	assert.Equal(t, "DB3", actions[0].Database)
	assert.Equal(t, 1, actions[0].ActivationPreference)
	assert.Equal(t, "DB1", actions[1].Database)
	assert.Equal(t, "1.00:00:00", actions[1].ReplayLagTime)
	assert.Equal(t, "DB2", actions[2].Database)

	assert.Empty(t, PlanRestore(records, "exch09"))
}
