package session

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/opx/internal/config"
	"github.com/isometry/opx/internal/directory"
	"github.com/isometry/opx/internal/oplog"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()

	cfg := &config.Config{}
	cfg.Log.Dir = t.TempDir()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s, err := New(cfg, logger)
	require.NoError(t, err)
	return s
}

func TestNew_SessionIdentity(t *testing.T) {
	s := newTestSession(t)

	assert.NotEmpty(t, s.CallingID)
	assert.NotEmpty(t, s.Computer)
	assert.NotEqual(t, "unknown", s.CallingID)
	assert.NotNil(t, s.OpLog)
	assert.Equal(t, s.CallingID, s.OpLog.CallingID())

	// Each invocation gets its own correlation ID.
	other := newTestSession(t)
	assert.NotEqual(t, s.CallingID, other.CallingID)
}

func TestNew_HookMirrorsWarnings(t *testing.T) {
	cfg := &config.Config{}
	cfg.Log.Dir = t.TempDir()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s, err := New(cfg, logger)
	require.NoError(t, err)

	logger.WithField(oplog.CmdletField, "servers list").Warn("slow directory response")

	records, err := oplog.Read(s.OpLog.LastFile(), oplog.Filter{Level: oplog.LevelWarning})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "servers list", records[0].CallingCmdlet)
	assert.Equal(t, s.CallingID, records[0].CallingID)
}

func TestChooseEndpoint(t *testing.T) {
	servers := []directory.Server{
		{FQDN: "edge01.contoso.com", Roles: directory.RoleEdgeTransport},
		{FQDN: "exch01.contoso.com", Roles: directory.RoleMailbox},
		{FQDN: "exch02.contoso.com", Roles: directory.RoleMailbox},
	}
	assert.Equal(t, "exch01.contoso.com", ChooseEndpoint(servers))
	assert.Equal(t, "", ChooseEndpoint(nil))
	assert.Equal(t, "", ChooseEndpoint(servers[:1]))
}

func TestClose_WithoutConnections(t *testing.T) {
	s := newTestSession(t)
	assert.NoError(t, s.Close())
}
