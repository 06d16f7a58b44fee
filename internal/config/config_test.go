package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Directory.UseTLS)
	assert.Equal(t, 30*time.Second, cfg.Directory.Timeout)
	assert.Equal(t, 1000, cfg.Directory.PageSize)
	assert.Equal(t, 5985, cfg.Exchange.Port)
	assert.Equal(t, uint(3), cfg.Exchange.DialAttempts)
	assert.Equal(t, 2, cfg.Maintenance.NotExpectedActive)
	assert.Equal(t, 10*time.Second, cfg.Maintenance.PollInterval)
	assert.Equal(t, 45*time.Minute, cfg.Maintenance.PollTimeout)
	assert.Equal(t, "Maintenance", cfg.Maintenance.Requester)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Contains(t, cfg.Exchange.ScriptDirectory, "Scripts")
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opx.yaml")
	content := `
directory:
  domain: contoso.com
  username: exadmin
  kerberos_realm: CONTOSO.COM
exchange:
  endpoint: exch01.contoso.com
  port: 5986
  use_https: true
maintenance:
  not_expected_active: 3
  poll_interval: 5s
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "contoso.com", cfg.Directory.Domain)
	assert.Equal(t, "exadmin", cfg.Directory.Username)
	assert.Equal(t, "exch01.contoso.com", cfg.Exchange.Endpoint)
	assert.Equal(t, 5986, cfg.Exchange.Port)
	assert.True(t, cfg.Exchange.UseHTTPS)
	assert.Equal(t, 3, cfg.Maintenance.NotExpectedActive)
	assert.Equal(t, 5*time.Second, cfg.Maintenance.PollInterval)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Unset values still get defaults.
	assert.Equal(t, 45*time.Minute, cfg.Maintenance.PollTimeout)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfig_LDAP(t *testing.T) {
	cfg := &Config{
		Directory: DirectoryConfig{
			Domain:        "contoso.com",
			Username:      "exadmin",
			KerberosRealm: "CONTOSO.COM",
			UseTLS:        true,
			Timeout:       10 * time.Second,
			PageSize:      500,
		},
	}

	lc := cfg.LDAP()
	assert.Equal(t, "contoso.com", lc.Domain)
	assert.Equal(t, "exadmin", lc.Username)
	assert.Equal(t, "CONTOSO.COM", lc.KerberosRealm)
	assert.Equal(t, 10*time.Second, lc.Timeout)
	assert.Equal(t, 500, lc.PageSize)
	assert.True(t, lc.UseTLS)
}
