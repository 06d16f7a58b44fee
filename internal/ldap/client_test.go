package ldap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		config  *ConnectionConfig
		wantErr bool
	}{
		{
			name: "default config with URLs",
			config: func() *ConnectionConfig {
				cfg := DefaultConfig()
				cfg.LDAPURLs = []string{"ldaps://dc1.example.com:636"}
				return cfg
			}(),
			wantErr: false,
		},
		{
			name: "valid config with URLs",
			config: &ConnectionConfig{
				LDAPURLs:       []string{"ldaps://dc1.example.com:636"},
				MaxConnections: 5,
				MaxIdleTime:    2 * time.Minute,
				Timeout:        15 * time.Second,
				MaxRetries:     2,
				BackoffFactor:  1.5,
				UseTLS:         true,
			},
			wantErr: false,
		},
		{
			name: "no domain or URLs",
			config: &ConnectionConfig{
				MaxConnections: 5,
				MaxIdleTime:    2 * time.Minute,
				Timeout:        15 * time.Second,
				MaxRetries:     2,
				BackoffFactor:  2.0,
			},
			wantErr: true,
		},
		{
			name: "bad max connections",
			config: &ConnectionConfig{
				LDAPURLs:       []string{"ldaps://dc1.example.com:636"},
				MaxConnections: 0,
				MaxIdleTime:    2 * time.Minute,
				Timeout:        15 * time.Second,
				MaxRetries:     2,
				BackoffFactor:  2.0,
			},
			wantErr: true,
		},
		{
			name: "bad backoff factor",
			config: &ConnectionConfig{
				LDAPURLs:       []string{"ldap://dc1.example.com:389"},
				MaxConnections: 5,
				MaxIdleTime:    2 * time.Minute,
				Timeout:        15 * time.Second,
				MaxRetries:     2,
				BackoffFactor:  1.0,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.config, nil)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, client)
			assert.NoError(t, client.Close())
		})
	}
}

func TestClient_DoubleClose(t *testing.T) {
	config := DefaultConfig()
	config.LDAPURLs = []string{"ldaps://dc1.example.com:636"}

	client, err := NewClient(config, nil)
	require.NoError(t, err)

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}

func TestClient_Stats(t *testing.T) {
	config := DefaultConfig()
	config.LDAPURLs = []string{"ldaps://dc1.example.com:636"}

	client, err := NewClient(config, nil)
	require.NoError(t, err)
	defer client.Close()

	stats := client.Stats()
	assert.Equal(t, int64(0), stats.Active)
	assert.Equal(t, int64(0), stats.Created)
}

func TestGetAuthMethod(t *testing.T) {
	tests := []struct {
		name   string
		config *ConnectionConfig
		want   AuthMethod
	}{
		{
			name:   "simple bind",
			config: &ConnectionConfig{Username: "admin", Password: "secret"},
			want:   AuthMethodSimpleBind,
		},
		{
			name:   "kerberos with keytab",
			config: &ConnectionConfig{KerberosRealm: "EXAMPLE.COM", KerberosKeytab: "/etc/krb5.keytab"},
			want:   AuthMethodKerberos,
		},
		{
			name:   "kerberos with username",
			config: &ConnectionConfig{KerberosRealm: "EXAMPLE.COM", Username: "admin"},
			want:   AuthMethodKerberos,
		},
		{
			name:   "empty defaults to simple",
			config: &ConnectionConfig{},
			want:   AuthMethodSimpleBind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.GetAuthMethod())
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, isRetryable(nil))
	assert.True(t, isRetryable(NewConnectionError("dial failed", true, nil)))
	assert.False(t, isRetryable(NewConnectionError("bad config", false, nil)))
	assert.True(t, isRetryable(assertError("connection reset by peer")))
	assert.False(t, isRetryable(assertError("invalid filter")))
}

type assertError string

func (e assertError) Error() string { return string(e) }
