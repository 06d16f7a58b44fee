package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLDAPURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    *ServerInfo
		wantErr bool
	}{
		{
			name: "ldaps with port",
			url:  "ldaps://dc1.example.com:636",
			want: &ServerInfo{Host: "dc1.example.com", Port: 636, UseTLS: true, Source: "config"},
		},
		{
			name: "ldap with port",
			url:  "ldap://dc1.example.com:389",
			want: &ServerInfo{Host: "dc1.example.com", Port: 389, UseTLS: false, Source: "config"},
		},
		{
			name: "ldaps default port",
			url:  "ldaps://dc1.example.com",
			want: &ServerInfo{Host: "dc1.example.com", Port: 636, UseTLS: true, Source: "config"},
		},
		{
			name: "ldap default port",
			url:  "ldap://dc1.example.com",
			want: &ServerInfo{Host: "dc1.example.com", Port: 389, UseTLS: false, Source: "config"},
		},
		{
			name: "path stripped",
			url:  "ldap://dc1.example.com:389/dc=example,dc=com",
			want: &ServerInfo{Host: "dc1.example.com", Port: 389, UseTLS: false, Source: "config"},
		},
		{
			name:    "empty",
			url:     "",
			wantErr: true,
		},
		{
			name:    "bad scheme",
			url:     "http://dc1.example.com",
			wantErr: true,
		},
		{
			name:    "bad port",
			url:     "ldap://dc1.example.com:notaport",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLDAPURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServerInfoToURL(t *testing.T) {
	assert.Equal(t, "ldaps://dc1.example.com:636",
		ServerInfoToURL(&ServerInfo{Host: "dc1.example.com", Port: 636, UseTLS: true}))
	assert.Equal(t, "ldap://dc2.example.com:389",
		ServerInfoToURL(&ServerInfo{Host: "dc2.example.com", Port: 389}))
}

func TestSortServersByPriority(t *testing.T) {
	d := NewSRVDiscovery(nil)
	servers := []*ServerInfo{
		{Host: "c", Priority: 10, Weight: 50},
		{Host: "a", Priority: 0, Weight: 10},
		{Host: "b", Priority: 0, Weight: 90},
	}

	d.sortServersByPriority(servers)

	assert.Equal(t, "b", servers[0].Host) // priority 0, weight 90
	assert.Equal(t, "a", servers[1].Host) // priority 0, weight 10
	assert.Equal(t, "c", servers[2].Host) // priority 10
}

func TestCreateFallbackServers(t *testing.T) {
	d := NewSRVDiscovery(nil)
	servers := d.createFallbackServers("example.com")

	require.Len(t, servers, 2)
	assert.True(t, servers[0].UseTLS)
	assert.Equal(t, 636, servers[0].Port)
	assert.False(t, servers[1].UseTLS)
	assert.Equal(t, 389, servers[1].Port)
	for _, s := range servers {
		assert.Equal(t, "fallback", s.Source)
		assert.Equal(t, "example.com", s.Host)
	}
}

func TestValidateServerInfo(t *testing.T) {
	assert.NoError(t, ValidateServerInfo(&ServerInfo{Host: "dc1", Port: 636}))
	assert.Error(t, ValidateServerInfo(nil))
	assert.Error(t, ValidateServerInfo(&ServerInfo{Host: "", Port: 636}))
	assert.Error(t, ValidateServerInfo(&ServerInfo{Host: "dc1", Port: 0}))
	assert.Error(t, ValidateServerInfo(&ServerInfo{Host: "dc1", Port: 70000}))
	assert.Error(t, ValidateServerInfo(&ServerInfo{Host: "dc1", Port: 636, Priority: -1}))
}
