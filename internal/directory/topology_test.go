package directory

import (
	"context"
	"strings"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/opx/internal/ldap"
)

const (
	testConfigNC = "CN=Configuration,DC=contoso,DC=com"
	testDefNC    = "DC=contoso,DC=com"
	testSchemaNC = "CN=Schema,CN=Configuration,DC=contoso,DC=com"

	dagDN = "CN=DAG01,CN=Database Availability Groups,CN=Exchange Administrative Group (FYDIBOHF23SPDLT),CN=Administrative Groups,CN=Contoso,CN=Microsoft Exchange,CN=Services,CN=Configuration,DC=contoso,DC=com"
)

// fakeSearcher serves canned directory entries keyed by filter substring
// or base DN.
type fakeSearcher struct {
	searches int
}

func serverEntry(name, fqdn, roles, dagLink string) *goldap.Entry {
	attrs := map[string][]string{
		"cn":                       {name},
		"networkAddress":           {"netbios:" + name, "ncacn_ip_tcp:" + fqdn},
		"msExchCurrentServerRoles": {roles},
		"serialNumber":             {"Version 15.2 (Build 1544.4)"},
		"msExchServerSite":         {"CN=Default-First-Site-Name,CN=Sites," + testConfigNC},
	}
	if dagLink != "" {
		attrs["msExchMDBAvailabilityGroupLink"] = []string{dagLink}
	}
	return goldap.NewEntry("CN="+name+",CN=Servers,"+testConfigNC, attrs)
}

func (f *fakeSearcher) SearchWithPaging(_ context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.searches++

	switch {
	case strings.Contains(req.Filter, "msExchExchangeServer"):
		return &ldap.SearchResult{Entries: []*goldap.Entry{
			// Routing group container, no roles attribute.
			goldap.NewEntry("CN=Routing,"+testConfigNC, map[string][]string{"cn": {"Routing"}}),
			serverEntry("EXCH01", "exch01.contoso.com", "16439", dagDN),
			serverEntry("EXCH02", "exch02.contoso.com", "16439", dagDN),
			serverEntry("EDGE01", "edge01.contoso.com", "64", ""),
		}, Total: 4}, nil
	case strings.Contains(req.Filter, "msExchMDBAvailabilityGroup)"):
		return &ldap.SearchResult{Entries: []*goldap.Entry{
			goldap.NewEntry(dagDN, map[string][]string{"cn": {"DAG01"}}),
		}, Total: 1}, nil
	case strings.Contains(req.Filter, "msExchOrganizationContainer"):
		return &ldap.SearchResult{Entries: []*goldap.Entry{
			goldap.NewEntry("CN=Contoso,CN=Microsoft Exchange,CN=Services,"+testConfigNC,
				map[string][]string{"objectVersion": {"16223"}}),
		}, Total: 1}, nil
	case strings.HasPrefix(req.BaseDN, "CN=ms-Exch-Schema-Version-Pt"):
		return &ldap.SearchResult{Entries: []*goldap.Entry{
			goldap.NewEntry(req.BaseDN, map[string][]string{"rangeUpper": {"17003"}}),
		}, Total: 1}, nil
	case strings.HasPrefix(req.BaseDN, "CN=Microsoft Exchange System Objects"):
		return &ldap.SearchResult{Entries: []*goldap.Entry{
			goldap.NewEntry(req.BaseDN, map[string][]string{"objectVersion": {"13243"}}),
		}, Total: 1}, nil
	}
	return &ldap.SearchResult{}, nil
}

func (f *fakeSearcher) GetRootDSE(_ context.Context, _ []string) (map[string]string, error) {
	return map[string]string{
		"configurationNamingContext": testConfigNC,
		"defaultNamingContext":       testDefNC,
		"schemaNamingContext":        testSchemaNC,
	}, nil
}

func newTestTopology() (*Topology, *fakeSearcher) {
	f := &fakeSearcher{}
	return New(f, nil), f
}

func TestTopology_Servers(t *testing.T) {
	topo, fake := newTestTopology()

	servers, err := topo.Servers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 3)

	assert.Equal(t, "EXCH01", servers[0].Name)
	assert.Equal(t, "exch01.contoso.com", servers[0].FQDN)
	assert.True(t, servers[0].IsMailbox())
	assert.Equal(t, "Default-First-Site-Name", servers[0].Site)
	assert.Equal(t, "Version 15.2 (Build 1544.4)", servers[0].Version)

	assert.False(t, servers[2].IsMailbox())
	assert.Equal(t, "EdgeTransport", servers[2].Roles.String())

	// Second call is served from the session cache.
	before := fake.searches
	_, err = topo.Servers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, fake.searches)
}

func TestTopology_DAGs(t *testing.T) {
	topo, _ := newTestTopology()

	dags, err := topo.DAGs(context.Background())
	require.NoError(t, err)
	require.Len(t, dags, 1)

	assert.Equal(t, "DAG01", dags[0].Name)
	assert.Equal(t, []string{"exch01.contoso.com", "exch02.contoso.com"}, dags[0].Members)
}

func TestTopology_DAGForServer(t *testing.T) {
	topo, _ := newTestTopology()

	dag, err := topo.DAGForServer(context.Background(), "EXCH02.contoso.com")
	require.NoError(t, err)
	require.NotNil(t, dag)
	assert.Equal(t, "DAG01", dag.Name)

	none, err := topo.DAGForServer(context.Background(), "edge01.contoso.com")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestTopology_DAGByName(t *testing.T) {
	topo, _ := newTestTopology()

	dag, err := topo.DAGByName(context.Background(), "dag01")
	require.NoError(t, err)
	require.NotNil(t, dag)
	assert.Equal(t, dagDN, dag.DN)

	none, err := topo.DAGByName(context.Background(), "DAG99")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestTopology_ResolveServer(t *testing.T) {
	topo, _ := newTestTopology()

	for _, name := range []string{"exch01", "EXCH01", "exch01.contoso.com"} {
		server, err := topo.ResolveServer(context.Background(), name)
		require.NoError(t, err, name)
		assert.Equal(t, "exch01.contoso.com", server.FQDN)
	}

	_, err := topo.ResolveServer(context.Background(), "exch99")
	assert.ErrorContains(t, err, "not found")

	_, err = topo.ResolveServer(context.Background(), "")
	assert.Error(t, err)
}

func TestTopology_MailboxMembers(t *testing.T) {
	topo, _ := newTestTopology()

	dag, err := topo.DAGByName(context.Background(), "DAG01")
	require.NoError(t, err)
	require.NotNil(t, dag)

	members, err := topo.MailboxMembers(context.Background(), dag)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "EXCH01", members[0].Name)
	assert.Equal(t, "EXCH02", members[1].Name)
}

func TestTopology_SchemaVersions(t *testing.T) {
	topo, _ := newTestTopology()

	versions, err := topo.SchemaVersions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "17003", versions.SchemaRangeUpper)
	assert.Equal(t, "16223", versions.OrganizationVersion)
	assert.Equal(t, "13243", versions.SystemObjectsVersion)
}

func TestRoles_String(t *testing.T) {
	tests := []struct {
		roles Roles
		want  string
	}{
		{0, "None"},
		{RoleMailbox, "Mailbox"},
		{16439, "Mailbox,ClientAccess,HubTransport,UnifiedMessaging"},
		{RoleEdgeTransport, "EdgeTransport"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.roles.String(), "roles %d", tt.roles)
	}
}
