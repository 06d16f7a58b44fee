// Package directory reads Exchange organization topology from Active
// Directory: servers, database availability groups, and schema versions.
// Everything here is a read; topology is queried fresh per invocation and
// cached only for the lifetime of one session.
package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/isometry/opx/internal/ldap"
)

// Searcher is the slice of the LDAP client the topology layer needs.
type Searcher interface {
	SearchWithPaging(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error)
	GetRootDSE(ctx context.Context, attributes []string) (map[string]string, error)
}

// Roles is the msExchCurrentServerRoles bitmask.
type Roles uint32

const (
	RoleClientAccessFrontEnd Roles = 1 << 0
	RoleMailbox              Roles = 1 << 1
	RoleClientAccess         Roles = 1 << 2
	RoleUnifiedMessaging     Roles = 1 << 4
	RoleHubTransport         Roles = 1 << 5
	RoleEdgeTransport        Roles = 1 << 6
)

// Has reports whether all bits of r2 are present.
func (r Roles) Has(r2 Roles) bool {
	return r&r2 == r2
}

// String renders the role set in display order.
func (r Roles) String() string {
	var parts []string
	if r.Has(RoleMailbox) {
		parts = append(parts, "Mailbox")
	}
	if r.Has(RoleClientAccess) || r.Has(RoleClientAccessFrontEnd) {
		parts = append(parts, "ClientAccess")
	}
	if r.Has(RoleHubTransport) {
		parts = append(parts, "HubTransport")
	}
	if r.Has(RoleUnifiedMessaging) {
		parts = append(parts, "UnifiedMessaging")
	}
	if r.Has(RoleEdgeTransport) {
		parts = append(parts, "EdgeTransport")
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, ",")
}

// Server is an Exchange server as recorded in the directory.
type Server struct {
	Name    string // short name (cn)
	DN      string
	FQDN    string
	Roles   Roles
	Version string // serialNumber, e.g. "Version 15.2 (Build 1544.4)"
	Site    string // site DN tail
	GUID    string
	DAGLink string // DN of the DAG this server belongs to, if any
}

// IsMailbox reports whether the server holds the mailbox role.
func (s Server) IsMailbox() bool {
	return s.Roles.Has(RoleMailbox)
}

// DAG is a database availability group with its member servers.
type DAG struct {
	Name    string
	DN      string
	Members []string // member server FQDNs
}

// SchemaVersions captures the directory version markers used by the
// schema check command.
type SchemaVersions struct {
	SchemaRangeUpper     string // rangeUpper of ms-Exch-Schema-Version-Pt
	OrganizationVersion  string // objectVersion of the Exchange organization
	SystemObjectsVersion string // objectVersion of Microsoft Exchange System Objects
}

// Topology reads and caches Exchange topology for one session.
type Topology struct {
	searcher Searcher
	log      *logrus.Entry

	mu       sync.Mutex
	configNC string
	defNC    string
	schemaNC string
	servers  []Server
	dags     []DAG
}

// New creates a topology provider over the given searcher.
func New(searcher Searcher, log *logrus.Entry) *Topology {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Topology{
		searcher: searcher,
		log:      log.WithField("component", "directory"),
	}
}

// namingContexts reads the naming contexts from the root DSE once.
func (t *Topology) namingContexts(ctx context.Context) error {
	if t.configNC != "" {
		return nil
	}

	info, err := t.searcher.GetRootDSE(ctx, []string{
		"configurationNamingContext",
		"defaultNamingContext",
		"schemaNamingContext",
	})
	if err != nil {
		return fmt.Errorf("failed to read naming contexts: %w", err)
	}

	t.configNC = info["configurationNamingContext"]
	t.defNC = info["defaultNamingContext"]
	t.schemaNC = info["schemaNamingContext"]
	if t.configNC == "" {
		return fmt.Errorf("directory did not report a configuration naming context")
	}
	return nil
}

// Servers returns all Exchange servers in the organization.
func (t *Topology) Servers(ctx context.Context) ([]Server, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.servers != nil {
		return t.servers, nil
	}
	if err := t.namingContexts(ctx); err != nil {
		return nil, err
	}

	result, err := t.searcher.SearchWithPaging(ctx, &ldap.SearchRequest{
		BaseDN: t.configNC,
		Scope:  ldap.ScopeWholeSubtree,
		Filter: "(objectClass=msExchExchangeServer)",
		Attributes: []string{
			"cn",
			"distinguishedName",
			"networkAddress",
			"msExchCurrentServerRoles",
			"serialNumber",
			"msExchServerSite",
			"msExchMDBAvailabilityGroupLink",
			"objectGUID",
		},
		TimeLimit: 60 * time.Second,
	})
	if err != nil {
		if ldap.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to enumerate Exchange servers: %w", err)
	}

	var servers []Server
	for _, entry := range result.Entries {
		// Routing group containers and other msExchExchangeServer
		// subclasses have no roles attribute; skip them.
		rolesValue := entry.GetAttributeValue("msExchCurrentServerRoles")
		if rolesValue == "" {
			continue
		}

		server := Server{
			Name:    entry.GetAttributeValue("cn"),
			DN:      entry.DN,
			FQDN:    fqdnFromNetworkAddress(entry.GetAttributeValues("networkAddress")),
			Roles:   parseRoles(rolesValue),
			Version: entry.GetAttributeValue("serialNumber"),
			Site:    siteName(entry.GetAttributeValue("msExchServerSite")),
			GUID:    ldap.ExtractGUID(entry),
			DAGLink: entry.GetAttributeValue("msExchMDBAvailabilityGroupLink"),
		}
		if server.FQDN == "" {
			server.FQDN = server.Name
		}
		servers = append(servers, server)
	}

	t.log.WithField("server_count", len(servers)).Debug("enumerated Exchange servers")
	t.servers = servers
	return servers, nil
}

// DAGs returns all database availability groups with their members.
// Membership comes from the msExchMDBAvailabilityGroupLink backlink on
// server objects, so each server belongs to at most one DAG.
func (t *Topology) DAGs(ctx context.Context) ([]DAG, error) {
	servers, err := t.Servers(ctx)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dags != nil {
		return t.dags, nil
	}

	result, err := t.searcher.SearchWithPaging(ctx, &ldap.SearchRequest{
		BaseDN:     t.configNC,
		Scope:      ldap.ScopeWholeSubtree,
		Filter:     "(objectClass=msExchMDBAvailabilityGroup)",
		Attributes: []string{"cn", "distinguishedName"},
		TimeLimit:  60 * time.Second,
	})
	if err != nil {
		if ldap.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to enumerate DAGs: %w", err)
	}

	var dags []DAG
	for _, entry := range result.Entries {
		dag := DAG{
			Name: entry.GetAttributeValue("cn"),
			DN:   entry.DN,
		}
		for _, server := range servers {
			if strings.EqualFold(server.DAGLink, dag.DN) {
				dag.Members = append(dag.Members, server.FQDN)
			}
		}
		dags = append(dags, dag)
	}

	t.log.WithField("dag_count", len(dags)).Debug("enumerated DAGs")
	t.dags = dags
	return dags, nil
}

// DAGForServer returns the DAG the server belongs to, or nil when the
// server is standalone.
func (t *Topology) DAGForServer(ctx context.Context, fqdn string) (*DAG, error) {
	dags, err := t.DAGs(ctx)
	if err != nil {
		return nil, err
	}

	for i := range dags {
		for _, member := range dags[i].Members {
			if strings.EqualFold(member, fqdn) {
				return &dags[i], nil
			}
		}
	}
	return nil, nil
}

// DAGByName returns the named DAG, or nil when it does not exist.
func (t *Topology) DAGByName(ctx context.Context, name string) (*DAG, error) {
	dags, err := t.DAGs(ctx)
	if err != nil {
		return nil, err
	}

	for i := range dags {
		if strings.EqualFold(dags[i].Name, name) {
			return &dags[i], nil
		}
	}
	return nil, nil
}

// ResolveServer resolves a short name or FQDN to the canonical server
// record. Resolution failure is an error: callers abort before side
// effects when the target cannot be identified.
func (t *Topology) ResolveServer(ctx context.Context, name string) (*Server, error) {
	if name == "" {
		return nil, fmt.Errorf("server name cannot be empty")
	}

	servers, err := t.Servers(ctx)
	if err != nil {
		return nil, err
	}

	for i := range servers {
		if strings.EqualFold(servers[i].Name, name) || strings.EqualFold(servers[i].FQDN, name) {
			return &servers[i], nil
		}
	}

	return nil, fmt.Errorf("server %q not found in the Exchange organization", name)
}

// MailboxMembers intersects a DAG's member list with the servers holding
// the mailbox role.
func (t *Topology) MailboxMembers(ctx context.Context, dag *DAG) ([]Server, error) {
	servers, err := t.Servers(ctx)
	if err != nil {
		return nil, err
	}

	var members []Server
	for _, member := range dag.Members {
		for i := range servers {
			if strings.EqualFold(servers[i].FQDN, member) && servers[i].IsMailbox() {
				members = append(members, servers[i])
			}
		}
	}
	return members, nil
}

// SchemaVersions reads the Exchange schema and organization version markers.
func (t *Topology) SchemaVersions(ctx context.Context) (*SchemaVersions, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.namingContexts(ctx); err != nil {
		return nil, err
	}

	versions := &SchemaVersions{}

	if t.schemaNC != "" {
		versions.SchemaRangeUpper = t.singleAttribute(ctx,
			"CN=ms-Exch-Schema-Version-Pt,"+t.schemaNC, "rangeUpper")
	}
	versions.OrganizationVersion = t.searchSingleAttribute(ctx,
		t.configNC, "(objectClass=msExchOrganizationContainer)", "objectVersion")
	if t.defNC != "" {
		versions.SystemObjectsVersion = t.singleAttribute(ctx,
			"CN=Microsoft Exchange System Objects,"+t.defNC, "objectVersion")
	}

	return versions, nil
}

// singleAttribute reads one attribute from a specific DN, returning an
// empty string when the object or attribute is missing.
func (t *Topology) singleAttribute(ctx context.Context, dn, attribute string) string {
	result, err := t.searcher.SearchWithPaging(ctx, &ldap.SearchRequest{
		BaseDN:     dn,
		Scope:      ldap.ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{attribute},
		TimeLimit:  30 * time.Second,
	})
	if err != nil || len(result.Entries) == 0 {
		return ""
	}
	return result.Entries[0].GetAttributeValue(attribute)
}

// searchSingleAttribute reads one attribute from the first object matching
// a filter under a base DN.
func (t *Topology) searchSingleAttribute(ctx context.Context, baseDN, filter, attribute string) string {
	result, err := t.searcher.SearchWithPaging(ctx, &ldap.SearchRequest{
		BaseDN:     baseDN,
		Scope:      ldap.ScopeWholeSubtree,
		Filter:     filter,
		Attributes: []string{attribute},
		TimeLimit:  30 * time.Second,
	})
	if err != nil || len(result.Entries) == 0 {
		return ""
	}
	return result.Entries[0].GetAttributeValue(attribute)
}

// parseRoles parses the msExchCurrentServerRoles decimal string.
func parseRoles(value string) Roles {
	var roles uint32
	if _, err := fmt.Sscanf(value, "%d", &roles); err != nil {
		return 0
	}
	return Roles(roles)
}

// fqdnFromNetworkAddress extracts the TCP FQDN from networkAddress values
// of the form "ncacn_ip_tcp:srv01.contoso.com".
func fqdnFromNetworkAddress(values []string) string {
	for _, v := range values {
		if after, ok := strings.CutPrefix(v, "ncacn_ip_tcp:"); ok {
			return after
		}
	}
	return ""
}

// siteName extracts the site's CN from its DN.
func siteName(siteDN string) string {
	if siteDN == "" {
		return ""
	}
	first := strings.SplitN(siteDN, ",", 2)[0]
	return strings.TrimPrefix(first, "CN=")
}
