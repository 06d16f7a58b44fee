package ldap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/sirupsen/logrus"
)

// client implements the Client interface.
type client struct {
	pool   ConnectionPool
	config *ConnectionConfig
	log    *logrus.Entry
}

// NewClient creates a new LDAP client with connection pooling.
func NewClient(config *ConnectionConfig, log *logrus.Entry) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "ldap")

	log.WithFields(logrus.Fields{
		"domain":      config.Domain,
		"urls":        len(config.LDAPURLs),
		"auth_method": config.GetAuthMethod().String(),
	}).Debug("creating LDAP client")

	pool, err := NewConnectionPool(config, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &client{
		pool:   pool,
		config: config,
		log:    log,
	}, nil
}

// Connect tests that a connection can be acquired and the server answers.
func (c *client) Connect(ctx context.Context) error {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	defer conn.Close()

	return c.ping(conn)
}

// Close closes the client and all its connections.
func (c *client) Close() error {
	return c.pool.Close()
}

// BindWithConfig performs authentication using the client's configuration.
func (c *client) BindWithConfig(ctx context.Context) error {
	if !c.config.HasAuthentication() {
		return fmt.Errorf("no authentication configuration available")
	}

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	return c.withRetry(ctx, "bind", func() error {
		return c.authenticate(conn.Conn(), conn.ServerInfo())
	})
}

func (c *client) authenticate(conn *ldap.Conn, serverInfo *ServerInfo) error {
	switch method := c.config.GetAuthMethod(); method {
	case AuthMethodSimpleBind:
		if c.config.Username == "" {
			return fmt.Errorf("username is required for simple bind authentication")
		}
		return conn.Bind(c.config.Username, c.config.Password)
	case AuthMethodKerberos:
		return performKerberosAuth(conn, c.config, serverInfo)
	case AuthMethodExternal:
		return conn.Bind("", "")
	default:
		return fmt.Errorf("unsupported authentication method: %s", method.String())
	}
}

// Search performs a single LDAP search.
func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	start := time.Now()
	log := c.log.WithFields(logrus.Fields{
		"base_dn": req.BaseDN,
		"scope":   req.Scope.String(),
		"filter":  req.Filter,
	})

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	ldapReq := ldap.NewSearchRequest(
		req.BaseDN,
		int(req.Scope),
		int(req.DerefAliases),
		req.SizeLimit,
		int(req.TimeLimit.Seconds()),
		false,
		req.Filter,
		req.Attributes,
		nil,
	)

	var result *ldap.SearchResult
	err = c.withRetry(ctx, "search", func() error {
		var searchErr error
		result, searchErr = conn.Conn().Search(ldapReq)
		return searchErr
	})
	if err != nil {
		log.WithError(err).Error("search failed")
		return nil, WrapError("search", err)
	}

	// If we hit the size limit exactly there may be more entries.
	hasMore := req.SizeLimit > 0 && len(result.Entries) >= req.SizeLimit

	log.WithFields(logrus.Fields{
		"entries_found": len(result.Entries),
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Debug("search completed")

	return &SearchResult{
		Entries: result.Entries,
		Total:   len(result.Entries),
		HasMore: hasMore,
	}, nil
}

// SearchWithPaging performs an LDAP search with automatic pagination.
// Runaway searches are bounded by a maximum total duration and page count.
func (c *client) SearchWithPaging(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	start := time.Now()
	log := c.log.WithFields(logrus.Fields{
		"base_dn": req.BaseDN,
		"filter":  req.Filter,
	})

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	pageSize := c.config.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	var allEntries []*ldap.Entry
	pagingControl := ldap.NewControlPaging(uint32(pageSize))
	pageNum := 0

	const (
		maxSearchDuration = 30 * time.Minute
		maxPagesPerSearch = 1000
	)

	for {
		if time.Since(start) > maxSearchDuration || pageNum > maxPagesPerSearch {
			log.WithFields(logrus.Fields{
				"pages_completed": pageNum,
				"entries_found":   len(allEntries),
			}).Error("paged search exceeded limits, terminating")
			return &SearchResult{Entries: allEntries, Total: len(allEntries), HasMore: true}, nil
		}

		select {
		case <-ctx.Done():
			return &SearchResult{Entries: allEntries, Total: len(allEntries), HasMore: true}, ctx.Err()
		default:
		}

		pageNum++

		ldapReq := ldap.NewSearchRequest(
			req.BaseDN,
			int(req.Scope),
			int(req.DerefAliases),
			0, // no size limit when paging
			int(req.TimeLimit.Seconds()),
			false,
			req.Filter,
			req.Attributes,
			[]ldap.Control{pagingControl},
		)

		var result *ldap.SearchResult
		err = c.withRetry(ctx, "paged_search", func() error {
			var searchErr error
			result, searchErr = conn.Conn().Search(ldapReq)
			return searchErr
		})
		if err != nil {
			log.WithError(err).WithField("page", pageNum).Error("paged search failed")
			return nil, WrapError("paged_search", err)
		}

		allEntries = append(allEntries, result.Entries...)

		pagingResult := ldap.FindControl(result.Controls, ldap.ControlTypePaging)
		responseControl, ok := pagingResult.(*ldap.ControlPaging)
		if !ok || len(responseControl.Cookie) == 0 {
			break
		}
		pagingControl.SetCookie(responseControl.Cookie)
	}

	log.WithFields(logrus.Fields{
		"total_entries": len(allEntries),
		"pages":         pageNum,
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Debug("paged search completed")

	return &SearchResult{
		Entries: allEntries,
		Total:   len(allEntries),
		HasMore: false,
	}, nil
}

// GetBaseDN retrieves the default naming context from the root DSE.
func (c *client) GetBaseDN(ctx context.Context) (string, error) {
	info, err := c.GetRootDSE(ctx, []string{"defaultNamingContext"})
	if err != nil {
		return "", fmt.Errorf("failed to get base DN: %w", err)
	}

	baseDN := info["defaultNamingContext"]
	if baseDN == "" {
		return "", fmt.Errorf("no defaultNamingContext found in root DSE")
	}

	return baseDN, nil
}

// GetRootDSE reads the requested attributes from the root DSE.
func (c *client) GetRootDSE(ctx context.Context, attributes []string) (map[string]string, error) {
	result, err := c.Search(ctx, &SearchRequest{
		BaseDN:     "",
		Scope:      ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: attributes,
		SizeLimit:  1,
		TimeLimit:  10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read root DSE: %w", err)
	}
	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("no root DSE found")
	}

	info := make(map[string]string)
	entry := result.Entries[0]
	for _, attr := range attributes {
		if value := entry.GetAttributeValue(attr); value != "" {
			info[attr] = value
		}
	}
	return info, nil
}

// WhoAmI performs the LDAP Who Am I? extended operation and returns the
// authorization identity reported by the server.
func (c *client) WhoAmI(ctx context.Context) (string, error) {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	var result *ldap.WhoAmIResult
	err = c.withRetry(ctx, "whoami", func() error {
		var whoamiErr error
		result, whoamiErr = conn.Conn().WhoAmI(nil)
		return whoamiErr
	})
	if err != nil {
		return "", fmt.Errorf("whoami operation failed: %w", err)
	}
	if result == nil {
		return "", fmt.Errorf("whoami operation returned nil result")
	}

	return strings.TrimPrefix(result.AuthzID, "u:"), nil
}

// Ping tests connectivity to the directory server.
func (c *client) Ping(ctx context.Context) error {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	return c.ping(conn)
}

func (c *client) ping(conn *PooledConnection) error {
	searchReq := ldap.NewSearchRequest(
		"", // root DSE
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 5, false,
		"(objectClass=*)",
		[]string{"defaultNamingContext"},
		nil,
	)

	_, err := conn.Conn().Search(searchReq)
	return err
}

// Stats returns pool statistics.
func (c *client) Stats() PoolStats {
	return c.pool.Stats()
}

// withRetry executes an operation, retrying retryable failures with
// exponential backoff up to the configured attempt limit.
func (c *client) withRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if attempt == c.config.MaxRetries {
			break
		}

		c.log.WithFields(logrus.Fields{
			"operation": operation,
			"attempt":   attempt + 1,
			"backoff":   backoff.String(),
		}).Debug("retrying after retryable error")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff = min(time.Duration(float64(backoff)*c.config.BackoffFactor), c.config.MaxBackoff)
		}
	}

	return NewConnectionError("operation failed after retries", false, lastErr)
}

// isRetryable determines if an error should be retried.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if retryable, ok := err.(RetryableError); ok {
		return retryable.IsRetryable()
	}

	if ldap.IsErrorWithCode(err, ldap.LDAPResultBusy) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultUnavailable) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultServerDown) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultOperationsError) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection", "timeout", "network", "broken pipe", "connection reset"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
