// Package session holds the per-invocation state every command threads
// through explicitly: configuration, loggers, the correlation ID, and the
// lazily established directory and management connections.
package session

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/isometry/opx/internal/config"
	"github.com/isometry/opx/internal/directory"
	"github.com/isometry/opx/internal/exchange"
	"github.com/isometry/opx/internal/ldap"
	"github.com/isometry/opx/internal/maintenance"
	"github.com/isometry/opx/internal/oplog"
)

// Session is constructed once per process invocation.
type Session struct {
	Config    *config.Config
	Log       *logrus.Entry
	CallingID string
	Computer  string
	UserName  string
	OpLog     *oplog.Writer

	ldapClient ldap.Client
	topology   *directory.Topology
	surface    exchange.Surface
}

// New builds a session: correlation ID, identity, operation log, and the
// logrus hook mirroring warnings and errors into it. Directory and
// management connections are established on first use.
func New(cfg *config.Config, logger *logrus.Logger) (*Session, error) {
	callingID := uuid.NewString()

	computer, err := os.Hostname()
	if err != nil {
		computer = "unknown"
	}

	userName := "unknown"
	if u, err := user.Current(); err == nil {
		userName = u.Username
	}

	s := &Session{
		Config:    cfg,
		Log:       logger.WithField("calling_id", callingID),
		CallingID: callingID,
		Computer:  strings.ToUpper(strings.SplitN(computer, ".", 2)[0]),
		UserName:  userName,
	}

	logDir := cfg.Log.Dir
	if logDir == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("no log directory configured and no user cache directory: %w", err)
		}
		logDir = filepath.Join(cacheDir, "opx", "logs")
	}

	s.OpLog = oplog.NewWriter(logDir, s.Computer, s.UserName, callingID)
	logger.AddHook(oplog.NewHook(s.OpLog))

	return s, nil
}

// Directory connects to AD (once) and returns the topology provider.
func (s *Session) Directory(ctx context.Context) (*directory.Topology, error) {
	if s.topology != nil {
		return s.topology, nil
	}

	client, err := ldap.NewClient(s.Config.LDAP(), s.Log)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to the directory: %w", err)
	}

	s.ldapClient = client
	s.topology = directory.New(client, s.Log)
	return s.topology, nil
}

// Surface connects to the Exchange management endpoint (once). When no
// endpoint is pinned in configuration, the first mailbox server found in
// the directory is used.
func (s *Session) Surface(ctx context.Context) (exchange.Surface, error) {
	if s.surface != nil {
		return s.surface, nil
	}

	endpoint := s.Config.Exchange.Endpoint
	if endpoint == "" {
		topo, err := s.Directory(ctx)
		if err != nil {
			return nil, err
		}
		servers, err := topo.Servers(ctx)
		if err != nil {
			return nil, err
		}
		endpoint = ChooseEndpoint(servers)
		if endpoint == "" {
			return nil, fmt.Errorf("no mailbox server found to use as management endpoint")
		}
		s.Log.WithField("endpoint", endpoint).Debug("management endpoint discovered")
	}

	runner, err := exchange.NewRunner(ctx, exchange.RunnerConfig{
		Host:            endpoint,
		Port:            s.Config.Exchange.Port,
		UseHTTPS:        s.Config.Exchange.UseHTTPS,
		Insecure:        s.Config.Exchange.Insecure,
		Username:        s.Config.Exchange.Username,
		Password:        s.Config.Exchange.Password,
		DialTimeout:     s.Config.Exchange.DialTimeout,
		DialAttempts:    s.Config.Exchange.DialAttempts,
		ScriptDirectory: s.Config.Exchange.ScriptDirectory,
	}, s.Log)
	if err != nil {
		return nil, err
	}

	s.surface = exchange.NewSurface(runner,
		s.Config.Maintenance.PollInterval, s.Config.Maintenance.PollTimeout, s.Log)
	return s.surface, nil
}

// Orchestrator wires the maintenance orchestrator from the session's
// connections.
func (s *Session) Orchestrator(ctx context.Context) (*maintenance.Orchestrator, error) {
	topo, err := s.Directory(ctx)
	if err != nil {
		return nil, err
	}
	surface, err := s.Surface(ctx)
	if err != nil {
		return nil, err
	}
	return maintenance.New(topo, surface, maintenance.Config{
		NotExpectedActive: s.Config.Maintenance.NotExpectedActive,
		PollInterval:      s.Config.Maintenance.PollInterval,
		PollTimeout:       s.Config.Maintenance.PollTimeout,
		Requester:         s.Config.Maintenance.Requester,
	}, s.Log), nil
}

// Close releases the directory connection pool.
func (s *Session) Close() error {
	if s.ldapClient != nil {
		return s.ldapClient.Close()
	}
	return nil
}

// ChooseEndpoint picks the first mailbox-role server as the management
// endpoint.
func ChooseEndpoint(servers []directory.Server) string {
	for _, server := range servers {
		if server.IsMailbox() {
			return server.FQDN
		}
	}
	return ""
}
