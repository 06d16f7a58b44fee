package exchange

import (
	"fmt"
	"strings"
)

// equalFoldFQDN compares hostnames case-insensitively, tolerating a
// trailing dot.
func equalFoldFQDN(a, b string) bool {
	return strings.EqualFold(strings.TrimSuffix(a, "."), strings.TrimSuffix(b, "."))
}

// SetComponentStateOptions parameterizes Set-ServerComponentState.
type SetComponentStateOptions struct {
	Server           string
	Component        string
	State            string
	Requester        string
	DomainController string
}

func (o SetComponentStateOptions) Validate() error {
	if o.Server == "" {
		return fmt.Errorf("server is required")
	}
	if o.Component == "" {
		return fmt.Errorf("component is required")
	}
	switch o.State {
	case StateActive, StateDraining, StateInactive:
	default:
		return fmt.Errorf("invalid component state %q", o.State)
	}
	if o.Requester == "" {
		return fmt.Errorf("requester is required")
	}
	return nil
}

// SetMailboxServerOptions parameterizes Set-MailboxServer. Nil pointer
// fields are left untouched on the server.
type SetMailboxServerOptions struct {
	Server                                   string
	DatabaseCopyAutoActivationPolicy         *string
	DatabaseCopyActivationDisabledAndMoveNow *bool
	DomainController                         string
}

func (o SetMailboxServerOptions) Validate() error {
	if o.Server == "" {
		return fmt.Errorf("server is required")
	}
	if o.DatabaseCopyAutoActivationPolicy == nil && o.DatabaseCopyActivationDisabledAndMoveNow == nil {
		return fmt.Errorf("at least one attribute must be set")
	}
	return nil
}

// MoveActiveDatabasesOptions parameterizes moving all active databases off
// a server.
type MoveActiveDatabasesOptions struct {
	Server            string
	ActivatePreferred bool // move to activation preference 1 rather than best copy
	MoveComment       string
	SkipClientCheck   bool
	SkipHealthChecks  bool
	Confirmationless  bool
}

func (o MoveActiveDatabasesOptions) Validate() error {
	if o.Server == "" {
		return fmt.Errorf("server is required")
	}
	return nil
}

// RedirectMessagesOptions drains in-transit messages to another transport
// server.
type RedirectMessagesOptions struct {
	Server string // source of the redirection
	Target string // destination transport server FQDN
}

func (o RedirectMessagesOptions) Validate() error {
	if o.Server == "" || o.Target == "" {
		return fmt.Errorf("server and target are required")
	}
	if equalFoldFQDN(o.Server, o.Target) {
		return fmt.Errorf("redirect target must differ from the source server")
	}
	return nil
}

// SetServiceOptions parameterizes Set-Service for startup-type restore.
type SetServiceOptions struct {
	Server    string
	Name      string
	StartType string
}

func (o SetServiceOptions) Validate() error {
	if o.Server == "" || o.Name == "" {
		return fmt.Errorf("server and service name are required")
	}
	switch o.StartType {
	case "Automatic", "Manual", "Disabled":
	default:
		return fmt.Errorf("invalid start type %q", o.StartType)
	}
	return nil
}

// RequestCertificateOptions parameterizes New-ExchangeCertificate.
type RequestCertificateOptions struct {
	Server       string
	SubjectName  string   // "CN=mail.contoso.com"
	DomainNames  []string // SANs
	FriendlyName string
	KeySize      int
	RequestFile  string // UNC path the request is written to
}

func (o RequestCertificateOptions) Validate() error {
	if o.Server == "" {
		return fmt.Errorf("server is required")
	}
	if o.SubjectName == "" {
		return fmt.Errorf("subject name is required")
	}
	if o.RequestFile == "" {
		return fmt.Errorf("request file path is required")
	}
	return nil
}

// ImportCertificateOptions parameterizes Import-ExchangeCertificate.
type ImportCertificateOptions struct {
	Server   string
	FilePath string // UNC path of the issued certificate
	Password string // PKCS#12 password, if any
}

func (o ImportCertificateOptions) Validate() error {
	if o.Server == "" || o.FilePath == "" {
		return fmt.Errorf("server and file path are required")
	}
	return nil
}

// EnableCertificateOptions parameterizes Enable-ExchangeCertificate.
type EnableCertificateOptions struct {
	Server     string
	Thumbprint string
	Services   string // "IIS,SMTP"
}

func (o EnableCertificateOptions) Validate() error {
	if o.Server == "" || o.Thumbprint == "" {
		return fmt.Errorf("server and thumbprint are required")
	}
	if o.Services == "" {
		return fmt.Errorf("services are required")
	}
	return nil
}

// SetVirtualDirectoryOptions applies URL parameters to one endpoint's
// virtual directory.
type SetVirtualDirectoryOptions struct {
	Server     string
	Endpoint   string            // vdir endpoint key, e.g. "OWA"
	Parameters map[string]string // cmdlet parameter name -> value
}

func (o SetVirtualDirectoryOptions) Validate() error {
	if o.Server == "" || o.Endpoint == "" {
		return fmt.Errorf("server and endpoint are required")
	}
	if len(o.Parameters) == 0 {
		return fmt.Errorf("at least one parameter is required")
	}
	return nil
}

// StartDagMaintenanceOptions parameterizes the StartDagServerMaintenance
// script.
type StartDagMaintenanceOptions struct {
	Server            string
	MoveComment       string
	PauseClusterNode  bool
	ConfigurationOnly bool // skip database moves, touch configuration only
	AsJob             bool
}

func (o StartDagMaintenanceOptions) Validate() error {
	if o.Server == "" {
		return fmt.Errorf("server is required")
	}
	return nil
}

// StopDagMaintenanceOptions parameterizes the StopDagServerMaintenance
// script.
type StopDagMaintenanceOptions struct {
	Server string
	AsJob  bool
}

func (o StopDagMaintenanceOptions) Validate() error {
	if o.Server == "" {
		return fmt.Errorf("server is required")
	}
	return nil
}

// RedistributeOptions parameterizes the RedistributeActiveDatabases script.
type RedistributeOptions struct {
	DAG                         string
	BalanceActivationPreference bool
	Confirmationless            bool
	AsJob                       bool
}

func (o RedistributeOptions) Validate() error {
	if o.DAG == "" {
		return fmt.Errorf("dag is required")
	}
	return nil
}
