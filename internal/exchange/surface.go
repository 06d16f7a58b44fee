package exchange

import "context"

// Surface is the Exchange management surface the orchestrator and the
// command layer consume. The production implementation speaks remote
// PowerShell over WinRM; tests substitute a fake.
type Surface interface {
	// Component state
	GetServerComponentStates(ctx context.Context, server string) ([]ComponentState, error)
	SetServerComponentState(ctx context.Context, opts SetComponentStateOptions) error

	// Mailbox server activation attributes
	GetMailboxServer(ctx context.Context, server string) (*MailboxServer, error)
	SetMailboxServer(ctx context.Context, opts SetMailboxServerOptions) error

	// Database copies
	GetMailboxDatabaseCopyStatus(ctx context.Context, server string) ([]DatabaseCopyStatus, error)
	MoveActiveDatabases(ctx context.Context, opts MoveActiveDatabasesOptions) error

	// Transport
	GetQueues(ctx context.Context, server string) ([]Queue, error)
	RedirectMessages(ctx context.Context, opts RedirectMessagesOptions) error

	// Services
	GetServices(ctx context.Context, server string) ([]Service, error)
	SetServiceStartup(ctx context.Context, opts SetServiceOptions) error
	RestartService(ctx context.Context, server, name string) error

	// Certificates
	GetCertificates(ctx context.Context, server string) ([]Certificate, error)
	RequestCertificate(ctx context.Context, opts RequestCertificateOptions) (string, error)
	ImportCertificate(ctx context.Context, opts ImportCertificateOptions) (string, error)
	EnableCertificate(ctx context.Context, opts EnableCertificateOptions) error

	// Virtual directories
	GetVirtualDirectory(ctx context.Context, server, endpoint string) (*VirtualDirectory, error)
	SetVirtualDirectory(ctx context.Context, opts SetVirtualDirectoryOptions) error

	// Cluster
	GetClusterNode(ctx context.Context, server string) (*ClusterNode, error)

	// Maintenance scripts. With AsJob set, the returned Job is non-nil and
	// must be waited on with Poll; otherwise the call blocks and Job is nil.
	StartDagServerMaintenance(ctx context.Context, opts StartDagMaintenanceOptions) (*Job, error)
	StopDagServerMaintenance(ctx context.Context, opts StopDagMaintenanceOptions) (*Job, error)
	RedistributeActiveDatabases(ctx context.Context, opts RedistributeOptions) (*Job, error)
}
