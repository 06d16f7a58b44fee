package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Fake is an in-memory Surface for tests. State mutations behave like a
// cooperative Exchange organization: component sets are recorded, DAG
// maintenance scripts pause and resume the cluster node, and every call
// is logged for assertion.
type Fake struct {
	mu sync.Mutex

	ComponentStates map[string][]ComponentState
	Mailbox         map[string]*MailboxServer
	Copies          map[string][]DatabaseCopyStatus
	TransportQueues map[string][]Queue
	WinServices     map[string][]Service
	Certs           map[string][]Certificate
	VDirs           map[string]*VirtualDirectory // key "server/endpoint"
	Cluster         map[string]*ClusterNode

	// Errs makes the named operation fail.
	Errs map[string]error

	Calls []FakeCall
}

// FakeCall records one Surface invocation.
type FakeCall struct {
	Op     string
	Server string
	Detail string
}

// NewFake returns an empty fake surface.
func NewFake() *Fake {
	return &Fake{
		ComponentStates: map[string][]ComponentState{},
		Mailbox:         map[string]*MailboxServer{},
		Copies:          map[string][]DatabaseCopyStatus{},
		TransportQueues: map[string][]Queue{},
		WinServices:     map[string][]Service{},
		Certs:           map[string][]Certificate{},
		VDirs:           map[string]*VirtualDirectory{},
		Cluster:         map[string]*ClusterNode{},
		Errs:            map[string]error{},
	}
}

func (f *Fake) record(op, server, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, FakeCall{Op: op, Server: server, Detail: detail})
	return f.Errs[op]
}

// CallCount counts recorded invocations of one operation.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// SeedServer initializes a server with the standard component set, all
// Active.
func (f *Fake) SeedServer(server string, components ...string) {
	if len(components) == 0 {
		components = []string{
			ComponentServerWideOffline, ComponentHubTransport, ComponentUMCallRouter,
			"FrontendTransport", "HighAvailability", "Monitoring", "RecoveryActionsEnabled",
		}
	}
	states := make([]ComponentState, len(components))
	for i, c := range components {
		states[i] = ComponentState{Component: c, State: StateActive}
	}
	f.ComponentStates[server] = states
	f.Mailbox[server] = &MailboxServer{
		Name:                             strings.SplitN(server, ".", 2)[0],
		DatabaseCopyAutoActivationPolicy: "Unrestricted",
	}
	f.Cluster[server] = &ClusterNode{Name: strings.SplitN(server, ".", 2)[0], State: "Up"}
}

func (f *Fake) GetServerComponentStates(_ context.Context, server string) ([]ComponentState, error) {
	if err := f.record("GetServerComponentStates", server, ""); err != nil {
		return nil, err
	}
	return f.ComponentStates[server], nil
}

func (f *Fake) SetServerComponentState(_ context.Context, opts SetComponentStateOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if err := f.record("SetServerComponentState", opts.Server, opts.Component+"="+opts.State); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	states := f.ComponentStates[opts.Server]
	found := false
	for i := range states {
		if states[i].Component == opts.Component {
			states[i].State = opts.State
			states[i].Requester = opts.Requester
			found = true
			break
		}
	}
	if !found {
		// Unknown components are accepted; Exchange creates the state row.
		states = append(states, ComponentState{
			Component: opts.Component, State: opts.State, Requester: opts.Requester,
		})
		f.ComponentStates[opts.Server] = states
	}

	// ServerWideOffline cascades to the other components, the way a real
	// server reports once it is offline. Monitoring components stay up.
	if opts.Component == ComponentServerWideOffline {
		for i := range states {
			switch states[i].Component {
			case ComponentServerWideOffline, "Monitoring", "RecoveryActionsEnabled":
			default:
				switch opts.State {
				case StateInactive:
					states[i].State = StateInactive
				case StateActive:
					states[i].State = StateActive
				}
			}
		}
	}
	return nil
}

func (f *Fake) GetMailboxServer(_ context.Context, server string) (*MailboxServer, error) {
	if err := f.record("GetMailboxServer", server, ""); err != nil {
		return nil, err
	}
	return f.Mailbox[server], nil
}

func (f *Fake) SetMailboxServer(_ context.Context, opts SetMailboxServerOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if err := f.record("SetMailboxServer", opts.Server, ""); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	mbx := f.Mailbox[opts.Server]
	if mbx == nil {
		return fmt.Errorf("mailbox server %s not found", opts.Server)
	}
	if opts.DatabaseCopyAutoActivationPolicy != nil {
		mbx.DatabaseCopyAutoActivationPolicy = *opts.DatabaseCopyAutoActivationPolicy
	}
	if opts.DatabaseCopyActivationDisabledAndMoveNow != nil {
		mbx.DatabaseCopyActivationDisabledAndMoveNow = *opts.DatabaseCopyActivationDisabledAndMoveNow
	}
	return nil
}

func (f *Fake) GetMailboxDatabaseCopyStatus(_ context.Context, server string) ([]DatabaseCopyStatus, error) {
	if err := f.record("GetMailboxDatabaseCopyStatus", server, ""); err != nil {
		return nil, err
	}
	return f.Copies[server], nil
}

func (f *Fake) MoveActiveDatabases(_ context.Context, opts MoveActiveDatabasesOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	return f.record("MoveActiveDatabases", opts.Server, "")
}

func (f *Fake) GetQueues(_ context.Context, server string) ([]Queue, error) {
	if err := f.record("GetQueues", server, ""); err != nil {
		return nil, err
	}
	return f.TransportQueues[server], nil
}

func (f *Fake) RedirectMessages(_ context.Context, opts RedirectMessagesOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	return f.record("RedirectMessages", opts.Server, "target="+opts.Target)
}

func (f *Fake) GetServices(_ context.Context, server string) ([]Service, error) {
	if err := f.record("GetServices", server, ""); err != nil {
		return nil, err
	}
	return f.WinServices[server], nil
}

func (f *Fake) SetServiceStartup(_ context.Context, opts SetServiceOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if err := f.record("SetServiceStartup", opts.Server, opts.Name+"="+opts.StartType); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	services := f.WinServices[opts.Server]
	for i := range services {
		if services[i].Name == opts.Name {
			services[i].StartType = opts.StartType
		}
	}
	return nil
}

func (f *Fake) RestartService(_ context.Context, server, name string) error {
	return f.record("RestartService", server, name)
}

func (f *Fake) GetCertificates(_ context.Context, server string) ([]Certificate, error) {
	if err := f.record("GetCertificates", server, ""); err != nil {
		return nil, err
	}
	return f.Certs[server], nil
}

func (f *Fake) RequestCertificate(_ context.Context, opts RequestCertificateOptions) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	if err := f.record("RequestCertificate", opts.Server, opts.SubjectName); err != nil {
		return "", err
	}
	return "-----BEGIN CERTIFICATE REQUEST-----", nil
}

func (f *Fake) ImportCertificate(_ context.Context, opts ImportCertificateOptions) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	if err := f.record("ImportCertificate", opts.Server, opts.FilePath); err != nil {
		return "", err
	}
	return "AABBCCDD", nil
}

func (f *Fake) EnableCertificate(_ context.Context, opts EnableCertificateOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	return f.record("EnableCertificate", opts.Server, opts.Thumbprint)
}

func (f *Fake) GetVirtualDirectory(_ context.Context, server, endpoint string) (*VirtualDirectory, error) {
	if err := f.record("GetVirtualDirectory", server, endpoint); err != nil {
		return nil, err
	}
	return f.VDirs[server+"/"+endpoint], nil
}

func (f *Fake) SetVirtualDirectory(_ context.Context, opts SetVirtualDirectoryOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	return f.record("SetVirtualDirectory", opts.Server, opts.Endpoint)
}

func (f *Fake) GetClusterNode(_ context.Context, server string) (*ClusterNode, error) {
	if err := f.record("GetClusterNode", server, ""); err != nil {
		return nil, err
	}
	return f.Cluster[server], nil
}

func (f *Fake) StartDagServerMaintenance(_ context.Context, opts StartDagMaintenanceOptions) (*Job, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := f.record("StartDagServerMaintenance", opts.Server, ""); err != nil {
		return nil, err
	}
	f.pauseNode(opts.Server, "Paused")
	if opts.AsJob {
		return f.instantJob("StartDagServerMaintenance"), nil
	}
	return nil, nil
}

func (f *Fake) StopDagServerMaintenance(_ context.Context, opts StopDagMaintenanceOptions) (*Job, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := f.record("StopDagServerMaintenance", opts.Server, ""); err != nil {
		return nil, err
	}
	f.pauseNode(opts.Server, "Up")
	if opts.AsJob {
		return f.instantJob("StopDagServerMaintenance"), nil
	}
	return nil, nil
}

func (f *Fake) RedistributeActiveDatabases(_ context.Context, opts RedistributeOptions) (*Job, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := f.record("RedistributeActiveDatabases", opts.DAG, ""); err != nil {
		return nil, err
	}
	if opts.AsJob {
		return f.instantJob("RedistributeActiveDatabases"), nil
	}
	return nil, nil
}

func (f *Fake) pauseNode(server, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if node := f.Cluster[server]; node != nil {
		node.State = state
	}
}

// instantJob completes on the first poll.
func (f *Fake) instantJob(name string) *Job {
	return NewJob(name, time.Millisecond, time.Second, JobFuncs{
		State:   func(context.Context) (JobState, error) { return JobCompleted, nil },
		Collect: func(context.Context) (string, error) { return "done", nil },
		Stop:    func(context.Context) error { return nil },
	}, nil)
}
