package maintenance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/isometry/opx/internal/directory"
	"github.com/isometry/opx/internal/exchange"
)

const transportService = "MSExchangeTransport"

// TopologyReader is the slice of the directory layer the orchestrator
// consumes.
type TopologyReader interface {
	ResolveServer(ctx context.Context, name string) (*directory.Server, error)
	DAGForServer(ctx context.Context, fqdn string) (*directory.DAG, error)
	DAGByName(ctx context.Context, name string) (*directory.DAG, error)
	DAGs(ctx context.Context) ([]directory.DAG, error)
	MailboxMembers(ctx context.Context, dag *directory.DAG) ([]directory.Server, error)
}

// Config tunes the orchestrator.
type Config struct {
	// NotExpectedActive is the active-component count above which a server
	// is assumed to not be in maintenance.
	NotExpectedActive int
	PollInterval      time.Duration
	PollTimeout       time.Duration
	Requester         string
}

// Orchestrator drives maintenance transitions against one organization.
type Orchestrator struct {
	topo    TopologyReader
	surface exchange.Surface
	cfg     Config
	log     *logrus.Entry
}

// New builds an orchestrator. Zero config fields get the operational
// defaults (threshold 2, 10s poll, 45m timeout, requester "Maintenance").
func New(topo TopologyReader, surface exchange.Surface, cfg Config, log *logrus.Entry) *Orchestrator {
	if cfg.NotExpectedActive <= 0 {
		cfg.NotExpectedActive = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 45 * time.Minute
	}
	if cfg.Requester == "" {
		cfg.Requester = "Maintenance"
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{
		topo:    topo,
		surface: surface,
		cfg:     cfg,
		log:     log.WithField("component", "maintenance"),
	}
}

// StartOptions parameterizes Start.
type StartOptions struct {
	Server string
	// Target receives redirected in-transit messages. Required unless
	// SingleServerEnvironment is set.
	Target                  string
	SingleServerEnvironment bool
	MoveComment             string
	AsJob                   bool
}

// Start takes a server into maintenance. Resolution failures and a target
// equal to the redirect target abort before any side effect; every later
// step is best-effort and recorded in the returned results.
func (o *Orchestrator) Start(ctx context.Context, opts StartOptions) (Results, *Report, error) {
	server, err := o.topo.ResolveServer(ctx, opts.Server)
	if err != nil {
		return nil, nil, err
	}

	var target *directory.Server
	if !opts.SingleServerEnvironment {
		if opts.Target == "" {
			return nil, nil, fmt.Errorf("a redirect target is required unless the environment has a single server")
		}
		target, err = o.topo.ResolveServer(ctx, opts.Target)
		if err != nil {
			return nil, nil, err
		}
		if strings.EqualFold(server.FQDN, target.FQDN) {
			return nil, nil, fmt.Errorf("redirect target %s is the maintenance target itself", target.FQDN)
		}
		if err := o.checkHubTransportActive(ctx, target.FQDN); err != nil {
			return nil, nil, err
		}
	}

	dag, err := o.topo.DAGForServer(ctx, server.FQDN)
	if err != nil {
		return nil, nil, err
	}

	log := o.log.WithField("server", server.FQDN)
	log.Info("starting maintenance")

	var results Results

	states, err := o.surface.GetServerComponentStates(ctx, server.FQDN)
	results.add("query component states", err)

	results.add("drain hub transport", o.surface.SetServerComponentState(ctx, exchange.SetComponentStateOptions{
		Server:    server.FQDN,
		Component: exchange.ComponentHubTransport,
		State:     exchange.StateDraining,
		Requester: o.cfg.Requester,
	}))

	results.add("restart transport service", o.surface.RestartService(ctx, server.FQDN, transportService))

	if hasComponent(states, exchange.ComponentUMCallRouter) {
		results.add("drain um call router", o.surface.SetServerComponentState(ctx, exchange.SetComponentStateOptions{
			Server:    server.FQDN,
			Component: exchange.ComponentUMCallRouter,
			State:     exchange.StateDraining,
			Requester: o.cfg.Requester,
		}))
	} else {
		results.skip("drain um call router")
	}

	if dag != nil {
		results.add("start dag server maintenance", o.runStartScript(ctx, server.FQDN, opts))

		policy := "Blocked"
		disabled := true
		results.add("block database activation", o.surface.SetMailboxServer(ctx, exchange.SetMailboxServerOptions{
			Server:                                   server.FQDN,
			DatabaseCopyAutoActivationPolicy:         &policy,
			DatabaseCopyActivationDisabledAndMoveNow: &disabled,
		}))
	} else {
		results.skip("start dag server maintenance")
		results.skip("block database activation")
	}

	if opts.SingleServerEnvironment {
		results.skip("redirect messages")
	} else {
		results.add("redirect messages", o.surface.RedirectMessages(ctx, exchange.RedirectMessagesOptions{
			Server: server.FQDN,
			Target: target.FQDN,
		}))
	}

	results.add("set server wide offline", o.surface.SetServerComponentState(ctx, exchange.SetComponentStateOptions{
		Server:    server.FQDN,
		Component: exchange.ComponentServerWideOffline,
		State:     exchange.StateInactive,
		Requester: o.cfg.Requester,
	}))

	report, err := o.Report(ctx, server.FQDN)
	results.add("verification report", err)

	for _, r := range results.Failed() {
		log.WithError(r.Err).Error("maintenance step failed: " + r.Name)
	}
	log.WithField("failed_steps", len(results.Failed())).Info("maintenance start sequence finished")

	return results, report, nil
}

// StopOptions parameterizes Stop.
type StopOptions struct {
	Server string
	// Force skips the active-component threshold guard.
	Force bool
	AsJob bool
}

// ErrNotInMaintenance aborts Stop when the server looks healthy.
type ErrNotInMaintenance struct {
	Server      string
	ActiveCount int
	Threshold   int
}

func (e *ErrNotInMaintenance) Error() string {
	return fmt.Sprintf("%s has %d active components (threshold %d); it does not appear to be in maintenance, use force to override",
		e.Server, e.ActiveCount, e.Threshold)
}

// Stop takes a server out of maintenance, reversing the start sequence.
func (o *Orchestrator) Stop(ctx context.Context, opts StopOptions) (Results, *Report, error) {
	server, err := o.topo.ResolveServer(ctx, opts.Server)
	if err != nil {
		return nil, nil, err
	}

	states, err := o.surface.GetServerComponentStates(ctx, server.FQDN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query component states: %w", err)
	}

	active := countActive(states)
	if !opts.Force && active > o.cfg.NotExpectedActive {
		return nil, nil, &ErrNotInMaintenance{
			Server:      server.FQDN,
			ActiveCount: active,
			Threshold:   o.cfg.NotExpectedActive,
		}
	}

	dag, err := o.topo.DAGForServer(ctx, server.FQDN)
	if err != nil {
		return nil, nil, err
	}

	log := o.log.WithField("server", server.FQDN)
	log.Info("stopping maintenance")

	var results Results

	results.add("set server wide online", o.surface.SetServerComponentState(ctx, exchange.SetComponentStateOptions{
		Server:    server.FQDN,
		Component: exchange.ComponentServerWideOffline,
		State:     exchange.StateActive,
		Requester: o.cfg.Requester,
	}))

	if hasComponent(states, exchange.ComponentUMCallRouter) {
		results.add("activate um call router", o.surface.SetServerComponentState(ctx, exchange.SetComponentStateOptions{
			Server:    server.FQDN,
			Component: exchange.ComponentUMCallRouter,
			State:     exchange.StateActive,
			Requester: o.cfg.Requester,
		}))
	} else {
		results.skip("activate um call router")
	}

	if dag != nil {
		results.add("stop dag server maintenance", o.runStopScript(ctx, server.FQDN, opts))

		policy := "Unrestricted"
		disabled := false
		results.add("unblock database activation", o.surface.SetMailboxServer(ctx, exchange.SetMailboxServerOptions{
			Server:                                   server.FQDN,
			DatabaseCopyAutoActivationPolicy:         &policy,
			DatabaseCopyActivationDisabledAndMoveNow: &disabled,
		}))
	} else {
		results.skip("stop dag server maintenance")
		results.skip("unblock database activation")
	}

	results.add("activate hub transport", o.surface.SetServerComponentState(ctx, exchange.SetComponentStateOptions{
		Server:    server.FQDN,
		Component: exchange.ComponentHubTransport,
		State:     exchange.StateActive,
		Requester: o.cfg.Requester,
	}))

	results.add("restart transport service", o.surface.RestartService(ctx, server.FQDN, transportService))

	report, err := o.Report(ctx, server.FQDN)
	results.add("verification report", err)

	if dag != nil {
		log.Warn("server left maintenance; active database copies may need redistribution across " + dag.Name)
	}
	for _, r := range results.Failed() {
		log.WithError(r.Err).Error("maintenance step failed: " + r.Name)
	}

	return results, report, nil
}

// Report describes a server's maintenance posture.
type Report struct {
	Server             string
	Components         []exchange.ComponentState
	ActiveCount        int
	Threshold          int
	Mailbox            *exchange.MailboxServer
	ClusterNode        *exchange.ClusterNode // nil for non-DAG members
	Queues             []exchange.Queue
	DAGMember          bool
	FullyInMaintenance bool
}

// Report gathers component states, activation attributes, cluster node
// state, and transport queues, and applies the maintenance heuristic:
// active components at or under the threshold, database activation
// blocked, and the cluster node paused (the latter two for DAG members
// only).
func (o *Orchestrator) Report(ctx context.Context, fqdn string) (*Report, error) {
	states, err := o.surface.GetServerComponentStates(ctx, fqdn)
	if err != nil {
		return nil, fmt.Errorf("failed to query component states: %w", err)
	}

	report := &Report{
		Server:      fqdn,
		Components:  states,
		ActiveCount: countActive(states),
		Threshold:   o.cfg.NotExpectedActive,
	}

	dag, err := o.topo.DAGForServer(ctx, fqdn)
	if err != nil {
		return nil, err
	}
	report.DAGMember = dag != nil

	if mbx, err := o.surface.GetMailboxServer(ctx, fqdn); err != nil {
		o.log.WithError(err).Warn("failed to read mailbox server attributes")
	} else {
		report.Mailbox = mbx
	}

	if report.DAGMember {
		if node, err := o.surface.GetClusterNode(ctx, fqdn); err != nil {
			o.log.WithError(err).Warn("failed to read cluster node state")
		} else {
			report.ClusterNode = node
		}
	}

	if queues, err := o.surface.GetQueues(ctx, fqdn); err != nil {
		o.log.WithError(err).Warn("failed to read transport queues")
	} else {
		report.Queues = queues
	}

	report.FullyInMaintenance = report.ActiveCount <= report.Threshold
	if report.DAGMember {
		activationBlocked := report.Mailbox != nil &&
			report.Mailbox.DatabaseCopyAutoActivationPolicy == "Blocked" &&
			report.Mailbox.DatabaseCopyActivationDisabledAndMoveNow
		nodePaused := report.ClusterNode != nil && report.ClusterNode.State == "Paused"
		report.FullyInMaintenance = report.FullyInMaintenance && activationBlocked && nodePaused
	}

	return report, nil
}

func (o *Orchestrator) runStartScript(ctx context.Context, fqdn string, opts StartOptions) error {
	job, err := o.surface.StartDagServerMaintenance(ctx, exchange.StartDagMaintenanceOptions{
		Server:           fqdn,
		MoveComment:      opts.MoveComment,
		PauseClusterNode: true,
		AsJob:            opts.AsJob,
	})
	if err != nil {
		return err
	}
	return o.wait(ctx, job)
}

func (o *Orchestrator) runStopScript(ctx context.Context, fqdn string, opts StopOptions) error {
	job, err := o.surface.StopDagServerMaintenance(ctx, exchange.StopDagMaintenanceOptions{
		Server: fqdn,
		AsJob:  opts.AsJob,
	})
	if err != nil {
		return err
	}
	return o.wait(ctx, job)
}

// wait polls a background job to completion; a nil job means the script
// already ran synchronously.
func (o *Orchestrator) wait(ctx context.Context, job *exchange.Job) error {
	if job == nil {
		return nil
	}
	job.Interval = o.cfg.PollInterval
	job.Timeout = o.cfg.PollTimeout
	_, err := job.Poll(ctx)
	return err
}

// checkHubTransportActive verifies the redirect target can accept mail.
func (o *Orchestrator) checkHubTransportActive(ctx context.Context, fqdn string) error {
	states, err := o.surface.GetServerComponentStates(ctx, fqdn)
	if err != nil {
		return fmt.Errorf("redirect target %s is not reachable: %w", fqdn, err)
	}
	for _, s := range states {
		if s.Component == exchange.ComponentHubTransport {
			if s.State != exchange.StateActive {
				return fmt.Errorf("redirect target %s has hub transport in state %s, need Active", fqdn, s.State)
			}
			return nil
		}
	}
	return fmt.Errorf("redirect target %s reports no hub transport component", fqdn)
}

func hasComponent(states []exchange.ComponentState, name string) bool {
	for _, s := range states {
		if s.Component == name {
			return true
		}
	}
	return false
}

func countActive(states []exchange.ComponentState) int {
	n := 0
	for _, s := range states {
		if s.State == exchange.StateActive {
			n++
		}
	}
	return n
}

