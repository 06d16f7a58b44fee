package maintenance

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/opx/internal/directory"
	"github.com/isometry/opx/internal/exchange"
)

// fakeTopo is an in-memory TopologyReader.
type fakeTopo struct {
	servers []directory.Server
	dags    []directory.DAG
}

func (f *fakeTopo) ResolveServer(_ context.Context, name string) (*directory.Server, error) {
	for i := range f.servers {
		if strings.EqualFold(f.servers[i].Name, name) || strings.EqualFold(f.servers[i].FQDN, name) {
			return &f.servers[i], nil
		}
	}
	return nil, fmt.Errorf("server %q not found in the Exchange organization", name)
}

func (f *fakeTopo) DAGForServer(_ context.Context, fqdn string) (*directory.DAG, error) {
	for i := range f.dags {
		for _, m := range f.dags[i].Members {
			if strings.EqualFold(m, fqdn) {
				return &f.dags[i], nil
			}
		}
	}
	return nil, nil
}

func (f *fakeTopo) DAGByName(_ context.Context, name string) (*directory.DAG, error) {
	for i := range f.dags {
		if strings.EqualFold(f.dags[i].Name, name) {
			return &f.dags[i], nil
		}
	}
	return nil, nil
}

func (f *fakeTopo) DAGs(_ context.Context) ([]directory.DAG, error) {
	return f.dags, nil
}

func (f *fakeTopo) MailboxMembers(_ context.Context, dag *directory.DAG) ([]directory.Server, error) {
	var members []directory.Server
	for _, m := range dag.Members {
		for i := range f.servers {
			if strings.EqualFold(f.servers[i].FQDN, m) && f.servers[i].IsMailbox() {
				members = append(members, f.servers[i])
			}
		}
	}
	return members, nil
}

const (
	srvA = "exch01.contoso.com"
	srvB = "exch02.contoso.com"
	srvC = "standalone.contoso.com"
)

// newFixture builds a two-member DAG (srvA, srvB) plus a standalone
// server (srvC), all seeded healthy on the fake surface.
func newFixture() (*fakeTopo, *exchange.Fake) {
	topo := &fakeTopo{
		servers: []directory.Server{
			{Name: "EXCH01", FQDN: srvA, Roles: directory.RoleMailbox | directory.RoleClientAccess},
			{Name: "EXCH02", FQDN: srvB, Roles: directory.RoleMailbox | directory.RoleClientAccess},
			{Name: "STANDALONE", FQDN: srvC, Roles: directory.RoleMailbox},
		},
		dags: []directory.DAG{
			{Name: "DAG01", DN: "CN=DAG01", Members: []string{srvA, srvB}},
		},
	}

	fake := exchange.NewFake()
	fake.SeedServer(srvA)
	fake.SeedServer(srvB)
	fake.SeedServer(srvC)
	return topo, fake
}

func newOrchestrator(topo *fakeTopo, fake *exchange.Fake) *Orchestrator {
	return New(topo, fake, Config{}, nil)
}

func TestStart_NonDagServerSkipsDagSteps(t *testing.T) {
	topo, fake := newFixture()
	o := newOrchestrator(topo, fake)

	results, _, err := o.Start(context.Background(), StartOptions{
		Server: srvC,
		Target: srvA,
	})
	require.NoError(t, err)
	require.NoError(t, results.Err())

	assert.Zero(t, fake.CallCount("StartDagServerMaintenance"))
	assert.Zero(t, fake.CallCount("SetMailboxServer"))
	assert.Zero(t, fake.CallCount("MoveActiveDatabases"))
}

func TestStart_SingleServerEnvironmentSkipsRedirect(t *testing.T) {
	topo, fake := newFixture()
	o := newOrchestrator(topo, fake)

	// No target argument at all.
	results, _, err := o.Start(context.Background(), StartOptions{
		Server:                  srvC,
		SingleServerEnvironment: true,
	})
	require.NoError(t, err)

	assert.Zero(t, fake.CallCount("RedirectMessages"))
	var redirect *StepResult
	for i := range results {
		if results[i].Name == "redirect messages" {
			redirect = &results[i]
		}
	}
	require.NotNil(t, redirect)
	assert.True(t, redirect.Skipped)
}

func TestStart_TargetValidation(t *testing.T) {
	topo, fake := newFixture()
	o := newOrchestrator(topo, fake)

	// Missing target without the single-server flag.
	_, _, err := o.Start(context.Background(), StartOptions{Server: srvA})
	assert.ErrorContains(t, err, "redirect target is required")

	// Target equal to the maintenance target.
	_, _, err = o.Start(context.Background(), StartOptions{Server: srvA, Target: "EXCH01"})
	assert.ErrorContains(t, err, "maintenance target itself")

	// Unresolvable server.
	_, _, err = o.Start(context.Background(), StartOptions{Server: "ghost", Target: srvB})
	assert.ErrorContains(t, err, "not found")

	// No side effects from any of the failed attempts.
	assert.Zero(t, fake.CallCount("SetServerComponentState"))
	assert.Zero(t, fake.CallCount("RestartService"))
}

func TestStart_TargetHubTransportMustBeActive(t *testing.T) {
	topo, fake := newFixture()
	require.NoError(t, fake.SetServerComponentState(context.Background(), exchange.SetComponentStateOptions{
		Server: srvB, Component: exchange.ComponentHubTransport,
		State: exchange.StateDraining, Requester: "Maintenance",
	}))
	fake.Calls = nil

	o := newOrchestrator(topo, fake)
	_, _, err := o.Start(context.Background(), StartOptions{Server: srvA, Target: srvB})
	assert.ErrorContains(t, err, "hub transport in state Draining")
	assert.Zero(t, fake.CallCount("SetServerComponentState"))
}

func TestStart_RoundTripReportsFullyInMaintenance(t *testing.T) {
	topo, fake := newFixture()
	o := newOrchestrator(topo, fake)

	results, report, err := o.Start(context.Background(), StartOptions{
		Server: srvA,
		Target: srvB,
	})
	require.NoError(t, err)
	require.NoError(t, results.Err(), "start sequence must be error free")
	require.NotNil(t, report)

	assert.True(t, report.DAGMember)
	assert.True(t, report.FullyInMaintenance)
	assert.LessOrEqual(t, report.ActiveCount, report.Threshold)
	require.NotNil(t, report.ClusterNode)
	assert.Equal(t, "Paused", report.ClusterNode.State)
	require.NotNil(t, report.Mailbox)
	assert.Equal(t, "Blocked", report.Mailbox.DatabaseCopyAutoActivationPolicy)

	// Step order: transport drained before the server goes offline.
	assert.Equal(t, 1, fake.CallCount("StartDagServerMaintenance"))
	assert.Equal(t, 1, fake.CallCount("RedirectMessages"))
	assert.Equal(t, 1, fake.CallCount("RestartService"))
}

func TestStart_StepFailureDoesNotStopSequence(t *testing.T) {
	topo, fake := newFixture()
	fake.Errs["RestartService"] = fmt.Errorf("access denied")
	o := newOrchestrator(topo, fake)

	results, report, err := o.Start(context.Background(), StartOptions{Server: srvA, Target: srvB})
	require.NoError(t, err)
	require.NotNil(t, report)

	failed := results.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "restart transport service", failed[0].Name)

	// Later steps still ran.
	assert.Equal(t, 1, fake.CallCount("StartDagServerMaintenance"))
	assert.Equal(t, 1, fake.CallCount("RedirectMessages"))
	assert.Error(t, results.Err())
}

func TestStop_ThresholdGuard(t *testing.T) {
	topo, fake := newFixture()
	// 8 components, 5 active.
	fake.SeedServer(srvC,
		exchange.ComponentServerWideOffline, exchange.ComponentHubTransport,
		exchange.ComponentUMCallRouter, "FrontendTransport", "HighAvailability",
		"Monitoring", "RecoveryActionsEnabled", "AutoDiscoverProxy")
	states := fake.ComponentStates[srvC]
	for i := 5; i < 8; i++ {
		states[i].State = exchange.StateInactive
	}

	o := newOrchestrator(topo, fake)
	_, _, err := o.Stop(context.Background(), StopOptions{Server: srvC})

	var notInMaint *ErrNotInMaintenance
	require.ErrorAs(t, err, &notInMaint)
	assert.Equal(t, 5, notInMaint.ActiveCount)
	assert.Equal(t, 2, notInMaint.Threshold)
	assert.Zero(t, fake.CallCount("SetServerComponentState"), "guard must abort before any component call")

	// Force overrides the guard.
	results, _, err := o.Stop(context.Background(), StopOptions{Server: srvC, Force: true})
	require.NoError(t, err)
	assert.NoError(t, results.Err())
	assert.Greater(t, fake.CallCount("SetServerComponentState"), 0)
}

func TestStop_IdempotentOnActiveServer(t *testing.T) {
	topo, fake := newFixture()
	o := newOrchestrator(topo, fake)

	// srvC is fully active; forcing the stop sequence re-issues
	// Active states and still restarts transport and reports.
	results, report, err := o.Stop(context.Background(), StopOptions{Server: srvC, Force: true})
	require.NoError(t, err)
	require.NotNil(t, report)
	require.NoError(t, results.Err())

	for _, c := range fake.ComponentStates[srvC] {
		assert.Equal(t, exchange.StateActive, c.State, c.Component)
	}
	assert.Equal(t, 1, fake.CallCount("RestartService"))
	assert.Equal(t, 1, fake.CallCount("GetQueues"))
}

func TestStop_DagMemberResumesCluster(t *testing.T) {
	topo, fake := newFixture()
	o := newOrchestrator(topo, fake)

	// Into maintenance first, then out.
	_, _, err := o.Start(context.Background(), StartOptions{Server: srvA, Target: srvB})
	require.NoError(t, err)

	results, report, err := o.Stop(context.Background(), StopOptions{Server: srvA})
	require.NoError(t, err)
	require.NoError(t, results.Err())

	assert.Equal(t, 1, fake.CallCount("StopDagServerMaintenance"))
	assert.Equal(t, "Up", fake.Cluster[srvA].State)
	assert.False(t, report.FullyInMaintenance)
	assert.Equal(t, "Unrestricted", fake.Mailbox[srvA].DatabaseCopyAutoActivationPolicy)
}

func TestStop_NonDagServerSkipsDagSteps(t *testing.T) {
	topo, fake := newFixture()
	o := newOrchestrator(topo, fake)

	results, _, err := o.Stop(context.Background(), StopOptions{Server: srvC, Force: true})
	require.NoError(t, err)
	require.NoError(t, results.Err())
	assert.Zero(t, fake.CallCount("StopDagServerMaintenance"))
}

func TestStart_AsJobPollsScript(t *testing.T) {
	topo, fake := newFixture()
	o := newOrchestrator(topo, fake)

	results, _, err := o.Start(context.Background(), StartOptions{
		Server: srvA,
		Target: srvB,
		AsJob:  true,
	})
	require.NoError(t, err)
	require.NoError(t, results.Err())
	assert.Equal(t, 1, fake.CallCount("StartDagServerMaintenance"))
}
