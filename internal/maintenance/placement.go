package maintenance

import (
	"context"
	"fmt"
	"strings"

	"github.com/isometry/opx/internal/directory"
	"github.com/isometry/opx/internal/exchange"
)

// MisplacedCopy is a mounted database copy not living on its
// activation-preference-1 server.
type MisplacedCopy struct {
	Database      string
	Host          string
	Preference    int
	PreferredHost string
	DAG           string
}

// PlacementReport is the outcome of a placement scan across one or more
// DAGs.
type PlacementReport struct {
	Misplaced   []MisplacedCopy
	SkippedDAGs []string // zero-member DAGs, reported and skipped
}

// InPlace reports whether every mounted database sits on its preferred
// server.
func (r *PlacementReport) InPlace() bool {
	return len(r.Misplaced) == 0
}

// VerifyPlacement scans the named DAG, or every DAG when name is empty,
// for mounted database copies whose activation preference is not 1.
func (o *Orchestrator) VerifyPlacement(ctx context.Context, dagName string) (*PlacementReport, error) {
	dags, err := o.resolveDAGs(ctx, dagName)
	if err != nil {
		return nil, err
	}

	report := &PlacementReport{}
	for i := range dags {
		if err := o.scanDAG(ctx, &dags[i], report); err != nil {
			return nil, err
		}
	}

	if !report.InPlace() {
		o.log.WithField("misplaced", len(report.Misplaced)).Warn("databases are not on their preferred servers")
	}
	return report, nil
}

// RedistributeOptions parameterizes Redistribute.
type RedistributeOptions struct {
	DAG string // empty means every DAG
	// Force redistributes even when placement verification passes.
	Force bool
	AsJob bool
}

// Redistribute rebalances active databases by activation preference for
// each DAG that fails placement verification (or unconditionally with
// Force). Single-member DAGs are never redistributed.
func (o *Orchestrator) Redistribute(ctx context.Context, opts RedistributeOptions) (*PlacementReport, Results, error) {
	dags, err := o.resolveDAGs(ctx, opts.DAG)
	if err != nil {
		return nil, nil, err
	}

	report := &PlacementReport{}
	var results Results

	for i := range dags {
		dag := &dags[i]
		name := "redistribute " + dag.Name

		if len(dag.Members) == 1 {
			results.skip(name)
			continue
		}

		before := len(report.Misplaced)
		if err := o.scanDAG(ctx, dag, report); err != nil {
			return nil, nil, err
		}
		if skippedDAG(report, dag.Name) {
			results.skip(name)
			continue
		}
		if !opts.Force && len(report.Misplaced) == before {
			// Everything already in place.
			results.skip(name)
			continue
		}

		job, err := o.surface.RedistributeActiveDatabases(ctx, exchange.RedistributeOptions{
			DAG:                         dag.Name,
			BalanceActivationPreference: true,
			Confirmationless:            true,
			AsJob:                       opts.AsJob,
		})
		if err == nil {
			err = o.wait(ctx, job)
		}
		results.add(name, err)
	}

	return report, results, nil
}

// scanDAG appends the DAG's misplaced mounted copies to the report. A DAG
// with no resolvable mailbox members is recorded as skipped.
func (o *Orchestrator) scanDAG(ctx context.Context, dag *directory.DAG, report *PlacementReport) error {
	members, err := o.topo.MailboxMembers(ctx, dag)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		o.log.WithField("dag", dag.Name).Warn("DAG has no resolvable mailbox members, skipping")
		report.SkippedDAGs = append(report.SkippedDAGs, dag.Name)
		return nil
	}

	// Gather every copy in the DAG first so the preferred host of each
	// database is known when a misplaced mount is found.
	preferred := map[string]string{}
	var mounted []exchange.DatabaseCopyStatus
	for _, member := range members {
		copies, err := o.surface.GetMailboxDatabaseCopyStatus(ctx, member.FQDN)
		if err != nil {
			return fmt.Errorf("failed to read copy status on %s: %w", member.FQDN, err)
		}
		for _, c := range copies {
			if c.ActivationPreference == 1 {
				preferred[c.DatabaseName] = c.MailboxServer
			}
			if c.Mounted() {
				mounted = append(mounted, c)
			}
		}
	}

	for _, c := range mounted {
		if c.ActivationPreference == 1 {
			continue
		}
		report.Misplaced = append(report.Misplaced, MisplacedCopy{
			Database:      c.DatabaseName,
			Host:          c.MailboxServer,
			Preference:    c.ActivationPreference,
			PreferredHost: preferred[c.DatabaseName],
			DAG:           dag.Name,
		})
	}
	return nil
}

func (o *Orchestrator) resolveDAGs(ctx context.Context, name string) ([]directory.DAG, error) {
	if name != "" {
		dag, err := o.topo.DAGByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if dag == nil {
			return nil, fmt.Errorf("DAG %q not found", name)
		}
		return []directory.DAG{*dag}, nil
	}
	return o.topo.DAGs(ctx)
}

func skippedDAG(report *PlacementReport, name string) bool {
	for _, s := range report.SkippedDAGs {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}
