package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/isometry/opx/internal/maintenance"
)

func newMaintenanceCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Take servers into and out of maintenance mode",
	}
	cmd.AddCommand(
		newMaintenanceStartCommand(a),
		newMaintenanceStopCommand(a),
		newMaintenanceStatusCommand(a),
	)
	return cmd
}

func newMaintenanceStartCommand(a *app) *cobra.Command {
	var opts maintenance.StartOptions

	cmd := &cobra.Command{
		Use:   "start <server>",
		Short: "Drain and offline a server for maintenance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts.Server = args[0]

			orch, err := a.sess.Orchestrator(ctx)
			if err != nil {
				return err
			}

			log := a.cmdlet("maintenance start")
			log.Infof("starting maintenance on %s", opts.Server)

			results, report, err := orch.Start(ctx, opts)
			if err != nil {
				log.WithError(err).Error("maintenance start aborted")
				return err
			}

			printResults(cmd.OutOrStdout(), results)
			printReport(cmd.OutOrStdout(), report)

			if failed := results.Failed(); len(failed) > 0 {
				log.Warnf("%d of %d steps failed; the server may be in a partial maintenance state", len(failed), len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Target, "target", "", "transport server receiving redirected messages")
	cmd.Flags().BoolVar(&opts.SingleServerEnvironment, "single-server", false, "no other server exists, skip message redirection")
	cmd.Flags().StringVar(&opts.MoveComment, "move-comment", "Maintenance", "comment recorded on database moves")
	cmd.Flags().BoolVar(&opts.AsJob, "as-job", false, "run the DAG maintenance script as a polled background job")
	return cmd
}

func newMaintenanceStopCommand(a *app) *cobra.Command {
	var opts maintenance.StopOptions

	cmd := &cobra.Command{
		Use:   "stop <server>",
		Short: "Bring a server back from maintenance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts.Server = args[0]

			orch, err := a.sess.Orchestrator(ctx)
			if err != nil {
				return err
			}

			log := a.cmdlet("maintenance stop")
			log.Infof("stopping maintenance on %s", opts.Server)

			results, report, err := orch.Stop(ctx, opts)
			if err != nil {
				log.WithError(err).Error("maintenance stop aborted")
				return err
			}

			printResults(cmd.OutOrStdout(), results)
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "skip the active-component threshold guard")
	cmd.Flags().BoolVar(&opts.AsJob, "as-job", false, "run the DAG maintenance script as a polled background job")
	return cmd
}

func newMaintenanceStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <server>",
		Short: "Report a server's maintenance posture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			topo, err := a.sess.Directory(ctx)
			if err != nil {
				return err
			}
			server, err := topo.ResolveServer(ctx, args[0])
			if err != nil {
				return err
			}

			orch, err := a.sess.Orchestrator(ctx)
			if err != nil {
				return err
			}

			report, err := orch.Report(ctx, server.FQDN)
			if err != nil {
				return err
			}

			a.cmdlet("maintenance status").Infof("report built for %s", server.FQDN)
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func printResults(out io.Writer, results maintenance.Results) {
	for _, r := range results {
		fmt.Fprintln(out, r.String())
	}
}

func printReport(out io.Writer, report *maintenance.Report) {
	if report == nil {
		return
	}

	fmt.Fprintf(out, "\nServer: %s\n", report.Server)
	fmt.Fprintf(out, "Fully in maintenance: %v (%d active components, threshold %d)\n",
		report.FullyInMaintenance, report.ActiveCount, report.Threshold)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMPONENT\tSTATE\tREQUESTER")
	for _, c := range report.Components {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Component, c.State, c.Requester)
	}
	w.Flush()

	if report.Mailbox != nil {
		fmt.Fprintf(out, "Activation policy: %s, activation disabled: %v\n",
			report.Mailbox.DatabaseCopyAutoActivationPolicy,
			report.Mailbox.DatabaseCopyActivationDisabledAndMoveNow)
	}
	if report.ClusterNode != nil {
		fmt.Fprintf(out, "Cluster node: %s (%s)\n", report.ClusterNode.Name, report.ClusterNode.State)
	}
	if len(report.Queues) > 0 {
		fmt.Fprintln(out, "Transport queues:")
		for _, q := range report.Queues {
			fmt.Fprintf(out, "  %s: %d messages (%s)\n", q.Identity, q.MessageCount, q.Status)
		}
	}
}
