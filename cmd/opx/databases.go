package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/isometry/opx/internal/dbcopy"
	"github.com/isometry/opx/internal/maintenance"
)

func newDatabasesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "databases",
		Short: "Database placement and copy layout",
	}
	cmd.AddCommand(
		newVerifyPlacementCommand(a),
		newRedistributeCommand(a),
		newBackupCopiesCommand(a),
		newRestoreCopiesCommand(a),
	)
	return cmd
}

func newVerifyPlacementCommand(a *app) *cobra.Command {
	var dagName string

	cmd := &cobra.Command{
		Use:   "verify-placement",
		Short: "Check that mounted databases sit on their preferred servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			orch, err := a.sess.Orchestrator(ctx)
			if err != nil {
				return err
			}

			report, err := orch.VerifyPlacement(ctx, dagName)
			if err != nil {
				return err
			}

			log := a.cmdlet("databases verify-placement")
			if report.InPlace() {
				log.Info("all databases are on their preferred servers")
				fmt.Fprintln(cmd.OutOrStdout(), "All databases are on their preferred servers.")
				return nil
			}

			log.Warnf("%d databases are misplaced", len(report.Misplaced))
			printMisplaced(cmd, report)
			return nil
		},
	}

	cmd.Flags().StringVar(&dagName, "dag", "", "limit the scan to one DAG (default: all)")
	return cmd
}

func newRedistributeCommand(a *app) *cobra.Command {
	var opts maintenance.RedistributeOptions

	cmd := &cobra.Command{
		Use:   "redistribute",
		Short: "Rebalance active databases by activation preference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			orch, err := a.sess.Orchestrator(ctx)
			if err != nil {
				return err
			}

			log := a.cmdlet("databases redistribute")
			report, results, err := orch.Redistribute(ctx, opts)
			if err != nil {
				log.WithError(err).Error("redistribution aborted")
				return err
			}

			printMisplaced(cmd, report)
			printResults(cmd.OutOrStdout(), results)
			return results.Err()
		},
	}

	cmd.Flags().StringVar(&opts.DAG, "dag", "", "limit redistribution to one DAG (default: all)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "redistribute even when placement verification passes")
	cmd.Flags().BoolVar(&opts.AsJob, "as-job", false, "run the redistribution script as a polled background job")
	return cmd
}

func newBackupCopiesCommand(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "backup-copies <server>",
		Short: "Save a server's database copy layout to CSV",
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

			surface, err := a.sess.Surface(ctx)
			if err != nil {
				return err
			}
			copies, err := surface.GetMailboxDatabaseCopyStatus(ctx, server.FQDN)
			if err != nil {
				return err
			}
			if len(copies) == 0 {
				return fmt.Errorf("%s holds no database copies", server.FQDN)
			}

			records := dbcopy.FromCopyStatus(copies)
			if err := dbcopy.Write(file, records); err != nil {
				return err
			}

			a.cmdlet("databases backup-copies").Infof("saved %d copies of %s to %s", len(records), server.FQDN, file)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d copy records to %s\n", len(records), file)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "dbcopies.csv", "backup file path")
	return cmd
}

func newRestoreCopiesCommand(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "restore-copies <server>",
		Short: "Plan the copy re-adds a recovered server needs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := dbcopy.Read(file)
			if err != nil {
				return err
			}

			actions := dbcopy.PlanRestore(records, args[0])
			if len(actions) == 0 {
				return fmt.Errorf("%s does not appear in %s", args[0], file)
			}

			a.cmdlet("databases restore-copies").Infof("planned %d copy re-adds for %s", len(actions), args[0])

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATABASE\tPREFERENCE\tREPLAY LAG\tTRUNCATION LAG")
			for _, action := range actions {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
					action.Database, action.ActivationPreference,
					orDash(action.ReplayLagTime), orDash(action.TruncationLagTime))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&file, "file", "dbcopies.csv", "backup file path")
	return cmd
}

func printMisplaced(cmd *cobra.Command, report *maintenance.PlacementReport) {
	out := cmd.OutOrStdout()
	for _, name := range report.SkippedDAGs {
		fmt.Fprintf(out, "DAG %s has no resolvable mailbox members, skipped\n", name)
	}
	if len(report.Misplaced) == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATABASE\tHOST\tPREFERENCE\tPREFERRED HOST\tDAG")
	for _, m := range report.Misplaced {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", m.Database, m.Host, m.Preference, m.PreferredHost, m.DAG)
	}
	w.Flush()
}
