package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/isometry/opx/internal/services"
)

func newServicesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "services",
		Short: "Service startup-type snapshots and restarts",
	}
	cmd.AddCommand(
		newServicesBackupCommand(a),
		newServicesRestoreCommand(a),
		newServicesRestartCommand(a),
	)
	return cmd
}

func newServicesBackupCommand(a *app) *cobra.Command {
	var (
		file string
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "backup <server>",
		Short: "Snapshot a server's service startup types to JSON",
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

			current, err := surface.GetServices(ctx, server.FQDN)
			if err != nil {
				return err
			}

			snap := services.New(server.FQDN, time.Now().UTC().Format(time.RFC3339), current, !all)
			if len(snap.Services) == 0 {
				return fmt.Errorf("no services matched on %s", server.FQDN)
			}
			if err := snap.Save(file); err != nil {
				return err
			}

			a.cmdlet("services backup").Infof("saved %d services of %s to %s", len(snap.Services), server.FQDN, file)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d services to %s\n", len(snap.Services), file)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "services.json", "snapshot file path")
	cmd.Flags().BoolVar(&all, "all", false, "snapshot every service, not just the Exchange families")
	return cmd
}

func newServicesRestoreCommand(a *app) *cobra.Command {
	var (
		file   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "restore <server>",
		Short: "Restore service startup types from a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			snap, err := services.Load(file)
			if err != nil {
				return err
			}

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

			current, err := surface.GetServices(ctx, server.FQDN)
			if err != nil {
				return err
			}

			snap.Server = server.FQDN
			plan := snap.RestorePlan(current)
			if len(plan) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "All startup types already match the snapshot.")
				return nil
			}

			log := a.cmdlet("services restore")
			for _, change := range plan {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", change.Name, change.StartType)
				if dryRun {
					continue
				}
				if err := surface.SetServiceStartup(ctx, change); err != nil {
					log.WithError(err).Errorf("failed to restore %s", change.Name)
					return err
				}
				log.Infof("restored %s to %s", change.Name, change.StartType)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "services.json", "snapshot file path")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the plan without applying it")
	return cmd
}

func newServicesRestartCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <server> <service>",
		Short: "Restart a service on a server",
		Args:  cobra.ExactArgs(2),
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

			log := a.cmdlet("services restart")
			if err := surface.RestartService(ctx, server.FQDN, args[1]); err != nil {
				log.WithError(err).Errorf("failed to restart %s", args[1])
				return err
			}
			log.Infof("restarted %s on %s", args[1], server.FQDN)
			fmt.Fprintf(cmd.OutOrStdout(), "Restarted %s on %s\n", args[1], server.FQDN)
			return nil
		},
	}
}
