package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/isometry/opx/internal/oplog"
)

func newLogsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Operation log inspection",
	}
	cmd.AddCommand(newLogsShowCommand(a))
	return cmd
}

func newLogsShowCommand(a *app) *cobra.Command {
	var (
		file    string
		level   string
		cmdlet  string
		session bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show operation log records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := file
			if path == "" {
				// Current session first, then the newest file on disk.
				path = a.sess.OpLog.LastFile()
			}
			if path == "" {
				path = oplog.LatestFile(a.sess.OpLog.Root(), a.sess.UserName)
			}
			if path == "" {
				return fmt.Errorf("no operation log found for %s", a.sess.UserName)
			}

			filter := oplog.Filter{
				Level:  oplog.Level(level),
				Cmdlet: cmdlet,
			}
			if session {
				filter.CallingID = a.sess.CallingID
			}

			records, err := oplog.Read(path, filter)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d records\n", path, len(records))
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tLEVEL\tCMDLET\tMESSAGE")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					r.Time.Format("2006-01-02 15:04:05"), r.Level, r.CallingCmdlet, r.Message)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "log file (default: the newest for the current user)")
	cmd.Flags().StringVar(&level, "level", "", "only Info, Warning, or Error records")
	cmd.Flags().StringVar(&cmdlet, "cmdlet", "", "only records from one command")
	cmd.Flags().BoolVar(&session, "session", false, "only records of the current invocation")
	return cmd
}

func newQueuesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queues",
		Short: "Transport queues",
	}

	show := &cobra.Command{
		Use:   "show <server>",
		Short: "Show a server's transport queues",
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

			queues, err := surface.GetQueues(ctx, server.FQDN)
			if err != nil {
				return err
			}

			a.cmdlet("queues show").Infof("%d queues on %s", len(queues), server.FQDN)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "IDENTITY\tTYPE\tSTATUS\tMESSAGES\tNEXT HOP")
			for _, q := range queues {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					q.Identity, q.DeliveryType, q.Status, q.MessageCount, q.NextHopDomain)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(show)
	return cmd
}
