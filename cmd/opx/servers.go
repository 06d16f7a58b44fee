package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newServersCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Exchange server inventory",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List Exchange servers discovered in the directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			topo, err := a.sess.Directory(ctx)
			if err != nil {
				return err
			}
			servers, err := topo.Servers(ctx)
			if err != nil {
				return err
			}

			a.cmdlet("servers list").Infof("found %d servers", len(servers))

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tFQDN\tROLES\tSITE\tVERSION")
			for _, s := range servers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.FQDN, s.Roles, s.Site, s.Version)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(list)
	return cmd
}

func newDagsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dags",
		Short: "Database availability groups",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List DAGs and their member servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			topo, err := a.sess.Directory(ctx)
			if err != nil {
				return err
			}
			dags, err := topo.DAGs(ctx)
			if err != nil {
				return err
			}

			a.cmdlet("dags list").Infof("found %d DAGs", len(dags))

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tMEMBERS")
			for _, d := range dags {
				fmt.Fprintf(w, "%s\t%d\n", d.Name, len(d.Members))
				for _, m := range d.Members {
					fmt.Fprintf(w, "  %s\t\n", m)
				}
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(list)
	return cmd
}

func newSchemaCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Directory schema information",
	}

	versions := &cobra.Command{
		Use:   "versions",
		Short: "Show Exchange schema and organization version markers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			topo, err := a.sess.Directory(ctx)
			if err != nil {
				return err
			}
			v, err := topo.SchemaVersions(ctx)
			if err != nil {
				return err
			}

			a.cmdlet("schema versions").Info("schema versions read")

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Schema rangeUpper\t%s\n", orDash(v.SchemaRangeUpper))
			fmt.Fprintf(w, "Organization objectVersion\t%s\n", orDash(v.OrganizationVersion))
			fmt.Fprintf(w, "System objects objectVersion\t%s\n", orDash(v.SystemObjectsVersion))
			return w.Flush()
		},
	}

	cmd.AddCommand(versions)
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
