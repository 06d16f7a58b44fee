package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/isometry/opx/internal/exchange"
	"github.com/isometry/opx/internal/vdir"
)

func newVdirCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vdir",
		Short: "Virtual-directory URL configuration",
	}
	cmd.AddCommand(
		newVdirTemplateCommand(a),
		newVdirShowCommand(a),
		newVdirApplyCommand(a),
	)
	return cmd
}

func newVdirTemplateCommand(a *app) *cobra.Command {
	var (
		namespace string
		file      string
	)

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Generate a virtual-directory template for a namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tpl, err := vdir.New(namespace)
			if err != nil {
				return err
			}
			if err := tpl.Save(file); err != nil {
				return err
			}
			a.cmdlet("vdir template").Infof("template for %s written to %s", namespace, file)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote template to %s\n", file)
			return nil
		},
	}

	cmd.Flags().StringVar(&namespace, "namespace", "", "client access namespace host, e.g. mail.contoso.com")
	cmd.Flags().StringVar(&file, "file", "vdir.json", "template file path")
	_ = cmd.MarkFlagRequired("namespace")
	return cmd
}

func newVdirShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <server>",
		Short: "Show a server's current virtual-directory URLs",
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

			a.cmdlet("vdir show").Infof("reading virtual directories of %s", server.FQDN)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ENDPOINT\tINTERNAL URL\tEXTERNAL URL")
			for _, endpoint := range vdir.EndpointOrder {
				vd, err := surface.GetVirtualDirectory(ctx, server.FQDN, endpoint)
				if err != nil {
					fmt.Fprintf(w, "%s\terror: %v\t\n", endpoint, err)
					continue
				}
				if vd == nil {
					fmt.Fprintf(w, "%s\t-\t-\n", endpoint)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", endpoint, orDash(vd.InternalURL), orDash(vd.ExternalURL))
			}
			return w.Flush()
		},
	}
}

func newVdirApplyCommand(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "apply <server>",
		Short: "Apply a virtual-directory template to a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tpl, err := vdir.Load(file)
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

			log := a.cmdlet("vdir apply")
			failures := 0
			for _, endpoint := range vdir.EndpointOrder {
				params, err := tpl.Endpoint(endpoint)
				if err != nil {
					return err
				}

				err = surface.SetVirtualDirectory(ctx, exchange.SetVirtualDirectoryOptions{
					Server:     server.FQDN,
					Endpoint:   endpoint,
					Parameters: params,
				})
				if err != nil {
					failures++
					log.WithError(err).Errorf("failed to configure %s", endpoint)
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", endpoint, err)
					continue
				}
				log.Infof("configured %s", endpoint)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", endpoint)
			}

			if failures > 0 {
				return fmt.Errorf("%d of %d endpoints failed", failures, len(vdir.EndpointOrder))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "vdir.json", "template file path")
	return cmd
}
