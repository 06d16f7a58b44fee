package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/isometry/opx/internal/certs"
	"github.com/isometry/opx/internal/exchange"
)

func newCertsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Exchange certificate rollout",
	}
	cmd.AddCommand(
		newCertsListCommand(a),
		newCertsRequestCommand(a),
		newCertsImportCommand(a),
		newCertsEnableCommand(a),
	)
	return cmd
}

func newCertsListCommand(a *app) *cobra.Command {
	var expiringDays int

	cmd := &cobra.Command{
		Use:   "list <server>",
		Short: "List certificates on a server",
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

			list, err := surface.GetCertificates(ctx, server.FQDN)
			if err != nil {
				return err
			}
			if expiringDays > 0 {
				list = certs.ExpiringWithin(list, time.Now(), time.Duration(expiringDays)*24*time.Hour)
			}

			a.cmdlet("certs list").Infof("found %d certificates on %s", len(list), server.FQDN)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "THUMBPRINT\tSUBJECT\tSERVICES\tNOT AFTER\tSELF-SIGNED")
			for _, c := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\n",
					c.Thumbprint, c.Subject, orDash(c.Services), c.NotAfter, c.IsSelfSigned)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&expiringDays, "expiring-within", 0, "only certificates expiring within this many days")
	return cmd
}

func newCertsRequestCommand(a *app) *cobra.Command {
	var opts exchange.RequestCertificateOptions

	cmd := &cobra.Command{
		Use:   "request <server>",
		Short: "Generate a certificate signing request",
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
			opts.Server = server.FQDN

			surface, err := a.sess.Surface(ctx)
			if err != nil {
				return err
			}

			request, err := surface.RequestCertificate(ctx, opts)
			if err != nil {
				a.cmdlet("certs request").WithError(err).Error("certificate request failed")
				return err
			}

			a.cmdlet("certs request").Infof("request for %s written to %s", opts.SubjectName, opts.RequestFile)
			fmt.Fprintln(cmd.OutOrStdout(), request)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.SubjectName, "subject", "", `subject name, e.g. "CN=mail.contoso.com"`)
	cmd.Flags().StringSliceVar(&opts.DomainNames, "domains", nil, "subject alternative names")
	cmd.Flags().StringVar(&opts.FriendlyName, "friendly-name", "", "friendly name")
	cmd.Flags().IntVar(&opts.KeySize, "key-size", 2048, "RSA key size")
	cmd.Flags().StringVar(&opts.RequestFile, "out", "", "UNC path the request file is written to")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newCertsImportCommand(a *app) *cobra.Command {
	var (
		file         string
		password     string
		servicesFlag string
	)

	cmd := &cobra.Command{
		Use:   "import <server>...",
		Short: "Import an issued certificate on one or more servers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			topo, err := a.sess.Directory(ctx)
			if err != nil {
				return err
			}
			fqdns := make([]string, 0, len(args))
			for _, name := range args {
				server, err := topo.ResolveServer(ctx, name)
				if err != nil {
					return err
				}
				fqdns = append(fqdns, server.FQDN)
			}

			surface, err := a.sess.Surface(ctx)
			if err != nil {
				return err
			}

			log := a.cmdlet("certs import")
			if servicesFlag != "" {
				// Import and enable in one pass across the fleet.
				results, err := certs.Rollout(ctx, surface, certs.RolloutOptions{
					Servers:  fqdns,
					FilePath: file,
					Password: password,
					Services: servicesFlag,
				}, log)
				for _, r := range results {
					if r.Err != nil {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", r.Server, r.Err)
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: enabled %s\n", r.Server, r.Thumbprint)
					}
				}
				return err
			}

			for _, fqdn := range fqdns {
				thumbprint, err := surface.ImportCertificate(ctx, exchange.ImportCertificateOptions{
					Server:   fqdn,
					FilePath: file,
					Password: password,
				})
				if err != nil {
					log.WithError(err).Errorf("import failed on %s", fqdn)
					return err
				}
				log.Infof("imported %s on %s", thumbprint, fqdn)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: imported %s\n", fqdn, thumbprint)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "UNC path of the issued certificate")
	cmd.Flags().StringVar(&password, "password", "", "PKCS#12 password")
	cmd.Flags().StringVar(&servicesFlag, "enable-for", "", `also enable for these services, e.g. "IIS,SMTP"`)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newCertsEnableCommand(a *app) *cobra.Command {
	var servicesFlag string

	cmd := &cobra.Command{
		Use:   "enable <server> <thumbprint>",
		Short: "Bind a certificate to Exchange services",
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

			// Fail early on a bad thumbprint rather than remotely.
			list, err := surface.GetCertificates(ctx, server.FQDN)
			if err != nil {
				return err
			}
			cert := certs.FindByThumbprint(list, args[1])
			if cert == nil {
				return fmt.Errorf("certificate %s not found on %s", args[1], server.FQDN)
			}

			log := a.cmdlet("certs enable")
			err = surface.EnableCertificate(ctx, exchange.EnableCertificateOptions{
				Server:     server.FQDN,
				Thumbprint: cert.Thumbprint,
				Services:   servicesFlag,
			})
			if err != nil {
				log.WithError(err).Error("enable failed")
				return err
			}

			log.Infof("enabled %s for %s on %s", cert.Thumbprint, servicesFlag, server.FQDN)
			fmt.Fprintf(cmd.OutOrStdout(), "Enabled %s for %s\n", cert.Thumbprint, strings.ToUpper(servicesFlag))
			return nil
		},
	}

	cmd.Flags().StringVar(&servicesFlag, "services", "IIS,SMTP", "services to bind")
	return cmd
}
