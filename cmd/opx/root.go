// opx is a fleet-administration CLI for Microsoft Exchange Server
// organizations: topology discovery from Active Directory, maintenance
// mode orchestration, DAG database placement, certificates, virtual
// directories, and service snapshots.
package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/isometry/opx/internal/config"
	"github.com/isometry/opx/internal/oplog"
	"github.com/isometry/opx/internal/session"
)

// app carries the process-wide state commands receive.
type app struct {
	cfgFile  string
	logLevel string

	cfg  *config.Config
	log  *logrus.Logger
	sess *session.Session
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "opx",
		Short:         "Exchange Server fleet administration",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.sess != nil {
				return a.sess.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default opx.yaml in ., ~/.config/opx, /etc/opx)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "console log level (overrides config)")

	root.AddCommand(
		newServersCommand(a),
		newDagsCommand(a),
		newSchemaCommand(a),
		newMaintenanceCommand(a),
		newDatabasesCommand(a),
		newVdirCommand(a),
		newServicesCommand(a),
		newCertsCommand(a),
		newQueuesCommand(a),
		newLogsCommand(a),
	)

	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	a.log = logrus.New()
	a.log.SetLevel(parsed)
	a.log.SetOutput(cmd.ErrOrStderr())

	a.sess, err = session.New(cfg, a.log)
	return err
}

// cmdlet tags log entries with the invoking command for the operation log.
func (a *app) cmdlet(name string) *logrus.Entry {
	return a.sess.Log.WithField(oplog.CmdletField, name)
}
