package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	jobOKMarker     = "OPX_JOB_OK"
	jobFailedMarker = "OPX_JOB_FAILED"
)

// winrmSurface implements Surface on top of a Runner.
type winrmSurface struct {
	runner       *Runner
	log          *logrus.Entry
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewSurface wraps a runner into the management surface. Interval and
// timeout govern background job polling.
func NewSurface(runner *Runner, pollInterval, pollTimeout time.Duration, log *logrus.Entry) Surface {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &winrmSurface{
		runner:       runner,
		log:          log.WithField("component", "exchange"),
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}
}

func (s *winrmSurface) GetServerComponentStates(ctx context.Context, server string) ([]ComponentState, error) {
	var states []ComponentState
	if err := s.runner.RunJSON(ctx, getComponentStatesCommand(server), &states); err != nil {
		return nil, fmt.Errorf("failed to get component states for %s: %w", server, err)
	}
	return states, nil
}

func (s *winrmSurface) SetServerComponentState(ctx context.Context, opts SetComponentStateOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if _, err := s.runner.Run(ctx, setComponentStateCommand(opts)); err != nil {
		return fmt.Errorf("failed to set component %s on %s: %w", opts.Component, opts.Server, err)
	}
	s.log.WithFields(logrus.Fields{
		"server":    opts.Server,
		"state":     opts.State,
		"requester": opts.Requester,
	}).Info("component state set: " + opts.Component)
	return nil
}

func (s *winrmSurface) GetMailboxServer(ctx context.Context, server string) (*MailboxServer, error) {
	var mbx MailboxServer
	if err := s.runner.RunJSON(ctx, getMailboxServerCommand(server), &mbx); err != nil {
		return nil, fmt.Errorf("failed to get mailbox server %s: %w", server, err)
	}
	if mbx.Name == "" {
		return nil, nil
	}
	return &mbx, nil
}

func (s *winrmSurface) SetMailboxServer(ctx context.Context, opts SetMailboxServerOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if _, err := s.runner.Run(ctx, setMailboxServerCommand(opts)); err != nil {
		return fmt.Errorf("failed to set mailbox server %s: %w", opts.Server, err)
	}
	return nil
}

func (s *winrmSurface) GetMailboxDatabaseCopyStatus(ctx context.Context, server string) ([]DatabaseCopyStatus, error) {
	var copies []DatabaseCopyStatus
	if err := s.runner.RunJSON(ctx, getCopyStatusCommand(server), &copies); err != nil {
		return nil, fmt.Errorf("failed to get database copy status for %s: %w", server, err)
	}
	return copies, nil
}

func (s *winrmSurface) MoveActiveDatabases(ctx context.Context, opts MoveActiveDatabasesOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if _, err := s.runner.Run(ctx, moveActiveDatabasesCommand(opts)); err != nil {
		return fmt.Errorf("failed to move active databases off %s: %w", opts.Server, err)
	}
	return nil
}

func (s *winrmSurface) GetQueues(ctx context.Context, server string) ([]Queue, error) {
	var queues []Queue
	if err := s.runner.RunJSON(ctx, getQueuesCommand(server), &queues); err != nil {
		return nil, fmt.Errorf("failed to get queues for %s: %w", server, err)
	}
	return queues, nil
}

func (s *winrmSurface) RedirectMessages(ctx context.Context, opts RedirectMessagesOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if _, err := s.runner.Run(ctx, redirectMessagesCommand(opts)); err != nil {
		return fmt.Errorf("failed to redirect messages from %s to %s: %w", opts.Server, opts.Target, err)
	}
	return nil
}

func (s *winrmSurface) GetServices(ctx context.Context, server string) ([]Service, error) {
	var services []Service
	if err := s.runner.RunJSON(ctx, getServicesCommand(server), &services); err != nil {
		return nil, fmt.Errorf("failed to get services on %s: %w", server, err)
	}
	return services, nil
}

func (s *winrmSurface) SetServiceStartup(ctx context.Context, opts SetServiceOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if _, err := s.runner.Run(ctx, setServiceStartupCommand(opts)); err != nil {
		return fmt.Errorf("failed to set startup type of %s on %s: %w", opts.Name, opts.Server, err)
	}
	return nil
}

func (s *winrmSurface) RestartService(ctx context.Context, server, name string) error {
	if _, err := s.runner.Run(ctx, restartServiceCommand(server, name)); err != nil {
		return fmt.Errorf("failed to restart %s on %s: %w", name, server, err)
	}
	s.log.WithField("server", server).Info("service restarted: " + name)
	return nil
}

func (s *winrmSurface) GetCertificates(ctx context.Context, server string) ([]Certificate, error) {
	var certs []Certificate
	if err := s.runner.RunJSON(ctx, getCertificatesCommand(server), &certs); err != nil {
		return nil, fmt.Errorf("failed to get certificates on %s: %w", server, err)
	}
	return certs, nil
}

func (s *winrmSurface) RequestCertificate(ctx context.Context, opts RequestCertificateOptions) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	out, err := s.runner.Run(ctx, requestCertificateCommand(opts))
	if err != nil {
		return "", fmt.Errorf("failed to request certificate on %s: %w", opts.Server, err)
	}
	return strings.TrimSpace(out), nil
}

func (s *winrmSurface) ImportCertificate(ctx context.Context, opts ImportCertificateOptions) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	out, err := s.runner.Run(ctx, importCertificateCommand(opts))
	if err != nil {
		return "", fmt.Errorf("failed to import certificate on %s: %w", opts.Server, err)
	}
	return strings.TrimSpace(out), nil
}

func (s *winrmSurface) EnableCertificate(ctx context.Context, opts EnableCertificateOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if _, err := s.runner.Run(ctx, enableCertificateCommand(opts)); err != nil {
		return fmt.Errorf("failed to enable certificate %s on %s: %w", opts.Thumbprint, opts.Server, err)
	}
	return nil
}

func (s *winrmSurface) GetVirtualDirectory(ctx context.Context, server, endpoint string) (*VirtualDirectory, error) {
	cmd, err := getVirtualDirectoryCommand(server, endpoint)
	if err != nil {
		return nil, err
	}
	var vdir VirtualDirectory
	if err := s.runner.RunJSON(ctx, cmd, &vdir); err != nil {
		return nil, fmt.Errorf("failed to get %s virtual directory on %s: %w", endpoint, server, err)
	}
	if vdir.Identity == "" {
		return nil, nil
	}
	return &vdir, nil
}

func (s *winrmSurface) SetVirtualDirectory(ctx context.Context, opts SetVirtualDirectoryOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	cmd, err := setVirtualDirectoryCommand(opts)
	if err != nil {
		return err
	}
	if _, err := s.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to set %s virtual directory on %s: %w", opts.Endpoint, opts.Server, err)
	}
	return nil
}

func (s *winrmSurface) GetClusterNode(ctx context.Context, server string) (*ClusterNode, error) {
	var node ClusterNode
	if err := s.runner.RunJSON(ctx, getClusterNodeCommand(server), &node); err != nil {
		return nil, fmt.Errorf("failed to get cluster node state for %s: %w", server, err)
	}
	if node.Name == "" {
		return nil, nil
	}
	return &node, nil
}

func (s *winrmSurface) StartDagServerMaintenance(ctx context.Context, opts StartDagMaintenanceOptions) (*Job, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.runScript(ctx, "StartDagServerMaintenance",
		startDagMaintenanceCommand(s.runner.ScriptPath("StartDagServerMaintenance.ps1"), opts), opts.AsJob)
}

func (s *winrmSurface) StopDagServerMaintenance(ctx context.Context, opts StopDagMaintenanceOptions) (*Job, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.runScript(ctx, "StopDagServerMaintenance",
		stopDagMaintenanceCommand(s.runner.ScriptPath("StopDagServerMaintenance.ps1"), opts), opts.AsJob)
}

func (s *winrmSurface) RedistributeActiveDatabases(ctx context.Context, opts RedistributeOptions) (*Job, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.runScript(ctx, "RedistributeActiveDatabases",
		redistributeCommand(s.runner.ScriptPath("RedistributeActiveDatabases.ps1"), opts), opts.AsJob)
}

// runScript executes a maintenance script either inline or detached. The
// detached form starts a separate remote PowerShell process writing to a
// transcript file, because WinRM shells do not outlive their command.
func (s *winrmSurface) runScript(ctx context.Context, name, command string, asJob bool) (*Job, error) {
	if !asJob {
		if _, err := s.runner.Run(ctx, command); err != nil {
			return nil, fmt.Errorf("script %s failed: %w", name, err)
		}
		return nil, nil
	}

	transcript := fmt.Sprintf(`C:\Windows\Temp\opx-job-%s.out`, uuid.NewString())

	wrapped := fmt.Sprintf("%s%s; if ($?) { %s } else { %s }",
		snapin, command, quote(jobOKMarker), quote(jobFailedMarker))
	start := fmt.Sprintf(
		"$p = Start-Process -FilePath powershell.exe -ArgumentList @('-NoProfile','-NonInteractive','-Command', %s) -RedirectStandardOutput %s -PassThru -WindowStyle Hidden; $p.Id",
		quote(wrapped), quote(transcript))

	out, err := s.runner.Run(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("failed to start background script %s: %w", name, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return nil, fmt.Errorf("background script %s returned no process id: %w", name, err)
	}

	s.log.WithFields(logrus.Fields{
		"script": name,
		"pid":    pid,
	}).Info("background script started")

	return NewJob(name, s.pollInterval, s.pollTimeout, JobFuncs{
		State:   s.jobState(pid),
		Collect: s.jobCollect(pid, transcript),
		Stop:    s.jobStop(pid, transcript),
	}, s.log), nil
}

func (s *winrmSurface) jobState(pid int) func(ctx context.Context) (JobState, error) {
	return func(ctx context.Context) (JobState, error) {
		out, err := s.runner.Run(ctx,
			fmt.Sprintf("if (Get-Process -Id %d -ErrorAction SilentlyContinue) { 'Running' } else { 'Done' }", pid))
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(out) == "Running" {
			return JobRunning, nil
		}
		// Terminal; success or failure is decided from the transcript.
		return JobCompleted, nil
	}
}

func (s *winrmSurface) jobCollect(pid int, transcript string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		out, err := s.runner.Run(ctx, fmt.Sprintf(
			"Get-Content -Path %s -Raw -ErrorAction SilentlyContinue; Remove-Item -Path %s -Force -ErrorAction SilentlyContinue",
			quote(transcript), quote(transcript)))
		if err != nil {
			return "", fmt.Errorf("failed to collect output of process %d: %w", pid, err)
		}

		output := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(out, jobOKMarker, ""), jobFailedMarker, ""))
		if strings.Contains(out, jobFailedMarker) {
			return output, fmt.Errorf("background script reported failure: %s", lastLine(output))
		}
		return output, nil
	}
}

func (s *winrmSurface) jobStop(pid int, transcript string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.runner.Run(ctx, fmt.Sprintf(
			"Stop-Process -Id %d -Force -ErrorAction SilentlyContinue; Remove-Item -Path %s -Force -ErrorAction SilentlyContinue",
			pid, quote(transcript)))
		return err
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
