package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/masterzen/winrm"
	"github.com/sirupsen/logrus"
)

// snapin loads the Exchange management cmdlets into the remote shell.
// WinRM gives each command a fresh shell, so every call carries the prefix.
const snapin = "Add-PSSnapin Microsoft.Exchange.Management.PowerShell.SnapIn -ErrorAction SilentlyContinue; "

// RunnerConfig configures the remote PowerShell connection.
type RunnerConfig struct {
	Host            string
	Port            int
	UseHTTPS        bool
	Insecure        bool
	Username        string
	Password        string
	DialTimeout     time.Duration
	DialAttempts    uint
	ScriptDirectory string
}

// Runner executes PowerShell on one Exchange server over WinRM. It is the
// transport below the Surface implementation; administrative calls are
// never retried, only the initial dial is.
type Runner struct {
	client    *winrm.Client
	log       *logrus.Entry
	scriptDir string
	host      string
}

// NewRunner connects to the management endpoint and verifies the shell
// responds. The dial is retried a bounded number of times; everything
// after that runs at most once.
func NewRunner(ctx context.Context, cfg RunnerConfig, log *logrus.Entry) (*Runner, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("management endpoint host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 5985
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	if cfg.DialAttempts == 0 {
		cfg.DialAttempts = 3
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	endpoint := winrm.NewEndpoint(cfg.Host, cfg.Port, cfg.UseHTTPS, cfg.Insecure, nil, nil, nil, cfg.DialTimeout)
	client, err := winrm.NewClient(endpoint, cfg.Username, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to create WinRM client for %s: %w", cfg.Host, err)
	}

	r := &Runner{
		client:    client,
		log:       log.WithField("endpoint", cfg.Host),
		scriptDir: cfg.ScriptDirectory,
		host:      cfg.Host,
	}

	err = retry.Do(
		func() error {
			_, err := r.Run(ctx, "$PSVersionTable.PSVersion.Major")
			return err
		},
		retry.Context(ctx),
		retry.Attempts(cfg.DialAttempts),
		retry.Delay(2*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("management endpoint %s not reachable: %w", cfg.Host, err)
	}

	r.log.Debug("management endpoint connected")
	return r, nil
}

// Host returns the endpoint this runner is bound to.
func (r *Runner) Host() string {
	return r.host
}

// ScriptPath joins a script name onto the remote management script
// directory.
func (r *Runner) ScriptPath(name string) string {
	dir := strings.TrimRight(r.scriptDir, `\`)
	return dir + `\` + name
}

// Run executes a PowerShell script remotely and returns its stdout. A
// non-zero exit code or stderr output is an error.
func (r *Runner) Run(ctx context.Context, script string) (string, error) {
	started := time.Now()

	stdout, stderr, code, err := r.client.RunWithContextWithString(ctx, winrm.Powershell(snapin+script), "")
	if err != nil {
		return "", fmt.Errorf("remote execution failed: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"exit_code":   code,
		"duration_ms": time.Since(started).Milliseconds(),
	}).Trace("remote command finished")

	if code != 0 {
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = strings.TrimSpace(stdout)
		}
		return "", fmt.Errorf("remote command exited %d: %s", code, msg)
	}
	return stdout, nil
}

// RunJSON executes a script with its output piped through ConvertTo-Json
// and decodes the result. Empty remote output leaves out untouched.
func (r *Runner) RunJSON(ctx context.Context, script string, out any) error {
	stdout, err := r.Run(ctx, script+" | ConvertTo-Json -Depth 4")
	if err != nil {
		return err
	}
	return decodeJSON(stdout, out)
}

// decodeJSON handles ConvertTo-Json's habit of emitting a bare object when
// a pipeline yields a single element: a slice target gets the object
// wrapped into a one-element array first.
func decodeJSON(raw string, out any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if isSlicePointer(out) && strings.HasPrefix(raw, "{") {
		raw = "[" + raw + "]"
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to decode remote JSON output: %w", err)
	}
	return nil
}

func isSlicePointer(out any) bool {
	v := reflect.ValueOf(out)
	return v.Kind() == reflect.Pointer && v.Elem().Kind() == reflect.Slice
}

// quote single-quotes a value for PowerShell, doubling embedded quotes.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
