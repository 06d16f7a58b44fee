// Package exchange drives the Exchange management surface over remote
// PowerShell. The Surface interface is what the orchestrator consumes;
// the WinRM runner is the production implementation.
package exchange

import (
	"time"
)

// Component names the orchestrator touches.
const (
	ComponentHubTransport      = "HubTransport"
	ComponentUMCallRouter      = "UMCallRouter"
	ComponentServerWideOffline = "ServerWideOffline"
)

// Component states.
const (
	StateActive   = "Active"
	StateDraining = "Draining"
	StateInactive = "Inactive"
)

// ComponentState is one row of Get-ServerComponentState.
type ComponentState struct {
	Component string `json:"Component"`
	State     string `json:"State"`
	Requester string `json:"Requester,omitempty"`
}

// MailboxServer carries the activation attributes the verifier inspects.
type MailboxServer struct {
	Name                                     string `json:"Name"`
	DatabaseCopyAutoActivationPolicy         string `json:"DatabaseCopyAutoActivationPolicy"`
	DatabaseCopyActivationDisabledAndMoveNow bool   `json:"DatabaseCopyActivationDisabledAndMoveNow"`
}

// DatabaseCopyStatus is one (database, server) copy with its mount state
// and activation preference.
type DatabaseCopyStatus struct {
	Name                 string `json:"Name"`         // "DB1\SRV01"
	DatabaseName         string `json:"DatabaseName"` // "DB1"
	MailboxServer        string `json:"MailboxServer"`
	Status               string `json:"Status"` // Mounted, Healthy, ...
	ActivationPreference int    `json:"ActivationPreference"`
	CopyQueueLength      int    `json:"CopyQueueLength"`
	ReplayQueueLength    int    `json:"ReplayQueueLength"`
	ContentIndexState    string `json:"ContentIndexState"`
	ReplayLagTime        string `json:"ReplayLagTime,omitempty"`
	TruncationLagTime    string `json:"TruncationLagTime,omitempty"`
}

// Mounted reports whether this copy is the active copy.
func (c DatabaseCopyStatus) Mounted() bool {
	return c.Status == "Mounted"
}

// Queue is one transport queue row.
type Queue struct {
	Identity      string `json:"Identity"`
	DeliveryType  string `json:"DeliveryType"`
	Status        string `json:"Status"`
	MessageCount  int    `json:"MessageCount"`
	NextHopDomain string `json:"NextHopDomain"`
}

// Service is a Windows service with the fields the snapshot commands keep.
type Service struct {
	Name        string `json:"Name"`
	DisplayName string `json:"DisplayName"`
	StartType   string `json:"StartType"` // Automatic, Manual, Disabled
	Status      string `json:"Status"`    // Running, Stopped
}

// Certificate is one Exchange certificate row.
type Certificate struct {
	Thumbprint         string   `json:"Thumbprint"`
	Subject            string   `json:"Subject"`
	Services           string   `json:"Services"` // "IIS, SMTP"
	NotAfter           string   `json:"NotAfter"`
	IsSelfSigned       bool     `json:"IsSelfSigned"`
	CertificateDomains []string `json:"CertificateDomains"`
}

// VirtualDirectory is the generic shape returned by the Get-*VirtualDirectory
// cmdlets; endpoint-specific typing lives in the vdir package.
type VirtualDirectory struct {
	Identity    string `json:"Identity"`
	Server      string `json:"Server"`
	InternalURL string `json:"InternalUrl"`
	ExternalURL string `json:"ExternalUrl"`
}

// ClusterNode reports the cluster membership state of a DAG member.
type ClusterNode struct {
	Name  string `json:"Name"`
	State string `json:"State"` // Up, Paused, Down
}

// JobState mirrors the remote job lifecycle.
type JobState string

const (
	JobRunning   JobState = "Running"
	JobCompleted JobState = "Completed"
	JobFailed    JobState = "Failed"
	JobStopped   JobState = "Stopped"
)

// Terminal reports whether the job has left the running state.
func (s JobState) Terminal() bool {
	return s != JobRunning && s != ""
}

// JobResult is the output collected exactly once when a job terminates.
type JobResult struct {
	State    JobState
	Output   string
	Err      error
	Duration time.Duration
}
