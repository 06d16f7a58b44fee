package exchange

import (
	"fmt"
	"sort"
	"strings"
)

// Command builders. Kept apart from the transport so the generated
// PowerShell can be unit tested without a live endpoint.

func getComponentStatesCommand(server string) string {
	return fmt.Sprintf("Get-ServerComponentState -Identity %s | Select-Object Component,State,Requester", quote(server))
}

func setComponentStateCommand(o SetComponentStateOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Set-ServerComponentState -Identity %s -Component %s -State %s -Requester %s",
		quote(o.Server), quote(o.Component), quote(o.State), quote(o.Requester))
	if o.DomainController != "" {
		fmt.Fprintf(&b, " -DomainController %s", quote(o.DomainController))
	}
	return b.String()
}

func getMailboxServerCommand(server string) string {
	return fmt.Sprintf("Get-MailboxServer -Identity %s | Select-Object Name,DatabaseCopyAutoActivationPolicy,DatabaseCopyActivationDisabledAndMoveNow", quote(server))
}

func setMailboxServerCommand(o SetMailboxServerOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Set-MailboxServer -Identity %s", quote(o.Server))
	if o.DatabaseCopyAutoActivationPolicy != nil {
		fmt.Fprintf(&b, " -DatabaseCopyAutoActivationPolicy %s", quote(*o.DatabaseCopyAutoActivationPolicy))
	}
	if o.DatabaseCopyActivationDisabledAndMoveNow != nil {
		fmt.Fprintf(&b, " -DatabaseCopyActivationDisabledAndMoveNow %s", psBool(*o.DatabaseCopyActivationDisabledAndMoveNow))
	}
	if o.DomainController != "" {
		fmt.Fprintf(&b, " -DomainController %s", quote(o.DomainController))
	}
	return b.String()
}

func getCopyStatusCommand(server string) string {
	return fmt.Sprintf("Get-MailboxDatabaseCopyStatus -Server %s | Select-Object Name,DatabaseName,MailboxServer,Status,ActivationPreference,CopyQueueLength,ReplayQueueLength,ContentIndexState,ReplayLagTime,TruncationLagTime", quote(server))
}

func moveActiveDatabasesCommand(o MoveActiveDatabasesOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Move-ActiveMailboxDatabase -Server %s", quote(o.Server))
	if o.ActivatePreferred {
		b.WriteString(" -ActivatePreferredOnServer " + quote(o.Server))
	}
	if o.MoveComment != "" {
		fmt.Fprintf(&b, " -MoveComment %s", quote(o.MoveComment))
	}
	if o.SkipClientCheck {
		b.WriteString(" -SkipClientExperienceChecks")
	}
	if o.SkipHealthChecks {
		b.WriteString(" -SkipHealthChecks")
	}
	if o.Confirmationless {
		b.WriteString(" -Confirm:$false")
	}
	return b.String()
}

func getQueuesCommand(server string) string {
	return fmt.Sprintf("Get-Queue -Server %s | Select-Object Identity,DeliveryType,Status,MessageCount,NextHopDomain", quote(server))
}

func redirectMessagesCommand(o RedirectMessagesOptions) string {
	return fmt.Sprintf("Redirect-Message -Server %s -Target %s -Confirm:$false", quote(o.Server), quote(o.Target))
}

func getServicesCommand(server string) string {
	return fmt.Sprintf("Invoke-Command -ComputerName %s -ScriptBlock { Get-Service | Select-Object Name,DisplayName,StartType,Status }", quote(server))
}

func setServiceStartupCommand(o SetServiceOptions) string {
	return fmt.Sprintf("Invoke-Command -ComputerName %s -ScriptBlock { Set-Service -Name %s -StartupType %s }",
		quote(o.Server), quote(o.Name), o.StartType)
}

func restartServiceCommand(server, name string) string {
	return fmt.Sprintf("Invoke-Command -ComputerName %s -ScriptBlock { Restart-Service -Name %s -Force }",
		quote(server), quote(name))
}

func getCertificatesCommand(server string) string {
	return fmt.Sprintf("Get-ExchangeCertificate -Server %s | Select-Object Thumbprint,Subject,NotAfter,IsSelfSigned,CertificateDomains,@{n='Services';e={$_.Services.ToString()}}", quote(server))
}

func requestCertificateCommand(o RequestCertificateOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "$req = New-ExchangeCertificate -Server %s -GenerateRequest -SubjectName %s -PrivateKeyExportable $true",
		quote(o.Server), quote(o.SubjectName))
	if len(o.DomainNames) > 0 {
		quoted := make([]string, len(o.DomainNames))
		for i, d := range o.DomainNames {
			quoted[i] = quote(d)
		}
		fmt.Fprintf(&b, " -DomainName %s", strings.Join(quoted, ","))
	}
	if o.FriendlyName != "" {
		fmt.Fprintf(&b, " -FriendlyName %s", quote(o.FriendlyName))
	}
	if o.KeySize > 0 {
		fmt.Fprintf(&b, " -KeySize %d", o.KeySize)
	}
	fmt.Fprintf(&b, "; Set-Content -Path %s -Value $req; $req", quote(o.RequestFile))
	return b.String()
}

func importCertificateCommand(o ImportCertificateOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Import-ExchangeCertificate -Server %s -FileName %s", quote(o.Server), quote(o.FilePath))
	if o.Password != "" {
		fmt.Fprintf(&b, " -Password (ConvertTo-SecureString -String %s -AsPlainText -Force)", quote(o.Password))
	}
	b.WriteString(" | Select-Object -ExpandProperty Thumbprint")
	return b.String()
}

func enableCertificateCommand(o EnableCertificateOptions) string {
	return fmt.Sprintf("Enable-ExchangeCertificate -Server %s -Thumbprint %s -Services %s -Force",
		quote(o.Server), quote(o.Thumbprint), quote(o.Services))
}

// vdirCmdlets maps endpoint keys to their cmdlet noun.
var vdirCmdlets = map[string]string{
	"OWA":             "OwaVirtualDirectory",
	"ECP":             "EcpVirtualDirectory",
	"OAB":             "OabVirtualDirectory",
	"Webservices":     "WebServicesVirtualDirectory",
	"ActiveSync":      "ActiveSyncVirtualDirectory",
	"Mapi":            "MapiVirtualDirectory",
	"OutlookAnywhere": "OutlookAnywhere",
	"Autodiscover":    "AutodiscoverVirtualDirectory",
}

func getVirtualDirectoryCommand(server, endpoint string) (string, error) {
	noun, ok := vdirCmdlets[endpoint]
	if !ok {
		return "", fmt.Errorf("unknown virtual directory endpoint %q", endpoint)
	}
	return fmt.Sprintf("Get-%s -Server %s | Select-Object Identity,Server,InternalUrl,ExternalUrl", noun, quote(server)), nil
}

func setVirtualDirectoryCommand(o SetVirtualDirectoryOptions) (string, error) {
	noun, ok := vdirCmdlets[o.Endpoint]
	if !ok {
		return "", fmt.Errorf("unknown virtual directory endpoint %q", o.Endpoint)
	}

	// Deterministic parameter order keeps the command reproducible in logs.
	names := make([]string, 0, len(o.Parameters))
	for name := range o.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "Get-%s -Server %s | Set-%s", noun, quote(o.Server), noun)
	for _, name := range names {
		value := o.Parameters[name]
		switch strings.ToLower(value) {
		case "true", "false":
			fmt.Fprintf(&b, " -%s $%s", name, strings.ToLower(value))
		default:
			fmt.Fprintf(&b, " -%s %s", name, quote(value))
		}
	}
	return b.String(), nil
}

func getClusterNodeCommand(server string) string {
	short := strings.SplitN(server, ".", 2)[0]
	return fmt.Sprintf("Invoke-Command -ComputerName %s -ScriptBlock { Get-ClusterNode -Name %s | Select-Object Name,@{n='State';e={$_.State.ToString()}} }",
		quote(server), quote(short))
}

func startDagMaintenanceCommand(scriptPath string, o StartDagMaintenanceOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "& %s -serverName %s", quote(scriptPath), quote(o.Server))
	if o.MoveComment != "" {
		fmt.Fprintf(&b, " -MoveComment %s", quote(o.MoveComment))
	}
	if o.PauseClusterNode {
		b.WriteString(" -pauseClusterNode")
	}
	if o.ConfigurationOnly {
		b.WriteString(" -configurationOnly")
	}
	return b.String()
}

func stopDagMaintenanceCommand(scriptPath string, o StopDagMaintenanceOptions) string {
	return fmt.Sprintf("& %s -serverName %s", quote(scriptPath), quote(o.Server))
}

func redistributeCommand(scriptPath string, o RedistributeOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "& %s -DagName %s", quote(scriptPath), quote(o.DAG))
	if o.BalanceActivationPreference {
		b.WriteString(" -BalanceDbsByActivationPreference")
	}
	if o.Confirmationless {
		b.WriteString(" -Confirm:$false")
	}
	return b.String()
}

func psBool(v bool) string {
	if v {
		return "$true"
	}
	return "$false"
}
