// Package vdir builds, stores, and applies virtual-directory URL
// configuration templates. A template is a JSON object with one key per
// client endpoint, each mapping cmdlet parameter names to values.
package vdir

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Endpoint names, in apply order.
var EndpointOrder = []string{
	"OWA", "ECP", "OAB", "Webservices", "ActiveSync", "Mapi",
	"OutlookAnywhere", "Autodiscover",
}

// Parameters maps cmdlet parameter names to values for one endpoint.
type Parameters map[string]string

// Template is the full virtual-directory configuration for a namespace.
type Template struct {
	OWA             Parameters `json:"OWA"`
	ECP             Parameters `json:"ECP"`
	OAB             Parameters `json:"OAB"`
	Webservices     Parameters `json:"Webservices"`
	ActiveSync      Parameters `json:"ActiveSync"`
	Mapi            Parameters `json:"Mapi"`
	OutlookAnywhere Parameters `json:"OutlookAnywhere"`
	Autodiscover    Parameters `json:"Autodiscover"`
}

// New computes a template from a namespace host, e.g. "mail.contoso.com".
// Internal and external URLs are identical; split-DNS namespaces are the
// supported deployment shape.
func New(namespace string) (*Template, error) {
	host := strings.TrimSpace(strings.ToLower(namespace))
	if host == "" {
		return nil, fmt.Errorf("namespace host is required")
	}
	if strings.Contains(host, "/") || strings.Contains(host, ":") {
		return nil, fmt.Errorf("namespace must be a bare host name, got %q", namespace)
	}

	base := "https://" + host
	urls := func(path string) Parameters {
		return Parameters{
			"InternalUrl": base + path,
			"ExternalUrl": base + path,
		}
	}

	return &Template{
		OWA:         urls("/owa"),
		ECP:         urls("/ecp"),
		OAB:         urls("/OAB"),
		Webservices: urls("/EWS/Exchange.asmx"),
		ActiveSync:  urls("/Microsoft-Server-ActiveSync"),
		Mapi:        urls("/mapi"),
		OutlookAnywhere: Parameters{
			"InternalHostname":                   host,
			"ExternalHostname":                   host,
			"InternalClientsRequireSsl":          "true",
			"ExternalClientsRequireSsl":          "true",
			"ExternalClientAuthenticationMethod": "Negotiate",
		},
		Autodiscover: urls("/Autodiscover/Autodiscover.xml"),
	}, nil
}

// Endpoint returns the parameter set for a named endpoint.
func (t *Template) Endpoint(name string) (Parameters, error) {
	switch name {
	case "OWA":
		return t.OWA, nil
	case "ECP":
		return t.ECP, nil
	case "OAB":
		return t.OAB, nil
	case "Webservices":
		return t.Webservices, nil
	case "ActiveSync":
		return t.ActiveSync, nil
	case "Mapi":
		return t.Mapi, nil
	case "OutlookAnywhere":
		return t.OutlookAnywhere, nil
	case "Autodiscover":
		return t.Autodiscover, nil
	default:
		return nil, fmt.Errorf("unknown virtual directory endpoint %q", name)
	}
}

// Save writes the template as indented JSON.
func (t *Template) Save(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize template: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o640); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	return nil
}

// Load reads a template file and verifies every endpoint key is present.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}

	// Strictness on the top-level keys catches hand-edited files early.
	var raw map[string]Parameters
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	for _, name := range EndpointOrder {
		if _, ok := raw[name]; !ok {
			return nil, fmt.Errorf("template is missing the %s endpoint", name)
		}
	}
	for name := range raw {
		if _, err := (&Template{}).Endpoint(name); err != nil {
			return nil, err
		}
	}

	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return &t, nil
}
