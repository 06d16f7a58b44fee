// Package certs layers fleet-wide certificate rollout on top of the
// per-server certificate operations.
package certs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/isometry/opx/internal/exchange"
)

// notAfterLayouts covers the date renderings ConvertTo-Json produces for
// certificate expiry, depending on the remote culture settings.
var notAfterLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"01/02/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
}

// ParseNotAfter parses a certificate expiry timestamp.
func ParseNotAfter(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range notAfterLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized certificate date %q", value)
}

// ExpiringWithin filters certificates whose NotAfter falls before
// now+window. Unparseable dates are included: an operator should look at
// them rather than silently trust them.
func ExpiringWithin(certs []exchange.Certificate, now time.Time, window time.Duration) []exchange.Certificate {
	deadline := now.Add(window)
	var out []exchange.Certificate
	for _, c := range certs {
		expiry, err := ParseNotAfter(c.NotAfter)
		if err != nil || expiry.Before(deadline) {
			out = append(out, c)
		}
	}
	return out
}

// FindByThumbprint locates a certificate in a list, tolerating case and
// whitespace differences.
func FindByThumbprint(certs []exchange.Certificate, thumbprint string) *exchange.Certificate {
	want := normalizeThumbprint(thumbprint)
	for i := range certs {
		if normalizeThumbprint(certs[i].Thumbprint) == want {
			return &certs[i]
		}
	}
	return nil
}

func normalizeThumbprint(t string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(t), " ", ""))
}

// RolloutOptions distributes one issued certificate across servers and
// binds it to services.
type RolloutOptions struct {
	Servers  []string
	FilePath string // UNC path reachable from every server
	Password string
	Services string // e.g. "IIS,SMTP"
}

// RolloutResult records the per-server outcome.
type RolloutResult struct {
	Server     string
	Thumbprint string
	Err        error
}

// Rollout imports and enables a certificate on each server. Servers are
// independent: one failure does not stop the others, and the aggregate
// error carries every per-server failure.
func Rollout(ctx context.Context, surface exchange.Surface, opts RolloutOptions, log *logrus.Entry) ([]RolloutResult, error) {
	if len(opts.Servers) == 0 {
		return nil, fmt.Errorf("at least one server is required")
	}
	if opts.Services == "" {
		return nil, fmt.Errorf("services are required")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	results := make([]RolloutResult, 0, len(opts.Servers))
	var merr *multierror.Error

	for _, server := range opts.Servers {
		result := RolloutResult{Server: server}

		thumbprint, err := surface.ImportCertificate(ctx, exchange.ImportCertificateOptions{
			Server:   server,
			FilePath: opts.FilePath,
			Password: opts.Password,
		})
		if err == nil {
			result.Thumbprint = thumbprint
			err = surface.EnableCertificate(ctx, exchange.EnableCertificateOptions{
				Server:     server,
				Thumbprint: thumbprint,
				Services:   opts.Services,
			})
		}

		if err != nil {
			result.Err = err
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", server, err))
			log.WithError(err).Error("certificate rollout failed on " + server)
		} else {
			log.WithFields(logrus.Fields{
				"server":     server,
				"thumbprint": thumbprint,
			}).Info("certificate enabled")
		}
		results = append(results, result)
	}

	return results, merr.ErrorOrNil()
}
