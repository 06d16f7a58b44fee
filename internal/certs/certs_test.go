package certs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/opx/internal/exchange"
)

func TestParseNotAfter(t *testing.T) {
	for _, value := range []string{
		"2026-06-01T12:00:00Z",
		"2026-06-01T12:00:00",
		"06/01/2026 12:00:00",
		"6/1/2026 1:30:00 PM",
	} {
		parsed, err := ParseNotAfter(value)
		require.NoError(t, err, value)
		assert.Equal(t, 2026, parsed.Year(), value)
	}

	_, err := ParseNotAfter("soon")
	assert.Error(t, err)
}

func TestExpiringWithin(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	certs := []exchange.Certificate{
		{Thumbprint: "AA", NotAfter: "2026-01-15T00:00:00Z"}, // inside window
		{Thumbprint: "BB", NotAfter: "2027-01-01T00:00:00Z"}, // fine
		{Thumbprint: "CC", NotAfter: "garbage"},              // unparseable, surfaced
	}

	expiring := ExpiringWithin(certs, now, 30*24*time.Hour)
	require.Len(t, expiring, 2)
	assert.Equal(t, "AA", expiring[0].Thumbprint)
	assert.Equal(t, "CC", expiring[1].Thumbprint)
}

func TestFindByThumbprint(t *testing.T) {
	certs := []exchange.Certificate{{Thumbprint: "AABBCC"}, {Thumbprint: "DDEEFF"}}

	assert.NotNil(t, FindByThumbprint(certs, "aabbcc"))
	assert.NotNil(t, FindByThumbprint(certs, " AA BB CC "))
	assert.Nil(t, FindByThumbprint(certs, "123456"))
}

func TestRollout(t *testing.T) {
	fake := exchange.NewFake()

	results, err := Rollout(context.Background(), fake, RolloutOptions{
		Servers:  []string{"exch01.contoso.com", "exch02.contoso.com"},
		FilePath: `\\share\certs\mail.pfx`,
		Services: "IIS,SMTP",
	}, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.NotEmpty(t, r.Thumbprint)
	}
	assert.Equal(t, 2, fake.CallCount("ImportCertificate"))
	assert.Equal(t, 2, fake.CallCount("EnableCertificate"))
}

func TestRollout_PartialFailure(t *testing.T) {
	fake := exchange.NewFake()
	fake.Errs["ImportCertificate"] = fmt.Errorf("share unreachable")

	results, err := Rollout(context.Background(), fake, RolloutOptions{
		Servers:  []string{"exch01.contoso.com"},
		FilePath: `\\share\certs\mail.pfx`,
		Services: "IIS",
	}, nil)
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Zero(t, fake.CallCount("EnableCertificate"), "enable must not run after a failed import")
}

func TestRollout_Validation(t *testing.T) {
	fake := exchange.NewFake()

	_, err := Rollout(context.Background(), fake, RolloutOptions{Services: "IIS"}, nil)
	assert.ErrorContains(t, err, "at least one server")

	_, err = Rollout(context.Background(), fake, RolloutOptions{
		Servers: []string{"exch01"}, FilePath: "x",
	}, nil)
	assert.ErrorContains(t, err, "services are required")
}
