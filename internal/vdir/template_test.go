package vdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ComputesURLs(t *testing.T) {
	tpl, err := New("Mail.Contoso.Com")
	require.NoError(t, err)

	assert.Equal(t, "https://mail.contoso.com/owa", tpl.OWA["InternalUrl"])
	assert.Equal(t, "https://mail.contoso.com/owa", tpl.OWA["ExternalUrl"])
	assert.Equal(t, "https://mail.contoso.com/EWS/Exchange.asmx", tpl.Webservices["ExternalUrl"])
	assert.Equal(t, "https://mail.contoso.com/Microsoft-Server-ActiveSync", tpl.ActiveSync["InternalUrl"])
	assert.Equal(t, "mail.contoso.com", tpl.OutlookAnywhere["InternalHostname"])
	assert.Equal(t, "https://mail.contoso.com/Autodiscover/Autodiscover.xml", tpl.Autodiscover["InternalUrl"])
}

func TestNew_RejectsNonHostInput(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	_, err = New("https://mail.contoso.com")
	assert.ErrorContains(t, err, "bare host")

	_, err = New("mail.contoso.com:443")
	assert.Error(t, err)
}

func TestTemplate_Endpoint(t *testing.T) {
	tpl, err := New("mail.contoso.com")
	require.NoError(t, err)

	for _, name := range EndpointOrder {
		params, err := tpl.Endpoint(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, params, name)
	}

	_, err = tpl.Endpoint("IMAP")
	assert.Error(t, err)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	tpl, err := New("mail.contoso.com")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "vdir.json")
	require.NoError(t, tpl.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, tpl, loaded)
}

func TestLoad_MissingEndpointKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vdir.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"OWA":{"InternalUrl":"x"}}`), 0o640))

	_, err := Load(path)
	assert.ErrorContains(t, err, "missing the ECP endpoint")
}

func TestLoad_UnknownEndpointKey(t *testing.T) {
	tpl, err := New("mail.contoso.com")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "vdir.json")
	require.NoError(t, tpl.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data = append([]byte(`{"IMAP":{"x":"y"},`), data[1:]...)
	require.NoError(t, os.WriteFile(path, data, 0o640))

	_, err = Load(path)
	assert.ErrorContains(t, err, "unknown virtual directory endpoint")
}
